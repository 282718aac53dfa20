//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 Aaron Mathis aaron.mathis@gmail.com
//
// This file is part of SmartSales.
//
// SmartSales is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SmartSales is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with SmartSales. If not, see https://www.gnu.org/licenses/.

// Package prepare turns the raw customers, products and sales extracts into
// prepared datasets ready for the warehouse loader.
package prepare

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/aaronlmathis/smartsales/aggregate"
	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/filter"
	"github.com/aaronlmathis/smartsales/logging"
	"github.com/aaronlmathis/smartsales/scrubber"
	"github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/transform"
	"github.com/aaronlmathis/smartsales/validators"
)

// CleanFunc cleans a raw table in place.
type CleanFunc func(ctx context.Context, t *table.Table, logger *slog.Logger) error

// Dataset describes one prepare stage. PreparedFile is the stem of the
// prepared dataset; the extension follows the output format.
type Dataset struct {
	Name         string
	RawFile      string
	PreparedFile string
	Clean        CleanFunc
	// Validator, when set, checks the cleaned rows before they are written.
	Validator *validators.DataQualityValidator
}

var (
	Customers = Dataset{
		Name:         "customers",
		RawFile:      "customers_data.csv",
		PreparedFile: "customers_prepared",
		Clean:        CleanCustomers,
		Validator: validators.NewDataQualityValidator(0, nil,
			validators.WithFieldValidator("loyalty_points", validators.FieldValidator{
				DataType: validators.FieldTypeInt,
				MinValue: 0,
			}),
			validators.WithFieldValidator("engagement_style", validators.FieldValidator{
				AllowedValues: []interface{}{"Mobile", "Desktop", "InStore", "Unknown"},
			}),
		),
	}

	Products = Dataset{
		Name:         "products",
		RawFile:      "products_data.csv",
		PreparedFile: "products_prepared",
		Clean:        CleanProducts,
		Validator: validators.NewDataQualityValidator(0, nil,
			validators.WithFieldValidator("stock_level", validators.FieldValidator{MinValue: 0}),
			validators.WithFieldValidator("supplier_tier", validators.FieldValidator{
				AllowedValues: []interface{}{"Basic", "Preferred", "Premium", "Standard"},
			}),
		),
	}

	Sales = Dataset{
		Name:         "sales",
		RawFile:      "sales_data.csv",
		PreparedFile: "sales_prepared",
		Clean:        CleanSales,
		Validator: validators.NewDataQualityValidator(0, nil,
			validators.WithUniqueFields("transaction_id"),
			validators.WithFieldValidator("discount_percent", validators.FieldValidator{MinValue: 0, MaxValue: 100}),
		),
	}
)

// All returns the prepare stages in run order.
func All() []Dataset {
	return []Dataset{Customers, Products, Sales}
}

// Lookup returns the stage named name.
func Lookup(name string) (Dataset, error) {
	var names []string
	for _, d := range All() {
		if d.Name == name {
			return d, nil
		}
		names = append(names, d.Name)
	}
	return Dataset{}, fmt.Errorf("unknown dataset %q (want one of %s)", name, strings.Join(names, ", "))
}

var engagementStyles = map[string]interface{}{
	"Mobile":  "Mobile",
	"Desktop": "Desktop",
	"InStore": "InStore",
	"Kiosk":   "InStore",
	"Tablet":  "Mobile",
}

// CleanCustomers deduplicates customers, fills loyalty points with the
// median and engagement style with the mode, drops negative loyalty points,
// maps engagement styles onto Mobile, Desktop and InStore and drops loyalty
// outliers beyond three standard deviations.
func CleanCustomers(ctx context.Context, t *table.Table, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	s := scrubber.New(t, scrubber.WithLogger(logger))
	s.SnakeCaseColumnNames().
		Apply(ctx, transform.TrimAll()).
		RemoveDuplicateRecords()

	if t.HasColumn("loyalty_points") {
		before := t.Len()
		s.FillMissingMedian("loyalty_points").
			Where(ctx, filter.Custom(func(r core.Record) bool {
				f, ok := core.AsFloat(r["loyalty_points"])
				return !ok || f >= 0
			})).
			CoerceColumnType("loyalty_points", scrubber.TypeFloat).
			CoerceColumnType("loyalty_points", scrubber.TypeInt).
			FillMissing("loyalty_points", int64(0))
		logger.Info("removed negative loyalty points", "removed", before-t.Len())
	}

	if t.HasColumn("engagement_style") {
		s.FillMissingMode("engagement_style").
			Apply(ctx,
				transform.TrimSpace("engagement_style"),
				transform.MapValuesOr("engagement_style", engagementStyles, "Unknown"),
			).
			FillMissing("engagement_style", "Unknown")
		logValueCounts(ctx, logger, t, "engagement_style")
	}

	if t.HasColumn("loyalty_points") {
		before := t.Len()
		s.FilterStdDev("loyalty_points", 3)
		logger.Info("removed loyalty outliers", "removed", before-t.Len())
	}
	return s.Err()
}

var supplierTiers = map[string]interface{}{
	"basic":     "Basic",
	"preferred": "Preferred",
	"premium":   "Premium",
	"standard":  "Standard",
	"unknown":   "Standard",
}

// CleanProducts deduplicates products, fills missing numbers with zero,
// keeps stock levels between zero and the 99th percentile and maps supplier
// tiers onto Basic, Preferred, Premium and Standard.
func CleanProducts(ctx context.Context, t *table.Table, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	s := scrubber.New(t, scrubber.WithLogger(logger))
	s.SnakeCaseColumnNames().RemoveDuplicateRecords()
	if err := s.Err(); err != nil {
		return err
	}

	for _, c := range t.Columns() {
		switch t.ColumnKind(c) {
		case table.KindInt:
			s.FillMissing(c, int64(0))
		case table.KindFloat:
			s.FillMissing(c, 0.0)
		}
	}

	if t.HasColumn("stock_level") {
		values, err := t.Numeric("stock_level")
		if err != nil {
			return err
		}
		if len(values) > 0 {
			q99, err := table.Quantile(values, 0.99)
			if err != nil {
				return err
			}
			before := t.Len()
			s.FilterOutliers("stock_level", 0, q99)
			logger.Info("filtered stock levels", "max", q99, "removed", before-t.Len())
		}
	}

	if t.HasColumn("supplier_tier") {
		s.Apply(ctx,
			transform.ToString("supplier_tier"),
			transform.TrimSpace("supplier_tier"),
			transform.ToLower("supplier_tier"),
			transform.MapValuesOr("supplier_tier", supplierTiers, "Standard"),
		).FillMissing("supplier_tier", "Standard")
		logValueCounts(ctx, logger, t, "supplier_tier")
	}
	return s.Err()
}

var paymentMethods = map[string]interface{}{
	"Creditcard":   "Credit Card",
	"Paypal":       "PayPal",
	"Giftcard":     "GiftCard",
	"Wiretransfer": "WireTransfer",
	"Bitcoin":      nil,
}

var requiredSaleColumns = []string{"transaction_id", "sale_date", "customer_id", "product_id", "sale_amount"}

// CleanSales trims text, treats blank and "?" cells as missing and drops
// incomplete rows. Zero sale amounts and unsupported payment methods are
// dropped, payment methods are normalized, campaign ids become integers,
// discounts are clamped to [0, 100] and repeated transactions keep their
// first row.
func CleanSales(ctx context.Context, t *table.Table, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	s := scrubber.New(t, scrubber.WithLogger(logger))
	s.SnakeCaseColumnNames().
		Apply(ctx, transform.TrimAll(), transform.NullIf([]string{"", "?"}))

	before := t.Len()
	s.HandleMissingData(true, nil)
	logger.Info("dropped rows with blanks or '?'", "removed", before-t.Len())

	if t.HasColumn("sale_amount") {
		before = t.Len()
		s.CoerceColumnType("sale_amount", scrubber.TypeFloat).
			FillMissing("sale_amount", 0.0).
			Where(ctx, filter.Custom(func(r core.Record) bool {
				f, _ := core.AsFloat(r["sale_amount"])
				return f != 0
			}))
		logger.Info("removed zero sale amounts", "removed", before-t.Len())
	}

	if t.HasColumn("payment_method") {
		before = t.Len()
		s.Apply(ctx,
			transform.RemoveSpaces("payment_method"),
			transform.TitleCase("payment_method"),
			transform.MapValues("payment_method", paymentMethods),
		).DropMissing("payment_method")
		logger.Info("removed invalid payment methods", "removed", before-t.Len())
		logValueCounts(ctx, logger, t, "payment_method")
	}

	if t.HasColumn("campaign_id") {
		s.CoerceColumnType("campaign_id", scrubber.TypeFloat).
			CoerceColumnType("campaign_id", scrubber.TypeInt).
			FillMissing("campaign_id", int64(0))
	}

	if t.HasColumn("discount_percent") {
		s.Apply(ctx, transform.Clamp("discount_percent", 0, 100))
	}

	var required []string
	for _, c := range requiredSaleColumns {
		if t.HasColumn(c) {
			required = append(required, c)
		}
	}
	if len(required) > 0 {
		s.DropMissing(required...)
	}
	if t.HasColumn("transaction_id") {
		before = t.Len()
		s.RemoveDuplicatesBy("transaction_id")
		logger.Info("removed repeated transactions", "removed", before-t.Len())
	}
	return s.Err()
}

// CleanGeneric standardizes column names, fills every missing cell with
// "Unknown" and removes duplicate rows.
func CleanGeneric(ctx context.Context, t *table.Table, logger *slog.Logger) error {
	logger = logging.OrDiscard(logger)
	return scrubber.New(t, scrubber.WithLogger(logger)).
		StandardizeColumnNames().
		HandleMissingData(false, "Unknown").
		RemoveDuplicateRecords().
		Err()
}

func logValueCounts(ctx context.Context, logger *slog.Logger, t *table.Table, column string) {
	if !logger.Enabled(ctx, slog.LevelInfo) {
		return
	}
	counts, err := aggregate.ValueCounts(ctx, t.Rows(), column)
	if err != nil {
		logger.Warn("value counts failed", "column", column, "error", err)
		return
	}
	attrs := make([]any, 0, len(counts))
	for _, c := range counts {
		attrs = append(attrs, slog.Int64(core.FormatValue(c.Value), c.Count))
	}
	logger.Info("value counts", "column", column, slog.Group("values", attrs...))
}
