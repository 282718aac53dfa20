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

package warehouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/aaronlmathis/smartsales"
	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/output"
	"github.com/aaronlmathis/smartsales/scrubber"
	"github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/transform"
	"github.com/aaronlmathis/smartsales/validators"
	"github.com/aaronlmathis/smartsales/writers"
)

// LoadError reports a failed load step for one table.
type LoadError struct {
	Table string
	Op    string
	Err   error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s %s: %v", e.Table, e.Op, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Stems names the prepared datasets read by ReadDatasets.
type Stems struct {
	Customers string
	Products  string
	Sales     string
}

// DefaultStems are the prepared dataset names written by the prepare stages.
var DefaultStems = Stems{
	Customers: "customers_prepared",
	Products:  "products_prepared",
	Sales:     "sales_prepared",
}

// Datasets holds the prepared tables to load.
type Datasets struct {
	Customers *table.Table
	Products  *table.Table
	Sales     *table.Table
}

// ReadDatasets reads the prepared customers, products and sales from loc
// and infers column types.
func ReadDatasets(ctx context.Context, loc output.Location, f output.Format, stems Stems) (Datasets, error) {
	var ds Datasets
	for _, d := range []struct {
		stem string
		dst  **table.Table
	}{
		{stems.Customers, &ds.Customers},
		{stems.Products, &ds.Products},
		{stems.Sales, &ds.Sales},
	} {
		src, err := loc.Open(ctx, d.stem, f)
		if err != nil {
			return Datasets{}, fmt.Errorf("open %s: %w", loc.URI(d.stem, f), err)
		}
		t, err := table.Read(ctx, src)
		src.Close()
		if err != nil {
			return Datasets{}, fmt.Errorf("read %s: %w", loc.URI(d.stem, f), err)
		}
		t.InferTypes()
		*d.dst = t
	}
	return ds, nil
}

// LoadResult summarizes a load.
type LoadResult struct {
	RunID         string
	Inserted      map[string]int64
	DuplicateKeys map[string]int
	Orphans       []validators.Violation
	Dropped       int
	Duration      time.Duration
}

// Replace rebuilds the warehouse contents: migrate, delete all rows, seed
// reference data from referenceDir and load ds. The delete, seed and load
// run in one transaction, so a failed load leaves the previous contents in
// place.
func (w *Warehouse) Replace(ctx context.Context, referenceDir string, ds Datasets) (*LoadResult, error) {
	if err := w.Migrate(ctx); err != nil {
		return nil, err
	}
	ref, err := readReference(referenceDir)
	if err != nil {
		return nil, err
	}
	var res *LoadResult
	err = w.inTx(ctx, func(tx *sqlx.Tx) error {
		if err := w.reset(ctx, tx); err != nil {
			return err
		}
		if err := w.seed(ctx, tx, ref); err != nil {
			return err
		}
		res, err = w.load(ctx, tx, ds)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Load inserts the prepared customers, products and sales. Sales have
// transaction_id renamed to sale_id, keep the first row per sale_id and
// carry sale_date as YYYY-MM-DD. Only warehouse columns present in a
// dataset are inserted; the others stay NULL.
//
// Duplicate primary keys and sales referencing unknown customers,
// products, stores or campaigns are logged in FKWarn mode and fail the
// load in FKStrict mode. Nothing is inserted when validation fails. On
// Postgres, which enforces the declared foreign keys, FKWarn drops sales
// whose references name a missing row; NULL references are kept.
func (w *Warehouse) Load(ctx context.Context, ds Datasets) (*LoadResult, error) {
	var res *LoadResult
	err := w.inTx(ctx, func(tx *sqlx.Tx) error {
		var err error
		res, err = w.load(ctx, tx, ds)
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (w *Warehouse) load(ctx context.Context, tx *sqlx.Tx, ds Datasets) (*LoadResult, error) {
	start := time.Now()
	res := &LoadResult{
		RunID:         uuid.NewString(),
		Inserted:      make(map[string]int64),
		DuplicateKeys: make(map[string]int),
	}
	logger := w.logger.With("run_id", res.RunID)

	if ds.Customers == nil || ds.Products == nil || ds.Sales == nil {
		return nil, &LoadError{Table: "all", Op: "validate", Err: errors.New("customers, products and sales are required")}
	}
	customers := ds.Customers.Clone()
	products := ds.Products.Clone()
	sales, err := prepareSales(ctx, ds.Sales.Clone())
	if err != nil {
		return nil, &LoadError{Table: TableSale, Op: "prepare", Err: err}
	}

	var problems []error
	for _, d := range []struct {
		name string
		t    *table.Table
	}{
		{TableCustomer, customers},
		{TableProduct, products},
	} {
		key := Columns[d.name][0]
		if err := d.t.Require(key); err != nil {
			return nil, &LoadError{Table: d.name, Op: "columns", Err: err}
		}
		dups := validators.FindDuplicates(d.t.Rows(), key)
		if len(dups) == 0 {
			continue
		}
		res.DuplicateKeys[d.name] = len(dups)
		logger.Warn("duplicate keys", "table", d.name, "key", key, "count", len(dups), "first", dups[0].Error())
		problems = append(problems, fmt.Errorf("%s: %d duplicate %s", d.name, len(dups), key))
		if err := scrubber.New(d.t).RemoveDuplicatesBy(key).Err(); err != nil {
			return nil, &LoadError{Table: d.name, Op: "dedupe", Err: err}
		}
	}

	orphans, err := checkReferences(ctx, tx, customers, products, sales)
	if err != nil {
		return nil, err
	}
	res.Orphans = orphans
	if len(orphans) > 0 {
		byField := make(map[string]int)
		for _, o := range orphans {
			byField[o.Field]++
		}
		logger.Warn("unresolved sale references", "count", len(orphans), "by_field", byField, "first", orphans[0].Error())
		problems = append(problems, fmt.Errorf("%s: %d unresolved references", TableSale, len(orphans)))
	}

	if w.fkMode == FKStrict && len(problems) > 0 {
		return nil, &LoadError{Table: "all", Op: "validate", Err: errors.Join(problems...)}
	}
	if w.dialect == writers.DialectPostgres {
		if res.Dropped = dropUnresolved(sales, orphans); res.Dropped > 0 {
			logger.Warn("dropped sales with unresolved references", "count", res.Dropped)
		}
	}

	for _, d := range []struct {
		name string
		t    *table.Table
	}{
		{TableCustomer, customers},
		{TableProduct, products},
		{TableSale, sales},
	} {
		n, err := w.insert(ctx, tx, d.name, d.t)
		if err != nil {
			return nil, err
		}
		res.Inserted[d.name] = n
		logger.Info("loaded table", "table", d.name, "rows", n)
	}

	res.Duration = time.Since(start)
	logger.Info("load complete", "inserted", res.Inserted, "duration", res.Duration)
	return res, nil
}

func prepareSales(ctx context.Context, t *table.Table) (*table.Table, error) {
	s := scrubber.New(t)
	if t.HasColumn("transaction_id") && !t.HasColumn("sale_id") {
		s.RenameColumns(map[string]string{"transaction_id": "sale_id"})
	}
	s.RemoveDuplicatesBy("sale_id")
	if t.HasColumn("sale_date") {
		s.ParseDateColumn("sale_date", "sale_date").
			Apply(ctx, transform.FormatTime("sale_date", "2006-01-02"))
	}
	return t, s.Err()
}

func checkReferences(ctx context.Context, q sqlx.QueryerContext, customers, products, sales *table.Table) ([]validators.Violation, error) {
	storeIDs, err := keys(ctx, q, TableStore)
	if err != nil {
		return nil, err
	}
	campaignIDs, err := keys(ctx, q, TableCampaign)
	if err != nil {
		return nil, err
	}
	customerIDs, _ := customers.Values("customer_id")
	productIDs, _ := products.Values("product_id")

	checks := []*validators.ReferenceValidator{
		validators.NewReferenceValidator("customer_id", TableCustomer, customerIDs),
		validators.NewReferenceValidator("product_id", TableProduct, productIDs),
		validators.NewReferenceValidator("store_id", TableStore, storeIDs),
		validators.NewReferenceValidator("campaign_id", TableCampaign, campaignIDs),
	}
	var out []validators.Violation
	for _, c := range checks {
		if !sales.HasColumn(c.Field) {
			continue
		}
		out = append(out, c.Check(sales.Rows())...)
	}
	return out, nil
}

// dropUnresolved removes the sales whose references name a row that does
// not exist and returns how many were removed.
func dropUnresolved(sales *table.Table, orphans []validators.Violation) int {
	bad := make(map[int]bool)
	for _, o := range orphans {
		if !core.IsMissing(o.Value) {
			bad[o.Record] = true
		}
	}
	if len(bad) == 0 {
		return 0
	}
	i := -1
	return sales.Filter(func(core.Record) bool {
		i++
		return !bad[i]
	})
}

func keys(ctx context.Context, q sqlx.QueryerContext, tableName string) ([]interface{}, error) {
	var ids []int64
	key := Columns[tableName][0]
	if err := sqlx.SelectContext(ctx, q, &ids, "SELECT "+quoteIdent(key)+" FROM "+quoteIdent(tableName)); err != nil {
		return nil, &LoadError{Table: tableName, Op: "keys", Err: err}
	}
	out := make([]interface{}, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out, nil
}

func (w *Warehouse) insert(ctx context.Context, tx *sqlx.Tx, tableName string, t *table.Table) (int64, error) {
	var cols []string
	for _, c := range Columns[tableName] {
		if t.HasColumn(c) {
			cols = append(cols, c)
		}
	}
	if len(cols) == 0 || cols[0] != Columns[tableName][0] {
		return 0, &LoadError{Table: tableName, Op: "columns",
			Err: fmt.Errorf("%w: %s", table.ErrColumnNotFound, Columns[tableName][0])}
	}

	sink, err := writers.NewSQLWriter(
		writers.WithSQLTx(tx.Tx, w.dialect),
		writers.WithTableName(tableName),
		writers.WithColumns(cols),
		writers.WithSQLBatchSize(w.batchSize),
	)
	if err != nil {
		return 0, &LoadError{Table: tableName, Op: "writer", Err: err}
	}
	p, err := smartsales.NewPipeline().
		From(t.Source()).
		To(sink).
		WithErrorStrategy(smartsales.FailFast).
		Build()
	if err != nil {
		return 0, &LoadError{Table: tableName, Op: "writer", Err: err}
	}
	if _, err := p.Execute(ctx); err != nil {
		return 0, &LoadError{Table: tableName, Op: "insert", Err: err}
	}
	return sink.Stats().RecordsWritten, nil
}
