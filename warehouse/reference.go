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
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/jszwec/csvutil"
)

// Store is a row of the store reference table.
type Store struct {
	StoreID   int64  `csv:"store_id" db:"store_id"`
	StoreName string `csv:"store_name" db:"store_name"`
	Region    string `csv:"region" db:"region"`
}

// Campaign is a row of the campaign reference table. Dates are YYYY-MM-DD.
type Campaign struct {
	CampaignID   int64  `csv:"campaign_id" db:"campaign_id"`
	CampaignName string `csv:"campaign_name" db:"campaign_name"`
	StartDate    string `csv:"start_date" db:"start_date"`
	EndDate      string `csv:"end_date" db:"end_date"`
}

// DefaultStores are seeded when no stores.csv is present.
var DefaultStores = []Store{
	{401, "Los Angeles Plaza", "West"},
	{402, "Phoenix Outfitters", "South-West"},
	{403, "Downtown Seattle", "North"},
	{404, "New York Uptown", "East"},
}

// DefaultCampaigns are seeded when no campaigns.csv is present.
var DefaultCampaigns = []Campaign{
	{0, "Summer Sale", "2025-06-01", "2025-07-31"},
	{1, "Holiday Promo", "2025-11-01", "2025-12-31"},
	{2, "Back to School", "2025-08-01", "2025-09-15"},
	{3, "NeW Year Kickoff", "2025-01-01", "2025-01-31"},
}

const (
	upsertStore = `INSERT INTO store (store_id, store_name, region)
		VALUES (:store_id, :store_name, :region)
		ON CONFLICT (store_id) DO UPDATE SET store_name = excluded.store_name, region = excluded.region`
	upsertCampaign = `INSERT INTO campaign (campaign_id, campaign_name, start_date, end_date)
		VALUES (:campaign_id, :campaign_name, :start_date, :end_date)
		ON CONFLICT (campaign_id) DO UPDATE SET campaign_name = excluded.campaign_name,
			start_date = excluded.start_date, end_date = excluded.end_date`
)

// SeedReference writes the store and campaign reference rows. Rows come
// from dir/stores.csv and dir/campaigns.csv when those files exist, and
// from DefaultStores and DefaultCampaigns otherwise. Existing keys are
// updated in place.
func (w *Warehouse) SeedReference(ctx context.Context, dir string) error {
	ref, err := readReference(dir)
	if err != nil {
		return err
	}
	return w.inTx(ctx, func(tx *sqlx.Tx) error {
		return w.seed(ctx, tx, ref)
	})
}

type reference struct {
	stores    []Store
	campaigns []Campaign
}

func readReference(dir string) (reference, error) {
	stores, err := readSeed(dir, "stores.csv", DefaultStores)
	if err != nil {
		return reference{}, &LoadError{Table: TableStore, Op: "seed", Err: err}
	}
	campaigns, err := readSeed(dir, "campaigns.csv", DefaultCampaigns)
	if err != nil {
		return reference{}, &LoadError{Table: TableCampaign, Op: "seed", Err: err}
	}
	return reference{stores: stores, campaigns: campaigns}, nil
}

func (w *Warehouse) seed(ctx context.Context, tx *sqlx.Tx, ref reference) error {
	for _, s := range ref.stores {
		if _, err := tx.NamedExecContext(ctx, upsertStore, s); err != nil {
			return &LoadError{Table: TableStore, Op: "seed", Err: err}
		}
	}
	for _, c := range ref.campaigns {
		if _, err := tx.NamedExecContext(ctx, upsertCampaign, c); err != nil {
			return &LoadError{Table: TableCampaign, Op: "seed", Err: err}
		}
	}
	w.logger.Info("seeded reference data", "stores", len(ref.stores), "campaigns", len(ref.campaigns))
	return nil
}

func readSeed[T any](dir, name string, fallback []T) ([]T, error) {
	if dir == "" {
		return fallback, nil
	}
	path := filepath.Join(dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fallback, nil
	}
	if err != nil {
		return nil, err
	}
	var rows []T
	if err := csvutil.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return rows, nil
}

// Stores returns the store table ordered by id.
func (w *Warehouse) Stores(ctx context.Context) ([]Store, error) {
	var out []Store
	err := w.db.SelectContext(ctx, &out, `SELECT store_id, store_name, region FROM store ORDER BY store_id`)
	return out, err
}

// Campaigns returns the campaign table ordered by id.
func (w *Warehouse) Campaigns(ctx context.Context) ([]Campaign, error) {
	var out []Campaign
	err := w.db.SelectContext(ctx, &out,
		`SELECT campaign_id, campaign_name, start_date, end_date FROM campaign ORDER BY campaign_id`)
	return out, err
}

// Customer is a row of the customer table.
type Customer struct {
	CustomerID      int64          `db:"customer_id"`
	Name            sql.NullString `db:"name"`
	Region          sql.NullString `db:"region"`
	JoinDate        sql.NullString `db:"join_date"`
	LoyaltyPoints   sql.NullInt64  `db:"loyalty_points"`
	EngagementStyle sql.NullString `db:"engagement_style"`
}

// Product is a row of the product table.
type Product struct {
	ProductID    int64           `db:"product_id"`
	ProductName  sql.NullString  `db:"product_name"`
	Category     sql.NullString  `db:"category"`
	UnitPrice    sql.NullFloat64 `db:"unit_price"`
	StockLevel   sql.NullInt64   `db:"stock_level"`
	SupplierTier sql.NullString  `db:"supplier_tier"`
}

// Sale is a row of the sale table.
type Sale struct {
	SaleID          int64           `db:"sale_id"`
	CustomerID      sql.NullInt64   `db:"customer_id"`
	ProductID       sql.NullInt64   `db:"product_id"`
	StoreID         sql.NullInt64   `db:"store_id"`
	CampaignID      sql.NullInt64   `db:"campaign_id"`
	SaleAmount      sql.NullFloat64 `db:"sale_amount"`
	SaleDate        sql.NullString  `db:"sale_date"`
	DiscountPercent sql.NullFloat64 `db:"discount_percent"`
	PaymentMethod   sql.NullString  `db:"payment_method"`
}

// Customers returns the customer table ordered by id.
func (w *Warehouse) Customers(ctx context.Context) ([]Customer, error) {
	var out []Customer
	err := w.db.SelectContext(ctx, &out, `SELECT customer_id, name, region, join_date, loyalty_points, engagement_style
		FROM customer ORDER BY customer_id`)
	return out, err
}

// Products returns the product table ordered by id.
func (w *Warehouse) Products(ctx context.Context) ([]Product, error) {
	var out []Product
	err := w.db.SelectContext(ctx, &out, `SELECT product_id, product_name, category, unit_price, stock_level, supplier_tier
		FROM product ORDER BY product_id`)
	return out, err
}

// Sales returns the sale table ordered by id.
func (w *Warehouse) Sales(ctx context.Context) ([]Sale, error) {
	var out []Sale
	err := w.db.SelectContext(ctx, &out, `SELECT sale_id, customer_id, product_id, store_id, campaign_id,
		sale_amount, sale_date, discount_percent, payment_method
		FROM sale ORDER BY sale_id`)
	return out, err
}
