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
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/internal/testutil"
	"github.com/aaronlmathis/smartsales/output"
	"github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/validators"
)

func openTestWarehouse(t *testing.T, opts ...Option) *Warehouse {
	t.Helper()
	opts = append([]Option{WithLogger(testutil.NewTestLogger(t))}, opts...)
	w, err := Open(context.Background(), "sqlite", filepath.Join(t.TempDir(), "dw", "smart_sales.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func mustTable(t *testing.T, columns []string, records []core.Record) *table.Table {
	t.Helper()
	tb, err := table.FromRecords(columns, records)
	require.NoError(t, err)
	return tb
}

func testDatasets(t *testing.T) Datasets {
	customers := mustTable(t,
		[]string{"customer_id", "name", "region", "join_date", "loyalty_points", "engagement_style"},
		[]core.Record{
			{"customer_id": int64(1001), "name": "William White", "region": "East", "join_date": "2021-11-11", "loyalty_points": int64(1200), "engagement_style": "Mobile"},
			{"customer_id": int64(1002), "name": "Wylie Coyote", "region": "West", "join_date": "2023-02-14", "loyalty_points": int64(300), "engagement_style": "InStore"},
			{"customer_id": int64(1002), "name": "Wylie Coyote", "region": "West", "join_date": "2023-02-14", "loyalty_points": int64(300), "engagement_style": "InStore"},
		})
	products := mustTable(t,
		[]string{"product_id", "product_name", "category", "unit_price", "stock_level", "supplier_tier"},
		[]core.Record{
			{"product_id": int64(101), "product_name": "laptop", "category": "electronics", "unit_price": 793.12, "stock_level": int64(15), "supplier_tier": "Premium"},
			{"product_id": int64(102), "product_name": "hoodie", "category": "clothing", "unit_price": 39.99, "stock_level": int64(80), "supplier_tier": "Basic"},
		})
	sales := mustTable(t,
		[]string{"transaction_id", "sale_date", "customer_id", "product_id", "store_id", "campaign_id", "sale_amount", "discount_percent", "payment_method"},
		[]core.Record{
			{"transaction_id": int64(550), "sale_date": "2024-01-06", "customer_id": int64(1001), "product_id": int64(101), "store_id": int64(404), "campaign_id": int64(0), "sale_amount": 6344.96, "discount_percent": 10.0, "payment_method": "Credit Card"},
			{"transaction_id": int64(551), "sale_date": "1/7/2024", "customer_id": int64(1002), "product_id": int64(102), "store_id": int64(401), "campaign_id": int64(1), "sale_amount": 79.98, "discount_percent": 0.0, "payment_method": "PayPal"},
			{"transaction_id": int64(551), "sale_date": "1/7/2024", "customer_id": int64(1002), "product_id": int64(102), "store_id": int64(401), "campaign_id": int64(1), "sale_amount": 79.98, "discount_percent": 0.0, "payment_method": "PayPal"},
			{"transaction_id": int64(552), "sale_date": "Jan 9, 2024", "customer_id": int64(1001), "product_id": int64(102), "store_id": int64(402), "campaign_id": int64(3), "sale_amount": 39.99, "discount_percent": 5.0, "payment_method": "Cash"},
		})
	return Datasets{Customers: customers, Products: products, Sales: sales}
}

func TestMigrate(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)

	require.NoError(t, w.Migrate(ctx))
	require.NoError(t, w.Migrate(ctx), "migrate is idempotent")

	v, err := w.Version(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	tables, err := w.Tables(ctx)
	require.NoError(t, err)
	var names []string
	for _, ti := range tables {
		names = append(names, ti.Name)
		assert.Zero(t, ti.Rows)
	}
	assert.Equal(t, []string{"campaign", "customer", "product", "sale", "store"}, names)
	assert.Equal(t, Columns[TableSale], tables[3].Columns)
}

func TestOpenUnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "mysql", "user@/db")
	assert.Error(t, err)
}

func TestSeedReferenceDefaults(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)
	require.NoError(t, w.Migrate(ctx))

	require.NoError(t, w.SeedReference(ctx, ""))
	require.NoError(t, w.SeedReference(ctx, t.TempDir()), "missing seed files fall back to defaults")

	stores, err := w.Stores(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultStores, stores)

	campaigns, err := w.Campaigns(ctx)
	require.NoError(t, err)
	assert.Equal(t, DefaultCampaigns, campaigns)
}

func TestSeedReferenceFromCSV(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)
	require.NoError(t, w.Migrate(ctx))
	require.NoError(t, w.SeedReference(ctx, ""))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.csv"),
		[]byte("store_id,store_name,region\n401,LA Flagship,West\n405,Austin Outlet,South\n"), 0o644))

	require.NoError(t, w.SeedReference(ctx, dir))

	stores, err := w.Stores(ctx)
	require.NoError(t, err)
	require.Len(t, stores, 5)
	assert.Equal(t, Store{401, "LA Flagship", "West"}, stores[0])
	assert.Equal(t, Store{405, "Austin Outlet", "South"}, stores[4])

	require.NoError(t, os.WriteFile(filepath.Join(dir, "campaigns.csv"), []byte("campaign_id,campaign_name\nx,y\n"), 0o644))
	err = w.SeedReference(ctx, dir)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "seed", le.Op)
}

func TestReplace(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)

	res, err := w.Replace(ctx, "", testDatasets(t))
	require.NoError(t, err)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, map[string]int64{TableCustomer: 2, TableProduct: 2, TableSale: 3}, res.Inserted)
	assert.Equal(t, map[string]int{TableCustomer: 1}, res.DuplicateKeys)
	assert.Empty(t, res.Orphans)

	customers, err := w.Customers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, int64(1001), customers[0].CustomerID)
	assert.Equal(t, "Mobile", customers[0].EngagementStyle.String)
	assert.Equal(t, int64(300), customers[1].LoyaltyPoints.Int64)

	products, err := w.Products(ctx)
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.InDelta(t, 793.12, products[0].UnitPrice.Float64, 1e-9)

	sales, err := w.Sales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 3)
	assert.Equal(t, int64(550), sales[0].SaleID)
	var dates []string
	for _, s := range sales {
		dates = append(dates, s.SaleDate.String)
	}
	assert.Equal(t, []string{"2024-01-06", "2024-01-07", "2024-01-09"}, dates)
	assert.Equal(t, "Cash", sales[2].PaymentMethod.String)

	// the caller's tables are left untouched
	ds := testDatasets(t)
	_, err = w.Replace(ctx, "", ds)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Customers.Len())
	assert.True(t, ds.Sales.HasColumn("transaction_id"))

	n, err := w.Count(ctx, TableSale)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n, "replace does not accumulate rows")
}

func TestReplaceFailureKeepsContents(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)
	_, err := w.Replace(ctx, "", testDatasets(t))
	require.NoError(t, err)

	want := map[string]int64{TableCustomer: 2, TableProduct: 2, TableSale: 3, TableStore: 4, TableCampaign: 4}
	assertCounts := func(t *testing.T) {
		t.Helper()
		for name, n := range want {
			got, err := w.Count(ctx, name)
			require.NoError(t, err)
			assert.Equal(t, n, got, name)
		}
	}

	t.Run("strict validation", func(t *testing.T) {
		w.fkMode = FKStrict
		defer func() { w.fkMode = FKWarn }()

		ds := testDatasets(t)
		ds.Sales.Append(core.Record{"transaction_id": int64(560), "sale_date": "2024-03-01", "customer_id": int64(9999),
			"product_id": int64(101), "store_id": int64(401), "campaign_id": int64(0), "sale_amount": 10.0})
		_, err := w.Replace(ctx, "", ds)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, "validate", le.Op)
		assertCounts(t)
	})

	t.Run("insert failure", func(t *testing.T) {
		ds := testDatasets(t)
		ds.Sales.Append(core.Record{"transaction_id": "not-a-number", "sale_date": "2024-03-01", "customer_id": int64(1001),
			"product_id": int64(101), "store_id": int64(401), "campaign_id": int64(0), "sale_amount": 10.0})
		_, err := w.Replace(ctx, "", ds)
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, TableSale, le.Table)
		assert.Equal(t, "insert", le.Op)
		assertCounts(t)
	})

	t.Run("bad seed file", func(t *testing.T) {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, "stores.csv"), []byte("store_id,store_name\nx,y\n"), 0o644))
		_, err := w.Replace(ctx, dir, testDatasets(t))
		var le *LoadError
		require.ErrorAs(t, err, &le)
		assert.Equal(t, TableStore, le.Table)
		assertCounts(t)
	})
}

func TestLoadWarnPostgresDropsUnresolved(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w, err := NewWithDB(db, "postgres", WithBatchSize(10))
	require.NoError(t, err)

	ds := testDatasets(t)
	ds.Sales.Append(core.Record{"transaction_id": int64(553), "sale_date": "2024-02-01", "customer_id": int64(9999),
		"product_id": int64(101), "store_id": int64(401), "campaign_id": int64(2), "sale_amount": 12.5})

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "store_id" FROM "store"`)).
		WillReturnRows(sqlmock.NewRows([]string{"store_id"}).AddRow(int64(401)).AddRow(int64(402)).AddRow(int64(403)).AddRow(int64(404)))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "campaign_id" FROM "campaign"`)).
		WillReturnRows(sqlmock.NewRows([]string{"campaign_id"}).AddRow(int64(0)).AddRow(int64(1)).AddRow(int64(2)).AddRow(int64(3)))
	for _, tc := range []struct {
		name string
		rows int
	}{{TableCustomer, 2}, {TableProduct, 2}, {TableSale, 3}} {
		prep := mock.ExpectPrepare("INSERT INTO " + tc.name + " ")
		for i := 0; i < tc.rows; i++ {
			prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 1))
		}
	}
	mock.ExpectCommit()

	res, err := w.Load(context.Background(), ds)
	require.NoError(t, err)
	require.Len(t, res.Orphans, 1)
	assert.Equal(t, 1, res.Dropped)
	assert.Equal(t, int64(3), res.Inserted[TableSale])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDropUnresolved(t *testing.T) {
	sales := mustTable(t, []string{"sale_id", "customer_id"}, []core.Record{
		{"sale_id": int64(1), "customer_id": int64(1001)},
		{"sale_id": int64(2), "customer_id": int64(9999)},
		{"sale_id": int64(3), "customer_id": nil},
	})
	orphans := []validators.Violation{
		{Record: 1, Field: "customer_id", Value: int64(9999)},
		{Record: 2, Field: "customer_id"},
	}

	assert.Equal(t, 1, dropUnresolved(sales, orphans))
	ids, err := sales.Values("sale_id")
	require.NoError(t, err)
	assert.Equal(t, []interface{}{int64(1), int64(3)}, ids)
	assert.Zero(t, dropUnresolved(sales, nil))
}

func TestLoadOrphansWarn(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)
	require.NoError(t, w.Migrate(ctx))
	require.NoError(t, w.SeedReference(ctx, ""))

	ds := testDatasets(t)
	ds.Sales.Append(core.Record{"transaction_id": int64(553), "sale_date": "2024-02-01", "customer_id": int64(9999),
		"product_id": int64(101), "store_id": int64(499), "campaign_id": int64(2), "sale_amount": 12.5})

	res, err := w.Load(ctx, ds)
	require.NoError(t, err)
	require.Len(t, res.Orphans, 2)
	fields := []string{res.Orphans[0].Field, res.Orphans[1].Field}
	assert.ElementsMatch(t, []string{"customer_id", "store_id"}, fields)
	assert.Equal(t, int64(4), res.Inserted[TableSale])
}

func TestLoadStrict(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t, WithFKMode(FKStrict))
	require.NoError(t, w.Migrate(ctx))
	require.NoError(t, w.SeedReference(ctx, ""))

	_, err := w.Load(ctx, testDatasets(t))
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "validate", le.Op)
	assert.Contains(t, err.Error(), "duplicate customer_id")

	for _, name := range []string{TableCustomer, TableProduct, TableSale} {
		n, err := w.Count(ctx, name)
		require.NoError(t, err)
		assert.Zero(t, n, name)
	}

	ds := testDatasets(t)
	seen := make(map[interface{}]bool)
	ds.Customers.Filter(func(r core.Record) bool {
		k := r["customer_id"]
		if seen[k] {
			return false
		}
		seen[k] = true
		return true
	})
	res, err := w.Load(ctx, ds)
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.Inserted[TableSale])
}

func TestLoadMissingInputs(t *testing.T) {
	w := openTestWarehouse(t)
	_, err := w.Load(context.Background(), Datasets{})
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, "validate", le.Op)
}

func TestLoadMissingKeyColumn(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)
	require.NoError(t, w.Migrate(ctx))

	ds := testDatasets(t)
	ds.Sales = mustTable(t, []string{"sale_date"}, []core.Record{{"sale_date": "2024-01-01"}})
	_, err := w.Load(ctx, ds)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, TableSale, le.Table)
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

func TestRows(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)
	require.NoError(t, w.Migrate(ctx))
	require.NoError(t, w.SeedReference(ctx, ""))

	r, err := w.Rows(ctx, TableStore, 2)
	require.NoError(t, err)
	var got []core.Record
	for {
		rec, err := r.Read(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		got = append(got, rec)
	}
	require.NoError(t, r.Close())

	require.Len(t, got, 2)
	assert.Equal(t, int64(401), got[0]["store_id"])
	assert.Equal(t, "Phoenix Outfitters", got[1]["store_name"])
	assert.Equal(t, []string{"store_id", "store_name", "region"}, r.Headers())
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	w := openTestWarehouse(t)
	_, err := w.Replace(ctx, "", testDatasets(t))
	require.NoError(t, err)

	require.NoError(t, w.Reset(ctx))
	tables, err := w.Tables(ctx)
	require.NoError(t, err)
	for _, ti := range tables {
		assert.Zero(t, ti.Rows, ti.Name)
	}
}

func TestResetOrder(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w, err := NewWithDB(db, "postgres")
	require.NoError(t, err)

	mock.ExpectBegin()
	for _, name := range deleteOrder {
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "` + name + `"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	}
	mock.ExpectCommit()

	require.NoError(t, w.Reset(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResetRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	w, err := NewWithDB(db, "postgres")
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "sale"`)).WillReturnError(errors.New("locked"))
	mock.ExpectRollback()

	err = w.Reset(context.Background())
	assert.ErrorContains(t, err, "delete from sale")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadDatasets(t *testing.T) {
	ctx := context.Background()
	loc := output.FileLocation{Dir: filepath.Join(t.TempDir(), "prepared")}
	src := testDatasets(t)

	for stem, tb := range map[string]*table.Table{
		DefaultStems.Customers: src.Customers,
		DefaultStems.Products:  src.Products,
		DefaultStems.Sales:     src.Sales,
	} {
		sink, err := loc.Create(ctx, stem, output.FormatCSV, tb.Columns())
		require.NoError(t, err)
		for _, r := range tb.Rows() {
			require.NoError(t, sink.Write(ctx, r))
		}
		require.NoError(t, sink.Close())
	}

	ds, err := ReadDatasets(ctx, loc, output.FormatCSV, DefaultStems)
	require.NoError(t, err)
	assert.Equal(t, 3, ds.Customers.Len())
	assert.Equal(t, int64(1001), ds.Customers.Row(0)["customer_id"])
	assert.Equal(t, 793.12, ds.Products.Row(0)["unit_price"])
	assert.Equal(t, src.Sales.Columns(), ds.Sales.Columns())

	_, err = ReadDatasets(ctx, loc, output.FormatJSON, DefaultStems)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
