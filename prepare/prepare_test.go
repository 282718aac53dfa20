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

package prepare

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aaronlmathis/smartsales/internal/testutil"
	"github.com/aaronlmathis/smartsales/output"
	"github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/validators"
)

const rawCustomers = `CustomerID,Name,Region,JoinDate,LoyaltyPoints,EngagementStyle
1001,William White,East,11/11/21,1200,Mobile
1002,Wylie Coyote,East,2/14/23,-150,Desktop
1003,Dan Brown,West,10/19/23,,Kiosk
1004,Chewbacca,West,11/9/22,800,Tablet 
1005,Tony Stark,North,3/1/23,300,
1006,Hermione Grager,South,2/28/23,1500,Hologram
1007,Hank Hill,South,5/5/24,600,Mobile
1001,William White,East,11/11/21,1200,Mobile
`

const rawProducts = `ProductID,ProductName,Category,UnitPrice,StockLevel,SupplierTier
101,laptop,Electronics,793.12,150,Premium
102,hoodie,Clothing,39.99,,Preferred 
103,cable,Electronics,12.5,-50,Basic
104,jacket,Clothing,,400,UnknownTier
105,desk,Office,150.0,300,unknown
101,laptop,Electronics,793.12,150,Premium
`

const rawSales = `TransactionID,SaleDate,CustomerID,ProductID,StoreID,CampaignID,SaleAmount,DiscountPercent,PaymentMethod
550,2024-01-06,1001,101,404,0,6344.96,150,Credit Card
551,2024-01-07,1003,102,401,1.0,79.98,10,paypal
552,2024-01-08,1004,105,402,2,0,5,Cash
553,2024-01-09,1005,101,403,3,?,5,CreditCard
554,2024-01-10,1006,102,404,0,39.99,,GiftCard
555,2024-01-11,1007,105,401,1,150.0,20,Bitcoin
556,2024-01-12,1001,102,402,2,39.99,-3,Wire Transfer
550,2024-01-06,1001,101,404,0,6344.96,150,Credit Card
`

func readTable(t *testing.T, text string) *table.Table {
	t.Helper()
	tb, err := table.ReadCSVFrom(context.Background(), io.NopCloser(strings.NewReader(text)))
	require.NoError(t, err)
	return tb
}

func column(t *testing.T, tb *table.Table, name string) []interface{} {
	t.Helper()
	values, err := tb.Values(name)
	require.NoError(t, err)
	return values
}

func TestCleanCustomers(t *testing.T) {
	tb := readTable(t, rawCustomers)
	require.NoError(t, CleanCustomers(context.Background(), tb, testutil.NewTestLogger(t)))

	assert.Equal(t, []string{"customer_id", "name", "region", "join_date", "loyalty_points", "engagement_style"}, tb.Columns())
	assert.Equal(t,
		[]interface{}{int64(1001), int64(1003), int64(1004), int64(1005), int64(1006), int64(1007)},
		column(t, tb, "customer_id"))
	assert.Equal(t,
		[]interface{}{int64(1200), int64(700), int64(800), int64(300), int64(1500), int64(600)},
		column(t, tb, "loyalty_points"), "missing points take the median before negatives are dropped")
	assert.Equal(t,
		[]interface{}{"Mobile", "InStore", "Mobile", "Mobile", "Unknown", "Mobile"},
		column(t, tb, "engagement_style"))
	assert.NoError(t, Customers.Validator.Evaluate(context.Background(), tb.Rows()))
}

func TestCleanCustomersDropsOutliers(t *testing.T) {
	var b strings.Builder
	b.WriteString("CustomerID,LoyaltyPoints\n")
	for i := 0; i < 20; i++ {
		fmt.Fprintf(&b, "%d,%d\n", 1000+i, 100+i)
	}
	b.WriteString("2000,90000\n")
	tb := readTable(t, b.String())

	require.NoError(t, CleanCustomers(context.Background(), tb, nil))
	assert.Equal(t, 20, tb.Len())
	assert.NotContains(t, column(t, tb, "loyalty_points"), int64(90000))
}

func TestCleanProducts(t *testing.T) {
	tb := readTable(t, rawProducts)
	require.NoError(t, CleanProducts(context.Background(), tb, testutil.NewTestLogger(t)))

	assert.Equal(t, []string{"product_id", "product_name", "category", "unit_price", "stock_level", "supplier_tier"}, tb.Columns())
	assert.Equal(t, []interface{}{int64(101), int64(102), int64(105)}, column(t, tb, "product_id"))
	assert.Equal(t, []interface{}{int64(150), int64(0), int64(300)}, column(t, tb, "stock_level"))
	assert.Equal(t, []interface{}{"Premium", "Preferred", "Standard"}, column(t, tb, "supplier_tier"))
	assert.NoError(t, Products.Validator.Evaluate(context.Background(), tb.Rows()))
}

func TestCleanSales(t *testing.T) {
	tb := readTable(t, rawSales)
	require.NoError(t, CleanSales(context.Background(), tb, testutil.NewTestLogger(t)))

	assert.Equal(t, "transaction_id", tb.Columns()[0])
	assert.Equal(t, []interface{}{int64(550), int64(551), int64(556)}, column(t, tb, "transaction_id"))
	assert.Equal(t, []interface{}{"Credit Card", "PayPal", "WireTransfer"}, column(t, tb, "payment_method"))
	assert.Equal(t, []interface{}{int64(0), int64(1), int64(2)}, column(t, tb, "campaign_id"))
	assert.Equal(t, []interface{}{100.0, 10.0, 0.0}, column(t, tb, "discount_percent"))
	assert.Equal(t, []interface{}{6344.96, 79.98, 39.99}, column(t, tb, "sale_amount"))
	assert.NoError(t, Sales.Validator.Evaluate(context.Background(), tb.Rows()))
}

func TestCleanGeneric(t *testing.T) {
	tb := readTable(t, "Customer Name, Region \nAnn,East\nBob,\nAnn,East\n")
	require.NoError(t, CleanGeneric(context.Background(), tb, nil))

	assert.Equal(t, []string{"customer_name", "region"}, tb.Columns())
	assert.Equal(t, []interface{}{"East", "Unknown"}, column(t, tb, "region"))
}

func TestLookup(t *testing.T) {
	d, err := Lookup("sales")
	require.NoError(t, err)
	assert.Equal(t, "sales_data.csv", d.RawFile)
	assert.Equal(t, "sales_prepared", d.PreparedFile)

	_, err = Lookup("returns")
	assert.ErrorContains(t, err, "customers, products, sales")
}

func writeRaw(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
}

func TestRunnerPrepare(t *testing.T) {
	ctx := context.Background()
	raw := t.TempDir()
	writeRaw(t, raw, map[string]string{"customers_data.csv": rawCustomers})
	prepared := filepath.Join(t.TempDir(), "prepared")

	r := NewRunner(raw, output.FileLocation{Dir: prepared}, WithLogger(testutil.NewTestLogger(t)))
	res, err := r.Prepare(ctx, Customers)
	require.NoError(t, err)
	assert.Equal(t, "customers", res.Dataset)
	assert.Equal(t, 8, res.RowsIn)
	assert.Equal(t, 6, res.RowsOut)
	assert.Equal(t, filepath.Join(prepared, "customers_prepared.csv"), res.Output)

	got, err := table.ReadCSV(ctx, res.Output)
	require.NoError(t, err)
	assert.Equal(t, 6, got.Len())
	assert.Equal(t, []string{"customer_id", "name", "region", "join_date", "loyalty_points", "engagement_style"}, got.Columns())
	assert.Equal(t, "InStore", got.Row(1)["engagement_style"])
}

func TestRunnerPrepareParquet(t *testing.T) {
	ctx := context.Background()
	raw := t.TempDir()
	writeRaw(t, raw, map[string]string{"products_data.csv": rawProducts})
	loc := output.FileLocation{Dir: t.TempDir()}

	r := NewRunner(raw, loc, WithFormat(output.FormatParquet))
	res, err := r.Prepare(ctx, Products)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(res.Output, "products_prepared.parquet"))

	src, err := loc.Open(ctx, "products_prepared", output.FormatParquet)
	require.NoError(t, err)
	got, err := table.Read(ctx, src)
	require.NoError(t, err)
	require.NoError(t, src.Close())
	require.Equal(t, 3, got.Len())
	assert.Equal(t, "Standard", got.Row(2)["supplier_tier"])
}

func TestRunnerPrepareErrors(t *testing.T) {
	ctx := context.Background()
	raw := t.TempDir()
	r := NewRunner(raw, output.FileLocation{Dir: t.TempDir()})

	_, err := r.Prepare(ctx, Sales)
	var pe *PrepareError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "read", pe.Op)
	assert.ErrorIs(t, err, os.ErrNotExist)

	writeRaw(t, raw, map[string]string{"sales_data.csv": rawSales})
	strict := Sales
	strict.Validator = validators.NewDataQualityValidator(10, nil)
	_, err = r.Prepare(ctx, strict)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "validate", pe.Op)
	assert.ErrorIs(t, err, validators.ErrValidationFailed)

	failing := Dataset{Name: "broken", RawFile: "sales_data.csv", PreparedFile: "broken",
		Clean: func(ctx context.Context, tb *table.Table, _ *slog.Logger) error {
			return tb.Require("no_such_column")
		}}
	_, err = r.Prepare(ctx, failing)
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "clean", pe.Op)
	assert.ErrorIs(t, err, table.ErrColumnNotFound)
}

// fakeS3 serves ListObjectsV2 and GetObject for one bucket with path-style
// addressing.
func fakeS3(t *testing.T, bucket string, objects map[string]string) *s3.Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("list-type") == "2" {
			prefix := r.URL.Query().Get("prefix")
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
			b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><IsTruncated>false</IsTruncated>", bucket, prefix)
			for key, body := range objects {
				if strings.HasPrefix(key, prefix) {
					fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size></Contents>", key, len(body))
				}
			}
			b.WriteString(`</ListBucketResult>`)
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(b.String()))
			return
		}
		body, ok := objects[strings.TrimPrefix(r.URL.Path, "/"+bucket+"/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(srv.URL),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

func TestRunnerPrepareFromS3(t *testing.T) {
	ctx := context.Background()
	client := fakeS3(t, "smart-sales", map[string]string{
		"raw/sales_data.csv":     rawSales,
		"raw/sales_data_old.csv": "TransactionID\n1\n",
	})
	loc := output.FileLocation{Dir: t.TempDir()}

	r := NewRunner("s3://smart-sales/raw", loc, WithS3Client(client), WithFormat(output.FormatJSON))
	res, err := r.Prepare(ctx, Sales)
	require.NoError(t, err)
	assert.Equal(t, 8, res.RowsIn)
	assert.Equal(t, 3, res.RowsOut)

	src, err := loc.Open(ctx, "sales_prepared", output.FormatJSON)
	require.NoError(t, err)
	defer src.Close()
	rec, err := src.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(550), rec["transaction_id"])
	assert.Equal(t, "Credit Card", rec["payment_method"])

	_, err = r.Prepare(ctx, Customers)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestScrub(t *testing.T) {
	ctx := context.Background()
	raw := t.TempDir()
	writeRaw(t, raw, map[string]string{"stores.csv": "Store ID,Store Name\n401,LA\n402,\n401,LA\n"})
	out := filepath.Join(t.TempDir(), "cleaned")

	r := NewRunner(raw, output.FileLocation{Dir: t.TempDir()}, WithLogger(testutil.NewTestLogger(t)))
	reports, err := r.Scrub(ctx, out, filepath.Join(raw, "stores.csv"), filepath.Join(raw, "missing.csv"))
	require.Error(t, err)
	require.Len(t, reports, 2)

	ok := reports[0]
	require.NoError(t, ok.Err)
	assert.Equal(t, filepath.Join(out, "stores_cleaned.csv"), ok.Output)
	assert.Contains(t, ok.Info, "2 entries")
	assert.Contains(t, ok.Summary, "unique")

	data, err := os.ReadFile(ok.Output)
	require.NoError(t, err)
	assert.Equal(t, "store_id,store_name\n401,LA\n402,Unknown\n", string(data))

	assert.ErrorIs(t, reports[1].Err, os.ErrNotExist)
	assert.Empty(t, reports[1].Output)
}

func TestRunnerRawURI(t *testing.T) {
	assert.Equal(t, "s3://bucket/raw/sales_data.csv", NewRunner("s3://bucket/raw", nil).rawURI("sales_data.csv"))
	assert.Equal(t, filepath.Join("data", "raw", "x.csv"), NewRunner("data/raw", nil).rawURI("x.csv"))
}
