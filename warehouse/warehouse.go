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

// Package warehouse owns the relational store of prepared records: the
// customer, product, sale, store and campaign tables, their migrations,
// reference data and the bulk loader.
package warehouse

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"

	"github.com/aaronlmathis/smartsales/logging"
	"github.com/aaronlmathis/smartsales/readers"
	"github.com/aaronlmathis/smartsales/writers"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its dialect and filesystem in package state.
var gooseMu sync.Mutex

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Warehouse table names.
const (
	TableCustomer = "customer"
	TableProduct  = "product"
	TableSale     = "sale"
	TableStore    = "store"
	TableCampaign = "campaign"
)

// Columns lists the loadable columns of each table in schema order. The
// first column is the primary key.
var Columns = map[string][]string{
	TableCustomer: {"customer_id", "name", "region", "join_date", "loyalty_points", "engagement_style"},
	TableProduct:  {"product_id", "product_name", "category", "unit_price", "stock_level", "supplier_tier"},
	TableSale: {"sale_id", "customer_id", "product_id", "store_id", "campaign_id",
		"sale_amount", "sale_date", "discount_percent", "payment_method"},
	TableStore:    {"store_id", "store_name", "region"},
	TableCampaign: {"campaign_id", "campaign_name", "start_date", "end_date"},
}

// deleteOrder empties referencing tables first.
var deleteOrder = []string{TableSale, TableCustomer, TableProduct, TableStore, TableCampaign}

// FKMode controls what the loader does with duplicate keys and unresolved
// references.
type FKMode string

const (
	// FKWarn logs problems, keeps the first row per key and loads the rest.
	FKWarn FKMode = "warn"
	// FKStrict fails the load before anything is inserted.
	FKStrict FKMode = "strict"
)

// Option configures a Warehouse.
type Option func(*Warehouse)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Warehouse) { w.logger = logger }
}

// WithBatchSize sets the number of rows per insert transaction.
func WithBatchSize(size int) Option {
	return func(w *Warehouse) { w.batchSize = size }
}

// WithFKMode sets the reference checking mode.
func WithFKMode(mode FKMode) Option {
	return func(w *Warehouse) { w.fkMode = mode }
}

// Warehouse is an open warehouse database.
type Warehouse struct {
	db        *sqlx.DB
	dialect   writers.Dialect
	logger    *slog.Logger
	batchSize int
	fkMode    FKMode
}

// Open connects to the warehouse. driver is "sqlite" or "postgres"; for
// SQLite the parent directory of the database file is created.
func Open(ctx context.Context, driver, dsn string, opts ...Option) (*Warehouse, error) {
	dialect, err := writers.ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	if dialect == writers.DialectSQLite {
		if p := sqlitePath(dsn); p != "" {
			if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
				return nil, fmt.Errorf("create warehouse directory: %w", err)
			}
		}
	}

	db, err := sqlx.Open(string(dialect), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s warehouse: %w", dialect, err)
	}
	if dialect == writers.DialectSQLite {
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s warehouse: %w", dialect, err)
	}
	return newWarehouse(db, dialect, opts...), nil
}

// NewWithDB wraps an existing handle. The warehouse closes it on Close.
func NewWithDB(db *sql.DB, driver string, opts ...Option) (*Warehouse, error) {
	dialect, err := writers.ParseDialect(driver)
	if err != nil {
		return nil, err
	}
	return newWarehouse(sqlx.NewDb(db, string(dialect)), dialect, opts...), nil
}

func newWarehouse(db *sqlx.DB, dialect writers.Dialect, opts ...Option) *Warehouse {
	w := &Warehouse{db: db, dialect: dialect, batchSize: 500, fkMode: FKWarn}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.OrDiscard(w.logger).With("component", "warehouse")
	return w
}

func sqlitePath(dsn string) string {
	p := strings.TrimPrefix(dsn, "file:")
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" || strings.HasPrefix(p, ":memory:") {
		return ""
	}
	return p
}

// DB returns the underlying handle.
func (w *Warehouse) DB() *sqlx.DB {
	return w.db
}

// Dialect reports the SQL dialect in use.
func (w *Warehouse) Dialect() writers.Dialect {
	return w.dialect
}

// Close closes the database.
func (w *Warehouse) Close() error {
	return w.db.Close()
}

func (w *Warehouse) gooseDialect() string {
	if w.dialect == writers.DialectPostgres {
		return "postgres"
	}
	return "sqlite3"
}

// Migrate applies pending schema migrations.
func (w *Warehouse) Migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(w.gooseDialect()); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.UpContext(ctx, w.db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// Version returns the applied migration version.
func (w *Warehouse) Version(ctx context.Context) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect(w.gooseDialect()); err != nil {
		return 0, fmt.Errorf("failed to set dialect: %w", err)
	}
	return goose.GetDBVersionContext(ctx, w.db.DB)
}

// Reset deletes every row from the warehouse tables.
func (w *Warehouse) Reset(ctx context.Context) error {
	return w.inTx(ctx, func(tx *sqlx.Tx) error {
		return w.reset(ctx, tx)
	})
}

func (w *Warehouse) reset(ctx context.Context, tx *sqlx.Tx) error {
	for _, t := range deleteOrder {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quoteIdent(t)); err != nil {
			return fmt.Errorf("delete from %s: %w", t, err)
		}
	}
	w.logger.Info("warehouse reset", "tables", deleteOrder)
	return nil
}

// inTx runs fn in one transaction and commits only when fn succeeds.
// Every statement in fn must go through tx: SQLite warehouses hold a
// single connection.
func (w *Warehouse) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// TableInfo describes one warehouse table.
type TableInfo struct {
	Name    string
	Columns []string
	Rows    int64
}

// Tables lists the tables of the warehouse with their columns and row
// counts. Migration bookkeeping tables are left out.
func (w *Warehouse) Tables(ctx context.Context) ([]TableInfo, error) {
	query := `SELECT name FROM sqlite_master
		WHERE type = 'table' AND name NOT LIKE 'sqlite_%' AND name NOT LIKE 'goose_%'
		ORDER BY name`
	if w.dialect == writers.DialectPostgres {
		query = `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
			AND table_name NOT LIKE 'goose_%'
			ORDER BY table_name`
	}

	var names []string
	if err := w.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	out := make([]TableInfo, 0, len(names))
	for _, name := range names {
		cols, err := w.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		n, err := w.Count(ctx, name)
		if err != nil {
			return nil, err
		}
		out = append(out, TableInfo{Name: name, Columns: cols, Rows: n})
	}
	return out, nil
}

func (w *Warehouse) columns(ctx context.Context, table string) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, "SELECT * FROM "+quoteIdent(table)+" WHERE 1 = 0")
	if err != nil {
		return nil, fmt.Errorf("columns of %s: %w", table, err)
	}
	defer rows.Close()
	return rows.Columns()
}

// Count returns the number of rows in table.
func (w *Warehouse) Count(ctx context.Context, table string) (int64, error) {
	var n int64
	if err := w.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+quoteIdent(table)); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// Rows streams the rows of table ordered by its first column. The reader
// holds a connection until it is closed.
func (w *Warehouse) Rows(ctx context.Context, table string, limit int) (*readers.SQLReader, error) {
	cols, err := w.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	query := "SELECT * FROM " + quoteIdent(table)
	if len(cols) > 0 {
		query += " ORDER BY " + quoteIdent(cols[0])
	}
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	return readers.NewSQLReader(w.db.DB, query)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
