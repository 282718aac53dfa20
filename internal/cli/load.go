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

package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/smartsales/config"
	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/output"
	tbl "github.com/aaronlmathis/smartsales/table"
	"github.com/aaronlmathis/smartsales/warehouse"
)

// NewLoadCommand creates the load command.
func NewLoadCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load",
		Short: "Load prepared datasets into the warehouse",
		Long: `Migrate the warehouse schema, delete all rows, seed the store and
campaign reference data and insert the prepared customers, products and
sales. With fk-mode strict, duplicate keys or unresolved sale references
fail the load before anything is inserted.`,
		Example: `  # Load into the default SQLite warehouse
  smartsales load

  # Load into Postgres
  smartsales load --driver postgres --dsn "postgres://etl@localhost/smart_sales?sslmode=disable"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLoad(cmd)
		},
	}

	return cmd
}

func runLoad(cmd *cobra.Command) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}
	res, err := loadWarehouse(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	renderLoadResult(cmd.OutOrStdout(), res)
	return nil
}

// loadWarehouse reads the prepared datasets and replaces the warehouse
// contents with them.
func loadWarehouse(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*warehouse.LoadResult, error) {
	f, err := outputFormat(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := output.New(ctx, cfg.PreparedDir, cfg.S3Options())
	if err != nil {
		return nil, err
	}
	ds, err := warehouse.ReadDatasets(ctx, loc, f, warehouse.DefaultStems)
	if err != nil {
		return nil, err
	}

	w, err := openWarehouse(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	defer w.Close()

	return w.Replace(ctx, cfg.ReferenceDir, ds)
}

func renderLoadResult(w io.Writer, res *warehouse.LoadResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("load " + res.RunID)
	t.AppendHeader(table.Row{"Table", "Inserted", "Duplicate Keys"})
	for _, name := range []string{warehouse.TableCustomer, warehouse.TableProduct, warehouse.TableSale} {
		t.AppendRow(table.Row{name, res.Inserted[name], res.DuplicateKeys[name]})
	}
	t.AppendFooter(table.Row{"Orphans", len(res.Orphans), res.Duration.Round(time.Millisecond)})
	t.Render()
}

// NewTablesCommand creates the tables command.
func NewTablesCommand() *cobra.Command {
	var rows int

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List warehouse tables, their columns and row counts",
		Example: `  smartsales tables

  # Show the first five rows of every table
  smartsales tables --rows 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runTables(cmd, rows)
		},
	}

	cmd.Flags().IntVarP(&rows, "rows", "n", 0, "Preview the first n rows of each table")

	return cmd
}

func runTables(cmd *cobra.Command, rows int) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	w, err := openWarehouse(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	infos, err := w.Tables(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(infos) == 0 {
		fmt.Fprintln(out, "No tables found. Run `smartsales load` first.")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Table", "Rows", "Columns"})
	for _, info := range infos {
		t.AppendRow(table.Row{info.Name, info.Rows, strings.Join(info.Columns, ", ")})
	}
	t.Render()

	if rows <= 0 {
		return nil
	}
	for _, info := range infos {
		if err := previewTable(ctx, out, w, info.Name, rows); err != nil {
			return err
		}
	}
	return nil
}

func previewTable(ctx context.Context, out io.Writer, w *warehouse.Warehouse, name string, limit int) error {
	r, err := w.Rows(ctx, name, limit)
	if err != nil {
		return err
	}
	data, err := tbl.Read(ctx, r)
	r.Close()
	if err != nil {
		return fmt.Errorf("preview %s: %w", name, err)
	}
	if data.Len() == 0 {
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.SetTitle(name)
	header := make(table.Row, 0, len(data.Columns()))
	for _, c := range data.Columns() {
		header = append(header, c)
	}
	t.AppendHeader(header)
	for _, rec := range data.Rows() {
		t.AppendRow(previewRow(data.Columns(), rec))
	}
	t.Render()
	return nil
}

func previewRow(columns []string, rec core.Record) table.Row {
	row := make(table.Row, 0, len(columns))
	for _, c := range columns {
		row = append(row, core.FormatValue(rec[c]))
	}
	return row
}
