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

// Package cli provides the smartsales command-line interface.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/aaronlmathis/smartsales/config"
	"github.com/aaronlmathis/smartsales/logging"
	"github.com/aaronlmathis/smartsales/output"
	"github.com/aaronlmathis/smartsales/prepare"
	"github.com/aaronlmathis/smartsales/warehouse"
)

// Version is set at build time.
var Version = "0.1.0"

type loggerKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "smartsales",
		Short: "SmartSales - sales data preparation and warehouse loader",
		Long: `SmartSales cleans the raw customers, products and sales extracts,
writes prepared datasets and loads them into a SQLite or Postgres
warehouse together with the store and campaign reference data.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}

			cfg, err := config.Load(cfgFile, cmd.Flags())
			if err != nil {
				return err
			}

			logger := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			slog.SetDefault(logger)

			ctx := config.WithContext(cmd.Context(), cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: ./smartsales.yaml)")
	flags.String("raw-dir", "", "Directory or s3:// prefix holding the raw extracts")
	flags.String("prepared-dir", "", "Directory or s3:// prefix for prepared datasets")
	flags.String("cleaned-dir", "", "Directory for files written by scrub")
	flags.String("reference-dir", "", "Directory holding stores.csv and campaigns.csv")
	flags.StringP("format", "f", "", "Prepared dataset format (csv|json|parquet)")
	flags.String("driver", "", "Warehouse driver (sqlite|postgres)")
	flags.String("dsn", "", "Warehouse data source name")
	flags.Int("batch-size", 0, "Rows per insert transaction")
	flags.String("fk-mode", "", "Reference check mode (warn|strict)")
	flags.Int("parallelism", 0, "Stages run at once by the run command")
	flags.String("log-level", "", "Log level (debug|info|warn|error)")
	flags.String("log-format", "", "Log format (text|json)")

	_ = rootCmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"csv", "json", "parquet"}, cobra.ShellCompDirectiveNoFileComp
	})
	_ = rootCmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"sqlite", "postgres"}, cobra.ShellCompDirectiveNoFileComp
	})

	rootCmd.AddCommand(NewPrepareCommand())
	rootCmd.AddCommand(NewScrubCommand())
	rootCmd.AddCommand(NewInspectCommand())
	rootCmd.AddCommand(NewLoadCommand())
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewTablesCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// settings returns the config and logger stored by PersistentPreRunE.
func settings(cmd *cobra.Command) (*config.Config, *slog.Logger, error) {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if cfg == nil {
		return nil, nil, fmt.Errorf("configuration not loaded")
	}
	logger, _ := ctx.Value(loggerKey{}).(*slog.Logger)
	return cfg, logging.OrDiscard(logger), nil
}

func outputFormat(cfg *config.Config) (output.Format, error) {
	return output.ParseFormat(cfg.Output.Format)
}

func newRunner(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*prepare.Runner, error) {
	f, err := outputFormat(cfg)
	if err != nil {
		return nil, err
	}
	loc, err := output.New(ctx, cfg.PreparedDir, cfg.S3Options())
	if err != nil {
		return nil, err
	}
	return prepare.NewRunner(cfg.RawDir, loc,
		prepare.WithFormat(f),
		prepare.WithS3Config(cfg.S3Options()),
		prepare.WithLogger(logger),
	), nil
}

func openWarehouse(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*warehouse.Warehouse, error) {
	return warehouse.Open(ctx, cfg.Warehouse.Driver, cfg.Warehouse.DSN,
		warehouse.WithLogger(logger),
		warehouse.WithBatchSize(cfg.Warehouse.BatchSize),
		warehouse.WithFKMode(warehouse.FKMode(cfg.Warehouse.FKMode)),
	)
}
