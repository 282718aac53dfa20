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
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/smartsales/prepare"
	"github.com/aaronlmathis/smartsales/scrubber"
)

// NewPrepareCommand creates the prepare command.
func NewPrepareCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "prepare [customers|products|sales|all]",
		Short: "Clean raw extracts into prepared datasets",
		Long: `Read the raw customers, products or sales extract from the raw
directory, clean and validate it, and write the prepared dataset to the
prepared directory in the configured format.`,
		Example: `  # Prepare every dataset
  smartsales prepare

  # Prepare only sales, writing parquet
  smartsales prepare sales --format parquet

  # Read raw extracts from S3
  smartsales prepare --raw-dir s3://acme-raw/smart-sales`,
		Args:      cobra.MaximumNArgs(1),
		ValidArgs: []string{"customers", "products", "sales", "all"},
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "all"
			if len(args) == 1 {
				name = args[0]
			}
			return runPrepare(cmd, name)
		},
	}

	return cmd
}

func runPrepare(cmd *cobra.Command, name string) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	datasets := prepare.All()
	if name != "all" {
		d, err := prepare.Lookup(name)
		if err != nil {
			return err
		}
		datasets = []prepare.Dataset{d}
	}

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}

	results := make([]*prepare.Result, 0, len(datasets))
	for _, d := range datasets {
		res, err := runner.Prepare(ctx, d)
		if err != nil {
			return err
		}
		results = append(results, res)
	}
	renderPrepareResults(cmd.OutOrStdout(), results)
	return nil
}

func renderPrepareResults(w io.Writer, results []*prepare.Result) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Dataset", "Rows In", "Rows Out", "Output", "Duration"})
	for _, r := range results {
		t.AppendRow(table.Row{r.Dataset, r.RowsIn, r.RowsOut, r.Output, r.Duration.Round(time.Millisecond)})
	}
	t.Render()
}

// NewScrubCommand creates the scrub command.
func NewScrubCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrub <csv>...",
		Short: "Apply the generic clean to CSV files",
		Long: `Standardize column names, fill missing values with "Unknown" and drop
duplicate rows of each file, print its inspection report and save it as
<name>_cleaned.csv in the cleaned directory.`,
		Example: `  smartsales scrub data/raw/stores.csv data/raw/campaigns.csv`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScrub(cmd, args)
		},
	}

	return cmd
}

func runScrub(cmd *cobra.Command, files []string) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	reports, err := runner.Scrub(ctx, cfg.CleanedDir, files...)
	out := cmd.OutOrStdout()
	for _, rep := range reports {
		if rep.Err != nil {
			fmt.Fprintf(out, "%s: %v\n\n", rep.File, rep.Err)
			continue
		}
		fmt.Fprintf(out, "%s -> %s\n%s\n%s\n\n", rep.File, rep.Output, rep.Info, rep.Summary)
	}
	return err
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "inspect <csv>",
		Short:   "Print the columns, types and statistics of a CSV file",
		Example: `  smartsales inspect data/prepared/sales_prepared.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, args[0])
		},
	}

	return cmd
}

func runInspect(cmd *cobra.Command, path string) error {
	_, logger, err := settings(cmd)
	if err != nil {
		return err
	}
	s, err := scrubber.Load(cmd.Context(), path, scrubber.WithLogger(logger))
	if err != nil {
		return err
	}
	info, summary := s.Inspect()
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n%s\n", info, summary)
	return nil
}
