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
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/aaronlmathis/smartsales/config"
	"github.com/aaronlmathis/smartsales/dag"
	"github.com/aaronlmathis/smartsales/prepare"
)

// StageLoad is the id of the warehouse load stage of the run graph.
const StageLoad = "load"

// NewRunCommand creates the run command.
func NewRunCommand() *cobra.Command {
	var (
		dryRun  bool
		retries int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Prepare every dataset and load the warehouse",
		Long: `Run the full pipeline as a stage graph: the customers, products and
sales prepare stages first, then the warehouse load once all three have
succeeded. Up to --parallelism prepare stages run at once.`,
		Example: `  smartsales run

  # Show the stage graph without running it
  smartsales run --dry-run

  # Prepare all datasets concurrently
  smartsales run --parallelism 3`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPipeline(cmd, dryRun, retries)
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print the stage graph and exit")
	cmd.Flags().IntVar(&retries, "retries", 0, "Retries for a failing stage")

	return cmd
}

func runPipeline(cmd *cobra.Command, dryRun bool, retries int) error {
	cfg, logger, err := settings(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	runner, err := newRunner(ctx, cfg, logger)
	if err != nil {
		return err
	}
	d, err := buildRunGraph(cfg, runner, logger, retries)
	if err != nil {
		return err
	}
	if dryRun {
		fmt.Fprintln(out, d.Render())
		return nil
	}

	exec := dag.NewExecutor(dag.WithParallelism(cfg.Parallelism), dag.WithLogger(logger))
	res, err := exec.Run(ctx, d)
	if res != nil {
		renderRunResult(out, res)
	}
	return err
}

// buildRunGraph wires one prepare stage per dataset and a load stage that
// depends on all of them.
func buildRunGraph(cfg *config.Config, runner *prepare.Runner, logger *slog.Logger, retries int) (*dag.DAG, error) {
	b := dag.NewBuilder("smart-sales", "Smart Sales ETL")
	if retries > 0 {
		b.WithDefaultRetries(&dag.RetryConfig{
			MaxRetries: retries,
			Strategy:   &dag.ExponentialBackoff{BaseDelay: time.Second, MaxDelay: 30 * time.Second},
		})
	}

	var prepared []string
	for _, ds := range prepare.All() {
		id := "prepare_" + ds.Name
		b.AddStageWith(id, func(ctx context.Context) error {
			_, err := runner.Prepare(ctx, ds)
			return err
		}, nil, dag.WithDescription(fmt.Sprintf("%s -> %s", ds.RawFile, ds.PreparedFile)))
		prepared = append(prepared, id)
	}

	b.AddStageWith(StageLoad, func(ctx context.Context) error {
		_, err := loadWarehouse(ctx, cfg, logger)
		return err
	}, prepared, dag.WithDescription(fmt.Sprintf("replace %s warehouse", cfg.Warehouse.Driver)))

	return b.Build()
}

func renderRunResult(w io.Writer, res *dag.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.SetTitle("run " + res.RunID)
	t.AppendHeader(table.Row{"Stage", "Status", "Attempts", "Duration", "Error"})
	for _, level := range res.Levels {
		for _, id := range level {
			sr := res.Stages[id]
			msg := ""
			if sr.Err != nil {
				msg = sr.Err.Error()
			}
			t.AppendRow(table.Row{id, sr.Status, sr.Attempts, sr.Duration().Round(time.Millisecond), msg})
		}
	}
	t.Render()
}
