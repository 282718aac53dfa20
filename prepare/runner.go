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
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/smartsales"
	"github.com/aaronlmathis/smartsales/logging"
	"github.com/aaronlmathis/smartsales/output"
	"github.com/aaronlmathis/smartsales/readers"
	"github.com/aaronlmathis/smartsales/scrubber"
	"github.com/aaronlmathis/smartsales/table"
)

// PrepareError reports a failed step of a prepare stage.
type PrepareError struct {
	Dataset string
	Op      string
	Err     error
}

func (e *PrepareError) Error() string {
	return fmt.Sprintf("prepare %s %s: %v", e.Dataset, e.Op, e.Err)
}

func (e *PrepareError) Unwrap() error {
	return e.Err
}

// Result summarizes one prepare stage.
type Result struct {
	Dataset  string
	RowsIn   int
	RowsOut  int
	Output   string
	Duration time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the runner's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithFormat sets the prepared dataset format. CSV by default.
func WithFormat(f output.Format) Option {
	return func(r *Runner) {
		r.format = f
	}
}

// WithS3Config sets the AWS settings used when the raw directory is an
// s3:// URI.
func WithS3Config(cfg readers.S3Config) Option {
	return func(r *Runner) {
		r.s3Config = cfg
	}
}

// WithS3Client sets the client used to read raw objects from S3.
func WithS3Client(client *s3.Client) Option {
	return func(r *Runner) {
		r.s3Client = client
	}
}

// Runner reads raw extracts from a local directory or an s3:// prefix and
// writes prepared datasets to an output location.
type Runner struct {
	rawDir   string
	out      output.Location
	format   output.Format
	s3Config readers.S3Config
	s3Client *s3.Client
	logger   *slog.Logger
}

// NewRunner creates a runner reading from rawDir and writing to out.
func NewRunner(rawDir string, out output.Location, opts ...Option) *Runner {
	r := &Runner{
		rawDir: rawDir,
		out:    out,
		format: output.FormatCSV,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.OrDiscard(r.logger)
	return r
}

// Prepare reads the raw file of d, cleans it, validates the result and
// writes it to the output location.
func (r *Runner) Prepare(ctx context.Context, d Dataset) (*Result, error) {
	start := time.Now()
	logger := r.logger.With("dataset", d.Name)
	logger.Info("stage started", "raw", r.rawURI(d.RawFile))

	t, err := r.readRaw(ctx, d.RawFile)
	if err != nil {
		return nil, &PrepareError{Dataset: d.Name, Op: "read", Err: err}
	}
	res := &Result{Dataset: d.Name, RowsIn: t.Len()}
	logger.Info("loaded raw data", "rows", t.Len(), "columns", strings.Join(t.Columns(), ","))

	if d.Clean != nil {
		if err := d.Clean(ctx, t, logger); err != nil {
			return nil, &PrepareError{Dataset: d.Name, Op: "clean", Err: err}
		}
	}
	t.InferTypes()

	if d.Validator != nil {
		if err := d.Validator.Evaluate(ctx, t.Rows()); err != nil {
			return nil, &PrepareError{Dataset: d.Name, Op: "validate", Err: err}
		}
	}

	if err := r.write(ctx, d.PreparedFile, t); err != nil {
		return nil, &PrepareError{Dataset: d.Name, Op: "write", Err: err}
	}

	res.RowsOut = t.Len()
	res.Output = r.out.URI(d.PreparedFile, r.format)
	res.Duration = time.Since(start)
	logger.Info("stage finished",
		"rows_in", res.RowsIn,
		"rows_out", res.RowsOut,
		"output", res.Output,
		"duration", res.Duration)
	return res, nil
}

func (r *Runner) rawURI(name string) string {
	if bucket, prefix, ok := readers.ParseS3URI(r.rawDir); ok {
		return "s3://" + bucket + "/" + path.Join(prefix, name)
	}
	return filepath.Join(r.rawDir, name)
}

func (r *Runner) readRaw(ctx context.Context, name string) (*table.Table, error) {
	bucket, prefix, ok := readers.ParseS3URI(r.rawDir)
	if !ok {
		return table.ReadCSV(ctx, filepath.Join(r.rawDir, name))
	}

	key := path.Join(prefix, name)
	src, err := readers.NewS3Reader(ctx,
		readers.WithS3Bucket(bucket),
		readers.WithS3Prefix(key),
		readers.WithS3Recursive(false),
		readers.WithS3Config(r.s3Config),
		readers.WithS3Client(r.s3Client),
		readers.WithS3CSVOptions(readers.WithCSVInferTypes(false)),
	)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	found := false
	for _, obj := range src.Objects() {
		if obj.Key == key {
			found = true
			break
		}
	}
	if !found {
		return nil, fmt.Errorf("s3://%s/%s: %w", bucket, key, os.ErrNotExist)
	}

	t, err := table.Read(ctx, src)
	if err != nil {
		return nil, err
	}
	t.InferTypes()
	return t, nil
}

func (r *Runner) write(ctx context.Context, stem string, t *table.Table) error {
	sink, err := r.out.Create(ctx, stem, r.format, t.Columns())
	if err != nil {
		return err
	}
	p, err := smartsales.NewPipeline().From(t.Source()).To(sink).Build()
	if err != nil {
		sink.Close()
		return err
	}
	_, err = p.Execute(ctx)
	return err
}

// ScrubReport is the outcome of cleaning one file with Scrub.
type ScrubReport struct {
	File    string
	Output  string
	Info    string
	Summary string
	Err     error
}

// Scrub runs the generic clean over each CSV file and saves the result as
// <name>_cleaned.csv in outDir. A failing file is reported and the rest
// are still processed; the returned error joins all failures.
func (r *Runner) Scrub(ctx context.Context, outDir string, files ...string) ([]ScrubReport, error) {
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	reports := make([]ScrubReport, 0, len(files))
	var errs []error
	for _, file := range files {
		rep := r.scrubFile(ctx, outDir, file)
		if rep.Err != nil {
			r.logger.Error("scrub failed", "file", file, "error", rep.Err)
			errs = append(errs, rep.Err)
		}
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}

func (r *Runner) scrubFile(ctx context.Context, outDir, file string) ScrubReport {
	rep := ScrubReport{File: file}
	name := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
	logger := r.logger.With("file", file)

	s, err := scrubber.Load(ctx, file, scrubber.WithLogger(logger))
	if err != nil {
		rep.Err = err
		return rep
	}
	rowsIn := s.Table().Len()
	if err := CleanGeneric(ctx, s.Table(), logger); err != nil {
		rep.Err = err
		return rep
	}
	rep.Info, rep.Summary = s.Inspect()

	rep.Output = filepath.Join(outDir, name+"_cleaned.csv")
	if err := s.Save(ctx, rep.Output); err != nil {
		rep.Err = err
		return rep
	}
	logger.Info("scrubbed file", "rows_in", rowsIn, "rows_out", s.Table().Len(), "output", rep.Output)
	return rep
}
