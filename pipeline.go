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

// Package smartsales wires readers, cleaning steps and writers into
// record-by-record pipelines for the smart sales demo warehouse.
//
// Core Concepts:
//   - DataSource: reads records from raw extracts, prepared datasets or the warehouse.
//   - DataSink: writes records to prepared datasets or warehouse tables.
//   - Transformer: projection, renaming and normalization of a record.
//   - Filter: drops records that fail a predicate.
//   - ErrorStrategy: fail fast, skip, or collect record-level errors.
//
// Example usage:
//
//	pipeline, err := smartsales.NewPipeline().
//		From(csvReader).
//		Transform(transform.Select("customer_id", "region")).
//		Filter(filter.NotNull("customer_id")).
//		To(sqlWriter).
//		WithErrorStrategy(smartsales.SkipErrors).
//		Build()
//	if err != nil { log.Fatal(err) }
//	stats, err := pipeline.Execute(ctx)
package smartsales

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aaronlmathis/smartsales/core"
)

// PipelineBuilder provides a fluent API for constructing transformation pipelines.
// Use NewPipeline() to create a new builder, then chain From, Transform, Filter, To, and configuration methods.
type PipelineBuilder struct {
	pipeline *Pipeline
}

// NewPipeline creates a new PipelineBuilder.
func NewPipeline() *PipelineBuilder {
	return &PipelineBuilder{
		pipeline: &Pipeline{
			transformers: make([]Transformer, 0),
			filters:      make([]Filter, 0),
			strategy:     FailFast,
		},
	}
}

// From sets the DataSource for the pipeline.
func (pb *PipelineBuilder) From(source DataSource) *PipelineBuilder {
	pb.pipeline.source = source
	return pb
}

// Transform adds a Transformer to the pipeline.
func (pb *PipelineBuilder) Transform(transformer Transformer) *PipelineBuilder {
	pb.pipeline.transformers = append(pb.pipeline.transformers, transformer)
	return pb
}

// Filter adds a Filter to the pipeline.
func (pb *PipelineBuilder) Filter(filter Filter) *PipelineBuilder {
	pb.pipeline.filters = append(pb.pipeline.filters, filter)
	return pb
}

// Map adds a mapping transformation to the pipeline using a function.
func (pb *PipelineBuilder) Map(fn func(ctx context.Context, record Record) (Record, error)) *PipelineBuilder {
	return pb.Transform(TransformFunc(fn))
}

// Where adds a filtering condition to the pipeline using a function.
func (pb *PipelineBuilder) Where(fn func(ctx context.Context, record Record) (bool, error)) *PipelineBuilder {
	return pb.Filter(FilterFunc(fn))
}

// To sets the DataSink for the pipeline.
func (pb *PipelineBuilder) To(sink DataSink) *PipelineBuilder {
	pb.pipeline.sink = sink
	return pb
}

// WithErrorStrategy sets the error handling strategy for the pipeline.
func (pb *PipelineBuilder) WithErrorStrategy(strategy ErrorStrategy) *PipelineBuilder {
	pb.pipeline.strategy = strategy
	return pb
}

// WithErrorHandler sets a custom error handler for the pipeline.
// The handler is consulted under SkipErrors and CollectErrors; a non-nil
// return stops the pipeline.
func (pb *PipelineBuilder) WithErrorHandler(handler ErrorHandler) *PipelineBuilder {
	pb.pipeline.errorHandler = handler
	return pb
}

// Build validates and constructs the Pipeline from the builder.
func (pb *PipelineBuilder) Build() (*Pipeline, error) {
	if pb.pipeline.source == nil {
		return nil, fmt.Errorf("pipeline requires a data source")
	}
	if pb.pipeline.sink == nil {
		return nil, fmt.Errorf("pipeline requires a data sink")
	}
	return pb.pipeline, nil
}

// Pipeline represents a data processing pipeline for streaming ETL operations.
//
// Use Execute to process all records from the DataSource through transformations and filters, writing to the DataSink.
type Pipeline struct {
	transformers []Transformer
	filters      []Filter
	source       DataSource
	sink         DataSink
	strategy     ErrorStrategy
	errorHandler ErrorHandler

	collected core.CollectedErrors
}

// PipelineStats summarizes a single Execute call.
type PipelineStats struct {
	RecordsRead     int64
	RecordsWritten  int64
	RecordsFiltered int64
	RecordsFailed   int64
}

// Execute runs the pipeline, processing all records from source to sink.
//
// The source is always closed. The sink is flushed and closed; a flush or
// close failure is reported when no earlier error occurred. Under
// CollectErrors the returned error is a core.CollectedErrors listing every
// failed record.
func (p *Pipeline) Execute(ctx context.Context) (stats PipelineStats, err error) {
	p.collected = nil
	defer func() {
		p.source.Close()
		flushErr := p.sink.Flush()
		closeErr := p.sink.Close()
		if err == nil {
			err = errors.Join(flushErr, closeErr)
		}
		if err == nil && len(p.collected) > 0 {
			err = p.collected
		}
	}()

	var index int64
	for ; ; index++ {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		default:
		}

		record, readErr := p.source.Read(ctx)
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			stats.RecordsFailed++
			if err := p.handleError(ctx, index, record, readErr); err != nil {
				return stats, err
			}
			continue
		}
		stats.RecordsRead++

		// Skip empty records early
		if len(record) == 0 {
			continue
		}

		transformed, tErr := p.applyTransformations(ctx, record)
		if tErr != nil {
			stats.RecordsFailed++
			if err := p.handleError(ctx, index, record, tErr); err != nil {
				return stats, err
			}
			continue
		}
		if len(transformed) == 0 {
			stats.RecordsFiltered++
			continue
		}

		include, fErr := p.applyFilters(ctx, transformed)
		if fErr != nil {
			stats.RecordsFailed++
			if err := p.handleError(ctx, index, record, fErr); err != nil {
				return stats, err
			}
			continue
		}
		if !include {
			stats.RecordsFiltered++
			continue
		}

		if wErr := p.sink.Write(ctx, transformed); wErr != nil {
			stats.RecordsFailed++
			if err := p.handleError(ctx, index, transformed, wErr); err != nil {
				return stats, err
			}
			continue
		}
		stats.RecordsWritten++
	}

	return stats, nil
}

// applyFilters applies all configured filters to a record.
func (p *Pipeline) applyFilters(ctx context.Context, record Record) (bool, error) {
	for _, filter := range p.filters {
		include, err := filter.ShouldInclude(ctx, record)
		if err != nil {
			return false, err
		}
		if !include {
			return false, nil
		}
	}
	return true, nil
}

// applyTransformations applies all configured transformers to a record in sequence.
func (p *Pipeline) applyTransformations(ctx context.Context, record Record) (Record, error) {
	current := record
	for _, transformer := range p.transformers {
		transformed, err := transformer.Transform(ctx, current)
		if err != nil {
			return nil, err
		}
		current = transformed
	}
	return current, nil
}

// handleError handles errors according to the pipeline's error strategy and handler.
// Returns an error if processing should stop, or nil to continue.
func (p *Pipeline) handleError(ctx context.Context, index int64, record Record, err error) error {
	recErr := &core.RecordError{Index: index, Record: record, Err: err}
	switch p.strategy {
	case SkipErrors:
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, recErr)
		}
		return nil
	case CollectErrors:
		p.collected = append(p.collected, recErr)
		if p.errorHandler != nil {
			return p.errorHandler.HandleError(ctx, record, recErr)
		}
		return nil
	default:
		return recErr
	}
}
