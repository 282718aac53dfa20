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

// dag_builder.go - Fluent API for DAG construction
package dag

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

// Builder provides a fluent API for constructing DAGs. Errors found while
// adding stages are reported by Build.
type Builder struct {
	dag            *DAG
	defaultRetry   *RetryConfig
	defaultTimeout time.Duration
	errs           []error
}

// NewBuilder creates a new DAG builder.
func NewBuilder(id, name string) *Builder {
	return &Builder{
		dag: &DAG{
			id:     id,
			name:   name,
			stages: make(map[string]*Stage),
		},
	}
}

// WithDefaultRetries applies cfg to stages added afterwards that set no
// retry configuration of their own.
func (b *Builder) WithDefaultRetries(cfg *RetryConfig) *Builder {
	b.defaultRetry = cfg
	return b
}

// WithDefaultTimeout applies timeout to stages added afterwards that set
// no timeout of their own.
func (b *Builder) WithDefaultTimeout(timeout time.Duration) *Builder {
	b.defaultTimeout = timeout
	return b
}

// AddStage adds a stage that runs fn after every stage in deps succeeded.
func (b *Builder) AddStage(id string, fn StageFunc, deps ...string) *Builder {
	return b.AddStageWith(id, fn, deps)
}

// AddStageWith is AddStage with stage options.
func (b *Builder) AddStageWith(id string, fn StageFunc, deps []string, opts ...StageOption) *Builder {
	switch {
	case id == "":
		b.errs = append(b.errs, errors.New("stage id is required"))
		return b
	case fn == nil:
		b.errs = append(b.errs, fmt.Errorf("stage %s has no function", id))
		return b
	case b.dag.HasStage(id):
		b.errs = append(b.errs, fmt.Errorf("stage %s added twice", id))
		return b
	}

	s := &Stage{
		id:      id,
		fn:      fn,
		retry:   b.defaultRetry,
		timeout: b.defaultTimeout,
	}
	for _, dep := range deps {
		if !slices.Contains(s.deps, dep) {
			s.deps = append(s.deps, dep)
		}
	}
	for _, opt := range opts {
		opt(s)
	}

	b.dag.stages[id] = s
	b.dag.order = append(b.dag.order, id)
	return b
}

// Build validates and returns the constructed DAG. It rejects
// dependencies on unknown stages and cycles.
func (b *Builder) Build() (*DAG, error) {
	errs := append([]error(nil), b.errs...)
	for _, id := range b.dag.order {
		for _, dep := range b.dag.stages[id].deps {
			if !b.dag.HasStage(dep) {
				errs = append(errs, fmt.Errorf("stage %s depends on unknown stage %s", id, dep))
			}
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	if _, err := b.dag.Levels(); err != nil {
		return nil, err
	}
	return b.dag, nil
}
