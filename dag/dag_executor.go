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

// dag_executor.go - Level-by-level stage execution with retries
package dag

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/aaronlmathis/smartsales/logging"
)

// Executor runs the stages of a DAG level by level.
type Executor struct {
	parallelism int
	logger      *slog.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithParallelism sets how many stages of one level may run at once.
func WithParallelism(n int) ExecutorOption {
	return func(e *Executor) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// WithLogger sets the executor's logger.
func WithLogger(logger *slog.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor. Stages run one at a time unless
// WithParallelism says otherwise.
func NewExecutor(opts ...ExecutorOption) *Executor {
	e := &Executor{parallelism: 1}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = logging.OrDiscard(e.logger)
	return e
}

// Run executes d. Levels run in topological order; a level starts only
// when every stage of the previous level succeeded. When a stage fails
// its running siblings are cancelled, the remaining stages are skipped and
// the returned error is the stage's *StageError. The RunResult is returned
// in both cases.
func (e *Executor) Run(ctx context.Context, d *DAG) (*RunResult, error) {
	lv, err := d.Levels()
	if err != nil {
		return nil, err
	}

	res := &RunResult{
		RunID:     uuid.NewString(),
		StartTime: time.Now(),
		Levels:    lv,
		Stages:    make(map[string]StageResult, len(d.order)),
	}
	for _, id := range d.order {
		res.Stages[id] = StageResult{Status: StatusPending}
	}
	logger := e.logger.With("run_id", res.RunID, "dag", d.id)
	logger.Info("run started", "stages", len(d.order), "levels", len(lv), "parallelism", e.parallelism)

	var mu sync.Mutex
	record := func(id string, r StageResult) {
		mu.Lock()
		res.Stages[id] = r
		mu.Unlock()
	}

	for i, level := range lv {
		if err := ctx.Err(); err != nil {
			res.Error = err
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.parallelism)
		for _, id := range level {
			s := d.stages[id]
			g.Go(func() error {
				r := e.runStage(gctx, logger, s)
				record(s.id, r)
				if r.Status == StatusSkipped {
					return ctx.Err()
				}
				if r.Err != nil {
					return &StageError{Stage: s.id, Attempts: r.Attempts, Err: r.Err}
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			res.Error = err
			break
		}
		logger.Debug("level completed", "level", i, "stages", level)
	}

	for id, r := range res.Stages {
		if r.Status == StatusPending {
			r.Status = StatusSkipped
			res.Stages[id] = r
		}
	}
	res.EndTime = time.Now()
	res.Success = res.Error == nil

	if res.Error != nil {
		logger.Error("run failed", "duration", res.Duration(), "error", res.Error)
		return res, res.Error
	}
	logger.Info("run finished", "duration", res.Duration())
	return res, nil
}

func (e *Executor) runStage(ctx context.Context, logger *slog.Logger, s *Stage) StageResult {
	logger = logger.With("stage", s.id)
	if ctx.Err() != nil {
		return StageResult{Status: StatusSkipped}
	}
	r := StageResult{StartTime: time.Now()}
	logger.Info("stage started")

	maxAttempts := 1
	if s.retry != nil && s.retry.MaxRetries > 0 {
		maxAttempts += s.retry.MaxRetries
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			r.Err = err
			break
		}
		r.Attempts++
		r.Err = e.attempt(ctx, s)
		if r.Err == nil || attempt == maxAttempts-1 || !s.retry.retryable(r.Err) {
			break
		}

		delay := s.retry.delay(attempt)
		logger.Warn("stage attempt failed, retrying", "attempt", r.Attempts, "delay", delay, "error", r.Err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
		}
	}

	r.EndTime = time.Now()
	if r.Err != nil {
		r.Status = StatusFailed
		logger.Error("stage failed", "attempts", r.Attempts, "duration", r.Duration(), "error", r.Err)
		return r
	}
	r.Status = StatusSucceeded
	logger.Info("stage finished", "attempts", r.Attempts, "duration", r.Duration())
	return r
}

func (e *Executor) attempt(ctx context.Context, s *Stage) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.fn(ctx)
}
