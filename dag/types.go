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

// types.go - Stage, retry and result types
package dag

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrCycle is returned by Build when stage dependencies form a cycle.
var ErrCycle = errors.New("dag contains a cycle")

// StageFunc is the work done by one stage.
type StageFunc func(ctx context.Context) error

// BackoffStrategy computes the wait before retry attempt n (0-based).
type BackoffStrategy interface {
	Delay(attempt int) time.Duration
}

// ExponentialBackoff doubles BaseDelay on every attempt up to MaxDelay.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

func (eb *ExponentialBackoff) Delay(attempt int) time.Duration {
	delay := eb.BaseDelay * time.Duration(1<<uint(attempt))
	if eb.MaxDelay > 0 && delay > eb.MaxDelay {
		delay = eb.MaxDelay
	}
	return delay
}

// FixedBackoff waits the same delay before every retry.
type FixedBackoff struct {
	FixedDelay time.Duration
}

func (fb *FixedBackoff) Delay(attempt int) time.Duration {
	return fb.FixedDelay
}

// RetryConfig defines retry behavior for a stage.
type RetryConfig struct {
	MaxRetries int
	Strategy   BackoffStrategy  // nil means no wait between attempts
	RetryIf    func(error) bool // nil retries every error
}

func (rc *RetryConfig) delay(attempt int) time.Duration {
	if rc == nil || rc.Strategy == nil {
		return 0
	}
	return rc.Strategy.Delay(attempt)
}

func (rc *RetryConfig) retryable(err error) bool {
	if rc == nil || rc.MaxRetries <= 0 {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return rc.RetryIf == nil || rc.RetryIf(err)
}

// Stage is a node of the graph.
type Stage struct {
	id          string
	fn          StageFunc
	deps        []string
	description string
	retry       *RetryConfig
	timeout     time.Duration
}

// ID returns the stage id.
func (s *Stage) ID() string { return s.id }

// Dependencies returns the ids this stage waits for.
func (s *Stage) Dependencies() []string { return append([]string(nil), s.deps...) }

// Description returns the stage description.
func (s *Stage) Description() string { return s.description }

// StageOption configures a stage.
type StageOption func(*Stage)

// WithRetries retries a failing stage up to maxRetries times.
func WithRetries(maxRetries int, strategy BackoffStrategy) StageOption {
	return func(s *Stage) {
		s.retry = &RetryConfig{MaxRetries: maxRetries, Strategy: strategy}
	}
}

// WithRetryConfig sets the full retry configuration of a stage.
func WithRetryConfig(cfg *RetryConfig) StageOption {
	return func(s *Stage) {
		s.retry = cfg
	}
}

// WithTimeout bounds each attempt of a stage.
func WithTimeout(timeout time.Duration) StageOption {
	return func(s *Stage) {
		s.timeout = timeout
	}
}

// WithDescription sets the stage description.
func WithDescription(description string) StageOption {
	return func(s *Stage) {
		s.description = description
	}
}

// Status is the outcome of a stage in a run.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// StageResult holds the outcome of one stage.
type StageResult struct {
	Status    Status
	Attempts  int
	StartTime time.Time
	EndTime   time.Time
	Err       error
}

// Duration returns how long the stage ran, retries included.
func (r StageResult) Duration() time.Duration {
	if r.StartTime.IsZero() || r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// RunResult contains the results of a run.
type RunResult struct {
	RunID     string
	Success   bool
	StartTime time.Time
	EndTime   time.Time
	Levels    [][]string
	Stages    map[string]StageResult
	Error     error
}

// Duration returns the wall time of the run.
func (r *RunResult) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// StageError reports a stage that failed after all attempts.
type StageError struct {
	Stage    string
	Attempts int
	Err      error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed after %d attempt(s): %v", e.Stage, e.Attempts, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
