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

// Package config loads SmartSales settings from defaults, a YAML file,
// SMARTSALES_ environment variables and command-line flags.
package config

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/aaronlmathis/smartsales/readers"
)

// Defaults for every key.
const (
	DefaultRawDir       = "data/raw"
	DefaultPreparedDir  = "data/prepared"
	DefaultCleanedDir   = "data/cleaned"
	DefaultReferenceDir = "data/reference"
	DefaultFormat       = "csv"
	DefaultDriver       = "sqlite"
	DefaultDSN          = "data/dw/smart_sales.db"
	DefaultBatchSize    = 500
	DefaultFKMode       = "warn"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
	DefaultParallelism  = 1
)

var (
	validFormats = []string{"csv", "json", "parquet"}
	validDrivers = []string{"sqlite", "postgres"}
	validFKModes = []string{"warn", "strict"}
)

// Config holds all SmartSales configuration options.
type Config struct {
	RawDir       string          `koanf:"raw_dir"`
	PreparedDir  string          `koanf:"prepared_dir"`
	CleanedDir   string          `koanf:"cleaned_dir"`
	ReferenceDir string          `koanf:"reference_dir"`
	Parallelism  int             `koanf:"parallelism"`
	Output       OutputConfig    `koanf:"output"`
	Warehouse    WarehouseConfig `koanf:"warehouse"`
	S3           S3Config        `koanf:"s3"`
	Log          LogConfig       `koanf:"log"`
}

// OutputConfig selects the prepared dataset format.
type OutputConfig struct {
	Format string `koanf:"format"`
}

// WarehouseConfig holds the warehouse connection and load settings.
type WarehouseConfig struct {
	Driver    string `koanf:"driver"`
	DSN       string `koanf:"dsn"`
	BatchSize int    `koanf:"batch_size"`
	FKMode    string `koanf:"fk_mode"`
}

// S3Config holds settings used when a directory is an s3:// URI.
type S3Config struct {
	Region    string `koanf:"region"`
	Endpoint  string `koanf:"endpoint"`
	Profile   string `koanf:"profile"`
	PathStyle bool   `koanf:"path_style"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.RawDir == "" {
		return fmt.Errorf("raw_dir is required")
	}
	if c.PreparedDir == "" {
		return fmt.Errorf("prepared_dir is required")
	}
	if !slices.Contains(validFormats, strings.ToLower(c.Output.Format)) {
		return fmt.Errorf("unknown output format %q (want one of %s)", c.Output.Format, strings.Join(validFormats, ", "))
	}
	if !slices.Contains(validDrivers, strings.ToLower(c.Warehouse.Driver)) {
		return fmt.Errorf("unknown warehouse driver %q (want one of %s)", c.Warehouse.Driver, strings.Join(validDrivers, ", "))
	}
	if c.Warehouse.DSN == "" {
		return fmt.Errorf("warehouse.dsn is required")
	}
	if c.Warehouse.BatchSize <= 0 {
		return fmt.Errorf("warehouse.batch_size must be positive, got %d", c.Warehouse.BatchSize)
	}
	if !slices.Contains(validFKModes, strings.ToLower(c.Warehouse.FKMode)) {
		return fmt.Errorf("unknown warehouse.fk_mode %q (want one of %s)", c.Warehouse.FKMode, strings.Join(validFKModes, ", "))
	}
	if c.Parallelism <= 0 {
		return fmt.Errorf("parallelism must be positive, got %d", c.Parallelism)
	}
	return nil
}

// S3Options converts the s3 section for the S3 reader and output.
func (c *Config) S3Options() readers.S3Config {
	return readers.S3Config{
		Region:         c.S3.Region,
		Profile:        c.S3.Profile,
		EndpointURL:    c.S3.Endpoint,
		ForcePathStyle: c.S3.PathStyle,
	}
}

type configKey struct{}

// WithContext stores cfg in ctx.
func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey{}, cfg)
}

// FromContext returns the config stored by WithContext, or nil.
func FromContext(ctx context.Context) *Config {
	cfg, _ := ctx.Value(configKey{}).(*Config)
	return cfg
}
