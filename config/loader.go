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

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable read. A double underscore
// separates nesting levels: SMARTSALES_WAREHOUSE__DSN sets warehouse.dsn.
const EnvPrefix = "SMARTSALES_"

// flagKeys maps flags whose names differ from their config keys.
var flagKeys = map[string]string{
	"format":     "output.format",
	"driver":     "warehouse.driver",
	"dsn":        "warehouse.dsn",
	"batch-size": "warehouse.batch_size",
	"fk-mode":    "warehouse.fk_mode",
	"log-level":  "log.level",
	"log-format": "log.format",
}

// findConfigFile finds the config file to use.
// Priority: explicit path > smartsales.yaml > smartsales.yml
func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	for _, name := range []string{"smartsales.yaml", "smartsales.yml"} {
		if _, err := os.Stat(name); err == nil {
			return name
		}
	}
	return ""
}

// Load loads configuration from defaults, file, environment variables and
// flags, and validates it.
// Precedence (highest to lowest): flags > env vars > config file > defaults
func Load(cfgFile string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(map[string]interface{}{
		"raw_dir":              DefaultRawDir,
		"prepared_dir":         DefaultPreparedDir,
		"cleaned_dir":          DefaultCleanedDir,
		"reference_dir":        DefaultReferenceDir,
		"parallelism":          DefaultParallelism,
		"output.format":        DefaultFormat,
		"warehouse.driver":     DefaultDriver,
		"warehouse.dsn":        DefaultDSN,
		"warehouse.batch_size": DefaultBatchSize,
		"warehouse.fk_mode":    DefaultFKMode,
		"s3.path_style":        false,
		"log.level":            DefaultLogLevel,
		"log.format":           DefaultLogFormat,
	}, "."), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(cfgFile); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// SMARTSALES_WAREHOUSE__BATCH_SIZE -> warehouse.batch_size
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		return strings.ReplaceAll(key, "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load env vars: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, func(f *pflag.Flag) (string, interface{}) {
			// Only load flags that were explicitly set
			if !f.Changed {
				return "", nil
			}
			if key, ok := flagKeys[f.Name]; ok {
				return key, posflag.FlagVal(flags, f)
			}
			if strings.Contains(f.Name, "-dir") || f.Name == "parallelism" {
				return strings.ReplaceAll(f.Name, "-", "_"), posflag.FlagVal(flags, f)
			}
			// Flags that are not config keys (e.g. --config) are ignored.
			return "", nil
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	cfg.Output.Format = strings.ToLower(cfg.Output.Format)
	cfg.Warehouse.Driver = strings.ToLower(cfg.Warehouse.Driver)
	cfg.Warehouse.FKMode = strings.ToLower(cfg.Warehouse.FKMode)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}
