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

// Package output resolves where prepared datasets are written and read
// back: a local directory or an S3 bucket prefix, in CSV, line-delimited
// JSON or Parquet.
package output

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/aaronlmathis/smartsales/core"
	"github.com/aaronlmathis/smartsales/readers"
	"github.com/aaronlmathis/smartsales/writers"
)

// Format is a supported dataset encoding.
type Format string

const (
	FormatCSV     Format = "csv"
	FormatJSON    Format = "json"
	FormatParquet Format = "parquet"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatJSON, FormatParquet:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q", s)
}

// FileName returns the file name of dataset stem in format f.
func FileName(stem string, f Format) string {
	return stem + "." + string(f)
}

// Location creates sinks for datasets and reads them back.
type Location interface {
	// Create opens a sink for dataset stem. columns fixes the column order
	// for CSV and Parquet; nil means the sorted keys of the first record.
	Create(ctx context.Context, stem string, f Format, columns []string) (core.DataSink, error)
	// Open reads dataset stem. CSV cells are returned as text.
	Open(ctx context.Context, stem string, f Format) (core.DataSource, error)
	// URI names the dataset for logs.
	URI(stem string, f Format) string
}

// New returns an S3Location for "s3://bucket/prefix" URIs and a
// FileLocation otherwise.
func New(ctx context.Context, uri string, cfg readers.S3Config) (Location, error) {
	bucket, prefix, ok := readers.ParseS3URI(uri)
	if !ok {
		return FileLocation{Dir: uri}, nil
	}
	client, err := readers.NewS3Client(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("s3 client for %s: %w", uri, err)
	}
	return S3Location{Bucket: bucket, Prefix: prefix, Client: client}, nil
}

// FileLocation keeps datasets in a local directory.
type FileLocation struct {
	Dir string
}

func (l FileLocation) path(stem string, f Format) string {
	return filepath.Join(l.Dir, FileName(stem, f))
}

// URI implements Location.
func (l FileLocation) URI(stem string, f Format) string {
	return l.path(stem, f)
}

// Create implements Location. The directory is created when missing.
func (l FileLocation) Create(ctx context.Context, stem string, f Format, columns []string) (core.DataSink, error) {
	p := l.path(stem, f)
	if f == FormatParquet {
		return writers.NewParquetFileWriter(p, writers.WithFieldOrder(columns))
	}
	if l.Dir != "" {
		if err := os.MkdirAll(l.Dir, 0755); err != nil {
			return nil, fmt.Errorf("create %s: %w", l.Dir, err)
		}
	}
	file, err := os.Create(p)
	if err != nil {
		return nil, err
	}
	return newSink(file, f, columns)
}

// Open implements Location.
func (l FileLocation) Open(ctx context.Context, stem string, f Format) (core.DataSource, error) {
	p := l.path(stem, f)
	if f == FormatParquet {
		return readers.NewParquetReader(p)
	}
	file, err := os.Open(p)
	if err != nil {
		return nil, err
	}
	return newSource(file, f)
}

// S3Location keeps datasets under a bucket prefix. Objects are buffered in
// memory and uploaded when the sink is closed.
type S3Location struct {
	Bucket string
	Prefix string
	Client *s3.Client
}

func (l S3Location) key(stem string, f Format) string {
	return path.Join(l.Prefix, FileName(stem, f))
}

// URI implements Location.
func (l S3Location) URI(stem string, f Format) string {
	return "s3://" + l.Bucket + "/" + l.key(stem, f)
}

// Create implements Location.
func (l S3Location) Create(ctx context.Context, stem string, f Format, columns []string) (core.DataSink, error) {
	if l.Client == nil {
		return nil, fmt.Errorf("s3 location %s: no client", l.Bucket)
	}
	return newSink(&s3WriteCloser{
		ctx:    ctx,
		client: l.Client,
		bucket: l.Bucket,
		key:    l.key(stem, f),
	}, f, columns)
}

// Open implements Location. Parquet objects are staged in a temporary file
// that is removed on Close.
func (l S3Location) Open(ctx context.Context, stem string, f Format) (core.DataSource, error) {
	if l.Client == nil {
		return nil, fmt.Errorf("s3 location %s: no client", l.Bucket)
	}
	key := l.key(stem, f)
	obj, err := l.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(l.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", l.Bucket, key, err)
	}
	if f != FormatParquet {
		return newSource(obj.Body, f)
	}

	defer obj.Body.Close()
	tmp, err := os.CreateTemp("", "smartsales-*.parquet")
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(tmp, obj.Body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return nil, err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	r, err := readers.NewParquetReader(tmp.Name())
	if err != nil {
		os.Remove(tmp.Name())
		return nil, err
	}
	return &tempSource{ParquetReader: r, name: tmp.Name()}, nil
}

func newSink(w io.WriteCloser, f Format, columns []string) (core.DataSink, error) {
	switch f {
	case FormatCSV:
		return writers.NewCSVWriter(w, writers.WithHeaders(columns))
	case FormatJSON:
		return writers.NewJSONWriter(w), nil
	case FormatParquet:
		return writers.NewParquetWriter(w, writers.WithFieldOrder(columns))
	}
	w.Close()
	return nil, fmt.Errorf("unsupported output format %q", f)
}

func newSource(r io.ReadCloser, f Format) (core.DataSource, error) {
	switch f {
	case FormatCSV:
		return readers.NewCSVReader(r, readers.WithCSVInferTypes(false))
	case FormatJSON:
		return readers.NewJSONReader(r), nil
	}
	r.Close()
	return nil, fmt.Errorf("unsupported input format %q", f)
}

type s3WriteCloser struct {
	ctx    context.Context
	client *s3.Client
	bucket string
	key    string
	buf    bytes.Buffer
	closed bool
}

func (s *s3WriteCloser) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	return s.buf.Write(p)
}

func (s *s3WriteCloser) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	_, err := s.client.PutObject(s.ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(s.buf.Bytes()),
		ContentLength: aws.Int64(int64(s.buf.Len())),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.bucket, s.key, err)
	}
	return nil
}

type tempSource struct {
	*readers.ParquetReader
	name string
}

func (t *tempSource) Close() error {
	err := t.ParquetReader.Close()
	if rerr := os.Remove(t.name); err == nil {
		err = rerr
	}
	return err
}
