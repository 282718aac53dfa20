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

package readers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeS3 serves ListObjectsV2 and GetObject for one bucket with path-style
// addressing.
func fakeS3(t *testing.T, bucket string, objects map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/"+bucket)
		if r.URL.Query().Get("list-type") == "2" {
			prefix := r.URL.Query().Get("prefix")
			var b strings.Builder
			b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
			b.WriteString(`<ListBucketResult xmlns="http://s3.amazonaws.com/doc/2006-03-01/">`)
			fmt.Fprintf(&b, "<Name>%s</Name><Prefix>%s</Prefix><IsTruncated>false</IsTruncated>", bucket, prefix)
			for key, body := range objects {
				if !strings.HasPrefix(key, prefix) {
					continue
				}
				fmt.Fprintf(&b, `<Contents><Key>%s</Key><LastModified>2025-06-01T12:00:00.000Z</LastModified><ETag>"etag-%s"</ETag><Size>%d</Size><StorageClass>STANDARD</StorageClass></Contents>`,
					key, key, len(body))
			}
			b.WriteString(`</ListBucketResult>`)
			w.Header().Set("Content-Type", "application/xml")
			_, _ = w.Write([]byte(b.String()))
			return
		}
		body, ok := objects[strings.TrimPrefix(path, "/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`<Error><Code>NoSuchKey</Code><Message>not found</Message></Error>`))
			return
		}
		w.Header().Set("Content-Length", fmt.Sprint(len(body)))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testS3Client(endpoint string) *s3.Client {
	return s3.New(s3.Options{
		Region:       "us-east-1",
		BaseEndpoint: aws.String(endpoint),
		UsePathStyle: true,
		Credentials:  credentials.NewStaticCredentialsProvider("test", "test", ""),
	})
}

func TestS3ReaderReadsCSVObjectsInKeyOrder(t *testing.T) {
	srv := fakeS3(t, "smart-sales", map[string]string{
		"raw/sales_2.csv":   "TransactionID,SaleAmount\n3,30.5\n",
		"raw/sales_1.csv":   "TransactionID,SaleAmount,Region\n1,10\n2,20,East\n",
		"raw/readme.txt":    "ignored",
		"other/sales_9.csv": "TransactionID\n9\n",
	})

	r, err := NewS3Reader(context.Background(),
		WithS3Bucket("smart-sales"),
		WithS3Prefix("raw/"),
		WithS3Client(testS3Client(srv.URL)),
	)
	require.NoError(t, err)
	defer r.Close()

	objects := r.Objects()
	require.Len(t, objects, 2)
	assert.Equal(t, "raw/sales_1.csv", objects[0].Key)
	assert.Equal(t, "etag-raw/sales_1.csv", objects[0].ETag)

	records := readAll(t, r)
	require.Len(t, records, 3)
	assert.Equal(t, int64(1), records[0]["TransactionID"])
	assert.Equal(t, "East", records[1]["Region"])
	assert.Equal(t, 30.5, records[2]["SaleAmount"])
	assert.Equal(t, []string{"TransactionID", "SaleAmount", "Region"}, r.Headers())

	stats := r.Stats()
	assert.Equal(t, int64(2), stats.ObjectsRead)
	assert.Equal(t, int64(3), stats.RecordsRead)
	assert.Equal(t, []string{"raw/sales_1.csv", "raw/sales_2.csv"}, stats.ProcessedFiles)
}

func TestS3ReaderSingleObjectWithoutInference(t *testing.T) {
	srv := fakeS3(t, "smart-sales", map[string]string{
		"raw/customers_data.csv": "CustomerID,Name\n1001,Alice\n",
	})

	r, err := NewS3Reader(context.Background(),
		WithS3Bucket("smart-sales"),
		WithS3Prefix("raw/customers_data.csv"),
		WithS3Client(testS3Client(srv.URL)),
		WithS3CSVOptions(WithCSVInferTypes(false)),
	)
	require.NoError(t, err)
	defer r.Close()

	records := readAll(t, r)
	require.Len(t, records, 1)
	assert.Equal(t, "1001", records[0]["CustomerID"])
}

func TestS3ReaderRequiresBucket(t *testing.T) {
	_, err := NewS3Reader(context.Background())
	var readerErr *S3ReaderError
	require.ErrorAs(t, err, &readerErr)
	assert.Equal(t, "validate_options", readerErr.Op)
}

func TestParseS3URI(t *testing.T) {
	tests := []struct {
		uri    string
		bucket string
		prefix string
		ok     bool
	}{
		{"s3://bucket/raw/data", "bucket", "raw/data", true},
		{"s3://bucket", "bucket", "", true},
		{"s3://", "", "", false},
		{"/data/raw", "", "", false},
		{"s3:///key", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			bucket, prefix, ok := ParseS3URI(tt.uri)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.bucket, bucket)
			assert.Equal(t, tt.prefix, prefix)
		})
	}
}
