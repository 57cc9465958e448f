// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Options configures an S3Cache.
type S3Options struct {
	Endpoint  string
	Region    string
	Bucket    string
	Prefix    string
	AccessKey string
	SecretKey string
	Secure    bool
}

// S3Cache is a Cache shared through an S3 compatible object store.
type S3Cache struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewS3Cache returns a cache storing archives in opts.Bucket under opts.Prefix.
func NewS3Cache(opts S3Options) (*S3Cache, error) {
	endpoint := strings.TrimSpace(opts.Endpoint)
	if endpoint == "" {
		return nil, fmt.Errorf("s3 endpoint is required")
	}
	bucket := strings.TrimSpace(opts.Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	var creds *credentials.Credentials
	if opts.AccessKey != "" || opts.SecretKey != "" {
		creds = credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, "")
	} else {
		creds = credentials.NewEnvAWS()
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  creds,
		Secure: opts.Secure,
		Region: opts.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("init s3 client: %w", err)
	}
	return &S3Cache{client: client, bucket: bucket, prefix: opts.Prefix}, nil
}

func (c *S3Cache) key(name string) string {
	return path.Join(strings.Trim(c.prefix, "/"), name)
}

func (c *S3Cache) Get(ctx context.Context, name, dst string) (bool, error) {
	key := c.key(name)
	if _, err := c.client.StatObject(ctx, c.bucket, key, minio.StatObjectOptions{}); err != nil {
		switch minio.ToErrorResponse(err).Code {
		case "NoSuchKey", "NoSuchBucket":
			return false, nil
		}
		return false, fmt.Errorf("stat s3://%s/%s: %w", c.bucket, key, err)
	}
	if err := c.client.FGetObject(ctx, c.bucket, key, dst, minio.GetObjectOptions{}); err != nil {
		return false, fmt.Errorf("get s3://%s/%s: %w", c.bucket, key, err)
	}
	return true, nil
}

func (c *S3Cache) Put(ctx context.Context, name, src string) error {
	key := c.key(name)
	_, err := c.client.FPutObject(ctx, c.bucket, key, src, minio.PutObjectOptions{
		ContentType: "application/octet-stream",
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", c.bucket, key, err)
	}
	return nil
}
