// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
)

// Cache stores downloaded source archives by file name.
type Cache interface {
	// Get copies the archive called name to dst. It reports false when the
	// cache does not hold it.
	Get(ctx context.Context, name, dst string) (bool, error)
	// Put stores the file at src as name.
	Put(ctx context.Context, name, src string) error
}

// DirCache is a Cache backed by a local directory.
type DirCache struct {
	Dir string
}

func (c *DirCache) Get(ctx context.Context, name, dst string) (bool, error) {
	err := copyFile(filepath.Join(c.Dir, name), dst)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (c *DirCache) Put(ctx context.Context, name, src string) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	return copyFile(src, filepath.Join(c.Dir, name))
}

// Chain queries caches in order. Put stores into every cache.
type Chain []Cache

func (c Chain) Get(ctx context.Context, name, dst string) (bool, error) {
	var errs []error
	for _, cache := range c {
		ok, err := cache.Get(ctx, name, dst)
		if ok {
			return true, nil
		}
		if err != nil {
			errs = append(errs, err)
		}
	}
	return false, errors.Join(errs...)
}

func (c Chain) Put(ctx context.Context, name, src string) error {
	var errs []error
	for _, cache := range c {
		if err := cache.Put(ctx, name, src); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// copyFile copies src to dst through a temporary file in dst's directory.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
