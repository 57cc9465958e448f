// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"errors"
	"fmt"
)

var (
	// ErrChecksumMismatch is returned when an archive does not hash to the
	// expected SHA-256.
	ErrChecksumMismatch = errors.New("checksum mismatch")
	// ErrTruncated is returned when a download ends before Content-Length bytes.
	ErrTruncated = errors.New("truncated download")
	// ErrUnsupportedArchive is returned by Unpack for unknown archive formats.
	ErrUnsupportedArchive = errors.New("unsupported archive format")
	// ErrUnsafePath is returned by Unpack for entries escaping the destination.
	ErrUnsafePath = errors.New("archive entry escapes destination")
)

// Error records a failed source operation and the package it was for.
type Error struct {
	Op      string // "fetch", "verify", "unpack", ...
	Package string
	Err     error
}

func (e *Error) Error() string {
	if e.Package == "" {
		return e.Op + ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s %s: %v", e.Op, e.Package, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
