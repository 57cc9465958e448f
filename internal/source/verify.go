// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// Sum returns the hex encoded SHA-256 of the file at path.
func Sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Verify checks that the file at path hashes to want. A mismatch is reported
// as an *Error wrapping ErrChecksumMismatch.
func Verify(path, want string) error {
	got, err := Sum(path)
	if err != nil {
		return &Error{Op: "verify", Package: path, Err: err}
	}
	if !strings.EqualFold(got, strings.TrimSpace(want)) {
		return &Error{Op: "verify", Package: path, Err: fmt.Errorf("%w: want %s, got %s", ErrChecksumMismatch, want, got)}
	}
	return nil
}
