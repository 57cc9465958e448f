// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Fetcher downloads files over HTTP(S). Downloads are written next to the
// destination and renamed into place once complete.
type Fetcher struct {
	// Client is used for requests; nil means http.DefaultClient.
	Client *http.Client
	// Progress receives a progress bar while downloading; nil disables it.
	Progress io.Writer
}

// Fetch downloads url to dst. It fails on non-2xx statuses and on bodies
// shorter or longer than the announced Content-Length.
func (f *Fetcher) Fetch(ctx context.Context, url, dst string) (err error) {
	name := path.Base(url)
	defer func() {
		if err != nil {
			err = &Error{Op: "fetch", Package: url, Err: err}
		}
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	part := dst + ".part"
	out, err := os.Create(part)
	if err != nil {
		return err
	}
	defer os.Remove(part)

	var w io.Writer = out
	if f.Progress != nil {
		bar := progressbar.NewOptions64(resp.ContentLength,
			progressbar.OptionSetWriter(f.Progress),
			progressbar.OptionSetDescription("downloading "+name),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionOnCompletion(func() { fmt.Fprintln(f.Progress) }),
		)
		defer bar.Finish()
		w = io.MultiWriter(out, bar)
	}

	n, err := io.Copy(w, resp.Body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("%w: got %d of %d bytes", ErrTruncated, n, resp.ContentLength)
	}
	return os.Rename(part, dst)
}
