// Copyright 2024 The llar Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package source

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/goplus/llar-glib/formula"
)

// Getter retrieves verified source archives, preferring a cache over the
// network.
type Getter struct {
	Fetcher *Fetcher
	Cache   Cache // optional
	Log     *zap.SugaredLogger
}

var _ formula.Downloader = (*Getter)(nil)

// Download places the archive published at url in dst and checks it hashes to
// sha256. Archives from the cache are verified too; a corrupt cached copy is
// replaced by a fresh download. dst is removed when verification fails.
func (g *Getter) Download(ctx context.Context, url, dst, sha256 string) error {
	log := g.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	name := filepath.Base(dst)

	if g.Cache != nil {
		hit, err := g.Cache.Get(ctx, name, dst)
		switch {
		case err != nil:
			log.Warnf("source cache lookup for %s failed: %v", name, err)
		case hit:
			err := Verify(dst, sha256)
			if err == nil {
				log.Infof("using cached %s", name)
				return nil
			}
			log.Warnf("discarding cached %s: %v", name, err)
			os.Remove(dst)
		}
	}

	fetcher := g.Fetcher
	if fetcher == nil {
		fetcher = &Fetcher{}
	}
	log.Infof("downloading %s", url)
	if err := fetcher.Fetch(ctx, url, dst); err != nil {
		return err
	}
	if err := Verify(dst, sha256); err != nil {
		os.Remove(dst)
		return err
	}

	if g.Cache != nil {
		if err := g.Cache.Put(ctx, name, dst); err != nil {
			log.Warnf("could not store %s in source cache: %v", name, err)
		}
	}
	return nil
}
