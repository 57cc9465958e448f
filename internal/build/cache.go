package build

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goplus/llar-glib/formula"
)

// Workspace directory layout:
//
//	workspaceDir/
//	  <name>/                         # package-level dir (cacheDir)
//	    .cache.json                   # build cache: maps "version-settings" → buildEntry
//	    .lock
//	    build/<version>/<settings>/<build id>/   # build folder, removed after the build
//	  <name>@<version>-<settings>/    # package dir (installDir)
//	    .llar-package.json
//	    include/
//	    lib/
//	    ...
const (
	cacheFile   = ".cache.json"
	packageFile = ".llar-package.json"
)

// Package describes an installed package.
type Package struct {
	Name      string              `json:"name"`
	Version   string              `json:"version"`
	BuildID   string              `json:"build_id"`
	Settings  formula.Settings    `json:"settings"`
	Dir       string              `json:"dir"`
	Info      formula.PackageInfo `json:"info"`
	Metadata  string              `json:"metadata,omitempty"`
	BuildTime time.Time           `json:"build_time"`
}

// Dependency returns p as a resolved dependency of another package.
func (p *Package) Dependency() formula.Dependency {
	return formula.Dependency{
		Ref:      formula.Reference{Name: p.Name, Version: p.Version},
		RootPath: p.Dir,
		Info:     p.Info,
	}
}

// buildEntry contains metadata about a single successful build.
type buildEntry struct {
	BuildID   string    `json:"build_id"`
	Dir       string    `json:"dir"`
	BuildTime time.Time `json:"build_time"`
}

// buildCache maps "version-settings" keys to their build entries.
type buildCache struct {
	Cache map[string]*buildEntry `json:"cache"`
}

func cacheKey(version, settings string) string {
	return version + "-" + settings
}

func (c *buildCache) get(version, settings string) (*buildEntry, bool) {
	entry, ok := c.Cache[cacheKey(version, settings)]
	return entry, ok
}

func (c *buildCache) set(version, settings string, entry *buildEntry) {
	if c.Cache == nil {
		c.Cache = make(map[string]*buildEntry)
	}
	c.Cache[cacheKey(version, settings)] = entry
}

// cacheDir returns the package-level directory: workspaceDir/<name>.
func (b *Builder) cacheDir(name string) string {
	return filepath.Join(b.opts.WorkspaceDir, name)
}

// installDir returns the package directory: workspaceDir/<name>@<version>-<settings>.
func (b *Builder) installDir(name, version string) string {
	return filepath.Join(b.opts.WorkspaceDir, fmt.Sprintf("%s@%s-%s", name, version, b.opts.Settings.Key()))
}

// loadCache reads the cache file of a package. A missing file is an empty cache.
func (b *Builder) loadCache(name string) (*buildCache, error) {
	data, err := os.ReadFile(filepath.Join(b.cacheDir(name), cacheFile))
	if os.IsNotExist(err) {
		return &buildCache{}, nil
	}
	if err != nil {
		return nil, err
	}
	var cache buildCache
	if err := json.Unmarshal(data, &cache); err != nil {
		return nil, fmt.Errorf("%s: %w", cacheFile, err)
	}
	return &cache, nil
}

// saveCache writes the cache file of a package.
func (b *Builder) saveCache(name string, cache *buildCache) error {
	dir := b.cacheDir(name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cache, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, cacheFile), data, 0o644)
}

// ReadPackage reads the record written into an installed package directory.
func ReadPackage(dir string) (*Package, error) {
	data, err := os.ReadFile(filepath.Join(dir, packageFile))
	if err != nil {
		return nil, err
	}
	var p Package
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, packageFile), err)
	}
	return &p, nil
}

func writePackage(p *Package) error {
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(p.Dir, packageFile), data, 0o644)
}
