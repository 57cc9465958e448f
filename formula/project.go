package formula

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"slices"

	"go.uber.org/zap"
)

// -----------------------------------------------------------------------------

// Project represents a package being built.
type Project struct {
	Name    string
	Version string

	// ExportsDir holds files shipped alongside the recipe.
	ExportsDir string
	// BuildDir is the build folder, created fresh for every build.
	BuildDir string
	// PackageDir is where the package is installed.
	PackageDir string
}

// SourceDir returns the directory the sources are unpacked to.
func (p *Project) SourceDir() string {
	return filepath.Join(p.BuildDir, p.Name)
}

// -----------------------------------------------------------------------------

// PackageInfo is what a package publishes to its consumers. Directories are
// relative to the package root.
type PackageInfo struct {
	Libs          []string          `json:"libs,omitempty" yaml:"libs,omitempty"`
	IncludeDirs   []string          `json:"include_dirs,omitempty" yaml:"include_dirs,omitempty"`
	LibDirs       []string          `json:"lib_dirs,omitempty" yaml:"lib_dirs,omitempty"`
	BinDirs       []string          `json:"bin_dirs,omitempty" yaml:"bin_dirs,omitempty"`
	Env           map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	PkgConfigPath []string          `json:"pkg_config_path,omitempty" yaml:"pkg_config_path,omitempty"`
}

// DefaultPackageInfo returns the layout of a package installed with a
// standard prefix.
func DefaultPackageInfo() *PackageInfo {
	return &PackageInfo{
		IncludeDirs: []string{"include"},
		LibDirs:     []string{"lib"},
		BinDirs:     []string{"bin"},
	}
}

// SetEnv publishes an environment variable.
func (p *PackageInfo) SetEnv(key, value string) {
	if p.Env == nil {
		p.Env = make(map[string]string)
	}
	p.Env[key] = value
}

// AppendPkgConfigPath appends dir to the published pkg-config search path.
func (p *PackageInfo) AppendPkgConfigPath(dir string) {
	if !slices.Contains(p.PkgConfigPath, dir) {
		p.PkgConfigPath = append(p.PkgConfigPath, dir)
	}
}

// -----------------------------------------------------------------------------

// Dependency is a requirement resolved to an installed package.
type Dependency struct {
	Ref      Reference
	RootPath string
	Info     PackageInfo
}

func (d Dependency) dirs(rel []string, def string) []string {
	if len(rel) == 0 {
		rel = []string{def}
	}
	out := make([]string, 0, len(rel))
	for _, r := range rel {
		if filepath.IsAbs(r) {
			out = append(out, r)
		} else {
			out = append(out, filepath.Join(d.RootPath, r))
		}
	}
	return out
}

// IncludeDirs returns the absolute include directories of the dependency.
func (d Dependency) IncludeDirs() []string { return d.dirs(d.Info.IncludeDirs, "include") }

// LibDirs returns the absolute library directories of the dependency.
func (d Dependency) LibDirs() []string { return d.dirs(d.Info.LibDirs, "lib") }

// BinDirs returns the absolute executable directories of the dependency.
func (d Dependency) BinDirs() []string { return d.dirs(d.Info.BinDirs, "bin") }

// PkgConfigDir returns the pkg-config metadata directory of the dependency.
func (d Dependency) PkgConfigDir() string {
	return filepath.Join(d.RootPath, "lib", "pkgconfig")
}

// -----------------------------------------------------------------------------

// Context carries everything a recipe event may need from the runner.
type Context struct {
	ctx context.Context

	Settings Settings
	// Distro is the ID of the host Linux distribution, "" elsewhere.
	Distro string
	// Deps maps requirement names to their resolved packages.
	Deps map[string]Dependency

	Downloader Downloader
	Log        *zap.SugaredLogger
	Stdout     io.Writer
	Stderr     io.Writer
}

// NewContext returns a Context bound to ctx.
func NewContext(ctx context.Context, settings Settings) *Context {
	return &Context{
		ctx:      ctx,
		Settings: settings,
		Deps:     make(map[string]Dependency),
		Log:      zap.NewNop().Sugar(),
		Stdout:   os.Stdout,
		Stderr:   os.Stderr,
	}
}

// Context returns the context.Context of the running build.
func (c *Context) Context() context.Context {
	if c == nil || c.ctx == nil {
		return context.Background()
	}
	return c.ctx
}

// Dep returns the resolved dependency named name.
func (c *Context) Dep(name string) (Dependency, bool) {
	d, ok := c.Deps[name]
	return d, ok
}

// DepNames returns the names of the resolved dependencies in sorted order.
func (c *Context) DepNames() []string {
	names := make([]string, 0, len(c.Deps))
	for name := range c.Deps {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
