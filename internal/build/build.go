package build

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/pkgs/pkgconfig"
)

var (
	// ErrUnresolvedDependency is returned when a requirement has no
	// installed package.
	ErrUnresolvedDependency = errors.New("unresolved dependency")
	// ErrVersionMismatch is returned when the installed package does not
	// satisfy the requirement.
	ErrVersionMismatch = errors.New("dependency version mismatch")
	// ErrNotBuilt is returned by Load for packages missing from the workspace.
	ErrNotBuilt = errors.New("package not built")
)

// Options configure a Builder.
type Options struct {
	// WorkspaceDir holds build folders and installed packages.
	WorkspaceDir string
	Settings     formula.Settings
	// Deps maps requirement names to installed packages. A zero Ref version
	// means the installed version is unknown and any version is accepted.
	Deps map[string]formula.Dependency
	// ExportsDir holds the files the recipe exports, e.g. config caches.
	ExportsDir string

	Downloader formula.Downloader
	// Installer installs system packages; nil skips system requirements.
	Installer formula.Installer
	Distro    string

	// Force rebuilds even when the package is cached.
	Force bool
	// KeepBuildDir keeps the build folder for inspection.
	KeepBuildDir bool

	Stdout io.Writer
	Stderr io.Writer
	Log    *zap.SugaredLogger
}

// Builder runs recipes in a workspace.
type Builder struct {
	opts Options
}

// Result is the outcome of Build.
type Result struct {
	Package
	// Cached reports that the package was reused without building.
	Cached bool
}

// New returns a Builder for opts.
func New(opts Options) (*Builder, error) {
	if opts.WorkspaceDir == "" {
		return nil, errors.New("build: workspace dir is required")
	}
	dir, err := filepath.Abs(opts.WorkspaceDir)
	if err != nil {
		return nil, err
	}
	opts.WorkspaceDir = dir
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	return &Builder{opts: opts}, nil
}

// Build runs every phase of recipe and installs the package into the
// workspace. A package already built for the same version and settings is
// reused unless Force is set.
func (b *Builder) Build(ctx context.Context, recipe *formula.ModuleF) (*Result, error) {
	meta := recipe.Metadata()
	log := b.opts.Log.With("package", meta.Name+"/"+meta.Version)
	settingsKey := b.opts.Settings.Key()

	proj := &formula.Project{
		Name:       meta.Name,
		Version:    meta.Version,
		ExportsDir: b.opts.ExportsDir,
		PackageDir: b.installDir(meta.Name, meta.Version),
	}

	deps, err := b.resolve(recipe.Require(proj), log)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", meta.Name, err)
	}

	cacheDir := b.cacheDir(meta.Name)
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, err
	}
	unlock, err := lockFile(filepath.Join(cacheDir, ".lock"))
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Check the cache after acquiring the lock, another process may have built it.
	cache, err := b.loadCache(meta.Name)
	if err != nil {
		log.Warnf("ignoring build cache: %v", err)
		cache = &buildCache{}
	}
	if entry, ok := cache.get(meta.Version, settingsKey); ok && !b.opts.Force {
		if pkg, err := ReadPackage(entry.Dir); err == nil {
			log.Infof("using cached build %s", entry.BuildID)
			return &Result{Package: *pkg, Cached: true}, nil
		}
	}

	buildID := uuid.NewString()
	proj.BuildDir = filepath.Join(cacheDir, "build", meta.Version, settingsKey, buildID)
	if err := os.MkdirAll(proj.BuildDir, 0o755); err != nil {
		return nil, err
	}
	if !b.opts.KeepBuildDir {
		defer os.RemoveAll(proj.BuildDir)
	}
	// A previous build stays in place until this one succeeds.
	restore, discard, err := setAside(proj.PackageDir)
	if err != nil {
		return nil, err
	}
	installed := false
	defer func() {
		if installed {
			discard()
			return
		}
		if err := restore(); err != nil {
			log.Warnf("could not restore previous package: %v", err)
		}
	}()
	if err := os.MkdirAll(proj.PackageDir, 0o755); err != nil {
		return nil, err
	}
	if err := copyExports(b.opts.ExportsDir, meta.Exports, proj.BuildDir); err != nil {
		return nil, fmt.Errorf("copy exports: %w", err)
	}

	// Save environment before the build and restore it after.
	savedEnv := os.Environ()
	defer func() {
		os.Clearenv()
		for _, e := range savedEnv {
			if k, v, ok := strings.Cut(e, "="); ok {
				os.Setenv(k, v)
			}
		}
	}()
	applyDepsEnv(deps)

	fctx := formula.NewContext(ctx, b.opts.Settings)
	fctx.Distro = b.opts.Distro
	fctx.Deps = deps
	fctx.Downloader = b.opts.Downloader
	fctx.Log = log
	fctx.Stdout, fctx.Stderr = b.opts.Stdout, b.opts.Stderr

	info, metadata, err := b.run(fctx, recipe, proj)
	if err != nil {
		return nil, fmt.Errorf("build %s: %w", meta.Name, err)
	}

	pkg := Package{
		Name:      meta.Name,
		Version:   meta.Version,
		BuildID:   buildID,
		Settings:  b.opts.Settings,
		Dir:       proj.PackageDir,
		Info:      *info,
		Metadata:  metadata,
		BuildTime: time.Now(),
	}
	if err := writePackage(&pkg); err != nil {
		return nil, err
	}
	cache.set(meta.Version, settingsKey, &buildEntry{BuildID: buildID, Dir: pkg.Dir, BuildTime: pkg.BuildTime})
	if err := b.saveCache(meta.Name, cache); err != nil {
		return nil, err
	}
	installed = true
	log.Infof("installed to %s", pkg.Dir)
	return &Result{Package: pkg}, nil
}

func (b *Builder) run(ctx *formula.Context, recipe *formula.ModuleF, proj *formula.Project) (*formula.PackageInfo, string, error) {
	if b.opts.Installer != nil {
		recipe.SystemRequire(ctx, b.opts.Installer)
	}
	if err := recipe.Source(ctx, proj); err != nil {
		return nil, "", fmt.Errorf("source: %w", err)
	}
	if err := recipe.Imports(ctx, proj); err != nil {
		return nil, "", fmt.Errorf("imports: %w", err)
	}
	out := recipe.Build(ctx, proj)
	if err := errors.Join(out.Errs()...); err != nil {
		return nil, "", err
	}
	if err := ctx.Context().Err(); err != nil {
		return nil, "", err
	}

	metadata := out.Metadata()
	if metadata == "" {
		lines, err := pkgconfig.Describe(ctx.Context(), filepath.Join(proj.PackageDir, "lib", "pkgconfig"))
		if err == nil {
			metadata = strings.Join(lines, "\n")
		}
	}
	return recipe.PackageInfo(proj), metadata, nil
}

// resolve matches the declared requirements against the configured packages.
func (b *Builder) resolve(declared *formula.ModuleDeps, log *zap.SugaredLogger) (map[string]formula.Dependency, error) {
	deps := make(map[string]formula.Dependency)
	check := func(req formula.Reference, optional bool) error {
		dep, ok := b.opts.Deps[req.Name]
		if !ok {
			if optional {
				log.Warnf("build requirement %s is not provided, using the host's", req)
				return nil
			}
			return fmt.Errorf("%w: %s", ErrUnresolvedDependency, req)
		}
		if dep.Ref.Version != "" && !req.Matches(dep.Ref.Version) {
			return fmt.Errorf("%w: %s required, %s provided", ErrVersionMismatch, req, dep.Ref.Version)
		}
		if dep.Ref.Version == "" {
			log.Debugf("version of %s at %s is unknown, assuming it satisfies %s", req.Name, dep.RootPath, req.Version)
		}
		if dep.Ref.Name == "" {
			dep.Ref.Name = req.Name
		}
		if dep.Ref.User == "" {
			dep.Ref.User, dep.Ref.Channel = req.User, req.Channel
		}
		if isZero(dep.Info) {
			if pkg, err := ReadPackage(dep.RootPath); err == nil {
				dep.Info = pkg.Info
			}
		}
		deps[req.Name] = dep
		return nil
	}
	for _, req := range declared.Requires() {
		if err := check(req, false); err != nil {
			return nil, err
		}
	}
	for _, req := range declared.BuildRequires() {
		if err := check(req, true); err != nil {
			return nil, err
		}
	}
	return deps, nil
}

// Load returns the package built for version with the builder's settings.
func (b *Builder) Load(name, version string) (*Package, error) {
	cache, err := b.loadCache(name)
	if err != nil {
		return nil, err
	}
	entry, ok := cache.get(version, b.opts.Settings.Key())
	if !ok {
		return nil, fmt.Errorf("%w: %s/%s (%s)", ErrNotBuilt, name, version, b.opts.Settings.Key())
	}
	return ReadPackage(entry.Dir)
}

// applyDepsEnv exports what the dependencies publish to the process.
func applyDepsEnv(deps map[string]formula.Dependency) {
	var pcPath []string
	for _, dep := range deps {
		for k, v := range dep.Info.Env {
			os.Setenv(k, v)
		}
		pcPath = append(pcPath, dep.Info.PkgConfigPath...)
	}
	if len(pcPath) > 0 {
		cur := pkgconfig.SplitPath(os.Getenv("PKG_CONFIG_PATH"))
		os.Setenv("PKG_CONFIG_PATH", pkgconfig.JoinPath(pkgconfig.PrependPath(cur, pcPath...)))
	}
}

// setAside moves an existing package directory to dir.old. restore removes
// whatever was built in dir and moves the old package back; discard deletes it.
func setAside(dir string) (restore, discard func() error, err error) {
	old := dir + ".old"
	if err := os.RemoveAll(old); err != nil {
		return nil, nil, err
	}
	if err := os.Rename(dir, old); err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, err
		}
		restore = func() error { return os.RemoveAll(dir) }
		discard = func() error { return nil }
		return restore, discard, nil
	}
	restore = func() error {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
		return os.Rename(old, dir)
	}
	discard = func() error { return os.RemoveAll(old) }
	return restore, discard, nil
}

// copyExports copies the files in dir matching patterns into dst.
func copyExports(dir string, patterns []string, dst string) error {
	if dir == "" {
		return nil
	}
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return err
		}
		for _, src := range matches {
			if fi, err := os.Stat(src); err != nil || fi.IsDir() {
				continue
			}
			data, err := os.ReadFile(src)
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dst, filepath.Base(src)), data, 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

func isZero(info formula.PackageInfo) bool {
	return len(info.Libs) == 0 && len(info.IncludeDirs) == 0 && len(info.LibDirs) == 0 &&
		len(info.BinDirs) == 0 && len(info.Env) == 0 && len(info.PkgConfigPath) == 0
}
