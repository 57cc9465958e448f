package formula

import (
	"context"
	"slices"

	"github.com/qiniu/x/gsh"
)

// -----------------------------------------------------------------------------

// Metadata is the immutable description of a package recipe.
type Metadata struct {
	Name        string   `yaml:"name" json:"name"`
	Version     string   `yaml:"version" json:"version"`
	SHA256      string   `yaml:"sha256" json:"sha256"`
	URL         string   `yaml:"url,omitempty" json:"url,omitempty"`
	License     string   `yaml:"license,omitempty" json:"license,omitempty"`
	Description string   `yaml:"description,omitempty" json:"description,omitempty"`
	Exports     []string `yaml:"exports,omitempty" json:"exports,omitempty"`
}

// Installer installs build prerequisites with the host's system package tool.
type Installer interface {
	Update(ctx context.Context) error
	Install(ctx context.Context, pkgs ...string) error
}

// Downloader fetches a source archive to dst and verifies it against sha256.
type Downloader interface {
	Download(ctx context.Context, url, dst, sha256 string) error
}

// ModuleF represents the recipe of a package.
type ModuleF struct {
	gsh.App

	fOnRequire       func(proj *Project, deps *ModuleDeps)
	fOnSystemRequire func(ctx *Context, installer Installer)
	fOnSource        func(ctx *Context, proj *Project) error
	fOnImports       func(ctx *Context, proj *Project) error
	fOnBuild         func(ctx *Context, proj *Project, out *BuildResult)
	fOnPackageInfo   func(proj *Project, info *PackageInfo)

	meta Metadata
}

// New returns a recipe describing the package meta.
func New(meta Metadata) *ModuleF {
	p := &ModuleF{meta: meta}
	gsh.InitApp(&p.App)
	return p
}

// Metadata returns the recipe metadata.
func (p *ModuleF) Metadata() Metadata {
	m := p.meta
	m.Exports = slices.Clone(p.meta.Exports)
	return m
}

// Ref returns the reference of the package the recipe produces.
func (p *ModuleF) Ref() Reference {
	return Reference{Name: p.meta.Name, Version: p.meta.Version}
}

// -----------------------------------------------------------------------------

// ModuleDeps represents the dependencies of a package.
type ModuleDeps struct {
	requires      []Reference
	buildRequires []Reference
}

// Requires returns the run-time requirements.
func (p *ModuleDeps) Requires() []Reference {
	return slices.Clone(p.requires)
}

// BuildRequires returns the requirements only needed while building.
func (p *ModuleDeps) BuildRequires() []Reference {
	return slices.Clone(p.buildRequires)
}

// Require declares that the package depends on ref, in the form
// name/version@user/channel. It panics on a malformed reference.
func (p *ModuleDeps) Require(ref string) {
	p.requires = append(p.requires, MustParseReference(ref))
}

// BuildRequire declares a build-time only dependency.
func (p *ModuleDeps) BuildRequire(ref string) {
	p.buildRequires = append(p.buildRequires, MustParseReference(ref))
}

// OnRequire event is used to retrieve all direct dependencies of a package.
func (p *ModuleF) OnRequire(f func(proj *Project, deps *ModuleDeps)) {
	p.fOnRequire = f
}

// Require runs the OnRequire event.
func (p *ModuleF) Require(proj *Project) *ModuleDeps {
	deps := &ModuleDeps{}
	if p.fOnRequire != nil {
		p.fOnRequire(proj, deps)
	}
	return deps
}

// -----------------------------------------------------------------------------

// OnSystemRequire event installs host prerequisites. Failures must be handled
// by the recipe itself.
func (p *ModuleF) OnSystemRequire(f func(ctx *Context, installer Installer)) {
	p.fOnSystemRequire = f
}

// SystemRequire runs the OnSystemRequire event.
func (p *ModuleF) SystemRequire(ctx *Context, installer Installer) {
	if p.fOnSystemRequire != nil {
		p.fOnSystemRequire(ctx, installer)
	}
}

// OnSource event retrieves and unpacks the sources into proj.BuildDir.
func (p *ModuleF) OnSource(f func(ctx *Context, proj *Project) error) {
	p.fOnSource = f
}

// Source runs the OnSource event.
func (p *ModuleF) Source(ctx *Context, proj *Project) error {
	if p.fOnSource == nil {
		return nil
	}
	return p.fOnSource(ctx, proj)
}

// OnImports event copies files from dependencies into the build folder.
func (p *ModuleF) OnImports(f func(ctx *Context, proj *Project) error) {
	p.fOnImports = f
}

// Imports runs the OnImports event.
func (p *ModuleF) Imports(ctx *Context, proj *Project) error {
	if p.fOnImports == nil {
		return nil
	}
	return p.fOnImports(ctx, proj)
}

// -----------------------------------------------------------------------------

// BuildResult represents the result of building a project.
type BuildResult struct {
	errs     []error
	metadata string // build output metadata, for C/C++ it's the result of pkg-config.
}

// AddErr records a build error.
func (b *BuildResult) AddErr(err error) {
	if err != nil {
		b.errs = append(b.errs, err)
	}
}

// Errs returns all errors collected during build.
func (b *BuildResult) Errs() []error {
	return b.errs
}

// Metadata returns the build output metadata.
func (b *BuildResult) Metadata() string {
	return b.metadata
}

// SetMetadata sets the build output metadata.
func (b *BuildResult) SetMetadata(metadata string) {
	b.metadata = metadata
}

// OnBuild event is used to instruct the recipe to compile a project.
func (p *ModuleF) OnBuild(f func(ctx *Context, proj *Project, out *BuildResult)) {
	p.fOnBuild = f
}

// Build runs the OnBuild event.
func (p *ModuleF) Build(ctx *Context, proj *Project) *BuildResult {
	out := &BuildResult{}
	if p.fOnBuild != nil {
		p.fOnBuild(ctx, proj, out)
	}
	return out
}

// OnPackageInfo event publishes what downstream consumers need to use the package.
func (p *ModuleF) OnPackageInfo(f func(proj *Project, info *PackageInfo)) {
	p.fOnPackageInfo = f
}

// PackageInfo runs the OnPackageInfo event.
func (p *ModuleF) PackageInfo(proj *Project) *PackageInfo {
	info := DefaultPackageInfo()
	if p.fOnPackageInfo != nil {
		p.fOnPackageInfo(proj, info)
	}
	return info
}
