// Package glib is the recipe building GLib, the core application building
// blocks of GNOME, with autotools.
package glib

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/qiniu/x/gsh"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/internal/source"
	"github.com/goplus/llar-glib/pkgs/buildsys/autotools"
	"github.com/goplus/llar-glib/pkgs/pkgconfig"
)

const (
	Name    = "glib"
	Version = "2.55.2"
	SHA256  = "d06830c28b0d3e8c4f1fbb6d1e359a8c76dafa0f6f2413727846e98a9d0b41aa"

	URL         = "https://github.com/vuo/conan-glib"
	License     = "https://developer.gnome.org/glib/stable/glib.html"
	Description = "Core application building blocks for GNOME libraries and applications"

	// PkgConfigName is the name of the installed pkg-config module.
	PkgConfigName = "glib-2.0"
)

// Requirements of the package.
var (
	Requires = []string{
		"ffi/3.2.1@ntc/stable",
		"zlib/1.2.11@conan/stable",
		"helpers/[>=0.2.0]@ntc/stable",
	}
	BuildRequires = []string{
		"pkg-config/0.29.2@ntc/stable",
	}
)

const installerWarning = "Could not run build requirements installer.  Required packages might be missing."

// Metadata returns the recipe metadata.
func Metadata() formula.Metadata {
	return formula.Metadata{
		Name:        Name,
		Version:     Version,
		SHA256:      SHA256,
		URL:         URL,
		License:     License,
		Description: Description,
		Exports:     []string{"config.*.cache"},
	}
}

// SourceURL returns where the sources of version are published.
func SourceURL(version string) string {
	return "https://github.com/GNOME/glib/archive/" + version + ".tar.gz"
}

// ArchiveName returns the file name the source archive of version is kept as.
func ArchiveName(version string) string {
	return "glib-" + version + ".tar.gz"
}

// TargetMach returns the autoconf host triple to configure for: TARGETMACH
// when set, the arch setting otherwise.
func TargetMach(settings formula.Settings) string {
	if mach := gsh.Getenv(os.Environ(), "TARGETMACH"); mach != "" {
		return mach
	}
	return settings.Get("arch")
}

// HostIsARM reports whether settings target an ARM architecture.
func HostIsARM(settings formula.Settings) bool {
	return strings.HasPrefix(settings.Get("arch"), "arm")
}

// SystemPackages returns the host packages autogen.sh needs on distro. Only
// Ubuntu is provisioned.
func SystemPackages(distro string, settings formula.Settings) []string {
	if distro != "ubuntu" {
		return nil
	}
	pkgs := []string{"autoconf", "autopoint", "automake", "autotools-dev", "libtool", "autopoint", "gtk-doc-tools"}
	if settings.Get("arch") == "x86" {
		for i, pkg := range pkgs {
			pkgs[i] = pkg + ":i386"
		}
	}
	return pkgs
}

// ConfigureArgs returns the arguments autogen.sh passes to configure. When
// buildDir holds an autoconf cache for targetMach, the build cross compiles
// with it.
func ConfigureArgs(buildDir, targetMach, packageDir string) []string {
	var args []string
	cacheFile := filepath.Join(buildDir, "config."+targetMach+".cache")
	if _, err := os.Stat(cacheFile); err == nil {
		args = append(args, "--host="+targetMach, "--cache-file="+cacheFile)
	}
	return append(args,
		"--quiet",
		"--without-pcre",
		"--disable-fam",
		"--disable-dependency-tracking",
		"--enable-static",
		"--enable-included-printf",
		"--enable-libmount=no",
		"--prefix="+packageDir,
	)
}

// New returns the GLib recipe.
func New() *formula.ModuleF {
	m := formula.New(Metadata())
	m.OnRequire(require)
	m.OnSystemRequire(systemRequire)
	m.OnSource(fetchSource)
	m.OnImports(imports)
	m.OnBuild(build)
	m.OnPackageInfo(packageInfo)
	return m
}

func require(proj *formula.Project, deps *formula.ModuleDeps) {
	for _, ref := range Requires {
		deps.Require(ref)
	}
	for _, ref := range BuildRequires {
		deps.BuildRequire(ref)
	}
}

func systemRequire(ctx *formula.Context, installer formula.Installer) {
	pkgs := SystemPackages(ctx.Distro, ctx.Settings)
	if len(pkgs) == 0 {
		return
	}
	err := installer.Update(ctx.Context())
	if err == nil {
		err = installer.Install(ctx.Context(), pkgs...)
	}
	if err != nil {
		ctx.Log.Warn(installerWarning)
		ctx.Log.Debugf("installer: %v", err)
	}
}

func fetchSource(ctx *formula.Context, proj *formula.Project) error {
	meta := Metadata()
	archive := filepath.Join(proj.BuildDir, ArchiveName(proj.Version))

	dl := ctx.Downloader
	if dl == nil {
		dl = &source.Getter{Log: ctx.Log}
	}
	if err := dl.Download(ctx.Context(), SourceURL(proj.Version), archive, meta.SHA256); err != nil {
		return err
	}
	if err := source.Unpack(archive, proj.BuildDir); err != nil {
		return err
	}
	if err := os.Rename(filepath.Join(proj.BuildDir, "glib-"+proj.Version), proj.SourceDir()); err != nil {
		return err
	}
	return os.Remove(archive)
}

// imports copies the shared libraries of the dependencies next to the
// sources, where the build tools run from.
func imports(ctx *formula.Context, proj *formula.Project) error {
	for _, name := range ctx.DepNames() {
		for _, dir := range ctx.Deps[name].LibDirs() {
			libs, err := filepath.Glob(filepath.Join(dir, "*.dylib"))
			if err != nil {
				return err
			}
			for _, lib := range libs {
				if err := copyFile(lib, filepath.Join(proj.SourceDir(), filepath.Base(lib))); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func build(ctx *formula.Context, proj *formula.Project, out *formula.BuildResult) {
	log := ctx.Log
	a := autotools.New(ctx, proj)
	a.Flags = append(a.Flags, "-O2")
	if runtime.GOOS == "darwin" {
		a.Flags = append(a.Flags, "-mmacosx-version-min=10.10")
	}
	a.LinkFlags = append(a.LinkFlags, "-Wl,-rpath,@loader_path", "-Wl,-rpath,@loader_path/../..")

	zlib, ok := ctx.Dep("zlib")
	if !ok {
		out.AddErr(fmt.Errorf("glib: zlib is not resolved"))
		return
	}
	extra := map[string]string{
		"PKG_CONFIG_ZLIB_PREFIX": pkgconfig.AdjustPath(zlib.RootPath),
	}
	a.Env("PKG_CONFIG_ZLIB_PREFIX", extra["PKG_CONFIG_ZLIB_PREFIX"])
	a.PrependPath("PKG_CONFIG_PATH", pkgconfig.AdjustPath(zlib.PkgConfigDir()))

	// LDFLAGS from the flag lists alone do not reach the install target.
	libPaths, err := pkgconfig.LibsOnlyL(ctx.Context(), a.Environ(), "libffi", "zlib")
	if err != nil {
		out.AddErr(err)
		return
	}
	extra["LDFLAGS"] = pkgconfig.RpathFlags(libPaths)
	a.Env("LDFLAGS", extra["LDFLAGS"])

	log.Infof("Environment:\n%s", listEnv(os.Environ()))
	log.Infof("Additional environment:\n%s", listMap(extra, false))
	log.Infof("Additional pkg-config environment:\n%s - PKG_CONFIG_PATH:\n  - %s",
		listMap(extra, true), strings.Join(pkgconfig.SplitPath(lookup(a.Environ(), "PKG_CONFIG_PATH")), "\n  - "))
	log.Infof("Additional Library Paths:\n - %s", strings.Join(a.LibraryPaths, "\n - "))
	log.Infof("Additional Linker Flags:\n - %s", strings.Join(a.LinkFlags, "\n - "))
	log.Infof("Additional Linker Flags in Environment:\n - %s", extra["LDFLAGS"])

	args := ConfigureArgs(proj.BuildDir, TargetMach(ctx.Settings), proj.PackageDir)
	log.Infof("Configure arguments: %s", strings.Join(args, " "))

	if err := a.Autogen(args...); err != nil {
		out.AddErr(fmt.Errorf("autogen.sh: %w", err))
		return
	}
	if err := a.Install(); err != nil {
		out.AddErr(fmt.Errorf("make install: %w", err))
	}
}

func packageInfo(proj *formula.Project, info *formula.PackageInfo) {
	// Listed explicitly: the static and shared builds share a base name.
	info.Libs = []string{"glib"}
	info.SetEnv(pkgconfig.PrefixVar(PkgConfigName), proj.PackageDir)
	info.AppendPkgConfigPath(filepath.Join(proj.PackageDir, "lib", "pkgconfig"))
}

func listEnv(env []string) string {
	env = append([]string(nil), env...)
	sort.Strings(env)
	var b strings.Builder
	for _, kv := range env {
		k, v, _ := strings.Cut(kv, "=")
		fmt.Fprintf(&b, " - %s = %s\n", k, v)
	}
	return b.String()
}

// listMap lists the pkg-config variables of m, or everything else.
func listMap(m map[string]string, pkgConfig bool) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if strings.Contains(k, "PKG_") == pkgConfig && k != "PKG_CONFIG_PATH" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, " - %s = %s\n", k, m[k])
	}
	return b.String()
}

func lookup(env []string, key string) string {
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			return v
		}
	}
	return ""
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o755)
}
