package internal

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/internal/build"
	"github.com/goplus/llar-glib/internal/config"
	"github.com/goplus/llar-glib/internal/source"
)

func TestCollectDeps(t *testing.T) {
	dir := t.TempDir()
	depsFile := filepath.Join(dir, "deps.yaml")
	content := `ffi: ffi-root
zlib:
  ref: zlib/1.2.11@conan/stable
  path: /opt/zlib
`
	if err := os.WriteFile(depsFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	c := &config.Config{Deps: map[string]config.Dep{
		"ffi":     {Path: "/config/ffi"},
		"helpers": {Path: "/config/helpers"},
	}}

	deps, err := collectDeps(c, depsFile, []string{"zlib/1.2.12@conan/stable=/flag/zlib"})
	if err != nil {
		t.Fatalf("collectDeps() error = %v", err)
	}
	tests := []struct {
		name, root, version string
	}{
		{"ffi", filepath.Join(dir, "ffi-root"), ""},
		{"helpers", "/config/helpers", ""},
		{"zlib", "/flag/zlib", "1.2.12"},
	}
	if len(deps) != len(tests) {
		t.Errorf("collectDeps() = %v, want %d deps", deps, len(tests))
	}
	for _, tt := range tests {
		dep, ok := deps[tt.name]
		if !ok {
			t.Errorf("missing %s", tt.name)
			continue
		}
		if dep.RootPath != tt.root || dep.Ref.Version != tt.version {
			t.Errorf("%s = %s@%q, want %s@%q", tt.name, dep.RootPath, dep.Ref.Version, tt.root, tt.version)
		}
	}
}

func TestCollectDepsErrors(t *testing.T) {
	c := &config.Config{}
	if _, err := collectDeps(c, "", []string{"zlib"}); err == nil {
		t.Error("collectDeps() accepted a dependency without path")
	}
	if _, err := collectDeps(c, filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Error("collectDeps() accepted a missing deps file")
	}
	c.Deps = map[string]config.Dep{"zlib": {Ref: "zlib@bad", Path: "/opt/zlib"}}
	if _, err := collectDeps(c, "", nil); err == nil {
		t.Error("collectDeps() accepted an invalid reference")
	}
}

func TestDependenciesInfo(t *testing.T) {
	info := &formula.PackageInfo{Libs: []string{"z"}}
	deps, err := dependencies(map[string]config.Dep{"zlib": {Path: "/opt/zlib", Info: info}})
	if err != nil {
		t.Fatal(err)
	}
	if got := deps["zlib"].Info.Libs; len(got) != 1 || got[0] != "z" {
		t.Errorf("Info.Libs = %v", got)
	}
}

func TestSettingsResolve(t *testing.T) {
	var f settingsFlags
	fs := f.flagSet()
	if err := fs.Parse([]string{"--arch", "armv7", "--build-type", "Debug"}); err != nil {
		t.Fatal(err)
	}
	c := &config.Config{Settings: formula.Settings{OS: "Linux", Arch: "x86", Compiler: "gcc"}}
	got := f.resolve(c)
	if got.Arch != "armv7" || got.BuildType != "Debug" {
		t.Errorf("flags not applied: %+v", got)
	}
	if got.OS != "Linux" || got.Compiler != "gcc" {
		t.Errorf("config not applied: %+v", got)
	}
	if got.ArchBuild == "" {
		t.Errorf("ArchBuild not detected: %+v", got)
	}
}

func TestNewGetter(t *testing.T) {
	t.Setenv("LLAR_WORKDIR", t.TempDir())

	g, err := newGetter(&config.Config{SourceCache: config.SourceCache{Disabled: true}})
	if err != nil {
		t.Fatal(err)
	}
	if g.Cache != nil {
		t.Errorf("disabled cache = %v", g.Cache)
	}

	dir := t.TempDir()
	g, err = newGetter(&config.Config{SourceCache: config.SourceCache{Dir: dir}})
	if err != nil {
		t.Fatal(err)
	}
	chain, ok := g.Cache.(source.Chain)
	if !ok || len(chain) != 1 {
		t.Fatalf("Cache = %#v, want a single directory cache", g.Cache)
	}
	if dc, ok := chain[0].(*source.DirCache); !ok || dc.Dir != dir {
		t.Errorf("Cache[0] = %#v", chain[0])
	}

	g, err = newGetter(&config.Config{SourceCache: config.SourceCache{S3: &config.S3{
		Endpoint: "localhost:9000", Bucket: "sources", AccessKey: "a", SecretKey: "b",
	}}})
	if err != nil {
		t.Fatal(err)
	}
	if chain := g.Cache.(source.Chain); len(chain) != 2 {
		t.Errorf("Cache = %#v, want directory and s3 caches", chain)
	}

	if _, err := newGetter(&config.Config{SourceCache: config.SourceCache{S3: &config.S3{Bucket: "sources"}}}); err == nil {
		t.Error("newGetter() accepted s3 without endpoint")
	}
}

func TestWorkspaceDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "ws")
	got, err := workspaceDir(&config.Config{WorkspaceDir: dir})
	if err != nil || got != dir {
		t.Fatalf("workspaceDir() = %q, %v", got, err)
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("workspace not created: %v", err)
	}

	t.Setenv("LLAR_WORKDIR", t.TempDir())
	got, err = workspaceDir(&config.Config{})
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Base(got) != "workspace" {
		t.Errorf("workspaceDir() = %q", got)
	}
}

func newPackageDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"lib/libglib-2.0.so.0":      "elf",
		"lib/pkgconfig/glib-2.0.pc": "Name: GLib\n",
		"include/glib-2.0/glib.h":   "#pragma once\n",
		"share/aclocal/glib-2.0.m4": "dnl\n",
		".llar-package.json":        "{}",
	}
	for name, body := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if runtime.GOOS != "windows" {
		if err := os.Symlink("libglib-2.0.so.0", filepath.Join(dir, "lib", "libglib-2.0.so")); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestOutputResultDir(t *testing.T) {
	src := newPackageDir(t)
	dest := filepath.Join(t.TempDir(), "out")
	if err := outputResult(src, dest); err != nil {
		t.Fatalf("outputResult() error = %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "include", "glib-2.0", "glib.h"))
	if err != nil || string(data) != "#pragma once\n" {
		t.Errorf("glib.h = %q, %v", data, err)
	}
	if runtime.GOOS != "windows" {
		link, err := os.Readlink(filepath.Join(dest, "lib", "libglib-2.0.so"))
		if err != nil || link != "libglib-2.0.so.0" {
			t.Errorf("libglib-2.0.so -> %q, %v", link, err)
		}
	}
}

func TestOutputResultZip(t *testing.T) {
	src := newPackageDir(t)
	dest := filepath.Join(t.TempDir(), "glib.zip")
	if err := outputResult(src, dest); err != nil {
		t.Fatalf("outputResult() error = %v", err)
	}
	r, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()

	files := map[string]*zip.File{}
	for _, f := range r.File {
		files[f.Name] = f
	}
	for _, name := range []string{"lib/libglib-2.0.so.0", "lib/pkgconfig/glib-2.0.pc", "include/glib-2.0/glib.h"} {
		if _, ok := files[name]; !ok {
			t.Errorf("zip misses %s", name)
		}
	}
	if runtime.GOOS == "windows" {
		return
	}
	link, ok := files["lib/libglib-2.0.so"]
	if !ok {
		t.Fatal("zip misses lib/libglib-2.0.so")
	}
	if link.Mode()&os.ModeSymlink == 0 {
		t.Errorf("lib/libglib-2.0.so mode = %v, want symlink", link.Mode())
	}
	rc, err := link.Open()
	if err != nil {
		t.Fatal(err)
	}
	defer rc.Close()
	target, _ := io.ReadAll(rc)
	if string(target) != "libglib-2.0.so.0" {
		t.Errorf("link target = %q", target)
	}
}

func TestPrintInfo(t *testing.T) {
	var buf bytes.Buffer
	if err := printInfo(&buf); err != nil {
		t.Fatal(err)
	}
	var got map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not yaml: %v\n%s", err, buf.String())
	}
	if got["name"] != "glib" || got["version"] != "2.55.2" {
		t.Errorf("name/version = %v/%v", got["name"], got["version"])
	}
	if got["source_url"] != "https://github.com/GNOME/glib/archive/2.55.2.tar.gz" {
		t.Errorf("source_url = %v", got["source_url"])
	}
	if reqs, _ := got["requires"].([]any); len(reqs) != 3 {
		t.Errorf("requires = %v", got["requires"])
	}
	if !strings.Contains(buf.String(), "pkg-config/0.29.2@ntc/stable") {
		t.Errorf("build requirement missing:\n%s", buf.String())
	}
}

func TestPrintPackage(t *testing.T) {
	pkg := &build.Package{
		Name:    "glib",
		Version: "2.55.2",
		Dir:     "/ws/glib@2.55.2-x86_64-Linux_Release",
		Info: formula.PackageInfo{
			Libs: []string{"glib"},
			Env:  map[string]string{"PKG_CONFIG_GLIB_2_0_PREFIX": "/ws/glib@2.55.2-x86_64-Linux_Release"},
		},
	}
	var buf bytes.Buffer
	if err := printPackage(&buf, pkg); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"name: glib", "libs:", "PKG_CONFIG_GLIB_2_0_PREFIX:"} {
		if !strings.Contains(out, want) {
			t.Errorf("output misses %q:\n%s", want, out)
		}
	}
}
