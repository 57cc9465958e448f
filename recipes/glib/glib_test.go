package glib

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/internal/source"
	"github.com/goplus/llar-glib/pkgs/pkgconfig"
)

func writeScript(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755); err != nil {
		t.Fatal(err)
	}
}

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
}

// sourceArchive returns a gzipped tarball laid out like a GitHub archive of
// glib at version.
func sourceArchive(t *testing.T, version string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	files := map[string]string{
		"glib-" + version + "/autogen.sh": "#!/bin/sh\n",
		"glib-" + version + "/README":     "GLib\n",
	}
	for _, name := range []string{"glib-" + version + "/autogen.sh", "glib-" + version + "/README"} {
		body := files[name]
		if err := tw.WriteHeader(&tar.Header{Name: name, Mode: 0o755, Size: int64(len(body)), Typeflag: tar.TypeReg}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// redirect serves every download from base, keeping the file name.
type redirect struct {
	base   string
	urls   []string
	getter *source.Getter
	sha256 string
}

func (r *redirect) Download(ctx context.Context, url, dst, sha string) error {
	r.urls = append(r.urls, url)
	if r.sha256 != "" {
		sha = r.sha256
	}
	return r.getter.Download(ctx, r.base+"/"+filepath.Base(url), dst, sha)
}

func TestMetadata(t *testing.T) {
	meta := New().Metadata()
	if meta.Name != "glib" || meta.Version != "2.55.2" {
		t.Fatalf("Metadata() = %s/%s", meta.Name, meta.Version)
	}
	if meta.SHA256 != "d06830c28b0d3e8c4f1fbb6d1e359a8c76dafa0f6f2413727846e98a9d0b41aa" {
		t.Errorf("SHA256 = %s", meta.SHA256)
	}
	if !reflect.DeepEqual(meta.Exports, []string{"config.*.cache"}) {
		t.Errorf("Exports = %v", meta.Exports)
	}
	if got, want := SourceURL(Version), "https://github.com/GNOME/glib/archive/2.55.2.tar.gz"; got != want {
		t.Errorf("SourceURL() = %s, want %s", got, want)
	}
	if got, want := ArchiveName(Version), "glib-2.55.2.tar.gz"; got != want {
		t.Errorf("ArchiveName() = %s, want %s", got, want)
	}
}

func TestRequire(t *testing.T) {
	deps := New().Require(&formula.Project{Name: Name, Version: Version})
	var reqs, buildReqs []string
	for _, ref := range deps.Requires() {
		reqs = append(reqs, ref.String())
	}
	for _, ref := range deps.BuildRequires() {
		buildReqs = append(buildReqs, ref.String())
	}
	if !reflect.DeepEqual(reqs, Requires) {
		t.Errorf("Requires() = %v, want %v", reqs, Requires)
	}
	if !reflect.DeepEqual(buildReqs, BuildRequires) {
		t.Errorf("BuildRequires() = %v, want %v", buildReqs, BuildRequires)
	}
}

func TestTargetMach(t *testing.T) {
	settings := formula.Settings{Arch: "armv7"}
	t.Setenv("TARGETMACH", "")
	if got := TargetMach(settings); got != "armv7" {
		t.Errorf("TargetMach() = %q, want armv7", got)
	}
	t.Setenv("TARGETMACH", "arm-linux-gnueabihf")
	if got := TargetMach(settings); got != "arm-linux-gnueabihf" {
		t.Errorf("TargetMach() = %q, want arm-linux-gnueabihf", got)
	}
}

func TestHostIsARM(t *testing.T) {
	tests := []struct {
		arch string
		want bool
	}{
		{"armv7", true},
		{"armv8", true},
		{"x86_64", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := HostIsARM(formula.Settings{Arch: tt.arch}); got != tt.want {
			t.Errorf("HostIsARM(%q) = %v, want %v", tt.arch, got, tt.want)
		}
	}
}

func TestSystemPackages(t *testing.T) {
	tests := []struct {
		name   string
		distro string
		arch   string
		want   []string
	}{
		{"ubuntu", "ubuntu", "x86_64", []string{"autoconf", "autopoint", "automake", "autotools-dev", "libtool", "autopoint", "gtk-doc-tools"}},
		{"ubuntu 32 bit", "ubuntu", "x86", []string{"autoconf:i386", "autopoint:i386", "automake:i386", "autotools-dev:i386", "libtool:i386", "autopoint:i386", "gtk-doc-tools:i386"}},
		{"other distro", "fedora", "x86_64", nil},
		{"not linux", "", "x86_64", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SystemPackages(tt.distro, formula.Settings{Arch: tt.arch})
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SystemPackages() = %v, want %v", got, tt.want)
			}
		})
	}
}

type fakeInstaller struct {
	updateErr, installErr error
	installed             []string
}

func (f *fakeInstaller) Update(ctx context.Context) error { return f.updateErr }

func (f *fakeInstaller) Install(ctx context.Context, pkgs ...string) error {
	f.installed = append(f.installed, pkgs...)
	return f.installErr
}

func TestSystemRequire(t *testing.T) {
	tests := []struct {
		name      string
		distro    string
		inst      *fakeInstaller
		installed int
		warned    bool
	}{
		{"installs", "ubuntu", &fakeInstaller{}, 7, false},
		{"install fails", "ubuntu", &fakeInstaller{installErr: errors.New("locked")}, 7, true},
		{"update fails", "ubuntu", &fakeInstaller{updateErr: errors.New("offline")}, 0, true},
		{"skipped", "arch", &fakeInstaller{}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zap.DebugLevel)
			ctx := formula.NewContext(context.Background(), formula.Settings{Arch: "x86_64"})
			ctx.Distro = tt.distro
			ctx.Log = zap.New(core).Sugar()

			New().SystemRequire(ctx, tt.inst)

			if len(tt.inst.installed) != tt.installed {
				t.Errorf("installed %v, want %d packages", tt.inst.installed, tt.installed)
			}
			warned := logs.FilterMessage(installerWarning).Len() > 0
			if warned != tt.warned {
				t.Errorf("warned = %v, want %v", warned, tt.warned)
			}
		})
	}
}

func TestConfigureArgs(t *testing.T) {
	common := []string{
		"--quiet",
		"--without-pcre",
		"--disable-fam",
		"--disable-dependency-tracking",
		"--enable-static",
		"--enable-included-printf",
		"--enable-libmount=no",
		"--prefix=/pkg",
	}

	buildDir := t.TempDir()
	if got := ConfigureArgs(buildDir, "armv7", "/pkg"); !reflect.DeepEqual(got, common) {
		t.Errorf("ConfigureArgs() without cache = %v, want %v", got, common)
	}

	cache := filepath.Join(buildDir, "config.armv7.cache")
	if err := os.WriteFile(cache, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	got := ConfigureArgs(buildDir, "armv7", "/pkg")
	want := append([]string{"--host=armv7", "--cache-file=" + cache}, common...)
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ConfigureArgs() with cache = %v, want %v", got, want)
	}

	// A cache for another machine is ignored.
	if got := ConfigureArgs(buildDir, "x86_64", "/pkg"); !reflect.DeepEqual(got, common) {
		t.Errorf("ConfigureArgs() other mach = %v, want %v", got, common)
	}
}

func TestSource(t *testing.T) {
	archive := sourceArchive(t, Version)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/"+Version+".tar.gz" {
			http.NotFound(w, r)
			return
		}
		w.Write(archive)
	}))
	defer srv.Close()

	proj := &formula.Project{Name: Name, Version: Version, BuildDir: t.TempDir()}
	dl := &redirect{base: srv.URL, getter: &source.Getter{}, sha256: checksum(archive)}
	ctx := formula.NewContext(context.Background(), formula.Settings{})
	ctx.Downloader = dl

	if err := New().Source(ctx, proj); err != nil {
		t.Fatalf("Source() error = %v", err)
	}
	if want := []string{SourceURL(Version)}; !reflect.DeepEqual(dl.urls, want) {
		t.Errorf("downloaded %v, want %v", dl.urls, want)
	}
	if _, err := os.Stat(filepath.Join(proj.SourceDir(), "autogen.sh")); err != nil {
		t.Errorf("sources not renamed to %s: %v", proj.SourceDir(), err)
	}
	if _, err := os.Stat(filepath.Join(proj.BuildDir, ArchiveName(Version))); !os.IsNotExist(err) {
		t.Errorf("archive left behind: %v", err)
	}
	if _, err := os.Stat(filepath.Join(proj.BuildDir, "glib-"+Version)); !os.IsNotExist(err) {
		t.Errorf("versioned source dir left behind: %v", err)
	}
}

func TestSourceRejectsBadArchive(t *testing.T) {
	archive := sourceArchive(t, Version)
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr error
	}{
		{"corrupt", func(w http.ResponseWriter, r *http.Request) {
			bad := bytes.Clone(archive)
			bad[len(bad)-1] ^= 0xff
			w.Write(bad)
		}, source.ErrChecksumMismatch},
		{"truncated", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Length", "4096")
			w.Write(archive[:len(archive)/2])
		}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			proj := &formula.Project{Name: Name, Version: Version, BuildDir: t.TempDir()}
			ctx := formula.NewContext(context.Background(), formula.Settings{})
			ctx.Downloader = &redirect{base: srv.URL, getter: &source.Getter{}, sha256: checksum(archive)}

			err := New().Source(ctx, proj)
			if err == nil {
				t.Fatal("Source() succeeded, want error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Source() error = %v, want %v", err, tt.wantErr)
			}
			entries, _ := os.ReadDir(proj.BuildDir)
			if len(entries) != 0 {
				t.Errorf("build dir not empty after rejected download: %v", entries)
			}
		})
	}
}

func TestImports(t *testing.T) {
	root := t.TempDir()
	ffi := filepath.Join(root, "ffi")
	for _, name := range []string{"libffi.dylib", "libffi.a"} {
		if err := os.MkdirAll(filepath.Join(ffi, "lib"), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(ffi, "lib", name), []byte(name), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	proj := &formula.Project{Name: Name, Version: Version, BuildDir: filepath.Join(root, "build")}
	ctx := formula.NewContext(context.Background(), formula.Settings{})
	ctx.Deps["ffi"] = formula.Dependency{RootPath: ffi}
	ctx.Deps["zlib"] = formula.Dependency{RootPath: filepath.Join(root, "missing")}

	if err := New().Imports(ctx, proj); err != nil {
		t.Fatalf("Imports() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(proj.SourceDir(), "libffi.dylib")); err != nil {
		t.Errorf("libffi.dylib not imported: %v", err)
	}
	if _, err := os.Stat(filepath.Join(proj.SourceDir(), "libffi.a")); !os.IsNotExist(err) {
		t.Errorf("static library imported: %v", err)
	}
}

func TestBuild(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	log := filepath.Join(root, "commands.log")

	zlib := filepath.Join(root, "zlib")
	ffi := filepath.Join(root, "ffi")
	bin := filepath.Join(root, "bin")
	writeScript(t, filepath.Join(bin, "pkg-config"), `case "$2" in
libffi) echo "-L`+ffi+`/lib" ;;
zlib) echo "-L`+zlib+`/lib" ;;
esac
echo "pkg-config $* PKG_CONFIG_PATH=$PKG_CONFIG_PATH" >> `+log+"\n")
	writeScript(t, filepath.Join(bin, "make"), `echo "make $* LDFLAGS=$LDFLAGS CFLAGS=$CFLAGS" >> `+log+"\n")
	old := pkgconfig.Executable
	pkgconfig.Executable = filepath.Join(bin, "pkg-config")
	t.Cleanup(func() { pkgconfig.Executable = old })
	t.Setenv("PATH", bin+string(os.PathListSeparator)+os.Getenv("PATH"))
	t.Setenv("PKG_CONFIG_PATH", "")
	t.Setenv("TARGETMACH", "")

	proj := &formula.Project{
		Name:       Name,
		Version:    Version,
		BuildDir:   filepath.Join(root, "build"),
		PackageDir: filepath.Join(root, "pkg"),
	}
	writeScript(t, filepath.Join(proj.SourceDir(), "autogen.sh"),
		`echo "autogen $* ZLIB=$PKG_CONFIG_ZLIB_PREFIX" >> `+log+"\n")

	core, logs := observer.New(zap.InfoLevel)
	ctx := formula.NewContext(context.Background(), formula.Settings{Arch: "x86_64"})
	ctx.Log = zap.New(core).Sugar()
	ctx.Deps["zlib"] = formula.Dependency{RootPath: zlib}
	ctx.Deps["ffi"] = formula.Dependency{RootPath: ffi}
	ctx.Stdout, ctx.Stderr = &bytes.Buffer{}, &bytes.Buffer{}

	out := New().Build(ctx, proj)
	if errs := out.Errs(); len(errs) != 0 {
		t.Fatalf("Build() errors = %v", errs)
	}

	data, err := os.ReadFile(log)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 4 {
		t.Fatalf("commands = %q, want pkg-config twice, autogen and make", lines)
	}
	if !strings.Contains(lines[0], "--libs-only-L libffi") || !strings.Contains(lines[0], zlib+"/lib/pkgconfig") {
		t.Errorf("pkg-config = %q", lines[0])
	}
	autogen := lines[2]
	for _, want := range []string{"--enable-static", "--prefix=" + proj.PackageDir, "ZLIB=" + zlib} {
		if !strings.Contains(autogen, want) {
			t.Errorf("autogen = %q, missing %q", autogen, want)
		}
	}
	if strings.Contains(autogen, "--host") {
		t.Errorf("autogen = %q, want no --host without a config cache", autogen)
	}
	install := lines[3]
	for _, want := range []string{"make install", "-Wl,-rpath -Wl," + ffi + "/lib", "-Wl,-rpath -Wl," + zlib + "/lib", "-Wl,-rpath,@loader_path", "-O2"} {
		if !strings.Contains(install, want) {
			t.Errorf("make = %q, missing %q", install, want)
		}
	}
	if logs.FilterMessageSnippet("Configure arguments:").Len() != 1 {
		t.Errorf("configure arguments not logged")
	}
}

func TestBuildFailure(t *testing.T) {
	skipOnWindows(t)
	root := t.TempDir()
	bin := filepath.Join(root, "bin")
	writeScript(t, filepath.Join(bin, "pkg-config"), "exit 0\n")
	old := pkgconfig.Executable
	pkgconfig.Executable = filepath.Join(bin, "pkg-config")
	t.Cleanup(func() { pkgconfig.Executable = old })

	proj := &formula.Project{Name: Name, Version: Version, BuildDir: filepath.Join(root, "build"), PackageDir: filepath.Join(root, "pkg")}
	writeScript(t, filepath.Join(proj.SourceDir(), "autogen.sh"), "exit 1\n")

	ctx := formula.NewContext(context.Background(), formula.Settings{})
	ctx.Deps["zlib"] = formula.Dependency{RootPath: filepath.Join(root, "zlib")}
	ctx.Stdout, ctx.Stderr = &bytes.Buffer{}, &bytes.Buffer{}
	if errs := New().Build(ctx, proj).Errs(); len(errs) != 1 || !strings.Contains(errs[0].Error(), "autogen.sh") {
		t.Errorf("Build() errors = %v, want autogen.sh failure", errs)
	}

	// zlib is required to locate its pkg-config files.
	delete(ctx.Deps, "zlib")
	if errs := New().Build(ctx, proj).Errs(); len(errs) != 1 {
		t.Errorf("Build() without zlib errors = %v", errs)
	}
}

func TestPackageInfo(t *testing.T) {
	proj := &formula.Project{Name: Name, Version: Version, PackageDir: "/ws/glib@2.55.2"}
	first := New().PackageInfo(proj)
	second := New().PackageInfo(proj)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("PackageInfo() is not deterministic: %+v != %+v", first, second)
	}
	if !reflect.DeepEqual(first.Libs, []string{"glib"}) {
		t.Errorf("Libs = %v", first.Libs)
	}
	if got := first.Env["PKG_CONFIG_GLIB_2_0_PREFIX"]; got != proj.PackageDir {
		t.Errorf("PKG_CONFIG_GLIB_2_0_PREFIX = %q", got)
	}
	if want := []string{filepath.Join(proj.PackageDir, "lib", "pkgconfig")}; !reflect.DeepEqual(first.PkgConfigPath, want) {
		t.Errorf("PkgConfigPath = %v, want %v", first.PkgConfigPath, want)
	}
}
