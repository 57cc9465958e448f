// Package autotools wraps the classic autogen/configure/make/make-install workflow.
package autotools

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"sort"
	"strings"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/pkgs/buildsys"
	"github.com/goplus/llar-glib/pkgs/pkgconfig"
)

// flagVars are the variables whose values accumulate instead of being replaced.
var flagVars = []string{"CFLAGS", "CXXFLAGS", "CPPFLAGS", "LDFLAGS", "LIBS"}

// AutoTools drives Autotools-style builds. The exported lists are rendered
// into the standard variables by Vars.
type AutoTools struct {
	ctx        *formula.Context
	sourceDir  string
	buildDir   string
	installDir string
	env        map[string]string

	Flags        []string // CFLAGS and CXXFLAGS
	Defines      []string // -D, without the prefix
	IncludePaths []string // -I
	LibraryPaths []string // -L
	LinkFlags    []string // LDFLAGS
	Libs         []string // -l, without the prefix
}

var _ buildsys.BuildSystem = (*AutoTools)(nil)

// New returns an AutoTools building proj in place, installing to
// proj.PackageDir. Every dependency resolved in ctx is used.
func New(ctx *formula.Context, proj *formula.Project) *AutoTools {
	a := &AutoTools{
		ctx: ctx,
		env: map[string]string{},
	}
	if proj != nil {
		a.sourceDir = proj.SourceDir()
		a.installDir = proj.PackageDir
	}
	if ctx != nil {
		for _, name := range ctx.DepNames() {
			a.Use(ctx.Deps[name])
		}
	}
	return a
}

// Source overrides the source directory.
func (a *AutoTools) Source(dir string) { a.sourceDir = dir }

// SourceDir returns the directory sources are built in.
func (a *AutoTools) SourceDir() string { return a.sourceDir }

// InstallDir overrides the install prefix.
func (a *AutoTools) InstallDir(dir string) { a.installDir = dir }

// BuildDir sets an out-of-tree build directory for Configure, Build and Install.
func (a *AutoTools) BuildDir(dir string) { a.buildDir = dir }

// Env sets key=value for every command spawned later.
func (a *AutoTools) Env(key, value string) {
	a.env[key] = value
}

// PrependPath puts dirs in front of the search path variable key. The
// current process value is used as the base the first time.
func (a *AutoTools) PrependPath(key string, dirs ...string) {
	cur, ok := a.env[key]
	if !ok {
		cur = os.Getenv(key)
	}
	a.env[key] = pkgconfig.JoinPath(pkgconfig.PrependPath(pkgconfig.SplitPath(cur), dirs...))
}

// Use adds the include, library, pkg-config and executable paths of a
// resolved dependency.
func (a *AutoTools) Use(dep formula.Dependency) {
	for _, dir := range dep.IncludeDirs() {
		if exists(dir) && !slices.Contains(a.IncludePaths, dir) {
			a.IncludePaths = append(a.IncludePaths, dir)
		}
	}
	for _, dir := range dep.LibDirs() {
		if exists(dir) && !slices.Contains(a.LibraryPaths, dir) {
			a.LibraryPaths = append(a.LibraryPaths, dir)
		}
	}
	if dir := dep.PkgConfigDir(); exists(dir) {
		a.PrependPath("PKG_CONFIG_PATH", dir)
	}
	for _, dir := range dep.BinDirs() {
		if exists(dir) {
			a.PrependPath("PATH", dir)
		}
	}
}

// Vars returns the compiler and linker variables derived from the flag lists.
// Empty variables are omitted.
func (a *AutoTools) Vars() map[string]string {
	cflags := slices.Clone(a.Flags)
	for _, d := range a.Defines {
		cflags = append(cflags, "-D"+d)
	}
	var cppflags, ldflags, libs []string
	for _, dir := range a.IncludePaths {
		cppflags = append(cppflags, "-I"+pkgconfig.AdjustPath(dir))
	}
	for _, dir := range a.LibraryPaths {
		ldflags = append(ldflags, "-L"+pkgconfig.AdjustPath(dir))
	}
	ldflags = append(ldflags, a.LinkFlags...)
	for _, lib := range a.Libs {
		libs = append(libs, "-l"+lib)
	}

	vars := map[string]string{}
	set := func(key string, values []string) {
		if len(values) > 0 {
			vars[key] = strings.Join(values, " ")
		}
	}
	set("CFLAGS", cflags)
	set("CXXFLAGS", cflags)
	set("CPPFLAGS", cppflags)
	set("LDFLAGS", ldflags)
	set("LIBS", libs)
	return vars
}

// Environ returns the environment commands run with: the process
// environment overlaid with values set by Env and Use, then Vars.
func (a *AutoTools) Environ() []string {
	return mergeEnv(os.Environ(), a.env, a.Vars())
}

// Autogen runs ./autogen.sh in the source directory. autogen.sh runs
// configure itself, so args are configure arguments. On Windows the script
// runs through the MSYS bash.
func (a *AutoTools) Autogen(args ...string) error {
	if runtime.GOOS == "windows" {
		return a.run(a.sourceDir, "bash", append([]string{"./autogen.sh"}, args...))
	}
	return a.run(a.sourceDir, "./autogen.sh", args)
}

// Configure runs <sourceDir>/configure inside the build directory.
// --prefix is prepended automatically when installDir is set.
func (a *AutoTools) Configure(args ...string) error {
	dir := a.workDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	exe := "./configure"
	if dir != a.sourceDir {
		exe = filepath.Join(a.sourceDir, "configure")
	}
	flags := make([]string, 0, 1+len(args))
	if a.installDir != "" {
		flags = append(flags, "--prefix="+pkgconfig.AdjustPath(a.installDir))
	}
	return a.run(dir, exe, append(flags, args...))
}

// Build runs "make" with optional extra arguments.
func (a *AutoTools) Build(args ...string) error {
	return a.run(a.workDir(), "make", args)
}

// Install runs "make install" with optional extra arguments appended.
func (a *AutoTools) Install(args ...string) error {
	return a.run(a.workDir(), "make", append([]string{"install"}, args...))
}

// OutputDir returns installDir if set, otherwise the build directory.
func (a *AutoTools) OutputDir() string {
	if a.installDir != "" {
		return a.installDir
	}
	return a.workDir()
}

func (a *AutoTools) workDir() string {
	if a.buildDir != "" {
		return a.buildDir
	}
	if a.sourceDir != "" {
		return a.sourceDir
	}
	return "."
}

func (a *AutoTools) run(dir, name string, args []string) error {
	cmd := exec.CommandContext(a.ctx.Context(), name, args...)
	cmd.Dir = dir
	cmd.Env = a.Environ()
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if a.ctx != nil {
		if a.ctx.Stdout != nil {
			cmd.Stdout = a.ctx.Stdout
		}
		if a.ctx.Stderr != nil {
			cmd.Stderr = a.ctx.Stderr
		}
		if a.ctx.Log != nil {
			a.ctx.Log.Debugf("run %s %s in %s", name, strings.Join(args, " "), dir)
		}
	}
	return cmd.Run()
}

// mergeEnv returns base overlaid with every layer in order. Flag variables
// accumulate space-separated; anything else is replaced. The result is sorted.
func mergeEnv(base []string, layers ...map[string]string) []string {
	envMap := make(map[string]string, len(base))
	for _, kv := range base {
		if k, v, ok := strings.Cut(kv, "="); ok {
			envMap[k] = v
		}
	}
	for _, layer := range layers {
		for k, v := range layer {
			if cur := envMap[k]; cur != "" && slices.Contains(flagVars, k) {
				v = strings.TrimSpace(cur + " " + v)
			}
			envMap[k] = v
		}
	}
	keys := make([]string, 0, len(envMap))
	for k := range envMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+envMap[k])
	}
	return out
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
