// Package pkgconfig queries pkg-config and maintains pkg-config search paths.
package pkgconfig

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"slices"
	"strings"
	"unicode"
)

// Executable is the pkg-config binary that is run.
var Executable = "pkg-config"

// LibsOnlyL runs "pkg-config --libs-only-L" for every package in pkgs and
// returns the reported library directories in order, without duplicates.
// env is the environment of the pkg-config process; nil inherits ours.
func LibsOnlyL(ctx context.Context, env []string, pkgs ...string) ([]string, error) {
	var dirs []string
	for _, pkg := range pkgs {
		out, err := run(ctx, env, "--libs-only-L", pkg)
		if err != nil {
			return nil, fmt.Errorf("pkg-config --libs-only-L %s: %w", pkg, err)
		}
		for _, dir := range SplitLibDirs(out) {
			if !slices.Contains(dirs, dir) {
				dirs = append(dirs, dir)
			}
		}
	}
	return dirs, nil
}

// SplitLibDirs splits "--libs-only-L" output into directories.
func SplitLibDirs(out string) []string {
	var dirs []string
	for _, part := range strings.Split(strings.TrimSpace(out), "-L") {
		if part = strings.TrimSpace(part); part != "" {
			dirs = append(dirs, part)
		}
	}
	return dirs
}

// RpathFlags returns linker flags embedding every dir as a runtime search path.
func RpathFlags(dirs []string) string {
	flags := make([]string, 0, len(dirs))
	for _, dir := range dirs {
		flags = append(flags, "-Wl,-rpath -Wl,"+dir)
	}
	return strings.Join(flags, " ")
}

// PrefixVar returns the variable pkg-config consults to override the prefix
// of pkg, e.g. PKG_CONFIG_GLIB_2_0_PREFIX for glib-2.0.
func PrefixVar(pkg string) string {
	name := strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, pkg)
	return "PKG_CONFIG_" + name + "_PREFIX"
}

// Describe runs "pkg-config --libs --cflags" for every .pc file in dir and
// returns one "name: flags" line per package. Packages pkg-config fails on are
// skipped.
func Describe(ctx context.Context, dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if name, ok := strings.CutSuffix(entry.Name(), ".pc"); ok && !entry.IsDir() {
			names = append(names, name)
		}
	}

	env := os.Environ()
	env = append(env, "PKG_CONFIG_PATH="+JoinPath(PrependPath(SplitPath(os.Getenv("PKG_CONFIG_PATH")), dir)))

	var lines []string
	for _, name := range names {
		out, err := run(ctx, env, "--libs", "--cflags", name)
		if err != nil {
			continue
		}
		if out = strings.TrimSpace(out); out != "" {
			lines = append(lines, name+": "+out)
		}
	}
	return lines, nil
}

func run(ctx context.Context, env []string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, Executable, args...)
	cmd.Env = env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("%w: %s", err, msg)
		}
		return "", err
	}
	return string(out), nil
}

// -----------------------------------------------------------------------------

// AdjustPath converts path to the form the autotools shell expects. On
// Windows builds run under MSYS, so "C:\dir" becomes "/c/dir"; elsewhere the
// path is returned unchanged.
func AdjustPath(path string) string {
	if runtime.GOOS != "windows" {
		return path
	}
	return msysPath(path)
}

func msysPath(path string) string {
	path = strings.ReplaceAll(path, `\`, "/")
	if len(path) >= 2 && path[1] == ':' {
		path = "/" + strings.ToLower(path[:1]) + path[2:]
	}
	return path
}

// SplitPath splits a search path variable into its entries.
func SplitPath(value string) []string {
	if value == "" {
		return nil
	}
	return filepath.SplitList(value)
}

// JoinPath joins search path entries with the OS list separator.
func JoinPath(dirs []string) string {
	return strings.Join(dirs, string(os.PathListSeparator))
}

// PrependPath puts dirs in front of list, dropping later duplicates.
func PrependPath(list []string, dirs ...string) []string {
	return dedup(append(slices.Clone(dirs), list...))
}

// AppendPath adds dirs after list, dropping later duplicates.
func AppendPath(list []string, dirs ...string) []string {
	return dedup(append(slices.Clone(list), dirs...))
}

func dedup(list []string) []string {
	out := make([]string, 0, len(list))
	for _, dir := range list {
		if dir != "" && !slices.Contains(out, dir) {
			out = append(out, dir)
		}
	}
	return out
}
