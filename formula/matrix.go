package formula

import (
	"runtime"
	"sort"
	"strings"
)

// Matrix describes the build variants of a package.
type Matrix struct {
	Require map[string][]string
	Options map[string][]string
}

// Combinations returns all cartesian product combinations of the matrix.
// Keys are sorted alphabetically, and combinations are built layer by layer.
// Require fields are joined with "-", then combined with options using "|".
func (m *Matrix) Combinations() []string {
	cartesian := func(kvs map[string][]string) []string {
		if len(kvs) == 0 {
			return nil
		}

		keys := make([]string, 0, len(kvs))
		for k := range kvs {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		result := make([]string, len(kvs[keys[0]]))
		copy(result, kvs[keys[0]])

		for i := 1; i < len(keys); i++ {
			values := kvs[keys[i]]
			next := make([]string, 0, len(result)*len(values))
			for _, prev := range result {
				for _, v := range values {
					next = append(next, prev+"-"+v)
				}
			}
			result = next
		}
		return result
	}

	requireCombos := cartesian(m.Require)
	optionsCombos := cartesian(m.Options)

	if len(requireCombos) == 0 {
		return optionsCombos
	}
	if len(optionsCombos) == 0 {
		return requireCombos
	}

	result := make([]string, 0, len(requireCombos)*len(optionsCombos))
	for _, req := range requireCombos {
		for _, opt := range optionsCombos {
			result = append(result, req+"|"+opt)
		}
	}
	return result
}

// Settings are the host and target settings a package is built for.
type Settings struct {
	OS        string `yaml:"os,omitempty" json:"os,omitempty"`
	Arch      string `yaml:"arch,omitempty" json:"arch,omitempty"`
	ArchBuild string `yaml:"arch_build,omitempty" json:"arch_build,omitempty"`
	Compiler  string `yaml:"compiler,omitempty" json:"compiler,omitempty"`
	BuildType string `yaml:"build_type,omitempty" json:"build_type,omitempty"`
}

// Get returns the named setting, or "" when it is unknown or unset.
func (s Settings) Get(key string) string {
	switch key {
	case "os":
		return s.OS
	case "arch":
		return s.Arch
	case "arch_build":
		return s.ArchBuild
	case "compiler":
		return s.Compiler
	case "build_type":
		return s.BuildType
	}
	return ""
}

// Merge returns s with every non-empty field of o applied on top.
func (s Settings) Merge(o Settings) Settings {
	if o.OS != "" {
		s.OS = o.OS
	}
	if o.Arch != "" {
		s.Arch = o.Arch
	}
	if o.ArchBuild != "" {
		s.ArchBuild = o.ArchBuild
	}
	if o.Compiler != "" {
		s.Compiler = o.Compiler
	}
	if o.BuildType != "" {
		s.BuildType = o.BuildType
	}
	return s
}

// Matrix returns the single-variant matrix selected by s.
func (s Settings) Matrix() Matrix {
	m := Matrix{
		Require: map[string][]string{},
		Options: map[string][]string{},
	}
	add := func(kvs map[string][]string, key, value string) {
		if value != "" {
			kvs[key] = []string{value}
		}
	}
	add(m.Require, "os", s.OS)
	add(m.Require, "arch", s.Arch)
	add(m.Options, "build_type", s.BuildType)
	add(m.Options, "compiler", s.Compiler)
	return m
}

// Key returns a file system safe identifier of s, used to lay out packages.
func (s Settings) Key() string {
	m := s.Matrix()
	combos := m.Combinations()
	if len(combos) == 0 {
		return "default"
	}
	return strings.ReplaceAll(combos[0], "|", "_")
}

// HostSettings returns settings describing the running host.
func HostSettings() Settings {
	arch := ArchOf(runtime.GOARCH)
	return Settings{
		OS:        OSOf(runtime.GOOS),
		Arch:      arch,
		ArchBuild: arch,
		BuildType: "Release",
	}
}

// OSOf maps a GOOS value to its settings name.
func OSOf(goos string) string {
	switch goos {
	case "linux":
		return "Linux"
	case "darwin":
		return "Macos"
	case "windows":
		return "Windows"
	case "freebsd":
		return "FreeBSD"
	}
	return goos
}

// ArchOf maps a GOARCH value or a uname machine name to its settings name.
func ArchOf(arch string) string {
	switch arch {
	case "amd64", "x86_64":
		return "x86_64"
	case "386", "i386", "i486", "i586", "i686":
		return "x86"
	case "arm64", "aarch64":
		return "armv8"
	case "arm", "armv7l":
		return "armv7"
	case "armv6l":
		return "armv6"
	}
	return arch
}
