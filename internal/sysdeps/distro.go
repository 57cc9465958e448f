// Package sysdeps detects the host system and installs build prerequisites
// with its package manager.
package sysdeps

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"runtime"
	"slices"
	"strings"
)

// OsReleaseFile is the file DetectDistro reads.
var OsReleaseFile = "/etc/os-release"

// Distro describes a Linux distribution as reported by os-release(5).
type Distro struct {
	ID      string   // "ubuntu", "fedora", ...
	IDLike  []string // related distributions, e.g. ["debian"]
	Name    string
	Version string
}

// Is reports whether d is id or derives from it.
func (d Distro) Is(id string) bool {
	return d.ID == id || slices.Contains(d.IDLike, id)
}

func (d Distro) String() string {
	if d.Name == "" {
		return d.ID
	}
	return strings.TrimSpace(d.Name + " " + d.Version)
}

// DetectDistro reads OsReleaseFile. On systems other than Linux it returns
// the zero Distro.
func DetectDistro() (Distro, error) {
	if runtime.GOOS != "linux" {
		return Distro{}, nil
	}
	f, err := os.Open(OsReleaseFile)
	if err != nil {
		return Distro{}, fmt.Errorf("detect distribution: %w", err)
	}
	defer f.Close()
	return ParseOSRelease(f)
}

// ParseOSRelease parses the KEY=value lines of an os-release file.
func ParseOSRelease(r io.Reader) (Distro, error) {
	var d Distro
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		value = strings.Trim(strings.TrimSpace(value), `"'`)
		switch strings.TrimSpace(key) {
		case "ID":
			d.ID = strings.ToLower(value)
		case "ID_LIKE":
			d.IDLike = strings.Fields(strings.ToLower(value))
		case "NAME":
			d.Name = value
		case "VERSION_ID":
			d.Version = value
		}
	}
	if err := scanner.Err(); err != nil {
		return d, fmt.Errorf("read os-release: %w", err)
	}
	return d, nil
}
