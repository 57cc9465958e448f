//go:build linux || darwin || freebsd || netbsd || openbsd

package sysdeps

import (
	"runtime"

	"golang.org/x/sys/unix"

	"github.com/goplus/llar-glib/formula"
)

// HostArch returns the machine architecture of the running kernel in
// settings form. It differs from runtime.GOARCH when, for example, an amd64
// binary runs on an arm64 host under emulation.
func HostArch() string {
	var u unix.Utsname
	if err := unix.Uname(&u); err != nil {
		return formula.ArchOf(runtime.GOARCH)
	}
	return formula.ArchOf(unix.ByteSliceToString(u.Machine[:]))
}
