//go:build !(linux || darwin || freebsd || netbsd || openbsd)

package sysdeps

import (
	"runtime"

	"github.com/goplus/llar-glib/formula"
)

// HostArch returns the architecture the program was built for.
func HostArch() string {
	return formula.ArchOf(runtime.GOARCH)
}
