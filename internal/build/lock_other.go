//go:build !(linux || darwin || freebsd || netbsd || openbsd || dragonfly || windows)

package build

import "os"

// lockFile only creates path; the platform has no advisory locks.
func lockFile(path string) (unlock func(), err error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	return func() { f.Close() }, nil
}
