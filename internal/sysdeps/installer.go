package sysdeps

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"go.uber.org/zap"

	"github.com/goplus/llar-glib/formula"
)

// ErrNoInstaller is returned by the installer of hosts without a supported
// package manager.
var ErrNoInstaller = errors.New("no supported system package manager")

// NewInstaller returns the package installer for d. Hosts without a
// supported package manager get an installer that always fails.
func NewInstaller(d Distro, log *zap.SugaredLogger) formula.Installer {
	if d.Is("debian") || d.Is("ubuntu") {
		return &AptInstaller{Log: log}
	}
	return unsupported{d}
}

type unsupported struct{ d Distro }

func (u unsupported) Update(ctx context.Context) error {
	return fmt.Errorf("%w on %q", ErrNoInstaller, u.d.String())
}

func (u unsupported) Install(ctx context.Context, pkgs ...string) error {
	return u.Update(ctx)
}

// AptInstaller installs packages with apt-get, through sudo when not root.
type AptInstaller struct {
	// AptGet and DpkgQuery default to the binaries in PATH.
	AptGet    string
	DpkgQuery string
	// Sudo forces or disables sudo; nil decides by effective user id.
	Sudo *bool

	Stdout io.Writer
	Stderr io.Writer
	Log    *zap.SugaredLogger
}

var _ formula.Installer = (*AptInstaller)(nil)

// Update refreshes the package lists.
func (a *AptInstaller) Update(ctx context.Context) error {
	return a.aptGet(ctx, "update")
}

// Install installs pkgs, skipping those dpkg already reports installed.
func (a *AptInstaller) Install(ctx context.Context, pkgs ...string) error {
	var missing []string
	for _, pkg := range pkgs {
		if a.installed(ctx, pkg) {
			a.log().Debugf("%s is already installed", pkg)
			continue
		}
		missing = append(missing, pkg)
	}
	if len(missing) == 0 {
		return nil
	}
	a.log().Infof("installing %s", strings.Join(missing, " "))
	return a.aptGet(ctx, append([]string{"install", "-y", "--no-install-recommends"}, missing...)...)
}

func (a *AptInstaller) installed(ctx context.Context, pkg string) bool {
	out, err := exec.CommandContext(ctx, or(a.DpkgQuery, "dpkg-query"), "-W", "-f=${Status}", pkg).Output()
	return err == nil && strings.Contains(string(out), "install ok installed")
}

func (a *AptInstaller) aptGet(ctx context.Context, args ...string) error {
	name := or(a.AptGet, "apt-get")
	if a.useSudo() {
		args = append([]string{"-E", name}, args...)
		name = "sudo"
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = append(os.Environ(), "DEBIAN_FRONTEND=noninteractive")
	cmd.Stdout = a.Stdout
	cmd.Stderr = a.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}

func (a *AptInstaller) useSudo() bool {
	if a.Sudo != nil {
		return *a.Sudo
	}
	if os.Geteuid() == 0 {
		return false
	}
	_, err := exec.LookPath("sudo")
	return err == nil
}

func (a *AptInstaller) log() *zap.SugaredLogger {
	if a.Log == nil {
		return zap.NewNop().Sugar()
	}
	return a.Log
}

func or(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
