package internal

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/internal/config"
	"github.com/goplus/llar-glib/internal/env"
	"github.com/goplus/llar-glib/internal/logger"
	"github.com/goplus/llar-glib/internal/source"
	"github.com/goplus/llar-glib/internal/sysdeps"
)

// settingsFlags are shared by the commands that depend on build settings.
type settingsFlags struct {
	formula.Settings
}

func (f *settingsFlags) flagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("settings", pflag.ContinueOnError)
	fs.StringVar(&f.OS, "os", "", "Target operating system (default host)")
	fs.StringVar(&f.Arch, "arch", "", "Target architecture (default host)")
	fs.StringVar(&f.Compiler, "compiler", "", "Compiler")
	fs.StringVar(&f.BuildType, "build-type", "", "Build type: Release or Debug (default Release)")
	return fs
}

// resolve returns the host settings overlaid with the config file and then
// the command line.
func (f *settingsFlags) resolve(c *config.Config) formula.Settings {
	s := formula.HostSettings()
	s.Arch = sysdeps.HostArch()
	s.ArchBuild = s.Arch
	return s.Merge(c.Settings).Merge(f.Settings)
}

func workspaceDir(c *config.Config) (string, error) {
	if c.WorkspaceDir != "" {
		if err := os.MkdirAll(c.WorkspaceDir, 0o755); err != nil {
			return "", err
		}
		return c.WorkspaceDir, nil
	}
	return env.WorkspaceDir()
}

// newGetter returns the downloader of source archives: a local directory
// cache, then the shared S3 cache if configured, then the network.
func newGetter(c *config.Config) (*source.Getter, error) {
	g := &source.Getter{
		Fetcher: &source.Fetcher{Progress: os.Stderr},
		Log:     logger.Logger(),
	}
	if c.SourceCache.Disabled {
		return g, nil
	}
	dir := c.SourceCache.Dir
	if dir == "" {
		var err error
		if dir, err = env.SourceCacheDir(); err != nil {
			return nil, err
		}
	}
	chain := source.Chain{&source.DirCache{Dir: dir}}
	if s3 := c.SourceCache.S3; s3 != nil {
		remote, err := source.NewS3Cache(source.S3Options{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			Bucket:    s3.Bucket,
			Prefix:    s3.Prefix,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Secure:    s3.Secure,
		})
		if err != nil {
			return nil, err
		}
		chain = append(chain, remote)
	}
	g.Cache = chain
	return g, nil
}

// dependencies converts configured packages into resolved dependencies.
// Later maps override earlier ones.
func dependencies(sets ...map[string]config.Dep) (map[string]formula.Dependency, error) {
	deps := make(map[string]formula.Dependency)
	for _, set := range sets {
		for name, d := range set {
			dep := formula.Dependency{RootPath: d.Path}
			if d.Ref != "" {
				ref, err := formula.ParseReference(d.Ref)
				if err != nil {
					return nil, fmt.Errorf("dependency %s: %w", name, err)
				}
				dep.Ref = ref
			}
			if d.Info != nil {
				dep.Info = *d.Info
			}
			deps[name] = dep
		}
	}
	return deps, nil
}
