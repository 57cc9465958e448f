package internal

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/internal/build"
	"github.com/goplus/llar-glib/internal/config"
	"github.com/goplus/llar-glib/internal/logger"
	"github.com/goplus/llar-glib/internal/sysdeps"
	"github.com/goplus/llar-glib/recipes/glib"
)

var (
	buildDeps         []string
	buildDepsFile     string
	buildExportsDir   string
	buildForce        bool
	buildKeepBuildDir bool
	buildNoSystem     bool
	buildOutput       string
	buildSettings     settingsFlags
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build and install GLib into the workspace",
	Long: `Build downloads, builds and installs GLib into the workspace. The
installed packages of its requirements are given with --dep, --deps-file or
the deps section of the config file.`,
	Example: `  llar-glib build --dep ffi=/opt/ffi --dep zlib/1.2.11@conan/stable=/opt/zlib
  llar-glib build --deps-file deps.yaml -o glib.zip`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	flags := buildCmd.Flags()
	flags.StringArrayVar(&buildDeps, "dep", nil, "Installed requirement as name=path or reference=path (repeatable)")
	flags.StringVar(&buildDepsFile, "deps-file", "", "YAML file mapping requirements to installed packages")
	flags.StringVar(&buildExportsDir, "exports-dir", ".", "Directory holding exported files such as config.<arch>.cache")
	flags.BoolVarP(&buildForce, "force", "f", false, "Rebuild even if the package is cached")
	flags.BoolVar(&buildKeepBuildDir, "keep-build-dir", false, "Keep the build folder")
	flags.BoolVar(&buildNoSystem, "no-system-requirements", false, "Do not install system packages")
	flags.StringVarP(&buildOutput, "output", "o", "", "Output path (directory or .zip file)")
	flags.AddFlagSet(buildSettings.flagSet())
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	deps, err := collectDeps(cfg, buildDepsFile, buildDeps)
	if err != nil {
		return err
	}
	ws, err := workspaceDir(cfg)
	if err != nil {
		return fmt.Errorf("failed to get workspace dir: %w", err)
	}
	getter, err := newGetter(cfg)
	if err != nil {
		return err
	}
	exportsDir, err := filepath.Abs(buildExportsDir)
	if err != nil {
		return err
	}
	// Resolve output path to absolute before build (build may change cwd)
	if buildOutput != "" {
		if buildOutput, err = filepath.Abs(buildOutput); err != nil {
			return fmt.Errorf("failed to resolve output path: %w", err)
		}
	}

	opts := build.Options{
		WorkspaceDir: ws,
		Settings:     buildSettings.resolve(cfg),
		Deps:         deps,
		ExportsDir:   exportsDir,
		Downloader:   getter,
		Force:        buildForce,
		KeepBuildDir: buildKeepBuildDir,
		Log:          log,
	}
	if !verbose && !cfg.Verbose {
		opts.Stdout, opts.Stderr = io.Discard, io.Discard
	}
	if !buildNoSystem {
		distro, err := sysdeps.DetectDistro()
		if err != nil {
			log.Warnf("%v", err)
		}
		opts.Distro = distro.ID
		opts.Installer = sysdeps.NewInstaller(distro, log)
	}

	builder, err := build.New(opts)
	if err != nil {
		return fmt.Errorf("failed to create builder: %w", err)
	}
	result, err := builder.Build(ctx, glib.New())
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, result.Dir)
	if result.Metadata != "" {
		fmt.Fprintln(out, result.Metadata)
	}
	if buildOutput != "" {
		if err := outputResult(result.Dir, buildOutput); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

// collectDeps merges the configured requirements: config file first, then
// the deps file, then --dep flags.
func collectDeps(c *config.Config, depsFile string, flags []string) (map[string]formula.Dependency, error) {
	sets := []map[string]config.Dep{c.Deps}
	if depsFile != "" {
		fileDeps, err := config.LoadDeps(depsFile)
		if err != nil {
			return nil, err
		}
		sets = append(sets, fileDeps)
	}
	flagDeps := make(map[string]config.Dep, len(flags))
	for _, f := range flags {
		name, dep, err := config.ParseDepFlag(f)
		if err != nil {
			return nil, err
		}
		if dep.Path, err = filepath.Abs(dep.Path); err != nil {
			return nil, err
		}
		flagDeps[name] = dep
	}
	return dependencies(append(sets, flagDeps)...)
}

// outputResult writes the build output to dest.
// If dest ends with ".zip", creates a zip archive; otherwise copies the directory.
func outputResult(srcDir, dest string) error {
	if strings.HasSuffix(dest, ".zip") {
		return zipDir(srcDir, dest)
	}
	return copyDir(srcDir, dest)
}

// copyDir copies srcDir to dest, recreating symbolic links.
func copyDir(srcDir, dest string) error {
	return filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		switch {
		case info.IsDir():
			return os.MkdirAll(target, 0o755)
		case info.Mode()&os.ModeSymlink != 0:
			link, err := os.Readlink(path)
			if err != nil {
				return err
			}
			return os.Symlink(link, target)
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(dst, src); err != nil {
			dst.Close()
			return err
		}
		return dst.Close()
	})
}

// zipDir creates a zip archive at dest from the contents of srcDir.
// Symbolic links, such as versioned shared libraries, are stored as links.
func zipDir(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		header.Method = zip.Deflate

		writer, err := w.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.Mode()&os.ModeSymlink != 0 {
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			_, err = io.WriteString(writer, target)
			return err
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}
	return f.Close()
}
