package internal

import (
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/internal/build"
	"github.com/goplus/llar-glib/recipes/glib"
)

var pkgInfoSettings settingsFlags

var packageInfoCmd = &cobra.Command{
	Use:   "package-info",
	Short: "Print what the installed package publishes to its consumers",
	Long: `Package-info prints the libraries, directories and environment GLib
publishes to packages depending on it. The package must have been built
with the same settings.`,
	Args: cobra.NoArgs,
	RunE: runPackageInfo,
}

func init() {
	packageInfoCmd.Flags().AddFlagSet(pkgInfoSettings.flagSet())
	rootCmd.AddCommand(packageInfoCmd)
}

func runPackageInfo(cmd *cobra.Command, args []string) error {
	ws, err := workspaceDir(cfg)
	if err != nil {
		return err
	}
	builder, err := build.New(build.Options{
		WorkspaceDir: ws,
		Settings:     pkgInfoSettings.resolve(cfg),
	})
	if err != nil {
		return err
	}
	pkg, err := builder.Load(glib.Name, glib.Version)
	if err != nil {
		return err
	}
	return printPackage(cmd.OutOrStdout(), pkg)
}

type packageRecord struct {
	Name     string              `yaml:"name"`
	Version  string              `yaml:"version"`
	Dir      string              `yaml:"dir"`
	Settings formula.Settings    `yaml:"settings"`
	Info     formula.PackageInfo `yaml:"info"`
}

func printPackage(w io.Writer, pkg *build.Package) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	err := enc.Encode(packageRecord{
		Name:     pkg.Name,
		Version:  pkg.Version,
		Dir:      pkg.Dir,
		Settings: pkg.Settings,
		Info:     pkg.Info,
	})
	if err != nil {
		return err
	}
	return enc.Close()
}
