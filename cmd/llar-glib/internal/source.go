package internal

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/internal/logger"
	"github.com/goplus/llar-glib/recipes/glib"
)

var sourceCmd = &cobra.Command{
	Use:   "source [dir]",
	Short: "Download and unpack the GLib sources",
	Long: `Source downloads the GLib source archive, verifies its checksum and
unpacks it into dir/glib. dir defaults to the current directory.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSource,
}

func init() {
	rootCmd.AddCommand(sourceCmd)
}

func runSource(cmd *cobra.Command, args []string) error {
	dir := "."
	if len(args) > 0 {
		dir = args[0]
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	getter, err := newGetter(cfg)
	if err != nil {
		return err
	}

	recipe := glib.New()
	meta := recipe.Metadata()
	proj := &formula.Project{Name: meta.Name, Version: meta.Version, BuildDir: dir}
	if _, err := os.Stat(proj.SourceDir()); err == nil {
		return fmt.Errorf("%s already exists", proj.SourceDir())
	}

	ctx := formula.NewContext(context.Background(), formula.HostSettings())
	ctx.Downloader = getter
	ctx.Log = logger.Logger()
	if err := recipe.Source(ctx, proj); err != nil {
		return fmt.Errorf("failed to get sources: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), proj.SourceDir())
	return nil
}
