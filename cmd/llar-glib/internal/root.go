package internal

import (
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/goplus/llar-glib/internal/config"
	"github.com/goplus/llar-glib/internal/env"
	"github.com/goplus/llar-glib/internal/logger"
)

var (
	configFile string
	verbose    bool

	// cfg is loaded before any command runs.
	cfg = &config.Config{}
)

var rootCmd = &cobra.Command{
	Use:   "llar-glib",
	Short: "llar-glib builds GLib",
	Long: `llar-glib downloads, builds and packages GLib, the core application
building blocks for GNOME libraries and applications.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Config file (default <config dir>/llar/glib.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		log.Fatal(err)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	path := configFile
	if path == "" {
		var err error
		if path, err = env.ConfigFile(); err != nil {
			return fmt.Errorf("failed to locate config: %w", err)
		}
	}
	c, err := config.Load(path)
	if err != nil {
		return err
	}
	cfg = c

	z, err := logger.New(verbose || cfg.Verbose)
	if err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	logger.Init(z)
	return nil
}
