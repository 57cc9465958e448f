package internal

import (
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/goplus/llar-glib/formula"
	"github.com/goplus/llar-glib/recipes/glib"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print the recipe metadata",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return printInfo(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

type recipeInfo struct {
	formula.Metadata `yaml:",inline"`
	SourceURL        string   `yaml:"source_url"`
	Requires         []string `yaml:"requires"`
	BuildRequires    []string `yaml:"build_requires"`
}

func printInfo(w io.Writer) error {
	recipe := glib.New()
	meta := recipe.Metadata()
	deps := recipe.Require(&formula.Project{Name: meta.Name, Version: meta.Version})
	info := recipeInfo{Metadata: meta, SourceURL: glib.SourceURL(meta.Version)}
	for _, ref := range deps.Requires() {
		info.Requires = append(info.Requires, ref.String())
	}
	for _, ref := range deps.BuildRequires() {
		info.BuildRequires = append(info.BuildRequires, ref.String())
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(info); err != nil {
		return err
	}
	return enc.Close()
}
