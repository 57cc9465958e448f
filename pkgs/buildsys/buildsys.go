package buildsys

import "github.com/goplus/llar-glib/formula"

// BuildSystem captures shared capabilities of build helpers (Autotools and the like).
// It keeps the common lifecycle and dependency/env setup; implementations add their own extras.
type BuildSystem interface {
	// Use injects a resolved dependency into the environment.
	Use(dep formula.Dependency)

	// Basic paths.
	Source(dir string)
	InstallDir(dir string)

	// Environment helper. Values only affect commands run by the helper.
	Env(key, val string)

	// Lifecycle.
	Configure(args ...string) error
	Build(args ...string) error
	Install(args ...string) error

	// Where artifacts land.
	OutputDir() string
}
