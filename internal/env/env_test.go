package env

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWorkDir(t *testing.T) {
	t.Setenv("LLAR_WORKDIR", "")
	workDir, err := WorkDir()
	if err != nil {
		t.Fatalf("WorkDir() returned error: %v", err)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		t.Fatalf("os.UserCacheDir() returned error: %v", err)
	}
	if want := filepath.Join(userCacheDir, ".llar"); workDir != want {
		t.Errorf("WorkDir() = %q, want %q", workDir, want)
	}
}

func TestSubdirs(t *testing.T) {
	root := t.TempDir()
	t.Setenv("LLAR_WORKDIR", root)

	for name, fn := range map[string]func() (string, error){
		"workspace": WorkspaceDir,
		"sources":   SourceCacheDir,
	} {
		dir, err := fn()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if want := filepath.Join(root, name); dir != want {
			t.Errorf("dir = %q, want %q", dir, want)
		}

		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("Directory was not created: %v", err)
		}
		if !info.IsDir() {
			t.Errorf("%s is not a directory", dir)
		}

		// Idempotent.
		again, err := fn()
		if err != nil || again != dir {
			t.Errorf("second call = %q, %v; want %q", again, err, dir)
		}
	}
}

func TestConfigFile(t *testing.T) {
	path, err := ConfigFile()
	if err != nil {
		t.Skipf("no user config dir: %v", err)
	}
	if filepath.Base(path) != "glib.yaml" || filepath.Base(filepath.Dir(path)) != "llar" {
		t.Errorf("ConfigFile() = %q", path)
	}
}
