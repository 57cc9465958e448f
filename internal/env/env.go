package env

import (
	"os"
	"path/filepath"
)

// WorkDir returns the root of everything llar keeps on disk. LLAR_WORKDIR
// overrides the default under the user cache directory.
func WorkDir() (string, error) {
	if dir := os.Getenv("LLAR_WORKDIR"); dir != "" {
		return filepath.Abs(dir)
	}
	userCacheDir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userCacheDir, ".llar"), nil
}

// WorkspaceDir returns the directory packages are built and installed in,
// creating it if needed.
func WorkspaceDir() (string, error) {
	return subdir("workspace")
}

// SourceCacheDir returns the directory downloaded source archives are kept
// in, creating it if needed.
func SourceCacheDir() (string, error) {
	return subdir("sources")
}

// ConfigFile returns the default configuration file path.
func ConfigFile() (string, error) {
	userConfigDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(userConfigDir, "llar", "glib.yaml"), nil
}

func subdir(name string) (string, error) {
	root, err := WorkDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}
