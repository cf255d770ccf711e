// Package appdir locates the per-user files lapse reads and writes.
package appdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const appName = "lapse"

// ConfigDir returns the OS-specific config directory for lapse.
// Linux: $XDG_CONFIG_HOME/lapse  macOS: ~/Library/Application Support/lapse
// Windows: %AppData%/lapse
func ConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("getting user config dir: %w", err)
	}
	return filepath.Join(base, appName), nil
}

// DefaultConfigFile returns the path of config.yaml inside ConfigDir.
func DefaultConfigFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// DefaultStateFile returns the path of the portfolio state file inside ConfigDir.
func DefaultStateFile() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "portfolio.yaml"), nil
}

// EnsureFile creates path and its parent directories if they do not exist.
// The file is created with 0600 permissions (owner read/write only).
// A no-op if the file already exists.
func EnsureFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating parent dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if os.IsExist(err) {
			return nil
		}
		return fmt.Errorf("creating file: %w", err)
	}
	return f.Close()
}
