// Package workspace manages the on-disk layout of a session's output
// directory: per-plugin directories, the reports directory, and the lock
// file that keeps two sessions from sharing one directory.
package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/gofrs/flock"
)

const (
	// PluginsDir holds one subdirectory per plugin.
	PluginsDir = "plugins"
	// ReportsDir holds the session summary.
	ReportsDir = "reports"
	// LockFile is taken exclusively for the lifetime of a session.
	LockFile = ".conductor.lock"
)

var defaultSubdirs = []string{
	PluginsDir,
	ReportsDir,
}

// ErrLocked is returned by Lock when another session holds the directory.
var ErrLocked = errors.New("output directory is locked by another session")

var (
	userHomeDir = os.UserHomeDir
	getGOOS     = func() string { return runtime.GOOS }
)

// Prepare ensures root and its standard subdirectories exist. An empty root
// resolves to DefaultRoot. It returns the absolute path that was prepared.
func Prepare(root string) (string, error) {
	if root == "" {
		var err error
		root, err = DefaultRoot()
		if err != nil {
			return "", err
		}
	}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("resolve output path: %w", err)
	}

	if err := os.MkdirAll(absRoot, 0o750); err != nil {
		return "", fmt.Errorf("create output root: %w", err)
	}

	for _, sub := range defaultSubdirs {
		subPath := filepath.Join(absRoot, sub)
		if err := os.MkdirAll(subPath, 0o750); err != nil {
			return "", fmt.Errorf("create output subdir %q: %w", sub, err)
		}
	}

	return absRoot, nil
}

// PluginDir returns the directory owned by the named plugin under root.
func PluginDir(root, name string) string {
	return filepath.Join(root, PluginsDir, name)
}

// EnsurePluginDir creates the plugin's directory and returns its path.
func EnsurePluginDir(root, name string) (string, error) {
	dir := PluginDir(root, name)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create plugin dir %q: %w", name, err)
	}
	return dir, nil
}

// ReportPath returns the path of a file in the reports directory.
func ReportPath(root, file string) string {
	return filepath.Join(root, ReportsDir, file)
}

// Lock takes an exclusive, non-blocking lock on root. It fails with ErrLocked
// when the directory is already held. The returned function releases it.
func Lock(root string) (func() error, error) {
	fl := flock.New(filepath.Join(root, LockFile))
	locked, err := fl.TryLock()
	if err != nil {
		return nil, fmt.Errorf("lock output directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("%w: %s", ErrLocked, root)
	}
	return fl.Unlock, nil
}

// DefaultRoot returns the base directory used when no output directory is
// configured. CONDUCTOR_WORKSPACE overrides the platform default.
func DefaultRoot() (string, error) {
	if dir := os.Getenv("CONDUCTOR_WORKSPACE"); dir != "" {
		return dir, nil
	}

	switch getGOOS() {
	case "darwin":
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, "Library", "Application Support", "Conductor"), nil
	case "windows":
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "Conductor"), nil
		}
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, "AppData", "Roaming", "Conductor"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return filepath.Join(xdg, "conductor"), nil
		}
		home, err := userHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if home == "" {
			return "", errors.New("cannot determine output directory")
		}
		return filepath.Join(home, ".local", "share", "conductor"), nil
	}
}

