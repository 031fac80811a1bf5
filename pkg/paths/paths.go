package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

// ConfigFileName is the file ConfigFile points at.
const ConfigFileName = "config.yaml"

// ConfigDir returns the config directory for Conductor.
// Order: XDG_CONFIG_HOME/conductor, platform-specific fallback.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "conductor")
	}
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("AppData"); appData != "" {
			return filepath.Join(appData, "Conductor")
		}
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "conductor")
}

// ConfigFile returns the per-user config file read when no --config is
// given. The file need not exist.
func ConfigFile() string {
	return filepath.Join(ConfigDir(), ConfigFileName)
}
