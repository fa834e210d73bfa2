package paths

import (
	"os"
	"path/filepath"
)

func DefaultRuntimeDir() string {
	if x := os.Getenv("XDG_RUNTIME_DIR"); x != "" {
		return filepath.Join(x, "appyard")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".appyard")
}

func DefaultStateDir() string {
	if x := os.Getenv("XDG_STATE_HOME"); x != "" {
		return filepath.Join(x, "appyard")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "state", "appyard")
}

func DefaultConfigDir() string {
	if x := os.Getenv("XDG_CONFIG_HOME"); x != "" {
		return filepath.Join(x, "appyard")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "appyard")
}

func DefaultSocketPath() string   { return filepath.Join(DefaultRuntimeDir(), "daemon.sock") }
func DefaultPIDPath() string      { return filepath.Join(DefaultRuntimeDir(), "daemon.pid") }
func DefaultRegistryPath() string { return filepath.Join(DefaultStateDir(), "ports.json") }
func DefaultAppsDir() string      { return filepath.Join(DefaultStateDir(), "apps") }
func DefaultLogsDir() string      { return filepath.Join(DefaultStateDir(), "logs") }
