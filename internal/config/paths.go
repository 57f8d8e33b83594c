package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/mixtape/mixtape/internal/constants"
)

const appDirName = "mixtape"

// ConfigDirectory returns the directory holding config.ini.
//
// Locations:
//   - Windows: %APPDATA%\mixtape
//   - Unix: ~/.config/mixtape
func ConfigDirectory() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(os.TempDir(), appDirName)
		}
		return filepath.Join(homeDir, ".config", appDirName)
	}
	return filepath.Join(configDir, appDirName)
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() string {
	return filepath.Join(ConfigDirectory(), "config.ini")
}

// dataDirectory is the base for user-visible application data.
//   - Windows: %LOCALAPPDATA%
//   - Unix: $XDG_DATA_HOME or ~/.local/share
func dataDirectory() string {
	if runtime.GOOS == "windows" {
		if localAppData := os.Getenv("LOCALAPPDATA"); localAppData != "" {
			return localAppData
		}
	} else if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return xdg
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return os.TempDir()
	}
	if runtime.GOOS == "windows" {
		return filepath.Join(homeDir, "AppData", "Local")
	}
	return filepath.Join(homeDir, ".local", "share")
}

// DefaultSandboxRoot returns the app-private download root.
func DefaultSandboxRoot() string {
	return filepath.Join(dataDirectory(), filepath.FromSlash(constants.SandboxSubdir))
}

// StateDirectory returns where persisted transfer and destination state lives.
func StateDirectory() string {
	if runtime.GOOS != "windows" {
		if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
			return filepath.Join(xdg, appDirName)
		}
	}
	return filepath.Join(dataDirectory(), appDirName, "state")
}

// ScratchDirectory returns the private scratch area used before a grant commit.
func ScratchDirectory() string {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), appDirName+"-scratch")
	}
	return filepath.Join(cacheDir, appDirName, "scratch")
}

// EnsureDirectories creates the state and scratch directories with owner-only
// permissions. The sandbox root is created lazily by the storage layer.
func EnsureDirectories(cfg *Config) error {
	for _, dir := range []string{cfg.Storage.StateDir, cfg.Storage.ScratchDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}
