package config

import (
	"os"
	"path/filepath"
)

// BaseDir returns ~/.dealdesk.
func BaseDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".dealdesk")
}

// Dir returns the profile-specific directory.
func Dir(profile string) string {
	return filepath.Join(BaseDir(), "profiles", profile)
}

// CachePath returns the offline cache database path for a profile.
func CachePath(profile string) string {
	return filepath.Join(Dir(profile), "cache.db")
}

// LogDir returns the log directory for a profile.
func LogDir(profile string) string {
	return filepath.Join(Dir(profile), "logs")
}

// LogPath returns the agent log file path.
func LogPath(profile string) string {
	return filepath.Join(LogDir(profile), "dealdeskd.log")
}

// Path returns the global config file path.
func Path() string {
	return filepath.Join(BaseDir(), "config.toml")
}

// EnsureDir creates the profile directory tree with private permissions.
func EnsureDir(profile string) error {
	for _, d := range []string{Dir(profile), LogDir(profile)} {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}
