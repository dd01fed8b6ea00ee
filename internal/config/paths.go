package config

import (
	"os"
	"path/filepath"
)

// DefaultConfigPath returns name inside the per-user "layoutd" config
// directory, or under /etc/layoutd when the user has none.
func DefaultConfigPath(name string) string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = ""
	}
	return ResolveConfigPath(dir, name)
}

// ResolveConfigPath joins name onto userConfigDir/layoutd, falling back to
// /etc/layoutd for an empty userConfigDir.
func ResolveConfigPath(userConfigDir, name string) string {
	if userConfigDir == "" {
		return filepath.Join("/etc", "layoutd", name)
	}
	return filepath.Join(userConfigDir, "layoutd", name)
}

// GetEnv returns the value of the environment variable key, or def when it is
// unset or empty.
func GetEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}
