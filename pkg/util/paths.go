package util

import (
	"os"
	"path/filepath"
	"sync"
)

var (
	appNameMu sync.RWMutex
	appName   = "guildsetup"
)

// SetAppName sets the application name used to derive on-disk paths.
// Call it once at startup, before any path accessor.
func SetAppName(name string) {
	if name == "" {
		return
	}
	appNameMu.Lock()
	appName = name
	appNameMu.Unlock()
}

// AppName returns the configured application name.
func AppName() string {
	appNameMu.RLock()
	defer appNameMu.RUnlock()
	return appName
}

// ConfigDirPath returns the base configuration directory for the app,
// typically ~/.config/<app> on Linux.
func ConfigDirPath() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, AppName())
}

// RoleConfigDirPath returns the directory holding the per-guild role files.
func RoleConfigDirPath() string {
	return filepath.Join(ConfigDirPath(), "roles")
}

// AuditDBPath returns the path of the sqlite audit database.
func AuditDBPath() string {
	return filepath.Join(ConfigDirPath(), "audit.db")
}

// LogDirPath returns the directory for rotating log files.
func LogDirPath() string {
	return filepath.Join(ConfigDirPath(), "logs")
}

// EnsureAppDirs creates the on-disk directory structure the bot relies on.
func EnsureAppDirs() error {
	for _, dir := range []string{ConfigDirPath(), RoleConfigDirPath(), LogDirPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
