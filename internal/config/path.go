// Package config loads the finance settings from flags, files and the environment.
package config

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	appDirName     = "finance"
	databaseFile   = "finance.db"
	sqliteMemory   = ":memory:"
	fileURIPrefix  = "file:"
	xdgDataHomeEnv = "XDG_DATA_HOME"
)

// DataDir is where the sqlite database lives unless database.path says
// otherwise: $XDG_DATA_HOME/finance, falling back to ~/.local/share/finance.
func DataDir() string {
	if dir := os.Getenv(xdgDataHomeEnv); dir != "" && filepath.IsAbs(dir) {
		return filepath.Join(dir, appDirName)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", appDirName)
	}
	return filepath.Join(home, ".local", "share", appDirName)
}

// DefaultDatabasePath is used when neither database.path nor database.dsn is set.
func DefaultDatabasePath() string {
	return filepath.Join(DataDir(), databaseFile)
}

// ExpandPath resolves a leading ~ and $VAR references in a database path.
// In-memory and file: URI sources are returned untouched since sqlite
// interprets them itself.
func ExpandPath(path string) string {
	if path == "" || path == sqliteMemory || strings.HasPrefix(path, fileURIPrefix) {
		return path
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	return filepath.Clean(os.ExpandEnv(path))
}
