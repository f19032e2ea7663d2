// Package sqlitepath locates the SQLite database used by the sqlite storage
// driver.
package sqlitepath

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// FileName is the database name created when none exists yet.
const FileName = "reel.db"

// ResolveSQLitePath returns the database path: the override, then the
// REEL_SQLITE environment variable, then the first existing well-known
// location, then FileName inside dotDir.
func ResolveSQLitePath(override, dotDir string) (string, error) {
	if override != "" {
		return override, nil
	}

	if envPath := strings.TrimSpace(os.Getenv("REEL_SQLITE")); envPath != "" {
		return envPath, nil
	}

	for _, candidate := range sqliteCandidates() {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}

	if dotDir != "" {
		return filepath.Join(dotDir, FileName), nil
	}

	return "", errors.New("could not find the reel SQLite database; pass --sqlite")
}

func sqliteCandidates() []string {
	candidates := []string{
		FileName,
		filepath.Join(".reel", FileName),
	}

	home, err := os.UserHomeDir()
	if err == nil {
		candidates = append([]string{
			filepath.Join(home, ".reel", FileName),
		}, candidates...)
	}

	if xdgHome := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdgHome != "" {
		candidates = append([]string{
			filepath.Join(xdgHome, "reel", FileName),
		}, candidates...)
	}

	return candidates
}
