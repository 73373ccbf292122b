package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// configDir returns the quarkpan configuration directory.
//
// Locations:
//   - Windows: %USERPROFILE%\.config\quarkpan
//   - Unix: ~/.config/quarkpan
func configDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".config", "quarkpan"), nil
}

// LogDirectory returns the directory for rotating log files.
//
// Locations:
//   - Windows: %LOCALAPPDATA%\quarkpan\logs
//   - Unix: ~/.config/quarkpan/logs
func LogDirectory() string {
	if runtime.GOOS == "windows" {
		localAppData := os.Getenv("LOCALAPPDATA")
		if localAppData == "" {
			homeDir, err := os.UserHomeDir()
			if err != nil {
				return filepath.Join(os.TempDir(), "quarkpan-logs")
			}
			localAppData = filepath.Join(homeDir, "AppData", "Local")
		}
		return filepath.Join(localAppData, "quarkpan", "logs")
	}

	dir, err := configDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "quarkpan-logs")
	}
	return filepath.Join(dir, "logs")
}

// EnsureLogDirectory creates the log directory if it doesn't exist.
// Uses 0700 permissions to restrict log access to owner only.
func EnsureLogDirectory() error {
	return os.MkdirAll(LogDirectory(), 0700)
}

// DefaultCookiePath returns the location of the stored session cookie.
func DefaultCookiePath() (string, error) {
	dir, err := configDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "cookies.txt"), nil
}
