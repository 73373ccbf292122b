package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// ReadCookieFile reads a session cookie from a file.
// The file should contain only the cookie header value, optionally with whitespace.
func ReadCookieFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat cookie file: %w", err)
	}

	// Cookie files should be readable only by owner (0600 or stricter)
	if runtime.GOOS != "windows" {
		mode := info.Mode().Perm()
		if mode&0077 != 0 {
			fmt.Fprintf(os.Stderr, "Warning: cookie file %s has insecure permissions %04o. Consider using 'chmod 600 %s'\n", path, mode, path)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read cookie file: %w", err)
	}
	cookie := strings.TrimSpace(string(data))
	if cookie == "" {
		return "", fmt.Errorf("cookie file is empty")
	}
	return cookie, nil
}

// WriteCookieFile writes a session cookie with 0600 permissions.
func WriteCookieFile(path, cookie string) error {
	cookie = strings.TrimSpace(cookie)
	if cookie == "" {
		return fmt.Errorf("cannot write empty cookie")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create cookie directory: %w", err)
	}

	if err := os.WriteFile(path, []byte(cookie+"\n"), 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	// WriteFile does not change the mode of an existing file
	if runtime.GOOS != "windows" {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to set cookie file permissions: %w", err)
		}
	}
	return nil
}

// LoadCookie returns the stored cookie, or "" when none has been saved.
func LoadCookie(path string) (string, error) {
	if path == "" {
		var err error
		path, err = DefaultCookiePath()
		if err != nil {
			return "", err
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return "", nil
	}
	return ReadCookieFile(path)
}
