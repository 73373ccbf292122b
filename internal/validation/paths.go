// Package validation checks names received from the remote service before
// they are used as local file system paths.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidateFilename validates a single path component received from the API.
//
// Returns an error if the name:
//   - Is empty
//   - Contains path separators (/ or \)
//   - Is "." or ".."
//   - Contains null bytes
func ValidateFilename(filename string) error {
	if filename == "" {
		return fmt.Errorf("filename cannot be empty")
	}

	if strings.ContainsRune(filename, 0) {
		return fmt.Errorf("filename contains null byte: %s", filename)
	}

	if strings.ContainsRune(filename, '/') || strings.ContainsRune(filename, '\\') {
		return fmt.Errorf("filename cannot contain path separators: %s", filename)
	}

	// Separators are rejected above, so only the literal names matter here
	if filename == ".." || filename == "." {
		return fmt.Errorf("filename cannot be %q", filename)
	}

	return nil
}

// SanitizeName turns a remote file or folder name into a usable local name.
// Characters that are invalid on common file systems become "_", trailing
// dots and spaces are trimmed, and names that would still be rejected by
// ValidateFilename become "_".
func SanitizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r < 0x20:
			b.WriteRune('_')
		case strings.ContainsRune(`<>:"/\|?*`, r):
			b.WriteRune('_')
		default:
			b.WriteRune(r)
		}
	}
	clean := strings.TrimRight(strings.TrimSpace(b.String()), ". ")
	if ValidateFilename(clean) != nil {
		return "_"
	}
	return clean
}

// ValidatePathInDirectory validates that a path, when resolved, stays within baseDir.
//
// Both path and baseDir are cleaned and made absolute before comparison.
//
// Example:
//
//	ValidatePathInDirectory("../../etc/passwd", "downloads") // Error: escapes base dir
//	ValidatePathInDirectory("Movies/a.mkv", "downloads")      // OK: within base dir
func ValidatePathInDirectory(path string, baseDir string) error {
	if path == "" {
		return fmt.Errorf("path cannot be empty")
	}
	if baseDir == "" {
		return fmt.Errorf("base directory cannot be empty")
	}

	cleanPath := filepath.Clean(path)
	cleanBase := filepath.Clean(baseDir)

	var err error
	if !filepath.IsAbs(cleanBase) {
		cleanBase, err = filepath.Abs(cleanBase)
		if err != nil {
			return fmt.Errorf("failed to resolve base directory: %w", err)
		}
	}

	var resolvedPath string
	if filepath.IsAbs(cleanPath) {
		resolvedPath = cleanPath
	} else {
		resolvedPath = filepath.Join(cleanBase, cleanPath)
	}
	resolvedPath = filepath.Clean(resolvedPath)

	relPath, err := filepath.Rel(cleanBase, resolvedPath)
	if err != nil {
		return fmt.Errorf("failed to compute relative path: %w", err)
	}

	if strings.HasPrefix(relPath, ".."+string(filepath.Separator)) || relPath == ".." {
		return fmt.Errorf("path escapes base directory: %s (base: %s)", path, baseDir)
	}

	return nil
}

// LocalPath builds baseDir/<segments...>/<name> from remote names. Every
// component is sanitized and the result is checked to stay inside baseDir.
func LocalPath(baseDir string, segments []string, name string) (string, error) {
	parts := make([]string, 0, len(segments)+2)
	parts = append(parts, baseDir)
	for _, seg := range segments {
		parts = append(parts, SanitizeName(seg))
	}
	parts = append(parts, SanitizeName(name))

	local := filepath.Join(parts...)
	rel, err := filepath.Rel(baseDir, local)
	if err != nil {
		return "", fmt.Errorf("failed to compute relative path: %w", err)
	}
	if err := ValidatePathInDirectory(rel, baseDir); err != nil {
		return "", err
	}
	return local, nil
}
