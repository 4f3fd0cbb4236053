package errors

import (
	"strings"
	"unicode"
)

// ValidateResolution validates an image side length.
// Resolutions must be positive and fit comfortably in memory; the upper
// bound is conservative and matches what the loaders can realistically
// produce.
func ValidateResolution(res int) error {
	if res <= 0 {
		return New(ErrCodeInvalidResolution, "resolution must be positive, got %d", res)
	}
	if res > 4096 {
		return New(ErrCodeInvalidResolution, "resolution too large (max 4096), got %d", res)
	}
	return nil
}

// ValidateDatasetPath validates a user-supplied dataset path for safety.
// It rejects paths that could be used for traversal or injection.
//
// The validation rules are intentionally conservative:
//   - No empty paths
//   - No control characters or null bytes
//   - No parent-directory traversal sequences
//   - Maximum length of 500 characters
func ValidateDatasetPath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidInput, "dataset path cannot be empty")
	}

	if len(path) > 500 {
		return New(ErrCodeInvalidInput, "dataset path too long (max 500 characters)")
	}

	for _, r := range path {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "dataset path contains invalid control characters")
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(path, pattern) {
			return New(ErrCodeInvalidInput, "dataset path contains invalid sequence: %q", pattern)
		}
	}

	return nil
}
