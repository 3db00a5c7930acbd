package errors

import (
	"strings"
	"unicode"
)

// ValidateURI validates a requested URI for safety and correctness.
//
// The validation rules are intentionally conservative:
//   - No empty URIs or empty segments
//   - No control characters
//   - No leading or trailing slash
//   - Maximum length of 512 characters
//
// Semantic checks (does the URI resolve to anything) are done by the
// resolver, not here.
func ValidateURI(uri string) error {
	if uri == "" {
		return New(ErrCodeInvalidInput, "URI cannot be empty")
	}

	if len(uri) > 512 {
		return New(ErrCodeInvalidInput, "URI too long (max 512 characters)")
	}

	for _, r := range uri {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "URI contains invalid control characters")
		}
	}

	if strings.HasPrefix(uri, "/") || strings.HasSuffix(uri, "/") {
		return New(ErrCodeInvalidInput, "URI cannot start or end with a slash: %q", uri)
	}

	for _, segment := range strings.Split(uri, "/") {
		if segment == "" {
			return New(ErrCodeInvalidInput, "URI contains an empty segment: %q", uri)
		}
	}

	return nil
}

// ValidateDistroName validates a distro name as it appears in requirement
// strings and .hab.json "name" fields.
//
// Validation rules:
//   - Name cannot be empty
//   - Maximum length of 256 characters
//   - No control characters or whitespace
//   - No path separators or traversal sequences
func ValidateDistroName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "distro name cannot be empty")
	}

	if len(name) > 256 {
		return New(ErrCodeInvalidInput, "distro name too long (max 256 characters)")
	}

	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "distro name contains invalid characters: %q", name)
		}
	}

	dangerousPatterns := []string{
		"..",   // Parent directory
		"/",    // Path separator
		"\\",   // Backslash (Windows path)
		"\x00", // Null byte
	}

	for _, pattern := range dangerousPatterns {
		if strings.Contains(name, pattern) {
			return New(ErrCodeInvalidInput, "distro name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateAliasName validates an alias name before it becomes a shell
// function. Shell metacharacters are rejected so the renderers never have
// to escape function names.
func ValidateAliasName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "alias name cannot be empty")
	}

	for _, r := range name {
		if unicode.IsControl(r) || unicode.IsSpace(r) {
			return New(ErrCodeInvalidInput, "alias name contains whitespace or control characters: %q", name)
		}
	}

	if strings.ContainsAny(name, "`$&|;<>(){}'\"\\") {
		return New(ErrCodeInvalidInput, "alias name contains shell metacharacters: %q", name)
	}

	return nil
}
