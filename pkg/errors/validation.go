package errors

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFontNameLength bounds font identifiers accepted from clients.
const MaxFontNameLength = 128

// ValidateFontName validates a font identifier received from a client.
// Font names are file stems inside the font directory, so anything that could
// escape that directory is rejected before the catalog is consulted.
//
// Validation rules:
//   - No empty names
//   - No control characters or null bytes
//   - No path separators or traversal sequences
//   - Maximum length of MaxFontNameLength characters
func ValidateFontName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidInput, "font name cannot be empty")
	}

	if len(name) > MaxFontNameLength {
		return New(ErrCodeInvalidInput, "font name too long (max %d characters)", MaxFontNameLength)
	}

	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidInput, "font name contains invalid control characters")
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
			return New(ErrCodeInvalidInput, "font name contains invalid characters: %q", pattern)
		}
	}

	return nil
}

// ValidateText validates the text submitted for rendering.
//
// Validation rules:
//   - Text cannot be empty (whitespace-only text is allowed)
//   - Text must be valid UTF-8
//   - Text cannot exceed maxRunes characters (0 disables the limit)
//   - No null bytes
func ValidateText(text string, maxRunes int) error {
	if text == "" {
		return New(ErrCodeInvalidInput, "text cannot be empty")
	}

	if !utf8.ValidString(text) {
		return New(ErrCodeInvalidInput, "text must be valid UTF-8")
	}

	if strings.ContainsRune(text, '\x00') {
		return New(ErrCodeInvalidInput, "text contains null bytes")
	}

	if maxRunes > 0 {
		if n := utf8.RuneCountInString(text); n > maxRunes {
			return New(ErrCodeTooLarge, "text too long (%d characters, max %d)", n, maxRunes)
		}
	}

	return nil
}
