package middleware

import (
	"errors"
	"regexp"
	"strings"
)

// Validation limits.
const (
	// MaxPhotoURLLength is the maximum length for photo URLs.
	MaxPhotoURLLength = 2048

	// MaxAppIDLength is the maximum length for an approved app identifier.
	MaxAppIDLength = 255
)

// Validation errors.
var (
	ErrPhotoURLTooLong = errors.New("photo URL exceeds maximum length")
	ErrPhotoURLInvalid = errors.New("photo URL is invalid")
	ErrPhotoURLUnsafe  = errors.New("photo URL uses unsafe scheme")
	ErrAppIDInvalid    = errors.New("app identifier contains invalid characters")
	ErrAppIDTooLong    = errors.New("app identifier exceeds maximum length")
)

// validAppIDPattern matches bundle / package identifiers.
// Allowed: a-z, A-Z, 0-9, dot, hyphen, underscore
var validAppIDPattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidatePhotoURL validates a photo attached to a check-in or sighting.
// Empty is valid.
func ValidatePhotoURL(url string) error {
	if url == "" {
		return nil
	}

	if len(url) > MaxPhotoURLLength {
		return ErrPhotoURLTooLong
	}

	// Basic scheme validation
	lowerURL := strings.ToLower(url)
	if !strings.HasPrefix(lowerURL, "http://") && !strings.HasPrefix(lowerURL, "https://") {
		return ErrPhotoURLInvalid
	}

	// Block dangerous schemes (in case of URL encoding tricks)
	forbiddenSchemes := []string{"javascript:", "data:", "vbscript:", "file:"}
	for _, scheme := range forbiddenSchemes {
		if strings.Contains(lowerURL, scheme) {
			return ErrPhotoURLUnsafe
		}
	}

	return nil
}

// ValidateAppID validates an approved app identifier.
func ValidateAppID(id string) error {
	if len(id) > MaxAppIDLength {
		return ErrAppIDTooLong
	}
	if !validAppIDPattern.MatchString(id) {
		return ErrAppIDInvalid
	}
	return nil
}
