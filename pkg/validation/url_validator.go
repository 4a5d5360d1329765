package validation

import (
	"net/url"
	"strings"

	apperrors "github.com/anushkaa29gupta/ByteCoders2.0/internal/errors"
)

// URLValidator checks analysis backend base URLs
type URLValidator struct {
	allowedSchemes []string
}

// NewURLValidator creates a new URL validator with default settings
func NewURLValidator() *URLValidator {
	return &URLValidator{
		allowedSchemes: []string{"http", "https"},
	}
}

// ValidateBaseURL validates a base URL that facet paths are appended to.
// Query strings and fragments are rejected because path joining would drop them.
func (v *URLValidator) ValidateBaseURL(baseURL string) error {
	if strings.TrimSpace(baseURL) == "" {
		return apperrors.NewValidationError("URL cannot be empty", nil)
	}

	parsedURL, err := url.Parse(baseURL)
	if err != nil {
		return apperrors.NewValidationError("Invalid URL format", err)
	}

	if !v.isSchemeAllowed(parsedURL.Scheme) {
		return apperrors.NewValidationError("URL scheme not allowed", nil)
	}

	if parsedURL.Host == "" {
		return apperrors.NewValidationError("URL must have a valid host", nil)
	}

	if parsedURL.RawQuery != "" || parsedURL.Fragment != "" {
		return apperrors.NewValidationError("base URL must not carry a query or fragment", nil)
	}

	return nil
}

func (v *URLValidator) isSchemeAllowed(scheme string) bool {
	for _, allowed := range v.allowedSchemes {
		if strings.EqualFold(scheme, allowed) {
			return true
		}
	}
	return false
}
