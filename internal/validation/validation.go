// Package validation provides input validation utilities
package validation

import (
	"net/url"
	"regexp"
	"unicode"

	"blogforge/internal/models"
)

// ValidatePassword checks if a password meets security requirements
func ValidatePassword(password string) error {
	if len(password) < 12 {
		return models.NewValidationError("password must be at least 12 characters long")
	}

	if len(password) > 128 {
		return models.NewValidationError("password must not exceed 128 characters")
	}

	hasUpper := false
	for _, r := range password {
		if unicode.IsUpper(r) {
			hasUpper = true
			break
		}
	}
	if !hasUpper {
		return models.NewValidationError("password must contain at least one uppercase letter")
	}

	hasLower := false
	for _, r := range password {
		if unicode.IsLower(r) {
			hasLower = true
			break
		}
	}
	if !hasLower {
		return models.NewValidationError("password must contain at least one lowercase letter")
	}

	hasDigit := regexp.MustCompile(`[0-9]`).MatchString(password)
	if !hasDigit {
		return models.NewValidationError("password must contain at least one digit")
	}

	hasSpecial := regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>\/?]`).MatchString(password)
	if !hasSpecial {
		return models.NewValidationError("password must contain at least one special character (!@#$%^&*)")
	}

	return nil
}

// ValidateUsername checks if a username meets requirements
func ValidateUsername(username string) error {
	if len(username) < 3 {
		return models.NewValidationError("username must be at least 3 characters long")
	}

	if len(username) > 30 {
		return models.NewValidationError("username must not exceed 30 characters")
	}

	// Only allow alphanumeric and underscores
	if !regexp.MustCompile(`^[a-zA-Z0-9_-]+$`).MatchString(username) {
		return models.NewValidationError("username can only contain letters, numbers, underscores, and hyphens")
	}

	// Cannot start or end with underscore/hyphen
	if username[0] == '_' || username[0] == '-' || username[len(username)-1] == '_' || username[len(username)-1] == '-' {
		return models.NewValidationError("username cannot start or end with underscore or hyphen")
	}

	return nil
}

// ValidateEmail checks basic email format
func ValidateEmail(email string) error {
	emailRegex := regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)
	if !emailRegex.MatchString(email) {
		return models.NewValidationError("invalid email format")
	}

	if len(email) > 254 {
		return models.NewValidationError("email must not exceed 254 characters")
	}

	return nil
}

// ValidateSiteURL checks that a blog host URL is absolute http(s).
func ValidateSiteURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return models.NewValidationError("invalid URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.NewValidationError("URL must use http or https")
	}
	if u.Host == "" {
		return models.NewValidationError("URL must include a host")
	}
	return nil
}
