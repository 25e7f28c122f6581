package domain

import (
	"net/url"
	"strconv"
	"strings"
)

const maxURLLength = 2048

// Credentials are what a user types to connect a WordPress site.
type Credentials struct {
	Domain              string `json:"domain"`
	Username            string `json:"username"`
	ApplicationPassword string `json:"applicationPassword"`
}

// ValidateURL checks that raw is an absolute http(s) URL and returns it
// trimmed.
func ValidateURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || len(s) > maxURLLength {
		return "", NewValidationError("url", raw, ErrInvalidURL)
	}
	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Hostname() == "" {
		return "", NewValidationError("url", raw, ErrInvalidURL)
	}
	if strings.ContainsAny(u.Hostname(), " \t") {
		return "", NewValidationError("url", raw, ErrInvalidURL)
	}
	return s, nil
}

// NormalizeDomain turns "example.com", "example.com/" or "http://example.com"
// into a base URL without trailing slash, adding https:// when no scheme is
// given.
func NormalizeDomain(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", NewValidationError("domain", raw, ErrInvalidDomain)
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	s = strings.TrimRight(s, "/")
	if _, err := ValidateURL(s); err != nil {
		return "", NewValidationError("domain", raw, ErrInvalidDomain)
	}
	return s, nil
}

// Host returns the lowercased host of a URL, without port, or "" when raw
// does not parse.
func Host(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// ValidateCredentials normalizes the domain and requires username and
// application password.
func ValidateCredentials(c Credentials) (Credentials, error) {
	d, err := NormalizeDomain(c.Domain)
	if err != nil {
		return Credentials{}, err
	}
	c.Domain = d
	c.Username = strings.TrimSpace(c.Username)
	if c.Username == "" {
		return Credentials{}, NewValidationError("username", "", ErrMissingCredentials)
	}
	if strings.TrimSpace(c.ApplicationPassword) == "" {
		return Credentials{}, NewValidationError("applicationPassword", "", ErrMissingCredentials)
	}
	return c, nil
}

// ParsePostID parses a WordPress post id from a path segment.
func ParsePostID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || id <= 0 {
		return 0, NewValidationError("postID", s, ErrInvalidPostID)
	}
	return id, nil
}
