package entity

import (
	"fmt"
	"net/url"
	"strings"
)

// BaseURL represents an upstream endpoint root. It never ends with a path separator.
type BaseURL string

// NewBaseURL validates rawURL against the allowed schemes and strips trailing separators.
func NewBaseURL(rawURL string, allowedSchemes ...string) (BaseURL, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return "", fmt.Errorf("base url cannot be empty")
	}

	u, err := url.ParseRequestURI(trimmed)
	if err != nil {
		return "", fmt.Errorf("invalid base url format '%s': %w", rawURL, err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("base url '%s' has no host", rawURL)
	}

	scheme := strings.ToLower(u.Scheme)
	allowed := false
	for _, s := range allowedSchemes {
		if scheme == s {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", fmt.Errorf("base url '%s' has unsupported scheme: '%s'", rawURL, scheme)
	}

	return BaseURL(strings.TrimRight(trimmed, "/")), nil
}

// Join appends subPath with exactly one separator at the join point.
// An empty subPath yields the base itself.
func (b BaseURL) Join(subPath string) string {
	base := strings.TrimRight(string(b), "/")
	sub := strings.TrimLeft(subPath, "/")
	if sub == "" {
		return base
	}
	return base + "/" + sub
}

// String returns the string representation of the BaseURL.
func (b BaseURL) String() string {
	return string(b)
}
