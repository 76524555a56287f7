package checker

import (
	"net/url"
	"strings"
)

// TargetInfo contains parsed target information
type TargetInfo struct {
	Original string // Original target string
	Scheme   string // http or https
	Host     string // Hostname (without protocol, path, port)
	Port     string // Port if specified
	Path     string // Path if specified
	FullURL  string // Full normalized URL used for the request
}

// ParseTarget parses a target string into structured components.
// Targets without a scheme are fetched over https:
//   - example.com            -> https://example.com/
//   - http://example.com     -> http://example.com/
//   - example.com:8443/login -> https://example.com:8443/login
func ParseTarget(target string) *TargetInfo {
	info := &TargetInfo{Original: target}
	target = strings.TrimSpace(target)

	parsed, err := url.Parse(target)
	// A scheme with dots (or a host:port read as scheme:opaque) means no real scheme was given.
	if err != nil || parsed.Scheme == "" || parsed.Opaque != "" || strings.Contains(parsed.Scheme, ".") {
		parsed, err = url.Parse("https://" + strings.TrimPrefix(target, "//"))
	}
	if err != nil || parsed == nil {
		return info
	}

	info.Scheme = strings.ToLower(parsed.Scheme)
	info.Host = strings.ToLower(parsed.Hostname())
	info.Port = parsed.Port()
	info.Path = parsed.Path
	if parsed.Path == "" {
		parsed.Path = "/"
	}
	info.FullURL = parsed.String()
	return info
}

// NormalizeTarget returns the full URL that would be fetched for target.
func NormalizeTarget(target string) string {
	return ParseTarget(target).FullURL
}
