package parse

import (
	"errors"
	"net"
	"net/url"
	"strings"
)

// Resolve turns a possibly-relative asset reference into an absolute URL
// against base. Handles protocol-relative ("//host/x"), already-absolute
// http(s), and data: scheme forms explicitly; everything else goes through
// standard relative-reference resolution.
//
// Resolution failures are non-fatal: unparseable input is returned unmodified
// and will simply never match an entry in the asset map later.
func Resolve(ref, base string) string {
	if ref == "" {
		return ref
	}

	// Protocol-relative: adopt the base URL's scheme
	if strings.HasPrefix(ref, "//") {
		scheme := "https"
		if baseURL, err := url.Parse(base); err == nil && baseURL.Scheme != "" {
			scheme = baseURL.Scheme
		}
		return scheme + ":" + ref
	}

	// Already absolute or embedded data: never rewritten, never re-fetched
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "data:") {
		return ref
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return ref
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return baseURL.ResolveReference(refURL).String()
}

// NormalizeURL standardizes a URL for comparison and storage
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https), removes trailing slashes from paths (unless root "/"), ensures empty path becomes "/", and removes fragments
// Does not modify the input *url.URL
func NormalizeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil { // Host included a port
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host // Use hostname without default port
		}
	} // If no port or error, Host remains unchanged

	// Handle path normalization
	if normalized.Path == "" {
		normalized.Path = "/" // Ensure empty path becomes "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1] // Remove trailing slash
	}

	normalized.Fragment = "" // Remove fragment

	return normalized.String()
}

// ValidatePageURL parses the user-supplied target URL with the stricter
// url.ParseRequestURI (requiring a scheme) and checks it is http(s) with a
// non-empty host. Returns the parsed URL or an error.
func ValidatePageURL(raw string) (*url.URL, error) {
	u, err := url.ParseRequestURI(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errUnsupportedScheme}
	}
	if u.Host == "" {
		return nil, &url.Error{Op: "parse", URL: raw, Err: errMissingHost}
	}
	return u, nil
}

var (
	errUnsupportedScheme = errors.New("unsupported scheme")
	errMissingHost       = errors.New("missing host")
)
