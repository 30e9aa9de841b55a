package crawler

import (
	"net/url"
	"strings"
)

// NormalizeSourceURL trims whitespace and a single trailing slash so that
// "https://x/c/1/" and "https://x/c/1" compare equal.
func NormalizeSourceURL(raw string) string {
	u := strings.TrimSpace(raw)
	return strings.TrimSuffix(u, "/")
}

// ToggleTrailingSlash adds a trailing slash when absent and removes it when present.
func ToggleTrailingSlash(raw string) string {
	u := strings.TrimSpace(raw)
	if strings.HasSuffix(u, "/") {
		return strings.TrimSuffix(u, "/")
	}
	return u + "/"
}

// EnsureTrailingSlash appends "/" unless the URL already ends with one.
func EnsureTrailingSlash(raw string) string {
	u := strings.TrimSpace(raw)
	if strings.HasSuffix(u, "/") {
		return u
	}
	return u + "/"
}

// LastPathSegment returns the final non-empty path segment of a story URL,
// e.g. "ten-truyen" for "https://x/ten-truyen/".
func LastPathSegment(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if u, err := url.Parse(trimmed); err == nil && u.Host != "" {
		trimmed = u.Path
	}
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] != "" {
			return parts[i]
		}
	}
	return ""
}

// AbsoluteURL resolves ref against base. Already-absolute http(s) refs are
// returned unchanged; empty refs stay empty.
func AbsoluteURL(base, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}
