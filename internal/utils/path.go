package utils

import (
	"net/url"
	"strings"
)

// JoinPath joins URL path parts using forward slashes.
// It strips leading/trailing slashes from each component, escapes it, then
// prefixes the result with "/".
// Pattern:
//   - No parts = "/"
//   - JoinPath("api", "histories") = "/api/histories"
//   - JoinPath("api", "histories", id, "contents") = "/api/histories/{id}/contents"
func JoinPath(parts ...string) string {
	cleaned := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.Trim(part, "/")
		if part != "" {
			cleaned = append(cleaned, url.PathEscape(part))
		}
	}

	if len(cleaned) == 0 {
		return "/"
	}

	return "/" + strings.Join(cleaned, "/")
}

// JoinURL appends a joined path to a base URL that may carry its own prefix
func JoinURL(base string, parts ...string) string {
	return strings.TrimRight(base, "/") + JoinPath(parts...)
}
