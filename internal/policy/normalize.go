// normalize.go canonicalizes referrer values before rule comparison so that
// "https://www.Example.com/some/page?q=1" and "example.com" compare equal.
package policy

import "strings"

// NormalizeDomain reduces a referrer URL or host to a bare lowercase host:
// scheme stripped, leading www. stripped, path/query/fragment removed, port
// removed. Returns "" for values with no usable host.
func NormalizeDomain(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return ""
	}

	if i := strings.Index(s, "://"); i != -1 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?#"); i != -1 {
		s = s[:i]
	}
	if i := strings.Index(s, "@"); i != -1 {
		s = s[i+1:]
	}
	if i := strings.Index(s, ":"); i != -1 {
		s = s[:i]
	}
	s = strings.TrimPrefix(s, "www.")

	return s
}
