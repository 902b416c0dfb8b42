package enricher

import (
	"net/url"
	"regexp"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://[^\s)]+`)

// ExtractURLs returns the http(s) URLs in text, in order of appearance, with
// trailing sentence punctuation removed.
func ExtractURLs(text string) []string {
	matches := urlPattern.FindAllString(text, -1)
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, `.,!?;:'"]>`)
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}

// HostAllowed reports whether rawURL points at an allow-listed host. A host
// matches when it equals an entry or ends with "." + entry, so subdomains
// are accepted but "evil-jumia.com" or "jumia.com.ng.evil.test" are not.
func HostAllowed(rawURL string, allowed []string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return false
	}
	for _, h := range allowed {
		h = strings.Trim(strings.ToLower(strings.TrimSpace(h)), ".")
		if h == "" {
			continue
		}
		if host == h || strings.HasSuffix(host, "."+h) {
			return true
		}
	}
	return false
}

// allowedURLs extracts, filters and de-duplicates URLs, keeping first
// occurrences and at most limit entries.
func allowedURLs(text string, allowed []string, limit int) []string {
	seen := make(map[string]bool)
	var out []string
	for _, u := range ExtractURLs(text) {
		if seen[u] || !HostAllowed(u, allowed) {
			continue
		}
		seen[u] = true
		out = append(out, u)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}
