// Package redact scrubs credentials from strings before they reach logs
// or error messages. Transport errors from the vision provider can embed
// the full request URL, query string included, so any text derived from
// them goes through here first.
package redact

import "regexp"

// Placeholder replaces each credential occurrence.
const Placeholder = "[REDACTED]"

type rule struct {
	re          *regexp.Regexp
	replacement string
}

var rules = []rule{
	// Google API keys have a fixed shape, catch them bare.
	{regexp.MustCompile(`AIza[0-9A-Za-z_\-]{35}`), Placeholder},
	// Keyed parameters in URLs, headers or config dumps. The key name
	// survives, the value does not.
	{
		regexp.MustCompile(
			`(?i)\b(api[_-]?key|apikey|key|token|secret|password)(['"]?\s*[=:]\s*['"]?)[A-Za-z0-9_\-.~+/]{6,}`,
		),
		"${1}${2}" + Placeholder,
	},
	{regexp.MustCompile(`(?i)\bbearer\s+[A-Za-z0-9_\-.~+/]+=*`), "Bearer " + Placeholder},
}

// String returns s with every credential-looking substring replaced.
func String(s string) string {
	for _, r := range rules {
		s = r.re.ReplaceAllString(s, r.replacement)
	}
	return s
}

// Error returns err's message with credentials scrubbed. A nil err yields
// the empty string.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}
