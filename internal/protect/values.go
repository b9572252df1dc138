package protect

import "regexp"

// ValueMarker recognizes a credential by the shape of its value.
type ValueMarker struct {
	Name    string
	Pattern *regexp.Regexp
}

// DefaultMarkers recognize common credential formats regardless of the
// field name they are stored under.
var DefaultMarkers = []ValueMarker{
	{Name: "PEM private key", Pattern: regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----`)},
	{Name: "AWS access key", Pattern: regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{Name: "GitHub token", Pattern: regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{36,}\b`)},
	{Name: "Slack token", Pattern: regexp.MustCompile(`\bxox[abposr]-[A-Za-z0-9-]{10,}`)},
	{Name: "JSON web token", Pattern: regexp.MustCompile(`\beyJ[A-Za-z0-9_-]{8,}\.eyJ[A-Za-z0-9_-]{8,}\.[A-Za-z0-9_-]+`)},
	{Name: "URL with embedded password", Pattern: regexp.MustCompile(`[a-z][a-z0-9+.-]*://[^:/\s@]+:[^@/\s]+@`)},
}

// matchValue returns the name of the first marker matching value.
func matchValue(markers []ValueMarker, value string) (string, bool) {
	for _, m := range markers {
		if m.Pattern.MatchString(value) {
			return m.Name, true
		}
	}
	return "", false
}
