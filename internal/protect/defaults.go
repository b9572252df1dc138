// Package protect flags sensitive fields in structured payloads.
package protect

// DefaultPatterns are glob patterns over slash-separated field paths.
var DefaultPatterns = []string{
	"**/credentials/**",
	"**/secrets/**",
	"**/.ssh/**",
	"**/tls/*key*",
	"**/auth/*secret*",
}

// DefaultKeywords are substrings of a field name that mark it sensitive.
var DefaultKeywords = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"api_key",
	"apikey",
	"private_key",
	"access_key",
	"credential",
}
