// Package logging scrubs secrets out of values before they reach the logs.
package logging

import (
	"net/url"
	"regexp"

	"go.uber.org/zap"
)

const (
	// MaxContentLogLength is the longest item content or diff excerpt written to a log line.
	MaxContentLogLength = 120
	// RedactedText is the replacement text for sensitive data
	RedactedText = "[REDACTED]"
)

var (
	// password=xxx, pwd=xxx, pass=xxx (until next delimiter)
	passwordPattern = regexp.MustCompile(`(?i)(password|pwd|pass)=[^;&\s]+`)

	// Bearer tokens sent to condition collaborators
	bearerPattern = regexp.MustCompile(`(?i)Bearer\s+[A-Za-z0-9._~+/=-]+`)

	// token=xxx / api_key=xxx query parameters
	tokenParamPattern = regexp.MustCompile(`(?i)(token|access_token|api[_-]?key|apikey)=[^;&\s"]+`)

	// user:pass@host
	connStringPattern = regexp.MustCompile(`://[^:/\s]+:[^@\s]+@[^/\s]+`)
)

// SanitizeConnectionString removes sensitive data from connection strings
// Use this before logging any connection string
func SanitizeConnectionString(connStr string) string {
	if connStr == "" {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(connStr, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// SanitizeURL strips credentials and secret query parameters from a collaborator
// endpoint. Unparseable input falls back to pattern scrubbing.
func SanitizeURL(raw string) string {
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return tokenParamPattern.ReplaceAllString(SanitizeConnectionString(raw), "${1}="+RedactedText)
	}

	if u.User != nil {
		u.User = url.User(RedactedText)
	}
	q := u.Query()
	for key := range q {
		if tokenParamPattern.MatchString(key + "=x") {
			q.Set(key, RedactedText)
		}
	}
	u.RawQuery = q.Encode()

	// url.String escapes the brackets of the marker
	return escapedMarker.ReplaceAllString(u.String(), RedactedText)
}

// SanitizeError sanitizes error messages that might contain sensitive data
// Use this before logging any error from database or collaborator calls
func SanitizeError(err error) string {
	if err == nil {
		return ""
	}

	sanitized := passwordPattern.ReplaceAllString(err.Error(), "${1}="+RedactedText)
	sanitized = bearerPattern.ReplaceAllString(sanitized, "Bearer "+RedactedText)
	sanitized = tokenParamPattern.ReplaceAllString(sanitized, "${1}="+RedactedText)
	return connStringPattern.ReplaceAllString(sanitized, "://"+RedactedText+"@"+RedactedText)
}

// Error is zap.Error with the message passed through SanitizeError.
func Error(err error) zap.Field {
	return zap.String("error", SanitizeError(err))
}

// TruncateString truncates a string to maxLen and adds ellipsis if needed
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Content truncates item content for a log field.
func Content(key, s string) zap.Field {
	return zap.String(key, TruncateString(s, MaxContentLogLength))
}

var escapedMarker = regexp.MustCompile(`%5BREDACTED%5D`)
