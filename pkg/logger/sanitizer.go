package logger

import (
	"regexp"
	"strings"
)

// Sensitive field patterns to filter from logs
var (
	passwordPattern = regexp.MustCompile(`(?i)(password|passwd|pwd)[\s:=]+[^\s]+`)
	bearerPattern   = regexp.MustCompile(`(?i)(bearer)\s+[A-Za-z0-9\-_=]+(\.[A-Za-z0-9\-_=]+)*`)
	tokenPattern    = regexp.MustCompile(`(?i)(access_token|token|jwt)[\s:=]+[^\s&]+`)
	jwtShapePattern = regexp.MustCompile(`eyJ[A-Za-z0-9\-_=]+\.[A-Za-z0-9\-_=]+\.[A-Za-z0-9\-_=]*`)
	secretPattern   = regexp.MustCompile(`(?i)(secret|private[_-]?key)[\s:=]+[^\s]+`)
)

const redactedPlaceholder = "[REDACTED]"

// Sanitize removes credentials from free text such as upstream error
// messages before they are logged or shown.
func Sanitize(message string) string {
	// Redact passwords
	message = passwordPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)

	// Redact bearer credentials
	message = bearerPattern.ReplaceAllString(message, "${1} "+redactedPlaceholder)

	// Redact tokens
	message = tokenPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)
	message = jwtShapePattern.ReplaceAllString(message, redactedPlaceholder)

	// Redact secrets
	message = secretPattern.ReplaceAllString(message, "${1}="+redactedPlaceholder)

	return message
}

// SanitizeHeaders returns a copy of h with credential-bearing values replaced.
func SanitizeHeaders(h map[string][]string) map[string][]string {
	sensitiveKeys := []string{
		"authorization", "cookie", "set-cookie",
		"x-api-key", "proxy-authorization",
	}

	sanitized := make(map[string][]string, len(h))
	for k, v := range h {
		lowerKey := strings.ToLower(k)
		isSensitive := false

		for _, sensitiveKey := range sensitiveKeys {
			if lowerKey == sensitiveKey {
				isSensitive = true
				break
			}
		}

		if isSensitive {
			sanitized[k] = []string{redactedPlaceholder}
		} else {
			sanitized[k] = v
		}
	}

	return sanitized
}
