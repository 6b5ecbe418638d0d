package observability

import (
	"strings"
	"unicode"
)

// Field length caps for request log values. Entity ids here are short
// (prefixed ULIDs), so the identifier cap stays well under the generic one.
const (
	defaultFieldLimit = 256
	routeFieldLimit   = 128
	methodFieldLimit  = 10
	idFieldLimit      = 40
)

// sanitizeString strips control characters and caps the length so attacker
// supplied values cannot inject log lines or bloat entries.
func sanitizeString(value string, limit int) string {
	if limit <= 0 {
		limit = defaultFieldLimit
	}
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
	if len(cleaned) > limit {
		cleaned = cleaned[:limit]
	}
	return cleaned
}

// SanitizeRoute normalises a chi route pattern for logging.
func SanitizeRoute(route string) string {
	if route == "" {
		return "/"
	}
	return sanitizeString(route, routeFieldLimit)
}

// SanitizeMethod bounds the HTTP method field.
func SanitizeMethod(method string) string {
	return sanitizeString(method, methodFieldLimit)
}

// SanitizeUserID bounds principal identifiers before they reach log output.
func SanitizeUserID(uid string) string {
	if uid == "" {
		return ""
	}
	return sanitizeString(uid, idFieldLimit)
}
