package util

import (
	"net/url"
	"strings"
)

// sensitiveQueryKeys lists query parameters whose values must never reach
// the logs verbatim.
var sensitiveQueryKeys = map[string]bool{
	"code":          true,
	"state":         true,
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
}

// MaskSensitiveQuery redacts the values of sensitive query parameters while
// keeping the remaining query string readable in request logs.
func MaskSensitiveQuery(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery
	}
	changed := false
	for key := range values {
		if sensitiveQueryKeys[strings.ToLower(key)] {
			values.Set(key, "***")
			changed = true
		}
	}
	if !changed {
		return rawQuery
	}
	return values.Encode()
}

// HideToken shortens a token for log output, keeping a recognizable prefix
// and suffix while hiding the bulk of the value.
func HideToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:4] + "..." + token[len(token)-4:]
}
