package twitter

import (
	"fmt"
	"net/url"
	"strings"
)

// ParseCallbackURL is the manual acceptor strategy: the operator pastes the
// full redirect URL (or just its query string, or a bare code) and the same
// fields the callback server captures are extracted from it.
// It returns nil when the input is empty.
func ParseCallbackURL(input string) (*CallbackResult, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return nil, nil
	}

	candidate := trimmed
	if !strings.Contains(candidate, "://") {
		if strings.HasPrefix(candidate, "?") {
			candidate = "http://localhost" + candidate
		} else if strings.Contains(candidate, "=") {
			candidate = "http://localhost/?" + candidate
		} else {
			// A bare authorization code with no parameters at all.
			return &CallbackResult{Code: candidate}, nil
		}
	}

	parsedURL, err := url.Parse(candidate)
	if err != nil {
		return nil, err
	}

	query := parsedURL.Query()
	result := &CallbackResult{
		Code:             strings.TrimSpace(query.Get("code")),
		State:            strings.TrimSpace(query.Get("state")),
		Error:            strings.TrimSpace(query.Get("error")),
		ErrorDescription: strings.TrimSpace(query.Get("error_description")),
	}

	if result.Code == "" && result.Error == "" {
		return nil, fmt.Errorf("callback URL missing code")
	}

	return result, nil
}
