package errors

import (
	"errors"
	"strings"
)

// BlockedError means a site redirected the request to a captcha or
// verification page instead of serving results. No attempt is made to get
// past it; the source is simply treated as failed.
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	reason := strings.TrimSpace(e.Reason)
	if reason == "" {
		return "blocked by " + e.URL
	}
	return "blocked by " + e.URL + ": " + reason
}

// NewBlockedError creates a BlockedError for the given page.
func NewBlockedError(url, reason string) *BlockedError {
	return &BlockedError{URL: url, Reason: reason}
}

// IsBlockedError reports whether err is a BlockedError (even when wrapped).
func IsBlockedError(err error) bool {
	var blocked *BlockedError
	return errors.As(err, &blocked)
}
