package publisher

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strings"
)

var transientMarkers = []string{
	"rate limit",
	"throttl",
	"too many requests",
	"timeout",
	"timed out",
	"connection reset",
	"econnreset",
	"connection refused",
	"no such host",
	"dns",
	"network",
}

// transientStatusText matches a bare 5xx gateway status quoted in a message.
var transientStatusText = regexp.MustCompile(`\b50[0234]\b`)

var credentialMarkers = []string{
	"token",
	"auth",
	"credential",
}

// IsTransientStatus reports whether an HTTP status is worth retrying later.
func IsTransientStatus(code int) bool {
	return code == http.StatusTooManyRequests || (code >= 500 && code <= 599)
}

// IsTransient classifies err as transient (rate limiting, 5xx, connection
// level trouble) or permanent (everything else, auth and validation included).
// An APIError with a status is classified by its status and Throttled flag
// alone; message heuristics only apply to errors without one.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode != 0 {
			return apiErr.Throttled || IsTransientStatus(apiErr.StatusCode)
		}
		if apiErr.Throttled {
			return true
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	return IsTransientMessage(err.Error())
}

// IsTransientMessage applies the textual heuristics of IsTransient.
func IsTransientMessage(message string) bool {
	return containsAny(message, transientMarkers) || transientStatusText.MatchString(message)
}

// IsCredentialFailure reports whether a failure message points at the
// credential itself (token, auth or credential wording).
func IsCredentialFailure(message string) bool {
	return containsAny(message, credentialMarkers)
}

func containsAny(message string, markers []string) bool {
	lower := strings.ToLower(message)
	for _, marker := range markers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
