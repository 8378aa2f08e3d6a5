package publisher

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ifuryst/relay/internal/models"
)

var (
	ErrUnknownPlatform   = errors.New("no adapter registered for platform")
	ErrAlreadyRegistered = errors.New("adapter already registered")
)

// MissingSecretError is returned when a secret bundle lacks required fields.
type MissingSecretError struct {
	Platform models.Platform
	Fields   []string
}

func (e MissingSecretError) Error() string {
	if len(e.Fields) == 0 {
		return fmt.Sprintf("%s credentials not configured", e.Platform)
	}
	return fmt.Sprintf("%s credentials incomplete (missing %s)", e.Platform, strings.Join(e.Fields, ", "))
}

// RequireSecrets returns the trimmed values of keys, or a MissingSecretError
// naming every key that is absent or blank.
func RequireSecrets(platform models.Platform, secrets models.SecretBundle, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	var missing []string
	for _, key := range keys {
		value := strings.TrimSpace(secrets.Get(key))
		if value == "" {
			missing = append(missing, key)
			continue
		}
		values[key] = value
	}

	if len(missing) > 0 {
		return nil, MissingSecretError{Platform: platform, Fields: missing}
	}
	return values, nil
}

// APIError is a non-2xx answer from a platform API.
type APIError struct {
	Platform   models.Platform
	StatusCode int
	Message    string
	// Throttled is set when the platform signals rate limiting or another
	// retryable condition in the body rather than with its status.
	Throttled bool
}

func (e *APIError) Error() string {
	status := fmt.Sprintf("%d", e.StatusCode)
	if text := http.StatusText(e.StatusCode); text != "" {
		status = fmt.Sprintf("%d (%s)", e.StatusCode, text)
	}
	if e.Message == "" || e.Message == http.StatusText(e.StatusCode) {
		return fmt.Sprintf("%s API returned status %s", e.Platform, status)
	}
	return fmt.Sprintf("%s API returned status %s: %s", e.Platform, status, e.Message)
}
