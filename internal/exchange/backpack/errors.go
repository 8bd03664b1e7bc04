package backpack

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
)

// Response body text included in errors is capped at this many characters.
const maxErrorBodyLen = 200

// APIError is a non-2xx response from the exchange. The body is sanitized:
// truncated, and dropped entirely for 401 responses so credential-adjacent
// diagnostics never reach logs or callers.
type APIError struct {
	Status int
	Body   string
}

func (e APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("backpack http error %d", e.Status)
	}
	return fmt.Sprintf("backpack http error %d: %s", e.Status, e.Body)
}

func newAPIError(status int, body []byte) error {
	apiErr := APIError{Status: status}
	if status != http.StatusUnauthorized {
		msg := strings.TrimSpace(string(body))
		if len(msg) > maxErrorBodyLen {
			msg = msg[:maxErrorBodyLen]
		}
		apiErr.Body = msg
	}
	switch status {
	case http.StatusNotFound:
		return errors.Join(apiErr, core.ErrNotFound)
	case http.StatusUnauthorized:
		return errors.Join(apiErr, core.ErrUnauthorized)
	}
	return apiErr
}

func AsAPIError(err error) (APIError, bool) {
	var apiErr APIError
	if err == nil || !errors.As(err, &apiErr) {
		return APIError{}, false
	}
	return apiErr, true
}
