package portal

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAuth          = errors.New("portal authentication failed")
	ErrGroupNotFound = errors.New("group not found")
)

// APIError is the error object the portal returns inside a JSON body,
// usually alongside HTTP 200.
type APIError struct {
	Code        int      `json:"code"`
	MessageCode string   `json:"messageCode"`
	Message     string   `json:"message"`
	Details     []string `json:"details"`
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("portal error %d: %s", e.Code, e.Message)
	if len(e.Details) > 0 {
		msg += " (" + strings.Join(e.Details, "; ") + ")"
	}
	return msg
}

// statusError is a non-2xx HTTP response.
type statusError struct {
	StatusCode int
	Status     string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status: %s", e.Status)
}

func (e *statusError) transient() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}
