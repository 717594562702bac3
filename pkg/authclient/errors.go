package authclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrSessionExpired is returned to every request whose token could not be
// refreshed. The session has already been cleared when it is returned.
var ErrSessionExpired = errors.New("authclient: session expired")

type APIError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("authclient: status %d", e.Status)
	}
	return fmt.Sprintf("authclient: status %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func decodeAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{Status: resp.StatusCode}

	var payload struct {
		Message json.RawMessage   `json:"message"`
		Fields  map[string]string `json:"fields"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		apiErr.Fields = payload.Fields
		var msg string
		if json.Unmarshal(payload.Message, &msg) == nil {
			apiErr.Message = msg
		}
	}
	return apiErr
}
