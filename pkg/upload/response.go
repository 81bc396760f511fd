package upload

import (
	"errors"
	"fmt"
	"strings"
)

// Verdict statuses accepted in the status field.
const (
	StatusFound    = "found"
	StatusNotFound = "not_found"
)

// Result messages shown to the user.
const (
	MessageFound    = "User Found"
	MessageNotFound = "User Not Found"
)

// Response is the backend verdict for one upload. Either Match or Status
// must be present; presence of a body alone is not a match.
type Response struct {
	Match   *bool  `json:"match,omitempty"`
	Status  string `json:"status,omitempty"`
	UserID  string `json:"user_id,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message,omitempty"`

	// CaptureID is filled in by the client from the request.
	CaptureID string `json:"-"`
}

// Matched returns the explicit verdict. Match wins over Status when both
// are set.
func (r *Response) Matched() (bool, error) {
	if r.Match != nil {
		return *r.Match, nil
	}
	switch strings.ToLower(r.Status) {
	case StatusFound:
		return true, nil
	case StatusNotFound:
		return false, nil
	case "":
		return false, ErrAmbiguousResponse
	default:
		return false, fmt.Errorf("%w: unknown status %q", ErrAmbiguousResponse, r.Status)
	}
}

// ResultMessage maps the verdict to the user-facing message.
func (r *Response) ResultMessage() string {
	if ok, _ := r.Matched(); ok {
		return MessageFound
	}
	return MessageNotFound
}

// Bool returns a pointer to v, for building responses.
func Bool(v bool) *bool {
	return &v
}

// ErrAmbiguousResponse is returned when the body carries no explicit verdict.
var ErrAmbiguousResponse = errors.New("upload: response has no match verdict")

// APIError represents a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upload: backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("upload: backend returned status %d: %s", e.StatusCode, e.Body)
}

// IsServerError returns true for HTTP 5xx.
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsUnauthorized returns true for HTTP 401 and 403.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}
