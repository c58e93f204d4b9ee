package llm

import (
	"errors"
	"fmt"
)

// Sentinel errors for LLM operations
var (
	// ErrConnectionFailed indicates the upstream connection failed
	ErrConnectionFailed = errors.New("LLM connection failed")

	// ErrRequestFailed indicates the upstream request failed
	ErrRequestFailed = errors.New("LLM request failed")

	// ErrEmptyResponse indicates the upstream returned no choices
	ErrEmptyResponse = errors.New("LLM returned an empty response")
)

// UpstreamError carries the HTTP status the provider answered with when the
// request could not be established.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream error %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream error %d: %s", e.StatusCode, e.Body)
}

// AsUpstreamError extracts an UpstreamError from an error chain
func AsUpstreamError(err error) (*UpstreamError, bool) {
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue, true
	}
	return nil, false
}
