package rpc

import (
	"errors"
	"fmt"
)

// ErrClosed is returned for every call that was outstanding, or is attempted,
// after the connection has gone away. It is never retryable.
var ErrClosed = errors.New("rpc: connection closed")

// RemoteError carries the error payload the server returned for one request.
type RemoteError struct {
	Method  string
	Payload any
}

func (e *RemoteError) Error() string {
	if m, ok := e.Payload.(map[string]any); ok {
		for _, key := range []string{"Message", "message"} {
			if msg, ok := m[key].(string); ok {
				return fmt.Sprintf("%s failed: %s", e.Method, msg)
			}
		}
	}
	return fmt.Sprintf("%s failed: %v", e.Method, e.Payload)
}

var _ error = (*RemoteError)(nil)
