package live

import (
	"errors"
	"fmt"
)

// ErrSessionActive is returned by [Controller.Start] when a session is already
// starting or running.
var ErrSessionActive = errors.New("live: session already active")

// PermissionError reports that a user-grantable resource was denied. The user
// must act before retrying.
type PermissionError struct {
	// Resource names what was denied: "microphone" or "api_key".
	Resource string
	Err      error
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("live: %s permission denied: %v", e.Resource, e.Err)
}

func (e *PermissionError) Unwrap() error { return e.Err }

// TransportError reports a failure of the live session connection. It always
// ends the session.
type TransportError struct {
	// Op is the operation that failed: "connect" or "receive".
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("live: transport %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
