package workflow

import (
	"errors"
	"fmt"
)

// ErrAlreadyStarted is returned when StartWorkflow is called twice for the
// same session.
var ErrAlreadyStarted = errors.New("workflow already started for session")

// ErrNotFinished is returned when a result is requested for a session that
// is still running.
var ErrNotFinished = errors.New("workflow not finished")

// SessionNotFoundError is returned when a session ID is unknown or its
// result has expired.
type SessionNotFoundError struct {
	SessionID string
}

func (e *SessionNotFoundError) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// IsSessionNotFound reports whether err is a SessionNotFoundError.
func IsSessionNotFound(err error) bool {
	var snf *SessionNotFoundError
	return errors.As(err, &snf)
}
