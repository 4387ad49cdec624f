package session

import "fmt"

// ValidationError reports a malformed or misdirected command: a missing
// session id, an unknown session, or inconsistent chunk metadata. It is
// reported inline and never fatal.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// AudioFormatError reports an unparseable WAV header on a session's first
// chunk. It aborts the session.
type AudioFormatError struct {
	SessionID string
	Err       error
}

func (e *AudioFormatError) Error() string {
	return fmt.Sprintf("session %s: unparseable audio header: %v", e.SessionID, e.Err)
}

func (e *AudioFormatError) Unwrap() error { return e.Err }
