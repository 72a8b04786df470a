// Package chat implements the real-time conversation core: membership
// resolution, the send/fanout path and the per-connection session
// state machine.
package chat

import "errors"

// AuthorizationError means the sender is not (or is no longer) a valid
// participant of the conversation. It is surfaced only to the sender's
// own inbox; the room never learns about a rejected send.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string { return e.Reason }

// Sentinel errors for input the session drops without closing the
// connection.
var (
	ErrEmptyContent   = errors.New("empty message content")
	ErrContentTooLong = errors.New("message content too long")
)
