package negotiation

import (
	"errors"
	"fmt"
)

var (
	ErrRoomFull      = errors.New("room is full")
	ErrStaleMessage  = errors.New("stale signaling message")
	ErrTransport     = errors.New("transport error")
	ErrChannelLost   = errors.New("signaling connection lost")
	ErrPeerLeft      = errors.New("peer left")
	ErrSessionClosed = errors.New("session closed")
	ErrNotJoined     = errors.New("not joined to a room")
	ErrInvalidState  = errors.New("invalid negotiation state")
)

// Error describes a failed negotiation step. Err is one of the sentinels
// above.
type Error struct {
	Op      string
	Room    string
	Err     error
	Details string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Op, e.Err)
	if e.Room != "" {
		msg = fmt.Sprintf("%s %s: %v", e.Op, e.Room, e.Err)
	}
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(op, room string, err error) *Error {
	return &Error{Op: op, Room: room, Err: err}
}

// WrapError records cause as details of a sentinel error.
func WrapError(op, room string, err error, cause error) *Error {
	e := &Error{Op: op, Room: room, Err: err}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}
