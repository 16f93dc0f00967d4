package collab

import "errors"

var (
	ErrNodeNotFound       = errors.New("node not found")
	ErrConnectionNotFound = errors.New("connection not found")
	ErrUnknownOperation   = errors.New("unknown operation type")
	ErrUnknownStrategy    = errors.New("unknown anchor strategy")
	ErrInvalidOperation   = errors.New("invalid operation")
	ErrInvalidMessage     = errors.New("invalid message")
	ErrUnsupportedMessage = errors.New("unsupported message type")
)
