package session

import "errors"

var (
	// ErrMalformedMessage is returned for service messages that cannot be
	// decoded or name an unknown command
	ErrMalformedMessage = errors.New("malformed service message or message handler is not implemented")
	// ErrNotImplemented is returned by capabilities a deployment does not provide
	ErrNotImplemented = errors.New("not implemented")
	// ErrSessionExists is returned when a session id is registered twice
	ErrSessionExists = errors.New("session already exists")
)
