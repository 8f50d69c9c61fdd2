package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
	ErrSendBufferFull   = errors.New("send buffer is full")
)

// Registry-related errors
var (
	ErrNilConnection     = errors.New("connection cannot be nil")
	ErrNotRegistered     = errors.New("connection is not registered")
	ErrInvalidStreamID   = errors.New("invalid stream id")
	ErrDuplicateRegister = errors.New("connection already registered")
)

// Handler-related errors
var (
	ErrInvalidMessage     = errors.New("invalid message format")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingUser        = errors.New("user is required")
)
