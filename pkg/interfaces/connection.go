package interfaces

// Connection is one overlay client socket
type Connection interface {
	// WriteJSON queues a frame for the connection's writer goroutine
	WriteJSON(v interface{}) error

	Close() error

	GetID() string

	// GetRemoteAddr returns the client address used as the rate-limit key
	GetRemoteAddr() string

	// GetStreamID returns the joined room, or "" before join-room
	GetStreamID() string
}
