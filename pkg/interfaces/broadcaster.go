package interfaces

// Broadcaster delivers one event to every member of a stream room.
// Publish must not reorder events issued by a single caller.
type Broadcaster interface {
	Publish(streamID, event string, payload interface{}) error
}
