package websocket

import (
	"github.com/sasha-s/go-deadlock"

	"bullmeter/pkg/types"
)

// Registry tracks open connections and the stream room each one has joined.
// A connection belongs to at most one room.
type Registry struct {
	mu          deadlock.RWMutex
	connections map[string]*Connection            // connectionID -> Connection
	rooms       map[string]map[string]*Connection // streamID -> connectionID -> Connection
}

func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
		rooms:       make(map[string]map[string]*Connection),
	}
}

// Register adds a connection that has not joined a room yet
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.GetID()]; exists {
		return ErrDuplicateRegister
	}
	r.connections[conn.GetID()] = conn
	return nil
}

// Join moves the connection into streamID's room, leaving its previous room
// first. It returns the room that was left, if any.
func (r *Registry) Join(conn *Connection, streamID string) (string, error) {
	if conn == nil {
		return "", ErrNilConnection
	}
	if !types.IsValidStreamID(streamID) {
		return "", ErrInvalidStreamID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if registered, exists := r.connections[conn.GetID()]; !exists || registered != conn {
		return "", ErrNotRegistered
	}

	previous := conn.GetStreamID()
	if previous != "" {
		r.removeFromRoomLocked(previous, conn.GetID())
	}

	if r.rooms[streamID] == nil {
		r.rooms[streamID] = make(map[string]*Connection)
	}
	r.rooms[streamID][conn.GetID()] = conn
	conn.setStreamID(streamID)

	return previous, nil
}

// Leave removes the connection from its room but keeps it registered
func (r *Registry) Leave(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if streamID := conn.GetStreamID(); streamID != "" {
		r.removeFromRoomLocked(streamID, conn.GetID())
		conn.setStreamID("")
	}
}

// Unregister removes the connection and its room membership. Idempotent.
func (r *Registry) Unregister(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.GetID()]
	if !exists || registered != conn {
		return
	}

	delete(r.connections, conn.GetID())
	if streamID := conn.GetStreamID(); streamID != "" {
		r.removeFromRoomLocked(streamID, conn.GetID())
	}
}

func (r *Registry) removeFromRoomLocked(streamID, connID string) {
	if room, exists := r.rooms[streamID]; exists {
		delete(room, connID)
		if len(room) == 0 {
			delete(r.rooms, streamID)
		}
	}
}

// RoomConnections returns a snapshot of the room's members
func (r *Registry) RoomConnections(streamID string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room := r.rooms[streamID]
	connections := make([]*Connection, 0, len(room))
	for _, conn := range room {
		connections = append(connections, conn)
	}
	return connections
}

func (r *Registry) RoomSize(streamID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[streamID])
}

// GetStats returns connection and room counts for the health endpoint
func (r *Registry) GetStats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return map[string]int{
		"total_connections": len(r.connections),
		"active_rooms":      len(r.rooms),
	}
}
