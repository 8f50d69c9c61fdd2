package hub

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/sasha-s/go-deadlock"

	"bullmeter/internal/logger"
	"bullmeter/internal/websocket"
	"bullmeter/pkg/types"
)

const (
	eventBuffer      = 1000
	joinBuffer       = 100
	unregisterBuffer = 100
)

// LiveRoundSource supplies the round a late joiner should be synced to
type LiveRoundSource interface {
	LiveRound(streamID string) (*types.Round, bool)
}

// Hub owns room fan-out. One goroutine drains events, joins and
// unregistrations in arrival order, so a room sees events in publish order.
type Hub struct {
	eventChannel      chan *Broadcast
	joinChannel       chan *joinRequest
	unregisterChannel chan *websocket.Connection
	shutdownChannel   chan struct{}

	registry *websocket.Registry
	rounds   LiveRoundSource
	log      *logger.Logger

	running bool
	mu      deadlock.RWMutex
}

// Broadcast is one event addressed to a stream room
type Broadcast struct {
	StreamID  string
	Envelope  types.Envelope
	Timestamp time.Time
}

type joinRequest struct {
	conn     *websocket.Connection
	streamID string
	result   chan error
}

func NewHub(registry *websocket.Registry, rounds LiveRoundSource, log *logger.Logger) *Hub {
	if log == nil {
		log = logger.Nop()
	}
	return &Hub{
		eventChannel:      make(chan *Broadcast, eventBuffer),
		joinChannel:       make(chan *joinRequest, joinBuffer),
		unregisterChannel: make(chan *websocket.Connection, unregisterBuffer),
		shutdownChannel:   make(chan struct{}),
		registry:          registry,
		rounds:            rounds,
		log:               log,
	}
}

// Start launches the hub goroutine
func (h *Hub) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.running {
		h.mu.Unlock()
		return ErrHubAlreadyRunning
	}
	h.running = true
	h.shutdownChannel = make(chan struct{})
	shutdown := h.shutdownChannel
	h.mu.Unlock()

	h.log.Infof("Starting room hub...")
	go h.run(ctx, shutdown)

	return nil
}

// Stop signals the hub goroutine to exit
func (h *Hub) Stop() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.running {
		return ErrHubNotRunning
	}
	h.running = false

	h.log.Infof("Stopping room hub...")
	close(h.shutdownChannel)

	return nil
}

// IsRunning reports whether Start has been called without a matching Stop
func (h *Hub) IsRunning() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.running
}

// Publish implements interfaces.Broadcaster. It never blocks; a full queue
// is reported to the caller.
func (h *Hub) Publish(streamID, event string, payload interface{}) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	b := &Broadcast{
		StreamID:  streamID,
		Envelope:  types.Envelope{Event: event, Data: payload},
		Timestamp: time.Now(),
	}

	select {
	case h.eventChannel <- b:
		return nil
	default:
		return ErrEventChannelFull
	}
}

// Join moves conn into streamID's room on the hub goroutine and waits for
// the result. A live round is sent to the joiner only.
func (h *Hub) Join(conn *websocket.Connection, streamID string) error {
	req := &joinRequest{conn: conn, streamID: streamID, result: make(chan error, 1)}

	h.mu.RLock()
	if !h.running {
		h.mu.RUnlock()
		return ErrHubNotRunning
	}
	shutdown := h.shutdownChannel
	select {
	case h.joinChannel <- req:
	default:
		h.mu.RUnlock()
		return ErrJoinChannelFull
	}
	h.mu.RUnlock()

	select {
	case err := <-req.result:
		return err
	case <-shutdown:
		return ErrHubNotRunning
	}
}

// Unregister queues removal of a closed connection
func (h *Hub) Unregister(conn *websocket.Connection) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.running {
		return ErrHubNotRunning
	}

	select {
	case h.unregisterChannel <- conn:
		return nil
	default:
		return ErrUnregisterChannelFull
	}
}

// GetStats returns queue depths for the health endpoint
func (h *Hub) GetStats() map[string]int {
	return map[string]int{
		"pending_events": len(h.eventChannel),
		"pending_joins":  len(h.joinChannel),
	}
}

func (h *Hub) run(ctx context.Context, shutdown chan struct{}) {
	defer h.log.Infof("Hub processing stopped")

	for {
		select {
		case b := <-h.eventChannel:
			h.handleBroadcast(b)

		case req := <-h.joinChannel:
			req.result <- h.handleJoin(req.conn, req.streamID)

		case conn := <-h.unregisterChannel:
			h.registry.Unregister(conn)
			h.log.Debugf("Connection deregistered: id=%s", conn.GetID())

		case <-shutdown:
			h.log.Infof("Hub shutdown requested")
			return

		case <-ctx.Done():
			h.log.Infof("Hub context cancelled")
			h.markStopped(shutdown)
			return
		}
	}
}

// markStopped releases pending joiners when the context ends the hub
func (h *Hub) markStopped(shutdown chan struct{}) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.running && h.shutdownChannel == shutdown {
		h.running = false
		close(shutdown)
	}
}

// handleBroadcast encodes once and queues the frame on every room member.
// A member whose send buffer is full is dropped.
func (h *Hub) handleBroadcast(b *Broadcast) {
	data, err := json.Marshal(b.Envelope)
	if err != nil {
		h.log.Errorf("Failed to encode %s for stream %s: %v", b.Envelope.Event, b.StreamID, err)
		return
	}

	members := h.registry.RoomConnections(b.StreamID)
	for _, conn := range members {
		if err := conn.Enqueue(data); errors.Is(err, websocket.ErrSendBufferFull) {
			h.log.Warnf("Dropping slow connection: id=%s stream=%s", conn.GetID(), b.StreamID)
			h.registry.Unregister(conn)
			_ = conn.Close()
		}
	}
	h.log.Tracef("Broadcast %s: stream=%s recipients=%d", b.Envelope.Event, b.StreamID, len(members))
}

func (h *Hub) handleJoin(conn *websocket.Connection, streamID string) error {
	previous, err := h.registry.Join(conn, streamID)
	if err != nil {
		return err
	}
	h.log.Infof("Connection joined room: id=%s stream=%s previous=%q", conn.GetID(), streamID, previous)

	if h.rounds == nil {
		return nil
	}
	round, live := h.rounds.LiveRound(streamID)
	if !live {
		return nil
	}

	data, err := json.Marshal(types.Envelope{Event: types.EventRoundStarted, Data: round.Summary()})
	if err != nil {
		return err
	}
	if err := conn.Enqueue(data); err != nil {
		h.log.Warnf("Failed to sync live round to %s: %v", conn.GetID(), err)
	}
	return nil
}
