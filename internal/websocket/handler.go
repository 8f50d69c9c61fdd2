package websocket

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"bullmeter/internal/logger"
	"bullmeter/pkg/interfaces"
	"bullmeter/pkg/types"
)

const testUserID = "test_user"

// RoomCoordinator serializes room membership changes with outgoing events
type RoomCoordinator interface {
	Join(conn *Connection, streamID string) error
	Unregister(conn *Connection) error
}

// HandlerOptions carries the socket timings
type HandlerOptions struct {
	PingInterval time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SendBuffer   int
}

// DefaultHandlerOptions returns a 30s ping, 60s read deadline and 10s write deadline
func DefaultHandlerOptions() HandlerOptions {
	return HandlerOptions{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: DefaultWriteTimeout,
		SendBuffer:   DefaultSendBuffer,
	}
}

// Handler upgrades overlay clients and dispatches their inbound messages
type Handler struct {
	registry   *Registry
	rooms      RoomCoordinator
	controller interfaces.RoundController
	opts       HandlerOptions
	upgrader   websocket.Upgrader
	log        *logger.Logger
}

func NewHandler(registry *Registry, rooms RoomCoordinator, controller interfaces.RoundController, opts HandlerOptions, log *logger.Logger) *Handler {
	defaults := DefaultHandlerOptions()
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaults.PingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = defaults.ReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaults.WriteTimeout
	}
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Handler{
		registry:   registry,
		rooms:      rooms,
		controller: controller,
		opts:       opts,
		upgrader: websocket.Upgrader{
			// overlays are embedded in OBS browser sources with arbitrary origins
			CheckOrigin:      func(r *http.Request) bool { return true },
			HandshakeTimeout: 10 * time.Second,
		},
		log: log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// HandleWebSocket upgrades the request. An optional streamId query
// parameter joins that room right away.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	streamID := r.URL.Query().Get("streamId")
	if streamID != "" && !types.IsValidStreamID(streamID) {
		http.Error(w, "Invalid streamId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	wsConn := NewConnection(conn, ClientAddress(r), h.opts.SendBuffer, h.opts.WriteTimeout)
	if err := h.registry.Register(wsConn); err != nil {
		h.log.Errorf("Failed to register connection: %v", err)
		_ = wsConn.Close()
		return
	}
	h.log.Infof("Connection registered: id=%s addr=%s", wsConn.GetID(), wsConn.GetRemoteAddr())

	if streamID != "" {
		h.joinRoom(wsConn, streamID)
	}

	go h.handleConnection(wsConn)
}

// handleConnection runs the read pump and keepalive until the client goes away
func (h *Handler) handleConnection(conn *Connection) {
	defer func() {
		if err := h.rooms.Unregister(conn); err != nil {
			h.registry.Unregister(conn)
		}
		_ = conn.Close()
		h.log.Infof("Connection closed: id=%s stream=%s", conn.GetID(), conn.GetStreamID())
	}()

	if err := conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout)); err != nil {
		h.log.Warnf("Failed to set read deadline: %v", err)
		return
	}
	conn.conn.SetPongHandler(func(string) error {
		return conn.conn.SetReadDeadline(time.Now().Add(h.opts.ReadTimeout))
	})

	go h.keepalive(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.log.Warnf("WebSocket error: %v", err)
			}
			return
		}

		if messageType == websocket.TextMessage {
			h.dispatch(conn, data)
		}
	}
}

func (h *Handler) keepalive(conn *Connection) {
	ticker := time.NewTicker(h.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := conn.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(h.opts.WriteTimeout)); err != nil {
				return
			}
		case <-conn.Done():
			return
		}
	}
}

// dispatch handles one inbound frame. Failures are reported to the sender
// only; nothing is broadcast for a rejected message.
func (h *Handler) dispatch(conn *Connection, data []byte) {
	var msg types.ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
		h.replyError(conn, ErrInvalidMessage)
		return
	}

	var err error
	switch msg.Type {
	case types.ClientJoinRoom:
		h.joinRoom(conn, msg.StreamID)
		return

	case types.ClientHeartbeat:
		streamID := msg.StreamID
		if streamID == "" {
			streamID = conn.GetStreamID()
		}
		h.reply(conn, types.EventHeartbeatAck, types.HeartbeatAckPayload{
			Timestamp: time.Now().UnixMilli(),
			StreamID:  streamID,
		})
		return

	case types.ClientTestVote:
		if msg.User == nil {
			err = ErrMissingUser
			break
		}
		_, err = h.controller.Vote(&types.VoteRequest{
			StreamID:      msg.StreamID,
			Side:          msg.Side,
			Credits:       msg.Credits,
			User:          *msg.User,
			UserID:        testUserID,
			SourceAddress: conn.GetRemoteAddr(),
		})

	case types.ClientTestSpam:
		if msg.User == nil {
			err = ErrMissingUser
			break
		}
		_, err = h.controller.Spam(&types.SpamRequest{
			StreamID:      msg.StreamID,
			Side:          msg.Side,
			Tier:          msg.Tier,
			User:          *msg.User,
			UserID:        testUserID,
			SourceAddress: conn.GetRemoteAddr(),
		})

	case types.ClientTestReveal:
		_, err = h.controller.Reveal(msg.StreamID)

	default:
		err = ErrUnknownMessageType
	}

	if err != nil {
		h.log.Debugf("Inbound %s rejected: id=%s err=%v", msg.Type, conn.GetID(), err)
		h.replyError(conn, err)
	}
}

func (h *Handler) joinRoom(conn *Connection, streamID string) {
	if err := h.rooms.Join(conn, streamID); err != nil {
		h.log.Debugf("Join rejected: id=%s stream=%q err=%v", conn.GetID(), streamID, err)
		h.replyError(conn, err)
	}
}

func (h *Handler) reply(conn *Connection, event string, payload interface{}) {
	if err := conn.WriteJSON(types.Envelope{Event: event, Data: payload}); err != nil {
		h.log.Debugf("Failed to reply %s to %s: %v", event, conn.GetID(), err)
	}
}

func (h *Handler) replyError(conn *Connection, err error) {
	message := err.Error()
	if errors.Is(err, types.ErrInternal) {
		message = types.ErrInternal.Error()
	}
	h.reply(conn, types.EventError, types.ErrorPayload{Message: message})
}
