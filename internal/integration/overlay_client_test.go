package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"bullmeter/pkg/types"
)

// received is one decoded server frame
type received struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// OverlayClient is a socket client joined to one stream room
type OverlayClient struct {
	StreamID  string
	ServerURL string

	conn     *websocket.Conn
	messages chan *received
	done     chan struct{}

	writeMu sync.Mutex
	mu      sync.RWMutex
	closed  bool
}

func NewOverlayClient(streamID, serverURL string) *OverlayClient {
	return &OverlayClient{
		StreamID:  streamID,
		ServerURL: serverURL,
		messages:  make(chan *received, 1000),
		done:      make(chan struct{}),
	}
}

// Connect dials the socket with streamId set and waits until the join has
// been applied on the server
func (oc *OverlayClient) Connect(ctx context.Context) error {
	u, err := url.Parse(oc.ServerURL)
	if err != nil {
		return fmt.Errorf("invalid server URL: %w", err)
	}
	if u.Scheme == "http" {
		u.Scheme = "ws"
	} else if u.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/bullmeter"
	query := u.Query()
	query.Set("streamId", oc.StreamID)
	u.RawQuery = query.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	oc.conn = conn
	go oc.readLoop()

	if err := oc.Send(types.ClientMessage{Type: types.ClientHeartbeat}); err != nil {
		return err
	}
	_, err = oc.WaitFor(types.EventHeartbeatAck, 5*time.Second)
	return err
}

func (oc *OverlayClient) readLoop() {
	defer close(oc.done)
	for {
		var msg received
		if err := oc.conn.ReadJSON(&msg); err != nil {
			return
		}
		select {
		case oc.messages <- &msg:
		default:
			// buffer full; the test will notice the missing frames
		}
	}
}

// Send writes one client message
func (oc *OverlayClient) Send(msg types.ClientMessage) error {
	oc.writeMu.Lock()
	defer oc.writeMu.Unlock()
	return oc.conn.WriteJSON(msg)
}

// WaitFor returns the next frame with the given event, skipping others
func (oc *OverlayClient) WaitFor(event string, timeout time.Duration) (*received, error) {
	deadline := time.After(timeout)
	for {
		select {
		case msg := <-oc.messages:
			if msg.Event == event {
				return msg, nil
			}
		case <-oc.done:
			return nil, fmt.Errorf("connection closed while waiting for %s", event)
		case <-deadline:
			return nil, fmt.Errorf("timeout waiting for %s", event)
		}
	}
}

// Collect gathers n frames of the given event in arrival order
func (oc *OverlayClient) Collect(event string, n int, timeout time.Duration) ([]*received, error) {
	out := make([]*received, 0, n)
	for len(out) < n {
		msg, err := oc.WaitFor(event, timeout)
		if err != nil {
			return out, fmt.Errorf("after %d of %d: %w", len(out), n, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (oc *OverlayClient) Close() {
	oc.mu.Lock()
	defer oc.mu.Unlock()
	if oc.closed || oc.conn == nil {
		return
	}
	oc.closed = true
	oc.conn.Close()
}
