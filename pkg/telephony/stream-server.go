package telephony

import (
	"context"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ============================================
// PROVIDER STREAM SERVER
// WebSocket endpoint carrying one provider media stream per connection
// ============================================

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Provider media servers connect from carrier infrastructure
		return true
	},
}

// SessionHandler runs the per-call session logic over an upgraded stream
type SessionHandler interface {
	HandleSession(ctx context.Context, conn *StreamConn)
}

// StreamServer upgrades provider connections and hands them to the handler
type StreamServer struct {
	newAdapter AdapterFactory
	handler    SessionHandler
}

// NewStreamServer creates a stream server for one provider variant
func NewStreamServer(newAdapter AdapterFactory, handler SessionHandler) *StreamServer {
	return &StreamServer{
		newAdapter: newAdapter,
		handler:    handler,
	}
}

// ServeHTTP handles the WebSocket upgrade and runs the session to completion
func (s *StreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	adapter := s.newAdapter()
	tenantParam := r.URL.Query().Get("tenant_id")

	conn, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[StreamServer] WebSocket upgrade failed (%s): %v", adapter.Name(), err)
		return
	}

	log.Printf("[StreamServer] Provider connection established (%s)", adapter.Name())

	sc := &StreamConn{
		conn:    conn,
		adapter: adapter,
		tenant:  tenantParam,
	}
	defer sc.Close()

	s.handler.HandleSession(r.Context(), sc)
}

// ============================================
// STREAM CONNECTION
// ============================================

// StreamConn wraps one provider WebSocket connection with its adapter.
// Reads happen from a single goroutine; writes serialize on writeMu.
type StreamConn struct {
	conn    *websocket.Conn
	adapter ProviderAdapter
	tenant  string // tenant id from the URL parameter, may be empty

	streamID string
	writeMu  sync.Mutex

	closeOnce sync.Once
}

// Provider returns the adapter's provider name
func (c *StreamConn) Provider() string { return c.adapter.Name() }

// TenantParam returns the tenant id carried on the stream URL
func (c *StreamConn) TenantParam() string { return c.tenant }

// ModelAudioFormat returns the audio encoding to request from the model
func (c *StreamConn) ModelAudioFormat() string { return c.adapter.ModelAudioFormat() }

// ReadEvent returns the next normalized provider event. Malformed messages
// are dropped with a warning and never end the session; an error return
// means the connection itself is gone.
func (c *StreamConn) ReadEvent() (*Event, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[StreamConn] Read error (%s): %v", c.adapter.Name(), err)
			}
			return nil, err
		}

		event, err := c.adapter.ParseInbound(data)
		if err != nil {
			log.Printf("[StreamConn] Dropping malformed %s message: %v", c.adapter.Name(), err)
			continue
		}

		switch event.Type {
		case EventIgnored:
			continue
		case EventUnknown:
			log.Printf("[StreamConn] Unknown %s event type: %s", c.adapter.Name(), event.RawType)
			continue
		case EventStart:
			c.streamID = event.Start.StreamID
		}

		return event, nil
	}
}

// WriteMedia frames model audio for the provider and writes it out
func (c *StreamConn) WriteMedia(audio []byte) error {
	frames, err := c.adapter.FormatMedia(c.streamID, audio)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	for _, frame := range frames {
		if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
			return err
		}
	}
	return nil
}

// WriteMark emits the end-of-turn mark for providers that track playback
func (c *StreamConn) WriteMark() error {
	frame, ok := c.adapter.FormatMark(c.streamID)
	if !ok {
		return nil
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, frame)
}

// Close closes the provider connection. Idempotent.
func (c *StreamConn) Close() error {
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		c.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		c.writeMu.Unlock()
		c.conn.Close()
	})
	return nil
}
