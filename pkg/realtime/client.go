package realtime

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// ============================================
// MODEL SESSION CLIENT
// One WebSocket connection per call to the conversational-AI endpoint
// ============================================

const defaultEndpoint = "wss://api.openai.com/v1/realtime"

// Config holds endpoint credentials shared by all sessions
type Config struct {
	APIKey   string
	Model    string
	Endpoint string // defaults to the OpenAI realtime endpoint
}

// Validate checks the required credentials before any session is opened
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("model API key not configured")
	}
	if c.Model == "" {
		return fmt.Errorf("model name not configured")
	}
	return nil
}

// Tool is one function-call declaration sent with the session configuration
type Tool struct {
	Type        string                 `json:"type"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// SessionConfig is the per-call session.update payload. AudioFormat carries
// the provider-native encoding so the relay never transcodes.
type SessionConfig struct {
	Instructions string
	Voice        string
	AudioFormat  string // "g711_ulaw" or "pcm16"
	Tools        []Tool
}

// Session is an open model connection. All writers serialize on writeMu;
// inbound events are delivered on the Events channel in arrival order.
type Session struct {
	conn    *websocket.Conn
	events  chan ServerEvent
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dialer opens model sessions
type Dialer struct {
	cfg Config
}

// NewDialer creates a session dialer. Returns a configuration error when
// required credentials are missing, so session-establishment failures are
// surfaced before any call arrives.
func NewDialer(cfg Config) (*Dialer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	return &Dialer{cfg: cfg}, nil
}

// Dial opens a model session and sends the configuration directive.
// The session is usable once an EventSessionReady arrives on Events().
func (d *Dialer) Dial(ctx context.Context, sc SessionConfig) (*Session, error) {
	url := fmt.Sprintf("%s?model=%s", d.cfg.Endpoint, d.cfg.Model)

	header := http.Header{}
	header.Set("Authorization", "Bearer "+d.cfg.APIKey)
	header.Set("OpenAI-Beta", "realtime=v1")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to model endpoint: %w", err)
	}

	s := &Session{
		conn:   conn,
		events: make(chan ServerEvent, 64),
		closed: make(chan struct{}),
	}

	if err := s.sendSessionUpdate(sc); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to configure model session: %w", err)
	}

	go s.readPump()

	return s, nil
}

// Events returns the inbound event stream. The channel closes after
// EventDisconnected is delivered.
func (s *Session) Events() <-chan ServerEvent {
	return s.events
}

// sendSessionUpdate sends the session.update configuration directive
func (s *Session) sendSessionUpdate(sc SessionConfig) error {
	voice := sc.Voice
	if voice == "" {
		voice = "alloy"
	}

	return s.writeJSON(map[string]interface{}{
		"type": "session.update",
		"session": map[string]interface{}{
			"modalities":          []string{"text", "audio"},
			"instructions":        sc.Instructions,
			"voice":               voice,
			"input_audio_format":  sc.AudioFormat,
			"output_audio_format": sc.AudioFormat,
			"input_audio_transcription": map[string]interface{}{
				"model": "whisper-1",
			},
			"turn_detection": map[string]interface{}{
				"type":                "server_vad",
				"threshold":           0.5,
				"prefix_padding_ms":   300,
				"silence_duration_ms": 500,
			},
			"tools":       sc.Tools,
			"tool_choice": "auto",
		},
	})
}

// SendAudio appends one audio chunk to the model's input buffer
func (s *Session) SendAudio(audio []byte) error {
	return s.writeJSON(map[string]interface{}{
		"type":  "input_audio_buffer.append",
		"audio": base64.StdEncoding.EncodeToString(audio),
	})
}

// CreateResponse directs the model to begin (or continue) a spoken turn
func (s *Session) CreateResponse() error {
	return s.writeJSON(map[string]interface{}{
		"type": "response.create",
	})
}

// SubmitToolOutput feeds a function result back into the conversation,
// correlated to the model-supplied call id
func (s *Session) SubmitToolOutput(callID, output string) error {
	return s.writeJSON(map[string]interface{}{
		"type": "conversation.item.create",
		"item": map[string]interface{}{
			"type":    "function_call_output",
			"call_id": callID,
			"output":  output,
		},
	})
}

// writeJSON serializes one client directive onto the wire
func (s *Session) writeJSON(v interface{}) error {
	select {
	case <-s.closed:
		return errors.New("model session closed")
	default:
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(v)
}

// readPump parses inbound model events until the connection drops.
// Malformed events are dropped with a warning; they never end the session.
func (s *Session) readPump() {
	defer func() {
		s.events <- ServerEvent{Type: EventDisconnected}
		close(s.events)
	}()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("[ModelSession] Read error: %v", err)
			}
			return
		}

		event, err := parseServerEvent(data)
		if err != nil {
			if !errors.Is(err, errIgnoredEvent) {
				log.Printf("[ModelSession] Dropping malformed event: %v", err)
			}
			continue
		}

		s.events <- *event
	}
}

// Close closes the model connection. Idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.writeMu.Lock()
		s.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		s.writeMu.Unlock()
		s.conn.Close()
	})
	return nil
}
