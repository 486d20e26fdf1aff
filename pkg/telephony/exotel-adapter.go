package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ============================================
// EXOTEL VOICEBOT ADAPTER
// 8 kHz 16-bit linear PCM, chunk-keyed frames, explicit sequence numbers
// ============================================

// Exotel expects outbound payload sizes in multiples of one 20 ms PCM16
// frame (320 bytes); larger model deltas are split before framing.
const (
	exotelChunkAlign = 320
	exotelMaxChunk   = 3200
)

// ExotelAdapter implements ProviderAdapter for Exotel voicebot streams.
// Outbound frames carry a monotonically increasing per-session sequence
// number; media frames additionally carry their own chunk counter.
type ExotelAdapter struct {
	seq   int
	chunk int
}

// NewExotelAdapter creates a per-connection Exotel adapter
func NewExotelAdapter() ProviderAdapter {
	return &ExotelAdapter{}
}

func (a *ExotelAdapter) Name() string { return "exotel" }

func (a *ExotelAdapter) ModelAudioFormat() string { return "pcm16" }

// exotelInbound covers the inbound voicebot envelope
type exotelInbound struct {
	Event          string      `json:"event"`
	SequenceNumber json.Number `json:"sequence_number,omitempty"`
	StreamSID      string      `json:"stream_sid,omitempty"`
	Start          *struct {
		StreamSID        string            `json:"stream_sid"`
		CallSID          string            `json:"call_sid"`
		From             string            `json:"from"`
		To               string            `json:"to"`
		CustomParameters map[string]string `json:"custom_parameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Chunk     json.Number `json:"chunk"`
		Timestamp string      `json:"timestamp"`
		Payload   string      `json:"payload"`
	} `json:"media,omitempty"`
	DTMF *struct {
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
	Stop *struct {
		Reason string `json:"reason"`
	} `json:"stop,omitempty"`
}

// ParseInbound normalizes one Exotel wire message
func (a *ExotelAdapter) ParseInbound(data []byte) (*Event, error) {
	var msg exotelInbound
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}

	switch msg.Event {
	case "connected":
		return &Event{Type: EventConnected, RawType: msg.Event}, nil

	case "start":
		if msg.Start == nil {
			return nil, fmt.Errorf("start event missing payload")
		}
		params := msg.Start.CustomParameters
		if params == nil {
			params = map[string]string{}
		}
		return &Event{
			Type:    EventStart,
			RawType: msg.Event,
			Start: &StartInfo{
				StreamID:         msg.Start.StreamSID,
				CallID:           msg.Start.CallSID,
				From:             msg.Start.From,
				To:               msg.Start.To,
				CustomParameters: params,
			},
		}, nil

	case "media":
		if msg.Media == nil {
			return nil, fmt.Errorf("media event missing chunk payload")
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio chunk: %w", err)
		}
		return &Event{Type: EventMedia, RawType: msg.Event, Media: &MediaFrame{Payload: audio}}, nil

	case "dtmf":
		if msg.DTMF == nil {
			return nil, fmt.Errorf("dtmf event missing payload")
		}
		return &Event{Type: EventDTMF, RawType: msg.Event, DTMF: &DTMFInfo{Digit: msg.DTMF.Digit}}, nil

	case "stop":
		reason := ""
		if msg.Stop != nil {
			reason = msg.Stop.Reason
		}
		return &Event{Type: EventStop, RawType: msg.Event, Stop: &StopInfo{Reason: reason}}, nil

	default:
		return &Event{Type: EventUnknown, RawType: msg.Event}, nil
	}
}

// FormatMedia splits the model audio into aligned chunks and frames each
// with the next sequence and chunk numbers
func (a *ExotelAdapter) FormatMedia(streamID string, audio []byte) ([][]byte, error) {
	chunks := SplitAudioBuffer(audio, exotelMaxChunk, exotelChunkAlign)

	frames := make([][]byte, 0, len(chunks))
	for _, chunk := range chunks {
		a.seq++
		a.chunk++

		frame, err := json.Marshal(map[string]interface{}{
			"event":           "media",
			"stream_sid":      streamID,
			"sequence_number": a.seq,
			"media": map[string]interface{}{
				"chunk":     a.chunk,
				"timestamp": strconv.FormatInt(time.Now().UnixMilli(), 10),
				"payload":   base64.StdEncoding.EncodeToString(chunk),
			},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to marshal media frame: %w", err)
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

// FormatMark emits the sequence-numbered end-of-turn mark frame so the
// provider can track playback completion
func (a *ExotelAdapter) FormatMark(streamID string) ([]byte, bool) {
	a.seq++

	frame, err := json.Marshal(map[string]interface{}{
		"event":           "mark",
		"stream_sid":      streamID,
		"sequence_number": a.seq,
		"mark": map[string]interface{}{
			"name": fmt.Sprintf("turn-%d", a.seq),
		},
	})
	if err != nil {
		return nil, false
	}
	return frame, true
}
