package telephony

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ============================================
// TWILIO MEDIA STREAMS ADAPTER
// 8 kHz G.711 mu-law, payload-keyed frames, no outbound sequencing
// ============================================

// TwilioAdapter implements ProviderAdapter for Twilio Media Streams
type TwilioAdapter struct{}

// NewTwilioAdapter creates a per-connection Twilio adapter
func NewTwilioAdapter() ProviderAdapter {
	return &TwilioAdapter{}
}

func (a *TwilioAdapter) Name() string { return "twilio" }

func (a *TwilioAdapter) ModelAudioFormat() string { return "g711_ulaw" }

// twilioInbound covers the inbound Media Streams envelope
type twilioInbound struct {
	Event string `json:"event"`
	Start *struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start,omitempty"`
	Media *struct {
		Track   string `json:"track"`
		Payload string `json:"payload"`
	} `json:"media,omitempty"`
	DTMF *struct {
		Digit string `json:"digit"`
	} `json:"dtmf,omitempty"`
	Stop *struct {
		CallSID string `json:"callSid"`
		Reason  string `json:"reason"`
	} `json:"stop,omitempty"`
}

// ParseInbound normalizes one Twilio wire message
func (a *TwilioAdapter) ParseInbound(data []byte) (*Event, error) {
	var msg twilioInbound
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
				From:             params["from"],
				To:               params["to"],
				CustomParameters: params,
			},
		}, nil

	case "media":
		if msg.Media == nil {
			return nil, fmt.Errorf("media event missing payload")
		}
		// Only inbound-track audio feeds the model
		if msg.Media.Track != "" && msg.Media.Track != "inbound" {
			return &Event{Type: EventIgnored, RawType: msg.Event}, nil
		}
		audio, err := base64.StdEncoding.DecodeString(msg.Media.Payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode audio payload: %w", err)
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

// FormatMedia frames one model audio chunk as a single outbound media event
func (a *TwilioAdapter) FormatMedia(streamID string, audio []byte) ([][]byte, error) {
	frame, err := json.Marshal(map[string]interface{}{
		"event":     "media",
		"streamSid": streamID,
		"media": map[string]interface{}{
			"payload": base64.StdEncoding.EncodeToString(audio),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal media frame: %w", err)
	}
	return [][]byte{frame}, nil
}

// FormatMark is a no-op: Twilio playback needs no end-of-turn marker here
func (a *TwilioAdapter) FormatMark(streamID string) ([]byte, bool) {
	return nil, false
}
