package realtime

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// ============================================
// MODEL WIRE EVENTS
// Parsed subset of the conversational-AI endpoint protocol
// ============================================

// ServerEventType classifies inbound model events
type ServerEventType string

const (
	// EventSessionReady fires on session.created / session.updated
	EventSessionReady ServerEventType = "session_ready"

	// EventAudioDelta carries a decoded chunk of model speech
	EventAudioDelta ServerEventType = "audio_delta"

	// EventAudioDone marks the end of a spoken model turn
	EventAudioDone ServerEventType = "audio_done"

	// EventAssistantTranscript is the completed transcript of a model turn
	EventAssistantTranscript ServerEventType = "assistant_transcript"

	// EventCallerTranscript is the completed transcript of a caller turn
	EventCallerTranscript ServerEventType = "caller_transcript"

	// EventFunctionCall carries completed function-call arguments
	EventFunctionCall ServerEventType = "function_call"

	// EventError is a model-reported error (not necessarily fatal)
	EventError ServerEventType = "error"

	// EventDisconnected fires once when the model connection drops
	EventDisconnected ServerEventType = "disconnected"
)

// FunctionCall is a model-issued function invocation. CallID correlates the
// eventual output item back to this call.
type FunctionCall struct {
	CallID    string `json:"call_id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON argument object
}

// APIError is the payload of a model error event
type APIError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerEvent is one parsed inbound model event
type ServerEvent struct {
	Type         ServerEventType
	Audio        []byte // EventAudioDelta only
	Transcript   string // transcript events only
	FunctionCall *FunctionCall
	Err          *APIError
}

// rawServerEvent covers the wire fields of every event type we consume
type rawServerEvent struct {
	Type       string    `json:"type"`
	Delta      string    `json:"delta,omitempty"`
	Transcript string    `json:"transcript,omitempty"`
	CallID     string    `json:"call_id,omitempty"`
	Name       string    `json:"name,omitempty"`
	Arguments  string    `json:"arguments,omitempty"`
	Error      *APIError `json:"error,omitempty"`
}

// errIgnoredEvent marks wire events outside the consumed subset
var errIgnoredEvent = fmt.Errorf("ignored event type")

// parseServerEvent maps one wire message to a ServerEvent.
// Returns errIgnoredEvent for event types outside the consumed contract.
func parseServerEvent(data []byte) (*ServerEvent, error) {
	var raw rawServerEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("unparseable model event: %w", err)
	}

	switch raw.Type {
	case "session.created", "session.updated":
		return &ServerEvent{Type: EventSessionReady}, nil

	case "response.audio.delta", "response.output_audio.delta":
		audio, err := base64.StdEncoding.DecodeString(raw.Delta)
		if err != nil {
			return nil, fmt.Errorf("bad audio delta payload: %w", err)
		}
		return &ServerEvent{Type: EventAudioDelta, Audio: audio}, nil

	case "response.audio.done", "response.output_audio.done":
		return &ServerEvent{Type: EventAudioDone}, nil

	case "response.audio_transcript.done", "response.output_audio_transcript.done":
		return &ServerEvent{Type: EventAssistantTranscript, Transcript: raw.Transcript}, nil

	case "conversation.item.input_audio_transcription.completed":
		return &ServerEvent{Type: EventCallerTranscript, Transcript: raw.Transcript}, nil

	case "response.function_call_arguments.done":
		if raw.CallID == "" || raw.Name == "" {
			return nil, fmt.Errorf("function call event missing call_id or name")
		}
		return &ServerEvent{
			Type: EventFunctionCall,
			FunctionCall: &FunctionCall{
				CallID:    raw.CallID,
				Name:      raw.Name,
				Arguments: raw.Arguments,
			},
		}, nil

	case "error":
		return &ServerEvent{Type: EventError, Err: raw.Error}, nil

	default:
		return nil, errIgnoredEvent
	}
}
