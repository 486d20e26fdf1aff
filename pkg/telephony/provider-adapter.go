package telephony

// ============================================
// PROVIDER ADAPTER
// Normalizes provider-specific wire framing into one session protocol
// ============================================

// EventType classifies normalized inbound provider events
type EventType string

const (
	EventConnected EventType = "connected"
	EventStart     EventType = "start"
	EventMedia     EventType = "media"
	EventDTMF      EventType = "dtmf"
	EventStop      EventType = "stop"

	// EventIgnored marks frames the adapter consumed but the session should
	// not act on (e.g. outbound-track echo)
	EventIgnored EventType = "ignored"

	// EventUnknown marks event names outside the provider contract
	EventUnknown EventType = "unknown"
)

// StartInfo carries the call metadata from a provider start event
type StartInfo struct {
	StreamID         string            `json:"stream_id"`
	CallID           string            `json:"call_id"`
	From             string            `json:"from"`
	To               string            `json:"to"`
	CustomParameters map[string]string `json:"custom_parameters"`
}

// MediaFrame carries one decoded inbound audio chunk
type MediaFrame struct {
	Payload []byte
}

// DTMFInfo carries a pressed digit
type DTMFInfo struct {
	Digit string `json:"digit"`
}

// StopInfo carries the provider's termination reason
type StopInfo struct {
	Reason string `json:"reason"`
}

// Event is one normalized inbound provider event
type Event struct {
	Type    EventType
	RawType string // provider's own event name

	Start *StartInfo
	Media *MediaFrame
	DTMF  *DTMFInfo
	Stop  *StopInfo
}

// ProviderAdapter translates between one provider's wire framing and the
// normalized session protocol. Adapters are per-connection: the sequence-
// numbered variant keeps outbound counters as state.
type ProviderAdapter interface {
	// Name identifies the provider ("twilio", "exotel")
	Name() string

	// ModelAudioFormat is the audio encoding requested from the model so
	// the relay reframes without transcoding
	ModelAudioFormat() string

	// ParseInbound normalizes one wire message
	ParseInbound(data []byte) (*Event, error)

	// FormatMedia frames model audio for the provider. May split one chunk
	// into several wire frames.
	FormatMedia(streamID string, audio []byte) ([][]byte, error)

	// FormatMark returns the end-of-turn mark frame, or ok=false when the
	// provider has no mark concept
	FormatMark(streamID string) ([]byte, bool)
}

// AdapterFactory builds a fresh adapter for each connection
type AdapterFactory func() ProviderAdapter
