package relay

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/voice-receptionist/pkg/store"
	"github.com/birddigital/voice-receptionist/pkg/telephony"
)

// ============================================
// CALL SESSION
// Per-call state owned exclusively by its orchestrator
// ============================================

// SessionState is the call lifecycle state
type SessionState int

const (
	StateIdle SessionState = iota
	StateConnecting
	StateStreaming
	StateClosing
	StateClosed
)

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "invalid"
	}
}

// CallSession tracks one active phone call: identifiers, the immutable
// tenant snapshot, the accumulated transcript and the outcome. Never shared
// across calls.
type CallSession struct {
	ID             uuid.UUID
	Provider       string
	StreamID       string
	ProviderCallID string
	FromNumber     string
	ToNumber       string
	Tenant         *store.TenantConfig
	StartedAt      time.Time

	mu         sync.Mutex
	state      SessionState
	transcript []store.Utterance
	outcome    string
	finalized  bool
}

// newCallSession creates a session entering the Connecting state
func newCallSession(provider string, start *telephony.StartInfo, tenant *store.TenantConfig) *CallSession {
	return &CallSession{
		ID:             uuid.New(),
		Provider:       provider,
		StreamID:       start.StreamID,
		ProviderCallID: start.CallID,
		FromNumber:     start.From,
		ToNumber:       start.To,
		Tenant:         tenant,
		StartedAt:      time.Now(),
		state:          StateConnecting,
		outcome:        store.OutcomeUnknown,
	}
}

// State returns the current lifecycle state
func (s *CallSession) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// setState advances the lifecycle state. Closed is terminal.
func (s *CallSession) setState(state SessionState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return
	}
	s.state = state
}

// AppendUtterance records one speaker-tagged transcript entry
func (s *CallSession) AppendUtterance(speaker, text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transcript = append(s.transcript, store.Utterance{
		Speaker: speaker,
		Text:    text,
		At:      time.Now(),
	})
}

// Transcript returns a copy of the accumulated transcript
func (s *CallSession) Transcript() []store.Utterance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Utterance, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// SetOutcome records the call outcome classification
func (s *CallSession) SetOutcome(outcome string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcome = outcome
}

// Outcome returns the current outcome classification
func (s *CallSession) Outcome() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.outcome
}

// markFinalized flips the finalized flag; true only on the first call.
// Every closure path after the first becomes a no-op through this guard.
func (s *CallSession) markFinalized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finalized {
		return false
	}
	s.finalized = true
	s.state = StateClosed
	return true
}
