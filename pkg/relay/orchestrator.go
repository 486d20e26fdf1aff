package relay

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/voice-receptionist/pkg/realtime"
	"github.com/birddigital/voice-receptionist/pkg/scheduling"
	"github.com/birddigital/voice-receptionist/pkg/store"
	"github.com/birddigital/voice-receptionist/pkg/telephony"
)

// ============================================
// CALL SESSION ORCHESTRATOR
// Per-call state machine bridging the provider and model connections
// ============================================

// ModelSession is the per-call model connection consumed by the relay
type ModelSession interface {
	SendAudio(audio []byte) error
	CreateResponse() error
	SubmitToolOutput(callID, output string) error
	Events() <-chan realtime.ServerEvent
	Close() error
}

// DialModelFunc opens a model session for one call
type DialModelFunc func(ctx context.Context, cfg realtime.SessionConfig) (ModelSession, error)

// ProviderConn is the provider leg consumed by the relay.
// *telephony.StreamConn satisfies it.
type ProviderConn interface {
	Provider() string
	TenantParam() string
	ModelAudioFormat() string
	ReadEvent() (*telephony.Event, error)
	WriteMedia(audio []byte) error
	WriteMark() error
	Close() error
}

// CallTransferrer redirects a live call to a human (telephony layer)
type CallTransferrer interface {
	TransferCall(ctx context.Context, callID, number string) error
}

// BookingNotifier texts the caller after a successful booking
type BookingNotifier interface {
	SendBookingConfirmation(ctx context.Context, to, business, date, clock string) error
}

// Orchestrator runs one goroutine set per call. It owns the call lifecycle:
// Idle -> Connecting -> Streaming -> Closing -> Closed.
type Orchestrator struct {
	store    store.Store
	engine   *scheduling.Engine
	dial     DialModelFunc
	transfer CallTransferrer // optional
	notifier BookingNotifier // optional
	voice    string
}

// NewOrchestrator creates the call session orchestrator
func NewOrchestrator(st store.Store, engine *scheduling.Engine, dial DialModelFunc, transfer CallTransferrer, voice string) *Orchestrator {
	return &Orchestrator{
		store:    st,
		engine:   engine,
		dial:     dial,
		transfer: transfer,
		voice:    voice,
	}
}

// SetNotifier registers the booking-confirmation sender
func (o *Orchestrator) SetNotifier(n BookingNotifier) {
	o.notifier = n
}

// HandleSession implements telephony.SessionHandler
func (o *Orchestrator) HandleSession(ctx context.Context, conn *telephony.StreamConn) {
	o.RunSession(ctx, conn)
}

// RunSession drives one call from the provider's start event to teardown
func (o *Orchestrator) RunSession(ctx context.Context, conn ProviderConn) {
	defer conn.Close()

	// Idle: wait for the start event. Media arriving first has no session
	// to feed and is dropped.
	start := o.awaitStart(conn)
	if start == nil {
		return
	}

	// Connecting: resolve the tenant and open the model session
	tenant, err := o.resolveTenant(ctx, conn, start)
	if err != nil {
		log.Printf("[Orchestrator] Session establishment failed (%s call %s): %v",
			conn.Provider(), start.CallID, err)
		return
	}

	sess := newCallSession(conn.Provider(), start, tenant)

	if err := o.store.CreateCall(ctx, &store.CallRecord{
		ID:             sess.ID,
		TenantID:       tenant.ID,
		Provider:       sess.Provider,
		StreamID:       sess.StreamID,
		ProviderCallID: sess.ProviderCallID,
		FromNumber:     sess.FromNumber,
		ToNumber:       sess.ToNumber,
		Outcome:        store.OutcomeUnknown,
		StartedAt:      sess.StartedAt,
	}); err != nil {
		log.Printf("[Orchestrator] Failed to open call record %s: %v", sess.ID, err)
	}

	model, err := o.dial(ctx, realtime.SessionConfig{
		Instructions: realtime.BuildInstructions(tenant, time.Now()),
		Voice:        o.voice,
		AudioFormat:  conn.ModelAudioFormat(),
		Tools:        realtime.ReceptionistTools(),
	})
	if err != nil {
		// Establishment failure: close the provider leg without any audio
		// exchange. Distinct from a mid-call transport failure.
		log.Printf("[Orchestrator] Session establishment failed (call %s): model session: %v",
			sess.ID, err)
		sess.SetOutcome(store.OutcomeFailed)
		sess.setState(StateClosing)
		o.finalize(sess)
		return
	}

	log.Printf("[Orchestrator] Call %s connecting (tenant %s, provider %s)",
		sess.ID, tenant.ID, sess.Provider)

	o.stream(ctx, sess, conn, model)
	o.finalize(sess)
}

// awaitStart consumes provider events until the start event arrives
func (o *Orchestrator) awaitStart(conn ProviderConn) *telephony.StartInfo {
	for {
		event, err := conn.ReadEvent()
		if err != nil {
			return nil
		}

		switch event.Type {
		case telephony.EventConnected:
			log.Printf("[Orchestrator] Provider connected (%s)", conn.Provider())
		case telephony.EventStart:
			return event.Start
		case telephony.EventStop:
			log.Printf("[Orchestrator] Provider stopped before start (%s)", conn.Provider())
			return nil
		default:
			// Media before start: drop, live audio has no value once stale
		}
	}
}

// resolveTenant picks the tenant id (provider custom parameter wins over
// the URL parameter) and loads the config snapshot
func (o *Orchestrator) resolveTenant(ctx context.Context, conn ProviderConn, start *telephony.StartInfo) (*store.TenantConfig, error) {
	raw := conn.TenantParam()
	if fromStart := start.CustomParameters["tenant_id"]; fromStart != "" {
		raw = fromStart
	}

	tenantID, err := uuid.Parse(raw)
	if err != nil {
		return nil, &establishError{"invalid tenant identifier", err}
	}

	tenant, err := o.store.TenantConfig(ctx, tenantID)
	if err != nil {
		return nil, &establishError{"tenant lookup failed", err}
	}
	return tenant, nil
}

type establishError struct {
	msg string
	err error
}

func (e *establishError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *establishError) Unwrap() error { return e.err }

// stream runs the Streaming state: both legs are read concurrently and
// neither side blocks the other. Within each direction, messages forward in
// arrival order.
func (o *Orchestrator) stream(ctx context.Context, sess *CallSession, conn ProviderConn, model ModelSession) {
	// modelOpen gates provider audio: frames before the model reports ready,
	// or after it drops, are discarded rather than queued
	var modelOpen atomic.Bool

	// teardown closes both legs exactly once; either leg ending triggers it
	var teardown sync.Once
	shutdown := func(reason string) {
		teardown.Do(func() {
			log.Printf("[Orchestrator] Call %s closing: %s", sess.ID, reason)
			sess.setState(StateClosing)
			modelOpen.Store(false)
			model.Close()
			conn.Close()
		})
	}

	dispatcher := newDispatcher(o.engine, model, sess, o.transfer, o.notifier)

	// Provider leg
	providerDone := make(chan struct{})
	go func() {
		defer close(providerDone)
		for {
			event, err := conn.ReadEvent()
			if err != nil {
				shutdown("provider connection closed")
				return
			}

			switch event.Type {
			case telephony.EventMedia:
				if !modelOpen.Load() {
					continue
				}
				if err := model.SendAudio(event.Media.Payload); err != nil {
					// Model leg gone; the model loop handles teardown
					continue
				}
			case telephony.EventDTMF:
				log.Printf("[Orchestrator] Call %s DTMF digit: %s", sess.ID, event.DTMF.Digit)
			case telephony.EventStop:
				shutdown("provider stop event: " + event.Stop.Reason)
				return
			}
		}
	}()

	// Model leg, drained to channel close so no event is left behind
	for event := range model.Events() {
		switch event.Type {
		case realtime.EventSessionReady:
			sess.setState(StateStreaming)
			modelOpen.Store(true)
			// Initial greeting directive
			if err := model.CreateResponse(); err != nil {
				log.Printf("[Orchestrator] Call %s greeting directive failed: %v", sess.ID, err)
			}

		case realtime.EventAudioDelta:
			if err := conn.WriteMedia(event.Audio); err != nil {
				shutdown("provider write failed")
			}

		case realtime.EventAudioDone:
			if err := conn.WriteMark(); err != nil {
				shutdown("provider write failed")
			}

		case realtime.EventAssistantTranscript:
			sess.AppendUtterance("assistant", event.Transcript)

		case realtime.EventCallerTranscript:
			sess.AppendUtterance("caller", event.Transcript)

		case realtime.EventFunctionCall:
			// Dispatch off the audio path so a slow scheduling call never
			// stalls media in either direction
			go dispatcher.Dispatch(ctx, *event.FunctionCall)

		case realtime.EventError:
			if event.Err != nil {
				log.Printf("[Orchestrator] Call %s model error: %s (%s)",
					sess.ID, event.Err.Message, event.Err.Code)
			}

		case realtime.EventDisconnected:
			// A dropped model session ends the call; no reconnection
			shutdown("model session disconnected")
		}
	}

	shutdown("model event stream ended")
	<-providerDone
}

// finalize persists the transcript and end timestamp exactly once. A
// persistence failure is logged and never blocks closing the call.
func (o *Orchestrator) finalize(sess *CallSession) {
	if !sess.markFinalized() {
		return
	}

	outcome := sess.Outcome()
	if outcome == store.OutcomeUnknown {
		outcome = store.OutcomeCompleted
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := o.store.FinalizeCall(ctx, sess.ID, outcome, sess.Transcript(), time.Now()); err != nil {
		log.Printf("[Orchestrator] Failed to finalize call record %s: %v", sess.ID, err)
		return
	}

	log.Printf("[Orchestrator] Call %s closed (outcome: %s, %d transcript entries)",
		sess.ID, outcome, len(sess.Transcript()))
}
