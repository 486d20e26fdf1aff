package relay

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/birddigital/voice-receptionist/pkg/realtime"
	"github.com/birddigital/voice-receptionist/pkg/scheduling"
	"github.com/birddigital/voice-receptionist/pkg/store"
)

// ============================================
// TOOL DISPATCHER
// Routes model function calls to the scheduling engine
// ============================================

// Dispatcher executes model function calls and feeds results back into the
// model session. Results correlate strictly by the model-supplied call id,
// so concurrent in-flight calls never swap outputs.
type Dispatcher struct {
	engine   *scheduling.Engine
	model    ModelSession
	sess     *CallSession
	transfer CallTransferrer
	notifier BookingNotifier
}

func newDispatcher(engine *scheduling.Engine, model ModelSession, sess *CallSession, transfer CallTransferrer, notifier BookingNotifier) *Dispatcher {
	return &Dispatcher{
		engine:   engine,
		model:    model,
		sess:     sess,
		transfer: transfer,
		notifier: notifier,
	}
}

// toolError is the serialized shape of a dispatch-level failure
type toolError struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// Dispatch executes one function call and submits its output, then directs
// the model to continue speaking with the result incorporated
func (d *Dispatcher) Dispatch(ctx context.Context, call realtime.FunctionCall) {
	output := d.execute(ctx, call)

	if err := d.model.SubmitToolOutput(call.CallID, output); err != nil {
		log.Printf("[Dispatcher] Call %s: failed to submit %s output: %v",
			d.sess.ID, call.Name, err)
		return
	}
	if err := d.model.CreateResponse(); err != nil {
		log.Printf("[Dispatcher] Call %s: failed to continue response after %s: %v",
			d.sess.ID, call.Name, err)
	}
}

// execute runs the named operation and serializes its result. Domain
// failures come back as ordinary result values with a success flag; they are
// spoken to the caller, never retried.
func (d *Dispatcher) execute(ctx context.Context, call realtime.FunctionCall) string {
	log.Printf("[Dispatcher] Call %s: %s(%s)", d.sess.ID, call.Name, call.Arguments)

	switch call.Name {
	case realtime.ToolCheckAvailability:
		return d.checkAvailability(ctx, call.Arguments)
	case realtime.ToolBookAppointment:
		return d.bookAppointment(ctx, call.Arguments)
	case realtime.ToolCancelAppointment:
		return d.cancelAppointment(ctx, call.Arguments)
	case realtime.ToolTransferToHuman:
		return d.transferToHuman(ctx, call.Arguments)
	default:
		log.Printf("[Dispatcher] Call %s: unknown function %q", d.sess.ID, call.Name)
		return marshalResult(toolError{Message: "Unknown function."})
	}
}

func (d *Dispatcher) checkAvailability(ctx context.Context, arguments string) string {
	var args struct {
		Date string `json:"date"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil || args.Date == "" {
		return marshalResult(toolError{Message: "A date in YYYY-MM-DD format is required."})
	}

	res, err := d.engine.CheckAvailability(ctx, d.sess.Tenant, args.Date)
	if err != nil {
		log.Printf("[Dispatcher] Call %s: availability check failed: %v", d.sess.ID, err)
		return marshalResult(toolError{Message: "Could not check availability for that date."})
	}
	return marshalResult(res)
}

func (d *Dispatcher) bookAppointment(ctx context.Context, arguments string) string {
	var req scheduling.BookingRequest
	if err := json.Unmarshal([]byte(arguments), &req); err != nil {
		return marshalResult(toolError{Message: "Booking arguments were not understood."})
	}
	req.CallID = &d.sess.ID

	res, err := d.engine.BookAppointment(ctx, d.sess.Tenant, req)
	if err != nil {
		log.Printf("[Dispatcher] Call %s: booking failed: %v", d.sess.ID, err)
		return marshalResult(toolError{Message: "The booking could not be completed."})
	}

	if res.Success {
		d.sess.SetOutcome(store.OutcomeBooked)
		d.sendConfirmation(req)
	}
	return marshalResult(res)
}

// sendConfirmation texts the booking details; best effort, never blocks the
// tool result
func (d *Dispatcher) sendConfirmation(req scheduling.BookingRequest) {
	if d.notifier == nil {
		return
	}
	go func() {
		sendCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := d.notifier.SendBookingConfirmation(sendCtx, req.CustomerPhone,
			d.sess.Tenant.DisplayName, req.Date, req.Time); err != nil {
			log.Printf("[Dispatcher] Call %s: confirmation SMS failed: %v", d.sess.ID, err)
		}
	}()
}

func (d *Dispatcher) cancelAppointment(ctx context.Context, arguments string) string {
	var args struct {
		CustomerPhone string `json:"customer_phone"`
		Date          string `json:"date"`
	}
	if err := json.Unmarshal([]byte(arguments), &args); err != nil {
		return marshalResult(toolError{Message: "Cancellation arguments were not understood."})
	}

	res, err := d.engine.CancelAppointments(ctx, d.sess.Tenant, args.CustomerPhone, args.Date)
	if err != nil {
		log.Printf("[Dispatcher] Call %s: cancellation failed: %v", d.sess.ID, err)
		return marshalResult(toolError{Message: "The cancellation could not be completed."})
	}

	if res.Success {
		d.sess.SetOutcome(store.OutcomeCancelled)
	}
	return marshalResult(res)
}

func (d *Dispatcher) transferToHuman(ctx context.Context, arguments string) string {
	var args struct {
		Reason string `json:"reason"`
	}
	json.Unmarshal([]byte(arguments), &args)

	log.Printf("[Dispatcher] Call %s: transfer requested (%s)", d.sess.ID, args.Reason)
	d.sess.SetOutcome(store.OutcomeTransferred)

	// The leg redirect itself belongs to the telephony layer
	if d.transfer != nil && d.sess.Tenant.TransferNumber != "" {
		if err := d.transfer.TransferCall(ctx, d.sess.ProviderCallID, d.sess.Tenant.TransferNumber); err != nil {
			log.Printf("[Dispatcher] Call %s: transfer failed: %v", d.sess.ID, err)
		}
	}

	return marshalResult(map[string]interface{}{
		"success": true,
		"message": "Transferring the caller to a team member now. Let them know and say goodbye.",
	})
}

func marshalResult(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return `{"success":false,"message":"internal error"}`
	}
	return string(data)
}
