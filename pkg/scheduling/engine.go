package scheduling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/voice-receptionist/pkg/store"
)

// ============================================
// SCHEDULING ENGINE
// Slot generation, conflict detection, booking and cancellation
// ============================================

// Engine computes availability and executes booking transactions
type Engine struct {
	tenants      store.TenantStore
	appointments store.AppointmentStore
	customers    store.CustomerStore
	services     store.ServiceStore
}

// NewEngine creates a scheduling engine over the record store
func NewEngine(tenants store.TenantStore, appointments store.AppointmentStore, customers store.CustomerStore, services store.ServiceStore) *Engine {
	return &Engine{
		tenants:      tenants,
		appointments: appointments,
		customers:    customers,
		services:     services,
	}
}

// maxSummaryTimes caps the example times listed in the spoken summary
const maxSummaryTimes = 5

// AvailabilityResult is the outcome of a check_availability operation
type AvailabilityResult struct {
	Available bool     `json:"available"`
	Date      string   `json:"date"`
	Slots     []string `json:"slots"` // open start times, "15:04" clock format
	Summary   string   `json:"summary"`
}

// BookingRequest carries the arguments of a book_appointment operation
type BookingRequest struct {
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone"`
	Date          string     `json:"date"` // "2006-01-02"
	Time          string     `json:"time"` // "15:04"
	Service       string     `json:"service,omitempty"`
	Notes         string     `json:"notes,omitempty"`
	CallID        *uuid.UUID `json:"-"`
}

// BookingResult is the outcome of a booking attempt.
// Domain failures are result values, not errors.
type BookingResult struct {
	Success       bool       `json:"success"`
	Message       string     `json:"message"`
	AppointmentID *uuid.UUID `json:"appointment_id,omitempty"`
}

// CancelResult is the outcome of a cancellation attempt
type CancelResult struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Cancelled int    `json:"cancelled"`
}

// ============================================
// AVAILABILITY
// ============================================

// CheckAvailability generates the open slots for a tenant on a date.
// A disabled weekday or a blackout date yields an explicit closed result
// with an empty slot list.
func (e *Engine) CheckAvailability(ctx context.Context, tenant *store.TenantConfig, date string) (*AvailabilityResult, error) {
	loc := tenant.Location()

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	window := tenant.WorkingHours[day.Weekday()]
	if !window.Enabled {
		return &AvailabilityResult{
			Available: false,
			Date:      date,
			Slots:     []string{},
			Summary:   fmt.Sprintf("%s is closed on %s.", tenant.DisplayName, day.Weekday()),
		}, nil
	}

	blackout, err := e.tenants.IsBlackoutDate(ctx, tenant.ID, day)
	if err != nil {
		return nil, fmt.Errorf("failed to check blackout date: %w", err)
	}
	if blackout {
		return &AvailabilityResult{
			Available: false,
			Date:      date,
			Slots:     []string{},
			Summary:   fmt.Sprintf("%s is not taking appointments on %s.", tenant.DisplayName, date),
		}, nil
	}

	windowStart, err := clockOnDay(day, window.Start)
	if err != nil {
		return nil, fmt.Errorf("invalid working-hours start %q: %w", window.Start, err)
	}
	windowEnd, err := clockOnDay(day, window.End)
	if err != nil {
		return nil, fmt.Errorf("invalid working-hours end %q: %w", window.End, err)
	}

	existing, err := e.appointments.AppointmentsBetween(ctx, tenant.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to load appointments: %w", err)
	}

	slotDur := time.Duration(tenant.SlotDurationMin) * time.Minute
	step := slotDur + time.Duration(tenant.BufferMin)*time.Minute

	slots := []string{}
	for start := windowStart; !start.Add(slotDur).After(windowEnd); start = start.Add(step) {
		end := start.Add(slotDur)

		taken := false
		for i := range existing {
			if existing[i].Overlaps(start, end) {
				taken = true
				break
			}
		}
		if !taken {
			slots = append(slots, start.Format("15:04"))
		}
	}

	return &AvailabilityResult{
		Available: len(slots) > 0,
		Date:      date,
		Slots:     slots,
		Summary:   summarizeSlots(date, slots),
	}, nil
}

// summarizeSlots builds the spoken availability summary, capped at
// maxSummaryTimes example times plus a remainder count
func summarizeSlots(date string, slots []string) string {
	if len(slots) == 0 {
		return fmt.Sprintf("There are no open times on %s.", date)
	}

	shown := slots
	remainder := 0
	if len(slots) > maxSummaryTimes {
		shown = slots[:maxSummaryTimes]
		remainder = len(slots) - maxSummaryTimes
	}

	summary := fmt.Sprintf("Open times on %s: %s", date, strings.Join(shown, ", "))
	if remainder > 0 {
		summary += fmt.Sprintf(" and %d more", remainder)
	}
	return summary + "."
}

// ============================================
// BOOKING
// ============================================

// BookAppointment books a slot after re-validating availability. The
// availability re-check plus insert runs as one logical transaction in the
// store, so a concurrent booking of the same slot fails explicitly rather
// than double-booking.
func (e *Engine) BookAppointment(ctx context.Context, tenant *store.TenantConfig, req BookingRequest) (*BookingResult, error) {
	if req.CustomerPhone == "" {
		return &BookingResult{Success: false, Message: "A phone number is required to book."}, nil
	}

	avail, err := e.CheckAvailability(ctx, tenant, req.Date)
	if err != nil {
		return nil, err
	}
	if !slotListed(avail.Slots, req.Time) {
		return &BookingResult{
			Success: false,
			Message: fmt.Sprintf("%s on %s is no longer available. %s", req.Time, req.Date, avail.Summary),
		}, nil
	}

	customer, err := e.customers.UpsertCustomer(ctx, tenant.ID, req.CustomerPhone, req.CustomerName)
	if err != nil {
		log.Printf("[Scheduling] Customer upsert failed for tenant %s: %v", tenant.ID, err)
		return &BookingResult{Success: false, Message: "Sorry, the booking could not be saved."}, nil
	}

	// Optional service link; the slot duration stays the tenant's configured
	// duration whether or not the name matches.
	var serviceID *uuid.UUID
	if req.Service != "" {
		svc, err := e.services.FindServiceByName(ctx, tenant.ID, req.Service)
		if err != nil {
			log.Printf("[Scheduling] Service lookup failed for %q: %v", req.Service, err)
		} else if svc != nil {
			serviceID = &svc.ID
		}
	}

	loc := tenant.Location()
	startsAt, err := time.ParseInLocation("2006-01-02 15:04", req.Date+" "+req.Time, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid booking time %q %q: %w", req.Date, req.Time, err)
	}

	appt := &store.Appointment{
		ID:            uuid.New(),
		TenantID:      tenant.ID,
		CustomerID:    &customer.ID,
		CallID:        req.CallID,
		ServiceID:     serviceID,
		CustomerName:  req.CustomerName,
		CustomerPhone: req.CustomerPhone,
		StartsAt:      startsAt,
		DurationMin:   tenant.SlotDurationMin,
		Status:        store.StatusConfirmed,
		Notes:         req.Notes,
		CreatedAt:     time.Now(),
	}

	if err := e.appointments.CreateAppointment(ctx, appt); err != nil {
		if errors.Is(err, store.ErrSlotTaken) {
			return &BookingResult{
				Success: false,
				Message: fmt.Sprintf("%s on %s was just taken. Please pick another time.", req.Time, req.Date),
			}, nil
		}
		log.Printf("[Scheduling] Appointment insert failed for tenant %s: %v", tenant.ID, err)
		return &BookingResult{Success: false, Message: "Sorry, the booking could not be saved."}, nil
	}

	return &BookingResult{
		Success:       true,
		Message:       fmt.Sprintf("Booked at %s for %s on %s at %s.", tenant.DisplayName, req.CustomerName, req.Date, req.Time),
		AppointmentID: &appt.ID,
	}, nil
}

// ============================================
// CANCELLATION
// ============================================

// CancelAppointments cancels confirmed appointments matching a phone number,
// optionally restricted to one date. Zero matches is an explicit failure,
// never a successful cancellation of nothing.
func (e *Engine) CancelAppointments(ctx context.Context, tenant *store.TenantConfig, phone, date string) (*CancelResult, error) {
	if phone == "" {
		return &CancelResult{Success: false, Message: "A phone number is required to cancel."}, nil
	}

	var from, to *time.Time
	if date != "" {
		loc := tenant.Location()
		day, err := time.ParseInLocation("2006-01-02", date, loc)
		if err != nil {
			return nil, fmt.Errorf("invalid date %q: %w", date, err)
		}
		dayEnd := day.AddDate(0, 0, 1)
		from, to = &day, &dayEnd
	}

	count, err := e.appointments.CancelAppointmentsByPhone(ctx, tenant.ID, phone, from, to)
	if err != nil {
		log.Printf("[Scheduling] Cancellation failed for tenant %s: %v", tenant.ID, err)
		return &CancelResult{Success: false, Message: "Sorry, the cancellation could not be completed."}, nil
	}

	if count == 0 {
		msg := "No confirmed appointments were found for that phone number"
		if date != "" {
			msg += " on " + date
		}
		return &CancelResult{Success: false, Message: msg + "."}, nil
	}

	return &CancelResult{
		Success:   true,
		Message:   fmt.Sprintf("Cancelled %d appointment(s).", count),
		Cancelled: count,
	}, nil
}

// ============================================
// HELPERS
// ============================================

// clockOnDay places a "15:04" clock time on the given calendar day
func clockOnDay(day time.Time, clock string) (time.Time, error) {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(day.Year(), day.Month(), day.Day(), t.Hour(), t.Minute(), 0, 0, day.Location()), nil
}

func slotListed(slots []string, want string) bool {
	for _, s := range slots {
		if s == want {
			return true
		}
	}
	return false
}
