package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ============================================
// RECORD STORE TYPES & INTERFACES
// Transactional data access consumed by the call relay
// ============================================

var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrSlotTaken is returned when an appointment insert would overlap
	// an existing confirmed or pending appointment
	ErrSlotTaken = errors.New("appointment slot already taken")
)

// DayWindow defines the working-hours window for one weekday
type DayWindow struct {
	Enabled bool   `json:"enabled"`
	Start   string `json:"start"` // "09:00" clock time
	End     string `json:"end"`   // "17:00" clock time
}

// TenantConfig is the immutable per-call snapshot of a tenant's settings.
// Loaded once at session start; never mutated by the relay.
type TenantConfig struct {
	ID                 uuid.UUID `json:"id"`
	DisplayName        string    `json:"display_name"`
	BusinessCategory   string    `json:"business_category"`
	CustomInstructions string    `json:"custom_instructions"`
	Timezone           string    `json:"timezone"` // IANA name, e.g. "America/New_York"
	SlotDurationMin    int       `json:"slot_duration_minutes"`
	BufferMin          int       `json:"buffer_minutes"`
	TransferNumber     string    `json:"transfer_number"`

	// WorkingHours is indexed by time.Weekday (Sunday = 0)
	WorkingHours [7]DayWindow `json:"working_hours"`
}

// Location resolves the tenant timezone, falling back to UTC
func (t *TenantConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Utterance is one speaker-tagged transcript entry
type Utterance struct {
	Speaker string    `json:"speaker"` // "caller" or "assistant"
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Call outcome classifications
const (
	OutcomeUnknown     = "unknown"
	OutcomeBooked      = "booked"
	OutcomeCancelled   = "cancelled"
	OutcomeTransferred = "transferred"
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
)

// CallRecord is the persisted record of one phone call
type CallRecord struct {
	ID             uuid.UUID   `json:"id"`
	TenantID       uuid.UUID   `json:"tenant_id"`
	Provider       string      `json:"provider"`
	StreamID       string      `json:"stream_id"`
	ProviderCallID string      `json:"provider_call_id"`
	FromNumber     string      `json:"from_number"`
	ToNumber       string      `json:"to_number"`
	Outcome        string      `json:"outcome"`
	Transcript     []Utterance `json:"transcript"`
	StartedAt      time.Time   `json:"started_at"`
	EndedAt        *time.Time  `json:"ended_at,omitempty"`
}

// AppointmentStatus is the lifecycle status of an appointment
type AppointmentStatus string

const (
	StatusPending   AppointmentStatus = "pending"
	StatusConfirmed AppointmentStatus = "confirmed"
	StatusCancelled AppointmentStatus = "cancelled"
	StatusCompleted AppointmentStatus = "completed"
	StatusNoShow    AppointmentStatus = "no_show"
)

// Appointment is a booked time interval for a tenant
type Appointment struct {
	ID            uuid.UUID         `json:"id"`
	TenantID      uuid.UUID         `json:"tenant_id"`
	CustomerID    *uuid.UUID        `json:"customer_id,omitempty"`
	CallID        *uuid.UUID        `json:"call_id,omitempty"`
	ServiceID     *uuid.UUID        `json:"service_id,omitempty"`
	CustomerName  string            `json:"customer_name"`
	CustomerPhone string            `json:"customer_phone"`
	StartsAt      time.Time         `json:"starts_at"`
	DurationMin   int               `json:"duration_minutes"`
	Status        AppointmentStatus `json:"status"`
	Notes         string            `json:"notes,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
}

// EndsAt returns the exclusive end of the appointment interval
func (a *Appointment) EndsAt() time.Time {
	return a.StartsAt.Add(time.Duration(a.DurationMin) * time.Minute)
}

// Overlaps reports whether two half-open intervals intersect:
// a.start < b.end && a.end > b.start
func (a *Appointment) Overlaps(start, end time.Time) bool {
	return a.StartsAt.Before(end) && a.EndsAt().After(start)
}

// Customer is a tenant-scoped identity keyed by (tenant, phone)
type Customer struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Phone     string    `json:"phone"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// Service is an optional bookable service with its own duration
type Service struct {
	ID          uuid.UUID `json:"id"`
	TenantID    uuid.UUID `json:"tenant_id"`
	Name        string    `json:"name"`
	DurationMin int       `json:"duration_minutes"`
}

// ============================================
// DATA-ACCESS INTERFACES
// ============================================

// TenantStore reads tenant configuration
type TenantStore interface {
	// TenantConfig loads the config snapshot for a tenant.
	// Returns ErrNotFound for an unknown tenant.
	TenantConfig(ctx context.Context, tenantID uuid.UUID) (*TenantConfig, error)

	// IsBlackoutDate reports whether the tenant accepts no bookings on the
	// calendar date of day (evaluated in the tenant's timezone).
	IsBlackoutDate(ctx context.Context, tenantID uuid.UUID, day time.Time) (bool, error)
}

// CallStore persists call records
type CallStore interface {
	CreateCall(ctx context.Context, call *CallRecord) error

	// FinalizeCall writes the final transcript, outcome and end timestamp.
	FinalizeCall(ctx context.Context, callID uuid.UUID, outcome string, transcript []Utterance, endedAt time.Time) error
}

// AppointmentStore reads and writes appointments
type AppointmentStore interface {
	// AppointmentsBetween returns confirmed and pending appointments whose
	// start falls in [from, to), ordered by start time.
	AppointmentsBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Appointment, error)

	// CreateAppointment inserts the appointment after re-checking, inside a
	// single transaction, that no confirmed/pending appointment overlaps its
	// interval. Returns ErrSlotTaken when the slot was taken concurrently.
	CreateAppointment(ctx context.Context, appt *Appointment) error

	// CancelAppointmentsByPhone sets status cancelled on confirmed
	// appointments matching the phone number, optionally restricted to
	// starts in [from, to). Returns the number of rows updated.
	CancelAppointmentsByPhone(ctx context.Context, tenantID uuid.UUID, phone string, from, to *time.Time) (int, error)
}

// CustomerStore upserts tenant-scoped customers
type CustomerStore interface {
	// UpsertCustomer creates the customer if absent, or refreshes the stored
	// name when a non-empty one is supplied. Idempotent on (tenant, phone).
	UpsertCustomer(ctx context.Context, tenantID uuid.UUID, phone, name string) (*Customer, error)
}

// ServiceStore resolves services by approximate name
type ServiceStore interface {
	// FindServiceByName fuzzy-matches a service by name.
	// Returns (nil, nil) when nothing matches; match failure is not an error.
	FindServiceByName(ctx context.Context, tenantID uuid.UUID, name string) (*Service, error)
}

// Store is the full data-access surface consumed by the relay
type Store interface {
	TenantStore
	CallStore
	AppointmentStore
	CustomerStore
	ServiceStore
}
