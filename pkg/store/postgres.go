package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ============================================
// POSTGRES STORE
// pgx-backed implementation of the data-access interfaces
// ============================================

// Postgres implements Store on a pgx connection pool
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a Postgres store
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// ============================================
// TENANTS
// ============================================

// TenantConfig loads a tenant's settings plus its weekday hours
func (s *Postgres) TenantConfig(ctx context.Context, tenantID uuid.UUID) (*TenantConfig, error) {
	query := `
		SELECT id, display_name, business_category, custom_instructions,
		       timezone, slot_duration_minutes, buffer_minutes, transfer_number
		FROM tenants
		WHERE id = $1
	`

	var cfg TenantConfig
	err := s.pool.QueryRow(ctx, query, tenantID).Scan(
		&cfg.ID, &cfg.DisplayName, &cfg.BusinessCategory, &cfg.CustomInstructions,
		&cfg.Timezone, &cfg.SlotDurationMin, &cfg.BufferMin, &cfg.TransferNumber,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant: %w", err)
	}

	hoursQuery := `
		SELECT weekday, enabled, start_time, end_time
		FROM tenant_hours
		WHERE tenant_id = $1
	`

	rows, err := s.pool.Query(ctx, hoursQuery, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to load tenant hours: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var weekday int
		var win DayWindow
		if err := rows.Scan(&weekday, &win.Enabled, &win.Start, &win.End); err != nil {
			return nil, fmt.Errorf("failed to scan tenant hours: %w", err)
		}
		if weekday >= 0 && weekday < 7 {
			cfg.WorkingHours[weekday] = win
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read tenant hours: %w", err)
	}

	return &cfg, nil
}

// IsBlackoutDate checks for a blackout entry on the calendar date of day
func (s *Postgres) IsBlackoutDate(ctx context.Context, tenantID uuid.UUID, day time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM blackout_dates
			WHERE tenant_id = $1 AND blackout_date = $2
		)
	`

	var exists bool
	err := s.pool.QueryRow(ctx, query, tenantID, day.Format("2006-01-02")).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check blackout date: %w", err)
	}
	return exists, nil
}

// ============================================
// CALL RECORDS
// ============================================

// CreateCall inserts a new call record
func (s *Postgres) CreateCall(ctx context.Context, call *CallRecord) error {
	query := `
		INSERT INTO call_records (
			id, tenant_id, provider, stream_id, provider_call_id,
			from_number, to_number, outcome, transcript, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	transcriptJSON, _ := json.Marshal(call.Transcript)

	_, err := s.pool.Exec(ctx, query,
		call.ID, call.TenantID, call.Provider, call.StreamID, call.ProviderCallID,
		call.FromNumber, call.ToNumber, call.Outcome, transcriptJSON, call.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert call record: %w", err)
	}
	return nil
}

// FinalizeCall writes the final transcript, outcome and end timestamp
func (s *Postgres) FinalizeCall(ctx context.Context, callID uuid.UUID, outcome string, transcript []Utterance, endedAt time.Time) error {
	query := `
		UPDATE call_records
		SET outcome = $1, transcript = $2, ended_at = $3
		WHERE id = $4
	`

	transcriptJSON, _ := json.Marshal(transcript)

	_, err := s.pool.Exec(ctx, query, outcome, transcriptJSON, endedAt, callID)
	if err != nil {
		return fmt.Errorf("failed to finalize call record: %w", err)
	}
	return nil
}

// ============================================
// APPOINTMENTS
// ============================================

// AppointmentsBetween returns confirmed/pending appointments starting in [from, to)
func (s *Postgres) AppointmentsBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	query := `
		SELECT id, tenant_id, customer_id, call_id, service_id,
		       customer_name, customer_phone, starts_at, duration_minutes,
		       status, notes, created_at
		FROM appointments
		WHERE tenant_id = $1
		  AND status IN ('confirmed', 'pending')
		  AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at
	`

	rows, err := s.pool.Query(ctx, query, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(
			&a.ID, &a.TenantID, &a.CustomerID, &a.CallID, &a.ServiceID,
			&a.CustomerName, &a.CustomerPhone, &a.StartsAt, &a.DurationMin,
			&a.Status, &a.Notes, &a.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read appointments: %w", err)
	}

	return appts, nil
}

// CreateAppointment inserts the appointment inside a transaction that
// serializes bookings per tenant and re-checks the overlap condition, so a
// concurrent booking of the same slot fails with ErrSlotTaken instead of
// double-booking.
func (s *Postgres) CreateAppointment(ctx context.Context, appt *Appointment) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Lock the tenant row so concurrent bookings for the same tenant run
	// one at a time through the overlap check below.
	var lockedID uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT id FROM tenants WHERE id = $1 FOR UPDATE`,
		appt.TenantID,
	).Scan(&lockedID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}

	var conflicts int
	err = tx.QueryRow(ctx, `
		SELECT count(*)
		FROM appointments
		WHERE tenant_id = $1
		  AND status IN ('confirmed', 'pending')
		  AND starts_at < $3
		  AND starts_at + (duration_minutes || ' minutes')::interval > $2
	`, appt.TenantID, appt.StartsAt, appt.EndsAt()).Scan(&conflicts)
	if err != nil {
		return fmt.Errorf("failed to check slot overlap: %w", err)
	}
	if conflicts > 0 {
		return ErrSlotTaken
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO appointments (
			id, tenant_id, customer_id, call_id, service_id,
			customer_name, customer_phone, starts_at, duration_minutes,
			status, notes, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		appt.ID, appt.TenantID, appt.CustomerID, appt.CallID, appt.ServiceID,
		appt.CustomerName, appt.CustomerPhone, appt.StartsAt, appt.DurationMin,
		appt.Status, appt.Notes, appt.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert appointment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}
	return nil
}

// CancelAppointmentsByPhone cancels confirmed appointments for a phone number
func (s *Postgres) CancelAppointmentsByPhone(ctx context.Context, tenantID uuid.UUID, phone string, from, to *time.Time) (int, error) {
	query := `
		UPDATE appointments
		SET status = 'cancelled'
		WHERE tenant_id = $1
		  AND customer_phone = $2
		  AND status = 'confirmed'
	`
	args := []interface{}{tenantID, phone}

	if from != nil && to != nil {
		query += ` AND starts_at >= $3 AND starts_at < $4`
		args = append(args, *from, *to)
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel appointments: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ============================================
// CUSTOMERS & SERVICES
// ============================================

// UpsertCustomer creates or refreshes the customer keyed by (tenant, phone)
func (s *Postgres) UpsertCustomer(ctx context.Context, tenantID uuid.UUID, phone, name string) (*Customer, error) {
	query := `
		INSERT INTO customers (id, tenant_id, phone, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (tenant_id, phone) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE customers.name END
		RETURNING id, tenant_id, phone, name, created_at
	`

	var c Customer
	err := s.pool.QueryRow(ctx, query, uuid.New(), tenantID, phone, name, time.Now()).Scan(
		&c.ID, &c.TenantID, &c.Phone, &c.Name, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert customer: %w", err)
	}
	return &c, nil
}

// FindServiceByName fuzzy-matches a service by name (case-insensitive substring)
func (s *Postgres) FindServiceByName(ctx context.Context, tenantID uuid.UUID, name string) (*Service, error) {
	if name == "" {
		return nil, nil
	}

	query := `
		SELECT id, tenant_id, name, duration_minutes
		FROM services
		WHERE tenant_id = $1 AND name ILIKE '%' || $2 || '%'
		ORDER BY length(name)
		LIMIT 1
	`

	var svc Service
	err := s.pool.QueryRow(ctx, query, tenantID, name).Scan(
		&svc.ID, &svc.TenantID, &svc.Name, &svc.DurationMin,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find service: %w", err)
	}
	return &svc, nil
}
