package scheduling

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/birddigital/voice-receptionist/pkg/store"
)

// fakeStore is an in-memory record store for engine tests
type fakeStore struct {
	mu        sync.Mutex
	blackouts map[string]bool
	appts     []store.Appointment
	customers map[string]*store.Customer
	services  []store.Service

	// beforeCreate runs inside CreateAppointment before the overlap check,
	// to simulate a concurrent booking landing between re-check and insert
	beforeCreate func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		blackouts: make(map[string]bool),
		customers: make(map[string]*store.Customer),
	}
}

func (f *fakeStore) TenantConfig(ctx context.Context, tenantID uuid.UUID) (*store.TenantConfig, error) {
	return nil, store.ErrNotFound
}

func (f *fakeStore) IsBlackoutDate(ctx context.Context, tenantID uuid.UUID, day time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blackouts[day.Format("2006-01-02")], nil
}

func (f *fakeStore) AppointmentsBetween(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]store.Appointment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var out []store.Appointment
	for _, a := range f.appts {
		if a.Status != store.StatusConfirmed && a.Status != store.StatusPending {
			continue
		}
		if !a.StartsAt.Before(from) && a.StartsAt.Before(to) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeStore) CreateAppointment(ctx context.Context, appt *store.Appointment) error {
	if f.beforeCreate != nil {
		f.beforeCreate()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.appts {
		a := &f.appts[i]
		if a.Status != store.StatusConfirmed && a.Status != store.StatusPending {
			continue
		}
		if a.Overlaps(appt.StartsAt, appt.EndsAt()) {
			return store.ErrSlotTaken
		}
	}
	f.appts = append(f.appts, *appt)
	return nil
}

func (f *fakeStore) CancelAppointmentsByPhone(ctx context.Context, tenantID uuid.UUID, phone string, from, to *time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	count := 0
	for i := range f.appts {
		a := &f.appts[i]
		if a.CustomerPhone != phone || a.Status != store.StatusConfirmed {
			continue
		}
		if from != nil && to != nil {
			if a.StartsAt.Before(*from) || !a.StartsAt.Before(*to) {
				continue
			}
		}
		a.Status = store.StatusCancelled
		count++
	}
	return count, nil
}

func (f *fakeStore) UpsertCustomer(ctx context.Context, tenantID uuid.UUID, phone, name string) (*store.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if c, ok := f.customers[phone]; ok {
		if name != "" {
			c.Name = name
		}
		return c, nil
	}
	c := &store.Customer{ID: uuid.New(), TenantID: tenantID, Phone: phone, Name: name}
	f.customers[phone] = c
	return c, nil
}

func (f *fakeStore) FindServiceByName(ctx context.Context, tenantID uuid.UUID, name string) (*store.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for i := range f.services {
		if strings.Contains(strings.ToLower(f.services[i].Name), strings.ToLower(name)) {
			return &f.services[i], nil
		}
	}
	return nil, nil
}

func testTenant() *store.TenantConfig {
	cfg := &store.TenantConfig{
		ID:              uuid.New(),
		DisplayName:     "Main Street Salon",
		Timezone:        "UTC",
		SlotDurationMin: 30,
		BufferMin:       10,
		TransferNumber:  "+15550001111",
	}
	for d := time.Monday; d <= time.Friday; d++ {
		cfg.WorkingHours[d] = store.DayWindow{Enabled: true, Start: "09:00", End: "17:00"}
	}
	return cfg
}

// 2025-06-02 is a Monday
const openDate = "2025-06-02"

func newTestEngine(f *fakeStore) *Engine {
	return NewEngine(f, f, f, f)
}

func TestSlotGenerationScenario(t *testing.T) {
	engine := newTestEngine(newFakeStore())
	tenant := testTenant()

	res, err := engine.CheckAvailability(context.Background(), tenant, openDate)
	if err != nil {
		t.Fatalf("CheckAvailability() error: %v", err)
	}
	if !res.Available {
		t.Fatal("expected availability on an open weekday")
	}

	wantFirst := []string{"09:00", "09:40", "10:20"}
	for i, want := range wantFirst {
		if res.Slots[i] != want {
			t.Errorf("slot[%d] = %q, want %q", i, res.Slots[i], want)
		}
	}

	// Window walk steps by slot+buffer (40 min); the last candidate that
	// still fits before 17:00 is 16:20 (16:20+30 = 16:50)
	last := res.Slots[len(res.Slots)-1]
	if last != "16:20" {
		t.Errorf("last slot = %q, want 16:20", last)
	}

	for _, s := range res.Slots {
		if s > "16:30" {
			t.Errorf("slot %q starts past window_end - slot_duration", s)
		}
	}
}

func TestSlotGenerationDeterministic(t *testing.T) {
	engine := newTestEngine(newFakeStore())
	tenant := testTenant()
	ctx := context.Background()

	first, err := engine.CheckAvailability(ctx, tenant, openDate)
	if err != nil {
		t.Fatalf("CheckAvailability() error: %v", err)
	}
	second, err := engine.CheckAvailability(ctx, tenant, openDate)
	if err != nil {
		t.Fatalf("CheckAvailability() error: %v", err)
	}

	if len(first.Slots) != len(second.Slots) {
		t.Fatalf("slot counts differ: %d vs %d", len(first.Slots), len(second.Slots))
	}
	for i := range first.Slots {
		if first.Slots[i] != second.Slots[i] {
			t.Errorf("slot[%d] differs: %q vs %q", i, first.Slots[i], second.Slots[i])
		}
	}
}

func TestSlotsExcludeExistingAppointments(t *testing.T) {
	fake := newFakeStore()
	tenant := testTenant()
	loc := tenant.Location()

	existing := []store.Appointment{
		{ID: uuid.New(), TenantID: tenant.ID, StartsAt: time.Date(2025, 6, 2, 9, 40, 0, 0, loc), DurationMin: 30, Status: store.StatusConfirmed},
		{ID: uuid.New(), TenantID: tenant.ID, StartsAt: time.Date(2025, 6, 2, 13, 50, 0, 0, loc), DurationMin: 45, Status: store.StatusPending},
	}
	fake.appts = existing

	engine := newTestEngine(fake)
	res, err := engine.CheckAvailability(context.Background(), tenant, openDate)
	if err != nil {
		t.Fatalf("CheckAvailability() error: %v", err)
	}

	slotDur := time.Duration(tenant.SlotDurationMin) * time.Minute
	for _, s := range res.Slots {
		start, err := time.ParseInLocation("2006-01-02 15:04", openDate+" "+s, loc)
		if err != nil {
			t.Fatalf("bad slot %q: %v", s, err)
		}
		end := start.Add(slotDur)
		for i := range existing {
			if existing[i].Overlaps(start, end) {
				t.Errorf("slot %q overlaps appointment starting %s", s, existing[i].StartsAt.Format("15:04"))
			}
		}
	}

	for _, blocked := range []string{"09:40", "14:20"} {
		for _, s := range res.Slots {
			if s == blocked {
				t.Errorf("slot %q should have been rejected", blocked)
			}
		}
	}
}

func TestBlackoutDate(t *testing.T) {
	fake := newFakeStore()
	fake.blackouts[openDate] = true

	engine := newTestEngine(fake)
	res, err := engine.CheckAvailability(context.Background(), testTenant(), openDate)
	if err != nil {
		t.Fatalf("CheckAvailability() error: %v", err)
	}

	if res.Available {
		t.Error("blackout date reported available")
	}
	if res.Slots == nil || len(res.Slots) != 0 {
		t.Errorf("blackout date slots = %v, want empty list", res.Slots)
	}
}

func TestClosedWeekday(t *testing.T) {
	engine := newTestEngine(newFakeStore())

	// 2025-06-01 is a Sunday, disabled in the test tenant
	res, err := engine.CheckAvailability(context.Background(), testTenant(), "2025-06-01")
	if err != nil {
		t.Fatalf("CheckAvailability() error: %v", err)
	}
	if res.Available || len(res.Slots) != 0 {
		t.Errorf("closed weekday: available=%v slots=%v, want closed with empty list", res.Available, res.Slots)
	}
}

func TestBookAppointment(t *testing.T) {
	fake := newFakeStore()
	engine := newTestEngine(fake)
	tenant := testTenant()
	ctx := context.Background()

	res, err := engine.BookAppointment(ctx, tenant, BookingRequest{
		CustomerName:  "Dana",
		CustomerPhone: "+15551230000",
		Date:          openDate,
		Time:          "10:20",
	})
	if err != nil {
		t.Fatalf("BookAppointment() error: %v", err)
	}
	if !res.Success {
		t.Fatalf("booking failed: %s", res.Message)
	}
	if res.AppointmentID == nil {
		t.Error("booking result missing appointment id")
	}

	// The booked time must no longer be offered
	avail, err := engine.CheckAvailability(ctx, tenant, openDate)
	if err != nil {
		t.Fatalf("CheckAvailability() error: %v", err)
	}
	for _, s := range avail.Slots {
		if s == "10:20" {
			t.Error("booked slot still listed as available")
		}
	}
}

func TestBookUnavailableSlotFails(t *testing.T) {
	fake := newFakeStore()
	engine := newTestEngine(fake)
	tenant := testTenant()
	ctx := context.Background()

	req := BookingRequest{CustomerName: "Dana", CustomerPhone: "+15551230000", Date: openDate, Time: "10:20"}
	if res, _ := engine.BookAppointment(ctx, tenant, req); !res.Success {
		t.Fatalf("first booking failed: %s", res.Message)
	}

	second, err := engine.BookAppointment(ctx, tenant, BookingRequest{
		CustomerName:  "Eli",
		CustomerPhone: "+15551239999",
		Date:          openDate,
		Time:          "10:20",
	})
	if err != nil {
		t.Fatalf("BookAppointment() error: %v", err)
	}
	if second.Success {
		t.Fatal("double booking succeeded")
	}
	if second.AppointmentID != nil {
		t.Error("failed booking carries an appointment id")
	}
}

func TestBookingRaceFailsExplicitly(t *testing.T) {
	fake := newFakeStore()
	engine := newTestEngine(fake)
	tenant := testTenant()
	loc := tenant.Location()
	ctx := context.Background()

	// A conflicting appointment lands after the availability re-check but
	// before the insert; the transactional overlap check must reject it.
	raced := false
	fake.beforeCreate = func() {
		if raced {
			return
		}
		raced = true
		fake.mu.Lock()
		fake.appts = append(fake.appts, store.Appointment{
			ID:       uuid.New(),
			TenantID: tenant.ID,
			StartsAt: time.Date(2025, 6, 2, 10, 20, 0, 0, loc),

			DurationMin: 30,
			Status:      store.StatusConfirmed,
		})
		fake.mu.Unlock()
	}

	res, err := engine.BookAppointment(ctx, tenant, BookingRequest{
		CustomerName:  "Dana",
		CustomerPhone: "+15551230000",
		Date:          openDate,
		Time:          "10:20",
	})
	if err != nil {
		t.Fatalf("BookAppointment() error: %v", err)
	}
	if res.Success {
		t.Fatal("raced booking silently double-booked")
	}
	if res.Message == "" {
		t.Error("raced booking has no explanation message")
	}
}

func TestBookingUpsertsCustomer(t *testing.T) {
	fake := newFakeStore()
	engine := newTestEngine(fake)
	tenant := testTenant()
	ctx := context.Background()

	if res, _ := engine.BookAppointment(ctx, tenant, BookingRequest{
		CustomerName: "Dana", CustomerPhone: "+15551230000", Date: openDate, Time: "09:00",
	}); !res.Success {
		t.Fatalf("first booking failed: %s", res.Message)
	}
	firstID := fake.customers["+15551230000"].ID

	if res, _ := engine.BookAppointment(ctx, tenant, BookingRequest{
		CustomerName: "Dana Smith", CustomerPhone: "+15551230000", Date: openDate, Time: "11:00",
	}); !res.Success {
		t.Fatalf("second booking failed: %s", res.Message)
	}

	c := fake.customers["+15551230000"]
	if c.ID != firstID {
		t.Error("repeat booking created a duplicate customer")
	}
	if c.Name != "Dana Smith" {
		t.Errorf("customer name = %q, want refreshed name", c.Name)
	}
}

func TestCancelNothingFoundFails(t *testing.T) {
	engine := newTestEngine(newFakeStore())

	res, err := engine.CancelAppointments(context.Background(), testTenant(), "+15550009999", "")
	if err != nil {
		t.Fatalf("CancelAppointments() error: %v", err)
	}
	if res.Success {
		t.Error("zero-match cancellation reported success")
	}
	if res.Cancelled != 0 {
		t.Errorf("cancelled = %d, want 0", res.Cancelled)
	}
}

func TestCancelRestrictedToDate(t *testing.T) {
	fake := newFakeStore()
	tenant := testTenant()
	loc := tenant.Location()

	phone := "+15551230000"
	fake.appts = []store.Appointment{
		{ID: uuid.New(), TenantID: tenant.ID, CustomerPhone: phone, StartsAt: time.Date(2025, 6, 2, 9, 0, 0, 0, loc), DurationMin: 30, Status: store.StatusConfirmed},
		{ID: uuid.New(), TenantID: tenant.ID, CustomerPhone: phone, StartsAt: time.Date(2025, 6, 3, 9, 0, 0, 0, loc), DurationMin: 30, Status: store.StatusConfirmed},
	}

	engine := newTestEngine(fake)
	res, err := engine.CancelAppointments(context.Background(), tenant, phone, openDate)
	if err != nil {
		t.Fatalf("CancelAppointments() error: %v", err)
	}
	if !res.Success || res.Cancelled != 1 {
		t.Fatalf("cancelled %d (success=%v), want exactly 1", res.Cancelled, res.Success)
	}

	if fake.appts[0].Status != store.StatusCancelled {
		t.Error("appointment on the requested date was not cancelled")
	}
	if fake.appts[1].Status != store.StatusConfirmed {
		t.Error("appointment on another date was cancelled")
	}
}
