package reminders

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convia-ai/convia/internal/appointments"
	"github.com/convia-ai/convia/internal/conversation"
	"github.com/convia-ai/convia/internal/messaging"
)

type fakeSource struct {
	appts []appointments.Appointment
}

func (f *fakeSource) ListWindow(_ context.Context, tenantID string, from, to time.Time) ([]appointments.Appointment, error) {
	var out []appointments.Appointment
	for _, a := range f.appts {
		if a.TenantID != tenantID {
			continue
		}
		if a.StartsAt.Before(from) || !a.StartsAt.Before(to) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// memRecordStore mimics the database unique index in memory.
type memRecordStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

func newMemRecordStore() *memRecordStore {
	return &memRecordStore{records: make(map[string]*Record)}
}

func (m *memRecordStore) key(r *Record) string {
	return r.TenantID + "|" + string(r.Type) + "|" + r.AppointmentID + "|" + r.ScheduledDate.Format(time.DateOnly)
}

func (m *memRecordStore) TryCreate(_ context.Context, rec *Record) (bool, *Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(rec)
	if prev, ok := m.records[k]; ok {
		return false, prev, nil
	}
	rec.ID = uuid.New()
	rec.Status = RecordPending
	cp := *rec
	m.records[k] = &cp
	return true, nil, nil
}

func (m *memRecordStore) UpdateDelivery(_ context.Context, id uuid.UUID, providerMessageID string, status RecordStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records {
		if r.ID == id {
			r.ProviderMessageID = providerMessageID
			r.Status = status
		}
	}
	return nil
}

type recordingSender struct {
	mu    sync.Mutex
	sends []sentMessage
}

type sentMessage struct {
	recipient string
	content   string
	vars      map[string]string
}

func (r *recordingSender) Send(_ context.Context, recipient, content string, vars map[string]string) (messaging.SendReceipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sends = append(r.sends, sentMessage{recipient: recipient, content: content, vars: vars})
	return messaging.SendReceipt{ProviderMessageID: "msg_1", Status: "queued"}, nil
}

type recordingSeeder struct {
	keys    []conversation.Key
	updates []map[string]string
}

func (r *recordingSeeder) Seed(_ context.Context, key conversation.Key, update map[string]string, _ []conversation.ChatMessage) error {
	r.keys = append(r.keys, key)
	r.updates = append(r.updates, update)
	return nil
}

func tenantCfg() TenantConfig {
	return TenantConfig{
		TenantID:   "tnt_1",
		Enabled:    true,
		LeadDays:   1,
		SendHour:   9,
		Timezone:   "UTC",
		TemplateID: "tmpl_confirm",
	}
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRunOnceSendsForTomorrow(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{appts: []appointments.Appointment{
		{
			ID: "appt_1", TenantID: "tnt_1", Recipient: "+5511999990000",
			ClientName: "Ana", ProfessionalID: "pro_1", ProfessionalName: "Geraldine",
			ServiceName: "Cleaning",
			StartsAt:    time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC),
		},
		{
			// Outside the window, must not be reminded.
			ID: "appt_2", TenantID: "tnt_1", Recipient: "+5511888880000",
			StartsAt: time.Date(2026, 9, 3, 10, 0, 0, 0, time.UTC),
		},
	}}
	store := newMemRecordStore()
	sender := &recordingSender{}
	seeder := &recordingSeeder{}

	s := NewScheduler(nil, source, store, sender, seeder, nil, nil)
	s.now = fixedClock(now)

	sent, err := s.RunOnceForTenant(context.Background(), tenantCfg())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	require.Len(t, sender.sends, 1)
	assert.Equal(t, "+5511999990000", sender.sends[0].recipient)
	assert.Equal(t, "tmpl_confirm", sender.sends[0].content)
	assert.Equal(t, "Ana", sender.sends[0].vars["name"])
	assert.Equal(t, "14:30", sender.sends[0].vars["time"])

	require.Len(t, seeder.keys, 1)
	assert.Equal(t, conversation.Key{TenantID: "tnt_1", ParticipantID: "+5511999990000"}, seeder.keys[0])
	assert.Equal(t, "appt_1", seeder.updates[0]["appointment_id"])
}

func TestRunOnceIsIdempotent(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{appts: []appointments.Appointment{
		{
			ID: "appt_1", TenantID: "tnt_1", Recipient: "+5511999990000",
			ClientName: "Ana",
			StartsAt:   time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC),
		},
	}}
	store := newMemRecordStore()
	sender := &recordingSender{}

	s := NewScheduler(nil, source, store, sender, nil, nil, nil)
	s.now = fixedClock(now)

	cfg := tenantCfg()
	sent, err := s.RunOnceForTenant(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	// A second run for the same date must not reach the provider again.
	sent, err = s.RunOnceForTenant(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Len(t, sender.sends, 1)
}

func TestRunOnceSkipsCancelled(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{appts: []appointments.Appointment{
		{
			ID: "appt_1", TenantID: "tnt_1", Recipient: "+5511999990000",
			StartsAt:  time.Date(2026, 9, 1, 14, 30, 0, 0, time.UTC),
			Cancelled: true,
		},
	}}
	store := newMemRecordStore()
	sender := &recordingSender{}

	s := NewScheduler(nil, source, store, sender, nil, nil, nil)
	s.now = fixedClock(now)

	sent, err := s.RunOnceForTenant(context.Background(), tenantCfg())
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, sender.sends)
}

func TestRunOnceCancelledDoesNotShadowValid(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{appts: []appointments.Appointment{
		{
			// Cancelled and earlier than the valid booking. It must not win
			// the recipient dedupe and suppress the reminder below.
			ID: "appt_cancelled", TenantID: "tnt_1", Recipient: "+5511999990000",
			StartsAt:  time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
			Cancelled: true,
		},
		{
			ID: "appt_valid", TenantID: "tnt_1", Recipient: "+5511999990000",
			ClientName: "Ana",
			StartsAt:   time.Date(2026, 9, 1, 14, 0, 0, 0, time.UTC),
		},
	}}
	store := newMemRecordStore()
	sender := &recordingSender{}
	seeder := &recordingSeeder{}

	s := NewScheduler(nil, source, store, sender, seeder, nil, nil)
	s.now = fixedClock(now)

	sent, err := s.RunOnceForTenant(context.Background(), tenantCfg())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, sender.sends, 1)
	assert.Equal(t, "+5511999990000", sender.sends[0].recipient)
	require.Len(t, seeder.updates, 1)
	assert.Equal(t, "appt_valid", seeder.updates[0]["appointment_id"])
}

func TestRunOnceDedupesRecipient(t *testing.T) {
	now := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	source := &fakeSource{appts: []appointments.Appointment{
		{
			ID: "appt_late", TenantID: "tnt_1", Recipient: "+5511999990000",
			StartsAt: time.Date(2026, 9, 1, 16, 0, 0, 0, time.UTC),
		},
		{
			ID: "appt_early", TenantID: "tnt_1", Recipient: "+5511999990000",
			ClientName: "Ana",
			StartsAt:   time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC),
		},
	}}
	store := newMemRecordStore()
	sender := &recordingSender{}
	seeder := &recordingSeeder{}

	s := NewScheduler(nil, source, store, sender, seeder, nil, nil)
	s.now = fixedClock(now)

	sent, err := s.RunOnceForTenant(context.Background(), tenantCfg())
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, seeder.updates, 1)
	assert.Equal(t, "appt_early", seeder.updates[0]["appointment_id"])
}

func TestRunOnceDisabledTenant(t *testing.T) {
	s := NewScheduler(nil, &fakeSource{}, newMemRecordStore(), &recordingSender{}, nil, nil, nil)

	cfg := tenantCfg()
	cfg.Enabled = false
	sent, err := s.RunOnceForTenant(context.Background(), cfg)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestNextRunPicksUpcomingSendHour(t *testing.T) {
	cfg := tenantCfg()
	cfg.SendHour = 9
	s := NewScheduler([]TenantConfig{cfg}, &fakeSource{}, newMemRecordStore(), &recordingSender{}, nil, nil, nil)
	s.now = fixedClock(time.Date(2026, 8, 31, 7, 0, 0, 0, time.UTC))

	next, ok := s.nextRun()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC), next)

	// Past the send hour the run rolls to tomorrow.
	s.now = fixedClock(time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC))
	next, ok = s.nextRun()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC), next)
}
