package reminders

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/convia-ai/convia/internal/appointments"
	"github.com/convia-ai/convia/internal/conversation"
	"github.com/convia-ai/convia/internal/messaging"
	"github.com/convia-ai/convia/internal/observability/metrics"
	"github.com/convia-ai/convia/internal/tenancy"
	"github.com/convia-ai/convia/pkg/logging"
)

// AppointmentSource lists appointments inside a window for one tenant.
type AppointmentSource interface {
	ListWindow(ctx context.Context, tenantID string, from, to time.Time) ([]appointments.Appointment, error)
}

// RecordStore persists notification records with at-most-once semantics.
type RecordStore interface {
	TryCreate(ctx context.Context, rec *Record) (created bool, existing *Record, err error)
	UpdateDelivery(ctx context.Context, id uuid.UUID, providerMessageID string, status RecordStatus) error
}

// ContextSeeder pre-loads conversation state so a reply to a reminder lands
// in a conversation that already knows about the appointment.
type ContextSeeder interface {
	Seed(ctx context.Context, key conversation.Key, update map[string]string, msgs []conversation.ChatMessage) error
}

// Scheduler sends appointment confirmation reminders once per appointment
// per window date. Duplicate runs are absorbed by the record store's unique
// key, so a crash between runs never double-texts a customer.
type Scheduler struct {
	tenants []TenantConfig
	source  AppointmentSource
	store   RecordStore
	sender  messaging.Sender
	seeder  ContextSeeder
	logger  *logging.Logger
	metrics *metrics.CoreMetrics

	now func() time.Time
}

// NewScheduler creates a reminder scheduler for the given tenants.
func NewScheduler(tenants []TenantConfig, source AppointmentSource, store RecordStore, sender messaging.Sender, seeder ContextSeeder, logger *logging.Logger, m *metrics.CoreMetrics) *Scheduler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Scheduler{
		tenants: tenants,
		source:  source,
		store:   store,
		sender:  sender,
		seeder:  seeder,
		logger:  logger,
		metrics: m,
		now:     time.Now,
	}
}

// RunOnceForTenant sends confirmations for one tenant's lookahead date.
// Returns the number of messages actually handed to the provider.
func (s *Scheduler) RunOnceForTenant(ctx context.Context, cfg TenantConfig) (int, error) {
	if !cfg.Enabled {
		return 0, nil
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return 0, fmt.Errorf("reminders: tenant %s: load timezone %q: %w", cfg.TenantID, cfg.Timezone, err)
	}

	localNow := s.now().In(loc)
	target := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, loc).
		AddDate(0, 0, cfg.LeadDays)
	windowEnd := target.AddDate(0, 0, 1)

	appts, err := s.source.ListWindow(ctx, cfg.TenantID, target, windowEnd)
	if err != nil {
		return 0, fmt.Errorf("reminders: tenant %s: list appointments: %w", cfg.TenantID, err)
	}

	appts = dedupeByRecipient(dropCancelled(appts))

	sent := 0
	for i := range appts {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		ok, err := s.processOne(ctx, cfg, appts[i], target, loc)
		if err != nil {
			s.metrics.ObserveReminderSend("error")
			s.logger.Error("reminders: failed to process appointment",
				"tenant_id", cfg.TenantID,
				"appointment_id", appts[i].ID,
				"error", err,
			)
			continue
		}
		if ok {
			sent++
		}
	}

	s.logger.Info("reminders: tenant run complete",
		"tenant_id", cfg.TenantID,
		"date", target.Format(time.DateOnly),
		"appointments", len(appts),
		"sent", sent,
	)
	return sent, nil
}

// processOne claims the record, seeds conversation context, then sends.
// Returns true only when this run performed the send.
func (s *Scheduler) processOne(ctx context.Context, cfg TenantConfig, appt appointments.Appointment, date time.Time, loc *time.Location) (bool, error) {
	ctx = tenancy.WithTenantID(ctx, cfg.TenantID)
	if appt.Recipient == "" {
		return false, fmt.Errorf("appointment %s has no recipient", appt.ID)
	}

	vars := BuildVariables(appt, cfg.VariableOrder, loc)
	rec := &Record{
		TenantID:      cfg.TenantID,
		Type:          TypeConfirmation,
		AppointmentID: appt.ID,
		ScheduledDate: date,
		Recipient:     appt.Recipient,
		Variables:     vars,
		Status:        RecordPending,
	}

	created, _, err := s.store.TryCreate(ctx, rec)
	if err != nil {
		return false, fmt.Errorf("create record: %w", err)
	}
	if !created {
		s.metrics.ObserveReminderSend("skipped")
		s.logger.Info("reminders: already recorded, skipping",
			"tenant_id", cfg.TenantID,
			"appointment_id", appt.ID,
			"date", date.Format(time.DateOnly),
		)
		return false, nil
	}

	s.seedContext(ctx, cfg, appt, loc)

	receipt, err := s.sender.Send(ctx, appt.Recipient, cfg.TemplateID, vars)
	if err != nil {
		if uerr := s.store.UpdateDelivery(ctx, rec.ID, "", RecordFailed); uerr != nil {
			s.logger.Error("reminders: failed to mark record failed",
				"record_id", rec.ID, "error", uerr)
		}
		return false, fmt.Errorf("send: %w", err)
	}

	if err := s.store.UpdateDelivery(ctx, rec.ID, receipt.ProviderMessageID, RecordSent); err != nil {
		s.logger.Error("reminders: sent but failed to mark record",
			"record_id", rec.ID, "error", err)
	}
	s.metrics.ObserveReminderSend("sent")
	return true, nil
}

// seedContext is best-effort. A reminder still goes out when seeding fails,
// the conversation just starts cold if the customer replies.
func (s *Scheduler) seedContext(ctx context.Context, cfg TenantConfig, appt appointments.Appointment, loc *time.Location) {
	if s.seeder == nil {
		return
	}
	key := conversation.Key{TenantID: cfg.TenantID, ParticipantID: appt.Recipient}
	update := map[string]string{
		"appointment_id":    appt.ID,
		"client_name":       appt.ClientName,
		"professional_id":   appt.ProfessionalID,
		"professional_name": appt.ProfessionalName,
		"service_name":      appt.ServiceName,
		"date":              appt.StartsAt.In(loc).Format(time.DateOnly),
		"time":              appt.StartsAt.In(loc).Format("15:04"),
	}
	note := conversation.ChatMessage{
		Role: conversation.ChatRoleAssistant,
		Content: fmt.Sprintf("Sent appointment confirmation for %s on %s at %s with %s.",
			appt.ServiceName,
			appt.StartsAt.In(loc).Format(time.DateOnly),
			appt.StartsAt.In(loc).Format("15:04"),
			appt.ProfessionalName,
		),
	}
	if err := s.seeder.Seed(ctx, key, update, []conversation.ChatMessage{note}); err != nil {
		s.logger.Warn("reminders: failed to seed conversation context",
			"tenant_id", cfg.TenantID,
			"appointment_id", appt.ID,
			"error", err,
		)
	}
}

// dropCancelled removes cancelled appointments. It runs before the recipient
// dedupe so a cancelled early booking never shadows a valid later one.
func dropCancelled(appts []appointments.Appointment) []appointments.Appointment {
	out := appts[:0]
	for _, a := range appts {
		if a.Cancelled {
			continue
		}
		out = append(out, a)
	}
	return out
}

// dedupeByRecipient keeps one appointment per recipient, the earliest start.
// A customer with two bookings the same day gets a single reminder.
func dedupeByRecipient(appts []appointments.Appointment) []appointments.Appointment {
	sort.SliceStable(appts, func(i, j int) bool {
		return appts[i].StartsAt.Before(appts[j].StartsAt)
	})
	seen := make(map[string]bool, len(appts))
	out := appts[:0]
	for _, a := range appts {
		if a.Recipient != "" && seen[a.Recipient] {
			continue
		}
		seen[a.Recipient] = true
		out = append(out, a)
	}
	return out
}

// nextRun returns the earliest upcoming local send time across all enabled
// tenants, in UTC.
func (s *Scheduler) nextRun() (time.Time, bool) {
	var best time.Time
	found := false
	now := s.now()
	for _, cfg := range s.tenants {
		if !cfg.Enabled {
			continue
		}
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			s.logger.Error("reminders: bad tenant timezone",
				"tenant_id", cfg.TenantID, "timezone", cfg.Timezone, "error", err)
			continue
		}
		local := now.In(loc)
		next := time.Date(local.Year(), local.Month(), local.Day(), cfg.SendHour, 0, 0, 0, loc)
		if !next.After(local) {
			next = next.AddDate(0, 0, 1)
		}
		if !found || next.Before(best) {
			best = next
			found = true
		}
	}
	return best.UTC(), found
}

// runDue executes every enabled tenant whose local send hour matches now.
func (s *Scheduler) runDue(ctx context.Context) {
	now := s.now()
	for _, cfg := range s.tenants {
		if !cfg.Enabled {
			continue
		}
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			continue
		}
		if now.In(loc).Hour() != cfg.SendHour {
			continue
		}
		if _, err := s.RunOnceForTenant(ctx, cfg); err != nil {
			s.logger.Error("reminders: tenant run failed",
				"tenant_id", cfg.TenantID, "error", err)
		}
	}
}

// LoopOnce sleeps until the soonest tenant send hour, then runs every tenant
// due at that time. It returns false when no tenant is enabled or the
// context ended; each due tenant's next run naturally falls on the same
// local time the following day. minWait bounds how tightly callers can spin
// when clocks or configs misbehave.
func (s *Scheduler) LoopOnce(ctx context.Context, minWait time.Duration) bool {
	if minWait <= 0 {
		minWait = time.Minute
	}
	next, ok := s.nextRun()
	if !ok {
		s.logger.Info("reminders: no enabled tenants, scheduler idle")
		return false
	}
	wait := time.Until(next)
	if wait < minWait {
		wait = minWait
	}
	s.logger.Info("reminders: next run scheduled",
		"at", next.Format(time.RFC3339), "wait", wait.String())

	timer := time.NewTimer(wait)
	select {
	case <-ctx.Done():
		timer.Stop()
		return false
	case <-timer.C:
	}

	s.runDue(ctx)
	return true
}

// Run repeats LoopOnce until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context, minWait time.Duration) {
	for s.LoopOnce(ctx, minWait) {
	}
}
