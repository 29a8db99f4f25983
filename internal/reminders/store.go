package reminders

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Store persists notification records in PostgreSQL. The unique index on
// (tenant_id, notification_type, appointment_id, scheduled_date) is what
// makes reminder sends idempotent.
type Store struct {
	db *sql.DB
}

// NewStore creates a notification record store.
func NewStore(db *sql.DB) *Store {
	if db == nil {
		return nil
	}
	return &Store{db: db}
}

// TryCreate inserts the record unless one already exists for its unique key.
// It returns created == false and the existing record on conflict.
func (s *Store) TryCreate(ctx context.Context, rec *Record) (created bool, existing *Record, err error) {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = RecordPending
	}
	vars, err := json.Marshal(rec.Variables)
	if err != nil {
		return false, nil, fmt.Errorf("reminders: marshal variables: %w", err)
	}

	const q = `
		INSERT INTO notification_records
			(id, tenant_id, notification_type, appointment_id, scheduled_date,
			 recipient, variables, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		ON CONFLICT (tenant_id, notification_type, appointment_id, scheduled_date)
		DO NOTHING`

	res, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.TenantID, string(rec.Type), rec.AppointmentID,
		rec.ScheduledDate.Format(time.DateOnly), rec.Recipient, vars, string(rec.Status))
	if err != nil {
		return false, nil, fmt.Errorf("reminders: insert record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, nil, fmt.Errorf("reminders: rows affected: %w", err)
	}
	if affected > 0 {
		return true, nil, nil
	}

	prev, err := s.find(ctx, rec.TenantID, rec.Type, rec.AppointmentID, rec.ScheduledDate)
	if err != nil {
		return false, nil, err
	}
	return false, prev, nil
}

// UpdateDelivery records the provider's message id and status after a send.
func (s *Store) UpdateDelivery(ctx context.Context, id uuid.UUID, providerMessageID string, status RecordStatus) error {
	const q = `
		UPDATE notification_records
		SET provider_message_id = $2, status = $3, updated_at = NOW()
		WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, q, id, providerMessageID, string(status)); err != nil {
		return fmt.Errorf("reminders: update delivery: %w", err)
	}
	return nil
}

func (s *Store) find(ctx context.Context, tenantID string, typ NotificationType, appointmentID string, date time.Time) (*Record, error) {
	const q = `
		SELECT id, tenant_id, notification_type, appointment_id, scheduled_date,
		       recipient, variables, COALESCE(provider_message_id, ''), status,
		       created_at, updated_at
		FROM notification_records
		WHERE tenant_id = $1 AND notification_type = $2
		  AND appointment_id = $3 AND scheduled_date = $4`

	row := s.db.QueryRowContext(ctx, q, tenantID, string(typ), appointmentID, date.Format(time.DateOnly))

	var rec Record
	var typRaw, statusRaw string
	var varsRaw []byte
	if err := row.Scan(&rec.ID, &rec.TenantID, &typRaw, &rec.AppointmentID, &rec.ScheduledDate,
		&rec.Recipient, &varsRaw, &rec.ProviderMessageID, &statusRaw,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("reminders: find record: %w", err)
	}
	rec.Type = NotificationType(typRaw)
	rec.Status = RecordStatus(statusRaw)
	if len(varsRaw) > 0 {
		if err := json.Unmarshal(varsRaw, &rec.Variables); err != nil {
			return nil, fmt.Errorf("reminders: decode variables: %w", err)
		}
	}
	return &rec, nil
}
