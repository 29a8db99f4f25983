package appointments

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Appointment is one scheduled booking as the business platform reports it.
type Appointment struct {
	ID               string
	TenantID         string
	StartsAt         time.Time
	Recipient        string
	ProfessionalID   string
	ProfessionalName string
	ServiceName      string
	ClientName       string
	Cancelled        bool
}

// Repository reads appointments from PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository creates an appointment repository.
func NewRepository(db *sql.DB) *Repository {
	if db == nil {
		return nil
	}
	return &Repository{db: db}
}

// ListWindow returns every appointment for the tenant whose start time falls
// in [from, to), including cancelled ones; callers filter by the
// cancellation flag.
func (r *Repository) ListWindow(ctx context.Context, tenantID string, from, to time.Time) ([]Appointment, error) {
	const q = `
		SELECT id, tenant_id, starts_at, recipient, professional_id, professional_name,
		       service_name, client_name, cancelled
		FROM appointments
		WHERE tenant_id = $1 AND starts_at >= $2 AND starts_at < $3
		ORDER BY starts_at ASC`

	rows, err := r.db.QueryContext(ctx, q, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("appointments: list window: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.TenantID, &a.StartsAt, &a.Recipient, &a.ProfessionalID,
			&a.ProfessionalName, &a.ServiceName, &a.ClientName, &a.Cancelled); err != nil {
			return nil, fmt.Errorf("appointments: scan: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: iterate: %w", err)
	}
	return out, nil
}
