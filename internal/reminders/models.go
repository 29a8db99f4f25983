package reminders

import (
	"time"

	"github.com/google/uuid"
)

// NotificationType distinguishes reminder kinds. Only confirmations exist
// today.
type NotificationType string

const TypeConfirmation NotificationType = "confirmation"

// RecordStatus tracks the delivery lifecycle of one notification record.
type RecordStatus string

const (
	RecordPending RecordStatus = "pending"
	RecordSent    RecordStatus = "sent"
	RecordFailed  RecordStatus = "failed"
)

// Record is one notification attempt, unique per
// (tenant, type, appointment, scheduled date). Records are created at most
// once and never deleted.
type Record struct {
	ID                uuid.UUID
	TenantID          string
	Type              NotificationType
	AppointmentID     string
	ScheduledDate     time.Time // date component only, tenant-local
	Recipient         string
	Variables         map[string]string
	ProviderMessageID string
	Status            RecordStatus
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// TenantConfig is the per-tenant reminder configuration.
type TenantConfig struct {
	TenantID      string
	Enabled       bool
	LeadDays      int
	SendHour      int // local hour of day the daily run fires
	Timezone      string
	TemplateID    string
	VariableOrder []string // semantic variable names in positional order
}

// DefaultVariableOrder is used when a tenant configures none.
var DefaultVariableOrder = []string{"name", "time", "professional"}
