package platform

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/convia-ai/convia/internal/conversation"
	"github.com/convia-ai/convia/internal/matching"
)

// Memory is an in-memory booking platform for local runs and demos. It
// serves a single static catalog to every tenant.
type Memory struct {
	mu            sync.Mutex
	professionals []matching.Candidate
	services      []matching.Candidate
	clients       []matching.Candidate
	slots         map[string][]string // "professionalID|date" -> times
	appointments  map[string]conversation.BookingRequest
}

// NewMemory creates an empty in-memory platform.
func NewMemory() *Memory {
	return &Memory{
		slots:        make(map[string][]string),
		appointments: make(map[string]conversation.BookingRequest),
	}
}

// SeedCatalog replaces the served catalog.
func (m *Memory) SeedCatalog(professionals, services, clients []matching.Candidate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.professionals = professionals
	m.services = services
	m.clients = clients
}

// SeedSlots sets the open times for a professional on a date.
func (m *Memory) SeedSlots(professionalID string, date time.Time, times []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[professionalID+"|"+date.Format(time.DateOnly)] = times
}

func (m *Memory) ListProfessionals(_ context.Context, _ string) ([]matching.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]matching.Candidate(nil), m.professionals...), nil
}

func (m *Memory) ListServices(_ context.Context, _ string) ([]matching.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]matching.Candidate(nil), m.services...), nil
}

func (m *Memory) ListClients(_ context.Context, _ string) ([]matching.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]matching.Candidate(nil), m.clients...), nil
}

func (m *Memory) Slots(_ context.Context, _, professionalID string, date time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slots[professionalID+"|"+date.Format(time.DateOnly)], nil
}

func (m *Memory) Create(_ context.Context, _ string, req conversation.BookingRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := "appt_" + uuid.NewString()
	m.appointments[id] = req
	return id, nil
}

func (m *Memory) Cancel(_ context.Context, _, appointmentID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[appointmentID]; !ok {
		return fmt.Errorf("platform: appointment %s not found", appointmentID)
	}
	delete(m.appointments, appointmentID)
	return nil
}
