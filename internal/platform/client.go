package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/convia-ai/convia/internal/conversation"
	"github.com/convia-ai/convia/internal/matching"
	"github.com/convia-ai/convia/pkg/logging"
)

const defaultTimeout = 20 * time.Second

// Client talks to the tenant's booking platform over its REST API. It
// implements the conversation package's Directory, Calendar and
// BookingSystem ports.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a booking platform client.
func NewClient(baseURL, apiKey string, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     logger,
	}
}

type entityPayload struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type slotsPayload struct {
	Slots []string `json:"slots"`
}

type appointmentPayload struct {
	ID string `json:"id"`
}

type createAppointmentRequest struct {
	ProfessionalID string `json:"professional_id"`
	ServiceID      string `json:"service_id"`
	ClientID       string `json:"client_id"`
	Date           string `json:"date"`
	Time           string `json:"time"`
}

// ListProfessionals returns the tenant's bookable professionals.
func (c *Client) ListProfessionals(ctx context.Context, tenantID string) ([]matching.Candidate, error) {
	return c.listEntities(ctx, tenantID, "professionals")
}

// ListServices returns the tenant's service catalog.
func (c *Client) ListServices(ctx context.Context, tenantID string) ([]matching.Candidate, error) {
	return c.listEntities(ctx, tenantID, "services")
}

// ListClients returns the tenant's known clients.
func (c *Client) ListClients(ctx context.Context, tenantID string) ([]matching.Candidate, error) {
	return c.listEntities(ctx, tenantID, "clients")
}

// Slots returns the open times for a professional on a date, as "HH:MM"
// strings in tenant-local time.
func (c *Client) Slots(ctx context.Context, tenantID, professionalID string, date time.Time) ([]string, error) {
	path := fmt.Sprintf("/tenants/%s/professionals/%s/slots?date=%s",
		url.PathEscape(tenantID), url.PathEscape(professionalID), date.Format(time.DateOnly))
	var out slotsPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.Slots, nil
}

// Create books an appointment and returns its platform id.
func (c *Client) Create(ctx context.Context, tenantID string, req conversation.BookingRequest) (string, error) {
	body := createAppointmentRequest{
		ProfessionalID: req.ProfessionalID,
		ServiceID:      req.ServiceID,
		ClientID:       req.ClientID,
		Date:           req.Date,
		Time:           req.Time,
	}
	var out appointmentPayload
	path := fmt.Sprintf("/tenants/%s/appointments", url.PathEscape(tenantID))
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("platform: create appointment returned empty id")
	}
	return out.ID, nil
}

// Cancel cancels an appointment on the platform.
func (c *Client) Cancel(ctx context.Context, tenantID, appointmentID string) error {
	path := fmt.Sprintf("/tenants/%s/appointments/%s",
		url.PathEscape(tenantID), url.PathEscape(appointmentID))
	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *Client) listEntities(ctx context.Context, tenantID, kind string) ([]matching.Candidate, error) {
	path := fmt.Sprintf("/tenants/%s/%s", url.PathEscape(tenantID), kind)
	var out []entityPayload
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	candidates := make([]matching.Candidate, 0, len(out))
	for _, e := range out {
		candidates = append(candidates, matching.Candidate{ID: e.ID, Name: e.Name})
	}
	return candidates, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	if c.baseURL == "" {
		return fmt.Errorf("platform: missing base URL")
	}

	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("platform: marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("platform: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("platform: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("platform: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(respBody)
		if len(msg) > 300 {
			msg = msg[:300]
		}
		return fmt.Errorf("platform: %s %s: status %d: %s", method, path, resp.StatusCode, msg)
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("platform: unmarshal response: %w", err)
	}
	return nil
}
