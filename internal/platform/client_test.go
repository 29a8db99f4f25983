package platform

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/convia-ai/convia/internal/conversation"
)

func TestListProfessionals(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenants/tnt_1/professionals", r.URL.Path)
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode([]map[string]string{
			{"id": "pro_1", "name": "Geraldine Silva"},
			{"id": "pro_2", "name": "Marcos Lima"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-1", nil)
	got, err := c.ListProfessionals(context.Background(), "tnt_1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "pro_1", got[0].ID)
	assert.Equal(t, "Geraldine Silva", got[0].Name)
}

func TestSlotsPassesDate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/tenants/tnt_1/professionals/pro_1/slots", r.URL.Path)
		assert.Equal(t, "2026-09-01", r.URL.Query().Get("date"))
		json.NewEncoder(w).Encode(map[string][]string{"slots": {"09:00", "10:30"}})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	slots, err := c.Slots(context.Background(), "tnt_1", "pro_1", time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "10:30"}, slots)
}

func TestCreateAppointment(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "pro_1", body["professional_id"])
		assert.Equal(t, "14:30", body["time"])
		json.NewEncoder(w).Encode(map[string]string{"id": "appt_77"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	id, err := c.Create(context.Background(), "tnt_1", conversation.BookingRequest{
		ProfessionalID: "pro_1",
		ServiceID:      "svc_1",
		ClientID:       "cli_1",
		Date:           "2026-09-01",
		Time:           "14:30",
	})
	require.NoError(t, err)
	assert.Equal(t, "appt_77", id)
}

func TestCreateEmptyIDFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"id": ""})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.Create(context.Background(), "tnt_1", conversation.BookingRequest{})
	assert.Error(t, err)
}

func TestErrorStatusSurfacesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "tenant suspended", http.StatusForbidden)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	_, err := c.ListServices(context.Background(), "tnt_1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")
	assert.Contains(t, err.Error(), "tenant suspended")
}

func TestCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/tenants/tnt_1/appointments/appt_77", r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", nil)
	require.NoError(t, c.Cancel(context.Background(), "tnt_1", "appt_77"))
}
