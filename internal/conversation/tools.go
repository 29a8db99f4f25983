package conversation

import (
	"context"
	"fmt"
	"time"

	"github.com/convia-ai/convia/internal/availability"
	"github.com/convia-ai/convia/internal/matching"
	"github.com/convia-ai/convia/pkg/logging"
)

// Tool names the registry serves.
const (
	ToolFindProfessional  = "find_professional"
	ToolFindService       = "find_service"
	ToolFindClient        = "find_client"
	ToolCheckAvailability = "check_availability"
	ToolCreateBooking     = "create_booking"
	ToolCancelBooking     = "cancel_booking"
)

// Directory lists the named entities of one tenant's business system.
type Directory interface {
	ListProfessionals(ctx context.Context, tenantID string) ([]matching.Candidate, error)
	ListServices(ctx context.Context, tenantID string) ([]matching.Candidate, error)
	ListClients(ctx context.Context, tenantID string) ([]matching.Candidate, error)
}

// Calendar reports open slots for a professional on a date.
type Calendar interface {
	Slots(ctx context.Context, tenantID, professionalID string, date time.Time) ([]string, error)
}

// BookingRequest carries the fields a booking needs.
type BookingRequest struct {
	ProfessionalID string
	ServiceID      string
	ClientID       string
	Date           string
	Time           string
}

// BookingSystem creates and cancels appointments in the external platform.
type BookingSystem interface {
	Create(ctx context.Context, tenantID string, req BookingRequest) (appointmentID string, err error)
	Cancel(ctx context.Context, tenantID, appointmentID string) error
}

// ToolFunc is one registered tool.
type ToolFunc func(ctx context.Context, tc ToolContext) (ToolResult, error)

// Registry maps tool names to implementations. It satisfies ToolInvoker.
type Registry struct {
	tools  map[string]ToolFunc
	logger *logging.Logger
}

// NewRegistry builds the standard tool set over the supplied business ports.
func NewRegistry(dir Directory, cal Calendar, booking BookingSystem, search *availability.Search, logger *logging.Logger) *Registry {
	if logger == nil {
		logger = logging.Default()
	}
	r := &Registry{tools: make(map[string]ToolFunc), logger: logger}

	r.Register(ToolFindProfessional, matchTool("professional", "professional_name", dir.ListProfessionals))
	r.Register(ToolFindService, matchTool("service", "service_name", dir.ListServices))
	r.Register(ToolFindClient, matchTool("client", "client_name", dir.ListClients))
	r.Register(ToolCheckAvailability, checkAvailabilityTool(cal, search))
	r.Register(ToolCreateBooking, createBookingTool(booking))
	r.Register(ToolCancelBooking, cancelBookingTool(booking))

	return r
}

// Register adds or replaces a tool.
func (r *Registry) Register(name string, fn ToolFunc) {
	r.tools[name] = fn
}

// Invoke runs the named tool. Unknown names are an invocation error.
func (r *Registry) Invoke(ctx context.Context, name string, tc ToolContext) (ToolResult, error) {
	fn, ok := r.tools[name]
	if !ok {
		return ToolResult{}, fmt.Errorf("conversation: unknown tool %q", name)
	}
	return fn(ctx, tc)
}

// matchTool resolves a free-text name from extracted data (falling back to
// the inbound message) against a candidate list via the fuzzy matcher.
func matchTool(entity, queryField string, list func(ctx context.Context, tenantID string) ([]matching.Candidate, error)) ToolFunc {
	idField := entity + "_id"
	nameField := entity + "_name"

	return func(ctx context.Context, tc ToolContext) (ToolResult, error) {
		query := tc.Data[queryField]
		if query == "" {
			query = tc.Message
		}
		if query == "" {
			return ToolResult{Status: StatusMissing, Payload: map[string]any{"missing": []string{queryField}}}, nil
		}

		candidates, err := list(ctx, tc.Key.TenantID)
		if err != nil {
			return ToolResult{}, fmt.Errorf("list %ss: %w", entity, err)
		}

		res := matching.FindBest(query, candidates, matching.DefaultOptions())
		switch {
		case res.Match == nil:
			return ToolResult{Status: StatusNotFound}, nil
		case res.Confident:
			return ToolResult{
				Status: StatusFound,
				Payload: map[string]any{
					"name":  res.Match.Name,
					"score": res.Score,
				},
				Cache: &CacheInstruction{Update: map[string]string{
					idField:   res.Match.ID,
					nameField: res.Match.Name,
				}},
			}, nil
		case res.Ambiguous:
			options := make([]string, 0, len(res.Top))
			for _, c := range res.Top {
				options = append(options, c.Name)
			}
			return ToolResult{
				Status:  StatusAmbiguous,
				Payload: map[string]any{"options": options, "score": res.Score},
			}, nil
		default:
			return ToolResult{Status: StatusNotFound, Payload: map[string]any{"score": res.Score}}, nil
		}
	}
}

func checkAvailabilityTool(cal Calendar, search *availability.Search) ToolFunc {
	return func(ctx context.Context, tc ToolContext) (ToolResult, error) {
		professionalID := tc.Data["professional_id"]
		if professionalID == "" {
			return ToolResult{Status: StatusMissing, Payload: map[string]any{"missing": []string{"professional_id"}}}, nil
		}

		start := time.Now().AddDate(0, 0, 1)
		if raw := tc.Data["date"]; raw != "" {
			parsed, err := time.Parse(time.DateOnly, raw)
			if err != nil {
				return ToolResult{Status: StatusError, Payload: map[string]any{"error": fmt.Sprintf("bad date %q", raw)}}, nil
			}
			start = parsed
		}

		res, err := search.FindNextAvailable(ctx, start, func(ctx context.Context, date time.Time) ([]string, error) {
			return cal.Slots(ctx, tc.Key.TenantID, professionalID, date)
		})
		if err != nil {
			return ToolResult{}, fmt.Errorf("availability search: %w", err)
		}
		if !res.Found {
			return ToolResult{
				Status: StatusNotFound,
				Payload: map[string]any{
					"requested_date": res.RequestedDate.Format(time.DateOnly),
					"attempts_made":  res.AttemptsMade,
				},
			}, nil
		}
		return ToolResult{
			Status: StatusFound,
			Payload: map[string]any{
				"requested_date": res.RequestedDate.Format(time.DateOnly),
				"found_date":     res.FoundDate.Format(time.DateOnly),
				"slots":          res.Slots,
				"attempts_made":  res.AttemptsMade,
			},
			Cache: &CacheInstruction{Update: map[string]string{
				"date": res.FoundDate.Format(time.DateOnly),
			}},
		}, nil
	}
}

func createBookingTool(booking BookingSystem) ToolFunc {
	required := []string{"professional_id", "service_id", "client_id", "date", "time"}

	return func(ctx context.Context, tc ToolContext) (ToolResult, error) {
		var missing []string
		for _, f := range required {
			if tc.Data[f] == "" {
				missing = append(missing, f)
			}
		}
		if len(missing) > 0 {
			return ToolResult{Status: StatusMissing, Payload: map[string]any{"missing": missing}}, nil
		}

		id, err := booking.Create(ctx, tc.Key.TenantID, BookingRequest{
			ProfessionalID: tc.Data["professional_id"],
			ServiceID:      tc.Data["service_id"],
			ClientID:       tc.Data["client_id"],
			Date:           tc.Data["date"],
			Time:           tc.Data["time"],
		})
		if err != nil {
			return ToolResult{}, fmt.Errorf("create booking: %w", err)
		}
		return ToolResult{
			Status:  StatusCreated,
			Payload: map[string]any{"appointment_id": id},
			Cache:   &CacheInstruction{Update: map[string]string{"appointment_id": id}},
		}, nil
	}
}

func cancelBookingTool(booking BookingSystem) ToolFunc {
	return func(ctx context.Context, tc ToolContext) (ToolResult, error) {
		id := tc.Data["appointment_id"]
		if id == "" {
			return ToolResult{Status: StatusMissing, Payload: map[string]any{"missing": []string{"appointment_id"}}}, nil
		}
		if err := booking.Cancel(ctx, tc.Key.TenantID, id); err != nil {
			return ToolResult{}, fmt.Errorf("cancel booking: %w", err)
		}
		// A cancelled booking is a terminal event for these fields.
		return ToolResult{
			Status:  StatusCancelled,
			Payload: map[string]any{"appointment_id": id},
			Cache:   &CacheInstruction{Clear: []string{"appointment_id", "date", "time"}},
		}, nil
	}
}
