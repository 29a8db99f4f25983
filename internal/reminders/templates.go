package reminders

import (
	"strconv"
	"time"

	"github.com/convia-ai/convia/internal/appointments"
)

// BuildVariables produces the substitution map for a confirmation template.
// Each value is exposed twice: under its semantic name ("name", "time",
// "professional") and under its 1-based position ("1", "2", "3") so both
// named and positional provider templates resolve. The tenant's
// VariableOrder controls which field lands in which position; entries
// naming unknown fields are dropped without leaving a positional gap.
func BuildVariables(appt appointments.Appointment, order []string, loc *time.Location) map[string]string {
	if len(order) == 0 {
		order = DefaultVariableOrder
	}
	if loc == nil {
		loc = time.UTC
	}

	values := map[string]string{
		"name":         appt.ClientName,
		"time":         appt.StartsAt.In(loc).Format("15:04"),
		"professional": appt.ProfessionalName,
	}

	vars := make(map[string]string, len(values)+len(order))
	for k, v := range values {
		vars[k] = v
	}
	pos := 0
	for _, field := range order {
		v, ok := values[field]
		if !ok {
			continue
		}
		pos++
		vars[strconv.Itoa(pos)] = v
	}
	return vars
}
