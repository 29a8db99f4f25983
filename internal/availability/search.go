package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/convia-ai/convia/pkg/logging"
)

// DefaultMaxAttempts bounds how many calendar days one search may scan.
const DefaultMaxAttempts = 7

// CheckFunc reports the open slots for one date. It is typically a network
// call into a calendar system, so probes run one at a time.
type CheckFunc func(ctx context.Context, date time.Time) ([]string, error)

// Result describes one search outcome. AttemptsMade counts every calendar day
// advanced, including skipped weekends; DaysChecked counts only the business
// days actually probed.
type Result struct {
	RequestedDate time.Time
	FoundDate     time.Time
	Found         bool
	Slots         []string
	AttemptsMade  int
	DaysChecked   int
}

// Search probes dates sequentially starting at a given day, skipping weekends.
type Search struct {
	maxAttempts int
	logger      *logging.Logger
}

// NewSearch creates a search with the supplied probe budget. Non-positive
// budgets fall back to DefaultMaxAttempts.
func NewSearch(maxAttempts int, logger *logging.Logger) *Search {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Search{maxAttempts: maxAttempts, logger: logger}
}

// FindNextAvailable returns the first date at or after start with open slots.
// Saturdays and Sundays are advanced past without probing but still consume
// the attempt budget. When the budget runs out without a hit, the returned
// Result has Found == false and AttemptsMade == maxAttempts.
func (s *Search) FindNextAvailable(ctx context.Context, start time.Time, check CheckFunc) (Result, error) {
	return FindNextAvailable(ctx, start, check, s.maxAttempts)
}

// FindNextAvailable is the stateless form of Search.FindNextAvailable.
func FindNextAvailable(ctx context.Context, start time.Time, check CheckFunc, maxAttempts int) (Result, error) {
	if check == nil {
		return Result{}, fmt.Errorf("availability: check function required")
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	res := Result{RequestedDate: start}

	for i := 0; i < maxAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		date := start.AddDate(0, 0, i)
		res.AttemptsMade++

		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		res.DaysChecked++

		slots, err := check(ctx, date)
		if err != nil {
			return res, fmt.Errorf("availability: check %s: %w", date.Format(time.DateOnly), err)
		}
		if len(slots) > 0 {
			res.Found = true
			res.FoundDate = date
			res.Slots = slots
			return res, nil
		}
	}

	return res, nil
}
