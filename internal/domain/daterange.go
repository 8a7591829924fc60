package domain

import (
	"fmt"

	"cloud.google.com/go/civil"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start civil.Date
	End   civil.Date
}

// NewDateRange builds a range and validates it.
func NewDateRange(start, end civil.Date) (DateRange, error) {
	r := DateRange{Start: start, End: end}
	if err := r.Validate(); err != nil {
		return DateRange{}, err
	}
	return r, nil
}

// Validate reports an error when either bound is invalid or Start is after End.
func (r DateRange) Validate() error {
	if !r.Start.IsValid() || !r.End.IsValid() {
		return fmt.Errorf("invalid date range %s..%s", r.Start, r.End)
	}
	if r.Start.After(r.End) {
		return fmt.Errorf("date range start %s is after end %s", r.Start, r.End)
	}
	return nil
}

// Contains reports whether d falls inside the range.
func (r DateRange) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Days returns every date in the range in ascending order.
func (r DateRange) Days() []civil.Date {
	if r.Start.After(r.End) {
		return nil
	}
	days := make([]civil.Date, 0, r.End.DaysSince(r.Start)+1)
	for d := r.Start; !d.After(r.End); d = d.AddDays(1) {
		days = append(days, d)
	}
	return days
}

func (r DateRange) String() string {
	return r.Start.String() + ".." + r.End.String()
}
