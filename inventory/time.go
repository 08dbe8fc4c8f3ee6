package inventory

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - calendar day without time of day
// =============================================================================

const dateLayout = "2006-01-02"

// Date is a calendar day. The zero value is "no date".
type Date struct {
	t time.Time // midnight UTC
}

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, &ValidationError{Field: "date", Message: fmt.Sprintf("expected YYYY-MM-DD, got %q", s)}
	}
	return Date{t: t}, nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.t.Before(other.t) }
func (d Date) After(other Date) bool  { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool  { return d.t.Equal(other.t) }

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }

// Properties
func (d Date) Year() int      { return d.t.Year() }
func (d Date) IsZero() bool   { return d.t.IsZero() }
func (d Date) String() string { return d.t.Format(dateLayout) }

// At returns the instant at hour:00 of d in loc.
func (d Date) At(hour int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.t.Year(), d.t.Month(), d.t.Day(), hour, 0, 0, 0, loc)
}

func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// =============================================================================
// BUSINESS DAY - rollover rule shared by the gate and invoicing
// =============================================================================

// RolloverHour is the local hour at which the previous business day must be
// closed. Before it, the day before yesterday is the one that must be closed.
const RolloverHour = 5

// RequiredClosedDate returns the business day whose closing must be COMPLETED
// for normal operation at now:
//
//	now.Hour() >= 5  ->  yesterday
//	now.Hour() <  5  ->  the day before yesterday
//
// The hour is read in now's location, so callers pass a time already
// converted to the tenant's zone.
func RequiredClosedDate(now time.Time) Date {
	today := DateOf(now)
	if now.Hour() >= RolloverHour {
		return today.AddDays(-1)
	}
	return today.AddDays(-2)
}

// NextRollover returns the next access instant after a day has been closed
// early: tomorrow at RolloverHour in today's location.
func NextRollover(now time.Time) time.Time {
	return DateOf(now).AddDays(1).At(RolloverHour, now.Location())
}

// =============================================================================
// CLOCK
// =============================================================================

// Clock abstracts "now" so the rollover rule is testable.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock in Location (time.Local when nil).
type SystemClock struct {
	Location *time.Location
}

func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock always returns T.
type FixedClock struct {
	T time.Time
}

func (c FixedClock) Now() time.Time { return c.T }
