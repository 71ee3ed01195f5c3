package catalog

import (
	"fmt"
	"time"
)

// IntervalUnit is the calendar unit a billing interval is measured in.
type IntervalUnit string

const (
	IntervalDay   IntervalUnit = "day"
	IntervalWeek  IntervalUnit = "week"
	IntervalMonth IntervalUnit = "month"
	IntervalYear  IntervalUnit = "year"
)

func (u IntervalUnit) Valid() bool {
	switch u {
	case IntervalDay, IntervalWeek, IntervalMonth, IntervalYear:
		return true
	}
	return false
}

// Plan is a billing plan definition. Once created only Active may change.
type Plan struct {
	Code          string       `json:"code"`
	Name          string       `json:"name"`
	Amount        int64        `json:"amount"` // minor units
	Currency      string       `json:"currency"`
	IntervalUnit  IntervalUnit `json:"interval_unit"`
	IntervalCount int          `json:"interval_count"`
	TrialDays     int          `json:"trial_days"`
	Active        bool         `json:"active"`
	CreatedAt     time.Time    `json:"created_at"`
	UpdatedAt     time.Time    `json:"updated_at"`
}

// HasTrial reports whether new subscriptions start in a trial.
func (p Plan) HasTrial() bool {
	return p.TrialDays > 0
}

// TrialEnd returns the end of a trial started at start.
func (p Plan) TrialEnd(start time.Time) time.Time {
	return start.AddDate(0, 0, p.TrialDays)
}

// NextPeriodEnd advances start by exactly one billing interval, anchored on
// the day of month of start.
func (p Plan) NextPeriodEnd(start time.Time) time.Time {
	return p.AnchoredPeriodEnd(start, start.Day())
}

// AnchoredPeriodEnd advances start by one billing interval. Month and year
// intervals land on anchorDay, clamped to the last day of the target month,
// so a monthly plan anchored on the 31st renews on Feb 28 and then on Mar 31.
// A non-positive anchorDay means the day of start.
func (p Plan) AnchoredPeriodEnd(start time.Time, anchorDay int) time.Time {
	n := max(p.IntervalCount, 1)
	if anchorDay <= 0 {
		anchorDay = start.Day()
	}
	switch p.IntervalUnit {
	case IntervalDay:
		return start.AddDate(0, 0, n)
	case IntervalWeek:
		return start.AddDate(0, 0, 7*n)
	case IntervalYear:
		return addMonths(start, 12*n, anchorDay)
	default:
		return addMonths(start, n, anchorDay)
	}
}

func addMonths(t time.Time, months, anchorDay int) time.Time {
	y, m, _ := t.Date()
	target := m + time.Month(months)
	last := time.Date(y, target+1, 0, 0, 0, 0, 0, t.Location()).Day()
	return time.Date(y, target, min(anchorDay, last), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// Interval renders the billing interval, e.g. "1 month".
func (p Plan) Interval() string {
	return fmt.Sprintf("%d %s", p.IntervalCount, p.IntervalUnit)
}
