package queue

import (
	"fmt"
	"time"
)

// Schedule tells the Scheduler when a periodic task is next due.
type Schedule interface {
	Next(from time.Time) time.Time
	String() string
}

type intervalSchedule struct {
	every time.Duration
}

func (s intervalSchedule) Next(from time.Time) time.Time { return from.Add(s.every) }
func (s intervalSchedule) String() string                { return fmt.Sprintf("every %v", s.every) }

type hourlySchedule struct {
	minute int
}

func (s hourlySchedule) Next(from time.Time) time.Time {
	next := from.Truncate(time.Hour).Add(time.Duration(s.minute) * time.Minute)
	if !next.After(from) {
		next = next.Add(time.Hour)
	}
	return next
}

func (s hourlySchedule) String() string { return fmt.Sprintf("hourly at :%02d", s.minute) }

type dailySchedule struct {
	hour, minute int
}

func (s dailySchedule) Next(from time.Time) time.Time {
	next := time.Date(from.Year(), from.Month(), from.Day(), s.hour, s.minute, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

func (s dailySchedule) String() string { return fmt.Sprintf("daily at %02d:%02d", s.hour, s.minute) }

// EveryInterval is due every d after the previous run.
func EveryInterval(d time.Duration) Schedule {
	return intervalSchedule{every: d}
}

// HourlyAt is due every hour at the given minute.
func HourlyAt(minute int) Schedule {
	return hourlySchedule{minute: minute % 60}
}

// DailyAt is due every day at hour:minute in the location of the time it is
// asked about.
func DailyAt(hour, minute int) Schedule {
	return dailySchedule{hour: hour % 24, minute: minute % 60}
}
