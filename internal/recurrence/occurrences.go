package recurrence

import (
	"fmt"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/capacity"
	"github.com/md-rashed-zaman/frontdesk/internal/model"
)

// OccurrenceCount is the fixed batch size of a recurring course offering.
const OccurrenceCount = 8

// FirstOnOrAfter returns the earliest date on or after start that falls on
// the target weekday. The time-of-day component of start is dropped.
func FirstOnOrAfter(start time.Time, target time.Weekday) time.Time {
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location())
	offset := (int(target) - int(day.Weekday()) + 7) % 7
	return day.AddDate(0, 0, offset)
}

// Dates returns the OccurrenceCount weekly dates of an offering, 7 days
// apart, starting at the first target weekday on or after start.
func Dates(start time.Time, target time.Weekday) []time.Time {
	dates := make([]time.Time, 0, OccurrenceCount)
	d := FirstOnOrAfter(start, target)
	for i := 0; i < OccurrenceCount; i++ {
		dates = append(dates, d.AddDate(0, 0, 7*i))
	}
	return dates
}

// StartSlots returns the commercial hours at which an offering of the given
// duration may start. One-hour offerings may start at any slot; longer ones
// must leave the facility's last slot free to close on time.
func StartSlots(duration time.Duration) []string {
	hours := int(duration.Hours())
	if hours <= 1 {
		return capacity.CommercialHours
	}
	cut := len(capacity.CommercialHours) - hours
	if cut < 0 {
		cut = 0
	}
	return capacity.CommercialHours[:cut]
}

func slotEligible(slot string, duration time.Duration) bool {
	for _, s := range StartSlots(duration) {
		if s == slot {
			return true
		}
	}
	return false
}

// Occurrences builds the full batch for a new recurring offering. It only
// computes candidate start/end pairs; room and instructor conflicts are the
// caller's problem.
func Occurrences(courseID string, start time.Time, target time.Weekday, startSlot string, duration time.Duration) ([]model.Occurrence, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("invalid duration %s", duration)
	}
	if !slotEligible(startSlot, duration) {
		return nil, fmt.Errorf("slot %s is not an eligible start for a %s offering", startSlot, duration)
	}
	clock, err := time.Parse("15:04", startSlot)
	if err != nil {
		return nil, fmt.Errorf("invalid start slot %q: %w", startSlot, err)
	}

	occs := make([]model.Occurrence, 0, OccurrenceCount)
	for _, date := range Dates(start, target) {
		s := time.Date(date.Year(), date.Month(), date.Day(), clock.Hour(), clock.Minute(), 0, 0, date.Location())
		occs = append(occs, model.Occurrence{
			CourseID: courseID,
			Date:     date,
			Weekday:  date.Weekday(),
			Start:    s,
			End:      s.Add(duration),
			Duration: duration,
		})
	}
	return occs, nil
}
