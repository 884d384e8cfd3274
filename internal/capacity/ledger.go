package capacity

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/model"
)

// CommercialHours are the fixed bookable slots of a service day, in order.
var CommercialHours = []string{
	"09:00", "10:00", "11:00", "12:00", "13:00", "14:00", "15:00", "16:00",
}

// DefaultMaxPerHour applies when a service day carries no override.
const DefaultMaxPerHour = 15

const warningFactor = 0.8

// IsFull reports whether a slot is at or over its cap.
func IsFull(count, max int) bool {
	return count >= max
}

// IsWarning reports whether a slot is near its cap but not yet full.
func IsWarning(count, max int) bool {
	return float64(count) >= warningFactor*float64(max) && count < max
}

// SlotHour returns the hour component of a clock label like "09:30".
func SlotHour(slot string) (int, error) {
	hh, _, ok := strings.Cut(slot, ":")
	if !ok {
		return 0, fmt.Errorf("invalid slot %q", slot)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid slot %q", slot)
	}
	return h, nil
}

// ValidSlot reports whether the label names one of the commercial hours.
func ValidSlot(slot string) bool {
	for _, s := range CommercialHours {
		if s == slot {
			return true
		}
	}
	return false
}

// AppointmentSource yields the live appointment records for one date.
type AppointmentSource interface {
	ListByServiceDate(ctx context.Context, date time.Time) ([]model.Appointment, error)
}

// Ledger computes per-hour occupancy from live appointment records. It is
// read-only and advisory: it never blocks or reserves a slot, so two
// concurrent bookings can both observe a count below the cap and both
// commit (fail-open).
type Ledger struct {
	src AppointmentSource
}

func NewLedger(src AppointmentSource) *Ledger {
	return &Ledger{src: src}
}

// ComputeHourCounts returns one entry per commercial hour slot, in slot
// order, for the given date. Appointment minutes are discarded: anything
// scheduled at 09:xx counts against the 09:00 slot. A zero date yields nil.
func (l *Ledger) ComputeHourCounts(ctx context.Context, date time.Time, maxPerHour int) ([]model.HourCount, error) {
	if date.IsZero() {
		return nil, nil
	}
	if maxPerHour <= 0 {
		maxPerHour = DefaultMaxPerHour
	}

	appts, err := l.src.ListByServiceDate(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("list appointments for %s: %w", date.Format("2006-01-02"), err)
	}

	byHour := make(map[int]int, len(CommercialHours))
	for _, appt := range appts {
		h, err := SlotHour(appt.ScheduledHour)
		if err != nil {
			continue
		}
		byHour[h]++
	}

	counts := make([]model.HourCount, 0, len(CommercialHours))
	for _, slot := range CommercialHours {
		h, _ := SlotHour(slot)
		n := byHour[h]
		counts = append(counts, model.HourCount{
			Hour:      slot,
			Count:     n,
			IsWarning: IsWarning(n, maxPerHour),
			IsFull:    IsFull(n, maxPerHour),
		})
	}
	return counts, nil
}
