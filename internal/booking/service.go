package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/frontdesk/internal/capacity"
	"github.com/md-rashed-zaman/frontdesk/internal/model"
)

var (
	ErrDayUnavailable = errors.New("service day is not bookable")
	ErrInvalidSlot    = errors.New("scheduled hour is not a commercial slot")
)

type AppointmentCreator interface {
	Create(ctx context.Context, appt *model.Appointment) (string, error)
}

type DayStore interface {
	Get(ctx context.Context, date time.Time) (model.ServiceDay, bool, error)
}

// Service books appointments onto service days. The capacity read before the
// insert is advisory: two concurrent bookings can both see a free slot and
// both land, and that is accepted — the ledger reports the overflow, it does
// not prevent it.
type Service struct {
	appts  AppointmentCreator
	days   DayStore
	ledger *capacity.Ledger
	logger *slog.Logger
}

func NewService(appts AppointmentCreator, days DayStore, ledger *capacity.Ledger, logger *slog.Logger) *Service {
	return &Service{appts: appts, days: days, ledger: ledger, logger: logger}
}

type Request struct {
	LeadID        string
	AgentID       string
	ServiceDate   time.Time
	ScheduledHour string
	Notes         string
}

func (s *Service) Book(ctx context.Context, req Request) (model.Appointment, error) {
	req.LeadID = strings.TrimSpace(req.LeadID)
	req.AgentID = strings.TrimSpace(req.AgentID)
	if req.LeadID == "" || req.AgentID == "" {
		return model.Appointment{}, errors.New("lead and agent are required")
	}
	if !capacity.ValidSlot(req.ScheduledHour) {
		return model.Appointment{}, fmt.Errorf("%w: %q", ErrInvalidSlot, req.ScheduledHour)
	}

	day, found, err := s.days.Get(ctx, req.ServiceDate)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("load service day: %w", err)
	}
	if !found || !day.Active {
		return model.Appointment{}, fmt.Errorf("%w: %s", ErrDayUnavailable, req.ServiceDate.Format("2006-01-02"))
	}

	maxPerHour := day.EffectiveMaxPerHour(capacity.DefaultMaxPerHour)
	counts, err := s.ledger.ComputeHourCounts(ctx, req.ServiceDate, maxPerHour)
	if err != nil {
		return model.Appointment{}, err
	}
	for _, c := range counts {
		if c.Hour == req.ScheduledHour && c.IsFull {
			s.logger.Warn("booking into a full slot",
				"service_date", req.ServiceDate.Format("2006-01-02"),
				"hour", c.Hour,
				"count", c.Count,
				"max_per_hour", maxPerHour,
			)
		}
	}

	appt := model.Appointment{
		ID:            uuid.NewString(),
		LeadID:        req.LeadID,
		AgentID:       req.AgentID,
		ServiceDate:   req.ServiceDate,
		ScheduledHour: req.ScheduledHour,
		Attendance:    model.AttendanceUnknown,
		Notes:         strings.TrimSpace(req.Notes),
	}
	id, err := s.appts.Create(ctx, &appt)
	if err != nil {
		return model.Appointment{}, fmt.Errorf("create appointment: %w", err)
	}
	appt.ID = id
	s.logger.Info("appointment booked", "appointment_id", id, "service_date", appt.ServiceDate.Format("2006-01-02"), "hour", appt.ScheduledHour)
	return appt, nil
}
