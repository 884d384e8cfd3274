package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/model"
)

var (
	// ErrInvalidTransition is returned for any transition attempted after
	// attendance has reached a terminal outcome. Reversal is an explicit
	// administrative action outside this workflow.
	ErrInvalidTransition = errors.New("invalid appointment state transition")

	// ErrPreconditionFailed is returned when attendance is marked before
	// the appointment has been confirmed.
	ErrPreconditionFailed = errors.New("appointment must be confirmed before marking attendance")

	// ErrInvalidToken is returned for a well-formed token whose appointment
	// cannot be resolved.
	ErrInvalidToken = errors.New("token references unknown appointment")

	ErrNotFound = errors.New("appointment not found")
)

// AppointmentStore is the slice of the record store the workflow mutates.
type AppointmentStore interface {
	Get(ctx context.Context, id string) (model.Appointment, bool, error)
	SetConfirmed(ctx context.Context, id string) error
	SetAttendance(ctx context.Context, id string, outcome model.Attendance, checkedInAt *time.Time) error
}

// Workflow drives an appointment through scheduled → confirmed →
// attended/no-show. Terminal outcomes are set at most once.
type Workflow struct {
	store  AppointmentStore
	logger *slog.Logger
	now    func() time.Time
}

func NewWorkflow(store AppointmentStore, logger *slog.Logger) *Workflow {
	return &Workflow{store: store, logger: logger, now: time.Now}
}

// Confirm moves a scheduled appointment to confirmed. Confirming an already
// confirmed appointment is a no-op.
func (w *Workflow) Confirm(ctx context.Context, id string) error {
	appt, found, err := w.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if appt.Attendance.Terminal() {
		return fmt.Errorf("%w: appointment %s already %s", ErrInvalidTransition, id, appt.Attendance)
	}
	if appt.Confirmed {
		return nil
	}
	if err := w.store.SetConfirmed(ctx, id); err != nil {
		return fmt.Errorf("confirm appointment %s: %w", id, err)
	}
	w.logger.Info("appointment confirmed", "appointment_id", id)
	return nil
}

// MarkAttendance records the terminal outcome of a confirmed appointment.
func (w *Workflow) MarkAttendance(ctx context.Context, id string, outcome model.Attendance) error {
	if !outcome.Terminal() {
		return fmt.Errorf("outcome must be attended or no-show, got %q", outcome)
	}
	return w.markAttendance(ctx, id, outcome, nil)
}

func (w *Workflow) markAttendance(ctx context.Context, id string, outcome model.Attendance, checkedInAt *time.Time) error {
	appt, found, err := w.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("load appointment %s: %w", id, err)
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if appt.Attendance.Terminal() {
		return fmt.Errorf("%w: appointment %s already %s", ErrInvalidTransition, id, appt.Attendance)
	}
	if !appt.Confirmed {
		return fmt.Errorf("%w: appointment %s", ErrPreconditionFailed, id)
	}
	if err := w.store.SetAttendance(ctx, id, outcome, checkedInAt); err != nil {
		return fmt.Errorf("mark appointment %s %s: %w", id, outcome, err)
	}
	w.logger.Info("attendance marked", "appointment_id", id, "outcome", outcome.String())
	return nil
}

// CheckIn processes one scanned payload. Payloads that are not check-in
// tokens are silently ignored (handled=false, no error) so a scanner can
// tolerate unrelated codes in the environment. A well-formed token whose
// appointment does not exist fails with ErrInvalidToken; otherwise the
// appointment is marked attended and stamped with the scan time.
func (w *Workflow) CheckIn(ctx context.Context, payload []byte) (handled bool, err error) {
	tok, ok := DecodeToken(payload)
	if !ok {
		return false, nil
	}

	_, found, err := w.store.Get(ctx, tok.AppointmentID)
	if err != nil {
		return false, fmt.Errorf("load appointment %s: %w", tok.AppointmentID, err)
	}
	if !found {
		return false, fmt.Errorf("%w: %s", ErrInvalidToken, tok.AppointmentID)
	}

	scannedAt := w.now().UTC()
	if err := w.markAttendance(ctx, tok.AppointmentID, model.AttendanceAttended, &scannedAt); err != nil {
		return false, err
	}
	w.logger.Info("check-in scan accepted", "appointment_id", tok.AppointmentID, "checked_in_at", scannedAt)
	return true, nil
}
