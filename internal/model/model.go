package model

import (
	"fmt"
	"time"
)

// Attendance is the tri-state outcome of an appointment. It starts at
// AttendanceUnknown and is set at most once to a terminal value.
type Attendance int

const (
	AttendanceUnknown Attendance = iota
	AttendanceAttended
	AttendanceNoShow
)

func (a Attendance) String() string {
	switch a {
	case AttendanceAttended:
		return "attended"
	case AttendanceNoShow:
		return "no-show"
	default:
		return "unknown"
	}
}

// Terminal reports whether the outcome has been decided.
func (a Attendance) Terminal() bool {
	return a == AttendanceAttended || a == AttendanceNoShow
}

func ParseAttendance(s string) (Attendance, error) {
	switch s {
	case "unknown", "":
		return AttendanceUnknown, nil
	case "attended":
		return AttendanceAttended, nil
	case "no-show":
		return AttendanceNoShow, nil
	default:
		return AttendanceUnknown, fmt.Errorf("invalid attendance outcome %q", s)
	}
}

type Appointment struct {
	ID            string
	LeadID        string
	AgentID       string
	ServiceDate   time.Time // date component only, UTC midnight
	ScheduledHour string    // clock label, e.g. "09:00"; minutes are advisory
	Confirmed     bool
	Attendance    Attendance
	CheckedInAt   *time.Time
	Notes         string
	CreatedAt     time.Time
}

// ServiceDay is a configured, bookable calendar date. MaxPerHour of zero
// means the commercial default applies.
type ServiceDay struct {
	Date       time.Time
	Active     bool
	MaxPerHour int
	Weekday    string
}

func (d ServiceDay) EffectiveMaxPerHour(fallback int) int {
	if d.MaxPerHour > 0 {
		return d.MaxPerHour
	}
	return fallback
}

const LeadStatusNew = "new lead"

type Lead struct {
	ID        string
	Name      string
	Email     string
	Phone     string
	Status    string
	CreatedAt time.Time
}

const PaymentStatusOverdue = "overdue"

type Payment struct {
	ID         string
	LeadID     string
	AmountDue  int64 // cents
	Status     string
	DueDate    time.Time
	ExternalID string // invoice id at the payment provider
	CreatedAt  time.Time
}

// HourCount is the derived occupancy of one commercial hour slot on one
// date. It is recomputed on demand and never stored.
type HourCount struct {
	Hour      string
	Count     int
	IsWarning bool
	IsFull    bool
}

// Occurrence is one concrete calendar/time instance of a recurring course
// offering.
type Occurrence struct {
	CourseID string
	Date     time.Time
	Weekday  time.Weekday
	Start    time.Time
	End      time.Time
	Duration time.Duration
}
