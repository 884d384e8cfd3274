package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/changefeed"
	"github.com/md-rashed-zaman/frontdesk/internal/model"
	"github.com/md-rashed-zaman/frontdesk/internal/outbox"
	"github.com/md-rashed-zaman/frontdesk/libs/db"
)

type AppointmentRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewAppointmentRepository(pool *db.Pool, outboxRepo *outbox.Repository) *AppointmentRepository {
	return &AppointmentRepository{pool: pool, outbox: outboxRepo}
}

const appointmentColumns = `
	id, lead_id, agent_id, service_date, scheduled_hour, confirmed,
	attendance, checked_in_at, COALESCE(notes, ''), created_at`

func scanAppointment(row interface{ Scan(...any) error }) (model.Appointment, error) {
	var appt model.Appointment
	var attendance string
	var checkedInAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.LeadID,
		&appt.AgentID,
		&appt.ServiceDate,
		&appt.ScheduledHour,
		&appt.Confirmed,
		&attendance,
		&checkedInAt,
		&appt.Notes,
		&appt.CreatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.Attendance, err = model.ParseAttendance(attendance)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CheckedInAt = checkedInAt
	return appt, nil
}

func (r *AppointmentRepository) Create(ctx context.Context, appt *model.Appointment) (string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, lead_id, agent_id, service_date, scheduled_hour, confirmed, attendance, notes)
		VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8)
		RETURNING id
	`, appt.ID, appt.LeadID, appt.AgentID, appt.ServiceDate, appt.ScheduledHour,
		appt.Confirmed, appt.Attendance.String(), appt.Notes).Scan(&id)
	if err != nil {
		return "", err
	}

	evt, err := changeEvent(changefeed.CollectionAppointments, changefeed.OpInsert, id)
	if err != nil {
		return "", err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return "", err
	}
	return id, tx.Commit(ctx)
}

func (r *AppointmentRepository) Get(ctx context.Context, id string) (model.Appointment, bool, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	appt, err := scanAppointment(row)
	if err != nil {
		if IsNotFound(err) {
			return model.Appointment{}, false, nil
		}
		return model.Appointment{}, false, err
	}
	return appt, true, nil
}

func (r *AppointmentRepository) SetConfirmed(ctx context.Context, id string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET confirmed = true
		WHERE id = $1
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	evt, err := changeEvent(changefeed.CollectionAppointments, changefeed.OpUpdate, id)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// SetAttendance records a terminal outcome. The guard on the current
// attendance value makes the write last-writer-safe: a concurrent scanner
// cannot overwrite an outcome that has already been decided.
func (r *AppointmentRepository) SetAttendance(ctx context.Context, id string, outcome model.Attendance, checkedInAt *time.Time) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE appointments
		SET attendance = $2,
			checked_in_at = $3
		WHERE id = $1 AND attendance = 'unknown'
	`, id, outcome.String(), checkedInAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return nil
	}

	evt, err := changeEvent(changefeed.CollectionAppointments, changefeed.OpUpdate, id)
	if err != nil {
		return err
	}
	if err := r.outbox.Insert(ctx, tx, evt); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (r *AppointmentRepository) ListByServiceDate(ctx context.Context, date time.Time) ([]model.Appointment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT`+appointmentColumns+`
		FROM appointments
		WHERE service_date = $1::date
		ORDER BY scheduled_hour ASC, created_at ASC
	`, date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}
