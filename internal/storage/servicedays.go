package storage

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/frontdesk/internal/model"
	"github.com/md-rashed-zaman/frontdesk/libs/db"
)

type ServiceDayRepository struct {
	pool *db.Pool
}

func NewServiceDayRepository(pool *db.Pool) *ServiceDayRepository {
	return &ServiceDayRepository{pool: pool}
}

func (r *ServiceDayRepository) Get(ctx context.Context, date time.Time) (model.ServiceDay, bool, error) {
	var day model.ServiceDay
	err := r.pool.QueryRow(ctx, `
		SELECT service_date, active, COALESCE(max_per_hour, 0), weekday
		FROM service_days
		WHERE service_date = $1::date
	`, date).Scan(&day.Date, &day.Active, &day.MaxPerHour, &day.Weekday)
	if err != nil {
		if IsNotFound(err) {
			return model.ServiceDay{}, false, nil
		}
		return model.ServiceDay{}, false, err
	}
	return day, true, nil
}

// Upsert writes schedule configuration for one date. Service days are not a
// watched collection; no change event is emitted.
func (r *ServiceDayRepository) Upsert(ctx context.Context, day model.ServiceDay) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO service_days (service_date, active, max_per_hour, weekday)
		VALUES ($1::date, $2, NULLIF($3, 0), $4)
		ON CONFLICT (service_date)
		DO UPDATE SET active = EXCLUDED.active,
		              max_per_hour = EXCLUDED.max_per_hour,
		              weekday = EXCLUDED.weekday
	`, day.Date, day.Active, day.MaxPerHour, day.Weekday)
	return err
}
