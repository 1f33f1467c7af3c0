package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/unclebandit/smsleopard-reminders/internal/model"
)

// AppointmentRepositoryInterface is the read side of the events table used for reminders.
// Both queries only return rows with a non-empty phone.
type AppointmentRepositoryInterface interface {
	// ListStartingBetween returns appointments with start in [start, end).
	ListStartingBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
	// ListDepositsDueBetween returns unpaid deposits with due date in [start, end).
	ListDepositsDueBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error)
}

type AppointmentRepository struct {
	DB *sql.DB
}

const appointmentColumns = `id, first_name, last_name, phone, event_time, duration_minutes, service, deposit_amount, deposit_due_date, deposit_status`

func (r *AppointmentRepository) ListStartingBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	query := `
        SELECT ` + appointmentColumns + `
        FROM events
        WHERE phone IS NOT NULL
          AND phone != ''
          AND event_time >= $1
          AND event_time < $2
        ORDER BY event_time, id
    `
	return r.list(ctx, query, start.UTC(), end.UTC())
}

func (r *AppointmentRepository) ListDepositsDueBetween(ctx context.Context, start, end time.Time) ([]model.Appointment, error) {
	query := `
        SELECT ` + appointmentColumns + `
        FROM events
        WHERE phone IS NOT NULL
          AND phone != ''
          AND deposit_status = $1
          AND deposit_due_date >= $2
          AND deposit_due_date < $3
        ORDER BY deposit_due_date, id
    `
	return r.list(ctx, query, model.DepositUnpaid, start.UTC(), end.UTC())
}

func (r *AppointmentRepository) list(ctx context.Context, query string, args ...any) ([]model.Appointment, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	appointments := []model.Appointment{}
	for rows.Next() {
		var a model.Appointment
		var lastName, service, depositStatus sql.NullString
		var duration sql.NullInt64
		var amount sql.NullFloat64
		var dueAt sql.NullTime

		if err := rows.Scan(
			&a.ID, &a.FirstName, &lastName, &a.Phone, &a.StartsAt, &duration,
			&service, &amount, &dueAt, &depositStatus,
		); err != nil {
			return nil, err
		}
		a.LastName = lastName.String
		a.Service = service.String
		a.DurationMinutes = int(duration.Int64)
		a.DepositAmount = amount.Float64
		a.DepositStatus = depositStatus.String
		if dueAt.Valid {
			t := dueAt.Time
			a.DepositDueAt = &t
		}
		appointments = append(appointments, a)
	}
	return appointments, rows.Err()
}

var _ AppointmentRepositoryInterface = (*AppointmentRepository)(nil)
