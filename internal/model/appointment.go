// internal/model/appointment.go
package model

import (
	"strings"
	"time"
)

// Deposit status literals as stored in the events table.
const (
	DepositPaid          = "zapłacony"
	DepositUnpaid        = "niezapłacony"
	DepositNotApplicable = "nie dotyczy"
)

// DefaultDurationMinutes applies when an appointment has no duration set.
const DefaultDurationMinutes = 60

// Appointment is a scheduled studio visit (a row of the events table). Read-only here.
type Appointment struct {
	ID              int        `db:"id" json:"id"`
	FirstName       string     `db:"first_name" json:"first_name"`
	LastName        string     `db:"last_name" json:"last_name"`
	Phone           string     `db:"phone" json:"phone"`
	StartsAt        time.Time  `db:"event_time" json:"event_time"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	Service         string     `db:"service" json:"service"`
	DepositAmount   float64    `db:"deposit_amount" json:"deposit_amount"`
	DepositDueAt    *time.Time `db:"deposit_due_date" json:"deposit_due_date,omitempty"`
	DepositStatus   string     `db:"deposit_status" json:"deposit_status"`
}

// EndsAt is the start plus duration, falling back to DefaultDurationMinutes.
func (a *Appointment) EndsAt() time.Time {
	minutes := a.DurationMinutes
	if minutes <= 0 {
		minutes = DefaultDurationMinutes
	}
	return a.StartsAt.Add(time.Duration(minutes) * time.Minute)
}

func (a *Appointment) FullName() string {
	return strings.TrimSpace(a.FirstName + " " + a.LastName)
}

// HasPhone reports whether the appointment has a usable contact channel.
func (a *Appointment) HasPhone() bool {
	return strings.TrimSpace(a.Phone) != ""
}

// DepositOwed reports an unpaid deposit with a positive amount.
func (a *Appointment) DepositOwed() bool {
	return a.DepositStatus == DepositUnpaid && a.DepositAmount > 0 && a.DepositDueAt != nil
}
