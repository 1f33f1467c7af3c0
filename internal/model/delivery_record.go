// internal/model/delivery_record.go
package model

import "time"

type DeliveryStatus string

const (
	DeliveryQueued DeliveryStatus = "queued"
	DeliverySent   DeliveryStatus = "sent"
	DeliveryFailed DeliveryStatus = "failed"
)

// DeliveryKey identifies one logical send. The ledger enforces it unique.
type DeliveryKey struct {
	Phone        string    `json:"phone"`
	TemplateCode string    `json:"template_code"`
	ScheduledFor time.Time `json:"scheduled_for"`
}

// DeliveryRecord is a row of the sms_history ledger.
type DeliveryRecord struct {
	ID           string         `db:"id" json:"id"`
	ClientRef    string         `db:"client_id" json:"client_id,omitempty"`
	Phone        string         `db:"phone" json:"phone"`
	Body         string         `db:"body" json:"body"`
	TemplateCode string         `db:"template_code" json:"template_code"`
	Status       DeliveryStatus `db:"status" json:"status"`
	ScheduledFor time.Time      `db:"scheduled_for" json:"scheduled_for"`
	ProviderID   string         `db:"provider_id" json:"provider_id,omitempty"`
	ErrorMessage string         `db:"error_message" json:"error_message,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
	SentAt       *time.Time     `db:"sent_at" json:"sent_at,omitempty"`
}

func (r *DeliveryRecord) Key() DeliveryKey {
	return DeliveryKey{Phone: r.Phone, TemplateCode: r.TemplateCode, ScheduledFor: r.ScheduledFor}
}

// DeliveryStats counts ledger rows by status.
type DeliveryStats struct {
	Total  int `json:"total"`
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Queued int `json:"queued"`
}

// Add counts n records of status.
func (s *DeliveryStats) Add(status DeliveryStatus, n int) {
	switch status {
	case DeliverySent:
		s.Sent += n
	case DeliveryFailed:
		s.Failed += n
	case DeliveryQueued:
		s.Queued += n
	}
	s.Total += n
}
