package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
)

// DeliveryReader is the read-only half of the ledger. Preview depends on this alone.
type DeliveryReader interface {
	// FindByKey returns nil, nil when no record exists for key.
	FindByKey(ctx context.Context, key model.DeliveryKey) (*model.DeliveryRecord, error)
}

// DeliveryLedger is the uniqueness-constrained record of send attempts.
type DeliveryLedger interface {
	DeliveryReader
	// Claim inserts rec as queued. It returns appErrors.ErrAlreadyClaimed when a
	// record with the same key exists; the check and insert are one atomic step.
	Claim(ctx context.Context, rec *model.DeliveryRecord) error
	MarkSent(ctx context.Context, rec *model.DeliveryRecord) error
	MarkFailed(ctx context.Context, rec *model.DeliveryRecord) error
}

type DeliveryHistory interface {
	ListRecent(ctx context.Context, limit int) ([]model.DeliveryRecord, error)
	Stats(ctx context.Context) (model.DeliveryStats, error)
	// ClearFailed deletes a failed record so its slot can be dispatched again.
	ClearFailed(ctx context.Context, id string) error
}

type DeliveryRepositoryInterface interface {
	DeliveryLedger
	DeliveryHistory
}

// pq error code for unique_violation
const uniqueViolation = "23505"

type DeliveryRepository struct {
	DB *sql.DB
}

const deliveryColumns = `id, client_id, phone, body, template_code, status, scheduled_for, provider_id, error_message, created_at, sent_at`

// ====================== Ledger ======================

func (r *DeliveryRepository) Claim(ctx context.Context, rec *model.DeliveryRecord) error {
	rec.Status = model.DeliveryQueued
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
        INSERT INTO sms_history (id, client_id, phone, body, template_code, status, scheduled_for, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        ON CONFLICT (phone, template_code, scheduled_for) DO NOTHING
    `
	res, err := r.DB.ExecContext(ctx, query,
		rec.ID, nullString(rec.ClientRef), rec.Phone, rec.Body, rec.TemplateCode,
		rec.Status, rec.ScheduledFor.UTC(), rec.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return appErrors.ErrAlreadyClaimed
		}
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrAlreadyClaimed
	}
	return nil
}

func (r *DeliveryRepository) FindByKey(ctx context.Context, key model.DeliveryKey) (*model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + `
              FROM sms_history
              WHERE phone=$1 AND template_code=$2 AND scheduled_for=$3`
	rec, err := scanDelivery(r.DB.QueryRowContext(ctx, query, key.Phone, key.TemplateCode, key.ScheduledFor.UTC()))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// MarkSent and MarkFailed only move a queued row; anything else is ErrRecordNotFound.
func (r *DeliveryRepository) MarkSent(ctx context.Context, rec *model.DeliveryRecord) error {
	query := `UPDATE sms_history SET status=$1, provider_id=$2, sent_at=$3 WHERE id=$4 AND status=$5`
	res, err := r.DB.ExecContext(ctx, query, model.DeliverySent, rec.ProviderID, rec.SentAt, rec.ID, model.DeliveryQueued)
	return finalized(res, err)
}

func (r *DeliveryRepository) MarkFailed(ctx context.Context, rec *model.DeliveryRecord) error {
	query := `UPDATE sms_history SET status=$1, error_message=$2 WHERE id=$3 AND status=$4`
	res, err := r.DB.ExecContext(ctx, query, model.DeliveryFailed, rec.ErrorMessage, rec.ID, model.DeliveryQueued)
	return finalized(res, err)
}

func finalized(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErrors.ErrRecordNotFound
	}
	return nil
}

// ====================== History ======================

func (r *DeliveryRepository) ListRecent(ctx context.Context, limit int) ([]model.DeliveryRecord, error) {
	query := `SELECT ` + deliveryColumns + ` FROM sms_history ORDER BY created_at DESC LIMIT $1`
	rows, err := r.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []model.DeliveryRecord{}
	for rows.Next() {
		rec, err := scanDelivery(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

func (r *DeliveryRepository) Stats(ctx context.Context) (model.DeliveryStats, error) {
	var stats model.DeliveryStats
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM sms_history GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return stats, err
		}
		stats.Add(model.DeliveryStatus(status), count)
	}
	return stats, rows.Err()
}

func (r *DeliveryRepository) ClearFailed(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM sms_history WHERE id=$1 AND status=$2`, id, model.DeliveryFailed)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM sms_history WHERE id=$1)`, id).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return appErrors.ErrRecordNotFailed
	}
	return appErrors.ErrRecordNotFound
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*model.DeliveryRecord, error) {
	var rec model.DeliveryRecord
	var clientID, providerID, errorMessage sql.NullString
	var sentAt sql.NullTime
	var status string

	err := row.Scan(
		&rec.ID, &clientID, &rec.Phone, &rec.Body, &rec.TemplateCode, &status,
		&rec.ScheduledFor, &providerID, &errorMessage, &rec.CreatedAt, &sentAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Status = model.DeliveryStatus(status)
	rec.ClientRef = clientID.String
	rec.ProviderID = providerID.String
	rec.ErrorMessage = errorMessage.String
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	return &rec, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ DeliveryRepositoryInterface = (*DeliveryRepository)(nil)
