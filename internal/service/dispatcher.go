// internal/service/dispatcher.go
package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	appErrors "github.com/unclebandit/smsleopard-reminders/internal/errors"
	"github.com/unclebandit/smsleopard-reminders/internal/metrics"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
	"github.com/unclebandit/smsleopard-reminders/internal/sms"
)

const DefaultSendTimeout = 15 * time.Second

// Result details reported for sends that did not go out in this call.
const (
	DetailPreviouslyFailed = "Previously failed"
	DetailClaimedElsewhere = "claimed by another process"
	DetailInvalidAddress   = "Invalid phone number format"
)

// DispatchRequest asks for one templated message in one logical slot.
type DispatchRequest struct {
	Phone        string
	TemplateCode string
	ScheduledFor time.Time
	Variables    map[string]string
	ClientRef    string
}

type DispatchResult struct {
	Success     bool   `json:"success"`
	AlreadySent bool   `json:"alreadySent"`
	MessageID   string `json:"messageId,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Outbound is a normalized, rendered message ready to be claimed or previewed.
type Outbound struct {
	Key       model.DeliveryKey
	Body      string
	ClientRef string
}

// PrepareOutbound normalizes the phone and renders the body. It has no side effects
// and is the single place the ledger key is derived.
func PrepareOutbound(phones PhoneFormat, templates *TemplateService, req DispatchRequest) (Outbound, error) {
	phone, err := phones.Normalize(req.Phone)
	if err != nil {
		return Outbound{}, err
	}
	return Outbound{
		Key: model.DeliveryKey{
			Phone:        phone,
			TemplateCode: req.TemplateCode,
			ScheduledFor: req.ScheduledFor.UTC(),
		},
		Body:      templates.Render(req.TemplateCode, req.Variables),
		ClientRef: req.ClientRef,
	}, nil
}

// Dispatcher sends each (phone, template, slot) at most once: claim, send, finalize.
type Dispatcher struct {
	Ledger      repository.DeliveryLedger
	Sender      sms.Sender
	Templates   *TemplateService
	Phones      PhoneFormat
	SendTimeout time.Duration
	Metrics     *metrics.Collector
	Clock       civiltime.Clock
}

func (d *Dispatcher) now() time.Time {
	if d.Clock != nil {
		return d.Clock().UTC()
	}
	return time.Now().UTC()
}

// Dispatch returns an error only for an invalid address or a ledger failure.
// A gateway failure is reported through the result and recorded as failed.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	out, err := PrepareOutbound(d.Phones, d.Templates, req)
	if err != nil {
		d.Metrics.RecordDispatch(req.TemplateCode, metrics.OutcomeInvalidAddress)
		return DispatchResult{Error: DetailInvalidAddress}, err
	}

	rec := &model.DeliveryRecord{
		ID:           uuid.NewString(),
		ClientRef:    out.ClientRef,
		Phone:        out.Key.Phone,
		Body:         out.Body,
		TemplateCode: out.Key.TemplateCode,
		ScheduledFor: out.Key.ScheduledFor,
		CreatedAt:    d.now(),
	}

	if err := d.Ledger.Claim(ctx, rec); err != nil {
		if errors.Is(err, appErrors.ErrAlreadyClaimed) {
			return d.alreadyClaimed(ctx, out.Key)
		}
		d.Metrics.RecordDispatch(req.TemplateCode, metrics.OutcomeStorageError)
		return DispatchResult{Error: err.Error()}, appErrors.NewStorageFailure("claim", err)
	}

	providerID, sendErr := d.send(ctx, out)

	// finalize even if the caller's context is gone; the message may already be out
	fctx := context.WithoutCancel(ctx)

	if sendErr != nil {
		rec.Status = model.DeliveryFailed
		rec.ErrorMessage = sendErr.Error()
		if err := d.Ledger.MarkFailed(fctx, rec); err != nil {
			log.Printf("⚠️ failed to mark SMS %s as failed: %v\n", rec.ID, err)
		}
		log.Printf("❌ SMS %s to %s failed: %s\n", rec.TemplateCode, rec.Phone, rec.ErrorMessage)
		d.Metrics.RecordDispatch(req.TemplateCode, metrics.OutcomeFailed)
		return DispatchResult{Error: rec.ErrorMessage}, nil
	}

	sentAt := d.now()
	rec.Status = model.DeliverySent
	rec.ProviderID = providerID
	rec.SentAt = &sentAt
	if err := d.Ledger.MarkSent(fctx, rec); err != nil {
		// the row stays queued, which still blocks a resend of this slot
		log.Printf("⚠️ SMS %s sent but not marked: %v\n", rec.ID, err)
	}
	log.Printf("✅ SMS %s sent to %s (%s)\n", rec.TemplateCode, rec.Phone, providerID)
	d.Metrics.RecordDispatch(req.TemplateCode, metrics.OutcomeSent)
	return DispatchResult{Success: true, MessageID: providerID}, nil
}

// alreadyClaimed reports on the record that won the key.
func (d *Dispatcher) alreadyClaimed(ctx context.Context, key model.DeliveryKey) (DispatchResult, error) {
	existing, err := d.Ledger.FindByKey(ctx, key)
	if err != nil {
		d.Metrics.RecordDispatch(key.TemplateCode, metrics.OutcomeStorageError)
		return DispatchResult{Error: err.Error()}, appErrors.NewStorageFailure("lookup", err)
	}

	switch {
	case existing != nil && existing.Status == model.DeliverySent:
		d.Metrics.RecordDispatch(key.TemplateCode, metrics.OutcomeAlreadySent)
		return DispatchResult{Success: true, AlreadySent: true, MessageID: existing.ProviderID}, nil
	case existing != nil && existing.Status == model.DeliveryFailed:
		d.Metrics.RecordDispatch(key.TemplateCode, metrics.OutcomePreviousFailed)
		return DispatchResult{AlreadySent: true, Error: DetailPreviouslyFailed}, nil
	}
	d.Metrics.RecordDispatch(key.TemplateCode, metrics.OutcomeClaimed)
	return DispatchResult{AlreadySent: true, Error: DetailClaimedElsewhere}, nil
}

func (d *Dispatcher) send(ctx context.Context, out Outbound) (string, error) {
	timeout := d.SendTimeout
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	providerID, err := d.Sender.Send(sctx, out.Key.Phone, out.Body)
	d.Metrics.ObserveSend(time.Since(start))

	if err != nil {
		if errors.Is(sctx.Err(), context.DeadlineExceeded) {
			return "", appErrors.NewTransportFailure("SMS gateway timeout after %s", timeout)
		}
		return "", err
	}
	if providerID == "" {
		return "", appErrors.NewTransportFailure("SMS gateway returned no message id")
	}
	return providerID, nil
}
