// internal/service/preview.go
package service

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
)

// Preview reasons.
const (
	ReasonAlreadySent      = "Already sent"
	ReasonPreviouslyFailed = "Previously failed"
)

type PreviewSMS struct {
	Phone         string  `json:"phone"`
	TemplateCode  string  `json:"templateCode"`
	ClientName    string  `json:"clientName"`
	EventDate     string  `json:"eventDate"`
	EventTime     string  `json:"eventTime"`
	Service       string  `json:"service,omitempty"`
	DepositAmount float64 `json:"depositAmount,omitempty"`
	Body          string  `json:"body"`
	WouldSend     bool    `json:"wouldSend"`
	Reason        string  `json:"reason,omitempty"`
}

type CategoryPreview struct {
	Category Category     `json:"category"`
	Window   WindowView   `json:"window"`
	Messages []PreviewSMS `json:"messages"`
	Error    string       `json:"error,omitempty"`
}

type WindowView struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

type ClientRefreshPreview struct {
	ClientCount  int  `json:"clientCount"`
	WouldExecute bool `json:"wouldExecute"`
}

type PreviewResult struct {
	AsOf          time.Time            `json:"asOf"`
	Timezone      string               `json:"timezone"`
	Categories    []CategoryPreview    `json:"categories"`
	ClientRefresh ClientRefreshPreview `json:"clientStatusRefresh"`
}

// PreviewEngine answers "what would the jobs send at this instant" without
// touching the ledger beyond key lookups.
type PreviewEngine struct {
	Selector  *CandidateSelector
	Ledger    repository.DeliveryReader
	Templates *TemplateService
	Phones    PhoneFormat
	Clients   repository.ClientRepositoryInterface
	Zone      civiltime.Zone
	Clock     civiltime.Clock
}

// Preview evaluates every category at asOf, or at the current instant when asOf is nil.
func (p *PreviewEngine) Preview(ctx context.Context, asOf *time.Time) (PreviewResult, error) {
	now := p.Zone.Now(p.Clock)
	if asOf != nil {
		now = p.Zone.In(*asOf)
	}

	res := PreviewResult{
		AsOf:       now,
		Timezone:   p.Zone.Name,
		Categories: make([]CategoryPreview, len(Categories)),
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range Categories {
		g.Go(func() error {
			cp, err := p.previewCategory(gctx, category, now)
			if err != nil {
				return err
			}
			res.Categories[i] = cp
			return nil
		})
	}
	if p.Clients != nil {
		g.Go(func() error {
			count, err := p.Clients.Count(gctx)
			if err != nil {
				return fmt.Errorf("count clients: %w", err)
			}
			res.ClientRefresh = ClientRefreshPreview{ClientCount: count, WouldExecute: true}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return PreviewResult{}, err
	}
	return res, nil
}

// previewCategory reports a selection failure inside the category; only a
// ledger read failure aborts the preview.
func (p *PreviewEngine) previewCategory(ctx context.Context, category Category, now time.Time) (CategoryPreview, error) {
	cp := CategoryPreview{Category: category, Messages: []PreviewSMS{}}

	window, err := p.Selector.Window(category, now)
	if err != nil {
		cp.Error = err.Error()
		return cp, nil
	}
	cp.Window = WindowView{Start: window.Start, End: window.End}

	reminders, err := p.Selector.Reminders(ctx, category, now)
	if err != nil {
		cp.Error = err.Error()
		return cp, nil
	}

	for _, r := range reminders {
		a := r.Appointment
		entry := PreviewSMS{
			Phone:        r.Request.Phone,
			TemplateCode: r.Request.TemplateCode,
			ClientName:   a.FullName(),
			EventDate:    p.Zone.FormatDate(a.StartsAt),
			EventTime:    p.Zone.FormatClock(a.StartsAt),
			Service:      a.Service,
		}
		if category == CategoryDepositDueSoon || category == CategoryDepositOverdue {
			entry.DepositAmount = a.DepositAmount
		}

		out, err := PrepareOutbound(p.Phones, p.Templates, r.Request)
		if err != nil {
			entry.Body = p.Templates.Render(r.Request.TemplateCode, r.Request.Variables)
			entry.Reason = DetailInvalidAddress
			cp.Messages = append(cp.Messages, entry)
			continue
		}
		entry.Phone = out.Key.Phone
		entry.Body = out.Body

		existing, err := p.Ledger.FindByKey(ctx, out.Key)
		if err != nil {
			return cp, fmt.Errorf("ledger lookup for %s: %w", category, err)
		}

		switch {
		case existing == nil:
			entry.WouldSend = true
		case existing.Status == model.DeliverySent:
			entry.Reason = ReasonAlreadySent
		case existing.Status == model.DeliveryQueued:
			entry.Reason = DetailClaimedElsewhere
		default:
			entry.Reason = ReasonPreviouslyFailed
		}
		cp.Messages = append(cp.Messages, entry)
	}
	return cp, nil
}
