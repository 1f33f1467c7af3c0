// internal/service/selector.go
package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	"github.com/unclebandit/smsleopard-reminders/internal/model"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
)

type Category string

const (
	CategoryTwoDaysBefore  Category = "two-days-before"
	CategoryOneDayBefore   Category = "one-day-before"
	CategorySameDay        Category = "same-day"
	CategoryDepositDueSoon Category = "deposit-due-soon"
	CategoryDepositOverdue Category = "deposit-overdue"
	CategoryPostService    Category = "post-service"
)

// Categories lists every reminder category in dispatch order.
var Categories = []Category{
	CategoryTwoDaysBefore,
	CategoryOneDayBefore,
	CategorySameDay,
	CategoryDepositDueSoon,
	CategoryDepositOverdue,
	CategoryPostService,
}

const (
	overdueGraceDays    = 3
	overdueLookbackDays = 90

	postServiceCutoffHour  = 18
	postServiceMorningHour = 9
	postServiceEveningHour = 19
)

// maxVisitDuration bounds how far before a post-service window a visit may
// start and still end inside it.
const maxVisitDuration = 24 * time.Hour

var appointmentTemplates = map[Category]string{
	CategoryTwoDaysBefore: TemplateD2,
	CategoryOneDayBefore:  TemplateD1,
	CategorySameDay:       TemplateD0,
}

// Reminder is a selected candidate with the dispatch request built for it.
type Reminder struct {
	Category    Category
	Appointment model.Appointment
	Request     DispatchRequest
}

// CandidateSelector finds the appointments a category should message at a given instant.
type CandidateSelector struct {
	Appointments repository.AppointmentRepositoryInterface
	Zone         civiltime.Zone
	StudioName   string
}

// Window returns the interval the category's relevant timestamp must fall in.
// For post-service the window bounds appointment start times; the per-appointment
// send time is checked separately.
func (s *CandidateSelector) Window(category Category, now time.Time) (civiltime.Window, error) {
	z := s.Zone
	switch category {
	case CategoryTwoDaysBefore:
		return z.DayWindow(now, 2, string(category)), nil
	case CategoryOneDayBefore, CategoryDepositDueSoon:
		return z.DayWindow(now, 1, string(category)), nil
	case CategorySameDay:
		return z.DayWindow(now, 0, string(category)), nil
	case CategoryDepositOverdue:
		// due on or before the end of the day overdueGraceDays ago
		return civiltime.Window{
			Start: z.AddDays(now, -overdueLookbackDays, 0, 0),
			End:   z.AddDays(now, -overdueGraceDays+1, 0, 0),
			Label: string(category),
		}, nil
	case CategoryPostService:
		return civiltime.Window{
			Start: z.AddDays(now, -1, 0, 0),
			End:   z.AddDays(now, 1, 0, 0),
			Label: string(category),
		}, nil
	}
	return civiltime.Window{}, fmt.Errorf("unknown reminder category %q", category)
}

// SelectForWindow returns appointments with a phone whose relevant timestamp is in window.
func (s *CandidateSelector) SelectForWindow(ctx context.Context, category Category, window civiltime.Window) ([]model.Appointment, error) {
	var (
		rows []model.Appointment
		err  error
	)
	switch category {
	case CategoryDepositDueSoon, CategoryDepositOverdue:
		rows, err = s.Appointments.ListDepositsDueBetween(ctx, window.Start, window.End)
	case CategoryPostService:
		rows, err = s.Appointments.ListStartingBetween(ctx, window.Start.Add(-maxVisitDuration), window.End)
	default:
		rows, err = s.Appointments.ListStartingBetween(ctx, window.Start, window.End)
	}
	if err != nil {
		return nil, err
	}

	selected := make([]model.Appointment, 0, len(rows))
	for _, a := range rows {
		if !a.HasPhone() {
			continue
		}
		switch category {
		case CategoryDepositDueSoon, CategoryDepositOverdue:
			if !a.DepositOwed() || !window.Contains(*a.DepositDueAt) {
				continue
			}
		case CategoryPostService:
			if !window.Contains(a.EndsAt()) {
				continue
			}
		default:
			if !window.Contains(a.StartsAt) {
				continue
			}
		}
		selected = append(selected, a)
	}
	return selected, nil
}

// Reminders computes the window for now, selects candidates and builds their requests.
func (s *CandidateSelector) Reminders(ctx context.Context, category Category, now time.Time) ([]Reminder, error) {
	window, err := s.Window(category, now)
	if err != nil {
		return nil, err
	}
	appointments, err := s.SelectForWindow(ctx, category, window)
	if err != nil {
		return nil, err
	}

	reminders := make([]Reminder, 0, len(appointments))
	for _, a := range appointments {
		req := DispatchRequest{
			Phone:     a.Phone,
			ClientRef: strconv.Itoa(a.ID),
		}

		switch category {
		case CategoryTwoDaysBefore, CategoryOneDayBefore, CategorySameDay:
			req.TemplateCode = appointmentTemplates[category]
			req.ScheduledFor = window.Start
			req.Variables = s.visitVariables(a)
		case CategoryDepositDueSoon:
			req.TemplateCode = TemplateDepositBefore
			req.ScheduledFor = window.Start
			req.Variables = s.depositVariables(a)
		case CategoryDepositOverdue:
			req.TemplateCode = TemplateDepositAfter
			req.ScheduledFor = s.Zone.StartOfDay(now)
			req.Variables = s.depositVariables(a)
		case CategoryPostService:
			target := PostServiceSendTime(s.Zone, a.EndsAt())
			if now.Before(target) {
				continue
			}
			req.TemplateCode = PostServiceTemplate(a.Service)
			req.ScheduledFor = target
			req.Variables = map[string]string{
				"IMIE":   a.FirstName,
				"STUDIO": s.StudioName,
			}
		}
		reminders = append(reminders, Reminder{Category: category, Appointment: a, Request: req})
	}
	return reminders, nil
}

func (s *CandidateSelector) visitVariables(a model.Appointment) map[string]string {
	return map[string]string{
		"IMIE":   a.FirstName,
		"DATA":   s.Zone.FormatDate(a.StartsAt),
		"GODZ":   s.Zone.FormatClock(a.StartsAt),
		"STUDIO": s.StudioName,
	}
}

func (s *CandidateSelector) depositVariables(a model.Appointment) map[string]string {
	vars := s.visitVariables(a)
	vars["KWOTA"] = FormatAmount(a.DepositAmount)
	return vars
}

// PostServiceSendTime is the aftercare message time for a visit ending at end:
// 19:00 the same civil day, or 09:00 the next day when the visit ends at 18:00 or later.
func PostServiceSendTime(z civiltime.Zone, end time.Time) time.Time {
	if z.In(end).Hour() >= postServiceCutoffHour {
		return z.AddDays(end, 1, postServiceMorningHour, 0)
	}
	return z.AtWallClock(end, postServiceEveningHour, 0)
}

// PostServiceTemplate picks tattoo aftercare for tattoo services, piercing otherwise.
func PostServiceTemplate(service string) string {
	s := strings.ToLower(service)
	if strings.Contains(s, "tatuaż") || strings.Contains(s, "tattoo") {
		return TemplateAfterTattoo
	}
	return TemplateAfterPiercing
}

// FormatAmount renders a deposit without trailing zeros, e.g. 200 or 150.5.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', -1, 64)
}
