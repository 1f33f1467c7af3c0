// internal/app/app.go
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/unclebandit/smsleopard-reminders/internal/civiltime"
	"github.com/unclebandit/smsleopard-reminders/internal/config"
	"github.com/unclebandit/smsleopard-reminders/internal/db"
	"github.com/unclebandit/smsleopard-reminders/internal/metrics"
	"github.com/unclebandit/smsleopard-reminders/internal/repository"
	"github.com/unclebandit/smsleopard-reminders/internal/service"
	"github.com/unclebandit/smsleopard-reminders/internal/sms"
)

// App holds the wired reminder services shared by the server and the worker.
type App struct {
	Config    *config.Config
	DB        *sql.DB
	Redis     *redis.Client
	Ledger    repository.DeliveryRepositoryInterface
	Runs      repository.JobRunRepositoryInterface
	Scheduler *service.ReminderScheduler
	Preview   *service.PreviewEngine
	Registry  *prometheus.Registry
}

// Build connects to the stores and wires the scheduler and the preview engine.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to DB: %w", err)
	}
	log.Println("✅ Connected to database")

	a := &App{Config: cfg, DB: conn}

	switch cfg.LedgerBackend {
	case "redis":
		rdb, err := db.OpenRedis(ctx, cfg.RedisURL)
		if err != nil {
			conn.Close()
			return nil, err
		}
		a.Redis = rdb
		a.Ledger = &repository.RedisDeliveryRepository{RDB: rdb}
	default:
		a.Ledger = &repository.DeliveryRepository{DB: conn}
	}
	a.Runs = &repository.JobRunRepository{DB: conn}

	sender, err := sms.New(cfg.SMSProvider, cfg.SMSAPIURL, cfg.SMSAPIToken, cfg.SMSAPISender)
	if err != nil {
		a.Close()
		return nil, err
	}

	overrides, err := service.LoadTemplateOverrides(cfg.TemplatesFile)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to load templates: %w", err)
	}
	templates := service.NewTemplateService(overrides)

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(a.Registry)

	zone := civiltime.Warsaw
	phones := service.PhoneFormat{CountryPrefix: cfg.CountryPrefix, NationalLength: cfg.NationalNumberLength}
	clients := &repository.ClientRepository{DB: conn}
	selector := &service.CandidateSelector{
		Appointments: &repository.AppointmentRepository{DB: conn},
		Zone:         zone,
		StudioName:   cfg.StudioName,
	}

	a.Scheduler = &service.ReminderScheduler{
		Selector: selector,
		Dispatcher: &service.Dispatcher{
			Ledger:      a.Ledger,
			Sender:      sender,
			Templates:   templates,
			Phones:      phones,
			SendTimeout: cfg.SMSSendTimeout,
			Metrics:     collector,
		},
		Auditor:     &service.RunAuditor{Repo: a.Runs},
		Clients:     clients,
		Zone:        zone,
		Concurrency: cfg.DispatchConcurrency,
		Metrics:     collector,
	}

	a.Preview = &service.PreviewEngine{
		Selector:  selector,
		Ledger:    a.Ledger,
		Templates: templates,
		Phones:    phones,
		Clients:   clients,
		Zone:      zone,
	}

	log.Printf("✅ Reminder services ready (ledger=%s, sms=%s)\n", cfg.LedgerBackend, cfg.SMSProvider)
	return a, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	if a.DB != nil {
		a.DB.Close()
	}
}
