// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/unclebandit/smsleopard-reminders/internal/app"
	"github.com/unclebandit/smsleopard-reminders/internal/config"
	"github.com/unclebandit/smsleopard-reminders/internal/controller"
	"github.com/unclebandit/smsleopard-reminders/internal/handler"
	"github.com/unclebandit/smsleopard-reminders/internal/metrics"
	"github.com/unclebandit/smsleopard-reminders/internal/queue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("invalid configuration:", err)
	}

	a, err := app.Build(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer a.Close()

	// Triggers published with ?async=true go to RabbitMQ when it is reachable,
	// otherwise they are handled in process.
	var q queue.Queue
	if amqpQueue, err := queue.NewAMQPQueue(cfg.AMQPURL); err == nil {
		defer amqpQueue.Close()
		q = amqpQueue
		log.Println("✅ Connected to RabbitMQ, async triggers go to", cfg.AMQPTriggerQueue)
	} else {
		log.Println("⚠️ RabbitMQ unavailable, async triggers run in process:", err)
		q = queue.NewInMemoryQueue()
		queue.StartJobTriggerSubscriber(ctx, q, cfg.AMQPTriggerQueue, a.Scheduler)
	}

	cronController := &controller.CronController{
		Jobs:         a.Scheduler,
		Preview:      a.Preview,
		Zone:         a.Scheduler.Zone,
		Queue:        q,
		TriggerTopic: cfg.AMQPTriggerQueue,
	}
	deliveryHandler := handler.NewDeliveryHandler(a.Ledger, a.Runs)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	cronController.Routes(r)
	deliveryHandler.Routes(r)
	r.Method(http.MethodGet, "/metrics", metrics.Handler(a.Registry))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Println("🚀 Server running on", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
	log.Println("👋 Server stopped")
}
