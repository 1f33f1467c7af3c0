// cmd/worker/main.go
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/unclebandit/smsleopard-reminders/internal/app"
	"github.com/unclebandit/smsleopard-reminders/internal/config"
	"github.com/unclebandit/smsleopard-reminders/internal/queue"
)

// The worker runs jobs published as {"job":"<name>"} by an external scheduler
// or by POST /cron/trigger?async=true.
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

	q, err := queue.NewAMQPQueue(cfg.AMQPURL)
	if err != nil {
		log.Fatal(err)
	}

	queue.StartJobTriggerSubscriber(ctx, q, cfg.AMQPTriggerQueue, a.Scheduler)
	log.Println("Worker running, waiting for job triggers on", cfg.AMQPTriggerQueue)

	<-ctx.Done()
	// closing the channel ends the consumer loop
	q.Close()
	log.Println("👋 Worker stopped")
}
