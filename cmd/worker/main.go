package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/Santonastaso/crm-demo-sub000/internal/bootstrap"
	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/tracking"
	"github.com/Santonastaso/crm-demo-sub000/internal/worker"
)

func main() {
	log.Println("Starting campaign step worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load(ctx, config.ResolvePath(""))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if closer := bootstrap.SetupLogging(cfg.Log); closer != nil {
		defer closer.Close()
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	steps := worker.NewStepWorker(app.ActiveCampaigns, app.Campaigns, cfg.Worker.Interval, cfg.Worker.StepTimeout)
	if err := steps.Start(); err != nil {
		log.Fatalf("Failed to start step worker: %v", err)
	}
	log.Printf("Step worker started (polls every %s)", cfg.Worker.Interval)

	// In sqs mode the tracking endpoint only enqueues; this process applies
	// the events.
	var consumer *tracking.Consumer
	if cfg.Tracking.Mode == "sqs" {
		client, err := bootstrap.NewSQSClient(ctx, cfg.Tracking)
		if err != nil {
			log.Fatalf("Failed to create SQS client: %v", err)
		}
		consumer = tracking.NewConsumer(client, cfg.Tracking.QueueURL, app.Tracker)
		consumer.Start(ctx)
		log.Println("Tracking event consumer started")
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	if consumer != nil {
		consumer.Stop()
	}
	steps.Stop()
	log.Println("Worker stopped")
}
