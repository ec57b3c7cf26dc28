package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Santonastaso/crm-demo-sub000/internal/bootstrap"
	"github.com/Santonastaso/crm-demo-sub000/internal/config"
	"github.com/Santonastaso/crm-demo-sub000/internal/tracking"
)

func main() {
	ctx := context.Background()
	cfg, err := config.Load(ctx, config.ResolvePath(""))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if closer := bootstrap.SetupLogging(cfg.Log); closer != nil {
		defer closer.Close()
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("init: %v", err)
	}
	defer app.Close()

	rec, stopRecorder, err := app.TrackingRecorder(ctx)
	if err != nil {
		log.Fatalf("tracking recorder: %v", err)
	}
	handler := tracking.NewHandler(rec, app.Links)

	addr := fmt.Sprintf(":%d", cfg.Tracking.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler.Routes(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Printf("tracking service listening on %s (mode %s)", addr, cfg.Tracking.Mode)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down tracking service...")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	stopRecorder()
}
