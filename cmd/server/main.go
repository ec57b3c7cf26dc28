package main

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/Santonastaso/crm-demo-sub000/internal/api"
	"github.com/Santonastaso/crm-demo-sub000/internal/bootstrap"
	"github.com/Santonastaso/crm-demo-sub000/internal/config"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %w", addr, err)
	}
	return ln.Close()
}

func main() {
	log.Println("Starting campaign engine API server...")

	ctx := context.Background()
	cfg, err := config.Load(ctx, config.ResolvePath(""))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if closer := bootstrap.SetupLogging(cfg.Log); closer != nil {
		defer closer.Close()
	}

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer app.Close()

	var db api.Pinger
	if app.DB != nil {
		db = app.DB
	}
	server := api.NewServer(cfg.Server, api.NewHandlers(app.Campaigns, app.Segments), api.NewHealthChecker(db, app.Redis))

	go func() {
		log.Printf("API server listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
	log.Println("Server stopped")
}
