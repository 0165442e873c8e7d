package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Douniahlt/Chat-securise/internal/config"
	"github.com/Douniahlt/Chat-securise/internal/discovery"
	"github.com/Douniahlt/Chat-securise/internal/logger"
	"github.com/Douniahlt/Chat-securise/internal/service"
	"github.com/Douniahlt/Chat-securise/internal/transport"
)

func main() {
	cfg := config.NewServerConfig()

	log, err := logger.NewWithFile(logger.LogLevel(cfg.LogLevel), !cfg.Verbose, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ln, err := transport.Listen(cfg.Host, cfg.Port)
	if err != nil {
		log.Error("Failed to listen", "host", cfg.Host, "port", cfg.Port, "error", err)
		os.Exit(1)
	}

	if cfg.Advertise {
		adv, err := discovery.Advertise(cfg.Instance, cfg.Port, log)
		if err != nil {
			// Discovery is a convenience; the server still works by address.
			log.Warn("mDNS advertising unavailable", "error", err)
		} else {
			defer adv.Stop()
		}
	}

	hub := service.NewHub(log, cfg.SeedGroups)
	srv := service.NewServer(hub, log)

	log.Info("Server listening", "addr", ln.Addr().String())
	if err := srv.Serve(ctx, ln); err != nil {
		log.Error("Server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("Server shutdown complete")
}
