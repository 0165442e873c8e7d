package main

import (
	"context"
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Douniahlt/Chat-securise/internal/client"
	"github.com/Douniahlt/Chat-securise/internal/config"
	"github.com/Douniahlt/Chat-securise/internal/discovery"
	"github.com/Douniahlt/Chat-securise/internal/logger"
	"github.com/Douniahlt/Chat-securise/internal/transport"
	"github.com/Douniahlt/Chat-securise/internal/ui"
)

func main() {
	cfg := config.NewClientConfig()

	if err := config.ValidateNickname(cfg.Nickname); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid nickname: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewWithFile(logger.LogLevel(cfg.LogLevel), !cfg.Verbose, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	host, port := cfg.Host, cfg.Port
	if cfg.UseMDNS {
		ep, err := discovery.Lookup(context.Background(), 5*time.Second, log)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Server discovery failed: %v\n", err)
			os.Exit(1)
		}
		host, port = ep.Host, ep.Port
	}

	conn, err := transport.Dial(host, port)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection failed: %v\n", err)
		os.Exit(1)
	}

	engine := client.NewEngine(conn, log)
	if cfg.Transcript != "" {
		f, err := os.OpenFile(cfg.Transcript, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot open transcript file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		engine.SetTranscript(f)
	}

	model := ui.NewModel(engine)
	p := tea.NewProgram(model, tea.WithAltScreen())
	model.SetProgram(p)

	// The read loop runs for the life of the session and feeds the UI
	// through the sink; the TUI owns the foreground.
	go func() {
		if err := engine.Run(); err != nil {
			log.Error("Session ended", "error", err)
		}
	}()

	if err := engine.LogIn(cfg.Nickname); err != nil {
		fmt.Fprintf(os.Stderr, "Login failed: %v\n", err)
		os.Exit(1)
	}

	if _, err := p.Run(); err != nil {
		log.Error("Error running program", "error", err)
		os.Exit(1)
	}
	log.Info("Client shutdown complete")
}
