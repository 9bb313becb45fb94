// lexos-tui - A terminal client for the LexOS Command Center.
//
// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lexos-tui/internal/api"
	"github.com/jeranaias/lexos-tui/internal/auth"
	"github.com/jeranaias/lexos-tui/internal/chat"
	"github.com/jeranaias/lexos-tui/internal/config"
	"github.com/jeranaias/lexos-tui/internal/orchestrate"
	"github.com/jeranaias/lexos-tui/internal/prefs"
	"github.com/jeranaias/lexos-tui/internal/push"
	"github.com/jeranaias/lexos-tui/internal/ui"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config.toml (default ~/.lexos/config.toml)")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("lexos-tui %s (%s)\n", Version, GitCommit)
		return
	}

	if err := run(*configPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(cfg.StateDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	// Log to a file; stdout belongs to the TUI.
	logFile, err := os.OpenFile(filepath.Join(cfg.StateDir, "lexos-tui.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err == nil {
		log.SetOutput(logFile)
		defer logFile.Close()
	}

	creds := auth.NewStore(cfg.StateDir)
	client := api.NewClient(cfg.Server.BaseURL).
		WithTimeout(cfg.Timeout()).
		WithCredentials(creds)

	prefStore := prefs.Open(cfg.StateDir)
	chatStore := chat.Open(cfg.StateDir, client, prefStore)
	orchStore := orchestrate.Open(cfg.StateDir, client)

	clientID, err := push.LoadClientID(cfg.StateDir)
	if err != nil {
		return fmt.Errorf("failed to load client identifier: %w", err)
	}
	socket := push.NewSocket(cfg.PushURL(), clientID)
	defer socket.Disconnect()
	chatStore.WithPush(socket)

	model, cleanup := ui.New(chatStore, orchStore, prefStore)
	defer cleanup()
	socket.OnConnectionChange(model.SetConnected)

	// Startup probes are best effort: an unreachable backend shows up as
	// offline, it does not block the UI.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if health, err := client.Health(ctx); err != nil {
		log.Printf("main: backend health check failed: %v", err)
	} else if !health.Healthy() {
		log.Printf("main: backend reports status %q", health.Status)
	}
	if err := orchStore.FetchTemplates(ctx); err != nil {
		log.Printf("main: template fetch failed, using seed vocabularies: %v", err)
	}
	if err := socket.Connect(ctx); err != nil {
		log.Printf("main: push channel unavailable: %v", err)
	}

	watcher, err := config.Watch(configPath, func(next *config.Config) {
		log.Printf("main: configuration reloaded from disk")
		client.WithTimeout(next.Timeout())
	})
	if err != nil {
		log.Printf("main: config watch unavailable: %v", err)
	} else {
		defer watcher.Close()
	}

	program := tea.NewProgram(model, tea.WithAltScreen())
	_, err = program.Run()
	return err
}
