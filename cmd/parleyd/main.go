// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Parleyd is the Parley chat server daemon. It accepts client
// connections on a TCP port and relays chat between them, executes
// remote commands when the operator has enabled that, and serves file
// downloads. An operator control surface runs on a local unix socket
// (see the parley CLI's admin subcommands).
//
// On startup:
//  1. Loads configuration (defaults, then --config YAML, then flags).
//  2. Binds the chat listener and the admin socket.
//  3. Runs until SIGINT/SIGTERM, then announces shutdown to every
//     client and drains within the configured grace period.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/parley-project/parley/config"
	"github.com/parley-project/parley/lib/version"
	"github.com/parley-project/parley/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		adminSocket string
		logLevel    string
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "path to YAML configuration file")
	flag.StringVar(&listen, "listen", "", "chat listen address (overrides config)")
	flag.StringVar(&adminSocket, "admin-socket", "", "admin unix socket path (overrides config)")
	flag.StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flag.BoolVar(&showVersion, "version", false, "print version information and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("parleyd %s\n", version.Full())
		return nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", logLevel, err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	cfg := config.Default()
	if configPath != "" {
		loaded, err := config.LoadFile(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	if listen != "" {
		cfg.Listen = listen
	}
	if adminSocket != "" {
		cfg.AdminSocket = adminSocket
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, logger)
	if err := srv.Start(); err != nil {
		return err
	}
	if cfg.Exec.Enabled {
		// Connected clients can run arbitrary shell commands as this
		// process's user. The operator asked for it; say so loudly.
		logger.Warn("remote command execution is ENABLED")
	}

	adminDone := make(chan error, 1)
	if cfg.AdminSocket != "" {
		admin := server.NewAdminServer(srv, cfg.AdminSocket, logger)
		go func() {
			adminDone <- admin.Serve(ctx)
		}()
	} else {
		logger.Info("admin socket disabled")
		go func() {
			<-ctx.Done()
			adminDone <- nil
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("signal received, shutting down")
		srv.Stop()
		if err := <-adminDone; err != nil {
			return fmt.Errorf("admin socket: %w", err)
		}
		return nil
	case err := <-adminDone:
		// The admin surface only exits early on failure; take the
		// chat server down with it.
		srv.Stop()
		if err != nil {
			return fmt.Errorf("admin socket: %w", err)
		}
		return nil
	}
}
