// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Parley server.
//
// Configuration is a single YAML file. There are no fallbacks or
// automatic discovery: the daemon uses Default() when no file is given
// and LoadFile() when one is. Environment variables do not override
// config values — this keeps the effective configuration deterministic
// and auditable.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultListen is the TCP listen address observed in the original
// deployment. Override with the listen key or the daemon's --listen
// flag.
const DefaultListen = ":12345"

// Config is the server configuration.
type Config struct {
	// Listen is the TCP address the chat listener binds
	// (e.g. ":12345" or "192.168.1.10:12345").
	Listen string `yaml:"listen"`

	// AdminSocket is the unix socket path for the operator control
	// surface. Empty disables the admin socket.
	AdminSocket string `yaml:"admin_socket"`

	// ShutdownGrace is how long Stop waits for in-flight sessions to
	// finish before force-closing their connections. Duration string
	// (e.g. "2s").
	ShutdownGrace string `yaml:"shutdown_grace"`

	// Transfer configures file serving.
	Transfer TransferConfig `yaml:"transfer"`

	// Exec configures remote command execution.
	Exec ExecConfig `yaml:"exec"`

	// Limits configures concurrency ceilings.
	Limits LimitsConfig `yaml:"limits"`
}

// TransferConfig configures the file transfer root.
type TransferConfig struct {
	// Root is the directory file_request names are resolved against.
	// Requests cannot escape it: only the base name of the requested
	// path is used.
	Root string `yaml:"root"`
}

// ExecConfig configures remote command execution.
type ExecConfig struct {
	// Enabled gates the command executor. Remote execution runs
	// arbitrary shell commands as the server user with no sandbox and
	// no timeout — leave this off unless every peer on the network is
	// trusted with a shell on this host.
	Enabled bool `yaml:"enabled"`
}

// LimitsConfig configures concurrency ceilings.
type LimitsConfig struct {
	// MaxSessions is the worker pool size: the number of sessions
	// served concurrently. Accepted connections beyond this wait for a
	// free worker rather than being rejected.
	MaxSessions int `yaml:"max_sessions"`

	// OutboundQueue is the per-session outbound envelope queue
	// capacity. A session whose queue overflows is disconnected rather
	// than allowed to stall delivery to other clients.
	OutboundQueue int `yaml:"outbound_queue"`
}

// Default returns the default configuration: the observed deployment's
// constants with exec disabled.
func Default() *Config {
	return &Config{
		Listen:        DefaultListen,
		AdminSocket:   "",
		ShutdownGrace: "2s",
		Transfer: TransferConfig{
			Root: ".",
		},
		Exec: ExecConfig{
			Enabled: false,
		},
		Limits: LimitsConfig{
			MaxSessions:   10,
			OutboundQueue: 64,
		},
	}
}

// LoadFile loads configuration from a YAML file, merging over the
// defaults, and validates the result.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Listen == "" {
		errs = append(errs, fmt.Errorf("listen is required"))
	}
	if c.Transfer.Root == "" {
		errs = append(errs, fmt.Errorf("transfer.root is required"))
	}
	if c.Limits.MaxSessions <= 0 {
		errs = append(errs, fmt.Errorf("limits.max_sessions must be positive"))
	}
	if c.Limits.OutboundQueue <= 0 {
		errs = append(errs, fmt.Errorf("limits.outbound_queue must be positive"))
	}
	if _, err := time.ParseDuration(c.ShutdownGrace); err != nil {
		errs = append(errs, fmt.Errorf("shutdown_grace: %w", err))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// Grace returns the parsed shutdown grace period. Call Validate first;
// an unparseable value falls back to 2 seconds.
func (c *Config) Grace() time.Duration {
	grace, err := time.ParseDuration(c.ShutdownGrace)
	if err != nil {
		return 2 * time.Second
	}
	return grace
}
