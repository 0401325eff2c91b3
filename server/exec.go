// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"

	"github.com/parley-project/parley/wire"
)

const execDisabledText = "command execution is disabled on this server"

// Executor runs shell commands on behalf of connected clients. This is
// deliberate remote code execution: the server's operator opts in via
// exec.enabled, and a nil Executor on a session means the capability is
// off and every command envelope gets a refusal instead.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates an executor. Callers must gate construction on
// the operator's opt-in.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Run executes the command through the platform shell and returns its
// combined stdout and stderr, trimmed. A command that runs but exits
// nonzero is not an error: its output (the shell's diagnostic,
// typically) is the result the client asked for. Only failures to run
// at all are errors.
func (e *Executor) Run(ctx context.Context, command string) (string, error) {
	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(ctx, "cmd.exe", "/c", command)
	} else {
		cmd = exec.CommandContext(ctx, "/bin/sh", "-c", command)
	}

	output, err := cmd.CombinedOutput()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return "", err
	}
	if exitErr != nil {
		e.logger.Debug("command exited nonzero", "command", command, "code", exitErr.ExitCode())
	}
	return strings.TrimSpace(string(output)), nil
}

// handleCommand runs the requested command (or refuses, when execution
// is disabled) and routes the result back to the sender by username.
// The reply goes through a fresh registry lookup rather than directly
// to this session: if the sender's name has been taken over by a
// duplicate login, the current holder of the name gets the result.
func (s *Session) handleCommand(ctx context.Context, envelope wire.Envelope) {
	from := envelope.Username
	command := envelope.Command

	if s.executor == nil {
		s.logger.Warn("command refused, execution disabled", "from", from, "command", command)
		s.replyToSender(from, wire.NewCommandResult("Server", execDisabledText))
		return
	}

	s.logger.Info("executing command", "from", from, "command", command)
	result, err := s.executor.Run(ctx, command)
	if err != nil {
		s.logger.Error("command failed to run", "command", command, "error", err)
		result = "error executing command: " + err.Error()
	}
	s.replyToSender(from, wire.NewCommandResult("Server", result))
}

// replyToSender routes an envelope to whoever currently holds the
// given username. Replies follow the registry, not the socket the
// request arrived on: a requester whose name is unregistered (never
// logged in, or replaced by a duplicate login that then left) gets
// nothing, and the drop is logged.
func (s *Session) replyToSender(from string, envelope wire.Envelope) {
	if from == "" {
		s.logger.Warn("command reply has no sender name, dropping", "type", envelope.Type)
		return
	}
	if err := s.broadcaster.Send(from, envelope); err != nil {
		s.logger.Warn("command reply dropped", "to", from, "type", envelope.Type, "error", err)
	}
}
