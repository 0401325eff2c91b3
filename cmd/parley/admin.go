// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"net"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-project/parley/lib/codec"
	"github.com/parley-project/parley/server"
)

func adminCommand() *cobra.Command {
	var socketPath string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operator commands over the daemon's admin socket",
	}
	cmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/parley/admin.sock", "admin unix socket path")

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List connected usernames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			response, err := adminRequest(socketPath, server.AdminRequest{
				Action: server.AdminActionList,
			})
			if err != nil {
				return err
			}
			for _, name := range response.Data {
				fmt.Println(name)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "send <to> <message...>",
		Short: "Message a client as \"Server\" (recipient \"all\" broadcasts)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := adminRequest(socketPath, server.AdminRequest{
				Action:  server.AdminActionSend,
				To:      args[0],
				Message: strings.Join(args[1:], " "),
			})
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "disconnect <name>",
		Short: "Forcibly disconnect a client",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := adminRequest(socketPath, server.AdminRequest{
				Action:  server.AdminActionSend,
				To:      args[0],
				Message: server.AdminDisconnectKeyword,
			})
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stop",
		Short: "Stop the chat listener (the daemon keeps running)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := adminRequest(socketPath, server.AdminRequest{Action: server.AdminActionStop})
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "start",
		Short: "Start the chat listener after a stop",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := adminRequest(socketPath, server.AdminRequest{Action: server.AdminActionStart})
			return err
		},
	})

	return cmd
}

// adminRequest performs one request/response exchange on the admin
// socket and turns an application-level failure into an error.
func adminRequest(socketPath string, request server.AdminRequest) (server.AdminResponse, error) {
	var response server.AdminResponse

	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return response, fmt.Errorf("dialing admin socket: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return response, fmt.Errorf("sending admin request: %w", err)
	}
	if err := codec.NewDecoder(conn).Decode(&response); err != nil {
		return response, fmt.Errorf("reading admin response: %w", err)
	}
	if !response.OK {
		return response, fmt.Errorf("server refused: %s", response.Error)
	}
	return response, nil
}
