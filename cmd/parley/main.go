// Copyright 2026 The Parley Authors
// SPDX-License-Identifier: Apache-2.0

// Parley is the command-line client for the Parley chat server. It
// covers the whole protocol surface: interactive chat, one-shot
// messages, remote command execution, file download, and the
// operator's admin socket.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parley-project/parley/client"
	"github.com/parley-project/parley/config"
	"github.com/parley-project/parley/lib/version"
	"github.com/parley-project/parley/wire"
)

var (
	serverAddr  string
	username    string
	downloadDir string
)

func main() {
	root := &cobra.Command{
		Use:           "parley",
		Short:         "Parley chat client",
		Version:       version.Info(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&serverAddr, "server", "localhost"+config.DefaultListen, "server address")
	root.PersistentFlags().StringVarP(&username, "name", "n", "", "username to log in as")

	root.AddCommand(chatCommand())
	root.AddCommand(sendCommand())
	root.AddCommand(execCommand())
	root.AddCommand(getCommand())
	root.AddCommand(adminCommand())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// dial connects and logs in with the shared flags.
func dial() (*client.Client, error) {
	if username == "" {
		return nil, fmt.Errorf("--name is required")
	}
	return client.Dial(serverAddr, username, client.Options{
		DownloadDir: downloadDir,
	})
}

func chatCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat session",
		Long: `Connects and relays stdin lines as chat messages.

Lines are broadcast by default. Prefix a line with "@name " to send it
to one user; type /quit to leave.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()

			go printEvents(c)

			scanner := bufio.NewScanner(os.Stdin)
			for scanner.Scan() {
				line := strings.TrimSpace(scanner.Text())
				switch {
				case line == "":
					continue
				case line == "/quit":
					return c.Disconnect()
				case strings.HasPrefix(line, "@"):
					to, text, ok := strings.Cut(line[1:], " ")
					if !ok || to == "" {
						fmt.Fprintln(os.Stderr, "usage: @name message")
						continue
					}
					if err := c.Send(to, text); err != nil {
						return err
					}
				default:
					if err := c.Send(wire.BroadcastTarget, line); err != nil {
						return err
					}
				}
				select {
				case <-c.Done():
					return c.Err()
				default:
				}
			}
			c.Disconnect()
			return scanner.Err()
		},
	}
}

func sendCommand() *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Send(to, strings.Join(args, " ")); err != nil {
				return err
			}
			return c.Disconnect()
		},
	}
	cmd.Flags().StringVar(&to, "to", wire.BroadcastTarget, "recipient username, or \"all\"")
	return cmd
}

func execCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command...>",
		Short: "Run a shell command on the server and print its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.Execute(strings.Join(args, " ")); err != nil {
				return err
			}
			for event := range c.Events() {
				if event.Envelope.IsType(wire.TypeCommandResult) {
					fmt.Println(event.Envelope.Result)
					return c.Disconnect()
				}
			}
			return connectionLost(c)
		},
	}
}

func getCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <filename>",
		Short: "Download a file from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := dial()
			if err != nil {
				return err
			}
			defer c.Close()
			if err := c.RequestFile(args[0]); err != nil {
				return err
			}
			for event := range c.Events() {
				if event.Transfer == nil {
					continue
				}
				if event.Transfer.Err != nil {
					return event.Transfer.Err
				}
				fmt.Printf("received %s (%d bytes)\n", event.Transfer.Path, event.Transfer.Size)
				return c.Disconnect()
			}
			return connectionLost(c)
		},
	}
	cmd.Flags().StringVarP(&downloadDir, "out", "o", ".", "directory to save the file into")
	return cmd
}

// printEvents renders inbound events for the interactive session.
func printEvents(c *client.Client) {
	for event := range c.Events() {
		switch {
		case event.Transfer != nil:
			if event.Transfer.Err != nil {
				fmt.Fprintf(os.Stderr, "transfer failed: %v\n", event.Transfer.Err)
			} else {
				fmt.Printf("* received %s\n", event.Transfer.Path)
			}
		case event.Envelope.IsType(wire.TypeMessage):
			fmt.Printf("<%s> %s\n", event.Envelope.From, event.Envelope.Message)
		case event.Envelope.IsType(wire.TypeCommandResult):
			fmt.Printf("<%s> %s\n", event.Envelope.From, event.Envelope.Result)
		case event.Envelope.IsType(wire.TypeDisconnect):
			fmt.Fprintln(os.Stderr, event.Envelope.Message)
		default:
			if event.Envelope.Message != "" {
				fmt.Printf("* %s\n", event.Envelope.Message)
			}
		}
	}
}

func connectionLost(c *client.Client) error {
	if err := c.Err(); err != nil {
		return err
	}
	return fmt.Errorf("connection closed by server")
}
