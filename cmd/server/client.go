package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/client"
	"github.com/spf13/cobra"
)

func newClientCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "client",
		Short: "Interactive console clients",
		Long:  "client connects to a running relay and sends each line typed on stdin. Use /list, /join <room> and /name <name>; anything else is a chat message.",
	}
	cmd.AddCommand(newTCPClientCmd(), newWSClientCmd())
	return cmd
}

func newTCPClientCmd() *cobra.Command {
	var pingInterval time.Duration

	cmd := &cobra.Command{
		Use:     "tcp <addr>",
		Short:   "Connect to the socket front-end",
		Example: "  gochat-relay client tcp 127.0.0.1:12345",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return client.TCP(ctx, args[0], cmd.InOrStdin(), cmd.OutOrStdout(),
				client.Options{PingInterval: pingInterval})
		},
	}
	cmd.Flags().DurationVar(&pingInterval, "ping-interval", 0, "how often to ping the server (default 5s)")
	return cmd
}

func newWSClientCmd() *cobra.Command {
	var (
		pingInterval time.Duration
		origin       string
	)

	cmd := &cobra.Command{
		Use:     "ws <url>",
		Short:   "Connect to the WebSocket front-end",
		Example: "  gochat-relay client ws ws://localhost:8080/ws",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return client.WebSocket(ctx, args[0], cmd.InOrStdin(), cmd.OutOrStdout(),
				client.Options{PingInterval: pingInterval, Origin: origin})
		},
	}
	cmd.Flags().DurationVar(&pingInterval, "ping-interval", 0, "how often to ping the server (default 5s)")
	cmd.Flags().StringVar(&origin, "origin", "", "Origin header for the handshake (default derived from the url)")
	return cmd
}
