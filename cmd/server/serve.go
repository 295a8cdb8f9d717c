package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the relay with its socket and WebSocket front-ends",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			server.SetConfig(cfg)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, server.CurrentConfig())
		},
	}
	addServerFlags(cmd)
	return cmd
}

// serve runs both front-ends until ctx is cancelled or one of them fails,
// then shuts everything down in order: listeners first, the relay last.
func serve(ctx context.Context, cfg server.Config) error {
	log.Println("Starting GoChat relay...")

	relayCtx, cancelRelay := context.WithCancel(context.Background())
	defer cancelRelay()
	coordinator := server.StartRelay(relayCtx)

	httpServer := server.CreateServer(cfg.Port, server.SetupRoutes(coordinator))
	tcpServer := server.NewTCPServer(coordinator)

	errs := make(chan error, 2)
	go func() {
		errs <- server.StartServer(httpServer)
	}()
	go func() {
		err := tcpServer.ListenAndServe(cfg.TCPAddr)
		if errors.Is(err, server.ErrTCPServerClosed) {
			err = nil
		}
		errs <- err
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	case runErr = <-errs:
		if runErr != nil {
			log.Printf("Front-end failed: %v", runErr)
		}
	}

	if err := tcpServer.Shutdown(shutdownTimeout); err != nil {
		log.Printf("Socket front-end shutdown error: %v", err)
	}
	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	cancelRelay()
	if err := server.StopRelay(coordinator, shutdownTimeout); err != nil {
		log.Printf("Relay shutdown error: %v", err)
	}

	log.Println("GoChat relay stopped")
	return runErr
}
