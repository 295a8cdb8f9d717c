// Package server constructs and starts the relay's HTTP and socket services
// with helpers that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
)

// CreateServer creates and configures an HTTP server with the specified port and handler.
// Read and write timeouts only cover the upgrade request; hijacked WebSocket
// connections are governed by the heartbeat.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartRelay creates a coordinator and runs it in its own goroutine until
// ctx is cancelled.
func StartRelay(ctx context.Context, opts ...relay.Option) *relay.Coordinator {
	coordinator := relay.NewCoordinator(opts...)
	go coordinator.Run(ctx)
	log.Println("Relay started and ready to manage sessions")
	return coordinator
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns nil once the server has been shut down.
func StartServer(server *http.Server) error {
	fmt.Printf("Server listening on port %s\n", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration) error {
	log.Println("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
		return err
	}

	log.Println("HTTP server shutdown completed")
	return nil
}

// StopRelay waits for a coordinator whose context has been cancelled to
// close every session feed, or until the timeout is reached.
func StopRelay(c *relay.Coordinator, timeout time.Duration) error {
	select {
	case <-c.Done():
		return nil
	case <-time.After(timeout):
		log.Println("Relay shutdown timeout reached")
		return context.DeadlineExceeded
	}
}
