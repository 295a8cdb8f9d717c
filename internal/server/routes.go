// Package server wires HTTP handlers into a ServeMux for the relay's
// WebSocket front-end via routing helpers.
package server

import (
	"context"
	"net/http"

	"github.com/Tyrowin/gochat-relay/internal/relay"
)

// Coordinator is everything the HTTP surface needs from the relay.
type Coordinator interface {
	Relay
	Snapshot(ctx context.Context) (relay.Snapshot, error)
}

// SetupRoutes configures and returns an HTTP ServeMux with all application routes.
// It sets up handlers for health check, WebSocket endpoint, and test page.
func SetupRoutes(c Coordinator) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler(c))
	mux.HandleFunc("/ws", WebSocketHandler(c))
	mux.HandleFunc("/test", TestPageHandler)
	return mux
}
