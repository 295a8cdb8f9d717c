package integration

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/command"
	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/internal/wire"
	"github.com/Tyrowin/gochat-relay/test/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOriginValidationEdgeCases checks which handshakes the WebSocket
// endpoint accepts.
func TestOriginValidationEdgeCases(t *testing.T) {
	stack := testhelpers.StartStack(t, func(cfg *server.Config) {
		cfg.AllowedOrigins = append(cfg.AllowedOrigins, "https://chat.example")
	})

	tests := []struct {
		name   string
		origin string
		allow  bool
	}{
		{name: "missing origin", origin: "", allow: false},
		{name: "malformed origin", origin: "://bad", allow: false},
		{name: "unknown host", origin: "http://evil.example", allow: false},
		{name: "scheme differs", origin: "http://chat.example", allow: false},
		{name: "port differs", origin: "https://chat.example:8443", allow: false},
		{name: "case insensitive", origin: "HTTPS://Chat.Example", allow: true},
		{name: "path ignored", origin: "https://chat.example/room", allow: true},
		{name: "test server origin", origin: stack.HTTP.URL, allow: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := testhelpers.ConnectWebSocket(stack.WebSocketURL(), tt.origin)
			if tt.allow {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

// TestMessageSizeLimit covers the per-transport behaviour for oversized
// input: the WebSocket connection is dropped, the socket connection is told
// and keeps going.
func TestMessageSizeLimit(t *testing.T) {
	const limit = 64
	stack := testhelpers.StartStack(t, func(cfg *server.Config) {
		cfg.MaxMessageSize = limit
	})

	t.Run("websocket at limit is delivered", func(t *testing.T) {
		listener := stack.NewTCPPeer(t)
		stack.WaitForSessions(t, 1)
		ws := stack.NewWSPeer(t)
		stack.WaitForSessions(t, 2)
		listener.ExpectText(t, relay.NoticeJoined)

		text := strings.Repeat("a", limit)
		ws.Say(t, text)
		listener.ExpectText(t, text)

		ws.Close()
		listener.Close()
		stack.WaitForSessions(t, 0)
	})

	t.Run("websocket over limit is disconnected", func(t *testing.T) {
		ws := stack.NewWSPeer(t)
		stack.WaitForSessions(t, 1)

		ws.Say(t, strings.Repeat("a", limit+1))
		ws.ExpectClosed(t)
		stack.WaitForSessions(t, 0)
	})

	t.Run("socket over limit is rejected in place", func(t *testing.T) {
		listener := stack.NewWSPeer(t)
		stack.WaitForSessions(t, 1)
		tcp := stack.NewTCPPeer(t)
		stack.WaitForSessions(t, 2)
		listener.ExpectText(t, relay.NoticeJoined)

		tcp.Send(t, wire.Request{Kind: wire.RequestMessage, Data: strings.Repeat("a", limit+10)})
		reply := tcp.Next(t)
		assert.Equal(t, wire.ResponseMessage, reply.Kind)
		assert.Equal(t, command.ErrorReply(wire.ErrFrameTooLarge), reply.Text)
		listener.ExpectQuiet(t)

		tcp.Say(t, "small")
		listener.ExpectText(t, "small")
	})
}

// TestRateLimiting sends a burst larger than the limit and checks only the
// allowed part reaches the room.
func TestRateLimiting(t *testing.T) {
	stack := testhelpers.StartStack(t, func(cfg *server.Config) {
		cfg.RateLimit = server.RateLimitConfig{Burst: 3, RefillInterval: time.Hour}
	})

	listener := stack.NewTCPPeer(t)
	stack.WaitForSessions(t, 1)
	sender := stack.NewWSPeer(t)
	stack.WaitForSessions(t, 2)
	listener.ExpectText(t, relay.NoticeJoined)

	for range 6 {
		sender.Say(t, "flood")
	}
	for range 3 {
		listener.ExpectText(t, "flood")
	}
	listener.ExpectQuiet(t)

	// Commands are not rate limited.
	sender.Say(t, "/join elsewhere")
	listener.ExpectText(t, relay.NoticeDisconnected)
}
