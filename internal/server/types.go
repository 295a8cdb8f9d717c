// Package server defines helpers shared by the socket and WebSocket
// front-ends for translating relay output and classifying close errors.
package server

import (
	"errors"
	"io"
	"net"
	"strings"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/Tyrowin/gochat-relay/internal/wire"
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}

// toResponse maps a relay message onto a socket frame. The id handshake has
// no frame and reports false.
func toResponse(msg relay.Outbound) (wire.Response, bool) {
	switch msg.Kind {
	case relay.OutboundText:
		return wire.Response{Kind: wire.ResponseMessage, Text: msg.Text}, true
	case relay.OutboundRooms:
		return wire.Response{Kind: wire.ResponseRooms, Rooms: msg.Rooms}, true
	case relay.OutboundJoined:
		return wire.Response{Kind: wire.ResponseJoined, Text: msg.Text}, true
	default:
		return wire.Response{}, false
	}
}

// toTextFrames renders a relay message as WebSocket text payloads. Room
// lists go out one room per frame; join acks are not shown.
func toTextFrames(msg relay.Outbound) []string {
	switch msg.Kind {
	case relay.OutboundText:
		return []string{msg.Text}
	case relay.OutboundRooms:
		return msg.Rooms
	default:
		return nil
	}
}
