// Package server manages individual WebSocket peers, handling read/write
// pumps, heartbeats, and lifecycle control for each connection.
package server

import (
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/command"
	"github.com/Tyrowin/gochat-relay/internal/heartbeat"
	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/gorilla/websocket"
)

// Client represents a WebSocket peer in the chat system. It owns the
// connection, the connection-local session state and the write lock that
// serialises data frames between the write pump and command replies.
type Client struct {
	conn           *websocket.Conn
	session        *session
	maxMessageSize int64
	writeMu        sync.Mutex
}

// newClient wraps an upgraded connection for a registered session.
func newClient(conn *websocket.Conn, sess *session, cfg Config) *Client {
	conn.SetReadLimit(cfg.MaxMessageSize)
	return &Client{
		conn:           conn,
		session:        sess,
		maxMessageSize: cfg.MaxMessageSize,
	}
}

// serve runs the connection until the peer leaves, the heartbeat expires,
// or the relay closes the session feed.
func (c *Client) serve(outbound <-chan relay.Outbound, hb heartbeat.Config) {
	c.setupReadConnection()

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		c.writePump(outbound)
	}()

	monitor := heartbeat.New(hb, c.session.live, c.handlePing, c.expire)
	go monitor.Run()

	c.readPump()

	monitor.Stop()
	c.session.close()
	c.closeConnection()
	<-pumpDone
}

// setupReadConnection clears any deadline inherited from the HTTP server and
// counts both pings and pongs from the peer as liveness signals. Pings are
// still answered with a pong.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Time{}); err != nil {
		log.Printf("Error clearing read deadline for %s: %v", c.session.addr, err)
	}
	c.conn.SetPongHandler(func(string) error {
		c.session.touch()
		return nil
	})
	c.conn.SetPingHandler(func(appData string) error {
		c.session.touch()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil
		}
		return err
	})
}

// handleReadError logs appropriate error messages based on the error type.
func (c *Client) handleReadError(err error) {
	addr := c.session.addr

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		log.Printf("Message from %s exceeded maximum size of %d bytes", addr, c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		log.Printf("Client %s disconnected: %v", addr, err)
	case isExpectedCloseError(err):
		log.Printf("Client %s connection closed: %v", addr, err)
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		log.Printf("Unexpected WebSocket error from %s: %v", addr, err)
	default:
		log.Printf("WebSocket read error from %s: %v", addr, err)
	}
}

// readPump dispatches text frames to the shared command handling. Binary
// frames are ignored; ping, pong and close are handled by the connection.
func (c *Client) readPump() {
	for {
		messageType, payload, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.processMessage(string(payload))
	}
}

// processMessage parses one text frame and applies it.
func (c *Client) processMessage(text string) {
	cmd, err := command.Parse(text)
	if err == nil {
		err = c.session.handle(cmd)
	}
	if err != nil {
		log.Printf("Rejected command from %s: %v", c.session.addr, err)
		c.writeText(command.ErrorReply(err))
	}
}

// writePump forwards relay messages as text frames. When the relay closes
// the feed a close frame is sent and the connection is closed.
func (c *Client) writePump(outbound <-chan relay.Outbound) {
	defer c.closeConnection()

	for msg := range outbound {
		for _, text := range toTextFrames(msg) {
			if !c.writeText(text) {
				c.closeConnection()
				for range outbound {
				}
				return
			}
		}
	}
	c.writeCloseMessage()
}

// writeText sends one text frame and reports whether it succeeded.
func (c *Client) writeText(text string) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		log.Printf("Error setting write deadline for %s: %v", c.session.addr, err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing message to %s: %v", c.session.addr, err)
		}
		return false
	}
	return true
}

// writeCloseMessage sends a close frame to the peer.
func (c *Client) writeCloseMessage() {
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(writeWait))
	if err != nil && !isExpectedCloseError(err) {
		log.Printf("Error writing close message to %s: %v", c.session.addr, err)
	}
}

// handlePing sends a ping to the peer; it is the heartbeat probe.
func (c *Client) handlePing() error {
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *Client) expire() {
	log.Printf("WebSocket client %s heartbeat failed, disconnecting", c.session.addr)
	c.closeConnection()
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection to %s: %v", c.session.addr, err)
	}
}
