// Package testhelpers provides common utilities for exercising a running
// GoChat relay in tests.
//
// It starts a complete stack (relay, socket front-end and HTTP front-end on
// loopback listeners) and offers peer wrappers for both transports that read
// in the background, so tests can assert on what each peer sees.
package testhelpers

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/command"
	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/Tyrowin/gochat-relay/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	// ReceiveTimeout bounds how long a peer waits for an expected message.
	ReceiveTimeout = 2 * time.Second
	// QuietPeriod is how long a peer listens before deciding nothing came.
	QuietPeriod = 150 * time.Millisecond
)

// Stack is a running relay with both front-ends.
type Stack struct {
	Relay   *relay.Coordinator
	HTTP    *httptest.Server
	TCP     *server.TCPServer
	TCPAddr string

	cancelRelay context.CancelFunc
}

// StartStack applies a test configuration and starts the relay, the socket
// front-end and the HTTP front-end. Session ids are handed out 1, 2, 3, ...
// Everything is torn down when the test ends.
func StartStack(t *testing.T, customize func(cfg *server.Config)) *Stack {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	coord := server.StartRelay(ctx, relay.WithIDSource(relay.NewCounter(1)))

	ts := httptest.NewServer(server.SetupRoutes(coord))

	cfg := server.NewConfig()
	cfg.AllowedOrigins = append([]string{ts.URL}, cfg.AllowedOrigins...)
	if customize != nil {
		customize(cfg)
	}
	server.SetConfig(cfg)

	tcp := server.NewTCPServer(coord)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = tcp.Serve(ln) }()

	s := &Stack{
		Relay:       coord,
		HTTP:        ts,
		TCP:         tcp,
		TCPAddr:     ln.Addr().String(),
		cancelRelay: cancel,
	}
	t.Cleanup(func() {
		_ = tcp.Shutdown(time.Second)
		ts.Close()
		s.StopRelay(t)
		server.SetConfig(nil)
	})
	return s
}

// StopRelay cancels the relay and waits for it to close every session.
func (s *Stack) StopRelay(t *testing.T) {
	t.Helper()
	s.cancelRelay()
	require.NoError(t, server.StopRelay(s.Relay, ReceiveTimeout))
}

// WebSocketURL is the ws:// address of the relay endpoint.
func (s *Stack) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(s.HTTP.URL, "http") + "/ws"
}

// Snapshot returns the relay state.
func (s *Stack) Snapshot(t *testing.T) relay.Snapshot {
	t.Helper()
	snap, err := s.Relay.Snapshot(context.Background())
	require.NoError(t, err)
	require.NoError(t, snap.Validate())
	return snap
}

// WaitForSessions blocks until the relay has exactly n sessions.
func (s *Stack) WaitForSessions(t *testing.T, n int) relay.Snapshot {
	t.Helper()
	var snap relay.Snapshot
	require.Eventually(t, func() bool {
		got, err := s.Relay.Snapshot(context.Background())
		if err != nil {
			return false
		}
		snap = got
		return len(got.Sessions) == n
	}, ReceiveTimeout, 5*time.Millisecond, "relay never reached %d sessions", n)
	require.NoError(t, snap.Validate())
	return snap
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}

// ConnectWebSocket dials url with the given Origin header. An empty origin
// sends none.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Peer is a connected client of either transport as seen by a test.
type Peer interface {
	// Say sends one line in the shared text grammar.
	Say(t *testing.T, line string)
	// ExpectText waits for a chat line.
	ExpectText(t *testing.T, want string)
	// ExpectQuiet asserts that no chat line arrives for QuietPeriod.
	ExpectQuiet(t *testing.T)
	// ExpectClosed waits for the server to close the connection.
	ExpectClosed(t *testing.T)
	Close()
}

// WSPeer is a WebSocket client that reads in the background, which also
// keeps it answering server pings.
type WSPeer struct {
	Conn     *websocket.Conn
	messages chan string
	done     chan struct{}
}

// NewWSPeer connects a WebSocket peer with an allowed origin.
func (s *Stack) NewWSPeer(t *testing.T) *WSPeer {
	t.Helper()
	conn, _, err := ConnectWebSocket(s.WebSocketURL(), s.HTTP.URL)
	require.NoError(t, err)

	p := &WSPeer{
		Conn:     conn,
		messages: make(chan string, 256),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for {
			_, payload, err := conn.ReadMessage()
			if err != nil {
				return
			}
			p.messages <- string(payload)
		}
	}()
	t.Cleanup(p.Close)
	return p
}

func (p *WSPeer) Say(t *testing.T, line string) {
	t.Helper()
	require.NoError(t, p.Conn.WriteMessage(websocket.TextMessage, []byte(line)))
}

func (p *WSPeer) ExpectText(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-p.messages:
		require.Equal(t, want, got)
	case <-time.After(ReceiveTimeout):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func (p *WSPeer) ExpectQuiet(t *testing.T) {
	t.Helper()
	select {
	case got := <-p.messages:
		t.Fatalf("expected no message, got %q", got)
	case <-time.After(QuietPeriod):
	}
}

func (p *WSPeer) ExpectClosed(t *testing.T) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(ReceiveTimeout):
		t.Fatal("websocket was not closed by the server")
	}
}

func (p *WSPeer) Close() {
	_ = p.Conn.Close()
}

// TCPPeer is a socket client that reads frames in the background. Lines are
// parsed with the same grammar the front-ends use before being framed.
type TCPPeer struct {
	Conn   net.Conn
	enc    *wire.Encoder
	frames chan wire.Response
	done   chan struct{}
}

// NewTCPPeer connects a socket peer.
func (s *Stack) NewTCPPeer(t *testing.T) *TCPPeer {
	t.Helper()
	conn, err := net.Dial("tcp", s.TCPAddr)
	require.NoError(t, err)

	p := &TCPPeer{
		Conn:   conn,
		enc:    wire.NewEncoder(conn),
		frames: make(chan wire.Response, 256),
		done:   make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		dec := wire.NewDecoder(conn, 0)
		for {
			var resp wire.Response
			if err := dec.Decode(&resp); err != nil {
				if wire.IsRecoverable(err) {
					continue
				}
				return
			}
			p.frames <- resp
		}
	}()
	t.Cleanup(p.Close)
	return p
}

// Send writes one request frame.
func (p *TCPPeer) Send(t *testing.T, req wire.Request) {
	t.Helper()
	require.NoError(t, p.enc.Encode(req))
}

func (p *TCPPeer) Say(t *testing.T, line string) {
	t.Helper()
	cmd, err := command.Parse(line)
	require.NoError(t, err)
	p.Send(t, cmd.Request())
}

// Next returns the next frame that is not a ping.
func (p *TCPPeer) Next(t *testing.T) wire.Response {
	t.Helper()
	deadline := time.After(ReceiveTimeout)
	for {
		select {
		case resp := <-p.frames:
			if resp.Kind == wire.ResponsePing {
				continue
			}
			return resp
		case <-deadline:
			t.Fatal("timed out waiting for frame")
			return wire.Response{}
		}
	}
}

// ExpectText requires the next non-ping frame to be the given chat line.
func (p *TCPPeer) ExpectText(t *testing.T, want string) {
	t.Helper()
	resp := p.Next(t)
	require.Equal(t, wire.ResponseMessage, resp.Kind, "got %+v", resp)
	require.Equal(t, want, resp.Text)
}

func (p *TCPPeer) ExpectQuiet(t *testing.T) {
	t.Helper()
	deadline := time.After(QuietPeriod)
	for {
		select {
		case resp := <-p.frames:
			if resp.Kind == wire.ResponsePing {
				continue
			}
			t.Fatalf("expected no frame, got %+v", resp)
		case <-deadline:
			return
		}
	}
}

func (p *TCPPeer) ExpectClosed(t *testing.T) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(ReceiveTimeout):
		t.Fatal("connection was not closed by the server")
	}
}

func (p *TCPPeer) Close() {
	_ = p.Conn.Close()
}
