package server

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/Tyrowin/gochat-relay/internal/wire"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

const (
	recvTimeout  = 2 * time.Second
	quietTimeout = 150 * time.Millisecond
)

// configureForTest applies a config for the duration of the test.
func configureForTest(t *testing.T, customize func(cfg *Config)) {
	t.Helper()
	cfg := NewConfig()
	if customize != nil {
		customize(cfg)
	}
	SetConfig(cfg)
	t.Cleanup(func() { SetConfig(nil) })
}

func fastHeartbeat(cfg *Config) {
	cfg.Heartbeat.Interval = 50 * time.Millisecond
	cfg.Heartbeat.Timeout = 250 * time.Millisecond
}

func startTestRelay(t *testing.T) *relay.Coordinator {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	coord := StartRelay(ctx, relay.WithIDSource(relay.NewCounter(1)))
	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})
	return coord
}

func startTestTCPServer(t *testing.T, coord *relay.Coordinator) string {
	t.Helper()
	srv := NewTCPServer(coord)
	ln := listenLocal(t)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(time.Second) })
	return ln.Addr().String()
}

func listenLocal(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	return ln
}

func startTestHTTPServer(t *testing.T, coord *relay.Coordinator) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(SetupRoutes(coord))
	t.Cleanup(ts.Close)
	return ts
}

// waitForSessions blocks until the relay has exactly n sessions.
func waitForSessions(t *testing.T, coord *relay.Coordinator, n int) relay.Snapshot {
	t.Helper()
	var snap relay.Snapshot
	require.Eventually(t, func() bool {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		s, err := coord.Snapshot(ctx)
		if err != nil {
			return false
		}
		snap = s
		return len(s.Sessions) == n
	}, recvTimeout, 5*time.Millisecond)
	require.NoError(t, snap.Validate())
	return snap
}

// tcpTestPeer is a raw socket client that reads frames in the background.
type tcpTestPeer struct {
	conn   net.Conn
	enc    *wire.Encoder
	frames chan wire.Response
	done   chan struct{}
}

func dialTCP(t *testing.T, addr string) *tcpTestPeer {
	t.Helper()
	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)

	p := &tcpTestPeer{
		conn:   conn,
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
				return
			}
			p.frames <- resp
		}
	}()
	t.Cleanup(func() { _ = conn.Close() })
	return p
}

func (p *tcpTestPeer) send(t *testing.T, req wire.Request) {
	t.Helper()
	require.NoError(t, p.enc.Encode(req))
}

// keepAlive pings the server until the test ends.
func (p *tcpTestPeer) keepAlive(t *testing.T, every time.Duration) {
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-p.done:
				return
			case <-ticker.C:
				if err := p.enc.Encode(wire.Request{Kind: wire.RequestPing}); err != nil {
					return
				}
			}
		}
	}()
}

// next returns the next non-ping frame.
func (p *tcpTestPeer) next(t *testing.T) wire.Response {
	t.Helper()
	deadline := time.After(recvTimeout)
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

func (p *tcpTestPeer) expectText(t *testing.T, want string) {
	t.Helper()
	resp := p.next(t)
	require.Equal(t, wire.ResponseMessage, resp.Kind)
	require.Equal(t, want, resp.Text)
}

func (p *tcpTestPeer) expectQuiet(t *testing.T) {
	t.Helper()
	deadline := time.After(quietTimeout)
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

func (p *tcpTestPeer) expectClosed(t *testing.T) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(recvTimeout):
		t.Fatal("connection was not closed by the server")
	}
}

// wsTestPeer is a WebSocket client that reads in the background, which also
// keeps it answering server pings.
type wsTestPeer struct {
	conn     *websocket.Conn
	messages chan string
	done     chan struct{}
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func dialWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	header := http.Header{}
	header.Set("Origin", ts.URL)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts), header)
	require.NoError(t, err)
	_ = resp.Body.Close()
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func newWSTestPeer(t *testing.T, ts *httptest.Server) *wsTestPeer {
	t.Helper()
	p := &wsTestPeer{
		conn:     dialWS(t, ts),
		messages: make(chan string, 64),
		done:     make(chan struct{}),
	}
	go func() {
		defer close(p.done)
		for {
			_, payload, err := p.conn.ReadMessage()
			if err != nil {
				return
			}
			p.messages <- string(payload)
		}
	}()
	return p
}

func (p *wsTestPeer) send(t *testing.T, text string) {
	t.Helper()
	require.NoError(t, p.conn.WriteMessage(websocket.TextMessage, []byte(text)))
}

func (p *wsTestPeer) expectText(t *testing.T, want string) {
	t.Helper()
	select {
	case got := <-p.messages:
		require.Equal(t, want, got)
	case <-time.After(recvTimeout):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func (p *wsTestPeer) expectQuiet(t *testing.T) {
	t.Helper()
	select {
	case got := <-p.messages:
		t.Fatalf("expected no message, got %q", got)
	case <-time.After(quietTimeout):
	}
}

func (p *wsTestPeer) expectClosed(t *testing.T) {
	t.Helper()
	select {
	case <-p.done:
	case <-time.After(recvTimeout):
		t.Fatal("websocket was not closed by the server")
	}
}
