package client

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

// syncBuffer is an io.Writer safe to read while a client writes to it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *syncBuffer) waitFor(t *testing.T, want string) {
	t.Helper()
	require.Eventually(t, func() bool {
		return strings.Contains(b.String(), want)
	}, waitFor, 5*time.Millisecond, "output never contained %q; got:\n%s", want, b)
}

// runningClient is a client started in the background with piped input.
type runningClient struct {
	input  *io.PipeWriter
	output *syncBuffer
	done   chan error
}

func (c *runningClient) typeLine(t *testing.T, line string) {
	t.Helper()
	_, err := io.WriteString(c.input, line+"\n")
	require.NoError(t, err)
}

func (c *runningClient) finish(t *testing.T) {
	t.Helper()
	_ = c.input.Close()
	select {
	case err := <-c.done:
		require.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("client did not exit after input closed")
	}
}

type dialFunc func(ctx context.Context, in io.Reader, out io.Writer) error

func startClient(t *testing.T, dial dialFunc) *runningClient {
	t.Helper()
	pr, pw := io.Pipe()
	c := &runningClient{input: pw, output: &syncBuffer{}, done: make(chan error, 1)}

	ctx, cancel := context.WithCancel(context.Background())
	go func() { c.done <- dial(ctx, pr, c.output) }()
	t.Cleanup(func() {
		cancel()
		_ = pw.Close()
	})
	c.output.waitFor(t, "Connected to")
	return c
}

func startRelay(t *testing.T) *relay.Coordinator {
	t.Helper()
	server.SetConfig(nil)
	ctx, cancel := context.WithCancel(context.Background())
	coord := server.StartRelay(ctx)
	t.Cleanup(func() {
		cancel()
		<-coord.Done()
	})
	return coord
}

func waitForSessions(t *testing.T, coord *relay.Coordinator, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		snap, err := coord.Snapshot(context.Background())
		return err == nil && len(snap.Sessions) == n
	}, waitFor, 5*time.Millisecond)
}

func startTCPFrontEnd(t *testing.T, coord *relay.Coordinator) string {
	t.Helper()
	srv := server.NewTCPServer(coord)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()
	t.Cleanup(func() { _ = srv.Shutdown(time.Second) })
	return ln.Addr().String()
}

func tcpDialer(addr string, opts Options) dialFunc {
	return func(ctx context.Context, in io.Reader, out io.Writer) error {
		return TCP(ctx, addr, in, out, opts)
	}
}

func TestTCPClientConversation(t *testing.T) {
	coord := startRelay(t)
	addr := startTCPFrontEnd(t, coord)

	alice := startClient(t, tcpDialer(addr, Options{}))
	waitForSessions(t, coord, 1)
	bob := startClient(t, tcpDialer(addr, Options{}))
	waitForSessions(t, coord, 2)
	alice.output.waitFor(t, relay.NoticeJoined)

	bob.typeLine(t, "/name bob")
	bob.typeLine(t, "hello alice")
	alice.output.waitFor(t, "bob: hello alice")

	alice.typeLine(t, "/join lobby")
	alice.output.waitFor(t, "You joined lobby room")
	bob.output.waitFor(t, relay.NoticeDisconnected)

	alice.typeLine(t, "/list")
	alice.output.waitFor(t, "Available rooms: Main, lobby")

	alice.finish(t)
	assert.Contains(t, alice.output.String(), "Disconnected")
	waitForSessions(t, coord, 1)
	bob.finish(t)
}

func TestTCPClientReportsBadCommandsLocally(t *testing.T) {
	coord := startRelay(t)
	addr := startTCPFrontEnd(t, coord)

	c := startClient(t, tcpDialer(addr, Options{}))
	waitForSessions(t, coord, 1)

	c.typeLine(t, "/foo")
	c.output.waitFor(t, "!!! unknown command: /foo")
	c.typeLine(t, "/join")
	c.output.waitFor(t, "!!! room name is required")
	c.typeLine(t, "/name")
	c.output.waitFor(t, "!!! name is required")

	c.finish(t)
}

// TestTCPClientPingsKeepSessionAlive runs a server with a short heartbeat and
// checks the client outlives several timeout windows.
func TestTCPClientPingsKeepSessionAlive(t *testing.T) {
	coord := startRelay(t)
	cfg := server.NewConfig()
	cfg.Heartbeat.Interval = 50 * time.Millisecond
	cfg.Heartbeat.Timeout = 250 * time.Millisecond
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })
	addr := startTCPFrontEnd(t, coord)

	c := startClient(t, tcpDialer(addr, Options{PingInterval: 20 * time.Millisecond}))
	waitForSessions(t, coord, 1)

	time.Sleep(800 * time.Millisecond)
	waitForSessions(t, coord, 1)
	c.finish(t)
}

func TestTCPClientServerShutdown(t *testing.T) {
	coord := startRelay(t)
	srv := server.NewTCPServer(coord)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = srv.Serve(ln) }()

	c := startClient(t, tcpDialer(ln.Addr().String(), Options{}))
	waitForSessions(t, coord, 1)

	require.NoError(t, srv.Shutdown(time.Second))
	select {
	case err := <-c.done:
		assert.NoError(t, err)
	case <-time.After(waitFor):
		t.Fatal("client did not notice the server going away")
	}
	assert.Contains(t, c.output.String(), "Disconnected")
}

func TestTCPClientDialError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	err = TCP(context.Background(), addr, strings.NewReader(""), io.Discard, Options{})
	assert.ErrorContains(t, err, "dial "+addr)
}

func TestWebSocketClientConversation(t *testing.T) {
	coord := startRelay(t)
	ts := httptest.NewServer(server.SetupRoutes(coord))
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	// The test server's origin is not in the default allow-list.
	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{ts.URL}
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	dial := func(ctx context.Context, in io.Reader, out io.Writer) error {
		return WebSocket(ctx, url, in, out, Options{})
	}

	alice := startClient(t, dial)
	waitForSessions(t, coord, 1)
	bob := startClient(t, dial)
	waitForSessions(t, coord, 2)
	alice.output.waitFor(t, relay.NoticeJoined)

	bob.typeLine(t, "hi from bob")
	alice.output.waitFor(t, "hi from bob")

	bob.typeLine(t, "/foo")
	bob.output.waitFor(t, "!!! unknown command: /foo")

	alice.typeLine(t, "/join lobby")
	bob.output.waitFor(t, relay.NoticeDisconnected)
	alice.typeLine(t, "/list")
	alice.output.waitFor(t, "Main\nlobby\n")

	bob.finish(t)
	assert.Contains(t, bob.output.String(), "Disconnected")
	waitForSessions(t, coord, 1)
	alice.finish(t)
}

func TestWebSocketClientRejectedOrigin(t *testing.T) {
	coord := startRelay(t)
	ts := httptest.NewServer(server.SetupRoutes(coord))
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	err := WebSocket(context.Background(), url, strings.NewReader(""), io.Discard,
		Options{Origin: "http://evil.example"})
	assert.ErrorContains(t, err, "403")
}

func TestOriginFor(t *testing.T) {
	tests := []struct {
		url     string
		want    string
		wantErr bool
	}{
		{url: "ws://localhost:8080/ws", want: "http://localhost:8080"},
		{url: "wss://chat.example/ws", want: "https://chat.example"},
		{url: "http://127.0.0.1:9000/ws", want: "http://127.0.0.1:9000"},
		{url: "ftp://chat.example/ws", wantErr: true},
		{url: "ws:///ws", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			got, err := originFor(tt.url)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
