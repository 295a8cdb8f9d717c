package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 10 * time.Second

// WebSocket connects to the WebSocket front-end at rawURL and runs an
// interactive session. Lines are sent verbatim and the server interprets
// them. It returns nil when the input ends, ctx is cancelled or the server
// closes the connection.
func WebSocket(ctx context.Context, rawURL string, in io.Reader, out io.Writer, opts Options) error {
	origin := opts.Origin
	if origin == "" {
		derived, err := originFor(rawURL)
		if err != nil {
			return err
		}
		origin = derived
	}

	header := http.Header{}
	header.Set("Origin", origin)
	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, rawURL, header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %s)", rawURL, err, resp.Status)
		}
		return fmt.Errorf("dial %s: %w", rawURL, err)
	}

	con := &console{w: out}
	con.printf("Connected to %s", rawURL)

	t := &wsTransport{conn: conn, out: con}
	return run(ctx, t, in, con, opts.pingInterval())
}

// originFor maps ws://host/... to http://host and wss://host/... to
// https://host.
func originFor(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}
	scheme := "http"
	switch u.Scheme {
	case "wss", "https":
		scheme = "https"
	case "ws", "http":
	default:
		return "", fmt.Errorf("unsupported url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url %q has no host", rawURL)
	}
	return scheme + "://" + u.Host, nil
}

type wsTransport struct {
	conn      *websocket.Conn
	out       *console
	closeOnce sync.Once
}

func (t *wsTransport) send(line string) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return t.conn.WriteMessage(websocket.TextMessage, []byte(line))
}

func (t *wsTransport) ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// receive prints text frames. Server pings are answered by the connection's
// default ping handler while this loop reads.
func (t *wsTransport) receive() error {
	for {
		messageType, payload, err := t.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return nil
			}
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return fmt.Errorf("server closed connection: %w", err)
			}
			return err
		}
		if messageType == websocket.TextMessage {
			t.out.println(string(payload))
		}
	}
}

func (t *wsTransport) close() error {
	var err error
	t.closeOnce.Do(func() {
		_ = t.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		err = t.conn.Close()
	})
	return err
}
