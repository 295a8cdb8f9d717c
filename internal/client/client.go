// Package client implements console clients for both relay front-ends. Each
// client reads lines from an input stream, sends them to the server, prints
// whatever the server pushes back and pings on a fixed interval so the
// server's heartbeat keeps the connection open.
package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/heartbeat"
)

// Options configures a console client.
type Options struct {
	// PingInterval is how often the client pings the server. Zero means
	// heartbeat.DefaultInterval.
	PingInterval time.Duration
	// Origin is sent with the WebSocket handshake. Empty derives it from the
	// server URL.
	Origin string
}

func (o Options) pingInterval() time.Duration {
	if o.PingInterval <= 0 {
		return heartbeat.DefaultInterval
	}
	return o.PingInterval
}

// transport is one connected client, independent of the wire it speaks.
type transport interface {
	// send delivers one line of user input.
	send(line string) error
	ping() error
	// receive prints incoming traffic until the connection ends.
	receive() error
	close() error
}

// console serialises output from the receive loop and local error messages.
type console struct {
	mu sync.Mutex
	w  io.Writer
}

func (c *console) println(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.w, text)
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintf(c.w, format+"\n", args...)
}

// run drives a connected transport until ctx is cancelled, the input ends or
// the server goes away.
func run(ctx context.Context, t transport, in io.Reader, out *console, interval time.Duration) error {
	received := make(chan error, 1)
	go func() { received <- t.receive() }()

	stop := make(chan struct{})
	defer close(stop)
	lines := scanLines(in, stop)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	shutdown := func() error {
		_ = t.close()
		err := <-received
		out.println("Disconnected")
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return shutdown()
		case err := <-received:
			out.println("Disconnected")
			return err
		case line, ok := <-lines:
			if !ok {
				return shutdown()
			}
			if err := t.send(line); err != nil {
				_ = shutdown()
				return fmt.Errorf("send: %w", err)
			}
		case <-ticker.C:
			if err := t.ping(); err != nil {
				_ = shutdown()
				return fmt.Errorf("ping: %w", err)
			}
		}
	}
}

// scanLines feeds lines from in until it is exhausted or stop is closed.
func scanLines(in io.Reader, stop <-chan struct{}) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-stop:
				return
			}
		}
	}()
	return lines
}
