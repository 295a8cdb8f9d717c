// Package server implements the raw socket front-end: a listener whose
// connections speak the length-prefixed frame protocol of package wire.
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/command"
	"github.com/Tyrowin/gochat-relay/internal/heartbeat"
	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/Tyrowin/gochat-relay/internal/wire"
)

const (
	writeWait    = 10 * time.Second
	registerWait = 10 * time.Second
)

// ErrTCPServerClosed is returned by Serve after Shutdown.
var ErrTCPServerClosed = errors.New("server: tcp server closed")

// TCPServer accepts socket peers and bridges each one to the relay.
type TCPServer struct {
	relay Relay

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	closed   bool
	wg       sync.WaitGroup
}

// NewTCPServer creates a socket front-end for r.
func NewTCPServer(r Relay) *TCPServer {
	return &TCPServer{
		relay: r,
		conns: make(map[net.Conn]struct{}),
	}
}

// ListenAndServe listens on addr and serves until Shutdown.
func (s *TCPServer) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until Shutdown is called or Accept fails.
func (s *TCPServer) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = ln.Close()
		return ErrTCPServerClosed
	}
	s.listener = ln
	s.mu.Unlock()

	log.Printf("Socket front-end listening on %s", ln.Addr())

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrTCPServerClosed
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				log.Printf("Temporary accept error: %v", err)
				continue
			}
			return err
		}

		if !s.track(conn) {
			_ = conn.Close()
			continue
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.untrack(conn)
			s.handleConn(conn)
		}()
	}
}

// Addr returns the listener address once Serve has started.
func (s *TCPServer) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *TCPServer) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *TCPServer) track(conn net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *TCPServer) untrack(conn net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, conn)
}

// Shutdown stops accepting, closes every live connection and waits for the
// connection goroutines to finish, or until the timeout is reached.
func (s *TCPServer) Shutdown(timeout time.Duration) error {
	log.Println("Shutting down socket front-end...")

	s.mu.Lock()
	s.closed = true
	if s.listener != nil {
		if err := s.listener.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing listener: %v", err)
		}
	}
	conns := make([]net.Conn, 0, len(s.conns))
	for conn := range s.conns {
		conns = append(conns, conn)
	}
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil && !isExpectedCloseError(err) {
			log.Printf("Error closing connection from %s: %v", conn.RemoteAddr(), err)
		}
	}
	log.Printf("Closed %d socket connections", len(conns))

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("Socket front-end shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		log.Println("Socket front-end shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}

// tcpPeer is one accepted socket connection.
type tcpPeer struct {
	conn    net.Conn
	enc     *wire.Encoder
	session *session
	writeMu sync.Mutex
}

func (s *TCPServer) handleConn(conn net.Conn) {
	cfg := currentConfig()
	addr := conn.RemoteAddr().String()

	ctx, cancel := context.WithTimeout(context.Background(), registerWait)
	sess, outbound, err := openSession(ctx, s.relay, addr, cfg)
	cancel()
	if err != nil {
		log.Printf("Rejecting socket peer %s: %v", addr, err)
		_ = conn.Close()
		return
	}

	p := &tcpPeer{conn: conn, enc: wire.NewEncoder(conn), session: sess}

	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		p.writePump(outbound)
	}()

	monitor := heartbeat.New(cfg.Heartbeat, sess.live, p.probe, p.expire)
	go monitor.Run()

	p.readLoop(int(cfg.MaxMessageSize))

	monitor.Stop()
	sess.close()
	p.closeConnection()
	<-pumpDone
}

// readLoop dispatches frames until the peer goes away or the connection is
// closed underneath it.
func (p *tcpPeer) readLoop(maxFrame int) {
	dec := wire.NewDecoder(p.conn, maxFrame)
	for {
		var req wire.Request
		if err := dec.Decode(&req); err != nil {
			if wire.IsRecoverable(err) {
				log.Printf("Invalid frame from %s: %v", p.session.addr, err)
				p.reply(command.ErrorReply(err))
				continue
			}
			if !isExpectedCloseError(err) {
				log.Printf("Socket read error from %s: %v", p.session.addr, err)
			} else {
				log.Printf("Socket peer %s disconnected", p.session.addr)
			}
			return
		}

		if req.Kind == wire.RequestPing {
			p.session.touch()
			if err := p.write(wire.Response{Kind: wire.ResponsePing}); err != nil {
				return
			}
			continue
		}

		cmd, ok := command.FromRequest(req)
		if !ok {
			continue
		}
		if err := p.session.handle(cmd); err != nil {
			p.reply(command.ErrorReply(err))
		}
	}
}

// writePump forwards relay messages to the peer until the relay closes the
// feed, then closes the connection. After a write failure the feed is
// drained so the relay is never held up by this connection.
func (p *tcpPeer) writePump(outbound <-chan relay.Outbound) {
	defer p.closeConnection()

	for msg := range outbound {
		resp, ok := toResponse(msg)
		if !ok {
			continue
		}
		if err := p.deliver(resp); err != nil {
			p.closeConnection()
			for range outbound {
			}
			return
		}
	}
}

// deliver writes resp, spreading a room list over as many frames as it needs.
// A frame that still does not fit is replaced by an error notice and the
// connection stays open.
func (p *tcpPeer) deliver(resp wire.Response) error {
	frames := []wire.Response{resp}
	if resp.Kind == wire.ResponseRooms {
		frames = frames[:0]
		for _, rooms := range wire.SplitRooms(resp.Rooms) {
			frames = append(frames, wire.Response{Kind: wire.ResponseRooms, Rooms: rooms})
		}
	}

	for _, frame := range frames {
		err := p.write(frame)
		if errors.Is(err, wire.ErrFrameTooLarge) {
			err = p.write(wire.Response{Kind: wire.ResponseMessage, Text: command.ErrorReply(err)})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *tcpPeer) write(resp wire.Response) error {
	p.writeMu.Lock()
	defer p.writeMu.Unlock()

	if err := p.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	if err := p.enc.Encode(resp); err != nil {
		if !isExpectedCloseError(err) {
			log.Printf("Error writing %s frame to %s: %v", resp.Kind, p.session.addr, err)
		}
		return err
	}
	return nil
}

func (p *tcpPeer) reply(text string) {
	_ = p.write(wire.Response{Kind: wire.ResponseMessage, Text: text})
}

func (p *tcpPeer) probe() error {
	return p.write(wire.Response{Kind: wire.ResponsePing})
}

func (p *tcpPeer) expire() {
	log.Printf("Socket peer %s heartbeat failed, disconnecting", p.session.addr)
	p.closeConnection()
}

func (p *tcpPeer) closeConnection() {
	if err := p.conn.Close(); err != nil && !isExpectedCloseError(err) {
		log.Printf("Error closing connection to %s: %v", p.session.addr, err)
	}
}
