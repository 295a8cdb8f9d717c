// Package server holds the per-connection session state shared by the socket
// and WebSocket front-ends.
package server

import (
	"context"
	"log"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/command"
	"github.com/Tyrowin/gochat-relay/internal/heartbeat"
	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/google/uuid"
)

// Relay is the part of the coordinator the front-ends talk to.
type Relay interface {
	Register(ctx context.Context, buffer int) (relay.SessionID, <-chan relay.Outbound, error)
	Disconnect(id relay.SessionID)
	Message(id relay.SessionID, room, text string)
	ListRooms(id relay.SessionID)
	Join(id relay.SessionID, room string)
}

// session is the connection-local view of one peer. Only the connection's
// read loop touches room and name; live is shared with the heartbeat
// monitor and is therefore an atomic cell.
type session struct {
	id    relay.SessionID
	tag   string
	addr  string
	relay Relay

	room string
	name string
	live *heartbeat.Liveness

	rateLimiter *rateLimiter
	rateLimit   RateLimitConfig
}

// openSession registers a new peer with the relay and returns its local
// state together with the feed of relay-pushed messages.
func openSession(ctx context.Context, r Relay, addr string, cfg Config) (*session, <-chan relay.Outbound, error) {
	id, outbound, err := r.Register(ctx, cfg.SendBuffer)
	if err != nil {
		return nil, nil, err
	}

	s := &session{
		id:          id,
		tag:         uuid.NewString(),
		addr:        addr,
		relay:       r,
		room:        relay.DefaultRoom,
		live:        heartbeat.NewLiveness(time.Now()),
		rateLimiter: newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval),
		rateLimit:   cfg.RateLimit,
	}
	log.Printf("Session %s opened for %s (conn %s)", s.id, s.addr, s.tag)
	return s, outbound, nil
}

// close tells the relay the peer is gone.
func (s *session) close() {
	s.relay.Disconnect(s.id)
	log.Printf("Session %s closed for %s (conn %s)", s.id, s.addr, s.tag)
}

// touch records a liveness signal from the peer.
func (s *session) touch() {
	s.live.Touch(time.Now())
}

// handle applies one command. A returned error is meant for the sender
// only; the connection stays open.
func (s *session) handle(cmd command.Command) error {
	switch cmd.Kind {
	case command.List:
		s.relay.ListRooms(s.id)
	case command.Join:
		if cmd.Arg == "" {
			return command.ErrRoomRequired
		}
		s.room = cmd.Arg
		s.relay.Join(s.id, cmd.Arg)
	case command.Name:
		if cmd.Arg == "" {
			return command.ErrNameRequired
		}
		s.name = cmd.Arg
	case command.Message:
		s.say(cmd.Arg)
	}
	return nil
}

// say broadcasts text to the current room, prefixed with the display name
// when one is set.
func (s *session) say(text string) {
	if text == "" {
		return
	}
	if !s.checkRateLimit() {
		return
	}
	if s.name != "" {
		text = s.name + ": " + text
	}
	s.relay.Message(s.id, s.room, text)
}

// checkRateLimit verifies if the peer has exceeded rate limits
// and returns true if the message should be processed
func (s *session) checkRateLimit() bool {
	if s.rateLimiter != nil && !s.rateLimiter.allow() {
		log.Printf("Rate limit exceeded for %s (%d messages per %s); discarding message", s.addr, s.rateLimit.Burst, s.rateLimit.RefillInterval)
		return false
	}
	return true
}
