package relay

import (
	"context"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrStopped is returned by calls that need a reply once the coordinator has
// stopped running.
var ErrStopped = errors.New("relay: coordinator stopped")

// Coordinator owns all session and room state. Every command is queued and
// applied one at a time by Run, so nothing else ever touches the maps.
type Coordinator struct {
	sessions map[SessionID]chan<- Outbound
	rooms    map[string]map[SessionID]struct{}
	ids      IDSource

	inbox   *mailbox
	done    chan struct{}
	runOnce sync.Once
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithIDSource replaces the default id source.
func WithIDSource(ids IDSource) Option {
	return func(c *Coordinator) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// NewCoordinator creates a coordinator with the default room already in
// place. By default ids are drawn from a Random source seeded with the
// current time.
func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		sessions: make(map[SessionID]chan<- Outbound),
		rooms: map[string]map[SessionID]struct{}{
			DefaultRoom: {},
		},
		ids:   NewRandom(uint64(time.Now().UnixNano())),
		inbox: newMailbox(),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run applies queued commands until ctx is cancelled. On return every
// session's outbound channel has been closed. Run must only be called once;
// later calls return immediately.
func (c *Coordinator) Run(ctx context.Context) {
	started := false
	c.runOnce.Do(func() { started = true })
	if !started {
		return
	}
	defer c.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.inbox.ready:
			for _, cmd := range c.inbox.drain() {
				cmd.apply(c)
			}
		}
	}
}

// Done is closed once Run has returned.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

func (c *Coordinator) stop() {
	dropped := c.inbox.close()
	if len(dropped) > 0 {
		log.Printf("Relay stopping with %d unprocessed commands", len(dropped))
	}
	for _, cmd := range dropped {
		if cc, ok := cmd.(connectCmd); ok && cc.reply != nil {
			close(cc.reply)
		}
	}
	for id, ch := range c.sessions {
		close(ch)
		delete(c.sessions, id)
	}
	close(c.done)
	log.Println("Relay coordinator stopped")
}

func (c *Coordinator) enqueue(cmd command) bool {
	if !c.inbox.push(cmd) {
		log.Printf("Relay stopped; dropping %T", cmd)
		return false
	}
	return true
}

// Connect registers a new session whose messages will be pushed on reply.
// The assigned id arrives as the first item on reply (kind OutboundID).
// From then on the coordinator is the only sender on reply and closes it
// when the session disconnects or the coordinator stops.
func (c *Coordinator) Connect(reply chan<- Outbound) {
	c.enqueue(connectCmd{reply: reply})
}

// Disconnect removes the session from the session map and from its room.
// Unknown ids are ignored.
func (c *Coordinator) Disconnect(id SessionID) {
	c.enqueue(disconnectCmd{id: id})
}

// Message delivers text to every member of room except id.
func (c *Coordinator) Message(id SessionID, room, text string) {
	c.enqueue(messageCmd{id: id, room: room, text: text})
}

// ListRooms sends the current room names to id only.
func (c *Coordinator) ListRooms(id SessionID) {
	c.enqueue(listRoomsCmd{id: id})
}

// Join moves id out of its current room and into room, creating it if needed.
func (c *Coordinator) Join(id SessionID, room string) {
	c.enqueue(joinCmd{id: id, room: room})
}

// Register connects a new session with an outbound buffer of the given size
// and waits for its id.
func (c *Coordinator) Register(ctx context.Context, buffer int) (SessionID, <-chan Outbound, error) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Outbound, buffer)
	if !c.enqueue(connectCmd{reply: ch}) {
		return 0, nil, ErrStopped
	}

	select {
	case msg, ok := <-ch:
		if !ok || msg.Kind != OutboundID {
			return 0, nil, ErrStopped
		}
		return msg.ID, ch, nil
	case <-ctx.Done():
		// The connect may still land; make sure it does not linger.
		go func() {
			if msg, ok := <-ch; ok && msg.Kind == OutboundID {
				c.Disconnect(msg.ID)
			}
		}()
		return 0, nil, ctx.Err()
	}
}

// Snapshot returns a copy of the coordinator state taken between commands.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	reply := make(chan Snapshot, 1)
	if !c.enqueue(snapshotCmd{reply: reply}) {
		return Snapshot{}, ErrStopped
	}
	select {
	case s := <-reply:
		return s, nil
	case <-c.done:
		return Snapshot{}, ErrStopped
	case <-ctx.Done():
		return Snapshot{}, ctx.Err()
	}
}

// nextID draws from the id source until it gets a usable id.
func (c *Coordinator) nextID() SessionID {
	for {
		id := c.ids.Next()
		if id == 0 {
			continue
		}
		if _, taken := c.sessions[id]; taken {
			continue
		}
		return id
	}
}

// leaveAll removes id from every room and returns the rooms it left.
func (c *Coordinator) leaveAll(id SessionID) []string {
	var left []string
	for name, members := range c.rooms {
		if _, ok := members[id]; ok {
			delete(members, id)
			left = append(left, name)
		}
	}
	return left
}

// broadcast sends text to every member of room except skip.
func (c *Coordinator) broadcast(room, text string, skip SessionID) int {
	members, ok := c.rooms[room]
	if !ok {
		return 0
	}
	delivered := 0
	for id := range members {
		if id == skip {
			continue
		}
		if c.deliver(id, Outbound{Kind: OutboundText, Text: text}) {
			delivered++
		}
	}
	return delivered
}

// deliver pushes msg to one session without blocking. A full or closed
// channel drops the message.
func (c *Coordinator) deliver(id SessionID, msg Outbound) bool {
	ch, ok := c.sessions[id]
	if !ok {
		return false
	}
	if !trySend(ch, msg) {
		log.Printf("Dropping %s message for session %s: outbound channel unavailable", msg.Kind, id)
		return false
	}
	return true
}

func trySend(ch chan<- Outbound, msg Outbound) (sent bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Recovered from panic in trySend: %v", r)
			sent = false
		}
	}()

	select {
	case ch <- msg:
		return true
	default:
		return false
	}
}

func (c *Coordinator) roomNames() []string {
	names := make([]string, 0, len(c.rooms))
	for name := range c.rooms {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
