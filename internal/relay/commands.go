package relay

import "log"

// command is one unit of work for the coordinator loop.
type command interface {
	apply(c *Coordinator)
}

type connectCmd struct {
	reply chan<- Outbound
}

func (cmd connectCmd) apply(c *Coordinator) {
	if cmd.reply == nil {
		log.Printf("Received connect without reply channel; skipping")
		return
	}

	// Notify before inserting so the newcomer does not hear about itself.
	c.broadcast(DefaultRoom, NoticeJoined, 0)

	id := c.nextID()
	c.sessions[id] = cmd.reply
	c.rooms[DefaultRoom][id] = struct{}{}
	log.Printf("Session %s connected. Total sessions: %d", id, len(c.sessions))

	c.deliver(id, Outbound{Kind: OutboundID, ID: id})
}

type disconnectCmd struct {
	id SessionID
}

func (cmd disconnectCmd) apply(c *Coordinator) {
	ch, ok := c.sessions[cmd.id]
	if !ok {
		return
	}
	delete(c.sessions, cmd.id)
	left := c.leaveAll(cmd.id)
	close(ch)
	log.Printf("Session %s disconnected. Total sessions: %d", cmd.id, len(c.sessions))

	for _, room := range left {
		c.broadcast(room, NoticeDisconnected, 0)
	}
}

type messageCmd struct {
	id   SessionID
	room string
	text string
}

func (cmd messageCmd) apply(c *Coordinator) {
	c.broadcast(cmd.room, cmd.text, cmd.id)
}

type listRoomsCmd struct {
	id SessionID
}

func (cmd listRoomsCmd) apply(c *Coordinator) {
	c.deliver(cmd.id, Outbound{Kind: OutboundRooms, Rooms: c.roomNames()})
}

type joinCmd struct {
	id   SessionID
	room string
}

func (cmd joinCmd) apply(c *Coordinator) {
	if _, ok := c.sessions[cmd.id]; !ok {
		return
	}

	for _, room := range c.leaveAll(cmd.id) {
		c.broadcast(room, NoticeDisconnected, 0)
	}

	members, ok := c.rooms[cmd.room]
	if !ok {
		members = make(map[SessionID]struct{})
		c.rooms[cmd.room] = members
	}
	members[cmd.id] = struct{}{}
	log.Printf("Session %s joined room %q", cmd.id, cmd.room)

	c.broadcast(cmd.room, NoticeConnected, cmd.id)
	c.deliver(cmd.id, Outbound{Kind: OutboundJoined, Text: cmd.room})
}

type snapshotCmd struct {
	reply chan<- Snapshot
}

func (cmd snapshotCmd) apply(c *Coordinator) {
	cmd.reply <- c.snapshot()
}
