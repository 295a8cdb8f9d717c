// Package relay defines the coordinator that owns every session and room in
// the chat system and the message types it pushes back to sessions.
package relay

import "strconv"

// DefaultRoom is the room every session joins on connect. It exists before
// any session connects.
const DefaultRoom = "Main"

// System notices broadcast by the coordinator.
const (
	NoticeJoined       = "Someone joined"
	NoticeConnected    = "Someone connected"
	NoticeDisconnected = "Someone disconnected"
)

// SessionID identifies one connected peer for the lifetime of the process.
type SessionID uint64

func (id SessionID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// OutboundKind tells a front-end how to render an Outbound message.
type OutboundKind int

const (
	// OutboundID carries the id assigned by Connect. It is always the first
	// item on a session's outbound channel.
	OutboundID OutboundKind = iota
	// OutboundText is a chat message or a system notice.
	OutboundText
	// OutboundRooms answers ListRooms.
	OutboundRooms
	// OutboundJoined acknowledges a Join to the joiner.
	OutboundJoined
)

func (k OutboundKind) String() string {
	switch k {
	case OutboundID:
		return "id"
	case OutboundText:
		return "text"
	case OutboundRooms:
		return "rooms"
	case OutboundJoined:
		return "joined"
	default:
		return "unknown"
	}
}

// Outbound is a message pushed by the coordinator to a single session.
type Outbound struct {
	Kind  OutboundKind
	ID    SessionID
	Text  string
	Rooms []string
}
