package relay

import (
	"fmt"
	"sort"
)

// Snapshot is a point-in-time copy of the coordinator state.
type Snapshot struct {
	Sessions []SessionID
	Rooms    map[string][]SessionID
}

func (c *Coordinator) snapshot() Snapshot {
	s := Snapshot{
		Sessions: make([]SessionID, 0, len(c.sessions)),
		Rooms:    make(map[string][]SessionID, len(c.rooms)),
	}
	for id := range c.sessions {
		s.Sessions = append(s.Sessions, id)
	}
	sortIDs(s.Sessions)

	for name, members := range c.rooms {
		ids := make([]SessionID, 0, len(members))
		for id := range members {
			ids = append(ids, id)
		}
		sortIDs(ids)
		s.Rooms[name] = ids
	}
	return s
}

// RoomOf returns the room id belongs to, if any.
func (s Snapshot) RoomOf(id SessionID) (string, bool) {
	for name, members := range s.Rooms {
		for _, m := range members {
			if m == id {
				return name, true
			}
		}
	}
	return "", false
}

// Validate checks that every room member is a known session and that no
// session sits in more than one room.
func (s Snapshot) Validate() error {
	known := make(map[SessionID]bool, len(s.Sessions))
	for _, id := range s.Sessions {
		known[id] = true
	}

	seen := make(map[SessionID]string)
	for name, members := range s.Rooms {
		for _, id := range members {
			if !known[id] {
				return fmt.Errorf("room %q lists unknown session %s", name, id)
			}
			if other, dup := seen[id]; dup {
				return fmt.Errorf("session %s is in rooms %q and %q", id, other, name)
			}
			seen[id] = name
		}
	}
	return nil
}

func sortIDs(ids []SessionID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}
