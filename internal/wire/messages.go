package wire

import (
	"encoding/json"
	"fmt"
)

// RequestKind names a frame sent by a peer.
type RequestKind string

const (
	RequestList    RequestKind = "list"
	RequestJoin    RequestKind = "join"
	RequestName    RequestKind = "name"
	RequestMessage RequestKind = "message"
	RequestPing    RequestKind = "ping"
)

// Request is a peer-to-server frame. Data carries the room, name or message
// text and is empty for list and ping.
type Request struct {
	Kind RequestKind
	Data string
}

type envelope struct {
	Cmd  string          `json:"cmd"`
	Data json.RawMessage `json:"data,omitempty"`
}

func (r Request) MarshalJSON() ([]byte, error) {
	env := envelope{Cmd: string(r.Kind)}
	switch r.Kind {
	case RequestJoin, RequestName, RequestMessage:
		data, err := json.Marshal(r.Data)
		if err != nil {
			return nil, err
		}
		env.Data = data
	case RequestList, RequestPing:
	default:
		return nil, fmt.Errorf("unknown request kind %q", r.Kind)
	}
	return json.Marshal(env)
}

func (r *Request) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	kind := RequestKind(env.Cmd)
	switch kind {
	case RequestList, RequestPing:
		*r = Request{Kind: kind}
	case RequestJoin, RequestName, RequestMessage:
		var data string
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &data); err != nil {
				return fmt.Errorf("%s payload: %w", kind, err)
			}
		}
		*r = Request{Kind: kind, Data: data}
	default:
		return fmt.Errorf("unknown request kind %q", env.Cmd)
	}
	return nil
}

// ResponseKind names a frame sent by the server.
type ResponseKind string

const (
	ResponsePing    ResponseKind = "ping"
	ResponseRooms   ResponseKind = "rooms"
	ResponseJoined  ResponseKind = "joined"
	ResponseMessage ResponseKind = "message"
)

// Response is a server-to-peer frame. Text is used by joined and message,
// Rooms by rooms.
type Response struct {
	Kind  ResponseKind
	Text  string
	Rooms []string
}

func (r Response) MarshalJSON() ([]byte, error) {
	env := envelope{Cmd: string(r.Kind)}
	var (
		data []byte
		err  error
	)
	switch r.Kind {
	case ResponsePing:
	case ResponseRooms:
		rooms := r.Rooms
		if rooms == nil {
			rooms = []string{}
		}
		data, err = json.Marshal(rooms)
	case ResponseJoined, ResponseMessage:
		data, err = json.Marshal(r.Text)
	default:
		return nil, fmt.Errorf("unknown response kind %q", r.Kind)
	}
	if err != nil {
		return nil, err
	}
	env.Data = data
	return json.Marshal(env)
}

func (r *Response) UnmarshalJSON(b []byte) error {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return err
	}

	kind := ResponseKind(env.Cmd)
	switch kind {
	case ResponsePing:
		*r = Response{Kind: kind}
	case ResponseRooms:
		var rooms []string
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &rooms); err != nil {
				return fmt.Errorf("rooms payload: %w", err)
			}
		}
		*r = Response{Kind: kind, Rooms: rooms}
	case ResponseJoined, ResponseMessage:
		var text string
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &text); err != nil {
				return fmt.Errorf("%s payload: %w", kind, err)
			}
		}
		*r = Response{Kind: kind, Text: text}
	default:
		return fmt.Errorf("unknown response kind %q", env.Cmd)
	}
	return nil
}

// roomsOverhead is the body size of a rooms frame with no rooms in it.
var roomsOverhead = len(`{"cmd":"rooms","data":[]}`)

// SplitRooms groups rooms so that each group fits in one rooms frame. A name
// too long for any frame still gets a group of its own. The result always
// holds at least one group, so an empty list still produces a frame.
func SplitRooms(rooms []string) [][]string {
	var (
		groups  [][]string
		current []string
		size    = roomsOverhead
	)
	for _, room := range rooms {
		encoded, _ := json.Marshal(room)
		n := len(encoded)
		if len(current) > 0 {
			n++ // comma
			if size+n > MaxFrameSize {
				groups = append(groups, current)
				current, size = nil, roomsOverhead
				n--
			}
		}
		current = append(current, room)
		size += n
	}
	if len(current) > 0 || len(groups) == 0 {
		groups = append(groups, current)
	}
	return groups
}
