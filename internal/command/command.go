// Package command parses the textual chat commands shared by both front-ends
// and the console clients, and maps them onto socket frames.
package command

import (
	"errors"
	"strings"

	"github.com/Tyrowin/gochat-relay/internal/wire"
)

// Kind is one of the operations a peer can request.
type Kind int

const (
	Message Kind = iota
	List
	Join
	Name
)

func (k Kind) String() string {
	switch k {
	case List:
		return "list"
	case Join:
		return "join"
	case Name:
		return "name"
	default:
		return "message"
	}
}

// Command is a transport-independent request from a peer. Arg holds the room
// for Join, the display name for Name and the text for Message.
type Command struct {
	Kind Kind
	Arg  string
}

var (
	// ErrRoomRequired is returned for a join without a room name.
	ErrRoomRequired = errors.New("room name is required")
	// ErrNameRequired is returned for a name command without a name.
	ErrNameRequired = errors.New("name is required")
)

// UnknownError reports an unrecognised slash command.
type UnknownError struct {
	Input string
}

func (e *UnknownError) Error() string {
	return "unknown command: " + e.Input
}

// ErrorReply renders err the way peers see it.
func ErrorReply(err error) string {
	return "!!! " + err.Error()
}

// Parse turns one line of text into a Command. Lines starting with a slash
// are commands (/list, /join <room>, /name <name>); anything else is a chat
// message. Trailing line endings are ignored.
func Parse(input string) (Command, error) {
	line := strings.TrimRight(input, "\r\n")
	if !strings.HasPrefix(line, "/") {
		return Command{Kind: Message, Arg: line}, nil
	}

	verb, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch verb {
	case "/list":
		return Command{Kind: List}, nil
	case "/join":
		if arg == "" {
			return Command{}, ErrRoomRequired
		}
		return Command{Kind: Join, Arg: arg}, nil
	case "/name":
		if arg == "" {
			return Command{}, ErrNameRequired
		}
		return Command{Kind: Name, Arg: arg}, nil
	default:
		return Command{}, &UnknownError{Input: line}
	}
}

// Request is the socket frame carrying c.
func (c Command) Request() wire.Request {
	switch c.Kind {
	case List:
		return wire.Request{Kind: wire.RequestList}
	case Join:
		return wire.Request{Kind: wire.RequestJoin, Data: c.Arg}
	case Name:
		return wire.Request{Kind: wire.RequestName, Data: c.Arg}
	default:
		return wire.Request{Kind: wire.RequestMessage, Data: c.Arg}
	}
}

// FromRequest maps a socket frame onto a Command. Ping is not a command and
// reports false.
func FromRequest(req wire.Request) (Command, bool) {
	switch req.Kind {
	case wire.RequestList:
		return Command{Kind: List}, true
	case wire.RequestJoin:
		return Command{Kind: Join, Arg: strings.TrimSpace(req.Data)}, true
	case wire.RequestName:
		return Command{Kind: Name, Arg: strings.TrimSpace(req.Data)}, true
	case wire.RequestMessage:
		return Command{Kind: Message, Arg: strings.TrimRight(req.Data, "\r\n")}, true
	default:
		return Command{}, false
	}
}
