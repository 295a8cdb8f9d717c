package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/Tyrowin/gochat-relay/internal/command"
	"github.com/Tyrowin/gochat-relay/internal/wire"
)

// TCP connects to the socket front-end at addr and runs an interactive
// session. Commands are parsed locally, so a bad command is reported without
// reaching the server. It returns nil when the input ends, ctx is cancelled or
// the server closes the connection.
func TCP(ctx context.Context, addr string, in io.Reader, out io.Writer, opts Options) error {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}

	con := &console{w: out}
	con.printf("Connected to %s", conn.RemoteAddr())

	t := &tcpTransport{conn: conn, enc: wire.NewEncoder(conn), out: con}
	return run(ctx, t, in, con, opts.pingInterval())
}

type tcpTransport struct {
	conn net.Conn
	enc  *wire.Encoder
	out  *console
}

func (t *tcpTransport) send(line string) error {
	cmd, err := command.Parse(line)
	if err != nil {
		t.out.println(command.ErrorReply(err))
		return nil
	}
	if cmd.Kind == command.Message && cmd.Arg == "" {
		return nil
	}
	return t.enc.Encode(cmd.Request())
}

func (t *tcpTransport) ping() error {
	return t.enc.Encode(wire.Request{Kind: wire.RequestPing})
}

// receive prints server frames. Server pings are not answered; the client's
// own pings already keep it alive.
func (t *tcpTransport) receive() error {
	dec := wire.NewDecoder(t.conn, 0)
	for {
		var resp wire.Response
		if err := dec.Decode(&resp); err != nil {
			if wire.IsRecoverable(err) {
				t.out.println(command.ErrorReply(err))
				continue
			}
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return err
		}

		switch resp.Kind {
		case wire.ResponsePing:
		case wire.ResponseRooms:
			t.out.printf("Available rooms: %s", strings.Join(resp.Rooms, ", "))
		case wire.ResponseJoined:
			t.out.printf("You joined %s room", resp.Text)
		case wire.ResponseMessage:
			t.out.println(resp.Text)
		}
	}
}

func (t *tcpTransport) close() error {
	return t.conn.Close()
}
