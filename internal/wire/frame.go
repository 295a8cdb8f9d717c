// Package wire implements the framed protocol spoken by the raw socket
// front-end. Each frame is a two-byte big-endian length followed by a JSON
// body of the form {"cmd": kind, "data": payload}.
package wire

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
)

// MaxFrameSize is the largest body a two-byte length prefix can describe.
const MaxFrameSize = 1<<16 - 1

const headerSize = 2

// ErrFrameTooLarge is returned when a frame body exceeds the allowed size.
var ErrFrameTooLarge = errors.New("wire: frame too large")

// Encoder writes frames. It is safe for concurrent use so that a write pump,
// a heartbeat and a read loop can share one connection.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode marshals v and writes it as one frame.
func (e *Encoder) Encode(v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	if len(body) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	buf := make([]byte, headerSize+len(body))
	binary.BigEndian.PutUint16(buf, uint16(len(body)))
	copy(buf[headerSize:], body)

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Decoder reads frames.
type Decoder struct {
	r   *bufio.Reader
	max int
}

// NewDecoder returns a Decoder reading from r. Bodies longer than max bytes
// are rejected; max <= 0 means MaxFrameSize.
func NewDecoder(r io.Reader, max int) *Decoder {
	if max <= 0 || max > MaxFrameSize {
		max = MaxFrameSize
	}
	return &Decoder{r: bufio.NewReader(r), max: max}
}

// ReadFrame returns the next raw frame body. An oversized frame is consumed
// and reported as ErrFrameTooLarge so the stream stays aligned.
func (d *Decoder) ReadFrame() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(d.r, header[:]); err != nil {
		return nil, err
	}
	n := int(binary.BigEndian.Uint16(header[:]))
	if n > d.max {
		if _, err := d.r.Discard(n); err != nil {
			return nil, err
		}
		return nil, ErrFrameTooLarge
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(d.r, body); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return body, nil
}

// Decode reads the next frame into v. A body that fails to parse returns a
// *SyntaxError; the stream is still usable afterwards.
func (d *Decoder) Decode(v any) error {
	body, err := d.ReadFrame()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return &SyntaxError{Body: body, Err: err}
	}
	return nil
}

// SyntaxError reports a frame whose body could not be decoded.
type SyntaxError struct {
	Body []byte
	Err  error
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("malformed frame: %v", e.Err)
}

func (e *SyntaxError) Unwrap() error {
	return e.Err
}

// IsRecoverable reports whether err leaves the stream usable, so the
// connection can answer the peer and keep reading.
func IsRecoverable(err error) bool {
	var syntaxErr *SyntaxError
	return errors.Is(err, ErrFrameTooLarge) || errors.As(err, &syntaxErr)
}
