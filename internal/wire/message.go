// Package wire defines the message exchanged between machines and its
// newline-delimited JSON framing.
//
// Every message is one self-describing record per line:
//
//	{"sender":2,"clock":10}\n
package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrMalformed reports a line that is not a valid message record.
var ErrMalformed = errors.New("malformed message")

// MaxLineSize bounds one framed line, newline included. A real record is
// well under 64 bytes.
const MaxLineSize = 4096

// Message is the payload of a send event: the sender's id and its logical
// clock value at send time.
type Message struct {
	Sender int   `json:"sender"`
	Clock  int64 `json:"clock"`
}

// record mirrors Message with pointer fields so missing keys are detectable.
type record struct {
	Sender *int   `json:"sender"`
	Clock  *int64 `json:"clock"`
}

// Encode returns the framed form of m, including the trailing newline.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a single line (with or without its trailing newline).
// Both fields are required; sender must be positive and clock non-negative.
func Decode(line []byte) (Message, error) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Message{}, fmt.Errorf("%w: empty line", ErrMalformed)
	}

	var r record
	if err := json.Unmarshal(line, &r); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if r.Sender == nil {
		return Message{}, fmt.Errorf("%w: missing sender", ErrMalformed)
	}
	if r.Clock == nil {
		return Message{}, fmt.Errorf("%w: missing clock", ErrMalformed)
	}
	if *r.Sender <= 0 {
		return Message{}, fmt.Errorf("%w: sender %d is not a machine id", ErrMalformed, *r.Sender)
	}
	if *r.Clock < 0 {
		return Message{}, fmt.Errorf("%w: negative clock %d", ErrMalformed, *r.Clock)
	}
	return Message{Sender: *r.Sender, Clock: *r.Clock}, nil
}

// Reader assembles complete lines from a stream and decodes them.
type Reader struct {
	br       *bufio.Reader
	skipping bool // inside an overlong line already reported
}

// NewReader wraps r. Partial reads are buffered until a newline arrives.
func NewReader(r io.Reader) *Reader {
	return &Reader{br: bufio.NewReaderSize(r, MaxLineSize)}
}

// Next returns the next message.
//
// A line that fails to decode yields an error wrapping ErrMalformed; the
// line is consumed and the caller may keep reading. A line longer than
// MaxLineSize is reported once as malformed and the rest of it is skipped.
// Any other error comes from the underlying stream and ends it. A trailing
// fragment without a newline at EOF is discarded.
func (r *Reader) Next() (Message, error) {
	for {
		line, err := r.br.ReadSlice('\n')
		if errors.Is(err, bufio.ErrBufferFull) {
			if r.skipping {
				continue
			}
			r.skipping = true
			return Message{}, fmt.Errorf("%w: line longer than %d bytes", ErrMalformed, MaxLineSize)
		}
		if err != nil {
			return Message{}, err
		}
		if r.skipping {
			// Tail of the overlong line.
			r.skipping = false
			continue
		}
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return Decode(line)
	}
}
