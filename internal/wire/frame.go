// Package wire implements the framed byte-stream transport that carries
// Avro RPC messages between two peers: splitting a logical message into
// length-prefixed frames on the way out, and reassembling frames into
// logical messages on the way in.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const frameHeaderSize = 4

// maxConsecutiveEmptyReads bounds how many zero-byte reads DecodeMessage
// will tolerate from the underlying stream before giving up. Copied from
// the technique bufio.Reader uses internally.
const maxConsecutiveEmptyReads = 100

var errNegativeRead = errors.New("avrorpc: wire: reader returned negative count from Read")
var errNoProgress = errors.New("avrorpc: wire: multiple Read calls returned no data or error")

// ErrUnexpectedEndOfStream is returned when the underlying stream ends
// without a terminating zero-length frame, or when a FrameDecoder
// constructed with NewStrictFrameDecoder observes an empty stream.
var ErrUnexpectedEndOfStream = errors.New("avrorpc: wire: unexpected end of stream")

// FrameEncoder splits logical messages into length-prefixed frames and
// writes them to an underlying io.Writer, terminating each message with a
// zero-length frame.
type FrameEncoder struct {
	w         io.Writer
	frameSize int
}

// NewFrameEncoder returns a FrameEncoder that writes frames of at most
// frameSize payload bytes to w. frameSize must be positive.
func NewFrameEncoder(w io.Writer, frameSize int) (*FrameEncoder, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("avrorpc: wire: frame size must be positive, got %d", frameSize)
	}

	return &FrameEncoder{w: w, frameSize: frameSize}, nil
}

// EncodeMessage writes message as a sequence of frames terminated by a
// zero-length frame.
func (e *FrameEncoder) EncodeMessage(message []byte) error {
	for len(message) > 0 {
		n := e.frameSize
		if n > len(message) {
			n = len(message)
		}

		if err := e.writeFrame(message[:n]); err != nil {
			return err
		}

		message = message[n:]
	}

	return e.writeFrame(nil)
}

func (e *FrameEncoder) writeFrame(payload []byte) error {
	var header [frameHeaderSize]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := e.w.Write(header[:]); err != nil {
		return fmt.Errorf("avrorpc: wire: write frame header: %w", err)
	}

	if len(payload) == 0 {
		return nil
	}

	if _, err := e.w.Write(payload); err != nil {
		return fmt.Errorf("avrorpc: wire: write frame payload: %w", err)
	}

	return nil
}

// FrameDecoder reassembles frames read from an underlying io.Reader into
// complete messages.
type FrameDecoder struct {
	r           io.Reader
	strictEmpty bool
}

// NewFrameDecoder returns a FrameDecoder reading frames from r.
func NewFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r}
}

// NewStrictFrameDecoder returns a FrameDecoder that treats an entirely
// empty stream (EOF before a single byte has been read) as
// ErrUnexpectedEndOfStream instead of a clean io.EOF.
func NewStrictFrameDecoder(r io.Reader) *FrameDecoder {
	return &FrameDecoder{r: r, strictEmpty: true}
}

// DecodeMessage reads frames until a zero-length terminator and returns the
// concatenated payload as one message.
//
// It returns io.EOF when the stream ends cleanly between messages, i.e.
// before any byte of the next message's first frame has been read, and
// ErrUnexpectedEndOfStream when the stream ends in the middle of a message
// (a non-zero-terminated frame sequence).
func (d *FrameDecoder) DecodeMessage() ([]byte, error) {
	var parts [][]byte
	var size int

	for {
		var header [frameHeaderSize]byte
		n, err := d.readFull(header[:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(parts) == 0 && n == 0 {
					if d.strictEmpty {
						return nil, ErrUnexpectedEndOfStream
					}
					return nil, io.EOF
				}
				return nil, ErrUnexpectedEndOfStream
			}
			return nil, err
		}

		length := binary.BigEndian.Uint32(header[:])
		if length == 0 {
			break
		}

		payload := make([]byte, length)
		if _, err := d.readFull(payload); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, ErrUnexpectedEndOfStream
			}
			return nil, err
		}

		parts = append(parts, payload)
		size += len(payload)
	}

	message := make([]byte, 0, size)
	for _, part := range parts {
		message = append(message, part...)
	}

	return message, nil
}

// readFull fills buf completely, returning the number of bytes actually
// written to buf even when it returns an error early.
func (d *FrameDecoder) readFull(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := d.readSome(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// readSome tries to fill buf, performing at most one successful Read.
func (d *FrameDecoder) readSome(buf []byte) (int, error) {
	for i := maxConsecutiveEmptyReads; i > 0; i-- {
		n, err := d.r.Read(buf)
		if n < 0 {
			panic(errNegativeRead)
		}
		if err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, errNoProgress
}
