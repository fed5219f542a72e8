package emitter

import (
	"fmt"
	"io"
	"sync"

	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
)

// Channel is the byte-oriented duplex connection an emitter negotiates a
// handshake and exchanges calls over — typically a net.Conn, but never
// required to be one.
type Channel = io.ReadWriteCloser

// defaultFrameSize is a conservative buffer size that keeps a single frame
// well within common TCP segment sizes without fragmenting large messages
// too finely.
const defaultFrameSize = 4096

// wireConn pairs a Channel with the frame codec built on top of it and a
// write mutex, since concurrent Calls on one session send concurrently.
type wireConn struct {
	channel Channel
	dec     *wire.FrameDecoder

	writeMu sync.Mutex
	enc     *wire.FrameEncoder
}

func newWireConn(ch Channel) (*wireConn, error) {
	enc, err := wire.NewFrameEncoder(ch, defaultFrameSize)
	if err != nil {
		return nil, err
	}
	return &wireConn{channel: ch, enc: enc, dec: wire.NewFrameDecoder(ch)}, nil
}

func (c *wireConn) send(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.enc.EncodeMessage(msg); err != nil {
		return fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	return nil
}

func (c *wireConn) recv() ([]byte, error) {
	msg, err := c.dec.DecodeMessage()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	return msg, nil
}

func (c *wireConn) Close() error { return c.channel.Close() }

// negotiateHandshake drives protocol.NewEmitterHandshake to completion over
// conn, exchanging one framed handshake message per round trip.
func negotiateHandshake(conn *wireConn, p *protocol.Protocol) (*protocol.EmitterHandshake, error) {
	h := protocol.NewEmitterHandshake(p)

	for !h.Done() {
		req := h.NextRequest()
		if err := conn.send(wire.EncodeHandshakeRequest(req)); err != nil {
			return nil, fmt.Errorf("avrorpc: emitter: send handshake request: %w", err)
		}

		raw, err := conn.recv()
		if err != nil {
			return nil, fmt.Errorf("avrorpc: emitter: receive handshake response: %w", err)
		}

		resp, err := wire.DecodeHandshakeResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("avrorpc: emitter: decode handshake response: %w", err)
		}

		if _, err := h.Accept(resp); err != nil {
			return nil, err
		}
	}

	return h, nil
}
