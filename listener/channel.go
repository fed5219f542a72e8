// Package listener implements the server side of an Avro RPC session: it
// accepts a handshake, decodes incoming calls, dispatches them to handlers
// registered on a protocol.Protocol, and writes framed replies. Stateful
// mirrors the emitter package's persistent session; Stateless serves
// exactly one call per accepted channel.
package listener

import (
	"fmt"
	"io"
	"sync"

	"github.com/avrorpc/go-avrorpc/internal/events"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/logging"
)

// Channel is the byte-oriented duplex connection a listener negotiates a
// handshake and serves calls over.
type Channel = io.ReadWriteCloser

const defaultFrameSize = 4096

// wireConn pairs a Channel with its frame codec and a write mutex, since
// multiple handler goroutines may write replies concurrently.
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

// acceptHandshake reads and answers handshake requests, one Evaluate call
// per request (per protocol.ListenerHandshake's contract), looping until a
// response other than NONE has been sent. Unlike the emitter side, the listener never initiates a round
// trip: it only ever answers what it's sent.
//
// An undecodable request is not fatal: it can't be attributed to a
// particular peer, so the session answers NONE with no server data,
// publishes an invalidity-flagged handshake event, and keeps listening for
// a well-formed retry.
func acceptHandshake(conn *wireConn, p *protocol.Protocol, sess *session) (*protocol.ListenerHandshake, [16]byte, error) {
	h := protocol.NewListenerHandshake(p)

	for {
		raw, err := conn.recv()
		if err != nil {
			return nil, [16]byte{}, fmt.Errorf("avrorpc: listener: receive handshake request: %w", err)
		}

		req, err := wire.DecodeHandshakeRequest(raw)
		if err != nil {
			p.Events().Publish(events.Event{Kind: events.Handshake, SessionID: sess.ID(), Invalid: true})
			p.Log(logging.Warn, "listener %s: undecodable handshake request: %v", sess.ID(), err)

			if sendErr := conn.send(wire.EncodeHandshakeResponse(wire.HandshakeResponse{Match: wire.MatchNone})); sendErr != nil {
				return nil, [16]byte{}, fmt.Errorf("avrorpc: listener: send handshake response: %w", sendErr)
			}
			continue
		}

		resp, peerFingerprint, err := h.Evaluate(req)
		if err != nil {
			return nil, [16]byte{}, err
		}

		if err := conn.send(wire.EncodeHandshakeResponse(resp)); err != nil {
			return nil, [16]byte{}, fmt.Errorf("avrorpc: listener: send handshake response: %w", err)
		}

		if resp.Match != wire.MatchNone {
			return h, peerFingerprint, nil
		}
	}
}
