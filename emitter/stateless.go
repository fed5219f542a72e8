package emitter

import (
	"context"
	"fmt"

	"github.com/avrorpc/go-avrorpc/internal/events"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/logging"
)

// ChannelFactory opens a fresh channel for one stateless call.
type ChannelFactory func(context.Context) (Channel, error)

// Stateless is a one-shot-per-call emitter: every Call opens a new channel
// via its factory (retrying per RetryConfig), performs a full handshake,
// makes exactly one call, and closes the channel — there is no persistent
// session to multiplex onto, so no read loop or pending-request table is
// needed, unlike Stateful.
type Stateless struct {
	p       *protocol.Protocol
	factory ChannelFactory
	retry   RetryConfig
}

// NewStateless returns a Stateless emitter that dials channels with
// factory, retried per retryConfig.
func NewStateless(p *protocol.Protocol, factory ChannelFactory, retryConfig RetryConfig) *Stateless {
	return &Stateless{p: p, factory: factory, retry: retryConfig}
}

// Call dials a fresh channel, negotiates a handshake, and makes one call.
func (e *Stateless) Call(ctx context.Context, messageName string, req any) (any, error) {
	channel, err := dialWithRetry(ctx, e.factory, e.retry)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrTransport, err)
	}
	defer channel.Close()

	conn, err := newWireConn(channel)
	if err != nil {
		return nil, err
	}

	h, err := negotiateHandshake(conn, e.p)
	if err != nil {
		return nil, err
	}

	sess := newSession()
	e.p.Events().Publish(events.Event{Kind: events.Handshake, SessionID: sess.ID()})

	msg, m, err := encodeCall(e.p, 1, messageName, req)
	if err != nil {
		return nil, err
	}

	if err := conn.send(msg); err != nil {
		e.p.Events().Publish(events.Event{Kind: events.Error, SessionID: sess.ID(), Err: err})
		return nil, err
	}

	if m.OneWay() {
		e.p.Events().Publish(events.Event{Kind: events.EndOfTransmission, SessionID: sess.ID()})
		return nil, nil
	}

	raw, err := conn.recv()
	if err != nil {
		e.p.Events().Publish(events.Event{Kind: events.Error, SessionID: sess.ID(), Err: err})
		return nil, err
	}

	_, isError, payload, err := wire.DecodeCallResponse(raw)
	if err != nil {
		e.p.Log(logging.Warn, "stateless emitter %s: %v", sess.ID(), err)
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidResponse, err)
	}

	value, callErr := decodePayload(e.p, h.PeerFingerprint(), m, isError, payload)
	e.p.Events().Publish(events.Event{Kind: events.EndOfTransmission, SessionID: sess.ID()})
	return value, callErr
}
