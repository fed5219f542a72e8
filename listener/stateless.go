package listener

import (
	"fmt"

	"github.com/avrorpc/go-avrorpc/internal/events"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
)

// Stateless serves exactly one handshake plus one call per accepted
// channel, then closes it — the listener-side counterpart of
// emitter.Stateless. Rather than driving a callback-style
// `(onWritable) -> readable` factory itself, it passively accepts whatever
// channel a caller's own accept loop (net.Listener.Accept, or any other
// Channel source) hands it, so Stateless exposes Accept instead of dialing
// anything itself.
type Stateless struct {
	p    *protocol.Protocol
	opts *options
}

// NewStateless returns a Stateless listener bound to p.
func NewStateless(p *protocol.Protocol, opts ...Option) *Stateless {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	return &Stateless{p: p, opts: o}
}

// Accept takes ownership of channel: it negotiates a handshake, serves
// exactly one call (dispatched synchronously, since there is only ever one
// in flight on this channel), and closes channel before returning.
func (l *Stateless) Accept(channel Channel) error {
	defer channel.Close()

	conn, err := newWireConn(channel)
	if err != nil {
		return err
	}

	sess := newSession()
	_, peerFingerprint, err := acceptHandshake(conn, l.p, sess)
	if err != nil {
		return err
	}

	l.p.Events().Publish(events.Event{Kind: events.Handshake, SessionID: sess.ID()})

	raw, err := conn.recv()
	if err != nil {
		l.p.Events().Publish(events.Event{Kind: events.Error, SessionID: sess.ID(), Err: err})
		l.p.Events().Publish(events.Event{Kind: events.EndOfTransmission, SessionID: sess.ID()})
		return fmt.Errorf("avrorpc: listener: receive call request: %w", err)
	}

	id, messageName, params, err := wire.DecodeCallRequest(raw)
	if err != nil {
		l.p.Events().Publish(events.Event{Kind: events.Error, SessionID: sess.ID(), Err: err})
		l.p.Events().Publish(events.Event{Kind: events.EndOfTransmission, SessionID: sess.ID()})
		return fmt.Errorf("avrorpc: listener: decode call request: %w", err)
	}

	dispatch(l.p, conn, sess, peerFingerprint, id, messageName, params)

	l.p.Events().Publish(events.Event{Kind: events.EndOfTransmission, SessionID: sess.ID()})
	return nil
}
