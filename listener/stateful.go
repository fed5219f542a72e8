package listener

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/avrorpc/go-avrorpc/internal/events"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/logging"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// Stateful is a persistent listener session: one handshake, then any
// number of inbound calls, each dispatched to its own goroutine (bounded by
// an optional semaphore) so a slow handler never stalls the read loop that
// decodes the next request. Mirrors emitter.Stateful's lifecycle.
type Stateful struct {
	p               *protocol.Protocol
	conn            *wireConn
	session         *session
	peerFingerprint [16]byte

	sem *semaphore.Weighted

	mu       sync.Mutex
	stopped  bool
	handlers errgroup.Group
	inFlight int64

	closeOnce sync.Once
}

// NewStateful accepts one handshake over channel and returns a ready
// Stateful listener. The caller owns channel's lifetime thereafter through
// the returned listener's Destroy method.
func NewStateful(p *protocol.Protocol, channel Channel, opts ...Option) (*Stateful, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	conn, err := newWireConn(channel)
	if err != nil {
		return nil, err
	}

	sess := newSession()
	_, peerFingerprint, err := acceptHandshake(conn, p, sess)
	if err != nil {
		conn.Close()
		return nil, err
	}

	l := &Stateful{
		p:               p,
		conn:            conn,
		session:         sess,
		peerFingerprint: peerFingerprint,
	}
	if o.maxConcurrentHandlers > 0 {
		l.sem = semaphore.NewWeighted(o.maxConcurrentHandlers)
	}

	p.Events().Publish(events.Event{Kind: events.Handshake, SessionID: l.session.ID()})
	p.Log(logging.Debug, "listener %s: handshake complete", l.session.ID())

	go l.readLoop()

	return l, nil
}

// Session returns the listener's session handle.
func (l *Stateful) Session() protocol.Session { return l.session }

func (l *Stateful) readLoop() {
	for {
		raw, err := l.conn.recv()
		if err != nil {
			l.end(err)
			return
		}

		id, messageName, params, err := wire.DecodeCallRequest(raw)
		if err != nil {
			l.p.Log(logging.Warn, "listener %s: %v", l.session.ID(), err)
			continue
		}

		l.mu.Lock()
		stopped := l.stopped
		l.mu.Unlock()
		if stopped {
			continue
		}

		l.spawn(id, messageName, params)
	}
}

func (l *Stateful) spawn(id uint64, messageName string, params []byte) {
	if l.sem != nil {
		if err := l.sem.Acquire(context.Background(), 1); err != nil {
			l.p.Log(logging.Warn, "listener %s: acquire handler slot: %v", l.session.ID(), err)
			return
		}
	}

	atomic.AddInt64(&l.inFlight, 1)
	l.handlers.Go(func() error {
		defer atomic.AddInt64(&l.inFlight, -1)
		if l.sem != nil {
			defer l.sem.Release(1)
		}
		dispatch(l.p, l.conn, l.session, l.peerFingerprint, id, messageName, params)
		return nil
	})
}

// end fires once, whether triggered by a transport error on the read loop
// or by Destroy: it stops accepting new requests and publishes the
// session-ending events.
func (l *Stateful) end(err error) {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.stopped = true
		l.mu.Unlock()

		if err != nil {
			l.p.Events().Publish(events.Event{Kind: events.Error, SessionID: l.session.ID(), Err: err})
			l.p.Log(logging.Warn, "listener %s: %v", l.session.ID(), err)
		}
		pending := int(atomic.LoadInt64(&l.inFlight))
		l.p.Events().Publish(events.Event{Kind: events.EndOfTransmission, SessionID: l.session.ID(), PendingCount: pending})
	})
}

// Destroy stops accepting new requests, waits for every outstanding
// handler goroutine to finish writing its reply, then closes the channel.
func (l *Stateful) Destroy() error {
	l.mu.Lock()
	l.stopped = true
	l.mu.Unlock()

	l.handlers.Wait()
	l.end(nil)
	return l.conn.Close()
}
