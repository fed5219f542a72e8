package emitter

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/avrorpc/go-avrorpc/internal/events"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/logging"
)

// Stateful is a persistent, duplex emitter session: one handshake at
// connection start, then any number of concurrent calls multiplexed over
// the same channel by correlation id, decoded by a single background read
// loop goroutine — a cooperative single-logical-thread-per-session model
// that can handle many outstanding requests at once instead of one at a
// time.
type Stateful struct {
	p               *protocol.Protocol
	conn            *wireConn
	session         *session
	peerFingerprint [16]byte

	nextID uint64

	mu        sync.Mutex
	stopped   bool
	pending   map[uint64]pendingEntry
	drained   *sync.Cond
	closed    chan struct{}
	closeOnce sync.Once
	closeErr  error
}

type pendingEntry struct {
	message *protocol.Message
	result  chan callResult
}

// NewStateful negotiates a handshake over channel and returns a ready
// Stateful emitter. The caller owns channel's lifetime thereafter through
// the returned emitter's Destroy and DestroyNow methods.
func NewStateful(p *protocol.Protocol, channel Channel) (*Stateful, error) {
	conn, err := newWireConn(channel)
	if err != nil {
		return nil, err
	}

	h, err := negotiateHandshake(conn, p)
	if err != nil {
		conn.Close()
		return nil, err
	}

	e := &Stateful{
		p:               p,
		conn:            conn,
		session:         newSession(),
		peerFingerprint: h.PeerFingerprint(),
		pending:         make(map[uint64]pendingEntry),
		closed:          make(chan struct{}),
	}
	e.drained = sync.NewCond(&e.mu)

	p.Events().Publish(events.Event{Kind: events.Handshake, SessionID: e.session.ID()})
	p.Log(logging.Debug, "emitter %s: handshake complete", e.session.ID())

	go e.readLoop()

	return e, nil
}

// Session returns the emitter's session handle.
func (e *Stateful) Session() protocol.Session { return e.session }

// Call invokes messageName with req, blocking until a response arrives, ctx
// is done, or the session ends. For a one-way message it returns as soon as
// the request is written, with a nil response.
func (e *Stateful) Call(ctx context.Context, messageName string, req any) (any, error) {
	e.mu.Lock()
	stopped := e.stopped
	e.mu.Unlock()
	if stopped {
		return nil, protocol.ErrDestroyed
	}

	id := atomic.AddUint64(&e.nextID, 1)

	msg, m, err := encodeCall(e.p, id, messageName, req)
	if err != nil {
		return nil, err
	}

	if m.OneWay() {
		if err := e.conn.send(msg); err != nil {
			return nil, err
		}
		return nil, nil
	}

	resultCh := make(chan callResult, 1)

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return nil, protocol.ErrDestroyed
	}
	e.pending[id] = pendingEntry{message: m, result: resultCh}
	e.mu.Unlock()

	if err := e.conn.send(msg); err != nil {
		e.forget(id)
		return nil, err
	}

	select {
	case res := <-resultCh:
		return res.value, res.err
	case <-ctx.Done():
		e.forget(id)
		return nil, ctx.Err()
	case <-e.closed:
		return nil, e.closeErrOrDefault()
	}
}

func (e *Stateful) forget(id uint64) {
	e.mu.Lock()
	_, ok := e.pending[id]
	delete(e.pending, id)
	if ok {
		e.drained.Broadcast()
	}
	e.mu.Unlock()
}

func (e *Stateful) closeErrOrDefault() error {
	if e.closeErr != nil {
		return e.closeErr
	}
	return protocol.ErrDestroyed
}

func (e *Stateful) readLoop() {
	for {
		raw, err := e.conn.recv()
		if err != nil {
			e.end(err)
			return
		}

		id, isError, payload, err := wire.DecodeCallResponse(raw)
		if err != nil {
			e.p.Log(logging.Warn, "emitter %s: %v", e.session.ID(), err)
			continue
		}

		e.mu.Lock()
		entry, ok := e.pending[id]
		if ok {
			delete(e.pending, id)
			e.drained.Broadcast()
		}
		e.mu.Unlock()

		if !ok {
			e.p.Log(logging.Warn, "emitter %s: %v", e.session.ID(), &protocol.OrphanResponseError{ID: id})
			continue
		}

		value, callErr := decodePayload(e.p, e.peerFingerprint, entry.message, isError, payload)
		entry.result <- callResult{value: value, err: callErr}
	}
}

// end tears the session down, whether triggered by a transport error on the
// read loop or by Destroy: every call still in the pending table is woken
// (with err, or protocol.ErrInterrupted if err is nil but calls remain),
// an error event fires when err is set, and an end-of-transmission event
// reports however many calls were cut off — zero once Destroy has already
// drained the table.
func (e *Stateful) end(err error) {
	e.closeOnce.Do(func() {
		e.closeErr = err

		e.mu.Lock()
		pending := e.pending
		e.pending = nil
		e.drained.Broadcast()
		e.mu.Unlock()

		cutoffErr := err
		if cutoffErr == nil {
			cutoffErr = protocol.ErrInterrupted
		}
		for _, entry := range pending {
			entry.result <- callResult{err: cutoffErr}
		}

		close(e.closed)

		if err != nil {
			e.p.Events().Publish(events.Event{Kind: events.Error, SessionID: e.session.ID(), Err: err})
			e.p.Log(logging.Warn, "emitter %s: %v", e.session.ID(), err)
		}
		e.p.Events().Publish(events.Event{Kind: events.EndOfTransmission, SessionID: e.session.ID(), PendingCount: len(pending)})
	})
}

// Destroy stops accepting new calls, waits for every call already in the
// pending table to complete, then ends the session and closes the
// underlying channel — the noWait=false default. A call still running
// concurrently with Destroy either finishes normally or, if the transport
// fails first, is woken with that error through end.
func (e *Stateful) Destroy() error {
	e.mu.Lock()
	e.stopped = true
	for len(e.pending) > 0 {
		e.drained.Wait()
	}
	e.mu.Unlock()

	e.end(nil)
	return e.conn.Close()
}

// DestroyNow stops accepting new calls and immediately fails every call
// still in the pending table with protocol.ErrInterrupted, the noWait=true
// behavior, then closes the underlying channel.
func (e *Stateful) DestroyNow() error {
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()

	e.end(protocol.ErrInterrupted)
	return e.conn.Close()
}
