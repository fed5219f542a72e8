package listener

import (
	"fmt"

	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/logging"
)

// dispatch decodes one call request, invokes its handler, and sends the
// reply over conn — the body of Stateful's per-request goroutine, and
// called directly by Stateless for its single call. sess is passed to the handler for log/event correlation.
func dispatch(p *protocol.Protocol, conn *wireConn, sess protocol.Session, peerFingerprint [16]byte, id uint64, messageName string, params []byte) {
	m, ok := p.Message(messageName)
	if !ok {
		reply(p, conn, sess, id, true, wire.EncodeSystemError(fmt.Sprintf("unknown message: %s", messageName)))
		return
	}

	request, err := decodeRequest(p, peerFingerprint, m, params)
	if err != nil {
		if m.OneWay() {
			p.Log(logging.Warn, "listener %s: %v", sess.ID(), err)
			return
		}
		reply(p, conn, sess, id, true, wire.EncodeSystemError(fmt.Sprintf("invalid request: %v", err)))
		return
	}

	handler, ok := p.HandlerFor(messageName)
	if !ok {
		if m.OneWay() {
			return
		}
		reply(p, conn, sess, id, true, wire.EncodeSystemError("unhandled message"))
		return
	}

	if m.OneWay() {
		if handler.OneWay != nil {
			invokeOneWay(p, sess, messageName, handler.OneWay, request)
		}
		return
	}

	if handler.TwoWay == nil {
		reply(p, conn, sess, id, true, wire.EncodeSystemError("unhandled message"))
		return
	}

	invokeTwoWay(p, sess, messageName, handler.TwoWay, request, func(err error, response any) {
		isError, payload, encErr := encodeReply(m, err, response)
		if encErr != nil {
			p.Log(logging.Warn, "listener %s: encode reply for %q: %v", sess.ID(), messageName, encErr)
			isError, payload = true, wire.EncodeSystemError(fmt.Sprintf("invalid response: %v", encErr))
		}
		reply(p, conn, sess, id, isError, payload)
	})
}

// invokeOneWay and invokeTwoWay run a handler with a recover guard, so a
// handler that panics is reported the same way a handler that returns an
// error would be: as a system error for two-way messages, logged and
// swallowed for one-way messages, since there's no reply to carry it.
func invokeOneWay(p *protocol.Protocol, sess protocol.Session, messageName string, fn protocol.OneWayHandler, request any) {
	defer func() {
		if r := recover(); r != nil {
			p.Log(logging.Warn, "listener %s: handler for %q panicked: %v", sess.ID(), messageName, r)
		}
	}()
	fn(request, sess)
}

func invokeTwoWay(p *protocol.Protocol, sess protocol.Session, messageName string, fn protocol.TwoWayHandler, request any, reply protocol.ReplyFunc) {
	replied := false
	guardedReply := func(err error, response any) {
		replied = true
		reply(err, response)
	}

	defer func() {
		if r := recover(); r != nil {
			p.Log(logging.Warn, "listener %s: handler for %q panicked: %v", sess.ID(), messageName, r)
			if !replied {
				reply(fmt.Errorf("%v", r), nil)
			}
		}
	}()
	fn(request, sess, guardedReply)
}

func reply(p *protocol.Protocol, conn *wireConn, sess protocol.Session, id uint64, isError bool, payload []byte) {
	if err := conn.send(wire.EncodeCallResponse(id, isError, payload)); err != nil {
		p.Log(logging.Warn, "listener %s: send reply: %v", sess.ID(), err)
	}
}

// decodeRequest decodes params against m's request type, preferring a
// cached resolver built during handshake negotiation (the emitter may have
// written under a different, but compatible, protocol revision) over m's
// own declared type.
func decodeRequest(p *protocol.Protocol, peerFingerprint [16]byte, m *protocol.Message, params []byte) (any, error) {
	if resolvers, ok := p.ListenerResolvers(peerFingerprint); ok {
		if r, ok := resolvers[m.Name()]; ok {
			value, _, err := r.Decode(params, 0)
			if err != nil {
				return nil, err
			}
			return value, nil
		}
	}

	value, _, err := m.Request().Decode(params, 0)
	if err != nil {
		return nil, err
	}
	return value, nil
}

// encodeReply turns a handler's (err, response) result into a call
// response's isError flag and payload. A *protocol.UserError carries a
// value from the message's own declared error union; any other non-nil err
// is reported as a system error (the union's built-in string branch).
func encodeReply(m *protocol.Message, err error, response any) (isError bool, payload []byte, encErr error) {
	if err != nil {
		if ue, ok := err.(*protocol.UserError); ok {
			payload, encErr = m.Errors().Encode(nil, ue.Value)
			if encErr != nil {
				return true, nil, encErr
			}
			return true, payload, nil
		}
		return true, wire.EncodeSystemError(err.Error()), nil
	}

	if m.Response() == nil {
		return false, nil, nil
	}

	payload, encErr = m.Response().Encode(nil, response)
	if encErr != nil {
		return false, nil, encErr
	}
	return false, payload, nil
}
