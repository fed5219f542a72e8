package emitter

import (
	"fmt"

	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
)

// callResult is what a pending call is waiting to receive, whichever of
// value or err is meaningful.
type callResult struct {
	value any
	err   error
}

// encodeCall looks up messageName and encodes req as that message's
// request envelope.
func encodeCall(p *protocol.Protocol, id uint64, messageName string, req any) ([]byte, *protocol.Message, error) {
	m, ok := p.Message(messageName)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", protocol.ErrUnknownMessage, messageName)
	}

	params, err := m.Request().Encode(nil, req)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", protocol.ErrInvalidRequest, err)
	}

	return wire.EncodeCallRequest(id, messageName, params), m, nil
}

// decodePayload decodes a call response's payload against m, preferring a
// cached resolver (built during handshake negotiation, see
// Protocol.EmitterResolvers) over m's own response type when the listener
// turned out to resolve against a different protocol revision. The error
// union is always decoded against m's own error type directly: this
// runtime only negotiates resolvers for the request/response pair a call
// actually exchanges, not for the error branch.
func decodePayload(p *protocol.Protocol, peerFingerprint [16]byte, m *protocol.Message, isError bool, payload []byte) (any, error) {
	if isError {
		value, _, err := m.Errors().Decode(payload, 0)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidResponse, err)
		}
		return nil, &protocol.CallError{Value: value}
	}

	if m.Response() == nil {
		return nil, nil
	}

	if resolvers, ok := p.EmitterResolvers(peerFingerprint); ok {
		if r, ok := resolvers[m.Name()]; ok {
			value, _, err := r.Decode(payload, 0)
			if err != nil {
				return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidResponse, err)
			}
			return value, nil
		}
	}

	value, _, err := m.Response().Decode(payload, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", protocol.ErrInvalidResponse, err)
	}
	return value, nil
}
