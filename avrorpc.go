// Package avrorpc is the top-level entry point for building an Avro RPC
// protocol and the emitter/listener sessions that exchange calls over it.
// It wires internal/avroschema (the concrete schema.System) into
// internal/protocol, emitter and listener so callers never need to import
// those packages directly for the common case.
package avrorpc

import (
	"fmt"

	"github.com/avrorpc/go-avrorpc/emitter"
	"github.com/avrorpc/go-avrorpc/internal/avroschema"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/listener"
)

// Option configures a Protocol at construction time.
type Option = protocol.Option

// WithLogFunc, WithEvents and WithHandshakeCache are re-exported from
// internal/protocol so callers configuring a Protocol via CreateProtocol
// never need to import that package directly.
var (
	WithLogFunc        = protocol.WithLogFunc
	WithEvents         = protocol.WithEvents
	WithHandshakeCache = protocol.WithHandshakeCache
)

// CreateProtocol parses schemaDoc (an Avro protocol schema document) and
// returns the Protocol it describes, built on the hamba/avro-backed schema
// system.
func CreateProtocol(schemaDoc string, opts ...Option) (*protocol.Protocol, error) {
	d, err := avroschema.ParseProtocol(schemaDoc)
	if err != nil {
		return nil, fmt.Errorf("avrorpc: %w", err)
	}
	return protocol.New(d, avroschema.NewSystem(), opts...)
}

// CreateEmitter negotiates a handshake over channel and returns a ready,
// persistent emitter session.
func CreateEmitter(p *protocol.Protocol, channel emitter.Channel) (*emitter.Stateful, error) {
	return emitter.NewStateful(p, channel)
}

// CreateStatelessEmitter returns an emitter that dials a fresh channel via
// factory (retried per retryConfig) for every call.
func CreateStatelessEmitter(p *protocol.Protocol, factory emitter.ChannelFactory, retryConfig emitter.RetryConfig) *emitter.Stateless {
	return emitter.NewStateless(p, factory, retryConfig)
}

// CreateListener negotiates a handshake over channel and returns a ready,
// persistent listener session dispatching to p's registered handlers.
func CreateListener(p *protocol.Protocol, channel listener.Channel, opts ...listener.Option) (*listener.Stateful, error) {
	return listener.NewStateful(p, channel, opts...)
}

// CreateStatelessListener returns a listener that serves exactly one
// handshake plus one call per channel handed to its Accept method.
func CreateStatelessListener(p *protocol.Protocol, opts ...listener.Option) *listener.Stateless {
	return listener.NewStateless(p, opts...)
}
