package protocol

import (
	"fmt"

	"github.com/avrorpc/go-avrorpc/schema"
)

// Message describes a single RPC endpoint: its request record type,
// response type, error union type (first branch always the built-in
// string type, used to carry system errors), and whether it is one-way.
type Message struct {
	name     string
	request  schema.Type
	response schema.Type
	errors   schema.Type
	oneWay   bool
}

// newMessage validates a message descriptor and builds the Message the
// core works with. The descriptor's errors union shape (first branch must
// be string, user branches follow in declaration order) is validated by
// the schema system that produced it — internal/protocol only enforces the
// structural invariant it can check without inspecting union internals:
// a one-way message must have a null response.
func newMessage(name string, d schema.MessageDescriptor) (*Message, error) {
	if name == "" {
		return nil, fmt.Errorf("avrorpc: protocol: message name must not be empty")
	}
	if d.Request == nil {
		return nil, fmt.Errorf("avrorpc: protocol: message %q: request type is required", name)
	}
	if d.Errors == nil {
		return nil, fmt.Errorf("avrorpc: protocol: message %q: error union type is required", name)
	}
	if d.OneWay && d.Response != nil {
		return nil, fmt.Errorf("avrorpc: protocol: message %q: one-way messages cannot declare a response", name)
	}

	return &Message{
		name:     name,
		request:  d.Request,
		response: d.Response,
		errors:   d.Errors,
		oneWay:   d.OneWay,
	}, nil
}

// Name returns the message's name.
func (m *Message) Name() string { return m.name }

// Request returns the message's request record type.
func (m *Message) Request() schema.Type { return m.request }

// Response returns the message's response type, or nil for a one-way
// message or a message whose declared response is the null type.
func (m *Message) Response() schema.Type { return m.response }

// Errors returns the message's error union type.
func (m *Message) Errors() schema.Type { return m.errors }

// OneWay reports whether the message expects no response.
func (m *Message) OneWay() bool { return m.oneWay }

// CompatibleWith reports whether m (as declared by one peer) and other (as
// declared by the other peer) can be used together for a call: both must
// carry the same one-way flag. It does not check the request or response
// types themselves. Schema-level compatibility (can the reader actually
// resolve the writer's bytes) is established separately by asking the
// schema system for a resolver; this check only guards the structural
// precondition described by the compatibility rule in section 4.8.
func (m *Message) CompatibleWith(other *Message) error {
	if m.oneWay != other.oneWay {
		return fmt.Errorf("incompatible one-way flag for message %q", m.name)
	}
	return nil
}
