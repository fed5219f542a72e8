// Package schema declares the boundary between the Avro RPC runtime core
// and Avro schema parsing, type registries, and record/union/primitive
// value encoding — deliberately out of scope for the core (see
// internal/protocol, emitter, and listener). The core only ever depends on
// these interfaces; a concrete implementation backed by
// github.com/hamba/avro/v2 lives in internal/avroschema.
package schema

import "fmt"

// Type is a single Avro schema the core can encode, decode, validate and
// fingerprint, without knowing anything about records, unions or
// primitives.
type Type interface {
	// Encode appends the Avro encoding of value to buf and returns the
	// extended slice.
	Encode(buf []byte, value any) ([]byte, error)

	// Decode reads one value of this type starting at offset in data and
	// returns the value along with the offset of the first unread byte.
	Decode(data []byte, offset int) (any, int, error)

	// IsValid reports whether value can be encoded as this type.
	IsValid(value any) bool

	// Fingerprint returns a stable 16-byte digest of this type's schema.
	Fingerprint() [16]byte

	// String returns the canonical JSON representation of this type.
	String() string
}

// Resolver lets a reader decode bytes written under a compatible but
// possibly different writer schema.
type Resolver interface {
	// Decode reads one value written under the resolver's writer schema
	// and returns it as a value of the resolver's reader schema, along
	// with the offset of the first unread byte.
	Decode(data []byte, offset int) (any, int, error)
}

// System is a factory for resolvers between two Type values produced by
// the same concrete type system (e.g. the same Avro library instance), and
// can parse a protocol schema document into a ProtocolDescriptor.
type System interface {
	// CreateResolver returns a Resolver that decodes values written with
	// writer into values shaped like reader. It fails with
	// ErrIncompatibleTypes (or a wrapped variant) when no such resolver
	// can be built.
	CreateResolver(writer, reader Type) (Resolver, error)

	// ParseProtocol parses a protocol schema document received from a peer
	// during handshake negotiation (the clientProtocol or serverProtocol
	// handshake field) into a ProtocolDescriptor.
	ParseProtocol(doc string) (*ProtocolDescriptor, error)
}

// ErrIncompatibleTypes is returned, or wrapped, by System.CreateResolver
// when a writer type cannot be resolved against a reader type.
var ErrIncompatibleTypes = fmt.Errorf("avrorpc: schema: incompatible types")
