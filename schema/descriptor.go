package schema

// MessageDescriptor is the concrete-schema-system's view of a single
// protocol message: its request record type, optional response type,
// error union type (first branch always the built-in string type), the
// one-way flag, and a pre-rendered canonical JSON fragment of the message.
// The core does not read CanonicalJSON; the protocol fingerprint comes
// from ProtocolDescriptor.Fingerprint.
type MessageDescriptor struct {
	Request       Type
	Response      Type
	Errors        Type
	OneWay        bool
	CanonicalJSON string
}

// ProtocolDescriptor is what a concrete schema system (internal/avroschema)
// produces from a protocol schema document, and what internal/protocol
// consumes to build a Protocol. Keeping this as a plain descriptor, rather
// than handing internal/protocol a concrete avro type, is what lets the
// core stay ignorant of the underlying Avro library.
type ProtocolDescriptor struct {
	Name      string
	Namespace string
	Types     []Type
	Messages  map[string]MessageDescriptor

	// Fingerprint is the owning schema system's canonical 16-byte digest
	// of the whole protocol document.
	Fingerprint [16]byte

	// Text is the protocol's canonical JSON representation, exchanged
	// verbatim during handshake negotiation when a peer doesn't already
	// know this protocol by fingerprint.
	Text string
}
