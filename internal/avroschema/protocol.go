package avroschema

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	avro "github.com/hamba/avro/v2"

	"github.com/avrorpc/go-avrorpc/schema"
)

// shallowProtocol is used only to recover the set of declared message
// names: hamba/avro's own *avro.Protocol exposes messages one at a time by
// name (Message(name)), not as an enumerable collection, so the document's
// top-level JSON shape is sniffed directly for that purpose alone. No
// Avro-specific type parsing happens here.
type shallowProtocol struct {
	Messages map[string]json.RawMessage `json:"messages"`
}

// ParseProtocol parses an Avro protocol schema document and returns the
// descriptor internal/protocol needs to build a Protocol.
func ParseProtocol(doc string) (*schema.ProtocolDescriptor, error) {
	ap, err := avro.ParseProtocol(doc)
	if err != nil {
		return nil, fmt.Errorf("avrorpc: avroschema: parse protocol: %w", err)
	}

	var shallow shallowProtocol
	if err := json.Unmarshal([]byte(doc), &shallow); err != nil {
		return nil, fmt.Errorf("avrorpc: avroschema: parse protocol: %w", err)
	}

	fingerprint, err := fingerprintOf(ap)
	if err != nil {
		return nil, err
	}

	types := make([]schema.Type, 0, len(ap.Types()))
	for _, t := range ap.Types() {
		types = append(types, wrap(t))
	}

	messages := make(map[string]schema.MessageDescriptor, len(shallow.Messages))
	for name := range shallow.Messages {
		m := ap.Message(name)
		if m == nil {
			return nil, fmt.Errorf("avrorpc: avroschema: message %q declared but not parsed", name)
		}

		messages[name] = schema.MessageDescriptor{
			Request:       wrap(m.Request()),
			Response:      wrap(m.Response()),
			Errors:        wrap(m.Errors()),
			OneWay:        m.OneWay(),
			CanonicalJSON: m.String(),
		}
	}

	return &schema.ProtocolDescriptor{
		Name:        ap.Name(),
		Namespace:   ap.Namespace(),
		Types:       types,
		Messages:    messages,
		Fingerprint: fingerprint,
		Text:        ap.String(),
	}, nil
}

// ParseProtocol implements schema.System by delegating to the package-level
// ParseProtocol, so a *Protocol built from one descriptor can parse a peer's
// protocol text at handshake time through the same System it already holds.
func (System) ParseProtocol(doc string) (*schema.ProtocolDescriptor, error) {
	return ParseProtocol(doc)
}

// fingerprintOf decodes the owning hamba/avro Protocol's MD5 hex digest
// (itself computed over the protocol's canonical JSON representation, see
// (*avro.Protocol).String) into the raw 16 bytes the core works with.
func fingerprintOf(p *avro.Protocol) ([16]byte, error) {
	var fp [16]byte

	raw, err := hex.DecodeString(p.Hash())
	if err != nil {
		return fp, fmt.Errorf("avrorpc: avroschema: decode protocol hash: %w", err)
	}
	if len(raw) != len(fp) {
		return fp, fmt.Errorf("avrorpc: avroschema: unexpected protocol hash length %d", len(raw))
	}

	copy(fp[:], raw)
	return fp, nil
}
