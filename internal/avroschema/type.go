// Package avroschema is the concrete implementation of the schema.Type /
// schema.System boundary, built on github.com/hamba/avro/v2. It is the one
// place in this module that knows about Avro schema parsing, canonical
// JSON, and record/union/primitive encoding — everything internal/protocol,
// emitter and listener treat as an external collaborator.
package avroschema

import (
	"bytes"
	"crypto/md5"
	"fmt"
	"io"

	avro "github.com/hamba/avro/v2"

	"github.com/avrorpc/go-avrorpc/schema"
)

// avroType adapts an avro.Schema to schema.Type.
type avroType struct {
	s avro.Schema
}

// wrap returns nil when s is nil, so callers can pass through an absent
// response schema without a type assertion at every call site.
func wrap(s avro.Schema) schema.Type {
	if s == nil {
		return nil
	}
	return &avroType{s: s}
}

func (t *avroType) Encode(buf []byte, value any) ([]byte, error) {
	data, err := avro.Marshal(t.s, value)
	if err != nil {
		return nil, fmt.Errorf("avrorpc: avroschema: encode %s: %w", t.s.Type(), err)
	}
	return append(buf, data...), nil
}

func (t *avroType) Decode(data []byte, offset int) (any, int, error) {
	if offset < 0 || offset > len(data) {
		return nil, offset, fmt.Errorf("avrorpc: avroschema: offset %d out of range", offset)
	}

	cr := &countingReader{r: bytes.NewReader(data[offset:])}
	dec := avro.NewDecoder(t.s, cr)

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, offset, fmt.Errorf("avrorpc: avroschema: decode %s: %w", t.s.Type(), err)
	}

	return v, offset + cr.n, nil
}

func (t *avroType) IsValid(value any) bool {
	_, err := avro.Marshal(t.s, value)
	return err == nil
}

func (t *avroType) Fingerprint() [16]byte {
	return md5.Sum([]byte(t.s.String()))
}

func (t *avroType) String() string {
	return t.s.String()
}

// countingReader wraps an io.Reader and tracks how many bytes have been
// read through it, so a Decode call against a flat byte slice can report
// how far the underlying decoder advanced.
type countingReader struct {
	r io.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}
