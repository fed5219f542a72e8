package avroschema

import (
	"fmt"

	avro "github.com/hamba/avro/v2"

	"github.com/avrorpc/go-avrorpc/schema"
)

// System is the schema.System backed by hamba/avro.
type System struct{}

// NewSystem returns the avroschema System singleton.
func NewSystem() System { return System{} }

// CreateResolver builds a resolver between two Avro schemas produced by
// this package. Resolution is performed by decoding a value under the
// writer schema into a generic value and re-encoding/decoding it against
// the reader schema, which mirrors Avro's by-name field resolution for the
// record and union shapes the core cares about (request records, response
// values, and error unions) without requiring a private hamba/avro
// resolution API.
func (System) CreateResolver(writer, reader schema.Type) (schema.Resolver, error) {
	w, ok := writer.(*avroType)
	if !ok {
		return nil, fmt.Errorf("%w: writer type is not an avroschema type", schema.ErrIncompatibleTypes)
	}
	r, ok := reader.(*avroType)
	if !ok {
		return nil, fmt.Errorf("%w: reader type is not an avroschema type", schema.ErrIncompatibleTypes)
	}

	if w.s.Type() != r.s.Type() {
		return nil, fmt.Errorf("%w: writer type %s does not match reader type %s", schema.ErrIncompatibleTypes, w.s.Type(), r.s.Type())
	}

	return &resolver{writer: w, reader: r}, nil
}

type resolver struct {
	writer *avroType
	reader *avroType
}

func (res *resolver) Decode(data []byte, offset int) (any, int, error) {
	value, next, err := res.writer.Decode(data, offset)
	if err != nil {
		return nil, offset, err
	}

	if res.writer.s.String() == res.reader.s.String() {
		return value, next, nil
	}

	raw, err := avro.Marshal(res.writer.s, value)
	if err != nil {
		return nil, offset, fmt.Errorf("avrorpc: avroschema: resolve: re-encode under writer schema: %w", err)
	}

	var resolved any
	if err := avro.Unmarshal(res.reader.s, raw, &resolved); err != nil {
		return nil, offset, fmt.Errorf("%w: %v", schema.ErrIncompatibleTypes, err)
	}

	return resolved, next, nil
}
