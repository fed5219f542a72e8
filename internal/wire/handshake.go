package wire

import "fmt"

// HandshakeMatch mirrors org.apache.avro.ipc.HandshakeMatch, an enum whose
// wire encoding is the zigzag-long index of the matched symbol in this
// declaration order.
type HandshakeMatch int

const (
	MatchBoth HandshakeMatch = iota
	MatchClient
	MatchNone
)

func (m HandshakeMatch) String() string {
	switch m {
	case MatchBoth:
		return "BOTH"
	case MatchClient:
		return "CLIENT"
	case MatchNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// HandshakeRequest is the fixed HandshakeRequest record every handshake
// opens with. ClientProtocol is empty when the sender believes the peer
// already knows its protocol by fingerprint.
type HandshakeRequest struct {
	ClientHash     [16]byte
	ClientProtocol string
	ServerHash     [16]byte
}

// HandshakeResponse is the fixed HandshakeResponse record every handshake
// closes with (from the listener's point of view). Error carries the
// "error" key of the meta map when the listener rejects the handshake with
// an explanation (a per-message compatibility failure), empty otherwise.
type HandshakeResponse struct {
	Match          HandshakeMatch
	ServerProtocol string
	ServerHash     [16]byte
	HasServerHash  bool
	Error          string
}

// metaErrorKey is the meta map key this runtime populates to carry a
// handshake rejection reason back to the emitter.
const metaErrorKey = "error"

// EncodeHandshakeRequest encodes r per the fixed HandshakeRequest schema.
// The meta field is always encoded as null: this runtime has no use for it.
func EncodeHandshakeRequest(r HandshakeRequest) []byte {
	buf := make([]byte, 0, 48+len(r.ClientProtocol))
	buf = append(buf, r.ClientHash[:]...)
	buf = appendOptionalString(buf, r.ClientProtocol)
	buf = append(buf, r.ServerHash[:]...)
	buf = appendLong(buf, 0) // meta: null branch
	return buf
}

// DecodeHandshakeRequest decodes a HandshakeRequest from data.
func DecodeHandshakeRequest(data []byte) (HandshakeRequest, error) {
	var r HandshakeRequest
	d := decoder{buf: data}

	if err := d.readFixed(r.ClientHash[:]); err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake request clientHash: %w", err)
	}

	clientProtocol, err := d.readOptionalString()
	if err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake request clientProtocol: %w", err)
	}
	r.ClientProtocol = clientProtocol

	if err := d.readFixed(r.ServerHash[:]); err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake request serverHash: %w", err)
	}

	if err := d.skipOptionalMap(); err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake request meta: %w", err)
	}

	return r, nil
}

// EncodeHandshakeResponse encodes r per the fixed HandshakeResponse schema.
func EncodeHandshakeResponse(r HandshakeResponse) []byte {
	buf := make([]byte, 0, 48+len(r.ServerProtocol))
	buf = appendLong(buf, int64(r.Match))
	buf = appendOptionalString(buf, r.ServerProtocol)
	if r.HasServerHash {
		buf = appendLong(buf, 1)
		buf = append(buf, r.ServerHash[:]...)
	} else {
		buf = appendLong(buf, 0)
	}
	buf = appendOptionalErrorMap(buf, r.Error)
	return buf
}

// DecodeHandshakeResponse decodes a HandshakeResponse from data.
func DecodeHandshakeResponse(data []byte) (HandshakeResponse, error) {
	var r HandshakeResponse
	d := decoder{buf: data}

	match, err := d.readLong()
	if err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake response match: %w", err)
	}
	if match < int64(MatchBoth) || match > int64(MatchNone) {
		return r, fmt.Errorf("avrorpc: wire: handshake response: invalid match enum index %d", match)
	}
	r.Match = HandshakeMatch(match)

	serverProtocol, err := d.readOptionalString()
	if err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake response serverProtocol: %w", err)
	}
	r.ServerProtocol = serverProtocol

	hashBranch, err := d.readLong()
	if err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake response serverHash branch: %w", err)
	}
	switch hashBranch {
	case 0:
		// null
	case 1:
		if err := d.readFixed(r.ServerHash[:]); err != nil {
			return r, fmt.Errorf("avrorpc: wire: handshake response serverHash: %w", err)
		}
		r.HasServerHash = true
	default:
		return r, fmt.Errorf("avrorpc: wire: handshake response: invalid serverHash union branch %d", hashBranch)
	}

	errMsg, err := d.readOptionalErrorMap()
	if err != nil {
		return r, fmt.Errorf("avrorpc: wire: handshake response meta: %w", err)
	}
	r.Error = errMsg

	return r, nil
}

func appendOptionalString(buf []byte, s string) []byte {
	if s == "" {
		return appendLong(buf, 0) // null branch
	}
	buf = appendLong(buf, 1) // string branch
	return appendString(buf, s)
}

func (d *decoder) readOptionalString() (string, error) {
	branch, err := d.readLong()
	if err != nil {
		return "", err
	}
	switch branch {
	case 0:
		return "", nil
	case 1:
		return d.readString()
	default:
		return "", fmt.Errorf("invalid union branch %d", branch)
	}
}

func (d *decoder) readFixed(dst []byte) error {
	if d.pos+len(dst) > len(d.buf) {
		return fmt.Errorf("truncated fixed field of length %d", len(dst))
	}
	copy(dst, d.buf[d.pos:d.pos+len(dst)])
	d.pos += len(dst)
	return nil
}

// appendOptionalErrorMap encodes the meta map, populated with a single
// "error" entry when errMsg is non-empty, null otherwise.
func appendOptionalErrorMap(buf []byte, errMsg string) []byte {
	if errMsg == "" {
		return appendLong(buf, 0) // null branch
	}
	buf = appendLong(buf, 1) // map branch
	buf = appendLong(buf, 1) // one block of one item
	buf = appendString(buf, metaErrorKey)
	buf = appendBytes(buf, []byte(errMsg))
	buf = appendLong(buf, 0) // terminating empty block
	return buf
}

// readOptionalErrorMap decodes the meta map, returning the value of its
// "error" key if present, the empty string otherwise. Any other key is
// read and discarded, since this runtime only ever populates "error".
func (d *decoder) readOptionalErrorMap() (string, error) {
	branch, err := d.readLong()
	if err != nil {
		return "", err
	}
	if branch == 0 {
		return "", nil
	}
	if branch != 1 {
		return "", fmt.Errorf("invalid union branch %d", branch)
	}

	var errMsg string
	for {
		count, err := d.readLong()
		if err != nil {
			return "", err
		}
		if count == 0 {
			return errMsg, nil
		}
		if count < 0 {
			if _, err := d.readLong(); err != nil {
				return "", err
			}
			count = -count
		}
		for i := int64(0); i < count; i++ {
			key, err := d.readString()
			if err != nil {
				return "", err
			}
			value, err := d.readBytes()
			if err != nil {
				return "", err
			}
			if key == metaErrorKey {
				errMsg = string(value)
			}
		}
	}
}

// skipOptionalMap consumes a ["null", {"type": "map", ...}] union value
// this runtime never populates on encode but must still be able to decode
// from a peer that does.
func (d *decoder) skipOptionalMap() error {
	branch, err := d.readLong()
	if err != nil {
		return err
	}
	if branch == 0 {
		return nil
	}
	if branch != 1 {
		return fmt.Errorf("invalid union branch %d", branch)
	}

	for {
		count, err := d.readLong()
		if err != nil {
			return err
		}
		if count == 0 {
			return nil
		}
		if count < 0 {
			if _, err := d.readLong(); err != nil {
				return err
			}
			count = -count
		}
		for i := int64(0); i < count; i++ {
			if _, err := d.readString(); err != nil {
				return err
			}
			if _, err := d.readBytes(); err != nil {
				return err
			}
		}
	}
}
