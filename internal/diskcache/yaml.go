// Package diskcache provides persistent implementations of
// internal/protocol.HandshakeCache, so a listener's set of known peer
// protocols survives a process restart instead of forcing every peer
// through a fresh NONE round trip.
package diskcache

import (
	"encoding/hex"
	"os"
	"sync"

	"github.com/goccy/go-yaml"
	"github.com/google/renameio"
)

// entry is the on-disk shape of one cached peer protocol: the fingerprint
// hex-encoded since a [16]byte isn't a YAML scalar.
type entry struct {
	Fingerprint string `yaml:"fingerprint"`
	Protocol    string `yaml:"protocol"`
}

// YAMLStore persists known peer protocols in a single YAML file, rewritten
// atomically on every Put via renameio.
type YAMLStore struct {
	path    string
	entries map[[16]byte]string
	mu      sync.RWMutex
}

// NewYAMLStore loads path if it exists, or starts empty if it doesn't.
func NewYAMLStore(path string) (*YAMLStore, error) {
	entries := map[[16]byte]string{}

	_, err := os.Stat(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}

		var raw []entry
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, err
		}

		for _, e := range raw {
			fp, err := decodeFingerprint(e.Fingerprint)
			if err != nil {
				return nil, err
			}
			entries[fp] = e.Protocol
		}
	}

	return &YAMLStore{path: path, entries: entries}, nil
}

// Get implements protocol.HandshakeCache.
func (s *YAMLStore) Get(fingerprint [16]byte) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.entries[fingerprint]
	return text, ok
}

// Put implements protocol.HandshakeCache, persisting the whole map to disk
// before returning.
func (s *YAMLStore) Put(fingerprint [16]byte, protocolText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[fingerprint] = protocolText

	raw := make([]entry, 0, len(s.entries))
	for fp, text := range s.entries {
		raw = append(raw, entry{Fingerprint: encodeFingerprint(fp), Protocol: text})
	}

	data, err := yaml.Marshal(raw)
	if err != nil {
		// The map only ever holds strings and a hex-encoded fingerprint,
		// so marshaling cannot fail; a cache write failure here would
		// silently drop the handshake optimization, never correctness.
		return
	}

	_ = renameio.WriteFile(s.path, data, 0o600)
}

func encodeFingerprint(fp [16]byte) string { return hex.EncodeToString(fp[:]) }

func decodeFingerprint(s string) ([16]byte, error) {
	var fp [16]byte
	b, err := hex.DecodeString(s)
	if err != nil {
		return fp, err
	}
	copy(fp[:], b)
	return fp, nil
}
