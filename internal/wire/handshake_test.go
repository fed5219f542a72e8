package wire_test

import (
	"testing"

	"github.com/avrorpc/go-avrorpc/internal/wire"
)

func fingerprintOf(b byte) [16]byte {
	var fp [16]byte
	for i := range fp {
		fp[i] = b
	}
	return fp
}

func TestHandshakeRequestRoundTrip(t *testing.T) {
	cases := []wire.HandshakeRequest{
		{ClientHash: fingerprintOf(0x01), ServerHash: fingerprintOf(0x02)},
		{ClientHash: fingerprintOf(0x01), ServerHash: fingerprintOf(0x01), ClientProtocol: `{"protocol":"Foo"}`},
	}

	for _, want := range cases {
		encoded := wire.EncodeHandshakeRequest(want)

		got, err := wire.DecodeHandshakeRequest(encoded)
		requireNoError(t, err)

		if got.ClientHash != want.ClientHash {
			t.Fatalf("clientHash: got %x want %x", got.ClientHash, want.ClientHash)
		}
		if got.ServerHash != want.ServerHash {
			t.Fatalf("serverHash: got %x want %x", got.ServerHash, want.ServerHash)
		}
		if got.ClientProtocol != want.ClientProtocol {
			t.Fatalf("clientProtocol: got %q want %q", got.ClientProtocol, want.ClientProtocol)
		}
	}
}

func TestHandshakeResponseRoundTrip(t *testing.T) {
	cases := []wire.HandshakeResponse{
		{Match: wire.MatchBoth},
		{Match: wire.MatchClient, ServerProtocol: `{"protocol":"Foo"}`, ServerHash: fingerprintOf(0x09), HasServerHash: true},
		{Match: wire.MatchNone, ServerHash: fingerprintOf(0x0a), HasServerHash: true},
	}

	for _, want := range cases {
		encoded := wire.EncodeHandshakeResponse(want)

		got, err := wire.DecodeHandshakeResponse(encoded)
		requireNoError(t, err)

		if got.Match != want.Match {
			t.Fatalf("match: got %s want %s", got.Match, want.Match)
		}
		if got.ServerProtocol != want.ServerProtocol {
			t.Fatalf("serverProtocol: got %q want %q", got.ServerProtocol, want.ServerProtocol)
		}
		if got.HasServerHash != want.HasServerHash {
			t.Fatalf("hasServerHash: got %v want %v", got.HasServerHash, want.HasServerHash)
		}
		if got.HasServerHash && got.ServerHash != want.ServerHash {
			t.Fatalf("serverHash: got %x want %x", got.ServerHash, want.ServerHash)
		}
	}
}

func TestDecodeHandshakeResponse_RejectsInvalidMatch(t *testing.T) {
	_, err := wire.DecodeHandshakeResponse([]byte{0x08}) // zigzag long 4, no such symbol
	if err == nil {
		t.Fatal("expected an error for an out-of-range match enum index")
	}
}

func TestHandshakeMatchString(t *testing.T) {
	cases := map[wire.HandshakeMatch]string{
		wire.MatchBoth:   "BOTH",
		wire.MatchClient: "CLIENT",
		wire.MatchNone:   "NONE",
	}
	for match, want := range cases {
		if got := match.String(); got != want {
			t.Fatalf("match %d: got %q want %q", match, got, want)
		}
	}
}
