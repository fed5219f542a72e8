package wire_test

import (
	"bytes"
	"testing"

	"github.com/avrorpc/go-avrorpc/internal/wire"
)

func TestCallRequestRoundTrip(t *testing.T) {
	params := []byte{0x01, 0x02, 0x03}
	encoded := wire.EncodeCallRequest(42, "ping", params)

	id, name, rest, err := wire.DecodeCallRequest(encoded)
	requireNoError(t, err)

	assertEqual(t, uint64(42), id)
	assertEqual(t, "ping", name)
	if !bytes.Equal(rest, params) {
		t.Fatalf("params: got %x want %x", rest, params)
	}
}

func TestCallResponseRoundTrip(t *testing.T) {
	payload := []byte{0xaa, 0xbb}

	for _, isError := range []bool{false, true} {
		encoded := wire.EncodeCallResponse(7, isError, payload)

		id, gotError, rest, err := wire.DecodeCallResponse(encoded)
		requireNoError(t, err)

		assertEqual(t, uint64(7), id)
		assertEqual(t, isError, gotError)
		if !bytes.Equal(rest, payload) {
			t.Fatalf("payload: got %x want %x", rest, payload)
		}
	}
}

func TestDecodeCallResponse_TruncatedMissingFlag(t *testing.T) {
	encoded := wire.EncodeMetadata(1)
	_, _, _, err := wire.DecodeCallResponse(encoded)
	if err == nil {
		t.Fatal("expected an error for a response envelope missing its error flag")
	}
}
