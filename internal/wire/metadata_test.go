package wire_test

import (
	"testing"

	"github.com/avrorpc/go-avrorpc/internal/wire"
)

func TestMetadataRoundTrip(t *testing.T) {
	ids := []uint64{0, 1, 2, 63, 64, 127, 128, 1 << 20, 1<<63 - 1}

	for _, id := range ids {
		encoded := wire.EncodeMetadata(id)

		got, err := wire.DecodeMetadata(encoded)
		requireNoError(t, err)

		if got != id {
			t.Fatalf("id %d: round trip returned %d", id, got)
		}
	}
}

func TestDecodeMetadata_MissingIDKey(t *testing.T) {
	// An empty map (just the terminating zero block count).
	_, err := wire.DecodeMetadata([]byte{0})
	if err == nil {
		t.Fatal("expected an error for metadata missing the avro.id key")
	}
}

func TestDecodeMetadata_TruncatedInput(t *testing.T) {
	_, err := wire.DecodeMetadata([]byte{0x02, 0x80})
	if err == nil {
		t.Fatal("expected an error for truncated metadata")
	}
}
