package wire_test

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/avrorpc/go-avrorpc/internal/wire"
)

func requireNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}

func assertEqual(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !bytes.Equal(toBytes(expected), toBytes(actual)) {
		t.Fatalf("expected %v, got %v", expected, actual)
	}
}

func toBytes(v interface{}) []byte {
	switch v := v.(type) {
	case []byte:
		return v
	case nil:
		return nil
	default:
		panic("unsupported type in assertEqual")
	}
}

func encodeAll(t *testing.T, frameSize int, messages [][]byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	enc, err := wire.NewFrameEncoder(&buf, frameSize)
	requireNoError(t, err)
	for _, m := range messages {
		requireNoError(t, enc.EncodeMessage(m))
	}
	return buf.Bytes()
}

func TestFrameEncoder_SeedScenario1(t *testing.T) {
	got := encodeAll(t, 64, [][]byte{{0, 1}, {2}})
	want := []byte{
		0, 0, 0, 2, 0, 1, 0, 0, 0, 0,
		0, 0, 0, 1, 2, 0, 0, 0, 0,
	}
	assertEqual(t, want, got)
}

func TestFrameEncoder_SeedScenario2ShortFrameSize(t *testing.T) {
	got := encodeAll(t, 2, [][]byte{{0, 1, 2}, {2}})
	want := []byte{
		0, 0, 0, 2, 0, 1, 0, 0, 0, 1, 2, 0, 0, 0, 0,
		0, 0, 0, 1, 2, 0, 0, 0, 0,
	}
	assertEqual(t, want, got)
}

func TestFrameEncoder_RejectsNonPositiveFrameSize(t *testing.T) {
	if _, err := wire.NewFrameEncoder(&bytes.Buffer{}, 0); err == nil {
		t.Fatal("expected an error for a zero frame size")
	}
	if _, err := wire.NewFrameEncoder(&bytes.Buffer{}, -1); err == nil {
		t.Fatal("expected an error for a negative frame size")
	}
}

func TestFrameRoundTrip(t *testing.T) {
	cases := []struct {
		name      string
		frameSize int
		messages  [][]byte
	}{
		{"single small message", 64, [][]byte{{0, 1}, {2}}},
		{"short frame size", 2, [][]byte{{0, 1, 2}, {2}}},
		{"empty message", 16, [][]byte{{}, {1, 2, 3}}},
		{"exact multiple of frame size", 4, [][]byte{{1, 2, 3, 4, 5, 6, 7, 8}}},
		{"many tiny messages", 1, [][]byte{{9}, {8}, {7}, {6}}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := encodeAll(t, c.frameSize, c.messages)

			dec := wire.NewFrameDecoder(bytes.NewReader(raw))
			for i, want := range c.messages {
				got, err := dec.DecodeMessage()
				requireNoError(t, err)
				if len(want) == 0 && len(got) == 0 {
					continue
				}
				assertEqual(t, want, got)
				_ = i
			}

			if _, err := dec.DecodeMessage(); !errors.Is(err, io.EOF) {
				t.Fatalf("expected io.EOF after the last message, got %v", err)
			}
		})
	}
}

func TestFrameDecoder_TrailingDataIsUnexpectedEndOfStream(t *testing.T) {
	// A message with a frame but no terminating zero-length frame.
	raw := []byte{0, 0, 0, 2, 1, 2}

	dec := wire.NewFrameDecoder(bytes.NewReader(raw))
	_, err := dec.DecodeMessage()
	if !errors.Is(err, wire.ErrUnexpectedEndOfStream) {
		t.Fatalf("expected ErrUnexpectedEndOfStream, got %v", err)
	}
}

func TestFrameDecoder_TruncatedFrameHeaderIsUnexpectedEndOfStream(t *testing.T) {
	raw := []byte{0, 0, 2}

	dec := wire.NewFrameDecoder(bytes.NewReader(raw))
	_, err := dec.DecodeMessage()
	if !errors.Is(err, wire.ErrUnexpectedEndOfStream) {
		t.Fatalf("expected ErrUnexpectedEndOfStream, got %v", err)
	}
}

func TestFrameDecoder_CleanEmptyStreamIsEOF(t *testing.T) {
	dec := wire.NewFrameDecoder(bytes.NewReader(nil))
	_, err := dec.DecodeMessage()
	if !errors.Is(err, io.EOF) {
		t.Fatalf("expected io.EOF, got %v", err)
	}
}

func TestStrictFrameDecoder_EmptyStreamIsUnexpectedEndOfStream(t *testing.T) {
	dec := wire.NewStrictFrameDecoder(bytes.NewReader(nil))
	_, err := dec.DecodeMessage()
	if !errors.Is(err, wire.ErrUnexpectedEndOfStream) {
		t.Fatalf("expected ErrUnexpectedEndOfStream, got %v", err)
	}
}
