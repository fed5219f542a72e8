package listener

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/avrorpc/go-avrorpc/internal/events"
	"github.com/avrorpc/go-avrorpc/internal/protocol"
	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/schema"
)

type fakeType struct{ tag byte }

func (t *fakeType) Encode(buf []byte, value any) ([]byte, error) {
	return append(buf, t.tag, value.(byte)), nil
}

func (t *fakeType) Decode(data []byte, offset int) (any, int, error) {
	return data[offset+1], offset + 2, nil
}

func (t *fakeType) IsValid(value any) bool { _, ok := value.(byte); return ok }
func (t *fakeType) Fingerprint() [16]byte  { return [16]byte{} }
func (t *fakeType) String() string         { return "fakeType" }

type fakeSystem struct{}

func (fakeSystem) CreateResolver(writer, reader schema.Type) (schema.Resolver, error) {
	return nil, schema.ErrIncompatibleTypes
}

func (fakeSystem) ParseProtocol(doc string) (*schema.ProtocolDescriptor, error) {
	return nil, schema.ErrIncompatibleTypes
}

func testProtocol(t *testing.T) *protocol.Protocol {
	t.Helper()
	d := &schema.ProtocolDescriptor{
		Name: "Ping",
		Text: `{"protocol":"Ping"}`,
		Messages: map[string]schema.MessageDescriptor{
			"ping": {
				Request:  &fakeType{tag: 0x01},
				Response: &fakeType{tag: 0x02},
				Errors:   &fakeType{tag: 0x03},
			},
			"notify": {
				Request: &fakeType{tag: 0x04},
				Errors:  &fakeType{tag: 0x03},
				OneWay:  true,
			},
		},
	}
	p, err := protocol.New(d, fakeSystem{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// scriptedEmitter drives the emitter side of a single handshake plus one
// call, by hand, over conn, standing in for the emitter package so the
// listener can be tested in isolation.
func scriptedEmitter(t *testing.T, p *protocol.Protocol, conn net.Conn, messageName string, param byte) (isError bool, payload []byte) {
	t.Helper()

	enc, err := wire.NewFrameEncoder(conn, defaultFrameSize)
	if err != nil {
		t.Fatalf("scriptedEmitter: %v", err)
	}
	dec := wire.NewFrameDecoder(conn)

	req := wire.HandshakeRequest{ClientHash: p.Fingerprint(), ServerHash: p.Fingerprint()}
	if err := enc.EncodeMessage(wire.EncodeHandshakeRequest(req)); err != nil {
		t.Fatalf("scriptedEmitter: send handshake: %v", err)
	}

	raw, err := dec.DecodeMessage()
	if err != nil {
		t.Fatalf("scriptedEmitter: recv handshake response: %v", err)
	}
	resp, err := wire.DecodeHandshakeResponse(raw)
	if err != nil {
		t.Fatalf("scriptedEmitter: %v", err)
	}
	if resp.Match != wire.MatchBoth {
		t.Fatalf("expected BOTH, got %s", resp.Match)
	}

	m, ok := p.Message(messageName)
	if !ok {
		t.Fatalf("unknown message %q", messageName)
	}

	params, err := m.Request().Encode(nil, param)
	if err != nil {
		t.Fatalf("scriptedEmitter: encode request: %v", err)
	}
	if err := enc.EncodeMessage(wire.EncodeCallRequest(1, messageName, params)); err != nil {
		t.Fatalf("scriptedEmitter: send call: %v", err)
	}

	if m.OneWay() {
		return false, nil
	}

	raw, err = dec.DecodeMessage()
	if err != nil {
		t.Fatalf("scriptedEmitter: recv call response: %v", err)
	}
	_, isError, payload, err = wire.DecodeCallResponse(raw)
	if err != nil {
		t.Fatalf("scriptedEmitter: %v", err)
	}
	return isError, payload
}

func TestStatefulListener_DispatchesTwoWayHandler(t *testing.T) {
	p := testProtocol(t)
	p.On("ping", protocol.TwoWay(func(request any, sess protocol.Session, reply protocol.ReplyFunc) {
		if request.(byte) != 7 {
			t.Errorf("handler got %v, want 7", request)
		}
		reply(nil, byte(0x2a))
	}))

	clientConn, serverConn := net.Pipe()

	l, err := NewStateful(p, serverConn)
	if err != nil {
		t.Fatalf("NewStateful: %v", err)
	}
	defer l.Destroy()

	isError, payload := scriptedEmitter(t, p, clientConn, "ping", 7)
	if isError {
		t.Fatalf("unexpected error response, payload=%v", payload)
	}
	if len(payload) != 2 || payload[1] != 0x2a {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestStatefulListener_UnhandledMessageRepliesSystemError(t *testing.T) {
	p := testProtocol(t)
	// No handler registered for "ping".

	clientConn, serverConn := net.Pipe()

	l, err := NewStateful(p, serverConn)
	if err != nil {
		t.Fatalf("NewStateful: %v", err)
	}
	defer l.Destroy()

	isError, _ := scriptedEmitter(t, p, clientConn, "ping", 1)
	if !isError {
		t.Fatal("expected an error response for an unhandled message")
	}
}

func TestStatefulListener_OneWayHandlerRunsWithoutReply(t *testing.T) {
	p := testProtocol(t)
	received := make(chan byte, 1)
	p.On("notify", protocol.OneWayOnly(func(request any, sess protocol.Session) {
		received <- request.(byte)
	}))

	clientConn, serverConn := net.Pipe()

	l, err := NewStateful(p, serverConn)
	if err != nil {
		t.Fatalf("NewStateful: %v", err)
	}
	defer l.Destroy()

	scriptedEmitter(t, p, clientConn, "notify", 3)

	select {
	case v := <-received:
		if v != 3 {
			t.Fatalf("handler received %v, want 3", v)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for one-way handler")
	}
}

func TestStatefulListener_UndecodableHandshakeRequestIsRetried(t *testing.T) {
	d := &schema.ProtocolDescriptor{
		Name: "Ping",
		Text: `{"protocol":"Ping"}`,
		Messages: map[string]schema.MessageDescriptor{
			"ping": {
				Request:  &fakeType{tag: 0x01},
				Response: &fakeType{tag: 0x02},
				Errors:   &fakeType{tag: 0x03},
			},
		},
	}

	var mu sync.Mutex
	var gotInvalid bool
	src := events.NewSource()
	src.Subscribe(events.FuncSink(func(e events.Event) {
		mu.Lock()
		defer mu.Unlock()
		if e.Kind == events.Handshake && e.Invalid {
			gotInvalid = true
		}
	}))

	p, err := protocol.New(d, fakeSystem{}, protocol.WithEvents(src))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	p.On("ping", protocol.TwoWay(func(request any, sess protocol.Session, reply protocol.ReplyFunc) {
		reply(nil, byte(0x2a))
	}))

	clientConn, serverConn := net.Pipe()

	type result struct {
		l   *Stateful
		err error
	}
	listenerDone := make(chan result, 1)
	go func() {
		l, err := NewStateful(p, serverConn)
		listenerDone <- result{l, err}
	}()

	enc, err := wire.NewFrameEncoder(clientConn, defaultFrameSize)
	if err != nil {
		t.Fatalf("NewFrameEncoder: %v", err)
	}
	dec := wire.NewFrameDecoder(clientConn)

	// Too short to decode even the fixed clientHash field.
	if err := enc.EncodeMessage([]byte{0x01, 0x02}); err != nil {
		t.Fatalf("send garbage: %v", err)
	}

	raw, err := dec.DecodeMessage()
	if err != nil {
		t.Fatalf("recv first response: %v", err)
	}
	resp, err := wire.DecodeHandshakeResponse(raw)
	if err != nil {
		t.Fatalf("decode first response: %v", err)
	}
	if resp.Match != wire.MatchNone {
		t.Fatalf("match: got %s want NONE", resp.Match)
	}
	if resp.HasServerHash {
		t.Fatal("expected no server data in the response to an undecodable request")
	}

	req := wire.HandshakeRequest{ClientHash: p.Fingerprint(), ServerHash: p.Fingerprint()}
	if err := enc.EncodeMessage(wire.EncodeHandshakeRequest(req)); err != nil {
		t.Fatalf("send retry: %v", err)
	}

	select {
	case res := <-listenerDone:
		if res.err != nil {
			t.Fatalf("NewStateful: %v", res.err)
		}
		defer res.l.Destroy()
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for NewStateful")
	}

	mu.Lock()
	defer mu.Unlock()
	if !gotInvalid {
		t.Fatal("expected an invalidity-flagged handshake event for the undecodable request")
	}
}

func TestStatelessListener_ServesOneCallThenCloses(t *testing.T) {
	p := testProtocol(t)
	p.On("ping", protocol.TwoWay(func(request any, sess protocol.Session, reply protocol.ReplyFunc) {
		reply(nil, byte(0x99))
	}))

	clientConn, serverConn := net.Pipe()

	l := NewStateless(p)
	done := make(chan error, 1)
	go func() { done <- l.Accept(serverConn) }()

	isError, payload := scriptedEmitter(t, p, clientConn, "ping", 1)
	if isError {
		t.Fatalf("unexpected error response, payload=%v", payload)
	}
	if len(payload) != 2 || payload[1] != 0x99 {
		t.Fatalf("unexpected payload %v", payload)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Accept: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Accept to return")
	}
}
