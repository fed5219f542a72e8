package protocol

import (
	"testing"

	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/schema"
)

func TestSubprotocol_SharesFingerprintAndResolverCache(t *testing.T) {
	serverD := pingDescriptor(`{"protocol":"Ping-server"}`, 0x01)
	clientD := pingDescriptor(`{"protocol":"Ping-client"}`, 0x02)
	system := &fakeSystem{protocols: map[string]*schema.ProtocolDescriptor{
		serverD.Text: serverD,
		clientD.Text: clientD,
	}}
	p := buildTestProtocol(t, system, serverD)

	req := wire.HandshakeRequest{
		ClientHash:     clientD.Fingerprint,
		ServerHash:     p.Fingerprint(),
		ClientProtocol: clientD.Text,
	}
	if _, _, err := NewListenerHandshake(p).Evaluate(req); err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !p.KnownByListener(clientD.Fingerprint) {
		t.Fatal("expected the parent to know the client fingerprint after negotiation")
	}

	child := p.Subprotocol()

	if child.Fingerprint() != p.Fingerprint() {
		t.Fatal("expected Subprotocol to keep the parent's fingerprint")
	}
	if !child.KnownByListener(clientD.Fingerprint) {
		t.Fatal("expected Subprotocol to share the parent's resolver cache")
	}

	child.On("ping", TwoWay(func(request any, sess Session, reply ReplyFunc) {}))
	if _, ok := p.HandlerFor("ping"); ok {
		t.Fatal("expected the parent's handlers to stay independent of the child's")
	}
	if _, ok := child.HandlerFor("ping"); !ok {
		t.Fatal("expected the child to have its own handler registration")
	}
}

func TestMessage_CompatibleWith_RejectsOneWayMismatch(t *testing.T) {
	oneWayMsg, err := newMessage("ping", schema.MessageDescriptor{
		Request: &fakeType{name: "PingRequest"},
		Errors:  &fakeType{name: "PingError"},
		OneWay:  true,
	})
	if err != nil {
		t.Fatalf("newMessage: %v", err)
	}

	twoWayMsg, err := newMessage("ping", schema.MessageDescriptor{
		Request:  &fakeType{name: "PingRequest"},
		Response: &fakeType{name: "PingResponse"},
		Errors:   &fakeType{name: "PingError"},
	})
	if err != nil {
		t.Fatalf("newMessage: %v", err)
	}

	if err := twoWayMsg.CompatibleWith(oneWayMsg); err == nil {
		t.Fatal("expected a one-way-flag mismatch to be reported incompatible")
	}
}
