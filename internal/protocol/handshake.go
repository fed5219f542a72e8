package protocol

import (
	"errors"
	"fmt"

	"github.com/avrorpc/go-avrorpc/internal/wire"
	"github.com/avrorpc/go-avrorpc/schema"
)

// EmitterHandshake drives the emitter side of handshake negotiation across
// one or more round trips against a single listener connection. A stateful
// emitter uses one per connection and keeps only its PeerFingerprint once
// the handshake is done; a stateless emitter uses one per call.
type EmitterHandshake struct {
	p *Protocol

	// assumedServerHash is our current guess at the listener's
	// fingerprint: the listener's own hash once negotiated, or our own
	// fingerprint on the optimistic first attempt.
	assumedServerHash [16]byte
	sentProtocolText  bool
	done              bool

	// peerFingerprint is the listener's protocol fingerprint as
	// established by the accepted response: this protocol's own
	// fingerprint on a BOTH match, or the listener's actual fingerprint
	// on a CLIENT match. Only meaningful once Done reports true.
	peerFingerprint [16]byte
}

// NewEmitterHandshake starts a handshake for p, optimistically assuming the
// listener already knows this exact protocol.
func NewEmitterHandshake(p *Protocol) *EmitterHandshake {
	return &EmitterHandshake{p: p, assumedServerHash: p.fingerprint, peerFingerprint: p.fingerprint}
}

// Done reports whether the last response accepted the client's requests
// (BOTH or CLIENT), so no further handshake round trip is needed.
func (h *EmitterHandshake) Done() bool { return h.done }

// PeerFingerprint returns the listener's protocol fingerprint established
// by a completed handshake, used to look up cached resolvers for decoding
// its responses (see Protocol.EmitterResolvers). Only meaningful once Done
// reports true.
func (h *EmitterHandshake) PeerFingerprint() [16]byte { return h.peerFingerprint }

// NextRequest builds the request for the next round trip.
func (h *EmitterHandshake) NextRequest() wire.HandshakeRequest {
	req := wire.HandshakeRequest{
		ClientHash: h.p.fingerprint,
		ServerHash: h.assumedServerHash,
	}
	if h.sentProtocolText {
		req.ClientProtocol = h.p.text
	}
	return req
}

// Accept processes a handshake response. It returns (true, nil) once the
// listener has accepted the emitter's requests for resolvers to build
// against (updating the protocol's cached emitter resolvers as needed), or
// (false, nil) when another round trip — this time including the client's
// protocol text — is required. A non-nil error means the handshake cannot
// proceed at all.
func (h *EmitterHandshake) Accept(resp wire.HandshakeResponse) (bool, error) {
	switch resp.Match {
	case wire.MatchBoth:
		h.done = true
		return true, nil

	case wire.MatchClient:
		// The listener understood our protocol by fingerprint but
		// resolves our requests against a different protocol of its
		// own (resp.ServerProtocol carries it). Build and cache
		// emitter-side resolvers so calls decode the listener's
		// responses correctly.
		if resp.ServerProtocol == "" {
			return false, fmt.Errorf("%w: CLIENT match without serverProtocol", ErrInvalidMetadata)
		}
		peerFingerprint, err := h.cacheResolversAgainst(resp.ServerProtocol, resp.ServerHash, resp.HasServerHash)
		if err != nil {
			return false, err
		}
		h.peerFingerprint = peerFingerprint
		h.done = true
		return true, nil

	case wire.MatchNone:
		if resp.Error != "" {
			return false, &HandshakeError{Reason: resp.Error}
		}
		if h.sentProtocolText {
			return false, &HandshakeError{Reason: "listener rejected handshake after receiving client protocol text"}
		}
		if resp.HasServerHash {
			h.assumedServerHash = resp.ServerHash
		}
		h.sentProtocolText = true
		return false, nil

	default:
		return false, &HandshakeError{Reason: fmt.Sprintf("unknown match code %d", resp.Match)}
	}
}

func (h *EmitterHandshake) cacheResolversAgainst(protocolText string, serverHash [16]byte, hasHash bool) ([16]byte, error) {
	peer, err := h.p.system.ParseProtocol(protocolText)
	if err != nil {
		return [16]byte{}, fmt.Errorf("avrorpc: protocol: parse server protocol: %w", err)
	}

	peerFingerprint := serverHash
	if !hasHash {
		peerFingerprint = peer.Fingerprint
	}

	if h.p.KnownByEmitter(peerFingerprint) {
		return peerFingerprint, nil
	}

	peerMessages, err := messagesFromDescriptor(peer)
	if err != nil {
		return [16]byte{}, err
	}

	// The emitter decodes responses the listener wrote under the
	// listener's own response type, so the listener plays writer here.
	resolvers, err := buildResolvers(h.p.system, peerMessages, h.p.messages, (*Message).Response)
	if err != nil {
		return [16]byte{}, err
	}
	h.p.CacheEmitterResolvers(peerFingerprint, resolvers)
	return peerFingerprint, nil
}

// ListenerHandshake evaluates one inbound handshake request and produces
// the response to send back, per the listener-side negotiation algorithm:
// a request naming this protocol's own fingerprint on both sides is
// accepted outright (BOTH); a request naming a client fingerprint this
// protocol has already resolved against is accepted without needing the
// protocol text again (CLIENT); otherwise the client's protocol text
// (required at that point) is parsed, checked for compatibility, and its
// resolvers are cached before replying CLIENT; a request that still lacks
// usable protocol text is rejected (NONE) so the emitter retries with it.
type ListenerHandshake struct {
	p *Protocol
}

// NewListenerHandshake returns a handshake evaluator bound to p.
func NewListenerHandshake(p *Protocol) *ListenerHandshake {
	return &ListenerHandshake{p: p}
}

// Evaluate processes req and returns the response to send, along with the
// peer (emitter) fingerprint established by this exchange — valid only
// when the response's match is not NONE.
func (h *ListenerHandshake) Evaluate(req wire.HandshakeRequest) (wire.HandshakeResponse, [16]byte, error) {
	own := h.p.fingerprint

	if req.ClientHash == own && req.ServerHash == own {
		return wire.HandshakeResponse{Match: wire.MatchBoth}, req.ClientHash, nil
	}

	if h.p.KnownByListener(req.ClientHash) {
		return wire.HandshakeResponse{
			Match:          wire.MatchClient,
			ServerProtocol: h.p.text,
			ServerHash:     own,
			HasServerHash:  true,
		}, req.ClientHash, nil
	}

	clientProtocol := req.ClientProtocol
	if clientProtocol == "" {
		// The in-memory resolver cache is empty (process just started) but
		// a persistent HandshakeCache may still remember this client from
		// before the restart, sparing it a NONE round trip.
		cached, ok := h.p.CachedProtocolText(req.ClientHash)
		if !ok {
			return wire.HandshakeResponse{
				Match:          wire.MatchNone,
				ServerProtocol: h.p.text,
				ServerHash:     own,
				HasServerHash:  true,
			}, req.ClientHash, nil
		}
		clientProtocol = cached
	}

	peer, err := h.p.system.ParseProtocol(clientProtocol)
	if err != nil {
		return wire.HandshakeResponse{}, req.ClientHash, &HandshakeError{Reason: fmt.Sprintf("parse client protocol: %v", err)}
	}
	peerMessages, err := messagesFromDescriptor(peer)
	if err != nil {
		return wire.HandshakeResponse{}, req.ClientHash, err
	}

	// The listener decodes requests the client wrote under the client's
	// own request type, so the client plays writer here.
	resolvers, err := buildResolvers(h.p.system, peerMessages, h.p.messages, (*Message).Request)
	if err != nil {
		var compatErr *CompatibilityError
		if errors.As(err, &compatErr) {
			return wire.HandshakeResponse{
				Match:          wire.MatchNone,
				ServerProtocol: h.p.text,
				ServerHash:     own,
				HasServerHash:  true,
				Error:          compatErr.Error(),
			}, req.ClientHash, nil
		}
		return wire.HandshakeResponse{}, req.ClientHash, err
	}

	h.p.CacheListenerResolvers(peer.Fingerprint, resolvers)
	h.p.RememberProtocolText(peer.Fingerprint, clientProtocol)

	return wire.HandshakeResponse{
		Match:          wire.MatchClient,
		ServerProtocol: h.p.text,
		ServerHash:     own,
		HasServerHash:  true,
	}, peer.Fingerprint, nil
}

// buildResolvers checks that every message the writer side declares is
// known to the reader side and compatible with it, and builds a resolver
// for each so the reader can decode bytes the writer encoded under its own
// (possibly different) view of the type pick selects — Request when the
// listener is building resolvers for decoding inbound calls, Response when
// the emitter is building resolvers for decoding their results. The same
// helper serves both directions of negotiation; only which side plays
// writer, which plays reader, and which type pick selects change.
func buildResolvers(system schema.System, writerMessages, readerMessages map[string]*Message, pick func(*Message) schema.Type) (map[string]schema.Resolver, error) {
	resolvers := make(map[string]schema.Resolver, len(writerMessages))

	for name, wm := range writerMessages {
		rm, ok := readerMessages[name]
		if !ok {
			return nil, &CompatibilityError{Message: name, Reason: "not declared by peer"}
		}
		if err := wm.CompatibleWith(rm); err != nil {
			return nil, &CompatibilityError{Message: name, Reason: err.Error()}
		}

		wt, rt := pick(wm), pick(rm)
		if wt == nil || rt == nil {
			// A one-way message, or a response type genuinely absent
			// on one side: nothing for this direction to resolve.
			continue
		}

		resolver, err := system.CreateResolver(wt, rt)
		if err != nil {
			return nil, &CompatibilityError{Message: name, Reason: fmt.Sprintf("type mismatch: %v", err)}
		}
		resolvers[name] = resolver
	}

	return resolvers, nil
}

// messagesFromDescriptor rebuilds the *Message view of a protocol
// descriptor's messages, the same way Protocol.New does for a locally held
// protocol, so a peer's handshake-negotiated protocol text can be checked
// for compatibility with the same logic.
func messagesFromDescriptor(d *schema.ProtocolDescriptor) (map[string]*Message, error) {
	messages := make(map[string]*Message, len(d.Messages))
	for name, md := range d.Messages {
		m, err := newMessage(name, md)
		if err != nil {
			return nil, err
		}
		messages[name] = m
	}
	return messages, nil
}
