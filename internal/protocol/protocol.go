// Package protocol implements the core of an Avro RPC runtime: the
// Protocol and Message data model and handshake negotiation, on which the
// emitter and listener packages build sessions; the framed wire format
// itself lives in internal/wire. It consumes Avro schema parsing and value encoding through the
// schema package rather than implementing either itself.
package protocol

import (
	"fmt"
	"sync"

	"github.com/avrorpc/go-avrorpc/internal/events"
	"github.com/avrorpc/go-avrorpc/logging"
	"github.com/avrorpc/go-avrorpc/schema"
)

// HandshakeCache lets a Protocol warm its listener-side handshake
// negotiation from a persistent store of previously-seen peer protocols,
// so a process restart doesn't force every known peer through a NONE
// round trip (see internal/diskcache). It is optional; a Protocol with no
// cache configured behaves exactly like the in-memory-only algorithm.
type HandshakeCache interface {
	Get(fingerprint [16]byte) (protocolText string, ok bool)
	Put(fingerprint [16]byte, protocolText string)
}

// Protocol is the in-memory description of a named Avro RPC protocol: its
// declared types, its messages, and its identity fingerprint. It is
// immutable once constructed, except for handler registrations and the
// resolver caches, both of which are safe for concurrent use.
type Protocol struct {
	name        string
	namespace   string
	fullName    string
	text        string
	types       []schema.Type
	messages    map[string]*Message
	fingerprint [16]byte
	system      schema.System

	// emitterCache and listenerCache are shared, by pointer, between a
	// parent Protocol and every Subprotocol derived from it.
	emitterCache  *resolverCache
	listenerCache *resolverCache

	mu       sync.RWMutex
	handlers map[string]Handler

	cache  HandshakeCache
	log    logging.Func
	events *events.Source
}

// Option configures a Protocol at construction time.
type Option func(*options)

type options struct {
	cache  HandshakeCache
	log    logging.Func
	events *events.Source
}

func defaultOptions() *options {
	return &options{log: logging.None}
}

// WithHandshakeCache attaches a persistent handshake cache.
func WithHandshakeCache(cache HandshakeCache) Option {
	return func(o *options) { o.cache = cache }
}

// WithLogFunc sets the logging function used by the protocol and the
// sessions created from it.
func WithLogFunc(log logging.Func) Option {
	return func(o *options) { o.log = log }
}

// WithEvents attaches an event source that emitter and listener sessions
// built from this protocol publish lifecycle events to. Unset, sessions
// publish to nobody.
func WithEvents(source *events.Source) Option {
	return func(o *options) { o.events = source }
}

// New builds a Protocol from a descriptor produced by a concrete schema
// system (see internal/avroschema.ParseProtocol) and the system used to
// resolve schemas between peers.
func New(d *schema.ProtocolDescriptor, system schema.System, opts ...Option) (*Protocol, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	if d.Name == "" {
		return nil, fmt.Errorf("avrorpc: protocol: protocol name must not be empty")
	}

	messages := make(map[string]*Message, len(d.Messages))
	for name, md := range d.Messages {
		m, err := newMessage(name, md)
		if err != nil {
			return nil, err
		}
		messages[name] = m
	}

	fullName := d.Name
	if d.Namespace != "" {
		fullName = d.Namespace + "." + d.Name
	}

	return &Protocol{
		name:          d.Name,
		namespace:     d.Namespace,
		fullName:      fullName,
		text:          d.Text,
		types:         d.Types,
		messages:      messages,
		fingerprint:   d.Fingerprint,
		system:        system,
		emitterCache:  newResolverCache(),
		listenerCache: newResolverCache(),
		handlers:      make(map[string]Handler),
		cache:         o.cache,
		log:           o.log,
		events:        o.events,
	}, nil
}

// Name returns the protocol's fully-qualified name (namespace.protocol).
func (p *Protocol) Name() string { return p.fullName }

// Fingerprint returns the protocol's 16-byte MD5 fingerprint.
func (p *Protocol) Fingerprint() [16]byte { return p.fingerprint }

// Text returns the protocol's canonical JSON document, exchanged verbatim
// during handshake negotiation.
func (p *Protocol) Text() string { return p.text }

// Messages returns the protocol's declared messages, keyed by name.
func (p *Protocol) Messages() map[string]*Message { return p.messages }

// Events returns the protocol's event source, or nil if none was
// configured with WithEvents. A nil *events.Source is safe to publish and
// subscribe to — both are no-ops — so callers never need a nil check.
func (p *Protocol) Events() *events.Source { return p.events }

// Message looks up a declared message by name.
func (p *Protocol) Message(name string) (*Message, bool) {
	m, ok := p.messages[name]
	return m, ok
}

// System returns the schema system this protocol resolves against.
func (p *Protocol) System() schema.System { return p.system }

// Log emits a log line through the protocol's configured logging.Func.
func (p *Protocol) Log(level logging.Level, format string, a ...any) {
	p.log(level, format, a...)
}

// On registers the handler invoked for inbound requests named
// messageName. Registering a handler for an unknown message name is not
// an error at registration time — only at dispatch, so that a listener
// and its protocol can be wired up before a negotiated message set is
// known.
func (p *Protocol) On(messageName string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[messageName] = handler
}

// HandlerFor returns the handler registered for messageName, if any.
func (p *Protocol) HandlerFor(messageName string) (Handler, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	h, ok := p.handlers[messageName]
	return h, ok
}

// Subprotocol returns a new Protocol with the same name, types, messages
// and fingerprint, sharing this protocol's resolver caches and handshake
// cache, but with its own independent handler registrations. This is the
// mechanism a server uses to give each accepted connection its own
// per-session handler set while still sharing the (expensive to build)
// negotiated-resolver state across every session.
func (p *Protocol) Subprotocol() *Protocol {
	return &Protocol{
		name:          p.name,
		namespace:     p.namespace,
		fullName:      p.fullName,
		text:          p.text,
		types:         p.types,
		messages:      p.messages,
		fingerprint:   p.fingerprint,
		system:        p.system,
		emitterCache:  p.emitterCache,
		listenerCache: p.listenerCache,
		handlers:      make(map[string]Handler),
		cache:         p.cache,
		log:           p.log,
		events:        p.events,
	}
}

// EmitterResolvers returns the resolver set cached for the given peer
// (listener) fingerprint, if this protocol has already negotiated with
// it.
func (p *Protocol) EmitterResolvers(peerFingerprint [16]byte) (map[string]schema.Resolver, bool) {
	return p.resolversFor(p.emitterCache, peerFingerprint)
}

// ListenerResolvers returns the resolver set cached for the given peer
// (emitter) fingerprint, if this protocol has already negotiated with it.
func (p *Protocol) ListenerResolvers(peerFingerprint [16]byte) (map[string]schema.Resolver, bool) {
	return p.resolversFor(p.listenerCache, peerFingerprint)
}

func (p *Protocol) resolversFor(cache *resolverCache, fp [16]byte) (map[string]schema.Resolver, bool) {
	if !cache.known(fp) {
		return nil, false
	}

	resolvers := make(map[string]schema.Resolver, len(p.messages))
	for name := range p.messages {
		if r, ok := cache.get(fp, name); ok {
			resolvers[name] = r
		}
	}
	return resolvers, true
}

// CacheEmitterResolvers records the resolver set built for peerFingerprint
// under the emitter role.
func (p *Protocol) CacheEmitterResolvers(peerFingerprint [16]byte, resolvers map[string]schema.Resolver) {
	p.emitterCache.put(peerFingerprint, resolvers)
}

// CacheListenerResolvers records the resolver set built for
// peerFingerprint under the listener role.
func (p *Protocol) CacheListenerResolvers(peerFingerprint [16]byte, resolvers map[string]schema.Resolver) {
	p.listenerCache.put(peerFingerprint, resolvers)
}

// KnownByListener reports whether this protocol has already negotiated,
// as a listener, with the peer identified by fingerprint.
func (p *Protocol) KnownByListener(fingerprint [16]byte) bool {
	return p.listenerCache.known(fingerprint)
}

// KnownByEmitter reports whether this protocol has already negotiated, as
// an emitter, with the peer identified by fingerprint.
func (p *Protocol) KnownByEmitter(fingerprint [16]byte) bool {
	return p.emitterCache.known(fingerprint)
}

// CachedProtocolText consults the optional persistent handshake cache for
// protocol text previously seen from fingerprint.
func (p *Protocol) CachedProtocolText(fingerprint [16]byte) (string, bool) {
	if p.cache == nil {
		return "", false
	}
	return p.cache.Get(fingerprint)
}

// RememberProtocolText persists protocolText under fingerprint in the
// optional persistent handshake cache, if one is configured.
func (p *Protocol) RememberProtocolText(fingerprint [16]byte, protocolText string) {
	if p.cache == nil {
		return
	}
	p.cache.Put(fingerprint, protocolText)
}
