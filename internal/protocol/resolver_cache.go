package protocol

import (
	"sync"

	"github.com/avrorpc/go-avrorpc/schema"
)

// resolverCache maps a peer's protocol fingerprint to the set of resolvers
// built against that peer's declared messages. There is one cache for the
// emitter role and one for the listener role; a parent Protocol and any
// Subprotocol derived from it share the same cache instances (see
// Protocol.Subprotocol), so a peer negotiated against once is known to
// every subprotocol too. Reads are far more frequent than writes (a write
// only happens the first time a given peer fingerprint is seen), so a
// RWMutex is enough to make this safe for concurrent readers with a
// serialized writer.
type resolverCache struct {
	mu      sync.RWMutex
	entries map[[16]byte]map[string]schema.Resolver
}

func newResolverCache() *resolverCache {
	return &resolverCache{entries: make(map[[16]byte]map[string]schema.Resolver)}
}

func (c *resolverCache) get(fp [16]byte, message string) (schema.Resolver, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	set, ok := c.entries[fp]
	if !ok {
		return nil, false
	}
	r, ok := set[message]
	return r, ok
}

func (c *resolverCache) known(fp [16]byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	_, ok := c.entries[fp]
	return ok
}

func (c *resolverCache) put(fp [16]byte, resolvers map[string]schema.Resolver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[fp] = resolvers
}
