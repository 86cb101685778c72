package oath

import (
	"sync"
	"time"
)

// CacheTTL bounds how long an unlock secret stays usable without the user
// re-entering it. Reads within the window slide the expiry forward.
const CacheTTL = 5 * time.Minute

type cacheEntry[V any] struct {
	value V
	stamp time.Time
}

// ttlCache is a memory-only map from device identifier to secret material
// with sliding expiration. It is never persisted; the keyring-backed
// AccessKeyStore handles durable storage.
type ttlCache[V any] struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry[V]
}

func newTTLCache[V any]() ttlCache[V] {
	return ttlCache[V]{
		ttl:     CacheTTL,
		now:     time.Now,
		entries: make(map[string]cacheEntry[V]),
	}
}

func (c *ttlCache[V]) get(deviceID string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero V
	entry, ok := c.entries[deviceID]
	if !ok {
		return zero, false
	}
	now := c.now()
	if now.After(entry.stamp.Add(c.ttl)) {
		delete(c.entries, deviceID)
		return zero, false
	}
	entry.stamp = now
	c.entries[deviceID] = entry
	return entry.value, true
}

func (c *ttlCache[V]) set(deviceID string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[deviceID] = cacheEntry[V]{value: value, stamp: c.now()}
}

func (c *ttlCache[V]) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry[V])
}

// PasswordCache holds plaintext passwords keyed by device identifier.
type PasswordCache struct {
	ttlCache[string]
}

func NewPasswordCache() *PasswordCache {
	return &PasswordCache{newTTLCache[string]()}
}

func (c *PasswordCache) Get(deviceID string) (string, bool) { return c.get(deviceID) }
func (c *PasswordCache) Set(deviceID, password string)      { c.set(deviceID, password) }
func (c *PasswordCache) Clear()                             { c.clear() }

// AccessKeyCache holds derived access keys keyed by device identifier.
type AccessKeyCache struct {
	ttlCache[[]byte]
}

func NewAccessKeyCache() *AccessKeyCache {
	return &AccessKeyCache{newTTLCache[[]byte]()}
}

func (c *AccessKeyCache) Get(deviceID string) ([]byte, bool) { return c.get(deviceID) }
func (c *AccessKeyCache) Set(deviceID string, key []byte)    { c.set(deviceID, key) }
func (c *AccessKeyCache) Clear()                             { c.clear() }
