package sync

import (
	"sync"
)

// KeyedMutex serializes access to resources identified by a string key using
// sharded mutexes. Instead of a single global lock, keys are distributed
// across N shards by hash, which keeps contention low when many subjects
// stream frames concurrently. Two different keys may share a shard; that
// costs throughput, never correctness.
type KeyedMutex struct {
	shards [64]sync.Mutex
}

// NewKeyedMutex creates a KeyedMutex with 64 shards.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{}
}

// Lock acquires the lock for the given key's shard.
func (m *KeyedMutex) Lock(key string) {
	m.shards[m.shardFor(key)].Lock()
}

// Unlock releases the lock for the given key's shard.
func (m *KeyedMutex) Unlock(key string) {
	m.shards[m.shardFor(key)].Unlock()
}

// Do runs fn while holding the lock for key. Use it when the whole
// check-and-update sequence for one key must be a single critical section.
func (m *KeyedMutex) Do(key string, fn func()) {
	m.Lock(key)
	defer m.Unlock(key)
	fn()
}

// shardFor returns the shard index for the given key.
// Empty keys default to shard 0.
func (m *KeyedMutex) shardFor(key string) int {
	if key == "" {
		return 0
	}
	return int(hashString(key) % uint32(len(m.shards)))
}

// hashString provides a simple multiplicative hash for shard selection.
func hashString(s string) uint32 {
	var h uint32
	for i := 0; i < len(s); i++ {
		h = h*31 + uint32(s[i])
	}
	return h
}
