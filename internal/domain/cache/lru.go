// Package cache provides a thread-safe, approximately-LRU bounded cache
// used by the rate-limit engine (C9) to store its fixed-window buckets.
//
// The eviction policy is deliberately approximate: the doubly-linked
// recency list the teacher pack uses for its CEL decision cache is split
// across shardCount shards, each under its own lock, and generalized from
// a uint64 key to any comparable key via github.com/cespare/xxhash/v2
// (applied to fmt.Sprint(key) for every key, used only to fold it into a
// shard index, never as a security-sensitive hash).
package cache

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 16

// entry is a node in a shard's doubly-linked recency list.
type entry[K comparable, V any] struct {
	key   K
	value V
	prev  *entry[K, V]
	next  *entry[K, V]
}

// shard holds one partition of the cache, each independently locked.
type shard[K comparable, V any] struct {
	mu      sync.Mutex
	entries map[K]*entry[K, V]
	head    *entry[K, V] // most recently used
	tail    *entry[K, V] // least recently used
	maxSize int
}

// Cache is a bounded, approximately-LRU, thread-safe map from K to V.
//
// Each shard holds at most maxSize/shardCount entries (at least 1); when
// an insert takes a shard past that cap, the shard evicts its own
// least-recently-used entry. Because eviction is scoped to a shard rather
// than the whole cache, eviction can begin before the cache as a whole
// holds maxSize entries when keys spread unevenly across shards, and when
// maxSize is below shardCount the total can reach shardCount entries —
// this is the "approximate" eviction the LRU cache is documented to
// provide.
type Cache[K comparable, V any] struct {
	shards  [shardCount]*shard[K, V]
	maxSize int
}

// New creates a Cache bounded to approximately maxSize entries. maxSize
// must be > 0.
func New[K comparable, V any](maxSize int) *Cache[K, V] {
	if maxSize <= 0 {
		maxSize = 1
	}
	c := &Cache[K, V]{maxSize: maxSize}
	perShard := maxSize / shardCount
	if perShard < 1 {
		perShard = 1
	}
	for i := range c.shards {
		c.shards[i] = &shard[K, V]{
			entries: make(map[K]*entry[K, V]),
			maxSize: perShard,
		}
	}
	return c
}

func shardIndex[K comparable](key K) int {
	h := xxhash.Sum64String(fmt.Sprint(key))
	return int(h % shardCount)
}

// TryGet returns the value for key, promoting it to most-recently-used.
func (c *Cache[K, V]) TryGet(key K) (V, bool) {
	s := c.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	s.moveToHeadLocked(e)
	return e.value, true
}

// TryRemove deletes key from the cache, if present.
func (c *Cache[K, V]) TryRemove(key K) bool {
	s := c.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return false
	}
	s.removeLocked(e)
	delete(s.entries, key)
	return true
}

// GetOrAdd returns the existing value for key, or invokes factory to
// produce one. All concurrent callers eventually observe the same value
// (first successful insert wins), but factory MAY be invoked more than
// once under contention — only one of the concurrently-produced values is
// retained. This is a documented, tested relaxation in exchange for not
// holding the shard lock across an arbitrary factory call.
func (c *Cache[K, V]) GetOrAdd(key K, factory func() V) V {
	if v, ok := c.TryGet(key); ok {
		return v
	}

	v := factory()

	s := c.shards[shardIndex(key)]
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok {
		// Someone else won the race; first-wins.
		s.moveToHeadLocked(e)
		return e.value
	}

	e := &entry[K, V]{key: key, value: v}
	s.entries[key] = e
	s.pushHeadLocked(e)
	s.evictIfNeededLocked()
	return v
}

// Clear removes all entries from the cache.
func (c *Cache[K, V]) Clear() {
	for _, s := range c.shards {
		s.mu.Lock()
		s.entries = make(map[K]*entry[K, V])
		s.head = nil
		s.tail = nil
		s.mu.Unlock()
	}
}

// RemoveIf deletes every entry for which predicate returns true, used
// by periodic idle-expiration sweeps (e.g. the rate-limit engine's
// bucket cleanup). predicate is called under the owning shard's lock,
// so it must not call back into the Cache.
func (c *Cache[K, V]) RemoveIf(predicate func(key K, value V) bool) int {
	removed := 0
	for _, s := range c.shards {
		s.mu.Lock()
		for k, e := range s.entries {
			if predicate(k, e.value) {
				s.removeFromListLocked(e)
				delete(s.entries, k)
				removed++
			}
		}
		s.mu.Unlock()
	}
	return removed
}

// Count returns the total number of entries currently cached.
func (c *Cache[K, V]) Count() int {
	total := 0
	for _, s := range c.shards {
		s.mu.Lock()
		total += len(s.entries)
		s.mu.Unlock()
	}
	return total
}

func (s *shard[K, V]) moveToHeadLocked(e *entry[K, V]) {
	if s.head == e {
		return
	}
	s.removeFromListLocked(e)
	s.pushHeadLocked(e)
}

func (s *shard[K, V]) pushHeadLocked(e *entry[K, V]) {
	e.prev = nil
	e.next = s.head
	if s.head != nil {
		s.head.prev = e
	}
	s.head = e
	if s.tail == nil {
		s.tail = e
	}
}

func (s *shard[K, V]) removeFromListLocked(e *entry[K, V]) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		s.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		s.tail = e.prev
	}
	e.prev = nil
	e.next = nil
}

func (s *shard[K, V]) removeLocked(e *entry[K, V]) {
	s.removeFromListLocked(e)
}

func (s *shard[K, V]) evictIfNeededLocked() {
	for len(s.entries) > s.maxSize && s.tail != nil {
		victim := s.tail
		s.removeFromListLocked(victim)
		delete(s.entries, victim.key)
	}
}
