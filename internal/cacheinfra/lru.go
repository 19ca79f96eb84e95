package cacheinfra

import (
	"sync"
	"time"
)

// record is the value of an entry and its two timestamps. writtenAt governs
// hard expiry, loadedAt governs refresh eligibility.
type record[V any] struct {
	value     V
	writtenAt time.Time
	loadedAt  time.Time
}

func (r record[V]) expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(r.writtenAt) >= ttl
}

// node is one entry inside a shard's recency list.
type node[V any] struct {
	key string
	record[V]

	// prev points to the more recently used node
	prev *node[V]
	// next points to the less recently used node
	next *node[V]
}

// shard is an exact LRU over its share of the key space.
type shard[V any] struct {
	mu       sync.Mutex
	nodes    map[string]*node[V]
	head     *node[V]
	tail     *node[V]
	capacity int
}

func newShard[V any](capacity int) *shard[V] {
	return &shard[V]{
		nodes:    make(map[string]*node[V]),
		capacity: capacity,
	}
}

// lookup returns the record for key and marks it most recently used.
// An expired record is removed and reported through expired.
func (s *shard[V]) lookup(key string, now time.Time, ttl time.Duration) (rec record[V], ok bool, expired bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, found := s.nodes[key]
	if !found {
		return rec, false, false
	}
	if n.expired(now, ttl) {
		s.unlink(n)
		delete(s.nodes, key)
		return rec, false, true
	}
	s.moveToFront(n)
	return n.record, true, false
}

// put inserts or replaces key and returns how many entries were evicted to
// stay within capacity.
func (s *shard[V]) put(key string, rec record[V]) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n, ok := s.nodes[key]; ok {
		n.record = rec
		s.moveToFront(n)
		return 0
	}

	n := &node[V]{key: key, record: rec}
	s.nodes[key] = n
	s.addFront(n)

	evicted := 0
	for len(s.nodes) > s.capacity && s.tail != nil {
		victim := s.tail
		s.unlink(victim)
		delete(s.nodes, victim.key)
		evicted++
	}
	return evicted
}

// touchLoaded moves loadedAt forward without changing the value or writtenAt.
func (s *shard[V]) touchLoaded(key string, at time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[key]
	if !ok {
		return false
	}
	n.loadedAt = at
	return true
}

func (s *shard[V]) remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[key]
	if !ok {
		return false
	}
	s.unlink(n)
	delete(s.nodes, key)
	return true
}

func (s *shard[V]) clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nodes = make(map[string]*node[V])
	s.head = nil
	s.tail = nil
}

// each calls fn for every live entry from most to least recently used,
// without touching recency.
func (s *shard[V]) each(now time.Time, ttl time.Duration, fn func(key string, rec record[V])) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n := s.head; n != nil; n = n.next {
		if !n.expired(now, ttl) {
			fn(n.key, n.record)
		}
	}
}

// sweep removes expired entries and returns how many were dropped.
func (s *shard[V]) sweep(now time.Time, ttl time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	dropped := 0
	for n := s.tail; n != nil; {
		prev := n.prev
		if n.expired(now, ttl) {
			s.unlink(n)
			delete(s.nodes, n.key)
			dropped++
		}
		n = prev
	}
	return dropped
}

func (s *shard[V]) addFront(n *node[V]) {
	n.prev = nil
	n.next = s.head
	if s.head != nil {
		s.head.prev = n
	}
	s.head = n
	if s.tail == nil {
		s.tail = n
	}
}

func (s *shard[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		s.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		s.tail = n.prev
	}
	n.prev = nil
	n.next = nil
}

func (s *shard[V]) moveToFront(n *node[V]) {
	if s.head == n {
		return
	}
	s.unlink(n)
	s.addFront(n)
}
