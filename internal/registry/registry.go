// Package registry implements the document registry (C2): a map from
// document id to a live CRDT document, with get-or-create semantics and
// idle eviction.
//
// Grounded on the teacher's internal/collab/manager.go RoomManager
// (map[uuid.UUID]*Room guarded by sync.RWMutex), generalized into a
// sharded concurrent map so lookups/inserts on different document ids
// don't contend on one lock, per spec §5's "fine-grained concurrent
// map" requirement.
package registry

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/crdt"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
)

const shardCount = 32

// Entry is the registry value: one live document plus its bookkeeping.
// Mirrors spec §3's DocumentEntry.
type Entry struct {
	DocumentID      string
	Doc             *crdt.Document
	mu              sync.Mutex
	subscriberCount int
	lastActivityAt  time.Time

	// seq is the per-document monotonically increasing sequence number
	// handed out to DocumentUpdated events (spec §4.5's sequence-number
	// contract). It resets to zero whenever the entry is evicted and
	// recreated, which is the documented, observable behaviour in
	// spec §9.
	seq int64
}

// Acquire increments the subscriber count, marking the entry as in use.
func (e *Entry) Acquire() {
	e.mu.Lock()
	e.subscriberCount++
	e.lastActivityAt = time.Now()
	e.mu.Unlock()
}

// Release decrements the subscriber count. Once it reaches zero the
// entry becomes eligible for idle eviction after document_ttl.
func (e *Entry) Release() {
	e.mu.Lock()
	if e.subscriberCount > 0 {
		e.subscriberCount--
	}
	e.lastActivityAt = time.Now()
	e.mu.Unlock()
}

// Touch marks the entry as recently active without changing the
// subscriber count (used on every document mutation).
func (e *Entry) Touch() {
	e.mu.Lock()
	e.lastActivityAt = time.Now()
	e.mu.Unlock()
}

// NextSequence assigns the next monotonically increasing sequence number
// for a DocumentUpdated event on this entry. Must be called while the
// caller holds (conceptually) the document's own serialisation -- in
// practice this is cheap enough to guard with the entry's own mutex.
func (e *Entry) NextSequence() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	return e.seq
}

func (e *Entry) idle(now time.Time, ttl time.Duration) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscriberCount == 0 && now.Sub(e.lastActivityAt) >= ttl
}

// SubscriberCount reports the current subscriber count (for metrics/
// tests).
func (e *Entry) SubscriberCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.subscriberCount
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// Registry maps document id to live CollaborativeDocument entries.
type Registry struct {
	shards [shardCount]*shard
}

// New creates an empty registry.
func New() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[string]*Entry)}
	}
	return r
}

func (r *Registry) shardFor(documentID string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(documentID))
	return r.shards[h.Sum32()%shardCount]
}

// GetOrCreate is atomic: concurrent callers for the same id receive the
// same entry. Never fails.
func (r *Registry) GetOrCreate(documentID string) *Entry {
	s := r.shardFor(documentID)

	s.mu.RLock()
	if e, ok := s.entries[documentID]; ok {
		s.mu.RUnlock()
		return e
	}
	s.mu.RUnlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[documentID]; ok {
		return e
	}
	e := &Entry{
		DocumentID:     documentID,
		Doc:            crdt.NewDocument(),
		lastActivityAt: time.Now(),
	}
	s.entries[documentID] = e
	return e
}

// Get looks up an existing entry without creating one.
func (r *Registry) Get(documentID string) (*Entry, bool) {
	s := r.shardFor(documentID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[documentID]
	return e, ok
}

// Snapshot returns (state_vector, encode_full) for a document, taken
// under the document's own serialisation lock. Returns ErrDocumentNotFound
// if the id has never been created.
func (r *Registry) Snapshot(documentID string) (stateVector []byte, full []byte, err error) {
	e, found := r.Get(documentID)
	if !found {
		return nil, nil, domain.ErrDocumentNotFound
	}
	return e.Doc.StateVector(), e.Doc.EncodeFull(), nil
}

// EvictIdle removes every entry idle for at least ttl (subscriberCount
// == 0 and lastActivityAt older than ttl) and returns their document ids.
func (r *Registry) EvictIdle(ttl time.Duration) []string {
	now := time.Now()
	var evicted []string
	for _, s := range r.shards {
		s.mu.Lock()
		for id, e := range s.entries {
			if e.idle(now, ttl) {
				delete(s.entries, id)
				evicted = append(evicted, id)
			}
		}
		s.mu.Unlock()
	}
	return evicted
}

// Count returns the number of live entries, for /stats.
func (r *Registry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.entries)
		s.mu.RUnlock()
	}
	return total
}
