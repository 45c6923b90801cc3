// Package broadcast implements the event broadcaster (C4): per-document
// fan-out of CollaborationEvents to subscribed sessions, with a
// drop-oldest slow-consumer policy.
//
// Grounded on the teacher's internal/collab/room.go broadcast channel
// and handleBroadcast's non-blocking `select { ...; default: }`, here
// generalized from one shared channel per room into one ordered channel
// per subscriber so per-subscriber FIFO delivery (spec §4.4/§5) can be
// guaranteed independently of how slow any other subscriber is.
package broadcast

import (
	"sync"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
)

// DefaultSubscriberBuffer is the size of each subscriber's event queue
// before the drop-oldest policy kicks in.
const DefaultSubscriberBuffer = 64

// Subscription is a live, ordered delivery channel for one client on one
// document.
type Subscription struct {
	ClientID   domain.ClientId
	DocumentID domain.DocumentId
	Events     <-chan domain.CollaborationEvent

	events chan domain.CollaborationEvent
	b      *Broadcaster
	mu     sync.Mutex
	closed bool
}

// Unsubscribe ends the subscription. Idempotent.
func (s *Subscription) Unsubscribe() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.b.unsubscribe(s)
}

func (s *Subscription) enqueue(event domain.CollaborationEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.events <- event:
			return
		default:
		}
		// Slow-consumer policy: drop the oldest queued event and count
		// the drop, then retry the send.
		select {
		case <-s.events:
			s.b.recordDrop(s.DocumentID, s.ClientID)
		default:
			return
		}
	}
}

type docSubscribers struct {
	mu   sync.RWMutex
	subs map[domain.ClientId]*Subscription
}

// Broadcaster owns, per document id, a set of subscribers.
type Broadcaster struct {
	mu    sync.RWMutex
	byDoc map[domain.DocumentId]*docSubscribers

	bufferSize int

	dropMu sync.Mutex
	drops  map[string]uint64 // documentID/clientID -> drop count
}

// New creates an empty broadcaster. bufferSize <= 0 uses
// DefaultSubscriberBuffer.
func New(bufferSize int) *Broadcaster {
	if bufferSize <= 0 {
		bufferSize = DefaultSubscriberBuffer
	}
	return &Broadcaster{
		byDoc:      make(map[domain.DocumentId]*docSubscribers),
		bufferSize: bufferSize,
		drops:      make(map[string]uint64),
	}
}

// Subscribe creates an ordered delivery channel for clientID on
// documentID. While the subscription is live the client receives every
// event published after Subscribe returns for that document.
func (b *Broadcaster) Subscribe(documentID domain.DocumentId, clientID domain.ClientId) *Subscription {
	ch := make(chan domain.CollaborationEvent, b.bufferSize)
	sub := &Subscription{
		ClientID:   clientID,
		DocumentID: documentID,
		Events:     ch,
		events:     ch,
		b:          b,
	}

	b.mu.Lock()
	ds, ok := b.byDoc[documentID]
	if !ok {
		ds = &docSubscribers{subs: make(map[domain.ClientId]*Subscription)}
		b.byDoc[documentID] = ds
	}
	b.mu.Unlock()

	ds.mu.Lock()
	ds.subs[clientID] = sub
	ds.mu.Unlock()

	return sub
}

func (b *Broadcaster) unsubscribe(sub *Subscription) {
	b.mu.RLock()
	ds, ok := b.byDoc[sub.DocumentID]
	b.mu.RUnlock()
	if !ok {
		return
	}
	ds.mu.Lock()
	delete(ds.subs, sub.ClientID)
	empty := len(ds.subs) == 0
	ds.mu.Unlock()

	if empty {
		b.mu.Lock()
		if current, ok := b.byDoc[sub.DocumentID]; ok && current == ds {
			delete(b.byDoc, sub.DocumentID)
		}
		b.mu.Unlock()
	}
}

// Publish delivers event to every current subscriber of
// event.DocumentID, except excludeClientID when it is non-empty.
// Delivery to each subscriber is FIFO; across subscribers there is no
// ordering guarantee. Never blocks.
func (b *Broadcaster) Publish(event domain.CollaborationEvent, excludeClientID domain.ClientId) {
	b.mu.RLock()
	ds, ok := b.byDoc[event.DocumentID]
	b.mu.RUnlock()
	if !ok {
		return
	}

	ds.mu.RLock()
	targets := make([]*Subscription, 0, len(ds.subs))
	for id, sub := range ds.subs {
		if excludeClientID != "" && id == excludeClientID {
			continue
		}
		targets = append(targets, sub)
	}
	ds.mu.RUnlock()

	for _, sub := range targets {
		sub.enqueue(event)
	}
}

func (b *Broadcaster) recordDrop(documentID domain.DocumentId, clientID domain.ClientId) {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	b.drops[documentID+"/"+clientID]++
}

// DropCount reports how many events have been dropped for clientID on
// documentID due to a full subscriber buffer, for metrics/tests.
func (b *Broadcaster) DropCount(documentID domain.DocumentId, clientID domain.ClientId) uint64 {
	b.dropMu.Lock()
	defer b.dropMu.Unlock()
	return b.drops[documentID+"/"+clientID]
}

// SubscriberCount reports the live subscriber count for documentID, for
// /stats.
func (b *Broadcaster) SubscriberCount(documentID domain.DocumentId) int {
	b.mu.RLock()
	ds, ok := b.byDoc[documentID]
	b.mu.RUnlock()
	if !ok {
		return 0
	}
	ds.mu.RLock()
	defer ds.mu.RUnlock()
	return len(ds.subs)
}
