// Package session implements the session store (C3): active client
// sessions indexed by client id (primary), document id (secondary) and
// user id (tertiary).
//
// Grounded on the teacher's internal/collab/room.go Room.clients /
// Room.presence maps, generalized into a standalone, document-agnostic
// store so it can be shared across every document's sessions under one
// set of linearisable contracts (spec §4.3).
package session

import (
	"sync"
	"time"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
)

// Store indexes CollaborationSessions by client id, with shadow indexes
// by document id and user id kept consistent under the same lock.
type Store struct {
	mu sync.RWMutex

	byClient   map[domain.ClientId]*domain.CollaborationSession
	byDocument map[domain.DocumentId]map[domain.ClientId]struct{}
	byUser     map[domain.UserId]map[domain.ClientId]struct{}
}

// New creates an empty session store.
func New() *Store {
	return &Store{
		byClient:   make(map[domain.ClientId]*domain.CollaborationSession),
		byDocument: make(map[domain.DocumentId]map[domain.ClientId]struct{}),
		byUser:     make(map[domain.UserId]map[domain.ClientId]struct{}),
	}
}

// Add inserts a new session. Fails with domain.ErrDuplicateClient if the
// client_id is already present.
func (s *Store) Add(sess *domain.CollaborationSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byClient[sess.ClientID]; exists {
		return domain.ErrDuplicateClient
	}

	stored := sess.Clone()
	s.byClient[sess.ClientID] = stored

	if s.byDocument[sess.DocumentID] == nil {
		s.byDocument[sess.DocumentID] = make(map[domain.ClientId]struct{})
	}
	s.byDocument[sess.DocumentID][sess.ClientID] = struct{}{}

	if s.byUser[sess.UserID] == nil {
		s.byUser[sess.UserID] = make(map[domain.ClientId]struct{})
	}
	s.byUser[sess.UserID][sess.ClientID] = struct{}{}

	return nil
}

// Get returns a defensive copy of the session for client_id, or nil if
// absent.
func (s *Store) Get(clientID domain.ClientId) *domain.CollaborationSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byClient[clientID].Clone()
}

// ActiveByDocument returns every session for documentID whose status is
// Active (or Offline, treated equivalently for fan-out) and whose
// last-seen is within threshold of now.
func (s *Store) ActiveByDocument(documentID domain.DocumentId, now time.Time, threshold time.Duration) []*domain.CollaborationSession {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byDocument[documentID]
	out := make([]*domain.CollaborationSession, 0, len(ids))
	for id := range ids {
		sess := s.byClient[id]
		if sess == nil {
			continue
		}
		if sess.IsActive(now, threshold) {
			out = append(out, sess.Clone())
		}
	}
	return out
}

// Touch refreshes last_seen_at for client_id. No-op if the client is
// absent.
func (s *Store) Touch(clientID domain.ClientId, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.byClient[clientID]; ok {
		sess.LastSeenAt = now
	}
}

// Remove deletes the session for client_id, returning it (or nil if it
// was absent).
func (s *Store) Remove(clientID domain.ClientId) *domain.CollaborationSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.removeLocked(clientID)
}

func (s *Store) removeLocked(clientID domain.ClientId) *domain.CollaborationSession {
	sess, ok := s.byClient[clientID]
	if !ok {
		return nil
	}
	delete(s.byClient, clientID)

	if docs := s.byDocument[sess.DocumentID]; docs != nil {
		delete(docs, clientID)
		if len(docs) == 0 {
			delete(s.byDocument, sess.DocumentID)
		}
	}
	if users := s.byUser[sess.UserID]; users != nil {
		delete(users, clientID)
		if len(users) == 0 {
			delete(s.byUser, sess.UserID)
		}
	}

	return sess.Clone()
}

// Sweep removes and returns every session whose last-seen exceeds
// threshold as of now.
func (s *Store) Sweep(now time.Time, threshold time.Duration) []*domain.CollaborationSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []domain.ClientId
	for id, sess := range s.byClient {
		if now.Sub(sess.LastSeenAt) > threshold {
			expired = append(expired, id)
		}
	}

	out := make([]*domain.CollaborationSession, 0, len(expired))
	for _, id := range expired {
		if removed := s.removeLocked(id); removed != nil {
			out = append(out, removed)
		}
	}
	return out
}

// ByUser returns every live session for userID (multi-tab query).
func (s *Store) ByUser(userID domain.UserId) []*domain.CollaborationSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byUser[userID]
	out := make([]*domain.CollaborationSession, 0, len(ids))
	for id := range ids {
		out = append(out, s.byClient[id].Clone())
	}
	return out
}

// Count returns the total number of live sessions, for /stats.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byClient)
}
