package session

import (
	"testing"
	"time"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
)

func newSession(clientID, documentID, userID string) *domain.CollaborationSession {
	now := time.Now()
	return &domain.CollaborationSession{
		ClientID:   domain.ClientId(clientID),
		DocumentID: domain.DocumentId(documentID),
		UserID:     domain.UserId(userID),
		CreatedAt:  now,
		LastSeenAt: now,
		Status:     domain.StatusActive,
	}
}

func TestAddRejectsDuplicateClient(t *testing.T) {
	s := New()
	if err := s.Add(newSession("c1", "d1", "u1")); err != nil {
		t.Fatalf("first add: %v", err)
	}
	if err := s.Add(newSession("c1", "d1", "u1")); err != domain.ErrDuplicateClient {
		t.Fatalf("expected ErrDuplicateClient, got %v", err)
	}
}

func TestRemoveClearsSecondaryIndexes(t *testing.T) {
	s := New()
	_ = s.Add(newSession("c1", "d1", "u1"))

	removed := s.Remove("c1")
	if removed == nil {
		t.Fatal("expected removed session, got nil")
	}
	if got := s.Get("c1"); got != nil {
		t.Fatal("expected session to be gone after Remove")
	}
	if len(s.ActiveByDocument("d1", time.Now(), time.Minute)) != 0 {
		t.Fatal("expected document index to be cleared")
	}
	if len(s.ByUser("u1")) != 0 {
		t.Fatal("expected user index to be cleared")
	}
}

func TestActiveByDocumentFiltersStaleSessions(t *testing.T) {
	s := New()
	_ = s.Add(newSession("fresh", "d1", "u1"))
	_ = s.Add(newSession("stale", "d1", "u2"))
	s.Touch("stale", time.Now().Add(-time.Hour))

	active := s.ActiveByDocument("d1", time.Now(), time.Minute)
	if len(active) != 1 || active[0].ClientID != "fresh" {
		t.Fatalf("expected only 'fresh' active, got %v", active)
	}
}

func TestSweepRemovesExpiredSessions(t *testing.T) {
	s := New()
	_ = s.Add(newSession("c1", "d1", "u1"))
	s.Touch("c1", time.Now().Add(-time.Hour))

	expired := s.Sweep(time.Now(), time.Minute)
	if len(expired) != 1 || expired[0].ClientID != "c1" {
		t.Fatalf("expected c1 swept, got %v", expired)
	}
	if s.Count() != 0 {
		t.Fatalf("expected store empty after sweep, got %d", s.Count())
	}
}
