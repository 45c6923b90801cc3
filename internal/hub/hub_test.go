package hub

import (
	"bytes"
	"testing"
	"time"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/crdt"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
)

func TestJoinDocumentBroadcastsToEveryoneIncludingNewcomer(t *testing.T) {
	h := New(time.Minute)
	sub := h.Broadcaster.Subscribe("doc-1", "c1")
	defer sub.Unsubscribe()

	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatalf("join: %v", err)
	}

	select {
	case event := <-sub.Events:
		if event.Type != domain.EventUserJoined {
			t.Fatalf("expected UserJoined, got %v", event.Type)
		}
	case <-time.After(time.Second):
		t.Fatal("newcomer did not receive its own UserJoined event")
	}
}

func TestTwoClientsConvergeOnDocumentUpdate(t *testing.T) {
	h := New(time.Minute)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := h.JoinDocument("c2", "doc-1", "u2", "Bob", "#000", nil); err != nil {
		t.Fatal(err)
	}

	sub2 := h.Broadcaster.Subscribe("doc-1", "c2")
	defer sub2.Unsubscribe()

	update := crdt.NewInsert("u1", 1, "", 0, []byte("hello"))
	if _, err := h.HandleDocumentUpdate("c1", update); err != nil {
		t.Fatalf("update: %v", err)
	}

	select {
	case event := <-sub2.Events:
		if event.Type != domain.EventDocumentUpdated {
			t.Fatalf("expected DocumentUpdated, got %v", event.Type)
		}
		if !bytes.Equal(event.UpdateBytes, update) {
			t.Fatalf("peer did not receive the same bytes")
		}
	case <-time.After(time.Second):
		t.Fatal("c2 never received the update")
	}

	entry, _ := h.Registry.Get("doc-1")
	if entry.Doc.OpCount() != 1 {
		t.Fatalf("expected 1 op in the document, got %d", entry.Doc.OpCount())
	}
}

func TestHandleDocumentUpdateExcludesOrigin(t *testing.T) {
	h := New(time.Minute)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}
	sub1 := h.Broadcaster.Subscribe("doc-1", "c1")
	defer sub1.Unsubscribe()

	update := crdt.NewInsert("u1", 1, "", 0, []byte("x"))
	if _, err := h.HandleDocumentUpdate("c1", update); err != nil {
		t.Fatal(err)
	}

	select {
	case <-sub1.Events:
		t.Fatal("origin should not receive its own DocumentUpdated event")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestHandleDocumentUpdateIsIdempotent(t *testing.T) {
	h := New(time.Minute)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}

	update := crdt.NewInsert("u1", 1, "", 0, []byte("x"))
	if _, err := h.HandleDocumentUpdate("c1", update); err != nil {
		t.Fatal(err)
	}
	if _, err := h.HandleDocumentUpdate("c1", update); err != nil {
		t.Fatal(err)
	}

	entry, _ := h.Registry.Get("doc-1")
	if entry.Doc.OpCount() != 1 {
		t.Fatalf("expected idempotent apply to leave 1 op, got %d", entry.Doc.OpCount())
	}
}

func TestHandleDocumentUpdateTouchesSessionEvenOnInvalidBytes(t *testing.T) {
	h := New(time.Minute)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}

	before := h.Sessions.Get("c1").LastSeenAt
	time.Sleep(5 * time.Millisecond)

	if _, err := h.HandleDocumentUpdate("c1", []byte("garbage")); err != domain.ErrInvalidUpdate {
		t.Fatalf("expected domain.ErrInvalidUpdate, got %v", err)
	}

	after := h.Sessions.Get("c1").LastSeenAt
	if !after.After(before) {
		t.Fatal("expected last-seen to be touched even on a decode failure")
	}
}

func TestGetSyncDataReturnsDiffAndStateVector(t *testing.T) {
	h := New(time.Minute)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := h.HandleDocumentUpdate("c1", crdt.NewInsert("u1", 1, "", 0, []byte("x"))); err != nil {
		t.Fatal(err)
	}

	data, err := h.GetSyncData("c1", nil)
	if err != nil {
		t.Fatalf("get sync data: %v", err)
	}
	if len(data.Diff) == 0 {
		t.Fatal("expected a non-empty diff against an empty peer state vector")
	}
	if len(data.ServerStateVector) == 0 {
		t.Fatal("expected a non-empty server state vector")
	}
}

func TestCleanupExpiredSessionsEmitsExpiredThenLeft(t *testing.T) {
	h := New(time.Millisecond)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	events := h.CleanupExpiredSessions()
	if len(events) != 2 {
		t.Fatalf("expected 2 events (expired + left), got %d", len(events))
	}
	if events[0].Type != domain.EventSessionExpired {
		t.Fatalf("expected first event SessionExpired, got %v", events[0].Type)
	}
	if events[1].Type != domain.EventUserLeft {
		t.Fatalf("expected second event UserLeft, got %v", events[1].Type)
	}
	if h.Sessions.Get("c1") != nil {
		t.Fatal("expected the expired session to be removed")
	}
}

func TestJoinDocumentRejectsDuplicateClient(t *testing.T) {
	h := New(time.Minute)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != domain.ErrDuplicateClient {
		t.Fatalf("expected domain.ErrDuplicateClient, got %v", err)
	}
}
