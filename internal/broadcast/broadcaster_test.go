package broadcast

import (
	"testing"
	"time"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
)

func TestPublishExcludesOrigin(t *testing.T) {
	b := New(DefaultSubscriberBuffer)
	author := b.Subscribe("doc-1", "author")
	peer := b.Subscribe("doc-1", "peer")
	defer author.Unsubscribe()
	defer peer.Unsubscribe()

	b.Publish(domain.CollaborationEvent{Type: domain.EventDocumentUpdated, DocumentID: "doc-1"}, "author")

	select {
	case <-author.Events:
		t.Fatal("author should not receive its own update")
	case <-time.After(20 * time.Millisecond):
	}

	select {
	case <-peer.Events:
	case <-time.After(time.Second):
		t.Fatal("peer should have received the update")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := New(DefaultSubscriberBuffer)
	sub := b.Subscribe("doc-1", "c1")
	sub.Unsubscribe()

	b.Publish(domain.CollaborationEvent{Type: domain.EventDocumentUpdated, DocumentID: "doc-1"}, "")

	if b.SubscriberCount("doc-1") != 0 {
		t.Fatalf("expected 0 subscribers after unsubscribe, got %d", b.SubscriberCount("doc-1"))
	}
}

func TestPublishNeverBlocksOnFullBuffer(t *testing.T) {
	b := New(2)
	sub := b.Subscribe("doc-1", "slow")
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(domain.CollaborationEvent{Type: domain.EventDocumentUpdated, DocumentID: "doc-1"}, "")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber buffer")
	}

	if b.DropCount("doc-1", "slow") == 0 {
		t.Fatal("expected at least one recorded drop for the slow subscriber")
	}
}
