package sweeper

import (
	"context"
	"testing"
	"time"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/hub"
)

func TestRunSweepsExpiredSessions(t *testing.T) {
	h := hub.New(5 * time.Millisecond)
	if _, err := h.JoinDocument("c1", "doc-1", "u1", "Ada", "#fff", nil); err != nil {
		t.Fatal(err)
	}

	s := New(h, Config{
		SweepInterval:    10 * time.Millisecond,
		ExpiryThreshold:  5 * time.Millisecond,
		DocumentTTLCheck: time.Hour,
		DocumentTTL:      time.Hour,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(200 * time.Millisecond)
	for h.Sessions.Get("c1") != nil {
		select {
		case <-deadline:
			t.Fatal("session was never swept")
		case <-time.After(5 * time.Millisecond):
		}
	}

	<-done
}

func TestRunEvictsIdleDocuments(t *testing.T) {
	h := hub.New(time.Hour)
	h.Registry.GetOrCreate("doc-1")

	s := New(h, Config{
		SweepInterval:    time.Hour,
		ExpiryThreshold:  time.Hour,
		DocumentTTLCheck: 10 * time.Millisecond,
		DocumentTTL:      5 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	deadline := time.After(200 * time.Millisecond)
	for h.Registry.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("idle document was never evicted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	<-done
}
