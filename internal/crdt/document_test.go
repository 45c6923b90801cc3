package crdt

import (
	"bytes"
	"testing"
)

func TestApplyUpdateIsIdempotent(t *testing.T) {
	doc := NewDocument()
	update := NewInsert("actor-a", 1, "", 0, []byte("hello"))

	first, err := doc.ApplyUpdate(update)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if doc.OpCount() != 1 {
		t.Fatalf("expected 1 op, got %d", doc.OpCount())
	}

	second, err := doc.ApplyUpdate(update)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if doc.OpCount() != 1 {
		t.Fatalf("re-applying the same update changed op count to %d", doc.OpCount())
	}
	if len(second) != 0 {
		t.Fatalf("re-applying should contribute no new ops, got %d bytes", len(second))
	}
	_ = first
}

func TestApplyUpdateIsCommutative(t *testing.T) {
	u1 := NewInsert("actor-a", 1, "", 0, []byte("a"))
	u2 := NewInsert("actor-b", 1, "actor-a", 1, []byte("b"))

	forward := NewDocument()
	if _, err := forward.ApplyUpdate(u1); err != nil {
		t.Fatal(err)
	}
	if _, err := forward.ApplyUpdate(u2); err != nil {
		t.Fatal(err)
	}

	backward := NewDocument()
	if _, err := backward.ApplyUpdate(u2); err != nil {
		t.Fatal(err)
	}
	if _, err := backward.ApplyUpdate(u1); err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(forward.Materialize(), backward.Materialize()) {
		t.Fatalf("order dependent result: forward=%q backward=%q", forward.Materialize(), backward.Materialize())
	}
}

func TestEncodeDiffRoundTrip(t *testing.T) {
	server := NewDocument()
	if _, err := server.ApplyUpdate(NewInsert("actor-a", 1, "", 0, []byte("x"))); err != nil {
		t.Fatal(err)
	}

	peer := NewDocument()
	peerSV := peer.StateVector()

	diff, err := server.EncodeDiff(peerSV)
	if err != nil {
		t.Fatalf("encode diff: %v", err)
	}

	if _, err := peer.ApplyUpdate(diff); err != nil {
		t.Fatalf("apply diff: %v", err)
	}

	if !bytes.Equal(server.Materialize(), peer.Materialize()) {
		t.Fatalf("peer did not converge: server=%q peer=%q", server.Materialize(), peer.Materialize())
	}
}

func TestApplyUpdateRejectsGarbage(t *testing.T) {
	doc := NewDocument()
	if _, err := doc.ApplyUpdate([]byte("not a real update")); err == nil {
		t.Fatal("expected a DecodeError for malformed bytes")
	}
}

func TestDecodeStateVectorRoundTrip(t *testing.T) {
	doc := NewDocument()
	if _, err := doc.ApplyUpdate(NewInsert("actor-a", 1, "", 0, []byte("x"))); err != nil {
		t.Fatal(err)
	}
	if _, err := doc.ApplyUpdate(NewInsert("actor-a", 2, "actor-a", 1, []byte("y"))); err != nil {
		t.Fatal(err)
	}

	sv, err := DecodeStateVector(doc.StateVector())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if sv["actor-a"] != 2 {
		t.Fatalf("expected actor-a seq 2, got %d", sv["actor-a"])
	}
}
