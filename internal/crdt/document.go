// Package crdt wraps a single CRDT replica used by a collaborative document.
//
// This is a simplified Yjs-compatible implementation: a YATA-style
// operation log keyed by (actor, sequence) pairs rather than a full
// Yjs/YATA item tree. It keeps the properties the hub depends on --
// commutative, idempotent updates and a compact state vector -- without
// pulling in an external CRDT engine.
package crdt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// DecodeError is returned when a caller hands the replica a malformed
// update.
type DecodeError struct {
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("crdt: decode error: %s", e.Reason)
}

const (
	wireMagic   uint16 = 0x5a59 // "ZY"
	wireVersion uint8  = 1
)

// Op is a single CRDT operation: an insertion stamped with its origin and
// the operation it was inserted after, in the actor it originated from.
type Op struct {
	Actor     string
	Seq       uint64
	ParentAct string
	ParentSeq uint64
	Payload   []byte
	Deleted   bool
}

func (o Op) key() opKey { return opKey{o.Actor, o.Seq} }

type opKey struct {
	actor string
	seq   uint64
}

// Document wraps a single CRDT replica. Every exported method takes the
// document's internal mutex for the duration of that one operation; a
// sequence of calls is not atomic as a whole.
type Document struct {
	mu sync.Mutex

	// ops holds the total-ordered log of every operation this replica
	// knows about, deduplicated by (actor, seq).
	ops   []Op
	index map[opKey]int // position within ops, kept in sync with ops

	// seen is the state vector: highest sequence number observed per actor.
	seen map[string]uint64
}

// NewDocument creates an empty document replica.
func NewDocument() *Document {
	return &Document{
		index: make(map[opKey]int),
		seen:  make(map[string]uint64),
	}
}

// StateVector returns a snapshot-free summary of operations known to this
// replica. It reads under the document's internal mutex for the
// duration of the call.
func (d *Document) StateVector() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.encodeStateVectorLocked()
}

func (d *Document) encodeStateVectorLocked() []byte {
	var buf bytes.Buffer
	writeHeader(&buf, frameStateVector)
	writeUvarint(&buf, uint64(len(d.seen)))
	actors := make([]string, 0, len(d.seen))
	for a := range d.seen {
		actors = append(actors, a)
	}
	sort.Strings(actors)
	for _, a := range actors {
		writeString(&buf, a)
		writeUvarint(&buf, d.seen[a])
	}
	return buf.Bytes()
}

// DecodeStateVector parses a state vector previously produced by
// StateVector (or an empty slice, meaning "nothing known").
func DecodeStateVector(b []byte) (map[string]uint64, error) {
	sv := make(map[string]uint64)
	if len(b) == 0 {
		return sv, nil
	}
	r := bytes.NewReader(b)
	if err := readHeader(r, frameStateVector); err != nil {
		return nil, err
	}
	n, err := readUvarint(r)
	if err != nil {
		return nil, &DecodeError{Reason: "truncated state vector count"}
	}
	for i := uint64(0); i < n; i++ {
		actor, err := readString(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated state vector actor"}
		}
		seq, err := readUvarint(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated state vector seq"}
		}
		sv[actor] = seq
	}
	return sv, nil
}

// ApplyUpdate merges an opaque update into the replica. It returns the
// normalised update that was actually integrated, which may differ from
// the input if some operations were already known (duplicates are
// dropped, making repeated application idempotent). Applying an empty
// update, or one whose operations are all already known, is a no-op that
// returns an empty slice.
func (d *Document) ApplyUpdate(update []byte) ([]byte, error) {
	if len(update) == 0 {
		return nil, nil
	}

	ops, err := decodeUpdate(update)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var applied []Op
	for _, op := range ops {
		if _, ok := d.index[op.key()]; ok {
			continue // already integrated -- idempotent merge
		}
		d.insertLocked(op)
		if op.Seq > d.seen[op.Actor] {
			d.seen[op.Actor] = op.Seq
		}
		applied = append(applied, op)
	}

	if len(applied) == 0 {
		return nil, nil
	}
	return encodeUpdate(applied), nil
}

// insertLocked inserts op into the total-ordered log, maintaining the
// index. Concurrent inserts (same parent) are ordered by actor id, which
// is YATA's tie-break rule and is what makes the final order independent
// of application order.
func (d *Document) insertLocked(op Op) {
	if pos, ok := d.index[op.key()]; ok {
		d.ops[pos] = op
		return
	}

	insertAt := len(d.ops)
	for i, existing := range d.ops {
		if existing.Actor == op.ParentAct && existing.Seq == op.ParentSeq {
			insertAt = i + 1
			for insertAt < len(d.ops) && isConcurrentSibling(d.ops[insertAt], op) && d.ops[insertAt].Actor < op.Actor {
				insertAt++
			}
			break
		}
	}

	d.ops = append(d.ops, Op{})
	copy(d.ops[insertAt+1:], d.ops[insertAt:])
	d.ops[insertAt] = op

	for i := insertAt; i < len(d.ops); i++ {
		d.index[d.ops[i].key()] = i
	}
}

func isConcurrentSibling(candidate, op Op) bool {
	return candidate.ParentAct == op.ParentAct && candidate.ParentSeq == op.ParentSeq
}

// EncodeDiff returns the update carrying every operation this replica has
// that the peer (described by peerStateVector) does not.
func (d *Document) EncodeDiff(peerStateVector []byte) ([]byte, error) {
	peerSeen, err := DecodeStateVector(peerStateVector)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	var missing []Op
	for _, op := range d.ops {
		if op.Seq > peerSeen[op.Actor] {
			missing = append(missing, op)
		}
	}
	return encodeUpdate(missing), nil
}

// EncodeFull is equivalent to EncodeDiff(nil); used for snapshots.
func (d *Document) EncodeFull() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	ops := make([]Op, len(d.ops))
	copy(ops, d.ops)
	return encodeUpdate(ops)
}

// Materialize concatenates the surviving (non-deleted) payloads in total
// order, giving callers a human-readable view of document content. This
// has no bearing on CRDT correctness; it exists for read-through APIs and
// tests.
func (d *Document) Materialize() []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	var buf bytes.Buffer
	for _, op := range d.ops {
		if !op.Deleted {
			buf.Write(op.Payload)
		}
	}
	return buf.Bytes()
}

// OpCount reports how many operations this replica currently holds.
func (d *Document) OpCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.ops)
}

// --- wire framing -----------------------------------------------------
//
// Updates and state vectors share a tiny versioned frame:
//   uint16 magic | uint8 version | uint8 frameKind | payload
// This is not the Yjs binary encoding; it is a from-scratch codec that
// preserves the same semantics (opaque update bytes keyed by a compact
// state vector) without depending on an unavailable CRDT engine.

type frameKind uint8

const (
	frameUpdate      frameKind = 1
	frameStateVector frameKind = 2
)

func writeHeader(buf *bytes.Buffer, kind frameKind) {
	var hdr [4]byte
	binary.BigEndian.PutUint16(hdr[0:2], wireMagic)
	hdr[2] = wireVersion
	hdr[3] = byte(kind)
	buf.Write(hdr[:])
}

func readHeader(r *bytes.Reader, want frameKind) error {
	var hdr [4]byte
	if _, err := r.Read(hdr[:]); err != nil {
		return &DecodeError{Reason: "truncated frame header"}
	}
	if binary.BigEndian.Uint16(hdr[0:2]) != wireMagic {
		return &DecodeError{Reason: "bad magic"}
	}
	if hdr[2] != wireVersion {
		return &DecodeError{Reason: "unsupported version"}
	}
	if frameKind(hdr[3]) != want {
		return &DecodeError{Reason: "unexpected frame kind"}
	}
	return nil
}

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	v, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, err
	}
	return v, nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeUvarint(buf, uint64(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func readBytes(r *bytes.Reader) ([]byte, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	b := make([]byte, n)
	if _, err := readFull(r, b); err != nil {
		return nil, err
	}
	return b, nil
}

func readFull(r *bytes.Reader, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := r.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, errors.New("crdt: short read")
		}
	}
	return total, nil
}

func encodeUpdate(ops []Op) []byte {
	var buf bytes.Buffer
	writeHeader(&buf, frameUpdate)
	writeUvarint(&buf, uint64(len(ops)))
	for _, op := range ops {
		writeString(&buf, op.Actor)
		writeUvarint(&buf, op.Seq)
		writeString(&buf, op.ParentAct)
		writeUvarint(&buf, op.ParentSeq)
		if op.Deleted {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeUvarint(&buf, uint64(len(op.Payload)))
		buf.Write(op.Payload)
	}
	return buf.Bytes()
}

func decodeUpdate(update []byte) ([]Op, error) {
	r := bytes.NewReader(update)
	if err := readHeader(r, frameUpdate); err != nil {
		return nil, err
	}
	n, err := readUvarint(r)
	if err != nil {
		return nil, &DecodeError{Reason: "truncated op count"}
	}
	ops := make([]Op, 0, n)
	for i := uint64(0); i < n; i++ {
		actor, err := readString(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated actor"}
		}
		seq, err := readUvarint(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated seq"}
		}
		parentAct, err := readString(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated parent actor"}
		}
		parentSeq, err := readUvarint(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated parent seq"}
		}
		delByte, err := r.ReadByte()
		if err != nil {
			return nil, &DecodeError{Reason: "truncated delete flag"}
		}
		payload, err := readBytes(r)
		if err != nil {
			return nil, &DecodeError{Reason: "truncated payload"}
		}
		ops = append(ops, Op{
			Actor:     actor,
			Seq:       seq,
			ParentAct: parentAct,
			ParentSeq: parentSeq,
			Deleted:   delByte == 1,
			Payload:   payload,
		})
	}
	return ops, nil
}

// NewInsert builds a single-operation update appending payload after
// (parentActor, parentSeq) as actor's next sequence number. Callers track
// their own per-actor sequence counters; this is a convenience for tests
// and adapters that synthesize local edits rather than relaying remote
// update bytes verbatim.
func NewInsert(actor string, seq uint64, parentActor string, parentSeq uint64, payload []byte) []byte {
	return encodeUpdate([]Op{{
		Actor:     actor,
		Seq:       seq,
		ParentAct: parentActor,
		ParentSeq: parentSeq,
		Payload:   payload,
	}})
}
