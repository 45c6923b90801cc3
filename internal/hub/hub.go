package hub

import (
	"time"

	"github.com/google/uuid"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/broadcast"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/logger"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/registry"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/session"
)

// Hub is the single facade the adapters call (C5 -- Collaboration
// Use-Cases). It orchestrates the registry (C2), session store (C3) and
// broadcaster (C4) against the CRDT document (C1), and emits domain
// events.
//
// Grounded on the teacher's internal/collab/room.go, whose
// ApplyUpdate/UpdatePresence/handleRegister/handleUnregister methods are
// the operations below, generalized from "one Room owns one document's
// whole lifecycle" into a stateless facade over the shared
// registry/session-store/broadcaster.
type Hub struct {
	Registry    *registry.Registry
	Sessions    *session.Store
	Broadcaster *broadcast.Broadcaster

	// ExpiryThreshold is how stale last_seen_at may be before a session
	// is considered inactive by ActiveByDocument/IsActive.
	ExpiryThreshold time.Duration
}

// New builds a Hub over freshly created registry/session/broadcaster
// instances.
func New(expiryThreshold time.Duration) *Hub {
	return &Hub{
		Registry:        registry.New(),
		Sessions:        session.New(),
		Broadcaster:     broadcast.New(0),
		ExpiryThreshold: expiryThreshold,
	}
}

// JoinDocument creates a session in Active, adds it to the store,
// acquires the document entry, and publishes UserJoined to everyone
// including the newcomer (joins/leaves are not origin-filtered, per
// spec §4.4, to simplify client reconciliation). Callers that want the
// newcomer to observe its own UserJoined must subscribe before calling
// this -- the hub has no way to sequence a caller's subscription for it.
func (h *Hub) JoinDocument(clientID, documentID, userID, userName, userColor string, metadata map[string]string) (*domain.CollaborationEvent, error) {
	if clientID == "" || documentID == "" || userID == "" {
		return nil, domain.ErrInvalidUpdate
	}

	now := time.Now()
	sess := &domain.CollaborationSession{
		SessionUUID:  uuid.NewString(),
		ClientID:     clientID,
		DocumentID:   documentID,
		UserID:       userID,
		UserName:     userName,
		UserColor:    userColor,
		UserMetadata: metadata,
		CreatedAt:    now,
		LastSeenAt:   now,
		Status:       domain.StatusActive,
	}

	if err := h.Sessions.Add(sess); err != nil {
		return nil, err
	}

	entry := h.Registry.GetOrCreate(documentID)
	entry.Acquire()

	event := domain.CollaborationEvent{
		Type:         domain.EventUserJoined,
		DocumentID:   documentID,
		ClientID:     clientID,
		Timestamp:    now,
		UserID:       userID,
		UserName:     userName,
		UserColor:    userColor,
		UserMetadata: metadata,
	}
	h.Broadcaster.Publish(event, "")
	return &event, nil
}

// LeaveDocument removes the session, releases its document entry and
// publishes UserLeft if a session existed. No error if the client was
// already absent.
func (h *Hub) LeaveDocument(clientID string) *domain.CollaborationEvent {
	sess := h.Sessions.Remove(clientID)
	if sess == nil {
		return nil
	}

	if entry, ok := h.Registry.Get(sess.DocumentID); ok {
		entry.Release()
	}

	event := domain.CollaborationEvent{
		Type:       domain.EventUserLeft,
		DocumentID: sess.DocumentID,
		ClientID:   clientID,
		Timestamp:  time.Now(),
		UserID:     sess.UserID,
	}
	h.Broadcaster.Publish(event, "")
	return &event
}

// HandleDocumentUpdate touches the session, applies the update to the
// session's document, and (on success) publishes DocumentUpdated with a
// monotonically increasing per-document sequence number, excluding the
// originator from delivery.
func (h *Hub) HandleDocumentUpdate(clientID string, updateBytes []byte) (*domain.CollaborationEvent, error) {
	sess := h.Sessions.Get(clientID)
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}

	now := time.Now()
	h.Sessions.Touch(clientID, now)

	entry := h.Registry.GetOrCreate(sess.DocumentID)
	applied, err := entry.Doc.ApplyUpdate(updateBytes)
	if err != nil {
		// The touch above stays applied even on a decode failure --
		// heartbeat semantics per spec §4.5.
		logger.Warn("hub: invalid update from client=%s doc=%s: %v", clientID, sess.DocumentID, err)
		return nil, domain.ErrInvalidUpdate
	}
	entry.Touch()

	seq := entry.NextSequence()

	event := domain.CollaborationEvent{
		Type:           domain.EventDocumentUpdated,
		DocumentID:     sess.DocumentID,
		ClientID:       clientID,
		Timestamp:      now,
		OriginClientID: clientID,
		UpdateBytes:    applied,
		SequenceNumber: seq,
	}
	h.Broadcaster.Publish(event, clientID)
	return &event, nil
}

// HandleAwarenessUpdate touches the session and publishes
// AwarenessUpdated, excluding the originator. Never fails on semantic
// content -- the payloads are opaque JSON strings.
func (h *Hub) HandleAwarenessUpdate(clientID, userInfoJSON, awarenessStateJSON string) (*domain.CollaborationEvent, error) {
	sess := h.Sessions.Get(clientID)
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}

	now := time.Now()
	h.Sessions.Touch(clientID, now)

	event := domain.CollaborationEvent{
		Type:               domain.EventAwarenessUpdated,
		DocumentID:          sess.DocumentID,
		ClientID:            clientID,
		Timestamp:           now,
		UserInfoJSON:        userInfoJSON,
		AwarenessStateJSON:  awarenessStateJSON,
	}
	h.Broadcaster.Publish(event, clientID)
	return &event, nil
}

// HandleHeartbeat touches last_seen_at. Produces no event.
func (h *Hub) HandleHeartbeat(clientID string) error {
	sess := h.Sessions.Get(clientID)
	if sess == nil {
		return domain.ErrSessionNotFound
	}
	h.Sessions.Touch(clientID, time.Now())
	return nil
}

// SyncData is the result of GetSyncData.
type SyncData struct {
	ServerStateVector []byte
	Diff              []byte
	Event             domain.CollaborationEvent
}

// GetSyncData returns the server's current state vector and the update
// that brings peerStateVector up to date, and builds (but does not
// necessarily broadcast -- see transport adapters) a SyncRequested
// event.
func (h *Hub) GetSyncData(clientID string, peerStateVector []byte) (*SyncData, error) {
	sess := h.Sessions.Get(clientID)
	if sess == nil {
		return nil, domain.ErrSessionNotFound
	}

	entry := h.Registry.GetOrCreate(sess.DocumentID)
	diff, err := entry.Doc.EncodeDiff(peerStateVector)
	if err != nil {
		return nil, domain.ErrInvalidUpdate
	}
	sv := entry.Doc.StateVector()

	event := domain.CollaborationEvent{
		Type:        domain.EventSyncRequested,
		DocumentID:  sess.DocumentID,
		ClientID:    clientID,
		Timestamp:   time.Now(),
		StateVector: peerStateVector,
	}

	return &SyncData{ServerStateVector: sv, Diff: diff, Event: event}, nil
}

// DocumentState is the result of GetDocumentState.
type DocumentState struct {
	StateVector  []byte
	FullDocument []byte
	Sessions     []*domain.CollaborationSession
}

// GetDocumentState is a pure read that does not require an active
// session.
func (h *Hub) GetDocumentState(documentID string) DocumentState {
	entry := h.Registry.GetOrCreate(documentID)
	return DocumentState{
		StateVector:  entry.Doc.StateVector(),
		FullDocument: entry.Doc.EncodeFull(),
		Sessions:     h.Sessions.ActiveByDocument(documentID, time.Now(), h.ExpiryThreshold),
	}
}

// GetActiveUsers is a pure read, filtered by session status and
// freshness.
func (h *Hub) GetActiveUsers(documentID string) []*domain.CollaborationSession {
	return h.Sessions.ActiveByDocument(documentID, time.Now(), h.ExpiryThreshold)
}

// CleanupExpiredSessions sweeps the session store and publishes one
// SessionExpired event per removed session, releasing each one's
// document entry.
func (h *Hub) CleanupExpiredSessions() []domain.CollaborationEvent {
	expired := h.Sessions.Sweep(time.Now(), h.ExpiryThreshold)

	events := make([]domain.CollaborationEvent, 0, len(expired))
	for _, sess := range expired {
		if entry, ok := h.Registry.Get(sess.DocumentID); ok {
			entry.Release()
		}

		event := domain.CollaborationEvent{
			Type:       domain.EventSessionExpired,
			DocumentID: sess.DocumentID,
			ClientID:   sess.ClientID,
			Timestamp:  time.Now(),
			UserID:     sess.UserID,
		}
		h.Broadcaster.Publish(event, "")
		events = append(events, event)

		// spec §8 scenario 5: expiry is followed by UserLeft to
		// remaining subscribers.
		leftEvent := domain.CollaborationEvent{
			Type:       domain.EventUserLeft,
			DocumentID: sess.DocumentID,
			ClientID:   sess.ClientID,
			Timestamp:  time.Now(),
			UserID:     sess.UserID,
		}
		h.Broadcaster.Publish(leftEvent, "")
		events = append(events, leftEvent)
	}
	return events
}

// EvictIdleDocuments removes registry entries idle for at least ttl.
// Intended to be driven by the expiry sweeper (C8).
func (h *Hub) EvictIdleDocuments(ttl time.Duration) []string {
	return h.Registry.EvictIdle(ttl)
}
