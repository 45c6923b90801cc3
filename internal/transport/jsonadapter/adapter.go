// Package jsonadapter implements the JSON-framed streaming adapter (C7):
// the three-message Yjs protocol (sync / update / sv) over a duplex
// websocket connection.
//
// Grounded directly on the teacher's internal/collab/server.go
// handleTextMessage and room.go sendSyncState, which already speak a
// JSON envelope with Base64-friendly payloads; this adapter keeps that
// shape and routes through the shared hub instead of a per-room struct.
package jsonadapter

import (
	"encoding/base64"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/auth"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/hub"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/logger"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// frame is the wire shape of every JSON message in both directions.
type frame struct {
	Type        string `json:"type"`
	DocID       string `json:"doc_id"`
	StateVector string `json:"state_vector,omitempty"`
	Update      string `json:"update,omitempty"`
}

// Adapter serves the JSON socket protocol.
type Adapter struct {
	Hub *hub.Hub

	// DefaultUserName/Color seed the synthetic join performed when a
	// socket opens, matching spec §4.7's "synthetic join uses a default
	// user identity."
	DefaultUserName  string
	DefaultUserColor string
}

// New builds a JSON adapter over h with teacher-style default presence.
func New(h *hub.Hub) *Adapter {
	return &Adapter{
		Hub:              h,
		DefaultUserName:  "Guest",
		DefaultUserColor: "#888888",
	}
}

// ServeHTTP upgrades the request and serves the JSON protocol for one
// document, taken from the "doc" query parameter or the first "sync"
// frame's doc_id.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("jsonadapter: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	clientID := uuid.NewString()
	documentID := r.URL.Query().Get("doc")
	if documentID == "" {
		documentID = r.URL.Query().Get("doc_id")
	}

	// An external collaborator may carry a bearer token or X-User-ID
	// header; when absent we fall back to an anonymous guest identity,
	// same as the teacher's dev auth fallback.
	identity := auth.ResolveIdentity(r)
	userID, userName := clientID, a.DefaultUserName
	if identity.UserID != "" {
		userID = identity.UserID
	}
	if identity.Name != "" {
		userName = identity.Name
	}

	if documentID != "" {
		if _, err := a.Hub.JoinDocument(clientID, documentID, userID, userName, a.DefaultUserColor, nil); err != nil {
			logger.Warn("jsonadapter: synthetic join failed: %v", err)
			return
		}
	}

	var sub *subscription
	if documentID != "" {
		sub = newSubscription(a.Hub, documentID, clientID)
		go sub.forward(conn)
	}

	defer func() {
		if sub != nil {
			sub.close()
		}
		a.Hub.LeaveDocument(clientID)
	}()

	a.readLoop(conn, &clientID, &documentID, &sub)
}

func (a *Adapter) readLoop(conn *websocket.Conn, clientID, documentID *string, sub **subscription) {
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			return
		}

		switch f.Type {
		case "sync":
			if f.DocID != "" && f.DocID != *documentID {
				*documentID = a.rejoinForDocument(*clientID, *documentID, f.DocID, sub, conn)
			}
			a.handleSync(conn, *clientID, *documentID)

		case "update":
			a.handleUpdate(conn, *clientID, f)

		case "sv":
			a.handleStateVector(conn, *clientID, f)

		default:
			logger.Debug("jsonadapter: unknown frame type %q", f.Type)
		}
	}
}

// rejoinForDocument handles the (uncommon but spec-legal) case where a
// socket's first frame names a document id instead of the query
// parameter: it performs the synthetic join lazily.
func (a *Adapter) rejoinForDocument(clientID, oldDocumentID, newDocumentID string, sub **subscription, conn *websocket.Conn) string {
	if oldDocumentID != "" {
		return oldDocumentID // already joined; spec's socket is single-document
	}
	if _, err := a.Hub.JoinDocument(clientID, newDocumentID, clientID, a.DefaultUserName, a.DefaultUserColor, nil); err != nil {
		logger.Warn("jsonadapter: deferred join failed: %v", err)
		return oldDocumentID
	}
	*sub = newSubscription(a.Hub, newDocumentID, clientID)
	go (*sub).forward(conn)
	return newDocumentID
}

// handleSync replies with the server's state vector and additionally
// sends the full document snapshot, per spec §4.7.
func (a *Adapter) handleSync(conn *websocket.Conn, clientID, documentID string) {
	state := a.Hub.GetDocumentState(documentID)

	writeFrame(conn, frame{
		Type:        "sync",
		DocID:       documentID,
		StateVector: base64.StdEncoding.EncodeToString(state.StateVector),
	})
	writeFrame(conn, frame{
		Type:   "update",
		DocID:  documentID,
		Update: base64.StdEncoding.EncodeToString(state.FullDocument),
	})
}

// handleUpdate decodes the Base64 update, applies it, and relies on the
// hub's own origin-excluding broadcast for re-delivery to peers.
func (a *Adapter) handleUpdate(conn *websocket.Conn, clientID string, f frame) {
	data, err := base64.StdEncoding.DecodeString(f.Update)
	if err != nil {
		logger.Warn("jsonadapter: bad base64 update from %s: %v", clientID, err)
		return
	}
	if _, err := a.Hub.HandleDocumentUpdate(clientID, data); err != nil {
		logger.Warn("jsonadapter: update rejected for %s: %v", clientID, err)
	}
}

// handleStateVector replies with the diff that brings the peer's state
// vector up to date.
func (a *Adapter) handleStateVector(conn *websocket.Conn, clientID string, f frame) {
	sv, err := base64.StdEncoding.DecodeString(f.StateVector)
	if err != nil {
		logger.Warn("jsonadapter: bad base64 state vector from %s: %v", clientID, err)
		return
	}

	data, err := a.Hub.GetSyncData(clientID, sv)
	if err != nil {
		logger.Warn("jsonadapter: sync data failed for %s: %v", clientID, err)
		return
	}

	writeFrame(conn, frame{
		Type:   "update",
		DocID:  f.DocID,
		Update: base64.StdEncoding.EncodeToString(data.Diff),
	})
}

func writeFrame(conn *websocket.Conn, f frame) {
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := conn.WriteJSON(f); err != nil {
		logger.Debug("jsonadapter: write failed: %v", err)
	}
}

// subscription forwards hub events to one connection as "update" frames,
// the only outgoing shape for subscription-driven traffic per spec
// §4.7's "All outgoing frames from event subscription are in the update
// form."
type subscription struct {
	documentID string
	events     <-chan domain.CollaborationEvent
	unsub      func()
	done       chan struct{}
}

func newSubscription(h *hub.Hub, documentID, clientID string) *subscription {
	sub := h.Broadcaster.Subscribe(documentID, clientID)
	return &subscription{
		documentID: documentID,
		events:     sub.Events,
		unsub:      sub.Unsubscribe,
		done:       make(chan struct{}),
	}
}

func (s *subscription) forward(conn *websocket.Conn) {
	for {
		select {
		case event, ok := <-s.events:
			if !ok {
				return
			}
			if event.Type != domain.EventDocumentUpdated {
				continue // only document updates are relayed as "update" frames
			}
			writeFrame(conn, frame{
				Type:   "update",
				DocID:  event.DocumentID,
				Update: base64.StdEncoding.EncodeToString(event.UpdateBytes),
			})
		case <-s.done:
			return
		}
	}
}

func (s *subscription) close() {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	s.unsub()
}
