// Package binaryadapter implements the binary streaming adapter (C6): a
// bidirectional stream of tagged messages (internal/wire.ClientMessage /
// ServerMessage) over a websocket binary connection, dispatching to the
// collaboration hub.
//
// Grounded on the teacher's internal/collab/server.go
// (HandleWebSocket/readPump/writePump/handleBinaryMessage), generalized
// from "forward raw Yjs bytes" into the full six-message catalogue of
// spec §6 while keeping the same ping/pong keepalive and read/write
// pump shape.
package binaryadapter

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Wenrh2004/yjs-collaboration-server/internal/auth"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/broadcast"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/domain"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/hub"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/logger"
	"github.com/Wenrh2004/yjs-collaboration-server/internal/wire"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Adapter serves the binary streaming protocol over websocket.
type Adapter struct {
	Hub *hub.Hub
}

// New builds a binary adapter over h.
func New(h *hub.Hub) *Adapter {
	return &Adapter{Hub: h}
}

// ServeHTTP upgrades the request to a websocket connection and runs the
// connection's lifecycle until it closes.
func (a *Adapter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	identity := auth.ResolveIdentity(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("binaryadapter: upgrade failed: %v", err)
		return
	}
	a.handleConnection(conn, identity)
}

func (a *Adapter) handleConnection(conn *websocket.Conn, identity auth.Identity) {
	defer conn.Close()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// First message must be JoinDocument.
	first, err := readClientMessage(conn)
	if err != nil {
		logger.Debug("binaryadapter: closing before join: %v", err)
		return
	}
	if first.Kind != wire.ClientJoinDocument {
		writeServerMessage(conn, errorMessage(first.DocumentID, 400, "first message must be JoinDocument", wire.ErrorInvalidUpdate))
		return
	}

	clientID := first.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
	}
	documentID := first.DocumentID

	join := first.JoinDocument
	userID, userName := join.UserID, join.UserName
	if userID == "" && identity.UserID != "" {
		userID = identity.UserID
	}
	if userName == "" && identity.Name != "" {
		userName = identity.Name
	}
	// Subscribe before JoinDocument publishes: the hub fans UserJoined out
	// to everyone including the newcomer (exclude=""), so the
	// subscription must already exist or the newcomer never sees its own
	// join. The event sits buffered on the channel until forwardEvents
	// starts draining it below.
	sub := a.Hub.Broadcaster.Subscribe(documentID, clientID)

	if _, err := a.Hub.JoinDocument(clientID, documentID, userID, userName, join.UserColor, join.UserMetadata); err != nil {
		sub.Unsubscribe()
		writeServerMessage(conn, errorMessage(documentID, 409, err.Error(), wire.ErrorUnknown))
		return
	}

	defer func() {
		sub.Unsubscribe()
		a.Hub.LeaveDocument(clientID)
	}()

	outbound := make(chan *wire.ServerMessage, 256)
	done := make(chan struct{})

	go a.forwardEvents(sub, outbound, done)
	go a.writePump(conn, outbound, done)

	a.readLoop(conn, clientID, documentID, outbound)
	close(done)
}

// forwardEvents translates hub events into outbound wire messages until
// done fires. Unsubscribe does not close the subscription's channel, so
// done is what ends this loop.
func (a *Adapter) forwardEvents(sub *broadcast.Subscription, outbound chan<- *wire.ServerMessage, done <-chan struct{}) {
	for {
		select {
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			if msg := eventToServerMessage(event); msg != nil {
				select {
				case outbound <- msg:
				case <-done:
					return
				}
			}
		case <-done:
			return
		}
	}
}

func (a *Adapter) writePump(conn *websocket.Conn, outbound <-chan *wire.ServerMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-outbound:
			if !ok {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.BinaryMessage, wire.EncodeServerMessage(msg)); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}

func (a *Adapter) readLoop(conn *websocket.Conn, clientID, documentID string, outbound chan<- *wire.ServerMessage) {
	for {
		msg, err := readClientMessage(conn)
		if err != nil {
			return // transport closed; caller's defer handles cleanup
		}
		a.dispatch(clientID, documentID, msg, outbound)
	}
}

func (a *Adapter) dispatch(clientID, documentID string, msg *wire.ClientMessage, outbound chan<- *wire.ServerMessage) {
	switch msg.Kind {
	case wire.ClientUpdateMessage:
		if _, err := a.Hub.HandleDocumentUpdate(clientID, msg.UpdateMessage.UpdateData); err != nil {
			send(outbound, errorMessage(documentID, 422, err.Error(), wire.ErrorInvalidUpdate))
		}

	case wire.ClientAwarenessUpdate:
		if _, err := a.Hub.HandleAwarenessUpdate(clientID, msg.AwarenessUpdate.UserInfo, msg.AwarenessUpdate.AwarenessState); err != nil {
			send(outbound, errorMessage(documentID, 404, err.Error(), wire.ErrorDocumentNotFound))
		}

	case wire.ClientSyncRequest:
		data, err := a.Hub.GetSyncData(clientID, msg.SyncRequest.StateVector)
		if err != nil {
			send(outbound, errorMessage(documentID, 404, err.Error(), wire.ErrorDocumentNotFound))
			return
		}
		send(outbound, &wire.ServerMessage{
			DocumentID: documentID,
			Timestamp:  time.Now().UnixMilli(),
			Kind:       wire.ServerSyncResponse,
			SyncResponse: &wire.SyncResponse{UpdateData: data.Diff},
		})

	case wire.ClientHeartBeat:
		if err := a.Hub.HandleHeartbeat(clientID); err != nil {
			send(outbound, errorMessage(documentID, 404, err.Error(), wire.ErrorDocumentNotFound))
		}

	case wire.ClientLeaveDocument:
		// Handled by the connection's defer on transport close; an
		// explicit LeaveDocument message also ends the session early.
		a.Hub.LeaveDocument(clientID)

	default:
		send(outbound, errorMessage(documentID, 400, "unknown message kind", wire.ErrorUnknown))
	}
}

// GetDocumentState is the C6 unary read-through.
func (a *Adapter) GetDocumentState(documentID, clientID string) *wire.ServerMessage {
	state := a.Hub.GetDocumentState(documentID)
	users := make([]wire.ActiveUser, 0, len(state.Sessions))
	for _, s := range state.Sessions {
		users = append(users, wire.ActiveUser{ClientID: s.ClientID, UserID: s.UserID, UserName: s.UserName, UserColor: s.UserColor})
	}
	return &wire.ServerMessage{
		DocumentID: documentID,
		Timestamp:  time.Now().UnixMilli(),
		Kind:       wire.ServerDocumentState,
		DocumentState: &wire.DocumentState{
			StateVector:  state.StateVector,
			DocumentData: state.FullDocument,
			ActiveUsers:  users,
			LastModified: time.Now().UnixMilli(),
		},
	}
}

// GetActiveUsers is the C6 unary read-through.
func (a *Adapter) GetActiveUsers(documentID string) []wire.ActiveUser {
	sessions := a.Hub.GetActiveUsers(documentID)
	users := make([]wire.ActiveUser, 0, len(sessions))
	for _, s := range sessions {
		users = append(users, wire.ActiveUser{ClientID: s.ClientID, UserID: s.UserID, UserName: s.UserName, UserColor: s.UserColor})
	}
	return users
}

func send(outbound chan<- *wire.ServerMessage, msg *wire.ServerMessage) {
	select {
	case outbound <- msg:
	default:
		logger.Warn("binaryadapter: outbound buffer full, dropping %v", msg.Kind)
	}
}

func errorMessage(documentID string, code int32, message string, errType wire.ErrorType) *wire.ServerMessage {
	return &wire.ServerMessage{
		DocumentID: documentID,
		Timestamp:  time.Now().UnixMilli(),
		Kind:       wire.ServerErrorMessage,
		ErrorMessage: &wire.ErrorMessage{
			ErrorCode:    code,
			ErrorMessage: message,
			ErrorType:    errType,
		},
	}
}

func eventToServerMessage(event domain.CollaborationEvent) *wire.ServerMessage {
	base := wire.ServerMessage{DocumentID: event.DocumentID, Timestamp: event.Timestamp.UnixMilli()}

	switch event.Type {
	case domain.EventDocumentUpdated:
		base.Kind = wire.ServerUpdateMessage
		base.UpdateMessage = &wire.UpdateMessage{
			UpdateData:     event.UpdateBytes,
			OriginClientID: event.OriginClientID,
			SequenceNumber: event.SequenceNumber,
		}
	case domain.EventAwarenessUpdated:
		base.Kind = wire.ServerAwarenessUpdate
		base.AwarenessUpdate = &wire.AwarenessUpdate{
			ClientID:       event.ClientID,
			UserInfo:       event.UserInfoJSON,
			AwarenessState: event.AwarenessStateJSON,
			Timestamp:      event.Timestamp.UnixMilli(),
		}
	case domain.EventUserJoined:
		base.Kind = wire.ServerUserJoined
		base.UserJoined = &wire.UserJoined{
			UserID:       event.UserID,
			UserName:     event.UserName,
			UserColor:    event.UserColor,
			ClientID:     event.ClientID,
			UserMetadata: event.UserMetadata,
		}
	case domain.EventUserLeft, domain.EventSessionExpired:
		base.Kind = wire.ServerUserLeft
		base.UserLeft = &wire.UserLeft{UserID: event.UserID, ClientID: event.ClientID}
	default:
		return nil
	}
	return &base
}

func readClientMessage(conn *websocket.Conn) (*wire.ClientMessage, error) {
	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			return nil, err
		}
		if messageType != websocket.BinaryMessage {
			continue // ignore stray control/text frames on the binary stream
		}
		return wire.DecodeClientMessage(data)
	}
}

func writeServerMessage(conn *websocket.Conn, msg *wire.ServerMessage) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	_ = conn.WriteMessage(websocket.BinaryMessage, wire.EncodeServerMessage(msg))
}
