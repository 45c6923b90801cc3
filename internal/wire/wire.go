// Package wire implements the binary message catalogue described in
// spec §6 ("Binary streaming RPC ... fields preserved bit-exact for
// wire compatibility"). Field names, types and the ErrorType enum
// values match spec §6 exactly; the bytes on the wire are a hand-rolled
// tag+length-prefixed codec rather than literal protobuf, because this
// build never invokes protoc (see DESIGN.md). Grounded on the teacher's
// own tag-byte sync sub-protocol (room.go's msgSync/msgSyncStep1/2
// constants), generalized to the full catalogue.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrorType enumerates the wire error kinds, matching spec §6 exactly.
type ErrorType int32

const (
	ErrorUnknown            ErrorType = 0
	ErrorAuthentication     ErrorType = 1
	ErrorAuthorization      ErrorType = 2
	ErrorDocumentNotFound   ErrorType = 3
	ErrorInvalidUpdate      ErrorType = 4
	ErrorRateLimitExceeded  ErrorType = 5
	ErrorConnectionError    ErrorType = 6
)

// ClientMessageKind tags the one_of payload of a ClientMessage.
type ClientMessageKind uint8

const (
	ClientSyncRequest ClientMessageKind = iota + 1
	ClientUpdateMessage
	ClientAwarenessUpdate
	ClientJoinDocument
	ClientLeaveDocument
	ClientHeartBeat
)

// ServerMessageKind tags the one_of payload of a ServerMessage.
type ServerMessageKind uint8

const (
	ServerSyncResponse ServerMessageKind = iota + 1
	ServerUpdateMessage
	ServerAwarenessUpdate
	ServerUserJoined
	ServerUserLeft
	ServerErrorMessage
	ServerDocumentState
)

// ClientMessage is the envelope every inbound binary frame decodes to.
type ClientMessage struct {
	ClientID   string
	DocumentID string
	Timestamp  int64
	Kind       ClientMessageKind

	SyncRequest      *SyncRequest
	UpdateMessage    *UpdateMessage
	AwarenessUpdate  *AwarenessUpdate
	JoinDocument     *JoinDocument
	LeaveDocument    *LeaveDocument
	HeartBeat        *HeartBeat
}

type SyncRequest struct {
	StateVector []byte
}

type UpdateMessage struct {
	UpdateData     []byte
	OriginClientID string
	SequenceNumber int64
}

type AwarenessUpdate struct {
	ClientID        string
	UserInfo        string
	AwarenessState  string
	Timestamp       int64
}

type JoinDocument struct {
	UserID       string
	UserName     string
	UserColor    string
	UserMetadata map[string]string
}

type LeaveDocument struct {
	UserID string
}

type HeartBeat struct {
	Timestamp int64
}

// ServerMessage is the envelope every outbound binary frame encodes
// from.
type ServerMessage struct {
	DocumentID string
	Timestamp  int64
	Kind       ServerMessageKind

	SyncResponse    *SyncResponse
	UpdateMessage   *UpdateMessage
	AwarenessUpdate *AwarenessUpdate
	UserJoined      *UserJoined
	UserLeft        *UserLeft
	ErrorMessage    *ErrorMessage
	DocumentState   *DocumentState
}

type SyncResponse struct {
	UpdateData []byte
}

type UserJoined struct {
	UserID       string
	UserName     string
	UserColor    string
	ClientID     string
	UserMetadata map[string]string
}

type UserLeft struct {
	UserID   string
	ClientID string
}

type ErrorMessage struct {
	ErrorCode    int32
	ErrorMessage string
	ErrorType    ErrorType
}

type ActiveUser struct {
	ClientID  string
	UserID    string
	UserName  string
	UserColor string
}

type DocumentState struct {
	StateVector   []byte
	DocumentData  []byte
	ActiveUsers   []ActiveUser
	LastModified  int64
}

var errTruncated = errors.New("wire: truncated frame")

// EncodeClientMessage serialises msg for transmission. Used by tests and
// by any future same-protocol client; the production adapter decodes
// these but (per spec) only ever produces ServerMessages.
func EncodeClientMessage(msg *ClientMessage) []byte {
	var buf bytes.Buffer
	writeString(&buf, msg.ClientID)
	writeString(&buf, msg.DocumentID)
	writeInt64(&buf, msg.Timestamp)
	buf.WriteByte(byte(msg.Kind))

	switch msg.Kind {
	case ClientSyncRequest:
		writeBytes(&buf, msg.SyncRequest.StateVector)
	case ClientUpdateMessage:
		writeBytes(&buf, msg.UpdateMessage.UpdateData)
		writeString(&buf, msg.UpdateMessage.OriginClientID)
		writeInt64(&buf, msg.UpdateMessage.SequenceNumber)
	case ClientAwarenessUpdate:
		writeString(&buf, msg.AwarenessUpdate.ClientID)
		writeString(&buf, msg.AwarenessUpdate.UserInfo)
		writeString(&buf, msg.AwarenessUpdate.AwarenessState)
		writeInt64(&buf, msg.AwarenessUpdate.Timestamp)
	case ClientJoinDocument:
		writeString(&buf, msg.JoinDocument.UserID)
		writeString(&buf, msg.JoinDocument.UserName)
		writeString(&buf, msg.JoinDocument.UserColor)
		writeStringMap(&buf, msg.JoinDocument.UserMetadata)
	case ClientLeaveDocument:
		writeString(&buf, msg.LeaveDocument.UserID)
	case ClientHeartBeat:
		writeInt64(&buf, msg.HeartBeat.Timestamp)
	}

	return buf.Bytes()
}

// DecodeClientMessage parses a frame produced by EncodeClientMessage.
func DecodeClientMessage(data []byte) (*ClientMessage, error) {
	r := bytes.NewReader(data)

	clientID, err := readString(r)
	if err != nil {
		return nil, errTruncated
	}
	documentID, err := readString(r)
	if err != nil {
		return nil, errTruncated
	}
	ts, err := readInt64(r)
	if err != nil {
		return nil, errTruncated
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, errTruncated
	}

	msg := &ClientMessage{
		ClientID:   clientID,
		DocumentID: documentID,
		Timestamp:  ts,
		Kind:       ClientMessageKind(kindByte),
	}

	switch msg.Kind {
	case ClientSyncRequest:
		sv, err := readBytesField(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.SyncRequest = &SyncRequest{StateVector: sv}
	case ClientUpdateMessage:
		data, err := readBytesField(r)
		if err != nil {
			return nil, errTruncated
		}
		origin, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		seq, err := readInt64(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.UpdateMessage = &UpdateMessage{UpdateData: data, OriginClientID: origin, SequenceNumber: seq}
	case ClientAwarenessUpdate:
		cid, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		info, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		state, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		ts2, err := readInt64(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.AwarenessUpdate = &AwarenessUpdate{ClientID: cid, UserInfo: info, AwarenessState: state, Timestamp: ts2}
	case ClientJoinDocument:
		userID, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		name, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		color, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		meta, err := readStringMap(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.JoinDocument = &JoinDocument{UserID: userID, UserName: name, UserColor: color, UserMetadata: meta}
	case ClientLeaveDocument:
		userID, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.LeaveDocument = &LeaveDocument{UserID: userID}
	case ClientHeartBeat:
		ts2, err := readInt64(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.HeartBeat = &HeartBeat{Timestamp: ts2}
	default:
		return nil, errTruncated
	}

	return msg, nil
}

// EncodeServerMessage serialises msg for transmission to a client.
func EncodeServerMessage(msg *ServerMessage) []byte {
	var buf bytes.Buffer
	writeString(&buf, msg.DocumentID)
	writeInt64(&buf, msg.Timestamp)
	buf.WriteByte(byte(msg.Kind))

	switch msg.Kind {
	case ServerSyncResponse:
		writeBytes(&buf, msg.SyncResponse.UpdateData)
	case ServerUpdateMessage:
		writeBytes(&buf, msg.UpdateMessage.UpdateData)
		writeString(&buf, msg.UpdateMessage.OriginClientID)
		writeInt64(&buf, msg.UpdateMessage.SequenceNumber)
	case ServerAwarenessUpdate:
		writeString(&buf, msg.AwarenessUpdate.ClientID)
		writeString(&buf, msg.AwarenessUpdate.UserInfo)
		writeString(&buf, msg.AwarenessUpdate.AwarenessState)
		writeInt64(&buf, msg.AwarenessUpdate.Timestamp)
	case ServerUserJoined:
		writeString(&buf, msg.UserJoined.UserID)
		writeString(&buf, msg.UserJoined.UserName)
		writeString(&buf, msg.UserJoined.UserColor)
		writeString(&buf, msg.UserJoined.ClientID)
		writeStringMap(&buf, msg.UserJoined.UserMetadata)
	case ServerUserLeft:
		writeString(&buf, msg.UserLeft.UserID)
		writeString(&buf, msg.UserLeft.ClientID)
	case ServerErrorMessage:
		writeInt32(&buf, msg.ErrorMessage.ErrorCode)
		writeString(&buf, msg.ErrorMessage.ErrorMessage)
		writeInt32(&buf, int32(msg.ErrorMessage.ErrorType))
	case ServerDocumentState:
		writeBytes(&buf, msg.DocumentState.StateVector)
		writeBytes(&buf, msg.DocumentState.DocumentData)
		writeInt64(&buf, msg.DocumentState.LastModified)
		writeUvarint(&buf, uint64(len(msg.DocumentState.ActiveUsers)))
		for _, u := range msg.DocumentState.ActiveUsers {
			writeString(&buf, u.ClientID)
			writeString(&buf, u.UserID)
			writeString(&buf, u.UserName)
			writeString(&buf, u.UserColor)
		}
	}

	return buf.Bytes()
}

// DecodeServerMessage parses a frame produced by EncodeServerMessage.
// Used by tests that assert on the adapter's outbound frames.
func DecodeServerMessage(data []byte) (*ServerMessage, error) {
	r := bytes.NewReader(data)

	documentID, err := readString(r)
	if err != nil {
		return nil, errTruncated
	}
	ts, err := readInt64(r)
	if err != nil {
		return nil, errTruncated
	}
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, errTruncated
	}

	msg := &ServerMessage{DocumentID: documentID, Timestamp: ts, Kind: ServerMessageKind(kindByte)}

	switch msg.Kind {
	case ServerSyncResponse:
		data, err := readBytesField(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.SyncResponse = &SyncResponse{UpdateData: data}
	case ServerUpdateMessage:
		data, err := readBytesField(r)
		if err != nil {
			return nil, errTruncated
		}
		origin, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		seq, err := readInt64(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.UpdateMessage = &UpdateMessage{UpdateData: data, OriginClientID: origin, SequenceNumber: seq}
	case ServerAwarenessUpdate:
		cid, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		info, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		state, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		ts2, err := readInt64(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.AwarenessUpdate = &AwarenessUpdate{ClientID: cid, UserInfo: info, AwarenessState: state, Timestamp: ts2}
	case ServerUserJoined:
		userID, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		name, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		color, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		cid, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		meta, err := readStringMap(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.UserJoined = &UserJoined{UserID: userID, UserName: name, UserColor: color, ClientID: cid, UserMetadata: meta}
	case ServerUserLeft:
		userID, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		cid, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.UserLeft = &UserLeft{UserID: userID, ClientID: cid}
	case ServerErrorMessage:
		code, err := readInt32(r)
		if err != nil {
			return nil, errTruncated
		}
		emsg, err := readString(r)
		if err != nil {
			return nil, errTruncated
		}
		etype, err := readInt32(r)
		if err != nil {
			return nil, errTruncated
		}
		msg.ErrorMessage = &ErrorMessage{ErrorCode: code, ErrorMessage: emsg, ErrorType: ErrorType(etype)}
	case ServerDocumentState:
		sv, err := readBytesField(r)
		if err != nil {
			return nil, errTruncated
		}
		docData, err := readBytesField(r)
		if err != nil {
			return nil, errTruncated
		}
		lastMod, err := readInt64(r)
		if err != nil {
			return nil, errTruncated
		}
		n, err := readUvarint(r)
		if err != nil {
			return nil, errTruncated
		}
		users := make([]ActiveUser, 0, n)
		for i := uint64(0); i < n; i++ {
			cid, err := readString(r)
			if err != nil {
				return nil, errTruncated
			}
			uid, err := readString(r)
			if err != nil {
				return nil, errTruncated
			}
			name, err := readString(r)
			if err != nil {
				return nil, errTruncated
			}
			color, err := readString(r)
			if err != nil {
				return nil, errTruncated
			}
			users = append(users, ActiveUser{ClientID: cid, UserID: uid, UserName: name, UserColor: color})
		}
		msg.DocumentState = &DocumentState{StateVector: sv, DocumentData: docData, LastModified: lastMod, ActiveUsers: users}
	default:
		return nil, errTruncated
	}

	return msg, nil
}

// --- primitive codec helpers -------------------------------------------

func writeUvarint(buf *bytes.Buffer, v uint64) {
	var tmp [binary.MaxVarintLen64]byte
	n := binary.PutUvarint(tmp[:], v)
	buf.Write(tmp[:n])
}

func readUvarint(r *bytes.Reader) (uint64, error) {
	return binary.ReadUvarint(r)
}

func writeInt64(buf *bytes.Buffer, v int64) {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	buf.Write(tmp[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var tmp [8]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(tmp[:])), nil
}

func writeInt32(buf *bytes.Buffer, v int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(v))
	buf.Write(tmp[:])
}

func readInt32(r *bytes.Reader) (int32, error) {
	var tmp [4]byte
	if _, err := readFull(r, tmp[:]); err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(tmp[:])), nil
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

func writeBytes(buf *bytes.Buffer, b []byte) {
	writeUvarint(buf, uint64(len(b)))
	buf.Write(b)
}

func readBytesField(r *bytes.Reader) ([]byte, error) {
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

func writeStringMap(buf *bytes.Buffer, m map[string]string) {
	writeUvarint(buf, uint64(len(m)))
	for k, v := range m {
		writeString(buf, k)
		writeString(buf, v)
	}
}

func readStringMap(r *bytes.Reader) (map[string]string, error) {
	n, err := readUvarint(r)
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := uint64(0); i < n; i++ {
		k, err := readString(r)
		if err != nil {
			return nil, err
		}
		v, err := readString(r)
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
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
			return total, errTruncated
		}
	}
	return total, nil
}
