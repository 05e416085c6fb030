package collab

import "github.com/vyrodovalexey/avasheets/internal/model"

// EventType identifies a realtime event on the duplex channel.
type EventType string

// Inbound event types.
const (
	EventJoinRoom      EventType = "joinRoom"
	EventLeaveRoom     EventType = "leaveRoom"
	EventUpdateCell    EventType = "updateCell"
	EventCursorMove    EventType = "cursorMove"
	EventCellSelection EventType = "cellSelection"
	EventLockCell      EventType = "lockCell"
	EventUnlockCell    EventType = "unlockCell"
	EventDisconnect    EventType = "disconnect"
)

// Outbound notification types.
const (
	EventSheetJoined   EventType = "sheetJoined"
	EventUserJoined    EventType = "userJoined"
	EventUserLeft      EventType = "userLeft"
	EventCellUpdated   EventType = "cellUpdated"
	EventUserCursor    EventType = "userCursor"
	EventUserSelection EventType = "userSelection"
	EventCellLocked    EventType = "cellLocked"
	EventCellUnlocked  EventType = "cellUnlocked"
	EventError         EventType = "error"
)

// Event is the envelope exchanged on the realtime channel.
type Event struct {
	Type       EventType `json:"type"`
	DocumentID string    `json:"documentId,omitempty"`
	Payload    any       `json:"payload,omitempty"`
}

// PresencePayload announces a user joining or leaving a room.
type PresencePayload struct {
	UserID string `json:"userId"`
	Name   string `json:"name,omitempty"`
}

// JoinedPayload confirms a join to the joining session only and lists who is
// already present.
type JoinedPayload struct {
	Members []PresencePayload `json:"members"`
}

// CellUpdatedPayload carries a committed cell change.
type CellUpdatedPayload struct {
	UserID string      `json:"userId"`
	Cell   *model.Cell `json:"cell"`
}

// CursorPayload carries a cursor position.
type CursorPayload struct {
	UserID string `json:"userId,omitempty"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

// SelectionPayload carries a rectangular selection.
type SelectionPayload struct {
	UserID  string `json:"userId,omitempty"`
	RowFrom int    `json:"rowFrom"`
	ColFrom int    `json:"colFrom"`
	RowTo   int    `json:"rowTo"`
	ColTo   int    `json:"colTo"`
}

// LockPayload names the cell a user claims or releases an advisory lock on.
type LockPayload struct {
	UserID string `json:"userId,omitempty"`
	Row    int    `json:"row"`
	Col    int    `json:"col"`
}

// ErrorPayload is sent only to the session whose event failed.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
