// Package collab manages realtime collaboration rooms: session-to-room
// membership, presence broadcasts, and fan-out of cursor, selection, lock,
// and cell-update events.
//
// Lock events are advisory notifications only. The hub keeps no server-side
// exclusion state for a "locked" cell, so a concurrent writer can still
// mutate it; clients that need coordination must honor the broadcasts
// themselves.
package collab

import (
	"context"
	"sync"

	"github.com/vyrodovalexey/avasheets/internal/access"
	"github.com/vyrodovalexey/avasheets/internal/model"
	"github.com/vyrodovalexey/avasheets/internal/mutation"
	"github.com/vyrodovalexey/avasheets/internal/observability"
	"github.com/vyrodovalexey/avasheets/internal/util"
)

// room is the set of sessions currently joined to one document. Rooms are
// created lazily on first join and destroyed when the last session leaves.
type room struct {
	docID string

	mu      sync.Mutex
	members map[*Session]struct{}
}

func newRoom(docID string) *room {
	return &room{
		docID:   docID,
		members: make(map[*Session]struct{}),
	}
}

// othersLocked returns every member except s. Callers must hold r.mu.
func (r *room) othersLocked(s *Session) []*Session {
	out := make([]*Session, 0, len(r.members))
	for m := range r.members {
		if m != s {
			out = append(out, m)
		}
	}
	return out
}

// Hub owns the document-to-room registry. Membership mutations for one room
// are serialized by the room's mutex; rooms are independent of each other.
type Hub struct {
	resolver *access.Resolver
	pipeline *mutation.Pipeline
	logger   observability.Logger
	metrics  *observability.Metrics

	mu    sync.RWMutex
	rooms map[string]*room
}

// NewHub creates a hub.
func NewHub(resolver *access.Resolver, pipeline *mutation.Pipeline, logger observability.Logger) *Hub {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Hub{
		resolver: resolver,
		pipeline: pipeline,
		logger:   logger,
		metrics:  observability.GetMetrics(),
		rooms:    make(map[string]*room),
	}
}

// Join adds the session to the document's room after a read-access check. A
// session already in another room leaves it first, with a userLeft broadcast
// there. The joiner gets a sheetJoined confirmation listing who is present;
// everyone else gets userJoined. Rejoining the current room only resends the
// confirmation.
func (h *Hub) Join(ctx context.Context, s *Session, docID string) error {
	if _, err := h.resolver.Require(ctx, s.UserID, docID, model.PermissionRead); err != nil {
		h.metrics.AccessDenied.WithLabelValues("joinRoom").Inc()
		return err
	}

	if prev := s.currentRoom(); prev != nil {
		if prev.docID == docID {
			prev.mu.Lock()
			present := presenceOfLocked(prev, s)
			prev.mu.Unlock()
			s.deliver(&Event{Type: EventSheetJoined, DocumentID: docID, Payload: JoinedPayload{Members: present}})
			return nil
		}
		h.remove(s, prev)
	}

	h.mu.Lock()
	r, ok := h.rooms[docID]
	if !ok {
		r = newRoom(docID)
		h.rooms[docID] = r
		h.metrics.RoomsActive.Inc()
	}
	r.mu.Lock()
	present := presenceOfLocked(r, s)
	r.members[s] = struct{}{}
	others := r.othersLocked(s)
	r.mu.Unlock()
	h.mu.Unlock()

	s.setRoom(r)

	s.deliver(&Event{Type: EventSheetJoined, DocumentID: docID, Payload: JoinedPayload{Members: present}})
	h.fanout(others, &Event{
		Type:       EventUserJoined,
		DocumentID: docID,
		Payload:    PresencePayload{UserID: s.UserID, Name: s.Name},
	})

	h.logger.Debug("session joined room",
		observability.String("sessionId", s.ID),
		observability.String("documentId", docID))
	return nil
}

// Leave removes the session from the document's room and broadcasts userLeft
// to the remaining members.
func (h *Hub) Leave(s *Session, docID string) error {
	r := s.currentRoom()
	if r == nil || r.docID != docID {
		return util.NewValidationError("session is not joined to this document")
	}
	h.remove(s, r)
	return nil
}

// Disconnect removes the session from whatever room it was in, broadcasting
// userLeft, and closes the session.
func (h *Hub) Disconnect(s *Session) {
	if r := s.currentRoom(); r != nil {
		h.remove(s, r)
	}
	s.Close()
}

// UpdateCell applies a cell change through the mutation pipeline, which
// re-checks write access on every call, and fans out cellUpdated to the
// other room members. Realtime writes and REST writes share this one path.
func (h *Hub) UpdateCell(ctx context.Context, s *Session, row, col int, change mutation.CellChange) (*model.Cell, error) {
	r := s.currentRoom()
	if r == nil {
		return nil, util.NewValidationError("session is not joined to a document")
	}

	cell, _, err := h.pipeline.UpdateCell(ctx, s.UserID, r.docID, row, col, change)
	if err != nil {
		return nil, err
	}

	h.broadcast(s, r, &Event{
		Type:       EventCellUpdated,
		DocumentID: r.docID,
		Payload:    CellUpdatedPayload{UserID: s.UserID, Cell: cell},
	})
	return cell, nil
}

// CursorMove fans out the session's cursor position to the other members.
func (h *Hub) CursorMove(s *Session, row, col int) error {
	return h.relay(s, EventUserCursor, func(docID string) any {
		return CursorPayload{UserID: s.UserID, Row: row, Col: col}
	})
}

// CellSelection fans out the session's selection rectangle to the other
// members.
func (h *Hub) CellSelection(s *Session, rowFrom, colFrom, rowTo, colTo int) error {
	return h.relay(s, EventUserSelection, func(docID string) any {
		return SelectionPayload{
			UserID:  s.UserID,
			RowFrom: rowFrom,
			ColFrom: colFrom,
			RowTo:   rowTo,
			ColTo:   colTo,
		}
	})
}

// LockCell broadcasts an advisory lock claim for the cell. No exclusion is
// enforced.
func (h *Hub) LockCell(s *Session, row, col int) error {
	return h.relay(s, EventCellLocked, func(docID string) any {
		return LockPayload{UserID: s.UserID, Row: row, Col: col}
	})
}

// UnlockCell broadcasts an advisory lock release for the cell.
func (h *Hub) UnlockCell(s *Session, row, col int) error {
	return h.relay(s, EventCellUnlocked, func(docID string) any {
		return LockPayload{UserID: s.UserID, Row: row, Col: col}
	})
}

// RoomSize returns the number of sessions in the document's room, zero when
// no room exists.
func (h *Hub) RoomSize(docID string) int {
	h.mu.RLock()
	r := h.rooms[docID]
	h.mu.RUnlock()
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.members)
}

// relay requires room membership and fans the built event out to the other
// members.
func (h *Hub) relay(s *Session, t EventType, payload func(docID string) any) error {
	r := s.currentRoom()
	if r == nil {
		return util.NewValidationError("session is not joined to a document")
	}
	h.broadcast(s, r, &Event{Type: t, DocumentID: r.docID, Payload: payload(r.docID)})
	return nil
}

// broadcast delivers the event to every room member except the sender.
func (h *Hub) broadcast(sender *Session, r *room, ev *Event) {
	r.mu.Lock()
	targets := r.othersLocked(sender)
	r.mu.Unlock()
	h.fanout(targets, ev)
}

// remove takes the session out of the room, destroying the room when it
// becomes empty, and broadcasts userLeft to the remaining members.
func (h *Hub) remove(s *Session, r *room) {
	h.mu.Lock()
	r.mu.Lock()
	delete(r.members, s)
	remaining := r.othersLocked(nil)
	if len(r.members) == 0 && h.rooms[r.docID] == r {
		delete(h.rooms, r.docID)
		h.metrics.RoomsActive.Dec()
	}
	r.mu.Unlock()
	h.mu.Unlock()

	s.setRoom(nil)

	h.fanout(remaining, &Event{
		Type:       EventUserLeft,
		DocumentID: r.docID,
		Payload:    PresencePayload{UserID: s.UserID, Name: s.Name},
	})

	h.logger.Debug("session left room",
		observability.String("sessionId", s.ID),
		observability.String("documentId", r.docID))
}

// fanout queues the event on each target, dropping it for sessions that
// cannot keep up.
func (h *Hub) fanout(targets []*Session, ev *Event) {
	for _, t := range targets {
		if !t.deliver(ev) {
			h.logger.Warn("event dropped for slow session",
				observability.String("sessionId", t.ID),
				observability.String("event", string(ev.Type)))
		}
	}
	if len(targets) > 0 {
		h.metrics.EventsRelayed.WithLabelValues(string(ev.Type)).Add(float64(len(targets)))
	}
}

// presenceOfLocked lists current members except s. Callers must hold r.mu.
func presenceOfLocked(r *room, s *Session) []PresencePayload {
	out := make([]PresencePayload, 0, len(r.members))
	for m := range r.members {
		if m != s {
			out = append(out, PresencePayload{UserID: m.UserID, Name: m.Name})
		}
	}
	return out
}
