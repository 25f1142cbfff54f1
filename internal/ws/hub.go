package ws

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrRoomNotFound     = errors.New("room_not_found")
	ErrUnknownAction    = errors.New("unknown_action")
	ErrMissingTime      = errors.New("missing_time")
	ErrIdentityMismatch = errors.New("identity_mismatch")
	ErrMalformed        = errors.New("malformed_event")
	ErrRoomEvicted      = errors.New("room_evicted")
)

// Hub is the registry of live rooms. A room exists exactly while it has at
// least one member. Every mutation and the broadcast describing it happen
// under one lock, so observers of a room see its events in apply order.
type Hub struct {
	mu           sync.Mutex
	rooms        map[string]*room
	historyLimit int
}

func NewHub(historyLimit int) *Hub {
	return &Hub{rooms: map[string]*room{}, historyLimit: historyLimit}
}

// RoomSnapshot is a read-only copy of one room's state.
type RoomSnapshot struct {
	RoomID      string
	Members     []Member
	CurrentTime float64
	IsPlaying   bool
	Messages    int
}

// ─────────────────────────── registry primitives ─────────────────────────────
// Callers must hold h.mu.

func (h *Hub) getOrCreate(roomID string) *room {
	r, ok := h.rooms[roomID]
	if !ok {
		r = newRoom(roomID, h.historyLimit)
		h.rooms[roomID] = r
		zap.L().Debug("ws.room_created", zap.String("room", roomID))
	}
	return r
}

func (h *Hub) get(roomID string) (*room, bool) {
	r, ok := h.rooms[roomID]
	return r, ok
}

// removeIfEmpty deletes the room when its member set has drained and reports
// whether it did.
func (h *Hub) removeIfEmpty(roomID string) bool {
	r, ok := h.rooms[roomID]
	if !ok || len(r.members) > 0 {
		return false
	}
	delete(h.rooms, roomID)
	zap.L().Debug("ws.room_deleted", zap.String("room", roomID))
	return true
}

// guard runs fn against one room. A panic evicts that room only.
func (h *Hub) guard(r *room, fn func(r *room) error) (err error) {
	defer func() {
		if p := recover(); p != nil {
			delete(h.rooms, r.id)
			zap.L().Error("ws.room_evicted",
				zap.String("room", r.id),
				zap.Any("panic", p),
				zap.Stack("stack"))
			err = fmt.Errorf("%w: %s", ErrRoomEvicted, r.id)
		}
	}()
	return fn(r)
}

// ─────────────────────────── protocol operations ─────────────────────────────

// Join adds the session's identity to roomID, creating the room if needed,
// and sends room_update to every session in the room, the joiner included.
func (h *Hub) Join(c *clientConn, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.guard(h.getOrCreate(roomID), func(r *room) error {
		r.attach(c)
		r.addMember(c.member())
		h.emitUpdate(r)
		return nil
	})
}

// Leave removes the session's identity from roomID. The room is deleted when
// that empties it; otherwise the remaining sessions get room_update.
func (h *Hub) Leave(c *clientConn, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return h.guard(r, func(r *room) error {
		r.detach(c)
		h.depart(r, c.identity.UserID)
		return nil
	})
}

// Control applies a playback action and relays it to everyone but the sender.
// seek moves the position only; play and pause flip the transport flag only.
func (h *Hub) Control(c *clientConn, roomID, action string, at *float64) error {
	switch action {
	case ActionPlay, ActionPause:
	case ActionSeek:
		if at == nil {
			return ErrMissingTime
		}
		if *at < 0 {
			return fmt.Errorf("%w: negative time", ErrMalformed)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return h.guard(r, func(r *room) error {
		switch action {
		case ActionPlay:
			r.isPlaying = true
		case ActionPause:
			r.isPlaying = false
		case ActionSeek:
			r.currentTime = *at
		}
		msg, err := frame(EventVideoControl, VideoControlBody{Action: action, Time: at})
		if err != nil {
			return err
		}
		r.broadcast(msg, c)
		return nil
	})
}

// Chat appends message to the room's bounded history and relays it verbatim
// to everyone but the sender.
func (h *Hub) Chat(c *clientConn, roomID string, message json.RawMessage) error {
	if len(message) == 0 || string(message) == "null" {
		return fmt.Errorf("%w: empty message", ErrMalformed)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	return h.guard(r, func(r *room) error {
		r.messages.push(message)
		msg, err := frame(EventReceiveMessage, message)
		if err != nil {
			return err
		}
		r.broadcast(msg, c)
		return nil
	})
}

// Sync answers the requesting session with the room's playback state. It
// never mutates the room.
func (h *Hub) Sync(c *clientConn, roomID string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.get(roomID)
	if !ok {
		return ErrRoomNotFound
	}
	msg, err := frame(EventSyncResponse, SyncResponseBody{
		CurrentTime: r.currentTime,
		IsPlaying:   r.isPlaying,
	})
	if err != nil {
		return err
	}
	c.enqueue(msg)
	return nil
}

// Disconnect performs a leave for every room the session's identity belongs
// to and detaches the session from every room it was attached to.
func (h *Hub) Disconnect(c *clientConn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, r := range h.rooms {
		_, attached := r.conns[c]
		member := r.hasMember(c.identity.UserID)
		if !attached && !member {
			continue
		}
		_ = h.guard(r, func(r *room) error {
			r.detach(c)
			if member {
				h.depart(r, c.identity.UserID)
			}
			return nil
		})
	}
}

// depart removes userID and either deletes the drained room or tells the
// survivors. Callers must hold h.mu.
func (h *Hub) depart(r *room, userID string) {
	r.removeMember(userID)
	if h.removeIfEmpty(r.id) {
		return
	}
	h.emitUpdate(r)
}

func (h *Hub) emitUpdate(r *room) {
	msg, err := frame(EventRoomUpdate, r.update())
	if err != nil {
		zap.L().Error("ws.encode_room_update", zap.String("room", r.id), zap.Error(err))
		return
	}
	r.broadcast(msg, nil)
}

// ─────────────────────────── read-only views ─────────────────────────────────

// Snapshot returns a copy of one room's state.
func (h *Hub) Snapshot(roomID string) (RoomSnapshot, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.get(roomID)
	if !ok {
		return RoomSnapshot{}, false
	}
	return snapshotOf(r), true
}

// Snapshots returns a copy of every live room, ordered by room ID.
func (h *Hub) Snapshots() []RoomSnapshot {
	h.mu.Lock()
	out := make([]RoomSnapshot, 0, len(h.rooms))
	for _, r := range h.rooms {
		out = append(out, snapshotOf(r))
	}
	h.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].RoomID < out[j].RoomID })
	return out
}

// history returns the buffered chat of a room, oldest first.
func (h *Hub) history(roomID string) []json.RawMessage {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.get(roomID)
	if !ok {
		return nil
	}
	return r.messages.items()
}

func snapshotOf(r *room) RoomSnapshot {
	u := r.update()
	return RoomSnapshot{
		RoomID:      r.id,
		Members:     u.Members,
		CurrentTime: u.CurrentTime,
		IsPlaying:   u.IsPlaying,
		Messages:    r.messages.len(),
	}
}
