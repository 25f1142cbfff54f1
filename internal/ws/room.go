package ws

import (
	"encoding/json"

	"go.uber.org/zap"
)

// room is the ephemeral state of one watch party. It is only touched while
// the owning Hub's lock is held.
type room struct {
	id          string
	members     []Member // join order, unique by ID
	conns       map[*clientConn]struct{}
	messages    *chatLog
	currentTime float64
	isPlaying   bool
}

func newRoom(id string, historyLimit int) *room {
	return &room{
		id:       id,
		conns:    map[*clientConn]struct{}{},
		messages: newChatLog(historyLimit),
	}
}

func (r *room) hasMember(userID string) bool {
	for _, m := range r.members {
		if m.ID == userID {
			return true
		}
	}
	return false
}

// addMember is a no-op for an ID that is already present.
func (r *room) addMember(m Member) bool {
	if r.hasMember(m.ID) {
		return false
	}
	r.members = append(r.members, m)
	return true
}

func (r *room) removeMember(userID string) bool {
	for i, m := range r.members {
		if m.ID == userID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *room) attach(c *clientConn) { r.conns[c] = struct{}{} }
func (r *room) detach(c *clientConn) { delete(r.conns, c) }

func (r *room) update() RoomUpdateBody {
	members := make([]Member, len(r.members))
	copy(members, r.members)
	return RoomUpdateBody{
		Members:     members,
		CurrentTime: r.currentTime,
		IsPlaying:   r.isPlaying,
	}
}

// broadcast enqueues msg on every attached session except the excluded one.
// Sessions that cannot keep up are closed; their reader performs the
// disconnect cleanup.
func (r *room) broadcast(msg []byte, except *clientConn) {
	for c := range r.conns {
		if c == except {
			continue
		}
		if !c.enqueue(msg) && !c.closed() {
			zap.L().Warn("ws.send_buffer_full",
				zap.String("room", r.id),
				zap.String("session", c.id),
				zap.String("user", c.identity.UserID))
			c.close()
		}
	}
}

// chatLog keeps the most recent messages of a room in arrival order.
type chatLog struct {
	buf   []json.RawMessage
	start int
	n     int
}

func newChatLog(limit int) *chatLog {
	if limit < 1 {
		limit = 1
	}
	return &chatLog{buf: make([]json.RawMessage, limit)}
}

// push appends m, evicting the oldest entry once the log is full.
func (l *chatLog) push(m json.RawMessage) {
	if l.n < len(l.buf) {
		l.buf[(l.start+l.n)%len(l.buf)] = m
		l.n++
		return
	}
	l.buf[l.start] = m
	l.start = (l.start + 1) % len(l.buf)
}

func (l *chatLog) len() int { return l.n }

func (l *chatLog) items() []json.RawMessage {
	out := make([]json.RawMessage, 0, l.n)
	for i := 0; i < l.n; i++ {
		out = append(out, l.buf[(l.start+i)%len(l.buf)])
	}
	return out
}
