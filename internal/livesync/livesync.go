package livesync

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"watchpartygo/internal/ws"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	keyPrefix   = "party:"
	pipeTimeout = 1500 * time.Millisecond
)

var ErrNotLive = errors.New("room has no live state")

// SnapshotSource is the in-process room registry.
type SnapshotSource interface {
	Snapshots() []ws.RoomSnapshot
}

// LiveRoom is the mirrored view of a room as the REST layer sees it.
type LiveRoom struct {
	RoomID      string      `json:"roomId"`
	Members     []ws.Member `json:"members"`
	MemberCount int         `json:"memberCount"`
	CurrentTime float64     `json:"currentTime"`
	IsPlaying   bool        `json:"isPlaying"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

// Mirror copies ephemeral room state into Redis hashes. Nothing is ever read
// back into the registry; the copy only serves readers outside the engine.
type Mirror struct {
	rdc  *redis.Client
	src  SnapshotSource
	ttl  time.Duration
	now  func() time.Time
	last map[string]struct{} // rooms written on the previous pass
}

func NewMirror(rdc *redis.Client, src SnapshotSource, ttl time.Duration) *Mirror {
	return &Mirror{
		rdc:  rdc,
		src:  src,
		ttl:  ttl,
		now:  time.Now,
		last: map[string]struct{}{},
	}
}

func Key(roomID string) string { return keyPrefix + roomID }

// Run mirrors the registry every interval until ctx is done.
func (m *Mirror) Run(ctx context.Context, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				if err := m.SyncOnce(ctx); err != nil {
					zap.L().Warn("livesync.pipeline", zap.Error(err))
				}
			}
		}
	}()
}

// SyncOnce writes every live room and drops the keys of rooms that vanished
// since the previous pass, in one pipelined round‑trip.
func (m *Mirror) SyncOnce(ctx context.Context) error {
	rooms := m.src.Snapshots()
	if len(rooms) == 0 && len(m.last) == 0 {
		return nil
	}
	current := make(map[string]struct{}, len(rooms))

	ctx, cancel := context.WithTimeout(ctx, pipeTimeout)
	defer cancel()

	at := strconv.FormatInt(m.now().Unix(), 10)
	pipe := m.rdc.Pipeline()
	for _, r := range rooms {
		current[r.RoomID] = struct{}{}
		members, err := json.Marshal(r.Members)
		if err != nil {
			return err
		}
		key := Key(r.RoomID)
		pipe.HSet(ctx, key,
			"members", string(members),
			"count", strconv.Itoa(len(r.Members)),
			"t", strconv.FormatFloat(r.CurrentTime, 'f', -1, 64),
			"playing", strconv.FormatBool(r.IsPlaying),
			"at", at,
		)
		pipe.Expire(ctx, key, m.ttl)
	}

	var gone []string
	for id := range m.last {
		if _, ok := current[id]; !ok {
			gone = append(gone, Key(id))
		}
	}
	if len(gone) > 0 {
		sort.Strings(gone)
		pipe.Del(ctx, gone...)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	m.last = current
	return nil
}

// Get reads the mirrored state of one room.
func (m *Mirror) Get(ctx context.Context, roomID string) (*LiveRoom, error) {
	data, err := m.rdc.HGetAll(ctx, Key(roomID)).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotLive
	}

	live := &LiveRoom{RoomID: roomID, Members: []ws.Member{}}
	if raw := data["members"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &live.Members); err != nil {
			return nil, err
		}
	}
	live.MemberCount, _ = strconv.Atoi(data["count"])
	live.CurrentTime, _ = strconv.ParseFloat(data["t"], 64)
	live.IsPlaying, _ = strconv.ParseBool(data["playing"])
	if sec, err := strconv.ParseInt(data["at"], 10, 64); err == nil {
		live.UpdatedAt = time.Unix(sec, 0).UTC()
	}
	return live, nil
}
