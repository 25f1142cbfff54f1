package room

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"watchpartygo/internal/auth"

	"github.com/google/uuid"
)

// RoomDTO is the durable room record. It is independent of the live state
// kept by the real-time engine; the two are reconciled loosely at best.
type RoomDTO struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	VideoURL    string      `json:"videoUrl"`
	HostID      string      `json:"hostId"`
	Members     []MemberDTO `json:"members,omitempty"`
	MemberCount int         `json:"memberCount"`
	IsLocked    bool        `json:"isLocked"`
	CurrentTime float64     `json:"currentTime"`
	IsPlaying   bool        `json:"isPlaying"`
	CreatedAt   time.Time   `json:"createdAt" example:"2025-07-27T16:05:05Z"`
	UpdatedAt   time.Time   `json:"updatedAt" example:"2025-07-27T16:05:05Z"`
}

type MemberDTO struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
}

type MessageDTO struct {
	ID             string    `json:"id"`
	RoomID         string    `json:"roomId"`
	SenderID       string    `json:"senderId"`
	SenderUsername string    `json:"senderUsername"`
	Text           string    `json:"text"`
	Type           string    `json:"type" example:"text"`
	CreatedAt      time.Time `json:"createdAt"`
}

// RoomPatch carries the optional fields of a host update. Nil means unchanged.
type RoomPatch struct {
	Name     *string
	VideoURL *string
	IsLocked *bool
}

var (
	ErrRoomNotFound = errors.New("room not found")
	ErrRoomLocked   = errors.New("this room is private")
	ErrNotHost      = errors.New("only the host can do this")
	ErrRemoveHost   = errors.New("the host cannot remove themselves, leave instead")
)

const MaxMessages = 100

type IRoomService interface {
	CreateRoom(ctx context.Context, host auth.Identity, name, videoURL string, isLocked bool) (*RoomDTO, error)
	ListActive(ctx context.Context) ([]RoomDTO, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]RoomDTO, error)
	GetRoom(ctx context.Context, roomID, userID string) (*RoomDTO, error)
	JoinRoom(ctx context.Context, roomID string, who auth.Identity) error
	LeaveRoom(ctx context.Context, roomID, userID string) (deleted bool, err error)
	UpdateRoom(ctx context.Context, roomID, userID string, patch RoomPatch) (*RoomDTO, error)
	RemoveMember(ctx context.Context, roomID, hostID, userID string) error
	ListMessages(ctx context.Context, roomID string, limit int) ([]MessageDTO, error)
}

type roomService struct {
	db *sql.DB
}

var _ IRoomService = (*roomService)(nil)

func NewRoomService(db *sql.DB) IRoomService {
	return &roomService{db: db}
}

const roomColumns = `r.id, r.name, r.video_url, r.host_id, r.is_locked,
       r.playback_time, r.is_playing, r.created_at, r.updated_at,
       (SELECT count(*) FROM room_members m WHERE m.room_id = r.id)`

// CreateRoom stores a new room with the caller as host and first member.
func (svc *roomService) CreateRoom(ctx context.Context, host auth.Identity, name, videoURL string, isLocked bool) (*RoomDTO, error) {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	dto := &RoomDTO{
		ID:          uuid.NewString(),
		Name:        name,
		VideoURL:    videoURL,
		HostID:      host.UserID,
		IsLocked:    isLocked,
		MemberCount: 1,
	}
	const insRoom = `
	  INSERT INTO rooms (id, name, video_url, host_id, is_locked)
	       VALUES ($1, $2, $3, $4, $5)
	  RETURNING created_at, updated_at`
	if err = tx.QueryRowContext(ctx, insRoom,
		dto.ID, name, videoURL, host.UserID, isLocked,
	).Scan(&dto.CreatedAt, &dto.UpdatedAt); err != nil {
		return nil, err
	}

	const insMember = `
	  INSERT INTO room_members (room_id, user_id, username)
	       VALUES ($1, $2, $3)
	  RETURNING joined_at`
	m := MemberDTO{ID: host.UserID, Username: host.Username}
	if err = tx.QueryRowContext(ctx, insMember, dto.ID, host.UserID, host.Username).Scan(&m.JoinedAt); err != nil {
		return nil, err
	}
	dto.Members = []MemberDTO{m}

	return dto, tx.Commit()
}

// ListActive returns every unlocked room, newest first.
func (svc *roomService) ListActive(ctx context.Context) ([]RoomDTO, error) {
	rows, err := svc.db.QueryContext(ctx,
		`SELECT `+roomColumns+`
		   FROM rooms r
		  WHERE r.is_locked = FALSE
		  ORDER BY r.created_at DESC`)
	if err != nil {
		return nil, err
	}
	return scanRooms(rows)
}

// ListRecent returns the rooms userID belongs to, most recently touched first.
func (svc *roomService) ListRecent(ctx context.Context, userID string, limit int) ([]RoomDTO, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := svc.db.QueryContext(ctx,
		`SELECT `+roomColumns+`
		   FROM rooms r
		   JOIN room_members me ON me.room_id = r.id
		  WHERE me.user_id = $1
		  ORDER BY r.updated_at DESC
		  LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	return scanRooms(rows)
}

// GetRoom loads a room with its members. Locked rooms are only visible to
// their members.
func (svc *roomService) GetRoom(ctx context.Context, roomID, userID string) (*RoomDTO, error) {
	row := svc.db.QueryRowContext(ctx,
		`SELECT `+roomColumns+` FROM rooms r WHERE r.id = $1`, roomID)
	dto, err := scanRoom(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	rows, err := svc.db.QueryContext(ctx,
		`SELECT user_id, username, joined_at
		   FROM room_members
		  WHERE room_id = $1
		  ORDER BY joined_at`, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	isMember := false
	dto.Members = make([]MemberDTO, 0)
	for rows.Next() {
		var m MemberDTO
		if err := rows.Scan(&m.ID, &m.Username, &m.JoinedAt); err != nil {
			return nil, err
		}
		isMember = isMember || m.ID == userID
		dto.Members = append(dto.Members, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	dto.MemberCount = len(dto.Members)

	if dto.IsLocked && !isMember {
		return nil, ErrRoomLocked
	}
	return dto, nil
}

// JoinRoom adds who to the room. Only the host may join a locked room.
func (svc *roomService) JoinRoom(ctx context.Context, roomID string, who auth.Identity) error {
	hostID, locked, err := svc.hostOf(ctx, svc.db, roomID, false)
	if err != nil {
		return err
	}
	if locked && hostID != who.UserID {
		return ErrRoomLocked
	}

	res, err := svc.db.ExecContext(ctx, `
	  INSERT INTO room_members (room_id, user_id, username)
	       VALUES ($1, $2, $3)
	  ON CONFLICT DO NOTHING`, roomID, who.UserID, who.Username)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil
	}
	_, err = svc.db.ExecContext(ctx, `UPDATE rooms SET updated_at = now() WHERE id = $1`, roomID)
	return err
}

// LeaveRoom removes userID. The room is deleted once empty; a departing host
// hands over to the longest-standing member.
func (svc *roomService) LeaveRoom(ctx context.Context, roomID, userID string) (bool, error) {
	tx, err := svc.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	hostID, _, err := svc.hostOf(ctx, tx, roomID, true)
	if err != nil {
		return false, err
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID); err != nil {
		return false, err
	}

	var next string
	err = tx.QueryRowContext(ctx, `
	  SELECT user_id FROM room_members
	   WHERE room_id = $1
	   ORDER BY joined_at
	   LIMIT 1`, roomID).Scan(&next)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err = tx.ExecContext(ctx, `DELETE FROM rooms WHERE id = $1`, roomID); err != nil {
			return false, err
		}
		return true, tx.Commit()
	case err != nil:
		return false, err
	}

	if hostID == userID {
		_, err = tx.ExecContext(ctx,
			`UPDATE rooms SET host_id = $2, updated_at = now() WHERE id = $1`, roomID, next)
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE rooms SET updated_at = now() WHERE id = $1`, roomID)
	}
	if err != nil {
		return false, err
	}
	return false, tx.Commit()
}

// UpdateRoom applies a host-only partial update.
func (svc *roomService) UpdateRoom(ctx context.Context, roomID, userID string, patch RoomPatch) (*RoomDTO, error) {
	hostID, _, err := svc.hostOf(ctx, svc.db, roomID, false)
	if err != nil {
		return nil, err
	}
	if hostID != userID {
		return nil, ErrNotHost
	}

	const upd = `
	  UPDATE rooms
	     SET name       = COALESCE($2, name),
	         video_url  = COALESCE($3, video_url),
	         is_locked  = COALESCE($4, is_locked),
	         updated_at = now()
	   WHERE id = $1`
	if _, err = svc.db.ExecContext(ctx, upd, roomID, patch.Name, patch.VideoURL, patch.IsLocked); err != nil {
		return nil, err
	}
	return svc.GetRoom(ctx, roomID, userID)
}

// RemoveMember lets the host drop another member.
func (svc *roomService) RemoveMember(ctx context.Context, roomID, hostID, userID string) error {
	owner, _, err := svc.hostOf(ctx, svc.db, roomID, false)
	if err != nil {
		return err
	}
	if owner != hostID {
		return ErrNotHost
	}
	if userID == hostID {
		return ErrRemoveHost
	}
	_, err = svc.db.ExecContext(ctx,
		`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return err
}

// ListMessages returns the newest persisted messages of a room first.
func (svc *roomService) ListMessages(ctx context.Context, roomID string, limit int) ([]MessageDTO, error) {
	if limit <= 0 || limit > MaxMessages {
		limit = MaxMessages
	}
	rows, err := svc.db.QueryContext(ctx, `
	  SELECT id, room_id, sender_id, sender_username, text, type, created_at
	    FROM messages
	   WHERE room_id = $1
	   ORDER BY created_at DESC
	   LIMIT $2`, roomID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]MessageDTO, 0, limit)
	for rows.Next() {
		var m MessageDTO
		if err := rows.Scan(&m.ID, &m.RoomID, &m.SenderID, &m.SenderUsername,
			&m.Text, &m.Type, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// helpers

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (svc *roomService) hostOf(ctx context.Context, q queryer, roomID string, lock bool) (string, bool, error) {
	query := `SELECT host_id, is_locked FROM rooms WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	var (
		hostID string
		locked bool
	)
	if err := q.QueryRowContext(ctx, query, roomID).Scan(&hostID, &locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, ErrRoomNotFound
		}
		return "", false, err
	}
	return hostID, locked, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRoom(s scanner) (*RoomDTO, error) {
	var r RoomDTO
	if err := s.Scan(&r.ID, &r.Name, &r.VideoURL, &r.HostID, &r.IsLocked,
		&r.CurrentTime, &r.IsPlaying, &r.CreatedAt, &r.UpdatedAt, &r.MemberCount); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanRooms(rows *sql.Rows) ([]RoomDTO, error) {
	defer rows.Close()

	list := make([]RoomDTO, 0)
	for rows.Next() {
		r, err := scanRoom(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *r)
	}
	return list, rows.Err()
}
