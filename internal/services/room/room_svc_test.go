package room

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"watchpartygo/internal/auth"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	roomCols = []string{"id", "name", "video_url", "host_id", "is_locked",
		"playback_time", "is_playing", "created_at", "updated_at", "count"}
	ts = time.Date(2025, 7, 27, 16, 5, 5, 0, time.UTC)

	qHost     = regexp.QuoteMeta(`SELECT host_id, is_locked FROM rooms WHERE id = $1`)
	qHostLock = regexp.QuoteMeta(`SELECT host_id, is_locked FROM rooms WHERE id = $1 FOR UPDATE`)
	qRoomByID = `FROM rooms r WHERE r.id = \$1`
	qMembers  = `SELECT user_id, username, joined_at\s+FROM room_members`
)

func newMockService(t *testing.T) (IRoomService, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, mock.ExpectationsWereMet())
		db.Close()
	})
	return NewRoomService(db), mock
}

func hostRow(host string, locked bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"host_id", "is_locked"}).AddRow(host, locked)
}

func TestCreateRoom(t *testing.T) {
	svc, mock := newMockService(t)
	host := auth.Identity{UserID: "u1", Username: "alice"}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO rooms").
		WithArgs(sqlmock.AnyArg(), "Movie night", "https://youtu.be/x", "u1", true).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(ts, ts))
	mock.ExpectQuery("INSERT INTO room_members").
		WithArgs(sqlmock.AnyArg(), "u1", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"joined_at"}).AddRow(ts))
	mock.ExpectCommit()

	dto, err := svc.CreateRoom(context.Background(), host, "Movie night", "https://youtu.be/x", true)
	require.NoError(t, err)
	assert.NotEmpty(t, dto.ID)
	assert.Equal(t, "u1", dto.HostID)
	assert.Equal(t, 1, dto.MemberCount)
	assert.Equal(t, []MemberDTO{{ID: "u1", Username: "alice", JoinedAt: ts}}, dto.Members)
	assert.True(t, dto.IsLocked)
	assert.Equal(t, ts, dto.CreatedAt)
}

func TestListActive(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(`WHERE r.is_locked = FALSE\s+ORDER BY r.created_at DESC`).
		WillReturnRows(sqlmock.NewRows(roomCols).
			AddRow("r2", "Newer", "v2", "u2", false, 10.0, true, ts, ts, 3).
			AddRow("r1", "Older", "v1", "u1", false, 0.0, false, ts, ts, 1))

	list, err := svc.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "r2", list[0].ID)
	assert.Equal(t, 3, list[0].MemberCount)
	assert.True(t, list[0].IsPlaying)
	assert.Equal(t, 10.0, list[0].CurrentTime)
}

func TestListRecentDefaultsLimit(t *testing.T) {
	svc, mock := newMockService(t)

	mock.ExpectQuery(`JOIN room_members me ON me.room_id = r.id`).
		WithArgs("u1", 10).
		WillReturnRows(sqlmock.NewRows(roomCols))

	list, err := svc.ListRecent(context.Background(), "u1", 0)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestGetRoom(t *testing.T) {
	tests := []struct {
		name    string
		locked  bool
		caller  string
		wantErr error
	}{
		{"open room stranger", false, "u9", nil},
		{"locked room member", true, "u2", nil},
		{"locked room stranger", true, "u9", ErrRoomLocked},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, mock := newMockService(t)
			mock.ExpectQuery(qRoomByID).WithArgs("r1").
				WillReturnRows(sqlmock.NewRows(roomCols).
					AddRow("r1", "Room", "v", "u1", tt.locked, 5.0, false, ts, ts, 2))
			mock.ExpectQuery(qMembers).WithArgs("r1").
				WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "joined_at"}).
					AddRow("u1", "alice", ts).
					AddRow("u2", "bob", ts.Add(time.Minute)))

			dto, err := svc.GetRoom(context.Background(), "r1", tt.caller)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 2, dto.MemberCount)
			assert.Equal(t, "bob", dto.Members[1].Username)
		})
	}
}

func TestGetRoomNotFound(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(qRoomByID).WithArgs("nope").WillReturnRows(sqlmock.NewRows(roomCols))

	_, err := svc.GetRoom(context.Background(), "nope", "u1")
	assert.ErrorIs(t, err, ErrRoomNotFound)
}

func TestJoinRoom(t *testing.T) {
	bob := auth.Identity{UserID: "u2", Username: "bob"}

	t.Run("adds member", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", false))
		mock.ExpectExec("INSERT INTO room_members").WithArgs("r1", "u2", "bob").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE rooms SET updated_at = now() WHERE id = $1`)).
			WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, svc.JoinRoom(context.Background(), "r1", bob))
	})

	t.Run("already member is a no-op", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", false))
		mock.ExpectExec("INSERT INTO room_members").WithArgs("r1", "u2", "bob").
			WillReturnResult(sqlmock.NewResult(0, 0))

		assert.NoError(t, svc.JoinRoom(context.Background(), "r1", bob))
	})

	t.Run("locked room", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", true))

		assert.ErrorIs(t, svc.JoinRoom(context.Background(), "r1", bob), ErrRoomLocked)
	})

	t.Run("missing room", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnError(sql.ErrNoRows)

		assert.ErrorIs(t, svc.JoinRoom(context.Background(), "r1", bob), ErrRoomNotFound)
	})
}

func TestLeaveRoom(t *testing.T) {
	qDelMember := regexp.QuoteMeta(`DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`)
	qNext := `SELECT user_id FROM room_members`

	t.Run("last member deletes room", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(qHostLock).WithArgs("r1").WillReturnRows(hostRow("u1", false))
		mock.ExpectExec(qDelMember).WithArgs("r1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(qNext).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"user_id"}))
		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM rooms WHERE id = $1`)).WithArgs("r1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		deleted, err := svc.LeaveRoom(context.Background(), "r1", "u1")
		require.NoError(t, err)
		assert.True(t, deleted)
	})

	t.Run("host hands over", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(qHostLock).WithArgs("r1").WillReturnRows(hostRow("u1", false))
		mock.ExpectExec(qDelMember).WithArgs("r1", "u1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(qNext).WithArgs("r1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u2"))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE rooms SET host_id = $2`)).WithArgs("r1", "u2").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		deleted, err := svc.LeaveRoom(context.Background(), "r1", "u1")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("guest leaves", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(qHostLock).WithArgs("r1").WillReturnRows(hostRow("u1", false))
		mock.ExpectExec(qDelMember).WithArgs("r1", "u2").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(qNext).WithArgs("r1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id"}).AddRow("u1"))
		mock.ExpectExec(regexp.QuoteMeta(`UPDATE rooms SET updated_at = now() WHERE id = $1`)).
			WithArgs("r1").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		deleted, err := svc.LeaveRoom(context.Background(), "r1", "u2")
		require.NoError(t, err)
		assert.False(t, deleted)
	})

	t.Run("missing room rolls back", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectBegin()
		mock.ExpectQuery(qHostLock).WithArgs("r1").WillReturnRows(sqlmock.NewRows([]string{"host_id", "is_locked"}))
		mock.ExpectRollback()

		_, err := svc.LeaveRoom(context.Background(), "r1", "u2")
		assert.ErrorIs(t, err, ErrRoomNotFound)
	})
}

func TestUpdateRoom(t *testing.T) {
	t.Run("not host", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", false))

		_, err := svc.UpdateRoom(context.Background(), "r1", "u2", RoomPatch{})
		assert.ErrorIs(t, err, ErrNotHost)
	})

	t.Run("partial update", func(t *testing.T) {
		svc, mock := newMockService(t)
		name := "Renamed"
		locked := true
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", false))
		mock.ExpectExec(`UPDATE rooms\s+SET name\s+= COALESCE\(\$2, name\)`).
			WithArgs("r1", "Renamed", nil, true).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(qRoomByID).WithArgs("r1").
			WillReturnRows(sqlmock.NewRows(roomCols).
				AddRow("r1", "Renamed", "v", "u1", true, 0.0, false, ts, ts, 1))
		mock.ExpectQuery(qMembers).WithArgs("r1").
			WillReturnRows(sqlmock.NewRows([]string{"user_id", "username", "joined_at"}).
				AddRow("u1", "alice", ts))

		dto, err := svc.UpdateRoom(context.Background(), "r1", "u1", RoomPatch{Name: &name, IsLocked: &locked})
		require.NoError(t, err)
		assert.Equal(t, "Renamed", dto.Name)
		assert.True(t, dto.IsLocked)
	})
}

func TestRemoveMember(t *testing.T) {
	t.Run("host removes guest", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", false))
		mock.ExpectExec(`DELETE FROM room_members`).WithArgs("r1", "u2").
			WillReturnResult(sqlmock.NewResult(0, 1))

		assert.NoError(t, svc.RemoveMember(context.Background(), "r1", "u1", "u2"))
	})

	t.Run("guest cannot remove", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", false))

		assert.ErrorIs(t, svc.RemoveMember(context.Background(), "r1", "u2", "u3"), ErrNotHost)
	})

	t.Run("host cannot remove self", func(t *testing.T) {
		svc, mock := newMockService(t)
		mock.ExpectQuery(qHost).WithArgs("r1").WillReturnRows(hostRow("u1", false))

		assert.ErrorIs(t, svc.RemoveMember(context.Background(), "r1", "u1", "u1"), ErrRemoveHost)
	})
}

func TestListMessagesClampsLimit(t *testing.T) {
	svc, mock := newMockService(t)
	mock.ExpectQuery(`FROM messages`).WithArgs("r1", MaxMessages).
		WillReturnRows(sqlmock.NewRows([]string{"id", "room_id", "sender_id", "sender_username", "text", "type", "created_at"}).
			AddRow("m2", "r1", "u1", "alice", "second", "text", ts.Add(time.Second)).
			AddRow("m1", "r1", "u1", "alice", "first", "text", ts))

	list, err := svc.ListMessages(context.Background(), "r1", 5000)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "m2", list[0].ID)
}
