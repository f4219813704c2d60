package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/internal/app/room"
	"duochat/internal/app/session"
	"duochat/internal/app/user"
)

func TestUsers(t *testing.T) {
	ctx := context.Background()
	s := New()

	digest := "d"
	require.NoError(t, s.CreateUser(ctx, &user.User{ID: "u1", Username: "alice", Email: "A@x.com", PasswordHash: &digest}))
	require.NoError(t, s.CreateUser(ctx, &user.User{ID: "u2", Username: "Alicia", Email: "b@x.com"}))
	require.NoError(t, s.CreateUser(ctx, &user.User{ID: "u3", Username: "bob", Email: "c@x.com"}))

	err := s.CreateUser(ctx, &user.User{ID: "u4", Username: "mallory", Email: "a@X.com"})
	assert.ErrorIs(t, err, user.ErrEmailTaken)

	got, err := s.GetUserByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "u1", got.ID)

	*got.PasswordHash = "mutated"
	again, err := s.GetUserByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "d", *again.PasswordHash)

	_, err = s.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, user.ErrNotFound)

	found, err := s.SearchUsers(ctx, "ALI", "u1", 20)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "u2", found[0].ID)

	batch, err := s.GetUsersByIDs(ctx, []string{"u1", "missing", "u3"})
	require.NoError(t, err)
	assert.Len(t, batch, 2)

	require.NoError(t, s.SetOnline(ctx, "u1", true))
	require.NoError(t, s.SetOnline(ctx, "u2", true))
	require.NoError(t, s.ResetPresence(ctx))
	for _, id := range []string{"u1", "u2"} {
		u, err := s.GetUserByID(ctx, id)
		require.NoError(t, err)
		assert.False(t, u.Online)
	}
}

func TestSessions_SingleRecordPerUser(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.UpsertSession(ctx, &session.Session{UserID: "u1", Token: "first"}))
	require.NoError(t, s.UpsertSession(ctx, &session.Session{UserID: "u1", Token: "second"}))

	_, err := s.GetSessionByToken(ctx, "first")
	assert.ErrorIs(t, err, session.ErrNotFound)

	sess, err := s.GetSessionByToken(ctx, "second")
	require.NoError(t, err)
	assert.Equal(t, "u1", sess.UserID)

	require.NoError(t, s.DeleteSession(ctx, "u1"))
	require.NoError(t, s.DeleteSession(ctx, "u1"))

	_, err = s.GetSessionByUser(ctx, "u1")
	assert.ErrorIs(t, err, session.ErrNotFound)
}

func TestDeleteUser_DropsSessionAndFreesEmail(t *testing.T) {
	ctx := context.Background()
	s := New()

	require.NoError(t, s.CreateUser(ctx, &user.User{ID: "u1", Username: "alice", Email: "a@x.com"}))
	require.NoError(t, s.UpsertSession(ctx, &session.Session{UserID: "u1", Token: "tok"}))

	require.NoError(t, s.DeleteUser(ctx, "u1"))
	require.NoError(t, s.DeleteUser(ctx, "u1"))

	_, err := s.GetUserByID(ctx, "u1")
	assert.ErrorIs(t, err, user.ErrNotFound)
	_, err = s.GetSessionByToken(ctx, "tok")
	assert.ErrorIs(t, err, session.ErrNotFound)

	assert.NoError(t, s.CreateUser(ctx, &user.User{ID: "u2", Username: "alice", Email: "A@x.com"}))
}

func TestDeleteExpiredSessions(t *testing.T) {
	ctx := context.Background()
	s := New()
	now := time.Now()

	require.NoError(t, s.UpsertSession(ctx, &session.Session{UserID: "u1", Token: "old", ExpiresAt: now.Add(-time.Minute)}))
	require.NoError(t, s.UpsertSession(ctx, &session.Session{UserID: "u2", Token: "live", ExpiresAt: now.Add(time.Hour)}))

	n, err := s.DeleteExpiredSessions(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetSessionByToken(ctx, "live")
	assert.NoError(t, err)
}

func TestRooms(t *testing.T) {
	ctx := context.Background()
	s := New()

	created, ok, err := s.CreatePersonalRoom(ctx, &room.Room{ID: "r1", MemberIDs: []string{"u1", "u2"}, IsPersonal: true})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "r1", created.ID)

	existing, ok, err := s.CreatePersonalRoom(ctx, &room.Room{ID: "r2", MemberIDs: []string{"u2", "u1"}, IsPersonal: true})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "r1", existing.ID)

	require.NoError(t, s.AppendMessage(ctx, &room.Message{ID: "m1", RoomID: "r1", AuthorID: "u1", Body: "hi"}))
	assert.ErrorIs(t, s.AppendMessage(ctx, &room.Message{ID: "m2", RoomID: "nope"}), room.ErrNotFound)

	r, err := s.GetRoom(ctx, "r1")
	require.NoError(t, err)
	require.Len(t, r.Messages, 1)

	for _, member := range []string{"u1", "u2"} {
		rooms, err := s.ListRoomsForUser(ctx, member)
		require.NoError(t, err)
		require.Len(t, rooms, 1)
		assert.Equal(t, "r1", rooms[0].ID)
	}

	rooms, err := s.ListRoomsForUser(ctx, "u3")
	require.NoError(t, err)
	assert.Empty(t, rooms)
}
