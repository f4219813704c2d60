package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"duochat/internal/app/room"
	"duochat/internal/app/session"
	"duochat/internal/app/store"
	"duochat/internal/app/user"
	"duochat/internal/pkg/randx"
)

var _ store.Store = (*Store)(nil)

// Store implements store.Store on a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() {
	s.pool.Close()
}

const userColumns = `id, username, email, password_hash, avatar, online, created_at`

func scanUser(row pgx.Row) (*user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Avatar, &u.Online, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func collectUsers(rows pgx.Rows) ([]*user.User, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (*user.User, error) {
		return scanUser(row)
	})
}

// CreateUser implements store.UserStore.
func (s *Store) CreateUser(ctx context.Context, u *user.User) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.Avatar, u.Online, u.CreatedAt,
	)
	if IsUniqueViolation(err) {
		return user.ErrEmailTaken
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg any) (*user.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, user.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return u, nil
}

// GetUserByID implements store.UserStore.
func (s *Store) GetUserByID(ctx context.Context, id string) (*user.User, error) {
	return s.getUser(ctx, `id = $1`, id)
}

// GetUserByEmail implements store.UserStore.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return s.getUser(ctx, `lower(email) = lower($1)`, email)
}

// GetUsersByIDs implements store.UserStore.
func (s *Store) GetUsersByIDs(ctx context.Context, ids []string) ([]*user.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+userColumns+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("select users: %w", err)
	}
	return collectUsers(rows)
}

// SearchUsers implements store.UserStore.
func (s *Store) SearchUsers(ctx context.Context, query, excludeID string, limit int) ([]*user.User, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id <> $2 AND username ILIKE '%' || $1::text || '%'
		 ORDER BY username
		 LIMIT $3`,
		escapeLike(query), excludeID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return collectUsers(rows)
}

func (s *Store) updateUser(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return user.ErrNotFound
	}
	return nil
}

// SetOnline implements store.UserStore.
func (s *Store) SetOnline(ctx context.Context, id string, online bool) error {
	return s.updateUser(ctx, `UPDATE users SET online = $2 WHERE id = $1`, id, online)
}

// SetAvatar implements store.UserStore.
func (s *Store) SetAvatar(ctx context.Context, id, avatar string) error {
	return s.updateUser(ctx, `UPDATE users SET avatar = $2 WHERE id = $1`, id, avatar)
}

// DeleteUser implements store.UserStore. The session row cascades.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

// ResetPresence implements store.UserStore.
func (s *Store) ResetPresence(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `UPDATE users SET online = FALSE WHERE online`); err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// UpsertSession implements store.SessionStore. The row is replaced in one
// statement, so of two concurrent rotations the later commit wins.
func (s *Store) UpsertSession(ctx context.Context, sess *session.Session) error {
	updatedAt := sess.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO sessions (user_id, token, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET token = EXCLUDED.token, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		sess.UserID, sess.Token, nullableTime(sess.ExpiresAt), updatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert session: %w", err)
	}
	return nil
}

func (s *Store) getSession(ctx context.Context, where string, arg any) (*session.Session, error) {
	var (
		sess      session.Session
		expiresAt *time.Time
	)
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, token, expires_at, updated_at FROM sessions WHERE `+where, arg,
	).Scan(&sess.UserID, &sess.Token, &expiresAt, &sess.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	if expiresAt != nil {
		sess.ExpiresAt = *expiresAt
	}
	return &sess, nil
}

// GetSessionByUser implements store.SessionStore.
func (s *Store) GetSessionByUser(ctx context.Context, userID string) (*session.Session, error) {
	return s.getSession(ctx, `user_id = $1`, userID)
}

// GetSessionByToken implements store.SessionStore.
func (s *Store) GetSessionByToken(ctx context.Context, token string) (*session.Session, error) {
	return s.getSession(ctx, `token = $1`, token)
}

// DeleteSession implements store.SessionStore.
func (s *Store) DeleteSession(ctx context.Context, userID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteExpiredSessions implements store.SessionStore.
func (s *Store) DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at IS NOT NULL AND expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}

// CreatePersonalRoom implements room.Repository. The pair key is unique, so a
// concurrent create for the same pair resolves to the first committed room.
func (s *Store) CreatePersonalRoom(ctx context.Context, r *room.Room) (*room.Room, bool, error) {
	var pairKey *string
	if len(r.MemberIDs) == 2 {
		key := randx.PairKey(r.MemberIDs[0], r.MemberIDs[1])
		pairKey = &key
	}

	created := false
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`INSERT INTO rooms (id, name, is_personal, pair_key, created_at)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (pair_key) DO NOTHING`,
			r.ID, r.Name, r.IsPersonal, pairKey, r.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert room: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return nil
		}

		for i, member := range r.MemberIDs {
			if _, err := tx.Exec(ctx,
				`INSERT INTO room_members (room_id, user_id, position) VALUES ($1, $2, $3)`,
				r.ID, member, i,
			); err != nil {
				return fmt.Errorf("insert room member: %w", err)
			}
		}
		created = true
		return nil
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		return r, true, nil
	}

	var existingID string
	if err := s.pool.QueryRow(ctx, `SELECT id FROM rooms WHERE pair_key = $1`, pairKey).Scan(&existingID); err != nil {
		return nil, false, fmt.Errorf("select existing room: %w", err)
	}
	existing, err := s.GetRoom(ctx, existingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetRoom implements room.Repository.
func (s *Store) GetRoom(ctx context.Context, id string) (*room.Room, error) {
	rooms, err := s.loadRooms(ctx, `SELECT id, name, is_personal, created_at FROM rooms WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	if len(rooms) == 0 {
		return nil, room.ErrNotFound
	}
	return rooms[0], nil
}

// ListRoomsForUser implements room.Repository. Rooms come back in creation order.
func (s *Store) ListRoomsForUser(ctx context.Context, userID string) ([]*room.Room, error) {
	return s.loadRooms(ctx,
		`SELECT r.id, r.name, r.is_personal, r.created_at
		 FROM rooms r JOIN room_members m ON m.room_id = r.id
		 WHERE m.user_id = $1
		 ORDER BY r.created_at, r.id`,
		userID,
	)
}

// loadRooms runs a room query and populates members and messages.
func (s *Store) loadRooms(ctx context.Context, query string, args ...any) ([]*room.Room, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select rooms: %w", err)
	}
	rooms, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*room.Room, error) {
		r := &room.Room{Messages: []room.Message{}}
		err := row.Scan(&r.ID, &r.Name, &r.IsPersonal, &r.CreatedAt)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan rooms: %w", err)
	}
	if len(rooms) == 0 {
		return rooms, nil
	}

	byID := make(map[string]*room.Room, len(rooms))
	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	memberRows, err := s.pool.Query(ctx,
		`SELECT room_id, user_id FROM room_members WHERE room_id = ANY($1) ORDER BY room_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("select room members: %w", err)
	}
	var roomID, userID string
	_, err = pgx.ForEachRow(memberRows, []any{&roomID, &userID}, func() error {
		r := byID[roomID]
		r.MemberIDs = append(r.MemberIDs, userID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan room members: %w", err)
	}

	msgRows, err := s.pool.Query(ctx,
		`SELECT id, room_id, author_id, body, created_at FROM messages
		 WHERE room_id = ANY($1) ORDER BY created_at, seq`, ids)
	if err != nil {
		return nil, fmt.Errorf("select messages: %w", err)
	}
	var m room.Message
	_, err = pgx.ForEachRow(msgRows, []any{&m.ID, &m.RoomID, &m.AuthorID, &m.Body, &m.CreatedAt}, func() error {
		r := byID[m.RoomID]
		r.Messages = append(r.Messages, m)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan messages: %w", err)
	}

	return rooms, nil
}

// AppendMessage implements room.Repository. The insert is conditional on the
// room existing, so a missing room writes nothing.
func (s *Store) AppendMessage(ctx context.Context, m *room.Message) error {
	tag, err := s.pool.Exec(ctx,
		`INSERT INTO messages (id, room_id, author_id, body, created_at)
		 SELECT $1, $2, $3, $4, $5
		 WHERE EXISTS (SELECT 1 FROM rooms WHERE id = $2)`,
		m.ID, m.RoomID, m.AuthorID, m.Body, m.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return room.ErrNotFound
	}
	return nil
}
