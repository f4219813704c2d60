/*
Package memory is an in-process implementation of store.Store.

It backs the test suites and STORE_DRIVER=memory; all data is lost on exit.
Records are copied on the way in and out so callers never share state with the store.
*/
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"duochat/internal/app/room"
	"duochat/internal/app/session"
	"duochat/internal/app/store"
	"duochat/internal/app/user"
	"duochat/internal/pkg/randx"
)

var _ store.Store = (*Store)(nil)

// Store keeps every record in maps guarded by one mutex.
type Store struct {
	mu sync.RWMutex

	users   map[string]*user.User
	byEmail map[string]string

	sessions map[string]*session.Session // by user id
	byToken  map[string]string

	rooms    map[string]*room.Room
	byPair   map[string]string
	byMember map[string][]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		users:    make(map[string]*user.User),
		byEmail:  make(map[string]string),
		sessions: make(map[string]*session.Session),
		byToken:  make(map[string]string),
		rooms:    make(map[string]*room.Room),
		byPair:   make(map[string]string),
		byMember: make(map[string][]string),
	}
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op.
func (s *Store) Close() {}

func copyUser(u *user.User) *user.User {
	cp := *u
	if u.PasswordHash != nil {
		digest := *u.PasswordHash
		cp.PasswordHash = &digest
	}
	return &cp
}

func copyRoom(r *room.Room) *room.Room {
	cp := *r
	cp.MemberIDs = slices.Clone(r.MemberIDs)
	cp.Messages = slices.Clone(r.Messages)
	if cp.Messages == nil {
		cp.Messages = []room.Message{}
	}
	return &cp
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateUser implements store.UserStore.
func (s *Store) CreateUser(_ context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(u.Email)
	if _, exists := s.byEmail[key]; exists {
		return user.ErrEmailTaken
	}

	s.users[u.ID] = copyUser(u)
	s.byEmail[key] = u.ID
	return nil
}

// GetUserByID implements store.UserStore.
func (s *Store) GetUserByID(_ context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(u), nil
}

// GetUserByEmail implements store.UserStore.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[emailKey(email)]
	if !ok {
		return nil, user.ErrNotFound
	}
	return copyUser(s.users[id]), nil
}

// GetUsersByIDs implements store.UserStore.
func (s *Store) GetUsersByIDs(_ context.Context, ids []string) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*user.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := s.users[id]; ok {
			out = append(out, copyUser(u))
		}
	}
	return out, nil
}

// SearchUsers implements store.UserStore.
func (s *Store) SearchUsers(_ context.Context, query, excludeID string, limit int) ([]*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	needle := strings.ToLower(query)
	var out []*user.User
	for _, u := range s.users {
		if u.ID != excludeID && strings.Contains(strings.ToLower(u.Username), needle) {
			out = append(out, copyUser(u))
		}
	}

	slices.SortFunc(out, func(a, b *user.User) int {
		return strings.Compare(a.Username, b.Username)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// SetOnline implements store.UserStore.
func (s *Store) SetOnline(_ context.Context, id string, online bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Online = online
	return nil
}

// SetAvatar implements store.UserStore.
func (s *Store) SetAvatar(_ context.Context, id, avatar string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return user.ErrNotFound
	}
	u.Avatar = avatar
	return nil
}

// DeleteUser implements store.UserStore.
func (s *Store) DeleteUser(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil
	}
	delete(s.users, id)
	delete(s.byEmail, emailKey(u.Email))

	if sess, ok := s.sessions[id]; ok {
		delete(s.byToken, sess.Token)
		delete(s.sessions, id)
	}
	return nil
}

// ResetPresence implements store.UserStore.
func (s *Store) ResetPresence(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		u.Online = false
	}
	return nil
}

// UpsertSession implements store.SessionStore.
func (s *Store) UpsertSession(_ context.Context, sess *session.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.sessions[sess.UserID]; ok {
		delete(s.byToken, prev.Token)
	}

	cp := *sess
	s.sessions[sess.UserID] = &cp
	s.byToken[sess.Token] = sess.UserID
	return nil
}

// GetSessionByUser implements store.SessionStore.
func (s *Store) GetSessionByUser(_ context.Context, userID string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[userID]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *sess
	return &cp, nil
}

// GetSessionByToken implements store.SessionStore.
func (s *Store) GetSessionByToken(_ context.Context, token string) (*session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userID, ok := s.byToken[token]
	if !ok {
		return nil, session.ErrNotFound
	}
	cp := *s.sessions[userID]
	return &cp, nil
}

// DeleteSession implements store.SessionStore.
func (s *Store) DeleteSession(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[userID]; ok {
		delete(s.byToken, sess.Token)
		delete(s.sessions, userID)
	}
	return nil
}

// DeleteExpiredSessions implements store.SessionStore.
func (s *Store) DeleteExpiredSessions(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for userID, sess := range s.sessions {
		if sess.Expired(now) {
			delete(s.byToken, sess.Token)
			delete(s.sessions, userID)
			n++
		}
	}
	return n, nil
}

// CreatePersonalRoom implements room.Repository.
func (s *Store) CreatePersonalRoom(_ context.Context, r *room.Room) (*room.Room, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(r.MemberIDs) == 2 {
		key := randx.PairKey(r.MemberIDs[0], r.MemberIDs[1])
		if id, ok := s.byPair[key]; ok {
			return copyRoom(s.rooms[id]), false, nil
		}
		s.byPair[key] = r.ID
	}

	s.rooms[r.ID] = copyRoom(r)
	for _, member := range r.MemberIDs {
		s.byMember[member] = append(s.byMember[member], r.ID)
	}
	return copyRoom(r), true, nil
}

// GetRoom implements room.Repository.
func (s *Store) GetRoom(_ context.Context, id string) (*room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rooms[id]
	if !ok {
		return nil, room.ErrNotFound
	}
	return copyRoom(r), nil
}

// ListRoomsForUser implements room.Repository. Rooms come back in creation order.
func (s *Store) ListRoomsForUser(_ context.Context, userID string) ([]*room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byMember[userID]
	out := make([]*room.Room, 0, len(ids))
	for _, id := range ids {
		out = append(out, copyRoom(s.rooms[id]))
	}
	return out, nil
}

// AppendMessage implements room.Repository.
func (s *Store) AppendMessage(_ context.Context, m *room.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.rooms[m.RoomID]
	if !ok {
		return room.ErrNotFound
	}
	r.Messages = append(r.Messages, *m)
	return nil
}
