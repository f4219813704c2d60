package room

import (
	"context"
	"errors"
	"slices"
	"time"
	"unicode/utf8"

	"duochat/internal/app/user"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/randx"
)

// MaxMessageBytes is the largest accepted message body.
const MaxMessageBytes = 5000

// Repository persists rooms and their messages.
type Repository interface {
	// CreatePersonalRoom stores r unless the pair already shares a personal
	// room, in which case the existing room is returned with created=false.
	CreatePersonalRoom(ctx context.Context, r *Room) (stored *Room, created bool, err error)
	GetRoom(ctx context.Context, id string) (*Room, error)
	ListRoomsForUser(ctx context.Context, userID string) ([]*Room, error)
	AppendMessage(ctx context.Context, m *Message) error
}

// UserLookup resolves member and author ids.
type UserLookup interface {
	GetUserByID(ctx context.Context, id string) (*user.User, error)
	GetUsersByIDs(ctx context.Context, ids []string) ([]*user.User, error)
}

// Registry creates rooms, appends messages and renders rooms for members.
type Registry struct {
	rooms     Repository
	users     UserLookup
	presenter user.Presenter
	now       func() time.Time
}

// NewRegistry returns a Registry over the given repositories.
func NewRegistry(rooms Repository, users UserLookup, presenter user.Presenter) *Registry {
	return &Registry{
		rooms:     rooms,
		users:     users,
		presenter: presenter,
		now:       time.Now,
	}
}

// CreateRoom opens the personal room between requesterID and peerID.
// If the pair already has one, that room is returned and created is false.
func (reg *Registry) CreateRoom(ctx context.Context, requesterID, peerID string) (*Room, bool, error) {
	if requesterID == peerID {
		return nil, false, errs.NewError(errs.ErrSelfRoom)
	}

	for _, id := range []string{requesterID, peerID} {
		if _, err := reg.users.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, user.ErrNotFound) {
				return nil, false, errs.NewError(errs.ErrUserNotFound)
			}
			return nil, false, err
		}
	}

	r := &Room{
		ID:         randx.RoomID(),
		MemberIDs:  []string{requesterID, peerID},
		Messages:   []Message{},
		IsPersonal: true,
		CreatedAt:  reg.now().UTC(),
	}

	return reg.rooms.CreatePersonalRoom(ctx, r)
}

// FindRoom returns the room with id, or nil if it does not exist.
func (reg *Registry) FindRoom(ctx context.Context, id string) (*Room, error) {
	r, err := reg.rooms.GetRoom(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r, nil
}

// RoomIDsFor returns the ids of every room userID belongs to.
func (reg *Registry) RoomIDsFor(ctx context.Context, userID string) ([]string, error) {
	rooms, err := reg.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(rooms))
	for _, r := range rooms {
		ids = append(ids, r.ID)
	}
	return ids, nil
}

// ListRoomsFor renders every room userID belongs to.
func (reg *Registry) ListRoomsFor(ctx context.Context, userID string) ([]View, error) {
	rooms, err := reg.rooms.ListRoomsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	users, err := reg.resolve(ctx, rooms...)
	if err != nil {
		return nil, err
	}

	views := make([]View, 0, len(rooms))
	for _, r := range rooms {
		views = append(views, reg.render(r, userID, users))
	}
	return views, nil
}

// ViewFor renders r for viewerID.
func (reg *Registry) ViewFor(ctx context.Context, r *Room, viewerID string) (View, error) {
	users, err := reg.resolve(ctx, r)
	if err != nil {
		return View{}, err
	}
	return reg.render(r, viewerID, users), nil
}

// AppendMessage stores a message from authorID in roomID. It fails with
// RoomNotFound when the room does not exist and NotRoomMember when the author
// does not belong to it; in both cases nothing is persisted. A zero or future
// createdAt is replaced by the current time.
func (reg *Registry) AppendMessage(ctx context.Context, roomID, authorID, body string, createdAt time.Time) (*Message, error) {
	if customErr := ValidateBody(body); customErr != nil {
		return nil, customErr
	}

	r, err := reg.FindRoom(ctx, roomID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}
	if !r.HasMember(authorID) {
		return nil, errs.NewError(errs.ErrNotRoomMember)
	}

	now := reg.now().UTC()
	if createdAt.IsZero() || createdAt.After(now) {
		createdAt = now
	}

	m := &Message{
		ID:        randx.MessageID(),
		RoomID:    roomID,
		AuthorID:  authorID,
		Body:      body,
		CreatedAt: createdAt.UTC(),
	}

	if err := reg.rooms.AppendMessage(ctx, m); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, errs.NewError(errs.ErrRoomNotFound)
		}
		return nil, err
	}
	return m, nil
}

// RenderMessage resolves the author of m.
func (reg *Registry) RenderMessage(m *Message, author *user.User) MessageView {
	pub := reg.presenter.Public(author)
	if author == nil {
		pub.ID = m.AuthorID
	}
	return MessageView{
		ID:        m.ID,
		RoomID:    m.RoomID,
		Author:    pub,
		Message:   m.Body,
		CreatedAt: m.CreatedAt,
	}
}

// ValidateBody checks a message body is non-empty and within MaxMessageBytes.
func ValidateBody(body string) *errs.CustomError {
	if body == "" {
		return errs.NewError(errs.ErrMessageEmpty)
	}
	if len(body) > MaxMessageBytes || !utf8.ValidString(body) {
		return errs.NewError(errs.ErrMessageContentTooLong)
	}
	return nil
}

// resolve loads every member and author referenced by rooms.
func (reg *Registry) resolve(ctx context.Context, rooms ...*Room) (map[string]*user.User, error) {
	seen := make(map[string]struct{})
	var ids []string
	add := func(id string) {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	for _, r := range rooms {
		for _, id := range r.MemberIDs {
			add(id)
		}
		for _, m := range r.Messages {
			add(m.AuthorID)
		}
	}

	if len(ids) == 0 {
		return map[string]*user.User{}, nil
	}

	found, err := reg.users.GetUsersByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	users := make(map[string]*user.User, len(found))
	for _, u := range found {
		users[u.ID] = u
	}
	return users, nil
}

func (reg *Registry) render(r *Room, viewerID string, users map[string]*user.User) View {
	name := r.Name
	if r.IsPersonal {
		if peer, ok := users[r.Peer(viewerID)]; ok {
			name = peer.Username
		}
	}

	members := make([]user.Public, 0, len(r.MemberIDs))
	for _, id := range r.MemberIDs {
		if u, ok := users[id]; ok {
			members = append(members, reg.presenter.Public(u))
		}
	}

	msgs := slices.Clone(r.Messages)
	SortMessages(msgs)

	views := make([]MessageView, 0, len(msgs))
	for i := range msgs {
		views = append(views, reg.RenderMessage(&msgs[i], users[msgs[i].AuthorID]))
	}

	return View{
		ID:         r.ID,
		Name:       name,
		Users:      members,
		Messages:   views,
		IsPersonal: r.IsPersonal,
	}
}
