/*
Package room holds personal chat rooms, their message history and the Registry
that creates rooms and renders them for a given member.
*/
package room

import (
	"errors"
	"slices"
	"time"

	"duochat/internal/app/user"
)

// ErrNotFound is returned by repositories when the room does not exist.
var ErrNotFound = errors.New("room: not found")

// Room is a stored chat room. Members and authors are referenced by id only.
type Room struct {
	ID string

	// Name is empty for personal rooms; their display name is the peer's username.
	Name string

	MemberIDs  []string
	Messages   []Message
	IsPersonal bool
	CreatedAt  time.Time
}

// HasMember reports whether userID belongs to the room.
func (r *Room) HasMember(userID string) bool {
	return slices.Contains(r.MemberIDs, userID)
}

// Peer returns the first member other than userID, or "" if there is none.
func (r *Room) Peer(userID string) string {
	for _, id := range r.MemberIDs {
		if id != userID {
			return id
		}
	}
	return ""
}

// Message is one chat message stored in a room.
type Message struct {
	ID        string
	RoomID    string
	AuthorID  string
	Body      string
	CreatedAt time.Time
}

// View is a room rendered for one of its members.
type View struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	Users      []user.Public `json:"users"`
	Messages   []MessageView `json:"messages"`
	IsPersonal bool          `json:"isPersonal"`
}

// MessageView is a message with its author resolved.
type MessageView struct {
	ID        string      `json:"id"`
	RoomID    string      `json:"roomId"`
	Author    user.Public `json:"author"`
	Message   string      `json:"message"`
	CreatedAt time.Time   `json:"createdAt"`
}

// SortMessages orders msgs ascending by creation time. Equal timestamps keep
// their stored order.
func SortMessages(msgs []Message) {
	slices.SortStableFunc(msgs, func(a, b Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}
