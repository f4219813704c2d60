package chat

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duochat/internal/app/presence"
	"duochat/internal/app/room"
	"duochat/internal/app/store/memory"
	"duochat/internal/app/user"
	"duochat/internal/pkg/errs"
)

type harness struct {
	store    *memory.Store
	registry *room.Registry
	hub      *Hub
	tracker  *presence.Tracker
	engine   *Engine
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s := memory.New()
	for _, name := range []string{"alice", "bob", "carol"} {
		require.NoError(t, s.CreateUser(ctx, &user.User{ID: name, Username: name, Email: name + "@x.com"}))
	}

	hub := NewHub()
	registry := room.NewRegistry(s, s, user.NewPresenter(""))
	tracker := presence.NewTracker(s, hub)

	return &harness{
		store:    s,
		registry: registry,
		hub:      hub,
		tracker:  tracker,
		engine:   NewEngine(hub, registry, tracker, nil),
	}
}

func (h *harness) connect(t *testing.T, userID string) *Client {
	t.Helper()
	u, err := h.store.GetUserByID(context.Background(), userID)
	require.NoError(t, err)

	c := NewClient(nil, u)
	require.NoError(t, h.engine.Connect(context.Background(), c))
	return c
}

type frame struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// next returns the next queued frame of the given type, skipping others.
func next(t *testing.T, c *Client, want EventType) json.RawMessage {
	t.Helper()
	for {
		select {
		case raw, ok := <-c.send:
			require.True(t, ok, "send channel closed while waiting for %s", want)
			var f frame
			require.NoError(t, json.Unmarshal(raw, &f))
			if f.Type == want {
				return f.Payload
			}
		default:
			t.Fatalf("no %s frame queued", want)
			return nil
		}
	}
}

func drain(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func send(t *testing.T, h *harness, c *Client, typ EventType, payload any) {
	t.Helper()
	raw, err := Encode(typ, payload)
	require.NoError(t, err)
	h.engine.Dispatch(context.Background(), c, raw)
}

func TestSendMessage_FansOutToBothMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, _, err := h.registry.CreateRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	carol := h.connect(t, "carol")
	drain(alice)
	drain(bob)
	drain(carol)

	send(t, h, alice, TypeSendMessage, map[string]any{"roomId": r.ID, "message": "hi"})

	for _, c := range []*Client{alice, bob} {
		var got room.MessageView
		require.NoError(t, json.Unmarshal(next(t, c, TypeNewMessage), &got))
		assert.Equal(t, "hi", got.Message)
		assert.Equal(t, r.ID, got.RoomID)
		assert.Equal(t, "alice", got.Author.ID)
		assert.Equal(t, "alice", got.Author.Username)
		assert.True(t, got.Author.Online)
	}
	assert.Empty(t, carol.send, "non-members receive nothing")

	stored, err := h.store.GetRoom(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, stored.Messages, 1)
}

func TestSendMessage_UnknownRoomAlertsSenderOnly(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	drain(alice)
	drain(bob)

	send(t, h, alice, TypeSendMessage, map[string]any{"roomId": "missing", "message": "hi"})

	var alert AlertPayload
	require.NoError(t, json.Unmarshal(next(t, alice, TypeAlert), &alert))
	assert.Equal(t, "error", alert.Type)
	assert.Equal(t, errs.ErrRoomNotFound, alert.Code)
	assert.Equal(t, "room not found", alert.Msg)
	assert.Empty(t, bob.send)
}

func TestSendMessage_RejectsNonMember(t *testing.T) {
	h := newHarness(t)
	r, _, err := h.registry.CreateRoom(context.Background(), "alice", "bob")
	require.NoError(t, err)

	carol := h.connect(t, "carol")
	drain(carol)

	send(t, h, carol, TypeSendMessage, map[string]any{"roomId": r.ID, "message": "intrude"})

	var alert AlertPayload
	require.NoError(t, json.Unmarshal(next(t, carol, TypeAlert), &alert))
	assert.Equal(t, errs.ErrNotRoomMember, alert.Code)
}

func TestDispatch_InvalidFrames(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")
	drain(alice)

	h.engine.Dispatch(context.Background(), alice, []byte("{not json"))
	var alert AlertPayload
	require.NoError(t, json.Unmarshal(next(t, alice, TypeAlert), &alert))
	assert.Equal(t, errs.ErrInvalidJSONFormat, alert.Code)

	send(t, h, alice, "dance", map[string]any{})
	require.NoError(t, json.Unmarshal(next(t, alice, TypeAlert), &alert))
	assert.Equal(t, errs.ErrInvalidParams, alert.Code)
}

type panickingRooms struct {
	Rooms
}

func (panickingRooms) FindRoom(context.Context, string) (*room.Room, error) {
	panic("boom")
}

type failingRooms struct {
	Rooms
}

func (failingRooms) AppendMessage(context.Context, string, string, string, time.Time) (*room.Message, error) {
	return nil, errors.New("connection reset by peer")
}

func TestDispatch_IsolatesFailures(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")
	drain(alice)

	t.Run("panic", func(t *testing.T) {
		engine := NewEngine(h.hub, panickingRooms{h.registry}, h.tracker, nil)
		raw, err := Encode(TypeJoinRoom, JoinRoomPayload{RoomID: "r"})
		require.NoError(t, err)

		assert.NotPanics(t, func() { engine.Dispatch(context.Background(), alice, raw) })

		var alert AlertPayload
		require.NoError(t, json.Unmarshal(next(t, alice, TypeAlert), &alert))
		assert.Equal(t, errs.ErrUnknown, alert.Code)
	})

	t.Run("store failure", func(t *testing.T) {
		engine := NewEngine(h.hub, failingRooms{h.registry}, h.tracker, nil)
		raw, err := Encode(TypeSendMessage, SendMessagePayload{RoomID: "r", Message: "hi"})
		require.NoError(t, err)

		engine.Dispatch(context.Background(), alice, raw)

		var alert AlertPayload
		require.NoError(t, json.Unmarshal(next(t, alice, TypeAlert), &alert))
		assert.Equal(t, errs.ErrUnknown, alert.Code)
		assert.NotContains(t, alert.Msg, "connection reset")
	})
}

func TestJoinRoom_ReturnsSortedHistory(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	r, _, err := h.registry.CreateRoom(ctx, "alice", "bob")
	require.NoError(t, err)

	base := time.Now().Add(-time.Hour)
	_, err = h.registry.AppendMessage(ctx, r.ID, "bob", "later", base.Add(2*time.Minute))
	require.NoError(t, err)
	_, err = h.registry.AppendMessage(ctx, r.ID, "alice", "earlier", base.Add(time.Minute))
	require.NoError(t, err)

	alice := h.connect(t, "alice")
	drain(alice)

	send(t, h, alice, TypeJoinRoom, JoinRoomPayload{RoomID: r.ID})

	var history OldMessagesPayload
	require.NoError(t, json.Unmarshal(next(t, alice, TypeOldMessages), &history))
	assert.Equal(t, r.ID, history.RoomID)
	require.Len(t, history.Messages, 2)
	assert.Equal(t, "earlier", history.Messages[0].Message)
	assert.Equal(t, "later", history.Messages[1].Message)

	carol := h.connect(t, "carol")
	drain(carol)
	send(t, h, carol, TypeJoinRoom, JoinRoomPayload{RoomID: r.ID})
	var alert AlertPayload
	require.NoError(t, json.Unmarshal(next(t, carol, TypeAlert), &alert))
	assert.Equal(t, errs.ErrNotRoomMember, alert.Code)
}

func TestRoomCreated_SubscribesLiveMembers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	alice := h.connect(t, "alice")
	bob := h.connect(t, "bob")
	drain(alice)
	drain(bob)

	r, _, err := h.registry.CreateRoom(ctx, "alice", "bob")
	require.NoError(t, err)
	h.engine.RoomCreated(ctx, r)

	var view room.View
	require.NoError(t, json.Unmarshal(next(t, bob, TypeRoomCreated), &view))
	assert.Equal(t, "alice", view.Name)
	require.NoError(t, json.Unmarshal(next(t, alice, TypeRoomCreated), &view))
	assert.Equal(t, "bob", view.Name)

	assert.Equal(t, 2, h.hub.Subscribers(r.ID))
}

// lateRooms runs afterLoad once the room ids have been read, standing in for a
// room committed while a connection is still being set up.
type lateRooms struct {
	Rooms
	afterLoad func()
}

func (l *lateRooms) RoomIDsFor(ctx context.Context, userID string) ([]string, error) {
	ids, err := l.Rooms.RoomIDsFor(ctx, userID)
	if l.afterLoad != nil {
		hook := l.afterLoad
		l.afterLoad = nil
		hook()
	}
	return ids, err
}

func TestConnect_RoomCreatedDuringSetupIsJoined(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	rooms := &lateRooms{Rooms: h.registry}
	engine := NewEngine(h.hub, rooms, h.tracker, nil)

	alice := NewClient(nil, mustUser(t, h, "alice"))
	require.NoError(t, engine.Connect(ctx, alice))

	var roomID string
	rooms.afterLoad = func() {
		r, _, err := h.registry.CreateRoom(ctx, "alice", "bob")
		require.NoError(t, err)
		roomID = r.ID
		engine.RoomCreated(ctx, r)
	}

	bob := NewClient(nil, mustUser(t, h, "bob"))
	require.NoError(t, engine.Connect(ctx, bob))
	require.NotEmpty(t, roomID)
	assert.Equal(t, 2, h.hub.Subscribers(roomID))

	drain(alice)
	drain(bob)

	raw, err := Encode(TypeSendMessage, map[string]any{"roomId": roomID, "message": "hi"})
	require.NoError(t, err)
	engine.Dispatch(ctx, alice, raw)

	var got room.MessageView
	require.NoError(t, json.Unmarshal(next(t, bob, TypeNewMessage), &got))
	assert.Equal(t, "hi", got.Message)
}

func TestConnect_LoadFailureLeavesNoClient(t *testing.T) {
	h := newHarness(t)
	engine := NewEngine(h.hub, brokenLoadRooms{h.registry}, h.tracker, nil)

	c := NewClient(nil, mustUser(t, h, "alice"))
	require.Error(t, engine.Connect(context.Background(), c))
	assert.Equal(t, 0, h.hub.Count())
	assert.False(t, h.tracker.IsOnline("alice"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, engine.Shutdown(ctx))
}

type brokenLoadRooms struct {
	Rooms
}

func (brokenLoadRooms) RoomIDsFor(context.Context, string) ([]string, error) {
	return nil, errors.New("pool closed")
}

func mustUser(t *testing.T, h *harness, id string) *user.User {
	t.Helper()
	u, err := h.store.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func TestPresence_BroadcastOnFirstAndLastConnection(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	observer := h.connect(t, "carol")
	drain(observer)

	tab1 := h.connect(t, "alice")
	var p PresencePayload
	require.NoError(t, json.Unmarshal(next(t, observer, TypePresence), &p))
	assert.Equal(t, PresencePayload{UserID: "alice", Online: true}, p)

	u, err := h.store.GetUserByID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, u.Online)

	tab2 := h.connect(t, "alice")
	assert.Empty(t, observer.send, "second tab does not re-announce")

	h.engine.Disconnect(ctx, tab1)
	h.engine.Disconnect(ctx, tab1)
	assert.Empty(t, observer.send, "one tab still open")

	h.engine.Disconnect(ctx, tab2)
	require.NoError(t, json.Unmarshal(next(t, observer, TypePresence), &p))
	assert.Equal(t, PresencePayload{UserID: "alice", Online: false}, p)

	u, err = h.store.GetUserByID(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, u.Online)
}

func TestHub_DropsSlowClient(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")

	for i := 0; i < sendBuffer+1; i++ {
		h.hub.SendToUser("alice", []byte(`{}`))
	}

	assert.Equal(t, 0, h.hub.Count())
	assert.NotPanics(t, func() { h.hub.SendToUser("alice", []byte(`{}`)) })

	h.engine.Disconnect(context.Background(), alice)
	assert.False(t, h.tracker.IsOnline("alice"))
}

func TestShutdown_WaitsForDisconnects(t *testing.T) {
	h := newHarness(t)
	alice := h.connect(t, "alice")

	go func() {
		for range alice.send {
		}
		h.engine.Disconnect(context.Background(), alice)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Shutdown(ctx))
	assert.Equal(t, 0, h.hub.Count())
}

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	var p SendMessagePayload

	require.NoError(t, json.Unmarshal([]byte(`{"roomId":"r","message":"m","createdAt":"2024-05-01T10:00:00Z"}`), &p))
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), p.CreatedAt.UTC())

	require.NoError(t, json.Unmarshal([]byte(`{"roomId":"r","message":"m","createdAt":1714557600000}`), &p))
	assert.Equal(t, int64(1714557600000), p.CreatedAt.UnixMilli())

	p = SendMessagePayload{}
	require.NoError(t, json.Unmarshal([]byte(`{"roomId":"r","message":"m"}`), &p))
	assert.True(t, p.CreatedAt.IsZero())

	assert.Error(t, json.Unmarshal([]byte(`{"createdAt":"yesterday"}`), &p))
}
