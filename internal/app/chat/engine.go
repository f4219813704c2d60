package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"duochat/internal/app/events"
	"duochat/internal/app/room"
	"duochat/internal/app/user"
	"duochat/internal/pkg/errs"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/metrics"
)

// eventTimeout bounds the store work done for one inbound event.
const eventTimeout = 10 * time.Second

// Rooms is the room registry as seen by the engine.
type Rooms interface {
	FindRoom(ctx context.Context, id string) (*room.Room, error)
	RoomIDsFor(ctx context.Context, userID string) ([]string, error)
	AppendMessage(ctx context.Context, roomID, authorID, body string, createdAt time.Time) (*room.Message, error)
	ViewFor(ctx context.Context, r *room.Room, viewerID string) (room.View, error)
	RenderMessage(m *room.Message, author *user.User) room.MessageView
}

// Presence is the presence tracker as seen by the engine.
type Presence interface {
	Connect(ctx context.Context, userID string) error
	Disconnect(ctx context.Context, userID string) error
}

// Engine handles connection lifecycle and inbound realtime events.
type Engine struct {
	hub      *Hub
	rooms    Rooms
	presence Presence
	events   events.Publisher
	logger   zerolog.Logger

	// active counts connected clients so Shutdown can wait for their teardown.
	active sync.WaitGroup
}

// NewEngine returns an Engine. A nil publisher drops events.
func NewEngine(hub *Hub, rooms Rooms, presence Presence, publisher events.Publisher) *Engine {
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Engine{
		hub:      hub,
		rooms:    rooms,
		presence: presence,
		events:   publisher,
		logger:   logx.Component("Engine"),
	}
}

// Connect registers an authenticated client, subscribes it to the channels of
// all its rooms and marks its user online. The client is registered before its
// rooms are loaded, so a room created in between is joined either by the load
// or by RoomCreated.
func (e *Engine) Connect(ctx context.Context, c *Client) error {
	e.hub.Register(c)

	roomIDs, err := e.rooms.RoomIDsFor(ctx, c.UserID())
	if err != nil {
		e.hub.Unregister(c)
		return fmt.Errorf("load rooms: %w", err)
	}

	e.active.Add(1)
	for _, id := range roomIDs {
		e.hub.Join(c, id)
	}
	metrics.WSConnections.Inc()

	if err := e.presence.Connect(ctx, c.UserID()); err != nil {
		c.logger.Warn().Err(err).Msg("Presence update failed on connect")
	}

	c.logger.Info().Int("rooms", len(roomIDs)).Msg("Client connected.")
	return nil
}

// Disconnect unregisters c and runs the offline transition. Only the first call
// for a client has any effect.
func (e *Engine) Disconnect(ctx context.Context, c *Client) {
	c.closeOnce.Do(func() {
		e.hub.Unregister(c)
		metrics.WSConnections.Dec()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
		defer cancel()

		if err := e.presence.Disconnect(ctx, c.UserID()); err != nil {
			c.logger.Warn().Err(err).Msg("Presence update failed on disconnect")
		}
		c.logger.Info().Msg("Client disconnected.")
		e.active.Done()
	})
}

// Dispatch handles one inbound frame. Failures, panics included, are reported
// to the sender as an alert and never escape.
func (e *Engine) Dispatch(ctx context.Context, c *Client, raw []byte) {
	eventType := "invalid"

	defer func() {
		if rec := recover(); rec != nil {
			logx.Error(fmt.Errorf("panic: %v", rec), "Realtime event handler panicked",
				"user_id", c.UserID(),
				"event", eventType,
				"stack", string(debug.Stack()),
			)
			metrics.RealtimeEventsTotal.WithLabelValues(eventType, "panic").Inc()
			e.alert(c, errs.NewError(errs.ErrUnknown))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, eventTimeout)
	defer cancel()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		e.fail(c, eventType, errs.NewError(errs.ErrInvalidJSONFormat))
		return
	}
	eventType = string(env.Type)

	var err error
	switch env.Type {
	case TypeSendMessage:
		err = e.handleSendMessage(ctx, c, env.Payload)
	case TypeJoinRoom:
		err = e.handleJoinRoom(ctx, c, env.Payload)
	default:
		eventType = "unsupported"
		c.logger.Warn().Str("msg_type", string(env.Type)).Msg("Client sent unsupported event type")
		err = errs.NewError(errs.ErrInvalidParams)
	}

	if err != nil {
		e.fail(c, eventType, err)
		return
	}
	metrics.RealtimeEventsTotal.WithLabelValues(eventType, "ok").Inc()
}

func (e *Engine) handleSendMessage(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p SendMessagePayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	msg, err := e.rooms.AppendMessage(ctx, p.RoomID, c.UserID(), p.Message, p.CreatedAt.Time)
	if err != nil {
		return err
	}
	metrics.MessagesTotal.Inc()

	author := *c.User()
	author.Online = true

	frame, err := Encode(TypeNewMessage, e.rooms.RenderMessage(msg, &author))
	if err != nil {
		return err
	}

	// The sender may have created the room after connecting.
	e.hub.Join(c, p.RoomID)
	e.hub.Broadcast(p.RoomID, frame)

	e.events.Publish(ctx, events.New(events.MessageSent, msg.RoomID, map[string]any{
		"messageId": msg.ID,
		"roomId":    msg.RoomID,
		"authorId":  msg.AuthorID,
		"createdAt": msg.CreatedAt,
	}))
	return nil
}

func (e *Engine) handleJoinRoom(ctx context.Context, c *Client, raw json.RawMessage) error {
	var p JoinRoomPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.RoomID == "" {
		return errs.NewError(errs.ErrInvalidParams)
	}

	r, err := e.rooms.FindRoom(ctx, p.RoomID)
	if err != nil {
		return err
	}
	if r == nil {
		return errs.NewError(errs.ErrRoomNotFound)
	}
	if !r.HasMember(c.UserID()) {
		return errs.NewError(errs.ErrNotRoomMember)
	}

	e.hub.Join(c, r.ID)

	view, err := e.rooms.ViewFor(ctx, r, c.UserID())
	if err != nil {
		return err
	}

	frame, err := Encode(TypeOldMessages, OldMessagesPayload{RoomID: r.ID, Messages: view.Messages})
	if err != nil {
		return err
	}
	e.hub.Send(c, frame)
	return nil
}

// RoomCreated subscribes the live connections of every member to the new room
// and pushes each member their view of it.
func (e *Engine) RoomCreated(ctx context.Context, r *room.Room) {
	for _, memberID := range r.MemberIDs {
		if e.hub.JoinUser(memberID, r.ID) == 0 {
			continue
		}

		view, err := e.rooms.ViewFor(ctx, r, memberID)
		if err != nil {
			e.logger.Error().Err(err).Str("room_id", r.ID).Msg("Failed to render created room")
			continue
		}

		frame, err := Encode(TypeRoomCreated, view)
		if err != nil {
			e.logger.Error().Err(err).Str("room_id", r.ID).Msg("Failed to encode room-created")
			continue
		}
		e.hub.SendToUser(memberID, frame)
	}

	e.events.Publish(ctx, events.New(events.RoomCreated, r.ID, map[string]any{
		"roomId":  r.ID,
		"members": r.MemberIDs,
	}))
}

// Shutdown closes every live connection and waits, until ctx is done, for
// their offline transitions to finish.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.hub.Shutdown()

	done := make(chan struct{})
	go func() {
		e.active.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) fail(c *Client, eventType string, err error) {
	metrics.RealtimeEventsTotal.WithLabelValues(eventType, "error").Inc()
	e.alert(c, errs.From(err))
}

func (e *Engine) alert(c *Client, customErr *errs.CustomError) {
	frame, err := Encode(TypeAlert, AlertPayload{
		Type: "error",
		Code: customErr.Code,
		Msg:  customErr.Message,
	})
	if err != nil {
		c.logger.Error().Err(err).Msg("Failed to encode alert")
		return
	}
	e.hub.Send(c, frame)
}
