package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"duochat/internal/app/room"
)

// EventType names a realtime event.
type EventType string

// Client to server.
const (
	TypeSendMessage EventType = "send-message"
	TypeJoinRoom    EventType = "join-room"
)

// Server to client.
const (
	TypeNewMessage  EventType = "new-message"
	TypeOldMessages EventType = "old-messages"
	TypeRoomCreated EventType = "room-created"
	TypePresence    EventType = "presence"
	TypeAlert       EventType = "alert"
)

// Envelope is the frame every event travels in.
type Envelope struct {
	Type    EventType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type outbound struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// Encode renders an outbound frame.
func Encode(t EventType, payload any) ([]byte, error) {
	return json.Marshal(outbound{Type: t, Payload: payload})
}

// Timestamp accepts RFC 3339 strings or Unix milliseconds.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", s, err)
		}
		t.Time = parsed
		return nil
	}

	ms, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", data, err)
	}
	t.Time = time.UnixMilli(ms)
	return nil
}

// SendMessagePayload is the body of a send-message event.
type SendMessagePayload struct {
	RoomID    string    `json:"roomId"`
	Message   string    `json:"message"`
	CreatedAt Timestamp `json:"createdAt"`
}

// JoinRoomPayload is the body of a join-room event.
type JoinRoomPayload struct {
	RoomID string `json:"roomId"`
}

// OldMessagesPayload answers join-room with the room's history.
type OldMessagesPayload struct {
	RoomID   string             `json:"roomId"`
	Messages []room.MessageView `json:"messages"`
}

// PresencePayload announces a presence transition.
type PresencePayload struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// AlertPayload reports a failed event to its sender.
type AlertPayload struct {
	Type string `json:"type"`
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}
