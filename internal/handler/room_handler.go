package handler

import (
	"net/http"

	"duochat/internal/app/room"
	"duochat/internal/pkg/logx"
	"duochat/internal/pkg/req"
	"duochat/internal/pkg/resp"
)

// CreateRoomInput names the user to open a personal room with.
type CreateRoomInput struct {
	NewFriend string `json:"newFriend" validate:"required"`
}

// RoomsResult wraps a list of room views.
type RoomsResult struct {
	Result []room.View `json:"result"`
}

// RoomResult wraps a single room view.
type RoomResult struct {
	Result room.View `json:"result"`
}

// HandleListRooms returns every room the caller belongs to.
func HandleListRooms(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		views, err := deps.Rooms.ListRoomsFor(r.Context(), currentUser(r).ID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, RoomsResult{Result: views})
	}
}

// HandleCreateRoom opens a personal room between the caller and newFriend.
// Asking again for the same pair returns the existing room. Live connections
// of both members are subscribed to a newly created room straight away.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input CreateRoomInput
		if customErr := req.BindAndValidate(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		me := currentUser(r)
		created, isNew, err := deps.Rooms.CreateRoom(r.Context(), me.ID, input.NewFriend)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		if isNew {
			logx.Info("Personal room created", "room_id", created.ID, "user_id", me.ID, "peer_id", input.NewFriend)
			deps.Engine.RoomCreated(r.Context(), created)
		}

		view, err := deps.Rooms.ViewFor(r.Context(), created, me.ID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, RoomResult{Result: view})
	}
}
