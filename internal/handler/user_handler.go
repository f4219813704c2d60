package handler

import (
	"net/http"

	"duochat/internal/app/user"
	"duochat/internal/pkg/resp"
)

// SearchResult wraps user search results.
type SearchResult struct {
	Error  string        `json:"error,omitempty"`
	Result []user.Public `json:"result"`
}

// HandleSearchUsers matches usernames against ?q=, excluding the caller.
// A missing query is answered with an empty result rather than an error status.
func HandleSearchUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			resp.RespondSuccess(w, r, SearchResult{Error: "No param provided", Result: []user.Public{}})
			return
		}

		users, err := deps.Users.Search(r.Context(), currentUser(r).ID, query)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}

		resp.RespondSuccess(w, r, SearchResult{Result: users})
	}
}

// HandleGetMe returns the caller's own projection.
func HandleGetMe(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		me, err := deps.Users.Me(r.Context(), currentUser(r).ID)
		if err != nil {
			resp.RespondError(w, r, err)
			return
		}
		resp.RespondSuccess(w, r, me)
	}
}
