package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reapbenefit/cmp-backend/internal/store"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

const defaultActionTitle = "New Action"

type createActionRequest struct {
	UserID      int64  `json:"user_id"`
	Title       string `json:"title"`
	UserMessage string `json:"user_message"`
}

// createAction opens a conversation with its first coach reply.
func (s *Server) createAction(w http.ResponseWriter, r *http.Request) {
	var req createActionRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.UserID <= 0 || strings.TrimSpace(req.UserMessage) == "" {
		s.fail(w, r, badRequest("user_id and user_message are required"))
		return
	}
	if req.Title == "" {
		req.Title = defaultActionTitle
	}
	if _, err := s.store.UserByID(r.Context(), req.UserID); err != nil {
		s.fail(w, r, err)
		return
	}

	created, err := s.service.CreateAction(r.Context(), req.UserID, req.Title, req.UserMessage)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusCreated, created)
}

func (s *Server) chatHistory(w http.ResponseWriter, r *http.Request) {
	turns, err := s.store.ChatHistory(r.Context(), chi.URLParam(r, "actionUUID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, turns)
}

// chatSessions lists a user's conversations, most recent first.
func (s *Server) chatSessions(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(r.URL.Query().Get("user_id"), 10, 64)
	if err != nil || userID <= 0 {
		s.fail(w, r, badRequest("user_id query parameter must be a positive integer"))
		return
	}

	sessions, err := s.store.ChatSessionsForUser(r.Context(), userID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []store.ChatSession{}
	}
	JSON(w, http.StatusOK, sessions)
}

type chatMessageRequest struct {
	Role         transcript.Role `json:"role"`
	Content      string          `json:"content"`
	ResponseType string          `json:"response_type"`
	Mode         transcript.Mode `json:"mode"`
}

// addChatMessages appends client-supplied turns verbatim. Mode defaults to
// basic.
func (s *Server) addChatMessages(w http.ResponseWriter, r *http.Request) {
	var req []chatMessageRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(req) == 0 {
		s.fail(w, r, badRequest("at least one message is required"))
		return
	}

	turns := make([]store.NewTurn, 0, len(req))
	for i, m := range req {
		if !m.Role.Valid() {
			s.fail(w, r, badRequest("message %d: unknown role %q", i, m.Role))
			return
		}
		if m.Mode != "" && !m.Mode.Valid() {
			s.fail(w, r, badRequest("message %d: unknown mode %q", i, m.Mode))
			return
		}
		turns = append(turns, store.NewTurn{
			Role:         m.Role,
			Content:      m.Content,
			ResponseType: m.ResponseType,
			Mode:         m.Mode,
		})
	}

	actionUUID := chi.URLParam(r, "actionUUID")
	action, err := s.store.ActionByUUID(r.Context(), actionUUID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	history, err := s.store.AppendTurns(r.Context(), actionUUID, turns)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if action.Status == store.StatusPublished {
		s.invalidateUserID(r, action.UserID)
	}
	JSON(w, http.StatusOK, history)
}
