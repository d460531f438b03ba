package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/reapbenefit/cmp-backend/internal/dialogue"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

type chatRequest struct {
	ActionUUID      string `json:"action_uuid"`
	LastUserMessage string `json:"last_user_message"`
}

// chat serves one dialogue turn for mode. With ?stream=1 the reply is
// NDJSON: {"delta": ...} lines as the model writes, then the result. When a
// reply is discarded and retried, a {"retry": n} line tells the client to
// drop the deltas it has collected so far.
func (s *Server) chat(mode transcript.Mode) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		if err := decode(r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
		if req.ActionUUID == "" || strings.TrimSpace(req.LastUserMessage) == "" {
			s.fail(w, r, badRequest("action_uuid and last_user_message are required"))
			return
		}

		if wantsStream(r) {
			s.streamChat(w, r, mode, req)
			return
		}

		var (
			res dialogue.TurnResult
			err error
		)
		if mode == transcript.ModeDetail {
			res, err = s.service.AdvanceDetailChat(r.Context(), req.ActionUUID, req.LastUserMessage)
		} else {
			res, err = s.service.AdvanceBasicChat(r.Context(), req.ActionUUID, req.LastUserMessage)
		}
		if err != nil {
			s.fail(w, r, err)
			return
		}
		JSON(w, http.StatusOK, res)
	}
}

func wantsStream(r *http.Request) bool {
	switch r.URL.Query().Get("stream") {
	case "1", "true":
		return true
	}
	return false
}

// ndjson writes one JSON value per line and flushes after each. Headers go
// out with the first line, so errors before any output still get a status.
type ndjson struct {
	w       http.ResponseWriter
	enc     *json.Encoder
	started bool
}

func newNDJSON(w http.ResponseWriter) *ndjson {
	return &ndjson{w: w, enc: json.NewEncoder(w)}
}

func (n *ndjson) write(v any) {
	if !n.started {
		n.w.Header().Set("Content-Type", "application/x-ndjson")
		n.w.Header().Set("Cache-Control", "no-cache")
		n.w.WriteHeader(http.StatusOK)
		n.started = true
	}
	if err := n.enc.Encode(v); err != nil {
		return
	}
	if f, ok := n.w.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) streamChat(w http.ResponseWriter, r *http.Request, mode transcript.Mode, req chatRequest) {
	out := newNDJSON(w)
	attempt := 0
	res, err := s.service.AdvanceChatStream(r.Context(), mode, req.ActionUUID, req.LastUserMessage, func(d llm.Delta) {
		if attempt != 0 && d.Attempt != attempt {
			out.write(map[string]int{"retry": d.Attempt})
		}
		attempt = d.Attempt
		out.write(map[string]string{"delta": d.Text})
	})
	if err != nil {
		if !out.started {
			s.fail(w, r, err)
			return
		}
		s.logger.Error("streamed chat turn failed", "action_uuid", req.ActionUUID, "mode", string(mode), "error", err)
		out.write(map[string]string{"error": err.Error()})
		return
	}
	out.write(res)
}

func (s *Server) extract(w http.ResponseWriter, r *http.Request) {
	md, err := s.service.ExtractMetadata(r.Context(), chi.URLParam(r, "actionUUID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, md)
}

// updateExtract re-runs extraction on an existing action and reports
// whether its type changed.
func (s *Server) updateExtract(w http.ResponseWriter, r *http.Request) {
	res, err := s.service.UpdateMetadata(r.Context(), chi.URLParam(r, "actionUUID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	JSON(w, http.StatusOK, res)
}
