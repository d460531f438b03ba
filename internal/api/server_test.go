package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapbenefit/cmp-backend/internal/anthropic"
	"github.com/reapbenefit/cmp-backend/internal/cache"
	"github.com/reapbenefit/cmp-backend/internal/cms"
	"github.com/reapbenefit/cmp-backend/internal/dialogue"
	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/processor"
	"github.com/reapbenefit/cmp-backend/internal/store"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

type fakeService struct {
	turn    dialogue.TurnResult
	err     error
	md      *extractor.Metadata
	changed bool

	// discarded is streamed as a first attempt that gets retried.
	discarded string

	modes []transcript.Mode
}

func (f *fakeService) CreateAction(_ context.Context, userID int64, title, _ string) (*processor.CreatedAction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &processor.CreatedAction{
		AIResponse: f.turn,
		Action:     &store.Action{ID: 1, UUID: "a-1", UserID: userID, Title: title, Status: store.StatusDraft},
	}, nil
}

func (f *fakeService) AdvanceBasicChat(_ context.Context, _, _ string) (dialogue.TurnResult, error) {
	f.modes = append(f.modes, transcript.ModeBasic)
	return f.turn, f.err
}

func (f *fakeService) AdvanceDetailChat(_ context.Context, _, _ string) (dialogue.TurnResult, error) {
	f.modes = append(f.modes, transcript.ModeDetail)
	return f.turn, f.err
}

func (f *fakeService) AdvanceChatStream(_ context.Context, mode transcript.Mode, _, _ string, onDelta func(llm.Delta)) (dialogue.TurnResult, error) {
	f.modes = append(f.modes, mode)
	if f.err != nil {
		return dialogue.TurnResult{}, f.err
	}
	attempt := 1
	if f.discarded != "" {
		onDelta(llm.Delta{Attempt: 1, Text: f.discarded})
		attempt = 2
	}
	onDelta(llm.Delta{Attempt: attempt, Text: `{"response": "`})
	onDelta(llm.Delta{Attempt: attempt, Text: f.turn.Response})
	onDelta(llm.Delta{Attempt: attempt, Text: `"}`})
	return f.turn, nil
}

func (f *fakeService) ExtractMetadata(context.Context, string) (*extractor.Metadata, error) {
	return f.md, f.err
}

func (f *fakeService) UpdateMetadata(context.Context, string) (*processor.UpdatedMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &processor.UpdatedMetadata{Metadata: f.md, HasChanged: f.changed}, nil
}

type fakeDirectory struct {
	fullName string
	err      error
	username string
}

func (d *fakeDirectory) Login(_ context.Context, _, password string) (*cms.Session, error) {
	if d.err != nil {
		return nil, d.err
	}
	if password != "secret" {
		return nil, cms.ErrUnauthorized
	}
	return &cms.Session{FullName: d.fullName, SID: "sid-123"}, nil
}

func (d *fakeDirectory) UserProfile(_ context.Context, email string) (*cms.Profile, error) {
	if d.username == "" {
		return nil, fmt.Errorf("profile for %s: %w", email, cms.ErrNotFound)
	}
	p := &cms.Profile{}
	p.CurrentUser.Username = d.username
	p.CurrentUser.Email = email
	return p, nil
}

type testServer struct {
	srv   *Server
	store *store.Store
	svc   *fakeService
	dir   *fakeDirectory
	redis *miniredis.Miniredis
}

func newTestServer(t *testing.T, apiToken string) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := store.Open(context.Background(), store.Options{SQLitePath: ":memory:", Logger: logger})
	require.NoError(t, err)
	t.Cleanup(s.Close)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ts := &testServer{
		store: s,
		svc:   &fakeService{turn: dialogue.TurnResult{ChainOfThought: "ask why", Response: "Why did you start?"}},
		dir:   &fakeDirectory{fullName: "Asha Devi Rao", username: "asha.rao"},
		redis: mr,
	}
	ts.srv = NewServer(8000, apiToken, Deps{
		Store:     s,
		Service:   ts.svc,
		Directory: ts.dir,
		Cache:     cache.NewPortfolioCache(client, time.Minute),
		Logger:    logger,
	})
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	w := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(w, req)
	return w
}

func (ts *testServer) seedUser(t *testing.T) *store.User {
	t.Helper()
	u, err := ts.store.CreateUser(context.Background(), store.NewUser{FirstName: "Asha", Username: "asha", Email: "asha@example.org"})
	require.NoError(t, err)
	return u
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(w.Body).Decode(&v), w.Body.String())
	return v
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decodeBody[map[string]string](t, w)["status"])

	w = ts.do(t, http.MethodHead, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestNotFoundEndpoint(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/nonexistent", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestLogin_BootstrapsLocalUser(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/login", loginRequest{Email: "asha@example.org", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	first := decodeBody[loginResponse](t, w)
	assert.Equal(t, "Asha Devi Rao", first.Name)
	assert.Equal(t, "sid-123", first.SID)
	assert.NotZero(t, first.ID)

	u, err := ts.store.UserByEmail(context.Background(), "asha@example.org")
	require.NoError(t, err)
	assert.Equal(t, "Asha", u.FirstName)
	assert.Equal(t, "Rao", u.LastName)
	assert.Equal(t, "asha@example.org", u.Username)

	w = ts.do(t, http.MethodPost, "/login", loginRequest{Email: "asha@example.org", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, first.ID, decodeBody[loginResponse](t, w).ID)
}

func TestLogin_Rejected(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/login", loginRequest{Email: "asha@example.org", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/login", map[string]string{"email": "asha@example.org"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, err := ts.store.UserByEmail(context.Background(), "asha@example.org")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLogin_WithoutCMS(t *testing.T) {
	ts := newTestServer(t, "")
	ts.srv.directory = nil

	w := ts.do(t, http.MethodPost, "/login", loginRequest{Email: "a@b.c", Password: "secret"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		full, first, last string
	}{
		{"Asha Devi Rao", "Asha", "Rao"},
		{"Asha", "Asha", ""},
		{"  Ravi   Kumar ", "Ravi", "Kumar"},
		{"", "", ""},
	}
	for _, tt := range tests {
		first, last := splitName(tt.full)
		assert.Equal(t, tt.first, first, tt.full)
		assert.Equal(t, tt.last, last, tt.full)
	}
}

func TestPortfolio_CachedAndInvalidatedOnUpdate(t *testing.T) {
	ts := newTestServer(t, "")
	ts.seedUser(t)

	w := ts.do(t, http.MethodGet, "/portfolio/asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Asha", decodeBody[store.Portfolio](t, w).FirstName)
	assert.True(t, ts.redis.Exists("portfolio:asha"))

	w = ts.do(t, http.MethodPut, "/users/asha", store.ProfileUpdate{Bio: "Changemaker"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Changemaker", decodeBody[store.Portfolio](t, w).Bio)
	assert.False(t, ts.redis.Exists("portfolio:asha"))

	w = ts.do(t, http.MethodGet, "/portfolio/asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Changemaker", decodeBody[store.Portfolio](t, w).Bio)
}

func TestPortfolio_UnknownUser(t *testing.T) {
	ts := newTestServer(t, "")

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/portfolio/ghost", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPut, "/users/ghost", store.ProfileUpdate{}).Code)
}

func TestCreateCommunity(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.seedUser(t)
	require.NoError(t, ts.redis.Set("portfolio:asha", "{}"))

	w := ts.do(t, http.MethodPost, "/communities", store.NewCommunity{UserID: u.ID, Name: "Eco club", Description: "Weekend cleanups"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "Eco club", decodeBody[store.Community](t, w).Name)
	assert.False(t, ts.redis.Exists("portfolio:asha"))

	w = ts.do(t, http.MethodPost, "/communities", store.NewCommunity{UserID: u.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateAction(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.seedUser(t)

	w := ts.do(t, http.MethodPost, "/actions", createActionRequest{UserID: u.ID, UserMessage: "I cleaned a lake"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	got := decodeBody[processor.CreatedAction](t, w)
	assert.Equal(t, defaultActionTitle, got.Action.Title)
	assert.Equal(t, "Why did you start?", got.AIResponse.Response)

	w = ts.do(t, http.MethodPost, "/actions", createActionRequest{UserID: u.ID + 50, UserMessage: "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = ts.do(t, http.MethodPost, "/actions", createActionRequest{UserID: u.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestChatHistoryRoutes(t *testing.T) {
	ts := newTestServer(t, "")
	u := ts.seedUser(t)
	a, err := ts.store.CreateAction(context.Background(), u.ID, "Lake", "I cleaned a lake")
	require.NoError(t, err)

	w := ts.do(t, http.MethodPost, "/chat_messages/"+a.UUID, []chatMessageRequest{
		{Role: transcript.RoleAssistant, Content: "Why?", ResponseType: "text"},
		{Role: transcript.RoleAnalysis, Content: "{}", ResponseType: "json", Mode: transcript.ModeDetail},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = ts.do(t, http.MethodGet, "/chat_history/"+a.UUID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	turns := decodeBody[[]transcript.Turn](t, w)
	require.Len(t, turns, 3)
	assert.Equal(t, transcript.ModeBasic, turns[1].Mode)
	assert.Equal(t, transcript.ModeDetail, turns[2].Mode)

	w = ts.do(t, http.MethodGet, fmt.Sprintf("/chat_history?user_id=%d", u.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	sessions := decodeBody[[]store.ChatSession](t, w)
	require.Len(t, sessions, 1)
	assert.Equal(t, a.UUID, sessions[0].UUID)

	w = ts.do(t, http.MethodGet, "/chat_history/?user_id=999", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "[]\n", w.Body.String())

	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodGet, "/chat_history?user_id=abc", nil).Code)
	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodGet, "/chat_history/missing", nil).Code)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/chat_messages/"+a.UUID, []chatMessageRequest{
		{Role: "system", Content: "x"},
	}).Code)
}

func TestChatMessages_InvalidatesPublishedPortfolio(t *testing.T) {
	ts := newTestServer(t, "")
	ctx := context.Background()
	u := ts.seedUser(t)

	draft, err := ts.store.CreateAction(ctx, u.ID, "Draft", "I planted trees")
	require.NoError(t, err)
	published, err := ts.store.CreateAction(ctx, u.ID, "Lake", "I cleaned a lake")
	require.NoError(t, err)
	_, err = ts.store.UpdateActionMetadata(ctx, published.UUID, store.ActionUpdate{Title: "Lake", Status: store.StatusPublished})
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/portfolio/asha", nil).Code)
	require.True(t, ts.redis.Exists("portfolio:asha"))

	w := ts.do(t, http.MethodPost, "/chat_messages/"+draft.UUID, []chatMessageRequest{{Role: transcript.RoleUser, Content: "Fifty trees"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, ts.redis.Exists("portfolio:asha"))

	w = ts.do(t, http.MethodPost, "/chat_messages/"+published.UUID, []chatMessageRequest{{Role: transcript.RoleUser, Content: "We came back a week later"}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.False(t, ts.redis.Exists("portfolio:asha"))

	w = ts.do(t, http.MethodGet, "/portfolio/asha", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "We came back a week later")

	assert.Equal(t, http.StatusNotFound, ts.do(t, http.MethodPost, "/chat_messages/missing", []chatMessageRequest{{Role: transcript.RoleUser, Content: "x"}}).Code)
}

func TestUsernameLookup(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodGet, "/users/asha@example.org/username", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "asha.rao", decodeBody[string](t, w))

	ts.dir.username = ""
	w = ts.do(t, http.MethodGet, "/users/asha@example.org/username", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAIRoutes_RequireBearerToken(t *testing.T) {
	ts := newTestServer(t, "s3cret")
	body := chatRequest{ActionUUID: "a-1", LastUserMessage: "hello"}

	w := ts.do(t, http.MethodPost, "/ai/chat/basic", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/ai/chat/basic", body, "Authorization", "Bearer nope")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = ts.do(t, http.MethodPost, "/ai/chat/basic", body, "Authorization", "Bearer s3cret")
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[dialogue.TurnResult](t, w)
	assert.Equal(t, "Why did you start?", got.Response)

	// Non-AI routes stay open.
	assert.Equal(t, http.StatusOK, ts.do(t, http.MethodGet, "/health", nil).Code)
}

func TestChat_RoutesByMode(t *testing.T) {
	ts := newTestServer(t, "")
	body := chatRequest{ActionUUID: "a-1", LastUserMessage: "hello"}

	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/ai/chat/basic", body).Code)
	require.Equal(t, http.StatusOK, ts.do(t, http.MethodPost, "/ai/chat/detail", body).Code)

	assert.Equal(t, []transcript.Mode{transcript.ModeBasic, transcript.ModeDetail}, ts.svc.modes)
	assert.Equal(t, http.StatusBadRequest, ts.do(t, http.MethodPost, "/ai/chat/basic", chatRequest{ActionUUID: "a-1"}).Code)
}

func TestChat_Stream(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodPost, "/ai/chat/detail?stream=1", chatRequest{ActionUUID: "a-1", LastUserMessage: "hello"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-ndjson", w.Header().Get("Content-Type"))

	var lines []map[string]any
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 4)
	var deltas strings.Builder
	for _, l := range lines[:3] {
		deltas.WriteString(l["delta"].(string))
	}
	assert.Equal(t, `{"response": "Why did you start?"}`, deltas.String())
	assert.Equal(t, "Why did you start?", lines[3]["response"])
	assert.Equal(t, false, lines[3]["is_done"])
	assert.Equal(t, []transcript.Mode{transcript.ModeDetail}, ts.svc.modes)
}

func TestChat_StreamMarksRetriedReply(t *testing.T) {
	ts := newTestServer(t, "")
	ts.svc.discarded = "not json at all"

	w := ts.do(t, http.MethodPost, "/ai/chat/basic?stream=1", chatRequest{ActionUUID: "a-1", LastUserMessage: "hello"})
	require.Equal(t, http.StatusOK, w.Code)

	var lines []map[string]any
	sc := bufio.NewScanner(w.Body)
	for sc.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		lines = append(lines, m)
	}
	require.Len(t, lines, 6)
	assert.Equal(t, "not json at all", lines[0]["delta"])
	assert.Equal(t, float64(2), lines[1]["retry"])

	// A client that resets on retry keeps only the final attempt's text.
	var deltas strings.Builder
	for _, l := range lines[:5] {
		if _, ok := l["retry"]; ok {
			deltas.Reset()
			continue
		}
		deltas.WriteString(l["delta"].(string))
	}
	assert.Equal(t, `{"response": "Why did you start?"}`, deltas.String())
	assert.Equal(t, "Why did you start?", lines[5]["response"])
}

func TestChat_StreamErrorBeforeOutput(t *testing.T) {
	ts := newTestServer(t, "")
	ts.svc.err = fmt.Errorf("load action: %w", store.ErrNotFound)

	w := ts.do(t, http.MethodPost, "/ai/chat/basic?stream=1", chatRequest{ActionUUID: "zz", LastUserMessage: "hello"})

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
}

func TestExtract(t *testing.T) {
	ts := newTestServer(t, "")
	ts.svc.md = &extractor.Metadata{Title: "Lake cleanup", Type: "Other Activity", Skills: []extractor.SkillRelevance{}}

	w := ts.do(t, http.MethodPost, "/ai/extract/a-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Lake cleanup", decodeBody[map[string]any](t, w)["action_title"])

	ts.svc.changed = true
	w = ts.do(t, http.MethodPut, "/ai/extract/a-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeBody[map[string]any](t, w)
	assert.Equal(t, true, got["has_changed"])
	assert.Equal(t, "Other Activity", got["action_type"])
}

func TestExtract_ErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown action", fmt.Errorf("load action: %w", store.ErrNotFound), http.StatusNotFound},
		{"unknown skill", fmt.Errorf("extract: %w", extractor.ErrUnknownSkill), http.StatusBadGateway},
		{"retries exhausted", fmt.Errorf("classify: %w: %w", llm.ErrRetryExhausted, llm.ErrInvalidOutput), http.StatusBadGateway},
		{"llm status", &anthropic.StatusError{StatusCode: http.StatusBadRequest}, http.StatusBadGateway},
		{"cms failure", &cms.StatusError{Op: "update event", StatusCode: 500}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, "")
			ts.svc.err = tt.err

			w := ts.do(t, http.MethodPost, "/ai/extract/a-1", nil)

			assert.Equal(t, tt.want, w.Code)
			assert.NotEmpty(t, decodeBody[map[string]string](t, w)["error"])
		})
	}
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(badRequest("nope")))
	assert.Equal(t, http.StatusUnauthorized, statusFor(fmt.Errorf("login: %w", cms.ErrUnauthorized)))
	assert.Equal(t, http.StatusConflict, statusFor(store.ErrConflict))
	assert.Equal(t, http.StatusNotFound, statusFor(cms.ErrNotFound))
	assert.Equal(t, http.StatusInternalServerError, statusFor(errors.New("boom")))
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, "")

	w := ts.do(t, http.MethodOptions, "/ai/chat/basic", nil, "Origin", "https://app.example.org")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://app.example.org", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}
