package processor

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapbenefit/cmp-backend/internal/cms"
	"github.com/reapbenefit/cmp-backend/internal/dialogue"
	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/hermes"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/store"
	"github.com/reapbenefit/cmp-backend/internal/taxonomy"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type scriptedCoach struct {
	mu        sync.Mutex
	replies   []dialogue.TurnResult
	err       error
	histories [][]transcript.Message
	messages  []string
}

func (c *scriptedCoach) Advance(_ context.Context, history []transcript.Message, userMsg string) (dialogue.TurnResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := len(c.messages)
	c.histories = append(c.histories, history)
	c.messages = append(c.messages, userMsg)
	if c.err != nil {
		return dialogue.TurnResult{}, c.err
	}
	if i >= len(c.replies) {
		i = len(c.replies) - 1
	}
	return c.replies[i], nil
}

func (c *scriptedCoach) AdvanceStream(ctx context.Context, history []transcript.Message, userMsg string, onDelta func(llm.Delta)) (dialogue.TurnResult, error) {
	res, err := c.Advance(ctx, history, userMsg)
	if err != nil {
		return res, err
	}
	for _, w := range strings.SplitAfter(res.Response, " ") {
		onDelta(llm.Delta{Attempt: 1, Text: w})
	}
	return res, nil
}

func (c *scriptedCoach) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

type fixedExtractor struct {
	md    *extractor.Metadata
	err   error
	calls int
}

func (e *fixedExtractor) Extract(_ context.Context, _ []transcript.Turn) (*extractor.Metadata, error) {
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	cp := *e.md
	return &cp, nil
}

type recordingCMS struct {
	events   []cms.Event
	messages []string
	err      error
}

func (c *recordingCMS) UpsertEvent(_ context.Context, ev cms.Event) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.events = append(c.events, ev)
	return len(c.events) == 1, nil
}

func (c *recordingCMS) AddChatMessage(_ context.Context, eventID, _, role, content, _ string) error {
	c.messages = append(c.messages, eventID+"|"+role+"|"+content)
	return nil
}

type recordingBus struct {
	mu       sync.Mutex
	subjects []string
	payloads []any
}

func (b *recordingBus) Publish(subject string, data any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subjects = append(b.subjects, subject)
	b.payloads = append(b.payloads, data)
	return nil
}

type recordingCache struct {
	invalidated []string
}

func (c *recordingCache) Get(context.Context, string) (*store.Portfolio, error) { return nil, nil }
func (c *recordingCache) Set(context.Context, string, *store.Portfolio) error   { return nil }
func (c *recordingCache) Invalidate(_ context.Context, username string) error {
	c.invalidated = append(c.invalidated, username)
	return nil
}

type recordingReviewer struct {
	posted []string
	err    error
}

func (r *recordingReviewer) PostExtraction(_ context.Context, action *store.Action, md *extractor.Metadata) error {
	r.posted = append(r.posted, action.UUID+":"+string(md.Type))
	return r.err
}

type harness struct {
	p      *Processor
	store  *store.Store
	basic  *scriptedCoach
	detail *scriptedCoach
	ext    *fixedExtractor
	cms    *recordingCMS
	bus    *recordingBus
	cache  *recordingCache
	review *recordingReviewer
	user   *store.User
	subj   hermes.Subjects
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()

	s, err := store.Open(ctx, store.Options{SQLitePath: ":memory:", Logger: discardLogger()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	require.NoError(t, s.SeedSkills(ctx, taxonomy.Seed()))

	u, err := s.CreateUser(ctx, store.NewUser{FirstName: "Asha", Username: "asha", Email: "asha@example.org"})
	require.NoError(t, err)

	h := &harness{
		store: s,
		basic: &scriptedCoach{replies: []dialogue.TurnResult{{Response: "Why did you choose that street?"}}},
		detail: &scriptedCoach{replies: []dialogue.TurnResult{
			{Response: "Who joined you?"},
		}},
		ext:    &fixedExtractor{md: techPrototype(t, s)},
		cms:    &recordingCMS{},
		bus:    &recordingBus{},
		cache:  &recordingCache{},
		review: &recordingReviewer{},
		user:   u,
		subj:   hermes.NewSubjects("test"),
	}
	h.p = New(Deps{
		Store:     s,
		Basic:     h.basic,
		Detail:    h.detail,
		Extractor: h.ext,
		CMS:       h.cms,
		Cache:     h.cache,
		Bus:       h.bus,
		Subjects:  h.subj,
		Logger:    discardLogger(),
		Reviewer:  h.review,
	})
	return h
}

func techPrototype(t *testing.T, s *store.Store) *extractor.Metadata {
	t.Helper()
	ids := taxonomy.SkillsFor(taxonomy.TypeTechPrototype)
	rows, err := s.SkillsByNames(context.Background(), taxonomy.SkillNames(ids))
	require.NoError(t, err)
	md := &extractor.Metadata{
		Title:       "Built a flood sensor",
		Description: "Prototype that warns residents about rising water.",
		Type:        taxonomy.TypeTechPrototype,
		SubType:     "sensor",
		Category:    taxonomy.ActionCategory("Water"),
		SubCategory: taxonomy.ActionSubCategory("Flooding"),
	}
	for _, r := range rows {
		md.Skills = append(md.Skills, extractor.SkillRelevance{
			ID:        r.ID,
			Name:      r.Name,
			Label:     r.Label,
			Relevance: "Shown by " + r.Name,
			Response:  "You showed " + r.Label,
		})
	}
	return md
}

func (h *harness) open(t *testing.T) string {
	t.Helper()
	created, err := h.p.CreateAction(context.Background(), h.user.ID, "Flood sensor", "I built a flood sensor")
	require.NoError(t, err)
	return created.Action.UUID
}

func (h *harness) published(subject string) int {
	h.bus.mu.Lock()
	defer h.bus.mu.Unlock()
	n := 0
	for _, s := range h.bus.subjects {
		if s == subject {
			n++
		}
	}
	return n
}

func TestCreateAction_StoresFirstExchange(t *testing.T) {
	h := newHarness(t)

	created, err := h.p.CreateAction(context.Background(), h.user.ID, "Flood sensor", "I built a flood sensor")
	require.NoError(t, err)

	assert.Equal(t, "Why did you choose that street?", created.AIResponse.Response)
	assert.Equal(t, store.StatusDraft, created.Action.Status)
	assert.Empty(t, h.basic.histories[0])

	turns, err := h.store.ChatHistory(context.Background(), created.Action.UUID)
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, transcript.RoleUser, turns[0].Role)
	assert.Equal(t, "I built a flood sensor", turns[0].Content)
	assert.Equal(t, transcript.RoleAssistant, turns[1].Role)
	assert.Equal(t, transcript.ModeBasic, turns[1].Mode)

	assert.Equal(t, 1, h.published(h.subj.ActionCreated))
	assert.Len(t, h.cms.messages, 2)
}

func TestCreateAction_LLMFailureStoresNothing(t *testing.T) {
	h := newHarness(t)
	h.basic.err = llm.ErrRetryExhausted

	_, err := h.p.CreateAction(context.Background(), h.user.ID, "x", "hello")
	require.ErrorIs(t, err, llm.ErrRetryExhausted)

	sessions, err := h.store.ChatSessionsForUser(context.Background(), h.user.ID)
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestAdvanceBasicChat_AppendsTurnPair(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	res, err := h.p.AdvanceBasicChat(context.Background(), id, "It floods every monsoon")
	require.NoError(t, err)
	assert.False(t, res.IsDone)

	turns, err := h.store.ChatHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, "It floods every monsoon", turns[2].Content)
	assert.Equal(t, res.Response, turns[3].Content)
	for _, turn := range turns {
		assert.Equal(t, transcript.ModeBasic, turn.Mode)
		assert.Equal(t, "text", turn.ResponseType)
	}

	// The second call saw the stored exchange as plain history.
	require.Len(t, h.basic.histories, 2)
	assert.Len(t, h.basic.histories[1], 2)
	assert.Equal(t, 1, h.published(h.subj.ChatTurn))
	assert.Zero(t, h.published(h.subj.ChatDone))
}

func TestAdvanceChat_LLMFailureAppendsNothing(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	h.detail.err = errors.New("detail dialogue turn: " + llm.ErrRetryExhausted.Error())

	_, err := h.p.AdvanceDetailChat(context.Background(), id, "Five friends")
	require.Error(t, err)

	turns, err := h.store.ChatHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, turns, 2)
	assert.Zero(t, h.published(h.subj.ChatTurn))
}

func TestAdvanceDetailChat_SegmentsHistory(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	_, err := h.p.AdvanceBasicChat(context.Background(), id, "It floods every monsoon")
	require.NoError(t, err)

	_, err = h.p.AdvanceDetailChat(context.Background(), id, "Five friends helped")
	require.NoError(t, err)

	require.Len(t, h.detail.histories, 1)
	history := h.detail.histories[0]
	require.Len(t, history, 1)
	assert.Equal(t, transcript.RoleUser, history[0].Role)
	assert.Equal(t,
		"I built a flood sensor\nIt floods every monsoon (response to \"Why did you choose that street?\")",
		history[0].Content)

	turns, err := h.store.ChatHistory(context.Background(), id)
	require.NoError(t, err)
	require.Len(t, turns, 6)
	assert.Equal(t, transcript.ModeDetail, turns[4].Mode)
	assert.Equal(t, transcript.ModeDetail, turns[5].Mode)

	// A further detail turn sees the earlier detail turns unchanged.
	_, err = h.p.AdvanceDetailChat(context.Background(), id, "We met on Sunday")
	require.NoError(t, err)
	require.Len(t, h.detail.histories[1], 3)
	assert.Equal(t, "Who joined you?", h.detail.histories[1][2].Content)
}

func TestAdvanceChat_DonePublishesChatDone(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	h.basic.replies = append(h.basic.replies, dialogue.TurnResult{Response: "Thanks for sharing your story.", IsDone: true})

	res, err := h.p.AdvanceBasicChat(context.Background(), id, "We mapped the drains")
	require.NoError(t, err)

	assert.True(t, res.IsDone)
	assert.Equal(t, 1, h.published(h.subj.ChatDone))
}

func TestAdvanceChat_UnknownAction(t *testing.T) {
	h := newHarness(t)

	_, err := h.p.AdvanceBasicChat(context.Background(), "missing", "hi")

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Zero(t, h.basic.calls())
}

func TestAdvanceChatStream_ForwardsDeltas(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	var sb strings.Builder
	res, err := h.p.AdvanceChatStream(context.Background(), transcript.ModeDetail, id, "Five friends", func(d llm.Delta) {
		sb.WriteString(d.Text)
	})

	require.NoError(t, err)
	assert.Equal(t, res.Response, sb.String())
}

func TestAdvanceChat_SurvivesCallerCancellation(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.detail.replies = []dialogue.TurnResult{{Response: "Who joined you?"}}

	_, err := h.p.AdvanceChatStream(ctx, transcript.ModeDetail, id, "Five friends", func(llm.Delta) { cancel() })
	require.NoError(t, err)

	turns, err := h.store.ChatHistory(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, turns, 4)
}

func TestAdvanceChat_InvalidatesPortfolioOnlyWhenPublished(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	_, err := h.p.AdvanceBasicChat(context.Background(), id, "On my street")
	require.NoError(t, err)
	assert.Empty(t, h.cache.invalidated)

	_, err = h.p.ExtractMetadata(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, []string{"asha"}, h.cache.invalidated)

	_, err = h.p.AdvanceDetailChat(context.Background(), id, "Five friends")
	require.NoError(t, err)
	assert.Equal(t, []string{"asha", "asha"}, h.cache.invalidated)
}

func TestExtractMetadata_PublishesAndSyncs(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	md, err := h.p.ExtractMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, taxonomy.TypeTechPrototype, md.Type)

	action, err := h.store.ActionByUUID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPublished, action.Status)
	assert.Equal(t, "Built a flood sensor", action.Title)
	assert.Equal(t, "sensor", action.SubType)

	skills, err := h.store.ActionSkills(context.Background(), action.ID)
	require.NoError(t, err)
	assert.Len(t, skills, 4)

	require.Len(t, h.cms.events, 1)
	ev := h.cms.events[0]
	assert.Equal(t, id, ev.EventID)
	assert.Equal(t, "asha@example.org", ev.User)
	assert.Equal(t, "Flooding", ev.SubCategory)
	assert.Equal(t, "Shown by grit", ev.Skills["Grit"])

	assert.Equal(t, []string{"asha"}, h.cache.invalidated)
	assert.Equal(t, 1, h.published(h.subj.ActionExtracted))
}

func TestUpdateMetadata_RerunIsUnchanged(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	first, err := h.p.UpdateMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, first.HasChanged)

	second, err := h.p.UpdateMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.False(t, second.HasChanged)
	assert.Equal(t, first.Type, second.Type)
	assert.Equal(t, first.Title, second.Title)

	action, err := h.store.ActionByUUID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDraft, action.Status)

	body, err := json.Marshal(second)
	require.NoError(t, err)
	assert.Contains(t, string(body), `"has_changed":false`)
	assert.Contains(t, string(body), `"action_type":"Tech prototype"`)
}

func TestUpdateMetadata_KeepsPublishedStatus(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	_, err := h.p.ExtractMetadata(context.Background(), id)
	require.NoError(t, err)

	h.ext.md.Type = taxonomy.TypeAudit
	res, err := h.p.UpdateMetadata(context.Background(), id)
	require.NoError(t, err)

	assert.True(t, res.HasChanged)
	action, err := h.store.ActionByUUID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPublished, action.Status)
	assert.Equal(t, string(taxonomy.TypeAudit), action.Type)
}

func TestExtractMetadata_ExtractionFailureLeavesActionUntouched(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	h.ext.err = extractor.ErrUnknownSkill

	_, err := h.p.ExtractMetadata(context.Background(), id)
	require.ErrorIs(t, err, extractor.ErrUnknownSkill)

	action, err := h.store.ActionByUUID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusDraft, action.Status)
	assert.Equal(t, "Flood sensor", action.Title)
	assert.Empty(t, h.cms.events)
	assert.Zero(t, h.published(h.subj.ActionExtracted))
}

func TestExtractMetadata_CMSFailureSurfacedAfterLocalCommit(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	h.cms.err = &cms.StatusError{Op: "create event", StatusCode: http.StatusBadGateway}

	_, err := h.p.ExtractMetadata(context.Background(), id)
	require.Error(t, err)
	var se *cms.StatusError
	assert.True(t, errors.As(err, &se))

	action, err := h.store.ActionByUUID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusPublished, action.Status)

	h.cms.err = nil
	_, err = h.p.ExtractMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, h.cms.events, 1)
}

func TestExtractMetadata_ExistingCMSEventIsUpdated(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	var mu sync.Mutex
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls = append(calls, r.Method+" "+r.URL.Path)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"data":{}}`))
	}))
	defer srv.Close()

	h.p.cms = cms.NewClient(srv.URL, "id", "secret", discardLogger())

	_, err := h.p.ExtractMetadata(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"GET /resource/Events/" + id,
		"PUT /resource/Events/" + id,
	}, calls)
}

func TestExtractMetadata_PostsForReview(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	_, err := h.p.ExtractMetadata(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, []string{id + ":Tech prototype"}, h.review.posted)
}

func TestExtractMetadata_ReviewFailureIsNotFatal(t *testing.T) {
	h := newHarness(t)
	h.review.err = errors.New("slack down")
	id := h.open(t)

	md, err := h.p.ExtractMetadata(context.Background(), id)
	require.NoError(t, err)
	assert.NotNil(t, md)
	assert.Len(t, h.review.posted, 1)
	assert.Equal(t, 1, h.published(h.subj.ActionExtracted))
}

func TestHandleChatDone(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)
	h.p.autoExtract = true

	data, err := json.Marshal(hermes.ChatDone{ActionUUID: id, Mode: "basic"})
	require.NoError(t, err)
	h.p.HandleChatDone(h.subj.ChatDone, data)
	assert.Zero(t, h.ext.calls)

	data, err = json.Marshal(hermes.ChatDone{ActionUUID: id, Mode: "detail"})
	require.NoError(t, err)
	h.p.HandleChatDone(h.subj.ChatDone, data)
	assert.Equal(t, 1, h.ext.calls)

	h.p.HandleChatDone(h.subj.ChatDone, []byte("{not json"))
	assert.Equal(t, 1, h.ext.calls)
}

func TestHandleChatDone_DisabledByDefault(t *testing.T) {
	h := newHarness(t)
	id := h.open(t)

	data, err := json.Marshal(hermes.ChatDone{ActionUUID: id, Mode: "detail"})
	require.NoError(t, err)
	h.p.HandleChatDone(h.subj.ChatDone, data)

	assert.Zero(t, h.ext.calls)
}
