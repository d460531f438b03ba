// Package processor sequences the chat and extraction pipelines against
// storage, the CMS mirror and the event bus.
package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/reapbenefit/cmp-backend/internal/cache"
	"github.com/reapbenefit/cmp-backend/internal/cms"
	"github.com/reapbenefit/cmp-backend/internal/dialogue"
	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/hermes"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/store"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

const (
	defaultTurnTimeout    = 2 * time.Minute
	defaultExtractTimeout = 5 * time.Minute
)

// Coach produces the next dialogue turn.
type Coach interface {
	Advance(ctx context.Context, history []transcript.Message, userMsg string) (dialogue.TurnResult, error)
	AdvanceStream(ctx context.Context, history []transcript.Message, userMsg string, onDelta func(llm.Delta)) (dialogue.TurnResult, error)
}

type MetadataExtractor interface {
	Extract(ctx context.Context, turns []transcript.Turn) (*extractor.Metadata, error)
}

// CMS is the remote system of record. UpsertEvent must check existence
// before creating.
type CMS interface {
	UpsertEvent(ctx context.Context, ev cms.Event) (created bool, err error)
	AddChatMessage(ctx context.Context, eventID, userEmail, role, content, responseType string) error
}

// Reviewer receives every committed extraction for human review.
type Reviewer interface {
	PostExtraction(ctx context.Context, action *store.Action, md *extractor.Metadata) error
}

type Deps struct {
	Store     store.Repository
	Basic     Coach
	Detail    Coach
	Extractor MetadataExtractor
	// CMS is nil when no system of record is configured.
	CMS      CMS
	Cache    cache.PortfolioCache
	Bus      hermes.Publisher
	Subjects hermes.Subjects
	Logger   *slog.Logger
	// Reviewer is an optional human review feed. Failures are logged.
	Reviewer Reviewer

	AutoExtract    bool
	TurnTimeout    time.Duration
	ExtractTimeout time.Duration
}

// Processor is the facing API used by the HTTP layer, the CLI and the bus.
type Processor struct {
	store     store.Repository
	coaches   map[transcript.Mode]Coach
	extractor MetadataExtractor
	cms       CMS
	cache     cache.PortfolioCache
	bus       hermes.Publisher
	subjects  hermes.Subjects
	logger    *slog.Logger
	reviewer  Reviewer

	autoExtract    bool
	turnTimeout    time.Duration
	extractTimeout time.Duration
}

func New(d Deps) *Processor {
	p := &Processor{
		store:          d.Store,
		coaches:        map[transcript.Mode]Coach{transcript.ModeBasic: d.Basic, transcript.ModeDetail: d.Detail},
		extractor:      d.Extractor,
		cms:            d.CMS,
		reviewer:       d.Reviewer,
		cache:          d.Cache,
		bus:            d.Bus,
		subjects:       d.Subjects,
		logger:         d.Logger,
		autoExtract:    d.AutoExtract,
		turnTimeout:    d.TurnTimeout,
		extractTimeout: d.ExtractTimeout,
	}
	if p.cache == nil {
		p.cache = cache.Noop{}
	}
	if p.bus == nil {
		p.bus = hermes.Discard{}
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.turnTimeout <= 0 {
		p.turnTimeout = defaultTurnTimeout
	}
	if p.extractTimeout <= 0 {
		p.extractTimeout = defaultExtractTimeout
	}
	return p
}

// CreatedAction is the result of opening a new conversation.
type CreatedAction struct {
	AIResponse dialogue.TurnResult `json:"ai_response"`
	Action     *store.Action       `json:"action"`
}

// UpdatedMetadata is a re-extraction result. HasChanged compares the
// previous action type with the new one.
type UpdatedMetadata struct {
	*extractor.Metadata
	HasChanged bool `json:"has_changed"`
}

// AdvanceBasicChat runs one basic-mode turn and persists it.
func (p *Processor) AdvanceBasicChat(ctx context.Context, actionUUID, msg string) (dialogue.TurnResult, error) {
	return p.advance(ctx, transcript.ModeBasic, actionUUID, msg, nil)
}

// AdvanceDetailChat runs one detail-mode turn over the segmented transcript
// and persists it.
func (p *Processor) AdvanceDetailChat(ctx context.Context, actionUUID, msg string) (dialogue.TurnResult, error) {
	return p.advance(ctx, transcript.ModeDetail, actionUUID, msg, nil)
}

// AdvanceChatStream is the streaming form of the Advance*Chat methods.
// Raw model text is passed to onDelta while the turn is generated.
func (p *Processor) AdvanceChatStream(ctx context.Context, mode transcript.Mode, actionUUID, msg string, onDelta func(llm.Delta)) (dialogue.TurnResult, error) {
	if onDelta == nil {
		onDelta = func(llm.Delta) {}
	}
	return p.advance(ctx, mode, actionUUID, msg, onDelta)
}

func (p *Processor) advance(ctx context.Context, mode transcript.Mode, actionUUID, msg string, onDelta func(llm.Delta)) (dialogue.TurnResult, error) {
	coach, ok := p.coaches[mode]
	if !ok || coach == nil {
		return dialogue.TurnResult{}, fmt.Errorf("unsupported chat mode %q", mode)
	}

	action, err := p.store.ActionByUUID(ctx, actionUUID)
	if err != nil {
		return dialogue.TurnResult{}, fmt.Errorf("load action: %w", err)
	}
	turns, err := p.store.ChatHistory(ctx, actionUUID)
	if err != nil {
		return dialogue.TurnResult{}, fmt.Errorf("load chat history: %w", err)
	}

	var history []transcript.Message
	if mode == transcript.ModeDetail {
		history = transcript.Segment(transcript.WithoutAnalysis(turns))
	} else {
		history = transcript.Messages(turns)
	}

	// The turn is generated and stored even if the caller goes away.
	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.turnTimeout)
	defer cancel()

	var res dialogue.TurnResult
	if onDelta != nil {
		res, err = coach.AdvanceStream(runCtx, history, msg, onDelta)
	} else {
		res, err = coach.Advance(runCtx, history, msg)
	}
	if err != nil {
		return dialogue.TurnResult{}, err
	}

	if _, err := p.store.AppendTurns(runCtx, actionUUID, []store.NewTurn{
		{Role: transcript.RoleUser, Content: msg, ResponseType: "text", Mode: mode},
		{Role: transcript.RoleAssistant, Content: res.Response, ResponseType: "text", Mode: mode},
	}); err != nil {
		return dialogue.TurnResult{}, fmt.Errorf("append turns: %w", err)
	}
	// Published actions carry their chat into the portfolio.
	if action.Status == store.StatusPublished {
		p.invalidatePortfolio(runCtx, action)
	}

	p.mirrorChat(runCtx, action, msg, res.Response)

	p.logger.Info("chat turn stored",
		"action_uuid", actionUUID,
		"mode", string(mode),
		"is_done", res.IsDone,
	)
	p.publish(p.subjects.ChatTurn, hermes.ChatTurn{ActionUUID: actionUUID, Mode: string(mode), IsDone: res.IsDone})
	if res.IsDone {
		p.publish(p.subjects.ChatDone, hermes.ChatDone{ActionUUID: actionUUID, Mode: string(mode)})
	}
	return res, nil
}

// mirrorChat copies a stored turn pair to the CMS chat history. The local
// transcript is authoritative, so failures are only logged.
func (p *Processor) mirrorChat(ctx context.Context, action *store.Action, userMsg, reply string) {
	if p.cms == nil {
		return
	}
	for _, m := range []struct {
		role    transcript.Role
		content string
	}{
		{transcript.RoleUser, userMsg},
		{transcript.RoleAssistant, reply},
	} {
		if err := p.cms.AddChatMessage(ctx, action.UUID, action.UserEmail, string(m.role), m.content, "text"); err != nil {
			p.logger.Warn("cms chat mirror failed", "action_uuid", action.UUID, "error", err)
			return
		}
	}
}

// CreateAction opens a conversation: the first basic turn is generated
// before anything is written, then the action, the first user message and
// the coach's reply are stored.
func (p *Processor) CreateAction(ctx context.Context, userID int64, title, msg string) (*CreatedAction, error) {
	coach := p.coaches[transcript.ModeBasic]
	if coach == nil {
		return nil, fmt.Errorf("basic coach not configured")
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.turnTimeout)
	defer cancel()

	res, err := coach.Advance(runCtx, nil, msg)
	if err != nil {
		return nil, err
	}

	action, err := p.store.CreateAction(runCtx, userID, title, msg)
	if err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	if _, err := p.store.AppendTurns(runCtx, action.UUID, []store.NewTurn{
		{Role: transcript.RoleAssistant, Content: res.Response, ResponseType: "text", Mode: transcript.ModeBasic},
	}); err != nil {
		return nil, fmt.Errorf("append first reply: %w", err)
	}

	p.mirrorChat(runCtx, action, msg, res.Response)

	p.logger.Info("action created", "action_uuid", action.UUID, "user_id", userID)
	p.publish(p.subjects.ActionCreated, hermes.ActionCreated{ActionUUID: action.UUID, UserID: userID, Title: action.Title})
	if res.IsDone {
		p.publish(p.subjects.ChatDone, hermes.ChatDone{ActionUUID: action.UUID, Mode: string(transcript.ModeBasic)})
	}
	return &CreatedAction{AIResponse: res, Action: action}, nil
}

// ExtractMetadata recomputes an action's metadata, stores it locally,
// mirrors it to the CMS and publishes the action.
func (p *Processor) ExtractMetadata(ctx context.Context, actionUUID string) (*extractor.Metadata, error) {
	md, _, err := p.extract(ctx, actionUUID, false)
	return md, err
}

// UpdateMetadata recomputes an action's metadata without touching its
// status and reports whether the action type changed.
func (p *Processor) UpdateMetadata(ctx context.Context, actionUUID string) (*UpdatedMetadata, error) {
	md, changed, err := p.extract(ctx, actionUUID, true)
	if err != nil {
		return nil, err
	}
	return &UpdatedMetadata{Metadata: md, HasChanged: changed}, nil
}

func (p *Processor) extract(ctx context.Context, actionUUID string, keepStatus bool) (*extractor.Metadata, bool, error) {
	action, err := p.store.ActionByUUID(ctx, actionUUID)
	if err != nil {
		return nil, false, fmt.Errorf("load action: %w", err)
	}
	turns, err := p.store.ChatHistory(ctx, actionUUID)
	if err != nil {
		return nil, false, fmt.Errorf("load chat history: %w", err)
	}

	runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.extractTimeout)
	defer cancel()

	md, err := p.extractor.Extract(runCtx, turns)
	if err != nil {
		return nil, false, fmt.Errorf("extract %s: %w", actionUUID, err)
	}
	changed := action.Type != string(md.Type)

	status := action.Status
	if !keepStatus && (status == "" || status == store.StatusDraft) {
		status = store.StatusPublished
	}

	upd := store.ActionUpdate{
		Title:       md.Title,
		Description: md.Description,
		Status:      status,
		Category:    string(md.Category),
		SubCategory: string(md.SubCategory),
		Type:        string(md.Type),
		SubType:     string(md.SubType),
		Skills:      make([]store.ActionSkillInput, 0, len(md.Skills)),
	}
	for _, s := range md.Skills {
		upd.Skills = append(upd.Skills, store.ActionSkillInput{SkillID: s.ID, Summary: s.Relevance})
	}
	if _, err := p.store.UpdateActionMetadata(runCtx, actionUUID, upd); err != nil {
		return nil, false, fmt.Errorf("store metadata: %w", err)
	}

	if p.cms != nil {
		created, err := p.cms.UpsertEvent(runCtx, eventFor(action, md))
		if err != nil {
			// Local metadata is committed; a retry heals the mirror through
			// the existence check.
			return nil, false, fmt.Errorf("sync %s to cms: %w", actionUUID, err)
		}
		p.logger.Info("cms event synced", "event_id", actionUUID, "created", created)
	}

	p.invalidatePortfolio(runCtx, action)

	if p.reviewer != nil {
		if err := p.reviewer.PostExtraction(runCtx, action, md); err != nil {
			p.logger.Warn("review post failed", "action_uuid", actionUUID, "error", err)
		}
	}

	names := make([]string, len(md.Skills))
	for i, s := range md.Skills {
		names[i] = s.Name
	}
	p.logger.Info("metadata extracted",
		"action_uuid", actionUUID,
		"type", string(md.Type),
		"skills", len(md.Skills),
		"has_changed", changed,
	)
	p.publish(p.subjects.ActionExtracted, hermes.ActionExtracted{
		ActionUUID: actionUUID,
		Type:       string(md.Type),
		Category:   string(md.Category),
		Skills:     names,
		HasChanged: changed,
	})
	return md, changed, nil
}

func eventFor(action *store.Action, md *extractor.Metadata) cms.Event {
	skills := make(map[string]string, len(md.Skills))
	for _, s := range md.Skills {
		skills[s.Label] = s.Relevance
	}
	return cms.Event{
		EventID:     action.UUID,
		Title:       md.Title,
		Type:        string(md.Type),
		Category:    string(md.Category),
		SubCategory: string(md.SubCategory),
		SubType:     string(md.SubType),
		User:        action.UserEmail,
		Description: md.Description,
		Skills:      skills,
	}
}

func (p *Processor) invalidatePortfolio(ctx context.Context, action *store.Action) {
	owner, err := p.store.UserByEmail(ctx, action.UserEmail)
	if err != nil {
		p.logger.Warn("portfolio cache not invalidated", "action_uuid", action.UUID, "error", err)
		return
	}
	if err := p.cache.Invalidate(ctx, owner.Username); err != nil {
		p.logger.Warn("portfolio cache invalidate failed", "username", owner.Username, "error", err)
	}
}

// HandleChatDone is the bus handler for chat.done. When auto-extraction is
// on, a finished detail chat is extracted right away.
func (p *Processor) HandleChatDone(subject string, data []byte) {
	var evt hermes.ChatDone
	if err := json.Unmarshal(data, &evt); err != nil {
		p.logger.Error("failed to parse chat done event", "subject", subject, "error", err)
		return
	}
	if !p.autoExtract || evt.Mode != string(transcript.ModeDetail) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.extractTimeout)
	defer cancel()

	if _, err := p.ExtractMetadata(ctx, evt.ActionUUID); err != nil {
		p.logger.Error("auto extraction failed", "action_uuid", evt.ActionUUID, "error", err)
	}
}

func (p *Processor) publish(subject string, payload any) {
	if subject == "" {
		return
	}
	if err := p.bus.Publish(subject, payload); err != nil {
		p.logger.Error("failed to publish", "subject", subject, "error", err)
	}
}
