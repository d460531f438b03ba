package backfill

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/processor"
	"github.com/reapbenefit/cmp-backend/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeLister struct {
	actions []store.Action
	filter  store.ActionFilter
}

func (l *fakeLister) ListActions(_ context.Context, f store.ActionFilter) ([]store.Action, error) {
	l.filter = f
	return l.actions, nil
}

type fakeExtractor struct {
	extracted []string
	updated   []string
	failOn    map[string]bool
	changed   bool
}

func (e *fakeExtractor) ExtractMetadata(_ context.Context, id string) (*extractor.Metadata, error) {
	if e.failOn[id] {
		return nil, errors.New("llm unavailable")
	}
	e.extracted = append(e.extracted, id)
	return &extractor.Metadata{}, nil
}

func (e *fakeExtractor) UpdateMetadata(_ context.Context, id string) (*processor.UpdatedMetadata, error) {
	if e.failOn[id] {
		return nil, errors.New("llm unavailable")
	}
	e.updated = append(e.updated, id)
	return &processor.UpdatedMetadata{Metadata: &extractor.Metadata{}, HasChanged: e.changed}, nil
}

type fakeSummarizer struct {
	texts []string
}

func (s *fakeSummarizer) PostSummary(_ context.Context, text string) error {
	s.texts = append(s.texts, text)
	return nil
}

func actions(ids ...string) []store.Action {
	out := make([]store.Action, len(ids))
	for i, id := range ids {
		out[i] = store.Action{UUID: id, Title: "action " + id}
	}
	return out
}

func TestRun_ExtractsAndAppliesDefaults(t *testing.T) {
	lister := &fakeLister{actions: actions("a-1", "a-2")}
	ext := &fakeExtractor{}
	slack := &fakeSummarizer{}
	cfg := Config{StatePath: filepath.Join(t.TempDir(), "state.json")}

	sum, err := NewRunner(cfg, lister, ext, slack, discardLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, store.StatusDraft, lister.filter.Status)
	assert.Equal(t, 2, lister.filter.MinUserTurns)
	assert.Equal(t, []string{"a-1", "a-2"}, ext.extracted)
	assert.Empty(t, ext.updated)
	assert.Equal(t, 2, sum.Extracted)
	require.Len(t, slack.texts, 1)
	assert.Contains(t, slack.texts[0], "Extracted: 2")
}

func TestRun_ResumesFromState(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	lister := &fakeLister{actions: actions("a-1", "a-2", "a-3")}
	ext := &fakeExtractor{failOn: map[string]bool{"a-2": true}}
	cfg := Config{StatePath: statePath}

	sum, err := NewRunner(cfg, lister, ext, nil, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sum.Extracted)
	assert.Equal(t, 1, sum.Failed)

	state, err := LoadState(statePath)
	require.NoError(t, err)
	assert.Equal(t, []string{"a-1", "a-3"}, state.Processed)
	require.Len(t, state.Errors, 1)
	assert.Contains(t, state.Errors[0], "a-2")

	// The failed action is retried and the rest are skipped.
	ext2 := &fakeExtractor{}
	sum, err = NewRunner(cfg, lister, ext2, nil, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"a-2"}, ext2.extracted)
	assert.Equal(t, 2, sum.Skipped)
	assert.Equal(t, 1, sum.Extracted)
}

func TestRun_UpdateModeCountsChanges(t *testing.T) {
	lister := &fakeLister{actions: actions("a-1")}
	ext := &fakeExtractor{changed: true}
	cfg := Config{Update: true, Status: store.StatusPublished, StatePath: filepath.Join(t.TempDir(), "state.json")}

	sum, err := NewRunner(cfg, lister, ext, nil, discardLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, store.StatusPublished, lister.filter.Status)
	assert.Equal(t, []string{"a-1"}, ext.updated)
	assert.Empty(t, ext.extracted)
	assert.Equal(t, 1, sum.Changed)
}

func TestRun_DryRunWritesNothing(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	lister := &fakeLister{actions: actions("a-1", "a-2")}
	ext := &fakeExtractor{}
	slack := &fakeSummarizer{}

	sum, err := NewRunner(Config{DryRun: true, StatePath: statePath}, lister, ext, slack, discardLogger()).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, sum.Candidates)
	assert.Zero(t, sum.Extracted)
	assert.Empty(t, ext.extracted)
	assert.Empty(t, slack.texts)
	assert.NoFileExists(t, statePath)
}

func TestRun_PausesBetweenBatches(t *testing.T) {
	lister := &fakeLister{actions: actions("a-1", "a-2", "a-3")}
	ext := &fakeExtractor{}
	cfg := Config{BatchSize: 1, Pause: time.Millisecond, StatePath: filepath.Join(t.TempDir(), "state.json")}

	sum, err := NewRunner(cfg, lister, ext, nil, discardLogger()).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Extracted)
}

func TestRun_CancelledSavesAndReports(t *testing.T) {
	lister := &fakeLister{actions: actions("a-1", "a-2")}
	ext := &fakeExtractor{}
	slack := &fakeSummarizer{}
	cfg := Config{StatePath: filepath.Join(t.TempDir(), "state.json")}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewRunner(cfg, lister, ext, slack, discardLogger()).Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, ext.extracted)
	assert.Len(t, slack.texts, 1)
	assert.FileExists(t, cfg.StatePath)
}

func TestFormatSummary(t *testing.T) {
	got := FormatSummary(&Summary{Candidates: 5, Extracted: 3, Changed: 1, Skipped: 1, Failed: 1, DryRun: true})

	for _, want := range []string{"Candidates: 5", "Extracted: 3 (type changed: 1)", "Skipped (already done): 1", "Failed: 1", "DRY RUN"} {
		assert.Contains(t, got, want)
	}
}
