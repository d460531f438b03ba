package backfill

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/processor"
	"github.com/reapbenefit/cmp-backend/internal/store"
)

// Config holds the backfill command configuration.
type Config struct {
	Status       string    // only actions in this status (default: draft)
	Since        time.Time // only actions created at or after this time
	MinUserTurns int       // skip actions with fewer user turns (default: 2)
	Update       bool      // keep each action's status instead of publishing
	DryRun       bool
	StatePath    string
	BatchSize    int           // pause after this many extractions (default: 20)
	Pause        time.Duration // pause length between batches (default: 30s)
}

// Lister finds candidate actions.
type Lister interface {
	ListActions(ctx context.Context, f store.ActionFilter) ([]store.Action, error)
}

// Extractor runs one action through the metadata pipeline.
type Extractor interface {
	ExtractMetadata(ctx context.Context, actionUUID string) (*extractor.Metadata, error)
	UpdateMetadata(ctx context.Context, actionUUID string) (*processor.UpdatedMetadata, error)
}

// Summarizer receives the end-of-run report.
type Summarizer interface {
	PostSummary(ctx context.Context, text string) error
}

// Summary is the outcome of one run.
type Summary struct {
	Candidates int
	Skipped    int
	Extracted  int
	Changed    int
	Failed     int
	DryRun     bool
	StatePath  string
}

// Runner re-extracts metadata for stored actions, resuming from its state
// file. Actions that fail are retried on the next run.
type Runner struct {
	cfg     Config
	actions Lister
	ext     Extractor
	summary Summarizer
	logger  *slog.Logger
}

// NewRunner creates a backfill runner. summary may be nil.
func NewRunner(cfg Config, actions Lister, ext Extractor, summary Summarizer, logger *slog.Logger) *Runner {
	if cfg.Status == "" {
		cfg.Status = store.StatusDraft
	}
	if cfg.MinUserTurns == 0 {
		cfg.MinUserTurns = 2
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 20
	}
	if cfg.Pause == 0 {
		cfg.Pause = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cfg:     cfg,
		actions: actions,
		ext:     ext,
		summary: summary,
		logger:  logger,
	}
}

// Run executes the backfill.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	state, err := LoadState(r.cfg.StatePath)
	if err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}

	candidates, err := r.actions.ListActions(ctx, store.ActionFilter{
		Status:       r.cfg.Status,
		Since:        r.cfg.Since,
		MinUserTurns: r.cfg.MinUserTurns,
	})
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}

	sum := &Summary{Candidates: len(candidates), DryRun: r.cfg.DryRun, StatePath: state.Path()}
	r.logger.Info("backfill candidates found",
		"candidates", len(candidates),
		"status", r.cfg.Status,
		"update", r.cfg.Update,
		"dry_run", r.cfg.DryRun,
	)

	inBatch := 0
	for _, a := range candidates {
		select {
		case <-ctx.Done():
			r.logger.Info("backfill interrupted, saving state")
			_ = state.Save()
			r.postSummary(context.WithoutCancel(ctx), sum)
			return sum, ctx.Err()
		default:
		}

		if state.IsProcessed(a.UUID) {
			sum.Skipped++
			continue
		}
		if r.cfg.DryRun {
			r.logger.Info("would extract", "action_uuid", a.UUID, "title", a.Title, "created_at", a.CreatedAt)
			continue
		}

		changed, err := r.extractOne(ctx, a.UUID)
		if err != nil {
			r.logger.Error("extraction failed", "action_uuid", a.UUID, "error", err)
			state.AddError(fmt.Sprintf("extract %s: %v", a.UUID, err))
			sum.Failed++
			_ = state.Save()
			continue
		}

		sum.Extracted++
		state.Extracted++
		if changed {
			sum.Changed++
			state.Changed++
		}
		state.MarkProcessed(a.UUID)
		_ = state.Save()

		r.logger.Info("action processed", "action_uuid", a.UUID, "has_changed", changed)

		inBatch++
		if inBatch >= r.cfg.BatchSize {
			inBatch = 0
			r.logger.Info("batch complete, pausing", "extracted", sum.Extracted, "pause", r.cfg.Pause)
			select {
			case <-ctx.Done():
				_ = state.Save()
				r.postSummary(context.WithoutCancel(ctx), sum)
				return sum, ctx.Err()
			case <-time.After(r.cfg.Pause):
			}
		}
	}

	if !r.cfg.DryRun {
		if err := state.Save(); err != nil {
			return sum, fmt.Errorf("save state: %w", err)
		}
	}
	r.postSummary(ctx, sum)

	r.logger.Info("backfill complete",
		"candidates", sum.Candidates,
		"extracted", sum.Extracted,
		"changed", sum.Changed,
		"skipped", sum.Skipped,
		"failed", sum.Failed,
		"dry_run", sum.DryRun,
	)
	return sum, nil
}

func (r *Runner) extractOne(ctx context.Context, actionUUID string) (bool, error) {
	if r.cfg.Update {
		res, err := r.ext.UpdateMetadata(ctx, actionUUID)
		if err != nil {
			return false, err
		}
		return res.HasChanged, nil
	}
	if _, err := r.ext.ExtractMetadata(ctx, actionUUID); err != nil {
		return false, err
	}
	return false, nil
}

func (r *Runner) postSummary(ctx context.Context, sum *Summary) {
	if r.summary == nil || sum.DryRun {
		return
	}
	if err := r.summary.PostSummary(ctx, FormatSummary(sum)); err != nil {
		r.logger.Warn("failed to post backfill summary", "error", err)
	}
}

// FormatSummary renders a run report as Slack mrkdwn.
func FormatSummary(sum *Summary) string {
	var sb strings.Builder
	sb.WriteString("*Backfill Summary*\n")
	fmt.Fprintf(&sb, "Candidates: %d\n", sum.Candidates)
	fmt.Fprintf(&sb, "Extracted: %d (type changed: %d)\n", sum.Extracted, sum.Changed)
	fmt.Fprintf(&sb, "Skipped (already done): %d\n", sum.Skipped)
	fmt.Fprintf(&sb, "Failed: %d\n", sum.Failed)
	if sum.DryRun {
		sb.WriteString("Mode: DRY RUN (no writes)\n")
	}
	return sb.String()
}
