// Package dialogue decides the next coach turn of a reflection chat.
//
// Phases live in instruction text. The driver holds no state between calls:
// every call replays the transcript and the model decides when the
// conversation is done.
package dialogue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/reapbenefit/cmp-backend/internal/anthropic"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

// Config is one dialogue variant. Caps are enforced through Instructions only.
type Config struct {
	Name         string
	Instructions string
	SoftCap      int
	HardCap      int
}

// Basic is the short triage chat: what, why and how, at most three questions.
func Basic() Config {
	const limit = 3
	return Config{
		Name:         "basic",
		Instructions: fmt.Sprintf(basicTemplate, limit, limit),
		SoftCap:      limit,
		HardCap:      limit,
	}
}

// Detail is the four-phase reflective chat.
func Detail() Config {
	const (
		low     = 5
		high    = 7
		ceiling = 10
	)
	return Config{
		Name:         "detail",
		Instructions: fmt.Sprintf(detailTemplate, low, high, ceiling, ceiling),
		SoftCap:      high,
		HardCap:      ceiling,
	}
}

// TurnResult is the model's decision for one turn.
type TurnResult struct {
	ChainOfThought string `json:"chain_of_thought"`
	Response       string `json:"response"`
	IsDone         bool   `json:"is_done"`
}

func validateTurn(r TurnResult) error {
	if strings.TrimSpace(r.Response) == "" {
		return errors.New("response is empty")
	}
	return nil
}

type Driver struct {
	cfg Config
	inv *llm.Invoker
}

func NewDriver(cfg Config, inv *llm.Invoker) *Driver {
	return &Driver{cfg: cfg, inv: inv}
}

func (d *Driver) Config() Config { return d.cfg }

// Advance asks the model for the reply to userMsg given the prior history.
// Nothing is persisted here; appending the turn is up to the caller.
func (d *Driver) Advance(ctx context.Context, history []transcript.Message, userMsg string) (TurnResult, error) {
	res, err := llm.Invoke(ctx, d.inv, d.call(history, userMsg), validateTurn)
	if err != nil {
		return TurnResult{}, fmt.Errorf("%s dialogue turn: %w", d.cfg.Name, err)
	}
	return res, nil
}

// AdvanceStream is Advance with raw model text forwarded to onDelta as it
// arrives. A retried reply restarts with a higher Delta.Attempt.
func (d *Driver) AdvanceStream(ctx context.Context, history []transcript.Message, userMsg string, onDelta func(llm.Delta)) (TurnResult, error) {
	res, err := llm.InvokeStream(ctx, d.inv, d.call(history, userMsg), validateTurn, onDelta)
	if err != nil {
		return TurnResult{}, fmt.Errorf("%s dialogue turn: %w", d.cfg.Name, err)
	}
	return res, nil
}

func (d *Driver) call(history []transcript.Message, userMsg string) llm.Call {
	msgs := make([]anthropic.Message, 0, len(history)+1)
	for _, m := range history {
		if m.Role == transcript.RoleAnalysis {
			continue
		}
		msgs = append(msgs, anthropic.Message{Role: string(m.Role), Content: m.Content})
	}
	msgs = append(msgs, anthropic.Message{Role: string(transcript.RoleUser), Content: userMsg})
	return llm.Call{
		Stage:    d.cfg.Name,
		System:   d.cfg.Instructions,
		Format:   turnFormat,
		Messages: msgs,
	}
}
