package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/reapbenefit/cmp-backend/internal/anthropic"
)

// Completer is the transport used for model calls. *anthropic.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, r anthropic.Request) (string, error)
	Stream(ctx context.Context, r anthropic.Request, onDelta func(string)) (string, error)
}

// Call describes one structured invocation.
type Call struct {
	Stage    string
	System   string
	Format   string
	Messages []anthropic.Message
}

// Delta is one chunk of streamed model text. Attempt starts at 1. A delta
// with a higher Attempt than the previous one means the text streamed so far
// belonged to a discarded reply and the output starts over.
type Delta struct {
	Attempt int
	Text    string
}

type Options struct {
	Model           string
	MaxTokens       int
	MaxTries        int
	InitialInterval time.Duration
	Observer        Observer
	Logger          *slog.Logger
}

// Invoker runs structured calls with a bounded exponential backoff.
type Invoker struct {
	completer Completer
	opts      Options
}

func NewInvoker(c Completer, opts Options) *Invoker {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8096
	}
	if opts.MaxTries < 1 {
		opts.MaxTries = 5
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = time.Second
	}
	if opts.Observer == nil {
		opts.Observer = NoopObserver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Invoker{completer: c, opts: opts}
}

// Invoke sends call to the model and decodes the reply into T.
// Transient transport failures and invalid output are retried; the last
// error is wrapped with ErrRetryExhausted once tries run out.
func Invoke[T any](ctx context.Context, inv *Invoker, call Call, validate Validator[T]) (T, error) {
	return run(ctx, inv, call, validate, nil)
}

// InvokeStream behaves like Invoke but forwards raw text deltas as they
// arrive, tagged with the attempt that produced them.
func InvokeStream[T any](ctx context.Context, inv *Invoker, call Call, validate Validator[T], onDelta func(Delta)) (T, error) {
	if onDelta == nil {
		onDelta = func(Delta) {}
	}
	return run(ctx, inv, call, validate, onDelta)
}

func run[T any](ctx context.Context, inv *Invoker, call Call, validate Validator[T], onDelta func(Delta)) (T, error) {
	start := time.Now()
	zero := 0.0
	req := anthropic.Request{
		System:      buildSystem(call),
		Messages:    normalize(call.Messages),
		MaxTokens:   inv.opts.MaxTokens,
		Temperature: &zero,
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = inv.opts.InitialInterval
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(inv.opts.MaxTries-1)), ctx)

	var (
		result    T
		attempts  int
		permanent bool
	)
	op := func() error {
		attempts++
		attempt := attempts
		var raw string
		var err error
		if onDelta != nil {
			raw, err = inv.completer.Stream(ctx, req, func(text string) {
				onDelta(Delta{Attempt: attempt, Text: text})
			})
		} else {
			raw, err = inv.completer.Complete(ctx, req)
		}
		if err != nil {
			var statusErr *anthropic.StatusError
			if errors.As(err, &statusErr) && !statusErr.Temporary() {
				permanent = true
				return backoff.Permanent(err)
			}
			return err
		}
		v, err := ExtractJSON(raw, validate)
		if err != nil {
			return err
		}
		result = v
		return nil
	}
	notify := func(err error, wait time.Duration) {
		inv.opts.Logger.Warn("llm call failed, retrying",
			"stage", call.Stage,
			"attempt", attempts,
			"wait", wait,
			"error", err,
		)
	}

	err := backoff.RetryNotify(op, policy, notify)

	event := CallEvent{
		Stage:     call.Stage,
		Model:     inv.opts.Model,
		Attempts:  attempts,
		LatencyMs: time.Since(start).Milliseconds(),
		Success:   err == nil,
	}
	if err != nil {
		event.Error = err.Error()
	}
	inv.opts.Observer.OnCallComplete(event)

	if err == nil {
		return result, nil
	}
	var empty T
	if ctx.Err() != nil {
		return empty, fmt.Errorf("%s: %w", call.Stage, ctx.Err())
	}
	if permanent {
		return empty, fmt.Errorf("%s: %w", call.Stage, err)
	}
	return empty, fmt.Errorf("%s: %w after %d attempts: %w", call.Stage, ErrRetryExhausted, attempts, err)
}

func buildSystem(call Call) string {
	if call.Format == "" {
		return call.System
	}
	return call.System + "\n\n### Output format\n\n" +
		"Reply with a single JSON object and nothing else. It must match this shape:\n\n" +
		call.Format
}

// normalize merges consecutive turns with the same role and fills empty
// content, since the Messages API rejects empty text blocks.
func normalize(in []anthropic.Message) []anthropic.Message {
	out := make([]anthropic.Message, 0, len(in))
	for _, m := range in {
		if n := len(out); n > 0 && out[n-1].Role == m.Role {
			out[n-1].Content = joinNonEmpty(out[n-1].Content, m.Content)
			continue
		}
		out = append(out, m)
	}
	for i := range out {
		if strings.TrimSpace(out[i].Content) == "" {
			out[i].Content = "(no message)"
		}
	}
	return out
}

func joinNonEmpty(a, b string) string {
	switch {
	case strings.TrimSpace(a) == "":
		return b
	case strings.TrimSpace(b) == "":
		return a
	default:
		return a + "\n" + b
	}
}
