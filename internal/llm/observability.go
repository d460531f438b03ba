package llm

import "log/slog"

// CallEvent records metadata about a single structured LLM invocation.
type CallEvent struct {
	Stage     string
	Model     string
	Attempts  int
	LatencyMs int64
	Success   bool
	Error     string
}

// Observer receives events about LLM calls for logging and metrics.
type Observer interface {
	OnCallComplete(event CallEvent)
}

// LogObserver writes call events to a structured logger.
type LogObserver struct {
	logger *slog.Logger
}

func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) OnCallComplete(e CallEvent) {
	if e.Success {
		o.logger.Info("llm call complete",
			"stage", e.Stage,
			"model", e.Model,
			"attempts", e.Attempts,
			"latency_ms", e.LatencyMs,
		)
		return
	}
	o.logger.Error("llm call failed",
		"stage", e.Stage,
		"model", e.Model,
		"attempts", e.Attempts,
		"latency_ms", e.LatencyMs,
		"error", e.Error,
	)
}

// NoopObserver discards all events. Useful for tests.
type NoopObserver struct{}

func (NoopObserver) OnCallComplete(CallEvent) {}
