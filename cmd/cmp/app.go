package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/reapbenefit/cmp-backend/internal/anthropic"
	"github.com/reapbenefit/cmp-backend/internal/api"
	"github.com/reapbenefit/cmp-backend/internal/cache"
	"github.com/reapbenefit/cmp-backend/internal/cms"
	"github.com/reapbenefit/cmp-backend/internal/config"
	"github.com/reapbenefit/cmp-backend/internal/dialogue"
	"github.com/reapbenefit/cmp-backend/internal/extractor"
	"github.com/reapbenefit/cmp-backend/internal/hermes"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/processor"
	"github.com/reapbenefit/cmp-backend/internal/slack"
	"github.com/reapbenefit/cmp-backend/internal/store"
	"github.com/reapbenefit/cmp-backend/internal/taxonomy"
)

// app is the wired service graph shared by serve, extract and backfill.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.Store
	proc      *processor.Processor
	directory api.Directory
	cache     cache.PortfolioCache
	hermes    *hermes.Client
	slack     *slack.Poster
	subjects  hermes.Subjects
	closers   []func()
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	st, err := store.Open(ctx, store.Options{
		DatabaseURL: cfg.DatabaseURL,
		SQLitePath:  cfg.SQLitePath,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newApp(ctx context.Context, cfg config.Config, logger *slog.Logger) (*app, error) {
	if cfg.AnthropicAPIKey == "" {
		return nil, errNoAPIKey
	}

	a := &app{cfg: cfg, logger: logger, subjects: hermes.NewSubjects(cfg.Env)}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	client := anthropic.NewClient(cfg.AnthropicAPIKey, cfg.Model)
	inv := llm.NewInvoker(client, llm.Options{
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
		MaxTries:  cfg.LLMMaxTries,
		Observer:  llm.NewLogObserver(logger),
		Logger:    logger,
	})
	logger.Info("anthropic client ready", "model", cfg.Model)

	// Left nil when the CMS is off so the interfaces compare equal to nil.
	var remote processor.CMS
	if cfg.CMSEnabled() {
		c := cms.NewClient(cfg.FrappeBaseURL, cfg.FrappeClientID, cfg.FrappeClientSecret, logger)
		remote = c
		a.directory = c
		logger.Info("cms sync enabled", "base_url", cfg.FrappeBaseURL)
	} else {
		logger.Warn("FRAPPE_BASE_URL not set, running without cms sync")
	}

	var reviewer processor.Reviewer
	if cfg.SlackEnabled() {
		a.slack = slack.NewPoster(cfg.SlackBotToken, cfg.SlackChannel, logger)
		reviewer = a.slack
		logger.Info("slack review feed enabled", "channel", cfg.SlackChannel)
	}

	a.cache = cache.Noop{}
	if cfg.RedisURL != "" {
		rc, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() { rc.Close() })
		a.cache = cache.NewPortfolioCache(rc, cfg.PortfolioCacheTTL)
		logger.Info("portfolio cache ready", "ttl", cfg.PortfolioCacheTTL)
	}

	var bus hermes.Publisher = hermes.Discard{}
	if cfg.NatsURL != "" {
		hc, err := hermes.NewClient(ctx, cfg.NatsURL, cfg.NatsToken, logger)
		if err != nil {
			return nil, err
		}
		a.hermes = hc
		a.closers = append(a.closers, func() {
			if err := hc.Drain(); err != nil {
				logger.Warn("nats drain failed", "error", err)
				hc.Close()
			}
		})
		bus = hc
		logger.Info("NATS connected", "url", cfg.NatsURL)
	}

	a.proc = processor.New(processor.Deps{
		Store:       st,
		Basic:       dialogue.NewDriver(dialogue.Basic(), inv),
		Detail:      dialogue.NewDriver(dialogue.Detail(), inv),
		Extractor:   extractor.New(inv, st, logger),
		CMS:         remote,
		Cache:       a.cache,
		Bus:         bus,
		Subjects:    a.subjects,
		Logger:      logger,
		Reviewer:    reviewer,
		AutoExtract: cfg.AutoExtract,
	})

	ok = true
	return a, nil
}

// ensureSkills seeds the taxonomy when the skills table is empty.
func (a *app) ensureSkills(ctx context.Context) error {
	has, err := a.store.HasSkills(ctx)
	if err != nil {
		return err
	}
	if has {
		return nil
	}
	if err := a.store.SeedSkills(ctx, taxonomy.Seed()); err != nil {
		return err
	}
	a.logger.Info("skills seeded", "count", len(taxonomy.Seed()))
	return nil
}

// subscribe wires bus handlers. Without NATS there is nothing to do.
func (a *app) subscribe() error {
	if a.hermes == nil {
		return nil
	}
	if err := a.hermes.Subscribe(a.subjects.ChatDone, a.proc.HandleChatDone); err != nil {
		return fmt.Errorf("subscribe to %s: %w", a.subjects.ChatDone, err)
	}
	if a.cfg.AutoExtract {
		a.logger.Info("auto extraction enabled", "subject", a.subjects.ChatDone)
	}
	return nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
