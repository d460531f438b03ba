package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/reapbenefit/cmp-backend/internal/api"
	"github.com/reapbenefit/cmp-backend/internal/backfill"
	"github.com/reapbenefit/cmp-backend/internal/config"
	"github.com/reapbenefit/cmp-backend/internal/taxonomy"
)

func newRootCmd(cfg config.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "cmp",
		Short:         "Civic action reflection backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Validate()
		},
	}

	root.AddCommand(
		newServeCmd(cfg),
		newMigrateCmd(cfg),
		newSeedSkillsCmd(cfg),
		newExtractCmd(cfg),
		newBackfillCmd(cfg),
	)
	return root
}

func newServeCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			slog.Info("cmp starting", "port", cfg.Port, "env", cfg.Env)

			a, err := newApp(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ensureSkills(ctx); err != nil {
				return err
			}
			if err := a.subscribe(); err != nil {
				return err
			}

			srv := api.NewServer(cfg.Port, cfg.APIToken, api.Deps{
				Store:     a.store,
				Service:   a.proc,
				Directory: a.directory,
				Cache:     a.cache,
				Logger:    slog.Default(),
			})
			if cfg.APIToken == "" {
				slog.Warn("CMP_API_TOKEN not set, /ai routes are unauthenticated")
			}

			slog.Info("cmp ready", "port", cfg.Port)
			if err := srv.Start(ctx); err != nil {
				return fmt.Errorf("http server: %w", err)
			}
			slog.Info("cmp stopped")
			return nil
		},
	}
}

func newMigrateCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer st.Close()
			slog.Info("migrations applied")
			return nil
		},
	}
}

func newSeedSkillsCmd(cfg config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed-skills",
		Short: "Upsert the skill taxonomy",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := openStore(cmd.Context(), cfg, slog.Default())
			if err != nil {
				return err
			}
			defer st.Close()

			seed := taxonomy.Seed()
			if err := st.SeedSkills(cmd.Context(), seed); err != nil {
				return err
			}
			slog.Info("skills seeded", "count", len(seed))
			return nil
		},
	}
}

func newExtractCmd(cfg config.Config) *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "extract <action_uuid>",
		Short: "Run metadata extraction for one action",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ensureSkills(ctx); err != nil {
				return err
			}

			var out any
			if update {
				out, err = a.proc.UpdateMetadata(ctx, args[0])
			} else {
				out, err = a.proc.ExtractMetadata(ctx, args[0])
			}
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "Keep the current status and report whether the type changed")
	return cmd
}

func newBackfillCmd(cfg config.Config) *cobra.Command {
	var (
		bc    backfill.Config
		since string
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Re-run metadata extraction over stored actions",
		Long: `Re-run metadata extraction for every action matching the filters.
Progress is kept in a state file so an interrupted run resumes where it
stopped. Failed actions are retried on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if since != "" {
				t, err := time.Parse("2006-01-02", since)
				if err != nil {
					return fmt.Errorf("invalid --since date: %w", err)
				}
				bc.Since = t
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx, cfg, slog.Default())
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.ensureSkills(ctx); err != nil {
				return err
			}

			var summary backfill.Summarizer
			if a.slack != nil {
				summary = a.slack
			}

			sum, err := backfill.NewRunner(bc, a.store, a.proc, summary, slog.Default()).Run(ctx)
			if sum != nil {
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "\n=== Backfill Summary ===\n")
				fmt.Fprintf(out, "Candidates: %d\n", sum.Candidates)
				fmt.Fprintf(out, "Extracted: %d (type changed: %d)\n", sum.Extracted, sum.Changed)
				fmt.Fprintf(out, "Skipped: %d\n", sum.Skipped)
				fmt.Fprintf(out, "Failed: %d\n", sum.Failed)
				if sum.DryRun {
					fmt.Fprintf(out, "Mode: DRY RUN (no writes)\n")
				}
				fmt.Fprintf(out, "State file: %s\n", sum.StatePath)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&bc.Status, "status", "draft", "Only actions in this status")
	cmd.Flags().StringVar(&since, "since", "", "Only actions created on or after this date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&bc.MinUserTurns, "min-user-turns", 2, "Skip actions with fewer user messages")
	cmd.Flags().BoolVar(&bc.Update, "update", false, "Keep each action's status instead of publishing")
	cmd.Flags().BoolVar(&bc.DryRun, "dry-run", false, "List candidates without extracting")
	cmd.Flags().StringVar(&bc.StatePath, "state", "./data/backfill-state.json", "Path of the resume state file")
	cmd.Flags().IntVar(&bc.BatchSize, "batch-size", 20, "Pause after this many extractions")
	cmd.Flags().DurationVar(&bc.Pause, "pause", 30*time.Second, "Pause length between batches")
	return cmd
}

var errNoAPIKey = errors.New("ANTHROPIC_API_KEY is required")
