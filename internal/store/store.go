// Package store persists users, actions, chat turns and skills.
//
// One SQL implementation runs on Postgres (pgx) or SQLite (modernc).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/reapbenefit/cmp-backend/internal/taxonomy"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite"
)

var (
	// ErrNotFound is returned for an unknown action uuid, username, user id or email.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a unique username or email is already taken.
	ErrConflict = errors.New("already exists")
)

// Repository is everything the service layer needs from storage.
type Repository interface {
	UserByEmail(ctx context.Context, email string) (*User, error)
	UserByUsername(ctx context.Context, username string) (*User, error)
	UserByID(ctx context.Context, id int64) (*User, error)
	CreateUser(ctx context.Context, u NewUser) (*User, error)
	UpdateUserProfile(ctx context.Context, username string, p ProfileUpdate) error

	CreateCommunity(ctx context.Context, c NewCommunity) (*Community, error)
	CommunitiesForUser(ctx context.Context, userID int64) ([]Community, error)

	CreateAction(ctx context.Context, userID int64, title, firstMessage string) (*Action, error)
	ActionByUUID(ctx context.Context, actionUUID string) (*Action, error)
	UpdateActionMetadata(ctx context.Context, actionUUID string, u ActionUpdate) (*Action, error)
	ChatSessionsForUser(ctx context.Context, userID int64) ([]ChatSession, error)

	AppendTurns(ctx context.Context, actionUUID string, turns []NewTurn) ([]transcript.Turn, error)
	ChatHistory(ctx context.Context, actionUUID string) ([]transcript.Turn, error)

	SeedSkills(ctx context.Context, skills []taxonomy.Skill) error
	HasSkills(ctx context.Context) (bool, error)
	SkillsByNames(ctx context.Context, names []string) ([]Skill, error)

	Portfolio(ctx context.Context, username string) (*Portfolio, error)
}

var _ Repository = (*Store)(nil)

type Options struct {
	// DatabaseURL selects Postgres when set.
	DatabaseURL string
	// SQLitePath is used when DatabaseURL is empty. ":memory:" is allowed.
	SQLitePath string
	Logger     *slog.Logger
}

type Store struct {
	db     backend
	logger *slog.Logger
}

// Open connects to the configured database and applies migrations.
func Open(ctx context.Context, opts Options) (*Store, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var (
		db  backend
		err error
	)
	switch {
	case opts.DatabaseURL != "":
		db, err = newPGBackend(ctx, opts.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
	case opts.SQLitePath != "":
		db, err = openSQLite(ctx, opts.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
	default:
		return nil, errors.New("no database configured")
	}

	s := &Store{db: db, logger: logger}
	if err := s.Migrate(ctx); err != nil {
		db.close()
		return nil, err
	}
	logger.Info("store ready", "dialect", db.dialect())
	return s, nil
}

func openSQLite(ctx context.Context, path string) (*sqliteBackend, error) {
	memory := path == ":memory:"
	if !memory {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if memory {
		// Each connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return &sqliteBackend{sqlConn: sqlConn{q: db}, db: db}, nil
}

// Migrate creates any missing tables and indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for i, stmt := range migrations(s.db.dialect()) {
		if err := s.db.exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.ping(ctx)
}

func (s *Store) Close() {
	s.db.close()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate key")
}
