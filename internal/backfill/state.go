package backfill

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const defaultStatePath = "./data/backfill-state.json"

// State tracks progress for resumable backfill runs.
type State struct {
	StartedAt       time.Time `json:"started_at"`
	LastProcessedAt time.Time `json:"last_processed_at"`
	Processed       []string  `json:"processed"`
	Extracted       int       `json:"extracted"`
	Changed         int       `json:"changed"`
	Errors          []string  `json:"errors"`

	path string
	seen map[string]bool
}

// LoadState loads the state file at path, or starts a new one.
func LoadState(path string) (*State, error) {
	if path == "" {
		path = defaultStatePath
	}
	p := expandHome(path)

	data, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return &State{StartedAt: time.Now().UTC(), path: p}, nil
		}
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s State
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.path = p
	return &s, nil
}

// Path is where Save writes.
func (s *State) Path() string { return s.path }

// Save persists the state to disk.
func (s *State) Save() error {
	s.LastProcessedAt = time.Now().UTC()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	return os.WriteFile(s.path, data, 0o644)
}

// IsProcessed reports whether the action was handled by an earlier run.
func (s *State) IsProcessed(actionUUID string) bool {
	if s.seen == nil {
		s.seen = make(map[string]bool, len(s.Processed))
		for _, id := range s.Processed {
			s.seen[id] = true
		}
	}
	return s.seen[actionUUID]
}

// MarkProcessed records an action as done.
func (s *State) MarkProcessed(actionUUID string) {
	if s.IsProcessed(actionUUID) {
		return
	}
	s.seen[actionUUID] = true
	s.Processed = append(s.Processed, actionUUID)
}

// AddError records a processing error.
func (s *State) AddError(msg string) {
	s.Errors = append(s.Errors, msg)
}

func expandHome(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
