package store

import (
	"context"
	"fmt"
	"time"

	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

// AppendTurns adds turns to an action's transcript and returns the full
// transcript. Existing turns are never modified.
func (s *Store) AppendTurns(ctx context.Context, actionUUID string, turns []NewTurn) ([]transcript.Turn, error) {
	now := time.Now().Unix()
	err := s.db.inTx(ctx, func(q querier) error {
		var id int64
		if err := q.queryRow(ctx, `SELECT id FROM actions WHERE uuid = ?`, actionUUID).Scan(&id); err != nil {
			if isNoRows(err) {
				return ErrNotFound
			}
			return fmt.Errorf("find action: %w", err)
		}
		for _, t := range turns {
			responseType := t.ResponseType
			if responseType == "" {
				responseType = "text"
			}
			mode := t.Mode
			if mode == "" {
				mode = transcript.ModeBasic
			}
			err := q.exec(ctx, `
				INSERT INTO chat_history (action_id, role, content, response_type, mode, created_at)
				VALUES (?, ?, ?, ?, ?, ?)`,
				id, string(t.Role), t.Content, responseType, string(mode), now,
			)
			if err != nil {
				return fmt.Errorf("insert turn: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append turns to %s: %w", actionUUID, err)
	}
	return s.ChatHistory(ctx, actionUUID)
}

// ChatHistory returns an action's turns in creation order.
func (s *Store) ChatHistory(ctx context.Context, actionUUID string) ([]transcript.Turn, error) {
	var id int64
	if err := s.db.queryRow(ctx, `SELECT id FROM actions WHERE uuid = ?`, actionUUID).Scan(&id); err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("chat history for %s: %w", actionUUID, ErrNotFound)
		}
		return nil, fmt.Errorf("find action: %w", err)
	}
	return chatHistory(ctx, s.db, id)
}

func chatHistory(ctx context.Context, q querier, actionID int64) ([]transcript.Turn, error) {
	rs, err := q.query(ctx, `
		SELECT id, role, content, response_type, mode, created_at
		FROM chat_history
		WHERE action_id = ?
		ORDER BY created_at ASC, id ASC`, actionID)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	defer rs.Close()

	out := []transcript.Turn{}
	for rs.Next() {
		var (
			t          transcript.Turn
			role, mode string
			createdAt  int64
		)
		if err := rs.Scan(&t.ID, &role, &t.Content, &t.ResponseType, &mode, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.Role = transcript.Role(role)
		t.Mode = transcript.Mode(mode)
		t.CreatedAt = time.Unix(createdAt, 0).UTC()
		out = append(out, t)
	}
	return out, rs.Err()
}
