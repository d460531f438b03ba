package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

const actionColumns = `a.id, a.uuid, a.user_id, u.email, a.title, a.description, a.status,
	a.is_verified, a.is_pinned, a.category, a.subcategory, a.type, a.subtype, a.created_at`

func scanAction(r row) (*Action, error) {
	var (
		a         Action
		createdAt int64
	)
	err := r.Scan(&a.ID, &a.UUID, &a.UserID, &a.UserEmail, &a.Title, &a.Description, &a.Status,
		&a.IsVerified, &a.IsPinned, &a.Category, &a.SubCategory, &a.Type, &a.SubType, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	a.CreatedAt = time.Unix(createdAt, 0).UTC()
	return &a, nil
}

func actionByUUID(ctx context.Context, q querier, actionUUID string) (*Action, error) {
	return scanAction(q.queryRow(ctx, `
		SELECT `+actionColumns+`
		FROM actions a JOIN users u ON u.id = a.user_id
		WHERE a.uuid = ?`, actionUUID))
}

// CreateAction starts a draft action with the student's first message as
// its opening basic-mode turn.
func (s *Store) CreateAction(ctx context.Context, userID int64, title, firstMessage string) (*Action, error) {
	actionUUID := uuid.NewString()
	now := time.Now().Unix()

	err := s.db.inTx(ctx, func(q querier) error {
		var id int64
		err := q.queryRow(ctx, `
			INSERT INTO actions (uuid, user_id, title, status, created_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING id`,
			actionUUID, userID, title, StatusDraft, now,
		).Scan(&id)
		if err != nil {
			return fmt.Errorf("insert action: %w", err)
		}
		err = q.exec(ctx, `
			INSERT INTO chat_history (action_id, role, content, response_type, mode, created_at)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, string(transcript.RoleUser), firstMessage, "text", string(transcript.ModeBasic), now,
		)
		if err != nil {
			return fmt.Errorf("insert first turn: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create action: %w", err)
	}
	return s.ActionByUUID(ctx, actionUUID)
}

func (s *Store) ActionByUUID(ctx context.Context, actionUUID string) (*Action, error) {
	a, err := actionByUUID(ctx, s.db, actionUUID)
	if err != nil {
		return nil, fmt.Errorf("action %s: %w", actionUUID, err)
	}
	return a, nil
}

// UpdateActionMetadata overwrites the action's metadata and replaces its
// skills in one transaction.
func (s *Store) UpdateActionMetadata(ctx context.Context, actionUUID string, upd ActionUpdate) (*Action, error) {
	err := s.db.inTx(ctx, func(q querier) error {
		var id int64
		if err := q.queryRow(ctx, `SELECT id FROM actions WHERE uuid = ?`, actionUUID).Scan(&id); err != nil {
			if isNoRows(err) {
				return ErrNotFound
			}
			return fmt.Errorf("find action: %w", err)
		}

		err := q.exec(ctx, `
			UPDATE actions
			SET title = ?, description = ?, status = ?, category = ?, subcategory = ?, type = ?, subtype = ?
			WHERE id = ?`,
			upd.Title, upd.Description, upd.Status, upd.Category, upd.SubCategory, upd.Type, upd.SubType, id,
		)
		if err != nil {
			return fmt.Errorf("update action: %w", err)
		}

		if err := q.exec(ctx, `DELETE FROM action_skills WHERE action_id = ?`, id); err != nil {
			return fmt.Errorf("clear skills: %w", err)
		}
		for _, sk := range upd.Skills {
			err := q.exec(ctx, `INSERT INTO action_skills (action_id, skill_id, summary) VALUES (?, ?, ?)`,
				id, sk.SkillID, sk.Summary)
			if err != nil {
				return fmt.Errorf("insert skill %d: %w", sk.SkillID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update metadata for %s: %w", actionUUID, err)
	}
	return s.ActionByUUID(ctx, actionUUID)
}

// ActionSkills lists the skills attributed to an action, by skill name.
func (s *Store) ActionSkills(ctx context.Context, actionID int64) ([]ActionSkill, error) {
	return actionSkills(ctx, s.db, actionID)
}

func actionSkills(ctx context.Context, q querier, actionID int64) ([]ActionSkill, error) {
	rs, err := q.query(ctx, `
		SELECT s.id, s.name, s.label, acs.summary
		FROM action_skills acs
		JOIN skills s ON s.id = acs.skill_id
		WHERE acs.action_id = ?
		ORDER BY s.name ASC`, actionID)
	if err != nil {
		return nil, fmt.Errorf("list action skills: %w", err)
	}
	defer rs.Close()

	out := []ActionSkill{}
	for rs.Next() {
		var sk ActionSkill
		if err := rs.Scan(&sk.ID, &sk.Name, &sk.Label, &sk.Summary); err != nil {
			return nil, fmt.Errorf("scan action skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rs.Err()
}

// ChatSessionsForUser lists actions that have chat, most recent first.
func (s *Store) ChatSessionsForUser(ctx context.Context, userID int64) ([]ChatSession, error) {
	rs, err := s.db.query(ctx, `
		SELECT a.uuid, a.title, MAX(c.created_at) AS last_message_time
		FROM actions a
		JOIN chat_history c ON c.action_id = a.id
		WHERE a.user_id = ?
		GROUP BY a.id, a.uuid, a.title
		ORDER BY last_message_time DESC, a.id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list chat sessions: %w", err)
	}
	defer rs.Close()

	out := []ChatSession{}
	for rs.Next() {
		var (
			cs   ChatSession
			last int64
		)
		if err := rs.Scan(&cs.UUID, &cs.Title, &last); err != nil {
			return nil, fmt.Errorf("scan chat session: %w", err)
		}
		cs.LastMessageTime = time.Unix(last, 0).UTC()
		out = append(out, cs)
	}
	return out, rs.Err()
}

// ActionFilter narrows ListActions. Zero fields match everything.
type ActionFilter struct {
	Status       string
	Since        time.Time
	MinUserTurns int
}

// ListActions returns matching actions, oldest first.
func (s *Store) ListActions(ctx context.Context, f ActionFilter) ([]Action, error) {
	var (
		where []string
		args  []any
	)
	if f.Status != "" {
		where = append(where, "a.status = ?")
		args = append(args, f.Status)
	}
	if !f.Since.IsZero() {
		where = append(where, "a.created_at >= ?")
		args = append(args, f.Since.Unix())
	}
	if f.MinUserTurns > 0 {
		where = append(where, "(SELECT COUNT(*) FROM chat_history c WHERE c.action_id = a.id AND c.role = ?) >= ?")
		args = append(args, string(transcript.RoleUser), f.MinUserTurns)
	}

	query := `SELECT ` + actionColumns + ` FROM actions a JOIN users u ON u.id = a.user_id`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY a.created_at, a.id"

	rs, err := s.db.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list actions: %w", err)
	}
	defer rs.Close()

	out := []Action{}
	for rs.Next() {
		a, err := scanAction(rs)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, *a)
	}
	return out, rs.Err()
}
