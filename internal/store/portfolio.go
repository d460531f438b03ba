package store

import (
	"context"
	"fmt"

	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

// Portfolio assembles a user's public profile: communities, published
// actions with their skills and chat, and per-skill history across actions.
func (s *Store) Portfolio(ctx context.Context, username string) (*Portfolio, error) {
	u, err := s.UserByUsername(ctx, username)
	if err != nil {
		return nil, err
	}

	communities, err := communitiesFor(ctx, s.db, u.ID)
	if err != nil {
		return nil, err
	}

	actions, err := s.publishedActions(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	p := &Portfolio{
		User:        *u,
		Communities: communities,
		Actions:     make([]PortfolioAction, 0, len(actions)),
		Skills:      []SkillHistory{},
	}
	historyIdx := map[int64]int{}

	for _, a := range actions {
		skills, err := actionSkills(ctx, s.db, a.ID)
		if err != nil {
			return nil, err
		}
		turns, err := chatHistory(ctx, s.db, a.ID)
		if err != nil {
			return nil, err
		}

		for _, sk := range skills {
			i, ok := historyIdx[sk.ID]
			if !ok {
				i = len(p.Skills)
				historyIdx[sk.ID] = i
				p.Skills = append(p.Skills, SkillHistory{Skill: sk.Skill, History: []SkillEvent{}})
			}
			p.Skills[i].History = append(p.Skills[i].History, SkillEvent{ActionTitle: a.Title, Summary: sk.Summary})
		}

		p.Actions = append(p.Actions, PortfolioAction{
			Action:      a,
			Skills:      skills,
			ChatHistory: conversational(turns),
		})
	}
	return p, nil
}

func (s *Store) publishedActions(ctx context.Context, userID int64) ([]Action, error) {
	rs, err := s.db.query(ctx, `
		SELECT `+actionColumns+`
		FROM actions a JOIN users u ON u.id = a.user_id
		WHERE a.user_id = ? AND a.status = ?
		ORDER BY a.created_at DESC, a.id DESC`, userID, StatusPublished)
	if err != nil {
		return nil, fmt.Errorf("list published actions: %w", err)
	}
	defer rs.Close()

	var out []Action
	for rs.Next() {
		a, err := scanAction(rs)
		if err != nil {
			return nil, fmt.Errorf("scan action: %w", err)
		}
		out = append(out, *a)
	}
	return out, rs.Err()
}

// conversational keeps only user and assistant turns.
func conversational(turns []transcript.Turn) []transcript.Turn {
	out := make([]transcript.Turn, 0, len(turns))
	for _, t := range turns {
		if t.Role == transcript.RoleUser || t.Role == transcript.RoleAssistant {
			out = append(out, t)
		}
	}
	return out
}
