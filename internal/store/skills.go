package store

import (
	"context"
	"fmt"

	"github.com/reapbenefit/cmp-backend/internal/taxonomy"
)

// SeedSkills upserts the taxonomy skills by name. Safe to run repeatedly.
func (s *Store) SeedSkills(ctx context.Context, skills []taxonomy.Skill) error {
	return s.db.inTx(ctx, func(q querier) error {
		for _, sk := range skills {
			err := q.exec(ctx, `
				INSERT INTO skills (name, label) VALUES (?, ?)
				ON CONFLICT (name) DO UPDATE SET label = excluded.label`,
				string(sk.Name), sk.Label,
			)
			if err != nil {
				return fmt.Errorf("seed skill %s: %w", sk.Name, err)
			}
		}
		return nil
	})
}

func (s *Store) HasSkills(ctx context.Context) (bool, error) {
	var n int
	if err := s.db.queryRow(ctx, `SELECT COUNT(*) FROM skills`).Scan(&n); err != nil {
		return false, fmt.Errorf("count skills: %w", err)
	}
	return n > 0, nil
}

// SkillsByNames returns the stored skills whose names are in names.
// Unknown names are skipped.
func (s *Store) SkillsByNames(ctx context.Context, names []string) ([]Skill, error) {
	out := []Skill{}
	if len(names) == 0 {
		return out, nil
	}

	args := make([]any, len(names))
	for i, n := range names {
		args[i] = n
	}
	rs, err := s.db.query(ctx,
		`SELECT id, name, label FROM skills WHERE name IN (`+placeholders(len(names))+`) ORDER BY id`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("skills by names: %w", err)
	}
	defer rs.Close()

	for rs.Next() {
		var sk Skill
		if err := rs.Scan(&sk.ID, &sk.Name, &sk.Label); err != nil {
			return nil, fmt.Errorf("scan skill: %w", err)
		}
		out = append(out, sk)
	}
	return out, rs.Err()
}
