// Package extractor turns a finished reflection chat into action metadata.
package extractor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/reapbenefit/cmp-backend/internal/anthropic"
	"github.com/reapbenefit/cmp-backend/internal/llm"
	"github.com/reapbenefit/cmp-backend/internal/store"
	"github.com/reapbenefit/cmp-backend/internal/taxonomy"
	"github.com/reapbenefit/cmp-backend/internal/transcript"
)

// ErrUnknownSkill means the relevance call named a skill that was not offered.
var ErrUnknownSkill = errors.New("skill relevance names an unknown skill")

// SkillResolver looks up display data for skill names.
type SkillResolver interface {
	SkillsByNames(ctx context.Context, names []string) ([]store.Skill, error)
}

type Extractor struct {
	inv    *llm.Invoker
	skills SkillResolver
	logger *slog.Logger
}

func New(inv *llm.Invoker, skills SkillResolver, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{inv: inv, skills: skills, logger: logger}
}

// Extract classifies the action described in turns and attaches per-skill
// narratives. It always recomputes from scratch; nothing is persisted.
func (e *Extractor) Extract(ctx context.Context, turns []transcript.Turn) (*Metadata, error) {
	conversation := transcript.Flatten(transcript.WithoutAnalysis(turns))

	cls, err := llm.Invoke(ctx, e.inv, llm.Call{
		Stage:    "action_metadata",
		System:   classifySystem(),
		Format:   classifyFormat,
		Messages: []anthropic.Message{{Role: "user", Content: conversation}},
	}, validateClassification)
	if err != nil {
		return nil, fmt.Errorf("classify action: %w", err)
	}

	skills, err := e.resolveSkills(ctx, cls.Type)
	if err != nil {
		return nil, err
	}

	if len(skills) > 0 {
		if err := e.describeSkills(ctx, conversation, skills); err != nil {
			return nil, err
		}
	}

	e.logger.Info("extraction complete",
		"type", cls.Type,
		"category", cls.Category,
		"skills", len(skills),
	)

	return &Metadata{
		Title:       strings.TrimSpace(cls.Title),
		Description: strings.TrimSpace(cls.Description),
		Type:        cls.Type,
		SubType:     taxonomy.ActionSubType(strings.TrimSpace(string(cls.SubType))),
		Category:    cls.Category,
		SubCategory: cls.SubCategory,
		Skills:      skills,
	}, nil
}

// resolveSkills returns the candidate skills for t in taxonomy order.
func (e *Extractor) resolveSkills(ctx context.Context, t taxonomy.ActionType) ([]SkillRelevance, error) {
	ids := taxonomy.SkillsFor(t)
	if len(ids) == 0 {
		e.logger.Warn("action type maps to no skills", "type", t)
		return []SkillRelevance{}, nil
	}

	rows, err := e.skills.SkillsByNames(ctx, taxonomy.SkillNames(ids))
	if err != nil {
		return nil, fmt.Errorf("resolve skills: %w", err)
	}
	byName := make(map[string]store.Skill, len(rows))
	for _, r := range rows {
		byName[r.Name] = r
	}

	out := make([]SkillRelevance, 0, len(ids))
	for _, id := range ids {
		r, ok := byName[string(id)]
		if !ok {
			e.logger.Warn("skill not seeded", "skill", id)
			continue
		}
		out = append(out, SkillRelevance{ID: r.ID, Name: r.Name, Label: r.Label})
	}
	return out, nil
}

// describeSkills fills Relevance and Response in place.
func (e *Extractor) describeSkills(ctx context.Context, conversation string, skills []SkillRelevance) error {
	out, err := llm.Invoke(ctx, e.inv, llm.Call{
		Stage:    "skill_relevance",
		System:   relevanceSystem,
		Format:   relevanceFormat,
		Messages: []anthropic.Message{{Role: "user", Content: relevanceUserPrompt(conversation, skills)}},
	}, coversSkills(skills))
	if err != nil {
		return fmt.Errorf("describe skills: %w", err)
	}

	index := make(map[string]int, len(skills))
	for i, s := range skills {
		index[s.Name] = i
	}
	for _, item := range out.SkillRelevances {
		i, ok := index[strings.TrimSpace(item.Skill)]
		if !ok {
			return fmt.Errorf("%w: %q", ErrUnknownSkill, item.Skill)
		}
		skills[i].Relevance = strings.TrimSpace(item.Relevance)
		skills[i].Response = strings.TrimSpace(item.Response)
	}
	return nil
}

func validateClassification(c Classification) error {
	var problems []string
	if strings.TrimSpace(c.Title) == "" {
		problems = append(problems, "action_title is empty")
	}
	if !c.Type.Valid() {
		problems = append(problems, fmt.Sprintf("action_type %q is not in the list", c.Type))
	}
	if !c.SubType.Valid() {
		problems = append(problems, "action_subtype is empty")
	}
	if !c.Category.Valid() {
		problems = append(problems, fmt.Sprintf("action_category %q is not in the list", c.Category))
	}
	if !c.SubCategory.Valid() {
		problems = append(problems, fmt.Sprintf("action_subcategory %q is not in the list", c.SubCategory))
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

// coversSkills requires a non-empty narrative pair for every candidate.
// Names outside the candidates pass here and are rejected after the call.
func coversSkills(skills []SkillRelevance) llm.Validator[relevanceOutput] {
	return func(out relevanceOutput) error {
		got := make(map[string]bool, len(out.SkillRelevances))
		for _, item := range out.SkillRelevances {
			if strings.TrimSpace(item.Relevance) == "" || strings.TrimSpace(item.Response) == "" {
				return fmt.Errorf("skill %q has an empty description", item.Skill)
			}
			got[strings.TrimSpace(item.Skill)] = true
		}
		for _, s := range skills {
			if !got[s.Name] {
				return fmt.Errorf("skill %q is missing", s.Name)
			}
		}
		return nil
	}
}
