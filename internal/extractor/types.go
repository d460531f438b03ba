package extractor

import "github.com/reapbenefit/cmp-backend/internal/taxonomy"

// Classification is the first extraction call's output.
type Classification struct {
	Title       string                     `json:"action_title"`
	Description string                     `json:"action_description"`
	Type        taxonomy.ActionType        `json:"action_type"`
	SubType     taxonomy.ActionSubType     `json:"action_subtype"`
	Category    taxonomy.ActionCategory    `json:"action_category"`
	SubCategory taxonomy.ActionSubCategory `json:"action_subcategory"`
}

// SkillRelevance is one resolved skill with its two narratives.
// Relevance is written for a reviewer, Response for the student.
type SkillRelevance struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Label     string `json:"label"`
	Relevance string `json:"relevance"`
	Response  string `json:"response"`
}

// Metadata is the full extraction result for one action.
type Metadata struct {
	Title       string                     `json:"action_title"`
	Description string                     `json:"action_description"`
	Type        taxonomy.ActionType        `json:"action_type"`
	SubType     taxonomy.ActionSubType     `json:"action_subtype"`
	Category    taxonomy.ActionCategory    `json:"action_category"`
	SubCategory taxonomy.ActionSubCategory `json:"action_subcategory"`
	Skills      []SkillRelevance           `json:"skills"`
}

// relevanceItem is one entry of the second call's output.
type relevanceItem struct {
	Skill     string `json:"skill"`
	Relevance string `json:"relevance"`
	Response  string `json:"response"`
}

type relevanceOutput struct {
	SkillRelevances []relevanceItem `json:"skill_relevances"`
}
