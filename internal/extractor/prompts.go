package extractor

import (
	"fmt"
	"strings"

	"github.com/reapbenefit/cmp-backend/internal/taxonomy"
)

const classifyTemplate = `Extract the action title, description, type, subtype, category and subcategory from the conversation history of a young person describing an action they took to solve a local civic problem.

# Steps

1. **Review the conversation.** Read it thoroughly to understand what the young person did.
2. **Identify the action type.** Pick exactly one value from the action type list. Focus on the verbs and phrases that describe the activity.
3. **Identify the subtype.** Write a short free-text label that narrows the type down, for example "Wall painting" or "Poster campaign".
4. **Identify the category.** Pick exactly one value from the category list, based on the topic or area the action addressed.
5. **Identify the subcategory.** Pick exactly one value from the subcategory list. Use "Other" when nothing fits.
6. **Write the title and description.** The title is under 5 words. The description is under 50 words and says what the young person did.

Values from the lists must be copied exactly, including case and spacing.

## Action types
%s

## Categories
%s

## Subcategories
%s`

const classifyFormat = `{
  "action_title": "string, under 5 words",
  "action_description": "string, under 50 words",
  "action_type": "string, one value from the action type list",
  "action_subtype": "string, short free text",
  "action_category": "string, one value from the category list",
  "action_subcategory": "string, one value from the subcategory list"
}`

const relevanceSystem = `Analyze a student's action and the conversation about it. For each listed skill, write two one-line descriptions of how the skill shows up in that action:

* relevance: for a person viewing the student's action. Do not begin with "The student" or "The action", describe the skill directly.
* response: addressed to the student.

Connect each description to a specific part of the conversation. Consider tone, clarity and depth as well as content.

Return exactly one entry per listed skill. The skill field must be the skill name exactly as listed, never the label.

# Examples (shortened; real descriptions should cite the conversation)

- problem_solving: Looking for an alternative spot when the first was blocked shows proactive problem solving.
- communication: Explaining the plan to neighbours before starting shows clear communication.`

const relevanceFormat = `{
  "skill_relevances": [
    {"skill": "string, a listed skill name", "relevance": "string", "response": "string"}
  ]
}`

func classifySystem() string {
	return fmt.Sprintf(classifyTemplate,
		bullets(taxonomy.Strings(taxonomy.AllActionTypes())),
		bullets(taxonomy.Strings(taxonomy.AllActionCategories())),
		bullets(taxonomy.Strings(taxonomy.AllActionSubCategories())),
	)
}

func relevanceUserPrompt(conversation string, skills []SkillRelevance) string {
	lines := make([]string, len(skills))
	for i, s := range skills {
		lines[i] = fmt.Sprintf("- %s (%s)", s.Name, s.Label)
	}
	return fmt.Sprintf("Conversation history:\n```\n%s\n```\n\nSkills:\n%s", conversation, strings.Join(lines, "\n"))
}

func bullets(values []string) string {
	return "- " + strings.Join(values, "\n- ")
}
