package taxonomy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSkillsFor_TechPrototype(t *testing.T) {
	got := SkillsFor(TypeTechPrototype)

	assert.Equal(t, []SkillID{SkillCriticalThinking, SkillGrit, SkillHandsOn, SkillEntrepreneurial}, got)
}

func TestSkillsFor_Examples(t *testing.T) {
	tests := []struct {
		typ  ActionType
		want []SkillID
	}{
		{TypeCrowdsourcedData, []SkillID{SkillCitizenship, SkillCommunication, SkillCommunityCollaboration, SkillDataOrientation, SkillEmpathy}},
		{TypeBusinessPlan, []SkillID{SkillCommunication, SkillCriticalThinking, SkillProblemSolving, SkillEntrepreneurial}},
		{TypeAudit, []SkillID{SkillDataOrientation}},
		{TypeMappingAssetOrIssueAlt, []SkillID{SkillCitizenship, SkillDataOrientation, SkillEmpathy}},
		{TypeMappingAssetOrIssue, []SkillID{}},
		{TypeInvestigationAudit, []SkillID{}},
		{TypeHandsOn, []SkillID{}},
	}
	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			assert.Equal(t, tt.want, SkillsFor(tt.typ))
		})
	}
}

func TestSkillsFor_Totality(t *testing.T) {
	known := map[SkillID]bool{}
	for _, s := range Seed() {
		known[s.Name] = true
	}

	for _, typ := range AllActionTypes() {
		got := SkillsFor(typ)
		require.NotNil(t, got, "type %q", typ)
		seen := map[SkillID]bool{}
		for _, id := range got {
			assert.True(t, known[id], "type %q mapped to unknown skill %q", typ, id)
			assert.False(t, seen[id], "type %q mapped to %q twice", typ, id)
			seen[id] = true
		}
	}
}

func TestSkillsFor_UnknownTypeIsEmpty(t *testing.T) {
	got := SkillsFor(ActionType("Planted a tree on the moon"))

	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSkillTableOnlyReferencesKnownTypes(t *testing.T) {
	for skill, types := range skillTypes {
		for _, typ := range types {
			assert.True(t, typ.Valid(), "skill %q references unknown type %q", skill, typ)
		}
	}
	assert.Len(t, skillTypes, len(Seed()))
}

func TestVocabularies(t *testing.T) {
	assert.Len(t, AllActionTypes(), 41)
	assert.Len(t, AllActionCategories(), 39)
	assert.Len(t, AllActionSubCategories(), 71)

	assert.True(t, ActionCategory("Civic").Valid())
	assert.True(t, ActionSubCategory("pothole").Valid())
	assert.True(t, ActionSubCategory("Pothole").Valid())
	assert.False(t, ActionCategory("civic").Valid())
	assert.False(t, ActionType("").Valid())
}

func TestLabel(t *testing.T) {
	assert.Equal(t, "Data Orientation", Label(SkillDataOrientation))
	assert.Equal(t, "Applied Empathy", Label(SkillEmpathy))
	assert.Equal(t, "", Label(SkillID("juggling")))
}
