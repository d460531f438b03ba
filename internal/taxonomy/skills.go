package taxonomy

// SkillID is the stable internal identifier of a competency.
type SkillID string

const (
	SkillCitizenship            SkillID = "citizenship"
	SkillCommunication          SkillID = "communication"
	SkillCommunityCollaboration SkillID = "community_collaboration"
	SkillCriticalThinking       SkillID = "critical_thinking"
	SkillDataOrientation        SkillID = "data_digital_citizenship"
	SkillEmpathy                SkillID = "empathy"
	SkillGrit                   SkillID = "grit"
	SkillHandsOn                SkillID = "hands_on"
	SkillProblemSolving         SkillID = "problem_solving"
	SkillEntrepreneurial        SkillID = "entrepreneurial"
)

// Skill is a seedable taxonomy entry.
type Skill struct {
	Name  SkillID
	Label string
}

var skills = []Skill{
	{SkillCitizenship, "Citizenship"},
	{SkillCommunication, "Communication"},
	{SkillCommunityCollaboration, "Community Collaboration"},
	{SkillCriticalThinking, "Critical Thinking"},
	{SkillDataOrientation, "Data Orientation"},
	{SkillEmpathy, "Applied Empathy"},
	{SkillGrit, "Grit"},
	{SkillHandsOn, "Hands-On"},
	{SkillProblemSolving, "Problem Solving"},
	{SkillEntrepreneurial, "Entrepreneurial"},
}

// skillTypes lists, per skill, the action types that demonstrate it.
// Types absent from every list yield no skills.
var skillTypes = map[SkillID][]ActionType{
	SkillCitizenship: {
		TypeMappingAssetOrIssueAlt,
		TypeReportedIssue,
		TypeSolvedARealWorldProblem,
		TypeSharedPublicOpinion,
		TypeSegregateWasteAtSource,
		TypeCarryAClothBag,
		TypeSwachhataLeagueParticipation2023,
		TypeOtherActivity,
		TypeCrowdsourcedData,
		TypeChangemakerAdda,
		TypeSharingAdda,
		TypeUrbanPlanning,
	},
	SkillCommunication: {
		TypeEngagedPeopleThroughSessions,
		TypeFollowedUp,
		TypeCrowdsourcedData,
		TypeOldReportFollowup,
		TypeCreatedACampaign,
		TypeDidAuditOrInvestigated,
		TypeAttendedAnOfflineEvent,
		TypePrototype,
		TypeProjectIdea,
		TypeBusinessPlan,
	},
	SkillCommunityCollaboration: {
		TypeCreatedACampaign,
		TypeJoinedACampaign,
		TypeCrowdsourcedData,
		TypeEngagedPeopleThroughSessions,
		TypeAttendedAnOfflineEvent,
	},
	SkillCriticalThinking: {
		TypeTechPrototype,
		TypeNonTechPrototype,
		TypeTechSolution,
		TypeNonTechSolution,
		TypeImplementedExistingSolution,
		TypeDidAuditOrInvestigated,
		TypeCreatedSolution,
		TypeSustainableLifestyle,
		TypePrototype,
		TypeProjectIdea,
		TypeBusinessPlan,
	},
	SkillDataOrientation: {
		TypeCrowdsourcedData,
		TypeMappingAssetOrIssueAlt,
		TypeCreatedACampaign,
		TypeDidAuditOrInvestigated,
		TypeReportedIssue,
		TypeAudit,
	},
	SkillEmpathy: {
		TypeCrowdsourcedData,
		TypeMappingAssetOrIssueAlt,
		TypeEngagedPeopleThroughSessions,
		TypeSolvedARealWorldProblem,
		TypeProjectIdea,
	},
	SkillGrit: {
		TypeTechPrototype,
		TypeNonTechPrototype,
		TypeOldReportFollowup,
		TypeCreatedSolution,
		TypeFollowedUp,
		TypePrototype,
	},
	SkillHandsOn: {
		TypeTechPrototype,
		TypeNonTechPrototype,
		TypeTechSolution,
		TypeNonTechSolution,
		TypeImplementedExistingSolution,
		TypeCreatedSolution,
		TypeSegregateWasteAtSource,
		TypeCarryAClothBag,
		TypeSwachhataLeagueParticipation2023,
		TypeOtherActivity,
	},
	SkillProblemSolving: {
		TypeCreatedSolution,
		TypeTechSolution,
		TypeNonTechSolution,
		TypeSolvedARealWorldProblem,
		TypeSegregateWasteAtSource,
		TypeCarryAClothBag,
		TypeSwachhataLeagueParticipation2023,
		TypeOtherActivity,
		TypeSustainableLifestyle,
		TypePrototype,
		TypeProjectIdea,
		TypeBusinessPlan,
	},
	SkillEntrepreneurial: {
		TypeTechPrototype,
		TypeNonTechPrototype,
		TypeBusinessPlan,
	},
}

// SkillsFor returns the skills demonstrated by an action type, in taxonomy
// order. Unknown or unmapped types return an empty slice, never an error.
func SkillsFor(t ActionType) []SkillID {
	out := []SkillID{}
	for _, s := range skills {
		for _, candidate := range skillTypes[s.Name] {
			if candidate == t {
				out = append(out, s.Name)
				break
			}
		}
	}
	return out
}

// Seed returns every skill with its display label.
func Seed() []Skill {
	return append([]Skill(nil), skills...)
}

// Label returns the display label for id, or "" when id is unknown.
func Label(id SkillID) string {
	for _, s := range skills {
		if s.Name == id {
			return s.Label
		}
	}
	return ""
}

// SkillNames converts ids to plain strings for storage lookups.
func SkillNames(ids []SkillID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}
