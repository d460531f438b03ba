// Package taxonomy holds the closed classification vocabularies for civic
// actions and the mapping from action type to skills.
//
// String values are matched exactly by the CMS, so near-duplicate entries
// accumulated over time are kept as distinct values.
package taxonomy

import (
	"sort"
	"strings"
)

type (
	ActionType        string
	ActionCategory    string
	ActionSubCategory string
)

// ActionSubType is free text; only non-emptiness is checked.
type ActionSubType string

const (
	TypeMappingAssetOrIssue                 ActionType = "Mapping asset or issue"
	TypeJoinedACampaign                     ActionType = "Joined a Campaign"
	TypeOtherActivity                       ActionType = "Other Activity"
	TypeReportedIssue                       ActionType = "reported issue"
	TypeOldReportFollowup                   ActionType = "Old report followup"
	TypeCreatedACampaign                    ActionType = "Created a Campaign"
	TypeHandsOn                             ActionType = "Hands on"
	TypeTechPrototype                       ActionType = "Tech prototype"
	TypeNonTechPrototype                    ActionType = "Non tech prototype"
	TypeTechSolution                        ActionType = "Tech solution"
	TypeUrbanPlanning                       ActionType = "Urban Planning"
	TypeNonTechSolution                     ActionType = "Non tech solution"
	TypeCrowdsourcedData                    ActionType = "Crowdsourced data"
	TypeSessionTaken                        ActionType = "Session Taken"
	TypeStreetCleanlinessCheck              ActionType = "Street Cleanliness check"
	TypeRegularWastePickUp                  ActionType = "Regular waste pick up"
	TypeMeetYourSafaiKaramchari             ActionType = "Meet your Safai Karamchari"
	TypeSharingAdda                         ActionType = "Sharing Adda"
	TypeChangemakerAdda                     ActionType = "Changemaker Adda"
	TypeCommunityEngagement                 ActionType = "Community engagement"
	TypeProjectIdea                         ActionType = "Project idea"
	TypeBusinessPlan                        ActionType = "Business plan"
	TypePrototype                           ActionType = "Prototype"
	TypeAudit                               ActionType = "Audit"
	TypeSustainableLifestyle                ActionType = "Sustainable Lifestyle"
	TypeConductedASurveyOnWaterSupplyScheme ActionType = "Conducted a Survey on Water Supply Scheme"
	TypeUrbanFlooding                       ActionType = "Urban Flooding"
	TypeClothCollection                     ActionType = "Cloth Collection"
	TypeSwachhataLeagueParticipation2023    ActionType = "Swachhata League Participation 2023"
	TypeCarryAClothBag                      ActionType = "Carry a cloth bag"
	TypeSegregateWasteAtSource              ActionType = "Segregate waste at source"
	TypeAttendedAnOfflineEvent              ActionType = "Attended an offline event"
	TypeSharedPublicOpinion                 ActionType = "Shared Public Opinion"
	TypeFollowedUp                          ActionType = "followed up"
	TypeImplementedExistingSolution         ActionType = "implemented existing solution"
	TypeCreatedSolution                     ActionType = "created solution"
	TypeSolvedARealWorldProblem             ActionType = "solved a real world problem"
	TypeEngagedPeopleThroughSessions        ActionType = "engaged people through sessions"
	TypeInvestigationAudit                  ActionType = "Investigation/Audit"
	TypeDidAuditOrInvestigated              ActionType = "did audit or investigated"

	// Referenced by the skill table but absent from the older type list.
	TypeMappingAssetOrIssueAlt ActionType = "Mapping Asset or Issue"
)

const (
	CategoryCivic                    ActionCategory = "Civic"
	CategoryReliefCenters            ActionCategory = "Relief Centers"
	CategoryHealth                   ActionCategory = "Health"
	CategoryAudit                    ActionCategory = "Audit"
	CategoryStreetLights             ActionCategory = "Street Lights"
	CategoryWaterResources           ActionCategory = "Water Resources"
	CategoryFloods                   ActionCategory = "Floods"
	CategoryTreeTracking             ActionCategory = "Tree Tracking"
	CategoryStubbleBurning           ActionCategory = "Stubble Burning"
	CategoryRainfall                 ActionCategory = "Rainfall"
	CategoryBorewell                 ActionCategory = "Borewell"
	CategoryPublicPark               ActionCategory = "Public Park"
	CategorySolidWasteManagement     ActionCategory = "Solid Waste Management"
	CategoryRecycling                ActionCategory = "Recycling"
	CategoryGarbageDumps             ActionCategory = "Garbage Dumps"
	CategoryHazardousWaste           ActionCategory = "Hazardous Waste"
	CategorySolidWasteCollection     ActionCategory = "Solid Waste Collection"
	CategoryAnganwadiCentre          ActionCategory = "Anganwadi centre"
	CategorySolidWasteDisposal       ActionCategory = "Solid Waste Disposal"
	CategoryHarassmentZone           ActionCategory = "Harassment Zone"
	CategoryPolicy                   ActionCategory = "Policy"
	CategoryPublicInstitutions       ActionCategory = "Public Institutions"
	CategoryGovernmentInfrastructure ActionCategory = "Government Infrastructure"
	CategoryCivicEnvironmentalData   ActionCategory = "Civic-Environmental Data"
	CategoryCitizenInitiatives       ActionCategory = "Citizen Initiatives"
	CategoryStreetAudit              ActionCategory = "Street audit"
	CategoryAirQuality               ActionCategory = "Air Quality"
	CategoryCommunityBuilding        ActionCategory = "Community Building"
	CategorySchemes                  ActionCategory = "Schemes"
	CategoryPublicAsset              ActionCategory = "Public asset"
	CategoryCrowdsourcedData         ActionCategory = "Crowdsourced Data"
	CategoryWater                    ActionCategory = "Water"
	CategoryWaste                    ActionCategory = "Waste"
	CategoryTrafficRoad              ActionCategory = "Traffic/road"
	CategorySanitation               ActionCategory = "Sanitation"
	CategoryElectricity              ActionCategory = "Electricity"
	CategoryAir                      ActionCategory = "Air"
	CategoryOther                    ActionCategory = "Other"
	CategoryLivelihood               ActionCategory = "Livelihood"
)

const (
	SubCategoryCivic                                    ActionSubCategory = "Civic"
	SubCategoryPublicToilets                            ActionSubCategory = "Public Toilets"
	SubCategoryPublicAsset                              ActionSubCategory = "Public asset"
	SubCategorySmartCities                              ActionSubCategory = "Smart Cities"
	SubCategoryGovernmentSchemes                        ActionSubCategory = "Government Schemes"
	SubCategoryWaterEfficientZone                       ActionSubCategory = "Water efficient zone"
	SubCategoryNotApplicable                            ActionSubCategory = "Not Applicable"
	SubCategoryPickUpByVehicle                          ActionSubCategory = "Pick up by vehicle"
	SubCategoryPickUpByKaramchari                       ActionSubCategory = "Pick up by karamchari"
	SubCategoryReliefCenters                            ActionSubCategory = "Relief Centers"
	SubCategoryHealth                                   ActionSubCategory = "Health"
	SubCategoryDengueHotspot                            ActionSubCategory = "Dengue Hotspot"
	SubCategoryWaterResources                           ActionSubCategory = "Water Resources"
	SubCategoryAudit                                    ActionSubCategory = "Audit"
	SubCategoryNagarikaSakhiRuralWomenLeadersInitiative ActionSubCategory = "Nagarika Sakhi - Rural Women Leaders Initiative"
	SubCategoryWaterSources                             ActionSubCategory = "Water Sources"
	SubCategoryStreetLights                             ActionSubCategory = "Street Lights"
	SubCategoryWaterQuality                             ActionSubCategory = "Water Quality"
	SubCategoryWaterTankers                             ActionSubCategory = "Water Tankers"
	SubCategoryWaterbody                                ActionSubCategory = "Waterbody"
	SubCategoryRecycling                                ActionSubCategory = "Recycling"
	SubCategorySolidWasteManagement                     ActionSubCategory = "Solid Waste Management"
	SubCategoryGovernmentInfrastructure                 ActionSubCategory = "Government Infrastructure"
	SubCategoryRecycleCenters                           ActionSubCategory = "Recycle Centers"
	SubCategoryGarbageDumps                             ActionSubCategory = "Garbage Dumps"
	SubCategoryHazardousWaste                           ActionSubCategory = "Hazardous Waste"
	SubCategorySolidWasteCollection                     ActionSubCategory = "Solid Waste Collection"
	SubCategorySolidWasteDisposal                       ActionSubCategory = "Solid Waste Disposal"
	SubCategoryTrees                                    ActionSubCategory = "Trees"
	SubCategoryHarassmentZone                           ActionSubCategory = "Harassment Zone"
	SubCategoryPublicInstitutions                       ActionSubCategory = "Public Institutions"
	SubCategoryPublicTransport                          ActionSubCategory = "Public Transport"
	SubCategorySanitationAudit                          ActionSubCategory = "Sanitation Audit"
	SubCategoryFireworks                                ActionSubCategory = "Fireworks"
	SubCategoryCitizenInitiatives                       ActionSubCategory = "Citizen Initiatives"
	SubCategoryAirQuality                               ActionSubCategory = "Air Quality"
	SubCategoryCivicEnvironmentalData                   ActionSubCategory = "Civic-Environmental Data"
	SubCategorySanitation                               ActionSubCategory = "Sanitation"
	SubCategoryElectricity                              ActionSubCategory = "Electricity"
	SubCategoryCrowdsourcedData                         ActionSubCategory = "Crowdsourced Data"
	SubCategoryCommunityBuilding                        ActionSubCategory = "Community Building"
	SubCategoryTrafficRoad                              ActionSubCategory = "Traffic/road"
	SubCategoryPolicy                                   ActionSubCategory = "Policy"
	SubCategoryTrafficAndMobility                       ActionSubCategory = "Traffic & Mobility"
	SubCategoryCauveryWaterPolicy                       ActionSubCategory = "Cauvery Water Policy"
	SubCategoryWaterSupplySchemeAudit                   ActionSubCategory = "Water Supply Scheme Audit"
	SubCategoryGarbageBin                               ActionSubCategory = "Garbage Bin"
	SubCategoryBorewell                                 ActionSubCategory = "Borewell"
	SubCategoryBlackSpotFixedAndMaintained              ActionSubCategory = "Black Spot Fixed and Maintained"
	SubCategoryRainfall                                 ActionSubCategory = "Rainfall"
	SubCategoryStreetAudit                              ActionSubCategory = "Street audit"
	SubCategoryFloodMap                                 ActionSubCategory = "Flood map"
	SubCategoryUpcycle                                  ActionSubCategory = "Upcycle"
	SubCategoryPublicPark                               ActionSubCategory = "Public Park"
	SubCategoryWaste                                    ActionSubCategory = "Waste"
	SubCategoryUrbanFlooding                            ActionSubCategory = "Urban Flooding"
	SubCategoryStubbleBurning                           ActionSubCategory = "Stubble Burning"
	SubCategoryAnganwadiCentre                          ActionSubCategory = "Anganwadi centre"
	SubCategoryPotholeLower                             ActionSubCategory = "pothole"
	SubCategoryLivelihood                               ActionSubCategory = "Livelihood"
	SubCategoryHealthcare                               ActionSubCategory = "healthcare"
	SubCategoryPothole                                  ActionSubCategory = "Pothole"
	SubCategoryUrbanGreenery                            ActionSubCategory = "Urban Greenery"
	SubCategorySchemes                                  ActionSubCategory = "Schemes"
	SubCategoryAir                                      ActionSubCategory = "Air"
	SubCategoryTreeTracking                             ActionSubCategory = "Tree Tracking"
	SubCategoryAllInOneServiceCentre                    ActionSubCategory = "All in One Service Centre"
	SubCategoryCovid                                    ActionSubCategory = "COVID"
	SubCategoryMalariaHotspot                           ActionSubCategory = "Malaria Hotspot"
	SubCategoryWater                                    ActionSubCategory = "Water"
	SubCategoryOther                                    ActionSubCategory = "Other"
)

var actionTypes = []ActionType{
	TypeMappingAssetOrIssue,
	TypeJoinedACampaign,
	TypeOtherActivity,
	TypeReportedIssue,
	TypeOldReportFollowup,
	TypeCreatedACampaign,
	TypeHandsOn,
	TypeTechPrototype,
	TypeNonTechPrototype,
	TypeTechSolution,
	TypeUrbanPlanning,
	TypeNonTechSolution,
	TypeCrowdsourcedData,
	TypeSessionTaken,
	TypeStreetCleanlinessCheck,
	TypeRegularWastePickUp,
	TypeMeetYourSafaiKaramchari,
	TypeSharingAdda,
	TypeChangemakerAdda,
	TypeCommunityEngagement,
	TypeProjectIdea,
	TypeBusinessPlan,
	TypePrototype,
	TypeAudit,
	TypeSustainableLifestyle,
	TypeConductedASurveyOnWaterSupplyScheme,
	TypeUrbanFlooding,
	TypeClothCollection,
	TypeSwachhataLeagueParticipation2023,
	TypeCarryAClothBag,
	TypeSegregateWasteAtSource,
	TypeAttendedAnOfflineEvent,
	TypeSharedPublicOpinion,
	TypeFollowedUp,
	TypeImplementedExistingSolution,
	TypeCreatedSolution,
	TypeSolvedARealWorldProblem,
	TypeEngagedPeopleThroughSessions,
	TypeInvestigationAudit,
	TypeDidAuditOrInvestigated,
	TypeMappingAssetOrIssueAlt,
}

var actionCategories = []ActionCategory{
	CategoryCivic,
	CategoryReliefCenters,
	CategoryHealth,
	CategoryAudit,
	CategoryStreetLights,
	CategoryWaterResources,
	CategoryFloods,
	CategoryTreeTracking,
	CategoryStubbleBurning,
	CategoryRainfall,
	CategoryBorewell,
	CategoryPublicPark,
	CategorySolidWasteManagement,
	CategoryRecycling,
	CategoryGarbageDumps,
	CategoryHazardousWaste,
	CategorySolidWasteCollection,
	CategoryAnganwadiCentre,
	CategorySolidWasteDisposal,
	CategoryHarassmentZone,
	CategoryPolicy,
	CategoryPublicInstitutions,
	CategoryGovernmentInfrastructure,
	CategoryCivicEnvironmentalData,
	CategoryCitizenInitiatives,
	CategoryStreetAudit,
	CategoryAirQuality,
	CategoryCommunityBuilding,
	CategorySchemes,
	CategoryPublicAsset,
	CategoryCrowdsourcedData,
	CategoryWater,
	CategoryWaste,
	CategoryTrafficRoad,
	CategorySanitation,
	CategoryElectricity,
	CategoryAir,
	CategoryOther,
	CategoryLivelihood,
}

var actionSubCategories = []ActionSubCategory{
	SubCategoryCivic,
	SubCategoryPublicToilets,
	SubCategoryPublicAsset,
	SubCategorySmartCities,
	SubCategoryGovernmentSchemes,
	SubCategoryWaterEfficientZone,
	SubCategoryNotApplicable,
	SubCategoryPickUpByVehicle,
	SubCategoryPickUpByKaramchari,
	SubCategoryReliefCenters,
	SubCategoryHealth,
	SubCategoryDengueHotspot,
	SubCategoryWaterResources,
	SubCategoryAudit,
	SubCategoryNagarikaSakhiRuralWomenLeadersInitiative,
	SubCategoryWaterSources,
	SubCategoryStreetLights,
	SubCategoryWaterQuality,
	SubCategoryWaterTankers,
	SubCategoryWaterbody,
	SubCategoryRecycling,
	SubCategorySolidWasteManagement,
	SubCategoryGovernmentInfrastructure,
	SubCategoryRecycleCenters,
	SubCategoryGarbageDumps,
	SubCategoryHazardousWaste,
	SubCategorySolidWasteCollection,
	SubCategorySolidWasteDisposal,
	SubCategoryTrees,
	SubCategoryHarassmentZone,
	SubCategoryPublicInstitutions,
	SubCategoryPublicTransport,
	SubCategorySanitationAudit,
	SubCategoryFireworks,
	SubCategoryCitizenInitiatives,
	SubCategoryAirQuality,
	SubCategoryCivicEnvironmentalData,
	SubCategorySanitation,
	SubCategoryElectricity,
	SubCategoryCrowdsourcedData,
	SubCategoryCommunityBuilding,
	SubCategoryTrafficRoad,
	SubCategoryPolicy,
	SubCategoryTrafficAndMobility,
	SubCategoryCauveryWaterPolicy,
	SubCategoryWaterSupplySchemeAudit,
	SubCategoryGarbageBin,
	SubCategoryBorewell,
	SubCategoryBlackSpotFixedAndMaintained,
	SubCategoryRainfall,
	SubCategoryStreetAudit,
	SubCategoryFloodMap,
	SubCategoryUpcycle,
	SubCategoryPublicPark,
	SubCategoryWaste,
	SubCategoryUrbanFlooding,
	SubCategoryStubbleBurning,
	SubCategoryAnganwadiCentre,
	SubCategoryPotholeLower,
	SubCategoryLivelihood,
	SubCategoryHealthcare,
	SubCategoryPothole,
	SubCategoryUrbanGreenery,
	SubCategorySchemes,
	SubCategoryAir,
	SubCategoryTreeTracking,
	SubCategoryAllInOneServiceCentre,
	SubCategoryCovid,
	SubCategoryMalariaHotspot,
	SubCategoryWater,
	SubCategoryOther,
}

var (
	typeSet        = setOf(actionTypes)
	categorySet    = setOf(actionCategories)
	subCategorySet = setOf(actionSubCategories)
)

func setOf[T ~string](values []T) map[T]struct{} {
	m := make(map[T]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// AllActionTypes returns every action type in declaration order.
func AllActionTypes() []ActionType {
	return append([]ActionType(nil), actionTypes...)
}

func AllActionCategories() []ActionCategory {
	return append([]ActionCategory(nil), actionCategories...)
}

func AllActionSubCategories() []ActionSubCategory {
	return append([]ActionSubCategory(nil), actionSubCategories...)
}

func (t ActionType) Valid() bool {
	_, ok := typeSet[t]
	return ok
}

func (c ActionCategory) Valid() bool {
	_, ok := categorySet[c]
	return ok
}

func (c ActionSubCategory) Valid() bool {
	_, ok := subCategorySet[c]
	return ok
}

// Strings renders a vocabulary as sorted strings, for prompt construction.
func Strings[T ~string](values []T) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	sort.Strings(out)
	return out
}

func (s ActionSubType) Valid() bool {
	return strings.TrimSpace(string(s)) != ""
}
