package award

const (
	ActivityVisit               = "visit"
	ActivityVisitMilestone      = "visit_milestone"
	ActivityNightVisit          = "night_visit"
	ActivityEarlyBirdVisit      = "early_bird_visit"
	ActivityWeekendVisit        = "weekend_visit"
	ActivityCompletion          = "circuit_completion"
	ActivityCompletionMilestone = "completion_milestone"
)

const (
	VisitPoints             = 10
	NightBonusPoints        = 15
	EarlyBirdBonusPoints    = 10
	WeekendBonusPoints      = 5
	PremiumCompletionPoints = 100
	RegularCompletionPoints = 50
)

// Milestone maps an ordinal count to the points it grants.
type Milestone struct {
	Threshold int
	Points    int
}

var VisitMilestones = []Milestone{
	{Threshold: 1, Points: 5},
	{Threshold: 5, Points: 20},
	{Threshold: 10, Points: 50},
	{Threshold: 25, Points: 100},
	{Threshold: 50, Points: 200},
}

var CompletionMilestones = []Milestone{
	{Threshold: 1, Points: 25},
	{Threshold: 5, Points: 75},
	{Threshold: 10, Points: 150},
}
