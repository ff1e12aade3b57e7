package domain

// Priority ranks used for sorting. Lower is more urgent.
const (
	RankUrgent     = 1
	RankHigh       = 2
	RankMedium     = 3
	RankLow        = 4
	RankNoPriority = 5
)

// UserPriority maps a priority string to its rank. A nil priority and any
// value outside the known vocabulary rank as "no priority".
func UserPriority(priority *string) int {
	if priority == nil {
		return RankNoPriority
	}
	switch *priority {
	case "urgent":
		return RankUrgent
	case "high":
		return RankHigh
	case "medium":
		return RankMedium
	case "low":
		return RankLow
	default:
		return RankNoPriority
	}
}
