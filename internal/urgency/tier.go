// Package urgency combines classifier output, vital signs and rule-based
// clinical protocol scores into a single triage tier. The combination
// policy escalates and never averages down: over-triage is preferred to a
// missed critical condition.
package urgency

// Tier is the triage output of the pipeline.
type Tier string

const (
	TierRoutine  Tier = "routine"
	TierPriority Tier = "priority"
	TierUrgent   Tier = "urgent"
	TierCritical Tier = "critical"
)

var tierRank = map[Tier]int{
	TierRoutine:  0,
	TierPriority: 1,
	TierUrgent:   2,
	TierCritical: 3,
}

// Rank returns the tier's position in the escalation order.
func (t Tier) Rank() int { return tierRank[t] }

// AtLeast returns the higher of t and floor.
func (t Tier) AtLeast(floor Tier) Tier {
	if floor.Rank() > t.Rank() {
		return floor
	}
	return t
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// Reason records why a protocol or signal contributed to the tier, for
// audit and explainability.
type Reason struct {
	Protocol string `json:"protocol"` // protocol or signal source name
	Detail   string `json:"detail"`   // human-readable criterion summary
	Band     int    `json:"band"`     // integer risk band the protocol produced
	Critical bool   `json:"critical"` // whether this was a qualifying critical signal
}

// Result is the scorer output: the tier plus every contributing reason.
type Result struct {
	Tier    Tier     `json:"tier"`
	Reasons []Reason `json:"reasons"`
}
