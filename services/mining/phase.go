package mining

// Phase is a network-wide growth stage. The base mining rate halves as the
// network crosses each user-count threshold.
type Phase string

const (
	PhasePioneer     Phase = "pioneer"
	PhaseContributor Phase = "contributor"
	PhaseAmbassador  Phase = "ambassador"
	PhaseNode        Phase = "node"
)

// DefaultBaseRate is the per-second accrual rate used when no phase
// schedule is wired in.
const DefaultBaseRate = 0.00125

type phaseBand struct {
	phase     Phase
	maxUsers  int64 // exclusive upper bound, 0 means unbounded
	unitsHour float64
}

// PhaseSchedule maps total network size to the hourly base rate.
type PhaseSchedule struct {
	bands []phaseBand
}

// NewPhaseSchedule returns the standard four-phase schedule.
func NewPhaseSchedule() *PhaseSchedule {
	return &PhaseSchedule{
		bands: []phaseBand{
			{phase: PhasePioneer, maxUsers: 100_000, unitsHour: 2.0},
			{phase: PhaseContributor, maxUsers: 1_000_000, unitsHour: 1.0},
			{phase: PhaseAmbassador, maxUsers: 10_000_000, unitsHour: 0.5},
			{phase: PhaseNode, maxUsers: 0, unitsHour: 0.25},
		},
	}
}

// PhaseFor returns the phase containing the given network size.
func (p *PhaseSchedule) PhaseFor(totalUsers int64) Phase {
	return p.bandFor(totalUsers).phase
}

// HourlyRate returns the base rate in units per hour for the given network
// size.
func (p *PhaseSchedule) HourlyRate(totalUsers int64) float64 {
	return p.bandFor(totalUsers).unitsHour
}

// BaseRate returns the base rate in units per second for the given network
// size.
func (p *PhaseSchedule) BaseRate(totalUsers int64) float64 {
	return p.bandFor(totalUsers).unitsHour / 3600.0
}

func (p *PhaseSchedule) bandFor(totalUsers int64) phaseBand {
	for _, b := range p.bands {
		if b.maxUsers == 0 || totalUsers < b.maxUsers {
			return b
		}
	}
	return p.bands[len(p.bands)-1]
}
