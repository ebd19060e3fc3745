package node

import (
	"fmt"
	"sort"
	"time"

	cid "github.com/ipfs/go-cid"
)

// PhaseName identifies a phase of the delta production cycle.
type PhaseName uint32

const (
	// Construction is the phase in which candidate deltas are built.
	Construction PhaseName = iota + 1
	// Campaigning is the phase in which favourites are exchanged.
	Campaigning
	// Voting is the phase in which the elected delta is published.
	Voting
	// Synchronisation is the phase in which nodes catch up on the chain.
	Synchronisation
)

// String ...
func (n PhaseName) String() string {
	switch n {
	case Construction:
		return "Construction"
	case Campaigning:
		return "Campaigning"
	case Voting:
		return "Voting"
	case Synchronisation:
		return "Synchronisation"
	default:
		return "Unknown"
	}
}

// PhaseStatus is the progress within a phase.
type PhaseStatus uint32

const (
	// Producing is the start of a phase, when this node acts.
	Producing PhaseStatus = iota + 1
	// Collecting is the part of a phase where messages from others arrive.
	Collecting
	// Idle is the rest of a phase. It is never emitted.
	Idle
)

// String ...
func (s PhaseStatus) String() string {
	switch s {
	case Producing:
		return "Producing"
	case Collecting:
		return "Collecting"
	case Idle:
		return "Idle"
	default:
		return "Unknown"
	}
}

// PhaseTimings positions a phase within the cycle.
type PhaseTimings struct {
	Offset         time.Duration
	ProductionTime time.Duration
	CollectionTime time.Duration
	TotalTime      time.Duration
}

// CycleConfiguration holds the timings of every phase.
type CycleConfiguration struct {
	Construction    PhaseTimings
	Campaigning     PhaseTimings
	Voting          PhaseTimings
	Synchronisation PhaseTimings
}

// DefaultCycleConfiguration returns a 20 second cycle with four 5 second
// phases.
func DefaultCycleConfiguration() CycleConfiguration {
	return CycleConfiguration{
		Construction:    PhaseTimings{0, 2 * time.Second, 2 * time.Second, 5 * time.Second},
		Campaigning:     PhaseTimings{5 * time.Second, 2 * time.Second, 2 * time.Second, 5 * time.Second},
		Voting:          PhaseTimings{10 * time.Second, 2 * time.Second, 2 * time.Second, 5 * time.Second},
		Synchronisation: PhaseTimings{15 * time.Second, 0, 0, 5 * time.Second},
	}
}

// NewCycleConfiguration lays out phases of the given durations back to back.
// Construction, Campaigning and Voting produce for the first 40% of their
// duration and collect for the next 40%. Synchronisation neither produces nor
// collects.
func NewCycleConfiguration(construction, campaigning, voting, synchronisation time.Duration) CycleConfiguration {
	active := func(offset, total time.Duration) PhaseTimings {
		return PhaseTimings{
			Offset:         offset,
			ProductionTime: total * 2 / 5,
			CollectionTime: total * 2 / 5,
			TotalTime:      total,
		}
	}

	return CycleConfiguration{
		Construction: active(0, construction),
		Campaigning:  active(construction, campaigning),
		Voting:       active(construction+campaigning, voting),
		Synchronisation: PhaseTimings{
			Offset:    construction + campaigning + voting,
			TotalTime: synchronisation,
		},
	}
}

// TimingsByName ...
func (c CycleConfiguration) TimingsByName() map[PhaseName]PhaseTimings {
	return map[PhaseName]PhaseTimings{
		Construction:    c.Construction,
		Campaigning:     c.Campaigning,
		Voting:          c.Voting,
		Synchronisation: c.Synchronisation,
	}
}

// OrderedPhaseNames returns the phase names sorted by offset.
func (c CycleConfiguration) OrderedPhaseNames() []PhaseName {
	timings := c.TimingsByName()

	names := []PhaseName{Construction, Campaigning, Voting, Synchronisation}
	sort.SliceStable(names, func(i, j int) bool {
		return timings[names[i]].Offset < timings[names[j]].Offset
	})

	return names
}

// CycleDuration is the end of the last phase.
func (c CycleConfiguration) CycleDuration() time.Duration {
	var d time.Duration
	for _, t := range c.TimingsByName() {
		if end := t.Offset + t.TotalTime; end > d {
			d = end
		}
	}
	return d
}

// Validate checks that every phase fits within its own total time and that
// the cycle has a duration.
func (c CycleConfiguration) Validate() error {
	for name, t := range c.TimingsByName() {
		if t.Offset < 0 || t.ProductionTime < 0 || t.CollectionTime < 0 {
			return fmt.Errorf("%s timings must not be negative", name)
		}
		if t.ProductionTime+t.CollectionTime > t.TotalTime {
			return fmt.Errorf("%s production and collection exceed its total time", name)
		}
	}

	if c.CycleDuration() <= 0 {
		return fmt.Errorf("cycle duration must be positive")
	}

	return nil
}

// Phase is emitted when the cycle enters a phase status.
type Phase struct {
	PreviousDeltaDfsHash cid.Cid
	Name                 PhaseName
	Status               PhaseStatus
	Time                 time.Time
}

func (p Phase) String() string {
	return fmt.Sprintf("%s:%s after %s at %s", p.Name, p.Status, p.PreviousDeltaDfsHash, p.Time.Format(time.RFC3339Nano))
}
