package node

import (
	"context"
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/sirupsen/logrus"
)

// ScheduledPhase is a phase status change planned within a cycle.
type ScheduledPhase struct {
	At     time.Time
	Name   PhaseName
	Status PhaseStatus
}

// PhaseCalculator computes the schedule of a cycle.
type PhaseCalculator struct {
	conf  CycleConfiguration
	cycle time.Duration
}

// NewPhaseCalculator ...
func NewPhaseCalculator(conf CycleConfiguration) (*PhaseCalculator, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	return &PhaseCalculator{
		conf:  conf,
		cycle: conf.CycleDuration(),
	}, nil
}

// CycleDuration ...
func (c *PhaseCalculator) CycleDuration() time.Duration {
	return c.cycle
}

// TimeUntilNextCycleStart returns zero when now is exactly on a cycle
// boundary. Cycles are aligned on the Unix epoch.
func (c *PhaseCalculator) TimeUntilNextCycleStart(now time.Time) time.Duration {
	rem := time.Duration(now.UnixNano() % int64(c.cycle))
	if rem < 0 {
		rem += c.cycle
	}
	if rem == 0 {
		return 0
	}
	return c.cycle - rem
}

// NextCycleStart ...
func (c *PhaseCalculator) NextCycleStart(now time.Time) time.Time {
	return now.Add(c.TimeUntilNextCycleStart(now))
}

// PhasesFor lists the Producing and Collecting changes of the cycle starting at
// cycleStart, in chronological order.
func (c *PhaseCalculator) PhasesFor(cycleStart time.Time) []ScheduledPhase {
	timings := c.conf.TimingsByName()

	res := make([]ScheduledPhase, 0, 2*len(timings))
	for _, name := range c.conf.OrderedPhaseNames() {
		t := timings[name]
		res = append(res,
			ScheduledPhase{At: cycleStart.Add(t.Offset), Name: name, Status: Producing},
			ScheduledPhase{At: cycleStart.Add(t.Offset + t.ProductionTime), Name: name, Status: Collecting},
		)
	}

	return res
}

// LatestHashProvider gives the tip of the chain at a point in time.
type LatestHashProvider interface {
	GetLatestDeltaHash(asOf *time.Time) cid.Cid
}

// timerFactory returns a channel that fires once after d.
type timerFactory func(d time.Duration) <-chan time.Time

// CycleEventsProvider emits the phases of consecutive cycles.
type CycleEventsProvider struct {
	calculator   *PhaseCalculator
	hashes       LatestHashProvider
	clock        func() time.Time
	timerFactory timerFactory
	phaseCh      chan Phase
	logger       *logrus.Entry
}

// NewCycleEventsProvider ...
func NewCycleEventsProvider(conf CycleConfiguration, hashes LatestHashProvider, logger *logrus.Entry) (*CycleEventsProvider, error) {
	calculator, err := NewPhaseCalculator(conf)
	if err != nil {
		return nil, err
	}

	return &CycleEventsProvider{
		calculator:   calculator,
		hashes:       hashes,
		clock:        time.Now,
		timerFactory: time.After,
		phaseCh:      make(chan Phase, 2*len(conf.TimingsByName())),
		logger:       logger,
	}, nil
}

// PhaseChanges is closed when Run returns.
func (p *CycleEventsProvider) PhaseChanges() <-chan Phase {
	return p.phaseCh
}

// Run emits phases until ctx is cancelled. The first phase is the start of the
// next cycle.
func (p *CycleEventsProvider) Run(ctx context.Context) error {
	defer close(p.phaseCh)

	start := p.calculator.NextCycleStart(p.clock())
	for {
		p.logger.WithField("start", start).Debug("Scheduling cycle")

		for _, sp := range p.calculator.PhasesFor(start) {
			if wait := sp.At.Sub(p.clock()); wait > 0 {
				select {
				case <-p.timerFactory(wait):
				case <-ctx.Done():
					return nil
				}
			}

			now := p.clock()
			phase := Phase{
				PreviousDeltaDfsHash: p.hashes.GetLatestDeltaHash(&now),
				Name:                 sp.Name,
				Status:               sp.Status,
				Time:                 now,
			}

			select {
			case p.phaseCh <- phase:
			case <-ctx.Done():
				return nil
			}
		}

		start = start.Add(p.calculator.CycleDuration())

		// Cycles missed by a slow consumer are skipped, not replayed.
		if now := p.clock(); now.After(start) {
			p.logger.WithField("now", now).Warn("Skipping late cycle")
			start = p.calculator.NextCycleStart(now)
		}
	}
}
