package voter

import (
	"github.com/prometheus/client_golang/prometheus"
)

type voterMetrics struct {
	candidates         prometheus.Counter
	duplicates         prometheus.Counter
	invalid            prometheus.Counter
	rotationViolations prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*voterMetrics, error) {
	m := &voterMetrics{
		candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_voter_candidates_total",
			Help: "Number of distinct candidate deltas scored",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_voter_duplicates_total",
			Help: "Number of repeated observations of a known candidate",
		}),
		invalid: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_voter_invalid_total",
			Help: "Number of malformed candidates rejected",
		}),
		rotationViolations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_voter_rotation_violations_total",
			Help: "Number of candidates from producers outside the rotation",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.candidates, m.duplicates, m.invalid, m.rotationViolations} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
