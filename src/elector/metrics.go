package elector

import (
	"github.com/prometheus/client_golang/prometheus"
)

type electorMetrics struct {
	votes      prometheus.Counter
	duplicates prometheus.Counter
	rejected   *prometheus.CounterVec
	elected    prometheus.Counter
	noQuorum   prometheus.Counter
}

func newMetrics(registerer prometheus.Registerer) (*electorMetrics, error) {
	m := &electorMetrics{
		votes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_elector_votes_total",
			Help: "Number of favourite votes recorded",
		}),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_elector_duplicate_votes_total",
			Help: "Number of favourite votes received more than once",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delta_elector_rejected_votes_total",
			Help: "Number of favourite votes rejected, by reason",
		}, []string{"reason"}),
		elected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_elector_elections_total",
			Help: "Number of elections that returned a candidate",
		}),
		noQuorum: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_elector_no_quorum_total",
			Help: "Number of elections where no candidate reached the threshold",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.votes, m.duplicates, m.rejected, m.elected, m.noQuorum} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
