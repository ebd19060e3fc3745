package hashprovider

import (
	"github.com/prometheus/client_golang/prometheus"
)

type hashProviderMetrics struct {
	updates  prometheus.Counter
	rejected *prometheus.CounterVec
	size     prometheus.Gauge
}

func newMetrics(registerer prometheus.Registerer) (*hashProviderMetrics, error) {
	m := &hashProviderMetrics{
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "delta_hash_updates_total",
			Help: "Number of confirmed delta hashes appended to the chain",
		}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "delta_hash_rejected_updates_total",
			Help: "Number of rejected chain updates, by reason",
		}, []string{"reason"}),
		size: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "delta_hash_index_size",
			Help: "Number of delta hashes retained in the index",
		}),
	}

	if registerer == nil {
		return m, nil
	}

	for _, c := range []prometheus.Collector{m.updates, m.rejected, m.size} {
		if err := registerer.Register(c); err != nil {
			return nil, err
		}
	}

	return m, nil
}
