// Package hub is the outbound side of delta consensus: it broadcasts this
// node's candidates and favourites, and publishes elected deltas to the DFS.
package hub

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/dfs"
	"github.com/mosaicnetworks/delta/src/net"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Default configuration values.
const (
	DefaultDfsRetries          uint = 4
	DefaultDfsRetryInterval         = 2 * time.Second
	DefaultDfsMaxRetryInterval      = time.Minute
)

// ErrNotProducer is returned when asked to broadcast a candidate produced by
// another node.
var ErrNotProducer = errors.New("candidate was not produced by this node")

// Config ...
type Config struct {
	// ProducerID is the id of this node.
	ProducerID string
	// DfsRetries is the number of retries after a failed DFS write.
	DfsRetries uint
	// DfsRetryInterval is the wait before the first retry. It doubles on
	// every retry, up to DfsMaxRetryInterval.
	DfsRetryInterval    time.Duration
	DfsMaxRetryInterval time.Duration
	Registerer          prometheus.Registerer
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		DfsRetries:          DefaultDfsRetries,
		DfsRetryInterval:    DefaultDfsRetryInterval,
		DfsMaxRetryInterval: DefaultDfsMaxRetryInterval,
	}
}

// DeltaHub ...
type DeltaHub struct {
	conf        Config
	broadcaster net.Broadcaster
	dfs         dfs.DFS

	metrics *hubMetrics
	logger  *logrus.Entry
}

// NewDeltaHub ...
func NewDeltaHub(conf Config, broadcaster net.Broadcaster, store dfs.DFS, logger *logrus.Entry) (*DeltaHub, error) {
	metrics, err := newMetrics(conf.Registerer)
	if err != nil {
		return nil, err
	}

	if conf.DfsMaxRetryInterval < conf.DfsRetryInterval {
		conf.DfsMaxRetryInterval = conf.DfsRetryInterval
	}

	return &DeltaHub{
		conf:        conf,
		broadcaster: broadcaster,
		dfs:         store,
		metrics:     metrics,
		logger:      logger,
	}, nil
}

// BroadcastCandidate sends a candidate built by this node to the network.
func (h *DeltaHub) BroadcastCandidate(ctx context.Context, candidate *delta.CandidateDeltaBroadcast) error {
	if err := candidate.IsValid(); err != nil {
		return err
	}

	if candidate.ProducerID != h.conf.ProducerID {
		h.logger.WithFields(logrus.Fields{
			"producer":  candidate.ProducerID,
			"candidate": candidate.Cid(),
		}).Warn("Refusing to broadcast a candidate built by another producer")
		return fmt.Errorf("%w: %s", ErrNotProducer, candidate.ProducerID)
	}

	if err := h.broadcast(ctx, net.CandidateDeltaMsg, candidate); err != nil {
		return err
	}

	h.logger.WithField("candidate", candidate.Cid()).Debug("Broadcast candidate delta")

	return nil
}

// BroadcastFavourite sends this node's vote to the network.
func (h *DeltaHub) BroadcastFavourite(ctx context.Context, favourite *delta.FavouriteDeltaBroadcast) error {
	if err := favourite.IsValid(); err != nil {
		return err
	}

	if err := h.broadcast(ctx, net.FavouriteDeltaMsg, favourite); err != nil {
		return err
	}

	h.logger.WithField("candidate", favourite.Candidate.Cid()).Debug("Broadcast favourite delta")

	return nil
}

// PublishToDfs writes d to the DFS, retrying with an exponential backoff, and
// announces its address to the network. The announcement is best effort: once
// the write succeeds the address is returned even if the broadcast fails.
func (h *DeltaHub) PublishToDfs(ctx context.Context, d *delta.Delta) (cid.Cid, error) {
	if err := d.IsValid(); err != nil {
		return cid.Undef, err
	}

	data, err := d.Marshal()
	if err != nil {
		return cid.Undef, err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = h.conf.DfsRetryInterval
	policy.Multiplier = 2
	policy.RandomizationFactor = 0
	policy.MaxInterval = h.conf.DfsMaxRetryInterval

	attempt := 0
	write := func() (cid.Cid, error) {
		attempt++
		h.metrics.publishAttempts.Inc()

		c, err := h.dfs.Write(ctx, data)
		if err != nil {
			h.logger.WithError(err).WithField("attempt", attempt).Warn("Failed to write delta to DFS")
			return cid.Undef, err
		}
		return c, nil
	}

	address, err := backoff.Retry(ctx, write,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(h.conf.DfsRetries+1),
	)
	if err != nil {
		h.metrics.publishFailures.Inc()
		return cid.Undef, fmt.Errorf("publishing delta after %d attempt(s): %w", attempt, err)
	}

	h.logger.WithFields(logrus.Fields{
		"delta":         address,
		"previous_hash": d.PreviousHash(),
	}).Info("Published delta to DFS")

	notice := &delta.DeltaDfsHashBroadcast{
		DeltaDfsHash:         address.Bytes(),
		PreviousDeltaDfsHash: d.PreviousDeltaDfsHash,
	}

	if err := h.broadcast(ctx, net.DeltaDfsHashMsg, notice); err != nil {
		h.logger.WithError(err).Warn("Failed to announce published delta")
	}

	return address, nil
}

func (h *DeltaHub) broadcast(ctx context.Context, msgType net.MessageType, payload interface{}) error {
	msg, err := net.NewMessage(msgType, h.conf.ProducerID, payload)
	if err != nil {
		return err
	}

	if err := h.broadcaster.Broadcast(ctx, msg); err != nil {
		return fmt.Errorf("broadcasting %s: %w", msgType, err)
	}

	h.metrics.broadcasts.WithLabelValues(msgType.String()).Inc()

	return nil
}
