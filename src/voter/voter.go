// Package voter scores the candidate deltas observed on the network and picks
// this node's favourite for each previous delta.
//
// A candidate's score only depends on the rank of its producer for the
// previous delta, so every honest node converges on the same favourite once it
// has seen the same candidates. Repeated observations of a candidate only bump
// its popularity.
package voter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/hashicorp/golang-lru/v2/expirable"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/producers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Default configuration values.
const (
	DefaultSize = 10000
	DefaultTTL  = 3 * time.Minute
)

// ErrProducerNotInRotation is returned for candidates whose producer is not
// allowed to produce after their previous delta.
var ErrProducerNotInRotation = errors.New("producer not in rotation")

// Config ...
type Config struct {
	// Size bounds the number of candidates and of previous deltas tracked.
	Size int
	// TTL is how long a candidate is remembered after it was first scored.
	TTL time.Duration
	// VoterID is the producer id of this node, stamped on its favourites.
	VoterID string
	// Key signs favourites when set.
	Key *btcec.PrivateKey
	// Registerer receives the voter metrics. Nil disables them.
	Registerer prometheus.Registerer
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Size: DefaultSize,
		TTL:  DefaultTTL,
	}
}

// DeltaVoter ...
type DeltaVoter struct {
	// guards get-or-create of scores and buckets
	l sync.Mutex

	scores    *expirable.LRU[string, *delta.ScoredCandidateDelta]
	buckets   *expirable.LRU[string, []string]
	producers producers.ProducersProvider

	voterID string
	key     *btcec.PrivateKey

	metrics *voterMetrics
	logger  *logrus.Entry
}

// NewDeltaVoter ...
func NewDeltaVoter(conf Config, producers producers.ProducersProvider, logger *logrus.Entry) (*DeltaVoter, error) {
	metrics, err := newMetrics(conf.Registerer)
	if err != nil {
		return nil, err
	}

	v := &DeltaVoter{
		producers: producers,
		voterID:   conf.VoterID,
		key:       conf.Key,
		metrics:   metrics,
		logger:    logger,
	}

	v.scores = expirable.NewLRU[string, *delta.ScoredCandidateDelta](conf.Size, v.onScoreEvicted, conf.TTL)
	v.buckets = expirable.NewLRU[string, []string](conf.Size, nil, conf.TTL)

	return v, nil
}

func (v *DeltaVoter) onScoreEvicted(key string, s *delta.ScoredCandidateDelta) {
	v.logger.WithFields(logrus.Fields{
		"candidate":  key,
		"popularity": s.Popularity(),
	}).Debug("Evicted scored candidate")
}

// Vote scores candidate, or bumps its popularity when it was already seen.
func (v *DeltaVoter) Vote(candidate *delta.CandidateDeltaBroadcast) error {
	if err := candidate.IsValid(); err != nil {
		v.metrics.invalid.Inc()
		return err
	}

	previous := candidate.PreviousHash()

	ranking, err := v.producers.GetDeltaProducersFromPreviousDelta(previous)
	if err != nil {
		return fmt.Errorf("ranking producers after %s: %w", previous, err)
	}

	index := indexOf(ranking, candidate.ProducerID)
	if index < 0 {
		v.metrics.rotationViolations.Inc()
		return fmt.Errorf("%w: %s after %s", ErrProducerNotInRotation, candidate.ProducerID, previous)
	}

	key := candidate.Cid().String()

	v.l.Lock()
	defer v.l.Unlock()

	if scored, ok := v.scores.Get(key); ok {
		popularity := scored.Observe()
		v.metrics.duplicates.Inc()
		v.logger.WithFields(logrus.Fields{
			"candidate":  key,
			"popularity": popularity,
		}).Debug("Candidate observed again")
		return nil
	}

	score := int64(100*(len(ranking)-index) + 1)

	v.scores.Add(key, delta.NewScoredCandidate(candidate, score))

	bucketKey := previous.String()
	bucket, _ := v.buckets.Get(bucketKey)
	grown := make([]string, len(bucket), len(bucket)+1)
	copy(grown, bucket)
	v.buckets.Add(bucketKey, append(grown, key))

	v.metrics.candidates.Inc()

	v.logger.WithFields(logrus.Fields{
		"candidate":     key,
		"producer":      candidate.ProducerID,
		"previous_hash": bucketKey,
		"score":         score,
	}).Debug("Scored new candidate")

	return nil
}

// OnNext feeds a candidate received from the network. Errors are logged and
// never returned.
func (v *DeltaVoter) OnNext(candidate *delta.CandidateDeltaBroadcast) {
	err := v.Vote(candidate)
	switch {
	case err == nil:
	case errors.Is(err, ErrProducerNotInRotation):
		v.logger.WithError(err).Error("Rejected candidate")
	case delta.IsValidation(err):
		v.logger.WithError(err).Debug("Dropped malformed candidate")
	default:
		v.logger.WithError(err).Warn("Failed to vote for candidate")
	}
}

// Run feeds every candidate of candidates to OnNext until ctx is done or the
// channel is closed.
func (v *DeltaVoter) Run(ctx context.Context, candidates <-chan *delta.CandidateDeltaBroadcast) {
	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-candidates:
			if !ok {
				return
			}
			v.OnNext(c)
		}
	}
}

// TryGetFavouriteDelta returns this node's vote for the delta following
// previous: the best scored live candidate, ties going to the lowest hash.
func (v *DeltaVoter) TryGetFavouriteDelta(previous cid.Cid) (*delta.FavouriteDeltaBroadcast, bool) {
	v.l.Lock()

	bucket, ok := v.buckets.Get(previous.String())
	if !ok {
		v.l.Unlock()
		v.logger.WithField("previous_hash", previous).Debug("No candidate for previous delta")
		return nil, false
	}

	var best *delta.ScoredCandidateDelta
	for _, key := range bucket {
		scored, ok := v.scores.Get(key)
		if !ok {
			continue
		}

		if best == nil ||
			scored.Score > best.Score ||
			(scored.Score == best.Score && bytes.Compare(scored.Candidate.Hash, best.Candidate.Hash) < 0) {
			best = scored
		}
	}

	v.l.Unlock()

	if best == nil {
		return nil, false
	}

	favourite := &delta.FavouriteDeltaBroadcast{
		Candidate: best.Candidate,
		VoterID:   v.voterID,
	}

	if v.key != nil {
		if err := favourite.Sign(v.key); err != nil {
			v.logger.WithError(err).Warn("Failed to sign favourite")
		}
	}

	return favourite, true
}

// ScoredCandidate returns the score and popularity of a known candidate.
func (v *DeltaVoter) ScoredCandidate(hash cid.Cid) (*delta.ScoredCandidateDelta, bool) {
	v.l.Lock()
	defer v.l.Unlock()
	return v.scores.Get(hash.String())
}

func indexOf(ranking []string, id string) int {
	for i, p := range ranking {
		if p == id {
			return i
		}
	}
	return -1
}
