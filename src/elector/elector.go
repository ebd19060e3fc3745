// Package elector counts the favourite votes of the producers and elects the
// candidate delta to publish.
package elector

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/producers"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// Default configuration values.
const (
	DefaultSize = 1000
	DefaultTTL  = 3 * time.Minute
)

var (
	// ErrVoterNotProducer is returned for votes cast by a peer that is not a
	// producer after the voted candidate's previous delta.
	ErrVoterNotProducer = errors.New("voter is not a producer")
	// ErrInvalidSignature is returned for signed votes whose signature does
	// not match the voter.
	ErrInvalidSignature = errors.New("invalid favourite signature")
)

// Config ...
type Config struct {
	Size       int
	TTL        time.Duration
	Registerer prometheus.Registerer
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Size: DefaultSize,
		TTL:  DefaultTTL,
	}
}

type tally struct {
	candidate *delta.CandidateDeltaBroadcast
	votes     int
}

// ballot holds the votes cast for the deltas following one previous delta.
type ballot struct {
	tallies map[string]*tally
	voters  map[string]struct{}
}

func newBallot() *ballot {
	return &ballot{
		tallies: make(map[string]*tally),
		voters:  make(map[string]struct{}),
	}
}

// DeltaElector ...
type DeltaElector struct {
	l sync.Mutex

	ballots   *expirable.LRU[string, *ballot]
	producers producers.ProducersProvider

	metrics *electorMetrics
	logger  *logrus.Entry
}

// NewDeltaElector ...
func NewDeltaElector(conf Config, producers producers.ProducersProvider, logger *logrus.Entry) (*DeltaElector, error) {
	metrics, err := newMetrics(conf.Registerer)
	if err != nil {
		return nil, err
	}

	return &DeltaElector{
		ballots:   expirable.NewLRU[string, *ballot](conf.Size, nil, conf.TTL),
		producers: producers,
		metrics:   metrics,
		logger:    logger,
	}, nil
}

// Record counts favourite. Votes are deduplicated by candidate and voter.
func (e *DeltaElector) Record(favourite *delta.FavouriteDeltaBroadcast) error {
	if err := favourite.IsValid(); err != nil {
		e.metrics.rejected.WithLabelValues("invalid").Inc()
		return err
	}

	previous := favourite.Candidate.PreviousHash()

	ranking, err := e.producers.GetDeltaProducersFromPreviousDelta(previous)
	if err != nil {
		return fmt.Errorf("ranking producers after %s: %w", previous, err)
	}

	if !contains(ranking, favourite.VoterID) {
		e.metrics.rejected.WithLabelValues("not_producer").Inc()
		return fmt.Errorf("%w: %s after %s", ErrVoterNotProducer, favourite.VoterID, previous)
	}

	if favourite.Signature != "" && !favourite.Verify() {
		e.metrics.rejected.WithLabelValues("signature").Inc()
		return fmt.Errorf("%w: from %s", ErrInvalidSignature, favourite.VoterID)
	}

	candidateKey := favourite.Candidate.Cid().String()
	voteKey := candidateKey + "/" + favourite.VoterID

	e.l.Lock()
	defer e.l.Unlock()

	b, ok := e.ballots.Get(previous.String())
	if !ok {
		b = newBallot()
		e.ballots.Add(previous.String(), b)
	}

	if _, ok := b.voters[voteKey]; ok {
		e.metrics.duplicates.Inc()
		return nil
	}
	b.voters[voteKey] = struct{}{}

	t, ok := b.tallies[candidateKey]
	if !ok {
		t = &tally{candidate: favourite.Candidate}
		b.tallies[candidateKey] = t
	}
	t.votes++

	e.metrics.votes.Inc()

	e.logger.WithFields(logrus.Fields{
		"candidate": candidateKey,
		"voter":     favourite.VoterID,
		"votes":     t.votes,
	}).Debug("Recorded favourite")

	return nil
}

// OnNext records a favourite received from the network, logging errors.
func (e *DeltaElector) OnNext(favourite *delta.FavouriteDeltaBroadcast) {
	if err := e.Record(favourite); err != nil {
		e.logger.WithError(err).Debug("Dropped favourite")
	}
}

// GetMostPopularCandidateDelta elects the candidate following previous. Only
// candidates holding at least a third of the producers' votes are eligible;
// among them the most voted wins, ties going to the highest hash.
func (e *DeltaElector) GetMostPopularCandidateDelta(previous cid.Cid) (*delta.CandidateDeltaBroadcast, bool) {
	ranking, err := e.producers.GetDeltaProducersFromPreviousDelta(previous)
	if err != nil {
		e.logger.WithError(err).Warn("Cannot rank producers for election")
		return nil, false
	}

	threshold := len(ranking) / 3

	e.l.Lock()

	b, ok := e.ballots.Get(previous.String())
	if !ok {
		e.l.Unlock()
		e.metrics.noQuorum.Inc()
		return nil, false
	}

	eligible := make([]tally, 0, len(b.tallies))
	for _, t := range b.tallies {
		if t.votes >= threshold {
			eligible = append(eligible, *t)
		}
	}

	e.l.Unlock()

	if len(eligible) == 0 {
		e.metrics.noQuorum.Inc()
		e.logger.WithFields(logrus.Fields{
			"previous_hash": previous,
			"threshold":     threshold,
		}).Debug("No candidate reached the threshold")
		return nil, false
	}

	sort.Slice(eligible, func(i, j int) bool {
		if eligible[i].votes != eligible[j].votes {
			return eligible[i].votes > eligible[j].votes
		}
		return bytes.Compare(eligible[i].candidate.Hash, eligible[j].candidate.Hash) > 0
	})

	e.metrics.elected.Inc()

	return eligible[0].candidate, true
}

// Votes returns the number of votes counted for candidate.
func (e *DeltaElector) Votes(candidate *delta.CandidateDeltaBroadcast) int {
	e.l.Lock()
	defer e.l.Unlock()

	b, ok := e.ballots.Get(candidate.PreviousHash().String())
	if !ok {
		return 0
	}

	t, ok := b.tallies[candidate.Cid().String()]
	if !ok {
		return 0
	}

	return t.votes
}

func contains(ranking []string, id string) bool {
	for _, p := range ranking {
		if p == id {
			return true
		}
	}
	return false
}
