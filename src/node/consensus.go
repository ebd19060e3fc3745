package node

import (
	"context"
	"sync"
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/producers"
	"github.com/sirupsen/logrus"
)

// CandidateBuilder builds this node's candidate on top of a previous delta.
type CandidateBuilder interface {
	ProducerID() string
	BuildCandidateDelta(previous cid.Cid) (*delta.CandidateDeltaBroadcast, error)
}

// Voter scores candidates and picks a favourite.
type Voter interface {
	OnNext(candidate *delta.CandidateDeltaBroadcast)
	TryGetFavouriteDelta(previous cid.Cid) (*delta.FavouriteDeltaBroadcast, bool)
}

// Elector counts favourites and picks the winning candidate.
type Elector interface {
	OnNext(favourite *delta.FavouriteDeltaBroadcast)
	GetMostPopularCandidateDelta(previous cid.Cid) (*delta.CandidateDeltaBroadcast, bool)
}

// LocalDeltas holds the bodies of the candidates built by this node.
type LocalDeltas interface {
	TryGetLocalDelta(candidate *delta.CandidateDeltaBroadcast) (*delta.Delta, bool)
}

// Hub sends this node's contributions to the network.
type Hub interface {
	BroadcastCandidate(ctx context.Context, candidate *delta.CandidateDeltaBroadcast) error
	BroadcastFavourite(ctx context.Context, favourite *delta.FavouriteDeltaBroadcast) error
	PublishToDfs(ctx context.Context, d *delta.Delta) (cid.Cid, error)
}

// ChainUpdater extends the chain of confirmed delta hashes.
type ChainUpdater interface {
	TryUpdateLatestHash(previousHash, newHash cid.Cid) bool
}

// Consensus reacts to the phases of the cycle.
type Consensus struct {
	builder   CandidateBuilder
	voter     Voter
	elector   Elector
	local     LocalDeltas
	hub       Hub
	chain     ChainUpdater
	producers producers.ProducersProvider

	mu        sync.RWMutex
	lastPhase Phase
	published cid.Cid

	logger *logrus.Entry
}

// NewConsensus ...
func NewConsensus(
	builder CandidateBuilder,
	voter Voter,
	elector Elector,
	local LocalDeltas,
	hub Hub,
	chain ChainUpdater,
	producers producers.ProducersProvider,
	logger *logrus.Entry,
) *Consensus {
	return &Consensus{
		builder:   builder,
		voter:     voter,
		elector:   elector,
		local:     local,
		hub:       hub,
		chain:     chain,
		producers: producers,
		logger:    logger.WithField("producer", builder.ProducerID()),
	}
}

// Run handles phases until the channel is closed or ctx is cancelled.
func (c *Consensus) Run(ctx context.Context, phases <-chan Phase) error {
	for {
		select {
		case phase, ok := <-phases:
			if !ok {
				return nil
			}
			c.OnPhase(ctx, phase)
		case <-ctx.Done():
			return nil
		}
	}
}

// OnPhase performs this node's part of a phase. Only the Producing status of
// the first three phases triggers work.
func (c *Consensus) OnPhase(ctx context.Context, phase Phase) {
	c.mu.Lock()
	c.lastPhase = phase
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"phase":  phase.Name,
		"status": phase.Status,
	}).Debug("Phase")

	if phase.Status != Producing {
		return
	}

	switch phase.Name {
	case Construction:
		c.construct(ctx, phase.PreviousDeltaDfsHash)
	case Campaigning:
		c.campaign(ctx, phase.PreviousDeltaDfsHash)
	case Voting:
		c.elect(ctx, phase.PreviousDeltaDfsHash)
	}
}

// LastPhase ...
func (c *Consensus) LastPhase() Phase {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastPhase
}

func (c *Consensus) isProducer(previous cid.Cid) bool {
	ids, err := c.producers.GetDeltaProducersFromPreviousDelta(previous)
	if err != nil {
		c.logger.WithError(err).Error("Failed to get delta producers")
		return false
	}

	for _, id := range ids {
		if id == c.builder.ProducerID() {
			return true
		}
	}

	return false
}

func (c *Consensus) construct(ctx context.Context, previous cid.Cid) {
	if !c.isProducer(previous) {
		c.logger.WithField("previous_hash", previous).Debug("Not producing for this cycle")
		return
	}

	candidate, err := c.builder.BuildCandidateDelta(previous)
	if err != nil {
		c.logger.WithError(err).Error("Failed to build candidate delta")
		return
	}

	c.voter.OnNext(candidate)

	if err := c.hub.BroadcastCandidate(ctx, candidate); err != nil {
		c.logger.WithError(err).Error("Failed to broadcast candidate delta")
	}
}

func (c *Consensus) campaign(ctx context.Context, previous cid.Cid) {
	if !c.isProducer(previous) {
		return
	}

	favourite, ok := c.voter.TryGetFavouriteDelta(previous)
	if !ok {
		c.logger.WithField("previous_hash", previous).Debug("No favourite candidate")
		return
	}

	if err := c.hub.BroadcastFavourite(ctx, favourite); err != nil {
		c.logger.WithError(err).Error("Failed to broadcast favourite delta")
	}

	c.elector.OnNext(favourite)
}

func (c *Consensus) elect(ctx context.Context, previous cid.Cid) {
	candidate, ok := c.elector.GetMostPopularCandidateDelta(previous)
	if !ok {
		c.logger.WithField("previous_hash", previous).Debug("No elected candidate")
		return
	}

	d, ok := c.local.TryGetLocalDelta(candidate)
	if !ok {
		// Another producer built it. Its DFS announcement extends the chain.
		c.logger.WithField("candidate", candidate.Cid()).Debug("Elected candidate is not local")
		return
	}

	start := time.Now()

	address, err := c.hub.PublishToDfs(ctx, d)
	if err != nil {
		c.logger.WithError(err).Error("Failed to publish delta")
		return
	}

	if !c.chain.TryUpdateLatestHash(d.PreviousHash(), address) {
		c.logger.WithField("delta", address).Warn("Published delta did not extend the chain")
		return
	}

	c.mu.Lock()
	c.published = address
	c.mu.Unlock()

	c.logger.WithFields(logrus.Fields{
		"delta":    address,
		"duration": time.Since(start),
	}).Info("Delta confirmed")
}

// LastPublished returns the last delta this node published and confirmed.
func (c *Consensus) LastPublished() cid.Cid {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.published
}
