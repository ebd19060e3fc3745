package node

import (
	"context"
	"strconv"
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/net"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// StatsSource contributes to the node's stats.
type StatsSource interface {
	Len() int
}

// Node follows the cycles. It runs the events provider, the consensus and the
// dispatcher together.
type Node struct {
	state

	events      *CycleEventsProvider
	consensus   *Consensus
	dispatcher  *Dispatcher
	broadcaster net.Broadcaster
	hashes      LatestHashProvider

	// optional, for stats
	mempool StatsSource
	index   StatsSource

	start  time.Time
	logger *logrus.Entry
}

// NewNode ...
func NewNode(
	events *CycleEventsProvider,
	consensus *Consensus,
	dispatcher *Dispatcher,
	broadcaster net.Broadcaster,
	hashes LatestHashProvider,
	logger *logrus.Entry,
) *Node {
	n := &Node{
		events:      events,
		consensus:   consensus,
		dispatcher:  dispatcher,
		broadcaster: broadcaster,
		hashes:      hashes,
		start:       time.Now(),
		logger:      logger,
	}

	n.setState(Starting)

	return n
}

// SetStatsSources sets the components whose sizes are reported by GetStats.
func (n *Node) SetStatsSources(mempool, index StatsSource) {
	n.mempool = mempool
	n.index = index
}

// Run blocks until ctx is cancelled or one of the loops fails.
func (n *Node) Run(ctx context.Context) error {
	n.setState(Running)
	n.logger.WithField("addr", n.broadcaster.LocalAddr()).Info("Node running")

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.events.Run(ctx)
	})

	g.Go(func() error {
		return n.consensus.Run(ctx, n.events.PhaseChanges())
	})

	g.Go(func() error {
		return n.dispatcher.Run(ctx, n.broadcaster.Consumer(), n.goFunc)
	})

	err := g.Wait()

	n.waitRoutines()
	n.setState(Shutdown)
	n.logger.Info("Node stopped")

	return err
}

// GetState ...
func (n *Node) GetState() State {
	return n.getState()
}

// GetLatestDeltaHash ...
func (n *Node) GetLatestDeltaHash() cid.Cid {
	return n.hashes.GetLatestDeltaHash(nil)
}

// GetStats returns a summary of the node's activity.
func (n *Node) GetStats() map[string]string {
	phase := n.consensus.LastPhase()

	stats := map[string]string{
		"state":          n.getState().String(),
		"producer_id":    n.consensus.builder.ProducerID(),
		"addr":           n.broadcaster.LocalAddr(),
		"latest_delta":   hashString(n.GetLatestDeltaHash()),
		"last_published": hashString(n.consensus.LastPublished()),
		"phase":          phase.Name.String(),
		"phase_status":   phase.Status.String(),
		"num_routines":   strconv.Itoa(int(n.routines())),
		"uptime":         time.Since(n.start).Round(time.Second).String(),
	}

	if n.mempool != nil {
		stats["mempool_size"] = strconv.Itoa(n.mempool.Len())
	}
	if n.index != nil {
		stats["index_size"] = strconv.Itoa(n.index.Len())
	}

	return stats
}

func hashString(c cid.Cid) string {
	if !c.Defined() {
		return ""
	}
	return c.String()
}
