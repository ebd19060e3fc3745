package node

import (
	"context"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/net"
	"github.com/sirupsen/logrus"
)

// CandidateObserver ...
type CandidateObserver interface {
	OnNext(candidate *delta.CandidateDeltaBroadcast)
}

// FavouriteObserver ...
type FavouriteObserver interface {
	OnNext(favourite *delta.FavouriteDeltaBroadcast)
}

// Dispatcher routes the messages received from other nodes to the component
// that handles them.
type Dispatcher struct {
	voter   CandidateObserver
	elector FavouriteObserver
	chain   ChainUpdater

	logger *logrus.Entry
}

// NewDispatcher ...
func NewDispatcher(voter CandidateObserver, elector FavouriteObserver, chain ChainUpdater, logger *logrus.Entry) *Dispatcher {
	return &Dispatcher{
		voter:   voter,
		elector: elector,
		chain:   chain,
		logger:  logger,
	}
}

// Run dispatches messages until the channel is closed or ctx is cancelled.
// Each message is handled through goFunc so a slow handler does not hold the
// consumer.
func (d *Dispatcher) Run(ctx context.Context, msgs <-chan *net.Message, goFunc func(func())) error {
	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			goFunc(func() { d.Dispatch(msg) })
		case <-ctx.Done():
			return nil
		}
	}
}

// Dispatch handles one message. Malformed messages are logged and dropped.
func (d *Dispatcher) Dispatch(msg *net.Message) {
	logger := d.logger.WithFields(logrus.Fields{
		"type":           msg.Type,
		"sender":         msg.Sender,
		"correlation_id": msg.CorrelationID,
	})

	switch msg.Type {
	case net.CandidateDeltaMsg:
		var candidate delta.CandidateDeltaBroadcast
		if err := msg.Decode(&candidate); err != nil {
			logger.WithError(err).Warn("Failed to decode candidate delta")
			return
		}
		d.voter.OnNext(&candidate)

	case net.FavouriteDeltaMsg:
		var favourite delta.FavouriteDeltaBroadcast
		if err := msg.Decode(&favourite); err != nil {
			logger.WithError(err).Warn("Failed to decode favourite delta")
			return
		}
		d.elector.OnNext(&favourite)

	case net.DeltaDfsHashMsg:
		var notice delta.DeltaDfsHashBroadcast
		if err := msg.Decode(&notice); err != nil {
			logger.WithError(err).Warn("Failed to decode delta DFS hash")
			return
		}
		if err := notice.IsValid(); err != nil {
			logger.WithError(err).Warn("Invalid delta DFS hash")
			return
		}

		previous, _ := cid.Cast(notice.PreviousDeltaDfsHash)
		address, _ := cid.Cast(notice.DeltaDfsHash)

		if !d.chain.TryUpdateLatestHash(previous, address) {
			logger.WithField("delta", address).Debug("Delta DFS hash did not extend the chain")
		}

	default:
		logger.Warn("Unknown message type")
	}
}
