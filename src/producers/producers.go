// Package producers decides which peers may produce the delta following a
// given previous delta, and in which order of preference.
package producers

import (
	"bytes"
	"fmt"
	"sort"

	lru "github.com/hashicorp/golang-lru/v2"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/peers"
	"github.com/sirupsen/logrus"
)

// DefaultRankingCacheSize is the number of rankings kept in memory.
const DefaultRankingCacheSize = 100

// ProducersProvider returns the producers allowed to build the delta following
// previous, best ranked first.
type ProducersProvider interface {
	GetDeltaProducersFromPreviousDelta(previous cid.Cid) ([]string, error)
}

// PoaProducersProvider ranks every peer of a fixed set. A peer's position is
// given by the hash of its public key concatenated with the previous delta
// hash, so the ranking rotates from one delta to the next while every node
// computes the same one.
type PoaProducersProvider struct {
	peerSet      *peers.PeerSet
	hashProvider *crypto.HashProvider
	rankings     *lru.Cache[string, []string]
	logger       *logrus.Entry
}

// NewPoaProducersProvider ...
func NewPoaProducersProvider(peerSet *peers.PeerSet, hashProvider *crypto.HashProvider, cacheSize int, logger *logrus.Entry) (*PoaProducersProvider, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultRankingCacheSize
	}

	rankings, err := lru.New[string, []string](cacheSize)
	if err != nil {
		return nil, err
	}

	return &PoaProducersProvider{
		peerSet:      peerSet,
		hashProvider: hashProvider,
		rankings:     rankings,
		logger:       logger,
	}, nil
}

// GetDeltaProducersFromPreviousDelta implements ProducersProvider. The
// returned slice must not be modified.
func (p *PoaProducersProvider) GetDeltaProducersFromPreviousDelta(previous cid.Cid) ([]string, error) {
	if !previous.Defined() {
		return nil, fmt.Errorf("cannot rank producers after an undefined delta")
	}

	key := previous.KeyString()

	if ranking, ok := p.rankings.Get(key); ok {
		return ranking, nil
	}

	type ranked struct {
		id   string
		rank []byte
	}

	prev := previous.Bytes()
	all := make([]ranked, 0, p.peerSet.Len())

	for _, peer := range p.peerSet.Peers {
		pub, err := peer.PubKeyBytes()
		if err != nil {
			return nil, err
		}

		all = append(all, ranked{
			id:   peer.PubKeyString(),
			rank: p.hashProvider.ComputeMultiHash(pub, prev),
		})
	}

	sort.Slice(all, func(i, j int) bool {
		return bytes.Compare(all[i].rank, all[j].rank) < 0
	})

	ranking := make([]string, len(all))
	for i, r := range all {
		ranking[i] = r.id
	}

	p.rankings.Add(key, ranking)

	p.logger.WithFields(logrus.Fields{
		"previous_hash": previous,
		"producers":     len(ranking),
	}).Debug("Ranked producers")

	return ranking, nil
}

// StaticProducersProvider returns the same ranking for every delta.
type StaticProducersProvider struct {
	Producers []string
}

// GetDeltaProducersFromPreviousDelta implements ProducersProvider.
func (s *StaticProducersProvider) GetDeltaProducersFromPreviousDelta(previous cid.Cid) ([]string, error) {
	return s.Producers, nil
}
