// Package hashprovider maintains the chain of confirmed delta hashes.
//
// The chain is kept in a bounded index ordered by delta timestamp, newest
// first. An update is only accepted when the new delta links to the given
// previous delta and is strictly more recent; the oldest entries are dropped
// once the capacity is reached. Every accepted hash is pushed to subscribers.
package hashprovider

import (
	"sync"
	"time"

	"github.com/google/btree"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
)

// DefaultCapacity is the number of hashes retained in the index.
const DefaultCapacity = 10000

// DeltaCache resolves confirmed deltas by hash.
type DeltaCache interface {
	TryGetOrAddConfirmedDelta(hash cid.Cid) (*delta.Delta, error)
	GenesisHash() cid.Cid
}

// Config ...
type Config struct {
	Capacity   int
	Registerer prometheus.Registerer
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
	}
}

type entry struct {
	timestamp time.Time
	hash      cid.Cid
}

// newest first, then by hash bytes
func less(a, b entry) bool {
	if !a.timestamp.Equal(b.timestamp) {
		return a.timestamp.After(b.timestamp)
	}
	return a.hash.KeyString() < b.hash.KeyString()
}

// DeltaHashProvider ...
type DeltaHashProvider struct {
	l sync.RWMutex

	cache    DeltaCache
	capacity int
	index    *btree.BTreeG[entry]
	present  map[string]struct{}

	latest      cid.Cid
	subscribers map[int]chan cid.Cid
	nextSub     int

	metrics *hashProviderMetrics
	logger  *logrus.Entry
}

// NewDeltaHashProvider creates a provider whose chain starts at the genesis
// delta of cache.
func NewDeltaHashProvider(conf Config, cache DeltaCache, logger *logrus.Entry) (*DeltaHashProvider, error) {
	metrics, err := newMetrics(conf.Registerer)
	if err != nil {
		return nil, err
	}

	if conf.Capacity <= 0 {
		conf.Capacity = DefaultCapacity
	}

	genesis := cache.GenesisHash()

	p := &DeltaHashProvider{
		cache:       cache,
		capacity:    conf.Capacity,
		index:       btree.NewG[entry](16, less),
		present:     make(map[string]struct{}),
		latest:      genesis,
		subscribers: make(map[int]chan cid.Cid),
		metrics:     metrics,
		logger:      logger,
	}

	p.insert(entry{timestamp: delta.Genesis().Timestamp, hash: genesis})

	return p, nil
}

// GenesisHash ...
func (p *DeltaHashProvider) GenesisHash() cid.Cid {
	return p.cache.GenesisHash()
}

// TryUpdateLatestHash appends newHash to the chain after previousHash. It
// returns false, without changing anything, when either delta cannot be
// resolved, when they are not linked or not in time order, or when newHash is
// already part of the chain.
func (p *DeltaHashProvider) TryUpdateLatestHash(previousHash, newHash cid.Cid) bool {
	fields := logrus.Fields{
		"previous_hash": previousHash,
		"new_hash":      newHash,
	}

	previousDelta, err := p.cache.TryGetOrAddConfirmedDelta(previousHash)
	if err != nil {
		p.metrics.rejected.WithLabelValues("unresolved").Inc()
		p.logger.WithError(err).WithFields(fields).Warn("Cannot resolve previous delta")
		return false
	}

	newDelta, err := p.cache.TryGetOrAddConfirmedDelta(newHash)
	if err != nil {
		p.metrics.rejected.WithLabelValues("unresolved").Inc()
		p.logger.WithError(err).WithFields(fields).Warn("Cannot resolve new delta")
		return false
	}

	if !newDelta.PreviousHash().Equals(previousHash) {
		p.metrics.rejected.WithLabelValues("unlinked").Inc()
		p.logger.WithFields(fields).Warn("New delta does not follow previous delta")
		return false
	}

	if !previousDelta.Timestamp.Before(newDelta.Timestamp) {
		p.metrics.rejected.WithLabelValues("out_of_order").Inc()
		p.logger.WithFields(fields).Warn("New delta is not more recent than previous delta")
		return false
	}

	p.l.Lock()
	defer p.l.Unlock()

	if _, ok := p.present[newHash.KeyString()]; ok {
		p.metrics.rejected.WithLabelValues("duplicate").Inc()
		p.logger.WithFields(fields).Debug("Delta hash already in chain")
		return false
	}

	p.insert(entry{timestamp: newDelta.Timestamp, hash: newHash})

	for p.index.Len() > p.capacity {
		oldest, _ := p.index.DeleteMax()
		delete(p.present, oldest.hash.KeyString())
	}

	p.metrics.updates.Inc()
	p.metrics.size.Set(float64(p.index.Len()))

	p.publish(newHash)

	p.logger.WithFields(fields).Info("Updated latest delta hash")

	return true
}

func (p *DeltaHashProvider) insert(e entry) {
	p.index.ReplaceOrInsert(e)
	p.present[e.hash.KeyString()] = struct{}{}
}

// GetLatestDeltaHash returns the head of the chain, or, when asOf is set, the
// most recent hash whose delta is not younger than asOf. It returns cid.Undef
// when the retained window does not go back that far.
func (p *DeltaHashProvider) GetLatestDeltaHash(asOf *time.Time) cid.Cid {
	p.l.RLock()
	defer p.l.RUnlock()

	if asOf == nil {
		head, ok := p.index.Min()
		if !ok {
			return cid.Undef
		}
		return head.hash
	}

	res := cid.Undef
	p.index.AscendGreaterOrEqual(entry{timestamp: *asOf, hash: cid.Undef}, func(e entry) bool {
		res = e.hash
		return false
	})

	return res
}

// Len returns the number of hashes retained.
func (p *DeltaHashProvider) Len() int {
	p.l.RLock()
	defer p.l.RUnlock()
	return p.index.Len()
}

// Subscribe returns a stream of the hashes appended to the chain, starting
// with the latest one. A slow subscriber only sees the most recent hash. The
// returned function cancels the subscription and closes the stream.
func (p *DeltaHashProvider) Subscribe() (<-chan cid.Cid, func()) {
	p.l.Lock()
	defer p.l.Unlock()

	id := p.nextSub
	p.nextSub++

	ch := make(chan cid.Cid, 1)
	ch <- p.latest
	p.subscribers[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			p.l.Lock()
			defer p.l.Unlock()
			delete(p.subscribers, id)
			close(ch)
		})
	}

	return ch, cancel
}

// publish must be called with the write lock held.
func (p *DeltaHashProvider) publish(hash cid.Cid) {
	p.latest = hash

	for _, ch := range p.subscribers {
		select {
		case ch <- hash:
			continue
		default:
		}

		// replace the stale value
		select {
		case <-ch:
		default:
		}

		select {
		case ch <- hash:
		default:
		}
	}
}
