// Package cache holds the delta bodies a node can reach by hash.
//
// DeltaCache keeps two kinds of entries in separate expiring stores. Confirmed
// deltas are keyed by their DFS address and loaded from the DFS on a miss.
// Local deltas are the bodies this node built for its own candidates; they are
// keyed by a prefixed form of the candidate hash and never leave the node until
// the candidate wins and gets published.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/dfs"
	mbase "github.com/multiformats/go-multibase"
	"github.com/sirupsen/logrus"
)

// LocalDeltaPrefix prefixes the keys of local deltas.
const LocalDeltaPrefix = "DeltaCache-LocalDelta-"

// Default configuration values.
const (
	DefaultSize        = 10000
	DefaultTTL         = 3 * time.Minute
	DefaultReadTimeout = 5 * time.Second
)

// ErrDeltaNotFound is returned by TryGetOrAddConfirmedDelta when a delta
// cannot be found in memory nor in the DFS.
var ErrDeltaNotFound = errors.New("delta not found")

// Config ...
type Config struct {
	// Size bounds the number of entries of each kind; 0 means unbounded.
	Size int
	// TTL is the lifetime of an entry; 0 disables time-based expiry.
	TTL time.Duration
	// ReadTimeout bounds a DFS read on a cache miss.
	ReadTimeout time.Duration
}

// DefaultConfig ...
func DefaultConfig() Config {
	return Config{
		Size:        DefaultSize,
		TTL:         DefaultTTL,
		ReadTimeout: DefaultReadTimeout,
	}
}

type entry struct {
	candidate *delta.CandidateDeltaBroadcast
	delta     *delta.Delta
}

// DeltaCache ...
type DeltaCache struct {
	dfs          dfs.DFS
	hashProvider *crypto.HashProvider
	confirmed    *expirable.LRU[string, *entry]
	local        *expirable.LRU[string, *entry]
	readTimeout  time.Duration

	genesis     *delta.Delta
	genesisHash cid.Cid

	logger *logrus.Entry
}

// NewDeltaCache creates a DeltaCache seeded with the genesis delta. The
// genesis delta is held outside the expiring store so that the chain always
// has an anchor.
func NewDeltaCache(conf Config, store dfs.DFS, hashProvider *crypto.HashProvider, logger *logrus.Entry) (*DeltaCache, error) {
	genesis := delta.Genesis()

	data, err := genesis.Marshal()
	if err != nil {
		return nil, err
	}

	if conf.ReadTimeout <= 0 {
		conf.ReadTimeout = DefaultReadTimeout
	}

	c := &DeltaCache{
		dfs:          store,
		hashProvider: hashProvider,
		readTimeout:  conf.ReadTimeout,
		genesis:      genesis,
		genesisHash:  hashProvider.ComputeCid(data),
		logger:       logger,
	}

	c.confirmed = expirable.NewLRU[string, *entry](conf.Size, c.onEvicted, conf.TTL)
	c.local = expirable.NewLRU[string, *entry](conf.Size, c.onEvicted, conf.TTL)

	return c, nil
}

func (c *DeltaCache) onEvicted(key string, e *entry) {
	c.logger.WithField("key", key).Debug("Evicted delta from cache")
}

// GenesisHash returns the address of the genesis delta.
func (c *DeltaCache) GenesisHash() cid.Cid {
	return c.genesisHash
}

// TryGetConfirmedDelta looks for a confirmed delta in memory and falls back to
// the DFS. Deltas read from the DFS are memoized.
func (c *DeltaCache) TryGetConfirmedDelta(hash cid.Cid) (*delta.Delta, bool) {
	if hash.Equals(c.genesisHash) {
		return c.genesis, true
	}

	if e, ok := c.confirmed.Get(hash.String()); ok && e.delta != nil {
		return e.delta, true
	}

	d, err := c.readFromDfs(hash)
	if err != nil {
		if common.IsStore(err, common.KeyNotFound) {
			c.logger.WithField("hash", hash).Debug("Delta not found in DFS")
		} else {
			c.logger.WithError(err).WithField("hash", hash).Warn("Failed to read delta from DFS")
		}
		return nil, false
	}

	c.confirmed.Add(hash.String(), &entry{delta: d})

	return d, true
}

// TryGetOrAddConfirmedDelta is TryGetConfirmedDelta with an error instead of a
// boolean, for callers that must not proceed without the delta.
func (c *DeltaCache) TryGetOrAddConfirmedDelta(hash cid.Cid) (*delta.Delta, error) {
	d, ok := c.TryGetConfirmedDelta(hash)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrDeltaNotFound, hash)
	}
	return d, nil
}

// TryGetLocalDelta returns the body this node built for candidate.
func (c *DeltaCache) TryGetLocalDelta(candidate *delta.CandidateDeltaBroadcast) (*delta.Delta, bool) {
	key, err := localKey(candidate)
	if err != nil {
		return nil, false
	}

	e, ok := c.local.Get(key)
	if !ok {
		return nil, false
	}

	return e.delta, true
}

// AddLocalDelta registers, or replaces, the body of a locally built candidate.
func (c *DeltaCache) AddLocalDelta(candidate *delta.CandidateDeltaBroadcast, d *delta.Delta) {
	key, err := localKey(candidate)
	if err != nil {
		c.logger.WithError(err).Error("Cannot derive local delta key")
		return
	}

	c.logger.WithField("key", key).Debug("Adding local delta")

	c.local.Add(key, &entry{candidate: candidate, delta: d})
}

// ExpireOn purges every cached delta, except genesis, each time signal fires.
// It returns when signal is closed.
func (c *DeltaCache) ExpireOn(signal <-chan struct{}) {
	go func() {
		for range signal {
			c.logger.Debug("Expiry signal received, purging delta cache")
			c.confirmed.Purge()
			c.local.Purge()
		}
	}()
}

// Len returns the number of entries, genesis excluded.
func (c *DeltaCache) Len() int {
	return c.confirmed.Len() + c.local.Len()
}

func (c *DeltaCache) readFromDfs(hash cid.Cid) (*delta.Delta, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.readTimeout)
	defer cancel()

	data, err := c.dfs.Read(ctx, hash)
	if err != nil {
		return nil, err
	}

	if c.hashProvider.IsValidCid(hash) && !c.hashProvider.ComputeCid(data).Equals(hash) {
		return nil, fmt.Errorf("content does not match address %s", hash)
	}

	d := new(delta.Delta)
	if err := d.Unmarshal(data); err != nil {
		return nil, err
	}

	if err := d.IsValid(); err != nil {
		return nil, err
	}

	return d, nil
}

func localKey(candidate *delta.CandidateDeltaBroadcast) (string, error) {
	if candidate == nil || len(candidate.Hash) == 0 {
		return "", errors.New("candidate has no hash")
	}

	encoded, err := mbase.Encode(mbase.Base32, candidate.Hash)
	if err != nil {
		return "", err
	}

	return LocalDeltaPrefix + encoded, nil
}
