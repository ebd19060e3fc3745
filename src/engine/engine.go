package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/btcsuite/btcd/btcec"
	"github.com/libp2p/go-libp2p"
	"github.com/mosaicnetworks/delta/src/builder"
	"github.com/mosaicnetworks/delta/src/cache"
	"github.com/mosaicnetworks/delta/src/config"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/crypto/keys"
	"github.com/mosaicnetworks/delta/src/dfs"
	"github.com/mosaicnetworks/delta/src/elector"
	"github.com/mosaicnetworks/delta/src/hashprovider"
	"github.com/mosaicnetworks/delta/src/hub"
	"github.com/mosaicnetworks/delta/src/mempool"
	"github.com/mosaicnetworks/delta/src/net"
	"github.com/mosaicnetworks/delta/src/node"
	"github.com/mosaicnetworks/delta/src/peers"
	"github.com/mosaicnetworks/delta/src/producers"
	"github.com/mosaicnetworks/delta/src/service"
	"github.com/mosaicnetworks/delta/src/voter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Engine is the actor that initialises and runs all the components of a delta
// node.
type Engine struct {
	Config *config.Config

	// Peers can be set before Init to skip loading peers.json.
	Peers *peers.PeerSet

	// Transport can be set before Init to skip creating one.
	Transport net.Broadcaster

	// Store can be set before Init to share a DFS between engines.
	Store dfs.DFS

	ProducerID   string
	HashProvider *crypto.HashProvider
	Cache        *cache.DeltaCache
	Hashes       *hashprovider.DeltaHashProvider
	Mempool      *mempool.InmemMempool
	Producers    producers.ProducersProvider
	Builder      *builder.DeltaBuilder
	Voter        *voter.DeltaVoter
	Elector      *elector.DeltaElector
	Hub          *hub.DeltaHub
	Node         *node.Node
	Service      *service.Service

	registerer prometheus.Registerer
	gatherer   prometheus.Gatherer

	expiry chan struct{}

	logger *logrus.Entry
}

// NewEngine ...
func NewEngine(conf *config.Config) *Engine {
	return &Engine{
		Config: conf,
		logger: conf.Logger(),
	}
}

// Init initialises every component, in dependency order.
func (e *Engine) Init() error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"key", e.initKey},
		{"peers", e.initPeers},
		{"hashing", e.initHashing},
		{"metrics", e.initMetrics},
		{"store", e.initStore},
		{"cache", e.initCache},
		{"hash provider", e.initHashProvider},
		{"mempool", e.initMempool},
		{"builder", e.initBuilder},
		{"voter", e.initVoter},
		{"elector", e.initElector},
		{"transport", e.initTransport},
		{"hub", e.initHub},
		{"node", e.initNode},
		{"service", e.initService},
	}

	for _, s := range steps {
		if err := s.fn(); err != nil {
			return fmt.Errorf("initialising %s: %w", s.name, err)
		}
	}

	return nil
}

func (e *Engine) initKey() error {
	if e.Config.Key == nil {
		keyfile := keys.NewSimpleKeyfile(e.Config.Keyfile())

		privKey, err := keyfile.ReadKey()
		if err != nil {
			e.logger.WithError(err).Warn("Cannot read private key from file")

			privKey, err = Keygen(e.Config.DataDir)
			if err != nil {
				e.logger.WithError(err).Error("Cannot generate a new private key")
				return err
			}

			e.logger.WithField("pub", keys.PublicKeyHex(privKey.PubKey())).Info("Created a new key")
		}

		e.Config.Key = privKey
	}

	e.ProducerID = keys.PublicKeyHex(e.Config.Key.PubKey())
	e.logger = e.logger.WithField("producer", e.ProducerID)

	return nil
}

func (e *Engine) initPeers() error {
	if e.Peers != nil {
		return nil
	}

	peerSet, err := peers.NewJSONPeerSet(e.Config.DataDir).PeerSet()
	if err != nil {
		return err
	}
	if peerSet == nil || peerSet.Len() == 0 {
		return fmt.Errorf("peers.json should define at least one producer")
	}

	e.Peers = peerSet

	return nil
}

func (e *Engine) initHashing() error {
	hp, err := crypto.NewHashProvider(e.Config.Hashing)
	if err != nil {
		return err
	}

	e.HashProvider = hp

	return nil
}

func (e *Engine) initMetrics() error {
	if e.Config.Registerer != nil {
		e.registerer = e.Config.Registerer
		if g, ok := e.Config.Registerer.(prometheus.Gatherer); ok {
			e.gatherer = g
		}
		return nil
	}

	registry := prometheus.NewRegistry()
	if err := registry.Register(collectors.NewGoCollector()); err != nil {
		return err
	}
	if err := registry.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return err
	}

	e.registerer = registry
	e.gatherer = registry

	return nil
}

func (e *Engine) initStore() error {
	if e.Store != nil {
		return nil
	}

	if !e.Config.Store {
		e.Store = dfs.NewInmemDFS(e.HashProvider)
		e.logger.Debug("created new in-mem DFS")
		return nil
	}

	e.logger.WithField("path", e.Config.DatabaseDir).Debug("Attempting to load or create database")

	store, err := dfs.NewBadgerDFS(e.HashProvider, e.Config.DatabaseDir, e.logger.WithField("prefix", "badger-dfs"))
	if err != nil {
		return err
	}

	e.Store = store

	return nil
}

func (e *Engine) initCache() error {
	conf := cache.DefaultConfig()
	conf.Size = e.Config.CacheSize
	conf.TTL = e.Config.CacheTTL

	c, err := cache.NewDeltaCache(conf, e.Store, e.HashProvider, e.logger.WithField("prefix", "delta-cache"))
	if err != nil {
		return err
	}

	e.Cache = c
	e.expiry = make(chan struct{}, 1)
	e.Cache.ExpireOn(e.expiry)

	return nil
}

func (e *Engine) initHashProvider() error {
	h, err := hashprovider.NewDeltaHashProvider(
		hashprovider.Config{Capacity: e.Config.HashCapacity, Registerer: e.registerer},
		e.Cache,
		e.logger.WithField("prefix", "delta-hash-provider"),
	)
	if err != nil {
		return err
	}

	e.Hashes = h

	return nil
}

func (e *Engine) initMempool() error {
	e.Mempool = mempool.NewInmemMempool(e.HashProvider, e.logger.WithField("prefix", "mempool"))
	return nil
}

func (e *Engine) initBuilder() error {
	var policy builder.AcceptancePolicy

	switch e.Config.Policy {
	case config.LockTimePolicy:
		policy = builder.NewLockTimePolicy(nil)
	case config.GasPolicy:
		policy = &builder.GasLimitPolicy{
			DeltaGasLimit:               e.Config.DeltaGasLimit,
			MinTransactionEntryGasLimit: e.Config.MinGasLimit,
		}
	default:
		return fmt.Errorf("unknown acceptance policy %q", e.Config.Policy)
	}

	provider, err := producers.NewPoaProducersProvider(e.Peers, e.HashProvider, 0, e.logger.WithField("prefix", "producers"))
	if err != nil {
		return err
	}
	e.Producers = provider

	e.Builder = builder.NewDeltaBuilder(
		e.Mempool,
		policy,
		e.HashProvider,
		e.Cache,
		keys.FromPublicKey(e.Config.Key.PubKey()),
		e.logger.WithField("prefix", "delta-builder"),
	)

	return nil
}

func (e *Engine) initVoter() error {
	v, err := voter.NewDeltaVoter(voter.Config{
		Size:       e.Config.CacheSize,
		TTL:        e.Config.CacheTTL,
		VoterID:    e.ProducerID,
		Key:        e.Config.Key,
		Registerer: e.registerer,
	}, e.Producers, e.logger.WithField("prefix", "delta-voter"))
	if err != nil {
		return err
	}

	e.Voter = v

	return nil
}

func (e *Engine) initElector() error {
	el, err := elector.NewDeltaElector(elector.Config{
		Size:       e.Config.CacheSize,
		TTL:        e.Config.CacheTTL,
		Registerer: e.registerer,
	}, e.Producers, e.logger.WithField("prefix", "delta-elector"))
	if err != nil {
		return err
	}

	e.Elector = el

	return nil
}

func (e *Engine) initTransport() error {
	if e.Transport != nil {
		return nil
	}

	switch e.Config.Transport {
	case config.InmemTransport:
		_, trans := net.NewInmemBroadcaster(e.ProducerID)
		e.Transport = trans
	case config.Libp2pTransport:
		identity, err := net.IdentityFromKey(e.Config.Key)
		if err != nil {
			return err
		}

		trans, err := net.NewGossipBroadcaster(context.Background(), net.GossipOptions{
			ListenAddrs: []string{e.Config.BindAddr},
			Options:     []libp2p.Option{identity},
		}, e.logger.WithField("prefix", "gossip"))
		if err != nil {
			return err
		}

		e.Transport = trans
	default:
		return fmt.Errorf("unknown transport %q", e.Config.Transport)
	}

	return nil
}

func (e *Engine) initHub() error {
	conf := hub.DefaultConfig()
	conf.ProducerID = e.ProducerID
	conf.DfsRetries = e.Config.DfsRetries
	conf.DfsRetryInterval = e.Config.DfsRetryInterval
	conf.Registerer = e.registerer

	h, err := hub.NewDeltaHub(conf, e.Transport, e.Store, e.logger.WithField("prefix", "delta-hub"))
	if err != nil {
		return err
	}

	e.Hub = h

	return nil
}

func (e *Engine) initNode() error {
	cycle := node.NewCycleConfiguration(
		e.Config.CycleConstruction,
		e.Config.CycleCampaigning,
		e.Config.CycleVoting,
		e.Config.CycleSynchronisation,
	)

	logger := e.logger.WithField("prefix", "node")

	events, err := node.NewCycleEventsProvider(cycle, e.Hashes, logger)
	if err != nil {
		return err
	}

	consensus := node.NewConsensus(e.Builder, e.Voter, e.Elector, e.Cache, e.Hub, e.Hashes, e.Producers, logger)
	dispatcher := node.NewDispatcher(e.Voter, e.Elector, e.Hashes, logger)

	e.Node = node.NewNode(events, consensus, dispatcher, e.Transport, e.Hashes, logger)
	e.Node.SetStatsSources(e.Mempool, e.Hashes)

	if !e.Peers.Contains(e.ProducerID) {
		e.logger.Warn("This node is not a producer and will only follow the chain")
	}

	return nil
}

func (e *Engine) initService() error {
	if e.Config.NoService || e.Config.ServiceAddr == "" {
		return nil
	}

	e.Service = service.NewService(e.Config.ServiceAddr, service.Backend{
		Node:       e.Node,
		Hashes:     e.Hashes,
		Deltas:     e.Cache,
		Favourites: e.Voter,
		Mempool:    e.Mempool,
		Peers:      e.Peers,
		Gatherer:   e.gatherer,
	}, e.logger.WithField("prefix", "service"))

	return nil
}

// Run starts the node and the service, and blocks until ctx is cancelled or
// one of them fails.
func (e *Engine) Run(ctx context.Context) error {
	if g, ok := e.Transport.(*net.GossipBroadcaster); ok {
		for _, addr := range e.Config.Bootstrap {
			if err := g.Connect(ctx, addr); err != nil {
				e.logger.WithError(err).WithField("addr", addr).Warn("Failed to connect to bootstrap peer")
			}
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.Node.Run(ctx)
	})

	g.Go(func() error {
		e.pruneMempool(ctx)
		return nil
	})

	if e.Service != nil {
		g.Go(func() error {
			return e.Service.Serve(ctx)
		})
	}

	return g.Wait()
}

// pruneMempool removes the transactions of every confirmed delta from the
// mempool.
func (e *Engine) pruneMempool(ctx context.Context) {
	updates, cancel := e.Hashes.Subscribe()
	defer cancel()

	for {
		select {
		case hash, ok := <-updates:
			if !ok {
				return
			}

			d, err := e.Cache.TryGetOrAddConfirmedDelta(hash)
			if err != nil {
				e.logger.WithError(err).WithField("delta", hash).Warn("Cannot read confirmed delta")
				continue
			}

			if removed := e.Mempool.Delete(d.PublicEntries...); removed > 0 {
				e.logger.WithFields(logrus.Fields{
					"delta":   hash,
					"removed": removed,
				}).Debug("Pruned mempool")
			}
		case <-ctx.Done():
			return
		}
	}
}

// PurgeCache asks the delta cache to drop its confirmed and local entries.
// Pending requests are coalesced.
func (e *Engine) PurgeCache() {
	if e.expiry == nil {
		return
	}
	select {
	case e.expiry <- struct{}{}:
	default:
	}
}

// Shutdown closes the transport and the store.
func (e *Engine) Shutdown() error {
	e.logger.Info("Shutting down")

	if e.expiry != nil {
		close(e.expiry)
		e.expiry = nil
	}

	var errs []error
	if e.Transport != nil {
		errs = append(errs, e.Transport.Close())
	}
	if e.Store != nil {
		errs = append(errs, e.Store.Close())
	}

	return errors.Join(errs...)
}

// Keygen generates a new key and writes it under datadir, along with its
// public key.
func Keygen(datadir string) (*btcec.PrivateKey, error) {
	keyfile := keys.NewSimpleKeyfile(filepath.Join(datadir, config.DefaultKeyfile))

	if _, err := keyfile.ReadKey(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", datadir)
	}

	privKey, err := keys.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := keyfile.WriteKey(privKey); err != nil {
		return nil, err
	}

	return privKey, nil
}
