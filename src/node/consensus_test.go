package node

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/builder"
	"github.com/mosaicnetworks/delta/src/cache"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/crypto/keys"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/dfs"
	"github.com/mosaicnetworks/delta/src/elector"
	"github.com/mosaicnetworks/delta/src/hashprovider"
	"github.com/mosaicnetworks/delta/src/hub"
	"github.com/mosaicnetworks/delta/src/mempool"
	"github.com/mosaicnetworks/delta/src/net"
	"github.com/mosaicnetworks/delta/src/peers"
	"github.com/mosaicnetworks/delta/src/producers"
	"github.com/mosaicnetworks/delta/src/voter"
	"github.com/sirupsen/logrus"
)

type testNode struct {
	id          string
	mempool     *mempool.InmemMempool
	cache       *cache.DeltaCache
	hashes      *hashprovider.DeltaHashProvider
	voter       *voter.DeltaVoter
	elector     *elector.DeltaElector
	broadcaster *net.InmemBroadcaster
	consensus   *Consensus
	dispatcher  *Dispatcher
	events      *CycleEventsProvider
}

// initNetwork wires n nodes sharing one DFS, like nodes of a real network
// sharing IPFS.
func initNetwork(t *testing.T, n int, cycle CycleConfiguration) ([]*testNode, *producers.PoaProducersProvider) {
	hp, err := crypto.NewHashProvider(crypto.DefaultHashing)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	store := dfs.NewInmemDFS(hp)

	privs := make([]*btcec.PrivateKey, n)
	ps := make([]*peers.Peer, n)
	for i := range privs {
		privs[i], err = keys.GenerateKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		ps[i] = peers.NewPeer(keys.PublicKeyHex(privs[i].PubKey()), "", fmt.Sprintf("node%d", i))
	}
	peerSet := peers.NewPeerSet(ps)

	provider, err := producers.NewPoaProducersProvider(peerSet, hp, 0, common.NewTestEntry(t, logrus.DebugLevel, "producers"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	tx := &delta.Transaction{
		Version:         1,
		SenderAddress:   []byte("alice"),
		ReceiverAddress: []byte("bob"),
		Amount:          10,
		Fee:             2,
		GasPrice:        1,
		GasLimit:        21000,
		Timestamp:       time.Unix(1000, 0).UTC(),
		Signature:       []byte("sig"),
	}

	nodes := make([]*testNode, n)
	broadcasters := make([]*net.InmemBroadcaster, n)

	for i, priv := range privs {
		logger := common.NewTestEntry(t, logrus.DebugLevel, fmt.Sprintf("node%d", i))
		pub := keys.FromPublicKey(priv.PubKey())
		id := common.EncodeToString(pub)

		mp := mempool.NewInmemMempool(hp, logger)
		mp.Add(tx)

		c, err := cache.NewDeltaCache(cache.DefaultConfig(), store, hp, logger)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		hashes, err := hashprovider.NewDeltaHashProvider(hashprovider.DefaultConfig(), c, logger)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		b := builder.NewDeltaBuilder(mp, builder.NewGasLimitPolicy(), hp, c, pub, logger)

		vconf := voter.DefaultConfig()
		vconf.VoterID = id
		vconf.Key = priv
		v, err := voter.NewDeltaVoter(vconf, provider, logger)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		e, err := elector.NewDeltaElector(elector.DefaultConfig(), provider, logger)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		_, trans := net.NewInmemBroadcaster(id)
		broadcasters[i] = trans

		hconf := hub.DefaultConfig()
		hconf.ProducerID = id
		h, err := hub.NewDeltaHub(hconf, trans, store, logger)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		events, err := NewCycleEventsProvider(cycle, hashes, logger)
		if err != nil {
			t.Fatalf("err: %v", err)
		}

		nodes[i] = &testNode{
			id:          id,
			mempool:     mp,
			cache:       c,
			hashes:      hashes,
			voter:       v,
			elector:     e,
			broadcaster: trans,
			consensus:   NewConsensus(b, v, e, c, h, hashes, provider, logger),
			dispatcher:  NewDispatcher(v, e, hashes, logger),
			events:      events,
		}
	}

	net.ConnectAll(broadcasters...)

	return nodes, provider
}

// deliver dispatches every message waiting in the nodes' consumers.
func deliver(nodes []*testNode) {
	for _, n := range nodes {
		for {
			select {
			case msg := <-n.broadcaster.Consumer():
				n.dispatcher.Dispatch(msg)
				continue
			default:
			}
			break
		}
	}
}

// runCycle drives every node through one cycle without timers.
func runCycle(t *testing.T, nodes []*testNode) {
	calc, err := NewPhaseCalculator(DefaultCycleConfiguration())
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	previous := nodes[0].hashes.GetLatestDeltaHash(nil)

	for _, sp := range calc.PhasesFor(time.Now()) {
		phase := Phase{
			PreviousDeltaDfsHash: previous,
			Name:                 sp.Name,
			Status:               sp.Status,
			Time:                 sp.At,
		}
		for _, n := range nodes {
			n.consensus.OnPhase(context.Background(), phase)
		}
		deliver(nodes)
	}
}

func TestConsensusCycle(t *testing.T) {
	nodes, provider := initNetwork(t, 3, DefaultCycleConfiguration())

	genesis := nodes[0].cache.GenesisHash()

	runCycle(t, nodes)

	head := nodes[0].hashes.GetLatestDeltaHash(nil)
	if head.Equals(genesis) {
		t.Fatalf("the chain should have been extended")
	}

	for i, n := range nodes {
		if h := n.hashes.GetLatestDeltaHash(nil); !h.Equals(head) {
			t.Fatalf("node %d disagrees on the head: %s != %s", i, h, head)
		}
	}

	ranking, err := provider.GetDeltaProducersFromPreviousDelta(genesis)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	d, ok := nodes[1].cache.TryGetConfirmedDelta(head)
	if !ok {
		t.Fatalf("confirmed delta should be readable")
	}

	if !d.PreviousHash().Equals(genesis) {
		t.Fatalf("confirmed delta should follow genesis")
	}

	winner := common.EncodeToString(d.CoinbaseEntries[0].ReceiverPublicKey)
	if winner != ranking[0] {
		t.Fatalf("the best ranked producer should win, got %s instead of %s", winner, ranking[0])
	}

	var publisher *testNode
	for _, n := range nodes {
		if n.id == winner {
			publisher = n
		}
	}
	if !publisher.consensus.LastPublished().Equals(head) {
		t.Fatalf("the winner should have published the head")
	}

	// A second cycle builds on the first.
	runCycle(t, nodes)

	next := nodes[2].hashes.GetLatestDeltaHash(nil)
	if next.Equals(head) {
		t.Fatalf("the second cycle should extend the chain")
	}

	d2, ok := nodes[0].cache.TryGetConfirmedDelta(next)
	if !ok || !d2.PreviousHash().Equals(head) {
		t.Fatalf("the second delta should follow the first")
	}
}

func TestNonProducersStayQuiet(t *testing.T) {
	nodes, _ := initNetwork(t, 2, DefaultCycleConfiguration())

	// No producer is ranked after an undefined hash.
	phase := Phase{PreviousDeltaDfsHash: cid.Undef, Name: Construction, Status: Producing}
	for _, n := range nodes {
		n.consensus.OnPhase(context.Background(), phase)
	}

	for _, n := range nodes {
		select {
		case msg := <-n.broadcaster.Consumer():
			t.Fatalf("nothing should be broadcast, got %s", msg.Type)
		default:
		}
	}
}
