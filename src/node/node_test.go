package node

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/delta/src/common"
	"github.com/sirupsen/logrus"
)

func fastCycle() CycleConfiguration {
	ms := time.Millisecond
	return CycleConfiguration{
		Construction:    PhaseTimings{0, 30 * ms, 30 * ms, 100 * ms},
		Campaigning:     PhaseTimings{100 * ms, 30 * ms, 30 * ms, 100 * ms},
		Voting:          PhaseTimings{200 * ms, 30 * ms, 30 * ms, 100 * ms},
		Synchronisation: PhaseTimings{300 * ms, 0, 0, 100 * ms},
	}
}

func TestNodesRun(t *testing.T) {
	testNodes, _ := initNetwork(t, 3, fastCycle())

	genesis := testNodes[0].cache.GenesisHash()

	nodes := make([]*Node, len(testNodes))
	for i, tn := range testNodes {
		nodes[i] = NewNode(tn.events, tn.consensus, tn.dispatcher, tn.broadcaster, tn.hashes,
			common.NewTestEntry(t, logrus.DebugLevel, "node"))
		nodes[i].SetStatsSources(tn.mempool, tn.hashes)

		if s := nodes[i].GetState(); s != Starting {
			t.Fatalf("new node should be Starting, not %s", s)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, len(nodes))
	for _, n := range nodes {
		go func(n *Node) {
			errCh <- n.Run(ctx)
		}(n)
	}

	deadline := time.After(10 * time.Second)
	for {
		extended := 0
		for _, n := range nodes {
			if !n.GetLatestDeltaHash().Equals(genesis) {
				extended++
			}
		}
		if extended == len(nodes) {
			break
		}

		select {
		case <-deadline:
			cancel()
			t.Fatalf("timeout waiting for the chain to be extended")
		case <-time.After(20 * time.Millisecond):
		}
	}

	stats := nodes[0].GetStats()
	if stats["state"] != Running.String() {
		t.Fatalf("running node should report Running, got %s", stats["state"])
	}
	if stats["index_size"] == "" || stats["mempool_size"] != "1" {
		t.Fatalf("stats should include component sizes: %v", stats)
	}
	if stats["latest_delta"] == "" {
		t.Fatalf("stats should include the latest delta")
	}

	cancel()

	for range nodes {
		if err := <-errCh; err != nil {
			t.Fatalf("Run should return nil on cancellation, got %v", err)
		}
	}

	for _, n := range nodes {
		if s := n.GetState(); s != Shutdown {
			t.Fatalf("stopped node should be Shutdown, not %s", s)
		}
	}
}
