package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/dfs"
	"github.com/sirupsen/logrus"
)

func initCache(t *testing.T, conf Config) (*DeltaCache, *dfs.InmemDFS, *crypto.HashProvider) {
	hp, err := crypto.NewHashProvider(crypto.DefaultHashing)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	store := dfs.NewInmemDFS(hp)

	c, err := NewDeltaCache(conf, store, hp, common.NewTestEntry(t, logrus.DebugLevel, "cache"))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	return c, store, hp
}

func publishDelta(t *testing.T, store dfs.DFS, previous []byte, ts time.Time) (*delta.Delta, []byte) {
	d := &delta.Delta{
		PreviousDeltaDfsHash: previous,
		MerkleRoot:           []byte("root"),
		Timestamp:            ts.UTC(),
		Version:              delta.DeltaVersion,
	}

	data, err := d.Marshal()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	c, err := store.Write(context.Background(), data)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	return d, c.Bytes()
}

func TestGenesisIsAlwaysPresent(t *testing.T) {
	c, _, hp := initCache(t, DefaultConfig())

	data, _ := delta.Genesis().Marshal()
	if !c.GenesisHash().Equals(hp.ComputeCid(data)) {
		t.Fatalf("genesis hash should be the CID of the genesis delta")
	}

	c.confirmed.Purge()

	g, ok := c.TryGetConfirmedDelta(c.GenesisHash())
	if !ok {
		t.Fatalf("genesis should survive a purge")
	}

	if !g.IsGenesis() {
		t.Fatalf("genesis delta should be returned for the genesis hash")
	}
}

func TestConfirmedDeltaFromDfs(t *testing.T) {
	c, store, hp := initCache(t, DefaultConfig())

	want, hash := publishDelta(t, store, c.GenesisHash().Bytes(), time.Now())

	d, err := c.TryGetOrAddConfirmedDelta(mustCid(t, hash))
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !d.Timestamp.Equal(want.Timestamp) || string(d.MerkleRoot) != string(want.MerkleRoot) {
		t.Fatalf("delta read from DFS differs from the one written")
	}

	if c.Len() != 1 {
		t.Fatalf("delta read from DFS should be memoized, cache has %d entries", c.Len())
	}

	missing := hp.ComputeCid([]byte("nothing here"))

	if _, ok := c.TryGetConfirmedDelta(missing); ok {
		t.Fatalf("missing delta should not be found")
	}

	if _, err := c.TryGetOrAddConfirmedDelta(missing); !errors.Is(err, ErrDeltaNotFound) {
		t.Fatalf("missing delta should return ErrDeltaNotFound, not %v", err)
	}
}

func TestLocalDeltasAreIsolated(t *testing.T) {
	c, store, hp := initCache(t, DefaultConfig())

	candidateHash := hp.ComputeCid([]byte("payload"))
	candidate := delta.NewCandidate(candidateHash, "producer", c.GenesisHash())

	local := &delta.Delta{
		PreviousDeltaDfsHash: c.GenesisHash().Bytes(),
		MerkleRoot:           candidateHash.Bytes(),
		Timestamp:            time.Now().UTC(),
		Version:              delta.DeltaVersion,
	}

	c.AddLocalDelta(candidate, local)

	got, ok := c.TryGetLocalDelta(candidate)
	if !ok || got != local {
		t.Fatalf("local delta should be returned for its candidate")
	}

	if _, ok := c.TryGetConfirmedDelta(candidateHash); ok {
		t.Fatalf("local delta should not be visible as a confirmed delta")
	}

	if store.Len() != 0 {
		t.Fatalf("local delta should not be written to the DFS")
	}

	other := delta.NewCandidate(hp.ComputeCid([]byte("other")), "producer", c.GenesisHash())
	if _, ok := c.TryGetLocalDelta(other); ok {
		t.Fatalf("unknown candidate should have no local delta")
	}

	replacement := *local
	replacement.Timestamp = local.Timestamp.Add(time.Second)
	c.AddLocalDelta(candidate, &replacement)

	got, _ = c.TryGetLocalDelta(candidate)
	if got != &replacement {
		t.Fatalf("adding a local delta twice should replace the first one")
	}
}

func TestConfirmedDeltasAreIsolated(t *testing.T) {
	c, store, _ := initCache(t, DefaultConfig())

	_, hash := publishDelta(t, store, c.GenesisHash().Bytes(), time.Now())
	addr := mustCid(t, hash)

	// a candidate whose hash is the address of a confirmed delta
	candidate := delta.NewCandidate(addr, "producer", c.GenesisHash())

	if _, ok := c.TryGetLocalDelta(candidate); ok {
		t.Fatalf("confirmed delta in the DFS should not be visible as a local delta")
	}

	if _, ok := c.TryGetConfirmedDelta(addr); !ok {
		t.Fatalf("confirmed delta should be read from the DFS")
	}

	if _, ok := c.TryGetLocalDelta(candidate); ok {
		t.Fatalf("memoized confirmed delta should not be visible as a local delta")
	}
}

func TestLocalDeltaSurvivesConfirmedReads(t *testing.T) {
	c, store, hp := initCache(t, Config{Size: 1, TTL: time.Minute})

	candidate := delta.NewCandidate(hp.ComputeCid([]byte("payload")), "producer", c.GenesisHash())
	local := delta.Genesis()
	c.AddLocalDelta(candidate, local)

	for i := 0; i < 3; i++ {
		_, hash := publishDelta(t, store, c.GenesisHash().Bytes(), time.Now().Add(time.Duration(i)*time.Second))
		if _, ok := c.TryGetConfirmedDelta(mustCid(t, hash)); !ok {
			t.Fatalf("delta %d should be found", i)
		}
	}

	got, ok := c.TryGetLocalDelta(candidate)
	if !ok || got != local {
		t.Fatalf("confirmed reads should not evict local deltas")
	}
}

func TestCorruptContentIsRejected(t *testing.T) {
	c, store, hp := initCache(t, DefaultConfig())

	data := []byte("not a delta")
	addr, err := store.Write(context.Background(), data)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !addr.Equals(hp.ComputeCid(data)) {
		t.Fatalf("unexpected address")
	}

	if _, ok := c.TryGetConfirmedDelta(addr); ok {
		t.Fatalf("undecodable content should not be returned as a delta")
	}
}

func TestExpireOn(t *testing.T) {
	c, store, hp := initCache(t, DefaultConfig())

	_, hash := publishDelta(t, store, c.GenesisHash().Bytes(), time.Now())
	if _, ok := c.TryGetConfirmedDelta(mustCid(t, hash)); !ok {
		t.Fatalf("delta should be found")
	}

	candidate := delta.NewCandidate(hp.ComputeCid([]byte("payload")), "producer", c.GenesisHash())
	c.AddLocalDelta(candidate, delta.Genesis())

	if c.Len() != 2 {
		t.Fatalf("cache should have 2 entries, not %d", c.Len())
	}

	signal := make(chan struct{})
	c.ExpireOn(signal)
	signal <- struct{}{}
	close(signal)

	deadline := time.Now().Add(time.Second)
	for c.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("cache should be empty after the expiry signal, has %d entries", c.Len())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if _, ok := c.TryGetLocalDelta(candidate); ok {
		t.Fatalf("local delta should be gone after the expiry signal")
	}

	if _, ok := c.TryGetConfirmedDelta(c.GenesisHash()); !ok {
		t.Fatalf("genesis should survive the expiry signal")
	}
}

func TestTTLExpiry(t *testing.T) {
	c, _, hp := initCache(t, Config{Size: 10, TTL: 50 * time.Millisecond})

	candidate := delta.NewCandidate(hp.ComputeCid([]byte("payload")), "producer", c.GenesisHash())
	c.AddLocalDelta(candidate, delta.Genesis())

	time.Sleep(150 * time.Millisecond)

	if _, ok := c.TryGetLocalDelta(candidate); ok {
		t.Fatalf("local delta should expire after its TTL")
	}
}

func mustCid(t *testing.T, b []byte) cid.Cid {
	c, err := cid.Cast(b)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return c
}
