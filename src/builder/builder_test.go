package builder

import (
	"bytes"
	"errors"
	"math"
	"testing"
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/isaac"
	"github.com/sirupsen/logrus"
)

type staticMempool struct {
	txs []*delta.Transaction
}

func (m *staticMempool) GetTransactionsByPriority() []*delta.Transaction {
	return m.txs
}

type recordingCache struct {
	candidates []*delta.CandidateDeltaBroadcast
	deltas     []*delta.Delta
}

func (c *recordingCache) AddLocalDelta(candidate *delta.CandidateDeltaBroadcast, d *delta.Delta) {
	c.candidates = append(c.candidates, candidate)
	c.deltas = append(c.deltas, d)
}

var (
	producerKey = []byte{0x02, 0x01, 0x02, 0x03}
	fixedNow    = time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
)

func clock() time.Time { return fixedNow }

func hashProvider(t *testing.T) *crypto.HashProvider {
	hp, err := crypto.NewHashProvider(crypto.DefaultHashing)
	if err != nil {
		t.Fatalf("err: %v", err)
	}
	return hp
}

func newBuilder(t *testing.T, txs []*delta.Transaction) (*DeltaBuilder, *recordingCache) {
	cache := &recordingCache{}
	b := NewDeltaBuilder(
		&staticMempool{txs: txs},
		NewLockTimePolicy(clock),
		hashProvider(t),
		cache,
		producerKey,
		common.NewTestEntry(t, logrus.DebugLevel, "builder"),
	)
	b.clock = clock
	return b, cache
}

func feeTx(nonce, fee uint64, sig string) *delta.Transaction {
	return &delta.Transaction{
		Version:   delta.TransactionVersion,
		LockTime:  fixedNow.Add(-time.Hour).Unix(),
		Nonce:     nonce,
		Fee:       fee,
		Timestamp: fixedNow,
		Signature: []byte(sig),
	}
}

func previousHash(t *testing.T) cid.Cid {
	return hashProvider(t).ComputeCid([]byte("previous delta"))
}

func TestBuildCandidateDelta(t *testing.T) {
	t1 := feeTx(1, 5, "sig-b")
	t2 := feeTx(2, 3, "sig-a")

	b, cache := newBuilder(t, []*delta.Transaction{t1, t2})
	prev := previousHash(t)

	candidate, err := b.BuildCandidateDelta(prev)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if candidate.ProducerID != common.EncodeToString(producerKey) {
		t.Fatalf("candidate should be attributed to the producer, not %s", candidate.ProducerID)
	}

	if !candidate.PreviousHash().Equals(prev) {
		t.Fatalf("candidate should follow the previous hash")
	}

	if len(cache.deltas) != 1 {
		t.Fatalf("the body should be registered in the local cache")
	}

	d := cache.deltas[0]

	if !bytes.Equal(d.MerkleRoot, candidate.Hash) {
		t.Fatalf("merkle root should be the candidate hash")
	}

	if len(d.CoinbaseEntries) != 1 || d.CoinbaseEntries[0].Amount != 8 {
		t.Fatalf("coinbase should credit 8, got %+v", d.CoinbaseEntries)
	}

	if !bytes.Equal(d.CoinbaseEntries[0].ReceiverPublicKey, producerKey) {
		t.Fatalf("coinbase should credit the producer")
	}

	if !d.Timestamp.Equal(fixedNow) {
		t.Fatalf("delta should be stamped with the clock, got %v", d.Timestamp)
	}

	// the expected order is the salted hash order
	hp := hashProvider(t)
	salt := isaac.Salt(prev.Bytes())
	first, second := t1, t2
	if bytes.Compare(hp.ComputeMultiHash(t2.Bytes(), salt), hp.ComputeMultiHash(t1.Bytes(), salt)) < 0 {
		first, second = t2, t1
	}

	if len(d.PublicEntries) != 2 || d.PublicEntries[0] != first || d.PublicEntries[1] != second {
		t.Fatalf("public entries should be in salted hash order")
	}

	coinbase := &delta.CoinbaseEntry{ReceiverPublicKey: producerKey, Amount: 8}

	var payload []byte
	payload = append(payload, first.Bytes()...)
	payload = append(payload, second.Bytes()...)
	payload = append(payload, []byte("sig-a")...)
	payload = append(payload, []byte("sig-b")...)
	payload = append(payload, coinbase.Bytes()...)

	if !candidate.Cid().Equals(hp.ComputeCid(payload)) {
		t.Fatalf("candidate hash should cover shuffled transactions, sorted signatures and coinbase")
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	txs := []*delta.Transaction{feeTx(1, 5, "x"), feeTx(2, 3, "y"), feeTx(3, 7, "z")}
	reversed := []*delta.Transaction{txs[2], txs[1], txs[0]}

	b1, _ := newBuilder(t, txs)
	b2, _ := newBuilder(t, reversed)

	prev := previousHash(t)

	c1, err := b1.BuildCandidateDelta(prev)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	c2, err := b2.BuildCandidateDelta(prev)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if !c1.Equal(c2) {
		t.Fatalf("same transactions and previous hash should give the same candidate: %s vs %s", c1, c2)
	}

	other := hashProvider(t).ComputeCid([]byte("another previous delta"))

	c3, err := b1.BuildCandidateDelta(other)
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if bytes.Equal(c1.Hash, c3.Hash) {
		t.Fatalf("a different previous hash should give a different candidate")
	}
}

func TestBuildEmptyMempool(t *testing.T) {
	b, cache := newBuilder(t, []*delta.Transaction{})

	candidate, err := b.BuildCandidateDelta(previousHash(t))
	if err != nil {
		t.Fatalf("an empty mempool should still produce a candidate: %v", err)
	}

	if err := candidate.IsValid(); err != nil {
		t.Fatalf("err: %v", err)
	}

	if cache.deltas[0].CoinbaseEntries[0].Amount != 0 {
		t.Fatalf("coinbase of an empty delta should be 0")
	}
}

func TestBuildNilMempool(t *testing.T) {
	b, cache := newBuilder(t, nil)

	if _, err := b.BuildCandidateDelta(previousHash(t)); !errors.Is(err, ErrNilMempool) {
		t.Fatalf("a nil transaction list should return ErrNilMempool, not %v", err)
	}

	if len(cache.deltas) != 0 {
		t.Fatalf("nothing should be cached when the build aborts")
	}
}

func TestBuildUndefinedPrevious(t *testing.T) {
	b, _ := newBuilder(t, []*delta.Transaction{})

	if _, err := b.BuildCandidateDelta(cid.Undef); !delta.IsValidation(err) {
		t.Fatalf("an undefined previous hash should be rejected, got %v", err)
	}
}

func TestLockTimePolicy(t *testing.T) {
	p := NewLockTimePolicy(clock)

	ready := feeTx(1, 1, "")
	locked := feeTx(2, 1, "")
	locked.LockTime = fixedNow.Add(time.Hour).Unix()
	old := feeTx(3, 1, "")
	old.Version = 0

	got := p.Select([]*delta.Transaction{locked, ready, old})

	if len(got) != 1 || got[0] != ready {
		t.Fatalf("only the unlocked current-version transaction should be selected")
	}

	if p.Fee(ready) != ready.Fee {
		t.Fatalf("fee should be the declared fee")
	}
}

func TestGasLimitPolicy(t *testing.T) {
	gas := func(nonce, price, limit uint64) *delta.Transaction {
		return &delta.Transaction{Nonce: nonce, GasPrice: price, GasLimit: limit}
	}

	p := &GasLimitPolicy{DeltaGasLimit: 100000, MinTransactionEntryGasLimit: 21000}

	tooSmall := gas(1, 100, 20999)
	big := gas(2, 50, 90000)
	fits := gas(3, 40, 30000)
	overflow := gas(4, 30, 80000)
	small := gas(5, 30, 21000)
	last := gas(6, 10, 21000)

	got := p.Select([]*delta.Transaction{last, small, overflow, fits, big, tooSmall})

	// big uses 90000, the 10000 left cannot fit anything
	if len(got) != 1 || got[0] != big {
		t.Fatalf("expected only the best paying transaction, got %d", len(got))
	}

	p.DeltaGasLimit = 150000

	got = p.Select([]*delta.Transaction{last, overflow, small, fits, big, tooSmall})

	// 150000 - 90000 - 30000 = 30000: overflow is skipped, small fits, then
	// 9000 is below the minimum
	expected := []*delta.Transaction{big, fits, small}
	if len(got) != len(expected) {
		t.Fatalf("expected %d transactions, got %d", len(expected), len(got))
	}

	for i := range expected {
		if got[i] != expected[i] {
			t.Fatalf("transaction %d should have nonce %d, not %d", i, expected[i].Nonce, got[i].Nonce)
		}
	}

	if p.Fee(big) != 50*90000 {
		t.Fatalf("fee should be gas price times gas limit")
	}
}

func TestGasLimitPolicyStableOrder(t *testing.T) {
	a := &delta.Transaction{Nonce: 1, GasPrice: 5, GasLimit: 21000}
	b := &delta.Transaction{Nonce: 2, GasPrice: 5, GasLimit: 21000}

	got := NewGasLimitPolicy().Select([]*delta.Transaction{a, b})

	if len(got) != 2 || got[0] != a || got[1] != b {
		t.Fatalf("equal gas prices should keep mempool order")
	}
}

func TestCoinbaseOverflowRejectsTransaction(t *testing.T) {
	huge := feeTx(1, math.MaxUint64, "sig-huge")
	small := feeTx(2, 2, "sig-small")

	b, cache := newBuilder(t, []*delta.Transaction{huge, small})

	if _, err := b.BuildCandidateDelta(previousHash(t)); err != nil {
		t.Fatalf("err: %v", err)
	}

	d := cache.deltas[0]

	// huge comes first in mempool order and fills the coinbase, small would
	// wrap it
	if len(d.PublicEntries) != 1 || d.PublicEntries[0] != huge {
		t.Fatalf("only the first transaction should be included, got %d", len(d.PublicEntries))
	}

	if d.CoinbaseEntries[0].Amount != math.MaxUint64 {
		t.Fatalf("coinbase should not wrap, got %d", d.CoinbaseEntries[0].Amount)
	}
}

func TestGasLimitPolicyFeeOverflow(t *testing.T) {
	p := &GasLimitPolicy{DeltaGasLimit: math.MaxUint64, MinTransactionEntryGasLimit: 21000}

	overflowing := &delta.Transaction{Nonce: 1, GasPrice: 1 << 50, GasLimit: 1 << 20}
	fine := &delta.Transaction{Nonce: 2, GasPrice: 3, GasLimit: 21000}

	if p.Fee(overflowing) != math.MaxUint64 {
		t.Fatalf("fee should saturate, got %d", p.Fee(overflowing))
	}

	got := p.Select([]*delta.Transaction{overflowing, fine})
	if len(got) != 1 || got[0] != fine {
		t.Fatalf("the overflowing transaction should be dropped and the rest kept")
	}

	if p.Fee(fine) != 3*21000 {
		t.Fatalf("fee should be gas price times gas limit")
	}
}
