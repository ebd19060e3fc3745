// Package builder turns the content of the mempool into a candidate delta.
//
// Every node holding the same mempool builds the same candidate hash for the
// same previous delta: transactions are shuffled with a salt drawn from an
// ISAAC generator seeded by the previous hash, and the payload only contains
// the transactions, their signatures and the coinbase.
package builder

import (
	"bytes"
	"errors"
	"fmt"
	"math/bits"
	"sort"
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/isaac"
	"github.com/mosaicnetworks/delta/src/mempool"
	"github.com/sirupsen/logrus"
)

// ErrNilMempool is returned when the mempool yields no transaction list at all.
// An empty list is fine.
var ErrNilMempool = errors.New("mempool returned a nil transaction list")

// LocalDeltaCache receives the bodies of the candidates built by this node.
type LocalDeltaCache interface {
	AddLocalDelta(candidate *delta.CandidateDeltaBroadcast, d *delta.Delta)
}

// DeltaBuilder ...
type DeltaBuilder struct {
	mempool      mempool.Mempool
	policy       AcceptancePolicy
	hashProvider *crypto.HashProvider
	cache        LocalDeltaCache

	producerKey []byte
	producerID  string

	clock  func() time.Time
	logger *logrus.Entry
}

// NewDeltaBuilder creates a builder producing candidates on behalf of the
// owner of producerKey, the compressed public key credited in the coinbase.
func NewDeltaBuilder(
	mp mempool.Mempool,
	policy AcceptancePolicy,
	hashProvider *crypto.HashProvider,
	cache LocalDeltaCache,
	producerKey []byte,
	logger *logrus.Entry,
) *DeltaBuilder {
	return &DeltaBuilder{
		mempool:      mp,
		policy:       policy,
		hashProvider: hashProvider,
		cache:        cache,
		producerKey:  producerKey,
		producerID:   common.EncodeToString(producerKey),
		clock:        time.Now,
		logger:       logger,
	}
}

// ProducerID returns the id stamped on the candidates built here.
func (b *DeltaBuilder) ProducerID() string {
	return b.producerID
}

// BuildCandidateDelta builds the candidate following previousDeltaHash and
// registers its body in the local delta cache.
func (b *DeltaBuilder) BuildCandidateDelta(previousDeltaHash cid.Cid) (*delta.CandidateDeltaBroadcast, error) {
	if !previousDeltaHash.Defined() {
		return nil, delta.NewValidationErr("CandidateDeltaBroadcast", delta.MalformedHash, "PreviousDeltaDfsHash")
	}

	txs := b.mempool.GetTransactionsByPriority()
	if txs == nil {
		return nil, ErrNilMempool
	}

	included, coinbaseAmount := b.payable(b.policy.Select(txs))

	salt := isaac.Salt(previousDeltaHash.Bytes())
	shuffled := b.shuffle(included, salt)

	var payload bytes.Buffer

	for _, tx := range shuffled {
		payload.Write(tx.Bytes())
	}

	for _, sig := range sortedSignatures(shuffled) {
		payload.Write(sig)
	}

	coinbase := &delta.CoinbaseEntry{
		ReceiverPublicKey: b.producerKey,
		Amount:            coinbaseAmount,
	}
	payload.Write(coinbase.Bytes())

	hash := b.hashProvider.ComputeCid(payload.Bytes())

	candidate := delta.NewCandidate(hash, b.producerID, previousDeltaHash)

	d := &delta.Delta{
		PreviousDeltaDfsHash: previousDeltaHash.Bytes(),
		MerkleRoot:           hash.Bytes(),
		CoinbaseEntries:      []*delta.CoinbaseEntry{coinbase},
		PublicEntries:        shuffled,
		Timestamp:            b.clock().UTC(),
		Version:              delta.DeltaVersion,
	}

	if err := candidate.IsValid(); err != nil {
		return nil, fmt.Errorf("built invalid candidate: %w", err)
	}

	b.cache.AddLocalDelta(candidate, d)

	b.logger.WithFields(logrus.Fields{
		"previous_hash": previousDeltaHash,
		"candidate":     hash,
		"transactions":  len(shuffled),
		"coinbase":      coinbaseAmount,
	}).Debug("Built candidate delta")

	return candidate, nil
}

// payable keeps the transactions, in order, whose fees can be added to the
// coinbase without overflowing it, and returns that coinbase amount.
func (b *DeltaBuilder) payable(txs []*delta.Transaction) ([]*delta.Transaction, uint64) {
	var total uint64

	res := make([]*delta.Transaction, 0, len(txs))
	for _, tx := range txs {
		sum, carry := bits.Add64(total, b.policy.Fee(tx), 0)
		if carry != 0 {
			b.logger.WithFields(logrus.Fields{
				"nonce": tx.Nonce,
				"fee":   b.policy.Fee(tx),
			}).Warn("Fee overflows the coinbase, transaction rejected")
			continue
		}
		total = sum
		res = append(res, tx)
	}

	return res, total
}

// shuffle orders txs by the hash of their bytes salted with salt.
func (b *DeltaBuilder) shuffle(txs []*delta.Transaction, salt []byte) []*delta.Transaction {
	type keyed struct {
		tx  *delta.Transaction
		key []byte
	}

	ks := make([]keyed, len(txs))
	for i, tx := range txs {
		ks[i] = keyed{tx: tx, key: b.hashProvider.ComputeMultiHash(tx.Bytes(), salt)}
	}

	sort.SliceStable(ks, func(i, j int) bool {
		return bytes.Compare(ks[i].key, ks[j].key) < 0
	})

	res := make([]*delta.Transaction, len(ks))
	for i, k := range ks {
		res[i] = k.tx
	}

	return res
}

func sortedSignatures(txs []*delta.Transaction) [][]byte {
	sigs := make([][]byte, 0, len(txs))
	for _, tx := range txs {
		sigs = append(sigs, tx.Signature)
	}

	sort.Slice(sigs, func(i, j int) bool {
		return bytes.Compare(sigs[i], sigs[j]) < 0
	})

	return sigs
}
