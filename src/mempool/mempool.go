// Package mempool holds the transactions waiting to be included in a delta.
package mempool

import (
	"bytes"
	"sync"

	"github.com/google/btree"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/sirupsen/logrus"
)

// Mempool is the source of transactions for the delta builder.
type Mempool interface {
	// GetTransactionsByPriority returns pending transactions, highest
	// priority first. It never returns nil.
	GetTransactionsByPriority() []*delta.Transaction
}

type pending struct {
	tx   *delta.Transaction
	hash []byte
}

func less(a, b *pending) bool {
	if a.tx.GasPrice != b.tx.GasPrice {
		return a.tx.GasPrice > b.tx.GasPrice
	}
	if !a.tx.Timestamp.Equal(b.tx.Timestamp) {
		return a.tx.Timestamp.Before(b.tx.Timestamp)
	}
	return bytes.Compare(a.hash, b.hash) < 0
}

// InmemMempool keeps pending transactions in a B-tree ordered by gas price
// (descending), arrival time, then hash.
type InmemMempool struct {
	sync.RWMutex

	hashProvider *crypto.HashProvider
	byPriority   *btree.BTreeG[*pending]
	byHash       map[string]*pending

	logger *logrus.Entry
}

// NewInmemMempool ...
func NewInmemMempool(hashProvider *crypto.HashProvider, logger *logrus.Entry) *InmemMempool {
	return &InmemMempool{
		hashProvider: hashProvider,
		byPriority:   btree.NewG[*pending](32, less),
		byHash:       make(map[string]*pending),
		logger:       logger,
	}
}

// Add inserts transactions that are not already pending and returns the number
// of transactions actually added.
func (m *InmemMempool) Add(txs ...*delta.Transaction) int {
	m.Lock()
	defer m.Unlock()

	added := 0
	for _, tx := range txs {
		if tx == nil {
			continue
		}

		h := tx.Hash(m.hashProvider)
		key := h.KeyString()

		if _, ok := m.byHash[key]; ok {
			m.logger.WithField("tx", h).Debug("Transaction already in mempool")
			continue
		}

		p := &pending{tx: tx, hash: h.Bytes()}
		m.byHash[key] = p
		m.byPriority.ReplaceOrInsert(p)
		added++
	}

	return added
}

// Delete removes transactions from the pool, typically once they have been
// included in a confirmed delta. Unknown transactions are ignored.
func (m *InmemMempool) Delete(txs ...*delta.Transaction) int {
	m.Lock()
	defer m.Unlock()

	removed := 0
	for _, tx := range txs {
		if tx == nil {
			continue
		}

		key := tx.Hash(m.hashProvider).KeyString()

		p, ok := m.byHash[key]
		if !ok {
			continue
		}

		delete(m.byHash, key)
		m.byPriority.Delete(p)
		removed++
	}

	return removed
}

// GetTransactionsByPriority implements Mempool.
func (m *InmemMempool) GetTransactionsByPriority() []*delta.Transaction {
	m.RLock()
	defer m.RUnlock()

	res := make([]*delta.Transaction, 0, m.byPriority.Len())
	m.byPriority.Ascend(func(p *pending) bool {
		res = append(res, p.tx)
		return true
	})

	return res
}

// Len ...
func (m *InmemMempool) Len() int {
	m.RLock()
	defer m.RUnlock()
	return m.byPriority.Len()
}
