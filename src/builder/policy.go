package builder

import (
	"math"
	"math/bits"
	"sort"
	"time"

	"github.com/mosaicnetworks/delta/src/delta"
)

// Gas bounds used by GasLimitPolicy.
const (
	DefaultDeltaGasLimit               uint64 = 8000000
	DefaultMinTransactionEntryGasLimit uint64 = 21000
)

// AcceptancePolicy decides which pending transactions go into a delta and what
// each of them pays to the producer.
type AcceptancePolicy interface {
	// Select filters txs and bounds them by the delta-wide budget. It must be
	// deterministic for a given input.
	Select(txs []*delta.Transaction) []*delta.Transaction
	// Fee is the amount credited to the producer for including tx.
	Fee(tx *delta.Transaction) uint64
}

// LockTimePolicy accepts current-version transactions whose lock time has
// passed, in mempool order, and pays their declared fee.
type LockTimePolicy struct {
	clock func() time.Time
}

// NewLockTimePolicy returns a LockTimePolicy reading the time from clock, or
// from time.Now when clock is nil.
func NewLockTimePolicy(clock func() time.Time) *LockTimePolicy {
	if clock == nil {
		clock = time.Now
	}
	return &LockTimePolicy{clock: clock}
}

// Select implements AcceptancePolicy.
func (p *LockTimePolicy) Select(txs []*delta.Transaction) []*delta.Transaction {
	now := p.clock().Unix()

	res := make([]*delta.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Version != delta.TransactionVersion || tx.LockTime > now {
			continue
		}
		res = append(res, tx)
	}

	return res
}

// Fee implements AcceptancePolicy.
func (p *LockTimePolicy) Fee(tx *delta.Transaction) uint64 {
	return tx.Fee
}

// GasLimitPolicy fills a delta with the best paying transactions until its gas
// budget is spent.
type GasLimitPolicy struct {
	DeltaGasLimit               uint64
	MinTransactionEntryGasLimit uint64
}

// NewGasLimitPolicy returns a GasLimitPolicy with the default budget.
func NewGasLimitPolicy() *GasLimitPolicy {
	return &GasLimitPolicy{
		DeltaGasLimit:               DefaultDeltaGasLimit,
		MinTransactionEntryGasLimit: DefaultMinTransactionEntryGasLimit,
	}
}

// Select implements AcceptancePolicy. Transactions below the minimum gas limit,
// or whose fee does not fit in a uint64, are dropped. A transaction that does not fit in the remaining budget is
// skipped, and the walk stops when no transaction could fit anymore.
func (p *GasLimitPolicy) Select(txs []*delta.Transaction) []*delta.Transaction {
	eligible := make([]*delta.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.GasLimit < p.MinTransactionEntryGasLimit {
			continue
		}
		if _, ok := gasFee(tx); !ok {
			continue
		}
		eligible = append(eligible, tx)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].GasPrice > eligible[j].GasPrice
	})

	remaining := p.DeltaGasLimit
	res := make([]*delta.Transaction, 0, len(eligible))

	for _, tx := range eligible {
		if remaining < p.MinTransactionEntryGasLimit {
			break
		}

		if tx.GasLimit > remaining {
			continue
		}

		remaining -= tx.GasLimit
		res = append(res, tx)
	}

	return res
}

// Fee implements AcceptancePolicy. It saturates at math.MaxUint64 for the
// transactions Select drops.
func (p *GasLimitPolicy) Fee(tx *delta.Transaction) uint64 {
	fee, ok := gasFee(tx)
	if !ok {
		return math.MaxUint64
	}
	return fee
}

func gasFee(tx *delta.Transaction) (uint64, bool) {
	hi, lo := bits.Mul64(tx.GasPrice, tx.GasLimit)
	return lo, hi == 0
}
