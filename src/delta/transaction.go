package delta

import (
	"time"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/crypto"
)

// TransactionVersion is the only transaction version accepted in deltas.
const TransactionVersion = 1

// Transaction is a public entry waiting in the mempool, or included in a delta.
type Transaction struct {
	Version         uint32
	LockTime        int64
	SenderAddress   []byte
	ReceiverAddress []byte
	Amount          uint64
	Fee             uint64
	GasPrice        uint64
	GasLimit        uint64
	Nonce           uint64
	Data            []byte
	Timestamp       time.Time
	Signature       []byte
}

// Bytes returns the canonical encoding of the transaction. The delta payload is
// built from these bytes, so they must be identical on every node.
func (t *Transaction) Bytes() []byte {
	b, err := Encode(t)
	if err != nil {
		// every field has a total JSON encoding
		panic(err)
	}
	return b
}

// Hash returns the CID of the transaction bytes.
func (t *Transaction) Hash(p *crypto.HashProvider) cid.Cid {
	return p.ComputeCid(t.Bytes())
}
