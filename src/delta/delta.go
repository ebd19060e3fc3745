package delta

import (
	"time"

	cid "github.com/ipfs/go-cid"
)

// DeltaVersion is the version stamped on deltas built by this package.
const DeltaVersion = 1

// CoinbaseEntry credits a producer with the fees of the transactions it
// included.
type CoinbaseEntry struct {
	ReceiverPublicKey []byte
	Amount            uint64
}

// Bytes returns the canonical encoding of the entry.
func (c *CoinbaseEntry) Bytes() []byte {
	b, err := Encode(c)
	if err != nil {
		panic(err)
	}
	return b
}

// Delta is the full body of a ledger update.
type Delta struct {
	PreviousDeltaDfsHash []byte
	MerkleRoot           []byte
	CoinbaseEntries      []*CoinbaseEntry
	PublicEntries        []*Transaction
	Timestamp            time.Time
	Version              uint32
}

// Genesis returns the anchor of every delta chain: an empty delta stamped with
// the Unix epoch.
func Genesis() *Delta {
	return &Delta{
		Timestamp: time.Unix(0, 0).UTC(),
	}
}

// Marshal returns the canonical encoding of the delta, which is what is written
// to the DFS.
func (d *Delta) Marshal() ([]byte, error) {
	return Encode(d)
}

// Unmarshal ...
func (d *Delta) Unmarshal(data []byte) error {
	return Decode(data, d)
}

// PreviousHash returns PreviousDeltaDfsHash as a CID, or cid.Undef for the
// genesis delta.
func (d *Delta) PreviousHash() cid.Cid {
	c, err := cid.Cast(d.PreviousDeltaDfsHash)
	if err != nil {
		return cid.Undef
	}
	return c
}

// IsGenesis reports whether d has the shape of the genesis delta.
func (d *Delta) IsGenesis() bool {
	return len(d.PreviousDeltaDfsHash) == 0 && d.Timestamp.Equal(time.Unix(0, 0))
}

// IsValid checks that the delta is linked to a previous delta and dated. The
// genesis delta is the only valid delta without a previous hash.
func (d *Delta) IsValid() error {
	if d == nil {
		return NewValidationErr("Delta", Nil, "")
	}

	if d.IsGenesis() {
		return nil
	}

	if _, err := cid.Cast(d.PreviousDeltaDfsHash); err != nil {
		return NewValidationErr("Delta", MalformedHash, "PreviousDeltaDfsHash")
	}

	if d.Timestamp.IsZero() {
		return NewValidationErr("Delta", MissingTimestamp, "")
	}

	return nil
}
