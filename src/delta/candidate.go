package delta

import (
	"bytes"
	"fmt"
	"sync/atomic"

	"github.com/btcsuite/btcd/btcec"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/crypto/keys"
)

// CandidateDeltaBroadcast advertises a delta that a producer proposes to follow
// PreviousDeltaDfsHash. Hash is the CID of the deterministic delta payload, not
// of the serialized Delta.
type CandidateDeltaBroadcast struct {
	Hash                 []byte
	ProducerID           string
	PreviousDeltaDfsHash []byte
}

// NewCandidate ...
func NewCandidate(hash cid.Cid, producerID string, previous cid.Cid) *CandidateDeltaBroadcast {
	return &CandidateDeltaBroadcast{
		Hash:                 hash.Bytes(),
		ProducerID:           producerID,
		PreviousDeltaDfsHash: previous.Bytes(),
	}
}

// Cid returns Hash as a CID, or cid.Undef when malformed.
func (c *CandidateDeltaBroadcast) Cid() cid.Cid {
	h, err := cid.Cast(c.Hash)
	if err != nil {
		return cid.Undef
	}
	return h
}

// PreviousHash returns PreviousDeltaDfsHash as a CID, or cid.Undef when
// malformed.
func (c *CandidateDeltaBroadcast) PreviousHash() cid.Cid {
	h, err := cid.Cast(c.PreviousDeltaDfsHash)
	if err != nil {
		return cid.Undef
	}
	return h
}

// Equal reports whether c and o advertise the same delta from the same
// producer.
func (c *CandidateDeltaBroadcast) Equal(o *CandidateDeltaBroadcast) bool {
	return o != nil &&
		bytes.Equal(c.Hash, o.Hash) &&
		c.ProducerID == o.ProducerID &&
		bytes.Equal(c.PreviousDeltaDfsHash, o.PreviousDeltaDfsHash)
}

// IsValid ...
func (c *CandidateDeltaBroadcast) IsValid() error {
	if c == nil {
		return NewValidationErr("CandidateDeltaBroadcast", Nil, "")
	}

	if _, err := cid.Cast(c.Hash); err != nil {
		return NewValidationErr("CandidateDeltaBroadcast", MalformedHash, "Hash")
	}

	if _, err := cid.Cast(c.PreviousDeltaDfsHash); err != nil {
		return NewValidationErr("CandidateDeltaBroadcast", MalformedHash, "PreviousDeltaDfsHash")
	}

	if c.ProducerID == "" {
		return NewValidationErr("CandidateDeltaBroadcast", MissingField, "ProducerID")
	}

	if bytes.Equal(c.Hash, c.PreviousDeltaDfsHash) {
		return NewValidationErr("CandidateDeltaBroadcast", SelfReference, "")
	}

	return nil
}

func (c *CandidateDeltaBroadcast) String() string {
	return fmt.Sprintf("Candidate{%s by %s after %s}", c.Cid(), c.ProducerID, c.PreviousHash())
}

// ScoredCandidateDelta is a candidate as seen by the voter. Score is fixed on
// first observation; Popularity counts observations.
type ScoredCandidateDelta struct {
	Candidate  *CandidateDeltaBroadcast
	Score      int64
	popularity atomic.Int64
}

// NewScoredCandidate returns a ScoredCandidateDelta observed once.
func NewScoredCandidate(c *CandidateDeltaBroadcast, score int64) *ScoredCandidateDelta {
	s := &ScoredCandidateDelta{
		Candidate: c,
		Score:     score,
	}
	s.popularity.Store(1)
	return s
}

// Popularity returns the number of times the candidate was observed.
func (s *ScoredCandidateDelta) Popularity() int64 {
	return s.popularity.Load()
}

// Observe records one more observation and returns the new popularity.
func (s *ScoredCandidateDelta) Observe() int64 {
	return s.popularity.Add(1)
}

// FavouriteDeltaBroadcast is the vote of VoterID for a candidate. Signature is
// the hex DER signature of the candidate hash by the voter's key; it may be
// empty when votes are authenticated by the transport.
type FavouriteDeltaBroadcast struct {
	Candidate *CandidateDeltaBroadcast
	VoterID   string
	Signature string
}

// Sign sets the signature of the favourite with the voter's key.
func (f *FavouriteDeltaBroadcast) Sign(priv *btcec.PrivateKey) error {
	sig, err := keys.Sign(priv, f.Candidate.Hash)
	if err != nil {
		return err
	}
	f.Signature = sig
	return nil
}

// Verify checks the signature against VoterID. It returns false for unsigned
// favourites.
func (f *FavouriteDeltaBroadcast) Verify() bool {
	if f.Signature == "" {
		return false
	}
	return keys.Verify(f.VoterID, f.Candidate.Hash, f.Signature)
}

// IsValid ...
func (f *FavouriteDeltaBroadcast) IsValid() error {
	if f == nil {
		return NewValidationErr("FavouriteDeltaBroadcast", Nil, "")
	}

	if f.VoterID == "" {
		return NewValidationErr("FavouriteDeltaBroadcast", MissingField, "VoterID")
	}

	return f.Candidate.IsValid()
}

// DeltaDfsHashBroadcast announces that the delta following
// PreviousDeltaDfsHash was published to the DFS under DeltaDfsHash.
type DeltaDfsHashBroadcast struct {
	DeltaDfsHash         []byte
	PreviousDeltaDfsHash []byte
}

// IsValid ...
func (b *DeltaDfsHashBroadcast) IsValid() error {
	if b == nil {
		return NewValidationErr("DeltaDfsHashBroadcast", Nil, "")
	}

	if _, err := cid.Cast(b.DeltaDfsHash); err != nil {
		return NewValidationErr("DeltaDfsHashBroadcast", MalformedHash, "DeltaDfsHash")
	}

	if _, err := cid.Cast(b.PreviousDeltaDfsHash); err != nil {
		return NewValidationErr("DeltaDfsHashBroadcast", MalformedHash, "PreviousDeltaDfsHash")
	}

	return nil
}
