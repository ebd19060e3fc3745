package crypto

import (
	"crypto/sha256"
	"fmt"
	"hash"

	cid "github.com/ipfs/go-cid"
	mh "github.com/multiformats/go-multihash"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/sha3"
)

// Names of the supported hashing algorithms, as accepted by NewHashProvider
// and the "hashing" configuration key.
const (
	Blake2b256 = "blake2b-256"
	Keccak256  = "keccak-256"
	SHA2256    = "sha2-256"
)

// DefaultHashing is the algorithm used when none is configured.
const DefaultHashing = Blake2b256

// HashProvider computes self-describing multihashes, and the CIDs that wrap
// them, with a single configured algorithm. Every node of a network must use
// the same algorithm, otherwise candidate hashes are not comparable.
type HashProvider struct {
	name    string
	code    uint64
	newHash func() hash.Hash
}

// NewHashProvider returns a HashProvider for the named algorithm.
func NewHashProvider(name string) (*HashProvider, error) {
	switch name {
	case Blake2b256:
		return &HashProvider{
			name: name,
			code: mh.BLAKE2B_MIN + 31,
			newHash: func() hash.Hash {
				// only fails for keys longer than 64 bytes
				h, _ := blake2b.New256(nil)
				return h
			},
		}, nil
	case Keccak256:
		return &HashProvider{
			name:    name,
			code:    mh.KECCAK_256,
			newHash: sha3.NewLegacyKeccak256,
		}, nil
	case SHA2256:
		return &HashProvider{
			name:    name,
			code:    mh.SHA2_256,
			newHash: sha256.New,
		}, nil
	}
	return nil, fmt.Errorf("unknown hashing algorithm %q", name)
}

// Name returns the configured algorithm name.
func (p *HashProvider) Name() string {
	return p.name
}

// Code returns the multihash code of the configured algorithm.
func (p *HashProvider) Code() uint64 {
	return p.code
}

// ComputeMultiHash hashes the concatenation of data.
func (p *HashProvider) ComputeMultiHash(data ...[]byte) mh.Multihash {
	h := p.newHash()
	for _, d := range data {
		h.Write(d)
	}

	digest, err := mh.Encode(h.Sum(nil), p.code)
	if err != nil {
		// the code is one of the constants above, and digests are 32 bytes
		panic(err)
	}

	return mh.Multihash(digest)
}

// ComputeCid returns the CIDv1 (raw codec) of the concatenation of data. This
// is the form in which delta hashes are exchanged and stored.
func (p *HashProvider) ComputeCid(data ...[]byte) cid.Cid {
	return cid.NewCidV1(cid.Raw, p.ComputeMultiHash(data...))
}

// IsValidCid reports whether c is a CID whose multihash uses the configured
// algorithm.
func (p *HashProvider) IsValidCid(c cid.Cid) bool {
	if !c.Defined() {
		return false
	}

	decoded, err := mh.Decode(c.Hash())
	if err != nil {
		return false
	}

	return decoded.Code == p.code
}
