package keys

import (
	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/delta/src/common"
)

// FromPublicKey returns the 33-byte compressed form of pub.
func FromPublicKey(pub *btcec.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return pub.SerializeCompressed()
}

// ToPublicKey parses a compressed or uncompressed public key.
func ToPublicKey(pub []byte) (*btcec.PublicKey, error) {
	return btcec.ParsePubKey(pub, btcec.S256())
}

// PublicKeyHex returns the producer id of pub.
func PublicKeyHex(pub *btcec.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}

// PublicKeyFromHex is the inverse of PublicKeyHex.
func PublicKeyFromHex(id string) (*btcec.PublicKey, error) {
	raw, err := common.DecodeFromString(id)
	if err != nil {
		return nil, err
	}
	return ToPublicKey(raw)
}
