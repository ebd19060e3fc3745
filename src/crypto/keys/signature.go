package keys

import (
	"encoding/hex"

	"github.com/btcsuite/btcd/btcec"
)

// Sign signs hash with priv and returns the hex encoded DER signature.
// Signatures are deterministic (RFC6979).
func Sign(priv *btcec.PrivateKey, hash []byte) (string, error) {
	sig, err := priv.Sign(hash)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// Verify checks a signature produced by Sign against the producer id of the
// signer.
func Verify(id string, hash []byte, sig string) bool {
	pub, err := PublicKeyFromHex(id)
	if err != nil {
		return false
	}

	der, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	parsed, err := btcec.ParseDERSignature(der, btcec.S256())
	if err != nil {
		return false
	}

	return parsed.Verify(hash, pub)
}
