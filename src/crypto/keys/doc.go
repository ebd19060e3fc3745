// Package keys implements the producer identities used by the delta consensus.
//
// Every producer owns a secp256k1 key-pair. The compressed public key, in the
// 0X-prefixed uppercase hexadecimal form returned by PublicKeyHex, is the
// producer id carried in candidate deltas and favourite votes, and the key the
// producer rankings are computed from. The private key signs favourite votes.
//
// Keys are handled with btcsuite's btcec package, the same curve implementation
// used by Bitcoin.
package keys
