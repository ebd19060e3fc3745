package peers

import (
	"fmt"

	"github.com/mosaicnetworks/delta/src/common"
)

// Peer is a producer of the network.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string
}

// NewPeer ...
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	return &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
}

// PubKeyString returns the upper-case hex representation of the public key,
// which is also the producer id.
func (p *Peer) PubKeyString() string {
	return p.PubKeyHex
}

// PubKeyBytes decodes the public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	b, err := common.DecodeFromString(p.PubKeyHex)
	if err != nil {
		return nil, fmt.Errorf("peer %s has a malformed public key: %w", p.Moniker, err)
	}
	return b, nil
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, pubKey string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.PubKeyHex != pubKey {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
