package peers

import (
	"fmt"
	"io/ioutil"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/mosaicnetworks/delta/src/crypto/keys"
)

func testPeers(t *testing.T, n int) []*Peer {
	peers := []*Peer{}
	for i := 0; i < n; i++ {
		key, err := keys.GenerateKey()
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		peers = append(peers, NewPeer(
			keys.PublicKeyHex(key.PubKey()),
			fmt.Sprintf("/ip4/127.0.0.1/tcp/%d", 4000+i),
			fmt.Sprintf("peer%d", i),
		))
	}
	return peers
}

func TestPeerSet(t *testing.T) {
	peers := testPeers(t, 3)
	ps := NewPeerSet(peers[:2])

	if ps.Len() != 2 {
		t.Fatalf("peer set should have 2 peers, not %d", ps.Len())
	}

	grown := ps.WithNewPeer(peers[2])
	if grown.Len() != 3 || ps.Len() != 2 {
		t.Fatalf("WithNewPeer should return a new set without changing the old one")
	}

	if again := grown.WithNewPeer(peers[2]); again.Len() != 3 {
		t.Fatalf("adding an existing peer should not change the set")
	}

	shrunk := grown.WithRemovedPeer(peers[0])
	if shrunk.Contains(peers[0].PubKeyHex) || !shrunk.Contains(peers[1].PubKeyHex) {
		t.Fatalf("WithRemovedPeer should only remove the given peer")
	}

	expected := []string{peers[1].PubKeyHex, peers[2].PubKeyHex}
	if !reflect.DeepEqual(shrunk.PubKeys(), expected) {
		t.Fatalf("PubKeys should be %v, not %v", expected, shrunk.PubKeys())
	}

	raw, err := peers[0].PubKeyBytes()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if len(raw) != 33 {
		t.Fatalf("public key should be compressed, got %d bytes", len(raw))
	}
}

func TestJSONPeerSet(t *testing.T) {
	dir, err := ioutil.TempDir("", "delta")
	if err != nil {
		t.Fatalf("err: %v ", err)
	}
	defer os.RemoveAll(dir)

	store := NewJSONPeerSet(dir)

	peerSet, err := store.PeerSet()
	if err == nil {
		t.Fatalf("store.PeerSet() should generate an error")
	}
	if peerSet != nil {
		t.Fatalf("peerSet: %v", peerSet)
	}

	peers := testPeers(t, 3)
	peers[1].PubKeyHex = strings.ToLower(peers[1].PubKeyHex)

	if err := store.Write(peers); err != nil {
		t.Fatalf("err: %v", err)
	}

	peerSet, err = store.PeerSet()
	if err != nil {
		t.Fatalf("err: %v", err)
	}

	if peerSet.Len() != 3 {
		t.Fatalf("peers: %v", peerSet.Peers)
	}

	for i, p := range peerSet.Peers {
		if p.PubKeyHex != strings.ToUpper(peers[i].PubKeyHex) || !strings.HasPrefix(p.PubKeyHex, "0X") {
			t.Fatalf("peer %d public key should be normalised, got %s", i, p.PubKeyHex)
		}
		if p.NetAddr != peers[i].NetAddr || p.Moniker != peers[i].Moniker {
			t.Fatalf("peer %d should be read back unchanged", i)
		}
	}
}
