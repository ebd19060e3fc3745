package node

import (
	"testing"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/mosaicnetworks/delta/src/delta"
	"github.com/mosaicnetworks/delta/src/net"
	"github.com/sirupsen/logrus"
)

type recorder struct {
	candidates []*delta.CandidateDeltaBroadcast
	favourites []*delta.FavouriteDeltaBroadcast
	updates    [][2]cid.Cid
}

type candidateRecorder struct{ *recorder }

func (r candidateRecorder) OnNext(c *delta.CandidateDeltaBroadcast) {
	r.candidates = append(r.candidates, c)
}

type favouriteRecorder struct{ *recorder }

func (r favouriteRecorder) OnNext(f *delta.FavouriteDeltaBroadcast) {
	r.favourites = append(r.favourites, f)
}

func (r *recorder) TryUpdateLatestHash(previous, next cid.Cid) bool {
	r.updates = append(r.updates, [2]cid.Cid{previous, next})
	return true
}

func TestDispatch(t *testing.T) {
	hp, _ := crypto.NewHashProvider(crypto.DefaultHashing)
	previous := hp.ComputeCid([]byte("previous"))
	next := hp.ComputeCid([]byte("next"))

	r := &recorder{}
	d := NewDispatcher(candidateRecorder{r}, favouriteRecorder{r}, r, common.NewTestEntry(t, logrus.DebugLevel, "dispatcher"))

	candidate := delta.NewCandidate(next, "P1", previous)

	msgs := []struct {
		msgType net.MessageType
		payload interface{}
	}{
		{net.CandidateDeltaMsg, candidate},
		{net.FavouriteDeltaMsg, &delta.FavouriteDeltaBroadcast{Candidate: candidate, VoterID: "P2"}},
		{net.DeltaDfsHashMsg, &delta.DeltaDfsHashBroadcast{DeltaDfsHash: next.Bytes(), PreviousDeltaDfsHash: previous.Bytes()}},
		{net.DeltaDfsHashMsg, &delta.DeltaDfsHashBroadcast{DeltaDfsHash: []byte("junk"), PreviousDeltaDfsHash: previous.Bytes()}},
		{net.MessageType(99), candidate},
	}

	for _, m := range msgs {
		msg, err := net.NewMessage(m.msgType, "peer", m.payload)
		if err != nil {
			t.Fatalf("err: %v", err)
		}
		d.Dispatch(msg)
	}

	d.Dispatch(&net.Message{Type: net.CandidateDeltaMsg, Payload: []byte("{not json")})

	if len(r.candidates) != 1 || !r.candidates[0].Equal(candidate) {
		t.Fatalf("candidate should reach the voter once, got %d", len(r.candidates))
	}

	if len(r.favourites) != 1 || r.favourites[0].VoterID != "P2" {
		t.Fatalf("favourite should reach the elector once, got %d", len(r.favourites))
	}

	if len(r.updates) != 1 {
		t.Fatalf("only the valid DFS hash should update the chain, got %d", len(r.updates))
	}
	if !r.updates[0][0].Equals(previous) || !r.updates[0][1].Equals(next) {
		t.Fatalf("unexpected update %v", r.updates[0])
	}
}
