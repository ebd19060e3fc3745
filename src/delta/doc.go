// Package delta defines the messages exchanged by the delta consensus.
//
// A Delta is the unit of ledger state change, analogous to a block. Producers
// do not gossip full deltas while competing: they advertise a
// CandidateDeltaBroadcast, which only carries the hash of the deterministic
// delta payload, the producer id and the hash of the previous delta. Nodes then
// vote for their FavouriteDeltaBroadcast, and once the network converges, the
// winning producer publishes the full Delta to the DFS and advertises its
// content address with a DeltaDfsHashBroadcast.
//
// Every hash-valued field holds the raw bytes of a CID. Serialization uses
// ugorji's canonical JSON encoding so that the same value always produces the
// same bytes, on every node.
package delta
