// Package peers defines the producers of a delta network and their persistence.
//
// A peer is identified by its public key, in the same 0X-prefixed hex form that
// is stamped on the candidates it produces, and optionally by a moniker. NetAddr
// is the multiaddr where the peer's gossip host listens; it is only needed to
// bootstrap connections.
//
// Upon starting up, a node expects to find a peers.json file in its data
// directory listing every producer of the network. The producer ranking for
// each delta is derived from this set.
package peers
