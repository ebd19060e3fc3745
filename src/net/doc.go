// Package net carries consensus messages between the nodes of a delta network.
//
// Every message is broadcast: candidates, favourites and DFS publication
// notices are meant for all producers. The Broadcaster interface has two
// implementations:
//
// - Inmem: in-memory broadcaster used for testing and single-process networks
//
// - Gossip: a libp2p host publishing to a GossipSub topic
//
// Gossip
//
// The gossip broadcaster listens on the multiaddrs given in its options and
// joins the "deltas/v1" topic. Peers are reached by dialing their full p2p
// multiaddr (e.g. /ip4/1.2.3.4/tcp/4001/p2p/<peer id>) with Connect; GossipSub
// takes care of propagating messages beyond direct neighbours. A node never
// receives its own messages back on the consumer channel.
package net
