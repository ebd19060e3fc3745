// Package node implements the reactive component of a delta node.
//
// Time is divided in cycles of fixed duration, aligned on the Unix epoch so that
// every node agrees on cycle boundaries without talking to each other. Each
// cycle goes through four phases, each with a Producing and a Collecting
// status:
//
// - Construction: every producer builds a candidate delta on top of the latest
// confirmed delta and broadcasts it. Candidates received from the network are
// scored by the voter.
//
// - Campaigning: every producer broadcasts its favourite candidate, and counts
// the favourites of the others in the elector.
//
// - Voting: the elected candidate is looked up in the local delta cache. The
// producer that built it publishes the full delta to the DFS and announces its
// address; the others learn it from the announcement.
//
// - Synchronisation: the chain of delta hashes settles before the next cycle.
//
// CycleEventsProvider emits the phases, Consensus reacts to them, and
// Dispatcher routes the messages received from other nodes. Node runs all of
// them together.
package node
