// Package dfs provides the content-addressed storage that holds confirmed delta
// bodies.
//
// Content is addressed by the CID of its bytes, computed with the node's
// HashProvider, so writing the same bytes twice returns the same address and
// is harmless. Two implementations are provided: InmemDFS for tests and
// single-process networks, and BadgerDFS which persists content to disk.
package dfs

import (
	"context"

	cid "github.com/ipfs/go-cid"
)

// DFS is a content-addressed store.
type DFS interface {
	// Read returns the content stored under c. A miss is reported with a
	// common.StoreErr of type KeyNotFound.
	Read(ctx context.Context, c cid.Cid) ([]byte, error)

	// Write stores data and returns its address.
	Write(ctx context.Context, data []byte) (cid.Cid, error)

	// Close releases the resources held by the store.
	Close() error
}
