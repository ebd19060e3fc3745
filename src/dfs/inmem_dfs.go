package dfs

import (
	"context"
	"sync"

	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
)

// InmemDFS keeps content in a map.
type InmemDFS struct {
	sync.RWMutex

	hashProvider *crypto.HashProvider
	content      map[cid.Cid][]byte
	closed       bool
}

// NewInmemDFS ...
func NewInmemDFS(hashProvider *crypto.HashProvider) *InmemDFS {
	return &InmemDFS{
		hashProvider: hashProvider,
		content:      make(map[cid.Cid][]byte),
	}
}

// Read implements DFS.
func (s *InmemDFS) Read(ctx context.Context, c cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	if s.closed {
		return nil, common.NewStoreErr("DFS", common.Closed, c.String())
	}

	data, ok := s.content[c]
	if !ok {
		return nil, common.NewStoreErr("DFS", common.KeyNotFound, c.String())
	}

	res := make([]byte, len(data))
	copy(res, data)

	return res, nil
}

// Write implements DFS.
func (s *InmemDFS) Write(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}

	c := s.hashProvider.ComputeCid(data)

	s.Lock()
	defer s.Unlock()

	if s.closed {
		return cid.Undef, common.NewStoreErr("DFS", common.Closed, c.String())
	}

	if _, ok := s.content[c]; !ok {
		stored := make([]byte, len(data))
		copy(stored, data)
		s.content[c] = stored
	}

	return c, nil
}

// Len returns the number of distinct objects stored.
func (s *InmemDFS) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.content)
}

// Close implements DFS.
func (s *InmemDFS) Close() error {
	s.Lock()
	defer s.Unlock()
	s.closed = true
	return nil
}
