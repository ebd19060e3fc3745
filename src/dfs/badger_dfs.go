package dfs

import (
	"context"
	"fmt"

	"github.com/dgraph-io/badger"
	cid "github.com/ipfs/go-cid"
	"github.com/mosaicnetworks/delta/src/common"
	"github.com/mosaicnetworks/delta/src/crypto"
	"github.com/sirupsen/logrus"
)

const contentPrefix = "dfs"

// BadgerDFS persists content in a Badger database, under keys derived from the
// content's CID.
type BadgerDFS struct {
	hashProvider *crypto.HashProvider
	db           *badger.DB
	path         string
}

// NewBadgerDFS opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerDFS(hashProvider *crypto.HashProvider, path string, logger *logrus.Entry) (*BadgerDFS, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		opts = opts.WithLogger(logger.WithField("ns", "badger"))
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerDFS{
		hashProvider: hashProvider,
		db:           handle,
		path:         path,
	}, nil
}

func contentKey(c cid.Cid) []byte {
	return []byte(fmt.Sprintf("%s_%s", contentPrefix, c.String()))
}

// Read implements DFS.
func (s *BadgerDFS) Read(ctx context.Context, c cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(contentKey(c))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})

	return data, mapError(err, c.String())
}

// Write implements DFS. Content already present is not rewritten.
func (s *BadgerDFS) Write(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}

	c := s.hashProvider.ComputeCid(data)
	key := contentKey(c)

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if _, err := tx.Get(key); err == nil {
		return c, nil
	} else if !isDBKeyNotFound(err) {
		return cid.Undef, err
	}

	if err := tx.Set(key, data); err != nil {
		return cid.Undef, err
	}

	if err := tx.Commit(); err != nil {
		return cid.Undef, err
	}

	return c, nil
}

// Path returns the directory of the database.
func (s *BadgerDFS) Path() string {
	return s.path
}

// Close implements DFS.
func (s *BadgerDFS) Close() error {
	return s.db.Close()
}

func isDBKeyNotFound(err error) bool {
	return err != nil && err.Error() == badger.ErrKeyNotFound.Error()
}

func mapError(err error, key string) error {
	if isDBKeyNotFound(err) {
		return common.NewStoreErr("DFS", common.KeyNotFound, key)
	}
	return err
}
