package common

import (
	"errors"
	"fmt"
)

// StoreErrType enumerates the ways a keyed lookup or write can fail.
type StoreErrType uint32

const (
	// KeyNotFound means nothing is stored under the key.
	KeyNotFound StoreErrType = iota
	// KeyAlreadyExists means a write collided with an existing entry.
	KeyAlreadyExists
	// Empty means the store holds no entries at all.
	Empty
	// Expired means the entry existed but its retention period elapsed.
	Expired
	// Closed means the store was used after Close.
	Closed
)

// String returns the human readable name of the error type.
func (t StoreErrType) String() string {
	switch t {
	case KeyNotFound:
		return "Not Found"
	case KeyAlreadyExists:
		return "Key Already Exists"
	case Empty:
		return "Empty"
	case Expired:
		return "Expired"
	case Closed:
		return "Closed"
	}
	return fmt.Sprintf("StoreErrType(%d)", uint32(t))
}

// StoreErr is returned by the DFS backends and the delta caches. dataType
// names the kind of object (e.g. "Delta"), key the lookup key.
type StoreErr struct {
	dataType string
	errType  StoreErrType
	key      string
}

// NewStoreErr ...
func NewStoreErr(dataType string, errType StoreErrType, key string) StoreErr {
	return StoreErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Type returns the StoreErrType.
func (e StoreErr) Type() StoreErrType {
	return e.errType
}

// Error ...
func (e StoreErr) Error() string {
	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, e.errType)
}

// IsStore checks that err, or an error it wraps, is a StoreErr of type t.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.errType == t
}
