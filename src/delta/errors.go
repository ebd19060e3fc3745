package delta

import (
	"errors"
	"fmt"
)

// ValidationErrType enumerates the reasons a message is rejected.
type ValidationErrType uint32

const (
	// Nil means the message itself was missing.
	Nil ValidationErrType = iota
	// MissingField means a mandatory field was empty.
	MissingField
	// MalformedHash means a hash field did not decode as a CID.
	MalformedHash
	// SelfReference means a candidate claimed to succeed itself.
	SelfReference
	// MissingTimestamp means a non-genesis delta had a zero timestamp.
	MissingTimestamp
)

func (t ValidationErrType) String() string {
	switch t {
	case Nil:
		return "Nil"
	case MissingField:
		return "Missing Field"
	case MalformedHash:
		return "Malformed Hash"
	case SelfReference:
		return "Self Reference"
	case MissingTimestamp:
		return "Missing Timestamp"
	}
	return fmt.Sprintf("ValidationErrType(%d)", uint32(t))
}

// ValidationErr is returned by the IsValid methods.
type ValidationErr struct {
	msgType string
	errType ValidationErrType
	field   string
}

// NewValidationErr ...
func NewValidationErr(msgType string, errType ValidationErrType, field string) *ValidationErr {
	return &ValidationErr{
		msgType: msgType,
		errType: errType,
		field:   field,
	}
}

// Type returns the reason of the rejection.
func (e *ValidationErr) Type() ValidationErrType {
	return e.errType
}

// Error ...
func (e *ValidationErr) Error() string {
	if e.field == "" {
		return fmt.Sprintf("invalid %s: %s", e.msgType, e.errType)
	}
	return fmt.Sprintf("invalid %s: %s %s", e.msgType, e.errType, e.field)
}

// IsValidation checks that err, or an error it wraps, is a ValidationErr.
func IsValidation(err error) bool {
	var vErr *ValidationErr
	return errors.As(err, &vErr)
}
