package sectioned

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyKey = errors.New("empty section key")
	ErrClosed   = errors.New("live view closed")
)

// KeyExtractionError reports a record that was left out of a view because its
// key could not be computed.
type KeyExtractionError struct {
	ID  string
	Err error
}

func (e *KeyExtractionError) Unwrap() error {
	return e.Err
}

func (e *KeyExtractionError) Error() string {
	return fmt.Sprintf("record %q: key: %v", e.ID, e.Err)
}

// SnapshotOpenError is delivered to subscribers when a version cannot be
// materialized. It terminates the subscription.
type SnapshotOpenError struct {
	Version Version
	Err     error
}

func (e *SnapshotOpenError) Unwrap() error {
	return e.Err
}

func (e *SnapshotOpenError) Error() string {
	var buf strings.Builder
	buf.WriteString("materializing version ")
	fmt.Fprint(&buf, uint64(e.Version))
	if e.Err != nil {
		buf.WriteString(": ")
		buf.WriteString(e.Err.Error())
	}
	return buf.String()
}

// InvariantViolation is panicked with when internal consistency is broken,
// e.g. when a view contains the same record identity twice.
type InvariantViolation struct {
	Msg string
}

func (e *InvariantViolation) Error() string {
	return "invariant violation: " + e.Msg
}
