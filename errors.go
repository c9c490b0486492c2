package docdb

import (
	"errors"
	"fmt"

	"github.com/hupe1980/docdb/vector"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("not found")

	// ErrClosed is returned when an operation is attempted on a closed store.
	ErrClosed = errors.New("store is closed")
)

// ErrRecordNotFound indicates that FindByID was called with an id that has
// no live document.
//
// It unwraps to ErrNotFound.
type ErrRecordNotFound struct {
	Table string
	ID    uint64
}

func (e *ErrRecordNotFound) Error() string {
	return fmt.Sprintf("record not found: %s/%d", e.Table, e.ID)
}

func (e *ErrRecordNotFound) Unwrap() error { return ErrNotFound }

// ErrDimensionMismatch indicates a vector/query dimensionality mismatch.
//
// The original underlying error (if any) can be accessed via errors.Unwrap.
type ErrDimensionMismatch struct {
	Collection string
	Expected   int
	Actual     int
	cause      error
}

func (e *ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("dimension mismatch in %q: expected %d, got %d", e.Collection, e.Expected, e.Actual)
}

func (e *ErrDimensionMismatch) Unwrap() error { return e.cause }

// ErrUnknownBackend indicates an unsupported storage backend selection.
// Fatal at construction time.
type ErrUnknownBackend struct {
	Name string
}

func (e *ErrUnknownBackend) Error() string {
	return fmt.Sprintf("unknown storage backend: %q", e.Name)
}

// ErrUnknownStrategy indicates an unsupported vector strategy selection.
// Fatal at construction time.
type ErrUnknownStrategy struct {
	Name string
}

func (e *ErrUnknownStrategy) Error() string {
	return fmt.Sprintf("unknown vector strategy: %q", e.Name)
}

// translateError normalizes errors from the storage and vector layers into
// the package's taxonomy at the facade boundary.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var dm *vector.DimensionError
	if errors.As(err, &dm) {
		return &ErrDimensionMismatch{
			Collection: dm.Collection,
			Expected:   dm.Expected,
			Actual:     dm.Actual,
			cause:      err,
		}
	}

	return err
}
