package store

import (
	"errors"
	"fmt"
)

// StoreError wraps a failure reported by the underlying key-value store.
type StoreError struct {
	Op  string // scan, last, put, delete or write
	Err error
}

func (e *StoreError) Error() string {
	return "store " + e.Op + ": " + e.Err.Error()
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StoreError
	if errors.As(err, &se) {
		return err
	}
	return &StoreError{Op: op, Err: err}
}

// IsStoreError reports whether err came from the store.
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

func errUnknownMutation(k MutationKind) error {
	return fmt.Errorf("unknown mutation kind %d", k)
}
