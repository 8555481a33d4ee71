package pronos

import (
	"errors"
	"fmt"
)

// ErrInsufficientData indicates a training run was attempted with no usable matches
var ErrInsufficientData = errors.New("insufficient data to train a model")

// ErrModelNotFound indicates the model bundle is missing or unreadable
var ErrModelNotFound = errors.New("model bundle not found")

// PersistenceError wraps a storage failure with the operation that caused it
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence failure during %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
