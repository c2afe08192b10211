package repoerr

import (
	"errors"
	"fmt"
)

// ErrPersistence tags any storage failure surfaced by a repository.
var ErrPersistence = errors.New("persistence failure")

// Wrap tags err as a persistence failure for op. It returns nil for nil.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrPersistence, fmt.Errorf("%s: %w", op, err))
}
