package repository

import (
	"errors"
	"fmt"
)

// ErrStorage marks failures of the underlying store (connection loss, constraint, I/O).
var ErrStorage = errors.New("storage error")

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
