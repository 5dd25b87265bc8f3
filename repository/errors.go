package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrLockOrder is returned when a row lock is requested out of the documented order.
	ErrLockOrder = errors.New("lock acquired out of order")
	// ErrNoTransaction is returned when a row lock is requested outside a transaction.
	ErrNoTransaction = errors.New("row lock requires a transaction")
	// ErrUnknownRefKind is returned when a Ref names a kind with no registered loader.
	ErrUnknownRefKind = errors.New("unknown reference kind")
)

func translate(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
