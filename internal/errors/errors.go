// internal/errors/errors.go
package appErrors

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAddress is matched by InvalidAddressError via errors.Is
	ErrInvalidAddress = errors.New("invalid phone number format")
	// ErrAlreadyClaimed signals a lost race on the ledger uniqueness constraint. Not a failure.
	ErrAlreadyClaimed = errors.New("claimed by another process")
	ErrRecordNotFound = errors.New("delivery record not found")
	// ErrRecordNotFailed is returned when clearing a ledger row that is not in failed state
	ErrRecordNotFailed = errors.New("only failed delivery records can be cleared")
)

// InvalidAddressError carries the raw input that could not be normalized.
type InvalidAddressError struct {
	Raw string
}

func (e *InvalidAddressError) Error() string {
	return fmt.Sprintf("invalid phone number format: %q", e.Raw)
}

func (e *InvalidAddressError) Is(target error) bool {
	return target == ErrInvalidAddress
}

func NewInvalidAddress(raw string) error {
	return &InvalidAddressError{Raw: raw}
}

// TransportFailureError is a rejected or errored send through the SMS gateway.
type TransportFailureError struct {
	Detail string
}

func (e *TransportFailureError) Error() string {
	return e.Detail
}

func NewTransportFailure(format string, args ...any) error {
	return &TransportFailureError{Detail: fmt.Sprintf(format, args...)}
}

// StorageFailureError wraps a ledger or store error with the operation that failed.
type StorageFailureError struct {
	Op  string
	Err error
}

func (e *StorageFailureError) Error() string {
	return fmt.Sprintf("storage failure during %s: %v", e.Op, e.Err)
}

func (e *StorageFailureError) Unwrap() error {
	return e.Err
}

func NewStorageFailure(op string, err error) error {
	return &StorageFailureError{Op: op, Err: err}
}

// UnknownJobError is returned for a job identifier outside the known set.
type UnknownJobError struct {
	Name string
}

func (e *UnknownJobError) Error() string {
	return fmt.Sprintf("unknown job: %s", e.Name)
}

func NewUnknownJob(name string) error {
	return &UnknownJobError{Name: name}
}
