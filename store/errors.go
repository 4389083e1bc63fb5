package store

import (
	"errors"
	"fmt"

	"github.com/jacentio/featurewindow/internal/rowkey"
)

var (
	// ErrProvisioning is matched by every *ProvisioningError.
	ErrProvisioning = errors.New("featurewindow: table provisioning failed")

	// ErrWrite is matched by every *WriteError.
	ErrWrite = errors.New("featurewindow: document write failed")

	// ErrNotInitialized is returned for I/O attempted before Initialize.
	ErrNotInitialized = errors.New("featurewindow: store is not initialized")

	// ErrInvalidRange is returned when a scan's bounds span more than one entity.
	ErrInvalidRange = errors.New("featurewindow: scan range spans entities")

	// ErrMalformedKey is returned when a row key is not "<entity>#<inverted millis>".
	ErrMalformedKey = rowkey.ErrMalformedKey
)

// ProvisioningError reports a failed table existence check or creation.
type ProvisioningError struct {
	Table string
	// Op is the failing step: "describe", "create", "wait" or "ttl".
	Op  string
	Err error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("featurewindow: %s table %q: %v", e.Op, e.Table, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

func (e *ProvisioningError) Is(target error) bool { return target == ErrProvisioning }

// WriteError carries the store-reported cause of a failed put.
type WriteError struct {
	Table string
	Key   []byte
	Err   error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("featurewindow: write %q to table %q: %v", e.Key, e.Table, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

func (e *WriteError) Is(target error) bool { return target == ErrWrite }
