/*
errors.go - Error taxonomy for the bonus ledger

PURPOSE:
  All error types in one place. The storage layer and HTTP layer translate
  to and from these; engines only ever produce errors classified here.

CATEGORIES:
  1. Validation  - malformed/out-of-range input, correctable by the caller
  2. Not found   - referenced client or transaction does not exist
  3. Conflict    - uniqueness or business-rule conflict (duplicate phone,
                   duplicate VIN, second refund of the same purchase)
  4. Invalid op  - operation not permitted in current state (refunding a refund)
  5. Storage     - underlying persistence failure, surfaced verbatim

PROPAGATION POLICY:
  Write paths never swallow storage errors. Best-effort secondary reads
  (balance enrichment on list views) may degrade to zero, but only where
  the caller contract says so explicitly - never in a mutating operation.

USAGE:
  if ledger.IsConflict(err) { ... }
  var verr *ledger.ValidationError
  if errors.As(err, &verr) { ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - use with errors.Is()
// =============================================================================

var (
	// ErrClientNotFound is returned when a referenced client doesn't exist.
	ErrClientNotFound = errors.New("client not found")

	// ErrTransactionNotFound is returned when a referenced transaction doesn't exist.
	ErrTransactionNotFound = errors.New("transaction not found")

	// ErrVINNotFound is returned when a referenced VIN record doesn't exist.
	ErrVINNotFound = errors.New("vin not found")

	// ErrAlreadyRefunded is returned on a second refund attempt for the same
	// purchase. Enforces at-most-one-refund-per-purchase.
	ErrAlreadyRefunded = errors.New("transaction already refunded")

	// ErrRefundOfRefund is returned when the refund target is itself a refund.
	ErrRefundOfRefund = errors.New("cannot refund a refund transaction")

	// ErrDuplicatePhone is returned when a client with the same phone exists.
	ErrDuplicatePhone = errors.New("client with this phone already exists")

	// ErrDuplicateVIN is returned when the client already has this VIN.
	ErrDuplicateVIN = errors.New("client already has this vin")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError reports malformed or out-of-range input. Always locally
// recoverable by the caller correcting the input; never retried.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StorageError wraps a persistence failure. The core does not retry; the
// cause is preserved for the caller.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage failure in %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// =============================================================================
// CLASSIFICATION HELPERS
// =============================================================================

// IsNotFound reports whether err indicates a missing client or transaction.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrClientNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrVINNotFound)
}

// IsConflict reports whether err is a uniqueness or business-rule conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyRefunded) ||
		errors.Is(err, ErrDuplicatePhone) ||
		errors.Is(err, ErrDuplicateVIN)
}

// IsInvalidOperation reports whether err is an operation not permitted in
// the current state.
func IsInvalidOperation(err error) bool {
	return errors.Is(err, ErrRefundOfRefund)
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

// IsStorage reports whether err is an underlying persistence failure.
func IsStorage(err error) bool {
	var serr *StorageError
	return errors.As(err, &serr)
}

// storageErr wraps err as a StorageError unless it is already classified.
func storageErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsNotFound(err) || IsConflict(err) || IsInvalidOperation(err) || IsValidation(err) || IsStorage(err) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
