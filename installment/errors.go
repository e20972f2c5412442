/*
errors.go - Centralized error types for the reconciliation engine

ERROR CATEGORIES:
  1. Input errors - Rejected before any state change (InvalidInput, InvalidTerms)
  2. State errors - Contract cannot accept the operation (AlreadySettled)
  3. Transient errors - Retried automatically (ConcurrentModification)
  4. Fatal errors - Data the engine refuses to act on (ScheduleCorrupt)
  5. Store errors - Timeouts and missing records

USAGE:
  if errors.Is(err, installment.ErrContractAlreadySettled) {
      // nothing left to pay
  }

SEE ALSO:
  - engine.go: Maps store errors onto this taxonomy
  - api/handlers.go: Maps this taxonomy onto HTTP status codes
*/
package installment

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidInput is returned for non-positive amounts, malformed dates
	// and edits that change nothing.
	ErrInvalidInput = errors.New("invalid input")

	// ErrInvalidTerms is returned when terms violate the price/period/payment
	// identity or cannot produce a schedule.
	ErrInvalidTerms = errors.New("invalid contract terms")

	// ErrContractAlreadySettled is returned when a payment arrives but no
	// installment is open.
	ErrContractAlreadySettled = errors.New("contract already settled")

	// ErrConcurrentModification is returned by a LedgerStore when the
	// contract version moved since it was read. The engine retries it.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrConcurrencyConflict is surfaced once retries are exhausted.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrScheduleCorrupt is returned when allocation state cannot be trusted:
	// a cascade exceeded its bound or an index is out of range.
	ErrScheduleCorrupt = errors.New("schedule corrupt")

	// ErrStorageTimeout is returned when the store's transaction timed out.
	// Callers must assume nothing was written.
	ErrStorageTimeout = errors.New("storage timeout")

	ErrContractNotFound  = errors.New("contract not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrDuplicateContract = errors.New("contract already exists")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// TermsError explains why terms were rejected.
type TermsError struct {
	Field  string
	Reason string
}

func (e *TermsError) Error() string {
	return fmt.Sprintf("invalid contract terms: %s: %s", e.Field, e.Reason)
}

func (e *TermsError) Unwrap() error { return ErrInvalidTerms }

// CorruptionError pinpoints where allocation state stopped making sense.
type CorruptionError struct {
	Index  int
	Detail string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("schedule corrupt at installment %d: %s", e.Index, e.Detail)
}

func (e *CorruptionError) Unwrap() error { return ErrScheduleCorrupt }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrInvalidTerms)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrContractNotFound) ||
		errors.Is(err, ErrPaymentNotFound)
}
