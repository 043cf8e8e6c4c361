package bankrec

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/bankrec_backend/models"
)

var (
	// ErrValidation rejects a user action that would break the proposal's invariants.
	ErrValidation = errors.New("validation error")

	// ErrReconciliationConflict means an entry was settled by another session; refetch and retry.
	ErrReconciliationConflict = errors.New("reconciliation conflict")

	// ErrHostContract means the ledger returned data the widget cannot work with.
	ErrHostContract = errors.New("host contract violation")

	ErrCurrencyRateMissing = models.ErrCurrencyRateMissing

	ErrRemainderPolicyUnset = fmt.Errorf("%w: batch remainder policy is not configured", ErrValidation)
)

func validationErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

func conflictErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrReconciliationConflict}, args...)...)
}

func hostContractErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrHostContract}, args...)...)
}
