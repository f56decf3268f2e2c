package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidAmount = errors.New("Amount must be a positive whole number of tokens")
	ErrInvalidProfit = errors.New("Profit must be a positive amount with at most 2 decimal places")
	ErrInvalidInput  = errors.New("Invalid input")

	ErrProjectNotFound      = errors.New("Project not found")
	ErrProjectNotActive     = errors.New("Project is not active")
	ErrInsufficientSupply   = errors.New("Insufficient token supply")
	ErrForbidden            = errors.New("Only the project admin may perform this action")
	ErrNotReady             = errors.New("Project not ready for distribution")
	ErrAlreadyDistributed   = errors.New("Profit already distributed for this project")
	ErrNoHolders            = errors.New("Project has no active token holders")
	ErrPendingMismatch      = errors.New("A pending distribution exists with a different profit")
	ErrDistributionNotFound = errors.New("Distribution not found")

	ErrDistributionInProgress = errors.New("A distribution attempt is in progress for this project")

	ErrLedgerUnavailable = errors.New("External ledger unavailable")
	ErrLedgerRejected    = errors.New("External ledger rejected the record")

	ErrConsistencyViolation = errors.New("Data consistency violation")
)

// Readiness reasons, in gate order.
const (
	ReasonReady      = "ready"
	ReasonNotFound   = "not_found"
	ReasonCompleted  = "completed"
	ReasonCancelled  = "cancelled"
	ReasonNotSoldOut = "not_sold_out"
	ReasonNoHolders  = "no_holders"
)

// NotReadyError carries the failing readiness check. errors.Is(err, ErrNotReady) holds.
type NotReadyError struct {
	Reason string
	Detail string
}

func (e *NotReadyError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", ErrNotReady.Error(), e.Reason)
	}
	return fmt.Sprintf("%s: %s", ErrNotReady.Error(), e.Detail)
}

func (e *NotReadyError) Is(target error) bool {
	return target == ErrNotReady
}

// Kind groups errors by how a caller should react to them.
type Kind string

const (
	KindValidation   Kind = "validation"
	KindPrecondition Kind = "precondition"
	KindContention   Kind = "contention"
	KindExternal     Kind = "external"
	KindConsistency  Kind = "consistency"
	KindInternal     Kind = "internal"
)

// KindOf classifies err. Unknown errors are internal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrInvalidProfit), errors.Is(err, ErrInvalidInput):
		return KindValidation
	case errors.Is(err, ErrDistributionInProgress):
		return KindContention
	case errors.Is(err, ErrLedgerUnavailable), errors.Is(err, ErrLedgerRejected):
		return KindExternal
	case errors.Is(err, ErrConsistencyViolation):
		return KindConsistency
	case errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrProjectNotActive),
		errors.Is(err, ErrInsufficientSupply), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrNotReady), errors.Is(err, ErrAlreadyDistributed),
		errors.Is(err, ErrNoHolders), errors.Is(err, ErrPendingMismatch),
		errors.Is(err, ErrDistributionNotFound):
		return KindPrecondition
	}
	return KindInternal
}

// Retryable is true when re-invoking the same operation may succeed:
// lost races and transient ledger failures.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindContention:
		return true
	case KindExternal:
		return errors.Is(err, ErrLedgerUnavailable)
	}
	return false
}
