package services

import (
	"errors"
	"fmt"

	"toko-checkout/internal/models"
	"toko-checkout/internal/repositories"
)

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrNotFound         = errors.New("not found")
	ErrOutOfStock       = errors.New("out of stock")
	ErrDuplicateRequest = errors.New("duplicate request")
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidState     = errors.New("invalid state")
	ErrBusy             = errors.New("resource busy, retry later")
	ErrTimeout          = errors.New("operation timed out")
	ErrInternal         = errors.New("internal error")
	ErrUnauthorized     = errors.New("invalid credentials")
	ErrConflict         = errors.New("conflict")
)

// OutOfStockError reports the product that could not cover the requested
// quantity.
type OutOfStockError struct {
	ProductID string
	Requested int
	Available int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("out of stock: product %s requested %d, available %d", e.ProductID, e.Requested, e.Available)
}

func (e *OutOfStockError) Is(target error) bool {
	return target == ErrOutOfStock
}

// DuplicateRequestError carries the order already created for an
// idempotency key.
type DuplicateRequestError struct {
	Order *models.Order
}

func (e *DuplicateRequestError) Error() string {
	return fmt.Sprintf("duplicate request: order %s already exists for this idempotency key", e.Order.ID)
}

func (e *DuplicateRequestError) Is(target error) bool {
	return target == ErrDuplicateRequest
}

func invalidRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}

// classify maps repository errors onto the service taxonomy. Errors that are
// already classified pass through unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{
		ErrInvalidRequest, ErrNotFound, ErrOutOfStock, ErrDuplicateRequest, ErrForbidden,
		ErrInvalidState, ErrBusy, ErrTimeout, ErrInternal, ErrUnauthorized, ErrConflict,
	} {
		if errors.Is(err, known) {
			return err
		}
	}
	switch {
	case errors.Is(err, repositories.ErrRecordNotFound):
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	case errors.Is(err, repositories.ErrLockUnavailable):
		return fmt.Errorf("%w: %w", ErrBusy, err)
	case errors.Is(err, repositories.ErrTxTimeout):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	case errors.Is(err, repositories.ErrDuplicateKey):
		return fmt.Errorf("%w: %w", ErrConflict, err)
	case errors.Is(err, models.ErrIllegalTransition):
		return fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	return fmt.Errorf("%w: %w", ErrInternal, err)
}

// retryable reports whether a whole transaction may be re-run.
func retryable(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrTimeout)
}
