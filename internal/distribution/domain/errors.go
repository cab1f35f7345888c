package domain

import (
	"errors"

	"leadmarket_backend/platform/apperr"
)

var (
	ErrValidation            = errors.New("lead validation failed")
	ErrDuplicateLead         = errors.New("duplicate lead within the trailing window")
	ErrDuplicateDistribution = errors.New("lead already has a distribution record")
	ErrDuplicateAssignment   = errors.New("agency already assigned to this distribution")
	ErrAlreadyResolved       = errors.New("assignment already resolved")
	ErrInvalidTransition     = errors.New("invalid assignment transition")
	ErrWindowClosed          = errors.New("distribution window has closed")
	ErrNotEligible           = errors.New("agency is not eligible for this lead")
	ErrTerritoryExists       = errors.New("agency already holds an active territory for this value")
	ErrInvalidTerritory      = errors.New("invalid territory")
	ErrNotFound              = errors.New("not found")
)

var kinds = []struct {
	sentinel error
	kind     apperr.Kind
}{
	{ErrValidation, apperr.KindValidation},
	{ErrInvalidTerritory, apperr.KindValidation},
	{ErrDuplicateLead, apperr.KindConflict},
	{ErrDuplicateDistribution, apperr.KindConflict},
	{ErrDuplicateAssignment, apperr.KindConflict},
	{ErrAlreadyResolved, apperr.KindConflict},
	{ErrInvalidTransition, apperr.KindConflict},
	{ErrTerritoryExists, apperr.KindConflict},
	{ErrWindowClosed, apperr.KindGone},
	{ErrNotEligible, apperr.KindForbidden},
	{ErrNotFound, apperr.KindNotFound},
}

// AppError wraps err in an *apperr.Error whose Kind follows the sentinel it
// carries. Errors already typed by apperr pass through. Unknown errors are
// reported as internal.
func AppError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperr.GetKind(err) != apperr.KindUnknown {
		return err
	}
	kind := apperr.KindInternal
	for _, k := range kinds {
		if errors.Is(err, k.sentinel) {
			kind = k.kind
			break
		}
	}
	msg := err.Error()
	if kind == apperr.KindInternal {
		msg = "internal error"
	}
	return apperr.Wrap(kind, msg, err).WithOp(op)
}

// ValidationError wraps ErrValidation with per-field details.
func ValidationError(fields map[string]string) error {
	return apperr.Wrap(apperr.KindValidation, ErrValidation.Error(), ErrValidation).WithDetails(fields)
}
