// Package businessflow contains the core business logic and use cases for the pricing engine
package businessflow

import (
	"errors"
	"fmt"
)

// Taxonomy roots. Every leaf below wraps exactly one of them.
var (
	ErrValidation  = errors.New("validation error")
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrComputation = errors.New("computation error")
)

// Business flow error constants
var (
	// Rate table validation errors
	ErrVigencyInvalid          = fmt.Errorf("%w: vigency start must not be after vigency end", ErrValidation)
	ErrBandOverlap             = fmt.Errorf("%w: power bands overlap", ErrValidation)
	ErrBandInvalid             = fmt.Errorf("%w: power band is invalid", ErrValidation)
	ErrRegionInvalid           = fmt.Errorf("%w: region tax is invalid", ErrValidation)
	ErrRateTableUpdateRequired = fmt.Errorf("%w: at least one field must be provided for update", ErrValidation)
	ErrInvalidDate             = fmt.Errorf("%w: invalid date", ErrValidation)

	// Pricing request validation errors
	ErrPowerNotPositive        = fmt.Errorf("%w: power must be greater than zero", ErrValidation)
	ErrOverrideOutOfRange      = fmt.Errorf("%w: override must be in [0, 1)", ErrValidation)
	ErrAdditionalCostsNegative = fmt.Errorf("%w: additional costs must not be negative", ErrValidation)

	// Lookup errors
	ErrRateTableNotFound = fmt.Errorf("%w: rate table not found", ErrNotFound)
	ErrNoActiveRateTable = fmt.Errorf("%w: no active rate table for date", ErrNotFound)
	ErrBandNotFound      = fmt.Errorf("%w: power band not found", ErrNotFound)
	ErrNoBandForPower    = fmt.Errorf("%w: no power band covers the requested power", ErrNotFound)
	ErrRegionNotFound    = fmt.Errorf("%w: region not found in rate table", ErrNotFound)
	ErrUserNotFound      = fmt.Errorf("%w: user not found", ErrNotFound)

	// Uniqueness errors
	ErrRegionAlreadyExists = fmt.Errorf("%w: region already exists in rate table", ErrConflict)

	// Authentication errors
	ErrAccountInactive     = errors.New("account is inactive")
	ErrIncorrectPassword   = errors.New("incorrect password")
	ErrInvalidRefreshToken = errors.New("invalid refresh token")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// detailf attaches a human-readable detail to a sentinel while keeping it matchable
func detailf(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrValidation)
}

func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflictError(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsComputationError(err error) bool {
	return errors.Is(err, ErrComputation)
}

func IsVigencyInvalid(err error) bool {
	return errors.Is(err, ErrVigencyInvalid)
}

func IsBandOverlap(err error) bool {
	return errors.Is(err, ErrBandOverlap)
}

func IsBandInvalid(err error) bool {
	return errors.Is(err, ErrBandInvalid)
}

func IsRegionInvalid(err error) bool {
	return errors.Is(err, ErrRegionInvalid)
}

func IsRateTableUpdateRequired(err error) bool {
	return errors.Is(err, ErrRateTableUpdateRequired)
}

func IsInvalidDate(err error) bool {
	return errors.Is(err, ErrInvalidDate)
}

func IsPowerNotPositive(err error) bool {
	return errors.Is(err, ErrPowerNotPositive)
}

func IsOverrideOutOfRange(err error) bool {
	return errors.Is(err, ErrOverrideOutOfRange)
}

func IsAdditionalCostsNegative(err error) bool {
	return errors.Is(err, ErrAdditionalCostsNegative)
}

func IsRateTableNotFound(err error) bool {
	return errors.Is(err, ErrRateTableNotFound)
}

func IsNoActiveRateTable(err error) bool {
	return errors.Is(err, ErrNoActiveRateTable)
}

func IsBandNotFound(err error) bool {
	return errors.Is(err, ErrBandNotFound)
}

func IsNoBandForPower(err error) bool {
	return errors.Is(err, ErrNoBandForPower)
}

func IsRegionNotFound(err error) bool {
	return errors.Is(err, ErrRegionNotFound)
}

func IsUserNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

func IsRegionAlreadyExists(err error) bool {
	return errors.Is(err, ErrRegionAlreadyExists)
}

func IsAccountInactive(err error) bool {
	return errors.Is(err, ErrAccountInactive)
}

func IsIncorrectPassword(err error) bool {
	return errors.Is(err, ErrIncorrectPassword)
}

func IsInvalidRefreshToken(err error) bool {
	return errors.Is(err, ErrInvalidRefreshToken)
}
