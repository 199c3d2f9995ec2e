// Package businessflow contains the quote, assignment and billing use cases
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Not found
	ErrBrokerNotFound   = errors.New("broker not found")
	ErrPlanNotFound     = errors.New("subscription plan not found")
	ErrAccountNotFound  = errors.New("broker account not found")
	ErrLeadNotFound     = errors.New("lead not found")
	ErrSnapshotNotFound = errors.New("no quotes have been computed for this lead")

	// Conflict
	ErrAccountAlreadyExists   = errors.New("broker account already exists")
	ErrLeadAssignmentConflict = errors.New("lead was assigned concurrently")
	ErrAccountNumberConflict  = errors.New("account number already in use")
	ErrLeadAlreadyAssigned    = errors.New("lead is already assigned to a broker")

	// Invalid input
	ErrInvalidAmount            = errors.New("amount must be positive")
	ErrInvalidAdjustment        = errors.New("adjustment amount must not be zero")
	ErrInvalidVehicleYear       = errors.New("vehicle year must be positive")
	ErrInvalidInsuredValue      = errors.New("insured value must be positive")
	ErrInsuredValueTooHigh      = errors.New("insured value exceeds the configured maximum")
	ErrInvalidVehicleMake       = errors.New("vehicle make and model are required")
	ErrInvalidCoverageSelection = errors.New("selected insurer and coverage were not quoted for this lead")
	ErrInvalidPhone             = errors.New("phone number is required")
	ErrVehicleIncomplete        = errors.New("lead vehicle data is incomplete")
	ErrUnknownCommand           = errors.New("unknown lead command")
)

var (
	notFoundErrors = []error{
		ErrBrokerNotFound,
		ErrPlanNotFound,
		ErrAccountNotFound,
		ErrLeadNotFound,
		ErrSnapshotNotFound,
	}
	conflictErrors = []error{
		ErrAccountAlreadyExists,
		ErrLeadAssignmentConflict,
		ErrAccountNumberConflict,
		ErrLeadAlreadyAssigned,
	}
	invalidInputErrors = []error{
		ErrInvalidAmount,
		ErrInvalidAdjustment,
		ErrInvalidVehicleYear,
		ErrInvalidInsuredValue,
		ErrInsuredValueTooHigh,
		ErrInvalidVehicleMake,
		ErrInvalidCoverageSelection,
		ErrInvalidPhone,
		ErrVehicleIncomplete,
		ErrUnknownCommand,
	}
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

func NewBusinessErrorf(code, message string, err error, args ...any) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: fmt.Sprintf(message, args...),
		Err:     err,
	}
}

func isAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsNotFound reports whether err refers to a missing broker, plan, account or lead
func IsNotFound(err error) bool {
	return isAny(err, notFoundErrors)
}

// IsConflict reports whether err is a duplicate or a lost race
func IsConflict(err error) bool {
	return isAny(err, conflictErrors)
}

// IsInvalidInput reports whether err was caused by the caller's input
func IsInvalidInput(err error) bool {
	return isAny(err, invalidInputErrors)
}

func IsBrokerNotFound(err error) bool {
	return errors.Is(err, ErrBrokerNotFound)
}

func IsPlanNotFound(err error) bool {
	return errors.Is(err, ErrPlanNotFound)
}

func IsAccountNotFound(err error) bool {
	return errors.Is(err, ErrAccountNotFound)
}

func IsLeadNotFound(err error) bool {
	return errors.Is(err, ErrLeadNotFound)
}

func IsAccountAlreadyExists(err error) bool {
	return errors.Is(err, ErrAccountAlreadyExists)
}

func IsInvalidAmount(err error) bool {
	return errors.Is(err, ErrInvalidAmount)
}

func IsInvalidCoverageSelection(err error) bool {
	return errors.Is(err, ErrInvalidCoverageSelection)
}
