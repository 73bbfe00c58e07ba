package domain

import (
	"errors"
	"fmt"
)

// Error classes. Every domain error of the ledger wraps exactly one of them.
var (
	ErrValidation         = errors.New("validation_error")
	ErrNotFound           = errors.New("not_found")
	ErrExternalDependency = errors.New("external_dependency")
	ErrPrecision          = errors.New("precision_error")
	ErrConflict           = errors.New("conflict")
	ErrForbidden          = errors.New("forbidden")
)

// Error is a classified domain error with a stable code and a readable message.
type Error struct {
	Class   error
	Code    string
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.cause != nil {
		return []error{e.Class, e.cause}
	}
	return []error{e.Class}
}

func NewValidation(code, message string) *Error {
	return &Error{Class: ErrValidation, Code: code, Message: message}
}

func NewNotFound(code, message string) *Error {
	return &Error{Class: ErrNotFound, Code: code, Message: message}
}

func NewConflict(code, message string) *Error {
	return &Error{Class: ErrConflict, Code: code, Message: message}
}

func NewForbidden(code, message string) *Error {
	return &Error{Class: ErrForbidden, Code: code, Message: message}
}

func NewPrecision(message string) *Error {
	return &Error{Class: ErrPrecision, Code: "precision_drift", Message: message}
}

// External wraps a store failure. Classified errors pass through untouched.
func External(op string, err error) error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return err
	}
	return &Error{Class: ErrExternalDependency, Code: "store_failure", Message: op, cause: err}
}

// CodeOf returns the code of a classified error, "" otherwise.
func CodeOf(err error) string {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Code
	}
	return ""
}

var (
	ErrPaymentNotFound      = NewNotFound("payment_not_found", "payment not found")
	ErrInvalidAmount        = NewValidation("invalid_amount", "amount must be positive")
	ErrInvalidCategory      = NewValidation("invalid_category", "category is required")
	ErrInvalidDueDate       = NewValidation("invalid_due_date", "due date must be YYYY-MM-DD")
	ErrInvalidMember        = NewValidation("invalid_member", "member is required")
	ErrInvalidGroup         = NewValidation("invalid_group", "group is required")
	ErrInvalidStatus        = NewValidation("invalid_status", "unknown payment status")
	ErrPaidAmountOutOfRange = NewValidation("paid_amount_out_of_range", "paid amount must stay between zero and the amount owed")
	ErrEmptyGroup           = NewValidation("empty_group", "group has no members")
	ErrInvalidTransition    = NewConflict("invalid_status_transition", "payment status transition not allowed")
	ErrChargeExists         = NewConflict("charge_exists", "group already has this charge, sync it instead")
)
