package service

import (
	"errors"
	"fmt"

	"github.com/cafe-pos/register/internal/cart"
	"github.com/cafe-pos/register/internal/modifier"
	"github.com/cafe-pos/register/internal/pricing"
)

// Validation errors. They are raised before any remote call.
var (
	ErrEmptyCart             = errors.New("cart is empty")
	ErrCustomerNameRequired  = errors.New("customer name is required")
	ErrPaymentMethodRequired = errors.New("payment method is required")
	ErrInvalidPaymentMethod  = errors.New("invalid payment method")
	ErrInvalidServiceType    = errors.New("invalid service type")
	ErrInvalidID             = errors.New("invalid id")
)

// State errors: the operation does not fit the current context.
var (
	ErrSubmitInFlight      = errors.New("a submission is already in progress")
	ErrNoContext           = errors.New("no order selected")
	ErrWrongContext        = errors.New("operation not available for the selected order")
	ErrLinesLocked         = errors.New("lines of a ticket sent to the kitchen cannot be changed")
	ErrNotEditable         = errors.New("order cannot be edited at the register")
	ErrDiscountUnsupported = errors.New("discounts cannot be applied to a pre-order")
	ErrTicketNotFound      = errors.New("ticket is not waiting for payment")
)

var validationErrors = []error{
	ErrEmptyCart,
	ErrCustomerNameRequired,
	ErrPaymentMethodRequired,
	ErrInvalidPaymentMethod,
	ErrInvalidServiceType,
	ErrInvalidID,
	cart.ErrInvalidInput,
	pricing.ErrInvalidKind,
	modifier.ErrUnknownMilk,
	modifier.ErrUnknownExtra,
	modifier.ErrUnknownProtein,
	modifier.ErrUnknownPrep,
}

var stateErrors = []error{
	ErrSubmitInFlight,
	ErrNoContext,
	ErrWrongContext,
	ErrLinesLocked,
	ErrNotEditable,
	ErrDiscountUnsupported,
}

// IsValidation reports whether err was caught locally, before any network
// call.
func IsValidation(err error) bool {
	return isAny(err, validationErrors)
}

// IsState reports whether err means the operation does not fit the current
// register state.
func IsState(err error) bool {
	return isAny(err, stateErrors)
}

func isAny(err error, targets []error) bool {
	for _, t := range targets {
		if errors.Is(err, t) {
			return true
		}
	}
	return false
}

// PartialCommitError reports a multi-step flow whose first step committed
// remotely before a later step failed. The committed effect is not rolled
// back.
type PartialCommitError struct {
	Flow       string
	SaleID     *int64
	PreorderID *int64
	Err        error
}

func (e *PartialCommitError) Error() string {
	switch {
	case e.SaleID != nil:
		return fmt.Sprintf("sale %d was created but the flow did not finish: %v", *e.SaleID, e.Err)
	case e.PreorderID != nil:
		return fmt.Sprintf("pre-order %d was updated but payment failed: %v", *e.PreorderID, e.Err)
	}
	return e.Err.Error()
}

func (e *PartialCommitError) Unwrap() error {
	return e.Err
}
