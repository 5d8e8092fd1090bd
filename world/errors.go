package world

import "errors"

var (
	ErrInsufficientBudget = errors.New("insufficient budget")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrUnknownBook        = errors.New("unknown book")
	ErrUnknownCustomer    = errors.New("unknown customer")
	ErrUnknownEmployee    = errors.New("unknown employee")
	ErrUnknownOrder       = errors.New("unknown order")
	ErrUnknownGenre       = errors.New("unknown genre")
	ErrUnknownAuthor      = errors.New("unknown author")
	ErrDuplicateID        = errors.New("duplicate identifier")
	ErrOrderNotPending    = errors.New("order is not pending")
	ErrInvalidQuantity    = errors.New("quantity must be positive")
)

// ReasonFor maps a purchase failure to its wire reason code. It returns "" for
// errors that are not purchase precondition failures.
func ReasonFor(err error) RejectReason {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		return ReasonInsufficientStock
	case errors.Is(err, ErrInsufficientBudget):
		return ReasonInsufficientBudget
	}
	return ""
}
