package core

import (
	"errors"
	"fmt"
)

// Validation rule identifiers carried on rejections so callers can tell the
// bidder exactly which rule their bid violated.
const (
	RuleCurrency   = "currency_mismatch"
	RuleIncrement  = "below_minimum_increment"
	RulePositive   = "non_positive_amount"
	RuleDutchPrice = "amount_not_current_price"

	// RuleAuctionConfig marks a CreateAuction rejected for inconsistent
	// configuration rather than a bad bid.
	RuleAuctionConfig = "invalid_auction_config"
)

// ValidationError rejects a command whose inputs are bad in isolation. It is
// never persisted; the caller retries with corrected input.
type ValidationError struct {
	Rule string
	Msg  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid bid (%s): %s", e.Rule, e.Msg)
}

// StateError rejects a command that is valid in isolation but wrong for the
// aggregate's current status.
type StateError struct {
	Msg string
}

func (e *StateError) Error() string { return e.Msg }

func stateErrorf(format string, args ...any) *StateError {
	return &StateError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsState reports whether err is (or wraps) a StateError.
func IsState(err error) bool {
	var s *StateError
	return errors.As(err, &s)
}

// ErrCorruptStream signals an event history that cannot be replayed.
// Processing of that one aggregate must halt without affecting others.
var ErrCorruptStream = errors.New("corrupt event stream")
