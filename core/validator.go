package core

import "fmt"

// ValidateBid checks a proposed bid against the auction's current highest
// bid and increment policy. It is a pure function; rules run in a fixed
// order and the first failure wins.
//
// A tie with the current highest is never valid: a strictly greater amount
// is required to replace the high bid. reserve is accepted for future
// policy rules but does not reject bids below the reserve; such bids are
// valid, they just cannot win until the reserve is met.
func ValidateBid(currentHighest *Money, reserve *Money, increment BidIncrement, bidder BidderID, amount Money) *ValidationError {
	if currentHighest != nil {
		if !amount.SameCurrency(*currentHighest) {
			return &ValidationError{
				Rule: RuleCurrency,
				Msg:  fmt.Sprintf("bid currency %s does not match auction currency %s", amount.Currency, currentHighest.Currency),
			}
		}
		if !amount.GreaterThan(*currentHighest) {
			return &ValidationError{
				Rule: RuleIncrement,
				Msg:  fmt.Sprintf("bid %s does not exceed current highest %s", amount, *currentHighest),
			}
		}
		minimum := increment.MinimumNext(*currentHighest)
		if amount.LessThan(minimum) {
			return &ValidationError{
				Rule: RuleIncrement,
				Msg:  fmt.Sprintf("bid %s is below the minimum next bid %s", amount, minimum),
			}
		}
	}
	if !amount.IsPositive() {
		return &ValidationError{
			Rule: RulePositive,
			Msg:  fmt.Sprintf("bid amount %s must be positive", amount),
		}
	}
	return nil
}
