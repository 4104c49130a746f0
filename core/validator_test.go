package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestValidateBid_FirstBid(t *testing.T) {
	inc := FixedIncrement{Step: USD("10")}
	bidder := NewBidderID()

	// No current highest: any positive amount is valid, even below reserve.
	reserve := USD("100")
	check.Nil(t, ValidateBid(nil, &reserve, inc, bidder, USD("80")))
	check.Nil(t, ValidateBid(nil, &reserve, inc, bidder, USD("0.01")))
}

func TestValidateBid_RejectsNonPositive(t *testing.T) {
	inc := FixedIncrement{Step: USD("10")}
	bidder := NewBidderID()

	verr := ValidateBid(nil, nil, inc, bidder, USD("0"))
	check.NotNil(t, verr)
	check.Equal(t, RulePositive, verr.Rule)

	verr = ValidateBid(nil, nil, inc, bidder, USD("-5"))
	check.NotNil(t, verr)
	check.Equal(t, RulePositive, verr.Rule)
}

func TestValidateBid_TieIsNeverValid(t *testing.T) {
	inc := FixedIncrement{Step: USD("0.01")}
	bidder := NewBidderID()
	current := USD("100")

	verr := ValidateBid(&current, nil, inc, bidder, USD("100"))
	check.NotNil(t, verr)
	check.Equal(t, RuleIncrement, verr.Rule)
}

func TestValidateBid_MinimumIncrement(t *testing.T) {
	inc := FixedIncrement{Step: USD("10")}
	bidder := NewBidderID()
	current := USD("100")

	// 105 beats the highest but not highest+step
	verr := ValidateBid(&current, nil, inc, bidder, USD("105"))
	check.NotNil(t, verr)
	check.Equal(t, RuleIncrement, verr.Rule)

	check.Nil(t, ValidateBid(&current, nil, inc, bidder, USD("110")))
	check.Nil(t, ValidateBid(&current, nil, inc, bidder, USD("150")))
}

func TestValidateBid_CurrencyMismatch(t *testing.T) {
	inc := FixedIncrement{Step: USD("10")}
	bidder := NewBidderID()
	current := USD("100")

	verr := ValidateBid(&current, nil, inc, bidder, NewMoney(USD("200").Amount, "EUR"))
	check.NotNil(t, verr)
	check.Equal(t, RuleCurrency, verr.Rule)
}

func TestTieredIncrement(t *testing.T) {
	inc := TieredIncrement{Tiers: []IncrementTier{
		{From: USD("0"), Step: USD("1")},
		{From: USD("100"), Step: USD("5")},
		{From: USD("1000"), Step: USD("25")},
	}}

	check.True(t, inc.MinimumNext(USD("50")).Equal(USD("51")))
	check.True(t, inc.MinimumNext(USD("100")).Equal(USD("105")))
	check.True(t, inc.MinimumNext(USD("2000")).Equal(USD("2025")))
}
