package core

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a fixed-point monetary amount in a single currency.
// All arithmetic uses decimal arithmetic to avoid floating-point errors.
//
// Operations on two Money values require matching currencies. Commands
// entering the system are checked for currency agreement by the bid
// validator before any arithmetic happens; a mismatch past that point is a
// programming error and panics.
type Money struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// NewMoney builds a Money from a decimal amount and an ISO 4217 currency code.
func NewMoney(amount decimal.Decimal, currency string) Money {
	return Money{Amount: amount, Currency: currency}
}

// ParseMoney parses a decimal string like "125.50" into a Money.
func ParseMoney(amount, currency string) (Money, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return Money{}, fmt.Errorf("parse money amount %q: %w", amount, err)
	}
	return Money{Amount: d, Currency: currency}, nil
}

// USD is a convenience constructor used widely in tests.
func USD(amount string) Money {
	m, err := ParseMoney(amount, "USD")
	if err != nil {
		panic(err)
	}
	return m
}

func (m Money) mustMatch(o Money) {
	if m.Currency != o.Currency {
		panic(fmt.Sprintf("currency mismatch: %s vs %s", m.Currency, o.Currency))
	}
}

// SameCurrency reports whether both amounts are denominated alike.
func (m Money) SameCurrency(o Money) bool { return m.Currency == o.Currency }

func (m Money) Add(o Money) Money {
	m.mustMatch(o)
	return Money{Amount: m.Amount.Add(o.Amount), Currency: m.Currency}
}

func (m Money) Sub(o Money) Money {
	m.mustMatch(o)
	return Money{Amount: m.Amount.Sub(o.Amount), Currency: m.Currency}
}

// Cmp returns -1, 0 or +1 comparing m against o.
func (m Money) Cmp(o Money) int {
	m.mustMatch(o)
	return m.Amount.Cmp(o.Amount)
}

func (m Money) GreaterThan(o Money) bool        { return m.Cmp(o) > 0 }
func (m Money) GreaterThanOrEqual(o Money) bool { return m.Cmp(o) >= 0 }
func (m Money) LessThan(o Money) bool           { return m.Cmp(o) < 0 }
func (m Money) Equal(o Money) bool              { return m.Cmp(o) == 0 }

// IsPositive reports whether the amount is strictly greater than zero.
func (m Money) IsPositive() bool { return m.Amount.IsPositive() }

func (m Money) String() string {
	return m.Amount.String() + " " + m.Currency
}
