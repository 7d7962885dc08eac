package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

// Money is an immutable currency amount. Arithmetic is exact decimal
// arithmetic; rounding happens only when explicitly requested via
// RoundToMinorUnit.
type Money struct {
	Amount   decimal.Decimal
	Currency currency.Unit
}

func NewMoney(amount decimal.Decimal, cur currency.Unit) Money {
	return Money{Amount: amount, Currency: cur}
}

// NewFromMinorUnits builds a Money from an integer count of the currency's
// minor units, e.g. NewFromMinorUnits(2430, currency.USD) is $24.30.
func NewFromMinorUnits(minor int64, cur currency.Unit) Money {
	scale, _ := currency.Standard.Rounding(cur)

	return Money{
		Amount:   decimal.NewFromInt(minor).Shift(int32(-scale)),
		Currency: cur,
	}
}

func (m Money) Add(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}

	return Money{Amount: m.Amount.Add(other.Amount), Currency: m.Currency}, nil
}

func (m Money) Sub(other Money) (Money, error) {
	if err := m.sameCurrency(other); err != nil {
		return Money{}, err
	}

	return Money{Amount: m.Amount.Sub(other.Amount), Currency: m.Currency}, nil
}

// MulInt scales the amount by a non-negative integer.
func (m Money) MulInt(scalar int64) (Money, error) {
	if scalar < 0 {
		return Money{}, fmt.Errorf("scalar[%d] is negative: %w", scalar, ErrInvalidArgument)
	}

	return Money{Amount: m.Amount.Mul(decimal.NewFromInt(scalar)), Currency: m.Currency}, nil
}

// Cmp returns -1, 0 or 1 if m is less than, equal to or greater than other.
func (m Money) Cmp(other Money) (int, error) {
	if err := m.sameCurrency(other); err != nil {
		return 0, err
	}

	return m.Amount.Cmp(other.Amount), nil
}

// RoundToMinorUnit rounds half-up to the currency's minor unit,
// e.g. USD 24.305 becomes USD 24.31.
func (m Money) RoundToMinorUnit() Money {
	scale, _ := currency.Standard.Rounding(m.Currency)

	return Money{Amount: m.Amount.Round(int32(scale)), Currency: m.Currency}
}

// MinorUnits returns the amount as an integer count of minor units.
// It fails if the amount is not exactly representable at that scale.
func (m Money) MinorUnits() (int64, error) {
	scale, _ := currency.Standard.Rounding(m.Currency)

	shifted := m.Amount.Shift(int32(scale))
	if !shifted.IsInteger() {
		return 0, fmt.Errorf("amount[%s] is not a whole number of minor units: %w", m.Amount, ErrInvalidArgument)
	}

	return shifted.IntPart(), nil
}

func (m Money) IsZero() bool {
	return m.Amount.IsZero()
}

func (m Money) Negative() bool {
	return m.Amount.IsNegative()
}

// ClampZero replaces a negative amount with zero in the same currency.
func (m Money) ClampZero() Money {
	if m.Amount.IsNegative() {
		return Money{Amount: decimal.Zero, Currency: m.Currency}
	}

	return m
}

func (m Money) String() string {
	return fmt.Sprintf("%s %s", m.Currency, m.Amount)
}

func (m Money) sameCurrency(other Money) error {
	if m.Currency != other.Currency {
		return CurrencyMismatchError{Left: m.Currency, Right: other.Currency}
	}

	return nil
}
