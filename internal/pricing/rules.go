package pricing

import (
	"github.com/nikolayk812/cart-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// DiscountRule adjusts a running total. Rules receive the total as adjusted
// by earlier rules, never the raw subtotal. Exclusive rules refuse to
// combine with other exclusive rules.
type DiscountRule interface {
	Name() string
	Exclusive() bool
	Matches(snapshot domain.CartSnapshot) bool
	Apply(total domain.Money) (domain.Money, error)
}

type percentageDiscount struct {
	name      string
	percent   decimal.Decimal
	exclusive bool
}

// PercentageDiscount takes percent off the running total, e.g. 10 for 10%.
func PercentageDiscount(name string, percent decimal.Decimal, exclusive bool) DiscountRule {
	return percentageDiscount{name: name, percent: percent, exclusive: exclusive}
}

func (r percentageDiscount) Name() string { return r.name }
func (r percentageDiscount) Exclusive() bool { return r.exclusive }
func (r percentageDiscount) Matches(_ domain.CartSnapshot) bool { return true }

func (r percentageDiscount) Apply(total domain.Money) (domain.Money, error) {
	cut := total.Amount.Mul(r.percent).Div(decimal.NewFromInt(100))

	return domain.NewMoney(total.Amount.Sub(cut), total.Currency), nil
}

type fixedDiscount struct {
	name      string
	amount    domain.Money
	exclusive bool
}

// FixedDiscount takes a flat amount off the running total. The engine clamps
// the result at zero, so a discount larger than the total is safe.
func FixedDiscount(name string, amount domain.Money, exclusive bool) DiscountRule {
	return fixedDiscount{name: name, amount: amount, exclusive: exclusive}
}

func (r fixedDiscount) Name() string { return r.name }
func (r fixedDiscount) Exclusive() bool { return r.exclusive }
func (r fixedDiscount) Matches(_ domain.CartSnapshot) bool { return true }

func (r fixedDiscount) Apply(total domain.Money) (domain.Money, error) {
	return total.Sub(r.amount)
}

type minSubtotalDiscount struct {
	inner     DiscountRule
	threshold domain.Money
}

// MinSubtotalDiscount gates another rule behind a minimum raw subtotal.
func MinSubtotalDiscount(inner DiscountRule, threshold domain.Money) DiscountRule {
	return minSubtotalDiscount{inner: inner, threshold: threshold}
}

func (r minSubtotalDiscount) Name() string    { return r.inner.Name() }
func (r minSubtotalDiscount) Exclusive() bool { return r.inner.Exclusive() }

func (r minSubtotalDiscount) Matches(snapshot domain.CartSnapshot) bool {
	subtotal := domain.NewFromMinorUnits(0, snapshot.Currency)

	for _, line := range snapshot.Lines {
		lineSubtotal, err := line.Subtotal()
		if err != nil {
			return false
		}

		subtotal, err = subtotal.Add(lineSubtotal)
		if err != nil {
			return false
		}
	}

	cmp, err := subtotal.Cmp(r.threshold)
	if err != nil {
		return false
	}

	return cmp >= 0 && r.inner.Matches(snapshot)
}

func (r minSubtotalDiscount) Apply(total domain.Money) (domain.Money, error) {
	return r.inner.Apply(total)
}
