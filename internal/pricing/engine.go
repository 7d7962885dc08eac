package pricing

import (
	"fmt"

	"github.com/nikolayk812/cart-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// LineTotal is one priced cart line.
type LineTotal struct {
	Line     domain.CartLine
	Subtotal domain.Money
}

// Totals is the full pricing breakdown for one cart snapshot.
type Totals struct {
	Lines    []LineTotal
	Subtotal domain.Money
	Discount domain.Money
	Tax      domain.Money
	Total    domain.Money
}

// Engine derives totals from a cart snapshot. It holds no mutable state:
// pricing the same snapshot twice yields identical results.
//
// The order of operations is fixed: line subtotals, pre-discount sum,
// discount rules in registration order (running total clamped at zero),
// then tax rounded half-up to the currency's minor unit.
type Engine struct {
	rules   []DiscountRule
	taxRate decimal.Decimal
	taxed   bool
}

type Option func(*Engine)

// WithRule appends a discount rule; rules apply in registration order.
func WithRule(rule DiscountRule) Option {
	return func(e *Engine) { e.rules = append(e.rules, rule) }
}

// WithTaxRate sets a percentage tax applied to the post-discount total,
// e.g. decimal.NewFromInt(8) for 8%.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(e *Engine) {
		e.taxRate = rate
		e.taxed = true
	}
}

func New(opts ...Option) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) Price(snapshot domain.CartSnapshot) (Totals, error) {
	subtotal := domain.NewFromMinorUnits(0, snapshot.Currency)

	lines := make([]LineTotal, 0, len(snapshot.Lines))
	for _, line := range snapshot.Lines {
		lineSubtotal, err := line.Subtotal()
		if err != nil {
			return Totals{}, fmt.Errorf("line.Subtotal product[%s]: %w", line.ProductID, err)
		}

		subtotal, err = subtotal.Add(lineSubtotal)
		if err != nil {
			return Totals{}, fmt.Errorf("subtotal.Add product[%s]: %w", line.ProductID, err)
		}

		lines = append(lines, LineTotal{Line: line, Subtotal: lineSubtotal})
	}

	running, discount, err := e.applyDiscounts(snapshot, subtotal)
	if err != nil {
		return Totals{}, err
	}

	tax := domain.NewFromMinorUnits(0, snapshot.Currency)
	if e.taxed {
		tax = domain.NewMoney(
			running.Amount.Mul(e.taxRate).Div(decimal.NewFromInt(100)),
			snapshot.Currency,
		).RoundToMinorUnit()
	}

	total, err := running.Add(tax)
	if err != nil {
		return Totals{}, fmt.Errorf("running.Add tax: %w", err)
	}

	return Totals{
		Lines:    lines,
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Total:    total,
	}, nil
}

// applyDiscounts runs the registered rules in order and reports the adjusted
// total plus the accumulated discount. Two matching rules flagged exclusive
// are a conflict.
func (e *Engine) applyDiscounts(snapshot domain.CartSnapshot, subtotal domain.Money) (domain.Money, domain.Money, error) {
	var zero domain.Money

	exclusive := ""
	running := subtotal

	for _, rule := range e.rules {
		if !rule.Matches(snapshot) {
			continue
		}

		if rule.Exclusive() {
			if exclusive != "" {
				return zero, zero, domain.RuleConflictError{First: exclusive, Second: rule.Name()}
			}
			exclusive = rule.Name()
		}

		adjusted, err := rule.Apply(running)
		if err != nil {
			return zero, zero, fmt.Errorf("rule[%s].Apply: %w", rule.Name(), err)
		}

		running = adjusted.ClampZero()
	}

	discount, err := subtotal.Sub(running)
	if err != nil {
		return zero, zero, fmt.Errorf("subtotal.Sub running: %w", err)
	}

	return running, discount, nil
}
