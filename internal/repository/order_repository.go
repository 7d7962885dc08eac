package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikolayk812/cart-engine/internal/domain"
	"github.com/nikolayk812/cart-engine/internal/port"
	"github.com/shopspring/decimal"
	"golang.org/x/text/currency"
)

type orderRepository struct {
	pool *pgxpool.Pool
}

func NewOrder(pool *pgxpool.Pool) (port.OrderRepository, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}

	return &orderRepository{pool: pool}, nil
}

func (r *orderRepository) SaveOrder(ctx context.Context, order domain.Order) error {
	if order.ID == uuid.Nil {
		return fmt.Errorf("order ID is nil")
	}

	_, err := withTx(ctx, r.pool, func(tx pgx.Tx) (struct{}, error) {
		var zero struct{}

		_, err := tx.Exec(ctx, `
			INSERT INTO orders (order_id, cart_id, subtotal, discount, tax, total, currency, source_cart_version, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			order.ID, order.CartID,
			order.Subtotal.Amount.String(), order.Discount.Amount.String(),
			order.Tax.Amount.String(), order.Total.Amount.String(),
			order.Total.Currency.String(),
			order.SourceCartVersion, order.CreatedAt,
		)
		if err != nil {
			return zero, fmt.Errorf("tx.Exec orders: %w", err)
		}

		for _, line := range order.Lines {
			_, err := tx.Exec(ctx, `
				INSERT INTO order_lines (order_id, product_id, unit_price, quantity, subtotal)
				VALUES ($1, $2, $3, $4, $5)`,
				order.ID, line.ProductID,
				line.UnitPrice.Amount.String(), line.Quantity, line.Subtotal.Amount.String(),
			)
			if err != nil {
				return zero, fmt.Errorf("tx.Exec order_lines: %w", err)
			}
		}

		return zero, nil
	})
	if err != nil {
		return fmt.Errorf("withTx: %w", err)
	}

	return nil
}

func (r *orderRepository) GetOrder(ctx context.Context, orderID uuid.UUID) (domain.Order, error) {
	if orderID == uuid.Nil {
		return domain.Order{}, fmt.Errorf("orderID is nil")
	}

	var (
		order       domain.Order
		subtotal    string
		discount    string
		tax         string
		total       string
		currencyStr string
	)

	row := r.pool.QueryRow(ctx, `
		SELECT order_id, cart_id, subtotal, discount, tax, total, currency, source_cart_version, created_at
		FROM orders WHERE order_id = $1`, orderID)

	err := row.Scan(&order.ID, &order.CartID, &subtotal, &discount, &tax, &total,
		&currencyStr, &order.SourceCartVersion, &order.CreatedAt)
	if err != nil {
		return domain.Order{}, fmt.Errorf("row.Scan: %w", err)
	}

	cur, err := currency.ParseISO(currencyStr)
	if err != nil {
		return domain.Order{}, fmt.Errorf("currency[%s] is not valid: %w", currencyStr, err)
	}

	if order.Subtotal, err = parseMoney(subtotal, cur); err != nil {
		return domain.Order{}, fmt.Errorf("parseMoney subtotal: %w", err)
	}
	if order.Discount, err = parseMoney(discount, cur); err != nil {
		return domain.Order{}, fmt.Errorf("parseMoney discount: %w", err)
	}
	if order.Tax, err = parseMoney(tax, cur); err != nil {
		return domain.Order{}, fmt.Errorf("parseMoney tax: %w", err)
	}
	if order.Total, err = parseMoney(total, cur); err != nil {
		return domain.Order{}, fmt.Errorf("parseMoney total: %w", err)
	}

	order.Lines, err = r.getOrderLines(ctx, orderID, cur)
	if err != nil {
		return domain.Order{}, fmt.Errorf("getOrderLines: %w", err)
	}

	return order, nil
}

func (r *orderRepository) getOrderLines(ctx context.Context, orderID uuid.UUID, cur currency.Unit) ([]domain.OrderLine, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT product_id, unit_price, quantity, subtotal
		FROM order_lines WHERE order_id = $1
		ORDER BY product_id`, orderID)
	if err != nil {
		return nil, fmt.Errorf("pool.Query: %w", err)
	}
	defer rows.Close()

	var lines []domain.OrderLine

	for rows.Next() {
		var (
			line      domain.OrderLine
			unitPrice string
			subtotal  string
		)

		if err := rows.Scan(&line.ProductID, &unitPrice, &line.Quantity, &subtotal); err != nil {
			return nil, fmt.Errorf("rows.Scan: %w", err)
		}

		if line.UnitPrice, err = parseMoney(unitPrice, cur); err != nil {
			return nil, fmt.Errorf("parseMoney unit_price: %w", err)
		}
		if line.Subtotal, err = parseMoney(subtotal, cur); err != nil {
			return nil, fmt.Errorf("parseMoney subtotal: %w", err)
		}

		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows.Err: %w", err)
	}

	return lines, nil
}

func parseMoney(amount string, cur currency.Unit) (domain.Money, error) {
	parsed, err := decimal.NewFromString(amount)
	if err != nil {
		return domain.Money{}, fmt.Errorf("decimal.NewFromString[%s]: %w", amount, err)
	}

	return domain.NewMoney(parsed, cur), nil
}
