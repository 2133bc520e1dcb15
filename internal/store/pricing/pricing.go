// Package pricing resolves the price and discount in effect for a given
// service/vlab at a given instant, and computes cost from usage. Grounded
// on the original's app/repository/price.py and app/service/price.py
// (calculate_cost), translated into Go's explicit-error style.
package pricing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/model"
)

// Store resolves prices and discounts.
type Store struct{}

// New builds a pricing Store.
func New() *Store { return &Store{} }

const priceColumns = `id, service_type, service_subtype, valid_from, valid_to, fixed_cost, multiplier, vlab_id, created_at, updated_at`

// ResolvePrice finds the price in effect for (serviceType, serviceSubtype)
// at instant `at`, preferring a vlab-specific override over the global
// price for the same interval (spec.md §4.2 "resolution by interval
// containment, most specific first").
func (s *Store) ResolvePrice(ctx context.Context, tx *sql.Tx, serviceType model.ServiceType, serviceSubtype string, vlabID uuid.UUID, at time.Time) (*model.Price, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT `+priceColumns+` FROM prices
		WHERE service_type = $1 AND service_subtype = $2
		  AND vlab_id = $3
		  AND valid_from <= $4 AND (valid_to IS NULL OR valid_to > $4)
		ORDER BY valid_from DESC
		LIMIT 1`, serviceType, serviceSubtype, vlabID, at)
	p, err := scanPrice(row)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pricing: resolve vlab price: %w", err)
	}

	row = tx.QueryRowContext(ctx, `
		SELECT `+priceColumns+` FROM prices
		WHERE service_type = $1 AND service_subtype = $2
		  AND vlab_id IS NULL
		  AND valid_from <= $3 AND (valid_to IS NULL OR valid_to > $3)
		ORDER BY valid_from DESC
		LIMIT 1`, serviceType, serviceSubtype, at)
	p, err = scanPrice(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Newf(apperr.CodeEntityNotFound, "no price configured for %s/%s at %s", serviceType, serviceSubtype, at)
	}
	if err != nil {
		return nil, fmt.Errorf("pricing: resolve global price: %w", err)
	}
	return p, nil
}

func scanPrice(row *sql.Row) (*model.Price, error) {
	var p model.Price
	if err := row.Scan(&p.ID, &p.ServiceType, &p.ServiceSubtype, &p.ValidFrom, &p.ValidTo, &p.FixedCost, &p.Multiplier, &p.VlabID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

// ResolveDiscount finds the discount in effect for vlabID at instant `at`,
// if any. Absence is not an error: the multiplier defaults to 1.
func (s *Store) ResolveDiscount(ctx context.Context, tx *sql.Tx, vlabID uuid.UUID, at time.Time) (*model.Discount, error) {
	row := tx.QueryRowContext(ctx, `
		SELECT id, vlab_id, valid_from, valid_to, discount FROM discounts
		WHERE vlab_id = $1 AND valid_from <= $2 AND (valid_to IS NULL OR valid_to > $2)
		ORDER BY valid_from DESC
		LIMIT 1`, vlabID, at)
	var d model.Discount
	err := row.Scan(&d.ID, &d.VlabID, &d.ValidFrom, &d.ValidTo, &d.Discount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pricing: resolve discount: %w", err)
	}
	return &d, nil
}

// CalculateCost applies fixed_cost + multiplier * quantity, then the
// discount multiplier if one is in effect, matching
// app/service/price.py:calculate_cost. Cost is never rounded here; rounding
// happens only at display boundaries (spec.md §9).
func CalculateCost(price *model.Price, discount *model.Discount, quantity decimal.Decimal) decimal.Decimal {
	cost := price.FixedCost.Add(price.Multiplier.Mul(quantity))
	if discount != nil {
		cost = cost.Mul(decimal.NewFromInt(1).Sub(discount.Discount))
	}
	return cost
}

// CreatePrice inserts a new price row. Neither it nor its caller
// (internal/api/price.go) checks the new interval for overlap with the
// existing schedule.
func (s *Store) CreatePrice(ctx context.Context, tx *sql.Tx, p *model.Price) (*model.Price, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO prices (service_type, service_subtype, valid_from, valid_to, fixed_cost, multiplier, vlab_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
		RETURNING `+priceColumns,
		p.ServiceType, p.ServiceSubtype, p.ValidFrom, p.ValidTo, p.FixedCost, p.Multiplier, p.VlabID)
	return scanPrice(row)
}

// CreateDiscount inserts a new discount row.
func (s *Store) CreateDiscount(ctx context.Context, tx *sql.Tx, d *model.Discount) (*model.Discount, error) {
	row := tx.QueryRowContext(ctx, `
		INSERT INTO discounts (vlab_id, valid_from, valid_to, discount, created_at)
		VALUES ($1, $2, $3, $4, now())
		RETURNING id, vlab_id, valid_from, valid_to, discount`,
		d.VlabID, d.ValidFrom, d.ValidTo, d.Discount)
	var out model.Discount
	if err := row.Scan(&out.ID, &out.VlabID, &out.ValidFrom, &out.ValidTo, &out.Discount); err != nil {
		return nil, fmt.Errorf("pricing: create discount: %w", err)
	}
	return &out, nil
}
