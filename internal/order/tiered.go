package order

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
)

// SizingMode selects how a tiered batch splits its total across tiers.
type SizingMode string

const (
	// ByValue splits a quote-currency total: each tier trades the same
	// value, so quantity shrinks as price rises.
	ByValue SizingMode = "value"
	// ByQuantity splits a base-currency total: each tier trades the same
	// quantity regardless of price.
	ByQuantity SizingMode = "quantity"
)

// TieredSpec describes a batch of limit orders spread across a price range.
type TieredSpec struct {
	Symbol    string
	Side      core.Side
	Total     decimal.Decimal // quote value (ByValue) or base quantity (ByQuantity)
	PriceLow  decimal.Decimal
	PriceHigh decimal.Decimal
	NumOrders int
	Mode      SizingMode
}

// TierResult is one slot of a tiered batch, in ladder order. Exactly one of
// Order/Err is set.
type TierResult struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Order    *core.Order
	Err      error
}

// BuildLadder spaces n prices evenly from low to high inclusive. A single
// order lands on the midpoint.
func BuildLadder(low, high decimal.Decimal, n int) ([]decimal.Decimal, error) {
	if n < 1 {
		return nil, fmt.Errorf("%w: number of orders must be >= 1", core.ErrInvalidOrder)
	}
	if low.Sign() <= 0 || high.Cmp(low) <= 0 {
		return nil, fmt.Errorf("%w: lower price must be positive and below the upper price", core.ErrInvalidOrder)
	}
	if n == 1 {
		return []decimal.Decimal{low.Add(high).Div(two)}, nil
	}
	step := high.Sub(low).Div(decimal.NewFromInt(int64(n - 1)))
	prices := make([]decimal.Decimal, n)
	for i := 0; i < n-1; i++ {
		prices[i] = low.Add(step.Mul(decimal.NewFromInt(int64(i))))
	}
	// The division above can leave a remainder; the top rung is the bound
	// itself, exactly.
	prices[n-1] = high
	return prices, nil
}

var two = decimal.NewFromInt(2)

// PlaceTiered places spec.NumOrders limit orders across the price range. Bad
// parameters reject the whole batch before any network call; after that,
// every tier is attempted regardless of earlier failures and the result holds
// one slot per tier in ladder order.
func (m *Manager) PlaceTiered(ctx context.Context, spec TieredSpec) ([]TierResult, error) {
	if spec.Total.Sign() <= 0 {
		return nil, fmt.Errorf("%w: total must be positive", core.ErrInvalidOrder)
	}
	switch spec.Mode {
	case ByValue, ByQuantity:
	default:
		return nil, fmt.Errorf("%w: unknown sizing mode %q", core.ErrInvalidOrder, spec.Mode)
	}
	prices, err := BuildLadder(spec.PriceLow, spec.PriceHigh, spec.NumOrders)
	if err != nil {
		return nil, err
	}

	perTier := spec.Total.Div(decimal.NewFromInt(int64(spec.NumOrders)))
	results := make([]TierResult, 0, len(prices))
	succeeded := 0
	for _, price := range prices {
		qty := perTier
		if spec.Mode == ByValue {
			qty = perTier.Div(price)
		}
		result := TierResult{Price: price, Quantity: qty}
		order, err := m.PlaceLimit(ctx, spec.Symbol, spec.Side, qty, price, core.GTC)
		if err != nil {
			result.Err = err
		} else {
			result.Order = &order
			succeeded++
		}
		results = append(results, result)
	}
	log.WithFields(logrus.Fields{
		"symbol":    spec.Symbol,
		"side":      spec.Side,
		"succeeded": succeeded,
		"total":     spec.NumOrders,
	}).Info("tiered batch placed")
	return results, nil
}

// TieredBuy spreads a quote-currency value across buy tiers.
func (m *Manager) TieredBuy(ctx context.Context, symbol string, totalValue, priceLow, priceHigh decimal.Decimal, numOrders int) ([]TierResult, error) {
	return m.PlaceTiered(ctx, TieredSpec{
		Symbol:    symbol,
		Side:      core.Bid,
		Total:     totalValue,
		PriceLow:  priceLow,
		PriceHigh: priceHigh,
		NumOrders: numOrders,
		Mode:      ByValue,
	})
}

// TieredSellByQuantity spreads a base-currency quantity across sell tiers.
func (m *Manager) TieredSellByQuantity(ctx context.Context, symbol string, totalQuantity, priceLow, priceHigh decimal.Decimal, numOrders int) ([]TierResult, error) {
	return m.PlaceTiered(ctx, TieredSpec{
		Symbol:    symbol,
		Side:      core.Ask,
		Total:     totalQuantity,
		PriceLow:  priceLow,
		PriceHigh: priceHigh,
		NumOrders: numOrders,
		Mode:      ByQuantity,
	})
}

// SucceededCount tallies the filled slots of a tiered result.
func SucceededCount(results []TierResult) int {
	n := 0
	for _, r := range results {
		if r.Order != nil {
			n++
		}
	}
	return n
}
