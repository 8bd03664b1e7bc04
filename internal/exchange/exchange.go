package exchange

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
)

// OrderRequest carries caller-supplied order parameters. Quantity and price
// are rounded to the market's step and tick sizes by the implementation.
type OrderRequest struct {
	Symbol      string
	Side        core.Side
	Type        core.OrderType
	Quantity    decimal.Decimal
	Price       decimal.Decimal // zero for market orders
	TimeInForce core.TimeInForce
	ClientID    string
}

type Exchange interface {
	GetMarket(ctx context.Context, symbol string) (core.MarketSpec, error)
	PlaceOrder(ctx context.Context, req OrderRequest) (core.Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	CancelAllOrders(ctx context.Context, symbol string) error
	OpenOrders(ctx context.Context, symbol string) ([]core.Order, error)
	Balances(ctx context.Context) (map[string]core.Balance, error)
	Positions(ctx context.Context) ([]core.Position, error)
	TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}
