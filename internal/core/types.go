package core

import (
	"time"

	"github.com/shopspring/decimal"
)

type Side string

type OrderType string

type OrderStatus string

type TimeInForce string

type PositionSide string

const (
	Bid Side = "Bid"
	Ask Side = "Ask"
)

const (
	Market OrderType = "Market"
	Limit  OrderType = "Limit"
)

const (
	OrderNew             OrderStatus = "New"
	OrderPartiallyFilled OrderStatus = "PartiallyFilled"
	OrderFilled          OrderStatus = "Filled"
	OrderCancelled       OrderStatus = "Cancelled"
	OrderExpired         OrderStatus = "Expired"
)

const (
	GTC TimeInForce = "GTC"
	IOC TimeInForce = "IOC"
	FOK TimeInForce = "FOK"
)

const (
	Long  PositionSide = "Long"
	Short PositionSide = "Short"
)

// MarketSpec holds the precision filters of a market. Tick and step sizes are
// immutable for the process lifetime once fetched.
type MarketSpec struct {
	Symbol   string
	TickSize decimal.Decimal
	StepSize decimal.Decimal
}

type Order struct {
	ID             string
	ClientID       string
	Symbol         string
	Side           Side
	Type           OrderType
	Price          decimal.Decimal
	Quantity       decimal.Decimal
	FilledQuantity decimal.Decimal
	Status         OrderStatus
	CreatedAt      time.Time
}

// RemainingQuantity never goes negative, even if the exchange reports an
// executed quantity above the original one.
func (o Order) RemainingQuantity() decimal.Decimal {
	rem := o.Quantity.Sub(o.FilledQuantity)
	if rem.Sign() < 0 {
		return decimal.Zero
	}
	return rem
}

func (o Order) FillPercentage() decimal.Decimal {
	if o.Quantity.Sign() == 0 {
		return decimal.Zero
	}
	return o.FilledQuantity.Div(o.Quantity).Mul(hundred)
}

type Position struct {
	Symbol           string
	Side             PositionSide
	Quantity         decimal.Decimal
	EntryPrice       decimal.Decimal
	MarkPrice        decimal.Decimal
	LiquidationPrice decimal.Decimal
	UnrealizedPnL    decimal.Decimal
	RealizedPnL      decimal.Decimal
	Leverage         decimal.Decimal
	Margin           decimal.Decimal
}

func (p Position) NotionalValue() decimal.Decimal {
	return p.Quantity.Mul(p.MarkPrice)
}

func (p Position) PnLPercentage() decimal.Decimal {
	if p.EntryPrice.Sign() == 0 {
		return decimal.Zero
	}
	diff := p.MarkPrice.Sub(p.EntryPrice)
	if p.Side == Short {
		diff = diff.Neg()
	}
	return diff.Div(p.EntryPrice).Mul(hundred)
}

func (p Position) IsLong() bool {
	return p.Side == Long && p.Quantity.Sign() > 0
}

func (p Position) IsShort() bool {
	return p.Side == Short && p.Quantity.Sign() > 0
}

// UpdateMarkPrice mutates the position in place and recomputes the unrealized
// PnL from the entry price, quantity and side.
func (p *Position) UpdateMarkPrice(markPrice decimal.Decimal) {
	p.MarkPrice = markPrice
	if p.Side == Short {
		p.UnrealizedPnL = p.EntryPrice.Sub(markPrice).Mul(p.Quantity)
	} else {
		p.UnrealizedPnL = markPrice.Sub(p.EntryPrice).Mul(p.Quantity)
	}
}

type Balance struct {
	Asset  string
	Free   decimal.Decimal
	Locked decimal.Decimal
	Staked decimal.Decimal
	Total  decimal.Decimal
}

var hundred = decimal.NewFromInt(100)
