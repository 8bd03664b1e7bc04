package backpack

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
)

type orderResponse struct {
	ID               string      `json:"id"`
	ClientID         json.Number `json:"clientId"`
	Symbol           string      `json:"symbol"`
	Side             string      `json:"side"`
	OrderType        string      `json:"orderType"`
	Price            string      `json:"price"`
	Quantity         string      `json:"quantity"`
	ExecutedQuantity string      `json:"executedQuantity"`
	Status           string      `json:"status"`
	Timestamp        int64       `json:"timestamp"`
	CreatedAt        int64       `json:"createdAt"`
}

func (r orderResponse) toOrder() core.Order {
	price, _ := decimal.NewFromString(r.Price)
	qty, _ := decimal.NewFromString(r.Quantity)
	filled, _ := decimal.NewFromString(r.ExecutedQuantity)
	order := core.Order{
		ID:             r.ID,
		ClientID:       r.ClientID.String(),
		Symbol:         r.Symbol,
		Side:           core.Side(r.Side),
		Type:           core.OrderType(r.OrderType),
		Price:          price,
		Quantity:       qty,
		FilledQuantity: filled,
		Status:         core.OrderStatus(r.Status),
	}
	ts := r.CreatedAt
	if ts == 0 {
		ts = r.Timestamp
	}
	if ts > 0 {
		order.CreatedAt = time.UnixMilli(ts)
	}
	return order
}

type positionResponse struct {
	Symbol           string `json:"symbol"`
	Side             string `json:"side"`
	Quantity         string `json:"quantity"`
	EntryPrice       string `json:"entryPrice"`
	MarkPrice        string `json:"markPrice"`
	LiquidationPrice string `json:"liquidationPrice"`
	UnrealizedPnl    string `json:"unrealizedPnl"`
	RealizedPnl      string `json:"realizedPnl"`
	Leverage         string `json:"leverage"`
	Margin           string `json:"margin"`
}

func (r positionResponse) toPosition() core.Position {
	side := core.PositionSide(r.Side)
	if side == "" {
		side = core.Long
	}
	qty, _ := decimal.NewFromString(r.Quantity)
	entry, _ := decimal.NewFromString(r.EntryPrice)
	mark, _ := decimal.NewFromString(r.MarkPrice)
	liq, _ := decimal.NewFromString(r.LiquidationPrice)
	upnl, _ := decimal.NewFromString(r.UnrealizedPnl)
	rpnl, _ := decimal.NewFromString(r.RealizedPnl)
	leverage, _ := decimal.NewFromString(r.Leverage)
	if leverage.Sign() == 0 {
		leverage = decimal.NewFromInt(1)
	}
	margin, _ := decimal.NewFromString(r.Margin)
	return core.Position{
		Symbol:           r.Symbol,
		Side:             side,
		Quantity:         qty,
		EntryPrice:       entry,
		MarkPrice:        mark,
		LiquidationPrice: liq,
		UnrealizedPnL:    upnl,
		RealizedPnL:      rpnl,
		Leverage:         leverage,
		Margin:           margin,
	}
}

type balanceEntry struct {
	Available string `json:"available"`
	Locked    string `json:"locked"`
	Staked    string `json:"staked"`
}

func (e balanceEntry) toBalance(asset string) core.Balance {
	free, _ := decimal.NewFromString(e.Available)
	locked, _ := decimal.NewFromString(e.Locked)
	staked, _ := decimal.NewFromString(e.Staked)
	return core.Balance{
		Asset:  asset,
		Free:   free,
		Locked: locked,
		Staked: staked,
		Total:  free.Add(locked).Add(staked),
	}
}

type marketResponse struct {
	Symbol  string `json:"symbol"`
	Filters struct {
		Price struct {
			TickSize string `json:"tickSize"`
		} `json:"price"`
		Quantity struct {
			StepSize string `json:"stepSize"`
		} `json:"quantity"`
	} `json:"filters"`
}

type tickerResponse struct {
	Symbol    string `json:"symbol"`
	LastPrice string `json:"lastPrice"`
}

// Depth is an order book snapshot. Levels are [price, quantity] pairs.
type Depth struct {
	Asks      [][]string `json:"asks"`
	Bids      [][]string `json:"bids"`
	Timestamp int64      `json:"timestamp"`
}

type Fill struct {
	OrderID   string `json:"orderId"`
	Symbol    string `json:"symbol"`
	Side      string `json:"side"`
	Price     string `json:"price"`
	Quantity  string `json:"quantity"`
	Fee       string `json:"fee"`
	FeeSymbol string `json:"feeSymbol"`
	IsMaker   bool   `json:"isMaker"`
	Timestamp string `json:"timestamp"`
}

type Kline struct {
	Start  string `json:"start"`
	Open   string `json:"open"`
	High   string `json:"high"`
	Low    string `json:"low"`
	Close  string `json:"close"`
	Volume string `json:"volume"`
}
