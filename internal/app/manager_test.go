package app

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/order"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/position"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeExchange struct {
	positions   []core.Position
	balances    map[string]core.Balance
	openOrders  []core.Order
	lastPrice   decimal.Decimal
	tickerErr   error
	tickerCalls int
}

func (f *fakeExchange) GetMarket(ctx context.Context, symbol string) (core.MarketSpec, error) {
	return core.MarketSpec{Symbol: symbol}, nil
}

func (f *fakeExchange) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (core.Order, error) {
	return core.Order{}, errors.New("not implemented")
}

func (f *fakeExchange) CancelOrder(ctx context.Context, symbol, orderID string) error { return nil }

func (f *fakeExchange) CancelAllOrders(ctx context.Context, symbol string) error { return nil }

func (f *fakeExchange) OpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	return f.openOrders, nil
}

func (f *fakeExchange) Balances(ctx context.Context) (map[string]core.Balance, error) {
	return f.balances, nil
}

func (f *fakeExchange) Positions(ctx context.Context) ([]core.Position, error) {
	return f.positions, nil
}

func (f *fakeExchange) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.tickerCalls++
	if f.tickerErr != nil {
		return decimal.Zero, f.tickerErr
	}
	return f.lastPrice, nil
}

func newTestApp(fake *fakeExchange) *Manager {
	positions := position.NewManager(fake)
	orders := order.NewManager(fake, order.Config{})
	return New(fake, orders, positions, "SOL_USDC")
}

func TestRefreshAllPopulatesMirrors(t *testing.T) {
	fake := &fakeExchange{
		positions: []core.Position{
			{Symbol: "SOL_USDC", Side: core.Long, Quantity: dec("2"), EntryPrice: dec("140")},
		},
		balances: map[string]core.Balance{
			"USDC": {Asset: "USDC", Free: dec("500"), Total: dec("500")},
		},
		openOrders: []core.Order{
			{ID: "o1", Symbol: "SOL_USDC", Side: core.Bid, Price: dec("145"), Quantity: dec("1")},
		},
		lastPrice: dec("150"),
	}
	m := newTestApp(fake)

	if err := m.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}

	if !m.LastPrice().Equal(dec("150")) {
		t.Fatalf("LastPrice() = %s, want 150", m.LastPrice())
	}
	if m.LastRefresh().IsZero() {
		t.Fatal("LastRefresh() is zero after a successful refresh")
	}
	if !m.Positions.HasPosition("SOL_USDC") {
		t.Fatal("position missing after refresh")
	}
	if got := m.Positions.Balance("USDC"); !got.Total.Equal(dec("500")) {
		t.Fatalf("USDC balance = %s, want 500", got.Total)
	}
	if _, ok := m.Orders.OrderByID("o1"); !ok {
		t.Fatal("open order missing after refresh")
	}

	// The mark price update flows into the position mirror.
	pos, _ := m.Positions.Position("SOL_USDC")
	if !pos.MarkPrice.Equal(dec("150")) {
		t.Fatalf("MarkPrice = %s, want 150", pos.MarkPrice)
	}
	if !pos.UnrealizedPnL.Equal(dec("20")) {
		t.Fatalf("UnrealizedPnL = %s, want 20", pos.UnrealizedPnL)
	}
}

func TestRefreshAllSurfacesTickerError(t *testing.T) {
	fake := &fakeExchange{
		balances:  map[string]core.Balance{},
		tickerErr: errors.New("timeout"),
	}
	m := newTestApp(fake)

	if err := m.RefreshAll(context.Background()); err == nil {
		t.Fatal("RefreshAll() error = nil, want ticker error")
	}
	if !m.LastRefresh().IsZero() {
		t.Fatal("LastRefresh() advanced despite a failed pass")
	}
}

func TestSetSymbolChangesRefreshTarget(t *testing.T) {
	fake := &fakeExchange{balances: map[string]core.Balance{}, lastPrice: dec("60000")}
	m := newTestApp(fake)

	m.SetSymbol("BTC_USDC")
	if m.Symbol() != "BTC_USDC" {
		t.Fatalf("Symbol() = %q, want BTC_USDC", m.Symbol())
	}
	if err := m.RefreshAll(context.Background()); err != nil {
		t.Fatalf("RefreshAll() error = %v", err)
	}
	if !m.LastPrice().Equal(dec("60000")) {
		t.Fatalf("LastPrice() = %s, want 60000", m.LastPrice())
	}
}

func TestStartAutoRefreshZeroIntervalIsNoop(t *testing.T) {
	fake := &fakeExchange{balances: map[string]core.Balance{}, lastPrice: dec("150")}
	m := newTestApp(fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartAutoRefresh(ctx, 0)

	if fake.tickerCalls != 0 {
		t.Fatalf("tickerCalls = %d, want 0 with a disabled timer", fake.tickerCalls)
	}
}
