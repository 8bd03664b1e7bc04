package position

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

type fakeExchange struct {
	positions    []core.Position
	positionsErr error
	balances     map[string]core.Balance
	balancesErr  error
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
	return nil, nil
}

func (f *fakeExchange) Balances(ctx context.Context) (map[string]core.Balance, error) {
	return f.balances, f.balancesErr
}

func (f *fakeExchange) Positions(ctx context.Context) ([]core.Position, error) {
	return f.positions, f.positionsErr
}

func (f *fakeExchange) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func TestRefreshPositionsFiltersEmpty(t *testing.T) {
	fake := &fakeExchange{positions: []core.Position{
		{Symbol: "SOL_USDC_PERP", Side: core.Long, Quantity: dec("5")},
		{Symbol: "BTC_USDC_PERP", Side: core.Long, Quantity: dec("0")},
		{Symbol: "ETH_USDC_PERP", Side: core.Short, Quantity: dec("2")},
	}}
	m := NewManager(fake)

	kept, err := m.RefreshPositions(context.Background())
	if err != nil {
		t.Fatalf("RefreshPositions() error = %v", err)
	}
	if len(kept) != 2 {
		t.Fatalf("kept %d positions, want 2", len(kept))
	}
	if m.HasPosition("BTC_USDC_PERP") {
		t.Fatal("zero-quantity position kept in mirror")
	}
	if !m.HasPosition("SOL_USDC_PERP") || !m.HasPosition("ETH_USDC_PERP") {
		t.Fatal("non-empty positions missing from mirror")
	}
}

func TestRefreshPositionsReplacesWholesale(t *testing.T) {
	fake := &fakeExchange{positions: []core.Position{
		{Symbol: "SOL_USDC_PERP", Side: core.Long, Quantity: dec("5")},
	}}
	m := NewManager(fake)
	if _, err := m.RefreshPositions(context.Background()); err != nil {
		t.Fatalf("RefreshPositions() error = %v", err)
	}

	fake.positions = []core.Position{
		{Symbol: "BTC_USDC_PERP", Side: core.Long, Quantity: dec("1")},
	}
	if _, err := m.RefreshPositions(context.Background()); err != nil {
		t.Fatalf("RefreshPositions() error = %v", err)
	}

	if m.HasPosition("SOL_USDC_PERP") {
		t.Fatal("stale position survived the refresh")
	}
	if !m.HasPosition("BTC_USDC_PERP") {
		t.Fatal("fresh position missing after refresh")
	}
}

func TestRefreshPositionsNotFoundIsBenign(t *testing.T) {
	fake := &fakeExchange{positions: []core.Position{
		{Symbol: "SOL_USDC_PERP", Side: core.Long, Quantity: dec("5")},
	}}
	m := NewManager(fake)
	if _, err := m.RefreshPositions(context.Background()); err != nil {
		t.Fatalf("RefreshPositions() error = %v", err)
	}

	fake.positions = nil
	fake.positionsErr = errors.Join(errors.New("backpack http error 404"), core.ErrNotFound)
	kept, err := m.RefreshPositions(context.Background())
	if err != nil {
		t.Fatalf("RefreshPositions() on 404 error = %v, want nil", err)
	}
	if kept != nil {
		t.Fatalf("kept = %v, want nil on 404", kept)
	}
	if !m.HasPosition("SOL_USDC_PERP") {
		t.Fatal("mirror was touched by a not-found refresh")
	}
}

func TestRefreshPositionsOtherErrorsSurface(t *testing.T) {
	fake := &fakeExchange{positionsErr: errors.New("timeout")}
	m := NewManager(fake)
	if _, err := m.RefreshPositions(context.Background()); err == nil {
		t.Fatal("RefreshPositions() error = nil, want error")
	}
}

func TestRefreshBalancesReplacesWholesale(t *testing.T) {
	fake := &fakeExchange{balances: map[string]core.Balance{
		"SOL": {Asset: "SOL", Free: dec("10"), Total: dec("10")},
	}}
	m := NewManager(fake)
	if err := m.RefreshBalances(context.Background()); err != nil {
		t.Fatalf("RefreshBalances() error = %v", err)
	}

	fake.balances = map[string]core.Balance{
		"USDC": {Asset: "USDC", Free: dec("500"), Total: dec("500")},
	}
	if err := m.RefreshBalances(context.Background()); err != nil {
		t.Fatalf("RefreshBalances() error = %v", err)
	}

	if got := m.Balance("SOL"); !got.Total.IsZero() {
		t.Fatalf("stale SOL balance = %s, want zero", got.Total)
	}
	if got := m.Balance("USDC"); !got.Total.Equal(dec("500")) {
		t.Fatalf("USDC total = %s, want 500", got.Total)
	}
}

func TestBalanceUnknownAssetIsZero(t *testing.T) {
	m := NewManager(&fakeExchange{})
	got := m.Balance("DOGE")
	if got.Asset != "DOGE" || !got.Total.IsZero() {
		t.Fatalf("Balance(DOGE) = %+v, want empty balance", got)
	}
}

func TestPortfolioValue(t *testing.T) {
	fake := &fakeExchange{
		balances: map[string]core.Balance{
			"USDC": {Asset: "USDC", Free: dec("800"), Locked: dec("100"), Staked: dec("100"), Total: dec("1000")},
		},
		positions: []core.Position{
			{Symbol: "SOL_USDC_PERP", Side: core.Long, Quantity: dec("5"), UnrealizedPnL: dec("50")},
			{Symbol: "ETH_USDC_PERP", Side: core.Short, Quantity: dec("1"), UnrealizedPnL: dec("-20")},
		},
	}
	m := NewManager(fake)
	ctx := context.Background()
	if err := m.RefreshBalances(ctx); err != nil {
		t.Fatalf("RefreshBalances() error = %v", err)
	}
	if _, err := m.RefreshPositions(ctx); err != nil {
		t.Fatalf("RefreshPositions() error = %v", err)
	}

	if got := m.TotalPnL(); !got.Equal(dec("30")) {
		t.Fatalf("TotalPnL() = %s, want 30", got)
	}
	if got := m.PortfolioValue("USDC"); !got.Equal(dec("1030")) {
		t.Fatalf("PortfolioValue() = %s, want 1030", got)
	}
	if got := m.PortfolioValue("EUR"); !got.Equal(dec("30")) {
		t.Fatalf("PortfolioValue() with no quote balance = %s, want 30", got)
	}
}

func TestUpdateMarkPrice(t *testing.T) {
	fake := &fakeExchange{positions: []core.Position{
		{Symbol: "SOL_USDC_PERP", Side: core.Long, Quantity: dec("2"), EntryPrice: dec("100")},
	}}
	m := NewManager(fake)
	if _, err := m.RefreshPositions(context.Background()); err != nil {
		t.Fatalf("RefreshPositions() error = %v", err)
	}

	m.UpdateMarkPrice("SOL_USDC_PERP", dec("110"))
	pos, ok := m.Position("SOL_USDC_PERP")
	if !ok {
		t.Fatal("position missing")
	}
	if !pos.UnrealizedPnL.Equal(dec("20")) {
		t.Fatalf("UnrealizedPnL = %s, want 20", pos.UnrealizedPnL)
	}

	// Unknown symbol is a no-op, not a panic.
	m.UpdateMarkPrice("BTC_USDC_PERP", dec("60000"))
}

func TestSummary(t *testing.T) {
	fake := &fakeExchange{
		balances: map[string]core.Balance{
			"USDC": {Asset: "USDC", Total: dec("1000")},
		},
		positions: []core.Position{
			{Symbol: "A_USDC", Side: core.Long, Quantity: dec("1"), UnrealizedPnL: dec("10"), Margin: dec("100")},
			{Symbol: "B_USDC", Side: core.Short, Quantity: dec("1"), UnrealizedPnL: dec("-5"), Margin: dec("50")},
			{Symbol: "C_USDC", Side: core.Long, Quantity: dec("1"), UnrealizedPnL: dec("0"), Margin: dec("25")},
		},
	}
	m := NewManager(fake)
	ctx := context.Background()
	if err := m.RefreshBalances(ctx); err != nil {
		t.Fatalf("RefreshBalances() error = %v", err)
	}
	if _, err := m.RefreshPositions(ctx); err != nil {
		t.Fatalf("RefreshPositions() error = %v", err)
	}

	s := m.Summary("USDC")
	if s.TotalPositions != 3 || s.LongPositions != 2 || s.ShortPositions != 1 {
		t.Fatalf("counts = %d/%d/%d, want 3/2/1", s.TotalPositions, s.LongPositions, s.ShortPositions)
	}
	if s.WinningPositions != 1 || s.LosingPositions != 1 {
		t.Fatalf("win/lose = %d/%d, want 1/1", s.WinningPositions, s.LosingPositions)
	}
	if !s.TotalPnL.Equal(dec("5")) {
		t.Fatalf("TotalPnL = %s, want 5", s.TotalPnL)
	}
	if !s.TotalMargin.Equal(dec("175")) {
		t.Fatalf("TotalMargin = %s, want 175", s.TotalMargin)
	}
	if !s.PortfolioValue.Equal(dec("1005")) {
		t.Fatalf("PortfolioValue = %s, want 1005", s.PortfolioValue)
	}
}
