package position

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange"
)

var log = logrus.WithField("component", "position_manager")

// Manager mirrors remote balances and positions locally. Both mirrors are
// replaced wholesale on refresh, never merged.
type Manager struct {
	exchange exchange.Exchange

	mu        sync.Mutex
	positions map[string]*core.Position
	balances  map[string]core.Balance
}

func NewManager(ex exchange.Exchange) *Manager {
	return &Manager{
		exchange:  ex,
		positions: make(map[string]*core.Position),
		balances:  make(map[string]core.Balance),
	}
}

// RefreshPositions pulls all positions and replaces the mirror, keeping only
// entries with quantity > 0. A not-found response is a benign absence (spot
// accounts have no positions endpoint): the mirror is left untouched and no
// error is surfaced.
func (m *Manager) RefreshPositions(ctx context.Context) ([]core.Position, error) {
	remote, err := m.exchange.Positions(ctx)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			log.Debug("position query not available for this account")
			return nil, nil
		}
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions = make(map[string]*core.Position, len(remote))
	kept := make([]core.Position, 0, len(remote))
	for _, pos := range remote {
		if pos.Quantity.Sign() <= 0 {
			continue
		}
		p := pos
		m.positions[p.Symbol] = &p
		kept = append(kept, pos)
	}
	return kept, nil
}

// RefreshBalances pulls account balances and replaces the mirror wholesale.
func (m *Manager) RefreshBalances(ctx context.Context) error {
	remote, err := m.exchange.Balances(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances = make(map[string]core.Balance, len(remote))
	for asset, bal := range remote {
		m.balances[asset] = bal
	}
	return nil
}

func (m *Manager) Position(symbol string) (core.Position, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[symbol]
	if !ok {
		return core.Position{}, false
	}
	return *pos, true
}

func (m *Manager) HasPosition(symbol string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	pos, ok := m.positions[symbol]
	return ok && pos.Quantity.Sign() > 0
}

// Positions returns a snapshot copy, sorted by symbol for stable output.
func (m *Manager) Positions() []core.Position {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Position, 0, len(m.positions))
	for _, pos := range m.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (m *Manager) Balance(asset string) core.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	if bal, ok := m.balances[asset]; ok {
		return bal
	}
	return core.Balance{Asset: asset}
}

func (m *Manager) Balances() []core.Balance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Balance, 0, len(m.balances))
	for _, bal := range m.balances {
		out = append(out, bal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (m *Manager) TotalPnL() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalPnLLocked()
}

func (m *Manager) totalPnLLocked() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range m.positions {
		total = total.Add(pos.UnrealizedPnL)
	}
	return total
}

func (m *Manager) TotalMargin() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	for _, pos := range m.positions {
		total = total.Add(pos.Margin)
	}
	return total
}

// PortfolioValue is the quote-asset balance total plus the unrealized PnL of
// every open position, computed from the current mirror.
func (m *Manager) PortfolioValue(quoteAsset string) decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := decimal.Zero
	if bal, ok := m.balances[quoteAsset]; ok {
		total = bal.Total
	}
	return total.Add(m.totalPnLLocked())
}

// UpdateMarkPrice mutates the symbol's position in place; no-op when absent.
func (m *Manager) UpdateMarkPrice(symbol string, markPrice decimal.Decimal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if pos, ok := m.positions[symbol]; ok {
		pos.UpdateMarkPrice(markPrice)
	}
}

type Summary struct {
	TotalPositions   int
	LongPositions    int
	ShortPositions   int
	WinningPositions int
	LosingPositions  int
	TotalPnL         decimal.Decimal
	TotalMargin      decimal.Decimal
	PortfolioValue   decimal.Decimal
}

func (m *Manager) Summary(quoteAsset string) Summary {
	positions := m.Positions()
	s := Summary{TotalPositions: len(positions)}
	for _, pos := range positions {
		if pos.IsLong() {
			s.LongPositions++
		}
		if pos.IsShort() {
			s.ShortPositions++
		}
		switch pos.UnrealizedPnL.Sign() {
		case 1:
			s.WinningPositions++
		case -1:
			s.LosingPositions++
		}
		s.TotalPnL = s.TotalPnL.Add(pos.UnrealizedPnL)
		s.TotalMargin = s.TotalMargin.Add(pos.Margin)
	}
	s.PortfolioValue = m.PortfolioValue(quoteAsset)
	return s
}
