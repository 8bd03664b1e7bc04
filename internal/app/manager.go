package app

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/order"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/position"
)

var log = logrus.WithField("component", "app")

// Manager ties the exchange client and the state mirrors together and owns
// the refresh critical section. One mutex guards a whole refresh pass
// (balances, positions, orders, ticker, timestamp) so the foreground command
// loop and the background timer cannot interleave writes. Placement and
// cancellation deliberately run outside this lock: each mirror guards its own
// map, and the full-replace refresh semantics already tolerate an order
// appearing or vanishing mid-pass.
type Manager struct {
	exchange  exchange.Exchange
	Orders    *order.Manager
	Positions *position.Manager

	mu          sync.Mutex
	symbol      string
	lastPrice   decimal.Decimal
	lastRefresh time.Time
}

func New(ex exchange.Exchange, orders *order.Manager, positions *position.Manager, symbol string) *Manager {
	return &Manager{
		exchange:  ex,
		Orders:    orders,
		Positions: positions,
		symbol:    symbol,
	}
}

func (m *Manager) Symbol() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.symbol
}

func (m *Manager) SetSymbol(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.symbol = symbol
}

func (m *Manager) LastPrice() decimal.Decimal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastPrice
}

func (m *Manager) LastRefresh() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastRefresh
}

// RefreshAll re-pulls positions, balances, open orders and the current
// ticker under the refresh lock. The first failure aborts the pass.
func (m *Manager) RefreshAll(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, err := m.Positions.RefreshPositions(ctx); err != nil {
		return err
	}
	if err := m.Positions.RefreshBalances(ctx); err != nil {
		return err
	}
	if _, err := m.Orders.RefreshOpenOrders(ctx, ""); err != nil {
		return err
	}
	price, err := m.exchange.TickerPrice(ctx, m.symbol)
	if err != nil {
		return err
	}
	m.lastPrice = price
	m.Positions.UpdateMarkPrice(m.symbol, price)
	m.lastRefresh = time.Now()
	return nil
}

// StartAutoRefresh runs RefreshAll on a fixed interval until ctx is
// cancelled. Failures are logged at debug level only; the background timer
// never surfaces errors to the user.
func (m *Manager) StartAutoRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.RefreshAll(ctx); err != nil {
					log.WithError(err).Debug("background refresh failed")
				}
			}
		}
	}()
}
