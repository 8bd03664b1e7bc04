package order

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/position"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/risk"
)

var log = logrus.WithField("component", "order_manager")

// Persister receives the order mirror for durable storage. store.Store
// implements it.
type Persister interface {
	SaveOpenOrders(orders []core.Order) error
	AppendHistory(order core.Order) error
}

type Config struct {
	// ClientIDPrefix is stamped on every client order id.
	ClientIDPrefix string
	// QuoteAsset is used to value the portfolio for the risk gate.
	QuoteAsset string
	// Risk and Positions enable the pre-wire risk gate when both are set.
	Risk      *risk.Manager
	Positions *position.Manager
	// Persister, when set, receives the open-order snapshot after each
	// refresh and closed orders as they leave the mirror.
	Persister Persister
}

// Manager turns trading intents into exchange calls and keeps the
// authoritative local view of open orders.
type Manager struct {
	exchange  exchange.Exchange
	risk      *risk.Manager
	positions *position.Manager
	persister Persister
	prefix    string
	quote     string

	mu      sync.Mutex
	open    map[string]core.Order
	history []core.Order
}

func NewManager(ex exchange.Exchange, cfg Config) *Manager {
	prefix := strings.TrimSpace(cfg.ClientIDPrefix)
	if prefix == "" {
		prefix = "bp"
	}
	quote := cfg.QuoteAsset
	if quote == "" {
		quote = "USDC"
	}
	return &Manager{
		exchange:  ex,
		risk:      cfg.Risk,
		positions: cfg.Positions,
		persister: cfg.Persister,
		prefix:    prefix,
		quote:     quote,
		open:      make(map[string]core.Order),
	}
}

func (m *Manager) newClientID() string {
	return m.prefix + "-" + uuid.NewString()[:8]
}

// PlaceMarket places a market order. On success the order enters the local
// open-order mirror; on failure nothing is recorded and the error is
// returned.
func (m *Manager) PlaceMarket(ctx context.Context, symbol string, side core.Side, quantity decimal.Decimal) (core.Order, error) {
	return m.place(ctx, exchange.OrderRequest{
		Symbol:   symbol,
		Side:     side,
		Type:     core.Market,
		Quantity: quantity,
	})
}

func (m *Manager) PlaceLimit(ctx context.Context, symbol string, side core.Side, quantity, price decimal.Decimal, tif core.TimeInForce) (core.Order, error) {
	if price.Sign() <= 0 {
		return core.Order{}, fmt.Errorf("%w: price must be positive", core.ErrInvalidOrder)
	}
	if tif == "" {
		tif = core.GTC
	}
	return m.place(ctx, exchange.OrderRequest{
		Symbol:      symbol,
		Side:        side,
		Type:        core.Limit,
		Quantity:    quantity,
		Price:       price,
		TimeInForce: tif,
	})
}

func (m *Manager) place(ctx context.Context, req exchange.OrderRequest) (core.Order, error) {
	if req.Symbol == "" {
		return core.Order{}, fmt.Errorf("%w: symbol is required", core.ErrInvalidOrder)
	}
	if req.Quantity.Sign() <= 0 {
		return core.Order{}, fmt.Errorf("%w: quantity must be positive", core.ErrInvalidOrder)
	}
	if err := m.validate(ctx, req); err != nil {
		return core.Order{}, err
	}
	req.ClientID = m.newClientID()
	order, err := m.exchange.PlaceOrder(ctx, req)
	if err != nil {
		log.WithError(err).WithFields(logrus.Fields{
			"symbol": req.Symbol,
			"side":   req.Side,
			"type":   req.Type,
		}).Warn("order placement failed")
		return core.Order{}, err
	}
	m.mu.Lock()
	m.open[order.ID] = order
	m.mu.Unlock()
	return order, nil
}

// validate runs the risk gate against the current position snapshot. Market
// orders are valued at the last ticker price since they carry none.
func (m *Manager) validate(ctx context.Context, req exchange.OrderRequest) error {
	if m.risk == nil || m.positions == nil {
		return nil
	}
	price := req.Price
	if price.Sign() <= 0 {
		last, err := m.exchange.TickerPrice(ctx, req.Symbol)
		if err != nil {
			// Cannot value the order; let the exchange be the judge.
			log.WithError(err).Debug("ticker unavailable for market-order risk check")
			return nil
		}
		price = last
	}
	return m.risk.ValidateOrder(req.Symbol, req.Side, req.Quantity, price,
		m.positions.Positions(), m.positions.PortfolioValue(m.quote))
}

// Cancel cancels one order; on success it moves from the open mirror to the
// history.
func (m *Manager) Cancel(ctx context.Context, orderID, symbol string) error {
	if err := m.exchange.CancelOrder(ctx, symbol, orderID); err != nil {
		return err
	}
	m.mu.Lock()
	order, ok := m.open[orderID]
	if ok {
		delete(m.open, orderID)
		m.history = append(m.history, order)
	}
	m.mu.Unlock()
	if ok {
		m.appendHistory(order)
	}
	return nil
}

// CancelAll issues a symbol-wide cancel and moves every matching local order
// to the history.
func (m *Manager) CancelAll(ctx context.Context, symbol string) error {
	if err := m.exchange.CancelAllOrders(ctx, symbol); err != nil {
		return err
	}
	m.mu.Lock()
	var closed []core.Order
	for id, order := range m.open {
		if order.Symbol == symbol {
			delete(m.open, id)
			m.history = append(m.history, order)
			closed = append(closed, order)
		}
	}
	m.mu.Unlock()
	for _, order := range closed {
		m.appendHistory(order)
	}
	return nil
}

// CancelPriceRange cancels every open order for symbol priced inside
// [priceLow, priceHigh], both ends inclusive. Each cancel is independent;
// the outcome is reported as succeeded/total, never as a single error.
func (m *Manager) CancelPriceRange(ctx context.Context, symbol string, priceLow, priceHigh decimal.Decimal) (succeeded, total int) {
	m.mu.Lock()
	var candidates []core.Order
	for _, order := range m.open {
		if order.Symbol != symbol {
			continue
		}
		if order.Price.Cmp(priceLow) >= 0 && order.Price.Cmp(priceHigh) <= 0 {
			candidates = append(candidates, order)
		}
	}
	m.mu.Unlock()

	for _, order := range candidates {
		if err := m.Cancel(ctx, order.ID, symbol); err != nil {
			log.WithError(err).WithField("order_id", order.ID).Warn("range cancel failed for order")
			continue
		}
		succeeded++
	}
	return succeeded, len(candidates)
}

// RefreshOpenOrders pulls the full open-order set and replaces the local
// mirror entirely. Stale local entries absent from the response are dropped;
// an order that filled between two refreshes disappears rather than
// transitioning to a filled state.
func (m *Manager) RefreshOpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	remote, err := m.exchange.OpenOrders(ctx, symbol)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.open = make(map[string]core.Order, len(remote))
	for _, order := range remote {
		m.open[order.ID] = order
	}
	m.mu.Unlock()
	m.saveSnapshot(remote)
	return remote, nil
}

// OpenOrders returns the local mirror, optionally filtered by symbol, sorted
// by creation time for stable display.
func (m *Manager) OpenOrders(symbol string) []core.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Order, 0, len(m.open))
	for _, order := range m.open {
		if symbol != "" && order.Symbol != symbol {
			continue
		}
		out = append(out, order)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (m *Manager) OrderByID(orderID string) (core.Order, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	order, ok := m.open[orderID]
	return order, ok
}

// History returns closed orders in FIFO closure order.
func (m *Manager) History() []core.Order {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]core.Order, len(m.history))
	copy(out, m.history)
	return out
}

func (m *Manager) saveSnapshot(orders []core.Order) {
	if m.persister == nil {
		return
	}
	if err := m.persister.SaveOpenOrders(orders); err != nil {
		log.WithError(err).Warn("save open-order snapshot failed")
	}
}

func (m *Manager) appendHistory(order core.Order) {
	if m.persister == nil {
		return
	}
	if err := m.persister.AppendHistory(order); err != nil {
		log.WithError(err).Warn("append order history failed")
	}
}
