package risk

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
)

// ErrLimitExceeded marks an order rejected by the risk gate before reaching
// the wire.
var ErrLimitExceeded = errors.New("risk limit exceeded")

const (
	// Ceilings applied by ValidateOrder.
	maxOrderPortfolioPct = 50
	maxTotalExposurePct  = 200
	maxLeverage          = 5

	// Liquidation distance thresholds, in percent of mark price.
	attentionLiquidationPct = 10
	closeLiquidationPct     = 5
)

var (
	hundred = decimal.NewFromInt(100)
	// Assumed price excursion when sizing without a stop loss.
	defaultExcursion = decimal.RequireFromString("0.02")
	defaultRiskPct   = decimal.NewFromInt(2)
	defaultRRRatio   = decimal.NewFromInt(2)
	highRiskMultiple = decimal.NewFromInt(3)
)

type Config struct {
	// MaxPositionSize is the absolute quote-currency cap per order.
	MaxPositionSize decimal.Decimal
	// RiskPercentage is the default per-trade risk as percent of portfolio.
	RiskPercentage decimal.Decimal
	// BlockOnNoEquity rejects orders outright when portfolio value is not
	// positive. Off by default: ratio checks are skipped instead, since no
	// meaningful ratio exists against zero or negative equity.
	BlockOnNoEquity bool
}

// Manager is a pure function set over caller-supplied state. It holds only
// configured ceilings and never talks to the exchange.
type Manager struct {
	cfg Config
}

func New(cfg Config) *Manager {
	if cfg.MaxPositionSize.Sign() <= 0 {
		cfg.MaxPositionSize = decimal.NewFromInt(1000)
	}
	if cfg.RiskPercentage.Sign() <= 0 {
		cfg.RiskPercentage = defaultRiskPct
	}
	return &Manager{cfg: cfg}
}

func (m *Manager) MaxPositionSize() decimal.Decimal { return m.cfg.MaxPositionSize }
func (m *Manager) RiskPercentage() decimal.Decimal  { return m.cfg.RiskPercentage }

// PositionSize recommends a base-currency size for a trade. Zero-valued
// stopLossPrice and riskAmount mean "not provided".
func (m *Manager) PositionSize(portfolioValue, entryPrice, stopLossPrice, riskAmount decimal.Decimal) decimal.Decimal {
	if entryPrice.Sign() <= 0 {
		return decimal.Zero
	}
	if riskAmount.Sign() <= 0 {
		riskAmount = portfolioValue.Mul(m.cfg.RiskPercentage).Div(hundred)
	}
	var size decimal.Decimal
	if stopLossPrice.Sign() > 0 {
		priceRisk := entryPrice.Sub(stopLossPrice).Abs()
		if priceRisk.Sign() == 0 {
			return decimal.Zero
		}
		size = riskAmount.Div(priceRisk)
	} else {
		size = riskAmount.Div(entryPrice.Mul(defaultExcursion))
	}
	maxQty := m.cfg.MaxPositionSize.Div(entryPrice)
	if size.Cmp(maxQty) > 0 {
		size = maxQty
	}
	return size
}

// ValidateOrder checks a prospective order against exposure ceilings. A nil
// return means the order may go out; a non-nil error wraps ErrLimitExceeded
// with the reason.
func (m *Manager) ValidateOrder(symbol string, side core.Side, quantity, price decimal.Decimal, positions []core.Position, portfolioValue decimal.Decimal) error {
	notional := quantity.Mul(price)

	if notional.Cmp(m.cfg.MaxPositionSize) > 0 {
		return fmt.Errorf("%w: order value %s exceeds max position size %s",
			ErrLimitExceeded, notional, m.cfg.MaxPositionSize)
	}

	if portfolioValue.Sign() <= 0 {
		if m.cfg.BlockOnNoEquity {
			return fmt.Errorf("%w: portfolio value %s is not positive", ErrLimitExceeded, portfolioValue)
		}
		// No meaningful ratio against non-positive equity: portfolio checks
		// are skipped. See Config.BlockOnNoEquity.
	} else {
		orderPct := notional.Div(portfolioValue).Mul(hundred)
		if orderPct.Cmp(decimal.NewFromInt(maxOrderPortfolioPct)) > 0 {
			return fmt.Errorf("%w: order is %s%% of portfolio, limit %d%%",
				ErrLimitExceeded, orderPct.StringFixed(1), maxOrderPortfolioPct)
		}

		exposure := notional
		for _, pos := range positions {
			exposure = exposure.Add(pos.NotionalValue().Abs())
		}
		exposurePct := exposure.Div(portfolioValue).Mul(hundred)
		if exposurePct.Cmp(decimal.NewFromInt(maxTotalExposurePct)) > 0 {
			return fmt.Errorf("%w: total exposure %s%% exceeds %d%% limit",
				ErrLimitExceeded, exposurePct.StringFixed(1), maxTotalExposurePct)
		}
	}

	for _, pos := range positions {
		if pos.Symbol != symbol {
			continue
		}
		if pos.Leverage.Cmp(decimal.NewFromInt(maxLeverage)) > 0 {
			return fmt.Errorf("%w: position leverage %sx exceeds max %dx",
				ErrLimitExceeded, pos.Leverage, maxLeverage)
		}
	}
	return nil
}

// StopLoss projects a stop price below (Bid) or above (Ask) the entry by
// riskPct percent. Zero riskPct uses the configured percentage.
func (m *Manager) StopLoss(entryPrice decimal.Decimal, side core.Side, riskPct decimal.Decimal) decimal.Decimal {
	if riskPct.Sign() <= 0 {
		riskPct = m.cfg.RiskPercentage
	}
	delta := entryPrice.Mul(riskPct).Div(hundred)
	if side == core.Ask {
		return entryPrice.Add(delta)
	}
	return entryPrice.Sub(delta)
}

// TakeProfit projects riskRewardRatio times the stop-loss distance in the
// profitable direction. Zero ratio defaults to 2.
func (m *Manager) TakeProfit(entryPrice decimal.Decimal, side core.Side, riskRewardRatio decimal.Decimal) decimal.Decimal {
	if riskRewardRatio.Sign() <= 0 {
		riskRewardRatio = defaultRRRatio
	}
	stop := m.StopLoss(entryPrice, side, decimal.Zero)
	reward := entryPrice.Sub(stop).Abs().Mul(riskRewardRatio)
	if side == core.Ask {
		return entryPrice.Sub(reward)
	}
	return entryPrice.Add(reward)
}

// PositionRisk is the risk report for one open position.
type PositionRisk struct {
	Symbol string
	// SizePct is the position notional as percent of portfolio value.
	SizePct decimal.Decimal
	PnLPct  decimal.Decimal
	// LiquidationDistance is percent of mark price; valid only when
	// HasLiquidation is true.
	LiquidationDistance decimal.Decimal
	HasLiquidation      bool
	HighRisk            bool
	NeedsAttention      bool
}

func (m *Manager) PositionRisk(pos core.Position, portfolioValue decimal.Decimal) PositionRisk {
	report := PositionRisk{
		Symbol: pos.Symbol,
		PnLPct: pos.PnLPercentage(),
	}
	if portfolioValue.Sign() > 0 {
		report.SizePct = pos.NotionalValue().Div(portfolioValue).Mul(hundred)
	}
	if dist, ok := liquidationDistance(pos); ok {
		report.LiquidationDistance = dist
		report.HasLiquidation = true
		report.NeedsAttention = dist.Cmp(decimal.NewFromInt(attentionLiquidationPct)) < 0
	}
	report.HighRisk = report.SizePct.Cmp(m.cfg.RiskPercentage.Mul(highRiskMultiple)) > 0
	return report
}

func liquidationDistance(pos core.Position) (decimal.Decimal, bool) {
	if pos.LiquidationPrice.Sign() <= 0 || pos.MarkPrice.Sign() == 0 {
		return decimal.Zero, false
	}
	diff := pos.MarkPrice.Sub(pos.LiquidationPrice)
	if pos.IsShort() {
		diff = diff.Neg()
	}
	return diff.Div(pos.MarkPrice).Mul(hundred), true
}

// MaxQuantity returns the largest order quantity the limits allow at price.
// Zero portfolioValue applies only the absolute size cap.
func (m *Manager) MaxQuantity(price, portfolioValue decimal.Decimal) decimal.Decimal {
	if price.Sign() <= 0 {
		return decimal.Zero
	}
	maxBySize := m.cfg.MaxPositionSize.Div(price)
	if portfolioValue.Sign() <= 0 {
		return maxBySize
	}
	riskAmount := portfolioValue.Mul(m.cfg.RiskPercentage).Div(hundred)
	maxByRisk := riskAmount.Div(price.Mul(defaultExcursion))
	if maxByRisk.Cmp(maxBySize) < 0 {
		return maxByRisk
	}
	return maxBySize
}

// ShouldClose checks stop-loss, take-profit, and liquidation proximity in
// that priority order; the first trigger wins. Zero stopLoss/takeProfit mean
// "not set".
func (m *Manager) ShouldClose(pos core.Position, stopLoss, takeProfit decimal.Decimal) (bool, string) {
	mark := pos.MarkPrice

	if stopLoss.Sign() > 0 {
		if pos.IsLong() && mark.Cmp(stopLoss) <= 0 {
			return true, fmt.Sprintf("stop loss hit at %s", mark)
		}
		if pos.IsShort() && mark.Cmp(stopLoss) >= 0 {
			return true, fmt.Sprintf("stop loss hit at %s", mark)
		}
	}

	if takeProfit.Sign() > 0 {
		if pos.IsLong() && mark.Cmp(takeProfit) >= 0 {
			return true, fmt.Sprintf("take profit hit at %s", mark)
		}
		if pos.IsShort() && mark.Cmp(takeProfit) <= 0 {
			return true, fmt.Sprintf("take profit hit at %s", mark)
		}
	}

	if dist, ok := liquidationDistance(pos); ok && dist.Cmp(decimal.NewFromInt(closeLiquidationPct)) < 0 {
		return true, fmt.Sprintf("close to liquidation (distance: %s%%)", dist.StringFixed(2))
	}

	return false, ""
}
