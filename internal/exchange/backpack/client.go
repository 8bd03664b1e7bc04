package backpack

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange"
)

// Signed-call instruction names. Each one is part of the canonical signing
// message and must match the endpoint it is sent with.
const (
	instructionBalanceQuery   = "balanceQuery"
	instructionOrderQueryAll  = "orderQueryAll"
	instructionOrderQuery     = "orderQuery"
	instructionOrderExecute   = "orderExecute"
	instructionOrderCancel    = "orderCancel"
	instructionOrderCancelAll = "orderCancelAll"
	instructionFillHistory    = "fillHistoryQueryAll"
	instructionPositionQuery  = "positionQuery"
)

const defaultBaseURL = "https://api.backpack.exchange"

// Fallback precision when a market's filters cannot be resolved.
const defaultPrecisionStep = "0.01"

var log = logrus.WithField("component", "backpack_client")

// Client speaks the Backpack REST protocol: public market data plus
// ed25519-signed private calls. It owns a permanent per-symbol market
// metadata cache and the precision rounding used on every order.
type Client struct {
	rest   *resty.Client
	signer *Signer
	window int64

	mu      sync.Mutex
	markets map[string]core.MarketSpec
}

type Options struct {
	APIKey         string
	APISecret      string
	BaseURL        string
	WindowMs       int64
	HTTPTimeoutSec int64
}

func New(opts Options) (*Client, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	signer, err := NewSigner(opts.APISecret)
	if err != nil {
		return nil, err
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := 10 * time.Second
	if opts.HTTPTimeoutSec > 0 {
		timeout = time.Duration(opts.HTTPTimeoutSec) * time.Second
	}
	window := opts.WindowMs
	if window <= 0 {
		window = DefaultWindow
	}
	if window > MaxWindow {
		window = MaxWindow
	}
	// No automatic retries: a failed call is surfaced once to the caller.
	rest := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("X-API-Key", opts.APIKey).
		SetHeader("Content-Type", "application/json")
	return &Client{
		rest:    rest,
		signer:  signer,
		window:  window,
		markets: make(map[string]core.MarketSpec),
	}, nil
}

// request issues one HTTP call. When instruction is non-empty the query and
// body params are merged into a single set, signed, and the signature headers
// attached.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body map[string]string, instruction string) ([]byte, error) {
	req := c.rest.R().SetContext(ctx)
	if instruction != "" {
		params := make(map[string]string, len(query)+len(body))
		for k := range query {
			params[k] = query.Get(k)
		}
		for k, v := range body {
			params[k] = v
		}
		sig, timestamp, window := c.signer.Sign(instruction, params, c.window)
		req.SetHeader("X-Signature", sig)
		req.SetHeader("X-Timestamp", timestamp)
		req.SetHeader("X-Window", window)
	}
	if len(query) > 0 {
		req.SetQueryParamsFromValues(query)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("backpack request failed: %w", err)
	}
	if resp.StatusCode()/100 != 2 {
		return nil, newAPIError(resp.StatusCode(), resp.Body())
	}
	return resp.Body(), nil
}

// Public endpoints

func (c *Client) Markets(ctx context.Context) ([]core.MarketSpec, error) {
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/markets", nil, nil, "")
	if err != nil {
		return nil, err
	}
	var resp []marketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	specs := make([]core.MarketSpec, 0, len(resp))
	for _, m := range resp {
		specs = append(specs, parseMarketSpec(m))
	}
	return specs, nil
}

// GetMarket is cache-first; a fetched spec is cached for the process lifetime.
func (c *Client) GetMarket(ctx context.Context, symbol string) (core.MarketSpec, error) {
	if symbol == "" {
		return core.MarketSpec{}, fmt.Errorf("symbol is required")
	}
	c.mu.Lock()
	if spec, ok := c.markets[symbol]; ok {
		c.mu.Unlock()
		return spec, nil
	}
	c.mu.Unlock()

	query := url.Values{}
	query.Set("symbol", symbol)
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/market", query, nil, "")
	if err != nil {
		return core.MarketSpec{}, err
	}
	var resp marketResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.MarketSpec{}, err
	}
	if resp.Symbol == "" {
		resp.Symbol = symbol
	}
	spec := parseMarketSpec(resp)
	c.mu.Lock()
	c.markets[symbol] = spec
	c.mu.Unlock()
	return spec, nil
}

func parseMarketSpec(m marketResponse) core.MarketSpec {
	tick, err := decimal.NewFromString(m.Filters.Price.TickSize)
	if err != nil || tick.Sign() <= 0 {
		tick = decimal.RequireFromString(defaultPrecisionStep)
	}
	step, err := decimal.NewFromString(m.Filters.Quantity.StepSize)
	if err != nil || step.Sign() <= 0 {
		step = decimal.RequireFromString(defaultPrecisionStep)
	}
	return core.MarketSpec{Symbol: m.Symbol, TickSize: tick, StepSize: step}
}

// precision resolves the tick/step sizes for symbol, falling back to the
// default step when the market cannot be fetched. Orders still go out with a
// sane precision if the metadata endpoint is down.
func (c *Client) precision(ctx context.Context, symbol string) core.MarketSpec {
	spec, err := c.GetMarket(ctx, symbol)
	if err != nil {
		log.WithError(err).WithField("symbol", symbol).Warn("market precision lookup failed, using defaults")
		fallback := decimal.RequireFromString(defaultPrecisionStep)
		return core.MarketSpec{Symbol: symbol, TickSize: fallback, StepSize: fallback}
	}
	return spec
}

func (c *Client) Ticker(ctx context.Context, symbol string) (decimal.Decimal, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/ticker", query, nil, "")
	if err != nil {
		return decimal.Zero, err
	}
	var resp tickerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return decimal.Zero, err
	}
	price, err := decimal.NewFromString(resp.LastPrice)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad ticker price %q: %w", resp.LastPrice, err)
	}
	return price, nil
}

// TickerPrice implements exchange.Exchange.
func (c *Client) TickerPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	return c.Ticker(ctx, symbol)
}

func (c *Client) GetDepth(ctx context.Context, symbol string, limit int) (Depth, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/depth", query, nil, "")
	if err != nil {
		return Depth{}, err
	}
	var resp Depth
	if err := json.Unmarshal(body, &resp); err != nil {
		return Depth{}, err
	}
	return resp, nil
}

func (c *Client) GetKlines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("interval", interval)
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/klines", query, nil, "")
	if err != nil {
		return nil, err
	}
	var resp []Kline
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

// Private endpoints

func (c *Client) Balances(ctx context.Context) (map[string]core.Balance, error) {
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/capital", nil, nil, instructionBalanceQuery)
	if err != nil {
		return nil, err
	}
	var resp map[string]balanceEntry
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	balances := make(map[string]core.Balance, len(resp))
	for asset, entry := range resp {
		balances[asset] = entry.toBalance(asset)
	}
	return balances, nil
}

func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]core.Order, error) {
	query := url.Values{}
	if symbol != "" {
		query.Set("symbol", symbol)
	}
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/orders", query, nil, instructionOrderQueryAll)
	if err != nil {
		return nil, err
	}
	var resp []orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	orders := make([]core.Order, 0, len(resp))
	for _, ord := range resp {
		orders = append(orders, ord.toOrder())
	}
	return orders, nil
}

func (c *Client) GetOrder(ctx context.Context, symbol, orderID string) (core.Order, error) {
	query := url.Values{}
	query.Set("symbol", symbol)
	query.Set("orderId", orderID)
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/order", query, nil, instructionOrderQuery)
	if err != nil {
		return core.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, err
	}
	return resp.toOrder(), nil
}

// PlaceOrder rounds quantity to the market's step size and price (when given)
// to its tick size, then issues a signed orderExecute call. Caller-supplied
// values are otherwise untouched.
func (c *Client) PlaceOrder(ctx context.Context, req exchange.OrderRequest) (core.Order, error) {
	if req.Symbol == "" || req.Quantity.Sign() <= 0 {
		return core.Order{}, core.ErrInvalidOrder
	}
	spec := c.precision(ctx, req.Symbol)
	tif := req.TimeInForce
	if tif == "" {
		tif = core.GTC
	}
	payload := map[string]string{
		"symbol":      req.Symbol,
		"side":        string(req.Side),
		"orderType":   string(req.Type),
		"quantity":    RoundToPrecision(req.Quantity, spec.StepSize),
		"timeInForce": string(tif),
	}
	if req.Price.Sign() > 0 {
		payload["price"] = RoundToPrecision(req.Price, spec.TickSize)
	}
	if req.ClientID != "" {
		payload["clientId"] = req.ClientID
	}
	body, err := c.request(ctx, resty.MethodPost, "/api/v1/order", nil, payload, instructionOrderExecute)
	if err != nil {
		return core.Order{}, err
	}
	var resp orderResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return core.Order{}, err
	}
	return resp.toOrder(), nil
}

func (c *Client) CancelOrder(ctx context.Context, symbol, orderID string) error {
	payload := map[string]string{
		"symbol":  symbol,
		"orderId": orderID,
	}
	_, err := c.request(ctx, resty.MethodDelete, "/api/v1/order", nil, payload, instructionOrderCancel)
	return err
}

func (c *Client) CancelAllOrders(ctx context.Context, symbol string) error {
	payload := map[string]string{"symbol": symbol}
	_, err := c.request(ctx, resty.MethodDelete, "/api/v1/orders", nil, payload, instructionOrderCancelAll)
	return err
}

func (c *Client) Fills(ctx context.Context, symbol string, limit int) ([]Fill, error) {
	query := url.Values{}
	if limit <= 0 {
		limit = 100
	}
	query.Set("limit", strconv.Itoa(limit))
	if symbol != "" {
		query.Set("symbol", symbol)
	}
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/fills", query, nil, instructionFillHistory)
	if err != nil {
		return nil, err
	}
	var resp []Fill
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func (c *Client) Positions(ctx context.Context) ([]core.Position, error) {
	body, err := c.request(ctx, resty.MethodGet, "/api/v1/positions", nil, nil, instructionPositionQuery)
	if err != nil {
		return nil, err
	}
	var resp []positionResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, err
	}
	positions := make([]core.Position, 0, len(resp))
	for _, pos := range resp {
		positions = append(positions, pos.toPosition())
	}
	return positions, nil
}

// RoundToStep floors value to an exact multiple of step. 1.279 at step 0.01
// becomes 1.27, never 1.28: the exchange enforces the same filter and rejects
// anything rounded the other way.
func RoundToStep(value, step decimal.Decimal) decimal.Decimal {
	if step.Sign() <= 0 {
		return value
	}
	return value.Div(step).Floor().Mul(step)
}

// RoundToPrecision floors value to step and renders it without trailing
// zeros or a dangling decimal point.
func RoundToPrecision(value, step decimal.Decimal) string {
	return formatDecimal(RoundToStep(value, step))
}

func formatDecimal(d decimal.Decimal) string {
	s := d.String()
	if strings.Contains(s, ".") {
		s = strings.TrimRight(s, "0")
		s = strings.TrimRight(s, ".")
	}
	return s
}
