package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/app"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/config"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/core"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange/backpack"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/order"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/position"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/risk"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/store"
)

func main() {
	var configPath string
	var verbose bool
	flag.StringVar(&configPath, "config", "", "optional config yaml path")
	flag.BoolVar(&verbose, "v", false, "debug logging")
	flag.Parse()

	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fatal(err.Error())
	}

	client, err := backpack.New(backpack.Options{
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		BaseURL:        cfg.BaseURL,
		WindowMs:       cfg.Exchange.WindowMs,
		HTTPTimeoutSec: cfg.Exchange.HTTPTimeoutSec,
	})
	if err != nil {
		fatal(err.Error())
	}

	var persister order.Persister
	if cfg.State.Dir != "" {
		stateDir := filepath.Join(cfg.State.Dir, strings.ToLower(cfg.Symbol))
		st, err := store.New(stateDir)
		if err != nil {
			fatal(err.Error())
		}
		lock, err := store.AcquireInstanceLock(stateDir)
		if err != nil {
			fatal(err.Error())
		}
		defer func() {
			if relErr := lock.Release(); relErr != nil {
				fmt.Fprintf(os.Stderr, "release instance lock failed: %v\n", relErr)
			}
		}()
		if saved, err := st.LoadOpenOrders(); err == nil && len(saved) > 0 {
			fmt.Printf("last session left %d open orders, refreshing from the exchange\n", len(saved))
		}
		persister = st
	}

	positions := position.NewManager(client)
	riskMgr := risk.New(risk.Config{
		MaxPositionSize: cfg.Risk.MaxPositionSize.Decimal,
		RiskPercentage:  cfg.Risk.RiskPercentage.Decimal,
		BlockOnNoEquity: cfg.Risk.BlockOnNoEquity,
	})
	orders := order.NewManager(client, order.Config{
		QuoteAsset: cfg.QuoteAsset,
		Risk:       riskMgr,
		Positions:  positions,
		Persister:  persister,
	})
	mgr := app.New(client, orders, positions, cfg.Symbol)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := mgr.RefreshAll(ctx); err != nil {
		fmt.Printf("initial refresh failed: %v\n", err)
	}
	mgr.StartAutoRefresh(ctx, time.Duration(cfg.Exchange.RefreshIntervalSec)*time.Second)

	cli := &cli{mgr: mgr, client: client, cfg: cfg}
	cli.run(ctx)
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

type cli struct {
	mgr    *app.Manager
	client *backpack.Client
	cfg    config.Config
}

func (c *cli) run(ctx context.Context) {
	fmt.Printf("backpack trading bot - symbol %s (type 'help' for commands)\n", c.mgr.Symbol())
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Printf("%s> ", c.mgr.Symbol())
		if !scanner.Scan() {
			return
		}
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		cmd, args := fields[0], fields[1:]
		switch cmd {
		case "help", "h":
			c.printHelp()
		case "quit", "q", "exit":
			fmt.Println("bye")
			return
		case "refresh", "r":
			if err := c.mgr.RefreshAll(ctx); err != nil {
				fmt.Printf("refresh failed: %v\n", err)
				continue
			}
			fmt.Printf("refreshed, last price %s\n", c.mgr.LastPrice())
		case "buy", "b":
			c.placeMarket(ctx, core.Bid, args)
		case "sell", "s":
			c.placeMarket(ctx, core.Ask, args)
		case "buylimit", "bl":
			c.placeLimit(ctx, core.Bid, args)
		case "selllimit", "sl":
			c.placeLimit(ctx, core.Ask, args)
		case "tieredbuy", "tb":
			c.tieredBuy(ctx, args)
		case "tieredsell", "ts":
			c.tieredSell(ctx, args)
		case "cancel", "c":
			c.cancel(ctx, args)
		case "cancelall", "ca":
			if err := c.mgr.Orders.CancelAll(ctx, c.mgr.Symbol()); err != nil {
				fmt.Printf("cancel all failed: %v\n", err)
				continue
			}
			fmt.Println("all orders cancelled")
		case "cancelrange", "cr":
			c.cancelRange(ctx, args)
		case "orders", "o":
			c.printOrders()
		case "order":
			c.showOrder(ctx, args)
		case "depth", "d":
			c.printDepth(ctx, args)
		case "fills", "f":
			c.printFills(ctx, args)
		case "klines", "k":
			c.printKlines(ctx, args)
		case "positions", "p":
			c.printPositions()
		case "balances", "bal":
			c.printBalances()
		case "symbol", "sym":
			c.changeSymbol(ctx, args)
		default:
			fmt.Printf("unknown command %q, try 'help'\n", cmd)
		}
	}
}

func (c *cli) printHelp() {
	fmt.Println(`commands:
  buy <qty>                     market buy
  sell <qty>                    market sell
  buylimit <qty>@<price>        limit buy
  selllimit <qty>@<price>       limit sell
  tieredbuy <value> <low> <high> <n>    spread a quote value across n buy tiers
  tieredsell <qty> <low> <high> <n>     spread a base quantity across n sell tiers
  cancel <orderId>              cancel one order
  cancelall                     cancel every order for the symbol
  cancelrange <low> <high>      cancel orders priced inside [low, high]
  orders | positions | balances show local state
  order <orderId>               query one order on the exchange
  depth [levels]                order book snapshot
  fills [limit]                 recent trade fills
  klines <interval> [limit]     recent candles, e.g. klines 1h 10
  refresh                       re-pull everything now
  symbol <PAIR>                 switch trading pair
  quit`)
}

// parseOrderInput accepts "qty" or "qty@price".
func parseOrderInput(s string) (qty, price decimal.Decimal, err error) {
	parts := strings.SplitN(s, "@", 2)
	qty, err = decimal.NewFromString(strings.TrimSpace(parts[0]))
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("bad quantity %q", parts[0])
	}
	if len(parts) == 2 {
		price, err = decimal.NewFromString(strings.TrimSpace(parts[1]))
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("bad price %q", parts[1])
		}
	}
	return qty, price, nil
}

func (c *cli) placeMarket(ctx context.Context, side core.Side, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: buy|sell <qty>")
		return
	}
	qty, _, err := parseOrderInput(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}
	ord, err := c.mgr.Orders.PlaceMarket(ctx, c.mgr.Symbol(), side, qty)
	if err != nil {
		fmt.Printf("order failed: %v\n", err)
		return
	}
	fmt.Printf("placed market %s %s, order id %s\n", ord.Side, ord.Quantity, ord.ID)
}

func (c *cli) placeLimit(ctx context.Context, side core.Side, args []string) {
	if len(args) != 1 || !strings.Contains(args[0], "@") {
		fmt.Println("usage: buylimit|selllimit <qty>@<price>")
		return
	}
	qty, price, err := parseOrderInput(args[0])
	if err != nil {
		fmt.Println(err)
		return
	}
	ord, err := c.mgr.Orders.PlaceLimit(ctx, c.mgr.Symbol(), side, qty, price, core.GTC)
	if err != nil {
		fmt.Printf("order failed: %v\n", err)
		return
	}
	fmt.Printf("placed limit %s %s @ %s, order id %s\n", ord.Side, ord.Quantity, ord.Price, ord.ID)
}

func parseTieredArgs(args []string) (total, low, high decimal.Decimal, n int, err error) {
	if len(args) != 4 {
		return total, low, high, 0, fmt.Errorf("expected <total> <low> <high> <n>")
	}
	if total, err = decimal.NewFromString(args[0]); err != nil {
		return total, low, high, 0, fmt.Errorf("bad total %q", args[0])
	}
	if low, err = decimal.NewFromString(args[1]); err != nil {
		return total, low, high, 0, fmt.Errorf("bad lower price %q", args[1])
	}
	if high, err = decimal.NewFromString(args[2]); err != nil {
		return total, low, high, 0, fmt.Errorf("bad upper price %q", args[2])
	}
	if n, err = strconv.Atoi(args[3]); err != nil {
		return total, low, high, 0, fmt.Errorf("bad order count %q", args[3])
	}
	return total, low, high, n, nil
}

func (c *cli) tieredBuy(ctx context.Context, args []string) {
	total, low, high, n, err := parseTieredArgs(args)
	if err != nil {
		fmt.Printf("usage: tieredbuy <value> <low> <high> <n> (%v)\n", err)
		return
	}
	results, err := c.mgr.Orders.TieredBuy(ctx, c.mgr.Symbol(), total, low, high, n)
	if err != nil {
		fmt.Printf("tiered buy rejected: %v\n", err)
		return
	}
	c.printTierResults(results)
}

func (c *cli) tieredSell(ctx context.Context, args []string) {
	total, low, high, n, err := parseTieredArgs(args)
	if err != nil {
		fmt.Printf("usage: tieredsell <qty> <low> <high> <n> (%v)\n", err)
		return
	}
	results, err := c.mgr.Orders.TieredSellByQuantity(ctx, c.mgr.Symbol(), total, low, high, n)
	if err != nil {
		fmt.Printf("tiered sell rejected: %v\n", err)
		return
	}
	c.printTierResults(results)
}

func (c *cli) printTierResults(results []order.TierResult) {
	for i, r := range results {
		if r.Order != nil {
			fmt.Printf("  tier %d: %s @ %s - order id %s\n", i+1, r.Quantity, r.Price, r.Order.ID)
		} else {
			fmt.Printf("  tier %d: %s @ %s - failed: %v\n", i+1, r.Quantity, r.Price, r.Err)
		}
	}
	fmt.Printf("placed %d/%d orders\n", order.SucceededCount(results), len(results))
}

func (c *cli) cancel(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: cancel <orderId>")
		return
	}
	if err := c.mgr.Orders.Cancel(ctx, args[0], c.mgr.Symbol()); err != nil {
		fmt.Printf("cancel failed: %v\n", err)
		return
	}
	fmt.Printf("cancelled order %s\n", args[0])
}

func (c *cli) cancelRange(ctx context.Context, args []string) {
	if len(args) != 2 {
		fmt.Println("usage: cancelrange <low> <high>")
		return
	}
	low, err := decimal.NewFromString(args[0])
	if err != nil {
		fmt.Printf("bad lower price %q\n", args[0])
		return
	}
	high, err := decimal.NewFromString(args[1])
	if err != nil {
		fmt.Printf("bad upper price %q\n", args[1])
		return
	}
	succeeded, total := c.mgr.Orders.CancelPriceRange(ctx, c.mgr.Symbol(), low, high)
	fmt.Printf("cancelled %d/%d orders in [%s, %s]\n", succeeded, total, low, high)
}

func (c *cli) printOrders() {
	orders := c.mgr.Orders.OpenOrders("")
	if len(orders) == 0 {
		fmt.Println("no open orders")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tSIDE\tTYPE\tPRICE\tQTY\tFILLED%\tSTATUS")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			o.ID, o.Symbol, o.Side, o.Type, o.Price, o.Quantity,
			o.FillPercentage().StringFixed(1), o.Status)
	}
	w.Flush()
}

func (c *cli) showOrder(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: order <orderId>")
		return
	}
	ord, err := c.client.GetOrder(ctx, c.mgr.Symbol(), args[0])
	if err != nil {
		fmt.Printf("order query failed: %v\n", err)
		return
	}
	fmt.Printf("%s %s %s %s @ %s, filled %s%% (%s)\n",
		ord.ID, ord.Side, ord.Type, ord.Quantity, ord.Price,
		ord.FillPercentage().StringFixed(1), ord.Status)
}

func (c *cli) printDepth(ctx context.Context, args []string) {
	levels := 5
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			fmt.Printf("bad level count %q\n", args[0])
			return
		}
		levels = n
	}
	depth, err := c.client.GetDepth(ctx, c.mgr.Symbol(), levels)
	if err != nil {
		fmt.Printf("depth query failed: %v\n", err)
		return
	}
	fmt.Println("asks:")
	for i := 0; i < levels && i < len(depth.Asks); i++ {
		fmt.Printf("  %s x %s\n", depth.Asks[i][0], depth.Asks[i][1])
	}
	fmt.Println("bids:")
	for i := 0; i < levels && i < len(depth.Bids); i++ {
		fmt.Printf("  %s x %s\n", depth.Bids[i][0], depth.Bids[i][1])
	}
}

func (c *cli) printFills(ctx context.Context, args []string) {
	limit := 20
	if len(args) == 1 {
		n, err := strconv.Atoi(args[0])
		if err != nil || n < 1 {
			fmt.Printf("bad fill limit %q\n", args[0])
			return
		}
		limit = n
	}
	fills, err := c.client.Fills(ctx, c.mgr.Symbol(), limit)
	if err != nil {
		fmt.Printf("fill query failed: %v\n", err)
		return
	}
	if len(fills) == 0 {
		fmt.Println("no fills")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ORDER\tSIDE\tPRICE\tQTY\tFEE\tMAKER")
	for _, fl := range fills {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s %s\t%v\n",
			fl.OrderID, fl.Side, fl.Price, fl.Quantity, fl.Fee, fl.FeeSymbol, fl.IsMaker)
	}
	w.Flush()
}

func (c *cli) printKlines(ctx context.Context, args []string) {
	if len(args) < 1 || len(args) > 2 {
		fmt.Println("usage: klines <interval> [limit], e.g. klines 1h 10")
		return
	}
	limit := 10
	if len(args) == 2 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n < 1 {
			fmt.Printf("bad kline limit %q\n", args[1])
			return
		}
		limit = n
	}
	klines, err := c.client.GetKlines(ctx, c.mgr.Symbol(), args[0], limit)
	if err != nil {
		fmt.Printf("kline query failed: %v\n", err)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "START\tOPEN\tHIGH\tLOW\tCLOSE\tVOLUME")
	for _, k := range klines {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", k.Start, k.Open, k.High, k.Low, k.Close, k.Volume)
	}
	w.Flush()
}

func (c *cli) printPositions() {
	positions := c.mgr.Positions.Positions()
	if len(positions) == 0 {
		fmt.Println("no open positions")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SYMBOL\tSIDE\tQTY\tENTRY\tMARK\tPNL\tPNL%")
	for _, p := range positions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.MarkPrice,
			p.UnrealizedPnL.StringFixed(2), p.PnLPercentage().StringFixed(2))
	}
	w.Flush()
	summary := c.mgr.Positions.Summary(c.cfg.QuoteAsset)
	fmt.Printf("portfolio value: %s %s, total pnl: %s\n",
		summary.PortfolioValue.StringFixed(2), c.cfg.QuoteAsset, summary.TotalPnL.StringFixed(2))
}

func (c *cli) printBalances() {
	balances := c.mgr.Positions.Balances()
	if len(balances) == 0 {
		fmt.Println("no balances")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ASSET\tFREE\tLOCKED\tSTAKED\tTOTAL")
	for _, b := range balances {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", b.Asset, b.Free, b.Locked, b.Staked, b.Total)
	}
	w.Flush()
}

func (c *cli) changeSymbol(ctx context.Context, args []string) {
	if len(args) != 1 {
		fmt.Println("usage: symbol <PAIR>, e.g. symbol BTC_USDC")
		return
	}
	symbol := strings.ToUpper(args[0])
	if _, _, ok := config.SplitSymbol(symbol); !ok {
		fmt.Printf("bad symbol %q, expected BASE_QUOTE\n", args[0])
		return
	}
	c.mgr.SetSymbol(symbol)
	if err := c.mgr.RefreshAll(ctx); err != nil {
		fmt.Printf("refresh after symbol change failed: %v\n", err)
	}
	fmt.Printf("switched to %s\n", symbol)
}
