// Command conncheck verifies API connectivity end to end: public market
// data first, then a signed balance query to prove the credentials work.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sbarrientos2/backpack-CLI-bot/internal/config"
	"github.com/sbarrientos2/backpack-CLI-bot/internal/exchange/backpack"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "optional config yaml path")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	client, err := backpack.New(backpack.Options{
		APIKey:         cfg.APIKey,
		APISecret:      cfg.APISecret,
		BaseURL:        cfg.BaseURL,
		WindowMs:       cfg.Exchange.WindowMs,
		HTTPTimeoutSec: cfg.Exchange.HTTPTimeoutSec,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	failed := 0

	markets, err := client.Markets(ctx)
	if err != nil {
		fmt.Printf("FAIL public market list: %v\n", err)
		failed++
	} else {
		fmt.Printf("ok   public market list: %d markets\n", len(markets))
	}

	price, err := client.TickerPrice(ctx, cfg.Symbol)
	if err != nil {
		fmt.Printf("FAIL public ticker %s: %v\n", cfg.Symbol, err)
		failed++
	} else {
		fmt.Printf("ok   public ticker %s: last price %s\n", cfg.Symbol, price)
	}

	spec, err := client.GetMarket(ctx, cfg.Symbol)
	if err != nil {
		fmt.Printf("FAIL market precision %s: %v\n", cfg.Symbol, err)
		failed++
	} else {
		fmt.Printf("ok   market precision %s: tick %s, step %s\n", cfg.Symbol, spec.TickSize, spec.StepSize)
	}

	balances, err := client.Balances(ctx)
	if err != nil {
		fmt.Printf("FAIL signed balance query: %v\n", err)
		failed++
	} else {
		fmt.Printf("ok   signed balance query: %d assets\n", len(balances))
	}

	orders, err := client.OpenOrders(ctx, cfg.Symbol)
	if err != nil {
		fmt.Printf("FAIL signed open orders %s: %v\n", cfg.Symbol, err)
		failed++
	} else {
		fmt.Printf("ok   signed open orders %s: %d open\n", cfg.Symbol, len(orders))
	}

	if failed > 0 {
		fmt.Printf("\n%d check(s) failed\n", failed)
		os.Exit(1)
	}
	fmt.Println("\nall checks passed")
}
