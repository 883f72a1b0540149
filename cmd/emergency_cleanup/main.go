// emergency_cleanup cancels every resting order and liquidates any broker
// position for the configured tickers. It is the manual recovery path when
// the runner dies with orders or shares outstanding.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"trade-executor-go/config"
	"trade-executor-go/gateway"
	"trade-executor-go/order"
)

func main() {
	cfgPath := flag.String("config", "configs/config.yaml", "config file path")
	only := flag.String("ticker", "", "clean a single ticker instead of all")
	flag.Parse()

	cfg, err := config.LoadWithEnvOverrides(*cfgPath)
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}

	broker := gateway.NewRESTBroker(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.APISecret)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	failures := 0
	for ticker := range cfg.Assignments {
		if *only != "" && ticker != *only {
			continue
		}
		if err := cleanup(ctx, broker, ticker); err != nil {
			log.Printf("%s: %v", ticker, err)
			failures++
		}
	}
	if failures > 0 {
		log.Fatalf("%d ticker(s) failed, rerun after checking the broker", failures)
	}
	fmt.Println("cleanup complete")
}

func cleanup(ctx context.Context, broker *gateway.RESTBroker, ticker string) error {
	ids, err := broker.OpenOrders(ctx, ticker)
	if err != nil {
		return fmt.Errorf("list open orders: %w", err)
	}
	for _, id := range ids {
		if err := broker.CancelOrder(ctx, ticker, id); err != nil {
			return fmt.Errorf("cancel order %d: %w", id, err)
		}
		fmt.Printf("%s: cancelled order %d\n", ticker, id)
	}

	held, err := broker.BrokerPosition(ctx, ticker)
	if err != nil {
		return fmt.Errorf("fetch position: %w", err)
	}
	if held == 0 {
		fmt.Printf("%s: flat\n", ticker)
		return nil
	}

	bid, ask, err := broker.Quote(ctx, ticker)
	if err != nil {
		return fmt.Errorf("fetch quote: %w", err)
	}

	// Selling at the bid / buying at the ask fills immediately.
	action := order.ActionSell
	price := bid
	size := float64(held)
	if held < 0 {
		action = order.ActionBuy
		price = ask
		size = float64(-held)
	}
	if price <= 0 {
		return fmt.Errorf("no usable quote (bid=%.2f ask=%.2f)", bid, ask)
	}

	o := order.New(broker.NextOrderID(), order.TypeEmergencyExit, action, size, price)
	spec := gateway.BuildSpec(ticker, o, time.Now())
	if err := broker.PlaceOrder(ctx, spec); err != nil {
		return fmt.Errorf("place liquidation order: %w", err)
	}
	fmt.Printf("%s: liquidating %d shares (%s @ %.2f)\n", ticker, held, action, price)
	return nil
}
