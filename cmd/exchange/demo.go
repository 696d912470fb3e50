package main

import (
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/callauction/exchange/pkg/exchange/market"
	"github.com/callauction/exchange/pkg/exchange/orderbook"
	"github.com/callauction/exchange/pkg/exchange/trader"
)

// seedDemo lists a handful of instruments and funds sample traders, then
// loads the SBUX book with a crossing ladder on both sides so the first
// matching pass produces a visible clearing. Everything goes through the
// public interfaces; nothing here touches core state directly.
func seedDemo(reg *market.Registry, book *orderbook.OrderBook, dir *trader.Directory, sugar *zap.SugaredLogger) error {
	instruments := []struct {
		symbol, name string
		ipo          string
	}{
		{"SBUX", "Starbucks Corp.", "92.86"},
		{"TWTR", "Twitter Inc.", "47.88"},
		{"VSLR", "Vivint Solar", "16.44"},
		{"GILD", "Gilead Sciences", "93.33"},
		{"BABA", "Alibaba", "84.88"},
		{"BIDU", "Baidu", "253.66"},
	}
	for _, ins := range instruments {
		price, err := decimal.NewFromString(ins.ipo)
		if err != nil {
			return err
		}
		if err := reg.Register(ins.symbol, ins.name, price); err != nil {
			return err
		}
	}

	type seedTrader struct {
		id, name string
		cash     string
		bankBuy  int64  // SBUX bought straight from the bank
		side     string // "sell", "buy", "market-sell", "market-buy"
		qty      int64
		limit    string
	}
	seeds := []seedTrader{
		{"T01", "Alice", "200000", 1600, "sell", 100, "97.0"},
		{"T02", "Ben", "100000", 300, "sell", 300, "97.5"},
		{"T03", "Carol", "100000", 300, "sell", 300, "98.0"},
		{"T04", "Dan", "100000", 300, "sell", 300, "98.5"},
		{"T05", "Erin", "100000", 600, "sell", 500, "99.0"},
		{"T06", "Frank", "100000", 700, "sell", 700, "99.5"},
		{"T07", "Grace", "100000", 500, "sell", 500, "100.0"},
		{"T08", "Heidi", "300000", 1500, "market-sell", 1500, ""},
		{"T09", "Ivan", "100000", 0, "buy", 200, "101.0"},
		{"T10", "Judy", "100000", 0, "buy", 300, "100.5"},
		{"T11", "Ken", "100000", 0, "buy", 400, "100.0"},
		{"T12", "Lena", "100000", 0, "buy", 500, "99.5"},
		{"T13", "Mike", "100000", 0, "buy", 900, "99.0"},
		{"T14", "Nina", "100000", 0, "buy", 1000, "98.5"},
		{"T15", "Oscar", "100000", 0, "buy", 900, "98.0"},
		{"T16", "Peggy", "300000", 0, "market-buy", 700, ""},
	}

	for _, seed := range seeds {
		cash, err := decimal.NewFromString(seed.cash)
		if err != nil {
			return err
		}
		t := trader.New(seed.id, seed.name, cash)
		if err := dir.Register(t); err != nil {
			return err
		}

		if seed.bankBuy > 0 {
			if err := t.BuyFromBank(reg, "SBUX", seed.bankBuy); err != nil {
				return fmt.Errorf("%s bank buy: %w", seed.name, err)
			}
		}

		switch seed.side {
		case "sell", "buy":
			side := orderbook.Sell
			if seed.side == "buy" {
				side = orderbook.Buy
			}
			limit, err := decimal.NewFromString(seed.limit)
			if err != nil {
				return err
			}
			if err := t.PlaceOrder(book, reg, "SBUX", side, seed.qty, limit); err != nil {
				return fmt.Errorf("%s order: %w", seed.name, err)
			}
		case "market-sell":
			if err := t.PlaceMarketOrder(book, reg, "SBUX", orderbook.Sell, seed.qty); err != nil {
				return fmt.Errorf("%s market order: %w", seed.name, err)
			}
		case "market-buy":
			if err := t.PlaceMarketOrder(book, reg, "SBUX", orderbook.Buy, seed.qty); err != nil {
				return fmt.Errorf("%s market order: %w", seed.name, err)
			}
		}
	}

	buys, sells := book.Pending("SBUX")
	sugar.Infow("demo_seeded",
		"instruments", len(instruments),
		"traders", len(seeds),
		"sbux_pending_buys", buys,
		"sbux_pending_sells", sells)
	return nil
}
