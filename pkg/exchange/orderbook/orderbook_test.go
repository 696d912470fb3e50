package orderbook

import (
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/callauction/exchange/pkg/exchange/pricefeed"
)

// stubQuotes is a minimal in-memory pricefeed.PriceStore.
type stubQuotes struct {
	prices map[string]decimal.Decimal
}

func newStubQuotes(symbol, price string) *stubQuotes {
	return &stubQuotes{prices: map[string]decimal.Decimal{symbol: dec(price)}}
}

func (s *stubQuotes) QuotedPrice(symbol string) (decimal.Decimal, error) {
	p, ok := s.prices[symbol]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("no quote for %s", symbol)
	}
	return p, nil
}

func (s *stubQuotes) SetPrice(symbol string, price decimal.Decimal) error {
	s.prices[symbol] = price
	return nil
}

// journal records price events and settlements in arrival order so tests
// can assert cross-component ordering.
type journal struct {
	entries []string
	events  []pricefeed.PriceChanged
	reject  map[string]error // order ID -> forced settlement error
	settled map[string]int   // order ID -> settle count
}

func newJournal() *journal {
	return &journal{reject: make(map[string]error), settled: make(map[string]int)}
}

func (j *journal) OnPriceChanged(ev pricefeed.PriceChanged) {
	j.entries = append(j.entries, "price:"+ev.Symbol)
	j.events = append(j.events, ev)
}

func (j *journal) Settle(traderID string, o *Order, clearing decimal.Decimal) error {
	j.entries = append(j.entries, "settle:"+o.ID)
	if err, ok := j.reject[o.ID]; ok {
		return err
	}
	j.settled[o.ID]++
	return nil
}

func newTestBook(symbol, quote string) (*OrderBook, *stubQuotes, *journal) {
	quotes := newStubQuotes(symbol, quote)
	feed := pricefeed.NewFeed()
	j := newJournal()
	feed.Subscribe(j)
	return NewOrderBook(quotes, feed, j, nil), quotes, j
}

func submitAll(ob *OrderBook, symbol string, orders ...*Order) {
	for i, o := range orders {
		if o.ID == "" {
			o.ID = fmt.Sprintf("o%d", i+1)
		}
		o.Symbol = symbol
		ob.Submit(o)
	}
}

func TestClearOneSidedIsNoOp(t *testing.T) {
	tests := []struct {
		name   string
		orders []*Order
	}{
		{"buys only", []*Order{limitOrder(Buy, 100, "99"), marketOrder(Buy, 50)}},
		{"sells only", []*Order{limitOrder(Sell, 100, "99")}},
		{"nothing pending", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ob, quotes, j := newTestBook("SBUX", "92.86")
			submitAll(ob, "SBUX", tt.orders...)

			res, err := ob.Clear("SBUX")
			if err != nil {
				t.Fatalf("Clear: %v", err)
			}
			if res != nil {
				t.Fatalf("expected no-op, got result %+v", res)
			}
			if !quotes.prices["SBUX"].Equal(dec("92.86")) {
				t.Errorf("quote moved to %s on a no-op", quotes.prices["SBUX"])
			}
			if len(j.entries) != 0 {
				t.Errorf("unexpected side effects: %v", j.entries)
			}
			buys, sells := ob.Pending("SBUX")
			if buys+sells != len(tt.orders) {
				t.Errorf("pending = %d, want %d", buys+sells, len(tt.orders))
			}
		})
	}
}

func TestClearWorkedScenario(t *testing.T) {
	ob, quotes, j := newTestBook("SBUX", "92.86")

	buys := []*Order{
		{ID: "b1", Side: Buy, Qty: 200, Limit: dec("101.0")},
		{ID: "b2", Side: Buy, Qty: 300, Limit: dec("100.5")},
		{ID: "b3", Side: Buy, Qty: 400, Limit: dec("100.0")},
		{ID: "b4", Side: Buy, Qty: 500, Limit: dec("99.5")},
		{ID: "b5", Side: Buy, Qty: 900, Limit: dec("99.0")},
		{ID: "b6", Side: Buy, Qty: 1000, Limit: dec("98.5")},
		{ID: "b7", Side: Buy, Qty: 900, Limit: dec("98.0")},
		{ID: "bm", Side: Buy, Qty: 700},
	}
	sells := []*Order{
		{ID: "s1", Side: Sell, Qty: 100, Limit: dec("97.0")},
		{ID: "s2", Side: Sell, Qty: 300, Limit: dec("97.5")},
		{ID: "s3", Side: Sell, Qty: 300, Limit: dec("98.0")},
		{ID: "s4", Side: Sell, Qty: 300, Limit: dec("98.5")},
		{ID: "s5", Side: Sell, Qty: 500, Limit: dec("99.0")},
		{ID: "s6", Side: Sell, Qty: 700, Limit: dec("99.5")},
		{ID: "s7", Side: Sell, Qty: 500, Limit: dec("100.0")},
		{ID: "sm", Side: Sell, Qty: 1500},
	}
	submitAll(ob, "SBUX", buys...)
	submitAll(ob, "SBUX", sells...)

	res, err := ob.Clear("SBUX")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if res == nil {
		t.Fatal("expected a result")
	}

	if !res.Price.Equal(dec("99.0")) {
		t.Fatalf("clearing price = %s, want 99.0", res.Price)
	}
	if !quotes.prices["SBUX"].Equal(dec("99.0")) {
		t.Errorf("quote = %s, want 99.0", quotes.prices["SBUX"])
	}

	// Every market order, every limit buy at or above 99.0, every limit
	// sell at or below 99.0 executes for its full quantity.
	wantExecuted := []string{"bm", "b1", "b2", "b3", "b4", "b5", "sm", "s1", "s2", "s3", "s4", "s5"}
	for _, id := range wantExecuted {
		if j.settled[id] != 1 {
			t.Errorf("order %s settled %d times, want exactly 1", id, j.settled[id])
		}
	}
	wantResting := []string{"b6", "b7", "s6", "s7"}
	for _, id := range wantResting {
		if j.settled[id] != 0 {
			t.Errorf("order %s settled but its limit does not satisfy the price test", id)
		}
	}

	pendingBuys, pendingSells := ob.Pending("SBUX")
	if pendingBuys != 2 || pendingSells != 2 {
		t.Errorf("pending = %d/%d, want 2/2", pendingBuys, pendingSells)
	}

	// Exactly one PriceChanged, old price = the pre-clearing quote, and it
	// precedes every settlement callback.
	if len(j.events) != 1 {
		t.Fatalf("got %d price events, want 1", len(j.events))
	}
	if !j.events[0].Old.Equal(dec("92.86")) || !j.events[0].New.Equal(dec("99.0")) {
		t.Errorf("event = %s -> %s, want 92.86 -> 99.0", j.events[0].Old, j.events[0].New)
	}
	if len(j.entries) == 0 || j.entries[0] != "price:SBUX" {
		t.Errorf("first side effect = %v, want the price event before any settlement", j.entries)
	}

	// Market orders settle before limit orders.
	var settleOrder []string
	for _, e := range j.entries {
		if len(e) > 7 && e[:7] == "settle:" {
			settleOrder = append(settleOrder, e[7:])
		}
	}
	if len(settleOrder) != len(wantExecuted) {
		t.Fatalf("settled %d orders, want %d", len(settleOrder), len(wantExecuted))
	}
	if settleOrder[0] != "bm" || settleOrder[1] != "sm" {
		t.Errorf("market orders must settle first, got %v", settleOrder[:2])
	}
}

func TestClearIdempotent(t *testing.T) {
	ob, quotes, j := newTestBook("SBUX", "92.86")
	submitAll(ob, "SBUX",
		&Order{ID: "b1", Side: Buy, Qty: 100, Limit: dec("100")},
		&Order{ID: "b2", Side: Buy, Qty: 100, Limit: dec("90")},
		&Order{ID: "s1", Side: Sell, Qty: 100, Limit: dec("95")},
	)

	if _, err := ob.Clear("SBUX"); err != nil {
		t.Fatalf("first Clear: %v", err)
	}
	priceAfter := quotes.prices["SBUX"]
	entriesAfter := len(j.entries)

	res, err := ob.Clear("SBUX")
	if err != nil {
		t.Fatalf("second Clear: %v", err)
	}
	if res != nil {
		t.Fatalf("second Clear executed something: %+v", res)
	}
	if !quotes.prices["SBUX"].Equal(priceAfter) {
		t.Errorf("second Clear moved the price: %s -> %s", priceAfter, quotes.prices["SBUX"])
	}
	if len(j.entries) != entriesAfter {
		t.Errorf("second Clear produced side effects: %v", j.entries[entriesAfter:])
	}
}

func TestClearCollectsSettlementFailures(t *testing.T) {
	ob, _, j := newTestBook("SBUX", "92.86")
	j.reject["b1"] = errors.New("order not among open orders")

	submitAll(ob, "SBUX",
		&Order{ID: "b1", Side: Buy, Qty: 100, Limit: dec("95"), TraderID: "T1"},
		&Order{ID: "s1", Side: Sell, Qty: 100, Limit: dec("95"), TraderID: "T2"},
	)

	res, err := ob.Clear("SBUX")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if len(res.Failures) != 1 || res.Failures[0].Order.ID != "b1" {
		t.Fatalf("failures = %+v, want exactly b1", res.Failures)
	}
	// The pass completes: the other order still settles, both leave the book.
	if j.settled["s1"] != 1 {
		t.Errorf("s1 settled %d times, want 1", j.settled["s1"])
	}
	buys, sells := ob.Pending("SBUX")
	if buys != 0 || sells != 0 {
		t.Errorf("pending = %d/%d after clearing, want 0/0", buys, sells)
	}
}

// Full-quantity execution is not volume-balanced: both sides execute in
// full even when aggregate quantities differ. The imbalance is inherited
// behavior, asserted here so a "fix" cannot slip in silently.
func TestClearExecutesFullQuantityWithoutBalancing(t *testing.T) {
	ob, _, j := newTestBook("SBUX", "100")
	submitAll(ob, "SBUX",
		&Order{ID: "b1", Side: Buy, Qty: 500, Limit: dec("101")},
		&Order{ID: "s1", Side: Sell, Qty: 100, Limit: dec("99")},
	)

	res, err := ob.Clear("SBUX")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}

	var buyQty, sellQty int64
	for _, o := range res.ExecutedBuys {
		buyQty += o.Qty
	}
	for _, o := range res.ExecutedSells {
		sellQty += o.Qty
	}
	if buyQty != 500 || sellQty != 100 {
		t.Fatalf("executed %d/%d, want full quantities 500/100", buyQty, sellQty)
	}
	if j.settled["b1"] != 1 || j.settled["s1"] != 1 {
		t.Errorf("settle counts = %v, want one each", j.settled)
	}
}

func TestClearAll(t *testing.T) {
	quotes := &stubQuotes{prices: map[string]decimal.Decimal{
		"AAA": dec("10"),
		"BBB": dec("20"),
		"CCC": dec("30"),
	}}
	feed := pricefeed.NewFeed()
	j := newJournal()
	feed.Subscribe(j)
	ob := NewOrderBook(quotes, feed, j, nil)

	// AAA crosses, BBB is one-sided, CCC crosses.
	submitAll(ob, "AAA",
		&Order{ID: "a1", Side: Buy, Qty: 10, Limit: dec("11")},
		&Order{ID: "a2", Side: Sell, Qty: 10, Limit: dec("9")},
	)
	submitAll(ob, "BBB", &Order{ID: "x1", Side: Buy, Qty: 10, Limit: dec("21")})
	submitAll(ob, "CCC",
		&Order{ID: "c1", Side: Buy, Qty: 5, Limit: dec("31")},
		&Order{ID: "c2", Side: Sell, Qty: 5, Limit: dec("29")},
	)

	results, err := ob.ClearAll()
	if err != nil {
		t.Fatalf("ClearAll: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("cleared %d instruments, want 2", len(results))
	}
	if results[0].Symbol != "AAA" || results[1].Symbol != "CCC" {
		t.Errorf("cleared %s/%s, want AAA/CCC in symbol order", results[0].Symbol, results[1].Symbol)
	}
	if buys, _ := ob.Pending("BBB"); buys != 1 {
		t.Errorf("one-sided BBB should keep its pending buy")
	}
}

func TestSnapshotAggregatesByPrice(t *testing.T) {
	ob, _, _ := newTestBook("SBUX", "92.86")
	submitAll(ob, "SBUX",
		&Order{ID: "b1", Side: Buy, Qty: 100, Limit: dec("99")},
		&Order{ID: "b2", Side: Buy, Qty: 200, Limit: dec("99")},
		&Order{ID: "b3", Side: Buy, Qty: 50, Limit: dec("98")},
		&Order{ID: "bm", Side: Buy, Qty: 700},
		&Order{ID: "s1", Side: Sell, Qty: 300, Limit: dec("100")},
		&Order{ID: "sm", Side: Sell, Qty: 40},
	)

	bids, asks, marketBuyQty, marketSellQty := ob.Snapshot("SBUX")
	if marketBuyQty != 700 || marketSellQty != 40 {
		t.Errorf("market qty = %d/%d, want 700/40", marketBuyQty, marketSellQty)
	}
	if len(bids) != 2 || !bids[0].Price.Equal(dec("99")) || bids[0].Qty != 300 {
		t.Errorf("bids = %+v, want best-first [99x300 98x50]", bids)
	}
	if len(asks) != 1 || !asks[0].Price.Equal(dec("100")) || asks[0].Qty != 300 {
		t.Errorf("asks = %+v, want [100x300]", asks)
	}
}
