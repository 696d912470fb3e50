package trader

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"

	"github.com/callauction/exchange/pkg/exchange/market"
	"github.com/callauction/exchange/pkg/exchange/orderbook"
)

var (
	// ErrInsufficientFunds rejects a buy the trader cannot pay for.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrDuplicateOpenOrder rejects a second open order for the same symbol.
	ErrDuplicateOpenOrder = errors.New("open order already exists for symbol")
	// ErrUnownedOrUndersizedSale rejects a sell of shares the trader does
	// not hold in sufficient quantity.
	ErrUnownedOrUndersizedSale = errors.New("sale exceeds owned quantity")
	// ErrUnknownOrder rejects a settlement callback for an order the trader
	// does not list as open.
	ErrUnknownOrder = errors.New("order not among open orders")
)

var orderSeq atomic.Int64

// Trader holds cash and per-symbol holdings, tracks its open orders, and
// applies settlements delivered by the matching engine. All validation of
// a submission (affordability, duplicates, share sufficiency) happens here,
// before the order reaches the book; the book performs none.
type Trader struct {
	ID   string
	Name string

	mu       sync.Mutex
	cash     decimal.Decimal
	holdings map[string]int64
	open     []*orderbook.Order
}

func New(id, name string, cash decimal.Decimal) *Trader {
	return &Trader{
		ID:       id,
		Name:     name,
		cash:     cash,
		holdings: make(map[string]int64),
	}
}

// Cash returns the trader's current cash in hand.
func (t *Trader) Cash() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cash
}

// Holding returns the owned quantity for symbol.
func (t *Trader) Holding(symbol string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.holdings[symbol]
}

// Holdings returns a copy of every non-zero holding.
func (t *Trader) Holdings() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make(map[string]int64, len(t.holdings))
	for sym, qty := range t.holdings {
		if qty != 0 {
			out[sym] = qty
		}
	}
	return out
}

// OpenOrders returns a copy of the open-order list, oldest first.
func (t *Trader) OpenOrders() []*orderbook.Order {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*orderbook.Order, len(t.open))
	copy(out, t.open)
	return out
}

// BuyFromBank buys shares at the current quote straight into the trader's
// holdings, bypassing the book. Used to bootstrap positions.
func (t *Trader) BuyFromBank(reg *market.Registry, symbol string, qty int64) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}
	quote, err := reg.QuotedPrice(symbol)
	if err != nil {
		return err
	}
	cost := quote.Mul(decimal.NewFromInt(qty))

	t.mu.Lock()
	defer t.mu.Unlock()

	if cost.GreaterThan(t.cash) {
		return fmt.Errorf("%s buying %d %s at %s: %w", t.Name, qty, symbol, quote, ErrInsufficientFunds)
	}
	t.cash = t.cash.Sub(cost)
	t.holdings[symbol] += qty
	return nil
}

// PlaceOrder validates and submits a limit order. The order becomes visible
// to the next matching pass; no trade happens until the instrument clears.
func (t *Trader) PlaceOrder(bk *orderbook.OrderBook, reg *market.Registry, symbol string, side orderbook.Side, qty int64, limit decimal.Decimal) error {
	if !limit.IsPositive() {
		return fmt.Errorf("limit price must be positive, got %s", limit)
	}
	if _, err := reg.Get(symbol); err != nil {
		return err
	}
	return t.place(bk, symbol, side, qty, limit, limit)
}

// PlaceMarketOrder validates and submits a market order: no price bound,
// affordability checked against the current quote.
func (t *Trader) PlaceMarketOrder(bk *orderbook.OrderBook, reg *market.Registry, symbol string, side orderbook.Side, qty int64) error {
	quote, err := reg.QuotedPrice(symbol)
	if err != nil {
		return err
	}
	return t.place(bk, symbol, side, qty, decimal.Decimal{}, quote)
}

// place runs the submission-time checks under the trader lock, then hands
// the order to the book. costBasis is the price the affordability check
// uses: the limit for limit buys, the current quote for market buys.
func (t *Trader) place(bk *orderbook.OrderBook, symbol string, side orderbook.Side, qty int64, limit, costBasis decimal.Decimal) error {
	if qty <= 0 {
		return fmt.Errorf("quantity must be positive, got %d", qty)
	}
	if side != orderbook.Buy && side != orderbook.Sell {
		return fmt.Errorf("invalid side %d", side)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, o := range t.open {
		if o.Symbol == symbol {
			return fmt.Errorf("%s on %s: %w", t.Name, symbol, ErrDuplicateOpenOrder)
		}
	}

	switch side {
	case orderbook.Buy:
		cost := costBasis.Mul(decimal.NewFromInt(qty))
		if cost.GreaterThan(t.cash) {
			return fmt.Errorf("%s buying %d %s: need %s, have %s: %w",
				t.Name, qty, symbol, cost, t.cash, ErrInsufficientFunds)
		}
	case orderbook.Sell:
		if t.holdings[symbol] < qty {
			return fmt.Errorf("%s selling %d %s, owns %d: %w",
				t.Name, qty, symbol, t.holdings[symbol], ErrUnownedOrUndersizedSale)
		}
	}

	o := &orderbook.Order{
		ID:       fmt.Sprintf("%s-%s-%d", t.ID, symbol, orderSeq.Add(1)),
		Symbol:   symbol,
		Side:     side,
		Qty:      qty,
		Limit:    limit,
		TraderID: t.ID,
	}
	bk.Submit(o)
	t.open = append(t.open, o)
	return nil
}

// Settle applies one executed order at the clearing price: a sell adds
// clearing × qty cash and removes the quantity from holdings, a buy does
// the reverse. The order leaves the open-order list; settling it again
// fails with ErrUnknownOrder and mutates nothing.
//
// A market buy cleared above the quote it was validated against can push
// cash negative; that imbalance is inherited from full-quantity execution
// and deliberately not corrected here.
func (t *Trader) Settle(o *orderbook.Order, clearing decimal.Decimal) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	idx := -1
	for i, open := range t.open {
		if open.ID == o.ID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%s settling %s: %w", t.Name, o.ID, ErrUnknownOrder)
	}

	notional := clearing.Mul(decimal.NewFromInt(o.Qty))
	switch o.Side {
	case orderbook.Sell:
		t.cash = t.cash.Add(notional)
		t.holdings[o.Symbol] -= o.Qty
	case orderbook.Buy:
		t.cash = t.cash.Sub(notional)
		t.holdings[o.Symbol] += o.Qty
	default:
		return fmt.Errorf("%s settling %s: invalid side %d", t.Name, o.ID, o.Side)
	}

	t.open = append(t.open[:idx], t.open[idx+1:]...)
	return nil
}

// Symbols returns the symbols of all non-zero holdings, sorted.
func (t *Trader) Symbols() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.holdings))
	for sym, qty := range t.holdings {
		if qty != 0 {
			out = append(out, sym)
		}
	}
	sort.Strings(out)
	return out
}
