package orderbook

import (
	"sort"
	"sync"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/callauction/exchange/pkg/exchange/pricefeed"
)

// Settler is the settlement callback contract at the trader boundary.
// Implementations must apply the cash/holdings mutation for the executed
// order at the clearing price, at most once per order, and reject orders
// they do not recognize as open.
type Settler interface {
	Settle(traderID string, o *Order, clearing decimal.Decimal) error
}

// SettlementFailure records one rejected settlement callback. Failures are
// per-order: they never abort the rest of a clearing pass.
type SettlementFailure struct {
	Order *Order
	Err   error
}

// Result is the outcome of clearing one instrument. It is transient,
// produced and consumed within a single matching pass.
type Result struct {
	Symbol        string
	Price         decimal.Decimal
	PriceChanged  bool
	ExecutedBuys  []*Order
	ExecutedSells []*Order
	Failures      []SettlementFailure
}

// PriceLevel is one aggregated rung of a book snapshot.
type PriceLevel struct {
	Price decimal.Decimal
	Qty   int64
}

// OrderBook holds the pending buy and sell orders per instrument and owns
// the uniform-price call auction that clears them.
//
// One mutex guards the pending collections. It is held for Submit and for
// the mutating part of Clear, but released before the price event is
// published and before any settlement callback runs, so trader state is
// never touched under the book lock.
type OrderBook struct {
	mu    sync.Mutex
	buys  map[string][]*Order
	sells map[string][]*Order

	quotes  pricefeed.PriceStore
	feed    *pricefeed.Feed
	settler Settler
	logger  *zap.SugaredLogger
}

func NewOrderBook(quotes pricefeed.PriceStore, feed *pricefeed.Feed, settler Settler, logger *zap.SugaredLogger) *OrderBook {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &OrderBook{
		buys:    make(map[string][]*Order),
		sells:   make(map[string][]*Order),
		quotes:  quotes,
		feed:    feed,
		settler: settler,
		logger:  logger,
	}
}

// Submit appends the order to the pending collection for its symbol and
// side, making it visible to the next matching pass. Affordability and
// ownership checks belong to the submitting trader, not the book.
func (ob *OrderBook) Submit(o *Order) {
	if o == nil {
		return
	}
	ob.mu.Lock()
	defer ob.mu.Unlock()

	switch o.Side {
	case Buy:
		ob.buys[o.Symbol] = append(ob.buys[o.Symbol], o)
	case Sell:
		ob.sells[o.Symbol] = append(ob.sells[o.Symbol], o)
	}
}

// Pending returns the number of pending buy and sell orders for symbol.
func (ob *OrderBook) Pending(symbol string) (buys, sells int) {
	ob.mu.Lock()
	defer ob.mu.Unlock()
	return len(ob.buys[symbol]), len(ob.sells[symbol])
}

// Snapshot returns the aggregated pending depth for symbol: bids sorted
// best (highest) first, asks sorted best (lowest) first, and the aggregate
// market-order quantity per side.
func (ob *OrderBook) Snapshot(symbol string) (bids, asks []PriceLevel, marketBuyQty, marketSellQty int64) {
	ob.mu.Lock()
	ladder, marketBuyQty, marketSellQty := buildLadder(ob.buys[symbol], ob.sells[symbol])
	ob.mu.Unlock()

	for _, lv := range ladder {
		if lv.buyQty > 0 {
			bids = append(bids, PriceLevel{Price: lv.price, Qty: lv.buyQty})
		}
		if lv.sellQty > 0 {
			asks = append(asks, PriceLevel{Price: lv.price, Qty: lv.sellQty})
		}
	}
	// ladder is ascending; bids are served best-first
	sort.Slice(bids, func(i, j int) bool { return bids[i].Price.GreaterThan(bids[j].Price) })
	return bids, asks, marketBuyQty, marketSellQty
}

// Clear runs the call auction for one instrument. It is a no-op (nil
// result) unless the symbol has pending orders on both sides; unmatched
// orders persist to the next pass.
//
// When the computed clearing price differs from the current quote, exactly
// one PriceChanged is published through the feed before any settlement
// callback fires. Every executed order is removed from the pending
// collections exactly once and settled exactly once; settlement failures
// are collected in the result and do not stop the pass.
func (ob *OrderBook) Clear(symbol string) (*Result, error) {
	ob.mu.Lock()
	buys := ob.buys[symbol]
	sells := ob.sells[symbol]
	if len(buys) == 0 || len(sells) == 0 {
		ob.mu.Unlock()
		return nil, nil
	}

	lastQuote, err := ob.quotes.QuotedPrice(symbol)
	if err != nil {
		ob.mu.Unlock()
		return nil, err
	}

	clearing := clearingPrice(buys, sells, lastQuote)

	// Execution order: market orders first, then limit buys with
	// limit >= clearing, then limit sells with limit <= clearing.
	// Full quantity, no volume balancing: aggregate executed buy and sell
	// volume may differ at the clearing price.
	var marketFills, buyFills, sellFills []*Order
	remBuys := buys[:0:0]
	for _, o := range buys {
		if !executesAt(o, clearing) {
			remBuys = append(remBuys, o)
		} else if o.IsMarket() {
			marketFills = append(marketFills, o)
		} else {
			buyFills = append(buyFills, o)
		}
	}
	remSells := sells[:0:0]
	for _, o := range sells {
		if !executesAt(o, clearing) {
			remSells = append(remSells, o)
		} else if o.IsMarket() {
			marketFills = append(marketFills, o)
		} else {
			sellFills = append(sellFills, o)
		}
	}

	ob.setPending(ob.buys, symbol, remBuys)
	ob.setPending(ob.sells, symbol, remSells)
	ob.mu.Unlock()

	res := &Result{Symbol: symbol, Price: clearing}
	for _, o := range marketFills {
		if o.Side == Buy {
			res.ExecutedBuys = append(res.ExecutedBuys, o)
		} else {
			res.ExecutedSells = append(res.ExecutedSells, o)
		}
	}
	res.ExecutedBuys = append(res.ExecutedBuys, buyFills...)
	res.ExecutedSells = append(res.ExecutedSells, sellFills...)

	if !clearing.Equal(lastQuote) {
		res.PriceChanged = true
		if err := ob.feed.SetPrice(ob.quotes, symbol, clearing); err != nil {
			return nil, err
		}
	}

	for _, fills := range [][]*Order{marketFills, buyFills, sellFills} {
		for _, o := range fills {
			if err := ob.settler.Settle(o.TraderID, o, clearing); err != nil {
				res.Failures = append(res.Failures, SettlementFailure{Order: o, Err: err})
				ob.logger.Warnw("settlement_rejected",
					"symbol", symbol, "order", o.ID, "trader", o.TraderID, "err", err)
			}
		}
	}

	ob.logger.Infow("instrument_cleared",
		"symbol", symbol,
		"clearing_price", clearing.String(),
		"price_changed", res.PriceChanged,
		"executed_buys", len(res.ExecutedBuys),
		"executed_sells", len(res.ExecutedSells),
		"failures", len(res.Failures))
	return res, nil
}

func (ob *OrderBook) setPending(side map[string][]*Order, symbol string, rem []*Order) {
	if len(rem) == 0 {
		delete(side, symbol)
		return
	}
	side[symbol] = rem
}

// ClearAll runs one matching pass: every instrument with pending interest
// on both sides is cleared, sequentially, in symbol order. Per-order
// settlement failures are carried inside each result; only quote-store
// errors abort the pass.
func (ob *OrderBook) ClearAll() ([]*Result, error) {
	ob.mu.Lock()
	symbols := make([]string, 0, len(ob.buys))
	for sym := range ob.buys {
		if len(ob.buys[sym]) > 0 && len(ob.sells[sym]) > 0 {
			symbols = append(symbols, sym)
		}
	}
	ob.mu.Unlock()
	sort.Strings(symbols)

	var results []*Result
	for _, sym := range symbols {
		res, err := ob.Clear(sym)
		if err != nil {
			return results, err
		}
		if res != nil {
			results = append(results, res)
		}
	}
	return results, nil
}
