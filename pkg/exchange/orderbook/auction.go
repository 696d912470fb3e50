package orderbook

import (
	"sort"

	"github.com/shopspring/decimal"
)

// level is one rung of the price ladder: the aggregate limit-buy and
// limit-sell quantity quoted at exactly this price.
type level struct {
	price   decimal.Decimal
	buyQty  int64
	sellQty int64
}

// buildLadder groups the limit orders on both sides by distinct price into
// an ascending ladder and returns the aggregate market-order quantity per
// side separately (market orders carry no price and sit outside the ladder).
func buildLadder(buys, sells []*Order) (ladder []level, marketBuyQty, marketSellQty int64) {
	index := make(map[string]int)

	rung := func(p decimal.Decimal) *level {
		key := p.String()
		if i, ok := index[key]; ok {
			return &ladder[i]
		}
		index[key] = len(ladder)
		ladder = append(ladder, level{price: p})
		return &ladder[len(ladder)-1]
	}

	for _, o := range buys {
		if o.IsMarket() {
			marketBuyQty += o.Qty
			continue
		}
		rung(o.Limit).buyQty += o.Qty
	}
	for _, o := range sells {
		if o.IsMarket() {
			marketSellQty += o.Qty
			continue
		}
		rung(o.Limit).sellQty += o.Qty
	}

	sort.Slice(ladder, func(i, j int) bool {
		return ladder[i].price.LessThan(ladder[j].price)
	})
	return ladder, marketBuyQty, marketSellQty
}

// clearingPrice computes the uniform auction price for one instrument.
//
// Walking the ladder ascending, sellAtOrBelow[i] is the sell volume willing
// to transact at or below rung i (seeded with market sells); walking it
// descending, buyAtOrAbove[i] is the buy volume willing to transact at or
// above rung i (seeded with market buys). The surplus at a rung is
// buyAtOrAbove − sellAtOrBelow, and because both curves are monotone the
// surplus is non-increasing in price. The clearing price is the lowest rung
// achieving the minimal non-negative surplus: the price that maximizes
// matched volume while demand still covers supply.
//
// When every rung leaves demand short (all surpluses negative) there is no
// crossing and the instrument's last quoted price is returned unchanged, as
// it is when the ladder is empty because only market orders are pending.
func clearingPrice(buys, sells []*Order, lastQuote decimal.Decimal) decimal.Decimal {
	ladder, marketBuyQty, marketSellQty := buildLadder(buys, sells)
	n := len(ladder)
	if n == 0 {
		return lastQuote
	}

	sellAtOrBelow := make([]int64, n)
	running := marketSellQty
	for i := 0; i < n; i++ {
		running += ladder[i].sellQty
		sellAtOrBelow[i] = running
	}

	buyAtOrAbove := make([]int64, n)
	running = marketBuyQty
	for i := n - 1; i >= 0; i-- {
		running += ladder[i].buyQty
		buyAtOrAbove[i] = running
	}

	best := -1
	var bestSurplus int64
	for i := 0; i < n; i++ {
		surplus := buyAtOrAbove[i] - sellAtOrBelow[i]
		if surplus < 0 {
			// Monotone: every higher rung is negative too.
			break
		}
		if best == -1 || surplus < bestSurplus {
			best = i
			bestSurplus = surplus
		}
	}
	if best == -1 {
		return lastQuote
	}
	return ladder[best].price
}

// executesAt reports whether the order is entitled to trade at the clearing
// price. Every variant is handled explicitly so a new order kind cannot
// slip through the eligibility test silently.
func executesAt(o *Order, clearing decimal.Decimal) bool {
	if o.IsMarket() {
		return true
	}
	switch o.Side {
	case Buy:
		return o.Limit.GreaterThanOrEqual(clearing)
	case Sell:
		return o.Limit.LessThanOrEqual(clearing)
	default:
		return false
	}
}
