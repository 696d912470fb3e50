package orderbook

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return "unknown"
	}
}

// Order is a trading intent, immutable once submitted.
// A zero Limit marks a market order: no price bound, always executed at
// whatever price the auction determines.
type Order struct {
	ID       string
	Symbol   string
	Side     Side
	Qty      int64           // always > 0, enforced at placement
	Limit    decimal.Decimal // zero = market order
	TraderID string          // non-owning reference, resolved via the settler
}

// IsMarket reports whether the order carries no price bound.
func (o *Order) IsMarket() bool {
	return o.Limit.IsZero()
}

func (o *Order) String() string {
	if o.IsMarket() {
		return fmt.Sprintf("%s{%s %s x%d market by %s}", o.ID, o.Side, o.Symbol, o.Qty, o.TraderID)
	}
	return fmt.Sprintf("%s{%s %s x%d @%s by %s}", o.ID, o.Side, o.Symbol, o.Qty, o.Limit, o.TraderID)
}
