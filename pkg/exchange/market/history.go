package market

import (
	"sync"

	"github.com/callauction/exchange/pkg/exchange/pricefeed"
)

// History is the in-memory price history: an append-only, chronologically
// ordered log of PriceChanged events per instrument. It subscribes to the
// price feed and records every event exactly once, in publication order.
type History struct {
	mu     sync.RWMutex
	events map[string][]pricefeed.PriceChanged
}

func NewHistory() *History {
	return &History{events: make(map[string][]pricefeed.PriceChanged)}
}

// OnPriceChanged implements pricefeed.Listener.
func (h *History) OnPriceChanged(ev pricefeed.PriceChanged) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events[ev.Symbol] = append(h.events[ev.Symbol], ev)
}

// For returns a copy of the recorded events for symbol, oldest first.
func (h *History) For(symbol string) []pricefeed.PriceChanged {
	h.mu.RLock()
	defer h.mu.RUnlock()

	src := h.events[symbol]
	out := make([]pricefeed.PriceChanged, len(src))
	copy(out, src)
	return out
}

// Len returns the number of recorded events for symbol.
func (h *History) Len(symbol string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events[symbol])
}

var _ pricefeed.Listener = (*History)(nil)
