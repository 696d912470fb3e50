package pricefeed

import (
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// PriceChanged is the single event type carried by the feed.
// Old is the quote before the matching pass, New the uniform clearing price.
type PriceChanged struct {
	Symbol string          `json:"symbol"`
	Old    decimal.Decimal `json:"old"`
	New    decimal.Decimal `json:"new"`
	At     time.Time       `json:"at"`
}

// Listener receives every published event exactly once, in publication order.
// Delivery is fire-and-forget: the feed never waits for acknowledgment.
type Listener interface {
	OnPriceChanged(PriceChanged)
}

// PriceStore is the quote read/write surface the feed updates before
// notifying listeners. The market registry satisfies it.
type PriceStore interface {
	QuotedPrice(symbol string) (decimal.Decimal, error)
	SetPrice(symbol string, price decimal.Decimal) error
}

// Feed is an in-process publish/subscribe channel for price changes.
// The matching engine is the sole publisher.
type Feed struct {
	mu        sync.RWMutex
	listeners []Listener
}

func NewFeed() *Feed {
	return &Feed{}
}

// Subscribe registers a listener. Listeners registered mid-stream see only
// events published after registration.
func (f *Feed) Subscribe(l Listener) {
	if l == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, l)
}

// Publish delivers ev to every listener, synchronously, in subscription order.
func (f *Feed) Publish(ev PriceChanged) {
	f.mu.RLock()
	listeners := make([]Listener, len(f.listeners))
	copy(listeners, f.listeners)
	f.mu.RUnlock()

	for _, l := range listeners {
		l.OnPriceChanged(ev)
	}
}

// SetPrice writes the new quote through the store and then publishes the
// corresponding PriceChanged. The store write happens first so a listener
// reading the registry during delivery sees the post-change quote.
func (f *Feed) SetPrice(store PriceStore, symbol string, newPrice decimal.Decimal) error {
	old, err := store.QuotedPrice(symbol)
	if err != nil {
		return fmt.Errorf("read quote for %s: %w", symbol, err)
	}
	if err := store.SetPrice(symbol, newPrice); err != nil {
		return fmt.Errorf("set quote for %s: %w", symbol, err)
	}
	f.Publish(PriceChanged{Symbol: symbol, Old: old, New: newPrice, At: time.Now().UTC()})
	return nil
}
