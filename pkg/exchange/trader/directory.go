package trader

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/callauction/exchange/pkg/exchange/orderbook"
)

// ErrUnknownTrader rejects a settlement addressed to an unregistered id.
var ErrUnknownTrader = errors.New("trader not registered")

// Directory resolves trader ids to traders. Orders carry only the id, so
// the book never holds a trader pointer and is never responsible for a
// trader's lifetime; the directory is the lookup table in between.
type Directory struct {
	mu      sync.RWMutex
	traders map[string]*Trader
}

func NewDirectory() *Directory {
	return &Directory{traders: make(map[string]*Trader)}
}

func (d *Directory) Register(t *Trader) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("trader must have an id")
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.traders[t.ID]; exists {
		return fmt.Errorf("trader %s already registered", t.ID)
	}
	d.traders[t.ID] = t
	return nil
}

func (d *Directory) Get(id string) (*Trader, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	t, ok := d.traders[id]
	return t, ok
}

// All returns every registered trader, sorted by id.
func (d *Directory) All() []*Trader {
	d.mu.RLock()
	defer d.mu.RUnlock()

	out := make([]*Trader, 0, len(d.traders))
	for _, t := range d.traders {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Settle implements orderbook.Settler by routing the callback to the
// owning trader. An unregistered id is a per-order failure, reported the
// same way a trader rejecting the order is.
func (d *Directory) Settle(traderID string, o *orderbook.Order, clearing decimal.Decimal) error {
	t, ok := d.Get(traderID)
	if !ok {
		return fmt.Errorf("%s: %w", traderID, ErrUnknownTrader)
	}
	return t.Settle(o, clearing)
}

var _ orderbook.Settler = (*Directory)(nil)
