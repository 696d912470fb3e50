package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/shopspring/decimal"
)

var (
	ErrUnknownInstrument = errors.New("instrument not listed")
	ErrAlreadyListed     = errors.New("instrument already listed")
)

// Instrument is a tradable symbol with a single current quoted price.
type Instrument struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// Registry manages the listed instruments in a thread-safe manner. It is
// the canonical quote store: the matching engine reads the last quoted
// price from here and writes clearing prices back through the price feed.
type Registry struct {
	mu          sync.RWMutex
	instruments map[string]*Instrument
}

func NewRegistry() *Registry {
	return &Registry{instruments: make(map[string]*Instrument)}
}

// Register lists a new instrument at its offering price.
func (r *Registry) Register(symbol, name string, ipoPrice decimal.Decimal) error {
	if symbol == "" {
		return fmt.Errorf("empty symbol")
	}
	if !ipoPrice.IsPositive() {
		return fmt.Errorf("ipo price for %s must be positive, got %s", symbol, ipoPrice)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.instruments[symbol]; exists {
		return fmt.Errorf("%s: %w", symbol, ErrAlreadyListed)
	}
	r.instruments[symbol] = &Instrument{Symbol: symbol, Name: name, Price: ipoPrice}
	return nil
}

// Get returns a copy of the instrument record.
func (r *Registry) Get(symbol string) (Instrument, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ins, exists := r.instruments[symbol]
	if !exists {
		return Instrument{}, fmt.Errorf("%s: %w", symbol, ErrUnknownInstrument)
	}
	return *ins, nil
}

// List returns all listed instruments sorted by symbol.
func (r *Registry) List() []Instrument {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Instrument, 0, len(r.instruments))
	for _, ins := range r.instruments {
		out = append(out, *ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// QuotedPrice returns the instrument's current quoted price.
func (r *Registry) QuotedPrice(symbol string) (decimal.Decimal, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ins, exists := r.instruments[symbol]
	if !exists {
		return decimal.Decimal{}, fmt.Errorf("%s: %w", symbol, ErrUnknownInstrument)
	}
	return ins.Price, nil
}

// SetPrice updates the quoted price. Called only by the matching engine,
// through the price feed, when a clearing pass moves the price.
func (r *Registry) SetPrice(symbol string, price decimal.Decimal) error {
	if !price.IsPositive() {
		return fmt.Errorf("price for %s must be positive, got %s", symbol, price)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ins, exists := r.instruments[symbol]
	if !exists {
		return fmt.Errorf("%s: %w", symbol, ErrUnknownInstrument)
	}
	ins.Price = price
	return nil
}
