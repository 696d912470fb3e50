package market

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/callauction/exchange/pkg/exchange/pricefeed"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestRegisterAndQuote(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("SBUX", "Starbucks Corp.", dec("92.86")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	price, err := reg.QuotedPrice("SBUX")
	if err != nil {
		t.Fatalf("QuotedPrice: %v", err)
	}
	if !price.Equal(dec("92.86")) {
		t.Errorf("quote = %s, want 92.86", price)
	}

	if err := reg.Register("SBUX", "Starbucks again", dec("1")); !errors.Is(err, ErrAlreadyListed) {
		t.Errorf("duplicate listing error = %v, want ErrAlreadyListed", err)
	}
	if _, err := reg.QuotedPrice("NOPE"); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("unknown quote error = %v, want ErrUnknownInstrument", err)
	}
	if err := reg.Register("BAD", "No price", decimal.Decimal{}); err == nil {
		t.Error("zero ipo price accepted")
	}
}

func TestSetPrice(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register("SBUX", "Starbucks Corp.", dec("92.86")); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if err := reg.SetPrice("SBUX", dec("99.0")); err != nil {
		t.Fatalf("SetPrice: %v", err)
	}
	price, _ := reg.QuotedPrice("SBUX")
	if !price.Equal(dec("99.0")) {
		t.Errorf("quote = %s, want 99.0", price)
	}

	if err := reg.SetPrice("NOPE", dec("1")); !errors.Is(err, ErrUnknownInstrument) {
		t.Errorf("unknown SetPrice error = %v, want ErrUnknownInstrument", err)
	}
	if err := reg.SetPrice("SBUX", dec("-1")); err == nil {
		t.Error("negative price accepted")
	}
}

func TestListSorted(t *testing.T) {
	reg := NewRegistry()
	for _, sym := range []string{"TWTR", "SBUX", "BABA"} {
		if err := reg.Register(sym, sym, dec("10")); err != nil {
			t.Fatalf("Register %s: %v", sym, err)
		}
	}

	list := reg.List()
	want := []string{"BABA", "SBUX", "TWTR"}
	if len(list) != len(want) {
		t.Fatalf("listed %d instruments, want %d", len(list), len(want))
	}
	for i, sym := range want {
		if list[i].Symbol != sym {
			t.Errorf("list[%d] = %s, want %s", i, list[i].Symbol, sym)
		}
	}
}

func TestHistoryRecordsInPublicationOrder(t *testing.T) {
	feed := pricefeed.NewFeed()
	hist := NewHistory()
	feed.Subscribe(hist)

	feed.Publish(pricefeed.PriceChanged{Symbol: "SBUX", Old: dec("92.86"), New: dec("99.0")})
	feed.Publish(pricefeed.PriceChanged{Symbol: "TWTR", Old: dec("47.88"), New: dec("48.0")})
	feed.Publish(pricefeed.PriceChanged{Symbol: "SBUX", Old: dec("99.0"), New: dec("98.0")})

	events := hist.For("SBUX")
	if len(events) != 2 {
		t.Fatalf("SBUX history has %d events, want 2", len(events))
	}
	if !events[0].New.Equal(dec("99.0")) || !events[1].New.Equal(dec("98.0")) {
		t.Errorf("history out of order: %+v", events)
	}
	if hist.Len("TWTR") != 1 {
		t.Errorf("TWTR history has %d events, want 1", hist.Len("TWTR"))
	}
	if hist.Len("NOPE") != 0 {
		t.Errorf("unknown symbol history not empty")
	}

	// The returned slice is a copy; mutating it must not corrupt the log.
	events[0].Symbol = "HACKED"
	if hist.For("SBUX")[0].Symbol != "SBUX" {
		t.Error("History.For leaks internal state")
	}
}
