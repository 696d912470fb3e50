package api

// API response types for REST endpoints and WebSocket messages.
// Prices are decimal strings, never floats.

// MarketInfo describes one listed instrument and its current quote.
type MarketInfo struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Price  string `json:"price"`
}

// PriceLevel is an aggregated [price, qty] rung of the pending book.
type PriceLevel struct {
	Price string `json:"price"`
	Qty   int64  `json:"qty"`
}

// BookSnapshot is the pending order depth for one instrument. Market
// orders carry no price and are reported as aggregate quantities.
type BookSnapshot struct {
	Symbol        string       `json:"symbol"`
	Bids          []PriceLevel `json:"bids"` // sorted high to low
	Asks          []PriceLevel `json:"asks"` // sorted low to high
	MarketBuyQty  int64        `json:"marketBuyQty"`
	MarketSellQty int64        `json:"marketSellQty"`
	Timestamp     int64        `json:"timestamp"` // Unix milliseconds
}

// PriceEventInfo is one recorded price change.
type PriceEventInfo struct {
	Symbol string `json:"symbol"`
	Old    string `json:"old"`
	New    string `json:"new"`
	At     int64  `json:"at"` // Unix milliseconds
}

// OrderInfo describes one open order.
type OrderInfo struct {
	ID     string `json:"id"`
	Symbol string `json:"symbol"`
	Side   string `json:"side"`  // "buy" or "sell"
	Type   string `json:"type"`  // "limit" or "market"
	Limit  string `json:"limit,omitempty"`
	Qty    int64  `json:"qty"`
}

// TraderInfo describes a trader's cash, holdings and open orders.
type TraderInfo struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Cash       string           `json:"cash"`
	Holdings   map[string]int64 `json:"holdings"`
	OpenOrders []OrderInfo      `json:"openOrders"`
}

// SubmitOrderRequest places an order on behalf of a trader.
type SubmitOrderRequest struct {
	TraderID string `json:"traderId"`
	Symbol   string `json:"symbol"`
	Side     string `json:"side"`  // "buy" or "sell"
	Type     string `json:"type"`  // "limit" or "market"
	Qty      int64  `json:"qty"`
	Limit    string `json:"limit,omitempty"` // required for limit orders
}

// SettlementFailureInfo reports one rejected settlement callback.
type SettlementFailureInfo struct {
	OrderID  string `json:"orderId"`
	TraderID string `json:"traderId"`
	Error    string `json:"error"`
}

// ClearingInfo reports the outcome of clearing one instrument.
type ClearingInfo struct {
	Symbol        string                  `json:"symbol"`
	ClearingPrice string                  `json:"clearingPrice"`
	PriceChanged  bool                    `json:"priceChanged"`
	ExecutedBuys  int                     `json:"executedBuys"`
	ExecutedSells int                     `json:"executedSells"`
	Failures      []SettlementFailureInfo `json:"failures,omitempty"`
}

// WSMessage is the envelope for all WebSocket payloads.
type WSMessage struct {
	Type string      `json:"type"` // "price_changed"
	Data interface{} `json:"data"`
}

// WSSubscribeRequest is sent by a client to manage channel subscriptions.
// Channels: "prices" (all instruments) or "prices:<symbol>".
type WSSubscribeRequest struct {
	Op       string   `json:"op"` // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"`
}

// ErrorResponse is the uniform error payload.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
