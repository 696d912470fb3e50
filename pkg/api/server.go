package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/callauction/exchange/pkg/exchange/market"
	"github.com/callauction/exchange/pkg/exchange/orderbook"
	"github.com/callauction/exchange/pkg/exchange/pricefeed"
	"github.com/callauction/exchange/pkg/exchange/trader"
)

// Server exposes the exchange over REST and streams price changes over
// WebSocket. It is also a price feed listener: subscribe it to the feed and
// every PriceChanged is pushed to the "prices" and "prices:<symbol>"
// channels.
type Server struct {
	registry *market.Registry
	history  *market.History
	book     *orderbook.OrderBook
	traders  *trader.Directory

	router *mux.Router
	hub    *Hub
	logger *zap.SugaredLogger
}

func NewServer(reg *market.Registry, hist *market.History, book *orderbook.OrderBook, traders *trader.Directory, logger *zap.SugaredLogger) *Server {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Server{
		registry: reg,
		history:  hist,
		book:     book,
		traders:  traders,
		router:   mux.NewRouter(),
		hub:      NewHub(logger),
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/markets", s.handleGetMarkets).Methods("GET")
	api.HandleFunc("/markets/{symbol}", s.handleGetMarket).Methods("GET")
	api.HandleFunc("/markets/{symbol}/history", s.handleGetHistory).Methods("GET")
	api.HandleFunc("/markets/{symbol}/book", s.handleGetBook).Methods("GET")

	api.HandleFunc("/traders/{id}", s.handleGetTrader).Methods("GET")

	api.HandleFunc("/orders", s.handleSubmitOrder).Methods("POST")
	api.HandleFunc("/clearing/run", s.handleRunClearing).Methods("POST")

	s.router.HandleFunc("/ws", s.handleWebSocket)
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

// Handler returns the router wrapped with CORS, for serving or for tests.
func (s *Server) Handler(allowedOrigins []string) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

// Start runs the hub and serves until the listener fails.
func (s *Server) Start(addr string, allowedOrigins []string) error {
	go s.hub.Run()
	s.logger.Infow("api_server_starting", "addr", addr)
	return http.ListenAndServe(addr, s.Handler(allowedOrigins))
}

// StartHub runs only the WebSocket hub, for callers that mount Handler on
// their own http.Server.
func (s *Server) StartHub() { go s.hub.Run() }

// OnPriceChanged implements pricefeed.Listener.
func (s *Server) OnPriceChanged(ev pricefeed.PriceChanged) {
	msg := WSMessage{Type: "price_changed", Data: priceEventInfo(ev)}
	s.hub.BroadcastToChannel("prices", msg)
	s.hub.BroadcastToChannel("prices:"+ev.Symbol, msg)
}

var _ pricefeed.Listener = (*Server)(nil)

// ==============================
// REST handlers
// ==============================

func (s *Server) handleGetMarkets(w http.ResponseWriter, r *http.Request) {
	instruments := s.registry.List()
	response := make([]MarketInfo, len(instruments))
	for i, ins := range instruments {
		response[i] = marketInfo(ins)
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetMarket(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	ins, err := s.registry.Get(symbol)
	if err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}
	respondJSON(w, http.StatusOK, marketInfo(ins))
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if _, err := s.registry.Get(symbol); err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	events := s.history.For(symbol)
	response := make([]PriceEventInfo, len(events))
	for i, ev := range events {
		response[i] = priceEventInfo(ev)
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	if _, err := s.registry.Get(symbol); err != nil {
		respondError(w, http.StatusNotFound, "market not found", err.Error())
		return
	}

	bids, asks, marketBuyQty, marketSellQty := s.book.Snapshot(symbol)
	response := BookSnapshot{
		Symbol:        symbol,
		Bids:          priceLevels(bids),
		Asks:          priceLevels(asks),
		MarketBuyQty:  marketBuyQty,
		MarketSellQty: marketSellQty,
		Timestamp:     time.Now().UnixMilli(),
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleGetTrader(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, ok := s.traders.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "trader not found", id)
		return
	}

	open := t.OpenOrders()
	orders := make([]OrderInfo, len(open))
	for i, o := range open {
		orders[i] = orderInfo(o)
	}
	respondJSON(w, http.StatusOK, TraderInfo{
		ID:         t.ID,
		Name:       t.Name,
		Cash:       t.Cash().String(),
		Holdings:   t.Holdings(),
		OpenOrders: orders,
	})
}

func (s *Server) handleSubmitOrder(w http.ResponseWriter, r *http.Request) {
	var req SubmitOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	t, ok := s.traders.Get(req.TraderID)
	if !ok {
		respondError(w, http.StatusNotFound, "trader not found", req.TraderID)
		return
	}

	var side orderbook.Side
	switch req.Side {
	case "buy":
		side = orderbook.Buy
	case "sell":
		side = orderbook.Sell
	default:
		respondError(w, http.StatusBadRequest, "invalid side", req.Side)
		return
	}

	var err error
	switch req.Type {
	case "market":
		err = t.PlaceMarketOrder(s.book, s.registry, req.Symbol, side, req.Qty)
	case "limit":
		var limit decimal.Decimal
		limit, err = decimal.NewFromString(req.Limit)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid limit price", req.Limit)
			return
		}
		err = t.PlaceOrder(s.book, s.registry, req.Symbol, side, req.Qty, limit)
	default:
		respondError(w, http.StatusBadRequest, "invalid order type", req.Type)
		return
	}
	if err != nil {
		respondError(w, http.StatusBadRequest, rejectionKind(err), err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleRunClearing(w http.ResponseWriter, r *http.Request) {
	results, err := s.book.ClearAll()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "clearing failed", err.Error())
		return
	}

	response := make([]ClearingInfo, len(results))
	for i, res := range results {
		response[i] = clearingInfo(res)
	}
	respondJSON(w, http.StatusOK, response)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ==============================
// helpers
// ==============================

// rejectionKind maps a submission error to its stable API error code.
func rejectionKind(err error) string {
	switch {
	case errors.Is(err, trader.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, trader.ErrDuplicateOpenOrder):
		return "duplicate_open_order"
	case errors.Is(err, trader.ErrUnownedOrUndersizedSale):
		return "unowned_or_undersized_sale"
	case errors.Is(err, market.ErrUnknownInstrument):
		return "unknown_instrument"
	default:
		return "rejected"
	}
}

func marketInfo(ins market.Instrument) MarketInfo {
	return MarketInfo{Symbol: ins.Symbol, Name: ins.Name, Price: ins.Price.String()}
}

func priceEventInfo(ev pricefeed.PriceChanged) PriceEventInfo {
	return PriceEventInfo{
		Symbol: ev.Symbol,
		Old:    ev.Old.String(),
		New:    ev.New.String(),
		At:     ev.At.UnixMilli(),
	}
}

func priceLevels(levels []orderbook.PriceLevel) []PriceLevel {
	out := make([]PriceLevel, len(levels))
	for i, lv := range levels {
		out[i] = PriceLevel{Price: lv.Price.String(), Qty: lv.Qty}
	}
	return out
}

func orderInfo(o *orderbook.Order) OrderInfo {
	info := OrderInfo{
		ID:     o.ID,
		Symbol: o.Symbol,
		Side:   o.Side.String(),
		Type:   "limit",
		Qty:    o.Qty,
	}
	if o.IsMarket() {
		info.Type = "market"
	} else {
		info.Limit = o.Limit.String()
	}
	return info
}

func clearingInfo(res *orderbook.Result) ClearingInfo {
	info := ClearingInfo{
		Symbol:        res.Symbol,
		ClearingPrice: res.Price.String(),
		PriceChanged:  res.PriceChanged,
		ExecutedBuys:  len(res.ExecutedBuys),
		ExecutedSells: len(res.ExecutedSells),
	}
	for _, f := range res.Failures {
		info.Failures = append(info.Failures, SettlementFailureInfo{
			OrderID:  f.Order.ID,
			TraderID: f.Order.TraderID,
			Error:    f.Err.Error(),
		})
	}
	return info
}

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Too late for a status change; nothing useful to do.
		_ = err
	}
}

func respondError(w http.ResponseWriter, status int, code, details string) {
	respondJSON(w, status, ErrorResponse{Error: code, Details: details})
}
