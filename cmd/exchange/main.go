package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/callauction/exchange/params"
	"github.com/callauction/exchange/pkg/api"
	"github.com/callauction/exchange/pkg/exchange/market"
	"github.com/callauction/exchange/pkg/exchange/orderbook"
	"github.com/callauction/exchange/pkg/exchange/pricefeed"
	"github.com/callauction/exchange/pkg/exchange/trader"
	"github.com/callauction/exchange/pkg/storage"
	"github.com/callauction/exchange/pkg/util"
)

func main() {
	cfg := params.LoadFromEnv("") // "" means load .env from the current directory

	logFile := os.Getenv("LOG_FILE")
	if logFile == "" {
		logFile = filepath.Join(cfg.Storage.DataDir, "exchange.log")
	}
	logger, err := util.NewLoggerWithFile(logFile, os.Getenv("VERBOSE") == "true")
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()
	sugar.Infow("logger_initialized", "log_file", logFile)

	// ---- Core wiring ----
	registry := market.NewRegistry()
	history := market.NewHistory()
	feed := pricefeed.NewFeed()

	store, err := storage.OpenHistoryStore(filepath.Join(cfg.Storage.DataDir, "history"), sugar)
	if err != nil {
		sugar.Fatalw("history_store_open_failed", "err", err)
	}
	defer store.Close()

	traders := trader.NewDirectory()
	book := orderbook.NewOrderBook(registry, feed, traders, sugar)
	server := api.NewServer(registry, history, book, traders, sugar)

	// Every listener sees every event exactly once, in publication order:
	// in-memory history, durable pebble log, websocket fan-out.
	feed.Subscribe(history)
	feed.Subscribe(store)
	feed.Subscribe(server)

	if cfg.Demo.Seed {
		if err := seedDemo(registry, book, traders, sugar); err != nil {
			sugar.Fatalw("demo_seed_failed", "err", err)
		}
	}

	// Rehydrate the in-memory history from the durable log so the REST
	// history endpoint spans restarts.
	for _, ins := range registry.List() {
		events, err := store.History(ins.Symbol)
		if err != nil {
			sugar.Warnw("history_replay_failed", "symbol", ins.Symbol, "err", err)
			continue
		}
		for _, ev := range events {
			history.OnPriceChanged(ev)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Periodic matching pass ----
	if cfg.Clearing.Interval > 0 {
		go runClearing(ctx, book, cfg.Clearing.Interval, sugar)
		sugar.Infow("clearing_scheduler_started", "interval_ms", cfg.Clearing.Interval.Milliseconds())
	} else {
		sugar.Info("clearing scheduler disabled, use POST /api/v1/clearing/run")
	}

	// ---- API server ----
	server.StartHub()
	httpSrv := &http.Server{
		Addr:    cfg.API.Listen,
		Handler: server.Handler(cfg.API.AllowedOrigins),
	}
	go func() {
		sugar.Infow("api_server_starting", "addr", cfg.API.Listen)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugar.Fatalw("api_server_failed", "err", err)
		}
	}()

	<-ctx.Done()
	sugar.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		sugar.Warnw("api_shutdown_failed", "err", err)
	}
}

// runClearing triggers a full matching pass every interval until ctx ends.
func runClearing(ctx context.Context, book *orderbook.OrderBook, interval time.Duration, sugar *zap.SugaredLogger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			results, err := book.ClearAll()
			if err != nil {
				sugar.Errorw("matching_pass_failed", "err", err)
				continue
			}
			if len(results) > 0 {
				sugar.Infow("matching_pass_done", "instruments_cleared", len(results))
			}
		}
	}
}
