package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/callauction/exchange/pkg/exchange/pricefeed"
)

// HistoryStore is the durable price history: an append-only Pebble log of
// PriceChanged events, keyed per instrument by a monotonic sequence so a
// prefix scan returns them in publication order. It subscribes to the
// price feed alongside the in-memory history and survives restarts.
type HistoryStore struct {
	db     *pebble.DB
	logger *zap.SugaredLogger

	mu  sync.Mutex
	seq map[string]uint64 // symbol -> last assigned sequence
}

// keys: h:<symbol>:<8-byte big-endian seq>
func kEvent(symbol string, seq uint64) []byte {
	key := make([]byte, 0, 2+len(symbol)+1+8)
	key = append(key, 'h', ':')
	key = append(key, symbol...)
	key = append(key, ':')
	var s [8]byte
	binary.BigEndian.PutUint64(s[:], seq)
	return append(key, s[:]...)
}

func kEventPrefix(symbol string) []byte {
	return []byte("h:" + symbol + ":")
}

// keyUpperBound returns the exclusive upper bound for a prefix scan.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func OpenHistoryStore(path string, logger *zap.SugaredLogger) (*HistoryStore, error) {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open history store at %s: %w", path, err)
	}
	return &HistoryStore{db: db, logger: logger, seq: make(map[string]uint64)}, nil
}

func (s *HistoryStore) Close() error { return s.db.Close() }

// Append writes one event to the symbol's log.
func (s *HistoryStore) Append(ev pricefeed.PriceChanged) error {
	val, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seq, err := s.nextSeqLocked(ev.Symbol)
	if err != nil {
		return err
	}
	if err := s.db.Set(kEvent(ev.Symbol, seq), val, pebble.Sync); err != nil {
		return fmt.Errorf("append event for %s: %w", ev.Symbol, err)
	}
	s.seq[ev.Symbol] = seq
	return nil
}

// nextSeqLocked hands out the next sequence for symbol, recovering the last
// persisted one with a reverse seek on first use after open.
func (s *HistoryStore) nextSeqLocked(symbol string) (uint64, error) {
	if last, ok := s.seq[symbol]; ok {
		return last + 1, nil
	}

	prefix := kEventPrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return 0, fmt.Errorf("scan history for %s: %w", symbol, err)
	}
	defer iter.Close()

	if !iter.Last() {
		return 1, nil
	}
	key := iter.Key()
	if len(key) < 8 {
		return 0, fmt.Errorf("malformed history key %q", key)
	}
	return binary.BigEndian.Uint64(key[len(key)-8:]) + 1, nil
}

// History returns every recorded event for symbol, oldest first.
func (s *HistoryStore) History(symbol string) ([]pricefeed.PriceChanged, error) {
	prefix := kEventPrefix(symbol)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("scan history for %s: %w", symbol, err)
	}
	defer iter.Close()

	var out []pricefeed.PriceChanged
	for iter.First(); iter.Valid(); iter.Next() {
		var ev pricefeed.PriceChanged
		if err := json.Unmarshal(iter.Value(), &ev); err != nil {
			return nil, fmt.Errorf("decode event %q: %w", iter.Key(), err)
		}
		out = append(out, ev)
	}
	return out, iter.Error()
}

// OnPriceChanged implements pricefeed.Listener. Delivery is
// fire-and-forget, so a failed append is logged rather than propagated.
func (s *HistoryStore) OnPriceChanged(ev pricefeed.PriceChanged) {
	if err := s.Append(ev); err != nil {
		s.logger.Errorw("history_append_failed", "symbol", ev.Symbol, "err", err)
	}
}

var _ pricefeed.Listener = (*HistoryStore)(nil)
