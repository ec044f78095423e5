package sources

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"moyuren/internal/errcode"
	"moyuren/internal/metrics"
)

// StockItem is one index quote row. Nil numerics mean the upstream had no
// value; the context computer renders them as "--".
type StockItem struct {
	Code         string   `json:"code"`
	Name         string   `json:"name"`
	Price        *float64 `json:"price"`
	Change       *float64 `json:"change"`
	ChangePct    *float64 `json:"change_pct"`
	Trend        string   `json:"trend"`  // up, down, flat
	Market       string   `json:"market"` // A, HK, US
	IsTradingDay bool     `json:"is_trading_day"`
	IsStale      bool     `json:"is_stale,omitempty"`
}

// indexSpec fixes the emitted indices and their order.
type indexSpec struct {
	code   string
	secID  string
	name   string // fallback display name when the row is missing
	market string
}

var indexSpecs = []indexSpec{
	{code: "000001", secID: "1.000001", name: "上证指数", market: "A"},
	{code: "399001", secID: "0.399001", name: "深证成指", market: "A"},
	{code: "399006", secID: "0.399006", name: "创业板指", market: "A"},
	{code: "HSI", secID: "100.HSI", name: "恒生指数", market: "HK"},
	{code: "DJIA", secID: "100.DJIA", name: "道琼斯", market: "US"},
}

// TradingOracle answers whether a market trades on a given business date.
type TradingOracle interface {
	IsTradingDay(market string, date time.Time) (bool, error)
}

// StockIndex quotes the five fixed indices with an in-memory TTL cache and a
// stale-copy fallback: a failed refresh serves the previous success marked
// IsStale.
type StockIndex struct {
	client   *Client
	quoteURL string
	ttl      time.Duration
	oracle   TradingOracle
	now      func() time.Time

	mu     sync.Mutex
	last   []StockItem
	lastAt time.Time
}

// NewStockIndex builds the stock-index adapter. oracle may be nil, in which
// case trading-day status degrades to weekday<5.
func NewStockIndex(client *Client, quoteURL string, ttl time.Duration, oracle TradingOracle, now func() time.Time) *StockIndex {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	return &StockIndex{client: client, quoteURL: quoteURL, ttl: ttl, oracle: oracle, now: now}
}

// Fetch returns the five index rows in fixed order. Never returns an error:
// on failure it serves the stale copy, or nil when no success exists yet.
func (s *StockIndex) Fetch(ctx context.Context) (any, error) {
	s.mu.Lock()
	if s.last != nil && s.now().Sub(s.lastAt) < s.ttl {
		cached := copyItems(s.last)
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	rows, err := s.fetchQuotes(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		metrics.SourceFailures.WithLabelValues("stock_index").Inc()
		log.Warn().Err(err).Msg("stock quote fetch failed")
		if s.last == nil {
			return nil, nil
		}
		stale := copyItems(s.last)
		for i := range stale {
			stale[i].IsStale = true
		}
		return stale, nil
	}

	// Re-check under the lock: another goroutine may have refreshed while we
	// were on the wire.
	if s.last == nil || s.now().Sub(s.lastAt) >= s.ttl {
		s.last = rows
		s.lastAt = s.now()
	}
	return copyItems(s.last), nil
}

func (s *StockIndex) fetchQuotes(ctx context.Context) ([]StockItem, error) {
	secIDs := make([]string, len(indexSpecs))
	for i, spec := range indexSpecs {
		secIDs[i] = spec.secID
	}
	params := url.Values{}
	params.Set("fltt", "2")
	params.Set("fields", "f2,f3,f4,f12,f14")
	params.Set("secids", strings.Join(secIDs, ","))

	obj, err := s.client.GetJSON(ctx, s.quoteURL, params)
	if err != nil {
		return nil, err
	}
	return s.parseQuotes(obj)
}

func (s *StockIndex) parseQuotes(obj map[string]any) ([]StockItem, error) {
	if rc, ok := asFloat(obj["rc"]); !ok || rc != 0 {
		return nil, errBadQuoteResponse
	}
	data, _ := obj["data"].(map[string]any)
	diff, _ := data["diff"].([]any)

	byCode := make(map[string]map[string]any, len(diff))
	for _, item := range diff {
		row, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if code, ok := row["f12"].(string); ok {
			byCode[code] = row
		}
	}

	items := make([]StockItem, 0, len(indexSpecs))
	for _, spec := range indexSpecs {
		item := StockItem{
			Code:         spec.code,
			Name:         spec.name,
			Trend:        "flat",
			Market:       spec.market,
			IsTradingDay: s.isTradingDay(spec.market),
		}
		if row, ok := byCode[spec.code]; ok {
			if name, ok := row["f14"].(string); ok && name != "" {
				item.Name = name
			}
			item.Price = floatPtr(row["f2"])
			item.ChangePct = floatPtr(row["f3"])
			item.Change = floatPtr(row["f4"])
			if item.ChangePct != nil {
				switch {
				case *item.ChangePct > 0:
					item.Trend = "up"
				case *item.ChangePct < 0:
					item.Trend = "down"
				}
			}
		}
		items = append(items, item)
	}
	return items, nil
}

func (s *StockIndex) isTradingDay(market string) bool {
	today := s.now()
	if s.oracle != nil {
		if trading, err := s.oracle.IsTradingDay(market, today); err == nil {
			return trading
		}
	}
	// Oracle unavailable: weekdays trade.
	return today.Weekday() >= time.Monday && today.Weekday() <= time.Friday
}

var errBadQuoteResponse = errcode.New(errcode.FetchBadBody, "quote response rc != 0")

func copyItems(items []StockItem) []StockItem {
	out := make([]StockItem, len(items))
	copy(out, items)
	return out
}

// floatPtr coerces the eastmoney numeric-or-"-" field style.
func floatPtr(v any) *float64 {
	if f, ok := asFloat(v); ok {
		return &f
	}
	return nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	}
	return 0, false
}
