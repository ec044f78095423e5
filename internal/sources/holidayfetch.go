package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"moyuren/internal/cache"
	"moyuren/internal/errcode"
	"moyuren/internal/metrics"
)

// RawDay is one entry of a yearly holiday document. isOffDay=false rows are
// make-up workdays.
type RawDay struct {
	Name     string `json:"name"`
	Date     string `json:"date"` // YYYY-MM-DD
	IsOffDay bool   `json:"isOffDay"`
}

// YearDoc is the raw yearly holiday document as published upstream.
type YearDoc struct {
	Year int      `json:"year"`
	Days []RawDay `json:"days"`
}

// YearFetcher retrieves yearly holiday documents, trying mirror hosts before
// the canonical raw URL and keeping a per-year cache with an age policy that
// depends on how far the year is from now: past years never expire, the
// current year refreshes weekly, future years every 12 hours.
type YearFetcher struct {
	client   *Client
	urls     []string // templates with one %d verb for the year
	cacheDir string
	now      func() time.Time
}

// NewYearFetcher builds the fetcher. urls lists full URL templates in try
// order, each containing a single %d for the year.
func NewYearFetcher(client *Client, urls []string, cacheDir string, now func() time.Time) *YearFetcher {
	if now == nil {
		now = time.Now
	}
	return &YearFetcher{client: client, urls: urls, cacheDir: cacheDir, now: now}
}

// Year returns the document for one year, from cache when fresh, otherwise
// from the network. When every source fails the cached copy is served
// regardless of age; only a missing cache yields an error.
func (f *YearFetcher) Year(ctx context.Context, year int) (*YearDoc, error) {
	path := f.cachePath(year)

	if doc, ok := f.readCache(path, year, true); ok {
		return doc, nil
	}

	for _, tmpl := range f.urls {
		u := fmt.Sprintf(tmpl, year)
		raw, err := f.client.GetBody(ctx, u, nil)
		if err != nil {
			log.Warn().Str("url", u).Err(err).Msg("holiday source failed")
			continue
		}
		var doc YearDoc
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Warn().Str("url", u).Err(err).Msg("holiday source returned bad JSON")
			continue
		}
		if err := os.MkdirAll(f.cacheDir, 0o755); err == nil {
			if err := cache.WriteFileAtomic(path, raw, 0o644); err != nil {
				log.Warn().Int("year", year).Err(err).Msg("holiday cache write failed")
			}
		}
		return &doc, nil
	}

	metrics.SourceFailures.WithLabelValues("holiday").Inc()

	// Degraded mode: any cached copy beats nothing.
	if doc, ok := f.readCache(path, year, false); ok {
		log.Warn().Int("year", year).Msg("all holiday sources failed, using cached copy")
		return doc, nil
	}
	return nil, errcode.New(errcode.FetchHTTPStatus,
		fmt.Sprintf("no holiday source reachable for %d and no cache", year))
}

func (f *YearFetcher) cachePath(year int) string {
	return filepath.Join(f.cacheDir, fmt.Sprintf("%d.json", year))
}

func (f *YearFetcher) readCache(path string, year int, checkAge bool) (*YearDoc, bool) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false
	}
	if checkAge && !f.fresh(info.ModTime(), year) {
		return nil, false
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	var doc YearDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		log.Warn().Str("file", path).Err(err).Msg("corrupt holiday cache ignored")
		return nil, false
	}
	return &doc, true
}

// fresh applies the per-year TTL policy. A modification time in the future
// means some process wrote with a skewed clock; treat as expired and refetch.
func (f *YearFetcher) fresh(mtime time.Time, year int) bool {
	now := f.now()
	if mtime.After(now) {
		return false
	}
	switch {
	case year < now.Year():
		return true // published past years never change
	case year == now.Year():
		return now.Sub(mtime) < 7*24*time.Hour
	default:
		return now.Sub(mtime) < 12*time.Hour
	}
}
