// Package cache implements the on-disk daily cache shared by the upstream
// adapters, plus the retention cleaner for generated artifacts. One JSON file
// per namespace; an entry is valid only on the business date it was written.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"moyuren/internal/metrics"
)

// FetchFunc produces a fresh payload for a namespace. A nil payload with a
// nil error means "nothing available" (e.g. the Thursday gate on a Friday).
type FetchFunc func(ctx context.Context) (any, error)

// entry is the persisted cache file shape.
type entry struct {
	Date      string `json:"date"`
	Data      any    `json:"data"`
	FetchedAt int64  `json:"fetched_at"`
}

// Daily is a date-keyed single-value cache backed by
// <dir>/<namespace>.json. Reads are lock-free; writes go through a sibling
// temp file and an atomic rename, so readers observe either the previous or
// the new complete file, never a partial one.
type Daily struct {
	namespace string
	dir       string
	today     func() string
	fetch     FetchFunc
}

// NewDaily builds a cache for one namespace. today provides the current
// business date (YYYY-MM-DD); fetch is the adapter's fresh-fetch closure.
func NewDaily(namespace, dir string, today func() string, fetch FetchFunc) *Daily {
	return &Daily{namespace: namespace, dir: dir, today: today, fetch: fetch}
}

// Get returns today's payload. Unless force is set, a valid same-day entry is
// served directly. Otherwise the fetch closure runs; failures are swallowed
// and the last cached payload of any age is served instead (stale fallback).
// Returns nil when neither a fresh nor a cached payload exists.
func (d *Daily) Get(ctx context.Context, force bool) any {
	if !force {
		if data, ok := d.load(true); ok {
			metrics.DailyCacheResults.WithLabelValues(d.namespace, "hit").Inc()
			return data
		}
	}

	data, err := d.fetch(ctx)
	if err != nil {
		log.Warn().Str("namespace", d.namespace).Err(err).Msg("fresh fetch failed")
		data = nil
	}
	if data != nil {
		if err := d.save(data); err != nil {
			log.Warn().Str("namespace", d.namespace).Err(err).Msg("cache save failed")
		}
		metrics.DailyCacheResults.WithLabelValues(d.namespace, "fresh").Inc()
		return data
	}

	if stale, ok := d.load(false); ok {
		log.Warn().Str("namespace", d.namespace).Msg("serving stale cache after failed fetch")
		metrics.DailyCacheResults.WithLabelValues(d.namespace, "stale_fallback").Inc()
		return stale
	}

	metrics.DailyCacheResults.WithLabelValues(d.namespace, "miss").Inc()
	return nil
}

// Path returns the cache file location for this namespace.
func (d *Daily) Path() string {
	return filepath.Join(d.dir, d.namespace+".json")
}

// load reads the cache file. With checkDate set, entries whose recorded date
// is not today are rejected. Corrupt or non-object files count as absent.
func (d *Daily) load(checkDate bool) (any, bool) {
	raw, err := os.ReadFile(d.Path())
	if err != nil {
		return nil, false
	}

	// Top level must be a JSON object; anything else is treated as corrupt.
	var shape map[string]json.RawMessage
	if err := json.Unmarshal(raw, &shape); err != nil {
		log.Warn().Str("namespace", d.namespace).Err(err).Msg("corrupt cache file ignored")
		return nil, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if checkDate && e.Date != d.today() {
		return nil, false
	}
	if e.Data == nil {
		return nil, false
	}
	return e.Data, true
}

func (d *Daily) save(data any) error {
	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	e := entry{
		Date:      d.today(),
		Data:      data,
		FetchedAt: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	return WriteFileAtomic(d.Path(), raw, 0o644)
}

// WriteFileAtomic writes data through a temp file in the same directory and
// renames it over path. POSIX rename makes the swap atomic for readers.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// ThursdayOnly decorates a fetch closure with the crazy-Thursday gate: on any
// other business weekday the closure is skipped entirely and the cache sees a
// nil payload.
func ThursdayOnly(isThursday func() bool, fetch FetchFunc) FetchFunc {
	return func(ctx context.Context) (any, error) {
		if !isThursday() {
			return nil, nil
		}
		return fetch(ctx)
	}
}
