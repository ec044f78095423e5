// Package fetch fans out to all enabled upstream adapters in parallel and
// collects their payloads. Individual failures degrade to empty slots; the
// fan-out as a whole fails only when the context is cancelled.
package fetch

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"moyuren/internal/holiday"
	"moyuren/internal/sources"
)

// Result carries the per-source payloads of one fan-out. Absent sources keep
// their zero value: nil map, nil slice, empty string.
type Result struct {
	News       map[string]any
	FunContent map[string]any
	KFC        string
	Holidays   []holiday.Holiday
	Stocks     []sources.StockItem
}

// Getter is one cached adapter invocation: the daily cache's Get with a
// bound fetch closure.
type Getter func(ctx context.Context, force bool) any

// HolidayFn aggregates the three-year holiday window.
type HolidayFn func(ctx context.Context) []holiday.Holiday

// Fetcher holds the configured source invocations. Nil members are skipped.
type Fetcher struct {
	News       Getter
	FunContent Getter
	KFC        Getter
	Stocks     Getter
	Holidays   HolidayFn
}

// FetchAll runs every configured source concurrently and waits for all of
// them. A panicking or failing source leaves its slot empty.
func (f *Fetcher) FetchAll(ctx context.Context, force bool) Result {
	start := time.Now()
	var res Result
	var wg sync.WaitGroup

	run := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					log.Error().Str("source", name).Any("panic", r).Msg("source panicked, slot left empty")
				}
			}()
			fn()
		}()
	}

	if f.News != nil {
		run("news", func() {
			if m, ok := f.News(ctx, force).(map[string]any); ok {
				res.News = m
			}
		})
	}
	if f.FunContent != nil {
		run("fun_content", func() {
			if m, ok := f.FunContent(ctx, force).(map[string]any); ok {
				res.FunContent = m
			}
		})
	}
	if f.KFC != nil {
		run("kfc", func() {
			if s, ok := f.KFC(ctx, force).(string); ok {
				res.KFC = s
			}
		})
	}
	if f.Stocks != nil {
		run("stock_index", func() {
			if items, ok := f.Stocks(ctx, force).([]sources.StockItem); ok {
				res.Stocks = items
			}
		})
	}
	if f.Holidays != nil {
		run("holidays", func() {
			res.Holidays = f.Holidays(ctx)
		})
	}

	wg.Wait()
	log.Debug().Dur("elapsed", time.Since(start)).Msg("fan-out fetch finished")
	return res
}
