// Package app wires the configured components into a running pipeline: the
// clock, the source adapters behind their daily caches, the holiday
// aggregation, the renderer, the state store, and the generation
// orchestrator. cmd builds one App and hangs the CLI, the scheduler, and the
// HTTP server off it.
package app

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"moyuren/internal/cache"
	"moyuren/internal/clock"
	"moyuren/internal/config"
	"moyuren/internal/fetch"
	"moyuren/internal/generate"
	"moyuren/internal/holiday"
	"moyuren/internal/render"
	"moyuren/internal/sources"
	"moyuren/internal/state"
)

// App is the assembled service.
type App struct {
	Config       config.Config
	Clock        *clock.Clock
	Store        *state.Store
	Fetcher      *fetch.Fetcher
	Orchestrator *generate.Orchestrator
}

// New assembles the service from its configuration.
func New(cfg config.Config) *App {
	clk := clock.New(cfg.Timezone.Business, cfg.Timezone.Display)
	store := state.NewStore(cfg.Paths.StateFile)
	holidayTimeout := cfg.SourceTimeout(cfg.Sources.Holiday.TimeoutSec)

	holidayFetcher := sources.NewYearFetcher(
		sources.NewClient("holiday", holidayTimeout),
		cfg.Sources.Holiday.URLs,
		filepath.Join(cfg.Paths.DataDir, "holidays"),
		clk.BusinessNow,
	)

	fetcher := &fetch.Fetcher{}
	if cfg.Sources.News.Enabled {
		news := sources.NewNews(
			sources.NewClient("news", cfg.SourceTimeout(cfg.Sources.News.TimeoutSec)),
			cfg.Sources.News.URL, cfg.Sources.News.Params)
		fetcher.News = dailyGetter("news", cfg.Paths.DataDir, clk, news.Fetch)
	}
	if cfg.Sources.FunContent.Enabled {
		fun := sources.NewFunContent(
			sources.NewClient("fun_content", cfg.SourceTimeout(cfg.Sources.FunContent.TimeoutSec)),
			funEndpoints(cfg.Sources.FunContent.Endpoints), clk.BusinessNow)
		fetcher.FunContent = dailyGetter("fun_content", cfg.Paths.DataDir, clk, fun.Fetch)
	}
	if cfg.Sources.KFC.Enabled {
		kfc := sources.NewKFC(
			sources.NewClient("kfc", cfg.SourceTimeout(cfg.Sources.KFC.TimeoutSec)),
			cfg.Sources.KFC.URL)
		fetcher.KFC = dailyGetter("kfc", cfg.Paths.DataDir, clk,
			cache.ThursdayOnly(clk.IsThursday, kfc.Fetch))
	}
	if cfg.Sources.Stock.Enabled {
		var oracle sources.TradingOracle
		if cfg.Sources.Holiday.Enabled {
			oracle = &holidayOracle{fetcher: holidayFetcher, timeout: holidayTimeout}
		}
		stock := sources.NewStockIndex(
			sources.NewClient("stock_index", cfg.SourceTimeout(cfg.Sources.Stock.TimeoutSec)),
			cfg.Sources.Stock.URL, cfg.StockTTL(), oracle, clk.BusinessNow)
		// The quote TTL lives in the adapter itself; the daily JSON cache
		// would freeze the first quote of the day.
		fetcher.Stocks = func(ctx context.Context, _ bool) any {
			items, _ := stock.Fetch(ctx)
			return items
		}
	}
	if cfg.Sources.Holiday.Enabled {
		fetcher.Holidays = holidayAggregation(holidayFetcher, clk)
	}

	templates := make(map[string]generate.Template, len(cfg.Templates.Items))
	for _, tpl := range cfg.Templates.Items {
		templates[tpl.Name] = generate.Template{
			Descriptor: render.Descriptor{
				Name:              tpl.Name,
				Path:              tpl.Path,
				ViewportWidth:     tpl.Width,
				ViewportHeight:    tpl.Height,
				DeviceScaleFactor: tpl.DeviceScaleFactor,
				JPEGQuality:       tpl.JPEGQuality,
			},
			Options: render.TemplateOptions{
				ShowKFC:   tpl.ShowKFC,
				ShowStock: tpl.ShowStock,
			},
		}
	}

	renderer := render.NewChromeRenderer(cfg.Paths.StaticDir, render.Defaults{
		DeviceScaleFactor: cfg.Templates.Config.DeviceScaleFactor,
		JPEGQuality:       cfg.Templates.Config.JPEGQuality,
		UseChinaCDN:       cfg.Templates.Config.UseChinaCDN,
	}, clk.DisplayNow)

	a := &App{Config: cfg, Clock: clk, Store: store, Fetcher: fetcher}
	a.Orchestrator = generate.New(clk, fetcher, render.NewComputer(clk), renderer,
		store, filepath.Dir(cfg.Paths.StateFile), templates, cfg.DefaultTemplate(),
		a.Cleanup)
	return a
}

// Cleanup prunes expired cache data files and old artifacts.
func (a *App) Cleanup() {
	res, err := cache.Clean(a.Config.Paths.DataDir, a.Config.Paths.StaticDir,
		a.Clock.BusinessNow(), a.Config.Cache.RetainDays)
	if err != nil {
		log.Warn().Err(err).Msg("cache cleanup incomplete")
	}
	if res.DeletedFiles > 0 {
		log.Info().Int("deleted", res.DeletedFiles).Int64("freed_bytes", res.FreedBytes).
			Msg("cache cleanup finished")
	}
}

// dailyGetter binds an adapter fetch closure to its on-disk daily cache.
func dailyGetter(namespace, dataDir string, clk *clock.Clock, fn cache.FetchFunc) fetch.Getter {
	daily := cache.NewDaily(namespace, dataDir, clk.BusinessDate, fn)
	return daily.Get
}

func funEndpoints(eps []config.FunEndpoint) []sources.FunEndpoint {
	out := make([]sources.FunEndpoint, len(eps))
	for i, ep := range eps {
		out[i] = sources.FunEndpoint{
			Name:         ep.Name,
			URL:          ep.URL,
			DataPath:     ep.DataPath,
			DisplayTitle: ep.DisplayTitle,
		}
	}
	return out
}

// holidayAggregation fetches the year window around today and folds the raw
// documents plus the almanac festivals into the final holiday list. Missing
// years (the upstream publishes the next year late) degrade to whatever is
// available.
func holidayAggregation(fetcher *sources.YearFetcher, clk *clock.Clock) fetch.HolidayFn {
	return func(ctx context.Context) []holiday.Holiday {
		today := clk.BusinessNow()
		var docs []*sources.YearDoc
		for _, year := range []int{today.Year() - 1, today.Year(), today.Year() + 1} {
			doc, err := fetcher.Year(ctx, year)
			if err != nil {
				log.Warn().Int("year", year).Err(err).Msg("holiday year unavailable")
				continue
			}
			docs = append(docs, doc)
		}

		legal := holiday.Aggregate(docs, today)
		lunar, solar := holiday.UpcomingFestivals(today)
		return holiday.Merge(legal, lunar, solar, today)
	}
}

// holidayOracle answers trading-day questions for the A-share market from the
// legal-holiday calendar: weekday and not an off-day, or an explicit make-up
// workday. Other markets fall back to the adapter's weekday heuristic.
type holidayOracle struct {
	fetcher *sources.YearFetcher
	timeout time.Duration
}

func (o *holidayOracle) IsTradingDay(market string, date time.Time) (bool, error) {
	if market != "A" {
		return false, errUnknownMarket
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	doc, err := o.fetcher.Year(ctx, date.Year())
	if err != nil {
		return false, err
	}
	day := date.Format(clock.DateLayout)
	for _, d := range doc.Days {
		if d.Date == day {
			// Off-day rows close the market; make-up workday rows open it
			// even on weekends.
			return !d.IsOffDay, nil
		}
	}
	wd := date.Weekday()
	return wd >= time.Monday && wd <= time.Friday, nil
}

var errUnknownMarket = errors.New("no calendar for market")
