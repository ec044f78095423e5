// Package render computes the template context from a fan-out result and
// rasterises it into the published JPEG artifact.
package render

import (
	"fmt"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"moyuren/internal/almanac"
	"moyuren/internal/clock"
	"moyuren/internal/fetch"
	"moyuren/internal/sources"
)

var weekdayCN = map[time.Weekday]string{
	time.Monday: "星期一", time.Tuesday: "星期二", time.Wednesday: "星期三",
	time.Thursday: "星期四", time.Friday: "星期五",
	time.Saturday: "星期六", time.Sunday: "星期日",
}

// defaultNews is rendered when the news upstream yields nothing.
var defaultNews = []string{
	"今日暂无新闻数据",
	"可以趁机放松一下眼睛",
	"喝口水，伸个懒腰",
	"记得按时吃饭",
	"摸鱼也要适度哦",
}

var (
	defaultYi = []string{"摸鱼", "喝茶", "划水", "发呆"}
	defaultJi = []string{"加班", "内卷", "开会", "汇报"}
)

// TemplateOptions is the per-template subset of configuration the computer
// honours when assembling the context.
type TemplateOptions struct {
	ShowKFC   bool
	ShowStock bool
}

// Computer assembles the render context for one generation run.
type Computer struct {
	clk *clock.Clock
}

// NewComputer builds a context computer bound to the service clock.
func NewComputer(clk *clock.Clock) *Computer {
	return &Computer{clk: clk}
}

// Compute transforms the fan-out result into the fully populated context the
// HTML template consumes.
func (c *Computer) Compute(res fetch.Result, opts TemplateOptions) map[string]any {
	now := c.clk.BusinessNow()
	today := c.clk.BusinessToday()
	day := almanac.Of(today)

	ctx := map[string]any{
		"date":       c.dateSection(now, day, res),
		"weekend":    weekendSection(now),
		"solar_term": solarTermSection(today, day),
		"guide":      guideSection(day),
		"history":    historySection(res.FunContent),
		"news_list":  newsList(res.News),
		"news_meta":  newsMeta(res.News),
		"holidays":   res.Holidays,
	}

	if opts.ShowKFC && c.clk.IsThursday() && res.KFC != "" {
		ctx["kfc_content"] = res.KFC
	}
	if opts.ShowStock && res.Stocks != nil {
		ctx["stock_indices"] = stockSection(res.Stocks)
	}
	return ctx
}

func (c *Computer) dateSection(now time.Time, day almanac.Day, res fetch.Result) map[string]any {
	section := map[string]any{
		"year_month":    now.Format("2006.01"),
		"day":           now.Day(),
		"week_cn":       weekdayCN[now.Weekday()],
		"week_en":       now.Weekday().String(),
		"lunar_year":    day.LunarYear,
		"lunar_date":    day.LunarDate,
		"zodiac":        day.Zodiac,
		"constellation": day.Constellation,
		"moon_phase":    day.MoonPhase,
	}

	if len(day.SolarFestivals) > 0 {
		section["festival_solar"] = day.SolarFestivals[0]
	}
	if len(day.LunarFestivals) > 0 {
		section["festival_lunar"] = day.LunarFestivals[0]
	}

	isHoliday := now.Weekday() == time.Saturday || now.Weekday() == time.Sunday
	todayStr := now.Format(clock.DateLayout)
	for _, h := range res.Holidays {
		if h.IsOffDay && h.StartDate <= todayStr && todayStr <= h.EndDate {
			section["legal_holiday"] = h.Name
			isHoliday = true
			break
		}
		if !h.IsOffDay && h.StartDate == todayStr {
			// Make-up workday overrides the weekend.
			isHoliday = false
			break
		}
	}
	section["is_holiday"] = isHoliday
	return section
}

func weekendSection(now time.Time) map[string]any {
	// Monday=0 … Sunday=6 to match the "weekday<5" convention.
	weekday := (int(now.Weekday()) + 6) % 7
	daysLeft := 0
	if weekday < 5 {
		daysLeft = 5 - weekday
	}
	return map[string]any{
		"days_left":  daysLeft,
		"is_weekend": weekday >= 5,
	}
}

func solarTermSection(today time.Time, day almanac.Day) map[string]any {
	if day.JieQi != "" {
		return map[string]any{
			"name":      day.JieQi,
			"date":      today.Format(clock.DateLayout),
			"days_left": 0,
			"is_today":  true,
		}
	}
	name, date := almanac.NextJieQi(today)
	if name == "" {
		return map[string]any{}
	}
	return map[string]any{
		"name":      name,
		"date":      date.Format(clock.DateLayout),
		"days_left": int(date.Sub(today).Hours() / 24),
		"is_today":  false,
	}
}

func guideSection(day almanac.Day) map[string]any {
	yi, ji := day.Yi, day.Ji
	if len(yi) == 0 {
		yi = defaultYi
	}
	if len(ji) == 0 {
		ji = defaultJi
	}
	if len(yi) > 4 {
		yi = yi[:4]
	}
	if len(ji) > 4 {
		ji = ji[:4]
	}
	return map[string]any{"yi": yi, "ji": ji}
}

func historySection(funContent map[string]any) map[string]any {
	if funContent != nil {
		return funContent
	}
	return sources.DefaultFunContent
}

// newsList accepts both the current {"data":{"news":[string]}} shape and the
// legacy [{"text":…}] list, falling back to the default items.
func newsList(news map[string]any) []map[string]any {
	items := extractNewsItems(news)
	if len(items) == 0 {
		items = defaultNews
	}
	out := make([]map[string]any, 0, len(items))
	for i, text := range items {
		out = append(out, map[string]any{"num": i + 1, "text": text})
	}
	return out
}

func extractNewsItems(news map[string]any) []string {
	if news == nil {
		return nil
	}
	raw, ok := news["data"]
	if !ok {
		return nil
	}

	var items []string
	switch data := raw.(type) {
	case map[string]any:
		list, _ := data["news"].([]any)
		for _, item := range list {
			switch v := item.(type) {
			case string:
				items = append(items, v)
			case map[string]any:
				if text, ok := v["text"].(string); ok {
					items = append(items, text)
				}
			}
		}
	case []any:
		for _, item := range data {
			if m, ok := item.(map[string]any); ok {
				if text, ok := m["text"].(string); ok {
					items = append(items, text)
				}
			}
		}
	}
	return items
}

func newsMeta(news map[string]any) map[string]any {
	if news == nil {
		return map[string]any{}
	}
	meta := map[string]any{}
	if date, ok := news["date"].(string); ok {
		meta["date"] = date
	}
	if updated, ok := news["updated"]; ok {
		if norm := NormalizeDatetime(updated); norm != "" {
			meta["updated"] = norm
		}
	}
	if at, ok := news["updated_at"]; ok {
		meta["updated_at"] = at
	}
	return meta
}

var pricePrinter = message.NewPrinter(language.English)

func stockSection(items []sources.StockItem) []map[string]any {
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		row := map[string]any{
			"code":           item.Code,
			"name":           item.Name,
			"trend":          item.Trend,
			"market":         item.Market,
			"is_trading_day": coerceBool(item.IsTradingDay),
			"price":          "--",
			"change":         "--",
			"change_pct":     "--",
		}
		if item.IsStale {
			row["is_stale"] = true
		}
		if item.Price != nil {
			row["price"] = pricePrinter.Sprint(number.Decimal(*item.Price,
				number.MinFractionDigits(2), number.MaxFractionDigits(2)))
		}
		if item.Change != nil {
			row["change"] = fmt.Sprintf("%+.2f", *item.Change)
		}
		if item.ChangePct != nil {
			row["change_pct"] = fmt.Sprintf("%+.2f%%", *item.ChangePct)
		}
		out = append(out, row)
	}
	return out
}

// coerceBool normalises the boolean-ish values upstreams send for trading-day
// flags: "true"/"false"/"0"/"1" strings and 0/1 numerics.
func coerceBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		return x != "" && x != "false" && x != "0"
	case float64:
		return x != 0
	case int:
		return x != 0
	}
	return false
}
