package render

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moyuren/internal/clock"
	"moyuren/internal/fetch"
	"moyuren/internal/holiday"
	"moyuren/internal/sources"
)

func testComputer(t *testing.T, at time.Time) *Computer {
	t.Helper()
	fake := clockwork.NewFakeClockAt(at)
	return NewComputer(clock.New("UTC", "UTC").WithNow(fake.Now))
}

func TestCompute_DateAndWeekendSections(t *testing.T) {
	// Wednesday.
	c := testComputer(t, time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC))
	ctx := c.Compute(fetch.Result{}, TemplateOptions{})

	date := ctx["date"].(map[string]any)
	assert.Equal(t, "2026.02", date["year_month"])
	assert.Equal(t, 4, date["day"])
	assert.Equal(t, "星期三", date["week_cn"])
	assert.Equal(t, "Wednesday", date["week_en"])
	assert.NotEmpty(t, date["lunar_date"])
	assert.NotEmpty(t, date["zodiac"])
	assert.Equal(t, false, date["is_holiday"])

	weekend := ctx["weekend"].(map[string]any)
	assert.Equal(t, 3, weekend["days_left"])
	assert.Equal(t, false, weekend["is_weekend"])
}

func TestCompute_WeekendFlags(t *testing.T) {
	// Saturday.
	c := testComputer(t, time.Date(2026, 2, 7, 10, 0, 0, 0, time.UTC))
	ctx := c.Compute(fetch.Result{}, TemplateOptions{})

	weekend := ctx["weekend"].(map[string]any)
	assert.Equal(t, 0, weekend["days_left"])
	assert.Equal(t, true, weekend["is_weekend"])

	date := ctx["date"].(map[string]any)
	assert.Equal(t, true, date["is_holiday"])
}

func TestCompute_NewsShapes(t *testing.T) {
	c := testComputer(t, time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC))

	t.Run("modern_shape", func(t *testing.T) {
		res := fetch.Result{News: map[string]any{
			"date":    "2026-02-04",
			"updated": "2026-02-04 09:00:00 CST",
			"data":    map[string]any{"news": []any{"first", "second"}},
		}}
		ctx := c.Compute(res, TemplateOptions{})

		list := ctx["news_list"].([]map[string]any)
		require.Len(t, list, 2)
		assert.Equal(t, 1, list[0]["num"])
		assert.Equal(t, "first", list[0]["text"])

		meta := ctx["news_meta"].(map[string]any)
		assert.Equal(t, "2026-02-04", meta["date"])
		assert.Equal(t, "2026-02-04T09:00:00+08:00", meta["updated"])
	})

	t.Run("legacy_shape", func(t *testing.T) {
		res := fetch.Result{News: map[string]any{
			"data": []any{
				map[string]any{"text": "legacy one"},
				map[string]any{"text": "legacy two"},
			},
		}}
		ctx := c.Compute(res, TemplateOptions{})
		list := ctx["news_list"].([]map[string]any)
		require.Len(t, list, 2)
		assert.Equal(t, "legacy two", list[1]["text"])
	})

	t.Run("absent_news_uses_defaults_and_empty_meta", func(t *testing.T) {
		ctx := c.Compute(fetch.Result{}, TemplateOptions{})
		list := ctx["news_list"].([]map[string]any)
		assert.Len(t, list, len(defaultNews))
		assert.Equal(t, map[string]any{}, ctx["news_meta"])
	})
}

func TestCompute_KFCOnlyOnThursdayWithContent(t *testing.T) {
	thursday := time.Date(2026, 2, 5, 10, 0, 0, 0, time.UTC)
	friday := time.Date(2026, 2, 6, 10, 0, 0, 0, time.UTC)
	res := fetch.Result{KFC: "v50"}
	opts := TemplateOptions{ShowKFC: true}

	ctx := testComputer(t, thursday).Compute(res, opts)
	assert.Equal(t, "v50", ctx["kfc_content"])

	ctx = testComputer(t, friday).Compute(res, opts)
	assert.NotContains(t, ctx, "kfc_content")

	ctx = testComputer(t, thursday).Compute(fetch.Result{}, opts)
	assert.NotContains(t, ctx, "kfc_content")

	ctx = testComputer(t, thursday).Compute(res, TemplateOptions{ShowKFC: false})
	assert.NotContains(t, ctx, "kfc_content")
}

func TestCompute_StockFormatting(t *testing.T) {
	price := 3250.1
	change := 27.4
	pct := 0.85
	down := -1.2
	res := fetch.Result{Stocks: []sources.StockItem{
		{Code: "000001", Name: "上证指数", Price: &price, Change: &change, ChangePct: &pct, Trend: "up", Market: "A", IsTradingDay: true},
		{Code: "399006", Name: "创业板指", Trend: "flat", Market: "A"},
		{Code: "HSI", Name: "恒生指数", ChangePct: &down, Trend: "down", Market: "HK", IsStale: true},
	}}

	c := testComputer(t, time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC))
	ctx := c.Compute(res, TemplateOptions{ShowStock: true})

	rows := ctx["stock_indices"].([]map[string]any)
	require.Len(t, rows, 3)

	assert.Equal(t, "3,250.10", rows[0]["price"])
	assert.Equal(t, "+27.40", rows[0]["change"])
	assert.Equal(t, "+0.85%", rows[0]["change_pct"])
	assert.Equal(t, true, rows[0]["is_trading_day"])

	assert.Equal(t, "--", rows[1]["price"])
	assert.Equal(t, "--", rows[1]["change"])
	assert.Equal(t, "--", rows[1]["change_pct"])

	assert.Equal(t, "-1.20%", rows[2]["change_pct"])
	assert.Equal(t, true, rows[2]["is_stale"])
}

func TestCompute_StockHiddenWithoutOptOrData(t *testing.T) {
	c := testComputer(t, time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC))

	ctx := c.Compute(fetch.Result{}, TemplateOptions{ShowStock: true})
	assert.NotContains(t, ctx, "stock_indices")

	res := fetch.Result{Stocks: []sources.StockItem{{Code: "000001"}}}
	ctx = c.Compute(res, TemplateOptions{ShowStock: false})
	assert.NotContains(t, ctx, "stock_indices")
}

func TestCompute_LegalHolidayMarksToday(t *testing.T) {
	c := testComputer(t, time.Date(2026, 2, 16, 10, 0, 0, 0, time.UTC))
	res := fetch.Result{Holidays: []holiday.Holiday{{
		Name: "春节", StartDate: "2026-02-15", EndDate: "2026-02-21",
		Duration: 7, IsLegalHoliday: true, IsOffDay: true,
	}}}

	ctx := c.Compute(res, TemplateOptions{})
	date := ctx["date"].(map[string]any)
	assert.Equal(t, "春节", date["legal_holiday"])
	assert.Equal(t, true, date["is_holiday"])
}

func TestCompute_MakeUpWorkdayOverridesWeekend(t *testing.T) {
	// Saturday that is a make-up workday.
	c := testComputer(t, time.Date(2026, 2, 14, 10, 0, 0, 0, time.UTC))
	res := fetch.Result{Holidays: []holiday.Holiday{{
		Name: "春节（补班）", StartDate: "2026-02-14", EndDate: "2026-02-14",
		Duration: 1, IsLegalHoliday: true, IsOffDay: false,
	}}}

	ctx := c.Compute(res, TemplateOptions{})
	date := ctx["date"].(map[string]any)
	assert.Equal(t, false, date["is_holiday"])
}

func TestCompute_GuideDefaults(t *testing.T) {
	c := testComputer(t, time.Date(2026, 2, 4, 10, 0, 0, 0, time.UTC))
	ctx := c.Compute(fetch.Result{}, TemplateOptions{})

	guide := ctx["guide"].(map[string]any)
	yi := guide["yi"].([]string)
	ji := guide["ji"].([]string)
	assert.NotEmpty(t, yi)
	assert.NotEmpty(t, ji)
	assert.LessOrEqual(t, len(yi), 4)
	assert.LessOrEqual(t, len(ji), 4)
}

func TestCoerceBool(t *testing.T) {
	assert.True(t, coerceBool(true))
	assert.True(t, coerceBool("true"))
	assert.True(t, coerceBool("1"))
	assert.True(t, coerceBool(1))
	assert.True(t, coerceBool(float64(1)))
	assert.False(t, coerceBool(false))
	assert.False(t, coerceBool("false"))
	assert.False(t, coerceBool("0"))
	assert.False(t, coerceBool(0))
	assert.False(t, coerceBool(nil))
	assert.False(t, coerceBool(""))
}
