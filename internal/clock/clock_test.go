package clock

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimezone_UTCOffsets(t *testing.T) {
	tests := []struct {
		name       string
		spec       string
		wantOffset int // seconds; -1 means fallback expected
	}{
		{name: "single_digit_positive", spec: "UTC+8", wantOffset: 8 * 3600},
		{name: "double_digit_positive", spec: "UTC+08", wantOffset: 8 * 3600},
		{name: "with_minutes", spec: "UTC+05:30", wantOffset: 5*3600 + 30*60},
		{name: "negative", spec: "UTC-5", wantOffset: -5 * 3600},
		{name: "max_positive", spec: "UTC+14", wantOffset: 14 * 3600},
		{name: "max_negative", spec: "UTC-12", wantOffset: -12 * 3600},
		{name: "beyond_max_positive", spec: "UTC+15", wantOffset: -1},
		{name: "fourteen_with_minutes", spec: "UTC+14:30", wantOffset: -1},
		{name: "beyond_max_negative", spec: "UTC-13", wantOffset: -1},
		{name: "bad_minutes", spec: "UTC+08:75", wantOffset: -1},
		{name: "garbage", spec: "UTC+abc", wantOffset: -1},
	}

	fallback := time.UTC
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			loc := ParseTimezone(tt.spec, fallback)
			if tt.wantOffset == -1 {
				assert.Equal(t, fallback, loc)
				return
			}
			_, offset := time.Now().In(loc).Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestParseTimezone_IANA(t *testing.T) {
	loc := ParseTimezone("Asia/Shanghai", time.UTC)
	require.NotNil(t, loc)
	assert.Equal(t, "Asia/Shanghai", loc.String())

	// Unknown names fall back.
	loc = ParseTimezone("Mars/Olympus", time.UTC)
	assert.Equal(t, time.UTC, loc)
}

func TestClock_BusinessDate(t *testing.T) {
	// 2026-02-04 23:30 UTC is already 2026-02-05 in Asia/Shanghai.
	fake := clockwork.NewFakeClockAt(time.Date(2026, 2, 4, 23, 30, 0, 0, time.UTC))
	c := New("Asia/Shanghai", "UTC").WithNow(fake.Now)

	assert.Equal(t, "2026-02-05", c.BusinessDate())
	assert.Equal(t, 0, c.BusinessToday().Hour())

	// Display stays on UTC.
	assert.Equal(t, 23, c.DisplayNow().Hour())
}

func TestClock_IsThursday(t *testing.T) {
	// 2026-02-05 is a Thursday.
	fake := clockwork.NewFakeClockAt(time.Date(2026, 2, 5, 9, 0, 0, 0, time.UTC))
	c := New("UTC", "UTC").WithNow(fake.Now)
	assert.True(t, c.IsThursday())

	fake = clockwork.NewFakeClockAt(time.Date(2026, 2, 6, 9, 0, 0, 0, time.UTC))
	assert.False(t, c.WithNow(fake.Now).IsThursday())
}

func TestNew_BusinessRejectsLocal(t *testing.T) {
	// "local" is not a valid business zone spec; it must fall back to the
	// default rather than resolve to the host zone.
	c := New("local", "local")
	assert.Equal(t, DefaultBusinessTZ, c.business.String())
}
