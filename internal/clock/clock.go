// Package clock provides the business/display timezone pair the rest of the
// service tells time by. Business time decides what "today" means for caching,
// holiday matching and the Thursday gate; display time stamps user-visible
// fields in the state file. The two must never be mixed.
package clock

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
	_ "time/tzdata" // embedded zone database for minimal images

	"github.com/rs/zerolog/log"
)

const (
	// DefaultBusinessTZ is used when the configured business timezone cannot
	// be resolved.
	DefaultBusinessTZ = "Asia/Shanghai"

	// DateLayout is the civil date form used for cache keys and state dates.
	DateLayout = "2006-01-02"
)

var utcOffsetRe = regexp.MustCompile(`^UTC([+-])(\d{1,2})(?::(\d{2}))?$`)

// Clock resolves "now" in the business and display timezones. Construct once
// at startup and hand it to the components that need it; there is no package
// level singleton.
type Clock struct {
	business *time.Location
	display  *time.Location

	// nowFn is replaceable in tests.
	nowFn func() time.Time
}

// New resolves the configured timezone specs. businessSpec rejects "local";
// displaySpec may be the literal "local", which resolves to the host zone.
func New(businessSpec, displaySpec string) *Clock {
	business := ParseTimezone(businessSpec, mustLoad(DefaultBusinessTZ))

	var display *time.Location
	if displaySpec == "local" {
		display = time.Local
	} else {
		display = ParseTimezone(displaySpec, time.UTC)
	}

	return &Clock{business: business, display: display, nowFn: time.Now}
}

// WithNow returns a copy of the clock whose notion of the current instant is
// supplied by fn. Used by tests with a fake clock.
func (c *Clock) WithNow(fn func() time.Time) *Clock {
	cp := *c
	cp.nowFn = fn
	return &cp
}

// BusinessNow returns the current instant in the business timezone.
func (c *Clock) BusinessNow() time.Time {
	return c.nowFn().In(c.business)
}

// BusinessToday returns today's civil date in the business timezone,
// truncated to midnight.
func (c *Clock) BusinessToday() time.Time {
	now := c.BusinessNow()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.business)
}

// BusinessDate returns today's business date as YYYY-MM-DD.
func (c *Clock) BusinessDate() string {
	return c.BusinessNow().Format(DateLayout)
}

// DisplayNow returns the current instant in the display timezone.
func (c *Clock) DisplayNow() time.Time {
	return c.nowFn().In(c.display)
}

// BusinessLocation exposes the business zone for schedulers and calendars.
func (c *Clock) BusinessLocation() *time.Location { return c.business }

// IsThursday reports whether today is Thursday in the business timezone.
func (c *Clock) IsThursday() bool {
	return c.BusinessNow().Weekday() == time.Thursday
}

// ParseTimezone resolves an IANA name or a UTC±HH[:MM] offset spelling.
// Offset hours must lie in [-12, +14]; +14 admits no minutes. Unresolvable
// specs fall back to the provided location with a warning.
func ParseTimezone(spec string, fallback *time.Location) *time.Location {
	if spec == "" {
		return fallback
	}

	if m := utcOffsetRe.FindStringSubmatch(spec); m != nil {
		loc, err := fixedOffset(m[1], m[2], m[3])
		if err != nil {
			log.Warn().Str("timezone", spec).Err(err).Msg("invalid UTC offset, using fallback")
			return fallback
		}
		return loc
	}

	loc, err := time.LoadLocation(spec)
	if err != nil {
		log.Warn().Str("timezone", spec).Err(err).Msg("unknown timezone, using fallback")
		return fallback
	}
	return loc
}

func fixedOffset(sign, hourStr, minStr string) (*time.Location, error) {
	hours, err := strconv.Atoi(hourStr)
	if err != nil {
		return nil, err
	}
	minutes := 0
	if minStr != "" {
		minutes, err = strconv.Atoi(minStr)
		if err != nil {
			return nil, err
		}
	}

	if minutes > 59 {
		return nil, fmt.Errorf("minutes %d out of range", minutes)
	}
	if sign == "-" && hours > 12 {
		return nil, fmt.Errorf("offset -%d exceeds -12", hours)
	}
	if sign == "+" && (hours > 14 || (hours == 14 && minutes > 0)) {
		return nil, fmt.Errorf("offset +%d:%02d exceeds +14:00", hours, minutes)
	}

	seconds := hours*3600 + minutes*60
	name := fmt.Sprintf("UTC+%02d:%02d", hours, minutes)
	if sign == "-" {
		seconds = -seconds
		name = fmt.Sprintf("UTC-%02d:%02d", hours, minutes)
	}
	return time.FixedZone(name, seconds), nil
}

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		// Asia/Shanghai is a fixed +08:00 zone since 1991; a missing tzdata
		// entry still yields correct business dates this way.
		return time.FixedZone("UTC+08:00", 8*3600)
	}
	return loc
}
