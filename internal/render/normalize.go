package render

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// canonicalLayout is the normaliser's output form.
const canonicalLayout = "2006-01-02T15:04:05-07:00"

// tzAbbrev maps common timezone abbreviations to fixed offsets in minutes.
// Abbreviations are ambiguous in general; these are the conventional readings
// for the upstreams this service talks to (CST means China).
var tzAbbrev = map[string]int{
	"UTC": 0, "GMT": 0,
	"CST": 8 * 60, "HKT": 8 * 60, "SGT": 8 * 60,
	"JST": 9 * 60, "KST": 9 * 60,
	"IST": 5*60 + 30,
	"EST": -5 * 60, "EDT": -4 * 60,
	"PST": -8 * 60, "PDT": -7 * 60,
	"MST": -7 * 60, "MDT": -6 * 60,
	"CDT": -5 * 60,
	"BST": 1 * 60, "CET": 1 * 60, "CEST": 2 * 60,
}

var (
	localDatetimeRe = regexp.MustCompile(
		`^(\d{4}-\d{2}-\d{2})[ T](\d{2}:\d{2}(?::\d{2})?)\s*(.*)$`)
	utcSuffixRe    = regexp.MustCompile(`^(?:UTC|GMT)([+-])(\d{1,2})(?::?(\d{2}))?$`)
	offsetSuffixRe = regexp.MustCompile(`^([+-])(\d{2}):?(\d{2})$`)
)

// NormalizeDatetime coerces an upstream timestamp of any supported shape to
// the canonical YYYY-MM-DDTHH:MM:SS±HH:MM form. Accepted inputs: ISO 8601
// with offset or Z; local datetimes with an optional trailing UTC±H[H][:MM],
// GMT±…, ±HHMM, ±HH:MM or timezone-abbreviation suffix; Unix seconds or
// milliseconds as a number or numeric string. Anything else yields "".
func NormalizeDatetime(v any) string {
	switch x := v.(type) {
	case string:
		return normalizeString(strings.TrimSpace(x))
	case float64:
		return normalizeEpoch(int64(x))
	case int:
		return normalizeEpoch(int64(x))
	case int64:
		return normalizeEpoch(x)
	}
	return ""
}

func normalizeString(s string) string {
	if s == "" {
		return ""
	}

	// Numeric string: Unix epoch.
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return normalizeEpoch(n)
	}

	// Full ISO 8601 with offset or Z.
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z0700", "2006-01-02T15:04Z07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(canonicalLayout)
		}
	}

	m := localDatetimeRe.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	datePart, timePart, suffix := m[1], m[2], strings.TrimSpace(m[3])
	if len(timePart) == 5 {
		timePart += ":00"
	}

	offsetMin, ok := parseSuffix(suffix)
	if !ok {
		return ""
	}

	loc := time.FixedZone("", offsetMin*60)
	t, err := time.ParseInLocation("2006-01-02 15:04:05", datePart+" "+timePart, loc)
	if err != nil {
		return ""
	}
	return t.Format(canonicalLayout)
}

// parseSuffix resolves a trailing timezone designator to offset minutes.
// An empty suffix means UTC.
func parseSuffix(suffix string) (int, bool) {
	if suffix == "" {
		return 0, true
	}
	if m := utcSuffixRe.FindStringSubmatch(suffix); m != nil {
		return signedMinutes(m[1], m[2], m[3])
	}
	if m := offsetSuffixRe.FindStringSubmatch(suffix); m != nil {
		return signedMinutes(m[1], m[2], m[3])
	}
	if min, ok := tzAbbrev[strings.ToUpper(suffix)]; ok {
		return min, true
	}
	return 0, false
}

func signedMinutes(sign, hourStr, minStr string) (int, bool) {
	hours, err := strconv.Atoi(hourStr)
	if err != nil {
		return 0, false
	}
	minutes := 0
	if minStr != "" {
		if minutes, err = strconv.Atoi(minStr); err != nil {
			return 0, false
		}
	}
	if hours > 14 || minutes > 59 {
		return 0, false
	}
	total := hours*60 + minutes
	if sign == "-" {
		total = -total
	}
	return total, true
}

// normalizeEpoch renders a Unix timestamp, auto-detecting seconds vs
// milliseconds by magnitude. Values outside 1973–5138 (seconds) or the
// corresponding millisecond window are rejected.
func normalizeEpoch(n int64) string {
	const (
		minSec = 1e8  // 1973-03
		maxSec = 1e11 // 5138
	)
	switch {
	case n >= minSec && n < maxSec:
		return time.Unix(n, 0).UTC().Format(canonicalLayout)
	case n >= minSec*1000 && n < maxSec*1000:
		return time.UnixMilli(n).UTC().Format(canonicalLayout)
	}
	return ""
}
