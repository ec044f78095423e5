// Package holiday aggregates the official yearly day-lists into countdown
// entries and merges them with solar/lunar festival candidates under a
// name-normalisation rule that keeps one entry per real-world holiday.
package holiday

import (
	"sort"
	"strings"
	"time"

	"moyuren/internal/sources"
)

// Holiday is one countdown target in the rendered calendar.
type Holiday struct {
	Name           string `json:"name"`
	StartDate      string `json:"start_date"` // YYYY-MM-DD
	EndDate        string `json:"end_date"`
	Duration       int    `json:"duration"`
	DaysLeft       int    `json:"days_left"`
	IsLegalHoliday bool   `json:"is_legal_holiday"`
	IsOffDay       bool   `json:"is_off_day"`
}

const dateLayout = "2006-01-02"

// maxEntries caps the merged output to the ten nearest targets.
const maxEntries = 10

// Aggregate turns raw yearly documents into holiday groups. Consecutive
// same-named off-days collapse into one entry; groups fully in the past are
// dropped; a make-up workday falling on today is prepended.
func Aggregate(docs []*sources.YearDoc, today time.Time) []Holiday {
	today = truncate(today)

	type offDay struct {
		name string
		date time.Time
	}
	var offDays []offDay
	var makeUp []Holiday

	for _, doc := range docs {
		if doc == nil {
			continue
		}
		for _, day := range doc.Days {
			d, err := time.ParseInLocation(dateLayout, day.Date, today.Location())
			if err != nil {
				continue
			}
			if day.IsOffDay {
				offDays = append(offDays, offDay{name: day.Name, date: d})
				continue
			}
			if d.Equal(today) {
				makeUp = append(makeUp, Holiday{
					Name:           day.Name + "（补班）",
					StartDate:      day.Date,
					EndDate:        day.Date,
					Duration:       1,
					DaysLeft:       0,
					IsLegalHoliday: true,
					IsOffDay:       false,
				})
			}
		}
	}

	sort.Slice(offDays, func(i, j int) bool { return offDays[i].date.Before(offDays[j].date) })

	var groups []Holiday
	for i := 0; i < len(offDays); {
		j := i
		for j+1 < len(offDays) &&
			offDays[j+1].name == offDays[i].name &&
			offDays[j+1].date.Sub(offDays[j].date) == 24*time.Hour {
			j++
		}
		start, end := offDays[i].date, offDays[j].date
		if !end.Before(today) {
			groups = append(groups, Holiday{
				Name:           offDays[i].name,
				StartDate:      start.Format(dateLayout),
				EndDate:        end.Format(dateLayout),
				Duration:       int(end.Sub(start).Hours()/24) + 1,
				DaysLeft:       daysLeft(start, today),
				IsLegalHoliday: true,
				IsOffDay:       true,
			})
		}
		i = j + 1
	}

	return append(makeUp, groups...)
}

// Festival is a solar or lunar festival candidate produced by the almanac.
type Festival struct {
	Name string
	Date time.Time
}

// Merge combines legal holidays with festival candidates. Priority is
// legal > lunar > solar: a festival whose normalised name matches any
// already-kept entry is suppressed. The result is sorted by days-left and
// truncated to the nearest ten.
func Merge(legal []Holiday, lunarFestivals, solarFestivals []Festival, today time.Time) []Holiday {
	today = truncate(today)
	kept := append([]Holiday(nil), legal...)

	seen := make(map[string]bool, len(kept))
	for _, h := range kept {
		seen[NormalizeName(h.Name)] = true
	}

	addFestivals := func(festivals []Festival) {
		for _, f := range festivals {
			if f.Date.Before(today) {
				continue
			}
			norm := NormalizeName(f.Name)
			if seen[norm] {
				continue
			}
			seen[norm] = true
			date := f.Date.Format(dateLayout)
			kept = append(kept, Holiday{
				Name:      f.Name,
				StartDate: date,
				EndDate:   date,
				Duration:  1,
				DaysLeft:  daysLeft(f.Date, today),
			})
		}
	}
	addFestivals(lunarFestivals)
	addFestivals(solarFestivals)

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].DaysLeft < kept[j].DaysLeft })
	if len(kept) > maxEntries {
		kept = kept[:maxEntries]
	}
	return kept
}

// nameWhitelist holds core holiday names kept verbatim by normalisation.
var nameWhitelist = map[string]bool{
	"春节": true, "元旦": true, "清明": true, "端午": true,
	"中秋": true, "国庆": true, "劳动": true,
}

// nameSuffixes are stripped longest-first.
var nameSuffixes = []string{"节假期", "假期", "节日", "节"}

// NormalizeName reduces a holiday or festival name to its comparable core:
// whitelisted names stay as-is, otherwise the longest matching suffix is
// stripped when the remainder is at least two runes or itself whitelisted.
func NormalizeName(name string) string {
	if nameWhitelist[name] {
		return name
	}
	for _, suffix := range nameSuffixes {
		if !strings.HasSuffix(name, suffix) {
			continue
		}
		core := strings.TrimSuffix(name, suffix)
		if len([]rune(core)) >= 2 || nameWhitelist[core] {
			return core
		}
	}
	return name
}

func daysLeft(start, today time.Time) int {
	d := int(truncate(start).Sub(today).Hours() / 24)
	if d < 0 {
		return 0
	}
	return d
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
