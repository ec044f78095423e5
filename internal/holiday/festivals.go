package holiday

import (
	"time"

	"moyuren/internal/almanac"
)

// defaultHorizonDays covers a full year of festivals plus leap slack.
const defaultHorizonDays = 370

// UpcomingFestivals scans forward from today and collects the first upcoming
// occurrence of each lunar and solar festival the almanac knows about.
func UpcomingFestivals(today time.Time) (lunar, solar []Festival) {
	seenLunar := make(map[string]bool)
	seenSolar := make(map[string]bool)

	for i := 0; i < defaultHorizonDays; i++ {
		d := today.AddDate(0, 0, i)
		day := almanac.Of(d)
		for _, name := range day.LunarFestivals {
			if !seenLunar[name] {
				seenLunar[name] = true
				lunar = append(lunar, Festival{Name: name, Date: d})
			}
		}
		for _, name := range day.SolarFestivals {
			if !seenSolar[name] {
				seenSolar[name] = true
				solar = append(solar, Festival{Name: name, Date: d})
			}
		}
	}
	return lunar, solar
}
