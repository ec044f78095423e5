// Package almanac adapts the lunar-go Chinese calendar library to the small
// surface the context computer and holiday merger need: lunar dates, zodiac,
// solar terms, yi/ji guidance and festival names.
package almanac

import (
	"container/list"
	"time"

	"github.com/6tail/lunar-go/calendar"
)

// Day is the almanac view of one civil date.
type Day struct {
	LunarYear      string   // 干支年, e.g. 丙午
	LunarDate      string   // e.g. 腊月十八
	Zodiac         string   // 生肖
	Constellation  string   // 星座
	MoonPhase      string   // 月相
	JieQi          string   // today's solar term, empty when none
	Yi             []string // 宜
	Ji             []string // 忌
	LunarFestivals []string
	SolarFestivals []string
}

// Of computes the almanac for the given civil date.
func Of(t time.Time) Day {
	solar := calendar.NewSolarFromYmd(t.Year(), int(t.Month()), t.Day())
	lunar := solar.GetLunar()

	return Day{
		LunarYear:      lunar.GetYearInGanZhi(),
		LunarDate:      lunar.GetMonthInChinese() + "月" + lunar.GetDayInChinese(),
		Zodiac:         lunar.GetYearShengXiao(),
		Constellation:  solar.GetXingZuo() + "座",
		MoonPhase:      lunar.GetYueXiang(),
		JieQi:          lunar.GetJieQi(),
		Yi:             fromList(lunar.GetDayYi()),
		Ji:             fromList(lunar.GetDayJi()),
		LunarFestivals: fromList(lunar.GetFestivals()),
		SolarFestivals: fromList(solar.GetFestivals()),
	}
}

// NextJieQi returns the name and date of the next solar term at or after t.
func NextJieQi(t time.Time) (string, time.Time) {
	solar := calendar.NewSolarFromYmd(t.Year(), int(t.Month()), t.Day())
	lunar := solar.GetLunar()
	jq := lunar.GetNextJieQi()
	if jq == nil {
		return "", time.Time{}
	}
	s := jq.GetSolar()
	return jq.GetName(), time.Date(s.GetYear(), time.Month(s.GetMonth()), s.GetDay(), 0, 0, 0, 0, t.Location())
}

func fromList(l *list.List) []string {
	if l == nil {
		return nil
	}
	out := make([]string, 0, l.Len())
	for e := l.Front(); e != nil; e = e.Next() {
		if s, ok := e.Value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
