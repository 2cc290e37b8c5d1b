package markethours

import "time"

// NYSE full-day closures. Extend yearly.
var nyseHolidays = map[int][]struct {
	month time.Month
	day   int
}{
	2026: {
		{time.January, 1},   // New Year's Day
		{time.January, 19},  // Martin Luther King Jr. Day
		{time.February, 16}, // Washington's Birthday
		{time.April, 3},     // Good Friday
		{time.May, 25},      // Memorial Day
		{time.June, 19},     // Juneteenth
		{time.July, 3},      // Independence Day (observed)
		{time.September, 7}, // Labor Day
		{time.November, 26}, // Thanksgiving Day
		{time.December, 25}, // Christmas Day
	},
	2027: {
		{time.January, 1},
		{time.January, 18},
		{time.February, 15},
		{time.March, 26},
		{time.May, 31},
		{time.June, 18},
		{time.July, 5},
		{time.September, 6},
		{time.November, 25},
		{time.December, 24},
	},
}

var holidaySet = func() map[string]bool {
	set := make(map[string]bool)
	for year, days := range nyseHolidays {
		for _, h := range days {
			set[dateKey(year, h.month, h.day)] = true
		}
	}
	return set
}()

// IsHoliday returns true if the date (in exchange time) is an NYSE holiday.
func IsHoliday(t time.Time) bool {
	et := t.In(NewYork)
	return holidaySet[dateKey(et.Year(), et.Month(), et.Day())]
}

func dateKey(y int, m time.Month, d int) string {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Format("2006-01-02")
}
