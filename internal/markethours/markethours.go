// Package markethours reports whether the US equity market (NYSE regular
// session) is open. The engine keeps running outside hours; clients use the
// status to label quotes as live or after-hours.
package markethours

import (
	"fmt"
	"time"
	_ "time/tzdata" // America/New_York on hosts without zoneinfo
)

// NewYork is the exchange time zone.
var NewYork = mustLoad("America/New_York")

// Regular session in exchange time.
const (
	OpenHour    = 9
	OpenMinute  = 30
	CloseHour   = 16
	CloseMinute = 0
)

func mustLoad(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// IsMarketOpen returns true if t falls within the regular session
// (9:30 AM – 4:00 PM ET, Mon–Fri, excluding holidays).
func IsMarketOpen(t time.Time) bool {
	et := t.In(NewYork)
	if !IsTradingDay(et) {
		return false
	}
	hm := et.Hour()*60 + et.Minute()
	return hm >= OpenHour*60+OpenMinute && hm < CloseHour*60+CloseMinute
}

// IsTradingDay returns true if t is a weekday and not a holiday.
func IsTradingDay(t time.Time) bool {
	et := t.In(NewYork)
	wd := et.Weekday()
	return wd != time.Saturday && wd != time.Sunday && !IsHoliday(et)
}

// NextOpen returns the next session open at or after t. If t is before
// today's open on a trading day, that is today's open.
func NextOpen(t time.Time) time.Time {
	et := t.In(NewYork)
	d := time.Date(et.Year(), et.Month(), et.Day(), OpenHour, OpenMinute, 0, 0, NewYork)
	if et.Before(d) && IsTradingDay(d) {
		return d
	}
	// Weekends plus the longest holiday run stay well inside two weeks.
	for i := 0; i < 14; i++ {
		d = d.AddDate(0, 0, 1)
		if IsTradingDay(d) {
			return d
		}
	}
	return d
}

// TodayClose returns today's session close.
func TodayClose(t time.Time) time.Time {
	et := t.In(NewYork)
	return time.Date(et.Year(), et.Month(), et.Day(), CloseHour, CloseMinute, 0, 0, NewYork)
}

// Status is a point-in-time market status.
type Status struct {
	Open    bool      `json:"open"`
	Next    time.Time `json:"next"` // close when open, else next open
	Message string    `json:"message"`
}

// StatusAt computes the market status at t.
func StatusAt(t time.Time) Status {
	if IsMarketOpen(t) {
		cl := TodayClose(t)
		return Status{Open: true, Next: cl, Message: "Market Open, closes in " + fmtDur(cl.Sub(t))}
	}
	next := NextOpen(t)
	et := next.In(NewYork)
	return Status{
		Next: next,
		Message: fmt.Sprintf("Market Closed, opens %s %s ET (%s)",
			et.Weekday().String()[:3], et.Format("15:04"), fmtDur(next.Sub(t))),
	}
}

func fmtDur(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}
