package calendar

import (
	"fmt"
	"time"

	ptime "github.com/yaa110/go-persian-calendar"
)

// JalaliProvider buckets instants by the Jalali (Solar Hijri) calendar,
// the scheme the study group runs on. Day keys stay in Gregorian
// YYYY-MM-DD form (they key the same rows the rest of the system reads),
// while week and month keys use the Jalali year: "1405-W23", "1405-06".
//
// Week convention: weeks start on Shanbeh (Saturday) and week 1 is the
// week containing Farvardin 1. Partial weeks at month boundaries belong
// to whichever week of the year they fall in; months never reset the
// week counter.
type JalaliProvider struct {
	loc *time.Location
}

func NewJalali(loc *time.Location) *JalaliProvider {
	return &JalaliProvider{loc: loc}
}

func (p *JalaliProvider) Keys(t time.Time) Keys {
	lt := t.In(p.loc)
	pt := ptime.New(lt)

	return Keys{
		Day:   lt.Format("2006-01-02"),
		Week:  fmt.Sprintf("%d-W%02d", pt.Year(), weekOfJalaliYear(pt)),
		Month: fmt.Sprintf("%d-%02d", pt.Year(), int(pt.Month())),
	}
}

// weekOfJalaliYear numbers weeks from the Saturday-started week that
// contains Farvardin 1.
func weekOfJalaliYear(pt ptime.Time) int {
	yearDay := pt.YearDay()

	// Weekday of Farvardin 1, with Shanbeh (Saturday) as 0.
	firstWeekday := (int(pt.Weekday()) - (yearDay-1)%7 + 7) % 7

	return (yearDay - 1 + firstWeekday) / 7 + 1
}

func (p *JalaliProvider) NextMidnight(t time.Time) time.Time {
	lt := t.In(p.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, p.loc)
}

func (p *JalaliProvider) SameDay(a, b time.Time) bool {
	return a.In(p.loc).Format("2006-01-02") == b.In(p.loc).Format("2006-01-02")
}
