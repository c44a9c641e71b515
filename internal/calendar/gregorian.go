package calendar

import (
	"fmt"
	"time"
)

// GregorianProvider buckets instants by the Gregorian calendar with ISO
// week numbering. Day "2026-08-28", week "2026-W35", month "2026-08".
type GregorianProvider struct {
	loc *time.Location
}

func NewGregorian(loc *time.Location) *GregorianProvider {
	return &GregorianProvider{loc: loc}
}

func (p *GregorianProvider) Keys(t time.Time) Keys {
	lt := t.In(p.loc)
	isoYear, isoWeek := lt.ISOWeek()

	return Keys{
		Day:   lt.Format("2006-01-02"),
		Week:  fmt.Sprintf("%d-W%02d", isoYear, isoWeek),
		Month: lt.Format("2006-01"),
	}
}

func (p *GregorianProvider) NextMidnight(t time.Time) time.Time {
	lt := t.In(p.loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day()+1, 0, 0, 0, 0, p.loc)
}

func (p *GregorianProvider) SameDay(a, b time.Time) bool {
	return a.In(p.loc).Format("2006-01-02") == b.In(p.loc).Format("2006-01-02")
}
