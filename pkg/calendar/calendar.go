// Package calendar answers whether a date is a public holiday in Italy.
package calendar

import (
	"sync"

	"cloud.google.com/go/civil"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/aa"
	"github.com/rickar/cal/v2/it"

	"github.com/pungrid/pungrid/pkg/timeslot"
)

// Oracle reports public holidays.
type Oracle interface {
	IsHoliday(d civil.Date) bool
}

// Italian is an Oracle for the Italian national holidays. Results are cached
// per date since the classifier asks for the same few days repeatedly.
type Italian struct {
	calendar *cal.BusinessCalendar

	mu    sync.RWMutex
	cache map[civil.Date]bool
}

var _ Oracle = (*Italian)(nil)

// pasqua is Easter Sunday, which it.Holidays leaves out.
var pasqua = aa.Easter.Clone(&cal.Holiday{Name: "Pasqua", Type: cal.ObservancePublic})

// Italy returns an Oracle for the Italian public holidays, Easter Sunday
// included.
func Italy() *Italian {
	c := cal.NewBusinessCalendar()
	c.AddHoliday(it.Holidays...)
	c.AddHoliday(pasqua)
	c.Cacheable = true
	return &Italian{
		calendar: c,
		cache:    make(map[civil.Date]bool),
	}
}

// IsHoliday implements Oracle.
func (i *Italian) IsHoliday(d civil.Date) bool {
	i.mu.RLock()
	h, ok := i.cache[d]
	i.mu.RUnlock()
	if ok {
		return h
	}

	// evaluate at noon so the date never shifts across a zone boundary
	actual, _, _ := i.calendar.IsHoliday(timeslot.AtLocal(d, 12, 0, timeslot.Rome))

	i.mu.Lock()
	i.cache[d] = actual
	i.mu.Unlock()
	return actual
}

// Warm computes every day of the given years so the first classification
// after startup does not pay for it.
func (i *Italian) Warm(years ...int) {
	for _, y := range years {
		for d := (civil.Date{Year: y, Month: 1, Day: 1}); d.Year == y; d = d.AddDays(1) {
			i.IsHoliday(d)
		}
	}
}

// Fixed is an Oracle backed by an explicit set of dates.
type Fixed map[civil.Date]bool

// IsHoliday implements Oracle.
func (f Fixed) IsHoliday(d civil.Date) bool {
	return f[d]
}
