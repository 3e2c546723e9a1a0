// Package fascia classifies hours into tariff bands and finds the instant of
// the next band change.
//
//	F1 = Mon-Fri 08-19
//	F2 = Mon-Fri 07-08 and 19-23, Sat 07-23
//	F3 = Mon-Sat 00-07 and 23-24, Sundays and holidays
package fascia

import (
	"time"

	"cloud.google.com/go/civil"

	"github.com/pungrid/pungrid/pkg/calendar"
	"github.com/pungrid/pungrid/pkg/timeslot"
	"github.com/pungrid/pungrid/pkg/types"
)

// maxHolidayRun bounds the search for the next working day. No real calendar
// has this many consecutive holidays.
const maxHolidayRun = 60

// Classify returns the band of hour (0-23) of date.
func Classify(date civil.Date, holiday bool, hour int) types.Band {
	wd := date.Weekday()
	if holiday || wd == time.Sunday {
		return types.BandF3
	}

	if wd == time.Saturday {
		if 7 <= hour && hour < 23 {
			return types.BandF2
		}
		return types.BandF3
	}

	switch {
	case hour == 7 || (19 <= hour && hour < 23):
		return types.BandF2
	case 8 <= hour && hour < 19:
		return types.BandF1
	default:
		return types.BandF3
	}
}

// ClassifyInstant returns the band of the hour containing t in loc.
func ClassifyInstant(t time.Time, oracle calendar.Oracle, loc *time.Location) types.Band {
	lt := t.In(loc)
	d := civil.DateOf(lt)
	return Classify(d, oracle.IsHoliday(d), lt.Hour())
}

// Next returns the band at t and the instant of the next band change.
// t is evaluated in the market zone. Callers chain by calling Next again at
// the returned instant.
func Next(t time.Time, oracle calendar.Oracle) (types.Band, time.Time) {
	lt := t.In(timeslot.Rome)
	d := civil.DateOf(lt)
	h := lt.Hour()

	if oracle.IsHoliday(d) {
		return types.BandF3, nextWorkingMorning(d, oracle)
	}

	switch d.Weekday() {
	case time.Sunday:
		return types.BandF3, nextWorkingMorning(d, oracle)

	case time.Saturday:
		switch {
		case 7 <= h && h < 23:
			return types.BandF2, at(d, 23)
		case h < 7:
			return types.BandF3, at(d, 7)
		default:
			return types.BandF3, nextWorkingMorning(d, oracle)
		}

	default:
		switch {
		case h == 7:
			return types.BandF2, at(d, 8)
		case 19 <= h && h < 23:
			return types.BandF2, at(d, 23)
		case 8 <= h && h < 19:
			return types.BandF1, at(d, 19)
		case h < 7:
			return types.BandF3, at(d, 7)
		default:
			return types.BandF3, nextWorkingMorning(d, oracle)
		}
	}
}

// Current returns the band state at t: the current band, the next boundary,
// the band that starts there and when that one ends.
func Current(t time.Time, oracle calendar.Oracle) types.BandState {
	band, next := Next(t, oracle)
	nextBand, nextEnd := Next(next, oracle)
	return types.BandState{
		Band:     band,
		Next:     next,
		NextBand: nextBand,
		NextEnd:  nextEnd,
	}
}

func at(d civil.Date, hour int) time.Time {
	return timeslot.AtLocal(d, hour, 0, timeslot.Rome)
}

// nextWorkingMorning returns 07:00 of the first day after d that is neither a
// Sunday nor a holiday.
func nextWorkingMorning(d civil.Date, oracle calendar.Oracle) time.Time {
	next := d.AddDays(1)
	for i := 0; i < maxHolidayRun; i++ {
		if next.Weekday() != time.Sunday && !oracle.IsHoliday(next) {
			break
		}
		next = next.AddDays(1)
	}
	return at(next, 7)
}
