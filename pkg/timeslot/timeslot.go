// Package timeslot converts between instants and DST-safe ordinal slots of a
// local calendar day.
//
// A local day has 23, 24 or 25 hourly slots (92, 96 or 100 quarter-hours).
// Slot arithmetic is done on UTC instants, starting from the local midnight,
// and only converted back to the local zone at the end.
package timeslot

import (
	"fmt"
	"time"

	"cloud.google.com/go/civil"

	"github.com/pungrid/pungrid/pkg/types"
)

// Rome is the reference zone of the Italian day-ahead market.
var Rome = func() *time.Location {
	loc, err := time.LoadLocation("Europe/Rome")
	if err != nil {
		panic(fmt.Errorf("failed to load europe/rome location: %w", err))
	}
	return loc
}()

// Midnight returns the start of date in loc as a UTC instant.
func Midnight(date civil.Date, loc *time.Location) time.Time {
	return date.In(loc).UTC()
}

// DateOf returns the calendar date of t in loc.
func DateOf(t time.Time, loc *time.Location) civil.Date {
	return civil.DateOf(t.In(loc))
}

func ordinal(t time.Time, step time.Duration, loc *time.Location) int {
	mid := Midnight(DateOf(t, loc), loc)
	return int(t.UTC().Sub(mid)/step) + 1
}

func fromOrdinal(date civil.Date, n int, step time.Duration, loc *time.Location) time.Time {
	return Midnight(date, loc).Add(time.Duration(n-1) * step).In(loc)
}

// OrdinalHour returns the 1-based hourly slot of t within its local day.
func OrdinalHour(t time.Time, loc *time.Location) int {
	return ordinal(t, time.Hour, loc)
}

// InstantFromOrdinalHour returns the start of hourly slot n of date.
func InstantFromOrdinalHour(date civil.Date, n int, loc *time.Location) time.Time {
	return fromOrdinal(date, n, time.Hour, loc)
}

// OrdinalPeriod returns the 1-based quarter-hour slot of t within its local
// day.
func OrdinalPeriod(t time.Time, loc *time.Location) int {
	return ordinal(t, types.QuarterHourly, loc)
}

// InstantFromOrdinalPeriod returns the start of quarter-hour slot n of date.
func InstantFromOrdinalPeriod(date civil.Date, n int, loc *time.Location) time.Time {
	return fromOrdinal(date, n, types.QuarterHourly, loc)
}

// TotalHoursInDay returns 23, 24 or 25 depending on DST transitions on date.
func TotalHoursInDay(date civil.Date, loc *time.Location) int {
	last := time.Date(date.Year, date.Month, date.Day, 23, 0, 0, 0, loc)
	return OrdinalHour(last, loc)
}

// TotalPeriodsInDay returns 92, 96 or 100.
func TotalPeriodsInDay(date civil.Date, loc *time.Location) int {
	return TotalHoursInDay(date, loc) * 4
}

// TotalSlots returns the number of slots of the given granularity in date.
func TotalSlots(date civil.Date, granularity time.Duration, loc *time.Location) int {
	if granularity == types.QuarterHourly {
		return TotalPeriodsInDay(date, loc)
	}
	return TotalHoursInDay(date, loc)
}

// SlotFor returns the key of the slot containing t.
func SlotFor(t time.Time, granularity time.Duration, loc *time.Location) types.SlotKey {
	return types.SlotKey{
		Date: DateOf(t, loc),
		Slot: ordinal(t, granularity, loc),
	}
}

// SlotStart returns the start instant of key.
func SlotStart(key types.SlotKey, granularity time.Duration, loc *time.Location) time.Time {
	return fromOrdinal(key.Date, key.Slot, granularity, loc)
}

// NextSlotStart returns the first slot boundary strictly after t.
func NextSlotStart(t time.Time, granularity time.Duration, loc *time.Location) time.Time {
	key := SlotFor(t, granularity, loc)
	return SlotStart(key, granularity, loc).UTC().Add(granularity).In(loc)
}

// AddHours adds n hours in fixed-offset space, so crossing a DST change
// neither skips nor repeats an hour.
func AddHours(t time.Time, n int, loc *time.Location) time.Time {
	return t.UTC().Add(time.Duration(n) * time.Hour).In(loc)
}

// AtLocal returns hour:minute of date in loc. date is civil, so adding days to
// it never crosses an instant boundary.
func AtLocal(date civil.Date, hour, minute int, loc *time.Location) time.Time {
	return time.Date(date.Year, date.Month, date.Day, hour, minute, 0, 0, loc)
}
