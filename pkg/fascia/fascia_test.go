package fascia

import (
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pungrid/pungrid/pkg/calendar"
	"github.com/pungrid/pungrid/pkg/timeslot"
	"github.com/pungrid/pungrid/pkg/types"
)

func date(y int, m time.Month, d int) civil.Date {
	return civil.Date{Year: y, Month: m, Day: d}
}

func TestClassify(t *testing.T) {
	// 2024-06-10 is a Monday
	monday := date(2024, time.June, 10)
	saturday := date(2024, time.June, 15)
	sunday := date(2024, time.June, 16)

	t.Run("holidays and sundays", func(t *testing.T) {
		for d := monday; !d.After(sunday); d = d.AddDays(1) {
			for h := 0; h < 24; h++ {
				assert.Equal(t, types.BandF3, Classify(d, true, h), "%s %d", d, h)
			}
		}
		for h := 0; h < 24; h++ {
			assert.Equal(t, types.BandF3, Classify(sunday, false, h), "%d", h)
		}
	})

	t.Run("saturday", func(t *testing.T) {
		for h := 0; h < 24; h++ {
			want := types.BandF3
			if 7 <= h && h < 23 {
				want = types.BandF2
			}
			assert.Equal(t, want, Classify(saturday, false, h), "%d", h)
		}
	})

	t.Run("weekdays partition the day", func(t *testing.T) {
		for d := monday; d.Before(saturday); d = d.AddDays(1) {
			counts := map[types.Band]int{}
			for h := 0; h < 24; h++ {
				b := Classify(d, false, h)
				counts[b]++
				switch {
				case h == 7 || (h >= 19 && h <= 22):
					assert.Equal(t, types.BandF2, b, "%s %d", d, h)
				case h >= 8 && h <= 18:
					assert.Equal(t, types.BandF1, b, "%s %d", d, h)
				default:
					assert.Equal(t, types.BandF3, b, "%s %d", d, h)
				}
			}
			assert.Equal(t, map[types.Band]int{types.BandF1: 11, types.BandF2: 5, types.BandF3: 8}, counts)
		}
	})
}

func TestNext(t *testing.T) {
	noHolidays := calendar.Fixed{}
	rome := timeslot.Rome

	cases := []struct {
		name     string
		at       time.Time
		oracle   calendar.Oracle
		wantBand types.Band
		wantNext time.Time
	}{
		{
			name:     "weekday night before seven",
			at:       time.Date(2024, time.June, 11, 3, 12, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.June, 11, 7, 0, 0, 0, rome),
		},
		{
			name:     "weekday seven",
			at:       time.Date(2024, time.June, 11, 7, 0, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF2,
			wantNext: time.Date(2024, time.June, 11, 8, 0, 0, 0, rome),
		},
		{
			name:     "weekday office hours",
			at:       time.Date(2024, time.June, 11, 12, 30, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF1,
			wantNext: time.Date(2024, time.June, 11, 19, 0, 0, 0, rome),
		},
		{
			name:     "weekday evening",
			at:       time.Date(2024, time.June, 11, 21, 0, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF2,
			wantNext: time.Date(2024, time.June, 11, 23, 0, 0, 0, rome),
		},
		{
			name:     "weekday late night",
			at:       time.Date(2024, time.June, 11, 23, 30, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.June, 12, 7, 0, 0, 0, rome),
		},
		{
			name:     "friday late night goes to saturday",
			at:       time.Date(2024, time.June, 14, 23, 0, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.June, 15, 7, 0, 0, 0, rome),
		},
		{
			name:     "saturday day",
			at:       time.Date(2024, time.June, 15, 10, 0, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF2,
			wantNext: time.Date(2024, time.June, 15, 23, 0, 0, 0, rome),
		},
		{
			name:     "saturday late night skips sunday",
			at:       time.Date(2024, time.June, 15, 23, 10, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.June, 17, 7, 0, 0, 0, rome),
		},
		{
			name:     "sunday",
			at:       time.Date(2024, time.June, 16, 12, 0, 0, 0, rome),
			oracle:   noHolidays,
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.June, 17, 7, 0, 0, 0, rome),
		},
		{
			name:     "holiday saturday is F3 all day",
			at:       time.Date(2024, time.June, 15, 10, 0, 0, 0, rome),
			oracle:   calendar.Fixed{date(2024, time.June, 15): true},
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.June, 17, 7, 0, 0, 0, rome),
		},
		{
			name:     "sunday before holiday monday",
			at:       time.Date(2024, time.March, 31, 12, 0, 0, 0, rome),
			oracle:   calendar.Fixed{date(2024, time.April, 1): true},
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.April, 2, 7, 0, 0, 0, rome),
		},
		{
			name:     "christmas run",
			at:       time.Date(2024, time.December, 24, 23, 0, 0, 0, rome),
			oracle:   calendar.Italy(),
			wantBand: types.BandF3,
			wantNext: time.Date(2024, time.December, 27, 7, 0, 0, 0, rome),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			band, next := Next(tc.at, tc.oracle)
			assert.Equal(t, tc.wantBand, band)
			assert.True(t, tc.wantNext.Equal(next), "want %s got %s", tc.wantNext, next)
		})
	}
}

func TestNextChain(t *testing.T) {
	oracle := calendar.Italy()
	starts := []time.Time{
		time.Date(2024, time.March, 28, 17, 41, 0, 0, timeslot.Rome),  // across easter and spring DST
		time.Date(2024, time.October, 25, 2, 5, 0, 0, timeslot.Rome),  // across fall DST
		time.Date(2024, time.December, 20, 9, 0, 0, 0, timeslot.Rome), // christmas
	}

	for _, start := range starts {
		cur := start
		band, next := Next(cur, oracle)
		for i := 0; i < 200; i++ {
			require.True(t, next.After(cur), "boundary %s not after %s", next, cur)

			nb, nn := Next(next, oracle)
			lt := next.In(timeslot.Rome)
			d := civil.DateOf(lt)
			assert.Equal(t, Classify(d, oracle.IsHoliday(d), lt.Hour()), nb, "band at %s", next)
			assert.Equal(t, nb, ClassifyInstant(next, oracle, timeslot.Rome))

			// every instant before the boundary keeps the previous band
			before := next.Add(-time.Minute)
			if before.After(cur) || before.Equal(cur) {
				assert.Equal(t, band, ClassifyInstant(before, oracle, timeslot.Rome), "before %s", next)
			}

			cur, band, next = next, nb, nn
		}
	}
}

func TestCurrent(t *testing.T) {
	st := Current(time.Date(2024, time.June, 14, 20, 0, 0, 0, timeslot.Rome), calendar.Fixed{})
	assert.Equal(t, types.BandF2, st.Band)
	assert.Equal(t, types.BandF3, st.NextBand)
	assert.True(t, st.Next.Equal(time.Date(2024, time.June, 14, 23, 0, 0, 0, timeslot.Rome)))
	assert.True(t, st.NextEnd.Equal(time.Date(2024, time.June, 15, 7, 0, 0, 0, timeslot.Rome)))
}
