package main

import (
	"context"
	"fmt"
	"math/rand/v2"
	"os"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/pungrid/pungrid/pkg/calendar"
	"github.com/pungrid/pungrid/pkg/fascia"
	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/storage"
	"github.com/pungrid/pungrid/pkg/timeslot"
	"github.com/pungrid/pungrid/pkg/types"
)

// base prices in €/kWh per band
var bandPrice = map[types.Band]float64{
	types.BandF1: 0.13,
	types.BandF2: 0.11,
	types.BandF3: 0.09,
}

func main() {
	os.Setenv("FIRESTORE_EMULATOR_HOST", "127.0.0.1:8087")
	s := storage.Configured()
	seedRange := lflag.Duration("seed-range", 14*24*time.Hour, "How far back to seed hourly prices")
	lflag.Configure()

	ctx := context.Background()
	defer s.Close()

	log.Ctx(ctx).InfoContext(ctx, "seeding mock prices")

	cal := calendar.Italy()
	today := timeslot.DateOf(time.Now(), timeslot.Rome)
	first := timeslot.DateOf(time.Now().Add(-*seedRange), timeslot.Rome)

	var prices []types.Price
	for d := first; !d.After(today.AddDays(1)); d = d.AddDays(1) {
		holiday := cal.IsHoliday(d)
		for slot := 1; slot <= timeslot.TotalHoursInDay(d, timeslot.Rome); slot++ {
			start := timeslot.InstantFromOrdinalHour(d, slot, timeslot.Rome)
			band := fascia.Classify(d, holiday, start.In(timeslot.Rome).Hour())
			national := bandPrice[band] + rand.Float64()*0.02 - 0.01
			for _, z := range []types.Zone{types.ZoneNone, types.ZoneNORD} {
				v := national
				if z != types.ZoneNone {
					v += rand.Float64()*0.004 - 0.002
				}
				prices = append(prices, types.Price{
					Zone:        z,
					TSStart:     start,
					TSEnd:       start.Add(time.Hour),
					EuroPerKWH:  v,
					Granularity: time.Hour,
				})
			}
		}
	}

	if err := s.UpsertPrices(ctx, prices, types.CurrentPriceHistoryVersion); err != nil {
		panic(fmt.Errorf("failed to seed prices: %w", err))
	}
	if err := s.SetSettings(ctx, types.Settings{ScanHour: 1, Zone: types.ZoneNORD}, types.CurrentSettingsVersion); err != nil {
		panic(fmt.Errorf("failed to seed settings: %w", err))
	}

	log.Ctx(ctx).InfoContext(ctx, fmt.Sprintf("seeded %d prices from %s to %s", len(prices), first, today.AddDays(1)))
}
