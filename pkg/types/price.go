package types

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

const (
	// CurrentPriceHistoryVersion is stored with every persisted price.
	CurrentPriceHistoryVersion = 1

	// Hourly and QuarterHourly are the publication granularities.
	Hourly        = time.Hour
	QuarterHourly = 15 * time.Minute
)

// SlotKey identifies a DST-safe ordinal slot (hour or quarter-hour) within a
// local calendar day.
type SlotKey struct {
	Date civil.Date `json:"date"`
	Slot int        `json:"slot"`
}

// String packs the key as YYYYMMDD followed by the two or three digit slot.
func (k SlotKey) String() string {
	if k.Slot > 99 {
		return fmt.Sprintf("%04d%02d%02d%03d", k.Date.Year, int(k.Date.Month), k.Date.Day, k.Slot)
	}
	return fmt.Sprintf("%04d%02d%02d%02d", k.Date.Year, int(k.Date.Month), k.Date.Day, k.Slot)
}

// SpotPrice is the price of a single slot. Available is false when the
// publication listed the slot without a price.
type SpotPrice struct {
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Value     float64   `json:"value"`
	Available bool      `json:"available"`
}

// SpotMap maps slots of today and tomorrow to their price.
type SpotMap struct {
	Granularity time.Duration
	Prices      map[SlotKey]SpotPrice
}

// NewSpotMap returns an empty map for the given granularity.
func NewSpotMap(granularity time.Duration) SpotMap {
	return SpotMap{
		Granularity: granularity,
		Prices:      make(map[SlotKey]SpotPrice),
	}
}

// Set records the price for key, replacing any previous value.
func (m SpotMap) Set(key SlotKey, p SpotPrice) {
	m.Prices[key] = p
}

// Get returns the price for key and whether the slot is known at all.
func (m SpotMap) Get(key SlotKey) (SpotPrice, bool) {
	p, ok := m.Prices[key]
	return p, ok
}

// Len returns the number of known slots.
func (m SpotMap) Len() int {
	return len(m.Prices)
}

// Sorted returns the known slots ordered by start time.
func (m SpotMap) Sorted() []SpotPrice {
	out := make([]SpotPrice, 0, len(m.Prices))
	for _, p := range m.Prices {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Start.Before(out[j].Start)
	})
	return out
}

// Day returns the prices of date indexed by slot-1. The returned slice has
// length slots; unknown slots are left as unavailable.
func (m SpotMap) Day(date civil.Date, slots int) []SpotPrice {
	out := make([]SpotPrice, slots)
	for i := range out {
		if p, ok := m.Prices[SlotKey{Date: date, Slot: i + 1}]; ok {
			out[i] = p
		}
	}
	return out
}

// Clone returns an independent copy of m.
func (m SpotMap) Clone() SpotMap {
	c := NewSpotMap(m.Granularity)
	for k, v := range m.Prices {
		c.Prices[k] = v
	}
	return c
}

// SpotSet groups the hourly and quarter-hourly maps of one price source.
type SpotSet struct {
	Hourly  SpotMap
	Quarter SpotMap
}

// NewSpotSet returns empty hourly and quarter-hourly maps.
func NewSpotSet() SpotSet {
	return SpotSet{
		Hourly:  NewSpotMap(Hourly),
		Quarter: NewSpotMap(QuarterHourly),
	}
}

// Clone returns an independent copy of s.
func (s SpotSet) Clone() SpotSet {
	return SpotSet{
		Hourly:  s.Hourly.Clone(),
		Quarter: s.Quarter.Clone(),
	}
}

// Averages holds the rolling-window average per band along with the number
// of prices that produced it.
type Averages struct {
	Values BandValues `json:"values"`
	Counts BandCounts `json:"counts"`
}

// Available reports whether the average for b was computed from data.
func (a Averages) Available(b Band) bool {
	return a.Counts[b] > 0
}

// Value returns the average for b and whether it is available.
func (a Averages) Value(b Band) (float64, bool) {
	return a.Values[b], a.Available(b)
}

// PriceData is the result of a single extraction. It is built fresh on every
// fetch and never mutated once published.
type PriceData struct {
	Reference civil.Date
	Series    BandSeries
	Averages  Averages
	National  SpotSet
	Zone      Zone
	Zonal     SpotSet

	Files   int
	Rows    int
	Skipped int
}

// NewPriceData returns an empty PriceData for the given zone.
func NewPriceData(reference civil.Date, zone Zone) *PriceData {
	return &PriceData{
		Reference: reference,
		National:  NewSpotSet(),
		Zone:      zone,
		Zonal:     NewSpotSet(),
	}
}

// Price is a persisted spot price record.
type Price struct {
	Zone        Zone          `json:"zone,omitempty"`
	TSStart     time.Time     `json:"tsStart"`
	TSEnd       time.Time     `json:"tsEnd"`
	EuroPerKWH  float64       `json:"euroPerKWH"`
	Granularity time.Duration `json:"granularity"`
}

// ID returns the storage identifier of the record.
func (p Price) ID() string {
	src := "PUN"
	if p.Zone != ZoneNone {
		src = string(p.Zone)
	}
	return fmt.Sprintf("%s_%s_%d", p.TSStart.UTC().Format(time.RFC3339), src, int(p.Granularity/time.Minute))
}

// PricesFromSpot flattens the available prices of set into records.
func PricesFromSpot(zone Zone, set SpotSet) []Price {
	var out []Price
	for _, m := range []SpotMap{set.Hourly, set.Quarter} {
		for _, p := range m.Sorted() {
			if !p.Available {
				continue
			}
			out = append(out, Price{
				Zone:        zone,
				TSStart:     p.Start,
				TSEnd:       p.End,
				EuroPerKWH:  p.Value,
				Granularity: m.Granularity,
			})
		}
	}
	return out
}
