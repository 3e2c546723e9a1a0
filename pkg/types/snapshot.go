package types

import (
	"time"

	"cloud.google.com/go/civil"
)

// BandState pairs the current band with the instant it ends. It is always
// replaced as a whole.
type BandState struct {
	Band     Band      `json:"band"`
	Next     time.Time `json:"next"`
	NextBand Band      `json:"nextBand"`
	// NextEnd is the instant the band following Next ends.
	NextEnd time.Time `json:"nextEnd"`
}

// SpotView is the presentation form of a spot price source.
type SpotView struct {
	Current         SpotPrice   `json:"current"`
	Today           []SpotPrice `json:"today"`
	Tomorrow        []SpotPrice `json:"tomorrow"`
	TodayQuarter    []SpotPrice `json:"todayQuarter,omitempty"`
	TomorrowQuarter []SpotPrice `json:"tomorrowQuarter,omitempty"`
}

func (v SpotView) clone() SpotView {
	return SpotView{
		Current:         v.Current,
		Today:           cloneSpots(v.Today),
		Tomorrow:        cloneSpots(v.Tomorrow),
		TodayQuarter:    cloneSpots(v.TodayQuarter),
		TomorrowQuarter: cloneSpots(v.TomorrowQuarter),
	}
}

func cloneSpots(s []SpotPrice) []SpotPrice {
	if s == nil {
		return nil
	}
	return append([]SpotPrice(nil), s...)
}

// Snapshot is the read-only published output of the engine.
type Snapshot struct {
	UpdatedAt time.Time  `json:"updatedAt"`
	Reference civil.Date `json:"reference"`

	Band               BandState `json:"band"`
	BandPrice          float64   `json:"bandPrice"`
	BandPriceAvailable bool      `json:"bandPriceAvailable"`

	Averages Averages `json:"averages"`

	National SpotView `json:"national"`
	Zone     Zone     `json:"zone"`
	Zonal    SpotView `json:"zonal"`

	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
}

// Clone returns a deep copy of s so callers can never alias engine state.
func (s *Snapshot) Clone() *Snapshot {
	if s == nil {
		return nil
	}
	c := *s
	c.National = s.National.clone()
	c.Zonal = s.Zonal.clone()
	if s.Diagnostics != nil {
		c.Diagnostics = append([]Diagnostic(nil), s.Diagnostics...)
	}
	return &c
}
