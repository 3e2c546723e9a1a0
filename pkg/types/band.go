package types

import (
	"fmt"
	"strings"
)

// Band is a tariff time-band (fascia). The set is closed: every table keyed by
// Band is an array sized numBands so a new value is visible everywhere.
type Band int

const (
	// BandMono aggregates every hour regardless of its band.
	BandMono Band = iota
	BandF1
	BandF2
	BandF3
	// BandF23 is a weighted blend of F2 and F3. It is never measured directly.
	BandF23

	numBands = int(BandF23) + 1
)

// Bands lists every band in declaration order.
var Bands = [numBands]Band{BandMono, BandF1, BandF2, BandF3, BandF23}

// String returns the name used in logs, events and the API.
func (b Band) String() string {
	switch b {
	case BandMono:
		return "MONO"
	case BandF1:
		return "F1"
	case BandF2:
		return "F2"
	case BandF3:
		return "F3"
	case BandF23:
		return "F23"
	default:
		return fmt.Sprintf("Band(%d)", int(b))
	}
}

// Valid reports whether b is one of the declared bands.
func (b Band) Valid() bool {
	return b >= BandMono && b <= BandF23
}

// Measured reports whether prices are accumulated for b directly.
func (b Band) Measured() bool {
	return b.Valid() && b != BandF23
}

// MarshalText implements encoding.TextMarshaler.
func (b Band) MarshalText() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("invalid band: %d", int(b))
	}
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Band) UnmarshalText(text []byte) error {
	parsed, err := ParseBand(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBand parses a band name, case-insensitively.
func ParseBand(s string) (Band, error) {
	for _, b := range Bands {
		if strings.EqualFold(s, b.String()) {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown band: %q", s)
}

// BandValues holds one scalar per band.
type BandValues [numBands]float64

// Get returns the value for b.
func (v BandValues) Get(b Band) float64 {
	return v[b]
}

// BandCounts holds one count per band.
type BandCounts [numBands]int

// BandSeries holds the observed prices per band for the rolling window.
// The F23 entry stays empty.
type BandSeries [numBands][]float64

// Append records price for MONO and for the specific band.
func (s *BandSeries) Append(b Band, price float64) {
	s[BandMono] = append(s[BandMono], price)
	if b != BandMono {
		s[b] = append(s[b], price)
	}
}

// Len returns the number of prices observed for b.
func (s *BandSeries) Len(b Band) int {
	return len(s[b])
}

// Reset empties every series, keeping the backing arrays.
func (s *BandSeries) Reset() {
	for i := range s {
		s[i] = s[i][:0]
	}
}

// F23Weights are the coefficients used to blend the F2 and F3 averages.
// They were fitted empirically for this blend only.
type F23Weights struct {
	F2 float64 `json:"f2"`
	F3 float64 `json:"f3"`
}

// DefaultF23Weights returns the weights published by the original tariff.
func DefaultF23Weights() F23Weights {
	return F23Weights{F2: 0.46, F3: 0.54}
}
