// Package extractor turns an archive of daily price publications into band
// averages and today/tomorrow spot price maps.
package extractor

import (
	"archive/zip"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"

	"github.com/pungrid/pungrid/pkg/calendar"
	"github.com/pungrid/pungrid/pkg/fascia"
	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/timeslot"
	"github.com/pungrid/pungrid/pkg/types"
)

var (
	// ErrMalformedFile is returned when a day file cannot be parsed or lacks
	// its date.
	ErrMalformedFile = errors.New("malformed price file")

	errMissingPrice = errors.New("missing price")
)

// Options controls an extraction.
type Options struct {
	// Reference is "today". Rows up to and including it feed the averages;
	// rows from it onwards feed the spot maps.
	Reference civil.Date
	Zone      types.Zone
	Calendar  calendar.Oracle
	Location  *time.Location
	Weights   types.F23Weights
}

// Extract parses every file of archive, in name order, into a new PriceData.
// On error nothing is returned so the caller keeps its previous data.
func Extract(ctx context.Context, archive *zip.Reader, opts Options) (*types.PriceData, error) {
	if opts.Calendar == nil {
		return nil, errors.New("extractor requires a calendar")
	}
	if opts.Location == nil {
		opts.Location = timeslot.Rome
	}
	if opts.Weights == (types.F23Weights{}) {
		opts.Weights = types.DefaultF23Weights()
	}

	files := make([]*zip.File, 0, len(archive.File))
	for _, f := range archive.File {
		if f.FileInfo().IsDir() {
			continue
		}
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool {
		return files[i].Name < files[j].Name
	})

	data := types.NewPriceData(opts.Reference, opts.Zone)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := extractFile(ctx, f, opts, data); err != nil {
			return nil, err
		}
		data.Files++
	}

	data.Averages = ComputeAverages(&data.Series, opts.Weights)

	l := log.Ctx(ctx)
	for _, b := range types.Bands {
		v, ok := data.Averages.Value(b)
		l.DebugContext(
			ctx,
			"band average",
			slog.String("band", b.String()),
			slog.Int("count", data.Averages.Counts[b]),
			slog.Float64("value", v),
			slog.Bool("available", ok),
		)
	}
	l.InfoContext(
		ctx,
		"extracted prices",
		slog.Int("files", data.Files),
		slog.Int("rows", data.Rows),
		slog.Int("skipped", data.Skipped),
		slog.Int("hourly", data.National.Hourly.Len()),
		slog.Int("quarter", data.National.Quarter.Len()),
		slog.String("zone", string(data.Zone)),
	)
	return data, nil
}

func extractFile(ctx context.Context, f *zip.File, opts Options, data *types.PriceData) error {
	l := log.Ctx(ctx).With(slog.String("file", f.Name))

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: failed to open %s: %w", ErrMalformedFile, f.Name, err)
	}
	defer rc.Close()

	var doc document
	if err := xml.NewDecoder(rc).Decode(&doc); err != nil {
		return fmt.Errorf("%w: failed to parse %s: %w", ErrMalformedFile, f.Name, err)
	}

	date, err := fileDate(doc)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrMalformedFile, f.Name, err)
	}
	holiday := opts.Calendar.IsHoliday(date)
	l.DebugContext(ctx, "parsing day file", slog.String("date", date.String()), slog.Bool("holiday", holiday))

	rollingWindow := !date.After(opts.Reference)
	spotWindow := !date.Before(opts.Reference)

	for _, r := range doc.Rows {
		g, ok := r.granularity()
		if !ok {
			continue
		}
		data.Rows++

		if m, ok := r.get(fieldMarket); ok && m != spotMarket {
			l.WarnContext(ctx, "skipping row for unexpected market", slog.String("market", m))
			data.Skipped++
			continue
		}
		if tag, ok := r.get(fieldGranularity); ok && tag != granularityTag(g) {
			l.WarnContext(
				ctx,
				"skipping row with mismatched granularity",
				slog.String("container", r.XMLName.Local),
				slog.String("granularity", tag),
			)
			data.Skipped++
			continue
		}

		slotStr, _ := r.get(slotField(g))
		slot, err := strconv.Atoi(slotStr)
		if err != nil {
			l.WarnContext(ctx, "skipping row with invalid slot", slog.String("slot", slotStr), slog.Any("error", err))
			data.Skipped++
			continue
		}
		if total := timeslot.TotalSlots(date, g, opts.Location); slot < 1 || slot > total {
			l.WarnContext(
				ctx,
				"slot out of range for day",
				slog.String("date", date.String()),
				slog.Int("slot", slot),
				slog.Int("total", total),
			)
		}

		key := types.SlotKey{Date: date, Slot: slot}
		start := timeslot.SlotStart(key, g, opts.Location)
		end := start.UTC().Add(g).In(opts.Location)

		raw, _ := r.get(fieldNational)
		price, err := parsePrice(raw)
		if err != nil {
			l.WarnContext(ctx, "row without national price", slog.Int("slot", slot), slog.String("value", raw), slog.Any("error", err))
			data.Skipped++
		} else {
			if rollingWindow {
				data.Series.Append(fascia.Classify(date, holiday, start.Hour()), price)
			}
			if spotWindow {
				spotMap(data.National, g).Set(key, types.SpotPrice{
					Start:     start,
					End:       end,
					Value:     price,
					Available: true,
				})
			}
		}

		if spotWindow && data.Zone != types.ZoneNone {
			sp := types.SpotPrice{Start: start, End: end}
			zraw, _ := r.get(string(data.Zone))
			if zp, err := parsePrice(zraw); err == nil {
				sp.Value = zp
				sp.Available = true
			} else {
				l.DebugContext(ctx, "row without zonal price", slog.String("zone", string(data.Zone)), slog.Int("slot", slot))
			}
			spotMap(data.Zonal, g).Set(key, sp)
		}
	}
	return nil
}

func spotMap(set types.SpotSet, g time.Duration) types.SpotMap {
	if g == types.QuarterHourly {
		return set.Quarter
	}
	return set.Hourly
}

// fileDate returns the date of the first price row. A file holds one day.
func fileDate(doc document) (civil.Date, error) {
	for _, r := range doc.Rows {
		if _, ok := r.granularity(); !ok {
			continue
		}
		s, ok := r.get(fieldDate)
		if !ok {
			return civil.Date{}, errors.New("missing date")
		}
		return parseDate(s)
	}
	return civil.Date{}, errors.New("no price rows")
}

// parseDate parses YYYYMMDD.
func parseDate(s string) (civil.Date, error) {
	t, err := time.Parse("20060102", s)
	if err != nil {
		return civil.Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return civil.DateOf(t), nil
}

// parsePrice converts a decimal-comma price in currency per MWh, with dots as
// thousands separators, to currency per kWh.
func parsePrice(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errMissingPrice
	}
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	return d.Shift(-3).InexactFloat64(), nil
}

// ComputeAverages returns the mean of every measured band and the F23 blend,
// which is only available when both F2 and F3 have data.
func ComputeAverages(s *types.BandSeries, w types.F23Weights) types.Averages {
	var a types.Averages
	for _, b := range types.Bands {
		switch b {
		case types.BandMono, types.BandF1, types.BandF2, types.BandF3:
			a.Counts[b] = len(s[b])
			a.Values[b] = mean(s[b])
		case types.BandF23:
			if len(s[types.BandF2]) > 0 && len(s[types.BandF3]) > 0 {
				a.Counts[b] = len(s[types.BandF2]) + len(s[types.BandF3])
				a.Values[b] = w.F2*mean(s[types.BandF2]) + w.F3*mean(s[types.BandF3])
			}
		}
	}
	return a
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
