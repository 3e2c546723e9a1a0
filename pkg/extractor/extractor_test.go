package extractor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pungrid/pungrid/pkg/calendar"
	"github.com/pungrid/pungrid/pkg/timeslot"
	"github.com/pungrid/pungrid/pkg/types"
)

type xmlRow struct {
	tag    string
	fields [][2]string
}

func hourRow(date string, hour int, pun string, extra ...[2]string) xmlRow {
	fields := [][2]string{
		{"Data", date},
		{"Mercato", "MGP"},
		{"Ora", fmt.Sprint(hour)},
	}
	if pun != "" {
		fields = append(fields, [2]string{"PUN", pun})
	}
	return xmlRow{tag: "Prezzi", fields: append(fields, extra...)}
}

func quarterRow(date string, period int, pun string) xmlRow {
	return xmlRow{tag: "PrezziQuartorari", fields: [][2]string{
		{"Data", date},
		{"Mercato", "MGP"},
		{"Granularita", "PT15"},
		{"Periodo", fmt.Sprint(period)},
		{"PUN", pun},
	}}
}

func dayXML(rows ...xmlRow) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" standalone="yes"?>` + "\n<NewDataSet>\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "  <%s>\n", r.tag)
		for _, f := range r.fields {
			fmt.Fprintf(&b, "    <%s>%s</%s>\n", f[0], f[1], f[0])
		}
		fmt.Fprintf(&b, "  </%s>\n", r.tag)
	}
	b.WriteString("</NewDataSet>\n")
	return b.String()
}

func buildZip(t *testing.T, files map[string]string, order ...string) *zip.Reader {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	if len(order) == 0 {
		for name := range files {
			order = append(order, name)
		}
	}
	for _, name := range order {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(files[name]))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	require.NoError(t, err)
	return zr
}

func opts(ref civil.Date, zone types.Zone) Options {
	return Options{
		Reference: ref,
		Zone:      zone,
		Calendar:  calendar.Fixed{},
		Location:  timeslot.Rome,
	}
}

func TestParsePrice(t *testing.T) {
	cases := map[string]float64{
		"100,5":      0.1005,
		"1.234,56":   1.23456,
		" 87,000000": 0.087,
		"0":          0,
	}
	for in, want := range cases {
		got, err := parsePrice(in)
		require.NoError(t, err, in)
		assert.InDelta(t, want, got, 1e-12, in)
	}

	_, err := parsePrice("")
	assert.ErrorIs(t, err, errMissingPrice)
	_, err = parsePrice("n/a")
	assert.Error(t, err)
}

func TestComputeAverages(t *testing.T) {
	t.Run("blend needs both sides", func(t *testing.T) {
		var s types.BandSeries
		s.Append(types.BandF2, 0.10)
		s.Append(types.BandF2, 0.12)
		s.Append(types.BandF3, 0.08)

		a := ComputeAverages(&s, types.DefaultF23Weights())
		v, ok := a.Value(types.BandF23)
		require.True(t, ok)
		assert.InDelta(t, 0.0938, v, 1e-9)
		assert.Equal(t, 3, a.Counts[types.BandF23])
		assert.InDelta(t, 0.10, a.Values[types.BandMono], 1e-9)
		assert.False(t, a.Available(types.BandF1))
	})

	t.Run("missing F3", func(t *testing.T) {
		var s types.BandSeries
		s.Append(types.BandF2, 0.10)
		a := ComputeAverages(&s, types.DefaultF23Weights())
		v, ok := a.Value(types.BandF23)
		assert.False(t, ok)
		assert.Zero(t, v)
	})

	t.Run("custom weights", func(t *testing.T) {
		var s types.BandSeries
		s.Append(types.BandF2, 0.2)
		s.Append(types.BandF3, 0.1)
		a := ComputeAverages(&s, types.F23Weights{F2: 0.5, F3: 0.5})
		assert.InDelta(t, 0.15, a.Values[types.BandF23], 1e-9)
	})

	t.Run("mono matches band totals", func(t *testing.T) {
		var s types.BandSeries
		for i, b := range []types.Band{types.BandF1, types.BandF1, types.BandF2, types.BandF3, types.BandF3} {
			s.Append(b, float64(i))
		}
		a := ComputeAverages(&s, types.DefaultF23Weights())
		assert.Equal(t, a.Counts[types.BandMono], a.Counts[types.BandF1]+a.Counts[types.BandF2]+a.Counts[types.BandF3])
	})
}

func TestExtract(t *testing.T) {
	ctx := context.Background()
	// 2024-06-10 is a Monday, 2024-06-11 a Tuesday
	ref := civil.Date{Year: 2024, Month: time.June, Day: 11}

	t.Run("windows", func(t *testing.T) {
		zr := buildZip(t, map[string]string{
			"20240610MGPPrezzi.xml": dayXML(
				hourRow("20240610", 10, "100,000000"), // F1
				hourRow("20240610", 21, "120,000000"), // F2
			),
			"20240611MGPPrezzi.xml": dayXML(
				hourRow("20240611", 3, "80,000000"), // F3
			),
			"20240612MGPPrezzi.xml": dayXML(
				hourRow("20240612", 3, "500,000000"),
			),
		})

		data, err := Extract(ctx, zr, opts(ref, types.ZoneNone))
		require.NoError(t, err)
		assert.Equal(t, 3, data.Files)
		assert.Equal(t, 4, data.Rows)
		assert.Zero(t, data.Skipped)

		// tomorrow does not feed the averages
		assert.Equal(t, 3, data.Averages.Counts[types.BandMono])
		assert.InDelta(t, 0.1, data.Averages.Values[types.BandF1], 1e-9)
		assert.InDelta(t, 0.12, data.Averages.Values[types.BandF2], 1e-9)
		assert.InDelta(t, 0.08, data.Averages.Values[types.BandF3], 1e-9)
		assert.InDelta(t, 0.46*0.12+0.54*0.08, data.Averages.Values[types.BandF23], 1e-9)

		// yesterday does not feed the spot map
		assert.Equal(t, 2, data.National.Hourly.Len())
		_, ok := data.National.Hourly.Get(types.SlotKey{Date: ref.AddDays(-1), Slot: 10})
		assert.False(t, ok)
		p, ok := data.National.Hourly.Get(types.SlotKey{Date: ref.AddDays(1), Slot: 3})
		require.True(t, ok)
		assert.True(t, p.Available)
		assert.InDelta(t, 0.5, p.Value, 1e-9)
		assert.True(t, p.Start.Equal(time.Date(2024, time.June, 12, 2, 0, 0, 0, timeslot.Rome)))
		assert.True(t, p.End.Equal(time.Date(2024, time.June, 12, 3, 0, 0, 0, timeslot.Rome)))

		assert.Zero(t, data.Zonal.Hourly.Len())
	})

	t.Run("idempotent", func(t *testing.T) {
		files := map[string]string{
			"a.xml": dayXML(hourRow("20240611", 9, "100,0"), hourRow("20240611", 20, "110,0")),
			"b.xml": dayXML(hourRow("20240610", 1, "90,0")),
		}
		first, err := Extract(ctx, buildZip(t, files, "a.xml", "b.xml"), opts(ref, types.ZoneNORD))
		require.NoError(t, err)
		second, err := Extract(ctx, buildZip(t, files, "b.xml", "a.xml"), opts(ref, types.ZoneNORD))
		require.NoError(t, err)
		assert.Equal(t, first.Averages, second.Averages)
		assert.Equal(t, first.National.Hourly.Prices, second.National.Hourly.Prices)
	})

	t.Run("holiday is F3", func(t *testing.T) {
		zr := buildZip(t, map[string]string{
			"d.xml": dayXML(hourRow("20240611", 12, "100,0")),
		})
		o := opts(ref, types.ZoneNone)
		o.Calendar = calendar.Fixed{ref: true}
		data, err := Extract(ctx, zr, o)
		require.NoError(t, err)
		assert.Equal(t, 1, data.Averages.Counts[types.BandF3])
		assert.Zero(t, data.Averages.Counts[types.BandF1])
	})

	t.Run("missing national price", func(t *testing.T) {
		zr := buildZip(t, map[string]string{
			"d.xml": dayXML(
				hourRow("20240611", 12, "", [2]string{"NORD", "95,5"}),
				hourRow("20240611", 13, "100,0"),
			),
		})
		data, err := Extract(ctx, zr, opts(ref, types.ZoneNORD))
		require.NoError(t, err)
		assert.Equal(t, 1, data.Skipped)
		assert.Equal(t, 1, data.Averages.Counts[types.BandMono])

		_, ok := data.National.Hourly.Get(types.SlotKey{Date: ref, Slot: 12})
		assert.False(t, ok)

		zp, ok := data.Zonal.Hourly.Get(types.SlotKey{Date: ref, Slot: 12})
		require.True(t, ok)
		assert.True(t, zp.Available)
		assert.InDelta(t, 0.0955, zp.Value, 1e-9)

		// zone missing from the row is recorded as unavailable
		zp, ok = data.Zonal.Hourly.Get(types.SlotKey{Date: ref, Slot: 13})
		require.True(t, ok)
		assert.False(t, zp.Available)
	})

	t.Run("dst day", func(t *testing.T) {
		// 2024-10-27 has 25 hours; slots 3 and 4 both start at 02:00 local
		day := civil.Date{Year: 2024, Month: time.October, Day: 27}
		var rows []xmlRow
		for h := 1; h <= 25; h++ {
			rows = append(rows, hourRow("20241027", h, fmt.Sprintf("%d,0", 100+h)))
		}
		zr := buildZip(t, map[string]string{"d.xml": dayXML(rows...)})
		data, err := Extract(ctx, zr, opts(day, types.ZoneNone))
		require.NoError(t, err)
		assert.Equal(t, 25, data.National.Hourly.Len())
		assert.Equal(t, 25, data.Averages.Counts[types.BandF3]) // sunday

		p3, _ := data.National.Hourly.Get(types.SlotKey{Date: day, Slot: 3})
		p4, _ := data.National.Hourly.Get(types.SlotKey{Date: day, Slot: 4})
		assert.Equal(t, 2, p3.Start.Hour())
		assert.Equal(t, 2, p4.Start.Hour())
		assert.Equal(t, time.Hour, p4.Start.Sub(p3.Start))

		last, _ := data.National.Hourly.Get(types.SlotKey{Date: day, Slot: 25})
		assert.True(t, last.End.Equal(time.Date(2024, time.October, 28, 0, 0, 0, 0, timeslot.Rome)))
	})

	t.Run("quarter hours", func(t *testing.T) {
		zr := buildZip(t, map[string]string{
			"d.xml": dayXML(
				quarterRow("20240611", 1, "80,0"),
				quarterRow("20240611", 2, "82,0"),
				quarterRow("20240611", 37, "120,0"), // 09:00
			),
		})
		data, err := Extract(ctx, zr, opts(ref, types.ZoneNone))
		require.NoError(t, err)
		assert.Equal(t, 3, data.National.Quarter.Len())
		assert.Zero(t, data.National.Hourly.Len())

		p, ok := data.National.Quarter.Get(types.SlotKey{Date: ref, Slot: 37})
		require.True(t, ok)
		assert.True(t, p.Start.Equal(time.Date(2024, time.June, 11, 9, 0, 0, 0, timeslot.Rome)))
		assert.Equal(t, 15*time.Minute, p.End.Sub(p.Start))
		assert.Equal(t, 1, data.Averages.Counts[types.BandF1])
		assert.Equal(t, 2, data.Averages.Counts[types.BandF3])
	})

	t.Run("rejected rows", func(t *testing.T) {
		wrongMarket := hourRow("20240611", 5, "10,0")
		wrongMarket.fields[1][1] = "MI1"
		wrongGranularity := hourRow("20240611", 6, "10,0", [2]string{"Granularita", "PT15"})
		badSlot := hourRow("20240611", 0, "10,0")
		badSlot.fields[2][1] = "x"

		zr := buildZip(t, map[string]string{
			"d.xml": dayXML(wrongMarket, wrongGranularity, badSlot, hourRow("20240611", 7, "10,0")),
		})
		data, err := Extract(ctx, zr, opts(ref, types.ZoneNone))
		require.NoError(t, err)
		assert.Equal(t, 4, data.Rows)
		assert.Equal(t, 3, data.Skipped)
		assert.Equal(t, 1, data.National.Hourly.Len())
	})

	t.Run("slot past end of day", func(t *testing.T) {
		// slot 25 on a 24 hour weekday is kept and lands at midnight
		var rows []xmlRow
		for h := 1; h <= 25; h++ {
			rows = append(rows, hourRow("20240611", h, "100,0"))
		}
		zr := buildZip(t, map[string]string{"d.xml": dayXML(rows...)})
		data, err := Extract(ctx, zr, opts(ref, types.ZoneNone))
		require.NoError(t, err)
		assert.Equal(t, 25, data.Rows)
		assert.Zero(t, data.Skipped)
		assert.Equal(t, 25, data.National.Hourly.Len())

		p, ok := data.National.Hourly.Get(types.SlotKey{Date: ref, Slot: 25})
		require.True(t, ok)
		assert.True(t, p.Available)
		assert.True(t, p.Start.Equal(time.Date(2024, time.June, 12, 0, 0, 0, 0, timeslot.Rome)))

		assert.Equal(t, 25, data.Averages.Counts[types.BandMono])
		// hours 0-6 and 23 plus the extra midnight slot
		assert.Equal(t, 9, data.Averages.Counts[types.BandF3])
	})

	t.Run("malformed file", func(t *testing.T) {
		zr := buildZip(t, map[string]string{
			"a.xml": dayXML(hourRow("20240611", 1, "10,0")),
			"b.xml": "<NewDataSet><Prezzi><Data>2024",
		})
		data, err := Extract(ctx, zr, opts(ref, types.ZoneNone))
		assert.ErrorIs(t, err, ErrMalformedFile)
		assert.Nil(t, data)
	})

	t.Run("missing date", func(t *testing.T) {
		zr := buildZip(t, map[string]string{
			"a.xml": "<NewDataSet><Prezzi><Ora>1</Ora><PUN>1,0</PUN></Prezzi></NewDataSet>",
		})
		_, err := Extract(ctx, zr, opts(ref, types.ZoneNone))
		assert.ErrorIs(t, err, ErrMalformedFile)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		zr := buildZip(t, map[string]string{"a.xml": dayXML(hourRow("20240611", 1, "10,0"))})
		_, err := Extract(cctx, zr, opts(ref, types.ZoneNone))
		assert.ErrorIs(t, err, context.Canceled)
	})
}
