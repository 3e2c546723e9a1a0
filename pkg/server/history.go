package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/scheduler"
	"github.com/pungrid/pungrid/pkg/timeslot"
	"github.com/pungrid/pungrid/pkg/types"
)

const maxHistoryRange = 7 * 24 * time.Hour

type bandAverage struct {
	Band      types.Band `json:"band"`
	Value     float64    `json:"value"`
	Count     int        `json:"count"`
	Available bool       `json:"available"`
}

func bandAverages(a types.Averages) []bandAverage {
	out := make([]bandAverage, 0, len(types.Bands))
	for _, b := range types.Bands {
		v, ok := a.Value(b)
		out = append(out, bandAverage{
			Band:      b,
			Value:     v,
			Count:     a.Counts[b],
			Available: ok,
		})
	}
	return out
}

type statusResponse struct {
	UpdatedAt          time.Time          `json:"updatedAt"`
	Band               types.BandState    `json:"band"`
	BandPrice          float64            `json:"bandPrice"`
	BandPriceAvailable bool               `json:"bandPriceAvailable"`
	National           types.SpotPrice    `json:"national"`
	Zone               types.Zone         `json:"zone,omitempty"`
	Zonal              types.SpotPrice    `json:"zonal"`
	Scheduler          scheduler.Status   `json:"scheduler"`
	Diagnostics        []types.Diagnostic `json:"diagnostics,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, statusResponse{
		UpdatedAt:          snap.UpdatedAt,
		Band:               snap.Band,
		BandPrice:          snap.BandPrice,
		BandPriceAvailable: snap.BandPriceAvailable,
		National:           snap.National.Current,
		Zone:               snap.Zone,
		Zonal:              snap.Zonal.Current,
		Scheduler:          s.engine.SchedulerStatus(),
		Diagnostics:        snap.Diagnostics,
	})
}

type pricesResponse struct {
	Reference civil.Date     `json:"reference"`
	Averages  []bandAverage  `json:"averages"`
	National  types.SpotView `json:"national"`
	Zone      types.Zone     `json:"zone,omitempty"`
	Zonal     types.SpotView `json:"zonal"`
}

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.Snapshot()
	w.Header().Set("Cache-Control", "private, max-age=60")
	writeJSON(w, pricesResponse{
		Reference: snap.Reference,
		Averages:  bandAverages(snap.Averages),
		National:  snap.National,
		Zone:      snap.Zone,
		Zonal:     snap.Zonal,
	})
}

func (s *Server) handleHistoryPrices(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start, end, err := s.parseTimeRange(r)
	if err != nil {
		writeJSONError(w, "invalid time range: "+err.Error(), http.StatusBadRequest)
		return
	}
	zone, err := parseHistoryZone(r.URL.Query().Get("zone"))
	if err != nil {
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	prices, err := s.engine.PriceHistory(ctx, zone, start, end)
	if err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to get prices", slog.String("zone", string(zone)), slog.Any("error", err))
		writeJSONError(w, "failed to get prices", http.StatusInternalServerError)
		return
	}
	if prices == nil {
		prices = []types.Price{}
	}

	// past days never change, today's prices may still arrive
	today := timeslot.AtLocal(timeslot.DateOf(s.now(), timeslot.Rome), 0, 0, timeslot.Rome)
	if end.Before(today) {
		w.Header().Set("Cache-Control", "private, max-age=86400")
	} else {
		w.Header().Set("Cache-Control", "private, max-age=60")
	}
	writeJSON(w, prices)
}

// parseHistoryZone maps an empty value or PUN to the national price.
func parseHistoryZone(s string) (types.Zone, error) {
	if s == "" || strings.EqualFold(s, "PUN") {
		return types.ZoneNone, nil
	}
	return types.ParseZone(s)
}

func (s *Server) parseTimeRange(r *http.Request) (time.Time, time.Time, error) {
	startStr := r.URL.Query().Get("start")
	endStr := r.URL.Query().Get("end")

	if startStr == "" || endStr == "" {
		// Default to last 24 hours if not specified
		end := s.now()
		start := end.Add(-24 * time.Hour)
		return start, end, nil
	}

	start, err := time.Parse(time.RFC3339, startStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid start time: %w", err)
	}

	end, err := time.Parse(time.RFC3339, endStr)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid end time: %w", err)
	}

	if end.Before(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("start time must be before end time")
	}

	if end.Sub(start) > maxHistoryRange {
		return time.Time{}, time.Time{}, fmt.Errorf("time range cannot exceed 7 days")
	}

	return start, end, nil
}
