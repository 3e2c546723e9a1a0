package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pungrid/pungrid/pkg/controller"
	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/scheduler"
	"github.com/pungrid/pungrid/pkg/types"
)

// SettingsRes is the response type for the settings endpoints.
type SettingsRes struct {
	types.Settings
	Diagnostics []types.Diagnostic `json:"diagnostics,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, SettingsRes{
		Settings:    s.engine.Settings(),
		Diagnostics: s.engine.Snapshot().Diagnostics,
	})
}

func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req types.Settings
	r.Body = http.MaxBytesReader(w, r.Body, 1<<16)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to decode settings", slog.Any("error", err))
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	settings, diags, err := s.engine.ApplySettings(ctx, req)
	if err != nil {
		if errors.Is(err, controller.ErrInvalidSettings) {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}
		log.Ctx(ctx).ErrorContext(ctx, "failed to apply settings", slog.Any("error", err))
		writeJSONError(w, "failed to apply settings", http.StatusInternalServerError)
		return
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"settings updated",
		slog.String("email", s.getEmail(r)),
		slog.Int("scanHour", settings.ScanHour),
		slog.String("zone", string(settings.Zone)),
		slog.Bool("actualDataOnly", settings.ActualDataOnly),
	)

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, SettingsRes{
		Settings:    settings,
		Diagnostics: diags,
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !s.engine.RunNow() {
		writeJSONError(w, "refresh already in progress", http.StatusConflict)
		return
	}
	log.Ctx(ctx).InfoContext(ctx, "manual refresh requested", slog.String("email", s.getEmail(r)))

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(struct {
		Scheduler scheduler.Status `json:"scheduler"`
	}{Scheduler: s.engine.SchedulerStatus()}); err != nil {
		panic(http.ErrAbortHandler)
	}
}
