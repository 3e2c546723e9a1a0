// Package controller runs the price engine: it owns the refresh scheduler,
// the band and spot-slot timer lines, and the published snapshot.
package controller

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/civil"
	"github.com/levenlabs/go-lflag"

	"github.com/pungrid/pungrid/pkg/calendar"
	"github.com/pungrid/pungrid/pkg/events"
	"github.com/pungrid/pungrid/pkg/extractor"
	"github.com/pungrid/pungrid/pkg/fascia"
	"github.com/pungrid/pungrid/pkg/gme"
	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/scheduler"
	"github.com/pungrid/pungrid/pkg/storage"
	"github.com/pungrid/pungrid/pkg/timeslot"
	"github.com/pungrid/pungrid/pkg/types"
)

// Downloader fetches a price archive for an inclusive date range.
type Downloader interface {
	Download(ctx context.Context, start, end civil.Date) (*zip.Reader, error)
}

// warmer is implemented by calendars with first-time setup work.
type warmer interface {
	Warm(years ...int)
}

const defaultPublishTimeout = 10 * time.Second

// Controller is the price engine.
type Controller struct {
	clock      scheduler.Clock
	downloader Downloader
	db         storage.Database
	publisher  events.Publisher
	calendar   calendar.Oracle
	loc        *time.Location

	defaults       types.Settings
	flagDiags      []types.Diagnostic
	startupDelay   time.Duration
	publishTimeout time.Duration

	sched    *scheduler.Scheduler
	bandLine *scheduler.Line
	spotLine *scheduler.Line

	mu           sync.Mutex
	ctx          context.Context
	settings     types.Settings
	diagnostics  []types.Diagnostic
	installation types.Installation
	data         *types.PriceData

	// pubMu serializes snapshot builds so the stored snapshot always reflects
	// the latest data.
	pubMu    sync.Mutex
	snapshot atomic.Pointer[types.Snapshot]
}

// Option customizes a Controller.
type Option func(*Controller)

// WithClock replaces the real clock.
func WithClock(clock scheduler.Clock) Option {
	return func(c *Controller) {
		c.clock = clock
	}
}

// WithCalendar replaces the Italian holiday calendar.
func WithCalendar(oracle calendar.Oracle) Option {
	return func(c *Controller) {
		c.calendar = oracle
	}
}

// WithDefaults sets the settings used when none are stored.
func WithDefaults(s types.Settings) Option {
	return func(c *Controller) {
		c.defaults = s
	}
}

// WithStartupDelay sets the delay before the first fetch.
func WithStartupDelay(d time.Duration) Option {
	return func(c *Controller) {
		c.startupDelay = d
	}
}

// WithPublishTimeout bounds each event publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.publishTimeout = d
	}
}

// New returns a controller. Nothing runs until Start.
func New(downloader Downloader, db storage.Database, publisher events.Publisher, opts ...Option) *Controller {
	c := &Controller{}
	c.init(downloader, db, publisher, opts...)
	return c
}

func (c *Controller) init(downloader Downloader, db storage.Database, publisher events.Publisher, opts ...Option) {
	c.clock = scheduler.RealClock{}
	c.downloader = downloader
	c.db = db
	c.publisher = publisher
	c.loc = timeslot.Rome
	c.defaults = types.Settings{ScanHour: 1, Zone: types.DefaultZone}
	c.startupDelay = scheduler.DefaultStartupDelay
	c.publishTimeout = defaultPublishTimeout
	c.ctx = context.Background()
	for _, o := range opts {
		o(c)
	}
	if c.calendar == nil {
		c.calendar = calendar.Italy()
	}
	c.bandLine = scheduler.NewLine(c.clock)
	c.spotLine = scheduler.NewLine(c.clock)
	c.sched = scheduler.New(c.clock, c.refresh, scheduler.Config{
		ScanHour:     c.defaults.ScanHour,
		Location:     c.loc,
		StartupDelay: c.startupDelay,
	})
	c.settings = c.defaults
}

// Configured registers the engine flags and returns a controller bound to
// them.
func Configured(downloader Downloader, db storage.Database, publisher events.Publisher) *Controller {
	scanHour := lflag.Int("scan-hour", 1, "Default hour of the day (0-23, Europe/Rome) to download prices")
	actualDataOnly := lflag.Bool("actual-data-only", false, "Default for excluding the previous month's last days at the start of a month")
	zone := lflag.String("zone", string(types.DefaultZone), "Default zone for zonal prices (empty or none disables them)")
	startupDelay := lflag.Duration("startup-delay", scheduler.DefaultStartupDelay, "Delay before the first download")

	c := &Controller{}
	lflag.Do(func() {
		if *scanHour < 0 || *scanHour > 23 {
			panic(fmt.Sprintf("scan-hour must be between 0 and 23: %d", *scanHour))
		}
		z, diag := types.ZoneOrDefault(*zone)
		defaults := types.Settings{
			ScanHour:       *scanHour,
			ActualDataOnly: *actualDataOnly,
			Zone:           z,
		}
		c.init(downloader, db, publisher, WithDefaults(defaults), WithStartupDelay(*startupDelay))
		if diag != nil {
			ctx := context.Background()
			log.Ctx(ctx).WarnContext(ctx, "zone flag corrected", slog.String("code", string(diag.Code)), slog.String("message", diag.Message))
			c.flagDiags = append(c.flagDiags, *diag)
		}
	})
	return c
}

// Start loads settings, publishes the initial snapshot and arms every timer
// line.
func (c *Controller) Start(ctx context.Context) error {
	ctx = log.Component(ctx, "controller")

	if w, ok := c.calendar.(warmer); ok {
		year := c.clock.Now().In(c.loc).Year()
		w.Warm(year-1, year, year+1)
	}

	inst, err := storage.EnsureInstallation(ctx, c.db)
	if err != nil {
		return err
	}
	settings, diags, err := c.loadSettings(ctx)
	if err != nil {
		return err
	}
	diags = append(append([]types.Diagnostic(nil), c.flagDiags...), diags...)

	c.mu.Lock()
	c.ctx = ctx
	c.installation = inst
	c.settings = settings
	c.diagnostics = diags
	c.mu.Unlock()

	log.Ctx(ctx).InfoContext(
		ctx,
		"starting price engine",
		slog.String("installation", inst.ID),
		slog.Int("scanHour", settings.ScanHour),
		slog.Int("scanMinute", inst.ScanMinute),
		slog.String("zone", string(settings.Zone)),
		slog.Bool("actualDataOnly", settings.ActualDataOnly),
	)

	c.onBand()
	c.onSlot()
	c.sched.SetScanMinute(inst.ScanMinute)
	c.sched.SetScanHour(settings.ScanHour)
	c.sched.Start(ctx)
	return nil
}

// Stop cancels every timer line.
func (c *Controller) Stop() {
	c.sched.Stop()
	c.bandLine.Cancel()
	c.spotLine.Cancel()
}

// loadSettings reads and migrates the stored settings, falling back to the
// configured defaults when nothing is stored.
func (c *Controller) loadSettings(ctx context.Context) (types.Settings, []types.Diagnostic, error) {
	settings, version, err := c.db.GetSettings(ctx)
	if err != nil {
		return types.Settings{}, nil, fmt.Errorf("failed to get settings: %w", err)
	}

	save := false
	if version == 0 {
		settings = c.defaults
		version = types.CurrentSettingsVersion
		save = true
	}
	settings, migrated, err := types.MigrateSettings(settings, version)
	if err != nil {
		return types.Settings{}, nil, fmt.Errorf("failed to migrate settings: %w", err)
	}

	settings, diags, err := settings.Validate()
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "stored settings invalid, using defaults", slog.Any("error", err))
		settings, diags, err = c.defaults.Validate()
		if err != nil {
			return types.Settings{}, nil, fmt.Errorf("invalid default settings: %w", err)
		}
		save = true
	}
	for _, d := range diags {
		log.Ctx(ctx).WarnContext(ctx, "settings corrected", slog.String("code", string(d.Code)), slog.String("message", d.Message))
	}

	if save || migrated || len(diags) > 0 {
		if err := c.db.SetSettings(ctx, settings, types.CurrentSettingsVersion); err != nil {
			return types.Settings{}, nil, fmt.Errorf("failed to save settings: %w", err)
		}
	}
	return settings, diags, nil
}

// refresh downloads and extracts the archive for today. On any error the
// previously published data stays in place.
func (c *Controller) refresh(ctx context.Context) error {
	settings := c.Settings()
	now := c.clock.Now()
	today := timeslot.DateOf(now, c.loc)
	start, end := gme.Window(today, settings.ActualDataOnly)

	log.Ctx(ctx).InfoContext(
		ctx,
		"refreshing prices",
		slog.String("start", start.String()),
		slog.String("end", end.String()),
	)

	archive, err := c.downloader.Download(ctx, start, end)
	if err != nil {
		return fmt.Errorf("failed to download prices: %w", err)
	}
	data, err := extractor.Extract(ctx, archive, extractor.Options{
		Reference: today,
		Zone:      settings.Zone,
		Calendar:  c.calendar,
		Location:  c.loc,
		Weights:   settings.Weights(),
	})
	if err != nil {
		return fmt.Errorf("failed to extract prices: %w", err)
	}

	c.mu.Lock()
	c.data = data
	source := c.installation.ID
	c.mu.Unlock()

	snap := c.publishSnapshot(now)
	c.armSpot(now)

	prices := types.PricesFromSpot(types.ZoneNone, data.National)
	if data.Zone != types.ZoneNone {
		prices = append(prices, types.PricesFromSpot(data.Zone, data.Zonal)...)
	}
	if err := c.db.UpsertPrices(ctx, prices, types.CurrentPriceHistoryVersion); err != nil {
		log.Ctx(ctx).ErrorContext(ctx, "failed to save price history", slog.Any("error", err))
	}

	c.emit(ctx, events.Event{
		Kind:     events.KindPriceUpdate,
		Source:   source,
		Time:     now,
		Averages: &snap.Averages,
		Zone:     snap.Zone,
		National: &snap.National.Current,
		Zonal:    &snap.Zonal.Current,
	})
	return nil
}

// onBand republishes the band state and arms the band line at its next
// boundary.
func (c *Controller) onBand() {
	now := c.clock.Now()
	snap := c.publishSnapshot(now)
	c.bandLine.Arm(snap.Band.Next, c.onBand)

	ctx := c.context()
	log.Ctx(ctx).DebugContext(
		ctx,
		"band updated",
		slog.String("band", snap.Band.Band.String()),
		slog.Time("next", snap.Band.Next),
		slog.String("nextBand", snap.Band.NextBand.String()),
	)
	c.emit(ctx, events.Event{
		Kind:   events.KindBandChange,
		Source: c.Installation().ID,
		Time:   now,
		Band:   &snap.Band,
	})
}

// onSlot republishes the current spot prices at every slot boundary.
func (c *Controller) onSlot() {
	now := c.clock.Now()
	snap := c.publishSnapshot(now)
	c.armSpot(now)

	if !snap.National.Current.Available && !snap.Zonal.Current.Available {
		return
	}
	c.emit(c.context(), events.Event{
		Kind:     events.KindSpotSlot,
		Source:   c.Installation().ID,
		Time:     now,
		Zone:     snap.Zone,
		National: &snap.National.Current,
		Zonal:    &snap.Zonal.Current,
	})
}

// armSpot arms the spot line at the next quarter hour when quarter-hour prices
// are known and at the next hour otherwise.
func (c *Controller) armSpot(now time.Time) {
	c.mu.Lock()
	granularity := types.Hourly
	if c.data != nil && (c.data.National.Quarter.Len() > 0 || c.data.Zonal.Quarter.Len() > 0) {
		granularity = types.QuarterHourly
	}
	c.mu.Unlock()
	c.spotLine.Arm(timeslot.NextSlotStart(now, granularity, c.loc), c.onSlot)
}

func (c *Controller) emit(ctx context.Context, e events.Event) {
	if c.publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.publishTimeout)
	defer cancel()
	if err := c.publisher.Publish(ctx, e); err != nil {
		log.Ctx(ctx).WarnContext(ctx, "failed to publish event", slog.String("kind", string(e.Kind)), slog.Any("error", err))
	}
}

// publishSnapshot builds a snapshot for now from the current data and swaps
// it in.
func (c *Controller) publishSnapshot(now time.Time) *types.Snapshot {
	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	c.mu.Lock()
	data := c.data
	settings := c.settings
	diags := append([]types.Diagnostic(nil), c.diagnostics...)
	c.mu.Unlock()

	band := fascia.Current(now, c.calendar)
	snap := &types.Snapshot{
		UpdatedAt:   now,
		Band:        band,
		Zone:        settings.Zone,
		Diagnostics: diags,
	}
	if data != nil {
		snap.Reference = data.Reference
		snap.Averages = data.Averages
		snap.BandPrice, snap.BandPriceAvailable = data.Averages.Value(band.Band)
		snap.National = c.view(now, data.National)
		snap.Zone = data.Zone
		if data.Zone != types.ZoneNone {
			snap.Zonal = c.view(now, data.Zonal)
		}
	}
	c.snapshot.Store(snap)
	return snap
}

// view renders today and tomorrow of set. The current price prefers the
// quarter hour over the hour.
func (c *Controller) view(now time.Time, set types.SpotSet) types.SpotView {
	today := timeslot.DateOf(now, c.loc)
	tomorrow := today.AddDays(1)
	v := types.SpotView{
		Today:    set.Hourly.Day(today, timeslot.TotalHoursInDay(today, c.loc)),
		Tomorrow: set.Hourly.Day(tomorrow, timeslot.TotalHoursInDay(tomorrow, c.loc)),
	}
	if set.Quarter.Len() > 0 {
		v.TodayQuarter = set.Quarter.Day(today, timeslot.TotalPeriodsInDay(today, c.loc))
		v.TomorrowQuarter = set.Quarter.Day(tomorrow, timeslot.TotalPeriodsInDay(tomorrow, c.loc))
	}
	if p, ok := set.Quarter.Get(timeslot.SlotFor(now, types.QuarterHourly, c.loc)); ok && p.Available {
		v.Current = p
	} else if p, ok := set.Hourly.Get(timeslot.SlotFor(now, types.Hourly, c.loc)); ok {
		v.Current = p
	}
	return v
}

// ApplySettings validates, persists and applies new settings. An unknown zone
// is replaced with the default zone and reported as a diagnostic.
func (c *Controller) ApplySettings(ctx context.Context, s types.Settings) (types.Settings, []types.Diagnostic, error) {
	validated, diags, err := s.Validate()
	if err != nil {
		return types.Settings{}, nil, fmt.Errorf("%w: %w", ErrInvalidSettings, err)
	}
	if err := c.db.SetSettings(ctx, validated, types.CurrentSettingsVersion); err != nil {
		return types.Settings{}, nil, fmt.Errorf("failed to save settings: %w", err)
	}
	for _, d := range diags {
		log.Ctx(ctx).WarnContext(ctx, "settings corrected", slog.String("code", string(d.Code)), slog.String("message", d.Message))
	}

	c.mu.Lock()
	old := c.settings
	c.settings = validated
	c.diagnostics = diags
	c.mu.Unlock()

	if old.ScanHour != validated.ScanHour {
		c.sched.SetScanHour(validated.ScanHour)
	}
	if old.ActualDataOnly != validated.ActualDataOnly || old.Zone != validated.Zone || old.Weights() != validated.Weights() {
		c.sched.Reconfigure(scheduler.ChangeData)
	}
	c.publishSnapshot(c.clock.Now())
	return validated, diags, nil
}

// ErrInvalidSettings is returned by ApplySettings for settings that cannot be
// corrected.
var ErrInvalidSettings = errors.New("invalid settings")

// RunNow requests an immediate refresh. It returns false while one is in
// flight.
func (c *Controller) RunNow() bool {
	return c.sched.RunNow()
}

// Snapshot returns a copy of the published snapshot.
func (c *Controller) Snapshot() types.Snapshot {
	s := c.snapshot.Load()
	if s == nil {
		return types.Snapshot{}
	}
	return *s.Clone()
}

// Settings returns the active settings.
func (c *Controller) Settings() types.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings
}

// Installation returns the installation identity.
func (c *Controller) Installation() types.Installation {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installation
}

// SchedulerStatus returns the state of the refresh scheduler.
func (c *Controller) SchedulerStatus() scheduler.Status {
	return c.sched.Status()
}

// PriceHistory returns stored prices of zone starting in [start, end).
func (c *Controller) PriceHistory(ctx context.Context, zone types.Zone, start, end time.Time) ([]types.Price, error) {
	return c.db.GetPriceHistory(ctx, zone, start, end)
}

func (c *Controller) context() context.Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}
