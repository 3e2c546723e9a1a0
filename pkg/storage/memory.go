package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pungrid/pungrid/pkg/types"
)

// Memory is a process-local Database. Nothing survives a restart.
type Memory struct {
	mu              sync.Mutex
	settings        types.Settings
	settingsVersion int
	hasSettings     bool
	installation    *types.Installation
	prices          map[string]types.Price
}

var _ Database = (*Memory)(nil)

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{
		prices: make(map[string]types.Price),
	}
}

// GetSettings implements Database. Missing settings return version 0.
func (m *Memory) GetSettings(ctx context.Context) (types.Settings, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasSettings {
		return types.Settings{}, 0, nil
	}
	return m.settings, m.settingsVersion, nil
}

// SetSettings implements Database.
func (m *Memory) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = settings
	m.settingsVersion = version
	m.hasSettings = true
	return nil
}

// GetInstallation implements Database.
func (m *Memory) GetInstallation(ctx context.Context) (types.Installation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.installation == nil {
		return types.Installation{}, ErrNotFound
	}
	return *m.installation, nil
}

// SetInstallation implements Database.
func (m *Memory) SetInstallation(ctx context.Context, inst types.Installation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.installation = &inst
	return nil
}

// UpsertPrices implements Database.
func (m *Memory) UpsertPrices(ctx context.Context, prices []types.Price, version int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range prices {
		m.prices[p.ID()] = p
	}
	return nil
}

// GetPriceHistory implements Database.
func (m *Memory) GetPriceHistory(ctx context.Context, zone types.Zone, start, end time.Time) ([]types.Price, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Price
	for _, p := range m.prices {
		if p.Zone != zone || p.TSStart.Before(start) || !p.TSStart.Before(end) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TSStart.Equal(out[j].TSStart) {
			return out[i].Granularity > out[j].Granularity
		}
		return out[i].TSStart.Before(out[j].TSStart)
	})
	return out, nil
}

// Close implements Database.
func (m *Memory) Close() error {
	return nil
}
