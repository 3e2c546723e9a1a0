package storagemock

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/pungrid/pungrid/pkg/storage"
	"github.com/pungrid/pungrid/pkg/types"
)

type MockDatabase struct {
	mock.Mock
}

var _ storage.Database = (*MockDatabase)(nil)

func (m *MockDatabase) GetSettings(ctx context.Context) (types.Settings, int, error) {
	args := m.Called(ctx)
	// return empty if not specified, or checks args
	if len(args) > 0 {
		return args.Get(0).(types.Settings), args.Int(1), args.Error(2)
	}
	return types.Settings{}, 0, nil
}

func (m *MockDatabase) SetSettings(ctx context.Context, settings types.Settings, version int) error {
	args := m.Called(ctx, settings, version)
	return args.Error(0)
}

func (m *MockDatabase) GetInstallation(ctx context.Context) (types.Installation, error) {
	args := m.Called(ctx)
	if len(args) > 0 {
		return args.Get(0).(types.Installation), args.Error(1)
	}
	return types.Installation{}, storage.ErrNotFound
}

func (m *MockDatabase) SetInstallation(ctx context.Context, inst types.Installation) error {
	args := m.Called(ctx, inst)
	return args.Error(0)
}

func (m *MockDatabase) UpsertPrices(ctx context.Context, prices []types.Price, version int) error {
	args := m.Called(ctx, prices, version)
	return args.Error(0)
}

func (m *MockDatabase) GetPriceHistory(ctx context.Context, zone types.Zone, start, end time.Time) ([]types.Price, error) {
	args := m.Called(ctx, zone, start, end)
	if len(args) > 0 {
		if p, ok := args.Get(0).([]types.Price); ok {
			return p, args.Error(1)
		}
		return nil, args.Error(1)
	}
	return nil, nil
}

func (m *MockDatabase) Close() error {
	args := m.Called()
	return args.Error(0)
}
