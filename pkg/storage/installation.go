package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/pungrid/pungrid/pkg/log"
	"github.com/pungrid/pungrid/pkg/types"
)

// EnsureInstallation returns the stored installation, creating it on first
// run. The scan minute is chosen once at random so independent installations
// do not all download at the same wall-clock minute.
func EnsureInstallation(ctx context.Context, db Database) (types.Installation, error) {
	inst, err := db.GetInstallation(ctx)
	if err == nil {
		return inst, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return types.Installation{}, fmt.Errorf("failed to get installation: %w", err)
	}

	inst = types.Installation{
		ID:         uuid.NewString(),
		ScanMinute: rand.IntN(60),
	}
	if err := db.SetInstallation(ctx, inst); err != nil {
		return types.Installation{}, fmt.Errorf("failed to save installation: %w", err)
	}
	log.Ctx(ctx).InfoContext(
		ctx,
		"created installation",
		slog.String("id", inst.ID),
		slog.Int("scanMinute", inst.ScanMinute),
	)
	return inst, nil
}
