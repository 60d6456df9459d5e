package cron

import (
	"context"
	"fmt"

	"github.com/andrebarreto/stockflow-backend/internal/inventory"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

// SnapshotRefreshJobParams configure the inventory snapshot warmer.
type SnapshotRefreshJobParams struct {
	Logger    *logger.Logger
	Snapshots snapshotRefresher
}

type snapshotRefresher interface {
	Refresh(ctx context.Context) (*inventory.Snapshot, error)
}

// NewSnapshotRefreshJob builds the cron job that keeps the cached inventory
// snapshot warm so reads never pay the rebuild cost.
func NewSnapshotRefreshJob(params SnapshotRefreshJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Snapshots == nil {
		return nil, fmt.Errorf("snapshot service required")
	}
	return &snapshotRefreshJob{logg: params.Logger, snapshots: params.Snapshots}, nil
}

type snapshotRefreshJob struct {
	logg      *logger.Logger
	snapshots snapshotRefresher
}

func (j *snapshotRefreshJob) Name() string { return "inventory-snapshot-refresh" }

func (j *snapshotRefreshJob) Run(ctx context.Context) error {
	snap, err := j.snapshots.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("snapshot refresh: %w", err)
	}
	ctx = j.logg.WithField(ctx, "materials", len(snap.Rows))
	j.logg.Info(ctx, "inventory snapshot refreshed")
	return nil
}
