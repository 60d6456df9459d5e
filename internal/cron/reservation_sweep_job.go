package cron

import (
	"context"
	"fmt"

	"github.com/andrebarreto/stockflow-backend/internal/reservations"
	"github.com/andrebarreto/stockflow-backend/pkg/logger"
)

// ReservationSweepJobParams configure the expired reservation sweeper.
type ReservationSweepJobParams struct {
	Logger  *logger.Logger
	Sweeper reservationSweeper
}

type reservationSweeper interface {
	SweepExpired(ctx context.Context) (*reservations.SweepResult, error)
}

// NewReservationSweepJob builds the cron job that releases expired stock
// reservations back to the pool.
func NewReservationSweepJob(params ReservationSweepJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Sweeper == nil {
		return nil, fmt.Errorf("reservation sweeper required")
	}
	return &reservationSweepJob{
		logg:    params.Logger,
		sweeper: params.Sweeper,
	}, nil
}

type reservationSweepJob struct {
	logg    *logger.Logger
	sweeper reservationSweeper
}

func (j *reservationSweepJob) Name() string { return "reservation-sweep" }

func (j *reservationSweepJob) Run(ctx context.Context) error {
	result, err := j.sweeper.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("reservation sweep: %w", err)
	}
	if result.Released > 0 {
		ctx = j.logg.WithField(ctx, "released", result.Released)
		ctx = j.logg.WithField(ctx, "orders", len(result.OrdersTouched))
		j.logg.Info(ctx, "released expired reservations")
	}
	return nil
}
