package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/ysjshop/backend/internal/stock"
	"github.com/ysjshop/backend/pkg/logger"
)

const defaultReservationTTL = 30 * time.Minute

type expiredPrelockFinder interface {
	FindExpiredPrelocks(ctx context.Context, cutoff time.Time) ([]stock.ExpiredPrelock, error)
}

type prelockReleaser interface {
	Release(ctx context.Context, input stock.ReleaseInput) (*stock.ReleaseResult, error)
}

// ReservationExpiryJobParams configure the stale reservation sweeper.
type ReservationExpiryJobParams struct {
	Logger   *logger.Logger
	Finder   expiredPrelockFinder
	Releaser prelockReleaser
	TTL      time.Duration
	Now      func() time.Time
}

// NewReservationExpiryJob builds the cron job that returns abandoned
// reservations to the sellable pool. A reservation is abandoned when its
// prelock predates the TTL and no confirm or release ever followed.
func NewReservationExpiryJob(params ReservationExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Finder == nil {
		return nil, fmt.Errorf("expired prelock finder required")
	}
	if params.Releaser == nil {
		return nil, fmt.Errorf("stock releaser required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultReservationTTL
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &reservationExpiryJob{
		logg:     params.Logger,
		finder:   params.Finder,
		releaser: params.Releaser,
		ttl:      ttl,
		now:      now,
	}, nil
}

type reservationExpiryJob struct {
	logg     *logger.Logger
	finder   expiredPrelockFinder
	releaser prelockReleaser
	ttl      time.Duration
	now      func() time.Time
}

func (j *reservationExpiryJob) Name() string { return "reservation-expiry" }

func (j *reservationExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	expired, err := j.finder.FindExpiredPrelocks(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("query expired reservations: %w", err)
	}

	var (
		errs     []error
		released int
	)
	for _, reservation := range expired {
		result, err := j.releaser.Release(ctx, stock.ReleaseInput{
			ProductID: reservation.ProductID,
			Qty:       reservation.Qty,
			OrderID:   reservation.OrderID,
			Reason:    "reservation expired",
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("release product %s order %s: %w",
				reservation.ProductID, reservation.OrderID, err))
			continue
		}
		released += result.Released
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"expired":  len(expired),
		"released": released,
	})
	j.logg.Info(logCtx, "reservation expiry sweep complete")
	return multierr.Combine(errs...)
}
