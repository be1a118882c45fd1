package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Reprojector recomputes stored statistics for every portfolio
type Reprojector interface {
	Reproject(ctx context.Context) (int, error)
}

// PricePruner deletes daily closes older than a cutoff
type PricePruner interface {
	DeletePriceDataOlderThan(ctx context.Context, date time.Time) (int64, error)
}

// ReprojectJob refreshes every portfolio's statistics and appends a value
// point to its history
type ReprojectJob struct {
	ledger  Reprojector
	timeout time.Duration
	log     zerolog.Logger
}

// NewReprojectJob creates a new reproject job
func NewReprojectJob(ledger Reprojector, timeout time.Duration, log zerolog.Logger) *ReprojectJob {
	return &ReprojectJob{
		ledger:  ledger,
		timeout: timeout,
		log:     log.With().Str("job", "reproject").Logger(),
	}
}

// Name returns the job name
func (j *ReprojectJob) Name() string {
	return "reproject"
}

// Run executes the job
func (j *ReprojectJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	start := time.Now()
	n, err := j.ledger.Reproject(ctx)
	if err != nil {
		return fmt.Errorf("failed to reproject portfolios: %w", err)
	}

	j.log.Info().Int("portfolios", n).Dur("took", time.Since(start)).Msg("Portfolios reprojected")
	return nil
}

// PriceRetentionJob prunes daily closes past the retention window
type PriceRetentionJob struct {
	prices    PricePruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewPriceRetentionJob creates a new price retention job
func NewPriceRetentionJob(prices PricePruner, retention time.Duration, log zerolog.Logger) *PriceRetentionJob {
	return &PriceRetentionJob{
		prices:    prices,
		retention: retention,
		now:       time.Now,
		log:       log.With().Str("job", "price_retention").Logger(),
	}
}

// Name returns the job name
func (j *PriceRetentionJob) Name() string {
	return "price_retention"
}

// Run executes the job
func (j *PriceRetentionJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := j.now().UTC().Add(-j.retention).Truncate(24 * time.Hour)
	deleted, err := j.prices.DeletePriceDataOlderThan(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune price data: %w", err)
	}

	j.log.Info().Int64("deleted", deleted).Time("cutoff", cutoff).Msg("Old price data pruned")
	return nil
}
