package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/leagueledger/backend/pkg/logger"
)

const defaultStuckTTL = 30 * time.Minute

type stuckResetRepo interface {
	ResetStuckSyncing(ctx context.Context, olderThan time.Duration) (int64, error)
}

// StuckResetJobParams configure the stuck-syncing recovery job.
type StuckResetJobParams struct {
	Logger     *logger.Logger
	Repository stuckResetRepo
	OlderThan  time.Duration
}

// NewStuckResetJob returns invoices left in syncing state by a crashed
// worker back to staged so the next cycle can pick them up.
func NewStuckResetJob(params StuckResetJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repository == nil {
		return nil, fmt.Errorf("staging repository required")
	}
	olderThan := params.OlderThan
	if olderThan <= 0 {
		olderThan = defaultStuckTTL
	}
	return &stuckResetJob{
		logg:      params.Logger,
		repo:      params.Repository,
		olderThan: olderThan,
	}, nil
}

type stuckResetJob struct {
	logg      *logger.Logger
	repo      stuckResetRepo
	olderThan time.Duration
}

func (j *stuckResetJob) Name() string { return "stuck-syncing-reset" }

func (j *stuckResetJob) Run(ctx context.Context) error {
	reset, err := j.repo.ResetStuckSyncing(ctx, j.olderThan)
	if err != nil {
		return fmt.Errorf("reset stuck syncing: %w", err)
	}
	if reset > 0 {
		logCtx := j.logg.WithFields(ctx, map[string]any{
			"rows_reset": reset,
			"older_than": j.olderThan.String(),
		})
		j.logg.Warn(logCtx, "recovered invoices stuck in syncing state")
	}
	return nil
}
