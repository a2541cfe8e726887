package cron

import (
	"context"
	"fmt"

	"github.com/leagueledger/backend/pkg/logger"
)

type syncRunner interface {
	RunOnce(ctx context.Context) error
}

// SyncJobParams configure the invoice sync job.
type SyncJobParams struct {
	Logger *logger.Logger
	Syncer syncRunner
}

// NewSyncJob wraps a syncer run in a named cron job.
func NewSyncJob(params SyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Syncer == nil {
		return nil, fmt.Errorf("syncer required")
	}
	return &syncJob{logg: params.Logger, syncer: params.Syncer}, nil
}

type syncJob struct {
	logg   *logger.Logger
	syncer syncRunner
}

func (j *syncJob) Name() string { return "xero-invoice-sync" }

func (j *syncJob) Run(ctx context.Context) error {
	if err := j.syncer.RunOnce(ctx); err != nil {
		return fmt.Errorf("invoice sync: %w", err)
	}
	return nil
}
