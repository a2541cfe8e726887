package cron

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeSyncer struct {
	runs int
	err  error
}

func (f *fakeSyncer) RunOnce(context.Context) error {
	f.runs++
	return f.err
}

type fakeStuckRepo struct {
	reset     int64
	err       error
	olderThan time.Duration
}

func (f *fakeStuckRepo) ResetStuckSyncing(_ context.Context, olderThan time.Duration) (int64, error) {
	f.olderThan = olderThan
	return f.reset, f.err
}

func TestSyncJobDelegatesToSyncer(t *testing.T) {
	syncer := &fakeSyncer{}
	job, err := NewSyncJob(SyncJobParams{Logger: cronTestLogger(), Syncer: syncer})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "xero-invoice-sync" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if syncer.runs != 1 {
		t.Fatalf("expected 1 run, got %d", syncer.runs)
	}
}

func TestSyncJobWrapsError(t *testing.T) {
	syncer := &fakeSyncer{err: errors.New("xero unavailable")}
	job, err := NewSyncJob(SyncJobParams{Logger: cronTestLogger(), Syncer: syncer})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	runErr := job.Run(context.Background())
	if runErr == nil {
		t.Fatal("expected error from failing syncer")
	}
	if !errors.Is(runErr, syncer.err) {
		t.Fatalf("expected wrapped syncer error, got %v", runErr)
	}
}

func TestStuckResetJobUsesConfiguredWindow(t *testing.T) {
	repo := &fakeStuckRepo{reset: 2}
	job, err := NewStuckResetJob(StuckResetJobParams{
		Logger:     cronTestLogger(),
		Repository: repo,
		OlderThan:  45 * time.Minute,
	})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if job.Name() != "stuck-syncing-reset" {
		t.Fatalf("unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if repo.olderThan != 45*time.Minute {
		t.Fatalf("expected 45m window, got %s", repo.olderThan)
	}
}

func TestStuckResetJobDefaultsWindow(t *testing.T) {
	repo := &fakeStuckRepo{}
	job, err := NewStuckResetJob(StuckResetJobParams{Logger: cronTestLogger(), Repository: repo})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if repo.olderThan != defaultStuckTTL {
		t.Fatalf("expected default window %s, got %s", defaultStuckTTL, repo.olderThan)
	}
}

func TestStuckResetJobPropagatesError(t *testing.T) {
	repo := &fakeStuckRepo{err: errors.New("db down")}
	job, err := NewStuckResetJob(StuckResetJobParams{Logger: cronTestLogger(), Repository: repo})
	if err != nil {
		t.Fatalf("construct job: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error from failing repository")
	}
}
