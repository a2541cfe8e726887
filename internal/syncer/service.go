package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/multierr"

	"github.com/leagueledger/backend/internal/staging"
	"github.com/leagueledger/backend/pkg/batch"
	"github.com/leagueledger/backend/pkg/config"
	"github.com/leagueledger/backend/pkg/db/models"
	"github.com/leagueledger/backend/pkg/enums"
	"github.com/leagueledger/backend/pkg/logger"
	"github.com/leagueledger/backend/pkg/metrics"
	"github.com/leagueledger/backend/pkg/xero"
)

// dueDateOffset is how long after staging an invoice falls due.
const dueDateOffset = 14 * 24 * time.Hour

// xeroAPI is the slice of the Xero client the syncer uses.
type xeroAPI interface {
	CreateInvoice(ctx context.Context, inv xero.Invoice) (*xero.InvoiceResult, error)
	CreatePayment(ctx context.Context, pay xero.Payment) (*xero.PaymentResult, error)
}

// ServiceParams configure the sync service.
type ServiceParams struct {
	Logger     *logger.Logger
	Repo       staging.Repository
	Xero       xeroAPI
	Metrics    *metrics.SyncMetrics
	TenantID   string
	Config     config.SyncConfig
	Strategies *batch.Registry
}

// Service pushes claimed staging invoices to Xero in retried, rate-limit-aware
// batches and persists the per-row outcome.
type Service struct {
	logg       *logger.Logger
	repo       staging.Repository
	xero       xeroAPI
	metrics    *metrics.SyncMetrics
	tenantID   string
	cfg        config.SyncConfig
	strategies *batch.Registry
}

// NewService builds a sync service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("staging repository required")
	}
	if params.Xero == nil {
		return nil, fmt.Errorf("xero client required")
	}
	if strings.TrimSpace(params.TenantID) == "" {
		return nil, fmt.Errorf("xero tenant ID required")
	}
	strategies := params.Strategies
	if strategies == nil {
		strategies = batch.NewRegistry()
	}
	return &Service{
		logg:       params.Logger,
		repo:       params.Repo,
		xero:       params.Xero,
		metrics:    params.Metrics,
		tenantID:   strings.TrimSpace(params.TenantID),
		cfg:        params.Config,
		strategies: strategies,
	}, nil
}

// RunOnce claims one batch of staged invoices and syncs it. A failing invoice
// never aborts its siblings; per-row outcomes are persisted individually and
// persistence errors are collected rather than short-circuiting.
func (s *Service) RunOnce(ctx context.Context) error {
	claimed, err := s.repo.ClaimStaged(ctx, s.cfg.ClaimLimit)
	if err != nil {
		return fmt.Errorf("claim staged invoices: %w", err)
	}
	if len(claimed) == 0 {
		s.refreshPendingGauge(ctx)
		return nil
	}

	items := make([]*models.StagingInvoice, len(claimed))
	for i := range claimed {
		items[i] = &claimed[i]
	}

	logCtx := s.logg.WithField(ctx, "claimed", len(items))
	s.logg.Info(logCtx, "sync run starting")

	var calls int64
	result := batch.ProcessBatch(ctx, items, func(ctx context.Context, inv *models.StagingInvoice) (*models.StagingInvoice, error) {
		atomic.AddInt64(&calls, 1)
		return s.syncInvoice(ctx, inv)
	}, batch.Options[*models.StagingInvoice]{
		BatchSize:     s.cfg.BatchSize,
		Concurrency:   s.cfg.Concurrency,
		OperationType: batch.OpXeroAPI,
		BatchDelay:    s.cfg.BatchDelay,
		Strategies:    s.strategies,
		Logger:        s.logg,
	})

	var persistErrs error
	for _, failure := range result.Failed {
		persistErrs = multierr.Append(persistErrs, s.persistFailure(ctx, failure.Item, failure.Err))
	}

	s.observeRun(result, atomic.LoadInt64(&calls))
	s.refreshPendingGauge(ctx)

	runCtx := s.logg.WithFields(ctx, map[string]any{
		"synced":      result.Metrics.SuccessCount,
		"failed":      result.Metrics.FailureCount,
		"duration_ms": result.Metrics.ProcessingTime.Milliseconds(),
	})
	s.logg.Info(runCtx, "sync run complete")

	if persistErrs != nil {
		return fmt.Errorf("persist sync outcomes: %w", persistErrs)
	}
	return nil
}

// syncInvoice pushes one staging invoice and, when present, its payment. The
// Xero invoice ID is persisted as soon as the document exists so a payment
// failure or requeue never creates the invoice twice.
func (s *Service) syncInvoice(ctx context.Context, inv *models.StagingInvoice) (*models.StagingInvoice, error) {
	invCtx := s.logg.WithInvoiceID(ctx, inv.ID.String())

	if inv.XeroInvoiceID == nil {
		doc, err := s.buildInvoice(inv)
		if err != nil {
			return nil, err
		}
		created, err := s.xero.CreateInvoice(invCtx, doc)
		if err != nil {
			return nil, fmt.Errorf("create xero invoice: %w", err)
		}
		xeroID := created.InvoiceID
		inv.XeroInvoiceID = &xeroID
		if number := strings.TrimSpace(created.InvoiceNumber); number != "" {
			inv.XeroInvoiceNumber = &number
		}
	}

	if inv.SyncStatus != enums.SyncStatusSynced {
		if err := s.repo.MarkInvoiceSynced(invCtx, inv.ID, s.tenantID, *inv.XeroInvoiceID, derefString(inv.XeroInvoiceNumber)); err != nil {
			return nil, fmt.Errorf("mark invoice synced: %w", err)
		}
		inv.SyncStatus = enums.SyncStatusSynced
	}

	if inv.Payment != nil && inv.Payment.SyncStatus != enums.SyncStatusSynced {
		reference := paymentReference(inv)
		created, err := s.xero.CreatePayment(invCtx, xero.Payment{
			InvoiceID:   *inv.XeroInvoiceID,
			AccountCode: inv.Payment.AccountCode,
			Date:        inv.Payment.StagedAt,
			AmountCents: int64(inv.Payment.AmountPaidCents),
			Reference:   reference,
		})
		if err != nil {
			return nil, fmt.Errorf("create xero payment: %w", err)
		}
		if err := s.repo.MarkPaymentSynced(invCtx, inv.ID, s.tenantID, created.PaymentID, reference); err != nil {
			return nil, fmt.Errorf("mark payment synced: %w", err)
		}
		inv.Payment.SyncStatus = enums.SyncStatusSynced
		inv.Payment.Reference = &reference
	}

	return inv, nil
}

func (s *Service) buildInvoice(inv *models.StagingInvoice) (xero.Invoice, error) {
	envelope, err := staging.ParseMetadata(inv.Metadata)
	if err != nil {
		return xero.Invoice{}, fmt.Errorf("invoice %s: %w", inv.ID, err)
	}
	if len(inv.LineItems) == 0 {
		return xero.Invoice{}, fmt.Errorf("invoice %s has no line items", inv.ID)
	}

	lines := make([]xero.LineItem, 0, len(inv.LineItems))
	for _, item := range inv.LineItems {
		lines = append(lines, xero.LineItem{
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitAmountCents: int64(item.UnitAmountCents),
			LineAmountCents: int64(item.LineAmountCents),
			AccountCode:     item.AccountCode,
		})
	}

	return xero.Invoice{
		ContactName: fmt.Sprintf("Member %s", envelope.UserID),
		Reference:   referenceFor(inv),
		Date:        inv.StagedAt,
		DueDate:     inv.StagedAt.Add(dueDateOffset),
		Status:      string(inv.InvoiceStatus),
		LineItems:   lines,
	}, nil
}

// persistFailure marks the invoice (and any unsynced payment row) failed. An
// invoice that reached Xero before its payment failed keeps its Xero ID, so a
// later requeue retries only the payment leg.
func (s *Service) persistFailure(ctx context.Context, inv *models.StagingInvoice, cause string) error {
	invCtx := s.logg.WithInvoiceID(ctx, inv.ID.String())
	s.logg.Warn(s.logg.WithField(invCtx, "error", cause), "invoice sync failed")

	var persistErr error
	if err := s.repo.MarkInvoiceFailed(invCtx, inv.ID, errors.New(cause)); err != nil {
		persistErr = multierr.Append(persistErr, fmt.Errorf("mark invoice %s failed: %w", inv.ID, err))
	}
	if inv.Payment != nil && inv.Payment.SyncStatus != enums.SyncStatusSynced {
		if err := s.repo.MarkPaymentFailed(invCtx, inv.ID); err != nil {
			persistErr = multierr.Append(persistErr, fmt.Errorf("mark payment for invoice %s failed: %w", inv.ID, err))
		}
	}
	return persistErr
}

func (s *Service) observeRun(result batch.Result[*models.StagingInvoice, *models.StagingInvoice], calls int64) {
	for i := 0; i < result.Metrics.SuccessCount; i++ {
		s.metrics.IncSynced()
	}
	for i := 0; i < result.Metrics.FailureCount; i++ {
		s.metrics.IncFailed()
	}
	s.metrics.ObserveBatch(result.Metrics.ProcessingTime)
	if retries := int(calls) - result.Metrics.TotalItems; retries > 0 {
		s.metrics.AddRetries(retries)
	}
}

func (s *Service) refreshPendingGauge(ctx context.Context) {
	pending, err := s.repo.CountPending(ctx)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "count pending invoices failed")
		return
	}
	s.metrics.SetPending(int(pending))
}

// referenceFor prefers the settlement reference captured at staging time and
// falls back to a short form of the staging invoice ID.
func referenceFor(inv *models.StagingInvoice) string {
	if inv.Payment != nil && inv.Payment.Reference != nil {
		if ref := strings.TrimSpace(*inv.Payment.Reference); ref != "" {
			return ref
		}
	}
	compact := strings.ReplaceAll(inv.ID.String(), "-", "")
	if len(compact) > 8 {
		compact = compact[:8]
	}
	return "LL-" + strings.ToUpper(compact)
}

// paymentReference is the invoice number Xero assigned when the document was
// created, persisted on the row so it survives requeues. Rows synced before
// the number was recorded fall back to the staging reference.
func paymentReference(inv *models.StagingInvoice) string {
	if inv.XeroInvoiceNumber != nil {
		if number := strings.TrimSpace(*inv.XeroInvoiceNumber); number != "" {
			return number
		}
	}
	return referenceFor(inv)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
