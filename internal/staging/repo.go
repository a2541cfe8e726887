package staging

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/leagueledger/backend/pkg/db/models"
	"github.com/leagueledger/backend/pkg/enums"
	"github.com/leagueledger/backend/pkg/pagination"
)

// Repository handles staging persistence. The three insert operations are
// deliberately independent round trips: no transaction spans them, so a crash
// mid-staging leaves a recoverable invoice rather than nothing.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateInvoice(ctx context.Context, invoice *models.StagingInvoice) error
	CreateLineItems(ctx context.Context, items []models.StagingLineItem) error
	CreatePayment(ctx context.Context, payment *models.StagingPayment) error
	ExistsStagedForPayment(ctx context.Context, paymentID uuid.UUID) (bool, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.StagingInvoice, error)
	List(ctx context.Context, query ListQuery) ([]models.StagingInvoice, *pagination.Cursor, error)
	ClaimStaged(ctx context.Context, limit int) ([]models.StagingInvoice, error)
	MarkInvoiceSynced(ctx context.Context, id uuid.UUID, tenantID, xeroInvoiceID, xeroInvoiceNumber string) error
	MarkInvoiceFailed(ctx context.Context, id uuid.UUID, syncErr error) error
	MarkPaymentSynced(ctx context.Context, invoiceID uuid.UUID, tenantID, xeroPaymentID, reference string) error
	MarkPaymentFailed(ctx context.Context, invoiceID uuid.UUID) error
	UpdateProcessingFee(ctx context.Context, paymentID uuid.UUID, feeCents int) (int64, error)
	RequeueFailed(ctx context.Context, ids []uuid.UUID) (int64, error)
	ResetStuckSyncing(ctx context.Context, olderThan time.Duration) (int64, error)
	CountPending(ctx context.Context) (int64, error)
}

// ListQuery configures staging invoice list queries.
type ListQuery struct {
	Status *enums.SyncStatus
	Params pagination.Params
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a staging repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.StagingInvoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) CreateLineItems(ctx context.Context, items []models.StagingLineItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Create(&items).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.StagingPayment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) ExistsStagedForPayment(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StagingInvoice{}).
		Where("payment_id = ?", paymentID).
		Where("sync_status = ?", enums.SyncStatusStaged).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*models.StagingInvoice, error) {
	var invoice models.StagingInvoice
	err := r.db.WithContext(ctx).
		Preload("LineItems").
		Preload("Payment").
		Where("id = ?", id).
		First(&invoice).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) List(ctx context.Context, query ListQuery) ([]models.StagingInvoice, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(query.Params.Limit)
	cursor, err := pagination.ParseCursor(query.Params.Cursor)
	if err != nil {
		return nil, nil, err
	}

	q := r.db.WithContext(ctx).
		Model(&models.StagingInvoice{}).
		Preload("LineItems").
		Preload("Payment").
		Order("staged_at DESC").
		Order("id DESC").
		Limit(pagination.LimitWithBuffer(query.Params.Limit))
	if query.Status != nil {
		q = q.Where("sync_status = ?", *query.Status)
	}
	if cursor != nil {
		q = q.Where("(staged_at, id) < (?, ?)", cursor.StagedAt, cursor.ID)
	}

	var rows []models.StagingInvoice
	if err := q.Find(&rows).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(rows) > limit {
		rows = rows[:limit]
		last := rows[len(rows)-1]
		next = &pagination.Cursor{StagedAt: last.StagedAt, ID: last.ID}
	}
	return rows, next, nil
}

// ClaimStaged atomically transitions up to limit staged invoices to syncing
// and returns them with line items and payment loaded. SKIP LOCKED keeps
// concurrent workers from claiming the same rows.
func (r *repository) ClaimStaged(ctx context.Context, limit int) ([]models.StagingInvoice, error) {
	if limit <= 0 {
		limit = 100
	}

	var claimed []models.StagingInvoice
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.StagingInvoice{})
		// Row locks only exist on postgres; the sqlite test database runs the
		// same claim without them.
		if tx.Dialector.Name() == "postgres" {
			query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		var ids []uuid.UUID
		err := query.
			Where("sync_status = ?", enums.SyncStatusStaged).
			Order("staged_at ASC").
			Order("id ASC").
			Limit(limit).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		err = tx.Model(&models.StagingInvoice{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"sync_status":   enums.SyncStatusSyncing,
				"sync_attempts": gorm.Expr("sync_attempts + 1"),
			}).Error
		if err != nil {
			return err
		}

		return tx.Preload("LineItems").
			Preload("Payment").
			Where("id IN ?", ids).
			Order("staged_at ASC").
			Find(&claimed).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *repository) MarkInvoiceSynced(ctx context.Context, id uuid.UUID, tenantID, xeroInvoiceID, xeroInvoiceNumber string) error {
	updates := map[string]any{
		"sync_status":     enums.SyncStatusSynced,
		"xero_tenant_id":  tenantID,
		"xero_invoice_id": xeroInvoiceID,
		"synced_at":       time.Now().UTC(),
		"last_sync_error": nil,
	}
	// The assigned document number must survive requeues: a payment retried
	// after a worker crash references the invoice by this number.
	if xeroInvoiceNumber != "" {
		updates["xero_invoice_number"] = xeroInvoiceNumber
	}
	return r.db.WithContext(ctx).
		Model(&models.StagingInvoice{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) MarkInvoiceFailed(ctx context.Context, id uuid.UUID, syncErr error) error {
	msg := "unknown error"
	if syncErr != nil {
		msg = syncErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.StagingInvoice{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"sync_status":     enums.SyncStatusFailed,
			"last_sync_error": msg,
		}).Error
}

func (r *repository) MarkPaymentSynced(ctx context.Context, invoiceID uuid.UUID, tenantID, xeroPaymentID, reference string) error {
	updates := map[string]any{
		"sync_status":     enums.SyncStatusSynced,
		"xero_tenant_id":  tenantID,
		"xero_payment_id": xeroPaymentID,
	}
	if reference != "" {
		updates["reference"] = reference
	}
	return r.db.WithContext(ctx).
		Model(&models.StagingPayment{}).
		Where("invoice_id = ?", invoiceID).
		Updates(updates).Error
}

func (r *repository) MarkPaymentFailed(ctx context.Context, invoiceID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.StagingPayment{}).
		Where("invoice_id = ?", invoiceID).
		Update("sync_status", enums.SyncStatusFailed).Error
}

// UpdateProcessingFee overwrites the estimated processing fee on the staged
// invoice and payment rows for a payment with the settled amount.
func (r *repository) UpdateProcessingFee(ctx context.Context, paymentID uuid.UUID, feeCents int) (int64, error) {
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		err := tx.Model(&models.StagingInvoice{}).
			Where("payment_id = ?", paymentID).
			Pluck("id", &ids).Error
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}

		result := tx.Model(&models.StagingInvoice{}).
			Where("id IN ?", ids).
			Update("stripe_fee_amount_cents", feeCents)
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected

		return tx.Model(&models.StagingPayment{}).
			Where("invoice_id IN ?", ids).
			Update("processing_fee_cents", feeCents).Error
	})
	return affected, err
}

// RequeueFailed flips failed invoices (and their payment rows) back to staged
// so the next sync run picks them up.
func (r *repository) RequeueFailed(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var affected int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.StagingInvoice{}).
			Where("id IN ?", ids).
			Where("sync_status = ?", enums.SyncStatusFailed).
			Updates(map[string]any{
				"sync_status":     enums.SyncStatusStaged,
				"last_sync_error": nil,
			})
		if result.Error != nil {
			return result.Error
		}
		affected = result.RowsAffected

		return tx.Model(&models.StagingPayment{}).
			Where("invoice_id IN ?", ids).
			Where("sync_status = ?", enums.SyncStatusFailed).
			Update("sync_status", enums.SyncStatusStaged).Error
	})
	return affected, err
}

// ResetStuckSyncing returns invoices abandoned mid-sync (worker crash) to the
// staged pool once they have been syncing longer than the TTL.
func (r *repository) ResetStuckSyncing(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result := r.db.WithContext(ctx).
		Model(&models.StagingInvoice{}).
		Where("sync_status = ?", enums.SyncStatusSyncing).
		Where("updated_at < ?", cutoff).
		Update("sync_status", enums.SyncStatusStaged)
	return result.RowsAffected, result.Error
}

func (r *repository) CountPending(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.StagingInvoice{}).
		Where("sync_status IN ?", []enums.SyncStatus{enums.SyncStatusStaged, enums.SyncStatusFailed}).
		Count(&count).Error
	return count, err
}
