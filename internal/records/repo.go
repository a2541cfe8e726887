package records

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/leagueledger/backend/pkg/db/models"
)

// Repository reads membership/registration purchase records and maintains
// their staging invoice back-links.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error)
	FindRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error)
	SetMembershipInvoice(ctx context.Context, id, invoiceID uuid.UUID) error
	SetRegistrationInvoice(ctx context.Context, id, invoiceID uuid.UUID) error
	FindAccountingCode(ctx context.Context, purpose string) (*models.AccountingCode, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a records repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindMembership(ctx context.Context, id uuid.UUID) (*models.Membership, error) {
	var row models.Membership
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) FindRegistration(ctx context.Context, id uuid.UUID) (*models.Registration, error) {
	var row models.Registration
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}

func (r *repository) SetMembershipInvoice(ctx context.Context, id, invoiceID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("id = ?", id).
		Update("staging_invoice_id", invoiceID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) SetRegistrationInvoice(ctx context.Context, id, invoiceID uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&models.Registration{}).
		Where("id = ?", id).
		Update("staging_invoice_id", invoiceID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) FindAccountingCode(ctx context.Context, purpose string) (*models.AccountingCode, error) {
	var row models.AccountingCode
	err := r.db.WithContext(ctx).
		Where("purpose = ?", purpose).
		Where("active = ?", true).
		First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &row, nil
}
