package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leagueledger/backend/pkg/enums"
)

// StagingInvoice is the durable local record of one accounting invoice bound
// for Xero. Rows are created at purchase time and never deleted; only the sync
// job mutates them afterwards.
type StagingInvoice struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PaymentID     *uuid.UUID `gorm:"column:payment_id;type:uuid;index"`
	XeroTenantID  *string    `gorm:"column:xero_tenant_id"`
	XeroInvoiceID *string    `gorm:"column:xero_invoice_id"`
	// XeroInvoiceNumber is the document number Xero assigns on creation. It is
	// persisted so a requeued payment leg can reference the invoice without
	// re-creating it.
	XeroInvoiceNumber *string             `gorm:"column:xero_invoice_number"`
	InvoiceStatus     enums.InvoiceStatus `gorm:"column:invoice_status;type:invoice_status;not null;default:'DRAFT'"`

	TotalAmountCents     int `gorm:"column:total_amount_cents;not null"`
	DiscountAmountCents  int `gorm:"column:discount_amount_cents;not null;default:0"`
	NetAmountCents       int `gorm:"column:net_amount_cents;not null"`
	StripeFeeAmountCents int `gorm:"column:stripe_fee_amount_cents;not null;default:0"`

	SyncStatus    enums.SyncStatus `gorm:"column:sync_status;type:sync_status;not null;default:'staged'"`
	SyncAttempts  int              `gorm:"column:sync_attempts;not null;default:0"`
	LastSyncError *string          `gorm:"column:last_sync_error"`
	StagedAt      time.Time        `gorm:"column:staged_at;not null"`
	SyncedAt      *time.Time       `gorm:"column:synced_at"`

	// Metadata is the full originating purchase context; the durable source of
	// truth when the structured columns are insufficient.
	Metadata json.RawMessage `gorm:"column:metadata;type:jsonb;not null"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`

	LineItems []StagingLineItem `gorm:"foreignKey:InvoiceID"`
	Payment   *StagingPayment   `gorm:"foreignKey:InvoiceID"`
}
