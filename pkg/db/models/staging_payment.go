package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/leagueledger/backend/pkg/enums"
)

// StagingPayment records the settlement leg of a paid invoice. Present only
// when the purchase had a positive final amount; one-to-one with its invoice.
type StagingPayment struct {
	ID                 uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID          uuid.UUID        `gorm:"column:invoice_id;type:uuid;not null;uniqueIndex"`
	XeroTenantID       *string          `gorm:"column:xero_tenant_id"`
	XeroPaymentID      *string          `gorm:"column:xero_payment_id"`
	PaymentMethod      string           `gorm:"column:payment_method;not null;default:'stripe'"`
	AccountCode        string           `gorm:"column:account_code;not null"`
	AmountPaidCents    int              `gorm:"column:amount_paid_cents;not null"`
	ProcessingFeeCents int              `gorm:"column:processing_fee_cents;not null;default:0"`
	Reference          *string          `gorm:"column:reference"`
	SyncStatus         enums.SyncStatus `gorm:"column:sync_status;type:sync_status;not null;default:'staged'"`
	StagedAt           time.Time        `gorm:"column:staged_at;not null"`
	Metadata           json.RawMessage  `gorm:"column:metadata;type:jsonb"`
	CreatedAt          time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}
