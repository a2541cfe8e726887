package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/leagueledger/backend/pkg/enums"
)

// StagingLineItem is one charge, discount, or donation component of a staging
// invoice. Discount lines carry negative amounts.
type StagingLineItem struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	InvoiceID       uuid.UUID          `gorm:"column:invoice_id;type:uuid;not null;index"`
	ItemType        enums.LineItemType `gorm:"column:item_type;type:line_item_type;not null"`
	ItemID          *uuid.UUID         `gorm:"column:item_id;type:uuid"`
	DiscountCodeID  *uuid.UUID         `gorm:"column:discount_code_id;type:uuid"`
	Description     string             `gorm:"column:description;not null"`
	Quantity        int                `gorm:"column:quantity;not null;default:1"`
	UnitAmountCents int                `gorm:"column:unit_amount_cents;not null"`
	AccountCode     string             `gorm:"column:account_code;not null"`
	LineAmountCents int                `gorm:"column:line_amount_cents;not null"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}
