package models

import (
	"time"

	"github.com/google/uuid"
)

// Membership is a season membership purchase by a league member.
type Membership struct {
	ID               uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID           uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	SeasonID         *uuid.UUID `gorm:"column:season_id;type:uuid"`
	MembershipType   string     `gorm:"column:membership_type;not null"`
	PriceCents       int        `gorm:"column:price_cents;not null"`
	Paid             bool       `gorm:"column:paid;not null;default:false"`
	StagingInvoiceID *uuid.UUID `gorm:"column:staging_invoice_id;type:uuid"`
	CreatedAt        time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
