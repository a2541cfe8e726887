package models

import (
	"time"

	"github.com/google/uuid"
)

// AccountingCode maps a system purpose (sales revenue, settlement bank
// account) to the Xero account code used when staging rows omit one.
type AccountingCode struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Purpose     string    `gorm:"column:purpose;not null;uniqueIndex"`
	Code        string    `gorm:"column:code;not null"`
	Description *string   `gorm:"column:description"`
	Active      bool      `gorm:"column:active;not null;default:true"`
	CreatedAt   time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
