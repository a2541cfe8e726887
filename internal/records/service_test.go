package records

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/leagueledger/backend/pkg/db/models"
	"github.com/leagueledger/backend/pkg/enums"
)

func setupRecordsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	memberships := `
CREATE TABLE IF NOT EXISTS memberships (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  season_id TEXT,
  membership_type TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  paid INTEGER NOT NULL DEFAULT 0,
  staging_invoice_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	registrations := `
CREATE TABLE IF NOT EXISTS registrations (
  id TEXT PRIMARY KEY,
  user_id TEXT NOT NULL,
  season_id TEXT,
  division_name TEXT NOT NULL,
  price_cents INTEGER NOT NULL,
  paid INTEGER NOT NULL DEFAULT 0,
  alternate INTEGER NOT NULL DEFAULT 0,
  staging_invoice_id TEXT,
  created_at DATETIME,
  updated_at DATETIME
);`
	codes := `
CREATE TABLE IF NOT EXISTS accounting_codes (
  id TEXT PRIMARY KEY,
  purpose TEXT NOT NULL UNIQUE,
  code TEXT NOT NULL,
  description TEXT,
  active INTEGER NOT NULL DEFAULT 1,
  created_at DATETIME,
  updated_at DATETIME
);`

	for _, ddl := range []string{memberships, registrations, codes} {
		require.NoError(t, db.Exec(ddl).Error)
	}
	return db
}

func newRecordsService(t *testing.T, db *gorm.DB) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: NewRepository(db)})
	require.NoError(t, err)
	return svc
}

func TestResolvePurchaseMembership(t *testing.T) {
	db := setupRecordsTestDB(t)
	svc := newRecordsService(t, db)
	ctx := context.Background()

	membership := models.Membership{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		MembershipType: "adult",
		PriceCents:     4500,
	}
	require.NoError(t, db.Create(&membership).Error)

	data, err := svc.ResolvePurchase(ctx, enums.SourceTableMemberships, membership.ID)
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.Equal(t, membership.UserID, data.UserID)
	assert.Equal(t, 4500, data.TotalAmountCents)
	assert.Equal(t, 4500, data.FinalAmountCents)
	require.Len(t, data.PaymentItems, 1)
	assert.Equal(t, enums.LineItemTypeMembership, data.PaymentItems[0].ItemType)
	assert.Equal(t, "adult membership", data.PaymentItems[0].Description)
	require.NotNil(t, data.PaymentItems[0].ItemID)
	assert.Equal(t, membership.ID, *data.PaymentItems[0].ItemID)
}

func TestResolvePurchaseRegistration(t *testing.T) {
	db := setupRecordsTestDB(t)
	svc := newRecordsService(t, db)
	ctx := context.Background()

	registration := models.Registration{
		ID:           uuid.New(),
		UserID:       uuid.New(),
		DivisionName: "Division 3",
		PriceCents:   3000,
	}
	require.NoError(t, db.Create(&registration).Error)

	data, err := svc.ResolvePurchase(ctx, enums.SourceTableRegistrations, registration.ID)
	require.NoError(t, err)
	require.NotNil(t, data)
	require.Len(t, data.PaymentItems, 1)
	assert.Equal(t, enums.LineItemTypeRegistration, data.PaymentItems[0].ItemType)
	assert.Equal(t, "Division 3 registration", data.PaymentItems[0].Description)
}

func TestResolvePurchaseMissingRecord(t *testing.T) {
	db := setupRecordsTestDB(t)
	svc := newRecordsService(t, db)

	data, err := svc.ResolvePurchase(context.Background(), enums.SourceTableMemberships, uuid.New())
	require.NoError(t, err)
	assert.Nil(t, data)

	_, err = svc.ResolvePurchase(context.Background(), enums.SourceTable("unknown"), uuid.New())
	assert.Error(t, err)
}

func TestLinkInvoice(t *testing.T) {
	db := setupRecordsTestDB(t)
	svc := newRecordsService(t, db)
	ctx := context.Background()

	membership := models.Membership{
		ID:             uuid.New(),
		UserID:         uuid.New(),
		MembershipType: "adult",
		PriceCents:     4500,
	}
	require.NoError(t, db.Create(&membership).Error)

	invoiceID := uuid.New()
	require.NoError(t, svc.LinkInvoice(ctx, enums.SourceTableMemberships, membership.ID, invoiceID))

	var loaded models.Membership
	require.NoError(t, db.Where("id = ?", membership.ID).First(&loaded).Error)
	require.NotNil(t, loaded.StagingInvoiceID)
	assert.Equal(t, invoiceID, *loaded.StagingInvoiceID)

	// Linking a missing record reports the failure for warn-level logs.
	err := svc.LinkInvoice(ctx, enums.SourceTableRegistrations, uuid.New(), invoiceID)
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestAccountCodeLookups(t *testing.T) {
	db := setupRecordsTestDB(t)
	svc := newRecordsService(t, db)
	ctx := context.Background()

	// Nothing seeded: fall back.
	code, err := svc.SettlementAccountCode(ctx, "090")
	require.NoError(t, err)
	assert.Equal(t, "090", code)

	require.NoError(t, db.Create(&models.AccountingCode{
		ID:      uuid.New(),
		Purpose: PurposeSettlementBank,
		Code:    "200",
		Active:  true,
	}).Error)
	require.NoError(t, db.Create(&models.AccountingCode{
		ID:      uuid.New(),
		Purpose: PurposeSalesRevenue,
		Code:    "400",
		Active:  false,
	}).Error)

	code, err = svc.SettlementAccountCode(ctx, "090")
	require.NoError(t, err)
	assert.Equal(t, "200", code)

	// Inactive rows are ignored.
	code, err = svc.SalesAccountCode(ctx, "SALES")
	require.NoError(t, err)
	assert.Equal(t, "SALES", code)
}
