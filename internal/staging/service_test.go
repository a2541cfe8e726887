package staging

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/leagueledger/backend/pkg/db/models"
	"github.com/leagueledger/backend/pkg/enums"
	"github.com/leagueledger/backend/pkg/logger"
	"github.com/leagueledger/backend/pkg/pagination"
)

type fakeRepo struct {
	invoices  []models.StagingInvoice
	lineItems []models.StagingLineItem
	payments  []models.StagingPayment

	failInvoice   error
	failLineItems error
	failPayment   error
	failExists    error

	stagedPayments map[uuid.UUID]bool

	feeUpdates  map[uuid.UUID]int
	feeAffected int64
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{stagedPayments: map[uuid.UUID]bool{}}
}

func (f *fakeRepo) WithTx(*gorm.DB) Repository { return f }

func (f *fakeRepo) CreateInvoice(_ context.Context, invoice *models.StagingInvoice) error {
	if f.failInvoice != nil {
		return f.failInvoice
	}
	invoice.ID = uuid.New()
	f.invoices = append(f.invoices, *invoice)
	return nil
}

func (f *fakeRepo) CreateLineItems(_ context.Context, items []models.StagingLineItem) error {
	if f.failLineItems != nil {
		return f.failLineItems
	}
	f.lineItems = append(f.lineItems, items...)
	return nil
}

func (f *fakeRepo) CreatePayment(_ context.Context, payment *models.StagingPayment) error {
	if f.failPayment != nil {
		return f.failPayment
	}
	payment.ID = uuid.New()
	f.payments = append(f.payments, *payment)
	return nil
}

func (f *fakeRepo) ExistsStagedForPayment(_ context.Context, paymentID uuid.UUID) (bool, error) {
	if f.failExists != nil {
		return false, f.failExists
	}
	return f.stagedPayments[paymentID], nil
}

func (f *fakeRepo) GetByID(context.Context, uuid.UUID) (*models.StagingInvoice, error) {
	return nil, nil
}

func (f *fakeRepo) List(context.Context, ListQuery) ([]models.StagingInvoice, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeRepo) ClaimStaged(context.Context, int) ([]models.StagingInvoice, error) {
	return nil, nil
}

func (f *fakeRepo) MarkInvoiceSynced(context.Context, uuid.UUID, string, string, string) error {
	return nil
}
func (f *fakeRepo) MarkInvoiceFailed(context.Context, uuid.UUID, error) error { return nil }
func (f *fakeRepo) MarkPaymentSynced(context.Context, uuid.UUID, string, string, string) error {
	return nil
}
func (f *fakeRepo) MarkPaymentFailed(context.Context, uuid.UUID) error              { return nil }
func (f *fakeRepo) RequeueFailed(context.Context, []uuid.UUID) (int64, error)       { return 0, nil }
func (f *fakeRepo) ResetStuckSyncing(context.Context, time.Duration) (int64, error) { return 0, nil }
func (f *fakeRepo) CountPending(context.Context) (int64, error)                     { return 0, nil }

func (f *fakeRepo) UpdateProcessingFee(_ context.Context, paymentID uuid.UUID, feeCents int) (int64, error) {
	if f.feeUpdates == nil {
		f.feeUpdates = map[uuid.UUID]int{}
	}
	f.feeUpdates[paymentID] = feeCents
	return f.feeAffected, nil
}

type fakeResolver struct {
	purchase *PaymentData
	linkErr  error
	links    []uuid.UUID
}

func (f *fakeResolver) ResolvePurchase(context.Context, enums.SourceTable, uuid.UUID) (*PaymentData, error) {
	return f.purchase, nil
}

func (f *fakeResolver) LinkInvoice(_ context.Context, _ enums.SourceTable, _ uuid.UUID, invoiceID uuid.UUID) error {
	if f.linkErr != nil {
		return f.linkErr
	}
	f.links = append(f.links, invoiceID)
	return nil
}

func testLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "staging-test", Output: io.Discard})
}

func newTestService(t *testing.T, repo Repository, resolver RecordResolver) *Service {
	t.Helper()
	svc, err := NewService(ServiceParams{Repo: repo, Records: resolver, Logger: testLogger()})
	require.NoError(t, err)
	return svc
}

func paidPurchase(itemID uuid.UUID) PaymentData {
	paymentID := uuid.New()
	return PaymentData{
		UserID:           uuid.New(),
		PaymentID:        &paymentID,
		TotalAmountCents: 5000,
		FinalAmountCents: 5000,
		PaymentItems: []PaymentItem{
			{ItemType: enums.LineItemTypeMembership, ItemID: &itemID, AmountCents: 5000},
		},
	}
}

func TestCreateImmediateStagingPaidPurchase(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{}
	svc := newTestService(t, repo, resolver)

	itemID := uuid.New()
	ok, err := svc.CreateImmediateStaging(context.Background(), paidPurchase(itemID), Options{})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, repo.invoices, 1)
	invoice := repo.invoices[0]
	assert.Equal(t, enums.InvoiceStatusDraft, invoice.InvoiceStatus)
	assert.Equal(t, 5000, invoice.NetAmountCents)
	assert.Equal(t, enums.SyncStatusStaged, invoice.SyncStatus)
	assert.Nil(t, invoice.XeroTenantID)

	require.Len(t, repo.lineItems, 1)
	line := repo.lineItems[0]
	assert.Equal(t, 5000, line.LineAmountCents)
	assert.Equal(t, 5000, line.UnitAmountCents)
	assert.Equal(t, 1, line.Quantity)
	assert.Equal(t, "membership purchase", line.Description)
	assert.Equal(t, "SALES", line.AccountCode)

	require.Len(t, repo.payments, 1)
	payment := repo.payments[0]
	assert.Equal(t, 5000, payment.AmountPaidCents)
	assert.Equal(t, invoice.ID, payment.InvoiceID)
	// 2.9% of 50.00 plus 30 cents, rounded.
	assert.Equal(t, 175, payment.ProcessingFeeCents)

	assert.Equal(t, []uuid.UUID{invoice.ID}, resolver.links)
}

func TestCreateImmediateStagingFreePurchase(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)

	itemID := uuid.New()
	data := PaymentData{
		UserID:              uuid.New(),
		TotalAmountCents:    5000,
		DiscountAmountCents: 5000,
		FinalAmountCents:    0,
		PaymentItems: []PaymentItem{
			{ItemType: enums.LineItemTypeRegistration, ItemID: &itemID, AmountCents: 5000},
		},
	}
	ok, err := svc.CreateImmediateStaging(context.Background(), data, Options{IsFree: true})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, repo.invoices, 1)
	assert.Equal(t, enums.InvoiceStatusAuthorised, repo.invoices[0].InvoiceStatus)
	assert.Equal(t, 0, repo.invoices[0].NetAmountCents)
	assert.Equal(t, 0, repo.invoices[0].StripeFeeAmountCents)
	assert.Empty(t, repo.payments)
}

func TestCreateImmediateStagingNetAmountMatchesFinal(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)

	data := PaymentData{
		UserID:              uuid.New(),
		TotalAmountCents:    7500,
		DiscountAmountCents: 1500,
		FinalAmountCents:    6000,
		PaymentItems: []PaymentItem{
			{ItemType: enums.LineItemTypeMembership, AmountCents: 7500},
			{ItemType: enums.LineItemTypeDiscount, AmountCents: -1500},
		},
	}
	ok, err := svc.CreateImmediateStaging(context.Background(), data, Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 6000, repo.invoices[0].NetAmountCents)
	assert.Len(t, repo.lineItems, 2)
}

func TestCreateImmediateStagingRejectsMismatchedAmounts(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), nil)

	data := PaymentData{
		UserID:              uuid.New(),
		TotalAmountCents:    5000,
		DiscountAmountCents: 1000,
		FinalAmountCents:    5000,
		PaymentItems:        []PaymentItem{{ItemType: enums.LineItemTypeMembership, AmountCents: 5000}},
	}
	ok, err := svc.CreateImmediateStaging(context.Background(), data, Options{})
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCreateImmediateStagingPaymentFailureKeepsInvoice(t *testing.T) {
	repo := newFakeRepo()
	repo.failPayment = errors.New("connection reset")
	svc := newTestService(t, repo, nil)

	ok, err := svc.CreateImmediateStaging(context.Background(), paidPurchase(uuid.New()), Options{})
	assert.False(t, ok)
	assert.Error(t, err)

	// Invoice and line items persisted; only the payment leg is missing.
	assert.Len(t, repo.invoices, 1)
	assert.Len(t, repo.lineItems, 1)
	assert.Empty(t, repo.payments)
}

func TestCreateImmediateStagingInvoiceFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failInvoice = errors.New("database unavailable")
	svc := newTestService(t, repo, nil)

	ok, err := svc.CreateImmediateStaging(context.Background(), paidPurchase(uuid.New()), Options{})
	assert.False(t, ok)
	assert.Error(t, err)
	assert.Empty(t, repo.invoices)
	assert.Empty(t, repo.lineItems)
}

func TestCreateImmediateStagingLinkFailureIsWarnOnly(t *testing.T) {
	repo := newFakeRepo()
	resolver := &fakeResolver{linkErr: errors.New("record not found")}
	svc := newTestService(t, repo, resolver)

	ok, err := svc.CreateImmediateStaging(context.Background(), paidPurchase(uuid.New()), Options{})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Len(t, repo.invoices, 1)
	assert.Len(t, repo.payments, 1)
}

func TestCreateFreePurchaseStaging(t *testing.T) {
	repo := newFakeRepo()
	itemID := uuid.New()
	resolver := &fakeResolver{purchase: &PaymentData{
		UserID:           uuid.New(),
		TotalAmountCents: 3000,
		FinalAmountCents: 3000,
		PaymentItems: []PaymentItem{
			{ItemType: enums.LineItemTypeRegistration, ItemID: &itemID, AmountCents: 3000},
		},
	}}
	svc := newTestService(t, repo, resolver)

	ok, err := svc.CreateFreePurchaseStaging(context.Background(), FreePurchaseEvent{
		Source: enums.SourceTableRegistrations,
		ItemID: itemID,
	})
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, repo.invoices, 1)
	invoice := repo.invoices[0]
	assert.Equal(t, enums.InvoiceStatusAuthorised, invoice.InvoiceStatus)
	assert.Equal(t, 0, invoice.NetAmountCents)
	assert.Equal(t, 3000, invoice.DiscountAmountCents)
	assert.Empty(t, repo.payments)
}

func TestCreateFreePurchaseStagingUnknownRecord(t *testing.T) {
	svc := newTestService(t, newFakeRepo(), &fakeResolver{})

	ok, err := svc.CreateFreePurchaseStaging(context.Background(), FreePurchaseEvent{
		Source: enums.SourceTableMemberships,
		ItemID: uuid.New(),
	})
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestCreatePaidPurchaseStagingGuard(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)
	paymentID := uuid.New()

	// No staging rows: fail closed, nothing synthesized.
	ok, err := svc.CreatePaidPurchaseStaging(context.Background(), paymentID)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, repo.invoices)

	// Existing staged rows: idempotent true on every call.
	repo.stagedPayments[paymentID] = true
	for i := 0; i < 2; i++ {
		ok, err = svc.CreatePaidPurchaseStaging(context.Background(), paymentID)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Empty(t, repo.invoices)
}

func TestCreatePaidPurchaseStagingFailsClosedOnError(t *testing.T) {
	repo := newFakeRepo()
	repo.failExists = errors.New("database unavailable")
	svc := newTestService(t, repo, nil)

	ok, err := svc.CreatePaidPurchaseStaging(context.Background(), uuid.New())
	assert.False(t, ok)
	assert.Error(t, err)
}

func TestReconcileProcessingFee(t *testing.T) {
	repo := newFakeRepo()
	repo.feeAffected = 1
	svc := newTestService(t, repo, nil)
	paymentID := uuid.New()

	require.NoError(t, svc.ReconcileProcessingFee(context.Background(), paymentID, 157))
	assert.Equal(t, 157, repo.feeUpdates[paymentID])
}

func TestReconcileProcessingFeeRejectsNegative(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo, nil)

	err := svc.ReconcileProcessingFee(context.Background(), uuid.New(), -1)
	require.Error(t, err)
	assert.Empty(t, repo.feeUpdates)
}

func TestMetadataEnvelopeRoundTrip(t *testing.T) {
	itemID := uuid.New()
	raw, err := EncodeMetadata(MetadataEnvelope{
		StagedAt: time.Now().UTC(),
		UserID:   uuid.New(),
		Items:    []ItemContext{{ItemType: enums.LineItemTypeMembership, ItemID: &itemID, AmountCents: 5000}},
	})
	require.NoError(t, err)

	envelope, err := ParseMetadata(raw)
	require.NoError(t, err)
	assert.Equal(t, MetadataVersion, envelope.Version)
	require.Len(t, envelope.Items, 1)
	assert.Equal(t, 5000, envelope.Items[0].AmountCents)
}

func TestParseMetadataRejectsUnknownVersion(t *testing.T) {
	_, err := ParseMetadata([]byte(`{"version":99,"items":[]}`))
	assert.Error(t, err)

	_, err = ParseMetadata(nil)
	assert.Error(t, err)
}

func TestDeriveStripeFee(t *testing.T) {
	assert.Equal(t, 175, deriveStripeFeeCents(5000))
	assert.Equal(t, 59, deriveStripeFeeCents(1000))
	assert.Equal(t, 320, deriveStripeFeeCents(10000))
}
