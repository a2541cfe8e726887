package staging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	pkgerrors "github.com/leagueledger/backend/pkg/errors"

	"github.com/leagueledger/backend/pkg/db"
	"github.com/leagueledger/backend/pkg/db/models"
	"github.com/leagueledger/backend/pkg/enums"
	"github.com/leagueledger/backend/pkg/logger"
)

const (
	defaultSalesAccountCode = "SALES"
	defaultBankAccountCode  = "090"
	defaultPaymentMethod    = "stripe"
)

// Stripe's standard card fee: 2.9% of the charge plus 30 cents.
var (
	stripeFeeRate  = decimal.NewFromFloat(0.029)
	stripeFeeFixed = decimal.NewFromInt(30)
)

// PaymentItem describes one purchasable component of a purchase.
type PaymentItem struct {
	ItemType    enums.LineItemType
	ItemID      *uuid.UUID
	Description string
	AccountCode string
	AmountCents int
}

// PaymentData is the fully-populated purchase description handed to the
// staging writer. Amounts are integer cents throughout.
type PaymentData struct {
	UserID              uuid.UUID
	PaymentID           *uuid.UUID
	TotalAmountCents    int
	DiscountAmountCents int
	FinalAmountCents    int
	PaymentItems        []PaymentItem
	DiscountCodesUsed   []uuid.UUID
	PaymentReference    *string
}

// Options adjust immediate staging behavior.
type Options struct {
	// IsFree authorises the invoice immediately; no payment leg will follow.
	IsFree bool
}

// FreePurchaseEvent identifies a zero-cost purchase to stage by its
// originating business record.
type FreePurchaseEvent struct {
	Source enums.SourceTable
	ItemID uuid.UUID
}

// RecordResolver loads purchase context from business records and back-links
// created invoices to them.
type RecordResolver interface {
	ResolvePurchase(ctx context.Context, source enums.SourceTable, itemID uuid.UUID) (*PaymentData, error)
	LinkInvoice(ctx context.Context, source enums.SourceTable, itemID, invoiceID uuid.UUID) error
}

// ServiceParams groups dependencies for the staging writer.
type ServiceParams struct {
	Repo             Repository
	Records          RecordResolver
	Logger           *logger.Logger
	SalesAccountCode string
	BankAccountCode  string
}

// Service is the staging writer: it durably records the accounting
// representation of a purchase before any attempt to reach Xero.
type Service struct {
	repo             Repository
	records          RecordResolver
	logg             *logger.Logger
	salesAccountCode string
	bankAccountCode  string
}

// NewService builds a staging writer.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	sales := params.SalesAccountCode
	if sales == "" {
		sales = defaultSalesAccountCode
	}
	bank := params.BankAccountCode
	if bank == "" {
		bank = defaultBankAccountCode
	}
	return &Service{
		repo:             params.Repo,
		records:          params.Records,
		logg:             params.Logger,
		salesAccountCode: sales,
		bankAccountCode:  bank,
	}, nil
}

// CreateImmediateStaging synchronously persists the invoice, its line items,
// and (for paid purchases) the payment row as three independent inserts. It
// returns true only when every insert succeeded; a payment-insert failure
// after the invoice landed still reports failure even though the invoice and
// line items remain persisted and recoverable.
func (s *Service) CreateImmediateStaging(ctx context.Context, data PaymentData, opts Options) (bool, error) {
	if err := validatePaymentData(data); err != nil {
		return false, err
	}

	now := time.Now().UTC()
	ctx = s.logg.WithField(ctx, "user_id", data.UserID.String())
	if data.PaymentID != nil {
		ctx = s.logg.WithPaymentID(ctx, data.PaymentID.String())
	}
	s.logg.Info(ctx, "staging purchase")

	metadata, err := EncodeMetadata(MetadataEnvelope{
		Version:       MetadataVersion,
		StagedAt:      now,
		UserID:        data.UserID,
		PaymentID:     data.PaymentID,
		DiscountCodes: data.DiscountCodesUsed,
		Items:         itemContexts(data.PaymentItems),
	})
	if err != nil {
		return false, err
	}

	status := enums.InvoiceStatusDraft
	if opts.IsFree {
		status = enums.InvoiceStatusAuthorised
	}
	feeCents := 0
	if data.FinalAmountCents > 0 {
		feeCents = deriveStripeFeeCents(data.FinalAmountCents)
	}

	invoice := models.StagingInvoice{
		PaymentID:            data.PaymentID,
		InvoiceStatus:        status,
		TotalAmountCents:     data.TotalAmountCents,
		DiscountAmountCents:  data.DiscountAmountCents,
		NetAmountCents:       data.FinalAmountCents,
		StripeFeeAmountCents: feeCents,
		SyncStatus:           enums.SyncStatusStaged,
		StagedAt:             now,
		Metadata:             metadata,
	}
	if err := s.repo.CreateInvoice(ctx, &invoice); err != nil {
		// The partial unique index on (payment_id) WHERE sync_status='staged'
		// makes concurrent staging attempts for one payment converge on a
		// single row; the loser of the race is a success, not an error.
		if data.PaymentID != nil && db.IsUniqueViolation(err, "uq_staging_invoices_payment_pending") {
			s.logg.Info(ctx, "purchase already staged by concurrent request")
			return true, nil
		}
		s.logg.Error(ctx, "staging invoice insert failed", err)
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create staging invoice")
	}
	ctx = s.logg.WithInvoiceID(ctx, invoice.ID.String())

	lineItems := s.buildLineItems(invoice.ID, data.PaymentItems, now)
	if err := s.repo.CreateLineItems(ctx, lineItems); err != nil {
		s.logg.Error(ctx, "staging line item insert failed", err)
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create staging line items")
	}

	// Payment leg exists iff money actually changed hands.
	if data.FinalAmountCents > 0 {
		payment := models.StagingPayment{
			InvoiceID:          invoice.ID,
			PaymentMethod:      defaultPaymentMethod,
			AccountCode:        s.bankAccountCode,
			AmountPaidCents:    data.FinalAmountCents,
			ProcessingFeeCents: feeCents,
			Reference:          data.PaymentReference,
			SyncStatus:         enums.SyncStatusStaged,
			StagedAt:           now,
		}
		if err := s.repo.CreatePayment(ctx, &payment); err != nil {
			// The invoice and line items stay persisted; the caller learns the
			// staging was incomplete so reconciliation can follow.
			s.logg.Error(ctx, "staging payment insert failed", err)
			return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create staging payment")
		}
	}

	s.linkBusinessRecords(ctx, invoice.ID, data.PaymentItems)

	s.logg.Info(ctx, "purchase staged")
	return true, nil
}

// CreateFreePurchaseStaging resolves a zero-cost membership/registration
// record and stages it through the immediate path with an authorised invoice.
func (s *Service) CreateFreePurchaseStaging(ctx context.Context, event FreePurchaseEvent) (bool, error) {
	if s.records == nil {
		return false, errors.New("record resolver is required for free purchase staging")
	}
	if !event.Source.IsValid() {
		return false, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown source table %q", event.Source))
	}

	data, err := s.records.ResolvePurchase(ctx, event.Source, event.ItemID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resolve free purchase record")
	}
	if data == nil {
		return false, pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("%s record %s not found", event.Source, event.ItemID))
	}

	data.FinalAmountCents = 0
	data.DiscountAmountCents = data.TotalAmountCents
	return s.CreateImmediateStaging(ctx, *data, Options{IsFree: true})
}

// CreatePaidPurchaseStaging is the idempotency guard for the paid flow. It
// reports whether staging rows already exist for the payment. When none exist
// it does NOT synthesize them: the full line-item context is only available at
// the moment of purchase, so a missing row means the purchase flow itself
// failed to stage and needs investigation.
func (s *Service) CreatePaidPurchaseStaging(ctx context.Context, paymentID uuid.UUID) (bool, error) {
	ctx = s.logg.WithPaymentID(ctx, paymentID.String())

	exists, err := s.repo.ExistsStagedForPayment(ctx, paymentID)
	if err != nil {
		s.logg.Error(ctx, "staging existence check failed", err)
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "check staging for payment")
	}
	if exists {
		s.logg.Info(ctx, "staging already exists for payment")
		return true, nil
	}

	s.logg.Warn(ctx, "no staging rows found for payment; purchase flow did not stage")
	return false, nil
}

// ReconcileProcessingFee replaces the fee estimated at staging time with the
// actual fee Stripe reported for the settlement. Staging the purchase happens
// before the balance transaction exists, so the estimate is corrected once the
// webhook carries the real number.
func (s *Service) ReconcileProcessingFee(ctx context.Context, paymentID uuid.UUID, feeCents int) error {
	if feeCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "processing fee must be non-negative")
	}
	ctx = s.logg.WithPaymentID(ctx, paymentID.String())

	affected, err := s.repo.UpdateProcessingFee(ctx, paymentID, feeCents)
	if err != nil {
		s.logg.Error(ctx, "processing fee update failed", err)
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update processing fee")
	}
	if affected > 0 {
		s.logg.Info(s.logg.WithField(ctx, "fee_cents", feeCents), "processing fee reconciled")
	}
	return nil
}

func (s *Service) buildLineItems(invoiceID uuid.UUID, items []PaymentItem, now time.Time) []models.StagingLineItem {
	rows := make([]models.StagingLineItem, 0, len(items))
	for _, item := range items {
		description := item.Description
		if description == "" {
			description = fmt.Sprintf("%s purchase", item.ItemType)
		}
		accountCode := item.AccountCode
		if accountCode == "" {
			accountCode = s.salesAccountCode
		}
		rows = append(rows, models.StagingLineItem{
			InvoiceID:       invoiceID,
			ItemType:        item.ItemType,
			ItemID:          item.ItemID,
			Description:     description,
			Quantity:        1,
			UnitAmountCents: item.AmountCents,
			AccountCode:     accountCode,
			LineAmountCents: item.AmountCents,
			CreatedAt:       now,
		})
	}
	return rows
}

// linkBusinessRecords points membership/registration rows at the invoice.
// Failures are logged as warnings only: the link is a convenience pointer,
// not a correctness requirement.
func (s *Service) linkBusinessRecords(ctx context.Context, invoiceID uuid.UUID, items []PaymentItem) {
	if s.records == nil {
		return
	}
	for _, item := range items {
		if item.ItemID == nil {
			continue
		}
		var source enums.SourceTable
		switch item.ItemType {
		case enums.LineItemTypeMembership:
			source = enums.SourceTableMemberships
		case enums.LineItemTypeRegistration:
			source = enums.SourceTableRegistrations
		default:
			continue
		}
		if err := s.records.LinkInvoice(ctx, source, *item.ItemID, invoiceID); err != nil {
			linkCtx := s.logg.WithFields(ctx, map[string]any{
				"source":  source.String(),
				"item_id": item.ItemID.String(),
				"error":   err.Error(),
			})
			s.logg.Warn(linkCtx, "failed to link business record to staging invoice")
		}
	}
}

func validatePaymentData(data PaymentData) error {
	if data.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "user ID is required")
	}
	if len(data.PaymentItems) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one payment item is required")
	}
	if data.TotalAmountCents < 0 || data.DiscountAmountCents < 0 || data.FinalAmountCents < 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "amounts must be non-negative")
	}
	if data.TotalAmountCents-data.DiscountAmountCents != data.FinalAmountCents {
		return pkgerrors.New(pkgerrors.CodeValidation, "final amount must equal total minus discount")
	}
	for _, item := range data.PaymentItems {
		if !item.ItemType.IsValid() {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown item type %q", item.ItemType))
		}
	}
	return nil
}

func itemContexts(items []PaymentItem) []ItemContext {
	contexts := make([]ItemContext, 0, len(items))
	for _, item := range items {
		contexts = append(contexts, ItemContext{
			ItemType:    item.ItemType,
			ItemID:      item.ItemID,
			Description: item.Description,
			AccountCode: item.AccountCode,
			AmountCents: item.AmountCents,
		})
	}
	return contexts
}

// deriveStripeFeeCents estimates the processing fee withheld from the
// settlement, rounded to the nearest cent.
func deriveStripeFeeCents(finalAmountCents int) int {
	fee := decimal.NewFromInt(int64(finalAmountCents)).
		Mul(stripeFeeRate).
		Add(stripeFeeFixed).
		Round(0)
	return int(fee.IntPart())
}
