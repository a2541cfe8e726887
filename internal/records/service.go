package records

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/leagueledger/backend/internal/staging"
	"github.com/leagueledger/backend/pkg/enums"
	pkgerrors "github.com/leagueledger/backend/pkg/errors"
)

// Accounting code purposes known to the system, seeded by migrations.
const (
	PurposeSalesRevenue   = "sales_revenue"
	PurposeSettlementBank = "settlement_bank"
	PurposeDonations      = "donations"
)

// ServiceParams groups dependencies for the records service.
type ServiceParams struct {
	Repo Repository
}

// Service resolves purchase records into staging inputs and maintains the
// invoice back-links. It implements staging.RecordResolver.
type Service struct {
	repo Repository
}

// NewService builds a records service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, errors.New("repo is required")
	}
	return &Service{repo: params.Repo}, nil
}

// ResolvePurchase loads the business record behind a purchase and converts it
// into the staging writer's input shape. Returns nil when no record exists.
func (s *Service) ResolvePurchase(ctx context.Context, source enums.SourceTable, itemID uuid.UUID) (*staging.PaymentData, error) {
	switch source {
	case enums.SourceTableMemberships:
		membership, err := s.repo.FindMembership(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if membership == nil {
			return nil, nil
		}
		id := membership.ID
		return &staging.PaymentData{
			UserID:           membership.UserID,
			TotalAmountCents: membership.PriceCents,
			FinalAmountCents: membership.PriceCents,
			PaymentItems: []staging.PaymentItem{{
				ItemType:    enums.LineItemTypeMembership,
				ItemID:      &id,
				Description: fmt.Sprintf("%s membership", membership.MembershipType),
				AmountCents: membership.PriceCents,
			}},
		}, nil

	case enums.SourceTableRegistrations:
		registration, err := s.repo.FindRegistration(ctx, itemID)
		if err != nil {
			return nil, err
		}
		if registration == nil {
			return nil, nil
		}
		id := registration.ID
		return &staging.PaymentData{
			UserID:           registration.UserID,
			TotalAmountCents: registration.PriceCents,
			FinalAmountCents: registration.PriceCents,
			PaymentItems: []staging.PaymentItem{{
				ItemType:    enums.LineItemTypeRegistration,
				ItemID:      &id,
				Description: fmt.Sprintf("%s registration", registration.DivisionName),
				AmountCents: registration.PriceCents,
			}},
		}, nil

	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown source table %q", source))
	}
}

// LinkInvoice points the originating business record at its staging invoice.
func (s *Service) LinkInvoice(ctx context.Context, source enums.SourceTable, itemID, invoiceID uuid.UUID) error {
	switch source {
	case enums.SourceTableMemberships:
		return s.repo.SetMembershipInvoice(ctx, itemID, invoiceID)
	case enums.SourceTableRegistrations:
		return s.repo.SetRegistrationInvoice(ctx, itemID, invoiceID)
	default:
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown source table %q", source))
	}
}

// SettlementAccountCode returns the configured settlement bank account code,
// or the provided fallback when no active row exists.
func (s *Service) SettlementAccountCode(ctx context.Context, fallback string) (string, error) {
	code, err := s.repo.FindAccountingCode(ctx, PurposeSettlementBank)
	if err != nil {
		return "", err
	}
	if code == nil {
		return fallback, nil
	}
	return code.Code, nil
}

// SalesAccountCode returns the configured sales revenue account code, or the
// provided fallback when no active row exists.
func (s *Service) SalesAccountCode(ctx context.Context, fallback string) (string, error) {
	code, err := s.repo.FindAccountingCode(ctx, PurposeSalesRevenue)
	if err != nil {
		return "", err
	}
	if code == nil {
		return fallback, nil
	}
	return code.Code, nil
}
