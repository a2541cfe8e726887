package stripewebhook

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	pkgerrors "github.com/leagueledger/backend/pkg/errors"
	"github.com/leagueledger/backend/pkg/logger"
)

// metadataPaymentID is the key under which checkout stamps our payment row ID
// onto the Stripe payment intent.
const metadataPaymentID = "payment_id"

type stagingWriter interface {
	CreatePaidPurchaseStaging(ctx context.Context, paymentID uuid.UUID) (bool, error)
	ReconcileProcessingFee(ctx context.Context, paymentID uuid.UUID, feeCents int) error
}

type ServiceParams struct {
	Staging stagingWriter
	Logger  *logger.Logger
}

type Service struct {
	staging stagingWriter
	logg    *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Staging == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "staging service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{staging: params.Staging, logg: params.Logger}, nil
}

// HandleEvent reacts to settled payment intents by ensuring an accounting
// staging record exists for the payment. Other event types are acknowledged
// without action.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		var intent stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode payment intent event")
		}
		return s.ensureStaged(ctx, &intent)
	default:
		return nil
	}
}

func (s *Service) ensureStaged(ctx context.Context, intent *stripe.PaymentIntent) error {
	raw := intent.Metadata[metadataPaymentID]
	if raw == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment id missing from event metadata")
	}
	paymentID, err := uuid.Parse(raw)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id in event metadata")
	}

	ctx = s.logg.WithPaymentID(ctx, paymentID.String())
	staged, err := s.staging.CreatePaidPurchaseStaging(ctx, paymentID)
	if err != nil {
		return err
	}
	if !staged {
		s.logg.Warn(ctx, "payment has no staging record")
		return nil
	}
	s.logg.Info(ctx, "payment verified as staged")

	// The fee estimated at staging time is replaced with the real fee when the
	// event carries an expanded balance transaction. Failure here is warn-only:
	// the estimate stays in place and the sync still runs.
	if fee, ok := settledFeeCents(intent); ok {
		if err := s.staging.ReconcileProcessingFee(ctx, paymentID, fee); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "processing fee reconciliation failed")
		}
	}
	return nil
}

// settledFeeCents extracts the processing fee from the intent's latest charge.
// Webhook payloads only include the balance transaction when expanded, so a
// missing or unexpanded transaction reports false.
func settledFeeCents(intent *stripe.PaymentIntent) (int, bool) {
	if intent.LatestCharge == nil || intent.LatestCharge.BalanceTransaction == nil {
		return 0, false
	}
	tx := intent.LatestCharge.BalanceTransaction
	if tx.Fee <= 0 {
		return 0, false
	}
	return int(tx.Fee), true
}
