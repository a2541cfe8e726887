// Package webhooks exposes the inbound payment-provider endpoints.
package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/leagueledger/backend/api/responses"
	pkgerrors "github.com/leagueledger/backend/pkg/errors"
	"github.com/leagueledger/backend/pkg/logger"
)

// maxEventBytes caps the request body read on this unauthenticated endpoint.
// Stripe's own delivery limit is well under this.
const maxEventBytes = 1 << 20

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// StripeWebhook verifies the Stripe-Signature header, deduplicates event
// deliveries through the guard, and hands verified events to the service.
// A failed handler releases the dedup marker so Stripe's retry can land.
func StripeWebhook(svc StripeWebhookService, signingSecret string, guard stripeWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if err := checkWiring(svc, signingSecret, guard); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		event, err := readEvent(w, r, signingSecret)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		seen, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if seen {
			responses.WriteSuccess(w, nil)
			return
		}

		if err := svc.HandleEvent(ctx, event); err != nil {
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}

func checkWiring(svc StripeWebhookService, signingSecret string, guard stripeWebhookGuard) error {
	switch {
	case svc == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable")
	case signingSecret == "":
		return pkgerrors.New(pkgerrors.CodeInternal, "webhook secret not configured")
	case guard == nil:
		return pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable")
	}
	return nil
}

func readEvent(w http.ResponseWriter, r *http.Request, signingSecret string) (*stripe.Event, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEventBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "event payload too large")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body")
	}

	sigHeader := r.Header.Get("Stripe-Signature")
	if sigHeader == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}

	event, err := webhook.ConstructEvent(payload, sigHeader, signingSecret)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "verify signature")
	}
	return &event, nil
}
