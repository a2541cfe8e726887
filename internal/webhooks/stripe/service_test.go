package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/leagueledger/backend/pkg/logger"
)

type fakeStaging struct {
	calls  []uuid.UUID
	staged bool
	err    error

	feeCalls map[uuid.UUID]int
	feeErr   error
}

func (f *fakeStaging) CreatePaidPurchaseStaging(_ context.Context, paymentID uuid.UUID) (bool, error) {
	f.calls = append(f.calls, paymentID)
	return f.staged, f.err
}

func (f *fakeStaging) ReconcileProcessingFee(_ context.Context, paymentID uuid.UUID, feeCents int) error {
	if f.feeCalls == nil {
		f.feeCalls = map[uuid.UUID]int{}
	}
	f.feeCalls[paymentID] = feeCents
	return f.feeErr
}

type fakeStore struct {
	keys map[string]bool
}

func newFakeStore() *fakeStore { return &fakeStore{keys: map[string]bool{}} }

func (f *fakeStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("ll:idem:%s:%s", scope, id)
}

func (f *fakeStore) SetNX(_ context.Context, key string, _ any, _ time.Duration) (bool, error) {
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func webhookTestLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "stripe-webhook-test", Output: io.Discard})
}

func paymentIntentEvent(t *testing.T, metadata map[string]string) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":       "pi_123",
		"metadata": metadata,
	})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_123",
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventStagesPaidPurchase(t *testing.T) {
	paymentID := uuid.New()
	staging := &fakeStaging{staged: true}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := paymentIntentEvent(t, map[string]string{"payment_id": paymentID.String()})
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	require.Len(t, staging.calls, 1)
	assert.Equal(t, paymentID, staging.calls[0])
}

func paymentIntentEventWithFee(t *testing.T, paymentID string, feeCents int64) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(map[string]any{
		"id":       "pi_123",
		"metadata": map[string]string{"payment_id": paymentID},
		"latest_charge": map[string]any{
			"id": "ch_123",
			"balance_transaction": map[string]any{
				"id":  "txn_123",
				"fee": feeCents,
			},
		},
	})
	require.NoError(t, err)
	return &stripe.Event{
		ID:   "evt_123",
		Type: stripe.EventTypePaymentIntentSucceeded,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventReconcilesProcessingFee(t *testing.T) {
	paymentID := uuid.New()
	staging := &fakeStaging{staged: true}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := paymentIntentEventWithFee(t, paymentID.String(), 157)
	require.NoError(t, svc.HandleEvent(context.Background(), event))

	require.Len(t, staging.feeCalls, 1)
	assert.Equal(t, 157, staging.feeCalls[paymentID])
}

func TestHandleEventSkipsFeeWithoutBalanceTransaction(t *testing.T) {
	paymentID := uuid.New()
	staging := &fakeStaging{staged: true}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := paymentIntentEvent(t, map[string]string{"payment_id": paymentID.String()})
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, staging.feeCalls)
}

func TestHandleEventFeeReconciliationFailureIsNonFatal(t *testing.T) {
	paymentID := uuid.New()
	staging := &fakeStaging{staged: true, feeErr: fmt.Errorf("db unavailable")}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := paymentIntentEventWithFee(t, paymentID.String(), 99)
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	require.Len(t, staging.feeCalls, 1)
}

func TestHandleEventNoFeeWhenNotStaged(t *testing.T) {
	staging := &fakeStaging{staged: false}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := paymentIntentEventWithFee(t, uuid.NewString(), 157)
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, staging.feeCalls)
}

func TestHandleEventMissingPaymentID(t *testing.T) {
	staging := &fakeStaging{}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := paymentIntentEvent(t, map[string]string{})
	err = svc.HandleEvent(context.Background(), event)
	require.Error(t, err)
	assert.Empty(t, staging.calls)
}

func TestHandleEventStagingErrorPropagates(t *testing.T) {
	staging := &fakeStaging{err: fmt.Errorf("db unavailable")}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := paymentIntentEvent(t, map[string]string{"payment_id": uuid.NewString()})
	require.Error(t, svc.HandleEvent(context.Background(), event))
}

func TestHandleEventIgnoresUnrelatedTypes(t *testing.T) {
	staging := &fakeStaging{}
	svc, err := NewService(ServiceParams{Staging: staging, Logger: webhookTestLogger()})
	require.NoError(t, err)

	event := &stripe.Event{
		ID:   "evt_999",
		Type: stripe.EventTypeCustomerCreated,
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	require.NoError(t, svc.HandleEvent(context.Background(), event))
	assert.Empty(t, staging.calls)
}

func TestHandleEventNilEvent(t *testing.T) {
	svc, err := NewService(ServiceParams{Staging: &fakeStaging{}, Logger: webhookTestLogger()})
	require.NoError(t, err)
	require.Error(t, svc.HandleEvent(context.Background(), nil))
}

func TestIdempotencyGuardLifecycle(t *testing.T) {
	store := newFakeStore()
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	require.NoError(t, err)
	ctx := context.Background()

	seen, err := guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	require.NoError(t, guard.Delete(ctx, "evt_1"))
	seen, err = guard.CheckAndMark(ctx, "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)
}

func TestIdempotencyGuardValidation(t *testing.T) {
	_, err := NewIdempotencyGuard(nil, time.Hour, "stripe")
	assert.Error(t, err)

	_, err = NewIdempotencyGuard(newFakeStore(), time.Hour, "")
	assert.Error(t, err)

	guard, err := NewIdempotencyGuard(newFakeStore(), time.Hour, "stripe")
	require.NoError(t, err)
	_, err = guard.CheckAndMark(context.Background(), "")
	assert.Error(t, err)
}
