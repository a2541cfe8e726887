package xero

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leagueledger/backend/pkg/config"
)

func testClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := NewClient(config.XeroConfig{TenantID: "tenant-1"},
		WithHTTPClient(server.Client()),
		WithBaseURL(server.URL),
		WithConnectionsURL(server.URL+"/connections"),
	)
	require.NoError(t, err)
	return client
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.XeroConfig{})
	assert.ErrorIs(t, err, errTenantRequired)

	_, err = NewClient(config.XeroConfig{TenantID: "tenant-1"})
	assert.ErrorIs(t, err, errCredentialsRequired)

	client, err := NewClient(config.XeroConfig{TenantID: "tenant-1"}, WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)
	assert.Equal(t, defaultBaseURL, client.baseURL)
}

func TestCreateInvoice(t *testing.T) {
	var captured map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/Invoices", r.URL.Path)
		assert.Equal(t, "tenant-1", r.Header.Get("xero-tenant-id"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		_, _ = w.Write([]byte(`{"Invoices":[{"InvoiceID":"inv-123","InvoiceNumber":"INV-0042","Status":"AUTHORISED"}]}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	result, err := client.CreateInvoice(context.Background(), Invoice{
		ContactName: "Jordan Ellis",
		Reference:   "membership 2026",
		Date:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		DueDate:     time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		LineItems: []LineItem{
			{Description: "Season membership", Quantity: 1, UnitAmountCents: 12550, LineAmountCents: 12550, AccountCode: "SALES"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "inv-123", result.InvoiceID)
	assert.Equal(t, "INV-0042", result.InvoiceNumber)
	assert.Equal(t, "AUTHORISED", result.Status)

	invoices := captured["Invoices"].([]any)
	require.Len(t, invoices, 1)
	sent := invoices[0].(map[string]any)
	assert.Equal(t, "ACCREC", sent["Type"])
	assert.Equal(t, "AUTHORISED", sent["Status"])
	assert.Equal(t, "2026-03-01", sent["Date"])
	lines := sent["LineItems"].([]any)
	require.Len(t, lines, 1)
	assert.InDelta(t, 125.50, lines[0].(map[string]any)["UnitAmount"].(float64), 0.001)
}

func TestCreateInvoiceRequiresLineItems(t *testing.T) {
	client, err := NewClient(config.XeroConfig{TenantID: "tenant-1"}, WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)

	_, err = client.CreateInvoice(context.Background(), Invoice{ContactName: "x"})
	assert.Error(t, err)
}

func TestCreatePayment(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/Payments", r.URL.Path)
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		payment := payload["Payments"].([]any)[0].(map[string]any)
		assert.InDelta(t, 99.99, payment["Amount"].(float64), 0.001)
		assert.Equal(t, "INV-0042", payment["Reference"])
		_, _ = w.Write([]byte(`{"Payments":[{"PaymentID":"pay-9","Status":"AUTHORISED"}]}`))
	}))
	defer server.Close()

	client := testClient(t, server)
	result, err := client.CreatePayment(context.Background(), Payment{
		InvoiceID:   "inv-123",
		AccountCode: "090",
		Date:        time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		AmountCents: 9999,
		Reference:   "INV-0042",
	})
	require.NoError(t, err)
	assert.Equal(t, "pay-9", result.PaymentID)
}

func TestCreatePaymentValidation(t *testing.T) {
	client, err := NewClient(config.XeroConfig{TenantID: "tenant-1"}, WithHTTPClient(http.DefaultClient))
	require.NoError(t, err)

	_, err = client.CreatePayment(context.Background(), Payment{AmountCents: 100})
	assert.Error(t, err)

	_, err = client.CreatePayment(context.Background(), Payment{InvoiceID: "inv-1", AmountCents: 0})
	assert.Error(t, err)
}

func TestErrorNormalization(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		retryAfter string
		wantKind   ErrorKind
		wantAfter  time.Duration
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, retryAfter: "17", wantKind: KindRateLimited, wantAfter: 17 * time.Second},
		{name: "rate limited no header", status: http.StatusTooManyRequests, wantKind: KindRateLimited},
		{name: "server error", status: http.StatusBadGateway, wantKind: KindTransient},
		{name: "timeout", status: http.StatusRequestTimeout, wantKind: KindTransient},
		{name: "validation", status: http.StatusBadRequest, wantKind: KindPermanent},
		{name: "unauthorized", status: http.StatusUnauthorized, wantKind: KindPermanent},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tc.retryAfter != "" {
					w.Header().Set("Retry-After", tc.retryAfter)
				}
				w.WriteHeader(tc.status)
				_, _ = w.Write([]byte("upstream rejected the request"))
			}))
			defer server.Close()

			client := testClient(t, server)
			_, err := client.CreateInvoice(context.Background(), Invoice{
				LineItems: []LineItem{{Description: "x", Quantity: 1}},
			})
			require.Error(t, err)

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tc.wantKind, apiErr.Kind)
			assert.Equal(t, tc.status, apiErr.StatusCode)
			assert.Equal(t, tc.wantAfter, apiErr.RetryAfterDelay)
			assert.Equal(t, tc.wantKind == KindRateLimited, apiErr.RateLimited())
		})
	}
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/connections", r.URL.Path)
		_, _ = w.Write([]byte(`[{"tenantId":"tenant-1","tenantName":"League Ledger","tenantType":"ORGANISATION"}]`))
	}))
	defer server.Close()

	client := testClient(t, server)
	require.NoError(t, client.Ping(context.Background()))
}

func TestPingUnknownTenant(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"tenantId":"other","tenantName":"Other Org","tenantType":"ORGANISATION"}]`))
	}))
	defer server.Close()

	client := testClient(t, server)
	assert.Error(t, client.Ping(context.Background()))
}
