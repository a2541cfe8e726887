package xero

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/leagueledger/backend/pkg/config"
	pkgerrors "github.com/leagueledger/backend/pkg/errors"
)

const (
	defaultBaseURL        = "https://api.xero.com/api.xro/2.0"
	defaultConnectionsURL = "https://api.xero.com/connections"
	defaultTokenURL       = "https://identity.xero.com/connect/token"

	tenantHeader = "xero-tenant-id"

	// Invoice statuses accepted by the accounting API.
	InvoiceStatusDraft      = "DRAFT"
	InvoiceStatusAuthorised = "AUTHORISED"
)

var (
	errCredentialsRequired = errors.New("xero client credentials are required")
	errTenantRequired      = errors.New("xero tenant ID is required")
)

// Client wraps the Xero accounting API endpoints used for invoice and
// payment sync. All requests carry the tenant header; authentication uses the
// OAuth2 client-credentials flow.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	connectionsURL string
	tenantID       string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default OAuth2-backed HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the accounting API base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithConnectionsURL overrides the connections endpoint.
func WithConnectionsURL(connectionsURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(connectionsURL)
		if trimmed != "" {
			c.connectionsURL = trimmed
		}
	}
}

// NewClient builds the Xero client from configuration. The token source
// refreshes access tokens transparently.
func NewClient(cfg config.XeroConfig, opts ...Option) (*Client, error) {
	tenantID := strings.TrimSpace(cfg.TenantID)
	if tenantID == "" {
		return nil, errTenantRequired
	}

	client := &Client{
		tenantID:       tenantID,
		baseURL:        strings.TrimSpace(cfg.BaseURL),
		connectionsURL: strings.TrimSpace(cfg.ConnectionsURL),
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}
	if client.connectionsURL == "" {
		client.connectionsURL = defaultConnectionsURL
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		clientID := strings.TrimSpace(cfg.ClientID)
		clientSecret := strings.TrimSpace(cfg.ClientSecret)
		if clientID == "" || clientSecret == "" {
			return nil, errCredentialsRequired
		}
		tokenURL := strings.TrimSpace(cfg.TokenURL)
		if tokenURL == "" {
			tokenURL = defaultTokenURL
		}
		creds := clientcredentials.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{"accounting.transactions", "accounting.settings"},
		}
		client.httpClient = creds.Client(context.Background())
		timeout := cfg.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client.httpClient.Timeout = timeout
	}

	return client, nil
}

// LineItem is one invoice line. Amounts are integer cents; the wire format
// carries decimal dollars.
type LineItem struct {
	Description     string
	Quantity        int
	UnitAmountCents int64
	LineAmountCents int64
	AccountCode     string
}

// Invoice is the document sent to the accounting API.
type Invoice struct {
	ContactName string
	Reference   string
	Date        time.Time
	DueDate     time.Time
	Status      string
	LineItems   []LineItem
}

// InvoiceResult holds the identifiers Xero assigned to a created invoice.
type InvoiceResult struct {
	InvoiceID     string
	InvoiceNumber string
	Status        string
}

// Payment applies money against an existing Xero invoice.
type Payment struct {
	InvoiceID   string
	AccountCode string
	Date        time.Time
	AmountCents int64
	Reference   string
}

// PaymentResult holds the identifiers Xero assigned to a created payment.
type PaymentResult struct {
	PaymentID string
	Status    string
}

// Connection is one tenant the app credentials can reach.
type Connection struct {
	TenantID   string `json:"tenantId"`
	TenantName string `json:"tenantName"`
	TenantType string `json:"tenantType"`
}

type wireLineItem struct {
	Description string  `json:"Description"`
	Quantity    int     `json:"Quantity"`
	UnitAmount  float64 `json:"UnitAmount"`
	LineAmount  float64 `json:"LineAmount"`
	AccountCode string  `json:"AccountCode"`
}

type wireInvoice struct {
	Type    string `json:"Type"`
	Contact struct {
		Name string `json:"Name"`
	} `json:"Contact"`
	Date            string         `json:"Date"`
	DueDate         string         `json:"DueDate"`
	Status          string         `json:"Status"`
	Reference       string         `json:"Reference,omitempty"`
	LineAmountTypes string         `json:"LineAmountTypes"`
	LineItems       []wireLineItem `json:"LineItems"`
}

// CreateInvoice creates an accounts-receivable invoice in the tenant.
func (c *Client) CreateInvoice(ctx context.Context, inv Invoice) (*InvoiceResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "xero client not configured")
	}
	if len(inv.LineItems) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice requires at least one line item")
	}

	doc := wireInvoice{
		Type:            "ACCREC",
		Date:            inv.Date.Format("2006-01-02"),
		DueDate:         inv.DueDate.Format("2006-01-02"),
		Status:          inv.Status,
		Reference:       inv.Reference,
		LineAmountTypes: "Inclusive",
	}
	doc.Contact.Name = inv.ContactName
	if doc.Status == "" {
		doc.Status = InvoiceStatusAuthorised
	}
	for _, line := range inv.LineItems {
		doc.LineItems = append(doc.LineItems, wireLineItem{
			Description: line.Description,
			Quantity:    line.Quantity,
			UnitAmount:  centsToDollars(line.UnitAmountCents),
			LineAmount:  centsToDollars(line.LineAmountCents),
			AccountCode: line.AccountCode,
		})
	}

	payload := struct {
		Invoices []wireInvoice `json:"Invoices"`
	}{Invoices: []wireInvoice{doc}}

	var apiResp struct {
		Invoices []struct {
			InvoiceID     string `json:"InvoiceID"`
			InvoiceNumber string `json:"InvoiceNumber"`
			Status        string `json:"Status"`
		} `json:"Invoices"`
	}
	if err := c.do(ctx, http.MethodPut, c.buildURL("Invoices"), payload, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Invoices) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "xero returned no invoice in response")
	}

	created := apiResp.Invoices[0]
	return &InvoiceResult{
		InvoiceID:     created.InvoiceID,
		InvoiceNumber: created.InvoiceNumber,
		Status:        created.Status,
	}, nil
}

// CreatePayment records a payment against an invoice.
func (c *Client) CreatePayment(ctx context.Context, pay Payment) (*PaymentResult, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "xero client not configured")
	}
	if strings.TrimSpace(pay.InvoiceID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment requires an invoice ID")
	}
	if pay.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment amount must be positive")
	}

	type wirePayment struct {
		Invoice struct {
			InvoiceID string `json:"InvoiceID"`
		} `json:"Invoice"`
		Account struct {
			Code string `json:"Code"`
		} `json:"Account"`
		Date      string  `json:"Date"`
		Amount    float64 `json:"Amount"`
		Reference string  `json:"Reference,omitempty"`
	}

	doc := wirePayment{
		Date:      pay.Date.Format("2006-01-02"),
		Amount:    centsToDollars(pay.AmountCents),
		Reference: pay.Reference,
	}
	doc.Invoice.InvoiceID = pay.InvoiceID
	doc.Account.Code = pay.AccountCode

	payload := struct {
		Payments []wirePayment `json:"Payments"`
	}{Payments: []wirePayment{doc}}

	var apiResp struct {
		Payments []struct {
			PaymentID string `json:"PaymentID"`
			Status    string `json:"Status"`
		} `json:"Payments"`
	}
	if err := c.do(ctx, http.MethodPut, c.buildURL("Payments"), payload, &apiResp); err != nil {
		return nil, err
	}
	if len(apiResp.Payments) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "xero returned no payment in response")
	}

	created := apiResp.Payments[0]
	return &PaymentResult{PaymentID: created.PaymentID, Status: created.Status}, nil
}

// Connections lists the tenants reachable with the configured credentials.
func (c *Client) Connections(ctx context.Context) ([]Connection, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "xero client not configured")
	}

	var connections []Connection
	if err := c.do(ctx, http.MethodGet, c.connectionsURL, nil, &connections); err != nil {
		return nil, err
	}
	return connections, nil
}

// Ping verifies credentials and that the configured tenant is connected.
func (c *Client) Ping(ctx context.Context) error {
	connections, err := c.Connections(ctx)
	if err != nil {
		return err
	}
	for _, conn := range connections {
		if conn.TenantID == c.tenantID {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("tenant %s is not connected", c.tenantID))
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal xero request")
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build xero request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(tenantHeader, c.tenantID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute xero request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return normalizeResponse(resp)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode xero response")
	}
	return nil
}

func (c *Client) buildURL(path string) string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.baseURL, "/"), strings.TrimLeft(path, "/"))
}

func centsToDollars(cents int64) float64 {
	value, _ := decimal.NewFromInt(cents).Div(decimal.NewFromInt(100)).Float64()
	return value
}
