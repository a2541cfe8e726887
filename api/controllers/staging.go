package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leagueledger/backend/api/responses"
	"github.com/leagueledger/backend/api/validators"
	"github.com/leagueledger/backend/internal/staging"
	"github.com/leagueledger/backend/pkg/db/models"
	"github.com/leagueledger/backend/pkg/enums"
	pkgerrors "github.com/leagueledger/backend/pkg/errors"
	"github.com/leagueledger/backend/pkg/logger"
	"github.com/leagueledger/backend/pkg/pagination"
)

type stagingRepository interface {
	List(ctx context.Context, query staging.ListQuery) ([]models.StagingInvoice, *pagination.Cursor, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.StagingInvoice, error)
	RequeueFailed(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type stagingLineItemView struct {
	ID              uuid.UUID `json:"id"`
	ItemType        string    `json:"itemType"`
	Description     string    `json:"description"`
	Quantity        int       `json:"quantity"`
	UnitAmountCents int       `json:"unitAmountCents"`
	LineAmountCents int       `json:"lineAmountCents"`
	AccountCode     string    `json:"accountCode"`
}

type stagingPaymentView struct {
	ID                 uuid.UUID `json:"id"`
	PaymentMethod      string    `json:"paymentMethod"`
	AccountCode        string    `json:"accountCode"`
	AmountPaidCents    int       `json:"amountPaidCents"`
	ProcessingFeeCents int       `json:"processingFeeCents"`
	Reference          *string   `json:"reference,omitempty"`
	SyncStatus         string    `json:"syncStatus"`
	XeroPaymentID      *string   `json:"xeroPaymentId,omitempty"`
}

type stagingInvoiceView struct {
	ID                   uuid.UUID             `json:"id"`
	PaymentID            *uuid.UUID            `json:"paymentId,omitempty"`
	InvoiceStatus        string                `json:"invoiceStatus"`
	TotalAmountCents     int                   `json:"totalAmountCents"`
	DiscountAmountCents  int                   `json:"discountAmountCents"`
	NetAmountCents       int                   `json:"netAmountCents"`
	StripeFeeAmountCents int                   `json:"stripeFeeAmountCents"`
	SyncStatus           string                `json:"syncStatus"`
	SyncAttempts         int                   `json:"syncAttempts"`
	LastSyncError        *string               `json:"lastSyncError,omitempty"`
	StagedAt             time.Time             `json:"stagedAt"`
	SyncedAt             *time.Time            `json:"syncedAt,omitempty"`
	XeroInvoiceID        *string               `json:"xeroInvoiceId,omitempty"`
	LineItems            []stagingLineItemView `json:"lineItems"`
	Payment              *stagingPaymentView   `json:"payment,omitempty"`
}

type stagingListResponse struct {
	Items      []stagingInvoiceView `json:"items"`
	NextCursor string               `json:"nextCursor,omitempty"`
}

type requeueRequest struct {
	IDs []string `json:"ids" validate:"required,min=1,max=100,dive,uuid"`
}

type requeueResponse struct {
	Requeued int64 `json:"requeued"`
}

// AdminStagingList returns a page of staging invoices, optionally filtered by
// sync status.
func AdminStagingList(repo stagingRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "staging repository unavailable"))
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cursor := strings.TrimSpace(r.URL.Query().Get("cursor"))

		query := staging.ListQuery{
			Params: pagination.Params{Limit: limit, Cursor: cursor},
		}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseSyncStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid sync status").WithDetails(map[string]any{"field": "status"}))
				return
			}
			query.Status = &status
		}

		rows, next, err := repo.List(r.Context(), query)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list staging invoices"))
			return
		}

		resp := stagingListResponse{Items: make([]stagingInvoiceView, 0, len(rows))}
		for i := range rows {
			resp.Items = append(resp.Items, invoiceView(&rows[i]))
		}
		if next != nil {
			resp.NextCursor = pagination.EncodeCursor(*next)
		}
		responses.WriteSuccess(w, resp)
	}
}

// AdminStagingDetail returns one staging invoice with its line items and payment.
func AdminStagingDetail(repo stagingRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "staging repository unavailable"))
			return
		}

		rawID := strings.TrimSpace(chi.URLParam(r, "invoiceId"))
		if rawID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invoice id is required"))
			return
		}
		id, err := uuid.Parse(rawID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice id"))
			return
		}

		invoice, err := repo.GetByID(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch staging invoice"))
			return
		}
		if invoice == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "staging invoice not found"))
			return
		}

		responses.WriteSuccess(w, invoiceView(invoice))
	}
}

// AdminStagingRequeue flips failed invoices back to staged for the next sync run.
func AdminStagingRequeue(repo stagingRepository, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "staging repository unavailable"))
			return
		}

		var req requeueRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ids := make([]uuid.UUID, 0, len(req.IDs))
		for _, raw := range req.IDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid invoice id"))
				return
			}
			ids = append(ids, id)
		}

		requeued, err := repo.RequeueFailed(r.Context(), ids)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "requeue staging invoices"))
			return
		}

		responses.WriteSuccess(w, requeueResponse{Requeued: requeued})
	}
}

func invoiceView(inv *models.StagingInvoice) stagingInvoiceView {
	view := stagingInvoiceView{
		ID:                   inv.ID,
		PaymentID:            inv.PaymentID,
		InvoiceStatus:        string(inv.InvoiceStatus),
		TotalAmountCents:     inv.TotalAmountCents,
		DiscountAmountCents:  inv.DiscountAmountCents,
		NetAmountCents:       inv.NetAmountCents,
		StripeFeeAmountCents: inv.StripeFeeAmountCents,
		SyncStatus:           string(inv.SyncStatus),
		SyncAttempts:         inv.SyncAttempts,
		LastSyncError:        inv.LastSyncError,
		StagedAt:             inv.StagedAt,
		SyncedAt:             inv.SyncedAt,
		XeroInvoiceID:        inv.XeroInvoiceID,
		LineItems:            make([]stagingLineItemView, 0, len(inv.LineItems)),
	}
	for _, item := range inv.LineItems {
		view.LineItems = append(view.LineItems, stagingLineItemView{
			ID:              item.ID,
			ItemType:        string(item.ItemType),
			Description:     item.Description,
			Quantity:        item.Quantity,
			UnitAmountCents: item.UnitAmountCents,
			LineAmountCents: item.LineAmountCents,
			AccountCode:     item.AccountCode,
		})
	}
	if inv.Payment != nil {
		view.Payment = &stagingPaymentView{
			ID:                 inv.Payment.ID,
			PaymentMethod:      inv.Payment.PaymentMethod,
			AccountCode:        inv.Payment.AccountCode,
			AmountPaidCents:    inv.Payment.AmountPaidCents,
			ProcessingFeeCents: inv.Payment.ProcessingFeeCents,
			Reference:          inv.Payment.Reference,
			SyncStatus:         string(inv.Payment.SyncStatus),
			XeroPaymentID:      inv.Payment.XeroPaymentID,
		}
	}
	return view
}
