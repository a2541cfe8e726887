package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/leagueledger/backend/api/responses"
	"github.com/leagueledger/backend/api/validators"
	"github.com/leagueledger/backend/internal/staging"
	"github.com/leagueledger/backend/pkg/enums"
	pkgerrors "github.com/leagueledger/backend/pkg/errors"
	"github.com/leagueledger/backend/pkg/logger"
)

// PurchaseStagingService is the slice of the staging service the purchase
// endpoints use. The checkout service calls these in-band with purchase
// confirmation so the full line-item context is captured at the moment it
// exists.
type PurchaseStagingService interface {
	CreateImmediateStaging(ctx context.Context, data staging.PaymentData, opts staging.Options) (bool, error)
	CreateFreePurchaseStaging(ctx context.Context, event staging.FreePurchaseEvent) (bool, error)
}

type purchaseItemRequest struct {
	ItemType    string  `json:"itemType" validate:"required"`
	ItemID      *string `json:"itemId,omitempty" validate:"omitempty,uuid"`
	Description string  `json:"description"`
	AccountCode string  `json:"accountCode"`
	AmountCents int     `json:"amountCents"`
}

type stagePurchaseRequest struct {
	UserID              string                `json:"userId" validate:"required,uuid"`
	PaymentID           *string               `json:"paymentId,omitempty" validate:"omitempty,uuid"`
	TotalAmountCents    int                   `json:"totalAmountCents" validate:"min=0"`
	DiscountAmountCents int                   `json:"discountAmountCents" validate:"min=0"`
	FinalAmountCents    int                   `json:"finalAmountCents" validate:"min=0"`
	Items               []purchaseItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
	DiscountCodes       []string              `json:"discountCodes,omitempty" validate:"omitempty,dive,uuid"`
	PaymentReference    *string               `json:"paymentReference,omitempty"`
	IsFree              bool                  `json:"isFree"`
}

type stageFreePurchaseRequest struct {
	Source string `json:"source" validate:"required"`
	ItemID string `json:"itemId" validate:"required,uuid"`
}

type stageResponse struct {
	Staged bool `json:"staged"`
}

// StagePurchase durably records a confirmed purchase's accounting rows. The
// checkout flow calls this before acknowledging the purchase to the member.
func StagePurchase(svc PurchaseStagingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "staging service unavailable"))
			return
		}

		var req stagePurchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		data, err := paymentDataFromRequest(req)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		staged, err := svc.CreateImmediateStaging(r.Context(), data, staging.Options{IsFree: req.IsFree})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, stageResponse{Staged: staged})
	}
}

// StageFreePurchase stages a zero-cost membership or registration from its
// originating business record.
func StageFreePurchase(svc PurchaseStagingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "staging service unavailable"))
			return
		}

		var req stageFreePurchaseRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		source, err := enums.ParseSourceTable(req.Source)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid source table").WithDetails(map[string]any{"field": "source"}))
			return
		}
		itemID, err := uuid.Parse(req.ItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id"))
			return
		}

		staged, err := svc.CreateFreePurchaseStaging(r.Context(), staging.FreePurchaseEvent{Source: source, ItemID: itemID})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, stageResponse{Staged: staged})
	}
}

func paymentDataFromRequest(req stagePurchaseRequest) (staging.PaymentData, error) {
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return staging.PaymentData{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid user id")
	}

	data := staging.PaymentData{
		UserID:              userID,
		TotalAmountCents:    req.TotalAmountCents,
		DiscountAmountCents: req.DiscountAmountCents,
		FinalAmountCents:    req.FinalAmountCents,
		PaymentReference:    req.PaymentReference,
	}

	if req.PaymentID != nil {
		paymentID, err := uuid.Parse(*req.PaymentID)
		if err != nil {
			return staging.PaymentData{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment id")
		}
		data.PaymentID = &paymentID
	}

	for _, raw := range req.DiscountCodes {
		code, err := uuid.Parse(raw)
		if err != nil {
			return staging.PaymentData{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid discount code id")
		}
		data.DiscountCodesUsed = append(data.DiscountCodesUsed, code)
	}

	for _, item := range req.Items {
		itemType, err := enums.ParseLineItemType(item.ItemType)
		if err != nil {
			return staging.PaymentData{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item type")
		}
		converted := staging.PaymentItem{
			ItemType:    itemType,
			Description: item.Description,
			AccountCode: item.AccountCode,
			AmountCents: item.AmountCents,
		}
		if item.ItemID != nil {
			id, err := uuid.Parse(*item.ItemID)
			if err != nil {
				return staging.PaymentData{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid item id")
			}
			converted.ItemID = &id
		}
		data.PaymentItems = append(data.PaymentItems, converted)
	}

	return data, nil
}
