package api

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
)

type createPriceRequest struct {
	ServiceType    model.ServiceType `json:"service_type" validate:"required,oneof=ONESHOT LONGRUN STORAGE"`
	ServiceSubtype string            `json:"service_subtype" validate:"required"`
	ValidFrom      time.Time         `json:"valid_from" validate:"required"`
	ValidTo        *time.Time        `json:"valid_to"`
	FixedCost      decimal.Decimal   `json:"fixed_cost"`
	Multiplier     decimal.Decimal   `json:"multiplier" validate:"required"`
	VlabID         *uuid.UUID        `json:"vlab_id"`
}

type priceResponse struct {
	ID             int64             `json:"id"`
	ServiceType    model.ServiceType `json:"service_type"`
	ServiceSubtype string            `json:"service_subtype"`
	ValidFrom      time.Time         `json:"valid_from"`
	ValidTo        *time.Time        `json:"valid_to,omitempty"`
	FixedCost      string            `json:"fixed_cost"`
	Multiplier     string            `json:"multiplier"`
	VlabID         *uuid.UUID        `json:"vlab_id,omitempty"`
}

func toPriceResponse(p *model.Price) priceResponse {
	return priceResponse{
		ID: p.ID, ServiceType: p.ServiceType, ServiceSubtype: p.ServiceSubtype,
		ValidFrom: p.ValidFrom, ValidTo: p.ValidTo,
		FixedCost: p.FixedCost.StringFixed(5), Multiplier: p.Multiplier.StringFixed(5),
		VlabID: p.VlabID,
	}
}

// createPrice handles POST /price, a time-versioned price entry for a
// (service_type, service_subtype) pair, global or vlab-scoped (spec.md §3).
func (h *Handler) createPrice(w http.ResponseWriter, r *http.Request) {
	var req createPriceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "%v", err))
		return
	}
	if req.ValidTo != nil && !req.ValidTo.After(req.ValidFrom) {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "valid_to must be after valid_from"))
		return
	}

	var out priceResponse
	err := dbx.RunSerializable(r.Context(), h.db, func(ctx context.Context, tx *sql.Tx) error {
		p, err := h.pricing.CreatePrice(ctx, tx, &model.Price{
			ServiceType:    req.ServiceType,
			ServiceSubtype: req.ServiceSubtype,
			ValidFrom:      req.ValidFrom,
			ValidTo:        req.ValidTo,
			FixedCost:      req.FixedCost,
			Multiplier:     req.Multiplier,
			VlabID:         req.VlabID,
		})
		if err != nil {
			return err
		}
		out = toPriceResponse(p)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}
