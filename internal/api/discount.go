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

type createDiscountRequest struct {
	VlabID    *uuid.UUID      `json:"vlab_id"`
	ValidFrom time.Time       `json:"valid_from" validate:"required"`
	ValidTo   *time.Time      `json:"valid_to"`
	Discount  decimal.Decimal `json:"discount" validate:"required"`
}

type discountResponse struct {
	ID        int64      `json:"id"`
	VlabID    *uuid.UUID `json:"vlab_id,omitempty"`
	ValidFrom time.Time  `json:"valid_from"`
	ValidTo   *time.Time `json:"valid_to,omitempty"`
	Discount  string     `json:"discount"`
}

func toDiscountResponse(d *model.Discount) discountResponse {
	return discountResponse{ID: d.ID, VlabID: d.VlabID, ValidFrom: d.ValidFrom, ValidTo: d.ValidTo, Discount: d.Discount.StringFixed(5)}
}

// createDiscount handles POST /discount: a time-versioned multiplicative
// discount scoped to one virtual lab (spec.md §3).
func (h *Handler) createDiscount(w http.ResponseWriter, r *http.Request) {
	var req createDiscountRequest
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

	var out discountResponse
	err := dbx.RunSerializable(r.Context(), h.db, func(ctx context.Context, tx *sql.Tx) error {
		if req.VlabID != nil {
			if _, err := h.accounts.Get(ctx, tx, *req.VlabID); err != nil {
				return err
			}
		}
		d, err := h.pricing.CreateDiscount(ctx, tx, &model.Discount{
			VlabID: req.VlabID, ValidFrom: req.ValidFrom, ValidTo: req.ValidTo, Discount: req.Discount,
		})
		if err != nil {
			return err
		}
		out = toDiscountResponse(d)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

// getCurrentDiscount handles GET /discount/{vlab_id}: the discount in
// effect for the vlab right now, if any.
func (h *Handler) getCurrentDiscount(w http.ResponseWriter, r *http.Request) {
	vlabID, err := uuid.Parse(r.PathValue("vlab_id"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "invalid vlab_id"))
		return
	}

	var out *discountResponse
	err = dbx.RunReadCommitted(r.Context(), h.db, func(ctx context.Context, tx *sql.Tx) error {
		d, err := h.pricing.ResolveDiscount(ctx, tx, vlabID, h.clock.Now())
		if err != nil {
			return err
		}
		if d != nil {
			resp := toDiscountResponse(d)
			out = &resp
		}
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	if out == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{"discount": nil})
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}
