package api

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
	storeledger "github.com/gridledger/accounting/internal/store/ledger"
)

type budgetMoveRequest struct {
	FromID uuid.UUID       `json:"from_id" validate:"required"`
	ToID   uuid.UUID       `json:"to_id" validate:"required"`
	Amount decimal.Decimal `json:"amount"`
}

type budgetResponse struct {
	FromBalance string `json:"from_balance"`
	ToBalance   string `json:"to_balance"`
}

func (h *Handler) moveFunds(w http.ResponseWriter, r *http.Request, txType model.TransactionType, reason string, check func(from, to *model.Account) error) {
	var req budgetMoveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "%v", err))
		return
	}
	if !req.Amount.IsPositive() {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "amount must be positive"))
		return
	}

	var out budgetResponse
	err := dbx.RunSerializable(r.Context(), h.db, func(ctx context.Context, tx *sql.Tx) error {
		// Lock both accounts in a fixed order independent of which one is
		// from/to, so two requests moving funds between the same pair in
		// opposite directions can never deadlock against each other.
		firstID, secondID := req.FromID, req.ToID
		if bytes.Compare(firstID[:], secondID[:]) > 0 {
			firstID, secondID = secondID, firstID
		}
		first, err := h.accounts.LockForUpdate(ctx, tx, firstID)
		if err != nil {
			return err
		}
		second, err := h.accounts.LockForUpdate(ctx, tx, secondID)
		if err != nil {
			return err
		}
		from, to := first, second
		if first.ID == req.ToID {
			from, to = second, first
		}
		if check != nil {
			if err := check(from, to); err != nil {
				return err
			}
		}
		if from.Balance.Cmp(req.Amount) < 0 {
			return apperr.New(apperr.CodeInsufficientFunds, "source balance cannot cover amount").
				WithDetails(map[string]any{"available_balance": from.Balance.StringFixed(5), "requested_amount": req.Amount.StringFixed(5)})
		}
		if _, err := h.ledger.InsertTransaction(ctx, tx, h.accounts.ApplyDelta, txType, nil, nil, nil,
			map[string]any{"reason": reason},
			storeledger.Leg{AccountID: from.ID, Amount: req.Amount.Neg()},
			storeledger.Leg{AccountID: to.ID, Amount: req.Amount},
		); err != nil {
			return err
		}
		out = budgetResponse{
			FromBalance: from.Balance.Sub(req.Amount).StringFixed(5),
			ToBalance:   to.Balance.Add(req.Amount).StringFixed(5),
		}
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

// topUp handles POST /budget/top-up: SYS -> VLAB.
func (h *Handler) topUp(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, model.TxTopUp, "budget_top_up", func(from, to *model.Account) error {
		if from.Type != model.AccountSYS || to.Type != model.AccountVLAB {
			return apperr.New(apperr.CodeInvalidRequest, "top-up requires SYS -> VLAB")
		}
		return nil
	})
}

// assignBudget handles POST /budget/assign: VLAB -> PROJ.
func (h *Handler) assignBudget(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, model.TxAssignBudget, "budget_assign", func(from, to *model.Account) error {
		if from.Type != model.AccountVLAB || to.Type != model.AccountPROJ || to.ParentID == nil || *to.ParentID != from.ID {
			return apperr.New(apperr.CodeInvalidRequest, "budget assign requires a VLAB and one of its own PROJ accounts")
		}
		return nil
	})
}

// reverseBudget handles POST /budget/reverse: PROJ -> VLAB.
func (h *Handler) reverseBudget(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, model.TxReverseBudget, "budget_reverse", func(from, to *model.Account) error {
		if from.Type != model.AccountPROJ || to.Type != model.AccountVLAB || from.ParentID == nil || *from.ParentID != to.ID {
			return apperr.New(apperr.CodeInvalidRequest, "budget reverse requires a PROJ and its own parent VLAB")
		}
		return nil
	})
}

// moveBudget handles POST /budget/move: PROJ -> PROJ within the same VLAB.
func (h *Handler) moveBudget(w http.ResponseWriter, r *http.Request) {
	h.moveFunds(w, r, model.TxMoveBudget, "budget_move", func(from, to *model.Account) error {
		if from.Type != model.AccountPROJ || to.Type != model.AccountPROJ {
			return apperr.New(apperr.CodeInvalidRequest, "budget move requires two PROJ accounts")
		}
		if from.ParentID == nil || to.ParentID == nil || *from.ParentID != *to.ParentID {
			return apperr.New(apperr.CodeInvalidRequest, "budget move requires projects in the same virtual lab")
		}
		return nil
	})
}
