package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/model"
)

type balanceResponse struct {
	ID       uuid.UUID          `json:"id"`
	Type     model.AccountType  `json:"type"`
	Balance  string             `json:"balance"`
	Projects []balanceResponse  `json:"projects,omitempty"`
}

// balanceOf always reads the account row from Postgres, then replaces its
// balance with the cached one when the cache has it; on a miss it caches
// the Postgres balance (SPEC_FULL.md §B.1 read-through).
func (h *Handler) balanceOf(r *http.Request, id uuid.UUID) (*model.Account, error) {
	a, err := h.accounts.Get(r.Context(), h.db, id)
	if err != nil {
		return nil, err
	}
	if cached, ok := h.balanceCache.Get(r.Context(), id); ok {
		a.Balance = cached
		return a, nil
	}
	h.balanceCache.Set(r.Context(), id, a.Balance)
	return a, nil
}

// balanceSystem handles GET /balance/system.
func (h *Handler) balanceSystem(w http.ResponseWriter, r *http.Request) {
	sys, err := h.sysAccountRO(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{ID: sys.ID, Type: sys.Type, Balance: sys.Balance.StringFixed(5)})
}

func (h *Handler) sysAccountRO(r *http.Request) (*model.Account, error) {
	rows, err := h.db.QueryContext(r.Context(), `SELECT id FROM accounts WHERE type = 'SYS' LIMIT 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	if !rows.Next() {
		return nil, apperr.NotFound("system account")
	}
	var id uuid.UUID
	if err := rows.Scan(&id); err != nil {
		return nil, err
	}
	return h.balanceOf(r, id)
}

// balanceVlab handles GET /balance/virtual-lab/{id}. With
// ?include_projects=true it also returns every child PROJ's balance.
func (h *Handler) balanceVlab(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "invalid id"))
		return
	}
	vlab, err := h.balanceOf(r, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := balanceResponse{ID: vlab.ID, Type: vlab.Type, Balance: vlab.Balance.StringFixed(5)}
	if r.URL.Query().Get("include_projects") == "true" {
		children, err := h.accounts.ListChildren(r.Context(), h.db, id)
		if err != nil {
			h.writeError(w, err)
			return
		}
		for _, c := range children {
			if c.Type != model.AccountPROJ {
				continue
			}
			bal := c.Balance
			if cached, ok := h.balanceCache.Get(r.Context(), c.ID); ok {
				bal = cached
			} else {
				h.balanceCache.Set(r.Context(), c.ID, bal)
			}
			out.Projects = append(out.Projects, balanceResponse{ID: c.ID, Type: c.Type, Balance: bal.StringFixed(5)})
		}
	}
	h.writeJSON(w, http.StatusOK, out)
}

// balanceProj handles GET /balance/project/{id}.
func (h *Handler) balanceProj(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "invalid id"))
		return
	}
	proj, err := h.balanceOf(r, id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, balanceResponse{ID: proj.ID, Type: proj.Type, Balance: proj.Balance.StringFixed(5)})
}
