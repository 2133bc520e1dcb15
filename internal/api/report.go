package api

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/gridledger/accounting/internal/apperr"
)

type reportEntry struct {
	JournalID       int64   `json:"journal_id"`
	Datetime        string  `json:"transaction_datetime"`
	TransactionType string  `json:"transaction_type"`
	JobID           *uuid.UUID `json:"job_id,omitempty"`
	Amount          string  `json:"amount"`
}

type reportResponse struct {
	AccountID uuid.UUID     `json:"account_id"`
	Page      int           `json:"page"`
	PageSize  int           `json:"page_size"`
	Entries   []reportEntry `json:"entries"`
}

func pagination(r *http.Request) (page, pageSize int) {
	page, pageSize = 1, 50
	if v, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil && v > 0 {
		page = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("page_size")); err == nil && v > 0 && v <= 500 {
		pageSize = v
	}
	return
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request, accountID uuid.UUID) {
	page, pageSize := pagination(r)
	entries, err := h.ledger.ListEntriesForAccount(r.Context(), h.db, accountID, page, pageSize)
	if err != nil {
		h.writeError(w, err)
		return
	}
	out := reportResponse{AccountID: accountID, Page: page, PageSize: pageSize, Entries: make([]reportEntry, 0, len(entries))}
	for _, e := range entries {
		out.Entries = append(out.Entries, reportEntry{
			JournalID:       e.JournalID,
			Datetime:        e.TransactionDatetime.Format("2006-01-02T15:04:05Z07:00"),
			TransactionType: string(e.TransactionType),
			JobID:           e.JobID,
			Amount:          e.Amount.StringFixed(5),
		})
	}
	h.writeJSON(w, http.StatusOK, out)
}

// reportSystem handles GET /report/system.
func (h *Handler) reportSystem(w http.ResponseWriter, r *http.Request) {
	sys, err := h.sysAccountRO(r)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.report(w, r, sys.ID)
}

// reportVlab handles GET /report/virtual-lab/{id}.
func (h *Handler) reportVlab(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "invalid id"))
		return
	}
	h.report(w, r, id)
}

// reportProj handles GET /report/project/{id}.
func (h *Handler) reportProj(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "invalid id"))
		return
	}
	h.report(w, r, id)
}
