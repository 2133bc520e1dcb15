package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gridledger/accounting/internal/apperr"
)

type errorResponse struct {
	ErrorCode string         `json:"error_code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
}

// writeJSON writes v as the JSON response body with status.
func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

// writeError translates err into the closed error taxonomy response
// (spec.md §7). An *apperr.Error is rendered with its own code and status;
// anything else is a 500 with a generic message, and is logged with full
// detail since it represents an unexpected condition.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		code := appErr.Code
		if code == apperr.CodeEntityAlreadyExists {
			// Folded into INVALID_REQUEST at the HTTP boundary; the closed
			// taxonomy in spec.md §7 has no ENTITY_ALREADY_EXISTS member.
			code = apperr.CodeInvalidRequest
		}
		h.writeJSON(w, appErr.HTTPStatus, errorResponse{
			ErrorCode: string(code),
			Message:   appErr.Message,
			Details:   appErr.Details,
		})
		return
	}

	h.log.Error().Err(err).Msg("unhandled internal error")
	h.writeJSON(w, http.StatusInternalServerError, errorResponse{
		ErrorCode: "INTERNAL_ERROR",
		Message:   "an internal error occurred",
	})
}

// decodeJSON decodes r's body into dst and returns an INVALID_REQUEST
// *apperr.Error on failure.
func decodeJSON(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperr.Newf(apperr.CodeInvalidRequest, "invalid request body: %v", err)
	}
	return nil
}
