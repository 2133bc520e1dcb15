package api

import (
	"io"
	"net/http"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/queue"
)

// publishUsage builds a handler for POST /usage/{oneshot,longrun,storage}
// (spec.md §4.7 step 0, §6): validate the event shape, then forward the
// raw body onto the named SQS FIFO queue, MessageGroupId = proj_id, so
// per-project ordering is preserved end to end.
func (h *Handler) publishUsage(serviceType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "failed to read request body: %v", err))
			return
		}

		var groupID string
		switch serviceType {
		case "oneshot":
			ev, err := queue.ParseOneshot(body)
			if err != nil {
				h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "%v", err))
				return
			}
			groupID = ev.ProjID.String()
		case "longrun":
			ev, err := queue.ParseLongrun(body)
			if err != nil {
				h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "%v", err))
				return
			}
			groupID = ev.ProjID.String()
		case "storage":
			ev, err := queue.ParseStorage(body)
			if err != nil {
				h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "%v", err))
				return
			}
			groupID = ev.ProjID.String()
		default:
			h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "unknown usage type %q", serviceType))
			return
		}

		queueURL, err := h.queueClient.QueueURL(r.Context(), h.queueNames[serviceType])
		if err != nil {
			h.writeError(w, err)
			return
		}
		if err := h.queueClient.Publish(r.Context(), queueURL, groupID, "", body); err != nil {
			h.writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}
