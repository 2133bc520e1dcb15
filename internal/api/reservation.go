package api

import (
	"context"
	"database/sql"
	"net/http"

	"github.com/google/uuid"

	"github.com/gridledger/accounting/internal/apperr"
	"github.com/gridledger/accounting/internal/dbx"
	"github.com/gridledger/accounting/internal/model"
	"github.com/gridledger/accounting/internal/reservation"
)

// reserveRequest carries the caller's declaration of the work it is about
// to do; the server resolves the Price and computes the cost itself
// (spec.md §4.2 steps 3-4), it never accepts a client-supplied amount.
// Count applies to oneshot reservations, Instances/Duration/InstanceType to
// longrun ones.
type reserveRequest struct {
	VlabID            uuid.UUID      `json:"vlab_id" validate:"required"`
	ProjID            uuid.UUID      `json:"proj_id" validate:"required"`
	UserID            *uuid.UUID     `json:"user_id"`
	GroupID           *uuid.UUID     `json:"group_id"`
	ServiceSubtype    string         `json:"service_subtype" validate:"required"`
	ReservationParams map[string]any `json:"reservation_params"`
	Count             int64          `json:"count"`
	Instances         int64          `json:"instances"`
	InstanceType      string         `json:"instance_type"`
	Duration          int64          `json:"duration"`
}

type jobResponse struct {
	ID             uuid.UUID  `json:"id"`
	VlabID         uuid.UUID  `json:"vlab_id"`
	ProjID         uuid.UUID  `json:"proj_id"`
	ServiceType    model.ServiceType `json:"service_type"`
	ServiceSubtype string     `json:"service_subtype"`
}

func toJobResponse(j *model.Job) jobResponse {
	return jobResponse{ID: j.ID, VlabID: j.VlabID, ProjID: j.ProjID, ServiceType: j.ServiceType, ServiceSubtype: j.ServiceSubtype}
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request, serviceType model.ServiceType) {
	var req reserveRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	if err := validate.Struct(req); err != nil {
		h.writeError(w, apperr.Newf(apperr.CodeInvalidRequest, "%v", err))
		return
	}

	params := map[string]any{}
	for k, v := range req.ReservationParams {
		params[k] = v
	}
	switch serviceType {
	case model.ServiceOneshot:
		params["count"] = req.Count
	case model.ServiceLongrun:
		params["instances"] = req.Instances
		params["duration"] = req.Duration
		if req.InstanceType != "" {
			params["instance_type"] = req.InstanceType
		}
	}

	var out jobResponse
	err := dbx.RunSerializable(r.Context(), h.db, func(ctx context.Context, tx *sql.Tx) error {
		job, err := h.reservation.Reserve(ctx, tx, reservation.Request{
			VlabID:            req.VlabID,
			ProjID:            req.ProjID,
			UserID:            req.UserID,
			GroupID:           req.GroupID,
			ServiceType:       serviceType,
			ServiceSubtype:    req.ServiceSubtype,
			ReservationParams: params,
			Count:             req.Count,
			Instances:         req.Instances,
			Duration:          req.Duration,
		})
		if err != nil {
			return err
		}
		out = toJobResponse(job)
		return nil
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, out)
}

// reserveOneshot handles POST /reservation/oneshot (spec.md §4.3, §6).
func (h *Handler) reserveOneshot(w http.ResponseWriter, r *http.Request) {
	h.reserve(w, r, model.ServiceOneshot)
}

// reserveLongrun handles POST /reservation/longrun (spec.md §4.3, §6).
func (h *Handler) reserveLongrun(w http.ResponseWriter, r *http.Request) {
	h.reserve(w, r, model.ServiceLongrun)
}

func (h *Handler) releaseJob(w http.ResponseWriter, r *http.Request, serviceType model.ServiceType, reason string) {
	jobID, err := uuid.Parse(r.PathValue("job_id"))
	if err != nil {
		h.writeError(w, apperr.New(apperr.CodeInvalidRequest, "invalid job_id"))
		return
	}
	err = dbx.RunSerializable(r.Context(), h.db, func(ctx context.Context, tx *sql.Tx) error {
		return h.release.Release(ctx, tx, jobID, serviceType, reason)
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// releaseOneshot handles DELETE /reservation/oneshot/{job_id}.
func (h *Handler) releaseOneshot(w http.ResponseWriter, r *http.Request) {
	h.releaseJob(w, r, model.ServiceOneshot, "release_oneshot")
}

// releaseLongrun handles DELETE /reservation/longrun/{job_id}.
func (h *Handler) releaseLongrun(w http.ResponseWriter, r *http.Request) {
	h.releaseJob(w, r, model.ServiceLongrun, "release_longrun")
}
