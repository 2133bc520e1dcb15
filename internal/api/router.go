// Package api implements the HTTP surface (spec.md §6): a thin JSON layer
// over the core accounting services. Grounded on the teacher's handler.go
// (a Handler struct wrapping the core service, RegisterRoutes on a
// net/http.ServeMux, writeJSON/writeError helpers), generalized from
// wrapping a single gRPC service to wrapping the several core services
// this system needs.
package api

import (
	"database/sql"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gridledger/accounting/internal/cache"
	"github.com/gridledger/accounting/internal/charge"
	"github.com/gridledger/accounting/internal/clock"
	"github.com/gridledger/accounting/internal/queue"
	"github.com/gridledger/accounting/internal/release"
	"github.com/gridledger/accounting/internal/reservation"
	storeaccount "github.com/gridledger/accounting/internal/store/account"
	storejob "github.com/gridledger/accounting/internal/store/job"
	storeledger "github.com/gridledger/accounting/internal/store/ledger"
	"github.com/gridledger/accounting/internal/store/pricing"
)

// Handler serves the HTTP surface.
type Handler struct {
	db *sql.DB

	accounts *storeaccount.Store
	jobs     *storejob.Store
	ledger   *storeledger.Store
	pricing  *pricing.Store

	reservation *reservation.Service
	release     *release.Service
	chargeEng   *charge.Engine

	balanceCache *cache.BalanceCache
	queueClient  *queue.Client
	queueNames   map[string]string

	clock clock.Clock
	log   zerolog.Logger
}

// Deps bundles everything RegisterRoutes needs, so main only builds this
// struct once and hands it off.
type Deps struct {
	DB           *sql.DB
	Accounts     *storeaccount.Store
	Jobs         *storejob.Store
	Ledger       *storeledger.Store
	Pricing      *pricing.Store
	Reservation  *reservation.Service
	Release      *release.Service
	ChargeEngine *charge.Engine
	BalanceCache *cache.BalanceCache
	QueueClient  *queue.Client
	QueueNames   map[string]string // "oneshot" | "longrun" | "storage" -> queue name
	Clock        clock.Clock
	Log          zerolog.Logger
}

// NewHandler builds a Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		db:           d.DB,
		accounts:     d.Accounts,
		jobs:         d.Jobs,
		ledger:       d.Ledger,
		pricing:      d.Pricing,
		reservation:  d.Reservation,
		release:      d.Release,
		chargeEng:    d.ChargeEngine,
		balanceCache: d.BalanceCache,
		queueClient:  d.QueueClient,
		queueNames:   d.QueueNames,
		clock:        d.Clock,
		log:          d.Log.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes registers every endpoint from spec.md §6 on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /account/system", h.createSystemAccount)
	mux.HandleFunc("POST /account/virtual-lab", h.createVlabAccount)
	mux.HandleFunc("POST /account/project", h.createProjAccount)

	mux.HandleFunc("POST /budget/top-up", h.topUp)
	mux.HandleFunc("POST /budget/assign", h.assignBudget)
	mux.HandleFunc("POST /budget/reverse", h.reverseBudget)
	mux.HandleFunc("POST /budget/move", h.moveBudget)

	mux.HandleFunc("POST /price", h.createPrice)

	mux.HandleFunc("POST /discount", h.createDiscount)
	mux.HandleFunc("GET /discount/{vlab_id}", h.getCurrentDiscount)

	mux.HandleFunc("POST /reservation/oneshot", h.reserveOneshot)
	mux.HandleFunc("POST /reservation/longrun", h.reserveLongrun)
	mux.HandleFunc("DELETE /reservation/oneshot/{job_id}", h.releaseOneshot)
	mux.HandleFunc("DELETE /reservation/longrun/{job_id}", h.releaseLongrun)

	mux.HandleFunc("POST /usage/oneshot", h.publishUsage("oneshot"))
	mux.HandleFunc("POST /usage/longrun", h.publishUsage("longrun"))
	mux.HandleFunc("POST /usage/storage", h.publishUsage("storage"))

	mux.HandleFunc("GET /balance/system", h.balanceSystem)
	mux.HandleFunc("GET /balance/virtual-lab/{id}", h.balanceVlab)
	mux.HandleFunc("GET /balance/project/{id}", h.balanceProj)

	mux.HandleFunc("GET /report/system", h.reportSystem)
	mux.HandleFunc("GET /report/virtual-lab/{id}", h.reportVlab)
	mux.HandleFunc("GET /report/project/{id}", h.reportProj)

	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("GET /version", h.version)
	mux.HandleFunc("GET /{$}", h.root)
	mux.Handle("GET /metrics", promhttp.Handler())
}
