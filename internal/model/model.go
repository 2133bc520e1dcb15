// Package model holds the domain types shared by every store and service:
// accounts, jobs, journal/ledger rows, prices, discounts, events and the
// task registry. None of these types know how to persist themselves; that
// is the job of the internal/store/* packages.
package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType is the closed set of account kinds in the hierarchy.
type AccountType string

const (
	AccountSYS  AccountType = "SYS"
	AccountVLAB AccountType = "VLAB"
	AccountPROJ AccountType = "PROJ"
	AccountRSV  AccountType = "RSV"
)

// ServiceType is the closed set of billable service categories.
type ServiceType string

const (
	ServiceOneshot ServiceType = "ONESHOT"
	ServiceLongrun ServiceType = "LONGRUN"
	ServiceStorage ServiceType = "STORAGE"
)

// TransactionType is the closed set of journal transaction kinds.
type TransactionType string

const (
	TxTopUp          TransactionType = "TOP_UP"
	TxAssignBudget   TransactionType = "ASSIGN_BUDGET"
	TxReverseBudget  TransactionType = "REVERSE_BUDGET"
	TxMoveBudget     TransactionType = "MOVE_BUDGET"
	TxReserve        TransactionType = "RESERVE"
	TxRelease        TransactionType = "RELEASE"
	TxChargeOneshot  TransactionType = "CHARGE_ONESHOT"
	TxChargeLongrun  TransactionType = "CHARGE_LONGRUN"
	TxChargeStorage  TransactionType = "CHARGE_STORAGE"
	TxRefund         TransactionType = "REFUND"
)

// EventStatus is the closed set of queue-event outcomes.
type EventStatus string

const (
	EventCompleted EventStatus = "COMPLETED"
	EventFailed    EventStatus = "FAILED"
)

// Account is a node in the SYS -> VLAB -> PROJ -> RSV hierarchy (spec.md §3).
type Account struct {
	ID        uuid.UUID
	Type      AccountType
	ParentID  *uuid.UUID
	Name      string
	Balance   decimal.Decimal
	Enabled   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// AccountSet bundles the four accounts a reservation, release or charge
// operation needs in a single round trip: the project being billed, its
// virtual lab, its reservation holding account and the global system
// account. Mirrors the original's RepositoryGroup.account.get_accounts_by_proj_id.
type AccountSet struct {
	Proj *Account
	Vlab *Account
	Rsv  *Account
	Sys  *Account
}

// Job is a unit of billable work (spec.md §3).
type Job struct {
	ID              uuid.UUID
	GroupID         *uuid.UUID
	VlabID          uuid.UUID
	ProjID          uuid.UUID
	UserID          *uuid.UUID
	ServiceType     ServiceType
	ServiceSubtype  string
	ReservedAt      *time.Time
	StartedAt       *time.Time
	LastAliveAt     *time.Time
	LastChargedAt   *time.Time
	FinishedAt      *time.Time
	CancelledAt     *time.Time
	ReservationParams map[string]any
	UsageParams       map[string]any
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsTerminal reports whether the job has reached a final state (spec.md §3).
func (j *Job) IsTerminal() bool {
	return j.FinishedAt != nil
}

// Journal is one accounting decision; it always has exactly two Ledger rows
// attached to it that sum to zero (spec.md §3).
type Journal struct {
	ID                  int64
	TransactionDatetime time.Time
	TransactionType     TransactionType
	JobID               *uuid.UUID
	PriceID             *int64
	DiscountID          *int64
	Properties          map[string]any
	CreatedAt           time.Time
}

// LedgerEntry is one debit or credit leg of a Journal (spec.md §3).
type LedgerEntry struct {
	ID        int64
	AccountID uuid.UUID
	JournalID int64
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Price is a time-versioned price for (service_type, service_subtype, vlab) (spec.md §3).
type Price struct {
	ID             int64
	ServiceType    ServiceType
	ServiceSubtype string
	ValidFrom      time.Time
	ValidTo        *time.Time
	FixedCost      decimal.Decimal
	Multiplier     decimal.Decimal
	VlabID         *uuid.UUID
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Discount is a time-versioned multiplicative discount for a vlab (spec.md §3).
type Discount struct {
	ID        int64
	VlabID    *uuid.UUID
	ValidFrom time.Time
	ValidTo   *time.Time
	Discount  decimal.Decimal
}

// Event is the idempotency record for one queue message (spec.md §3).
type Event struct {
	ID         int64
	MessageID  string
	QueueName  string
	Status     EventStatus
	Attributes map[string]any
	Body       *string
	Error      *string
	JobID      *uuid.UUID
	Counter    int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TaskRegistryRow is the singleton-lock/bookkeeping row for one periodic
// task (spec.md §3).
type TaskRegistryRow struct {
	TaskName      string
	LastRun       *time.Time
	LastDuration  *float64
	LastError     *string
	LastErrors    int
	LastActiveJob *time.Time
}
