/*
Package installment provides the payment reconciliation engine for
installment-sales contracts.

PURPOSE:
  Turns contract terms into an expected payment schedule, classifies each
  incoming payment against that schedule, cascades excess money across later
  installments, and recomputes the impact of retroactive contract edits on
  payments that were already recorded.

KEY CONCEPTS IN THIS FILE (types.go):
  - ContractTerms: Price/period/payment terms a schedule is generated from
  - Installment: One expected payment (index 0 = initial, 1..Period = monthly)
  - PaymentRecord: An append-only payment with its current classification
  - ContractEditEvent: Immutable entry in a contract's edit history
  - ImpactSummary: Aggregate effect of an edit on recorded payments

DESIGN PRINCIPLES:
  1. Append-only: Payments and edit events are never deleted. Only a payment's
     Status, RemainingAmount and ExcessAmount change, and only together with
     an edit event that explains the change.
  2. Precision: All money is decimal.Decimal
  3. Determinism: Schedules are regenerated from terms, never patched, and
     allocation state is replayed from records in recording order
  4. Positional identity: a payment belongs to an installment index, never to
     an amount

SEE ALSO:
  - schedule.go: Schedule generation and term validation
  - book.go: Allocation replay shared by the classifier and edit processor
  - engine.go: Operations exposed to callers
*/
package installment

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY HELPERS
// =============================================================================

func minMoney(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ContractID string
type PaymentID string

// SystemActor authors edit events the engine writes on its own, e.g. when a
// supplemental payment closes an earlier shortfall.
const SystemActor = "system"

// =============================================================================
// CONTRACT TERMS
// =============================================================================

// ContractTerms are immutable until edited. TotalPrice must equal
// InitialPayment + MonthlyPayment*Period within RoundingTolerance.
type ContractTerms struct {
	ProductName           string          `json:"productName"`
	OriginalPrice         decimal.Decimal `json:"originalPrice"`
	Price                 decimal.Decimal `json:"price"`
	InitialPayment        decimal.Decimal `json:"initialPayment"`
	InitialPaymentDueDate TimePoint       `json:"initialPaymentDueDate"`
	Percentage            decimal.Decimal `json:"percentage"`
	Period                int             `json:"period"`
	MonthlyPayment        decimal.Decimal `json:"monthlyPayment"`
	TotalPrice            decimal.Decimal `json:"totalPrice"`
	StartDate             TimePoint       `json:"startDate"`
}

// =============================================================================
// INSTALLMENT - Derived from terms, never persisted
// =============================================================================

type Installment struct {
	Index          int             `json:"index"`
	DueDate        TimePoint       `json:"dueDate"`
	ExpectedAmount decimal.Decimal `json:"expectedAmount"`
}

// ScheduleLine is an installment together with what has been allocated to it.
type ScheduleLine struct {
	Index           int             `json:"index"`
	DueDate         TimePoint       `json:"dueDate"`
	ExpectedAmount  decimal.Decimal `json:"expectedAmount"`
	AllocatedAmount decimal.Decimal `json:"allocatedAmount"`
	Status          PaymentStatus   `json:"status"`
}

// =============================================================================
// PAYMENT RECORD
// =============================================================================

type PaymentType string

const (
	PaymentInitial PaymentType = "initial"
	PaymentMonthly PaymentType = "monthly"
	PaymentExtra   PaymentType = "extra" // Supplemental payment closing an earlier shortfall
)

type PaymentStatus string

const (
	StatusPaid      PaymentStatus = "PAID"
	StatusPending   PaymentStatus = "PENDING"
	StatusRejected  PaymentStatus = "REJECTED"
	StatusUnderpaid PaymentStatus = "UNDERPAID"
	StatusOverpaid  PaymentStatus = "OVERPAID"
)

// PaymentRecord is append-only. Amount, Date and InstallmentIndex never change
// after creation. A zero RemainingAmount or ExcessAmount means "absent".
type PaymentRecord struct {
	ID               PaymentID
	ContractID       ContractID
	Seq              int64 // Recording order within the contract, starts at 1
	Amount           decimal.Decimal
	Date             TimePoint
	PaymentType      PaymentType
	Status           PaymentStatus
	InstallmentIndex int
	ExpectedAmount   decimal.Decimal
	RemainingAmount  decimal.Decimal
	ExcessAmount     decimal.Decimal
	LinkedPaymentID  PaymentID // Weak reference to the record this one tops up
	Notes            string
	ConfirmedAt      *time.Time
	ConfirmedBy      string
	CreatedAt        time.Time
}

// Counts reports whether the record takes part in allocation.
func (p PaymentRecord) Counts() bool { return p.Status != StatusRejected }

// sameClassification compares only the fields reclassification may change.
func (p PaymentRecord) sameClassification(other PaymentRecord) bool {
	return p.Status == other.Status &&
		p.RemainingAmount.Equal(other.RemainingAmount) &&
		p.ExcessAmount.Equal(other.ExcessAmount)
}

// =============================================================================
// EDIT HISTORY
// =============================================================================

type ImpactSummary struct {
	UnderpaidCount            int             `json:"underpaidCount"`
	OverpaidCount             int             `json:"overpaidCount"`
	TotalShortage             decimal.Decimal `json:"totalShortage"`
	TotalExcess               decimal.Decimal `json:"totalExcess"`
	AdditionalPaymentsCreated int             `json:"additionalPaymentsCreated"`
}

// FieldChange describes one changed field. Difference is set for numeric
// fields only and equals NewValue - OldValue.
type FieldChange struct {
	Field      string              `json:"field"`
	OldValue   string              `json:"oldValue"`
	NewValue   string              `json:"newValue"`
	Difference decimal.NullDecimal `json:"difference"`
}

// ContractEditEvent is identified by its position in the contract's history.
type ContractEditEvent struct {
	Position         int           `json:"position"`
	Date             time.Time     `json:"date"`
	EditedBy         string        `json:"editedBy"`
	Reason           string        `json:"reason,omitempty"`
	Changes          []FieldChange `json:"changes"`
	AffectedPayments []PaymentID   `json:"affectedPayments"`
	ImpactSummary    ImpactSummary `json:"impactSummary"`
}

// =============================================================================
// CONTRACT - Aggregate root for terms, prepaid balance and edit history
// =============================================================================

type Contract struct {
	ID             ContractID
	CustomerID     string
	Terms          ContractTerms
	PrepaidBalance decimal.Decimal
	Version        int64 // Optimistic concurrency counter, bumped on every commit
	EditHistory    []ContractEditEvent
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
