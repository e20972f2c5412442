/*
store.go - Persistence interface for contracts, payments and edit history

PURPOSE:
  Defines the boundary between the engine and durable storage. A store keeps
  contracts, their payment records and their edit history, keyed by
  ContractID, and commits every mutation of one contract as a single unit.

APPEND-ONLY CONTRACT:
  - Payments are inserted, never deleted. Only Status, RemainingAmount,
    ExcessAmount, ConfirmedAt and ConfirmedBy may be updated.
  - Edit events are inserted, never updated, never deleted, never reordered.

ATOMIC COMMITS:
  Commit() writes new terms, the prepaid balance, new payments, payment
  updates and the edit event together, or nothing. A contract edit that
  reclassifies five payments never shows three of them to a reader.

OPTIMISTIC VERSIONING:
  Every commit names the contract Version it was computed from. If the
  stored version moved, the store returns ErrConcurrentModification and the
  engine re-reads and retries.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - installment/store/memory.go: In-memory for tests and development
*/
package installment

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// LEDGER STORE
// =============================================================================

//go:generate mockgen -destination=mocks/mock_store.go -package=mocks -source=store.go LedgerStore,ScheduleCache
type LedgerStore interface {
	// CreateContract stores a new contract with Version 1.
	// Returns ErrDuplicateContract if the ID is taken.
	CreateContract(ctx context.Context, c Contract) error

	// LoadContract returns the contract with its full edit history.
	// Returns ErrContractNotFound if it does not exist.
	LoadContract(ctx context.Context, id ContractID) (Contract, error)

	// ListContracts returns all contracts without their edit history.
	ListContracts(ctx context.Context) ([]Contract, error)

	// LoadPayments returns the contract's payments ordered by Seq.
	LoadPayments(ctx context.Context, id ContractID) ([]PaymentRecord, error)

	// Commit applies c atomically.
	Commit(ctx context.Context, c Commit) error
}

// Commit is one atomic unit of change to a contract.
type Commit struct {
	ContractID      ContractID
	ExpectedVersion int64

	Terms           *ContractTerms // nil leaves terms unchanged
	PrepaidBalance  decimal.Decimal
	NewPayments     []PaymentRecord
	UpdatedPayments []PaymentRecord
	Event           *ContractEditEvent // appended at Event.Position
}

// =============================================================================
// SCHEDULE CACHE
// =============================================================================

// ScheduleCache is a read-through cache of rendered schedules. The engine
// invalidates a contract's entry after every commit.
type ScheduleCache interface {
	Get(ctx context.Context, id ContractID) ([]ScheduleLine, bool)
	Set(ctx context.Context, id ContractID, lines []ScheduleLine) error
	Invalidate(ctx context.Context, id ContractID) error
}
