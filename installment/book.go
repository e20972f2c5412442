/*
book.go - Allocation state of one contract

PURPOSE:
  The Book answers "how much of each installment is covered, and by which
  payment?". It is never stored. It is rebuilt by replaying the contract's
  payment records in recording order against a schedule, the same way a
  balance is rebuilt by replaying a ledger.

REPLAY RULES:
  For every non-REJECTED record, in Seq order:
    1. Sweep any prepaid balance into open installments (FIFO)
    2. Allocate the record to its own installment, up to what is still owed
    3. Cascade the surplus forward (cascade.go); leftover becomes prepaid
  A final sweep runs after the last record.

DERIVED CLASSIFICATION:
  Each record remembers what its installment still asked of direct payments
  when it was applied ("due at turn"): the expected amount minus what earlier
  records paid directly to it. Money that arrived by cascade or from the
  prepaid balance is excluded, so one surplus is never counted as excess
  again on the installments it flows through. The classification is then:
    amount > dueAtTurn         -> OVERPAID,  excess    = amount - dueAtTurn
    installment still has gap  -> UNDERPAID, remaining = final gap
    otherwise                  -> PAID
  Replaying the same records against a new schedule is how contract edits
  reclassify history (edit.go).

SEE ALSO:
  - cascade.go: Forward propagation of surplus
  - classify.go: Classification of a new payment against a Book
*/
package installment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION
// =============================================================================

type AllocationSource string

const (
	SourceDirect  AllocationSource = "direct"  // Payment to its own installment
	SourceCascade AllocationSource = "cascade" // Surplus carried forward
	SourcePrepaid AllocationSource = "prepaid" // Prepaid balance consumed
)

// Allocation is the part of a payment assigned to one installment. Prepaid
// allocations have an empty PaymentID.
type Allocation struct {
	PaymentID        PaymentID
	InstallmentIndex int
	Amount           decimal.Decimal
	Source           AllocationSource
}

// =============================================================================
// BOOK
// =============================================================================

type Book struct {
	Schedule    []Installment
	Prepaid     decimal.Decimal
	Allocations []Allocation

	allocated []decimal.Decimal
	direct    []decimal.Decimal // SourceDirect share of allocated
	records   []PaymentRecord
	dueAtTurn map[PaymentID]decimal.Decimal
}

// NewBook returns an empty book. It refuses schedules whose shape it cannot
// trust, since every later bound relies on index == position.
func NewBook(schedule []Installment) (*Book, error) {
	for i, inst := range schedule {
		if inst.Index != i {
			return nil, &CorruptionError{Index: i, Detail: fmt.Sprintf("installment carries index %d", inst.Index)}
		}
		if inst.ExpectedAmount.IsNegative() {
			return nil, &CorruptionError{Index: i, Detail: "negative expected amount"}
		}
	}
	return &Book{
		Schedule:  schedule,
		allocated: make([]decimal.Decimal, len(schedule)),
		direct:    make([]decimal.Decimal, len(schedule)),
		dueAtTurn: make(map[PaymentID]decimal.Decimal),
	}, nil
}

// Replay builds the book for records against schedule.
func Replay(schedule []Installment, records []PaymentRecord) (*Book, error) {
	b, err := NewBook(schedule)
	if err != nil {
		return nil, err
	}
	for _, r := range sortedBySeq(records) {
		if !r.Counts() {
			continue
		}
		if _, err := b.Apply(r); err != nil {
			return nil, err
		}
	}
	if err := b.sweepPrepaid(); err != nil {
		return nil, err
	}
	return b, nil
}

// Apply allocates one record at its fixed installment and cascades whatever
// that installment cannot absorb.
func (b *Book) Apply(r PaymentRecord) (CascadeResult, error) {
	surplus, err := b.Place(r)
	if err != nil || !surplus.IsPositive() {
		return CascadeResult{}, err
	}
	return b.Cascade(r.ID, surplus, r.InstallmentIndex+1)
}

// Place allocates r to its own installment only and returns the surplus the
// caller must cascade from r.InstallmentIndex+1.
func (b *Book) Place(r PaymentRecord) (decimal.Decimal, error) {
	k := r.InstallmentIndex
	if k < 0 || k >= len(b.Schedule) {
		return decimal.Zero, &CorruptionError{Index: k, Detail: fmt.Sprintf("payment %s outside schedule of %d installments", r.ID, len(b.Schedule))}
	}
	if err := b.sweepPrepaid(); err != nil {
		return decimal.Zero, err
	}

	b.dueAtTurn[r.ID] = b.Due(k)
	b.records = append(b.records, r)

	direct := minMoney(r.Amount, b.Owed(k))
	if direct.IsPositive() {
		b.allocate(r.ID, k, direct, SourceDirect)
	}
	return r.Amount.Sub(direct), nil
}

func (b *Book) allocate(id PaymentID, index int, amount decimal.Decimal, source AllocationSource) {
	b.allocated[index] = b.allocated[index].Add(amount)
	if source == SourceDirect {
		b.direct[index] = b.direct[index].Add(amount)
	}
	b.Allocations = append(b.Allocations, Allocation{
		PaymentID:        id,
		InstallmentIndex: index,
		Amount:           amount,
		Source:           source,
	})
}

// sweepPrepaid moves the prepaid balance into the earliest open installments.
func (b *Book) sweepPrepaid() error {
	if !b.Prepaid.IsPositive() {
		return nil
	}
	first := b.NextOpen(0)
	if first < 0 {
		return nil
	}
	pool := b.Prepaid
	b.Prepaid = decimal.Zero
	_, err := b.cascade("", pool, first, SourcePrepaid)
	return err
}

// =============================================================================
// QUERIES
// =============================================================================

func (b *Book) Allocated(index int) decimal.Decimal { return b.allocated[index] }

// Owed is what installment index still needs. Never negative.
func (b *Book) Owed(index int) decimal.Decimal {
	owed := b.Schedule[index].ExpectedAmount.Sub(b.allocated[index])
	if owed.IsNegative() {
		return decimal.Zero
	}
	return owed
}

// Due is what installment index still asks of direct payments: its expected
// amount minus earlier direct allocations. Cascaded and prepaid money does
// not reduce it. Never negative.
func (b *Book) Due(index int) decimal.Decimal {
	due := b.Schedule[index].ExpectedAmount.Sub(b.direct[index])
	if due.IsNegative() {
		return decimal.Zero
	}
	return due
}

// NextOpen returns the first installment at or after from that is not fully
// covered, or -1.
func (b *Book) NextOpen(from int) int {
	if from < 0 {
		from = 0
	}
	for i := from; i < len(b.Schedule); i++ {
		if b.Owed(i).IsPositive() {
			return i
		}
	}
	return -1
}

func (b *Book) Settled() bool { return b.NextOpen(0) < 0 }

// Records returns the applied records in application order.
func (b *Book) Records() []PaymentRecord {
	out := make([]PaymentRecord, len(b.records))
	copy(out, b.records)
	return out
}

// primaryAt returns the first applied record of an installment.
func (b *Book) primaryAt(index int) (PaymentRecord, bool) {
	for _, r := range b.records {
		if r.InstallmentIndex == index {
			return r, true
		}
	}
	return PaymentRecord{}, false
}

// Classified returns r with Status, RemainingAmount and ExcessAmount derived
// from the book. Records the book has not applied (e.g. REJECTED) are
// returned unchanged.
func (b *Book) Classified(r PaymentRecord) PaymentRecord {
	due, ok := b.dueAtTurn[r.ID]
	if !ok {
		return r
	}
	r.RemainingAmount = decimal.Zero
	r.ExcessAmount = decimal.Zero

	switch gap := b.Owed(r.InstallmentIndex); {
	case r.Amount.GreaterThan(due):
		r.Status = StatusOverpaid
		r.ExcessAmount = r.Amount.Sub(due)
	case gap.IsPositive():
		r.Status = StatusUnderpaid
		r.RemainingAmount = gap
	default:
		r.Status = StatusPaid
	}
	return r
}

// Lines renders the schedule with allocation status.
func (b *Book) Lines() []ScheduleLine {
	lines := make([]ScheduleLine, len(b.Schedule))
	for i, inst := range b.Schedule {
		status := StatusPending
		switch {
		case !b.Owed(i).IsPositive():
			status = StatusPaid
		case b.allocated[i].IsPositive():
			status = StatusUnderpaid
		}
		lines[i] = ScheduleLine{
			Index:           inst.Index,
			DueDate:         inst.DueDate,
			ExpectedAmount:  inst.ExpectedAmount,
			AllocatedAmount: b.allocated[i],
			Status:          status,
		}
	}
	return lines
}

func sortedBySeq(records []PaymentRecord) []PaymentRecord {
	out := make([]PaymentRecord, len(records))
	copy(out, records)
	// insertion sort: records arrive almost always in order already
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j].Seq < out[j-1].Seq; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
