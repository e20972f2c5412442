/*
engine.go - Operations exposed to the dashboard

PURPOSE:
  Orchestrates the schedule generator, classifier, cascade resolver and
  edit processor against a LedgerStore.

OPERATIONS:
  RecordPayment      classify -> cascade -> commit
  EditContractTerms  validate -> regenerate -> replay -> commit with edit event
  PreviewImpact      same computation as an edit, nothing written
  GetSchedule        read-through cached schedule with allocation status
  RejectPayment      mark REJECTED -> replay -> commit with edit event
  ConfirmPayment     record who confirmed a payment and when

CONCURRENCY:
  Mutations of one contract are serialized by an in-process keyed lock and
  guarded across processes by the store's optimistic version check. A
  version conflict re-reads state and retries, up to MaxAttempts, then
  surfaces ErrConcurrencyConflict. Different contracts never contend.

FAILURE:
  Every mutation is one Commit: all or nothing. A context deadline from the
  store surfaces as ErrStorageTimeout. ErrScheduleCorrupt aborts the
  operation and is logged for operators.
*/
package installment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultMaxAttempts bounds optimistic-concurrency retries.
const DefaultMaxAttempts = 3

type Engine struct {
	Store       LedgerStore
	Cache       ScheduleCache // Optional
	Logger      *slog.Logger
	MaxAttempts int
	Now         func() time.Time
	NewID       func() PaymentID

	locks keyedLocks
}

func NewEngine(store LedgerStore) *Engine {
	return &Engine{
		Store:       store,
		Logger:      slog.Default(),
		MaxAttempts: DefaultMaxAttempts,
		Now:         func() time.Time { return time.Now().UTC() },
		NewID:       func() PaymentID { return PaymentID(uuid.NewString()) },
	}
}

// state is everything a mutation reads.
type state struct {
	contract Contract
	payments []PaymentRecord
	schedule []Installment
}

// =============================================================================
// CONTRACTS
// =============================================================================

// CreateContract validates terms and stores a new contract. An empty id is
// replaced by a generated one.
func (e *Engine) CreateContract(ctx context.Context, id ContractID, customerID string, terms ContractTerms) (Contract, error) {
	if err := ValidateTerms(terms); err != nil {
		return Contract{}, err
	}
	if id == "" {
		id = ContractID(uuid.NewString())
	}
	now := e.now()
	c := Contract{
		ID:             id,
		CustomerID:     customerID,
		Terms:          terms,
		PrepaidBalance: decimal.Zero,
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.Store.CreateContract(ctx, c); err != nil {
		return Contract{}, e.storageErr(err)
	}
	// IDs come back after a store reset.
	e.invalidate(ctx, id)
	e.logger().Info("contract created", "contract_id", id, "period", terms.Period)
	return c, nil
}

func (e *Engine) Contract(ctx context.Context, id ContractID) (Contract, error) {
	c, err := e.Store.LoadContract(ctx, id)
	return c, e.storageErr(err)
}

func (e *Engine) ListContracts(ctx context.Context) ([]Contract, error) {
	cs, err := e.Store.ListContracts(ctx)
	return cs, e.storageErr(err)
}

func (e *Engine) Payments(ctx context.Context, id ContractID) ([]PaymentRecord, error) {
	if _, err := e.Store.LoadContract(ctx, id); err != nil {
		return nil, e.storageErr(err)
	}
	ps, err := e.Store.LoadPayments(ctx, id)
	return ps, e.storageErr(err)
}

// History returns the contract's edit events, oldest first.
func (e *Engine) History(ctx context.Context, id ContractID) ([]ContractEditEvent, error) {
	c, err := e.Store.LoadContract(ctx, id)
	if err != nil {
		return nil, e.storageErr(err)
	}
	return c.EditHistory, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// RecordPayment classifies and stores an incoming payment. Earlier records it
// reclassifies (a topped-up shortfall, a later UNDERPAID installment closed
// by cascade) are updated in the same commit, with a system edit event.
func (e *Engine) RecordPayment(ctx context.Context, id ContractID, amount decimal.Decimal, date TimePoint, notes string) (PaymentRecord, error) {
	if err := checkPayment(amount, date); err != nil {
		return PaymentRecord{}, err
	}

	var out PaymentRecord
	err := e.mutate(ctx, id, "record payment", func(st *state) (Commit, error) {
		book, err := Replay(st.schedule, st.payments)
		if err != nil {
			return Commit{}, err
		}
		cls, err := Classify(book, amount, date)
		if err != nil {
			return Commit{}, err
		}

		rec := cls.Record
		rec.ID = e.newID()
		rec.ContractID = id
		rec.Seq = nextSeq(st.payments)
		rec.Notes = notes
		rec.CreatedAt = e.now()
		if err := applyClassification(book, rec, cls); err != nil {
			return Commit{}, err
		}

		impact := assessImpact(book, st.payments)
		if err := checkOriginal(cls, impact, st.payments); err != nil {
			return Commit{}, err
		}
		commit := Commit{
			PrepaidBalance:  book.Prepaid,
			NewPayments:     []PaymentRecord{rec},
			UpdatedPayments: impact.Updated,
		}
		if len(impact.Updated) > 0 {
			commit.Event = &ContractEditEvent{
				Position:         len(st.contract.EditHistory),
				Date:             e.now(),
				EditedBy:         SystemActor,
				Reason:           fmt.Sprintf("payment %s reclassified %d earlier payment(s)", rec.ID, len(impact.Updated)),
				Changes:          impact.Changes,
				AffectedPayments: impact.Affected,
				ImpactSummary:    impact.Impact,
			}
		}
		out = rec
		return commit, nil
	})
	if err != nil {
		return PaymentRecord{}, err
	}
	e.logger().Info("payment recorded",
		"contract_id", id, "payment_id", out.ID, "installment", out.InstallmentIndex,
		"status", out.Status, "amount", out.Amount.String())
	return out, nil
}

// applyClassification places rec on its installment and runs the cascade the
// classifier asked for. The book's own derivation must agree with the
// classifier, otherwise the state is not trustworthy.
func applyClassification(book *Book, rec PaymentRecord, cls Classification) error {
	surplus, err := book.Place(rec)
	if err != nil {
		return err
	}
	switch {
	case cls.Cascade == nil && surplus.IsPositive():
		return &CorruptionError{Index: rec.InstallmentIndex, Detail: fmt.Sprintf("payment %s left %s unallocated", rec.ID, surplus)}
	case cls.Cascade != nil:
		if !cls.Cascade.ExcessAmount.Equal(surplus) || cls.Cascade.FromInstallmentIndex != rec.InstallmentIndex {
			return &CorruptionError{Index: rec.InstallmentIndex, Detail: fmt.Sprintf("cascade of %s disagrees with surplus %s", cls.Cascade.ExcessAmount, surplus)}
		}
		if _, err := book.Cascade(rec.ID, cls.Cascade.ExcessAmount, cls.Cascade.FromInstallmentIndex+1); err != nil {
			return err
		}
	}
	if derived := book.Classified(rec); !derived.sameClassification(rec) {
		return &CorruptionError{Index: rec.InstallmentIndex, Detail: fmt.Sprintf("payment %s classified %s, replay derives %s", rec.ID, rec.Status, derived.Status)}
	}
	return nil
}

// checkOriginal verifies that the topped-up record ends up with the
// classification the classifier promised.
func checkOriginal(cls Classification, impact Reconciliation, stored []PaymentRecord) error {
	if cls.Original == nil {
		return nil
	}
	want := *cls.Original
	got, found := PaymentRecord{}, false
	for _, u := range impact.Updated {
		if u.ID == want.ID {
			got, found = u, true
		}
	}
	if !found {
		if i := indexOfPayment(stored, want.ID); i >= 0 {
			got, found = stored[i], true
		}
	}
	if !found || !got.sameClassification(want) {
		return &CorruptionError{Index: want.InstallmentIndex, Detail: fmt.Sprintf("payment %s topped up to %s, replay disagrees", want.ID, want.Status)}
	}
	return nil
}

// ConfirmPayment stamps a payment as confirmed. Classification is untouched.
func (e *Engine) ConfirmPayment(ctx context.Context, id ContractID, paymentID PaymentID, confirmedBy string) (PaymentRecord, error) {
	if confirmedBy == "" {
		return PaymentRecord{}, fmt.Errorf("%w: confirmedBy is required", ErrInvalidInput)
	}

	var out PaymentRecord
	err := e.mutate(ctx, id, "confirm payment", func(st *state) (Commit, error) {
		i := indexOfPayment(st.payments, paymentID)
		if i < 0 {
			return Commit{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		rec := st.payments[i]
		if !rec.Counts() {
			return Commit{}, fmt.Errorf("%w: payment %s is rejected", ErrInvalidInput, paymentID)
		}
		if rec.ConfirmedAt != nil {
			return Commit{}, fmt.Errorf("%w: payment %s already confirmed by %s", ErrInvalidInput, paymentID, rec.ConfirmedBy)
		}
		at := e.now()
		rec.ConfirmedAt = &at
		rec.ConfirmedBy = confirmedBy
		out = rec
		return Commit{
			PrepaidBalance:  st.contract.PrepaidBalance,
			UpdatedPayments: []PaymentRecord{rec},
		}, nil
	})
	return out, err
}

// RejectPayment takes a payment out of allocation. The remaining payments
// are replayed and reclassified, and the whole change is recorded as one
// edit event.
func (e *Engine) RejectPayment(ctx context.Context, id ContractID, paymentID PaymentID, editor, reason string) (ContractEditEvent, error) {
	if editor == "" {
		return ContractEditEvent{}, fmt.Errorf("%w: editor is required", ErrInvalidInput)
	}

	var out ContractEditEvent
	err := e.mutate(ctx, id, "reject payment", func(st *state) (Commit, error) {
		i := indexOfPayment(st.payments, paymentID)
		if i < 0 {
			return Commit{}, fmt.Errorf("%w: %s", ErrPaymentNotFound, paymentID)
		}
		before := st.payments[i]
		if !before.Counts() {
			return Commit{}, fmt.Errorf("%w: payment %s already rejected", ErrInvalidInput, paymentID)
		}

		records := make([]PaymentRecord, len(st.payments))
		copy(records, st.payments)
		rejected := before
		rejected.Status = StatusRejected
		rejected.RemainingAmount = decimal.Zero
		rejected.ExcessAmount = decimal.Zero
		records[i] = rejected

		rec, err := Reconcile(st.schedule, records)
		if err != nil {
			return Commit{}, err
		}

		out = ContractEditEvent{
			Position:         len(st.contract.EditHistory),
			Date:             e.now(),
			EditedBy:         editor,
			Reason:           reason,
			Changes:          append(paymentChanges(before, rejected), rec.Changes...),
			AffectedPayments: append([]PaymentID{paymentID}, rec.Affected...),
			ImpactSummary:    rec.Impact,
		}
		return Commit{
			PrepaidBalance:  rec.Book.Prepaid,
			UpdatedPayments: append([]PaymentRecord{rejected}, rec.Updated...),
			Event:           &out,
		}, nil
	})
	if err != nil {
		return ContractEditEvent{}, err
	}
	e.logger().Info("payment rejected", "contract_id", id, "payment_id", paymentID, "affected", len(out.AffectedPayments))
	return out, nil
}

// =============================================================================
// CONTRACT EDITS
// =============================================================================

// EditContractTerms replaces the contract's terms, reclassifies every
// recorded payment against the regenerated schedule and appends the edit to
// the contract's history, all in one commit.
func (e *Engine) EditContractTerms(ctx context.Context, id ContractID, newTerms ContractTerms, editor string) (ContractEditEvent, error) {
	if editor == "" {
		return ContractEditEvent{}, fmt.Errorf("%w: editor is required", ErrInvalidInput)
	}
	if err := ValidateTerms(newTerms); err != nil {
		return ContractEditEvent{}, err
	}

	var out ContractEditEvent
	err := e.mutate(ctx, id, "edit terms", func(st *state) (Commit, error) {
		changes := DiffTerms(st.contract.Terms, newTerms)
		if len(changes) == 0 {
			return Commit{}, fmt.Errorf("%w: terms are unchanged", ErrInvalidInput)
		}
		rec, err := reconcileTerms(st, newTerms)
		if err != nil {
			return Commit{}, err
		}

		affected := rec.Affected
		if affected == nil {
			affected = []PaymentID{}
		}
		terms := newTerms
		out = ContractEditEvent{
			Position:         len(st.contract.EditHistory),
			Date:             e.now(),
			EditedBy:         editor,
			Changes:          changes,
			AffectedPayments: affected,
			ImpactSummary:    rec.Impact,
		}
		return Commit{
			Terms:           &terms,
			PrepaidBalance:  rec.Book.Prepaid,
			UpdatedPayments: rec.Updated,
			Event:           &out,
		}, nil
	})
	if err != nil {
		return ContractEditEvent{}, err
	}
	e.logger().Info("contract terms edited",
		"contract_id", id, "editor", editor, "changes", len(out.Changes),
		"underpaid", out.ImpactSummary.UnderpaidCount, "overpaid", out.ImpactSummary.OverpaidCount)
	return out, nil
}

// PreviewImpact computes what EditContractTerms would report, without
// writing anything.
func (e *Engine) PreviewImpact(ctx context.Context, id ContractID, newTerms ContractTerms) (ImpactSummary, error) {
	if err := ValidateTerms(newTerms); err != nil {
		return ImpactSummary{}, err
	}

	unlock := e.locks.lock(id)
	defer unlock()

	st, err := e.load(ctx, id)
	if err != nil {
		return ImpactSummary{}, err
	}
	rec, err := reconcileTerms(st, newTerms)
	if err != nil {
		return ImpactSummary{}, e.reportCorruption(id, err)
	}
	return rec.Impact, nil
}

func reconcileTerms(st *state, terms ContractTerms) (Reconciliation, error) {
	if err := checkRecordedIndices(terms, st.payments); err != nil {
		return Reconciliation{}, err
	}
	schedule, err := GenerateSchedule(terms)
	if err != nil {
		return Reconciliation{}, err
	}
	return Reconcile(schedule, st.payments)
}

// =============================================================================
// SCHEDULE
// =============================================================================

// GetSchedule returns every installment with its allocated amount and status.
func (e *Engine) GetSchedule(ctx context.Context, id ContractID) ([]ScheduleLine, error) {
	if e.Cache != nil {
		if lines, ok := e.Cache.Get(ctx, id); ok {
			return lines, nil
		}
	}

	// Commits invalidate under this lock, so a miss can never cache a
	// schedule older than the last invalidation.
	unlock := e.locks.lock(id)
	defer unlock()

	st, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	book, err := Replay(st.schedule, st.payments)
	if err != nil {
		return nil, e.reportCorruption(id, err)
	}
	lines := book.Lines()

	if e.Cache != nil {
		if err := e.Cache.Set(ctx, id, lines); err != nil {
			e.logger().Warn("schedule cache write failed", "contract_id", id, "error", err)
		}
	}
	return lines, nil
}

// =============================================================================
// PLUMBING
// =============================================================================

// mutate runs fn against fresh state and commits its result, retrying on
// version conflicts.
func (e *Engine) mutate(ctx context.Context, id ContractID, op string, fn func(*state) (Commit, error)) error {
	unlock := e.locks.lock(id)
	defer unlock()

	for attempt := 1; ; attempt++ {
		st, err := e.load(ctx, id)
		if err != nil {
			return err
		}
		commit, err := fn(st)
		if err != nil {
			return e.reportCorruption(id, err)
		}
		commit.ContractID = id
		commit.ExpectedVersion = st.contract.Version

		err = e.Store.Commit(ctx, commit)
		if err == nil {
			e.invalidate(ctx, id)
			return nil
		}
		if !IsRetryable(err) {
			return e.storageErr(err)
		}
		if attempt >= e.maxAttempts() {
			e.logger().Error("giving up after version conflicts", "contract_id", id, "op", op, "attempts", attempt)
			return fmt.Errorf("%w: %s on contract %s after %d attempts", ErrConcurrencyConflict, op, id, attempt)
		}
		e.logger().Warn("version conflict, retrying", "contract_id", id, "op", op, "attempt", attempt)
	}
}

func (e *Engine) load(ctx context.Context, id ContractID) (*state, error) {
	c, err := e.Store.LoadContract(ctx, id)
	if err != nil {
		return nil, e.storageErr(err)
	}
	payments, err := e.Store.LoadPayments(ctx, id)
	if err != nil {
		return nil, e.storageErr(err)
	}
	schedule, err := GenerateSchedule(c.Terms)
	if err != nil {
		// Stored terms were validated on the way in.
		return nil, e.reportCorruption(id, &CorruptionError{Index: 0, Detail: err.Error()})
	}
	return &state{contract: c, payments: payments, schedule: schedule}, nil
}

func (e *Engine) invalidate(ctx context.Context, id ContractID) {
	if e.Cache == nil {
		return
	}
	if err := e.Cache.Invalidate(ctx, id); err != nil {
		e.logger().Warn("schedule cache invalidation failed", "contract_id", id, "error", err)
	}
}

func (e *Engine) reportCorruption(id ContractID, err error) error {
	if errors.Is(err, ErrScheduleCorrupt) {
		e.logger().Error("schedule corrupt, operation aborted", "contract_id", id, "error", err)
	}
	return err
}

func (e *Engine) storageErr(err error) error {
	if err == nil || errors.Is(err, ErrStorageTimeout) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStorageTimeout, err)
	}
	return err
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) maxAttempts() int {
	if e.MaxAttempts < 1 {
		return DefaultMaxAttempts
	}
	return e.MaxAttempts
}

func (e *Engine) now() time.Time {
	if e.Now == nil {
		return time.Now().UTC()
	}
	return e.Now()
}

func (e *Engine) newID() PaymentID {
	if e.NewID == nil {
		return PaymentID(uuid.NewString())
	}
	return e.NewID()
}

func nextSeq(payments []PaymentRecord) int64 {
	var last int64
	for _, p := range payments {
		if p.Seq > last {
			last = p.Seq
		}
	}
	return last + 1
}

func indexOfPayment(payments []PaymentRecord, id PaymentID) int {
	for i, p := range payments {
		if p.ID == id {
			return i
		}
	}
	return -1
}
