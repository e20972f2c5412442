/*
edit.go - Contract edit processor

PURPOSE:
  Recomputes what a change of terms means for payments already on record.
  The schedule is regenerated from the new terms and the records are
  replayed against it (book.go). Every record whose derived classification
  differs from the stored one is reclassified and listed as affected.

IMPACT COUNTING:
  - A record entering UNDERPAID counts once in UnderpaidCount and opens one
    obligation (AdditionalPaymentsCreated). No payment is created: the open
    UNDERPAID record is what the next supplemental payment closes.
  - TotalShortage adds each underpaid installment's remaining amount once,
    even when several records of that installment share the shortfall.
  - A record entering OVERPAID counts in OverpaidCount and adds its excess to
    TotalExcess. The replay has already cascaded that excess forward.
  - Records whose amounts change without changing state are affected but
    not counted.

ORDERING:
  When one edit opens shortfalls on several non-adjacent installments, the
  replay closes them strictly FIFO by index.

SEE ALSO:
  - engine.go: EditContractTerms / PreviewImpact / RejectPayment
*/
package installment

import (
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RECONCILIATION
// =============================================================================

// Reconciliation is the full effect of replaying records against a schedule.
type Reconciliation struct {
	Book     *Book
	Updated  []PaymentRecord // Records with a new classification
	Affected []PaymentID     // IDs of Updated, in recording order
	Changes  []FieldChange   // Per-payment field changes, for system events
	Impact   ImpactSummary
}

// Reconcile replays records against schedule and diffs the result with the
// stored classifications.
func Reconcile(schedule []Installment, records []PaymentRecord) (Reconciliation, error) {
	book, err := Replay(schedule, records)
	if err != nil {
		return Reconciliation{}, err
	}
	return assessImpact(book, records), nil
}

func assessImpact(book *Book, records []PaymentRecord) Reconciliation {
	rec := Reconciliation{
		Book: book,
		Impact: ImpactSummary{
			TotalShortage: decimal.Zero,
			TotalExcess:   decimal.Zero,
		},
	}
	shortageCounted := make(map[int]bool)

	for _, before := range sortedBySeq(records) {
		if !before.Counts() {
			continue
		}
		after := book.Classified(before)
		if after.sameClassification(before) {
			continue
		}

		rec.Updated = append(rec.Updated, after)
		rec.Affected = append(rec.Affected, after.ID)
		rec.Changes = append(rec.Changes, paymentChanges(before, after)...)

		switch after.Status {
		case StatusUnderpaid:
			if before.Status == StatusUnderpaid {
				continue
			}
			rec.Impact.UnderpaidCount++
			rec.Impact.AdditionalPaymentsCreated++
			if !shortageCounted[after.InstallmentIndex] {
				shortageCounted[after.InstallmentIndex] = true
				rec.Impact.TotalShortage = rec.Impact.TotalShortage.Add(after.RemainingAmount)
			}
		case StatusOverpaid:
			if before.Status == StatusOverpaid {
				continue
			}
			rec.Impact.OverpaidCount++
			rec.Impact.TotalExcess = rec.Impact.TotalExcess.Add(after.ExcessAmount)
		}
	}
	return rec
}

func paymentChanges(before, after PaymentRecord) []FieldChange {
	prefix := fmt.Sprintf("payments[%s].", before.ID)
	var changes []FieldChange
	if before.Status != after.Status {
		changes = append(changes, FieldChange{
			Field:    prefix + "status",
			OldValue: string(before.Status),
			NewValue: string(after.Status),
		})
	}
	if c, ok := numericChange(prefix+"remainingAmount", before.RemainingAmount, after.RemainingAmount); ok {
		changes = append(changes, c)
	}
	if c, ok := numericChange(prefix+"excessAmount", before.ExcessAmount, after.ExcessAmount); ok {
		changes = append(changes, c)
	}
	return changes
}

// =============================================================================
// TERMS DIFF
// =============================================================================

// DiffTerms lists the fields that materially differ between two sets of
// terms. Money is compared at cent precision.
func DiffTerms(old, updated ContractTerms) []FieldChange {
	var changes []FieldChange
	money := []struct {
		field        string
		old, updated decimal.Decimal
	}{
		{"monthlyPayment", old.MonthlyPayment, updated.MonthlyPayment},
		{"initialPayment", old.InitialPayment, updated.InitialPayment},
		{"totalPrice", old.TotalPrice, updated.TotalPrice},
		{"price", old.Price, updated.Price},
		{"originalPrice", old.OriginalPrice, updated.OriginalPrice},
		{"percentage", old.Percentage, updated.Percentage},
	}
	for _, m := range money {
		if c, ok := numericChange(m.field, m.old, m.updated); ok {
			changes = append(changes, c)
		}
	}

	if old.ProductName != updated.ProductName {
		changes = append(changes, FieldChange{Field: "productName", OldValue: old.ProductName, NewValue: updated.ProductName})
	}
	if old.Period != updated.Period {
		changes = append(changes, FieldChange{
			Field:      "period",
			OldValue:   strconv.Itoa(old.Period),
			NewValue:   strconv.Itoa(updated.Period),
			Difference: decimal.NewNullDecimal(decimal.NewFromInt(int64(updated.Period - old.Period))),
		})
	}
	if !old.StartDate.Equal(updated.StartDate) {
		changes = append(changes, FieldChange{Field: "startDate", OldValue: old.StartDate.String(), NewValue: updated.StartDate.String()})
	}
	if !old.InitialPaymentDueDate.Equal(updated.InitialPaymentDueDate) {
		changes = append(changes, FieldChange{
			Field:    "initialPaymentDueDate",
			OldValue: old.InitialPaymentDueDate.String(),
			NewValue: updated.InitialPaymentDueDate.String(),
		})
	}
	return changes
}

// numericChange compares exactly: a sub-cent edit still moves allocations,
// so it must show up as a change.
func numericChange(field string, old, updated decimal.Decimal) (FieldChange, bool) {
	if old.Equal(updated) {
		return FieldChange{}, false
	}
	return FieldChange{
		Field:      field,
		OldValue:   moneyString(old),
		NewValue:   moneyString(updated),
		Difference: decimal.NewNullDecimal(updated.Sub(old)),
	}, true
}

// moneyString prints cents, or every digit when there are more.
func moneyString(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}

// checkRecordedIndices rejects terms whose schedule would orphan recorded
// payments.
func checkRecordedIndices(terms ContractTerms, records []PaymentRecord) error {
	for _, r := range records {
		if r.Counts() && r.InstallmentIndex > terms.Period {
			return &TermsError{
				Field:  "period",
				Reason: fmt.Sprintf("payment %s is recorded against installment %d", r.ID, r.InstallmentIndex),
			}
		}
	}
	return nil
}
