package installment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Classification is the outcome of classifying one incoming payment.
type Classification struct {
	// Record is the new payment, without ID, Seq or ContractID.
	Record PaymentRecord

	// Cascade is set when the payment exceeds what its installment still
	// owes. Its ExcessAmount is what flows past the installment, which is
	// more than Record.ExcessAmount when cascaded money already covered part
	// of it.
	Cascade *CascadeInstruction

	// Original is the earlier record of the same installment that this
	// payment tops up, already carrying its new status.
	Original *PaymentRecord
}

// Classify allocates an incoming payment FIFO: it targets the earliest
// installment that is not fully covered, so nobody can pay ahead while an
// earlier installment is still open.
func Classify(b *Book, amount decimal.Decimal, date TimePoint) (Classification, error) {
	if err := checkPayment(amount, date); err != nil {
		return Classification{}, err
	}

	target := b.NextOpen(0)
	if target < 0 {
		return Classification{}, ErrContractAlreadySettled
	}
	owed := b.Owed(target)

	rec := PaymentRecord{
		Amount:           amount,
		Date:             date,
		PaymentType:      PaymentMonthly,
		InstallmentIndex: target,
		ExpectedAmount:   b.Schedule[target].ExpectedAmount,
	}
	if target == 0 {
		rec.PaymentType = PaymentInitial
	}

	var out Classification
	due := b.Due(target)
	switch {
	case amount.GreaterThan(due):
		rec.Status = StatusOverpaid
		rec.ExcessAmount = amount.Sub(due)
	case amount.LessThan(owed):
		rec.Status = StatusUnderpaid
		rec.RemainingAmount = owed.Sub(amount)
	default:
		rec.Status = StatusPaid
	}
	if amount.GreaterThan(owed) {
		out.Cascade = &CascadeInstruction{ExcessAmount: amount.Sub(owed), FromInstallmentIndex: target}
	}

	// An open installment that already has a record is an open shortfall:
	// this payment is a supplemental one.
	if primary, ok := b.primaryAt(target); ok {
		rec.PaymentType = PaymentExtra
		rec.LinkedPaymentID = primary.ID

		original := b.Classified(primary)
		original.ExcessAmount = decimal.Zero
		if remaining := owed.Sub(amount); remaining.IsPositive() {
			original.Status = StatusUnderpaid
			original.RemainingAmount = remaining
		} else {
			original.Status = StatusPaid
			original.RemainingAmount = decimal.Zero
		}
		out.Original = &original
	}

	out.Record = rec
	return out, nil
}

func checkPayment(amount decimal.Decimal, date TimePoint) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive, got %s", ErrInvalidInput, amount)
	}
	if date.IsZero() {
		return fmt.Errorf("%w: payment date is required", ErrInvalidInput)
	}
	return nil
}
