package installment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// roundingPerInstallment is how far TotalPrice may drift from the sum of the
// installments for every installment in the schedule.
var roundingPerInstallment = decimal.New(1, -2)

// MaxPeriod caps the number of monthly installments (100 years). Schedules
// are materialized in memory on every operation.
const MaxPeriod = 1200

// RoundingTolerance is the allowed |TotalPrice - (Initial + Monthly*Period)|.
func RoundingTolerance(period int) decimal.Decimal {
	if period < 0 {
		period = 0
	}
	return roundingPerInstallment.Mul(decimal.NewFromInt(int64(period + 1)))
}

// GenerateSchedule expands terms into Period+1 installments. Installment 0 is
// the initial payment, due on InitialPaymentDueDate when set and StartDate
// otherwise. Installment i is due StartDate + i months.
//
// It only checks what it needs to build a schedule; ValidateTerms enforces the
// full price identity.
func GenerateSchedule(terms ContractTerms) ([]Installment, error) {
	if terms.Period < 0 {
		return nil, &TermsError{Field: "period", Reason: "must not be negative"}
	}
	if terms.Period > MaxPeriod {
		return nil, &TermsError{Field: "period", Reason: fmt.Sprintf("must not exceed %d, got %d", MaxPeriod, terms.Period)}
	}
	if terms.StartDate.IsZero() {
		return nil, &TermsError{Field: "startDate", Reason: "missing or unparsable"}
	}

	initialDue := terms.StartDate
	if !terms.InitialPaymentDueDate.IsZero() {
		initialDue = terms.InitialPaymentDueDate
	}

	schedule := make([]Installment, 0, terms.Period+1)
	schedule = append(schedule, Installment{
		Index:          0,
		DueDate:        initialDue,
		ExpectedAmount: terms.InitialPayment,
	})
	for i := 1; i <= terms.Period; i++ {
		schedule = append(schedule, Installment{
			Index:          i,
			DueDate:        terms.StartDate.AddMonths(i),
			ExpectedAmount: terms.MonthlyPayment,
		})
	}
	return schedule, nil
}

// ValidateTerms rejects terms that cannot be stored.
func ValidateTerms(terms ContractTerms) error {
	if _, err := GenerateSchedule(terms); err != nil {
		return err
	}

	amounts := []struct {
		field string
		value decimal.Decimal
	}{
		{"originalPrice", terms.OriginalPrice},
		{"price", terms.Price},
		{"initialPayment", terms.InitialPayment},
		{"percentage", terms.Percentage},
		{"monthlyPayment", terms.MonthlyPayment},
		{"totalPrice", terms.TotalPrice},
	}
	for _, a := range amounts {
		if a.value.IsNegative() {
			return &TermsError{Field: a.field, Reason: "must not be negative"}
		}
	}

	expected := terms.InitialPayment.Add(terms.MonthlyPayment.Mul(decimal.NewFromInt(int64(terms.Period))))
	if diff := terms.TotalPrice.Sub(expected).Abs(); diff.GreaterThan(RoundingTolerance(terms.Period)) {
		return &TermsError{
			Field: "totalPrice",
			Reason: fmt.Sprintf("%s does not match initialPayment + monthlyPayment*period = %s",
				terms.TotalPrice.StringFixed(2), expected.StringFixed(2)),
		}
	}
	return nil
}
