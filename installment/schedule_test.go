package installment_test

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/installment-engine/installment"
)

// =============================================================================
// SCHEDULE GENERATION TESTS
// =============================================================================

func TestGenerateSchedule_PeriodPlusOneInstallments(t *testing.T) {
	terms := monthlyTerms(100, 3)
	terms.InitialPayment = money(500)
	terms.TotalPrice = money(800)

	schedule, err := installment.GenerateSchedule(terms)
	require.NoError(t, err)
	require.Len(t, schedule, 4)

	assert.Equal(t, 0, schedule[0].Index)
	assertMoney(t, 500, schedule[0].ExpectedAmount)
	assert.True(t, schedule[0].DueDate.Equal(date(2024, time.January, 1)), "initial falls back to start date")

	for i := 1; i <= 3; i++ {
		assert.Equal(t, i, schedule[i].Index)
		assertMoney(t, 100, schedule[i].ExpectedAmount)
	}
	assert.True(t, schedule[1].DueDate.Equal(date(2024, time.February, 1)))
	assert.True(t, schedule[3].DueDate.Equal(date(2024, time.April, 1)))
}

func TestGenerateSchedule_InitialPaymentDueDate(t *testing.T) {
	terms := monthlyTerms(100, 2)
	terms.InitialPaymentDueDate = date(2023, time.December, 20)

	schedule, err := installment.GenerateSchedule(terms)
	require.NoError(t, err)
	assert.True(t, schedule[0].DueDate.Equal(date(2023, time.December, 20)))
	assert.True(t, schedule[1].DueDate.Equal(date(2024, time.February, 1)))
}

func TestGenerateSchedule_MonthEndClamped(t *testing.T) {
	// GIVEN: A contract starting on January 31st of a leap year
	// WHEN: Generating the schedule
	// THEN: Due dates clamp to the last day of shorter months

	terms := monthlyTerms(100, 3)
	terms.StartDate = date(2024, time.January, 31)

	schedule, err := installment.GenerateSchedule(terms)
	require.NoError(t, err)
	assert.Equal(t, "2024-02-29", schedule[1].DueDate.String())
	assert.Equal(t, "2024-03-31", schedule[2].DueDate.String())
	assert.Equal(t, "2024-04-30", schedule[3].DueDate.String())
}

func TestGenerateSchedule_ZeroPeriod_OnlyInitial(t *testing.T) {
	terms := monthlyTerms(100, 0)
	terms.InitialPayment = money(900)
	terms.TotalPrice = money(900)

	schedule, err := installment.GenerateSchedule(terms)
	require.NoError(t, err)
	require.Len(t, schedule, 1)
	assertMoney(t, 900, schedule[0].ExpectedAmount)
}

func TestGenerateSchedule_Deterministic(t *testing.T) {
	terms := monthlyTerms(125, 12)

	first, err := installment.GenerateSchedule(terms)
	require.NoError(t, err)
	second, err := installment.GenerateSchedule(terms)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGenerateSchedule_InvalidTerms(t *testing.T) {
	tests := []struct {
		name  string
		terms func() installment.ContractTerms
		field string
	}{
		{
			name: "negative period",
			terms: func() installment.ContractTerms {
				terms := monthlyTerms(100, 3)
				terms.Period = -1
				return terms
			},
			field: "period",
		},
		{
			name: "period above cap",
			terms: func() installment.ContractTerms {
				terms := monthlyTerms(100, 3)
				terms.Period = installment.MaxPeriod + 1
				return terms
			},
			field: "period",
		},
		{
			name: "huge period",
			terms: func() installment.ContractTerms {
				terms := monthlyTerms(100, 3)
				terms.Period = math.MaxInt
				return terms
			},
			field: "period",
		},
		{
			name: "missing start date",
			terms: func() installment.ContractTerms {
				terms := monthlyTerms(100, 3)
				terms.StartDate = installment.TimePoint{}
				return terms
			},
			field: "startDate",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := installment.GenerateSchedule(tt.terms())
			require.ErrorIs(t, err, installment.ErrInvalidTerms)

			var termsErr *installment.TermsError
			require.ErrorAs(t, err, &termsErr)
			assert.Equal(t, tt.field, termsErr.Field)
		})
	}
}

func TestGenerateSchedule_PeriodAtCap(t *testing.T) {
	// GIVEN: A contract with the longest accepted period
	// WHEN: Generating the schedule
	// THEN: Every monthly installment is produced

	schedule, err := installment.GenerateSchedule(monthlyTerms(10, installment.MaxPeriod))
	require.NoError(t, err)
	require.Len(t, schedule, installment.MaxPeriod+1)
	assertMoney(t, 10, schedule[installment.MaxPeriod].ExpectedAmount)
}

// =============================================================================
// TERM VALIDATION TESTS
// =============================================================================

func TestValidateTerms(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*installment.ContractTerms)
		wantErr bool
	}{
		{name: "consistent terms", mutate: func(*installment.ContractTerms) {}},
		{
			name:   "total within rounding tolerance",
			mutate: func(c *installment.ContractTerms) { c.TotalPrice = decimal.RequireFromString("300.04") },
		},
		{
			name:    "total beyond rounding tolerance",
			mutate:  func(c *installment.ContractTerms) { c.TotalPrice = decimal.RequireFromString("300.05") },
			wantErr: true,
		},
		{
			name:    "negative monthly payment",
			mutate:  func(c *installment.ContractTerms) { c.MonthlyPayment = money(-100); c.TotalPrice = money(-300) },
			wantErr: true,
		},
		{
			name:    "negative initial payment",
			mutate:  func(c *installment.ContractTerms) { c.InitialPayment = money(-1) },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			terms := monthlyTerms(100, 3)
			tt.mutate(&terms)

			err := installment.ValidateTerms(terms)
			if tt.wantErr {
				assert.ErrorIs(t, err, installment.ErrInvalidTerms)
				assert.True(t, installment.IsClientError(err))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRoundingTolerance_OneCentPerInstallment(t *testing.T) {
	assert.True(t, installment.RoundingTolerance(3).Equal(decimal.RequireFromString("0.04")))
	assert.True(t, installment.RoundingTolerance(0).Equal(decimal.RequireFromString("0.01")))
}

// =============================================================================
// TIME POINT TESTS
// =============================================================================

func TestTimePoint_JSON(t *testing.T) {
	terms := monthlyTerms(100, 3)

	data, err := json.Marshal(terms)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"startDate":"2024-01-01"`)
	assert.Contains(t, string(data), `"initialPaymentDueDate":null`)

	var decoded installment.ContractTerms
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.True(t, decoded.StartDate.Equal(terms.StartDate))
	assert.True(t, decoded.InitialPaymentDueDate.IsZero())
	assert.True(t, decoded.MonthlyPayment.Equal(terms.MonthlyPayment))
}

func TestParseDate_Malformed(t *testing.T) {
	_, err := installment.ParseDate("01/02/2024")
	assert.ErrorIs(t, err, installment.ErrInvalidInput)

	var tp installment.TimePoint
	assert.ErrorIs(t, json.Unmarshal([]byte(`"2024-13-01"`), &tp), installment.ErrInvalidInput)
}
