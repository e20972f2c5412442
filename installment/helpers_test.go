package installment_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/warp/installment-engine/installment"
	"github.com/warp/installment-engine/installment/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func money(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func date(year int, month time.Month, day int) installment.TimePoint {
	return installment.NewTimePoint(year, month, day)
}

// monthlyTerms builds terms with no initial payment, so the first payment
// lands on installment 1.
func monthlyTerms(monthly int64, period int) installment.ContractTerms {
	total := money(monthly * int64(period))
	return installment.ContractTerms{
		ProductName:    "Laptop",
		OriginalPrice:  total,
		Price:          total,
		InitialPayment: decimal.Zero,
		Percentage:     decimal.Zero,
		Period:         period,
		MonthlyPayment: money(monthly),
		TotalPrice:     total,
		StartDate:      date(2024, time.January, 1),
	}
}

func withMonthly(terms installment.ContractTerms, monthly int64) installment.ContractTerms {
	terms.MonthlyPayment = money(monthly)
	terms.TotalPrice = terms.InitialPayment.Add(money(monthly * int64(terms.Period)))
	return terms
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestEngine returns an engine over an in-memory store with predictable
// payment IDs (p-1, p-2, ...) and a fixed clock.
func newTestEngine(t *testing.T) (*installment.Engine, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	engine := installment.NewEngine(mem)
	engine.Logger = discardLogger()
	engine.Now = func() time.Time { return time.Date(2024, time.June, 1, 12, 0, 0, 0, time.UTC) }

	var n atomic.Int64
	engine.NewID = func() installment.PaymentID {
		return installment.PaymentID(fmt.Sprintf("p-%d", n.Add(1)))
	}
	return engine, mem
}

func createContract(t *testing.T, engine *installment.Engine, id installment.ContractID, terms installment.ContractTerms) {
	t.Helper()
	_, err := engine.CreateContract(context.Background(), id, "cust-1", terms)
	require.NoError(t, err)
}

func pay(t *testing.T, engine *installment.Engine, id installment.ContractID, amount int64) installment.PaymentRecord {
	t.Helper()
	rec, err := engine.RecordPayment(context.Background(), id, money(amount), date(2024, time.February, 1), "")
	require.NoError(t, err)
	return rec
}

func paymentByID(t *testing.T, engine *installment.Engine, contract installment.ContractID, id installment.PaymentID) installment.PaymentRecord {
	t.Helper()
	payments, err := engine.Payments(context.Background(), contract)
	require.NoError(t, err)
	for _, p := range payments {
		if p.ID == id {
			return p
		}
	}
	t.Fatalf("payment %s not found", id)
	return installment.PaymentRecord{}
}

func assertMoney(t *testing.T, expected int64, actual decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	if !actual.Equal(money(expected)) {
		t.Errorf("expected %d, got %s %v", expected, actual, msgAndArgs)
	}
}
