package installment_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/installment-engine/installment"
)

func schedule(t *testing.T, terms installment.ContractTerms) []installment.Installment {
	t.Helper()
	s, err := installment.GenerateSchedule(terms)
	require.NoError(t, err)
	return s
}

func record(id installment.PaymentID, seq int64, index int, amount int64) installment.PaymentRecord {
	return installment.PaymentRecord{
		ID:               id,
		Seq:              seq,
		Amount:           money(amount),
		Date:             date(2024, time.February, 1),
		Status:           installment.StatusPending,
		InstallmentIndex: index,
	}
}

// conserved checks sum(amounts) == sum(allocations) + prepaid. Prepaid
// allocations spend money that was parked in the pool, so they count once.
func conserved(t *testing.T, b *installment.Book, records []installment.PaymentRecord) {
	t.Helper()
	paid := decimal.Zero
	for _, r := range records {
		if r.Counts() {
			paid = paid.Add(r.Amount)
		}
	}
	allocated := decimal.Zero
	for _, a := range b.Allocations {
		allocated = allocated.Add(a.Amount)
	}
	assert.True(t, paid.Equal(allocated.Add(b.Prepaid)),
		"paid %s != allocated %s + prepaid %s", paid, allocated, b.Prepaid)
}

// =============================================================================
// REPLAY TESTS
// =============================================================================

func TestReplay_ExactPayments_AllPaid(t *testing.T) {
	records := []installment.PaymentRecord{
		record("p-1", 1, 1, 100),
		record("p-2", 2, 2, 100),
	}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)

	assert.Equal(t, installment.StatusPaid, b.Classified(records[0]).Status)
	assert.Equal(t, installment.StatusPaid, b.Classified(records[1]).Status)
	assert.Equal(t, 3, b.NextOpen(0))
	assert.False(t, b.Settled())
	conserved(t, b, records)
}

func TestReplay_Overpayment_CascadesForward(t *testing.T) {
	records := []installment.PaymentRecord{
		record("p-1", 1, 1, 100),
		record("p-2", 2, 2, 150),
	}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)

	p2 := b.Classified(records[1])
	assert.Equal(t, installment.StatusOverpaid, p2.Status)
	assertMoney(t, 50, p2.ExcessAmount)
	assert.True(t, p2.RemainingAmount.IsZero())

	assertMoney(t, 50, b.Allocated(3))
	assertMoney(t, 50, b.Owed(3))

	lines := b.Lines()
	assert.Equal(t, installment.StatusPaid, lines[2].Status)
	assert.Equal(t, installment.StatusUnderpaid, lines[3].Status, "partially covered by cascade")
	conserved(t, b, records)
}

func TestReplay_ExcessMeasuredAgainstOwnDirectShare(t *testing.T) {
	// GIVEN: Two payments of 100 against installments of 80
	// WHEN: Replaying them
	// THEN: Each is overpaid by 20; the 20 cascaded into installment 2 is not
	//       counted again as excess of the second payment

	records := []installment.PaymentRecord{
		record("p-1", 1, 1, 100),
		record("p-2", 2, 2, 100),
	}
	b, err := installment.Replay(schedule(t, monthlyTerms(80, 3)), records)
	require.NoError(t, err)

	for _, r := range records {
		got := b.Classified(r)
		assert.Equal(t, installment.StatusOverpaid, got.Status, r.ID)
		assertMoney(t, 20, got.ExcessAmount, r.ID)
	}
	assertMoney(t, 80, b.Lines()[2].AllocatedAmount)
	assertMoney(t, 40, b.Lines()[3].AllocatedAmount)
	conserved(t, b, records)
}

func TestReplay_Underpayment_RemainingIsFinalGap(t *testing.T) {
	records := []installment.PaymentRecord{record("p-1", 1, 1, 60)}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)

	p1 := b.Classified(records[0])
	assert.Equal(t, installment.StatusUnderpaid, p1.Status)
	assertMoney(t, 40, p1.RemainingAmount)
	assert.Equal(t, 1, b.NextOpen(0))
}

func TestReplay_RejectedRecordsIgnored(t *testing.T) {
	rejected := record("p-1", 1, 1, 100)
	rejected.Status = installment.StatusRejected
	records := []installment.PaymentRecord{rejected, record("p-2", 2, 2, 100)}

	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)

	assert.True(t, b.Allocated(1).IsZero())
	assert.Equal(t, installment.StatusRejected, b.Classified(rejected).Status, "unchanged")
	assert.Equal(t, 1, b.NextOpen(0))
}

func TestReplay_ReplaysInSeqOrder(t *testing.T) {
	// GIVEN: Records handed over out of recording order
	// WHEN: Replaying
	// THEN: Allocation follows Seq, not slice order

	records := []installment.PaymentRecord{
		record("p-2", 2, 1, 40),
		record("p-1", 1, 1, 60),
	}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)

	applied := b.Records()
	require.Len(t, applied, 2)
	assert.Equal(t, installment.PaymentID("p-1"), applied[0].ID)
	assert.Equal(t, installment.StatusPaid, b.Classified(records[0]).Status)
	assert.Equal(t, installment.StatusPaid, b.Classified(records[1]).Status)
}

func TestReplay_LeftoverBecomesPrepaid(t *testing.T) {
	records := []installment.PaymentRecord{record("p-1", 1, 1, 500)}

	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)
	assertMoney(t, 200, b.Prepaid)
	assert.True(t, b.Settled())
	conserved(t, b, records)

	// Same money against a schedule that asks for more: prepaid shrinks.
	b, err = installment.Replay(schedule(t, monthlyTerms(150, 3)), records)
	require.NoError(t, err)
	assertMoney(t, 50, b.Prepaid)
	p1 := b.Classified(records[0])
	assert.Equal(t, installment.StatusOverpaid, p1.Status)
	assertMoney(t, 350, p1.ExcessAmount)
	conserved(t, b, records)
}

func TestReplay_BiggerSchedule_ShrinksPrepaid(t *testing.T) {
	records := []installment.PaymentRecord{
		record("p-1", 1, 1, 250), // 100 to #1, 100 to #2, 50 prepaid
	}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 2)), records)
	require.NoError(t, err)
	assertMoney(t, 50, b.Prepaid)

	b, err = installment.Replay(schedule(t, monthlyTerms(120, 2)), records)
	require.NoError(t, err)
	assertMoney(t, 10, b.Prepaid)
	assertMoney(t, 120, b.Allocated(2))
	conserved(t, b, records)
}

func TestReplay_IndexOutsideSchedule_Corrupt(t *testing.T) {
	records := []installment.PaymentRecord{record("p-1", 1, 9, 100)}

	_, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.ErrorIs(t, err, installment.ErrScheduleCorrupt)

	var corrupt *installment.CorruptionError
	require.ErrorAs(t, err, &corrupt)
	assert.Equal(t, 9, corrupt.Index)
}

func TestNewBook_RejectsMisnumberedSchedule(t *testing.T) {
	sched := schedule(t, monthlyTerms(100, 3))
	sched[2].Index = 7

	_, err := installment.NewBook(sched)
	assert.ErrorIs(t, err, installment.ErrScheduleCorrupt)
}

// =============================================================================
// CASCADE TESTS
// =============================================================================

func TestCascade_FillsInOrderAndStopsAtBound(t *testing.T) {
	b, err := installment.NewBook(schedule(t, monthlyTerms(100, 3)))
	require.NoError(t, err)

	res, err := b.Cascade("p-1", money(1000), 1)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, res.Covered)
	assert.LessOrEqual(t, res.Steps, 3, "never more than Period - start + 1 steps")
	assertMoney(t, 700, res.Prepaid)
	assertMoney(t, 700, b.Prepaid)
	require.Len(t, res.Allocations, 3)
	for _, a := range res.Allocations {
		assert.Equal(t, installment.SourceCascade, a.Source)
		assertMoney(t, 100, a.Amount)
	}
}

func TestCascade_SkipsCoveredInstallments(t *testing.T) {
	records := []installment.PaymentRecord{record("p-1", 1, 2, 100)}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)

	res, err := b.Cascade("p-2", money(150), 1)
	require.NoError(t, err)

	require.Len(t, res.Allocations, 2)
	assert.Equal(t, 1, res.Allocations[0].InstallmentIndex)
	assert.Equal(t, 3, res.Allocations[1].InstallmentIndex)
	assertMoney(t, 50, res.Allocations[1].Amount)
	assert.Equal(t, []int{1}, res.Covered)
	assert.True(t, res.Prepaid.IsZero())
}

func TestCascade_NothingOpen_AllPrepaid(t *testing.T) {
	records := []installment.PaymentRecord{record("p-1", 1, 1, 300)}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), records)
	require.NoError(t, err)

	res, err := b.Cascade("p-2", money(25), 1)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Steps)
	assertMoney(t, 25, res.Prepaid)
}

// =============================================================================
// CLASSIFIER TESTS
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		prior      []installment.PaymentRecord
		amount     int64
		wantIndex  int
		wantStatus installment.PaymentStatus
		wantType   installment.PaymentType
		remaining  int64
		excess     int64
		cascade    bool
		linked     installment.PaymentID
	}{
		{
			name:       "exact payment",
			amount:     100,
			wantIndex:  1,
			wantStatus: installment.StatusPaid,
			wantType:   installment.PaymentMonthly,
		},
		{
			name:       "short payment",
			amount:     60,
			wantIndex:  1,
			wantStatus: installment.StatusUnderpaid,
			wantType:   installment.PaymentMonthly,
			remaining:  40,
		},
		{
			name:       "over payment asks for cascade",
			amount:     150,
			wantIndex:  1,
			wantStatus: installment.StatusOverpaid,
			wantType:   installment.PaymentMonthly,
			excess:     50,
			cascade:    true,
		},
		{
			name:       "supplemental closes earlier shortfall first",
			prior:      []installment.PaymentRecord{record("p-1", 1, 1, 60)},
			amount:     40,
			wantIndex:  1,
			wantStatus: installment.StatusPaid,
			wantType:   installment.PaymentExtra,
			linked:     "p-1",
		},
		{
			name:       "supplemental larger than shortfall",
			prior:      []installment.PaymentRecord{record("p-1", 1, 1, 60)},
			amount:     100,
			wantIndex:  1,
			wantStatus: installment.StatusOverpaid,
			wantType:   installment.PaymentExtra,
			excess:     60,
			cascade:    true,
			linked:     "p-1",
		},
		{
			name:       "next installment after paid one",
			prior:      []installment.PaymentRecord{record("p-1", 1, 1, 100)},
			amount:     100,
			wantIndex:  2,
			wantStatus: installment.StatusPaid,
			wantType:   installment.PaymentMonthly,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), tt.prior)
			require.NoError(t, err)

			cls, err := installment.Classify(b, money(tt.amount), date(2024, time.March, 1))
			require.NoError(t, err)

			rec := cls.Record
			assert.Equal(t, tt.wantIndex, rec.InstallmentIndex)
			assert.Equal(t, tt.wantStatus, rec.Status)
			assert.Equal(t, tt.wantType, rec.PaymentType)
			assertMoney(t, tt.remaining, rec.RemainingAmount, "remaining")
			assertMoney(t, tt.excess, rec.ExcessAmount, "excess")
			assert.Equal(t, tt.linked, rec.LinkedPaymentID)
			assert.Equal(t, tt.cascade, cls.Cascade != nil)
			if cls.Cascade != nil {
				assertMoney(t, tt.excess, cls.Cascade.ExcessAmount)
				assert.Equal(t, tt.wantIndex, cls.Cascade.FromInstallmentIndex)
			}
			if tt.linked != "" {
				require.NotNil(t, cls.Original)
				assert.Equal(t, installment.StatusPaid, cls.Original.Status)
				assert.True(t, cls.Original.RemainingAmount.IsZero())
			}
		})
	}
}

func TestClassify_InstallmentPartlyCoveredByCascade(t *testing.T) {
	// GIVEN: Installment 3 already holds 50 cascaded from an overpayment
	// WHEN: Classifying a payment of 80, below the installment's 100
	// THEN: It is PAID and the 30 it carries past the installment still cascades

	prior := []installment.PaymentRecord{
		record("p-1", 1, 1, 100),
		record("p-2", 2, 2, 150),
	}
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), prior)
	require.NoError(t, err)

	cls, err := installment.Classify(b, money(80), date(2024, time.April, 1))
	require.NoError(t, err)
	assert.Equal(t, 3, cls.Record.InstallmentIndex)
	assert.Equal(t, installment.StatusPaid, cls.Record.Status)
	assert.True(t, cls.Record.ExcessAmount.IsZero())
	require.NotNil(t, cls.Cascade)
	assertMoney(t, 30, cls.Cascade.ExcessAmount)
	assert.Equal(t, 3, cls.Cascade.FromInstallmentIndex)
}

func TestClassify_InitialPaymentFirst(t *testing.T) {
	terms := monthlyTerms(100, 3)
	terms.InitialPayment = money(500)
	terms.TotalPrice = money(800)
	b, err := installment.NewBook(schedule(t, terms))
	require.NoError(t, err)

	cls, err := installment.Classify(b, money(500), date(2024, time.January, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, cls.Record.InstallmentIndex)
	assert.Equal(t, installment.PaymentInitial, cls.Record.PaymentType)
	assert.Equal(t, installment.StatusPaid, cls.Record.Status)
}

func TestClassify_Settled(t *testing.T) {
	b, err := installment.Replay(schedule(t, monthlyTerms(100, 3)), []installment.PaymentRecord{record("p-1", 1, 1, 300)})
	require.NoError(t, err)

	_, err = installment.Classify(b, money(10), date(2024, time.March, 1))
	assert.ErrorIs(t, err, installment.ErrContractAlreadySettled)
}

func TestClassify_InvalidInput(t *testing.T) {
	b, err := installment.NewBook(schedule(t, monthlyTerms(100, 3)))
	require.NoError(t, err)

	_, err = installment.Classify(b, decimal.Zero, date(2024, time.March, 1))
	assert.ErrorIs(t, err, installment.ErrInvalidInput)

	_, err = installment.Classify(b, money(-5), date(2024, time.March, 1))
	assert.ErrorIs(t, err, installment.ErrInvalidInput)

	_, err = installment.Classify(b, money(5), installment.TimePoint{})
	assert.ErrorIs(t, err, installment.ErrInvalidInput)
}
