package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/installment-engine/installment"
	"github.com/warp/installment-engine/installment/store"
)

func seeded(t *testing.T) *store.Memory {
	m := store.NewMemory()
	require.NoError(t, m.CreateContract(context.Background(), installment.Contract{ID: "c-1"}))
	return m
}

func rec(id installment.PaymentID, seq int64) installment.PaymentRecord {
	return installment.PaymentRecord{
		ID:     id,
		Seq:    seq,
		Amount: decimal.NewFromInt(100),
		Status: installment.StatusPaid,
		Date:   installment.NewTimePoint(2024, time.February, 1),
	}
}

func TestMemory_CreateContract_Duplicate(t *testing.T) {
	m := seeded(t)

	err := m.CreateContract(context.Background(), installment.Contract{ID: "c-1"})
	assert.ErrorIs(t, err, installment.ErrDuplicateContract)
}

func TestMemory_Commit_VersionCheck(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	require.NoError(t, m.Commit(ctx, installment.Commit{ContractID: "c-1", ExpectedVersion: 1}))

	err := m.Commit(ctx, installment.Commit{ContractID: "c-1", ExpectedVersion: 1})
	assert.ErrorIs(t, err, installment.ErrConcurrentModification)
	assert.True(t, installment.IsRetryable(err))

	c, err := m.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), c.Version)
}

func TestMemory_Commit_AllOrNothing(t *testing.T) {
	// GIVEN: A commit with a valid new payment and an update of a missing one
	// WHEN: Committing
	// THEN: Nothing is applied

	m := seeded(t)
	ctx := context.Background()

	err := m.Commit(ctx, installment.Commit{
		ContractID:      "c-1",
		ExpectedVersion: 1,
		PrepaidBalance:  decimal.NewFromInt(10),
		NewPayments:     []installment.PaymentRecord{rec("p-1", 1)},
		UpdatedPayments: []installment.PaymentRecord{rec("ghost", 5)},
	})
	assert.ErrorIs(t, err, installment.ErrPaymentNotFound)

	payments, err := m.LoadPayments(ctx, "c-1")
	require.NoError(t, err)
	assert.Empty(t, payments)

	c, err := m.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), c.Version)
	assert.True(t, c.PrepaidBalance.IsZero())
}

func TestMemory_Commit_OnlyMutableFieldsUpdated(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	require.NoError(t, m.Commit(ctx, installment.Commit{
		ContractID: "c-1", ExpectedVersion: 1, NewPayments: []installment.PaymentRecord{rec("p-1", 1)},
	}))

	update := rec("p-1", 1)
	update.Amount = decimal.NewFromInt(1)
	update.InstallmentIndex = 7
	update.Status = installment.StatusUnderpaid
	update.RemainingAmount = decimal.NewFromInt(20)
	require.NoError(t, m.Commit(ctx, installment.Commit{
		ContractID: "c-1", ExpectedVersion: 2, UpdatedPayments: []installment.PaymentRecord{update},
	}))

	payments, err := m.LoadPayments(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, payments, 1)
	assert.Equal(t, installment.StatusUnderpaid, payments[0].Status)
	assert.True(t, payments[0].RemainingAmount.Equal(decimal.NewFromInt(20)))
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(100)))
	assert.Equal(t, 0, payments[0].InstallmentIndex)
}

func TestMemory_Commit_EventPositionMustAppend(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()

	ev := installment.ContractEditEvent{Position: 1, EditedBy: "admin"}
	err := m.Commit(ctx, installment.Commit{ContractID: "c-1", ExpectedVersion: 1, Event: &ev})
	assert.ErrorIs(t, err, installment.ErrConcurrentModification)

	ev.Position = 0
	require.NoError(t, m.Commit(ctx, installment.Commit{ContractID: "c-1", ExpectedVersion: 1, Event: &ev}))

	c, err := m.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	require.Len(t, c.EditHistory, 1)

	// Callers get copies: mutating them never reaches stored history.
	c.EditHistory[0].EditedBy = "mallory"
	again, err := m.LoadContract(ctx, "c-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", again.EditHistory[0].EditedBy)
}

func TestMemory_Reset(t *testing.T) {
	m := seeded(t)
	ctx := context.Background()
	require.NoError(t, m.Reset(ctx))

	_, err := m.LoadContract(ctx, "c-1")
	assert.ErrorIs(t, err, installment.ErrContractNotFound)
}
