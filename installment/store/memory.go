// Package store provides LedgerStore implementations.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/installment-engine/installment"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	contracts map[installment.ContractID]installment.Contract
	payments  map[installment.ContractID][]installment.PaymentRecord
}

func NewMemory() *Memory {
	return &Memory{
		contracts: make(map[installment.ContractID]installment.Contract),
		payments:  make(map[installment.ContractID][]installment.PaymentRecord),
	}
}

func (m *Memory) CreateContract(_ context.Context, c installment.Contract) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.contracts[c.ID]; ok {
		return fmt.Errorf("%w: %s", installment.ErrDuplicateContract, c.ID)
	}
	if c.Version == 0 {
		c.Version = 1
	}
	c.EditHistory = nil
	m.contracts[c.ID] = c
	return nil
}

func (m *Memory) LoadContract(_ context.Context, id installment.ContractID) (installment.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.contracts[id]
	if !ok {
		return installment.Contract{}, fmt.Errorf("%w: %s", installment.ErrContractNotFound, id)
	}
	c.EditHistory = append([]installment.ContractEditEvent(nil), c.EditHistory...)
	return c, nil
}

func (m *Memory) ListContracts(_ context.Context) ([]installment.Contract, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]installment.Contract, 0, len(m.contracts))
	for _, c := range m.contracts {
		c.EditHistory = nil
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func (m *Memory) LoadPayments(_ context.Context, id installment.ContractID) ([]installment.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]installment.PaymentRecord, len(m.payments[id]))
	copy(result, m.payments[id])
	return result, nil
}

// Commit applies the change atomically: it works on a snapshot of the
// contract's state and only swaps it in when every step succeeded.
func (m *Memory) Commit(_ context.Context, c installment.Commit) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	contract, ok := m.contracts[c.ContractID]
	if !ok {
		return fmt.Errorf("%w: %s", installment.ErrContractNotFound, c.ContractID)
	}
	if contract.Version != c.ExpectedVersion {
		return fmt.Errorf("%w: contract %s at version %d, commit expected %d",
			installment.ErrConcurrentModification, c.ContractID, contract.Version, c.ExpectedVersion)
	}

	snapshot := m.snapshot(c.ContractID)

	payments, err := applyPayments(snapshot.payments, c)
	if err != nil {
		return err
	}
	contract.EditHistory = snapshot.history
	if c.Event != nil {
		if c.Event.Position != len(contract.EditHistory) {
			return fmt.Errorf("%w: edit event position %d, history length %d",
				installment.ErrConcurrentModification, c.Event.Position, len(contract.EditHistory))
		}
		contract.EditHistory = append(contract.EditHistory, *c.Event)
	}
	if c.Terms != nil {
		contract.Terms = *c.Terms
	}
	contract.PrepaidBalance = c.PrepaidBalance
	contract.Version++
	if c.Event != nil {
		contract.UpdatedAt = c.Event.Date
	}

	m.contracts[c.ContractID] = contract
	m.payments[c.ContractID] = payments
	return nil
}

// Reset drops everything. Used by demo scenario loading.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts = make(map[installment.ContractID]installment.Contract)
	m.payments = make(map[installment.ContractID][]installment.PaymentRecord)
	return nil
}

type contractSnapshot struct {
	payments []installment.PaymentRecord
	history  []installment.ContractEditEvent
}

func (m *Memory) snapshot(id installment.ContractID) contractSnapshot {
	return contractSnapshot{
		payments: append([]installment.PaymentRecord(nil), m.payments[id]...),
		history:  append([]installment.ContractEditEvent(nil), m.contracts[id].EditHistory...),
	}
}

// applyPayments updates and appends payments on a private copy. Only the
// mutable fields of existing records are taken from an update.
func applyPayments(payments []installment.PaymentRecord, c installment.Commit) ([]installment.PaymentRecord, error) {
	index := make(map[installment.PaymentID]int, len(payments))
	for i, p := range payments {
		index[p.ID] = i
	}

	for _, u := range c.UpdatedPayments {
		i, ok := index[u.ID]
		if !ok {
			return nil, fmt.Errorf("%w: %s", installment.ErrPaymentNotFound, u.ID)
		}
		p := payments[i]
		p.Status = u.Status
		p.RemainingAmount = u.RemainingAmount
		p.ExcessAmount = u.ExcessAmount
		p.ConfirmedAt = u.ConfirmedAt
		p.ConfirmedBy = u.ConfirmedBy
		payments[i] = p
	}

	for _, n := range c.NewPayments {
		if _, dup := index[n.ID]; dup {
			return nil, fmt.Errorf("payment %s already exists", n.ID)
		}
		n.ContractID = c.ContractID
		index[n.ID] = len(payments)
		payments = append(payments, n)
	}

	sort.SliceStable(payments, func(i, j int) bool { return payments[i].Seq < payments[j].Seq })
	return payments, nil
}
