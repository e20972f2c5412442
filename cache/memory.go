package cache

import (
	"context"
	"sync"

	"github.com/warp/installment-engine/installment"
)

// Memory is a process-local schedule cache.
type Memory struct {
	mu   sync.RWMutex
	data map[installment.ContractID][]installment.ScheduleLine
}

func NewMemory() *Memory {
	return &Memory{data: make(map[installment.ContractID][]installment.ScheduleLine)}
}

func (m *Memory) Get(_ context.Context, id installment.ContractID) ([]installment.ScheduleLine, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	lines, ok := m.data[id]
	if !ok {
		return nil, false
	}
	return append([]installment.ScheduleLine(nil), lines...), true
}

func (m *Memory) Set(_ context.Context, id installment.ContractID, lines []installment.ScheduleLine) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[id] = append([]installment.ScheduleLine(nil), lines...)
	return nil
}

func (m *Memory) Invalidate(_ context.Context, id installment.ContractID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, id)
	return nil
}

// Len is the number of cached contracts.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
