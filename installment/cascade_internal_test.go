package installment

import (
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCascade_StateShapeMismatch_Corrupt(t *testing.T) {
	// GIVEN: A book whose schedule grew behind its back
	// WHEN: Cascading
	// THEN: The cascade refuses instead of indexing past its state

	b, err := NewBook([]Installment{
		{Index: 0, ExpectedAmount: decimal.Zero},
		{Index: 1, ExpectedAmount: decimal.NewFromInt(100)},
	})
	require.NoError(t, err)
	b.Schedule = append(b.Schedule, Installment{Index: 2, ExpectedAmount: decimal.NewFromInt(100)})

	_, err = b.Cascade("p-1", decimal.NewFromInt(50), 1)
	assert.ErrorIs(t, err, ErrScheduleCorrupt)
}

func TestCascade_StepsNeverExceedRemainingInstallments(t *testing.T) {
	for period := 0; period <= 24; period += 6 {
		schedule := make([]Installment, period+1)
		for i := range schedule {
			schedule[i] = Installment{Index: i, ExpectedAmount: decimal.NewFromInt(10)}
		}
		for start := 0; start <= period; start++ {
			b, err := NewBook(schedule)
			require.NoError(t, err)

			res, err := b.Cascade("p-1", decimal.NewFromInt(100000), start)
			require.NoError(t, err)
			assert.LessOrEqual(t, res.Steps, period-start+1)
		}
	}
}

func TestKeyedLocks_SerializesSameKey(t *testing.T) {
	var locks keyedLocks
	var mu sync.Mutex
	inside := 0
	maxInside := 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("c-1")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
	assert.Empty(t, locks.locks, "entries are dropped after release")
}

func TestKeyedLocks_DifferentKeysIndependent(t *testing.T) {
	var locks keyedLocks
	unlockA := locks.lock("c-1")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock("c-2")
		unlock()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on c-2 blocked behind c-1")
	}
}
