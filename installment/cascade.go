package installment

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CascadeInstruction asks the resolver to carry ExcessAmount past
// FromInstallmentIndex.
type CascadeInstruction struct {
	ExcessAmount         decimal.Decimal
	FromInstallmentIndex int
}

// CascadeResult describes what one cascade did.
type CascadeResult struct {
	Allocations []Allocation
	Covered     []int           // Installments this cascade closed
	Prepaid     decimal.Decimal // Leftover added to the prepaid balance
	Steps       int
}

// Cascade carries excess forward from startIndex, filling open installments
// in ascending order. Whatever is left when no installment remains open is
// added to the prepaid balance, never dropped.
func (b *Book) Cascade(id PaymentID, excess decimal.Decimal, startIndex int) (CascadeResult, error) {
	return b.cascade(id, excess, startIndex, SourceCascade)
}

// cascade is a loop, not recursion: at most len(Schedule)-startIndex steps,
// i.e. Period-startIndex+1.
func (b *Book) cascade(id PaymentID, excess decimal.Decimal, startIndex int, source AllocationSource) (CascadeResult, error) {
	var res CascadeResult
	if !excess.IsPositive() {
		return res, nil
	}
	if len(b.allocated) != len(b.Schedule) {
		return res, &CorruptionError{Index: startIndex, Detail: "allocation state does not match schedule"}
	}

	bound := len(b.Schedule) - startIndex
	i := startIndex
	for excess.IsPositive() {
		next := b.NextOpen(i)
		if next < 0 {
			break
		}
		res.Steps++
		if res.Steps > bound || next < i {
			return CascadeResult{}, &CorruptionError{
				Index:  next,
				Detail: fmt.Sprintf("cascade from %d exceeded %d steps", startIndex, bound),
			}
		}

		take := minMoney(excess, b.Owed(next))
		b.allocate(id, next, take, source)
		res.Allocations = append(res.Allocations, b.Allocations[len(b.Allocations)-1])
		excess = excess.Sub(take)
		if !b.Owed(next).IsPositive() {
			res.Covered = append(res.Covered, next)
		}
		i = next + 1
	}

	if excess.IsPositive() {
		b.Prepaid = b.Prepaid.Add(excess)
		res.Prepaid = excess
	}
	return res, nil
}
