package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Allocation is the portion of a payment assigned to one invoice
type Allocation struct {
	Invoice *Invoice
	Amount  decimal.Decimal
}

// Allocate distributes amount over invoices in the order given.
// Each invoice receives min(remaining, balance); walking stops once nothing remains.
// Whatever is left after the last invoice is returned as the remainder.
// Invoices are not modified, and an invoice listed twice is only considered once.
func Allocate(amount decimal.Decimal, invoices []*Invoice) ([]Allocation, decimal.Decimal) {
	if !amount.IsPositive() {
		return nil, decimal.Zero
	}

	remaining := amount
	allocations := make([]Allocation, 0, len(invoices))
	seen := make(map[uuid.UUID]struct{}, len(invoices))

	for _, inv := range invoices {
		if !remaining.IsPositive() {
			break
		}
		if inv == nil {
			continue
		}
		if _, dup := seen[inv.ID]; dup {
			continue
		}
		seen[inv.ID] = struct{}{}

		portion := decimal.Min(remaining, inv.BalanceAmount)
		if !portion.IsPositive() {
			continue
		}
		allocations = append(allocations, Allocation{Invoice: inv, Amount: portion})
		remaining = remaining.Sub(portion)
	}

	return allocations, remaining
}

// TotalAllocated sums the allocated amounts
func TotalAllocated(allocations []Allocation) decimal.Decimal {
	total := decimal.Zero
	for _, a := range allocations {
		total = total.Add(a.Amount)
	}
	return total
}
