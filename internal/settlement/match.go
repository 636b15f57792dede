package settlement

import (
	"math"
	"sort"
)

type party struct {
	id     string
	amount float64
}

// MatchTransfers turns balances into transfers using a greedy two-pointer
// sweep over creditors and debtors, each sorted by amount descending. Ties
// keep the order of balances, so the output is deterministic.
//
// The result has at most n-1 transfers where n is the number of people with
// a balance outside ±SettlementEpsilon. It is not guaranteed to be the global
// minimum.
func MatchTransfers(balances Balances) []Transfer {
	var creditors, debtors []party
	for _, b := range balances {
		switch {
		case b.Amount > SettlementEpsilon:
			creditors = append(creditors, party{id: b.PersonID, amount: b.Amount})
		case b.Amount < -SettlementEpsilon:
			debtors = append(debtors, party{id: b.PersonID, amount: -b.Amount})
		}
	}
	sort.SliceStable(creditors, func(i, j int) bool { return creditors[i].amount > creditors[j].amount })
	sort.SliceStable(debtors, func(i, j int) bool { return debtors[i].amount > debtors[j].amount })

	transfers := make([]Transfer, 0)
	i, j := 0, 0
	for i < len(creditors) && j < len(debtors) {
		c := &creditors[i]
		d := &debtors[j]
		amt := math.Min(c.amount, d.amount)
		if amt > SettlementEpsilon {
			transfers = append(transfers, Transfer{From: d.id, To: c.id, Amount: Round2(amt)})
		}
		c.amount -= amt
		d.amount -= amt
		if c.amount < SettlementEpsilon {
			i++
		}
		if d.amount < SettlementEpsilon {
			j++
		}
	}
	return transfers
}
