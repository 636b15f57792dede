package settlement

// ComputeBalances converts every expense into base and accumulates the net
// balance of each person, in the order people are given.
//
// The payer is credited with the whole converted amount and each participant
// is debited an equal share; a payer listed among the participants pays their
// own share too. Payers or participants that are not in people are skipped.
// Each final balance is rounded to two decimals.
func ComputeBalances(people []Person, expenses []Expense, rates Rates, base string) Balances {
	index := make(map[string]int, len(people))
	raw := make([]float64, 0, len(people))
	ids := make([]string, 0, len(people))
	for _, p := range people {
		if _, dup := index[p.ID]; dup {
			continue
		}
		index[p.ID] = len(raw)
		raw = append(raw, 0)
		ids = append(ids, p.ID)
	}

	for _, e := range expenses {
		if len(e.ParticipantIDs) == 0 {
			continue
		}
		converted := rates.ToBase(e.Amount, e.Currency, base)
		if i, ok := index[e.PayerID]; ok {
			raw[i] += converted
		}
		share := converted / float64(len(e.ParticipantIDs))
		for _, pid := range e.ParticipantIDs {
			if i, ok := index[pid]; ok {
				raw[i] -= share
			}
		}
	}

	out := make(Balances, len(raw))
	for i, v := range raw {
		out[i] = Balance{PersonID: ids[i], Amount: Round2(v)}
	}
	return out
}

// Total returns the sum of all expenses converted into base, rounded to two
// decimals.
func Total(expenses []Expense, rates Rates, base string) float64 {
	var sum float64
	for _, e := range expenses {
		sum += rates.ToBase(e.Amount, e.Currency, base)
	}
	return Round2(sum)
}
