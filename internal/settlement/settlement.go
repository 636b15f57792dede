package settlement

import (
	"fmt"
	"math"
)

// ValidationError reports an input that cannot be settled. ExpenseID is empty
// when the problem is in the people list.
type ValidationError struct {
	ExpenseID string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.ExpenseID == "" {
		return "invalid input: " + e.Reason
	}
	return fmt.Sprintf("invalid expense %q: %s", e.ExpenseID, e.Reason)
}

// Validate checks that people have unique IDs and that every expense has a
// positive finite amount, a known payer, and a non-empty set of known
// participants.
func Validate(people []Person, expenses []Expense) error {
	known := make(map[string]struct{}, len(people))
	for _, p := range people {
		if p.ID == "" {
			return &ValidationError{Reason: "person with empty id"}
		}
		if _, dup := known[p.ID]; dup {
			return &ValidationError{Reason: fmt.Sprintf("duplicate person %q", p.ID)}
		}
		known[p.ID] = struct{}{}
	}

	for _, e := range expenses {
		if math.IsNaN(e.Amount) || math.IsInf(e.Amount, 0) || e.Amount <= 0 {
			return &ValidationError{ExpenseID: e.ID, Reason: "amount must be a positive number"}
		}
		if _, ok := known[e.PayerID]; !ok {
			return &ValidationError{ExpenseID: e.ID, Reason: fmt.Sprintf("unknown payer %q", e.PayerID)}
		}
		if len(e.ParticipantIDs) == 0 {
			return &ValidationError{ExpenseID: e.ID, Reason: "no participants"}
		}
		seen := make(map[string]struct{}, len(e.ParticipantIDs))
		for _, pid := range e.ParticipantIDs {
			if _, ok := known[pid]; !ok {
				return &ValidationError{ExpenseID: e.ID, Reason: fmt.Sprintf("unknown participant %q", pid)}
			}
			if _, dup := seen[pid]; dup {
				return &ValidationError{ExpenseID: e.ID, Reason: fmt.Sprintf("duplicate participant %q", pid)}
			}
			seen[pid] = struct{}{}
		}
	}
	return nil
}

// Calculate validates the input, computes balances in base and matches them
// into transfers.
func Calculate(people []Person, expenses []Expense, rates Rates, base string) (Result, error) {
	if err := Validate(people, expenses); err != nil {
		return Result{}, err
	}
	balances := ComputeBalances(people, expenses, rates, base)
	return Result{
		BaseCurrency: base,
		Balances:     balances,
		Transfers:    MatchTransfers(balances),
		Total:        Total(expenses, rates, base),
	}, nil
}

// Apply returns balances after every transfer has been paid. A fully settled
// run leaves each balance within ±SettlementEpsilon.
func Apply(balances Balances, transfers []Transfer) Balances {
	out := make(Balances, len(balances))
	copy(out, balances)
	pos := make(map[string]int, len(out))
	for i, b := range out {
		pos[b.PersonID] = i
	}
	for _, t := range transfers {
		if i, ok := pos[t.From]; ok {
			out[i].Amount += t.Amount
		}
		if i, ok := pos[t.To]; ok {
			out[i].Amount -= t.Amount
		}
	}
	return out
}
