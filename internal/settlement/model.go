// Package settlement splits shared expenses across people and currencies and
// reduces the resulting balances to a short list of pairwise transfers.
//
// Everything in this package is pure: callers pass every input explicitly and
// get a fresh Result back. Nothing is cached between calls.
package settlement

// SettlementEpsilon is the tolerance below which a balance or a remaining
// amount is treated as settled. It applies when classifying creditors and
// debtors, when deciding whether to emit a transfer, and when advancing the
// greedy sweep.
const SettlementEpsilon = 0.01

// Person is a participant in a settlement run.
type Person struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Expense is a single payment made by one person on behalf of a set of people.
type Expense struct {
	ID             string   `json:"id"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency"`
	PayerID        string   `json:"payer_id"`
	ParticipantIDs []string `json:"participant_ids"`
	Description    string   `json:"description,omitempty"`
}

// Transfer is one payment that must happen to settle up: From pays To.
type Transfer struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
}

// Balance is the net position of one person in the base currency.
// Positive means the person is owed money, negative means they owe.
type Balance struct {
	PersonID string  `json:"person_id"`
	Amount   float64 `json:"amount"`
}

// Balances keeps the order of the people it was computed from.
type Balances []Balance

// Of returns the balance of id, or 0 when id is unknown.
func (b Balances) Of(id string) float64 {
	for _, bal := range b {
		if bal.PersonID == id {
			return bal.Amount
		}
	}
	return 0
}

// Sum adds up every balance. For a valid run it is zero up to rounding.
func (b Balances) Sum() float64 {
	var sum float64
	for _, bal := range b {
		sum += bal.Amount
	}
	return sum
}

// Map returns the balances keyed by person ID.
func (b Balances) Map() map[string]float64 {
	out := make(map[string]float64, len(b))
	for _, bal := range b {
		out[bal.PersonID] = bal.Amount
	}
	return out
}

// Result is everything a settlement run produces.
type Result struct {
	BaseCurrency string     `json:"base_currency"`
	Balances     Balances   `json:"balances"`
	Transfers    []Transfer `json:"settlements"`
	// Total is the sum of every expense converted to the base currency.
	Total float64 `json:"total"`
}
