package api

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/susu3304/warikanbot/internal/currency"
	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/settlement"
)

type settleRequest struct {
	BaseCurrency string             `json:"base_currency" validate:"required,len=3,alpha"`
	Rates        map[string]float64 `json:"rates"`
	People       []personRequest    `json:"people" validate:"required,min=1,dive"`
	Expenses     []expenseRequest   `json:"expenses" validate:"dive"`
}

type personRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name"`
}

type expenseRequest struct {
	ID             string   `json:"id" validate:"required"`
	Amount         float64  `json:"amount"`
	Currency       string   `json:"currency" validate:"required,len=3,alpha"`
	PayerID        string   `json:"payer_id"`
	ParticipantIDs []string `json:"participant_ids"`
	Description    string   `json:"description"`
}

type balanceResponse struct {
	PersonID string  `json:"person_id"`
	Name     string  `json:"name"`
	Amount   float64 `json:"amount"`
}

type transferResponse struct {
	From     string  `json:"from"`
	FromName string  `json:"from_name"`
	To       string  `json:"to"`
	ToName   string  `json:"to_name"`
	Amount   float64 `json:"amount"`
}

type settleResponse struct {
	BaseCurrency string             `json:"base_currency"`
	Total        float64            `json:"total"`
	PerPerson    float64            `json:"per_person"`
	Balances     []balanceResponse  `json:"balances"`
	Settlements  []transferResponse `json:"settlements"`
}

func newSettleResponse(res settlement.Result, names map[string]string) settleResponse {
	name := func(id string) string {
		if n := names[id]; n != "" {
			return n
		}
		return id
	}
	out := settleResponse{
		BaseCurrency: res.BaseCurrency,
		Total:        res.Total,
		Balances:     make([]balanceResponse, 0, len(res.Balances)),
		Settlements:  make([]transferResponse, 0, len(res.Transfers)),
	}
	if len(res.Balances) > 0 {
		out.PerPerson = settlement.Round2(res.Total / float64(len(res.Balances)))
	}
	for _, b := range res.Balances {
		out.Balances = append(out.Balances, balanceResponse{PersonID: b.PersonID, Name: name(b.PersonID), Amount: b.Amount})
	}
	for _, t := range res.Transfers {
		out.Settlements = append(out.Settlements, transferResponse{
			From: t.From, FromName: name(t.From),
			To: t.To, ToName: name(t.To),
			Amount: t.Amount,
		})
	}
	return out
}

// toEngine normalizes currency codes and converts the request into engine
// inputs. Rates for malformed codes are rejected rather than ignored.
func (req settleRequest) toEngine() ([]settlement.Person, []settlement.Expense, settlement.Rates, string, error) {
	base, err := currency.Normalize(req.BaseCurrency)
	if err != nil {
		return nil, nil, nil, "", err
	}
	rates := make(settlement.Rates, len(req.Rates))
	for code, rate := range req.Rates {
		norm, err := currency.Normalize(code)
		if err != nil {
			return nil, nil, nil, "", err
		}
		rates[norm] = rate
	}
	people := make([]settlement.Person, 0, len(req.People))
	for _, p := range req.People {
		people = append(people, settlement.Person{ID: p.ID, Name: p.Name})
	}
	expenses := make([]settlement.Expense, 0, len(req.Expenses))
	for _, e := range req.Expenses {
		code, err := currency.Normalize(e.Currency)
		if err != nil {
			return nil, nil, nil, "", err
		}
		expenses = append(expenses, settlement.Expense{
			ID:             e.ID,
			Amount:         e.Amount,
			Currency:       code,
			PayerID:        strings.TrimSpace(e.PayerID),
			ParticipantIDs: e.ParticipantIDs,
			Description:    e.Description,
		})
	}
	return people, expenses, rates, base, nil
}

// handleSettle runs a one-off settlement over the request body. Nothing is
// stored.
func (a *API) handleSettle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if !a.decode(w, r, &req) {
		return
	}
	people, expenses, rates, base, err := req.toEngine()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := a.svc.Compute(metrics.SourceAPI, people, expenses, rates, base)
	if err != nil {
		var verr *settlement.ValidationError
		if !errors.As(err, &verr) {
			a.logger.Error("settlement failed", zap.Error(err))
		}
		writeServiceError(w, err)
		return
	}

	names := make(map[string]string, len(people))
	for _, p := range people {
		names[p.ID] = p.Name
	}
	writeJSON(w, http.StatusOK, newSettleResponse(res, names))
}
