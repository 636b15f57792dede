package api

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/susu3304/warikanbot/internal/currency"
	"github.com/susu3304/warikanbot/internal/settlement"
	"github.com/susu3304/warikanbot/internal/warikan"
)

func generateRandomString(length int) string {
	b := make([]byte, length)
	_, _ = rand.Read(b)
	encoded := base64.RawURLEncoding.EncodeToString(b)
	return encoded[:length]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error     string `json:"error"`
	ExpenseID string `json:"expense_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeServiceError maps service and engine errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var verr *settlement.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: verr.Error(), ExpenseID: verr.ExpenseID})
	case errors.Is(err, warikan.ErrGroupNotFound),
		errors.Is(err, warikan.ErrNoActiveGroup),
		errors.Is(err, warikan.ErrExpenseNotFound),
		errors.Is(err, warikan.ErrTaskNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, warikan.ErrGroupClosed),
		errors.Is(err, warikan.ErrChannelBusy):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, warikan.ErrInvalidExpense),
		errors.Is(err, warikan.ErrInvalidAmount),
		errors.Is(err, warikan.ErrInvalidRate),
		errors.Is(err, warikan.ErrInvalidMember),
		errors.Is(err, warikan.ErrNotEnoughMembers),
		errors.Is(err, currency.ErrInvalidCode):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
