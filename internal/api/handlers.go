package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/susu3304/warikanbot/internal/export"
	"github.com/susu3304/warikanbot/internal/metrics"
	"github.com/susu3304/warikanbot/internal/settlement"
	"github.com/susu3304/warikanbot/internal/warikan"
)

type createGroupRequest struct {
	Name         string `json:"name" validate:"max=100"`
	ChannelID    string `json:"channel_id" validate:"omitempty,numeric"`
	BaseCurrency string `json:"base_currency" validate:"omitempty,len=3,alpha"`
}

type addMemberRequest struct {
	ID   string `json:"id" validate:"required,max=64"`
	Name string `json:"name" validate:"max=100"`
}

type addExpenseRequest struct {
	PayerID        string   `json:"payer_id" validate:"required"`
	PayerName      string   `json:"payer_name"`
	Amount         float64  `json:"amount" validate:"gt=0"`
	Currency       string   `json:"currency" validate:"omitempty,len=3,alpha"`
	Description    string   `json:"description" validate:"max=200"`
	ParticipantIDs []string `json:"participant_ids" validate:"dive,required"`
}

type setRateRequest struct {
	Rate float64 `json:"rate" validate:"gt=0"`
}

type setBaseCurrencyRequest struct {
	Currency string `json:"currency" validate:"required,len=3,alpha"`
}

type completeTaskRequest struct {
	OtherID string `json:"other_id" validate:"required"`
}

type recordPaymentRequest struct {
	PayeeID string  `json:"payee_id" validate:"required"`
	Amount  float64 `json:"amount" validate:"gt=0"`
}

type groupResponse struct {
	warikan.Group
	Members  []settlement.Person  `json:"members"`
	Expenses []settlement.Expense `json:"expenses"`
	Rates    settlement.Rates     `json:"rates"`
}

// decode reads a JSON body into v and runs struct validation on it.
func (a *API) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	if err := a.validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (a *API) userHasGuildAccess(r *http.Request, guildID string) bool {
	claims := claimsFrom(r.Context())
	if claims == nil {
		return false
	}
	guilds, err := a.discord.Guilds(r.Context(), claims.AccessToken)
	if err != nil {
		a.logger.Warn("failed to get user guilds", zap.Error(err))
		return false
	}
	for _, g := range guilds {
		if g.ID == guildID {
			return true
		}
	}
	return false
}

// authorizedGroup loads the group named in the path and checks that the
// caller is a member of its guild. It writes the error response itself.
func (a *API) authorizedGroup(w http.ResponseWriter, r *http.Request) (*warikan.Group, bool) {
	g, err := a.svc.Group(r.Context(), mux.Vars(r)["group_id"])
	if err != nil {
		writeServiceError(w, err)
		return nil, false
	}
	if !a.userHasGuildAccess(r, g.GuildID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return nil, false
	}
	return g, true
}

func (a *API) handleUserGuilds(w http.ResponseWriter, r *http.Request) {
	claims := claimsFrom(r.Context())
	guilds, err := a.discord.Guilds(r.Context(), claims.AccessToken)
	if err != nil {
		writeError(w, http.StatusBadGateway, fmt.Sprintf("failed to get guilds: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, guilds)
}

func (a *API) handleListGroups(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild_id"]
	if !a.userHasGuildAccess(r, guildID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	groups, err := a.svc.Groups(r.Context(), guildID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if groups == nil {
		groups = []warikan.Group{}
	}
	writeJSON(w, http.StatusOK, groups)
}

func (a *API) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild_id"]
	if !a.userHasGuildAccess(r, guildID) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	var req createGroupRequest
	if !a.decode(w, r, &req) {
		return
	}
	claims := claimsFrom(r.Context())
	g, started, err := a.svc.StartGroup(r.Context(), warikan.StartInput{
		GuildID:      guildID,
		ChannelID:    req.ChannelID,
		OrganizerID:  claims.UserID,
		Name:         req.Name,
		BaseCurrency: req.BaseCurrency,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if !started {
		writeError(w, http.StatusConflict, warikan.ErrChannelBusy.Error())
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (a *API) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	if _, ok := a.authorizedGroup(w, r); !ok {
		return
	}
	snap, err := a.svc.Snapshot(r.Context(), mux.Vars(r)["group_id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	resp := groupResponse{Group: snap.Group, Members: snap.Members, Expenses: snap.Expenses, Rates: snap.Rates}
	if resp.Members == nil {
		resp.Members = []settlement.Person{}
	}
	if resp.Expenses == nil {
		resp.Expenses = []settlement.Expense{}
	}
	if resp.Rates == nil {
		resp.Rates = settlement.Rates{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCloseGroup(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	if err := a.svc.StopGroup(r.Context(), g.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleAddMember(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	var req addMemberRequest
	if !a.decode(w, r, &req) {
		return
	}
	added, err := a.svc.Join(r.Context(), g.ID, settlement.Person{ID: req.ID, Name: req.Name})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	writeJSON(w, status, map[string]any{"id": req.ID, "added": added})
}

func (a *API) handleAddExpense(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	var req addExpenseRequest
	if !a.decode(w, r, &req) {
		return
	}
	receipt, err := a.svc.AddExpense(r.Context(), g.ID, warikan.ExpenseInput{
		PayerID:        req.PayerID,
		PayerName:      req.PayerName,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Description:    req.Description,
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	joined := receipt.Joined
	if joined == nil {
		joined = []string{}
	}
	writeJSON(w, http.StatusCreated, map[string]any{"expense": receipt.Expense, "joined": joined})
}

func (a *API) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	if err := a.svc.RemoveExpense(r.Context(), g.ID, mux.Vars(r)["expense_id"]); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleSetRate(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	var req setRateRequest
	if !a.decode(w, r, &req) {
		return
	}
	code, err := a.svc.SetRate(r.Context(), g.ID, mux.Vars(r)["currency"], req.Rate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currency": code, "rate": req.Rate})
}

func (a *API) handleSetBaseCurrency(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	var req setBaseCurrencyRequest
	if !a.decode(w, r, &req) {
		return
	}
	code, err := a.svc.SetBaseCurrency(r.Context(), g.ID, req.Currency)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"base_currency": code})
}

func (a *API) handlePreviewSettlement(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	res, err := a.svc.Preview(r.Context(), g.ID, metrics.SourceAPI)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettleResponse(res.Result, res.Names))
}

func (a *API) handlePublicSettlement(w http.ResponseWriter, r *http.Request) {
	res, err := a.svc.Preview(r.Context(), mux.Vars(r)["group_id"], metrics.SourceAPI)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newSettleResponse(res.Result, res.Names))
}

func (a *API) handleSettleGroup(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	res, err := a.svc.Settle(r.Context(), g.ID, metrics.SourceAPI)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"settlement": newSettleResponse(res.Result, res.Names),
		"tasks":      res.Tasks,
	})
}

func (a *API) handleListTasks(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	pending := r.URL.Query().Get("pending") == "true"
	tasks, err := a.svc.Tasks(r.Context(), g.ID, pending)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if tasks == nil {
		tasks = []warikan.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (a *API) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	var req completeTaskRequest
	if !a.decode(w, r, &req) {
		return
	}
	task, err := a.svc.CompleteTask(r.Context(), g.ID, claimsFrom(r.Context()).UserID, req.OtherID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (a *API) handleRecordPayment(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	var req recordPaymentRequest
	if !a.decode(w, r, &req) {
		return
	}
	payer := claimsFrom(r.Context()).UserID
	remaining, err := a.svc.RecordPayment(r.Context(), g.ID, payer, req.PayeeID, req.Amount)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"payer_id":  payer,
		"payee_id":  req.PayeeID,
		"amount":    req.Amount,
		"remaining": remaining,
	})
}

func (a *API) handleStatement(w http.ResponseWriter, r *http.Request) {
	g, ok := a.authorizedGroup(w, r)
	if !ok {
		return
	}
	format := mux.Vars(r)["format"]
	res, err := a.svc.Preview(r.Context(), g.ID, metrics.SourceAPI)
	if err != nil {
		a.metrics.ObserveExport(format, metrics.ResultInvalid)
		writeServiceError(w, err)
		return
	}

	stmt := export.Statement{GroupName: g.Name, Names: res.Names, Result: res.Result, GeneratedAt: a.now()}
	var (
		body        []byte
		contentType string
	)
	switch format {
	case "xlsx":
		body, err = export.BuildSettlementXLSX(stmt)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		body, err = export.BuildSettlementPDF(stmt)
		contentType = "application/pdf"
	}
	if err != nil {
		a.metrics.ObserveExport(format, metrics.ResultError)
		a.logger.Error("statement export failed", zap.String("group_id", g.ID), zap.String("format", format), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to build statement")
		return
	}
	a.metrics.ObserveExport(format, metrics.ResultSuccess)

	filename := fmt.Sprintf("warikan-%s.%s", strings.ReplaceAll(g.ID, "/", "_"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
