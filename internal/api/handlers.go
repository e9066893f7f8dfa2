package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/mmynk/splitledger/internal/middleware"
	"github.com/mmynk/splitledger/internal/models"
	"github.com/mmynk/splitledger/internal/service"
)

type expenseRequest struct {
	GroupID      string                     `json:"group_id"`
	Description  string                     `json:"description"`
	Amount       decimal.Decimal            `json:"amount"`
	Currency     string                     `json:"currency"`
	PayerID      string                     `json:"payer_id"`
	SplitMethod  string                     `json:"split_method"`
	Participants []string                   `json:"participants"`
	SplitInputs  map[string]decimal.Decimal `json:"split_inputs,omitempty"`
}

func (req expenseRequest) toInput() service.ExpenseInput {
	return service.ExpenseInput{
		GroupID:      req.GroupID,
		Description:  req.Description,
		Amount:       req.Amount,
		Currency:     req.Currency,
		PayerID:      req.PayerID,
		SplitMethod:  models.SplitMethod(req.SplitMethod),
		Participants: req.Participants,
		SplitInputs:  req.SplitInputs,
	}
}

func (s *Server) createExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	expense, err := s.expenses.Create(r.Context(), middleware.GetUserID(r.Context()), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, expense)
}

func (s *Server) getExpense(w http.ResponseWriter, r *http.Request) {
	expense, err := s.expenses.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) updateExpense(w http.ResponseWriter, r *http.Request) {
	var req expenseRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	expense, err := s.expenses.Update(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"), req.toInput())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, expense)
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	if err := s.expenses.Delete(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type settlementRequest struct {
	GroupID  string          `json:"group_id,omitempty"`
	ToUserID string          `json:"to_user_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Note     string          `json:"note,omitempty"`
}

func (s *Server) createSettlement(w http.ResponseWriter, r *http.Request) {
	var req settlementRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	settlement, err := s.settlements.Create(r.Context(), middleware.GetUserID(r.Context()), service.SettlementInput{
		GroupID:  req.GroupID,
		ToUserID: req.ToUserID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Note:     req.Note,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, settlement)
}

func (s *Server) confirmSettlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := s.settlements.Confirm(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

func (s *Server) rejectSettlement(w http.ResponseWriter, r *http.Request) {
	settlement, err := s.settlements.Reject(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

func (s *Server) cancelSettlement(w http.ResponseWriter, r *http.Request) {
	if err := s.settlements.Cancel(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type groupRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	group, err := s.groups.Create(r.Context(), middleware.GetUserID(r.Context()), req.Name, req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.groups.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) addGroupMembers(w http.ResponseWriter, r *http.Request) {
	var req groupRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	group, err := s.groups.AddMembers(r.Context(), middleware.GetUserID(r.Context()), r.PathValue("id"), req.Members)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) groupBalances(w http.ResponseWriter, r *http.Request) {
	summary, err := s.balances.GroupBalances(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) userBalances(w http.ResponseWriter, r *http.Request) {
	summary, err := s.balances.UserBalances(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) groupActivities(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, fmt.Errorf("invalid limit %q", raw))
			return
		}
		limit = parsed
	}
	activities, err := s.store.ListActivities(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, activities)
}
