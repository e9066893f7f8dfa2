// Package api exposes the core services over a thin JSON facade plus the
// WebSocket endpoint. It carries only the surface the engine needs; user
// registration, friends and notification CRUD live in the outer facade.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/mmynk/splitledger/internal/service"
	"github.com/mmynk/splitledger/internal/simplify"
	"github.com/mmynk/splitledger/internal/storage"
)

// Server routes facade requests to the services.
type Server struct {
	expenses    *service.ExpenseService
	settlements *service.SettlementService
	balances    *service.BalanceService
	groups      *service.GroupService
	store       storage.Store
}

// NewServer creates a Server over the given services.
func NewServer(expenses *service.ExpenseService, settlements *service.SettlementService, balances *service.BalanceService, groups *service.GroupService, store storage.Store) *Server {
	return &Server{
		expenses:    expenses,
		settlements: settlements,
		balances:    balances,
		groups:      groups,
		store:       store,
	}
}

// Routes registers all handlers on the mux. The caller wraps the mux with
// authentication middleware; handlers assume a user ID in the context.
func (s *Server) Routes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/expenses", s.createExpense)
	mux.HandleFunc("GET /api/expenses/{id}", s.getExpense)
	mux.HandleFunc("PUT /api/expenses/{id}", s.updateExpense)
	mux.HandleFunc("DELETE /api/expenses/{id}", s.deleteExpense)

	mux.HandleFunc("POST /api/settlements", s.createSettlement)
	mux.HandleFunc("POST /api/settlements/{id}/confirm", s.confirmSettlement)
	mux.HandleFunc("POST /api/settlements/{id}/reject", s.rejectSettlement)
	mux.HandleFunc("DELETE /api/settlements/{id}", s.cancelSettlement)

	mux.HandleFunc("POST /api/groups", s.createGroup)
	mux.HandleFunc("GET /api/groups/{id}", s.getGroup)
	mux.HandleFunc("POST /api/groups/{id}/members", s.addGroupMembers)
	mux.HandleFunc("GET /api/groups/{id}/balances", s.groupBalances)
	mux.HandleFunc("GET /api/groups/{id}/activities", s.groupActivities)

	mux.HandleFunc("GET /api/balances", s.userBalances)
}

// writeJSON renders a response body with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			slog.Error("Failed to encode response", "error", err)
		}
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusBadRequest
	switch {
	case errors.Is(err, storage.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, storage.ErrInvalidTransition):
		status = http.StatusConflict
	case errors.Is(err, service.ErrNotAllowed):
		status = http.StatusForbidden
	case errors.Is(err, storage.ErrUnavailable), errors.Is(err, simplify.ErrImbalanced):
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// decode parses a JSON request body.
func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
