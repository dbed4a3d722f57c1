package registry

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/lamportchain/ledgerd/internal/directory"
	"github.com/lamportchain/ledgerd/internal/logging"
	"github.com/lamportchain/ledgerd/internal/types"
)

// HTTPServer exposes an InMemory Registry over the north-bound RPC
// shape named in spec §6: register/debit/credit/balance. This is
// explicitly external/out-of-core per spec §1, so it is kept to the
// standard library rather than a routing framework.
type HTTPServer struct {
	registry *InMemory
	log      logging.Logger
}

// NewHTTPServer returns an HTTPServer backed by registry.
func NewHTTPServer(registry *InMemory, log logging.Logger) *HTTPServer {
	return &HTTPServer{registry: registry, log: log}
}

func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/register", s.handleRegister)
	mux.HandleFunc("/debit", s.handleDebit)
	mux.HandleFunc("/credit", s.handleCredit)
	mux.HandleFunc("/balance", s.handleBalance)
	return mux
}

type registerRequest struct {
	Endpoint string `json:"endpoint"`
}

type registerResponse struct {
	NodeID         types.NodeID                        `json:"node_id"`
	InitialBalance uint64                              `json:"initial_balance"`
	Peers          map[types.NodeID]directory.Endpoint `json:"peers"`
}

func (s *HTTPServer) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.registry.Register(r.Context(), directory.Endpoint(req.Endpoint))
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, registerResponse{
		NodeID:         res.NodeID,
		InitialBalance: res.InitialBalance,
		Peers:          res.Peers,
	})
}

type amountRequest struct {
	NodeID types.NodeID `json:"node_id"`
	Amount uint64       `json:"amount"`
}

func (s *HTTPServer) handleDebit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Debit(r.Context(), req.NodeID, req.Amount); err != nil {
		status := http.StatusInternalServerError
		if err == ErrInsufficientFunds {
			status = http.StatusConflict
		}
		s.writeError(w, status, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleCredit(w http.ResponseWriter, r *http.Request) {
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.registry.Credit(r.Context(), req.NodeID, req.Amount); err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type balanceResponse struct {
	Balance uint64 `json:"balance"`
}

func (s *HTTPServer) handleBalance(w http.ResponseWriter, r *http.Request) {
	idStr := r.URL.Query().Get("node_id")
	var raw uint64
	if _, err := fmt.Sscan(idStr, &raw); err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	id := types.NodeID(raw)
	bal, err := s.registry.Balance(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, balanceResponse{Balance: bal})
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Errorf("failed encoding response: %v", err)
	}
}

func (s *HTTPServer) writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
