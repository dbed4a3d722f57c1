// Package operator exposes a node's coordinator over HTTP: a
// read-only inspection endpoint and a transfer action endpoint, the
// supplemented surface named but left unbuilt by spec §6. It mirrors
// the shape of registry.HTTPServer — stdlib net/http and
// encoding/json, since this is an outward-facing debug/control plane
// rather than a peer-protocol concern.
package operator

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/lamportchain/ledgerd/internal/coordinator"
	"github.com/lamportchain/ledgerd/internal/ledger"
	"github.com/lamportchain/ledgerd/internal/logging"
	"github.com/lamportchain/ledgerd/internal/registry"
	"github.com/lamportchain/ledgerd/internal/types"
)

// Server serves a single node's inspection and transfer endpoints.
type Server struct {
	coord *coordinator.Coordinator
	reg   registry.Registry
	log   logging.Logger
	mux   *http.ServeMux
}

// New wires a Server for coord, reading balances from reg for the
// status endpoint.
func New(coord *coordinator.Coordinator, reg registry.Registry, log logging.Logger) *Server {
	s := &Server{coord: coord, reg: reg, log: log, mux: http.NewServeMux()}
	s.mux.HandleFunc("/status", s.handleStatus)
	s.mux.HandleFunc("/transfer", s.handleTransfer)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

type statusResponse struct {
	NodeID     types.NodeID           `json:"node_id"`
	Clock      types.LamportTime      `json:"clock"`
	State      string                 `json:"state"`
	Balance    uint64                 `json:"balance"`
	Peers      []types.NodeID         `json:"peers"`
	Queue      []types.PendingRequest `json:"queue_snapshot"`
	LedgerHead ledger.Block           `json:"ledger_head"`
	Length     int                    `json:"ledger_length"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	st := s.coord.Status()
	bal, err := s.reg.Balance(r.Context(), st.NodeID)
	if err != nil {
		s.log.Warnf("operator: balance lookup for node %d failed: %v", st.NodeID, err)
	}

	resp := statusResponse{
		NodeID:     st.NodeID,
		Clock:      st.Clock,
		State:      st.State.String(),
		Balance:    bal,
		Peers:      st.Peers,
		Queue:      st.Queue,
		LedgerHead: st.LedgerHead,
		Length:     st.Length,
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Errorf("operator: encode status response: %v", err)
	}
}

type transferRequest struct {
	Dst    types.NodeID `json:"dst"`
	Amount uint64       `json:"amount"`
}

type transferResponse struct {
	Committed bool   `json:"committed"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req transferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}

	result := awaitTransfer(r.Context(), s.coord, req.Dst, req.Amount)

	resp := transferResponse{Committed: result.Committed}
	if result.Err != nil {
		resp.Error = result.Err.Error()
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Errorf("operator: encode transfer response: %v", err)
	}
}

func awaitTransfer(ctx context.Context, coord *coordinator.Coordinator, dst types.NodeID, amount uint64) coordinator.TransferResult {
	ch := coord.Transfer(dst, amount)
	select {
	case res := <-ch:
		return res
	case <-ctx.Done():
		return coordinator.TransferResult{Err: ctx.Err()}
	}
}
