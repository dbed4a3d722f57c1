package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/lamportchain/ledgerd/internal/coordinator"
	"github.com/lamportchain/ledgerd/internal/directory"
	"github.com/lamportchain/ledgerd/internal/logging"
	"github.com/lamportchain/ledgerd/internal/registry"
	"github.com/lamportchain/ledgerd/internal/transport"
	"github.com/lamportchain/ledgerd/internal/types"
)

func newTestServer(t *testing.T) (*Server, *registry.InMemory, types.NodeID, func()) {
	t.Helper()
	reg := registry.NewInMemory()
	bus := transport.NewBus()

	selfRes, err := reg.Register(context.Background(), directory.Endpoint("self"))
	if err != nil {
		t.Fatalf("register self: %v", err)
	}
	peerRes, err := reg.Register(context.Background(), directory.Endpoint("peer"))
	if err != nil {
		t.Fatalf("register peer: %v", err)
	}
	reg.SetBalance(selfRes.NodeID, 100)
	reg.SetBalance(peerRes.NodeID, 100)

	members := map[types.NodeID]directory.Endpoint{
		selfRes.NodeID: "self",
		peerRes.NodeID: "peer",
	}
	dir := directory.New(selfRes.NodeID, members)
	peerDir := directory.New(peerRes.NodeID, members)

	selfTrans := transport.NewMemoryTransport(bus, selfRes.NodeID)
	peerTrans := transport.NewMemoryTransport(bus, peerRes.NodeID)
	log := logging.NewDefaultLogger("test")

	coord := coordinator.New(selfRes.NodeID, dir, reg, selfTrans, log)
	peerCoord := coordinator.New(peerRes.NodeID, peerDir, reg, peerTrans, log)

	ctx, cancel := context.WithCancel(context.Background())
	go coord.Run(ctx)
	go peerCoord.Run(ctx)

	srv := New(coord, reg, log)
	return srv, reg, peerRes.NodeID, func() {
		coord.Stop()
		peerCoord.Stop()
		cancel()
	}
}

func TestStatusEndpointReportsBalanceAndPeers(t *testing.T) {
	srv, _, _, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("GET", "/status", nil)
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp statusResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Balance != 100 {
		t.Fatalf("expected balance 100, got %d", resp.Balance)
	}
	if len(resp.Peers) != 1 {
		t.Fatalf("expected 1 peer, got %d", len(resp.Peers))
	}
}

func TestTransferEndpointCommitsAndUpdatesLedger(t *testing.T) {
	srv, _, peerID, cleanup := newTestServer(t)
	defer cleanup()

	body, _ := json.Marshal(transferRequest{Dst: peerID, Amount: 10})
	req := httptest.NewRequest("POST", "/transfer", bytes.NewReader(body))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var resp transferResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Committed {
		t.Fatalf("expected committed transfer, got %+v", resp)
	}

	time.Sleep(100 * time.Millisecond)

	if srv.coord.Ledger().Length() != 2 {
		t.Fatalf("expected ledger length 2, got %d", srv.coord.Ledger().Length())
	}
}

func TestTransferEndpointRejectsMalformedBody(t *testing.T) {
	srv, _, _, cleanup := newTestServer(t)
	defer cleanup()

	req := httptest.NewRequest("POST", "/transfer", bytes.NewReader([]byte("not json")))
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)

	if w.Code != 400 {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}
