package directory

import (
	"testing"

	"github.com/lamportchain/ledgerd/internal/types"
)

func TestNewExcludesSelf(t *testing.T) {
	d := New(1, map[types.NodeID]Endpoint{
		1: "self:0",
		2: "peer2:0",
		3: "peer3:0",
	})
	if d.Size() != 2 {
		t.Fatalf("expected 2 peers, got %d", d.Size())
	}
	if _, ok := d.Address(1); ok {
		t.Fatalf("self should not be addressable as a peer")
	}
}

func TestPeersIsSortedAscending(t *testing.T) {
	d := New(1, map[types.NodeID]Endpoint{
		1: "self:0",
		5: "p5:0",
		2: "p2:0",
		4: "p4:0",
	})
	peers := d.Peers()
	for i := 1; i < len(peers); i++ {
		if peers[i-1] >= peers[i] {
			t.Fatalf("peers not sorted ascending: %v", peers)
		}
	}
}

func TestAddressUnknownPeer(t *testing.T) {
	d := New(1, map[types.NodeID]Endpoint{1: "self:0"})
	if _, ok := d.Address(99); ok {
		t.Fatalf("expected unknown peer 99 to be unaddressable")
	}
}
