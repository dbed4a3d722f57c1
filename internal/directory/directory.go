// Package directory implements the immutable peer directory (C2).
package directory

import (
	"sort"

	"github.com/lamportchain/ledgerd/internal/types"
)

// Endpoint is a reachable network address for a peer node. Its exact
// shape (host:port, a relt group name, ...) is transport-defined.
type Endpoint string

// Directory maps NodeID to Endpoint. It is built once at bootstrap
// from the registry's registration response and never mutated
// afterwards — dynamic membership changes are out of scope.
type Directory struct {
	self  types.NodeID
	peers map[types.NodeID]Endpoint
}

// New returns a Directory for self, with addr as the address of every
// other entry in members (members may or may not include self; if it
// does, the self entry is dropped).
func New(self types.NodeID, members map[types.NodeID]Endpoint) *Directory {
	peers := make(map[types.NodeID]Endpoint, len(members))
	for id, addr := range members {
		if id == self {
			continue
		}
		peers[id] = addr
	}
	return &Directory{self: self, peers: peers}
}

// Self returns the local node's ID.
func (d *Directory) Self() types.NodeID {
	return d.self
}

// Peers returns every known peer ID, excluding self, in ascending
// order. The order is deterministic so callers can use it for
// reproducible iteration (e.g. fan-out broadcast, test assertions).
func (d *Directory) Peers() []types.NodeID {
	ids := make([]types.NodeID, 0, len(d.peers))
	for id := range d.peers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Address returns the endpoint for id and whether it is known.
func (d *Directory) Address(id types.NodeID) (Endpoint, bool) {
	addr, ok := d.peers[id]
	return addr, ok
}

// Size returns the number of peers, excluding self.
func (d *Directory) Size() int {
	return len(d.peers)
}
