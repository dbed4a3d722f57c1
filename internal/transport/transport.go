// Package transport defines the peer RPC transport (spec §6,
// east-west messages: REQUEST, REPLY, RELEASE) and two
// implementations: a relt-backed one for real deployments and an
// in-memory bus for deterministic tests.
package transport

import (
	"errors"

	"github.com/lamportchain/ledgerd/internal/types"
)

// ErrUnreachablePeer is returned when a message cannot be delivered to
// a peer after the configured retry bound. Mutual-exclusion safety
// requires all peers to reply, so this stalls the caller's self
// request rather than silently dropping it.
var ErrUnreachablePeer = errors.New("transport: peer unreachable after retry bound")

// Transport is the peer RPC contract every coordinator depends on.
// All three message kinds are fire-and-forget at this layer; the
// protocol layer above tolerates retries via RequestKey idempotency.
type Transport interface {
	// Broadcast delivers message to every peer in destinations.
	Broadcast(destinations []types.NodeID, message types.Message) error

	// Unicast delivers message to a single peer.
	Unicast(destination types.NodeID, message types.Message) error

	// Listen returns the channel of inbound messages from peers.
	Listen() <-chan types.Message

	// Errors returns a channel of asynchronous transport failures
	// (e.g. ErrUnreachablePeer) for the operator surface to observe.
	Errors() <-chan error

	// Close releases the transport's resources.
	Close() error
}
