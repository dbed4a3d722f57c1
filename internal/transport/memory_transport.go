package transport

import (
	"sync"
	"time"

	"github.com/lamportchain/ledgerd/internal/types"
)

// Bus is an in-process message bus connecting every node's
// MemoryTransport. It exists purely for deterministic and
// randomized-delay tests (spec §8 scenarios) — production nodes use
// ReltTransport instead.
type Bus struct {
	mu    sync.Mutex
	nodes map[types.NodeID]*MemoryTransport
	// Delay, if set, is called for every delivered message to
	// optionally jitter delivery order, modeling the partial-order
	// message delivery spec §1 assumes.
	Delay func() time.Duration
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{nodes: make(map[types.NodeID]*MemoryTransport)}
}

func (b *Bus) register(id types.NodeID, t *MemoryTransport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nodes[id] = t
}

func (b *Bus) deliver(destination types.NodeID, message types.Message) error {
	b.mu.Lock()
	target, ok := b.nodes[destination]
	b.mu.Unlock()
	if !ok {
		return ErrUnreachablePeer
	}

	send := func() {
		if b.Delay != nil {
			time.Sleep(b.Delay())
		}
		select {
		case target.inbound <- message:
		case <-target.done:
		}
	}
	// Deliver asynchronously so Broadcast/Unicast never blocks on a
	// slow or congested peer, matching spec §5's requirement that
	// outbound I/O happen outside the coordinator's critical section.
	go send()
	return nil
}

// MemoryTransport is a Transport backed by an in-process Bus.
type MemoryTransport struct {
	bus     *Bus
	self    types.NodeID
	inbound chan types.Message
	errs    chan error
	done    chan struct{}
	once    sync.Once
}

// NewMemoryTransport registers a new node on bus and returns its
// Transport handle.
func NewMemoryTransport(bus *Bus, self types.NodeID) *MemoryTransport {
	t := &MemoryTransport{
		bus:     bus,
		self:    self,
		inbound: make(chan types.Message, 256),
		errs:    make(chan error, 16),
		done:    make(chan struct{}),
	}
	bus.register(self, t)
	return t
}

func (t *MemoryTransport) Broadcast(destinations []types.NodeID, message types.Message) error {
	for _, d := range destinations {
		if err := t.bus.deliver(d, message); err != nil {
			select {
			case t.errs <- err:
			default:
			}
			return err
		}
	}
	return nil
}

func (t *MemoryTransport) Unicast(destination types.NodeID, message types.Message) error {
	if err := t.bus.deliver(destination, message); err != nil {
		select {
		case t.errs <- err:
		default:
		}
		return err
	}
	return nil
}

func (t *MemoryTransport) Listen() <-chan types.Message {
	return t.inbound
}

func (t *MemoryTransport) Errors() <-chan error {
	return t.errs
}

func (t *MemoryTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}
