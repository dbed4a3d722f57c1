// Package coordinator implements the mutex coordinator (C4): the
// state machine that runs Lamport's distributed mutual-exclusion
// algorithm over the request queue and, once granted the critical
// section, drives the external registry and appends to the ledger.
//
// Per spec §5 this is realized as a single logical serial actor: one
// goroutine owns every state mutation (the clock, the queue, the
// self-request slot, the ledger), and inbound transport handlers only
// enqueue events rather than touching protocol state directly — the
// same poll-loop shape as the teacher's core.Peer.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lamportchain/ledgerd/internal/clock"
	"github.com/lamportchain/ledgerd/internal/directory"
	"github.com/lamportchain/ledgerd/internal/ledger"
	"github.com/lamportchain/ledgerd/internal/logging"
	"github.com/lamportchain/ledgerd/internal/queue"
	"github.com/lamportchain/ledgerd/internal/registry"
	"github.com/lamportchain/ledgerd/internal/transport"
	"github.com/lamportchain/ledgerd/internal/types"
)

// ErrTransferInProgress is returned by Transfer when the local node
// already has a self-origin request outstanding — invariant 3 allows
// at most one at a time.
var ErrTransferInProgress = errors.New("coordinator: a transfer is already in progress")

// ErrLedgerDivergence is returned by Transfer once the node has
// entered the Faulted state. Inbound REQUESTs are then dropped without
// being queued or replied to.
var ErrLedgerDivergence = ledger.ErrLedgerDivergence

// State is the local mutual-exclusion state of a node.
type State uint8

const (
	Idle State = iota
	Requesting
	Held
	// Faulted is entered when Verify detects a broken hash chain
	// (spec §7, ledger_divergence). The node stops accepting new
	// requests once Faulted.
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Held:
		return "held"
	case Faulted:
		return "faulted"
	default:
		return fmt.Sprintf("unknown-state(%d)", uint8(s))
	}
}

// TransferResult is delivered to a Transfer caller once the critical
// section for that request has ended, whether committed or aborted.
type TransferResult struct {
	Committed   bool
	Transaction types.Transaction
	Block       ledger.Block
	Err         error
}

type transferRequest struct {
	dst    types.NodeID
	amount uint64
	result chan TransferResult
}

// Coordinator is a single node's mutex coordinator. Construct with New
// and start the actor loop with Run.
type Coordinator struct {
	id  types.NodeID
	dir *directory.Directory

	clock     *clock.Clock
	queue     *queue.Queue
	ledger    *ledger.Ledger
	registry  registry.Registry
	transport transport.Transport
	log       logging.Logger

	events chan interface{}
	errs   chan error

	// Actor-owned state, mutated only from the Run goroutine.
	state        State
	selfKey      types.RequestKey
	selfActive   bool
	selfTransfer transferRequest

	runOnce sync.Once
	done    chan struct{}
}

// New wires a Coordinator for node id.
func New(
	id types.NodeID,
	dir *directory.Directory,
	reg registry.Registry,
	trans transport.Transport,
	log logging.Logger,
) *Coordinator {
	return &Coordinator{
		id:        id,
		dir:       dir,
		clock:     clock.New(),
		queue:     queue.New(),
		ledger:    ledger.New(),
		registry:  reg,
		transport: trans,
		log:       log,
		events:    make(chan interface{}, 64),
		errs:      make(chan error, 16),
		done:      make(chan struct{}),
	}
}

// Run starts the actor loop. It blocks until ctx is cancelled or Stop
// is called, so callers typically invoke it in its own goroutine.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case ev := <-c.events:
			c.handle(ev)
		case msg, ok := <-c.transport.Listen():
			if !ok {
				return
			}
			c.handle(msg)
		case err, ok := <-c.transport.Errors():
			if !ok {
				continue
			}
			c.log.Warnf("node %d: transport error: %v", c.id, err)
			select {
			case c.errs <- err:
			default:
			}
		}
	}
}

// Stop ends the actor loop. Safe to call more than once.
func (c *Coordinator) Stop() {
	c.runOnce.Do(func() { close(c.done) })
}

// Errors returns a channel of asynchronous transport faults (such as
// unreachable peers) forwarded from the transport's own Errors channel.
// A fault is dropped if the channel's buffer is full. Ledger divergence
// is not reported here; it shows up as the Faulted state.
func (c *Coordinator) Errors() <-chan error {
	return c.errs
}

// Transfer initiates a transfer of amount from this node to dst. The
// returned channel receives exactly one TransferResult: once the
// critical section for this request ends, or at once with Err set if
// the request is rejected (a transfer already in progress, the Faulted
// state, or a stopped coordinator).
func (c *Coordinator) Transfer(dst types.NodeID, amount uint64) <-chan TransferResult {
	result := make(chan TransferResult, 1)
	req := transferRequest{dst: dst, amount: amount, result: result}
	select {
	case c.events <- req:
	case <-c.done:
		result <- TransferResult{Err: errors.New("coordinator: stopped")}
	}
	return result
}

// Status is a read-only snapshot for the operator's inspection
// endpoint. Snapshot() on the queue never blocks the actor, so Status
// is safe to call concurrently from any goroutine.
type Status struct {
	NodeID     types.NodeID
	Clock      types.LamportTime
	State      State
	Peers      []types.NodeID
	Queue      []types.PendingRequest
	LedgerHead ledger.Block
	Length     int
}

func (c *Coordinator) Status() Status {
	return Status{
		NodeID:     c.id,
		Clock:      c.clock.Peek(),
		State:      c.state,
		Peers:      c.dir.Peers(),
		Queue:      c.queue.Snapshot(),
		LedgerHead: c.ledger.Head(),
		Length:     c.ledger.Length(),
	}
}

// Ledger exposes the underlying ledger for read-only UI access
// (FastRead-style, per spec §4.5).
func (c *Coordinator) Ledger() *ledger.Ledger {
	return c.ledger
}

// Verify runs the ledger's hash-chain check. On failure it puts the
// coordinator into the Faulted state (spec §7, fatal —
// ledger_divergence): from then on Transfer returns ErrLedgerDivergence
// and inbound REQUESTs are dropped without a reply.
func (c *Coordinator) Verify() (ok bool, breakIndex uint64) {
	ok, breakIndex = c.ledger.Verify()
	if !ok {
		done := make(chan struct{})
		select {
		case c.events <- faultEvent{done: done}:
			<-done
		case <-c.done:
		}
	}
	return ok, breakIndex
}

type faultEvent struct {
	done chan struct{}
}

// handle dispatches a single event. It is only ever called from the
// Run goroutine, so every field access below is data-race free without
// additional locking — this is the "single worker consuming an inbound
// queue" realization spec §5 allows.
func (c *Coordinator) handle(ev interface{}) {
	switch e := ev.(type) {
	case transferRequest:
		c.handleTransferRequest(e)
	case types.Message:
		c.handleMessage(e)
	case faultEvent:
		c.state = Faulted
		close(e.done)
	default:
		c.log.Errorf("node %d: unknown event %#v", c.id, ev)
	}
}

func (c *Coordinator) handleTransferRequest(req transferRequest) {
	if c.state == Faulted {
		req.result <- TransferResult{Err: ErrLedgerDivergence}
		return
	}
	if c.state != Idle {
		req.result <- TransferResult{Err: ErrTransferInProgress}
		return
	}

	t := c.clock.TickSend()
	key := types.RequestKey{Time: t, Initiator: c.id}

	c.queue.Insert(types.PendingRequest{
		Key:             key,
		Origin:          types.OriginSelf,
		RepliesReceived: make(map[types.NodeID]struct{}),
	})
	c.selfKey = key
	c.selfActive = true
	c.selfTransfer = req
	c.state = Requesting

	peers := c.dir.Peers()
	if len(peers) > 0 {
		msg := types.Message{
			Kind:   types.KindRequest,
			From:   c.id,
			SendTS: t,
			Key:    key,
			Dst:    req.dst,
			Amount: req.amount,
		}
		if err := c.transport.Broadcast(peers, msg); err != nil {
			c.log.Warnf("node %d: broadcast REQUEST %v failed: %v", c.id, key, err)
		}
	}

	c.maybeGrant()
}

func (c *Coordinator) handleMessage(msg types.Message) {
	switch msg.Kind {
	case types.KindRequest:
		c.onRequest(msg)
	case types.KindReply:
		c.onReply(msg)
	case types.KindRelease:
		c.onRelease(msg)
	default:
		c.log.Warnf("node %d: unknown message kind %v from %d", c.id, msg.Kind, msg.From)
	}
}

// onRequest implements spec §4.4 "on REQUEST(key, dst, amt) from peer
// p". REPLY is sent unconditionally, including on a duplicate
// (idempotent) insert — Lamport ME never defers replies.
func (c *Coordinator) onRequest(msg types.Message) {
	c.clock.TickRecv(msg.SendTS)

	if c.state == Faulted {
		return
	}

	c.queue.Insert(types.PendingRequest{
		Key:    msg.Key,
		Origin: types.OriginPeer,
	})

	tr := c.clock.TickSend()
	reply := types.Message{
		Kind:   types.KindReply,
		From:   c.id,
		SendTS: tr,
		Key:    msg.Key,
	}
	if err := c.transport.Unicast(msg.From, reply); err != nil {
		c.log.Warnf("node %d: REPLY to %d for %v failed: %v", c.id, msg.From, msg.Key, err)
	}

	c.maybeGrant()
}

// onReply implements spec §4.4 "on REPLY(in_reply_to=k, t) from peer
// p": a reply for any key other than our current self-origin request
// is a late reply after RELEASE and must be silently ignored.
func (c *Coordinator) onReply(msg types.Message) {
	c.clock.TickRecv(msg.SendTS)

	if c.selfActive && msg.Key == c.selfKey {
		c.queue.AddReply(c.selfKey, msg.From)
		c.maybeGrant()
	}
}

// onRelease implements spec §4.4 "on RELEASE(key=k, outcome,
// transaction) from peer p". The RELEASE message's own send_ts is
// used for tick_recv — never the transaction's original request
// timestamp, which would double-advance the clock (spec §9, second
// open question).
func (c *Coordinator) onRelease(msg types.Message) {
	c.clock.TickRecv(msg.SendTS)

	c.queue.Remove(msg.Key)

	if msg.Outcome == types.Committed {
		c.ledger.Append(msg.Transaction)
	}

	c.maybeGrant()
}

// maybeGrant implements the Requesting -> Held transition (spec
// §4.4.2): grantable when every peer has replied to our self request
// AND our key is at the head of the queue.
func (c *Coordinator) maybeGrant() {
	if c.state != Requesting || !c.selfActive {
		return
	}

	pr, ok := c.queue.Get(c.selfKey)
	if !ok {
		return
	}
	if !pr.Grantable(c.dir.Peers()) {
		return
	}
	min, ok := c.queue.PeekMin()
	if !ok || min.Key != c.selfKey {
		return
	}

	c.enterCriticalSection()
}

// enterCriticalSection implements the Held state's entry action and
// the Held -> Idle transition (spec §4.4.2-3): invoke the registry,
// append on success, then always release — even on abort, so the
// critical section is never held open by an insufficient-funds error.
func (c *Coordinator) enterCriticalSection() {
	c.state = Held
	req := c.selfTransfer
	key := c.selfKey
	ctx := context.Background()

	var (
		tx      types.Transaction
		block   ledger.Block
		outcome = types.Committed
		resErr  error
	)

	if err := c.registry.Debit(ctx, c.id, req.amount); err != nil {
		outcome = types.Aborted
		if !errors.Is(err, registry.ErrInsufficientFunds) {
			resErr = err
		}
	} else {
		if err := c.registry.Credit(ctx, req.dst, req.amount); err != nil {
			c.log.Errorf("node %d: credit to %d failed after debit succeeded: %v", c.id, req.dst, err)
		}
		tx = types.Transaction{
			Src:       c.id,
			Dst:       req.dst,
			Amount:    req.amount,
			Ts:        key.Time,
			Initiator: c.id,
		}
		block = c.ledger.Append(tx)
	}

	c.queue.Remove(key)
	releaseTS := c.clock.TickSend()

	release := types.Message{
		Kind:        types.KindRelease,
		From:        c.id,
		SendTS:      releaseTS,
		Key:         key,
		Outcome:     outcome,
		Transaction: tx,
	}
	peers := c.dir.Peers()
	if len(peers) > 0 {
		if err := c.transport.Broadcast(peers, release); err != nil {
			c.log.Warnf("node %d: broadcast RELEASE %v failed: %v", c.id, key, err)
		}
	}

	c.selfActive = false
	c.state = Idle

	req.result <- TransferResult{
		Committed:   outcome == types.Committed,
		Transaction: tx,
		Block:       block,
		Err:         resErr,
	}
}
