package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jabolina/relt/pkg/relt"
	prometheuslog "github.com/prometheus/common/log"

	"github.com/lamportchain/ledgerd/internal/concurrency"
	"github.com/lamportchain/ledgerd/internal/logging"
	"github.com/lamportchain/ledgerd/internal/types"
)

const (
	maxSendRetries = 3
	retryBackoff   = 50 * time.Millisecond
)

// ReltTransport implements Transport over github.com/jabolina/relt,
// giving every node its own group address and addressing peers by
// their own group — the same Relt/GroupAddress/Send/Consume/Broadcast
// shape the teacher's core/transport.go uses for partition-group
// addressing, repurposed here to one group per node.
type ReltTransport struct {
	log     logging.Logger
	self    types.NodeID
	relt    *relt.Relt
	inbound chan types.Message
	errs    chan error

	ctx    context.Context
	cancel context.CancelFunc
}

func groupName(id types.NodeID) relt.GroupAddress {
	return relt.GroupAddress(fmt.Sprintf("ledgerd-node-%d", id))
}

// NewReltTransport starts a transport listening on self's own group,
// spawning its consume loop through the process-wide default Invoker.
func NewReltTransport(self types.NodeID, log logging.Logger) (*ReltTransport, error) {
	return NewReltTransportWithInvoker(self, log, concurrency.Instance())
}

// NewReltTransportWithInvoker is NewReltTransport with an explicit
// Invoker, letting tests spawn the consume loop on a WaitGroupInvoker
// so shutdown can be awaited deterministically instead of racing a
// bare goroutine.
func NewReltTransportWithInvoker(self types.NodeID, log logging.Logger, invoker concurrency.Invoker) (*ReltTransport, error) {
	conf := relt.DefaultReltConfiguration()
	conf.Name = fmt.Sprintf("ledgerd-node-%d", self)
	conf.Exchange = groupName(self)

	r, err := relt.NewRelt(*conf)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	t := &ReltTransport{
		log:     log,
		self:    self,
		relt:    r,
		inbound: make(chan types.Message, 128),
		errs:    make(chan error, 16),
		ctx:     ctx,
		cancel:  cancel,
	}
	invoker.Spawn(t.poll)
	return t, nil
}

func (t *ReltTransport) apply(destination types.NodeID, message types.Message) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	send := relt.Send{
		Address: groupName(destination),
		Data:    data,
	}

	var lastErr error
	for attempt := 0; attempt < maxSendRetries; attempt++ {
		if lastErr = t.relt.Broadcast(t.ctx, send); lastErr == nil {
			return nil
		}
		t.log.Warnf("send to node %d failed (attempt %d/%d): %v", destination, attempt+1, maxSendRetries, lastErr)
		time.Sleep(retryBackoff)
	}

	err = fmt.Errorf("%w: node %d: %v", ErrUnreachablePeer, destination, lastErr)
	select {
	case t.errs <- err:
	default:
	}
	return err
}

func (t *ReltTransport) Broadcast(destinations []types.NodeID, message types.Message) error {
	for _, d := range destinations {
		if err := t.apply(d, message); err != nil {
			return err
		}
	}
	return nil
}

func (t *ReltTransport) Unicast(destination types.NodeID, message types.Message) error {
	return t.apply(destination, message)
}

func (t *ReltTransport) Listen() <-chan types.Message {
	return t.inbound
}

func (t *ReltTransport) Errors() <-chan error {
	return t.errs
}

func (t *ReltTransport) Close() error {
	t.cancel()
	return t.relt.Close()
}

// poll drains the underlying relt consumer and decodes each payload
// into a types.Message, mirroring the teacher's transport.poll/consume
// split: malformed payloads are logged and dropped without ticking the
// clock, matching spec §7's malformed_message disposition.
func (t *ReltTransport) poll() {
	listener, err := t.relt.Consume()
	if err != nil {
		prometheuslog.Errorf("relt transport for node %d failed to start consuming: %v", t.self, err)
		return
	}
	for {
		select {
		case <-t.ctx.Done():
			return
		case recv, ok := <-listener:
			if !ok {
				return
			}
			t.consume(recv)
		}
	}
}

func (t *ReltTransport) consume(recv relt.Recv) {
	if recv.Error != nil {
		prometheuslog.Errorf("node %d failed consuming message: %v", t.self, recv.Error)
		return
	}
	if recv.Data == nil {
		return
	}

	var m types.Message
	if err := json.Unmarshal(recv.Data, &m); err != nil {
		prometheuslog.Errorf("node %d received malformed message: %v", t.self, err)
		return
	}

	timeout, cancel := context.WithTimeout(t.ctx, 250*time.Millisecond)
	defer cancel()
	select {
	case <-timeout.Done():
		prometheuslog.Warnf("node %d dropped message, consumer not keeping up: %#v", t.self, m)
	case t.inbound <- m:
	}
}
