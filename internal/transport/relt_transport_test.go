package transport

import (
	"testing"

	"github.com/lamportchain/ledgerd/internal/concurrency"
	"github.com/lamportchain/ledgerd/internal/logging"
)

func TestReltTransportConsumeLoopShutsDownDeterministically(t *testing.T) {
	invoker := concurrency.NewWaitGroupInvoker()
	log := logging.NewDefaultLogger("test")

	trans, err := NewReltTransportWithInvoker(1, log, invoker)
	if err != nil {
		t.Fatalf("new relt transport: %v", err)
	}

	if err := trans.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	invoker.Wait()
}
