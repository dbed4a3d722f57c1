// Package ledger implements the append-only hash-chained ledger (C5).
package ledger

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/lamportchain/ledgerd/internal/types"
)

// ErrLedgerDivergence names a broken hash chain. Verify reports a
// break as ok=false plus the block index; the coordinator returns this
// error from Transfer once a failed Verify has put it in the Faulted
// state. Per spec §7 this should never occur between honest, reachable
// peers and is treated as fatal by the coordinator.
var ErrLedgerDivergence = errors.New("ledger: hash chain diverges")

// Hash is the fixed-width SHA-256 digest type used for prev_hash and
// hash fields.
type Hash [32]byte

// Block is a single ledger entry: a transaction plus the hash of its
// predecessor.
type Block struct {
	Index       uint64
	Transaction types.Transaction
	PrevHash    Hash
	Hash        Hash
}

// Ledger is an append-only, hash-chained sequence of blocks. It starts
// with a genesis block (index 0, a zero-value transaction, an
// all-zero prev_hash) and is safe for concurrent use. Append must only
// be invoked by the coordinator while it holds the critical section
// for the transaction's initiator.
type Ledger struct {
	mu     sync.Mutex
	blocks []Block
}

// New returns a Ledger containing only the genesis block.
func New() *Ledger {
	l := &Ledger{}
	genesis := Block{
		Index:       0,
		Transaction: types.Transaction{},
		PrevHash:    Hash{},
	}
	genesis.Hash = hashBlock(genesis)
	l.blocks = []Block{genesis}
	return l
}

// canonicalBytes serializes tx as the concatenation of fixed-width
// big-endian Src, Dst, Amount, Ts, Initiator — the one surface the
// spec requires to be bit-exact across implementations.
func canonicalBytes(tx types.Transaction) []byte {
	buf := make([]byte, 8*5)
	binary.BigEndian.PutUint64(buf[0:8], uint64(tx.Src))
	binary.BigEndian.PutUint64(buf[8:16], uint64(tx.Dst))
	binary.BigEndian.PutUint64(buf[16:24], tx.Amount)
	binary.BigEndian.PutUint64(buf[24:32], uint64(tx.Ts))
	binary.BigEndian.PutUint64(buf[32:40], uint64(tx.Initiator))
	return buf
}

func hashBlock(b Block) Hash {
	h := sha256.New()
	var idxBuf [8]byte
	binary.BigEndian.PutUint64(idxBuf[:], b.Index)
	h.Write(idxBuf[:])
	h.Write(canonicalBytes(b.Transaction))
	h.Write(b.PrevHash[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Append produces the next block for tx, chained onto the current
// head, and returns it.
func (l *Ledger) Append(tx types.Transaction) Block {
	l.mu.Lock()
	defer l.mu.Unlock()

	head := l.blocks[len(l.blocks)-1]
	block := Block{
		Index:       head.Index + 1,
		Transaction: tx,
		PrevHash:    head.Hash,
	}
	block.Hash = hashBlock(block)
	l.blocks = append(l.blocks, block)
	return block
}

// Verify recomputes every hash in the chain. It returns ok=true if the
// chain is intact, or ok=false and the index of the first block whose
// prev_hash does not match its predecessor's hash or whose own hash
// does not match its recomputed value.
func (l *Ledger) Verify() (ok bool, breakIndex uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, b := range l.blocks {
		if i > 0 {
			prev := l.blocks[i-1]
			if b.PrevHash != prev.Hash {
				return false, b.Index
			}
		}
		if hashBlock(b) != b.Hash {
			return false, b.Index
		}
	}
	return true, 0
}

// Head returns the most recently appended block.
func (l *Ledger) Head() Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blocks[len(l.blocks)-1]
}

// Length returns the number of blocks, including genesis.
func (l *Ledger) Length() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.blocks)
}

// Range returns a copy of blocks [lo, hi). It clamps to the available
// range rather than erroring, since this only serves the operator UI.
func (l *Ledger) Range(lo, hi int) []Block {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lo < 0 {
		lo = 0
	}
	if hi > len(l.blocks) {
		hi = len(l.blocks)
	}
	if lo >= hi {
		return nil
	}
	out := make([]Block, hi-lo)
	copy(out, l.blocks[lo:hi])
	return out
}
