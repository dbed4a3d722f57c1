package ledger

import (
	"testing"

	"github.com/lamportchain/ledgerd/internal/types"
)

func TestGenesisBlock(t *testing.T) {
	l := New()
	if l.Length() != 1 {
		t.Fatalf("expected genesis-only ledger to have length 1, got %d", l.Length())
	}
	head := l.Head()
	if head.Index != 0 {
		t.Fatalf("expected genesis index 0, got %d", head.Index)
	}
	if head.PrevHash != (Hash{}) {
		t.Fatalf("expected genesis prev_hash to be all-zero")
	}
}

func TestAppendChainsHashes(t *testing.T) {
	l := New()
	tx := types.Transaction{Src: 1, Dst: 2, Amount: 10, Ts: 1, Initiator: 1}
	b := l.Append(tx)

	if b.Index != 1 {
		t.Fatalf("expected index 1, got %d", b.Index)
	}
	if b.PrevHash != l.Range(0, 1)[0].Hash {
		t.Fatalf("block.PrevHash does not match predecessor's hash")
	}

	ok, _ := l.Verify()
	if !ok {
		t.Fatal("expected freshly appended chain to verify")
	}
}

func TestHashingIsDeterministic(t *testing.T) {
	tx := types.Transaction{Src: 1, Dst: 2, Amount: 10, Ts: 1, Initiator: 1}
	a := hashBlock(Block{Index: 1, Transaction: tx, PrevHash: Hash{}})
	b := hashBlock(Block{Index: 1, Transaction: tx, PrevHash: Hash{}})
	if a != b {
		t.Fatal("hashing the same block twice produced different hashes")
	}
}

func TestVerifyDetectsTamperedPrevHash(t *testing.T) {
	l := New()
	l.Append(types.Transaction{Src: 1, Dst: 2, Amount: 10, Ts: 1, Initiator: 1})
	l.Append(types.Transaction{Src: 2, Dst: 1, Amount: 5, Ts: 2, Initiator: 2})

	l.blocks[1].PrevHash[0] ^= 0xFF // corrupt in place

	ok, breakIndex := l.Verify()
	if ok {
		t.Fatal("expected tampered chain to fail verification")
	}
	if breakIndex != 1 {
		t.Fatalf("expected break reported at index 1, got %d", breakIndex)
	}
}

func TestVerifyOnPrefixOfValidLedgerIsOk(t *testing.T) {
	l := New()
	l.Append(types.Transaction{Src: 1, Dst: 2, Amount: 1, Ts: 1, Initiator: 1})
	ok, _ := l.Verify()
	if !ok {
		t.Fatal("expected prefix (genesis + 1 block) to verify ok")
	}
}

func TestRangeClampsToAvailableBlocks(t *testing.T) {
	l := New()
	l.Append(types.Transaction{Src: 1, Dst: 2, Amount: 1, Ts: 1, Initiator: 1})
	blocks := l.Range(0, 100)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks (genesis + 1), got %d", len(blocks))
	}
}
