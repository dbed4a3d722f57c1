package queue

import (
	"testing"

	"github.com/lamportchain/ledgerd/internal/types"
)

func entry(t types.LamportTime, initiator types.NodeID) types.PendingRequest {
	return types.PendingRequest{
		Key:    types.RequestKey{Time: t, Initiator: initiator},
		Origin: types.OriginPeer,
	}
}

func TestInsertRejectsDuplicateKey(t *testing.T) {
	q := New()
	q.Insert(entry(1, 1))
	q.Insert(entry(1, 1))
	if q.Len() != 1 {
		t.Fatalf("expected duplicate insert to be a no-op, got len %d", q.Len())
	}
}

func TestPeekMinOrdersByTimeThenInitiator(t *testing.T) {
	q := New()
	q.Insert(entry(5, 2))
	q.Insert(entry(1, 3)) // N3 at ts=1
	q.Insert(entry(1, 1)) // N1 at ts=1, tie-break wins

	min, ok := q.PeekMin()
	if !ok {
		t.Fatal("expected a minimum entry")
	}
	want := types.RequestKey{Time: 1, Initiator: 1}
	if min.Key != want {
		t.Fatalf("got min key %v, want %v", min.Key, want)
	}
}

func TestRemoveIsNoOpOnDuplicateRelease(t *testing.T) {
	q := New()
	key := types.RequestKey{Time: 1, Initiator: 1}
	q.Insert(entry(1, 1))
	q.Remove(key)
	q.Remove(key) // duplicate RELEASE must not panic or misbehave
	if q.Len() != 0 {
		t.Fatalf("expected empty queue, got len %d", q.Len())
	}
}

func TestSnapshotReturnsAscendingOrderWithoutMutatingQueue(t *testing.T) {
	q := New()
	q.Insert(entry(3, 1))
	q.Insert(entry(1, 1))
	q.Insert(entry(2, 1))

	snap := q.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(snap))
	}
	for i := 1; i < len(snap); i++ {
		if !snap[i-1].Key.Less(snap[i].Key) {
			t.Fatalf("snapshot not ascending: %v", snap)
		}
	}
	if q.Len() != 3 {
		t.Fatalf("snapshot must not mutate the queue, got len %d", q.Len())
	}
}

func TestAddReplyIgnoredForPeerOriginAndUnknownKey(t *testing.T) {
	q := New()
	selfKey := types.RequestKey{Time: 1, Initiator: 1}
	q.Insert(types.PendingRequest{Key: selfKey, Origin: types.OriginSelf})
	peerKey := types.RequestKey{Time: 2, Initiator: 3}
	q.Insert(entry(2, 3))

	q.AddReply(types.RequestKey{Time: 99, Initiator: 42}, 2) // unknown key: no-op
	q.AddReply(peerKey, 2)                                   // peer origin: no-op
	q.AddReply(selfKey, 2)

	peer, ok := q.Get(peerKey)
	if !ok {
		t.Fatal("expected peer entry to exist")
	}
	if len(peer.RepliesReceived) != 0 {
		t.Fatalf("expected reply on peer-origin entry to be ignored, got %v", peer.RepliesReceived)
	}

	got, ok := q.Get(selfKey)
	if !ok {
		t.Fatal("expected self entry to exist")
	}
	if _, replied := got.RepliesReceived[2]; !replied {
		t.Fatalf("expected reply from node 2 to be recorded, got %v", got.RepliesReceived)
	}
}

func TestGrantableRequiresAllPeerReplies(t *testing.T) {
	pr := types.PendingRequest{
		Key:             types.RequestKey{Time: 1, Initiator: 1},
		Origin:          types.OriginSelf,
		RepliesReceived: map[types.NodeID]struct{}{2: {}},
	}
	if pr.Grantable([]types.NodeID{2, 3}) {
		t.Fatal("expected not grantable: missing reply from node 3")
	}
	pr.RepliesReceived[3] = struct{}{}
	if !pr.Grantable([]types.NodeID{2, 3}) {
		t.Fatal("expected grantable once every peer has replied")
	}
}
