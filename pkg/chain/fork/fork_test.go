package fork

import (
	"testing"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

func block(num uint32, prev types.BlockID) (types.BlockID, *state.Block) {
	b := &state.Block{Header: state.BlockHeader{BlockNum: num, PreviousID: prev}}
	var id types.BlockID
	id[0] = byte(num)
	id[1] = prev[0]
	return id, b
}

func TestStoreAndIndexSeedsNewNodeValid(t *testing.T) {
	idx := state.NewMemStore()
	id, b := block(1, types.BlockID{})

	_, node := StoreAndIndex(idx, id, b)
	if !node.IsValid {
		t.Fatal("a freshly-seen node must default to valid so it can win the heaviest-fork check and get extended")
	}
	if !node.IsLinked {
		t.Fatal("a block whose previous id is the zero id is linked by definition")
	}
}

func TestIsHeavierThanRequiresLinkedValidTaller(t *testing.T) {
	node := &state.ForkNode{IsLinked: true, IsValid: true, BlockNum: 5}
	if !IsHeavierThan(node, 4) {
		t.Fatal("linked, valid, taller node should win")
	}
	if IsHeavierThan(node, 5) {
		t.Fatal("a tie must not win (keep current head)")
	}
	if IsHeavierThan(&state.ForkNode{IsLinked: false, IsValid: true, BlockNum: 10}, 4) {
		t.Fatal("an unlinked node must never win")
	}
	if IsHeavierThan(&state.ForkNode{IsLinked: true, IsValid: false, BlockNum: 10}, 4) {
		t.Fatal("an invalid node must never win")
	}
}

func TestMarkInvalidPropagatesToDescendants(t *testing.T) {
	idx := state.NewMemStore()
	id1, b1 := block(1, types.BlockID{})
	StoreAndIndex(idx, id1, b1)
	id2, b2 := block(2, id1)
	StoreAndIndex(idx, id2, b2)

	MarkInvalid(idx, id1, "bad_signature")

	n1, _ := idx.GetForkNode(id1)
	n2, _ := idx.GetForkNode(id2)
	if n1.IsValid || n1.InvalidReason != "bad_signature" {
		t.Fatalf("node 1 should be invalid with its reason recorded, got %+v", n1)
	}
	if n2.IsValid {
		t.Fatal("invalidity must propagate to descendants")
	}
}

func TestGetForkHistoryWalksBackToIncludedAncestor(t *testing.T) {
	idx := state.NewMemStore()
	idx.StoreForkNode(&state.ForkNode{BlockID: types.BlockID{}, IsIncluded: true, IsLinked: true, IsValid: true})

	id1, b1 := block(1, types.BlockID{})
	StoreAndIndex(idx, id1, b1)
	id2, b2 := block(2, id1)
	StoreAndIndex(idx, id2, b2)

	history := GetForkHistory(idx, id2)
	if len(history) != 3 || history[0] != (types.BlockID{}) || history[2] != id2 {
		t.Fatalf("history = %v, want [zero, id1, id2]", history)
	}
}

func TestSwitchToForkPopsToBranchPointThenExtends(t *testing.T) {
	idx := state.NewMemStore()
	idx.StoreForkNode(&state.ForkNode{BlockID: types.BlockID{}, IsIncluded: true, IsLinked: true, IsValid: true})

	id1, b1 := block(1, types.BlockID{})
	StoreAndIndex(idx, id1, b1)
	id2, b2 := block(2, id1)
	StoreAndIndex(idx, id2, b2)

	var popped int
	var extended []types.BlockID
	pop := func() (types.BlockID, error) { popped++; return types.BlockID{}, nil }
	extend := func(id types.BlockID) error { extended = append(extended, id); return nil }

	if err := SwitchToFork(idx, id2, types.BlockID{}, pop, extend); err != nil {
		t.Fatalf("SwitchToFork: %v", err)
	}
	if popped != 0 {
		t.Fatalf("popped = %d, want 0 for a direct extension of the current head", popped)
	}
	if len(extended) != 2 || extended[0] != id1 || extended[1] != id2 {
		t.Fatalf("extended = %v, want [id1, id2]", extended)
	}
}
