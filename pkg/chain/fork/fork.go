// Package fork maintains the block-id tree that lets the chain
// database track competing branches before one becomes the committed
// head (spec.md §4.G). It owns the fork_node rows (the header-linkage
// and validity bookkeeping); the committed table data itself is owned
// by the block processor (Component F) via state.Store.
//
// Grounded structurally on the teacher's storage.InMemoryBlockStore
// (pkg/storage/blockstore.go): a small mutex-guarded map-backed index
// with direct Save/Get methods, no generics.
package fork

import (
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// StoreAndIndex persists block and updates the fork tree's linkage
// for its id, per spec §4.G's store_and_index algorithm. It returns
// the candidate tip to consider for a head switch: either id's own
// node, or — if this block bridges a previously unlinked chain — the
// deepest (highest block number) newly linked descendant.
func StoreAndIndex(idx state.BlockIndexStore, id types.BlockID, block *state.Block) (types.BlockID, *state.ForkNode) {
	idx.StoreBlock(id, block)

	known := false
	for _, existing := range idx.BlockIDsAtHeight(block.Header.BlockNum) {
		if existing == id {
			known = true
			break
		}
	}
	if !known {
		idx.AddBlockIDAtHeight(block.Header.BlockNum, id)
	}

	prevID := block.Header.PreviousID
	linked := prevID.IsZero()
	if prevNode, ok := idx.GetForkNode(prevID); ok {
		if !contains(prevNode.NextIDs, id) {
			prevNode.NextIDs = append(prevNode.NextIDs, id)
			idx.StoreForkNode(prevNode)
		}
		linked = prevNode.IsLinked
	}

	node, existed := idx.GetForkNode(id)
	wasLinked := existed && node.IsLinked
	if !existed {
		// A freshly-seen block is presumed valid until proven
		// otherwise by extend_chain/mark_invalid — is_valid here
		// collapses the three-state "unknown/valid/invalid" the
		// heaviest-fork rule needs down to a plain bool, since a node
		// that has never been checked must still be eligible to win
		// the heaviest-fork comparison and get its chance to extend.
		node = &state.ForkNode{BlockID: id, PreviousID: prevID, IsValid: true}
	}
	node.BlockNum = block.Header.BlockNum
	node.IsKnown = true
	node.IsLinked = linked
	idx.StoreForkNode(node)

	if linked && !wasLinked {
		return deepestDescendant(idx, id, node)
	}
	return id, node
}

// deepestDescendant marks id's subtree linked (it just became
// reachable from a linked ancestor) and returns the highest-numbered
// descendant found, the new candidate tip (spec §4.G "recursively set
// is_linked=true on all transitive successors").
func deepestDescendant(idx state.BlockIndexStore, id types.BlockID, node *state.ForkNode) (types.BlockID, *state.ForkNode) {
	best, bestNode := id, node
	for _, next := range node.NextIDs {
		nextNode, ok := idx.GetForkNode(next)
		if !ok {
			continue
		}
		nextNode.IsLinked = true
		idx.StoreForkNode(nextNode)
		tip, tipNode := deepestDescendant(idx, next, nextNode)
		if tipNode.BlockNum > bestNode.BlockNum {
			best, bestNode = tip, tipNode
		}
	}
	return best, bestNode
}

// MarkInvalid sets id's node invalid with reason and recursively
// propagates invalidity to every known successor (spec §4.G).
func MarkInvalid(idx state.BlockIndexStore, id types.BlockID, reason string) {
	node, ok := idx.GetForkNode(id)
	if !ok {
		return
	}
	node.IsValid = false
	node.InvalidReason = reason
	idx.StoreForkNode(node)
	for _, next := range node.NextIDs {
		MarkInvalid(idx, next, reason)
	}
}

// GetForkHistory walks previous-id pointers from id back to (and
// including) the nearest included ancestor, returning the path from
// that ancestor to id in forward order (spec §4.G).
func GetForkHistory(idx state.BlockIndexStore, id types.BlockID) []types.BlockID {
	var path []types.BlockID
	cur := id
	for {
		node, ok := idx.GetForkNode(cur)
		if !ok {
			break
		}
		path = append([]types.BlockID{cur}, path...)
		if node.IsIncluded {
			break
		}
		if cur.IsZero() {
			break
		}
		cur = node.PreviousID
	}
	return path
}

// IsHeavierThan reports whether the candidate (id, node) should
// replace currentHeadBlockNum as the chain head: it must be linked,
// valid, and strictly taller than the current head. Ties keep the
// current head (spec §4.G "Heaviest-fork rule").
func IsHeavierThan(node *state.ForkNode, currentHeadBlockNum uint32) bool {
	return node != nil && node.IsLinked && node.IsValid && node.BlockNum > currentHeadBlockNum
}

// SwitchToFork computes target's fork history, pops the current head
// back to the branch point via pop, then extends forward along the
// history via extend (spec §4.G "Switching forks"). Both hooks are
// supplied by the block processor, which owns ExtendChain/PopBlock;
// this package only knows how to compute the path between branches.
func SwitchToFork(idx state.BlockIndexStore, target types.BlockID, currentHeadID types.BlockID, pop func() (types.BlockID, error), extend func(types.BlockID) error) error {
	history := GetForkHistory(idx, target)
	if len(history) == 0 {
		return nil
	}
	branchPoint := history[0]

	head := currentHeadID
	for head != branchPoint {
		next, err := pop()
		if err != nil {
			return err
		}
		head = next
	}

	for _, id := range history[1:] {
		if err := extend(id); err != nil {
			return err
		}
	}
	return nil
}

func contains(ids []types.BlockID, target types.BlockID) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
