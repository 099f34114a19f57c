package state

import (
	"time"

	"github.com/bts-go/chaincore/pkg/types"
)

// BlockHeader is the signed, consensus-critical part of a block
// (spec §3 "Block record").
type BlockHeader struct {
	BlockNum   uint32
	PreviousID types.BlockID
	Timestamp  time.Time
	Signee     []byte // block signer public key
	Signature  []byte

	// RevealedSecret unlocks the producer's previous commitment:
	// ripemd160(RevealedSecret) must equal that delegate's stored
	// next_secret_hash (spec §4.F step 4).
	RevealedSecret types.Hash
	// NextSecretHash is the commitment this delegate publishes for its
	// next production slot (spec §4.F step 4).
	NextSecretHash types.Hash
}

// Block is a full block: header plus the ordered user transactions
// (spec §3 "Block record").
type Block struct {
	Header       BlockHeader
	Transactions [][]byte // opaque signed-transaction payloads
	Size         int
	TotalFees    types.Share
}

// ID returns the content hash of the block header, which is this
// block's identity in the fork tree.
func (b Block) ID() types.BlockID {
	buf := make([]byte, 0, 4+32+8+len(b.Header.Signee)+len(b.Header.Signature)+32)
	var n [4]byte
	n[0] = byte(b.Header.BlockNum >> 24)
	n[1] = byte(b.Header.BlockNum >> 16)
	n[2] = byte(b.Header.BlockNum >> 8)
	n[3] = byte(b.Header.BlockNum)
	buf = append(buf, n[:]...)
	buf = append(buf, b.Header.PreviousID[:]...)
	var ts [8]byte
	unix := b.Header.Timestamp.Unix()
	for i := 0; i < 8; i++ {
		ts[7-i] = byte(unix >> (8 * i))
	}
	buf = append(buf, ts[:]...)
	buf = append(buf, b.Header.Signee...)
	buf = append(buf, b.Header.Signature...)
	buf = append(buf, b.Header.RevealedSecret[:]...)
	buf = append(buf, b.Header.NextSecretHash[:]...)
	return types.HashBytes(buf)
}

// ForkNode is the fork-tree metadata kept for every known block id
// (spec §3 "Fork-tree node").
type ForkNode struct {
	BlockID       types.BlockID
	BlockNum      uint32
	PreviousID    types.BlockID
	NextIDs       []types.BlockID
	IsKnown       bool
	IsLinked      bool
	IsValid       bool
	IsIncluded    bool
	InvalidReason string
}

// UndoState is the inverse delta that restores a committed state to
// what it was before a given block was applied (spec §3 "Undo state").
// KeyValues maps an opaque encoded table key to the value the parent
// held before the block (nil = the key did not exist).
type UndoState struct {
	BlockID   types.BlockID
	KeyValues map[string][]byte
}

// BlockIndexStore is the separate persistence surface for blocks,
// fork-tree nodes, and undo deltas (spec §3 table list for component
// B; ownership of the fork-node rows themselves belongs to component
// G per spec §3 "Ownership", which is why this is a distinct
// interface from Store rather than folded into it — the pending
// overlay in §4.C never touches these tables).
type BlockIndexStore interface {
	GetBlock(id types.BlockID) (*Block, bool)
	StoreBlock(id types.BlockID, b *Block)

	BlockIDsAtHeight(num uint32) []types.BlockID
	AddBlockIDAtHeight(num uint32, id types.BlockID)

	GetForkNode(id types.BlockID) (*ForkNode, bool)
	StoreForkNode(n *ForkNode)

	GetUndoState(id types.BlockID) (*UndoState, bool)
	StoreUndoState(u *UndoState)
	RemoveUndoState(id types.BlockID)

	GetHeadBlockID() (types.BlockID, bool)
	StoreHeadBlockID(id types.BlockID)
}
