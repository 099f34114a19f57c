// Package block implements spec.md §4.F's extend_chain/pop_block:
// the single entry point that turns one candidate block into either a
// committed head or a recorded invalidity. Grounded on
// chain_database_impl::extend_chain/pop_block and structurally on the
// teacher's consensus.Engine commit sequencing
// (pkg/consensus/engine.go's onPrepare double-chain commit), with BFT
// vote collection replaced by DPoS slot/signature verification since
// block production here is single-signer per slot.
package block

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/fork"
	"github.com/bts-go/chaincore/pkg/chain/market"
	"github.com/bts-go/chaincore/pkg/chain/pending"
	"github.com/bts-go/chaincore/pkg/chain/state"
	chaincrypto "github.com/bts-go/chaincore/pkg/crypto"
	"github.com/bts-go/chaincore/pkg/types"
)

// BlockSummary is dispatched to observers after a commit (spec §4.I
// "block_applied(summary)").
type BlockSummary struct {
	BlockID   types.BlockID
	BlockNum  uint32
	Timestamp time.Time
	TxCount   int
	TotalFees types.Share
}

// Observer is a non-owning subscriber to commits and pops (spec §4.I).
type Observer interface {
	BlockApplied(summary BlockSummary)
	StateChanged(undo *state.UndoState)
}

// Processor drives extend_chain/pop_block over a single root store and
// its block index (spec §4.F, §4.G).
type Processor struct {
	Root      state.Store
	Index     state.BlockIndexStore
	Consensus params.Consensus
	Node      params.Node
	ChainID   types.Hash
	Logger    *zap.SugaredLogger
	Observers []Observer
}

func (p *Processor) notifyApplied(summary BlockSummary) {
	for _, o := range p.Observers {
		o.BlockApplied(summary)
	}
}

func (p *Processor) notifyStateChanged(undo *state.UndoState) {
	for _, o := range p.Observers {
		o.StateChanged(undo)
	}
}

// HeaderDigest hashes the header content that is actually signed:
// everything except the signature itself. Exported so block production
// (cmd/node) signs headers the same way ExtendChain verifies them.
func HeaderDigest(h state.BlockHeader) []byte {
	buf := make([]byte, 0, 4+32+8+len(h.Signee)+32+32)
	var n [4]byte
	n[0], n[1], n[2], n[3] = byte(h.BlockNum>>24), byte(h.BlockNum>>16), byte(h.BlockNum>>8), byte(h.BlockNum)
	buf = append(buf, n[:]...)
	buf = append(buf, h.PreviousID[:]...)
	var ts [8]byte
	unix := h.Timestamp.Unix()
	for i := 0; i < 8; i++ {
		ts[7-i] = byte(unix >> (8 * i))
	}
	buf = append(buf, ts[:]...)
	buf = append(buf, h.Signee...)
	buf = append(buf, h.RevealedSecret[:]...)
	buf = append(buf, h.NextSecretHash[:]...)
	return types.HashBytes(buf)[:]
}

// ExtendChain runs spec §4.F's extend_chain over block, assumed
// already indexed into the fork tree by the caller under id. On any
// step's failure, the block is marked invalid (and the mark
// propagated to descendants) and the error is returned; nothing was
// ever committed since all mutation happened in a local pending
// overlay.
func (p *Processor) ExtendChain(id types.BlockID, block *state.Block) error {
	if err := p.extendChain(block); err != nil {
		fork.MarkInvalid(p.Index, id, err.Error())
		return err
	}
	node, _ := p.Index.GetForkNode(id)
	if node != nil {
		node.IsIncluded = true
		node.IsValid = true
		p.Index.StoreForkNode(node)
	}
	p.Index.StoreHeadBlockID(id)
	return nil
}

func (p *Processor) extendChain(block *state.Block) error {
	h := block.Header

	// 1. Checkpoint check.
	if wantHex, ok := p.Consensus.Checkpoints[h.BlockNum]; ok {
		want, err := hex.DecodeString(wantHex)
		if err != nil || len(want) != 32 {
			return errors.Wrap(ErrCheckpointMismatch, "malformed checkpoint entry")
		}
		var wantHash types.Hash
		copy(wantHash[:], want)
		if block.ID() != wantHash {
			return ErrCheckpointMismatch
		}
	}

	headID, hasHead := p.Index.GetHeadBlockID()
	headNum := p.Root.GetHeadBlockNum()
	var headBlock *state.Block
	if hasHead {
		headBlock, _ = p.Index.GetBlock(headID)
	}

	// 2. Header verification.
	if hasHead && h.BlockNum != headNum+1 {
		return errors.Wrapf(ErrBadBlockNum, "want %d, got %d", headNum+1, h.BlockNum)
	}
	if hasHead && h.PreviousID != headID {
		return ErrBadPreviousID
	}
	interval := p.Consensus.BlockInterval
	if h.Timestamp.Unix()%int64(interval/time.Second) != 0 {
		return errors.Wrap(ErrBadTimestamp, "not a multiple of the block interval")
	}
	if headBlock != nil && !h.Timestamp.After(headBlock.Header.Timestamp) {
		return errors.Wrap(ErrBadTimestamp, "not strictly after head timestamp")
	}
	if h.Timestamp.After(p.Root.Now().Add(2 * interval)) {
		return ErrFutureTimestamp
	}

	slot := slotIndex(h.Timestamp, interval)
	producerID, ok := scheduledDelegate(p.Root, slot)
	if !ok {
		return errors.Wrap(ErrWrongSigner, "no active delegate set")
	}
	producer, err := accountForProduction(p.Root, producerID)
	if err != nil {
		return err
	}
	signerAddr, err := chaincrypto.AddressFromPubkey(h.Signee)
	if err != nil {
		return errors.Wrap(ErrInvalidSignature, "malformed signer key")
	}
	if ownerAddress(producer) != signerAddr {
		return errors.Wrap(ErrWrongSigner, "signer is not the scheduled delegate")
	}
	if !p.Node.SkipSignatureVerify {
		digest := chaincrypto.SigningDigest(p.ChainID, HeaderDigest(h))
		if !chaincrypto.VerifySignature(signerAddr, digest, h.Signature) {
			return ErrInvalidSignature
		}
	}

	// 3. Open a pending state layered over the root.
	ps := pending.New(p.Root)
	ps.SetClock(func() time.Time { return h.Timestamp })

	prevTimestamp := h.Timestamp.Add(-interval)
	if headBlock != nil {
		prevTimestamp = headBlock.Header.Timestamp
	}

	// 4. Delegate production accounting.
	if err := recordProduction(ps, p.Consensus, prevTimestamp, block); err != nil {
		return err
	}

	// 5. Delegate pay.
	if err := payDelegate(ps, p.Consensus, producerID); err != nil {
		return err
	}

	// 6. Market pass.
	shortExpiration := h.Timestamp.Add(p.Consensus.MaxShortPeriod)
	for _, pair := range ps.GetDirtyMarkets() {
		rules := market.RulesAt(p.Consensus, h.BlockNum)
		cfg := market.DefaultConfig(p.Consensus)
		if _, err := market.Run(ps, cfg, rules, pair.Quote, pair.Base, h.Timestamp, shortExpiration); err != nil {
			return errors.Wrapf(err, "market pass %d/%d", pair.Quote, pair.Base)
		}
	}
	ps.ClearDirtyMarkets()

	// 7. Transaction pass.
	evalCtx := evaluator.Context{
		ChainID:                   p.ChainID,
		Now:                       h.Timestamp,
		SkipSignatureVerification: p.Node.SkipSignatureVerify,
		RequiredFees:              types.Share(p.Consensus.RequiredFees),
	}
	var totalFees types.Share
	for i, raw := range block.Transactions {
		var stx evaluator.SignedTransaction
		dec := gob.NewDecoder(bytes.NewReader(raw))
		if err := dec.Decode(&stx); err != nil {
			return errors.Wrapf(err, "decode transaction %d", i)
		}
		rec, err := evaluator.Evaluate(ps, evalCtx, &stx)
		if err != nil {
			return errors.Wrapf(err, "transaction %d", i)
		}
		for _, fee := range rec.FeesPaid {
			totalFees += fee
		}
	}

	// 8. Active delegate set refresh.
	if p.Consensus.ActiveDelegateCount > 0 && h.BlockNum%uint32(p.Consensus.ActiveDelegateCount) == 0 {
		refreshActiveDelegateSet(ps, p.Consensus, ps.GetCurrentRandomSeed())
	}

	// 9. Random seed update.
	newSeed := chaincrypto.UpdateRandomSeed(ps.GetCurrentRandomSeed(), h.RevealedSecret)
	ps.StoreCurrentRandomSeed(newSeed)
	ps.StoreHeadBlockNum(h.BlockNum)

	blockID := block.ID()

	// 10. Save undo state (only past the last checkpoint).
	var undo state.UndoState
	ps.GetUndoState(blockID, &undo)
	if pastLastCheckpoint(p.Consensus, h.BlockNum) {
		p.Index.StoreUndoState(&undo)
	}

	// 11. Commit the pending state.
	if err := ps.ApplyChanges(); err != nil {
		return errors.Wrap(err, "apply_changes")
	}

	p.notifyStateChanged(&undo)
	p.notifyApplied(BlockSummary{
		BlockID:   blockID,
		BlockNum:  h.BlockNum,
		Timestamp: h.Timestamp,
		TxCount:   len(block.Transactions),
		TotalFees: totalFees,
	})
	return nil
}

// PopBlock reverses the current head block: reads its undo state,
// applies it to the root store, decrements the head, and marks the
// fork node not-included (spec §4.F "pop_block").
func (p *Processor) PopBlock() (types.BlockID, error) {
	headID, ok := p.Index.GetHeadBlockID()
	if !ok {
		return types.BlockID{}, ErrNoHeadBlock
	}
	undo, ok := p.Index.GetUndoState(headID)
	if !ok {
		return types.BlockID{}, errors.Wrapf(ErrNoHeadBlock, "no undo state for %s", headID)
	}
	headNum := p.Root.GetHeadBlockNum()
	applyUndo(p.Root, undo)

	node, ok := p.Index.GetForkNode(headID)
	if !ok {
		return types.BlockID{}, errors.Wrap(ErrNoHeadBlock, "head has no fork node")
	}
	node.IsIncluded = false
	p.Index.StoreForkNode(node)

	newHeadID := node.PreviousID
	p.Index.StoreHeadBlockID(newHeadID)
	p.Root.StoreHeadBlockNum(headNum - 1)
	p.Index.RemoveUndoState(headID)

	p.notifyStateChanged(undo)
	return newHeadID, nil
}

// pastLastCheckpoint reports whether blockNum is beyond every
// checkpointed height, so undo history is only retained where reorgs
// remain possible (spec §4.F step 10).
func pastLastCheckpoint(cfg params.Consensus, blockNum uint32) bool {
	for cp := range cfg.Checkpoints {
		if blockNum <= cp {
			return false
		}
	}
	return true
}

// ownerAddress derives the signing address to check a delegate's
// production against, from its most recent active key.
func ownerAddress(a *state.Account) types.Address {
	if len(a.ActiveKeys) == 0 {
		return types.Address{}
	}
	addr, err := chaincrypto.AddressFromPubkey(a.ActiveKeys[len(a.ActiveKeys)-1].Key)
	if err != nil {
		return types.Address{}
	}
	return addr
}
