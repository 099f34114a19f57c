package block

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/chain/state"
	chaincrypto "github.com/bts-go/chaincore/pkg/crypto"
	"github.com/bts-go/chaincore/pkg/types"
)

func newTestProcessor(t *testing.T, cfg params.Config, genesisTime time.Time, delegateKey []byte) *Processor {
	t.Helper()
	root := state.NewMemStore()
	root.SetClock(func() time.Time { return genesisTime.Add(365 * 24 * time.Hour) })
	idx := state.NewMemStore()

	root.StoreAccount(&state.Account{ID: 0, Name: "god"})
	root.StoreAccount(&state.Account{
		ID:         1,
		Name:       "delegate0",
		OwnerKey:   delegateKey,
		ActiveKeys: []state.ActiveKey{{Key: delegateKey, ValidFrom: genesisTime}},
		Delegate: &state.DelegateInfo{
			PayRatePct:     100,
			NextSecretHash: chaincrypto.NextSecretHash(types.Hash{}),
		},
	})
	root.StoreHeadBlockNum(0)
	SeedActiveDelegates(root, []types.AccountID{1})

	idx.StoreForkNode(&state.ForkNode{
		BlockID:    types.BlockID{},
		IsKnown:    true,
		IsLinked:   true,
		IsValid:    true,
		IsIncluded: true,
	})
	idx.StoreHeadBlockID(types.BlockID{})

	return &Processor{
		Root:      root,
		Index:     idx,
		Consensus: cfg.Consensus,
		Node:      cfg.Node,
		ChainID:   types.Hash{9},
		Logger:    zap.NewNop().Sugar(),
	}
}

func signedHeader(t *testing.T, p *Processor, signer *chaincrypto.Signer, num uint32, prev types.BlockID, ts time.Time, revealed, nextHash types.Hash) state.BlockHeader {
	t.Helper()
	h := state.BlockHeader{
		BlockNum:       num,
		PreviousID:     prev,
		Timestamp:      ts,
		Signee:         signer.PublicKeyBytes(),
		RevealedSecret: revealed,
		NextSecretHash: nextHash,
	}
	if !p.Node.SkipSignatureVerify {
		digest := chaincrypto.SigningDigest(p.ChainID, HeaderDigest(h))
		sig, err := signer.Sign(digest)
		if err != nil {
			t.Fatalf("Sign: %v", err)
		}
		h.Signature = sig
	}
	return h
}

func TestExtendChainThenPopBlockRoundTrips(t *testing.T) {
	signer, err := chaincrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	cfg := params.Default()
	cfg.Consensus.ActiveDelegateCount = 1
	cfg.Node.SkipSignatureVerify = true

	genesisTime := time.Unix(1700000000, 0).UTC()
	p := newTestProcessor(t, cfg, genesisTime, signer.PublicKeyBytes())

	interval := cfg.Consensus.BlockInterval
	slot := SlotIndex(p.Root.Now(), interval)
	ts1 := time.Unix(slot*int64(interval/time.Second), 0).UTC()

	h1 := signedHeader(t, p, signer, 1, types.BlockID{}, ts1, types.Hash{}, chaincrypto.NextSecretHash(types.Hash{1}))
	b1 := &state.Block{Header: h1}
	p.Index.StoreForkNode(&state.ForkNode{BlockID: b1.ID(), PreviousID: types.BlockID{}, IsKnown: true, IsLinked: true, IsValid: true})

	if err := p.ExtendChain(b1.ID(), b1); err != nil {
		t.Fatalf("ExtendChain(1): %v", err)
	}
	if p.Root.GetHeadBlockNum() != 1 {
		t.Fatalf("head_block_num = %d, want 1", p.Root.GetHeadBlockNum())
	}
	headID, _ := p.Index.GetHeadBlockID()
	if headID != b1.ID() {
		t.Fatal("head did not move to block 1")
	}

	prevHeadBlockNum := p.Root.GetHeadBlockNum()
	poppedTo, err := p.PopBlock()
	if err != nil {
		t.Fatalf("PopBlock: %v", err)
	}
	if poppedTo != (types.BlockID{}) {
		t.Fatalf("PopBlock returned %s, want the zero genesis id", poppedTo)
	}
	if p.Root.GetHeadBlockNum() != prevHeadBlockNum-1 {
		t.Fatalf("head_block_num after pop = %d, want %d", p.Root.GetHeadBlockNum(), prevHeadBlockNum-1)
	}
	node, _ := p.Index.GetForkNode(b1.ID())
	if node.IsIncluded {
		t.Fatal("popped block's fork node should no longer be marked included")
	}
}

func TestExtendChainRejectsWrongSigner(t *testing.T) {
	signer, err := chaincrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	impostor, err := chaincrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	cfg := params.Default()
	cfg.Consensus.ActiveDelegateCount = 1
	cfg.Node.SkipSignatureVerify = true

	genesisTime := time.Unix(1700000000, 0).UTC()
	p := newTestProcessor(t, cfg, genesisTime, signer.PublicKeyBytes())

	interval := cfg.Consensus.BlockInterval
	slot := SlotIndex(p.Root.Now(), interval)
	ts1 := time.Unix(slot*int64(interval/time.Second), 0).UTC()

	h1 := signedHeader(t, p, impostor, 1, types.BlockID{}, ts1, types.Hash{}, chaincrypto.NextSecretHash(types.Hash{1}))
	b1 := &state.Block{Header: h1}
	p.Index.StoreForkNode(&state.ForkNode{BlockID: b1.ID(), PreviousID: types.BlockID{}, IsKnown: true, IsLinked: true, IsValid: true})

	err = p.ExtendChain(b1.ID(), b1)
	if err == nil {
		t.Fatal("expected ExtendChain to reject a block signed by a non-scheduled delegate")
	}
	node, _ := p.Index.GetForkNode(b1.ID())
	if node.IsValid {
		t.Fatal("a rejected block's fork node must be marked invalid")
	}
}
