package boundary

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/chain/block"
	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/mempool"
	"github.com/bts-go/chaincore/pkg/chain/state"
	chaincrypto "github.com/bts-go/chaincore/pkg/crypto"
	"github.com/bts-go/chaincore/pkg/genesis"
	"github.com/bts-go/chaincore/pkg/types"
)

func newTestService(t *testing.T, cfg params.Config, doc *genesis.Document) (*Service, types.Hash) {
	t.Helper()
	root := state.NewMemStore()
	idx := state.NewMemStore()
	chainID, err := genesis.Apply(root, idx, cfg.Consensus, doc)
	if err != nil {
		t.Fatalf("genesis.Apply: %v", err)
	}

	proc := &block.Processor{
		Root:      root,
		Index:     idx,
		Consensus: cfg.Consensus,
		Node:      cfg.Node,
		ChainID:   chainID,
		Logger:    zap.NewNop().Sugar(),
	}

	ctx := evaluator.Context{
		ChainID:                   chainID,
		Now:                       doc.Timestamp,
		SkipSignatureVerification: cfg.Node.SkipSignatureVerify,
		RequiredFees:              0,
	}
	mp := mempool.New(root, ctx, mempool.Config{BaseRelayFee: 0, TargetQueueDepth: 1000})

	return &Service{Root: root, Index: idx, Processor: proc, Mempool: mp}, chainID
}

func TestHandleBlockExtendsHead(t *testing.T) {
	signer, err := chaincrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	doc := &genesis.Document{
		Timestamp:          time.Unix(1700000000, 0).UTC(),
		BaseSymbol:         "XTS",
		BaseName:           "ChainCore Token",
		BasePrecision:      5,
		MaximumShareSupply: 1_000_000_000 * 100000,
		Accounts: []genesis.AccountEntry{
			{Name: "delegate0", OwnerKey: signer.PublicKeyBytes(), IsDelegate: true, PayRatePct: 100},
		},
	}

	cfg := params.Default()
	cfg.Consensus.ActiveDelegateCount = 1
	cfg.Node.SkipSignatureVerify = true

	svc, _ := newTestService(t, cfg, doc)

	header := state.BlockHeader{
		BlockNum:       1,
		PreviousID:     types.BlockID{},
		Timestamp:      doc.Timestamp.Add(cfg.Consensus.BlockInterval),
		Signee:         signer.PublicKeyBytes(),
		RevealedSecret: types.Hash{},
		NextSecretHash: chaincrypto.NextSecretHash(types.Hash{1}),
	}
	full := &state.Block{Header: header}

	fd, err := svc.HandleBlock(full)
	if err != nil {
		t.Fatalf("HandleBlock: %v", err)
	}
	if !fd.IsValid || !fd.IsIncluded {
		t.Fatalf("expected the block to be validated and included, got %+v", fd)
	}

	headID, ok := svc.Index.GetHeadBlockID()
	if !ok || headID != full.ID() {
		t.Fatal("head did not move to the new block")
	}
	if svc.Root.GetHeadBlockNum() != 1 {
		t.Fatalf("head_block_num = %d, want 1", svc.Root.GetHeadBlockNum())
	}

	if !svc.HasItem(full.ID()) {
		t.Fatal("HasItem false for a block just handled")
	}
	raw, ok := svc.GetItem(full.ID())
	if !ok || len(raw) == 0 {
		t.Fatal("GetItem returned no bytes for a known block")
	}

	ids, remaining := svc.GetItemIDs(types.BlockID{}, 10)
	if len(ids) != 1 || ids[0] != full.ID() {
		t.Fatalf("GetItemIDs = %v, want [%s]", ids, full.ID())
	}
	if remaining != 0 {
		t.Fatalf("remaining = %d, want 0", remaining)
	}
}

func TestStorePendingTransactionRejectsDuplicate(t *testing.T) {
	doc := &genesis.Document{
		Timestamp:          time.Unix(1700000000, 0).UTC(),
		BaseSymbol:         "XTS",
		BaseName:           "ChainCore Token",
		BasePrecision:      5,
		MaximumShareSupply: 1_000_000_000 * 100000,
		Accounts: []genesis.AccountEntry{
			{Name: "delegate0", OwnerKey: []byte{1}, IsDelegate: true, PayRatePct: 100},
		},
	}
	cfg := params.Default()
	cfg.Consensus.ActiveDelegateCount = 1
	cfg.Node.SkipSignatureVerify = true

	svc, _ := newTestService(t, cfg, doc)

	stx := &evaluator.SignedTransaction{
		Transaction: evaluator.Transaction{
			Operations: []evaluator.Operation{
				{Tag: evaluator.OpRegisterAccount, RegisterAccount: &evaluator.RegisterAccountOp{
					Name:     "alice",
					OwnerKey: []byte{2},
				}},
			},
		},
	}

	rec, err := svc.StorePendingTransaction(stx, false)
	if err != nil {
		t.Fatalf("StorePendingTransaction: %v", err)
	}
	if rec.TxID != stx.ID() {
		t.Fatalf("record tx id mismatch")
	}

	if _, err := svc.StorePendingTransaction(stx, false); err == nil {
		t.Fatal("expected a duplicate-transaction rejection on resubmit")
	}
}

func TestGetForkList(t *testing.T) {
	doc := &genesis.Document{
		Timestamp:          time.Unix(1700000000, 0).UTC(),
		BaseSymbol:         "XTS",
		BaseName:           "ChainCore Token",
		BasePrecision:      5,
		MaximumShareSupply: 1_000_000_000 * 100000,
		Accounts: []genesis.AccountEntry{
			{Name: "delegate0", OwnerKey: []byte{1}, IsDelegate: true, PayRatePct: 100},
		},
	}
	cfg := params.Default()
	cfg.Consensus.ActiveDelegateCount = 1

	svc, _ := newTestService(t, cfg, doc)

	history := svc.GetForkList(types.BlockID{})
	if len(history) != 1 || history[0] != (types.BlockID{}) {
		t.Fatalf("GetForkList(genesis) = %v, want [zero id]", history)
	}
}
