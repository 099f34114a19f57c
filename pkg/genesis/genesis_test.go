package genesis

import (
	"testing"
	"time"

	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

func testDocument(delegateCount int) *Document {
	doc := &Document{
		Timestamp:          time.Unix(1700000000, 0).UTC(),
		BaseSymbol:         "XTS",
		BaseName:           "ChainCore Token",
		BasePrecision:      5,
		MaximumShareSupply: 1_000_000_000 * 100000,
		Balances: []BalanceEntry{
			{Address: types.Address{1}, Amount: 10 * 100000},
			{Address: types.Address{2}, Amount: 5 * 100000},
		},
	}
	for i := 0; i < delegateCount; i++ {
		doc.Accounts = append(doc.Accounts, AccountEntry{
			Name:       "delegate",
			OwnerKey:   []byte{byte(i)},
			IsDelegate: true,
			PayRatePct: 100,
		})
	}
	return doc
}

func TestChainIDDeterministic(t *testing.T) {
	doc := testDocument(1)
	a := doc.ChainID()
	b := doc.ChainID()
	if a != b {
		t.Fatalf("ChainID not deterministic: %s vs %s", a, b)
	}

	other := testDocument(1)
	other.Accounts[0].Name = "different"
	if other.ChainID() == a {
		t.Fatal("ChainID did not change when document content changed")
	}
}

func TestApplyNotEnoughDelegates(t *testing.T) {
	cfg := params.Default().Consensus
	cfg.ActiveDelegateCount = 5
	doc := testDocument(1)

	root := state.NewMemStore()
	idx := state.NewMemStore()
	if _, err := Apply(root, idx, cfg, doc); err == nil {
		t.Fatal("expected ErrNotEnoughDelegates")
	}
}

func TestApplySeedsState(t *testing.T) {
	cfg := params.Default().Consensus
	cfg.ActiveDelegateCount = 1
	doc := testDocument(1)

	root := state.NewMemStore()
	idx := state.NewMemStore()
	chainID, err := Apply(root, idx, cfg, doc)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if chainID != doc.ChainID() {
		t.Fatalf("returned chain id %s != document chain id %s", chainID, doc.ChainID())
	}

	god, ok := root.GetAccount(0)
	if !ok || god.Name != "god" {
		t.Fatal("god account not seeded at id 0")
	}
	delegateAcc, ok := root.GetAccount(1)
	if !ok || !delegateAcc.IsDelegate() {
		t.Fatal("delegate account not seeded at id 1")
	}

	base, ok := root.GetAsset(types.BaseAssetID)
	if !ok || base.Symbol != "XTS" {
		t.Fatal("base asset not seeded")
	}
	if base.CurrentShareSupply != 15*100000 {
		t.Fatalf("current_share_supply = %d, want %d", base.CurrentShareSupply, 15*100000)
	}

	active := evaluator.DelegateAccountIDs(root)
	if len(active) != 1 || active[0] != 1 {
		t.Fatalf("delegate account ids = %v, want [1]", active)
	}

	head, ok := idx.GetHeadBlockID()
	if !ok || !head.IsZero() {
		t.Fatal("genesis head block id should be the zero id")
	}
	node, ok := idx.GetForkNode(types.BlockID{})
	if !ok || !node.IsValid || !node.IsIncluded || !node.IsLinked {
		t.Fatal("genesis fork node not seeded as valid/linked/included")
	}

	got, err := VerifyChainID(root, doc)
	if err != nil {
		t.Fatalf("VerifyChainID on freshly-applied store: %v", err)
	}
	if got != chainID {
		t.Fatalf("VerifyChainID returned %s, want %s", got, chainID)
	}

	other := testDocument(1)
	other.BaseSymbol = "DIFF"
	if _, err := VerifyChainID(root, other); err == nil {
		t.Fatal("expected ErrWrongChainID for a mismatched document")
	}
}

func TestBootstrapAppliesOnceThenVerifies(t *testing.T) {
	cfg := params.Default().Consensus
	cfg.ActiveDelegateCount = 1
	doc := testDocument(1)

	root := state.NewMemStore()
	idx := state.NewMemStore()

	if IsApplied(root) {
		t.Fatal("fresh store should not report IsApplied")
	}
	first, err := Bootstrap(root, idx, cfg, doc)
	if err != nil {
		t.Fatalf("Bootstrap (apply): %v", err)
	}
	if !IsApplied(root) {
		t.Fatal("store should report IsApplied after Bootstrap")
	}

	second, err := Bootstrap(root, idx, cfg, doc)
	if err != nil {
		t.Fatalf("Bootstrap (verify): %v", err)
	}
	if first != second {
		t.Fatalf("Bootstrap chain id changed across calls: %s vs %s", first, second)
	}

	other := testDocument(1)
	other.BaseSymbol = "DIFF"
	if _, err := Bootstrap(root, idx, cfg, other); err == nil {
		t.Fatal("expected Bootstrap to reject a mismatched document on a re-applied store")
	}
}
