package mempool

import (
	"errors"
	"testing"
	"time"

	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

func registerTx(name string, ownerKey byte) *evaluator.SignedTransaction {
	return &evaluator.SignedTransaction{
		Transaction: evaluator.Transaction{
			Operations: []evaluator.Operation{
				{Tag: evaluator.OpRegisterAccount, RegisterAccount: &evaluator.RegisterAccountOp{
					Name:     name,
					OwnerKey: []byte{ownerKey},
				}},
			},
		},
	}
}

func newTestStore() state.Store {
	store := state.NewMemStore()
	store.StoreAccount(&state.Account{ID: 0, Name: "god"})
	store.StoreHeadBlockNum(0)
	return store
}

func newTestContext() evaluator.Context {
	return evaluator.Context{
		ChainID:                   types.Hash{1},
		Now:                       time.Unix(1700000000, 0).UTC(),
		SkipSignatureVerification: true,
		RequiredFees:              0,
	}
}

func TestAcceptQueuesAndRejectsDuplicate(t *testing.T) {
	store := newTestStore()
	mp := New(store, newTestContext(), Config{BaseRelayFee: 0, TargetQueueDepth: 10})

	stx := registerTx("alice", 1)
	rec, err := mp.Accept(stx, false)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if rec.TxID != stx.ID() {
		t.Fatal("record tx id mismatch")
	}
	if mp.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", mp.Len())
	}

	if _, err := mp.Accept(stx, false); err != ErrAlreadyPending {
		t.Fatalf("expected ErrAlreadyPending, got %v", err)
	}
}

func TestAcceptRejectsBelowRelayFeeUnlessOverridden(t *testing.T) {
	store := newTestStore()
	// register_account carries no fee of its own, so a BaseRelayFee
	// above zero is what rejects it here, not the evaluator's own
	// required-fee check (which stays at zero).
	mp := New(store, newTestContext(), Config{BaseRelayFee: 100, TargetQueueDepth: 10})

	stx := registerTx("alice", 1)
	if _, err := mp.Accept(stx, false); !errors.Is(err, ErrInsufficientRelayFee) {
		t.Fatalf("expected ErrInsufficientRelayFee, got %v", err)
	}
	if mp.Len() != 0 {
		t.Fatal("a rejected transaction must not be queued")
	}

	if _, err := mp.Accept(stx, true); err != nil {
		t.Fatalf("override_limits should skip the relay-fee gate, got %v", err)
	}
	if mp.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after the overridden accept", mp.Len())
	}
}

func TestOnNewHeadDropsTransactionsThatNoLongerValidate(t *testing.T) {
	store := newTestStore()
	mp := New(store, newTestContext(), Config{BaseRelayFee: 0, TargetQueueDepth: 10})

	first := registerTx("alice", 1)
	if _, err := mp.Accept(first, false); err != nil {
		t.Fatalf("Accept(first): %v", err)
	}

	// Simulate a head that externally committed a conflicting
	// registration for the same name; re-evaluating the queued tx
	// against the fresh head must now fail and drop it.
	store.StoreAccount(&state.Account{ID: 1, Name: "alice", OwnerKey: []byte{9}})

	mp.OnNewHead(store)

	for _, tx := range mp.GetPendingTransactions() {
		if tx.ID() == first.ID() {
			t.Fatal("OnNewHead should have dropped a transaction that no longer validates against the new head")
		}
	}
}

func TestRelayFeeScalesQuadraticallyWithQueueDepth(t *testing.T) {
	store := newTestStore()
	mp := New(store, newTestContext(), Config{BaseRelayFee: 10, TargetQueueDepth: 2})

	if fee := mp.relayFee(); fee != 10 {
		t.Fatalf("relayFee() at depth 0 = %d, want the flat BaseRelayFee of 10", fee)
	}

	for i := 0; i < 4; i++ {
		stx := registerTx("user"+string(rune('a'+i)), byte(i+10))
		if _, err := mp.Accept(stx, true); err != nil {
			t.Fatalf("Accept(%d): %v", i, err)
		}
	}

	// depth 4 > target 2: overage 2, relay_fee = base * overage^2 = 10*4 = 40
	// (chain_database.cpp:1616-1624's literal replacement formula, not additive).
	if fee := mp.relayFee(); fee != 40 {
		t.Fatalf("relayFee() at depth 4 = %d, want 40", fee)
	}
}
