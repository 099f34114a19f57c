package evaluator

import (
	"testing"
	"time"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

func newEvaluatorTestStore() state.Store {
	s := state.NewMemStore()
	s.StoreAsset(&state.Asset{ID: types.BaseAssetID, Symbol: "BTS", MaximumShareSupply: 1_000_000_000, CurrentShareSupply: 1_000_000_000})
	return s
}

func newEvaluatorTestContext() Context {
	return Context{
		Now:                       time.Unix(1700000000, 0).UTC(),
		SkipSignatureVerification: true,
	}
}

func creditTestBalance(store state.Store, owner types.Address, assetID types.AssetID, amount types.Share) types.BalanceID {
	id := defaultBalanceID(owner, assetID)
	store.StoreBalance(&state.Balance{ID: id, WithdrawCondHash: id, Owner: owner, AssetID: assetID, Amount: amount, CreatedAt: store.Now()})
	return id
}

// TestEvaluateCreditsNetFeeToAccumulatedFees matches spec.md §8 example
// 2 (simple transfer): A withdraws 3.1e5, deposits 3e5 to B, leaving a
// net fee of 1e4, and checks that fee is credited to accumulated_fees
// rather than silently discarded (the review's comment-3 fix).
func TestEvaluateCreditsNetFeeToAccumulatedFees(t *testing.T) {
	store := newEvaluatorTestStore()
	a := types.Address{0xAA}
	b := types.Address{0xBB}
	aBalanceID := creditTestBalance(store, a, types.BaseAssetID, 1_000_000)

	stx := &SignedTransaction{Transaction: Transaction{Operations: []Operation{
		{Tag: OpWithdraw, Withdraw: &WithdrawOp{BalanceID: aBalanceID, AssetID: types.BaseAssetID, Amount: 310000}},
		{Tag: OpDeposit, Deposit: &DepositOp{ConditionHash: defaultBalanceID(b, types.BaseAssetID), Owner: b, AssetID: types.BaseAssetID, Amount: 300000}},
	}}}

	rec, err := Evaluate(store, newEvaluatorTestContext(), stx)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if fee := rec.FeesPaid[types.BaseAssetID]; fee != 10000 {
		t.Fatalf("FeesPaid[base] = %d, want 10000", fee)
	}
	if got := store.GetAccumulatedFees(types.BaseAssetID); got != 10000 {
		t.Fatalf("accumulated_fees = %d, want 10000", got)
	}

	aBal, _ := store.GetBalance(aBalanceID)
	if aBal.Amount != 690000 {
		t.Fatalf("A's balance = %d, want 690000", aBal.Amount)
	}
	bBal, ok := store.GetBalance(defaultBalanceID(b, types.BaseAssetID))
	if !ok || bBal.Amount != 300000 {
		t.Fatalf("B's balance = %v, want 300000", bBal)
	}
}

// TestEvaluateRejectsFeeBelowRequired checks the evaluator's fee floor
// (spec §4.D "Fee rule") independent of accumulated_fees bookkeeping.
func TestEvaluateRejectsFeeBelowRequired(t *testing.T) {
	store := newEvaluatorTestStore()
	a := types.Address{0xAA}
	aBalanceID := creditTestBalance(store, a, types.BaseAssetID, 1_000_000)

	stx := &SignedTransaction{Transaction: Transaction{Operations: []Operation{
		{Tag: OpWithdraw, Withdraw: &WithdrawOp{BalanceID: aBalanceID, AssetID: types.BaseAssetID, Amount: 100}},
	}}}

	ctx := newEvaluatorTestContext()
	ctx.RequiredFees = 1000

	if _, err := Evaluate(store, ctx, stx); err == nil {
		t.Fatal("expected ErrInsufficientFeesPaid, got nil")
	}
	if got := store.GetAccumulatedFees(types.BaseAssetID); got != 0 {
		t.Fatalf("a rejected transaction must not touch accumulated_fees, got %d", got)
	}
}

// TestApplyWithdrawPayDepositsIntoDestination checks the review's
// comment-4 fix: withdraw_pay must deposit the withdrawn amount into
// its destination balance rather than destroying it with no
// accounting trace (spec §8 universal conservation invariant).
func TestApplyWithdrawPayDepositsIntoDestination(t *testing.T) {
	store := newEvaluatorTestStore()
	delegateID := types.AccountID(1)
	store.StoreAccount(&state.Account{
		ID:         delegateID,
		Name:       "delegate1",
		ActiveKeys: []state.ActiveKey{{Key: []byte{1}}},
		Delegate:   &state.DelegateInfo{PayRatePct: 100, PayBalance: 50000},
	})
	dest := types.Address{0xDE}

	required := make(map[types.Address]bool)
	withdrawn, deposited, market, err := applyWithdrawPay(store, &WithdrawPayOp{DelegateID: delegateID, Amount: 20000, Destination: dest}, required)
	if err != nil {
		t.Fatalf("applyWithdrawPay: %v", err)
	}
	if withdrawn != 0 || deposited != 0 || market != 0 {
		t.Fatalf("applyWithdrawPay fee-ledger amounts = (%d,%d,%d), want all zero (internal transfer)", withdrawn, deposited, market)
	}

	acct, _ := store.GetAccount(delegateID)
	if acct.Delegate.PayBalance != 30000 {
		t.Fatalf("pay_balance = %d, want 30000", acct.Delegate.PayBalance)
	}
	destBal, ok := store.GetBalance(defaultBalanceID(dest, types.BaseAssetID))
	if !ok || destBal.Amount != 20000 {
		t.Fatalf("destination balance = %v, want 20000", destBal)
	}
}

// TestApplyUpdateBalanceVoteTalliesAndRevotes checks the review's
// comment-2 fix: casting a vote creates a slate, sets the balance's
// SlateID, and adds the balance's amount to every named delegate's
// votes_for; changing the vote removes it from the old delegate and
// adds it to the new one.
func TestApplyUpdateBalanceVoteTalliesAndRevotes(t *testing.T) {
	store := newEvaluatorTestStore()
	voter := types.Address{0x01}
	balanceID := creditTestBalance(store, voter, types.BaseAssetID, 500000)

	store.StoreAccount(&state.Account{ID: 10, Name: "delegate-a", Delegate: &state.DelegateInfo{}})
	store.StoreAccount(&state.Account{ID: 11, Name: "delegate-b", Delegate: &state.DelegateInfo{}})

	required := make(map[types.Address]bool)
	if err := applyUpdateBalanceVote(store, &UpdateBalanceVoteOp{BalanceID: balanceID, Delegates: []types.AccountID{10}}, required); err != nil {
		t.Fatalf("applyUpdateBalanceVote (vote a): %v", err)
	}
	if !required[voter] {
		t.Fatal("update_balance_vote must require the balance owner's signature")
	}
	delegateA, _ := store.GetAccount(10)
	if delegateA.Delegate.VotesFor != 500000 {
		t.Fatalf("delegate-a votes_for = %d, want 500000", delegateA.Delegate.VotesFor)
	}
	bal, _ := store.GetBalance(balanceID)
	if bal.SlateID.IsZero() {
		t.Fatal("balance's SlateID was not set")
	}

	// Re-vote for delegate-b: delegate-a's tally must drop back to zero
	// and delegate-b's must pick up the same weight.
	if err := applyUpdateBalanceVote(store, &UpdateBalanceVoteOp{BalanceID: balanceID, Delegates: []types.AccountID{11}}, required); err != nil {
		t.Fatalf("applyUpdateBalanceVote (vote b): %v", err)
	}
	delegateA, _ = store.GetAccount(10)
	delegateB, _ := store.GetAccount(11)
	if delegateA.Delegate.VotesFor != 0 {
		t.Fatalf("delegate-a votes_for after re-vote = %d, want 0", delegateA.Delegate.VotesFor)
	}
	if delegateB.Delegate.VotesFor != 500000 {
		t.Fatalf("delegate-b votes_for = %d, want 500000", delegateB.Delegate.VotesFor)
	}
}
