package evaluator

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

const (
	nextAccountIDProperty = "next_account_id"
	nextAssetIDProperty   = "next_asset_id"
)

// nextCounter increments and returns a monotone uint64 counter stored
// as a chain property, used to assign account and asset ids (spec
// §4.D "monotone account id assignment").
func nextCounter(store state.Store, propName string) uint64 {
	var next uint64
	if raw, ok := store.GetProperty(propName); ok && len(raw) == 8 {
		next = binary.BigEndian.Uint64(raw)
	}
	next++
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, next)
	store.StoreProperty(propName, out)
	return next
}

func seedCounter(store state.Store, propName string, n uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, n)
	store.StoreProperty(propName, buf)
}

// SeedNextAccountID sets the monotone account-id counter so
// register_account continues numbering after the n accounts genesis
// assigns directly (pkg/genesis).
func SeedNextAccountID(store state.Store, n uint64) { seedCounter(store, nextAccountIDProperty, n) }

// SeedNextAssetID sets the monotone asset-id counter so create_asset
// continues numbering after the n market assets genesis assigns
// directly (pkg/genesis).
func SeedNextAssetID(store state.Store, n uint64) { seedCounter(store, nextAssetIDProperty, n) }

// SeedDelegateID records id as a registered delegate, mirroring
// appendDelegateID for genesis-time accounts whose ids are assigned
// directly rather than through nextCounter.
func SeedDelegateID(store state.Store, id types.AccountID, isDelegate bool) {
	if !isDelegate {
		return
	}
	appendDelegateID(store, id)
}

// defaultBalanceID derives the content-addressed balance id an owner's
// plain address+asset pair resolves to absent any other withdraw
// condition, the same derivation issue_asset and withdraw_pay credit
// into.
func defaultBalanceID(owner types.Address, assetID types.AssetID) types.Hash {
	assetIDBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(assetIDBytes, uint32(assetID))
	return types.HashBytes(append(append([]byte{}, owner[:]...), assetIDBytes...))
}

// addressFromPubkey derives the signing address from a serialized
// uncompressed public key (spec §4.D: signatures authenticate against
// an account's active-key history).
func addressFromPubkey(pubkeyBytes []byte) types.Address {
	pubkey, err := ethcrypto.UnmarshalPubkey(pubkeyBytes)
	if err != nil {
		return types.Address{}
	}
	return ethcrypto.PubkeyToAddress(*pubkey)
}

// applyOperation mutates store for a single operation and returns the
// base-asset amounts withdrawn, deposited, and moved into/out of an
// order slot (market movement), for the caller's fee computation
// (spec §4.D "Fee rule"). It also adds every address whose
// authorization the operation requires into required.
func applyOperation(store state.Store, ctx Context, op Operation, required map[types.Address]bool) (withdrawn, deposited, marketMovement types.Share, err error) {
	switch op.Tag {
	case OpWithdraw:
		return applyWithdraw(store, op.Withdraw, required)
	case OpDeposit:
		return applyDeposit(store, op.Deposit)
	case OpRegisterAccount:
		return 0, 0, 0, applyRegisterAccount(store, op.RegisterAccount)
	case OpUpdateAccount:
		return 0, 0, 0, applyUpdateAccount(store, op.UpdateAccount, required)
	case OpCreateAsset:
		return 0, 0, 0, applyCreateAsset(store, op.CreateAsset)
	case OpUpdateAsset:
		return 0, 0, 0, applyUpdateAsset(store, op.UpdateAsset)
	case OpIssueAsset:
		return applyIssueAsset(store, op.IssueAsset)
	case OpBid:
		return applyOrder(store, ctx, orderKind{table: "bid"}, op.Bid, required)
	case OpAsk:
		return applyOrder(store, ctx, orderKind{table: "ask"}, op.Ask, required)
	case OpShort:
		return applyShort(store, ctx, op.Short, required)
	case OpWithdrawPay:
		return applyWithdrawPay(store, op.WithdrawPay, required)
	case OpUpdateBalanceVote:
		return 0, 0, 0, applyUpdateBalanceVote(store, op.UpdateBalanceVote, required)
	default:
		return 0, 0, 0, errors.Wrapf(ErrUnsupportedChainOperation, "tag %q", op.Tag)
	}
}

func applyWithdraw(store state.Store, op *WithdrawOp, required map[types.Address]bool) (types.Share, types.Share, types.Share, error) {
	bal, ok := store.GetBalance(op.BalanceID)
	if !ok {
		return 0, 0, 0, errors.Wrap(ErrInsufficientFunds, "balance not found")
	}
	if bal.AssetID != op.AssetID {
		return 0, 0, 0, ErrAssetTypeMismatch
	}
	if bal.Amount < op.Amount {
		return 0, 0, 0, errors.Wrapf(ErrInsufficientFunds, "have %d, need %d", bal.Amount, op.Amount)
	}
	required[bal.Owner] = true
	newAmount, err := types.SubChecked(bal.Amount, op.Amount)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrSubtractionOverflow)
	}
	bal.Amount = newAmount
	bal.LastUpdate = store.Now()
	store.StoreBalance(bal)

	if op.AssetID == types.BaseAssetID {
		return op.Amount, 0, 0, nil
	}
	return 0, 0, 0, nil
}

func applyDeposit(store state.Store, op *DepositOp) (types.Share, types.Share, types.Share, error) {
	if _, ok := store.GetAsset(op.AssetID); !ok {
		return 0, 0, 0, errors.Wrap(ErrAssetNotFound, "deposit target asset")
	}
	if op.Amount <= 0 {
		return 0, 0, 0, errors.Wrap(ErrInsufficientFunds, "deposit amount must be positive")
	}
	bal, ok := store.GetBalance(op.ConditionHash)
	if !ok {
		bal = &state.Balance{
			ID:               op.ConditionHash,
			WithdrawCondHash: op.ConditionHash,
			Owner:            op.Owner,
			AssetID:          op.AssetID,
			CreatedAt:        store.Now(),
		}
	} else if bal.AssetID != op.AssetID {
		return 0, 0, 0, ErrAssetTypeMismatch
	}
	newAmount, err := types.AddChecked(bal.Amount, op.Amount)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrAdditionOverflow)
	}
	bal.Amount = newAmount
	bal.LastUpdate = store.Now()
	store.StoreBalance(bal)

	if op.AssetID == types.BaseAssetID {
		return 0, op.Amount, 0, nil
	}
	return 0, 0, 0, nil
}

func applyRegisterAccount(store state.Store, op *RegisterAccountOp) error {
	if _, exists := store.GetAccountByName(op.Name); exists {
		return errors.Wrapf(ErrDuplicateAccountName, "name %q", op.Name)
	}
	if op.DelegatePayRatePct > 100 {
		return errors.Wrap(ErrInvalidPayRate, "pay rate must be 0..100")
	}
	id := types.AccountID(nextCounter(store, nextAccountIDProperty))
	a := &state.Account{
		ID:       id,
		Name:     op.Name,
		OwnerKey: op.OwnerKey,
		ActiveKeys: []state.ActiveKey{
			{Key: op.OwnerKey, ValidFrom: store.Now()},
		},
	}
	if op.IsDelegate {
		a.Delegate = &state.DelegateInfo{PayRatePct: op.DelegatePayRatePct}
		appendDelegateID(store, id)
	}
	store.StoreAccount(a)
	return nil
}

// delegateIDsProperty indexes every registered delegate account id, so
// the block processor's active-set refresh (spec §4.F step 8) doesn't
// need a full account-table scan.
const delegateIDsProperty = "delegate_account_ids"

func appendDelegateID(store state.Store, id types.AccountID) {
	ids := DelegateAccountIDs(store)
	ids = append(ids, id)
	buf := make([]byte, len(ids)*8)
	for i, accID := range ids {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(accID))
	}
	store.StoreProperty(delegateIDsProperty, buf)
}

// DelegateAccountIDs returns every account id ever registered as a
// delegate, in registration order.
func DelegateAccountIDs(store state.Store) []types.AccountID {
	raw, ok := store.GetProperty(delegateIDsProperty)
	if !ok || len(raw)%8 != 0 {
		return nil
	}
	ids := make([]types.AccountID, len(raw)/8)
	for i := range ids {
		ids[i] = types.AccountID(binary.BigEndian.Uint64(raw[i*8:]))
	}
	return ids
}

func applyUpdateAccount(store state.Store, op *UpdateAccountOp, required map[types.Address]bool) error {
	a, ok := store.GetAccount(op.AccountID)
	if !ok {
		return errors.Wrap(ErrAccountNotFound, "update_account")
	}
	required[ownerAddress(a)] = true
	if op.NewActiveKey != nil {
		a.ActiveKeys = append(a.ActiveKeys, state.ActiveKey{Key: op.NewActiveKey, ValidFrom: store.Now()})
	}
	if op.NewPayRatePct != nil {
		if *op.NewPayRatePct > 100 {
			return errors.Wrap(ErrInvalidPayRate, "pay rate must be 0..100")
		}
		if a.Delegate == nil {
			return errors.Wrap(ErrUnsupportedChainOperation, "pay rate update on non-delegate account")
		}
		a.Delegate.PayRatePct = *op.NewPayRatePct
	}
	store.StoreAccount(a)
	return nil
}

func applyCreateAsset(store state.Store, op *CreateAssetOp) error {
	if _, exists := store.GetAssetBySymbol(op.Symbol); exists {
		return errors.Wrapf(ErrDuplicateAssetSymbol, "symbol %q", op.Symbol)
	}
	if op.MaximumShareSupply <= 0 {
		return errors.Wrap(ErrSupplyExceedsMaximum, "maximum_share_supply must be positive")
	}
	id := types.AssetID(nextCounter(store, nextAssetIDProperty))
	store.StoreAsset(&state.Asset{
		ID:                 id,
		Symbol:             op.Symbol,
		Name:               op.Name,
		Precision:          op.Precision,
		Issuer:             op.Issuer,
		IsMarketIssued:     op.IsMarketIssued,
		MaximumShareSupply: op.MaximumShareSupply,
	})
	return nil
}

func applyUpdateAsset(store state.Store, op *UpdateAssetOp) error {
	a, ok := store.GetAsset(op.AssetID)
	if !ok {
		return errors.Wrap(ErrAssetNotFound, "update_asset")
	}
	if op.NewMaximumSupply != nil {
		if *op.NewMaximumSupply < a.CurrentShareSupply {
			return errors.Wrap(ErrSupplyExceedsMaximum, "new maximum below current supply")
		}
		a.MaximumShareSupply = *op.NewMaximumSupply
	}
	store.StoreAsset(a)
	return nil
}

func applyIssueAsset(store state.Store, op *IssueAssetOp) (types.Share, types.Share, types.Share, error) {
	a, ok := store.GetAsset(op.AssetID)
	if !ok {
		return 0, 0, 0, errors.Wrap(ErrAssetNotFound, "issue_asset")
	}
	if a.IsMarketIssued {
		return 0, 0, 0, ErrMarketIssuedCannotBeIssued
	}
	newSupply, err := types.AddChecked(a.CurrentShareSupply, op.Amount)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrAdditionOverflow)
	}
	if newSupply > a.MaximumShareSupply {
		return 0, 0, 0, errors.Wrapf(ErrSupplyExceedsMaximum, "supply %d exceeds maximum %d", newSupply, a.MaximumShareSupply)
	}
	a.CurrentShareSupply = newSupply
	store.StoreAsset(a)

	condHash := defaultBalanceID(op.Owner, op.AssetID)
	bal, ok := store.GetBalance(condHash)
	if !ok {
		bal = &state.Balance{ID: condHash, WithdrawCondHash: condHash, Owner: op.Owner, AssetID: op.AssetID, CreatedAt: store.Now()}
	}
	amt, err := types.AddChecked(bal.Amount, op.Amount)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrAdditionOverflow)
	}
	bal.Amount = amt
	bal.LastUpdate = store.Now()
	store.StoreBalance(bal)
	return 0, 0, 0, nil
}

type orderKind struct{ table string }

func applyOrder(store state.Store, ctx Context, kind orderKind, op *OrderOp, required map[types.Address]bool) (types.Share, types.Share, types.Share, error) {
	required[op.Owner] = true
	key := state.OrderKey{Price: op.Price, Owner: op.Owner}

	get, put := orderAccessors(store, kind.table)
	existing, ok := get(key)
	var balance types.Share
	if ok {
		balance = existing.Balance
	}

	// Orders denominated in quote asset are bids; ask and short orders
	// are denominated in base asset (spec §4.D example 3 cross-checks
	// bid_paid against the quote asset).
	denomAsset := op.Price.BaseAsset
	if kind.table == "bid" {
		denomAsset = op.Price.QuoteAsset
	}

	if op.Amount > 0 {
		newBalance, err := types.AddChecked(balance, op.Amount)
		if err != nil {
			return 0, 0, 0, errors.Mark(err, ErrAdditionOverflow)
		}
		put(key, &state.Order{Key: key, Balance: newBalance})
		if denomAsset == types.BaseAssetID {
			return op.Amount, 0, op.Amount, nil
		}
		return 0, 0, 0, nil
	}

	refund := -op.Amount
	if refund > balance {
		return 0, 0, 0, errors.Wrapf(ErrInsufficientFunds, "cancel %d exceeds resting %d", refund, balance)
	}
	newBalance, err := types.SubChecked(balance, refund)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrSubtractionOverflow)
	}
	put(key, &state.Order{Key: key, Balance: newBalance})
	if denomAsset == types.BaseAssetID {
		return 0, refund, -refund, nil
	}
	return 0, 0, 0, nil
}

func orderAccessors(store state.Store, table string) (func(state.OrderKey) (*state.Order, bool), func(state.OrderKey, *state.Order)) {
	switch table {
	case "bid":
		return store.GetBid, store.StoreBid
	case "ask":
		return store.GetAsk, store.StoreAsk
	case "short":
		return store.GetShort, store.StoreShort
	default:
		panic("evaluator: unknown order table " + table)
	}
}

func applyShort(store state.Store, ctx Context, op *ShortOp, required map[types.Address]bool) (types.Share, types.Share, types.Share, error) {
	if op.BaseAsset != types.BaseAssetID {
		return 0, 0, 0, ErrShortRequiresBaseAsset
	}
	quote, ok := store.GetAsset(op.QuoteAsset)
	if !ok {
		return 0, 0, 0, errors.Wrap(ErrAssetNotFound, "short quote asset")
	}
	if !quote.IsMarketIssued {
		return 0, 0, 0, ErrShortRequiresMarketIssued
	}
	wrapped := &OrderOp{QuoteAsset: op.QuoteAsset, BaseAsset: op.BaseAsset, Owner: op.Owner, Amount: op.Amount,
		Price: types.NewPrice(1, 1, op.QuoteAsset, op.BaseAsset)}
	if op.LimitPrice != nil {
		wrapped.Price = *op.LimitPrice
	}
	key := state.OrderKey{Price: wrapped.Price, Owner: op.Owner}
	required[op.Owner] = true

	existing, ok := store.GetShort(key)
	var balance types.Share
	if ok {
		balance = existing.Balance
	}
	if op.Amount > 0 {
		newBalance, err := types.AddChecked(balance, op.Amount)
		if err != nil {
			return 0, 0, 0, errors.Mark(err, ErrAdditionOverflow)
		}
		store.StoreShort(key, &state.Order{Key: key, Balance: newBalance, LimitPrice: op.LimitPrice})
		return op.Amount, 0, op.Amount, nil
	}
	refund := -op.Amount
	if refund > balance {
		return 0, 0, 0, errors.Wrapf(ErrInsufficientFunds, "cancel %d exceeds resting %d", refund, balance)
	}
	newBalance, err := types.SubChecked(balance, refund)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrSubtractionOverflow)
	}
	store.StoreShort(key, &state.Order{Key: key, Balance: newBalance, LimitPrice: op.LimitPrice})
	return 0, refund, -refund, nil
}

func applyWithdrawPay(store state.Store, op *WithdrawPayOp, required map[types.Address]bool) (types.Share, types.Share, types.Share, error) {
	a, ok := store.GetAccount(op.DelegateID)
	if !ok || a.Delegate == nil {
		return 0, 0, 0, errors.Wrap(ErrAccountNotFound, "withdraw_pay: not a delegate")
	}
	required[ownerAddress(a)] = true
	if op.Amount > a.Delegate.PayBalance {
		return 0, 0, 0, errors.Wrapf(ErrInsufficientFunds, "pay_balance %d < requested %d", a.Delegate.PayBalance, op.Amount)
	}
	newBalance, err := types.SubChecked(a.Delegate.PayBalance, op.Amount)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrSubtractionOverflow)
	}
	a.Delegate.PayBalance = newBalance
	store.StoreAccount(a)

	condHash := defaultBalanceID(op.Destination, types.BaseAssetID)
	bal, ok := store.GetBalance(condHash)
	if !ok {
		bal = &state.Balance{ID: condHash, WithdrawCondHash: condHash, Owner: op.Destination, AssetID: types.BaseAssetID, CreatedAt: store.Now()}
	}
	depositAmount, err := types.AddChecked(bal.Amount, op.Amount)
	if err != nil {
		return 0, 0, 0, errors.Mark(err, ErrAdditionOverflow)
	}
	bal.Amount = depositAmount
	bal.LastUpdate = store.Now()
	store.StoreBalance(bal)

	// pay_balance -> balance is an internal transfer, not new emission:
	// it nets to zero against the withdrawn pay_balance side, so it must
	// not also register as a deposited (fee-reducing) base amount.
	return 0, 0, 0, nil
}

// applyUpdateBalanceVote sets the delegate slate a base-asset balance
// endorses, requiring the balance owner's signature. The slate is
// content-addressed (types.SlateIDOf) and persisted, and every
// delegate it names has the balance's current amount added to its
// votes_for immediately; any delegate the balance previously endorsed
// has that same amount removed first (spec §3 "Delegate slate": a set
// of delegate ids a balance endorses). Ground truth maintains its
// vote_del index the same way — incrementally, at the point a balance
// or its vote changes — rather than by a periodic full rescan (see
// chain_database.cpp's store_balance_record/store_account_record); the
// abstract Store surface here (spec §4.B's documented accessor list)
// has no "all balances" iterator to rescan from, so no full-rescan
// recompute is done (see DESIGN.md).
func applyUpdateBalanceVote(store state.Store, op *UpdateBalanceVoteOp, required map[types.Address]bool) error {
	bal, ok := store.GetBalance(op.BalanceID)
	if !ok {
		return errors.Wrap(ErrInsufficientFunds, "update_balance_vote: balance not found")
	}
	if bal.AssetID != types.BaseAssetID {
		return errors.Wrap(ErrAssetTypeMismatch, "update_balance_vote: only base-asset balances vote")
	}
	required[bal.Owner] = true

	if bal.SlateID != (types.SlateID{}) {
		adjustVotesForSlate(store, bal.SlateID, -bal.Amount)
	}

	var slateID types.SlateID
	if len(op.Delegates) > 0 {
		slateID = types.SlateIDOf(op.Delegates)
		if _, ok := store.GetSlate(slateID); !ok {
			store.StoreSlate(&state.Slate{ID: slateID, Members: op.Delegates})
		}
		adjustVotesForSlate(store, slateID, bal.Amount)
	}
	bal.SlateID = slateID
	bal.LastUpdate = store.Now()
	store.StoreBalance(bal)
	return nil
}

// adjustVotesForSlate adds delta to votes_for on every delegate slate
// names, skipping members who are no longer delegates.
func adjustVotesForSlate(store state.Store, slateID types.SlateID, delta types.Share) {
	slate, ok := store.GetSlate(slateID)
	if !ok {
		return
	}
	for _, id := range slate.Members {
		a, ok := store.GetAccount(id)
		if !ok || a.Delegate == nil {
			continue
		}
		a.Delegate.VotesFor += int64(delta)
		store.StoreAccount(a)
	}
}

// ownerAddress derives the signing address to require for an account
// operation from its most recent active key.
func ownerAddress(a *state.Account) types.Address {
	if len(a.ActiveKeys) == 0 {
		return types.Address{}
	}
	return addressFromPubkey(a.ActiveKeys[len(a.ActiveKeys)-1].Key)
}
