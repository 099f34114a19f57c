package market

import (
	"time"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

const secondsPerYear = 365 * 24 * 60 * 60

// matchOnce settles a single trade between the selected buy and sell
// orders, per spec §4.E's per-combination execution-price table. It
// returns nil only when nothing could be matched (triggering the
// caller's deadlock guard), never a bare zero-fill.
func matchOnce(store state.Store, cfg Config, rules Rules, quote, base types.AssetID, now, shortExpiration time.Time,
	buyKind side, buyOrder *state.Order, buyPrice types.Price,
	sellKind side, sellOrder *state.Order, sellCover *state.CoverOrder, sellPrice types.Price,
) (*Transaction, error) {
	switch {
	case buyKind == sideBid && sellKind == sideAsk:
		return matchBidAsk(store, cfg, rules, quote, base, buyOrder, sellOrder)
	case buyKind == sideShort && sellKind == sideAsk:
		return matchShortAsk(store, cfg, rules, quote, base, shortExpiration, buyOrder, buyPrice, sellOrder)
	case buyKind == sideBid && sellKind == sideCover:
		return matchBidCover(store, cfg, rules, quote, base, now, buyOrder, buyPrice, sellCover)
	case buyKind == sideShort && sellKind == sideCover:
		return matchShortCover(store, cfg, rules, quote, base, now, shortExpiration, buyOrder, buyPrice, sellCover)
	default:
		return nil, nil
	}
}

// matchBidAsk is a plain two-sided cross: execution price is the
// lesser of the two resting prices (spec §4.E "bid+ask -> min(bid,ask)").
func matchBidAsk(store state.Store, cfg Config, rules Rules, quote, base types.AssetID, bid, ask *state.Order) (*Transaction, error) {
	execPrice := types.Min(bid.Key.Price, ask.Key.Price)

	bidCapacityBase := execPrice.ToBase(bid.Balance)
	matchBase := ask.Balance
	if bidCapacityBase < matchBase {
		matchBase = bidCapacityBase
	}
	if matchBase <= 0 {
		return nil, nil
	}

	askReceived := execPrice.ToQuote(matchBase)

	storeOrderAfterSweep(store, rules, store.StoreAsk, ask, matchBase, cfg.DustThreshold, base)
	storeOrderAfterSweep(store, rules, store.StoreBid, bid, askReceived, cfg.DustThreshold, quote)

	return &Transaction{
		QuoteAsset: quote, BaseAsset: base,
		BuyOwner: bid.Key.Owner, SellOwner: ask.Key.Owner,
		BidPaid: askReceived, BidReceived: matchBase,
		AskPaid: matchBase, AskReceived: askReceived,
	}, nil
}

// matchShortAsk matches a short against a resting ask, minting a new
// debt position: the short contributes 2x the matched base and the
// ask's matched base makes up the remaining 1x, producing the 3:1
// initial collateralization spec §4.E requires. The ask receives the
// newly minted quote debt in exchange for its base, same as an
// ordinary fill.
func matchShortAsk(store state.Store, cfg Config, rules Rules, quote, base types.AssetID, expiration time.Time, short *state.Order, execPrice types.Price, ask *state.Order) (*Transaction, error) {
	m := ask.Balance
	if half := short.Balance / 2; half < m {
		m = half
	}
	if m <= 0 {
		return nil, nil
	}

	debt := execPrice.ToQuote(m)
	collateral := 3 * m

	originalAskBalance := ask.Balance
	storeOrderAfterSweep(store, rules, store.StoreAsk, ask, m, cfg.DustThreshold, base)
	if rules.SaveAndRestoreAsk {
		store.StoreAsk(ask.Key, &state.Order{Key: ask.Key, Balance: originalAskBalance})
	}
	storeOrderAfterSweep(store, rules, store.StoreShort, short, 2*m, cfg.DustThreshold, base)

	openOrAugmentCover(store, quote, base, short.Key.Owner, debt, collateral, expiration)
	mintQuoteSupply(store, quote, debt)

	return &Transaction{
		QuoteAsset: quote, BaseAsset: base,
		BuyOwner: short.Key.Owner, SellOwner: ask.Key.Owner,
		BidPaid: debt, BidReceived: m,
		AskPaid: m, AskReceived: debt,
		NewCover: true,
	}, nil
}

// matchBidCover is a forced liquidation: a resting bid buys collateral
// off an eligible margin-called cover at the bid's own price, paying
// down the cover's debt (spec §4.E "bid+cover -> bid price").
func matchBidCover(store state.Store, cfg Config, rules Rules, quote, base types.AssetID, now time.Time, bid *state.Order, execPrice types.Price, cover *state.CoverOrder) (*Transaction, error) {
	accrueInterest(store, cfg, rules, quote, cover, now)

	bidCapacityBase := execPrice.ToBase(bid.Balance)
	m := cover.CollateralBalance
	if bidCapacityBase < m {
		m = bidCapacityBase
	}
	if m <= 0 {
		return nil, nil
	}

	quotePaid := execPrice.ToQuote(m)
	debtReduction := quotePaid
	if cover.Balance < debtReduction {
		debtReduction = cover.Balance
	}

	cover.CollateralBalance -= m
	cover.Balance -= debtReduction
	storeOrderAfterSweep(store, rules, store.StoreBid, bid, quotePaid, cfg.DustThreshold, quote)

	fee := settleOrRestoreCover(store, cfg, rules, quote, base, cover)
	burnQuoteSupply(store, quote, debtReduction)

	return &Transaction{
		QuoteAsset: quote, BaseAsset: base,
		BuyOwner: bid.Key.Owner, SellOwner: cover.Key.Owner,
		BidPaid: quotePaid, BidReceived: m,
		AskPaid: m, AskReceived: debtReduction,
		Fee: fee,
	}, nil
}

// matchShortCover refinances an eligible margin-called cover against
// a brand new short at the feed-bounded price: the matched base is the
// least of the old cover's collateral, half the short's balance, and
// the base needed to extinguish the old cover's remaining debt. The new
// short mints the matching quote debt, which pays down the old cover in
// exchange for the collateral it releases, then opens its own 3:1 cover
// with that same debt. When the short or the collateral is the tighter
// bound, the old cover keeps the rest of its debt and stays resting
// under its new call price (spec §4.E "short+cover -> feed price").
func matchShortCover(store state.Store, cfg Config, rules Rules, quote, base types.AssetID, now, expiration time.Time, short *state.Order, execPrice types.Price, oldCover *state.CoverOrder) (*Transaction, error) {
	accrueInterest(store, cfg, rules, quote, oldCover, now)

	m := oldCover.CollateralBalance
	if half := short.Balance / 2; half < m {
		m = half
	}
	if requiredM := execPrice.ToBase(oldCover.Balance); requiredM < m {
		m = requiredM
	}
	if m <= 0 {
		return nil, nil
	}

	debt := execPrice.ToQuote(m)

	oldCover.CollateralBalance -= m
	oldCover.Balance -= debt
	storeOrderAfterSweep(store, rules, store.StoreShort, short, 2*m, cfg.DustThreshold, base)

	fee := settleOrRestoreCover(store, cfg, rules, quote, base, oldCover)
	burnQuoteSupply(store, quote, debt)
	openOrAugmentCover(store, quote, base, short.Key.Owner, debt, 3*m, expiration)
	mintQuoteSupply(store, quote, debt)

	return &Transaction{
		QuoteAsset: quote, BaseAsset: base,
		BuyOwner: short.Key.Owner, SellOwner: oldCover.Key.Owner,
		BidPaid: debt, BidReceived: m,
		AskPaid: m, AskReceived: debt,
		Fee: fee, NewCover: true,
	}, nil
}

// accrueInterest folds interest owed on cover's outstanding debt since
// its last accrual into its Balance, and credits the quote asset's
// collected fees with the same amount (spec §4.E "Interest accrual on
// covers"). APR is capped at cfg.MaxShortAPRPercent.
func accrueInterest(store state.Store, cfg Config, rules Rules, quote types.AssetID, cover *state.CoverOrder, now time.Time) {
	if cover.InterestSince.IsZero() || !now.After(cover.InterestSince) || cover.Balance <= 0 {
		cover.InterestSince = now
		return
	}
	ageSeconds := int64(now.Sub(cover.InterestSince) / time.Second)
	if ageSeconds <= 0 {
		return
	}
	interest := types.MulDiv(types.MulDiv(cover.Balance, types.Share(cfg.MaxShortAPRPercent), 100), types.Share(ageSeconds), secondsPerYear)
	if interest <= 0 {
		cover.InterestSince = now
		return
	}
	cover.Balance += interest
	cover.InterestSince = now
	creditAssetFee(store, rules, quote, interest)
}

// settleOrRestoreCover finalizes a cover that has just absorbed a
// match: if fully repaid, its leftover collateral is refunded to the
// debtor less a network fee (spec §4.E "5% of the remainder is taken
// as a network fee"); otherwise it is re-keyed by its new call price
// and left resting. Returns the fee charged, zero if none.
func settleOrRestoreCover(store state.Store, cfg Config, rules Rules, quote, base types.AssetID, cover *state.CoverOrder) types.Share {
	if cover.Balance > 0 {
		restoreCover(store, quote, base, cover)
		return 0
	}
	remainder := cover.CollateralBalance
	fee := types.MulDiv(remainder, types.Share(cfg.MarginCallFeePct), 100)
	refund := remainder - fee
	if refund > 0 {
		creditBalance(store, cover.Key.Owner, base, refund)
	}
	creditAssetFee(store, rules, base, fee)
	removeCover(store, quote, base, cover)
	return fee
}

// openOrAugmentCover creates a new cover for owner, or merges
// additional debt/collateral into its existing position (spec §4.E:
// repeated shorting by the same delegate/account extends one cover).
func openOrAugmentCover(store state.Store, quote, base types.AssetID, owner types.Address, debt, collateral types.Share, expiration time.Time) {
	if existing, ok := findCoverByOwner(store, quote, base, owner); ok {
		existing.Balance += debt
		existing.CollateralBalance += collateral
		if expiration.After(existing.Expiration) {
			existing.Expiration = expiration
		}
		restoreCover(store, quote, base, existing)
		return
	}
	c := &state.CoverOrder{
		Key:               state.OrderKey{Owner: owner},
		Balance:           debt,
		CollateralBalance: collateral,
		Expiration:        expiration,
	}
	restoreCover(store, quote, base, c)
}

// restoreCover (re-)stores cover under a key reflecting its current
// call price, so the collateral-ascending iterator's sort stays
// correct as debt and collateral change.
func restoreCover(store state.Store, quote, base types.AssetID, cover *state.CoverOrder) {
	newKey := state.OrderKey{Price: cover.CallPrice(quote, base), Owner: cover.Key.Owner}
	if cover.Key.Price.Base != 0 && cover.Key != newKey {
		store.StoreCollateral(cover.Key, nil)
	}
	cover.Key = newKey
	store.StoreCollateral(cover.Key, cover)
}

func removeCover(store state.Store, quote, base types.AssetID, cover *state.CoverOrder) {
	store.StoreCollateral(cover.Key, nil)
}

func findCoverByOwner(store state.Store, quote, base types.AssetID, owner types.Address) (*state.CoverOrder, bool) {
	for _, c := range store.CollateralAsc(quote, base) {
		if c.Key.Owner == owner {
			return c, true
		}
	}
	return nil, false
}

// storeOrderAfterSweep decrements an order's balance by amount,
// sweeping any remainder below dustThreshold into the asset's
// collected fees (spec §4.E "dust ... swept to collected_fees") so no
// unspendable residue lingers in the book.
func storeOrderAfterSweep(store state.Store, rules Rules, put func(state.OrderKey, *state.Order), o *state.Order, amount, dustThreshold types.Share, assetID types.AssetID) {
	remaining := o.Balance - amount
	if remaining > 0 && remaining < dustThreshold {
		creditAssetFee(store, rules, assetID, remaining)
		remaining = 0
	}
	if remaining <= 0 {
		put(o.Key, nil)
		return
	}
	put(o.Key, &state.Order{Key: o.Key, Balance: remaining, LimitPrice: o.LimitPrice, Expiration: o.Expiration})
}

// creditBalance deposits amount of assetID into owner's content-
// addressed balance, deriving the same owner+asset balance id the
// evaluator's issue_asset path uses so repeated credits accumulate in
// one record.
func creditBalance(store state.Store, owner types.Address, assetID types.AssetID, amount types.Share) {
	if amount <= 0 {
		return
	}
	assetIDBytes := []byte{byte(assetID >> 24), byte(assetID >> 16), byte(assetID >> 8), byte(assetID)}
	condHash := types.HashBytes(append(append([]byte{}, owner[:]...), assetIDBytes...))
	bal, ok := store.GetBalance(condHash)
	if !ok {
		bal = &state.Balance{ID: condHash, WithdrawCondHash: condHash, Owner: owner, AssetID: assetID, CreatedAt: store.Now()}
	}
	bal.Amount += amount
	bal.LastUpdate = store.Now()
	store.StoreBalance(bal)
}

// mintQuoteSupply grows a market-issued asset's current_share_supply
// when a short opens new debt (spec §8 universal supply invariant;
// ground truth market_engine.cpp's pay_current_short
// "quote_asset.current_share_supply += mtrx.bid_paid.amount").
func mintQuoteSupply(store state.Store, quote types.AssetID, amount types.Share) {
	if amount <= 0 {
		return
	}
	a, ok := store.GetAsset(quote)
	if !ok {
		return
	}
	a.CurrentShareSupply += amount
	store.StoreAsset(a)
}

// burnQuoteSupply shrinks a market-issued asset's current_share_supply
// when debt is repaid against a cover (ground truth pay_current_cover
// "quote_asset.current_share_supply -= mtrx.ask_received.amount").
func burnQuoteSupply(store state.Store, quote types.AssetID, amount types.Share) {
	if amount <= 0 {
		return
	}
	a, ok := store.GetAsset(quote)
	if !ok {
		return
	}
	a.CurrentShareSupply -= amount
	store.StoreAsset(a)
}

// creditAssetFee adds amount to assetID's collected fees. Pre-fork
// (RuleV2) rules never let collected fees go negative; the v7 fork
// lifts that clamp (spec §9 "pay_delegate" sign-change open question,
// resolved in Rules.NegativeFeesAllowed).
func creditAssetFee(store state.Store, rules Rules, assetID types.AssetID, amount types.Share) {
	total := store.GetAccumulatedFees(assetID) + amount
	if !rules.NegativeFeesAllowed && total < 0 {
		total = 0
	}
	store.StoreAccumulatedFees(assetID, total)
}
