package market

import (
	"testing"
	"time"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

func newMatchTestStore() *state.MemStore {
	s := state.NewMemStore()
	s.SetClock(func() time.Time { return time.Unix(1700000000, 0).UTC() })
	return s
}

var (
	matchTestBase  = types.BaseAssetID
	matchTestQuote = types.AssetID(1)
)

func storeMarketIssuedQuote(store state.Store, supply types.Share) {
	store.StoreAsset(&state.Asset{
		ID:                 matchTestQuote,
		Symbol:             "BITUSD",
		IsMarketIssued:     true,
		CurrentShareSupply: supply,
		MaximumShareSupply: 1_000_000_000,
	})
}

// TestMatchBidAskProducesExample3Fill checks the plain two-sided cross
// against the worked values in spec.md §8 example 3: ask 1e5 base and
// bid 3e5 quote, both at price 2.0, settle with ask_paid=1e5 base,
// ask_received=2e5 quote, bid_paid=2e5 quote, bid_received=1e5 base,
// and no fee.
func TestMatchBidAskProducesExample3Fill(t *testing.T) {
	store := newMatchTestStore()
	cfg := Config{DustThreshold: 10}
	price := types.NewPrice(2, 1, matchTestQuote, matchTestBase)

	askOwner := types.Address{0xA5}
	bidOwner := types.Address{0xB1}
	ask := &state.Order{Key: state.OrderKey{Price: price, Owner: askOwner}, Balance: 1_00000}
	bid := &state.Order{Key: state.OrderKey{Price: price, Owner: bidOwner}, Balance: 3_00000}

	txn, err := matchBidAsk(store, cfg, Rules{}, matchTestQuote, matchTestBase, bid, ask)
	if err != nil {
		t.Fatalf("matchBidAsk: %v", err)
	}
	if txn == nil {
		t.Fatal("matchBidAsk returned nil transaction for a crossing bid/ask")
	}
	if txn.AskPaid != 100000 || txn.AskReceived != 200000 {
		t.Fatalf("ask leg = paid %d received %d, want paid 100000 received 200000", txn.AskPaid, txn.AskReceived)
	}
	if txn.BidPaid != 200000 || txn.BidReceived != 100000 {
		t.Fatalf("bid leg = paid %d received %d, want paid 200000 received 100000", txn.BidPaid, txn.BidReceived)
	}
	if txn.Fee != 0 {
		t.Fatalf("Fee = %d, want 0", txn.Fee)
	}

	if _, ok := store.GetAsk(ask.Key); ok {
		t.Fatal("a fully consumed ask must not remain resting")
	}
	if rest, ok := store.GetBid(bid.Key); !ok || rest.Balance != 100000 {
		t.Fatalf("resting bid balance = %v, want 100000", rest)
	}
}

// TestMatchShortAskOpensCoverAndMintsQuoteSupply checks spec.md §8
// example 4 (short 3e5 base vs. ask 1e5 @ feed-bounded price 1.0 opens
// a 3:1 cover with payoff_balance=1e5, collateral_balance=3e5, call
// price 0.5) and the market-issued quote asset's current_share_supply
// minted by the same amount as the new debt, per the review fix to
// matchShortAsk (ground truth market_engine.cpp's pay_current_short).
func TestMatchShortAskOpensCoverAndMintsQuoteSupply(t *testing.T) {
	store := newMatchTestStore()
	storeMarketIssuedQuote(store, 0)
	cfg := Config{DustThreshold: 10}
	execPrice := types.NewPrice(1, 1, matchTestQuote, matchTestBase)

	shortOwner := types.Address{0x50}
	askOwner := types.Address{0xA5}
	short := &state.Order{Key: state.OrderKey{Price: execPrice, Owner: shortOwner}, Balance: 300000}
	ask := &state.Order{Key: state.OrderKey{Price: execPrice, Owner: askOwner}, Balance: 100000}
	expiration := store.Now().Add(30 * 24 * time.Hour)

	txn, err := matchShortAsk(store, cfg, Rules{}, matchTestQuote, matchTestBase, expiration, short, execPrice, ask)
	if err != nil {
		t.Fatalf("matchShortAsk: %v", err)
	}
	if txn == nil {
		t.Fatal("matchShortAsk returned nil transaction")
	}
	if !txn.NewCover {
		t.Fatal("matchShortAsk must report NewCover")
	}

	cover, ok := findCoverByOwner(store, matchTestQuote, matchTestBase, shortOwner)
	if !ok {
		t.Fatal("no cover was opened for the short's owner")
	}
	if cover.Balance != 100000 {
		t.Fatalf("cover payoff_balance = %d, want 100000", cover.Balance)
	}
	if cover.CollateralBalance != 300000 {
		t.Fatalf("cover collateral_balance = %d, want 300000", cover.CollateralBalance)
	}
	wantCallPrice := types.NewPrice(1, 2, matchTestQuote, matchTestBase)
	if !cover.CallPrice(matchTestQuote, matchTestBase).Equal(wantCallPrice) {
		t.Fatalf("call price = %s, want 0.5", cover.CallPrice(matchTestQuote, matchTestBase))
	}
	if !cover.Expiration.Equal(expiration) {
		t.Fatalf("cover expiration = %v, want %v", cover.Expiration, expiration)
	}

	quoteAsset, _ := store.GetAsset(matchTestQuote)
	if quoteAsset.CurrentShareSupply != 100000 {
		t.Fatalf("quote current_share_supply = %d, want 100000 (minted on short-open)", quoteAsset.CurrentShareSupply)
	}
}

// TestMatchBidCoverMarginCallSettlesAndBurnsQuoteSupply continues spec.md
// §8 example 5 from the cover example 4 opened: a margin-called cover
// (payoff_balance=1e5, collateral_balance=3e5) is force-matched against
// a bid at price 0.6. The debt is fully extinguished, the 5%-fee-adjusted
// remainder of collateral is refunded to the cover's owner, and the
// market-issued quote asset's current_share_supply is burned by exactly
// the debt repaid — the review fix to matchBidCover (ground truth
// market_engine.cpp's pay_current_cover).
func TestMatchBidCoverMarginCallSettlesAndBurnsQuoteSupply(t *testing.T) {
	store := newMatchTestStore()
	storeMarketIssuedQuote(store, 100000) // minted when the cover was opened in example 4
	cfg := Config{DustThreshold: 10, MarginCallFeePct: 5}
	now := store.Now()

	coverOwner := types.Address{0x50}
	cover := &state.CoverOrder{
		Key:               state.OrderKey{Owner: coverOwner},
		Balance:           100000,
		CollateralBalance: 300000,
		InterestSince:     now, // no interest accrues this block
	}
	restoreCover(store, matchTestQuote, matchTestBase, cover)

	bidOwner := types.Address{0xB1}
	bidPrice := types.NewPrice(3, 5, matchTestQuote, matchTestBase) // 0.6
	bid := &state.Order{Key: state.OrderKey{Price: bidPrice, Owner: bidOwner}, Balance: 120000}

	txn, err := matchBidCover(store, cfg, Rules{}, matchTestQuote, matchTestBase, now, bid, bidPrice, cover)
	if err != nil {
		t.Fatalf("matchBidCover: %v", err)
	}
	if txn == nil {
		t.Fatal("matchBidCover returned nil transaction")
	}
	if txn.AskReceived != 100000 {
		t.Fatalf("debt repaid (ask_received) = %d, want 100000", txn.AskReceived)
	}
	if txn.Fee != 5000 {
		t.Fatalf("margin call fee = %d, want 5000 (5%% of 100000 leftover collateral)", txn.Fee)
	}

	if _, ok := store.GetCollateral(cover.Key); ok {
		t.Fatal("a fully-repaid, fully-refunded cover must not remain resting")
	}

	refundBalance, ok := store.GetBalance(types.HashBytes(append(append([]byte{}, coverOwner[:]...), 0, 0, 0, byte(matchTestBase))))
	if !ok || refundBalance.Amount != 95000 {
		t.Fatalf("cover owner's refunded balance = %v, want 95000 (100000 leftover minus 5%% fee)", refundBalance)
	}

	quoteAsset, _ := store.GetAsset(matchTestQuote)
	if quoteAsset.CurrentShareSupply != 0 {
		t.Fatalf("quote current_share_supply = %d, want 0 (burned by the 100000 debt repaid)", quoteAsset.CurrentShareSupply)
	}
}
