package state

import (
	"time"

	"github.com/bts-go/chaincore/pkg/types"
)

// Store is the accessor surface shared by the committed chain state
// store and the pending overlay (spec §4.C lists exactly this
// surface: get_asset, get_account, get_balance, get_bid/ask/short/
// collateral, get_slate, get_property, get_market_status,
// get_accumulated_fees, plus now()/head-block-num/random-seed/dirty
// markets, and a store_* counterpart for every get).
//
// For orders, covers, properties and accumulated fees, a store_* call
// with a nil/zero value removes the key (spec §4.C); a nil asset,
// account, balance, slate, market status or feed is ignored.
type Store interface {
	GetAsset(id types.AssetID) (*Asset, bool)
	StoreAsset(a *Asset)
	GetAssetBySymbol(symbol string) (*Asset, bool)

	GetAccount(id types.AccountID) (*Account, bool)
	StoreAccount(a *Account)
	GetAccountByName(name string) (*Account, bool)

	GetBalance(id types.BalanceID) (*Balance, bool)
	StoreBalance(b *Balance)

	GetSlate(id types.SlateID) (*Slate, bool)
	StoreSlate(s *Slate)

	GetBid(key OrderKey) (*Order, bool)
	StoreBid(key OrderKey, o *Order)
	GetAsk(key OrderKey) (*Order, bool)
	StoreAsk(key OrderKey, o *Order)
	GetShort(key OrderKey) (*Order, bool)
	StoreShort(key OrderKey, o *Order)
	GetCollateral(key OrderKey) (*CoverOrder, bool)
	StoreCollateral(key OrderKey, o *CoverOrder)

	// BidsDesc/AsksAsc/ShortsDesc/CollateralAsc return resting orders
	// for (quote, base) sorted for the market engine's iterators
	// (spec §4.E "Iterators").
	BidsDesc(quote, base types.AssetID) []*Order
	AsksAsc(quote, base types.AssetID) []*Order
	ShortsDesc(quote, base types.AssetID) []*Order
	CollateralAsc(quote, base types.AssetID) []*CoverOrder

	GetMarketStatus(quote, base types.AssetID) (*MarketStatus, bool)
	StoreMarketStatus(m *MarketStatus)

	// GetFeed/StoreFeed hold each active delegate's latest price
	// submission; FeedsFor returns every live submission for a pair,
	// for the market engine's median (spec §4.E "Preconditions").
	GetFeed(key FeedKey) (*FeedEntry, bool)
	StoreFeed(f *FeedEntry)
	FeedsFor(quote, base types.AssetID) []*FeedEntry

	GetProperty(name string) ([]byte, bool)
	StoreProperty(name string, value []byte)

	GetAccumulatedFees(asset types.AssetID) types.Share
	StoreAccumulatedFees(asset types.AssetID, fees types.Share)

	// Now returns the injected clock capability (spec §9 "Global
	// mutable time"): production wiring returns wall-clock time, test
	// wiring returns a controlled value.
	Now() time.Time

	GetHeadBlockNum() uint32
	StoreHeadBlockNum(n uint32)

	GetCurrentRandomSeed() types.Hash
	StoreCurrentRandomSeed(h types.Hash)

	// GetDirtyMarkets returns the set of (quote,base) pairs touched
	// since the last market pass, in the fixed order the engine must
	// process them (spec §4.E "the pair ordering fixed by
	// get_dirty_markets()").
	GetDirtyMarkets() []MarketKey
	MarkDirty(key MarketKey)
	ClearDirtyMarkets()
}
