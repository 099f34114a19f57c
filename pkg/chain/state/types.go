// Package state defines the chain database's persisted table schemas
// and the abstract Store interface (spec.md §3, §4.B) that both the
// pebble-backed implementation (pkg/storage) and the pending overlay
// (pkg/chain/pending) read through.
package state

import (
	"time"

	"github.com/bts-go/chaincore/pkg/types"
)

// Asset is a fungible token record (spec §3 "Asset").
type Asset struct {
	ID                  types.AssetID
	Symbol              string
	Name                string
	Precision           uint8
	Issuer              types.AccountID
	IsMarketIssued      bool // issuer sentinel "market-issued"
	CurrentShareSupply  types.Share
	MaximumShareSupply  types.Share
	CollectedFees       types.Share
}

// DelegateInfo holds the delegate-only extension of an Account (spec §3).
type DelegateInfo struct {
	PayRatePct           uint8 // 0..100
	PayBalance           types.Share
	VotesFor             int64
	BlocksProduced       uint64
	BlocksMissed         uint64
	LastBlockNumProduced uint64
	NextSecretHash       types.Hash
}

// ActiveKey is one entry in an account's active-key history, ordered
// by timestamp (spec §3 "active-key history").
type ActiveKey struct {
	Key       []byte // serialized public key
	ValidFrom time.Time
}

// Account is a named, possibly-delegate chain account (spec §3).
type Account struct {
	ID         types.AccountID
	Name       string
	OwnerKey   []byte
	ActiveKeys []ActiveKey
	Delegate   *DelegateInfo // nil unless this account is a delegate
}

// IsDelegate reports whether this account has delegate_info.
func (a *Account) IsDelegate() bool { return a.Delegate != nil }

// Balance is a content-addressed holding (spec §3 "Balance"). Never
// deleted, even when amount reaches zero (kept for historical
// attribution).
type Balance struct {
	ID               types.BalanceID
	WithdrawCondHash types.Hash // hash of the owner condition this id is derived from
	Owner            types.Address
	Amount           types.Share
	AssetID          types.AssetID
	SlateID          types.SlateID // zero = not voting
	CreatedAt        time.Time
	LastUpdate       time.Time
}

// Slate is the set of delegates a balance endorses (spec §3).
type Slate struct {
	ID      types.SlateID
	Members []types.AccountID
}

// OrderKey is the sort/lookup key for bid, ask, short and collateral
// tables: (price, owner) as spec §3 "Order" specifies.
type OrderKey struct {
	Price types.Price
	Owner types.Address
}

// Order is a resting bid, ask, or short (spec §3 "Order").
type Order struct {
	Key        OrderKey
	Balance    types.Share // remaining balance offered
	LimitPrice *types.Price // short only: optional price ceiling
	Expiration time.Time    // short only: forced-liquidation deadline
}

// CoverOrder is a margin position created by matching a short (spec §3).
type CoverOrder struct {
	Key               OrderKey // price = call price, owner = debtor
	Balance           types.Share // outstanding debt (quote asset)
	CollateralBalance types.Share // posted collateral (base asset)
	Expiration        time.Time
	// InterestSince is the last time accrued interest was folded into
	// Balance; age for the next accrual is measured from here (spec
	// §4.E "Interest accrual on covers").
	InterestSince time.Time
}

// CallPrice returns the price at which this cover becomes eligible for
// a margin call: debt / (2/3 * collateral), per spec §4.E.
func (c CoverOrder) CallPrice(quoteAsset, baseAsset types.AssetID) types.Price {
	// call price quote/base = balance / (collateral * 2/3)
	// expressed as ratio quote=3*balance, base=2*collateral to stay exact.
	return types.NewPrice(3*c.Balance, 2*c.CollateralBalance, quoteAsset, baseAsset)
}

// MarketStatus is the rolling per-(quote,base) matching status (spec §3).
type MarketStatus struct {
	QuoteID   types.AssetID
	BaseID    types.AssetID
	AvgPrice1h types.Price
	Bootstrapped bool
	AskDepth  types.Share
	BidDepth  types.Share
	LastError string
}

// MarketKey uniquely identifies a trading pair.
type MarketKey struct {
	Quote types.AssetID
	Base  types.AssetID
}

// FeedEntry is one active delegate's most recent price submission for
// a market-issued asset (spec §3 "Feed price": "median of active
// delegates' recent price submissions").
type FeedEntry struct {
	Delegate  types.AccountID
	Quote     types.AssetID
	Base      types.AssetID
	Price     types.Price
	Timestamp time.Time
}

// FeedKey identifies one delegate's feed slot for a pair.
type FeedKey struct {
	Delegate types.AccountID
	Quote    types.AssetID
	Base     types.AssetID
}
