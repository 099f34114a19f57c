package storage

import (
	"fmt"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// Key prefixes, one ASCII tag per table, mirroring the teacher's
// storage.accountKey/positionKey/orderKey scheme
// (pkg/storage/account_keys.go) and kept consistent with the pending
// overlay's own table-string naming (pkg/chain/pending/pending.go's
// assetKey/accountKey/orderKeyString etc.) so the two layers read the
// same way in a debugger.
const (
	prefixAsset        = "asset:"
	prefixAssetSymbol  = "assetsym:"
	prefixAccount      = "account:"
	prefixAccountName  = "acctname:"
	prefixBalance      = "balance:"
	prefixSlate        = "slate:"
	prefixBid          = "bid:"
	prefixAsk          = "ask:"
	prefixShort        = "short:"
	prefixCollateral   = "collateral:"
	prefixMarketStatus = "marketstatus:"
	prefixFeed         = "feed:"
	prefixProperty     = "property:"
	prefixAccumFees    = "accumfees:"

	keyHeadBlockNum   = "headblocknum"
	keyRandomSeed     = "randomseed"
	keyDirtyMarkets   = "dirtymarkets"
	prefixBlock       = "block:"
	prefixBlockHeight = "height:"
	prefixForkNode    = "fork:"
	prefixUndoState   = "undo:"
	keyHeadBlockID    = "headblockid"
)

// keyUpperBound returns the exclusive upper bound for a prefix scan
// (teacher's storage.keyUpperBound, pkg/storage/account_keys.go).
func keyUpperBound(prefix []byte) []byte {
	bound := make([]byte, len(prefix))
	copy(bound, prefix)
	bound[len(bound)-1]++
	return bound
}

func assetKey(id types.AssetID) []byte       { return []byte(fmt.Sprintf("%s%d", prefixAsset, id)) }
func assetSymbolKey(sym string) []byte       { return []byte(prefixAssetSymbol + sym) }
func accountKey(id types.AccountID) []byte   { return []byte(fmt.Sprintf("%s%d", prefixAccount, id)) }
func accountNameKey(name string) []byte      { return []byte(prefixAccountName + name) }
func balanceKey(id types.BalanceID) []byte   { return []byte(fmt.Sprintf("%s%x", prefixBalance, id)) }
func slateKey(id types.SlateID) []byte       { return []byte(fmt.Sprintf("%s%x", prefixSlate, id)) }
func propertyKey(name string) []byte         { return []byte(prefixProperty + name) }
func accumFeesKey(asset types.AssetID) []byte {
	return []byte(fmt.Sprintf("%s%d", prefixAccumFees, asset))
}

func marketStatusKey(k state.MarketKey) []byte {
	return []byte(fmt.Sprintf("%s%d:%d", prefixMarketStatus, k.Quote, k.Base))
}

func feedKey(k state.FeedKey) []byte {
	return []byte(fmt.Sprintf("%s%d:%d:%d", prefixFeed, k.Delegate, k.Quote, k.Base))
}

// orderKey and orderPairPrefix key every resting order/cover under its
// trading pair first so BidsDesc/AsksAsc/etc. can range-scan a single
// pair without touching the rest of the table (spec §4.E "Iterators").
// Format: "<table>:<quote>:<base>/<priceQuote>:<priceBase>/<ownerHex>",
// the same layout pending.go's orderKeyString uses for its in-memory
// map key, so a key observed in either layer reads identically.
func orderKey(prefix string, k state.OrderKey) []byte {
	return []byte(fmt.Sprintf("%s%d:%d/%d:%d/%x", prefix, k.Price.QuoteAsset, k.Price.BaseAsset, k.Price.Quote, k.Price.Base, k.Owner))
}

func orderPairPrefix(prefix string, quote, base types.AssetID) []byte {
	return []byte(fmt.Sprintf("%s%d:%d/", prefix, quote, base))
}

func blockKey(id types.BlockID) []byte   { return append([]byte(prefixBlock), id[:]...) }
func blockHeightKey(num uint32) []byte   { return []byte(fmt.Sprintf("%s%010d", prefixBlockHeight, num)) }
func forkNodeKey(id types.BlockID) []byte { return append([]byte(prefixForkNode), id[:]...) }
func undoStateKey(id types.BlockID) []byte { return append([]byte(prefixUndoState), id[:]...) }
