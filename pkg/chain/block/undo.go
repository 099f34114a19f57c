package block

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// applyUndo writes every key/value pair in an undo delta back into
// store, restoring it to what it held before the block the delta
// belongs to was applied (spec §4.F "pop_block").
func applyUndo(store state.Store, undo *state.UndoState) {
	for key, raw := range undo.KeyValues {
		restoreKey(store, key, raw)
	}
}

func decodeGob(raw []byte, out interface{}) {
	if raw == nil {
		return
	}
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(out); err != nil {
		panic(errors.Wrap(err, "block: decode undo value"))
	}
}

func restoreKey(store state.Store, key string, raw []byte) {
	switch {
	case key == "headblocknum":
		if raw == nil {
			return
		}
		var n uint32
		decodeGob(raw, &n)
		store.StoreHeadBlockNum(n)

	case key == "randomseed":
		if raw == nil {
			return
		}
		var h types.Hash
		decodeGob(raw, &h)
		store.StoreCurrentRandomSeed(h)

	case strings.HasPrefix(key, "asset:"):
		// Assets are never removed (spec §3); raw == nil here only
		// means the asset did not exist before the block, i.e. it was
		// newly registered this block and there is nothing to restore.
		if raw == nil {
			return
		}
		var a state.Asset
		decodeGob(raw, &a)
		store.StoreAsset(&a)

	case strings.HasPrefix(key, "account:"):
		if raw == nil {
			return
		}
		var a state.Account
		decodeGob(raw, &a)
		store.StoreAccount(&a)

	case strings.HasPrefix(key, "balance:"):
		if raw == nil {
			return
		}
		var b state.Balance
		decodeGob(raw, &b)
		store.StoreBalance(&b)

	case strings.HasPrefix(key, "slate:"):
		if raw == nil {
			return
		}
		var sl state.Slate
		decodeGob(raw, &sl)
		store.StoreSlate(&sl)

	case strings.HasPrefix(key, "property:"):
		name := strings.TrimPrefix(key, "property:")
		if raw == nil {
			store.StoreProperty(name, nil)
			return
		}
		var v []byte
		decodeGob(raw, &v)
		store.StoreProperty(name, v)

	case strings.HasPrefix(key, "accumfees:"):
		assetID, err := strconv.ParseUint(strings.TrimPrefix(key, "accumfees:"), 10, 64)
		if err != nil {
			return
		}
		var v types.Share
		decodeGob(raw, &v)
		store.StoreAccumulatedFees(types.AssetID(assetID), v)

	case strings.HasPrefix(key, "marketstatus:"):
		if raw == nil {
			return
		}
		var m state.MarketStatus
		decodeGob(raw, &m)
		store.StoreMarketStatus(&m)

	case strings.HasPrefix(key, "feed:"):
		if raw == nil {
			return
		}
		var f state.FeedEntry
		decodeGob(raw, &f)
		store.StoreFeed(&f)

	case strings.HasPrefix(key, "bid:"):
		restoreOrder(store, strings.TrimPrefix(key, "bid:"), raw, store.StoreBid)
	case strings.HasPrefix(key, "ask:"):
		restoreOrder(store, strings.TrimPrefix(key, "ask:"), raw, store.StoreAsk)
	case strings.HasPrefix(key, "short:"):
		restoreOrder(store, strings.TrimPrefix(key, "short:"), raw, store.StoreShort)
	case strings.HasPrefix(key, "collateral:"):
		restoreCollateral(store, strings.TrimPrefix(key, "collateral:"), raw)
	}
}

func restoreOrder(store state.Store, body string, raw []byte, put func(state.OrderKey, *state.Order)) {
	if raw == nil {
		key, err := parseOrderKey(body)
		if err != nil {
			return
		}
		put(key, nil)
		return
	}
	var o state.Order
	decodeGob(raw, &o)
	put(o.Key, &o)
}

func restoreCollateral(store state.Store, body string, raw []byte) {
	if raw == nil {
		key, err := parseOrderKey(body)
		if err != nil {
			return
		}
		store.StoreCollateral(key, nil)
		return
	}
	var c state.CoverOrder
	decodeGob(raw, &c)
	store.StoreCollateral(c.Key, &c)
}

// parseOrderKey reconstructs an OrderKey from the composite string
// orderKeyString produces ("<quoteAsset>:<baseAsset>/<priceQuote>:
// <priceBase>/<owner-hex>"), needed only for the tombstone case where
// no gob-encoded order survives to read the key back from.
func parseOrderKey(body string) (state.OrderKey, error) {
	parts := strings.SplitN(body, "/", 3)
	if len(parts) != 3 {
		return state.OrderKey{}, errors.Newf("malformed order key %q", body)
	}
	assetParts := strings.SplitN(parts[0], ":", 2)
	priceParts := strings.SplitN(parts[1], ":", 2)
	if len(assetParts) != 2 || len(priceParts) != 2 {
		return state.OrderKey{}, errors.Newf("malformed order key %q", body)
	}
	quoteAsset, err := strconv.ParseUint(assetParts[0], 10, 64)
	if err != nil {
		return state.OrderKey{}, err
	}
	baseAsset, err := strconv.ParseUint(assetParts[1], 10, 64)
	if err != nil {
		return state.OrderKey{}, err
	}
	priceQuote, err := strconv.ParseInt(priceParts[0], 10, 64)
	if err != nil {
		return state.OrderKey{}, err
	}
	priceBase, err := strconv.ParseInt(priceParts[1], 10, 64)
	if err != nil {
		return state.OrderKey{}, err
	}
	ownerBytes, err := hex.DecodeString(parts[2])
	if err != nil {
		return state.OrderKey{}, err
	}
	var owner types.Address
	copy(owner[:], ownerBytes)
	return state.OrderKey{
		Price: types.Price{
			Quote:      types.Share(priceQuote),
			Base:       types.Share(priceBase),
			QuoteAsset: types.AssetID(quoteAsset),
			BaseAsset:  types.AssetID(baseAsset),
		},
		Owner: owner,
	}, nil
}
