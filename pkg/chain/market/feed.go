package market

import (
	"math/big"
	"sort"
	"time"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// maxFeedAge bounds how stale a delegate's feed may be before it is
// excluded from the median (spec §4.E "each feed ≤ 24h old").
const maxFeedAge = 24 * time.Hour

// avgPriceScale is the fixed denominator avgPrice1h is normalized to,
// so repeated smoothing never grows the ratio's terms unboundedly.
const avgPriceScale = 1_000_000_000

// medianFeedPrice returns the median of every live, non-stale feed
// submission for (quote, base), or ok=false if fewer than minFeeds
// qualify (spec §4.E "minimum number of feeds met").
func medianFeedPrice(store state.Store, quote, base types.AssetID, now time.Time, minFeeds int) (types.Price, bool) {
	entries := store.FeedsFor(quote, base)
	live := make([]*state.FeedEntry, 0, len(entries))
	for _, f := range entries {
		if now.Sub(f.Timestamp) <= maxFeedAge {
			live = append(live, f)
		}
	}
	if len(live) < minFeeds || len(live) == 0 {
		return types.Price{}, false
	}
	sort.Slice(live, func(i, j int) bool { return live[i].Price.Less(live[j].Price) })
	return live[len(live)/2].Price, true
}

// clamp bounds p within [lo, hi] (spec §4.E "clamp bounds by
// [minimum_ask, maximum_bid] derived from the feed").
func clamp(p, lo, hi types.Price) types.Price {
	if p.Less(lo) {
		return lo
	}
	if hi.Less(p) {
		return hi
	}
	return p
}

func priceAsRat(p types.Price) *big.Rat {
	return new(big.Rat).SetFrac(big.NewInt(int64(p.Quote)), big.NewInt(int64(p.Base)))
}

// updateAvgPrice1h folds the latest bid/ask clamp into the rolling
// smoothed price (spec §4.E "Feed-price smoothing"):
// avg' = ((BLOCKS_PER_HOUR-1)*avg + clamp(bid) + clamp(ask)) / (BLOCKS_PER_HOUR+1).
// Exact rational arithmetic (math/big) avoids floating point, then the
// result is normalized to a fixed-denominator Price so repeated
// smoothing never grows unboundedly.
func updateAvgPrice1h(prior, lastBid, lastAsk types.Price, blocksPerHour int64) types.Price {
	n := big.NewRat(blocksPerHour-1, 1)
	sum := new(big.Rat).Mul(n, priceAsRat(prior))
	sum.Add(sum, priceAsRat(lastBid))
	sum.Add(sum, priceAsRat(lastAsk))
	sum.Quo(sum, big.NewRat(blocksPerHour+1, 1))

	scale := big.NewInt(avgPriceScale)
	num := new(big.Int).Mul(sum.Num(), scale)
	num.Quo(num, sum.Denom())
	if num.Sign() <= 0 {
		num.SetInt64(1)
	}
	return types.NewPrice(types.Share(num.Int64()), avgPriceScale, prior.QuoteAsset, prior.BaseAsset)
}
