// Package market implements the on-chain order matching engine that
// runs once per dirty (quote, base) pair per block (spec.md §4.E).
// The match loop's structure is grounded directly on the teacher's
// heap-backed OrderBook.Place (pkg/app/core/orderbook/orderbook.go):
// a for loop that peeks the best resting counter-order, computes
// `match := min(...)`, decrements both sides, and emits a fill record
// — generalized here from two-sided spot matching to the four-cursor
// bid/ask/short/collateral design §4.E specifies.
package market

import (
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// ErrDeadlockGuard fires when an iteration of the match loop fails to
// fill at least one order, a programmer error per spec §4.E
// ("Deadlock guard"). It halts block processing.
var ErrDeadlockGuard = errors.New("market_engine_deadlock")

// Transaction is one matched trade, appended to the block's audit log
// (spec §4.E "Output invariants for every emitted market_transaction").
type Transaction struct {
	QuoteAsset, BaseAsset types.AssetID
	BuyOwner, SellOwner   types.Address
	BidPaid               types.Share // quote paid by the buy side
	BidReceived           types.Share // base received by the buy side
	AskPaid               types.Share // base paid by the sell side
	AskReceived           types.Share // quote received by the sell side
	Fee                   types.Share
	NewCover              bool
}

// Config bundles the consensus constants the engine needs, trimmed
// from params.Consensus to keep the engine's dependency narrow.
type Config struct {
	BlocksPerHour      int64
	MinMarketDepth     types.Share
	MaxShortAPRPercent int64
	MaxShortPeriod     time.Duration
	MinFeeds           int
	DustThreshold      types.Share
	MarginCallFeePct   int64 // spec §4.E "5% of the remainder is taken as a network fee"
}

// DefaultConfig derives an engine Config from consensus params.
func DefaultConfig(cfg params.Consensus) Config {
	return Config{
		BlocksPerHour:      cfg.BlocksPerHour,
		MinMarketDepth:     types.Share(cfg.MinMarketDepth),
		MaxShortAPRPercent: cfg.MaxShortAPRPercent,
		MaxShortPeriod:     cfg.MaxShortPeriod,
		MinFeeds:           1,
		DustThreshold:      10, // below 0.0001 base units is swept as collected_fees
		MarginCallFeePct:   5,
	}
}

// Run matches one (quote, base) pair for the current block (spec
// §4.E). Market-layer failures (insufficient_feeds, insufficient_depth,
// invalid_market) are recorded on the pair's status record and do not
// fail the block; only a deadlock-guard violation returns an error.
func Run(store state.Store, cfg Config, rules Rules, quote, base types.AssetID, now time.Time, shortExpiration time.Time) ([]Transaction, error) {
	status, ok := store.GetMarketStatus(quote, base)
	if !ok {
		status = &state.MarketStatus{QuoteID: quote, BaseID: base}
	}
	status.LastError = ""

	if quote <= base {
		status.LastError = "invalid_market"
		store.StoreMarketStatus(status)
		return nil, nil
	}

	quoteAsset, ok := store.GetAsset(quote)
	if !ok {
		status.LastError = "invalid_market"
		store.StoreMarketStatus(status)
		return nil, nil
	}

	var feedPrice types.Price
	hasFeed := false
	if quoteAsset.IsMarketIssued {
		feedPrice, hasFeed = medianFeedPrice(store, quote, base, now, cfg.MinFeeds)
		if !hasFeed {
			status.LastError = "insufficient_feeds"
			store.StoreMarketStatus(status)
			return nil, nil
		}
		lastBid, lastAsk := feedPrice, feedPrice
		if b, ok := topBid(store, quote, base); ok {
			lastBid = clamp(b.Key.Price, feedPrice, feedPrice)
		}
		if a, ok := topAsk(store, quote, base); ok {
			lastAsk = clamp(a.Key.Price, feedPrice, feedPrice)
		}
		if status.Bootstrapped {
			status.AvgPrice1h = feedPrice
		} else {
			if status.AvgPrice1h.Base == 0 {
				status.AvgPrice1h = feedPrice
			}
			status.AvgPrice1h = updateAvgPrice1h(status.AvgPrice1h, lastBid, lastAsk, cfg.BlocksPerHour)
			status.Bootstrapped = true
		}
	}

	var txns []Transaction
	for {
		buyKind, buyOrder, buyPrice, hasBuy := bestBuy(store, quote, base, feedPrice, hasFeed)
		sellKind, sellOrder, sellCover, sellPrice, hasSell := bestSell(store, quote, base, feedPrice, hasFeed, now, cfg)
		if !hasBuy || !hasSell {
			break
		}
		if buyPrice.Less(sellPrice) {
			break
		}

		txn, err := matchOnce(store, cfg, rules, quote, base, now, shortExpiration,
			buyKind, buyOrder, buyPrice, sellKind, sellOrder, sellCover, sellPrice)
		if err != nil {
			return nil, err
		}
		if txn == nil {
			return nil, ErrDeadlockGuard
		}
		txns = append(txns, *txn)
	}

	askDepth, bidDepth := depth(store, quote, base)
	status.AskDepth, status.BidDepth = askDepth, bidDepth
	if len(txns) > 0 && (askDepth < cfg.MinMarketDepth || bidDepth < cfg.MinMarketDepth) {
		status.LastError = "insufficient_depth"
		store.StoreMarketStatus(status)
		return nil, nil
	}
	store.StoreMarketStatus(status)
	return txns, nil
}

type side int

const (
	sideBid side = iota
	sideShort
	sideAsk
	sideCover
)

func topBid(store state.Store, quote, base types.AssetID) (*state.Order, bool) {
	list := store.BidsDesc(quote, base)
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

func topAsk(store state.Store, quote, base types.AssetID) (*state.Order, bool) {
	list := store.AsksAsc(quote, base)
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

func topShort(store state.Store, quote, base types.AssetID) (*state.Order, bool) {
	list := store.ShortsDesc(quote, base)
	if len(list) == 0 {
		return nil, false
	}
	return list[0], true
}

// bestBuy picks whichever of the top bid or top short offers the
// higher effective buy price (spec §4.E "Shorts and bids are unified
// into a single best buy selection"). A short's effective price is its
// limit, capped by the feed; without a feed a short cannot trade.
func bestBuy(store state.Store, quote, base types.AssetID, feedPrice types.Price, hasFeed bool) (side, *state.Order, types.Price, bool) {
	bid, hasBid := topBid(store, quote, base)
	short, hasShort := topShort(store, quote, base)

	var shortPrice types.Price
	if hasShort && hasFeed {
		shortPrice = feedPrice
		if short.LimitPrice != nil && short.LimitPrice.Less(feedPrice) {
			shortPrice = *short.LimitPrice
		}
	} else {
		hasShort = false
	}

	switch {
	case hasBid && hasShort:
		if shortPrice.Less(bid.Key.Price) || shortPrice.Equal(bid.Key.Price) {
			return sideBid, bid, bid.Key.Price, true
		}
		return sideShort, short, shortPrice, true
	case hasBid:
		return sideBid, bid, bid.Key.Price, true
	case hasShort:
		return sideShort, short, shortPrice, true
	default:
		return 0, nil, types.Price{}, false
	}
}

// bestSell picks whichever of the top ask or the most-eligible margin
// call offers the lower effective sell price (spec §4.E "margin calls
// and asks are unified into a single best sell").
func bestSell(store state.Store, quote, base types.AssetID, feedPrice types.Price, hasFeed bool, now time.Time, cfg Config) (side, *state.Order, *state.CoverOrder, types.Price, bool) {
	ask, hasAsk := topAsk(store, quote, base)

	cover, hasCover := bestEligibleCover(store, quote, base, feedPrice, hasFeed, now)

	switch {
	case hasAsk && hasCover:
		if ask.Key.Price.LessEqual(feedPrice) {
			return sideAsk, ask, nil, ask.Key.Price, true
		}
		return sideCover, nil, cover, feedPrice, true
	case hasAsk:
		return sideAsk, ask, nil, ask.Key.Price, true
	case hasCover:
		return sideCover, nil, cover, feedPrice, true
	default:
		return 0, nil, nil, types.Price{}, false
	}
}

// bestEligibleCover scans the collateral-ascending list for a cover
// whose call price has reached the feed or whose expiration has
// passed (spec §4.E "Margin-call trigger"), preferring the most
// overdue candidate.
func bestEligibleCover(store state.Store, quote, base types.AssetID, feedPrice types.Price, hasFeed bool, now time.Time) (*state.CoverOrder, bool) {
	list := store.CollateralAsc(quote, base)
	var best *state.CoverOrder
	for i := len(list) - 1; i >= 0; i-- {
		c := list[i]
		expired := !c.Expiration.IsZero() && now.After(c.Expiration)
		callPrice := c.CallPrice(quote, base)
		eligible := expired || (hasFeed && callPrice.GreaterEqual(feedPrice))
		if eligible {
			best = c
			break
		}
	}
	return best, best != nil
}

func depth(store state.Store, quote, base types.AssetID) (askDepth, bidDepth types.Share) {
	for _, a := range store.AsksAsc(quote, base) {
		askDepth += a.Balance
	}
	for _, b := range store.BidsDesc(quote, base) {
		bidDepth += b.Balance
	}
	return askDepth, bidDepth
}
