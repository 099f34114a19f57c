// Package pending implements the copy-on-write chain state overlay
// that the transaction evaluator and market engine read and write
// during a single block's evaluation (spec.md §4.C "Pending chain
// state"). No teacher type does read-through overlay over a typed
// accessor interface, so the shape here is original, written in the
// teacher's plain-struct-plus-mutex idiom rather than borrowed from a
// specific teacher file.
package pending

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// tomb is stored in an overlay map to mean "deleted relative to
// parent", distinguishing it from "not yet read from parent".
type tomb struct{}

// State is a single-block, copy-on-write overlay over a parent
// state.Store. Reads fall through to the parent on a local miss;
// writes land only in the overlay until ApplyChanges copies them down.
// A State may also be built with a nil parent, in which case it behaves
// as a free-standing delta (spec §4.C "pending state may be
// constructed without a parent").
type State struct {
	mu     sync.Mutex
	parent state.Store

	assets      map[types.AssetID]interface{}
	accounts    map[types.AccountID]interface{}
	balances    map[types.BalanceID]interface{}
	slates      map[types.SlateID]interface{}
	bids        map[state.OrderKey]interface{}
	asks        map[state.OrderKey]interface{}
	shorts      map[state.OrderKey]interface{}
	collateral  map[state.OrderKey]interface{}
	marketStat  map[state.MarketKey]interface{}
	feeds       map[state.FeedKey]interface{}
	properties  map[string]interface{}
	accumFees   map[types.AssetID]types.Share
	accumFeesSet map[types.AssetID]bool

	headBlockNumSet bool
	headBlockNum    uint32
	randomSeedSet   bool
	randomSeed      types.Hash

	clockOverride func() time.Time

	dirty    []state.MarketKey
	dirtySet map[state.MarketKey]bool

	// undo captures, for every key first touched by a Store* call in
	// this overlay, the gob-encoded parent value as of before any write
	// (nil = key did not exist in the parent). Capturing only on first
	// touch makes repeated writes to the same key collapse to one undo
	// entry, and makes ApplyChanges/GetUndoState stable regardless of
	// how many times a key was rewritten.
	undo       map[string][]byte
	undoTouch  map[string]bool
	applied    bool
}

// New builds a pending overlay over parent. parent may be nil to build
// a free-standing delta (spec §4.C).
func New(parent state.Store) *State {
	return &State{
		parent:       parent,
		assets:       make(map[types.AssetID]interface{}),
		accounts:     make(map[types.AccountID]interface{}),
		balances:     make(map[types.BalanceID]interface{}),
		slates:       make(map[types.SlateID]interface{}),
		bids:         make(map[state.OrderKey]interface{}),
		asks:         make(map[state.OrderKey]interface{}),
		shorts:       make(map[state.OrderKey]interface{}),
		collateral:   make(map[state.OrderKey]interface{}),
		marketStat:   make(map[state.MarketKey]interface{}),
		feeds:        make(map[state.FeedKey]interface{}),
		properties:   make(map[string]interface{}),
		accumFees:    make(map[types.AssetID]types.Share),
		accumFeesSet: make(map[types.AssetID]bool),
		dirtySet:     make(map[state.MarketKey]bool),
		undo:         make(map[string][]byte),
		undoTouch:    make(map[string]bool),
	}
}

// SetClock overrides Now() for deterministic tests; otherwise Now()
// delegates to the parent, or wall-clock time with no parent.
func (s *State) SetClock(clock func() time.Time) { s.clockOverride = clock }

func (s *State) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.clockOverride != nil {
		return s.clockOverride()
	}
	if s.parent != nil {
		return s.parent.Now()
	}
	return time.Now()
}

// touch records key's pre-overlay value for undo, the first time key
// is written in this overlay. encode(nil) must be supplied when the
// value is absent.
func (s *State) touch(key string, encode func() []byte) {
	if s.undoTouch[key] {
		return
	}
	s.undoTouch[key] = true
	s.undo[key] = encode()
}

func (s *State) markDirty(key state.MarketKey) {
	if s.dirtySet[key] {
		return
	}
	s.dirtySet[key] = true
	s.dirty = append(s.dirty, key)
}

// ---- assets ----

func (s *State) GetAsset(id types.AssetID) (*state.Asset, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.assets[id]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.Asset), true
	}
	if s.parent != nil {
		return s.parent.GetAsset(id)
	}
	return nil, false
}

func (s *State) StoreAsset(a *state.Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := assetKey(a.ID)
	s.touch(key, func() []byte { return encodeParentAsset(s.parent, a.ID) })
	s.assets[a.ID] = a
}

func (s *State) GetAssetBySymbol(symbol string) (*state.Asset, bool) {
	s.mu.Lock()
	for _, v := range s.assets {
		if v == nil {
			continue
		}
		if a := v.(*state.Asset); a.Symbol == symbol {
			s.mu.Unlock()
			return a, true
		}
	}
	s.mu.Unlock()
	if s.parent != nil {
		if a, ok := s.parent.GetAssetBySymbol(symbol); ok {
			if _, shadowed := s.assets[a.ID]; !shadowed {
				return a, true
			}
		}
	}
	return nil, false
}

// ---- accounts ----

func (s *State) GetAccount(id types.AccountID) (*state.Account, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.accounts[id]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.Account), true
	}
	if s.parent != nil {
		return s.parent.GetAccount(id)
	}
	return nil, false
}

func (s *State) StoreAccount(a *state.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accountKey(a.ID)
	s.touch(key, func() []byte { return encodeParentAccount(s.parent, a.ID) })
	s.accounts[a.ID] = a
}

func (s *State) GetAccountByName(name string) (*state.Account, bool) {
	s.mu.Lock()
	for _, v := range s.accounts {
		if v == nil {
			continue
		}
		if a := v.(*state.Account); a.Name == name {
			s.mu.Unlock()
			return a, true
		}
	}
	s.mu.Unlock()
	if s.parent != nil {
		if a, ok := s.parent.GetAccountByName(name); ok {
			if _, shadowed := s.accounts[a.ID]; !shadowed {
				return a, true
			}
		}
	}
	return nil, false
}

// ---- balances ----

func (s *State) GetBalance(id types.BalanceID) (*state.Balance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.balances[id]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.Balance), true
	}
	if s.parent != nil {
		return s.parent.GetBalance(id)
	}
	return nil, false
}

func (s *State) StoreBalance(b *state.Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := balanceKey(b.ID)
	s.touch(key, func() []byte { return encodeParentBalance(s.parent, b.ID) })
	s.balances[b.ID] = b
}

// ---- slates ----

func (s *State) GetSlate(id types.SlateID) (*state.Slate, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.slates[id]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.Slate), true
	}
	if s.parent != nil {
		return s.parent.GetSlate(id)
	}
	return nil, false
}

func (s *State) StoreSlate(sl *state.Slate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := slateKey(sl.ID)
	s.touch(key, func() []byte { return encodeParentSlate(s.parent, sl.ID) })
	s.slates[sl.ID] = sl
}

// ---- orders ----

func (s *State) GetBid(key state.OrderKey) (*state.Order, bool) {
	return getOrder(s, s.bids, key, func(p state.Store) (*state.Order, bool) { return p.GetBid(key) })
}
func (s *State) StoreBid(key state.OrderKey, o *state.Order) {
	s.storeOrder(s.bids, "bid", key, o, func(p state.Store) (*state.Order, bool) { return p.GetBid(key) })
}

func (s *State) GetAsk(key state.OrderKey) (*state.Order, bool) {
	return getOrder(s, s.asks, key, func(p state.Store) (*state.Order, bool) { return p.GetAsk(key) })
}
func (s *State) StoreAsk(key state.OrderKey, o *state.Order) {
	s.storeOrder(s.asks, "ask", key, o, func(p state.Store) (*state.Order, bool) { return p.GetAsk(key) })
}

func (s *State) GetShort(key state.OrderKey) (*state.Order, bool) {
	return getOrder(s, s.shorts, key, func(p state.Store) (*state.Order, bool) { return p.GetShort(key) })
}
func (s *State) StoreShort(key state.OrderKey, o *state.Order) {
	s.storeOrder(s.shorts, "short", key, o, func(p state.Store) (*state.Order, bool) { return p.GetShort(key) })
}

func getOrder(s *State, m map[state.OrderKey]interface{}, key state.OrderKey, fromParent func(state.Store) (*state.Order, bool)) (*state.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := m[key]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.Order), true
	}
	if s.parent != nil {
		return fromParent(s.parent)
	}
	return nil, false
}

func (s *State) storeOrder(m map[state.OrderKey]interface{}, table string, key state.OrderKey, o *state.Order, fromParent func(state.Store) (*state.Order, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirty(state.MarketKey{Quote: key.Price.QuoteAsset, Base: key.Price.BaseAsset})
	ukey := orderKeyString(table, key)
	s.touch(ukey, func() []byte {
		if s.parent == nil {
			return nil
		}
		prev, ok := fromParent(s.parent)
		if !ok {
			return nil
		}
		return encodeGob(prev)
	})
	if o == nil || o.Balance == 0 {
		m[key] = nil
		return
	}
	m[key] = o
}

func (s *State) GetCollateral(key state.OrderKey) (*state.CoverOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.collateral[key]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.CoverOrder), true
	}
	if s.parent != nil {
		return s.parent.GetCollateral(key)
	}
	return nil, false
}

func (s *State) StoreCollateral(key state.OrderKey, o *state.CoverOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirty(state.MarketKey{Quote: key.Price.QuoteAsset, Base: key.Price.BaseAsset})
	ukey := orderKeyString("collateral", key)
	s.touch(ukey, func() []byte {
		if s.parent == nil {
			return nil
		}
		prev, ok := s.parent.GetCollateral(key)
		if !ok {
			return nil
		}
		return encodeGob(prev)
	})
	if o == nil || o.Balance == 0 {
		s.collateral[key] = nil
		return
	}
	s.collateral[key] = o
}

// ---- iterators: merge overlay with parent, overlay wins, tombstones hide ----

func (s *State) BidsDesc(quote, base types.AssetID) []*state.Order {
	return mergeOrders(s, s.bids, quote, base, func(p state.Store) []*state.Order { return p.BidsDesc(quote, base) })
}
func (s *State) AsksAsc(quote, base types.AssetID) []*state.Order {
	return mergeOrders(s, s.asks, quote, base, func(p state.Store) []*state.Order { return p.AsksAsc(quote, base) })
}
func (s *State) ShortsDesc(quote, base types.AssetID) []*state.Order {
	return mergeOrders(s, s.shorts, quote, base, func(p state.Store) []*state.Order { return p.ShortsDesc(quote, base) })
}

func mergeOrders(s *State, m map[state.OrderKey]interface{}, quote, base types.AssetID, fromParent func(state.Store) []*state.Order) []*state.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*state.Order, 0)
	seen := make(map[state.OrderKey]bool)
	for k, v := range m {
		if k.Price.QuoteAsset != quote || k.Price.BaseAsset != base {
			continue
		}
		seen[k] = true
		if v != nil {
			out = append(out, v.(*state.Order))
		}
	}
	if s.parent != nil {
		for _, o := range fromParent(s.parent) {
			if !seen[o.Key] {
				out = append(out, o)
			}
		}
	}
	return out
}

func (s *State) CollateralAsc(quote, base types.AssetID) []*state.CoverOrder {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*state.CoverOrder, 0)
	seen := make(map[state.OrderKey]bool)
	for k, v := range s.collateral {
		if k.Price.QuoteAsset != quote || k.Price.BaseAsset != base {
			continue
		}
		seen[k] = true
		if v != nil {
			out = append(out, v.(*state.CoverOrder))
		}
	}
	if s.parent != nil {
		for _, c := range s.parent.CollateralAsc(quote, base) {
			if !seen[c.Key] {
				out = append(out, c)
			}
		}
	}
	return out
}

// ---- market status / properties / fees ----

func (s *State) GetMarketStatus(quote, base types.AssetID) (*state.MarketStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := state.MarketKey{Quote: quote, Base: base}
	if v, ok := s.marketStat[key]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.MarketStatus), true
	}
	if s.parent != nil {
		return s.parent.GetMarketStatus(quote, base)
	}
	return nil, false
}

func (s *State) StoreMarketStatus(m *state.MarketStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := state.MarketKey{Quote: m.QuoteID, Base: m.BaseID}
	ukey := marketStatusKeyString(key)
	s.touch(ukey, func() []byte {
		if s.parent == nil {
			return nil
		}
		prev, ok := s.parent.GetMarketStatus(m.QuoteID, m.BaseID)
		if !ok {
			return nil
		}
		return encodeGob(prev)
	})
	s.marketStat[key] = m
}

func (s *State) GetFeed(key state.FeedKey) (*state.FeedEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.feeds[key]; ok {
		if v == nil {
			return nil, false
		}
		return v.(*state.FeedEntry), true
	}
	if s.parent != nil {
		return s.parent.GetFeed(key)
	}
	return nil, false
}

func (s *State) StoreFeed(f *state.FeedEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := state.FeedKey{Delegate: f.Delegate, Quote: f.Quote, Base: f.Base}
	ukey := fmt.Sprintf("feed:%d:%d:%d", f.Delegate, f.Quote, f.Base)
	s.touch(ukey, func() []byte {
		if s.parent == nil {
			return nil
		}
		prev, ok := s.parent.GetFeed(key)
		if !ok {
			return nil
		}
		return encodeGob(prev)
	})
	s.feeds[key] = f
}

func (s *State) FeedsFor(quote, base types.AssetID) []*state.FeedEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*state.FeedEntry, 0)
	seen := make(map[state.FeedKey]bool)
	for k, v := range s.feeds {
		if k.Quote != quote || k.Base != base {
			continue
		}
		seen[k] = true
		if v != nil {
			out = append(out, v.(*state.FeedEntry))
		}
	}
	if s.parent != nil {
		for _, f := range s.parent.FeedsFor(quote, base) {
			key := state.FeedKey{Delegate: f.Delegate, Quote: f.Quote, Base: f.Base}
			if !seen[key] {
				out = append(out, f)
			}
		}
	}
	return out
}

func (s *State) GetProperty(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.properties[name]; ok {
		if v == nil {
			return nil, false
		}
		return v.([]byte), true
	}
	if s.parent != nil {
		return s.parent.GetProperty(name)
	}
	return nil, false
}

func (s *State) StoreProperty(name string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := propertyKey(name)
	s.touch(key, func() []byte {
		if s.parent == nil {
			return nil
		}
		prev, ok := s.parent.GetProperty(name)
		if !ok {
			return nil
		}
		return encodeGob(prev)
	})
	if value == nil {
		s.properties[name] = nil
		return
	}
	s.properties[name] = value
}

func (s *State) GetAccumulatedFees(asset types.AssetID) types.Share {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accumFeesSet[asset] {
		return s.accumFees[asset]
	}
	if s.parent != nil {
		return s.parent.GetAccumulatedFees(asset)
	}
	return 0
}

func (s *State) StoreAccumulatedFees(asset types.AssetID, fees types.Share) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := accumFeesKey(asset)
	s.touch(key, func() []byte {
		if s.parent == nil {
			return nil
		}
		return encodeGob(s.parent.GetAccumulatedFees(asset))
	})
	s.accumFeesSet[asset] = true
	s.accumFees[asset] = fees
}

// ---- head block num / random seed ----

func (s *State) GetHeadBlockNum() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.headBlockNumSet {
		return s.headBlockNum
	}
	if s.parent != nil {
		return s.parent.GetHeadBlockNum()
	}
	return 0
}

func (s *State) StoreHeadBlockNum(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(headBlockNumKey, func() []byte {
		if s.parent == nil {
			return nil
		}
		return encodeGob(s.parent.GetHeadBlockNum())
	})
	s.headBlockNumSet = true
	s.headBlockNum = n
}

func (s *State) GetCurrentRandomSeed() types.Hash {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.randomSeedSet {
		return s.randomSeed
	}
	if s.parent != nil {
		return s.parent.GetCurrentRandomSeed()
	}
	return types.Hash{}
}

func (s *State) StoreCurrentRandomSeed(h types.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch(randomSeedKey, func() []byte {
		if s.parent == nil {
			return nil
		}
		seed := s.parent.GetCurrentRandomSeed()
		return encodeGob(&seed)
	})
	s.randomSeedSet = true
	s.randomSeed = h
}

// ---- dirty markets ----

func (s *State) GetDirtyMarkets() []state.MarketKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]state.MarketKey(nil), s.dirty...)
	if s.parent != nil {
		for _, k := range s.parent.GetDirtyMarkets() {
			if !s.dirtySet[k] {
				out = append(out, k)
			}
		}
	}
	return out
}

func (s *State) MarkDirty(key state.MarketKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirty(key)
}

func (s *State) ClearDirtyMarkets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = nil
	s.dirtySet = make(map[state.MarketKey]bool)
	if s.parent != nil {
		s.parent.ClearDirtyMarkets()
	}
}

// GetUndoState fills out with the inverse delta needed to restore the
// parent to what it held before this overlay's writes (spec §4.C
// "get_undo_state"). Calling it before any writes yields an empty
// KeyValues map.
func (s *State) GetUndoState(blockID types.BlockID, out *state.UndoState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out.BlockID = blockID
	out.KeyValues = make(map[string][]byte, len(s.undo))
	for k, v := range s.undo {
		out.KeyValues[k] = v
	}
}

// ApplyChanges copies every write in this overlay down into the
// parent store and clears the overlay. It is idempotent: a second call
// with no intervening writes is a no-op, since the overlay is empty
// after the first application (spec §4.C "apply_changes is
// idempotent").
func (s *State) ApplyChanges() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.applied || s.parent == nil {
		s.resetOverlayLocked()
		return nil
	}
	// Assets, accounts and balances are never tombstoned (spec §3:
	// balances are "never deleted, even when amount reaches zero");
	// only orders and cover positions carry delete-on-zero semantics.
	for _, v := range s.assets {
		s.parent.StoreAsset(v.(*state.Asset))
	}
	for _, v := range s.accounts {
		s.parent.StoreAccount(v.(*state.Account))
	}
	for _, v := range s.balances {
		s.parent.StoreBalance(v.(*state.Balance))
	}
	for _, v := range s.slates {
		if v == nil {
			continue
		}
		s.parent.StoreSlate(v.(*state.Slate))
	}
	for k, v := range s.bids {
		if v == nil {
			s.parent.StoreBid(k, nil)
			continue
		}
		s.parent.StoreBid(k, v.(*state.Order))
	}
	for k, v := range s.asks {
		if v == nil {
			s.parent.StoreAsk(k, nil)
			continue
		}
		s.parent.StoreAsk(k, v.(*state.Order))
	}
	for k, v := range s.shorts {
		if v == nil {
			s.parent.StoreShort(k, nil)
			continue
		}
		s.parent.StoreShort(k, v.(*state.Order))
	}
	for k, v := range s.collateral {
		if v == nil {
			s.parent.StoreCollateral(k, nil)
			continue
		}
		s.parent.StoreCollateral(k, v.(*state.CoverOrder))
	}
	for _, v := range s.marketStat {
		if v == nil {
			continue
		}
		s.parent.StoreMarketStatus(v.(*state.MarketStatus))
	}
	for _, v := range s.feeds {
		if v == nil {
			continue
		}
		s.parent.StoreFeed(v.(*state.FeedEntry))
	}
	for name, v := range s.properties {
		if v == nil {
			s.parent.StoreProperty(name, nil)
			continue
		}
		s.parent.StoreProperty(name, v.([]byte))
	}
	for asset, set := range s.accumFeesSet {
		if !set {
			continue
		}
		s.parent.StoreAccumulatedFees(asset, s.accumFees[asset])
	}
	if s.headBlockNumSet {
		s.parent.StoreHeadBlockNum(s.headBlockNum)
	}
	if s.randomSeedSet {
		s.parent.StoreCurrentRandomSeed(s.randomSeed)
	}
	for _, k := range s.dirty {
		s.parent.MarkDirty(k)
	}
	s.applied = true
	s.resetOverlayLocked()
	return nil
}

func (s *State) resetOverlayLocked() {
	s.assets = make(map[types.AssetID]interface{})
	s.accounts = make(map[types.AccountID]interface{})
	s.balances = make(map[types.BalanceID]interface{})
	s.slates = make(map[types.SlateID]interface{})
	s.bids = make(map[state.OrderKey]interface{})
	s.asks = make(map[state.OrderKey]interface{})
	s.shorts = make(map[state.OrderKey]interface{})
	s.collateral = make(map[state.OrderKey]interface{})
	s.marketStat = make(map[state.MarketKey]interface{})
	s.feeds = make(map[state.FeedKey]interface{})
	s.properties = make(map[string]interface{})
	s.accumFees = make(map[types.AssetID]types.Share)
	s.accumFeesSet = make(map[types.AssetID]bool)
	s.headBlockNumSet = false
	s.randomSeedSet = false
	s.dirty = nil
	s.dirtySet = make(map[state.MarketKey]bool)
	s.undo = make(map[string][]byte)
	s.undoTouch = make(map[string]bool)
}

var _ state.Store = (*State)(nil)

// ---- undo key encoding helpers ----

const (
	headBlockNumKey = "headblocknum"
	randomSeedKey   = "randomseed"
)

func assetKey(id types.AssetID) string          { return fmt.Sprintf("asset:%d", id) }
func accountKey(id types.AccountID) string       { return fmt.Sprintf("account:%d", id) }
func balanceKey(id types.BalanceID) string       { return fmt.Sprintf("balance:%x", id) }
func slateKey(id types.SlateID) string           { return fmt.Sprintf("slate:%x", id) }
func propertyKey(name string) string             { return fmt.Sprintf("property:%s", name) }
func accumFeesKey(asset types.AssetID) string    { return fmt.Sprintf("accumfees:%d", asset) }

func marketStatusKeyString(k state.MarketKey) string {
	return fmt.Sprintf("marketstatus:%d:%d", k.Quote, k.Base)
}

func orderKeyString(table string, k state.OrderKey) string {
	return fmt.Sprintf("%s:%d:%d/%d:%d/%x", table, k.Price.QuoteAsset, k.Price.BaseAsset, k.Price.Quote, k.Price.Base, k.Owner)
}

func encodeGob(v interface{}) []byte {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		panic(errors.Wrap(err, "pending: gob encode"))
	}
	return buf.Bytes()
}

func encodeParentAsset(parent state.Store, id types.AssetID) []byte {
	if parent == nil {
		return nil
	}
	a, ok := parent.GetAsset(id)
	if !ok {
		return nil
	}
	return encodeGob(a)
}

func encodeParentAccount(parent state.Store, id types.AccountID) []byte {
	if parent == nil {
		return nil
	}
	a, ok := parent.GetAccount(id)
	if !ok {
		return nil
	}
	return encodeGob(a)
}

func encodeParentBalance(parent state.Store, id types.BalanceID) []byte {
	if parent == nil {
		return nil
	}
	b, ok := parent.GetBalance(id)
	if !ok {
		return nil
	}
	return encodeGob(b)
}

func encodeParentSlate(parent state.Store, id types.SlateID) []byte {
	if parent == nil {
		return nil
	}
	sl, ok := parent.GetSlate(id)
	if !ok {
		return nil
	}
	return encodeGob(sl)
}
