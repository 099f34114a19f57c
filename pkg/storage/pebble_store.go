package storage

import (
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"

	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// PebbleStore is the durable state.Store/state.BlockIndexStore,
// grounded on the teacher's storage.PebbleStore
// (pkg/storage/pebble_store.go): one *pebble.DB, a fixed key prefix
// per table, gob for chain-state records. Order-book tables are kept
// flat under a per-pair key prefix and sorted in Go at read time
// (mirroring state.MemStore's BidsDesc/AsksAsc, which does the same
// over its map) rather than encoding types.Price into a sortable byte
// key, since Price's exact-ratio comparison is cross-multiplication,
// not a naturally sortable representation.
type PebbleStore struct {
	db *pebble.DB

	mu       sync.Mutex
	clock    func() time.Time
	dirty    []state.MarketKey
	dirtySet map[state.MarketKey]bool
}

// Open opens (creating if absent) a pebble-backed store at path.
func Open(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, errors.Wrap(err, "open pebble store")
	}
	return &PebbleStore{
		db:       db,
		clock:    time.Now,
		dirtySet: make(map[state.MarketKey]bool),
	}, nil
}

// Close releases the underlying database handle.
func (s *PebbleStore) Close() error { return s.db.Close() }

// SetClock overrides now(), for deterministic tests (spec §9 "Global
// mutable time").
func (s *PebbleStore) SetClock(clock func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clock = clock
}

func (s *PebbleStore) Now() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clock()
}

func (s *PebbleStore) get(key []byte, out any) (bool, error) {
	val, closer, err := s.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	defer closer.Close()
	if err := decodeGob(val, out); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) put(key []byte, v any) {
	val, err := encodeGob(v)
	if err != nil {
		panic(errors.Wrapf(err, "encode %s", key))
	}
	if err := s.db.Set(key, val, pebble.Sync); err != nil {
		panic(errors.Wrapf(err, "set %s", key))
	}
}

func (s *PebbleStore) delete(key []byte) {
	if err := s.db.Delete(key, pebble.Sync); err != nil {
		panic(errors.Wrapf(err, "delete %s", key))
	}
}

// ---- assets ----

func (s *PebbleStore) GetAsset(id types.AssetID) (*state.Asset, bool) {
	var a state.Asset
	ok, err := s.get(assetKey(id), &a)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &a, true
}

func (s *PebbleStore) StoreAsset(a *state.Asset) {
	if a == nil {
		return
	}
	s.put(assetKey(a.ID), a)
	s.put(assetSymbolKey(a.Symbol), a.ID)
}

func (s *PebbleStore) GetAssetBySymbol(symbol string) (*state.Asset, bool) {
	var id types.AssetID
	ok, err := s.get(assetSymbolKey(symbol), &id)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return s.GetAsset(id)
}

// ---- accounts ----

func (s *PebbleStore) GetAccount(id types.AccountID) (*state.Account, bool) {
	var a state.Account
	ok, err := s.get(accountKey(id), &a)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &a, true
}

func (s *PebbleStore) StoreAccount(a *state.Account) {
	if a == nil {
		return
	}
	s.put(accountKey(a.ID), a)
	s.put(accountNameKey(a.Name), a.ID)
}

func (s *PebbleStore) GetAccountByName(name string) (*state.Account, bool) {
	var id types.AccountID
	ok, err := s.get(accountNameKey(name), &id)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return s.GetAccount(id)
}

// ---- balances / slates ----

func (s *PebbleStore) GetBalance(id types.BalanceID) (*state.Balance, bool) {
	var b state.Balance
	ok, err := s.get(balanceKey(id), &b)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &b, true
}

func (s *PebbleStore) StoreBalance(b *state.Balance) {
	if b == nil {
		return
	}
	s.put(balanceKey(b.ID), b)
}

func (s *PebbleStore) GetSlate(id types.SlateID) (*state.Slate, bool) {
	var sl state.Slate
	ok, err := s.get(slateKey(id), &sl)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &sl, true
}

func (s *PebbleStore) StoreSlate(sl *state.Slate) {
	if sl == nil {
		return
	}
	s.put(slateKey(sl.ID), sl)
}

// ---- orders ----

func (s *PebbleStore) GetBid(key state.OrderKey) (*state.Order, bool) {
	return s.getOrder(orderKey(prefixBid, key))
}
func (s *PebbleStore) StoreBid(key state.OrderKey, o *state.Order) {
	s.storeOrder(prefixBid, key, o)
}

func (s *PebbleStore) GetAsk(key state.OrderKey) (*state.Order, bool) {
	return s.getOrder(orderKey(prefixAsk, key))
}
func (s *PebbleStore) StoreAsk(key state.OrderKey, o *state.Order) {
	s.storeOrder(prefixAsk, key, o)
}

func (s *PebbleStore) GetShort(key state.OrderKey) (*state.Order, bool) {
	return s.getOrder(orderKey(prefixShort, key))
}
func (s *PebbleStore) StoreShort(key state.OrderKey, o *state.Order) {
	s.storeOrder(prefixShort, key, o)
}

func (s *PebbleStore) getOrder(key []byte) (*state.Order, bool) {
	var o state.Order
	ok, err := s.get(key, &o)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &o, true
}

// storeOrder applies spec §4.C's "store_* with a zero value removes
// the key", matching state.MemStore.storeOrder's balance==0 deletion.
func (s *PebbleStore) storeOrder(prefix string, key state.OrderKey, o *state.Order) {
	s.MarkDirty(state.MarketKey{Quote: key.Price.QuoteAsset, Base: key.Price.BaseAsset})
	k := orderKey(prefix, key)
	if o == nil || o.Balance == 0 {
		s.delete(k)
		return
	}
	s.put(k, o)
}

func (s *PebbleStore) GetCollateral(key state.OrderKey) (*state.CoverOrder, bool) {
	var c state.CoverOrder
	ok, err := s.get(orderKey(prefixCollateral, key), &c)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &c, true
}

func (s *PebbleStore) StoreCollateral(key state.OrderKey, c *state.CoverOrder) {
	s.MarkDirty(state.MarketKey{Quote: key.Price.QuoteAsset, Base: key.Price.BaseAsset})
	k := orderKey(prefixCollateral, key)
	if c == nil || c.Balance == 0 {
		s.delete(k)
		return
	}
	s.put(k, c)
}

func (s *PebbleStore) scanOrders(prefix string, quote, base types.AssetID) []*state.Order {
	p := orderPairPrefix(prefix, quote, base)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: keyUpperBound(p)})
	if err != nil {
		panic(err)
	}
	defer iter.Close()

	var out []*state.Order
	for iter.First(); iter.Valid(); iter.Next() {
		var o state.Order
		if err := decodeGob(iter.Value(), &o); err != nil {
			panic(err)
		}
		out = append(out, &o)
	}
	return out
}

func (s *PebbleStore) BidsDesc(quote, base types.AssetID) []*state.Order {
	out := s.scanOrders(prefixBid, quote, base)
	sort.Slice(out, func(i, j int) bool { return !out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

func (s *PebbleStore) AsksAsc(quote, base types.AssetID) []*state.Order {
	out := s.scanOrders(prefixAsk, quote, base)
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

func (s *PebbleStore) ShortsDesc(quote, base types.AssetID) []*state.Order {
	out := s.scanOrders(prefixShort, quote, base)
	sort.Slice(out, func(i, j int) bool { return !out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

func (s *PebbleStore) CollateralAsc(quote, base types.AssetID) []*state.CoverOrder {
	p := orderPairPrefix(prefixCollateral, quote, base)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: keyUpperBound(p)})
	if err != nil {
		panic(err)
	}
	defer iter.Close()

	var out []*state.CoverOrder
	for iter.First(); iter.Valid(); iter.Next() {
		var c state.CoverOrder
		if err := decodeGob(iter.Value(), &c); err != nil {
			panic(err)
		}
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

// ---- market status / feeds ----

func (s *PebbleStore) GetMarketStatus(quote, base types.AssetID) (*state.MarketStatus, bool) {
	var m state.MarketStatus
	ok, err := s.get(marketStatusKey(state.MarketKey{Quote: quote, Base: base}), &m)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &m, true
}

func (s *PebbleStore) StoreMarketStatus(m *state.MarketStatus) {
	if m == nil {
		return
	}
	s.put(marketStatusKey(state.MarketKey{Quote: m.QuoteID, Base: m.BaseID}), m)
}

func (s *PebbleStore) GetFeed(key state.FeedKey) (*state.FeedEntry, bool) {
	var f state.FeedEntry
	ok, err := s.get(feedKey(key), &f)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &f, true
}

func (s *PebbleStore) StoreFeed(f *state.FeedEntry) {
	if f == nil {
		return
	}
	s.put(feedKey(state.FeedKey{Delegate: f.Delegate, Quote: f.Quote, Base: f.Base}), f)
}

// FeedsFor scans the whole feed table and filters by pair in Go: the
// table is bounded by the active delegate count, never large enough
// to warrant a secondary per-pair index.
func (s *PebbleStore) FeedsFor(quote, base types.AssetID) []*state.FeedEntry {
	p := []byte(prefixFeed)
	iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: p, UpperBound: keyUpperBound(p)})
	if err != nil {
		panic(err)
	}
	defer iter.Close()

	var out []*state.FeedEntry
	for iter.First(); iter.Valid(); iter.Next() {
		var f state.FeedEntry
		if err := decodeGob(iter.Value(), &f); err != nil {
			panic(err)
		}
		if f.Quote == quote && f.Base == base {
			out = append(out, &f)
		}
	}
	return out
}

// ---- properties / accumulated fees ----

func (s *PebbleStore) GetProperty(name string) ([]byte, bool) {
	val, closer, err := s.db.Get(propertyKey(name))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false
		}
		panic(err)
	}
	defer closer.Close()
	out := make([]byte, len(val))
	copy(out, val)
	return out, true
}

func (s *PebbleStore) StoreProperty(name string, value []byte) {
	k := propertyKey(name)
	if value == nil {
		s.delete(k)
		return
	}
	if err := s.db.Set(k, value, pebble.Sync); err != nil {
		panic(err)
	}
}

func (s *PebbleStore) GetAccumulatedFees(asset types.AssetID) types.Share {
	var v types.Share
	ok, err := s.get(accumFeesKey(asset), &v)
	if err != nil {
		panic(err)
	}
	if !ok {
		return 0
	}
	return v
}

func (s *PebbleStore) StoreAccumulatedFees(asset types.AssetID, fees types.Share) {
	k := accumFeesKey(asset)
	if fees == 0 {
		s.delete(k)
		return
	}
	s.put(k, fees)
}

// ---- head block num / random seed ----

func (s *PebbleStore) GetHeadBlockNum() uint32 {
	var n uint32
	ok, err := s.get([]byte(keyHeadBlockNum), &n)
	if err != nil {
		panic(err)
	}
	if !ok {
		return 0
	}
	return n
}

func (s *PebbleStore) StoreHeadBlockNum(n uint32) {
	s.put([]byte(keyHeadBlockNum), n)
}

func (s *PebbleStore) GetCurrentRandomSeed() types.Hash {
	var h types.Hash
	ok, err := s.get([]byte(keyRandomSeed), &h)
	if err != nil {
		panic(err)
	}
	if !ok {
		return types.Hash{}
	}
	return h
}

func (s *PebbleStore) StoreCurrentRandomSeed(h types.Hash) {
	s.put([]byte(keyRandomSeed), h)
}

// ---- dirty markets ----
//
// Dirty-market tracking is purely a within-block-pass bookkeeping
// concern (spec §4.E "the pair ordering fixed by get_dirty_markets()")
// cleared before every commit, so it lives in memory rather than going
// through the db — nothing ever needs it to survive a restart.

func (s *PebbleStore) GetDirtyMarkets() []state.MarketKey {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]state.MarketKey(nil), s.dirty...)
}

func (s *PebbleStore) MarkDirty(key state.MarketKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dirtySet[key] {
		return
	}
	s.dirtySet[key] = true
	s.dirty = append(s.dirty, key)
}

func (s *PebbleStore) ClearDirtyMarkets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = nil
	s.dirtySet = make(map[state.MarketKey]bool)
}

// ---- block index ----

func (s *PebbleStore) GetBlock(id types.BlockID) (*state.Block, bool) {
	var b state.Block
	ok, err := s.get(blockKey(id), &b)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &b, true
}

func (s *PebbleStore) StoreBlock(id types.BlockID, b *state.Block) {
	if b == nil {
		return
	}
	s.put(blockKey(id), b)
}

func (s *PebbleStore) BlockIDsAtHeight(num uint32) []types.BlockID {
	var ids []types.BlockID
	ok, err := s.get(blockHeightKey(num), &ids)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil
	}
	return ids
}

func (s *PebbleStore) AddBlockIDAtHeight(num uint32, id types.BlockID) {
	ids := s.BlockIDsAtHeight(num)
	for _, existing := range ids {
		if existing == id {
			return
		}
	}
	ids = append(ids, id)
	s.put(blockHeightKey(num), ids)
}

func (s *PebbleStore) GetForkNode(id types.BlockID) (*state.ForkNode, bool) {
	var n state.ForkNode
	ok, err := s.get(forkNodeKey(id), &n)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &n, true
}

func (s *PebbleStore) StoreForkNode(n *state.ForkNode) {
	if n == nil {
		return
	}
	s.put(forkNodeKey(n.BlockID), n)
}

func (s *PebbleStore) GetUndoState(id types.BlockID) (*state.UndoState, bool) {
	var u state.UndoState
	ok, err := s.get(undoStateKey(id), &u)
	if err != nil {
		panic(err)
	}
	if !ok {
		return nil, false
	}
	return &u, true
}

func (s *PebbleStore) StoreUndoState(u *state.UndoState) {
	if u == nil {
		return
	}
	s.put(undoStateKey(u.BlockID), u)
}

func (s *PebbleStore) RemoveUndoState(id types.BlockID) {
	s.delete(undoStateKey(id))
}

func (s *PebbleStore) GetHeadBlockID() (types.BlockID, bool) {
	var id types.BlockID
	ok, err := s.get([]byte(keyHeadBlockID), &id)
	if err != nil {
		panic(err)
	}
	return id, ok
}

func (s *PebbleStore) StoreHeadBlockID(id types.BlockID) {
	s.put([]byte(keyHeadBlockID), id)
}

var (
	_ state.Store           = (*PebbleStore)(nil)
	_ state.BlockIndexStore = (*PebbleStore)(nil)
)
