package state

import (
	"sort"
	"sync"
	"time"

	"github.com/bts-go/chaincore/pkg/types"
)

// MemStore is an in-memory Store + BlockIndexStore, used as the
// committed chain state's root in tests and as the base the pending
// overlay reads through during evaluation. Grounded on the teacher's
// storage.NewInMemoryBlockStore() (pkg/storage, used for the
// consensus engine's block store in cmd/node/main.go).
type MemStore struct {
	mu sync.RWMutex

	assets      map[types.AssetID]*Asset
	assetsBySym map[string]types.AssetID
	accounts    map[types.AccountID]*Account
	acctByName  map[string]types.AccountID
	balances    map[types.BalanceID]*Balance
	slates      map[types.SlateID]*Slate

	bids  map[OrderKey]*Order
	asks  map[OrderKey]*Order
	short map[OrderKey]*Order
	cover map[OrderKey]*CoverOrder

	marketStatus map[MarketKey]*MarketStatus
	feeds        map[FeedKey]*FeedEntry
	properties   map[string][]byte
	accumFees    map[types.AssetID]types.Share

	headBlockNum uint32
	randomSeed   types.Hash
	dirty        []MarketKey
	dirtySet     map[MarketKey]bool

	clock func() time.Time

	blocks       map[types.BlockID]*Block
	blocksByNum  map[uint32][]types.BlockID
	forkNodes    map[types.BlockID]*ForkNode
	undoStates   map[types.BlockID]*UndoState
	headBlockID  types.BlockID
	hasHeadBlock bool
}

// NewMemStore returns an empty store whose Now() reports wall-clock
// time. Tests that need determinism should set Clock.
func NewMemStore() *MemStore {
	return &MemStore{
		assets:       make(map[types.AssetID]*Asset),
		assetsBySym:  make(map[string]types.AssetID),
		accounts:     make(map[types.AccountID]*Account),
		acctByName:   make(map[string]types.AccountID),
		balances:     make(map[types.BalanceID]*Balance),
		slates:       make(map[types.SlateID]*Slate),
		bids:         make(map[OrderKey]*Order),
		asks:         make(map[OrderKey]*Order),
		short:        make(map[OrderKey]*Order),
		cover:        make(map[OrderKey]*CoverOrder),
		marketStatus: make(map[MarketKey]*MarketStatus),
		feeds:        make(map[FeedKey]*FeedEntry),
		properties:   make(map[string][]byte),
		accumFees:    make(map[types.AssetID]types.Share),
		dirtySet:     make(map[MarketKey]bool),
		clock:        time.Now,
		blocks:       make(map[types.BlockID]*Block),
		blocksByNum:  make(map[uint32][]types.BlockID),
		forkNodes:    make(map[types.BlockID]*ForkNode),
		undoStates:   make(map[types.BlockID]*UndoState),
	}
}

// SetClock overrides the store's now() capability, for deterministic
// tests (spec §9 "Global mutable time").
func (s *MemStore) SetClock(clock func() time.Time) { s.clock = clock }

func (s *MemStore) Now() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.clock()
}

func (s *MemStore) GetAsset(id types.AssetID) (*Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assets[id]
	return a, ok
}

func (s *MemStore) StoreAsset(a *Asset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a == nil {
		return
	}
	s.assets[a.ID] = a
	s.assetsBySym[a.Symbol] = a.ID
}

func (s *MemStore) GetAssetBySymbol(symbol string) (*Asset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.assetsBySym[symbol]
	if !ok {
		return nil, false
	}
	a, ok := s.assets[id]
	return a, ok
}

func (s *MemStore) GetAccount(id types.AccountID) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	return a, ok
}

func (s *MemStore) StoreAccount(a *Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a == nil {
		return
	}
	s.accounts[a.ID] = a
	s.acctByName[a.Name] = a.ID
}

func (s *MemStore) GetAccountByName(name string) (*Account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.acctByName[name]
	if !ok {
		return nil, false
	}
	a, ok := s.accounts[id]
	return a, ok
}

func (s *MemStore) GetBalance(id types.BalanceID) (*Balance, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.balances[id]
	return b, ok
}

func (s *MemStore) StoreBalance(b *Balance) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if b == nil {
		return
	}
	s.balances[b.ID] = b
}

func (s *MemStore) GetSlate(id types.SlateID) (*Slate, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sl, ok := s.slates[id]
	return sl, ok
}

func (s *MemStore) StoreSlate(sl *Slate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sl == nil {
		return
	}
	s.slates[sl.ID] = sl
}

func (s *MemStore) GetBid(key OrderKey) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.bids[key]
	return o, ok
}
func (s *MemStore) StoreBid(key OrderKey, o *Order) { s.storeOrder(s.bids, key, o) }

func (s *MemStore) GetAsk(key OrderKey) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.asks[key]
	return o, ok
}
func (s *MemStore) StoreAsk(key OrderKey, o *Order) { s.storeOrder(s.asks, key, o) }

func (s *MemStore) GetShort(key OrderKey) (*Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.short[key]
	return o, ok
}
func (s *MemStore) StoreShort(key OrderKey, o *Order) { s.storeOrder(s.short, key, o) }

func (s *MemStore) storeOrder(m map[OrderKey]*Order, key OrderKey, o *Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirtyLocked(MarketKey{Quote: key.Price.QuoteAsset, Base: key.Price.BaseAsset})
	if o == nil || o.Balance == 0 {
		delete(m, key)
		return
	}
	m[key] = o
}

func (s *MemStore) GetCollateral(key OrderKey) (*CoverOrder, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cover[key]
	return c, ok
}

func (s *MemStore) StoreCollateral(key OrderKey, o *CoverOrder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirtyLocked(MarketKey{Quote: key.Price.QuoteAsset, Base: key.Price.BaseAsset})
	if o == nil || o.Balance == 0 {
		delete(s.cover, key)
		return
	}
	s.cover[key] = o
}

func (s *MemStore) BidsDesc(quote, base types.AssetID) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for k, o := range s.bids {
		if k.Price.QuoteAsset == quote && k.Price.BaseAsset == base {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return !out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

func (s *MemStore) AsksAsc(quote, base types.AssetID) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for k, o := range s.asks {
		if k.Price.QuoteAsset == quote && k.Price.BaseAsset == base {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

func (s *MemStore) ShortsDesc(quote, base types.AssetID) []*Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Order
	for k, o := range s.short {
		if k.Price.QuoteAsset == quote && k.Price.BaseAsset == base {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return !out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

func (s *MemStore) CollateralAsc(quote, base types.AssetID) []*CoverOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*CoverOrder
	for k, c := range s.cover {
		if k.Price.QuoteAsset == quote && k.Price.BaseAsset == base {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Price.Less(out[j].Key.Price) })
	return out
}

func (s *MemStore) GetMarketStatus(quote, base types.AssetID) (*MarketStatus, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.marketStatus[MarketKey{Quote: quote, Base: base}]
	return m, ok
}

func (s *MemStore) StoreMarketStatus(m *MarketStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m == nil {
		return
	}
	s.marketStatus[MarketKey{Quote: m.QuoteID, Base: m.BaseID}] = m
}

func (s *MemStore) GetFeed(key FeedKey) (*FeedEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.feeds[key]
	return f, ok
}

func (s *MemStore) StoreFeed(f *FeedEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f == nil {
		return
	}
	s.feeds[FeedKey{Delegate: f.Delegate, Quote: f.Quote, Base: f.Base}] = f
}

func (s *MemStore) FeedsFor(quote, base types.AssetID) []*FeedEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*FeedEntry
	for k, f := range s.feeds {
		if k.Quote == quote && k.Base == base {
			out = append(out, f)
		}
	}
	return out
}

func (s *MemStore) GetProperty(name string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.properties[name]
	return v, ok
}

func (s *MemStore) StoreProperty(name string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if value == nil {
		delete(s.properties, name)
		return
	}
	s.properties[name] = value
}

func (s *MemStore) GetAccumulatedFees(asset types.AssetID) types.Share {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accumFees[asset]
}

func (s *MemStore) StoreAccumulatedFees(asset types.AssetID, fees types.Share) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fees == 0 {
		delete(s.accumFees, asset)
		return
	}
	s.accumFees[asset] = fees
}

func (s *MemStore) GetHeadBlockNum() uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headBlockNum
}

func (s *MemStore) StoreHeadBlockNum(n uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headBlockNum = n
}

func (s *MemStore) GetCurrentRandomSeed() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.randomSeed
}

func (s *MemStore) StoreCurrentRandomSeed(h types.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.randomSeed = h
}

func (s *MemStore) GetDirtyMarkets() []MarketKey {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]MarketKey(nil), s.dirty...)
}

func (s *MemStore) MarkDirty(key MarketKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markDirtyLocked(key)
}

func (s *MemStore) markDirtyLocked(key MarketKey) {
	if s.dirtySet[key] {
		return
	}
	s.dirtySet[key] = true
	s.dirty = append(s.dirty, key)
}

func (s *MemStore) ClearDirtyMarkets() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dirty = nil
	s.dirtySet = make(map[MarketKey]bool)
}

// ---- BlockIndexStore ----

func (s *MemStore) GetBlock(id types.BlockID) (*Block, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blocks[id]
	return b, ok
}

func (s *MemStore) StoreBlock(id types.BlockID, b *Block) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blocks[id] = b
}

func (s *MemStore) BlockIDsAtHeight(num uint32) []types.BlockID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.BlockID(nil), s.blocksByNum[num]...)
}

func (s *MemStore) AddBlockIDAtHeight(num uint32, id types.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.blocksByNum[num] {
		if existing == id {
			return
		}
	}
	s.blocksByNum[num] = append(s.blocksByNum[num], id)
}

func (s *MemStore) GetForkNode(id types.BlockID) (*ForkNode, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.forkNodes[id]
	return n, ok
}

func (s *MemStore) StoreForkNode(n *ForkNode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n == nil {
		return
	}
	s.forkNodes[n.BlockID] = n
}

func (s *MemStore) GetUndoState(id types.BlockID) (*UndoState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.undoStates[id]
	return u, ok
}

func (s *MemStore) StoreUndoState(u *UndoState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u == nil {
		return
	}
	s.undoStates[u.BlockID] = u
}

func (s *MemStore) RemoveUndoState(id types.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.undoStates, id)
}

func (s *MemStore) GetHeadBlockID() (types.BlockID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.headBlockID, s.hasHeadBlock
}

func (s *MemStore) StoreHeadBlockID(id types.BlockID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headBlockID = id
	s.hasHeadBlock = true
}

var (
	_ Store           = (*MemStore)(nil)
	_ BlockIndexStore = (*MemStore)(nil)
)
