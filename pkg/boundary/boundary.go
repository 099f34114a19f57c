// Package boundary implements the core side of spec.md §6's external
// interfaces. The P2P transport and the wallet's own RPC transport are
// out of scope (spec §1 non-goals: "network transport, wire codec");
// what belongs here is the handler surface gossip calls into, the
// observer surface gossip is notified through, and the wallet-facing
// accessor surface a local wallet process would call directly. Service
// is grounded structurally on the teacher's api server
// (pkg/api/server.go): a thin struct wired to the already-built engine
// pieces, translating between their native types and a narrow outward
// surface, with no business logic of its own.
package boundary

import (
	"bytes"
	"encoding/gob"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/pkg/chain/block"
	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/fork"
	"github.com/bts-go/chaincore/pkg/chain/mempool"
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

// ErrUnknownBlock fires when a requested item id has no indexed block.
var ErrUnknownBlock = errors.New("boundary: unknown block id")

// ForkData is what handle_block returns to the gossip layer: the
// linkage/validity record for the handled block, after any head switch
// handle_block triggered (spec §6 "handle_block(full_block) → fork_data").
type ForkData struct {
	BlockID       types.BlockID
	BlockNum      uint32
	IsKnown       bool
	IsLinked      bool
	IsValid       bool
	IsIncluded    bool
	InvalidReason string
}

func toForkData(n *state.ForkNode) *ForkData {
	if n == nil {
		return nil
	}
	return &ForkData{
		BlockID:       n.BlockID,
		BlockNum:      n.BlockNum,
		IsKnown:       n.IsKnown,
		IsLinked:      n.IsLinked,
		IsValid:       n.IsValid,
		IsIncluded:    n.IsIncluded,
		InvalidReason: n.InvalidReason,
	}
}

// P2PHandler is the entry surface gossip invokes on the core (spec §6
// "callbacks the gossip layer invokes on the core"). The gossip
// transport itself — wire framing, peer discovery, request/response
// correlation — is consumed, not defined here.
type P2PHandler interface {
	HandleBlock(full *state.Block) (*ForkData, error)
	GetItemIDs(after types.BlockID, limit int) (ids []types.BlockID, remaining int)
	GetItem(id types.BlockID) ([]byte, bool)
	HasItem(id types.BlockID) bool
}

// P2PObserver is the outward notification surface the core pushes
// sync/connection events through (spec §6 "observer notifications
// outward").
type P2PObserver interface {
	SyncStatus(kind string, remaining int)
	ConnectionCountChanged(n int)
}

// WalletBoundary is the surface a local wallet process calls directly
// (spec §6 "Wallet boundary"): submitting transactions, and read-only
// accessors over the tables a wallet needs to build and display them.
type WalletBoundary interface {
	StorePendingTransaction(tx *evaluator.SignedTransaction, overrideLimits bool) (*evaluator.Record, error)

	GetAccount(id types.AccountID) (*state.Account, bool)
	GetAccountByName(name string) (*state.Account, bool)
	GetAsset(id types.AssetID) (*state.Asset, bool)
	GetAssetBySymbol(symbol string) (*state.Asset, bool)
	GetBalance(id types.BalanceID) (*state.Balance, bool)

	GetBids(quote, base types.AssetID) []*state.Order
	GetAsks(quote, base types.AssetID) []*state.Order
	GetShorts(quote, base types.AssetID) []*state.Order
	GetMarketHistory(quote, base types.AssetID) (*state.MarketStatus, bool)

	GetForkList(id types.BlockID) []types.BlockID
}

// Service is the concrete core-side implementation of both P2PHandler
// and WalletBoundary, wired to a single chain's store, block index,
// processor, and mempool.
type Service struct {
	Root      state.Store
	Index     state.BlockIndexStore
	Processor *block.Processor
	Mempool   *mempool.Mempool
}

var (
	_ P2PHandler     = (*Service)(nil)
	_ WalletBoundary = (*Service)(nil)
)

// HandleBlock indexes full into the fork tree and, if it makes a
// heavier fork available, switches the head onto it (spec §6
// "handle_block(full_block) → fork_data"; spec §4.G "Switching
// forks"). The returned ForkData describes the handled block's own
// node, regardless of whether a switch happened or the block was only
// recorded as a competing branch.
func (s *Service) HandleBlock(full *state.Block) (*ForkData, error) {
	id := full.ID()
	candidateID, node := fork.StoreAndIndex(s.Index, id, full)

	headID, _ := s.Index.GetHeadBlockID()
	headNum := s.Root.GetHeadBlockNum()
	var switchErr error
	if fork.IsHeavierThan(node, headNum) {
		switchErr = fork.SwitchToFork(s.Index, candidateID, headID, s.Processor.PopBlock, func(nextID types.BlockID) error {
			b, ok := s.Index.GetBlock(nextID)
			if !ok {
				return errors.Wrapf(ErrUnknownBlock, "fork history entry %s", nextID)
			}
			return s.Processor.ExtendChain(nextID, b)
		})
	}
	own, ok := s.Index.GetForkNode(id)
	if !ok {
		own = node
	}
	return toForkData(own), switchErr
}

// GetItemIDs lists up to limit known block ids at heights after the
// block named by after, for the gossip layer's catch-up sync (spec §6
// "get_item_ids(after) → (ids, remaining_count)"). Only the first
// indexed id at each height is offered; competing branches are
// resolved through handle_block, not through sync catch-up.
func (s *Service) GetItemIDs(after types.BlockID, limit int) ([]types.BlockID, int) {
	startNum := uint32(0)
	if node, ok := s.Index.GetForkNode(after); ok {
		startNum = node.BlockNum + 1
	}
	headNum := s.Root.GetHeadBlockNum()

	var ids []types.BlockID
	remaining := 0
	for n := startNum; n <= headNum; n++ {
		at := s.Index.BlockIDsAtHeight(n)
		if len(at) == 0 {
			continue
		}
		if limit <= 0 || len(ids) < limit {
			ids = append(ids, at[0])
		} else {
			remaining++
		}
	}
	return ids, remaining
}

// GetItem returns id's block, gob-encoded for wire transport (spec §6
// "get_item(id) → block_bytes").
func (s *Service) GetItem(id types.BlockID) ([]byte, bool) {
	b, ok := s.Index.GetBlock(id)
	if !ok {
		return nil, false
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(b); err != nil {
		return nil, false
	}
	return buf.Bytes(), true
}

// HasItem reports whether id is already indexed (spec §6 "has_item(id)
// → bool").
func (s *Service) HasItem(id types.BlockID) bool {
	_, ok := s.Index.GetBlock(id)
	return ok
}

// StorePendingTransaction hands tx to the mempool and returns its
// evaluation record (spec §6 "store_pending_transaction(tx,
// override_limits) → evaluation").
func (s *Service) StorePendingTransaction(tx *evaluator.SignedTransaction, overrideLimits bool) (*evaluator.Record, error) {
	return s.Mempool.Accept(tx, overrideLimits)
}

func (s *Service) GetAccount(id types.AccountID) (*state.Account, bool) { return s.Root.GetAccount(id) }

func (s *Service) GetAccountByName(name string) (*state.Account, bool) {
	return s.Root.GetAccountByName(name)
}

func (s *Service) GetAsset(id types.AssetID) (*state.Asset, bool) { return s.Root.GetAsset(id) }

func (s *Service) GetAssetBySymbol(symbol string) (*state.Asset, bool) {
	return s.Root.GetAssetBySymbol(symbol)
}

func (s *Service) GetBalance(id types.BalanceID) (*state.Balance, bool) {
	return s.Root.GetBalance(id)
}

func (s *Service) GetBids(quote, base types.AssetID) []*state.Order {
	return s.Root.BidsDesc(quote, base)
}

func (s *Service) GetAsks(quote, base types.AssetID) []*state.Order {
	return s.Root.AsksAsc(quote, base)
}

func (s *Service) GetShorts(quote, base types.AssetID) []*state.Order {
	return s.Root.ShortsDesc(quote, base)
}

func (s *Service) GetMarketHistory(quote, base types.AssetID) (*state.MarketStatus, bool) {
	return s.Root.GetMarketStatus(quote, base)
}

// GetForkList returns the path from the nearest committed ancestor to
// id (spec §6 "Read-only accessors over ... fork list"; spec §4.G
// "get_fork_history").
func (s *Service) GetForkList(id types.BlockID) []types.BlockID {
	return fork.GetForkHistory(s.Index, id)
}
