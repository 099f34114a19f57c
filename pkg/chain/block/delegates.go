// Delegate production accounting, pay, active-set refresh, and the
// random-seed update (spec.md §4.F steps 4, 5, 8, 9). Grounded on
// chain_database_impl's update_delegate_production_info/pay_delegate/
// update_active_delegate_list/update_random_seed, structurally on the
// teacher's plain property-bag bookkeeping style in
// pkg/app/core/account/manager.go (direct map mutation, no generics).
package block

import (
	"encoding/binary"
	"math/rand"
	"sort"
	"time"

	"github.com/cockroachdb/errors"

	chaincrypto "github.com/bts-go/chaincore/pkg/crypto"
	"github.com/bts-go/chaincore/params"
	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/market"
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

const (
	activeDelegatesProperty   = "active_delegates"
	requiredConfirmationsProp = "required_confirmations"
)

// ActiveDelegates returns the current active delegate set, in slot
// order.
func ActiveDelegates(store state.Store) []types.AccountID {
	raw, ok := store.GetProperty(activeDelegatesProperty)
	if !ok || len(raw)%8 != 0 {
		return nil
	}
	ids := make([]types.AccountID, len(raw)/8)
	for i := range ids {
		ids[i] = types.AccountID(binary.BigEndian.Uint64(raw[i*8:]))
	}
	return ids
}

func storeActiveDelegates(store state.Store, ids []types.AccountID) {
	buf := make([]byte, len(ids)*8)
	for i, id := range ids {
		binary.BigEndian.PutUint64(buf[i*8:], uint64(id))
	}
	store.StoreProperty(activeDelegatesProperty, buf)
}

// SeedActiveDelegates sets the initial active delegate set directly
// (pkg/genesis), before any shuffle-by-random-seed refresh has run.
func SeedActiveDelegates(store state.Store, ids []types.AccountID) {
	storeActiveDelegates(store, ids)
}

// slotIndex returns the production slot a timestamp falls in:
// timestamp / interval (spec §4.F step 2: "slot timestamp/interval mod N").
func slotIndex(ts time.Time, interval time.Duration) int64 {
	return ts.Unix() / int64(interval/time.Second)
}

// SlotIndex exports slotIndex for block production (cmd/node) to find
// the slot a candidate block timestamp falls in.
func SlotIndex(ts time.Time, interval time.Duration) int64 {
	return slotIndex(ts, interval)
}

// scheduledDelegate returns the delegate scheduled for slotIndex
// against the current active set.
func scheduledDelegate(store state.Store, slot int64) (types.AccountID, bool) {
	active := ActiveDelegates(store)
	if len(active) == 0 {
		return 0, false
	}
	return active[int(slot%int64(len(active)))], true
}

// ScheduledProducer exports scheduledDelegate for block production
// (cmd/node) to decide whether the local node owns the current slot.
func ScheduledProducer(store state.Store, slot int64) (types.AccountID, bool) {
	return scheduledDelegate(store, slot)
}

// requiredConfirmations reads/writes the bounded confirmation-depth
// counter (spec §4.F step 4: "+2 per missed slot, -1 per produced,
// bounded [1, 2N]").
func requiredConfirmations(store state.Store) uint32 {
	raw, ok := store.GetProperty(requiredConfirmationsProp)
	if !ok || len(raw) != 4 {
		return 0
	}
	return binary.BigEndian.Uint32(raw)
}

func storeRequiredConfirmations(store state.Store, n uint32) {
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, n)
	store.StoreProperty(requiredConfirmationsProp, buf)
}

func adjustRequiredConfirmations(store state.Store, cfg params.Consensus, delta int64) {
	lower := int64(1)
	upper := int64(2 * cfg.ActiveDelegateCount)
	cur := int64(requiredConfirmations(store))
	cur += delta
	if cur < lower {
		cur = lower
	}
	if cur > upper {
		cur = upper
	}
	storeRequiredConfirmations(store, uint32(cur))
}

// accountForProduction loads the account record for a scheduled
// delegate, failing if it isn't actually a delegate.
func accountForProduction(store state.Store, id types.AccountID) (*state.Account, error) {
	a, ok := store.GetAccount(id)
	if !ok || a.Delegate == nil {
		return nil, errors.Wrapf(ErrWrongSigner, "scheduled account %d is not a delegate", id)
	}
	return a, nil
}

// recordProduction runs spec §4.F step 4: marks every slot between
// the previous head's timestamp and the new block's timestamp as
// missed for its scheduled delegate, then records the producing
// delegate's own accounting, including its secret-hash chain advance.
func recordProduction(store state.Store, cfg params.Consensus, prevTimestamp time.Time, block *state.Block) error {
	interval := cfg.BlockInterval
	firstMissedSlot := slotIndex(prevTimestamp, interval) + 1
	lastMissedSlot := slotIndex(block.Header.Timestamp, interval) - 1

	for slot := firstMissedSlot; slot <= lastMissedSlot; slot++ {
		id, ok := scheduledDelegate(store, slot)
		if !ok {
			continue
		}
		a, ok := store.GetAccount(id)
		if !ok || a.Delegate == nil {
			continue
		}
		a.Delegate.BlocksMissed++
		store.StoreAccount(a)
		adjustRequiredConfirmations(store, cfg, 2)
	}

	producerSlot := slotIndex(block.Header.Timestamp, interval)
	producerID, ok := scheduledDelegate(store, producerSlot)
	if !ok {
		return errors.Wrap(ErrWrongSigner, "no active delegate set")
	}
	producer, err := accountForProduction(store, producerID)
	if err != nil {
		return err
	}
	if chaincrypto.NextSecretHash(block.Header.RevealedSecret) != producer.Delegate.NextSecretHash {
		return errors.Wrap(ErrInvalidSignature, "revealed secret does not match stored next_secret_hash")
	}
	producer.Delegate.BlocksProduced++
	producer.Delegate.LastBlockNumProduced = uint64(block.Header.BlockNum)
	producer.Delegate.NextSecretHash = block.Header.NextSecretHash
	store.StoreAccount(producer)
	adjustRequiredConfirmations(store, cfg, -1)
	return nil
}

// payDelegate credits producer's pay_balance its pay-rate share of the
// scheduled per-block pay, draws the full scheduled pay out of
// accumulated_fees (clamped at zero where the block's rule set has
// NegativeFeesAllowed false), and burns whatever the delegate declined to take
// from the base asset's current supply (spec §4.F step 5). Grounded on
// chain_database_impl::pay_delegate (chain_database.cpp:569-592):
// accumulated_fees funds the payout, not a direct supply mint, and the
// un-taken remainder is still destroyed so a delegate running below
// 100% pay_rate permanently shrinks supply rather than inflating the
// fee pool.
func payDelegate(store state.Store, cfg params.Consensus, producerID types.AccountID) error {
	producer, ok := store.GetAccount(producerID)
	if !ok || producer.Delegate == nil {
		return errors.Wrap(ErrWrongSigner, "pay_delegate: producer is not a delegate")
	}
	pay := types.Share(cfg.DelegatePayPerBlock)
	share := types.MulDiv(pay, types.Share(producer.Delegate.PayRatePct), 100)
	unpaid := pay - share

	producer.Delegate.PayBalance += share
	store.StoreAccount(producer)

	fees := store.GetAccumulatedFees(types.BaseAssetID) - pay
	if rules := market.RulesAt(cfg, store.GetHeadBlockNum()+1); !rules.NegativeFeesAllowed && fees < 0 {
		fees = 0
	}
	store.StoreAccumulatedFees(types.BaseAssetID, fees)

	if unpaid > 0 {
		if base, ok := store.GetAsset(types.BaseAssetID); ok {
			base.CurrentShareSupply -= unpaid
			store.StoreAsset(base)
		}
	}
	return nil
}

// refreshActiveDelegateSet takes the top-N delegate accounts by net
// votes and deterministically shuffles them using the running random
// seed (spec §4.F step 8). Run once every N blocks.
func refreshActiveDelegateSet(store state.Store, cfg params.Consensus, seed types.Hash) {
	ids := evaluator.DelegateAccountIDs(store)
	accounts := make([]*state.Account, 0, len(ids))
	for _, id := range ids {
		if a, ok := store.GetAccount(id); ok && a.Delegate != nil {
			accounts = append(accounts, a)
		}
	}
	sort.SliceStable(accounts, func(i, j int) bool {
		return accounts[i].Delegate.VotesFor > accounts[j].Delegate.VotesFor
	})
	n := cfg.ActiveDelegateCount
	if n > len(accounts) {
		n = len(accounts)
	}
	top := make([]types.AccountID, n)
	for i := 0; i < n; i++ {
		top[i] = accounts[i].ID
	}

	seedInt := int64(binary.BigEndian.Uint64(seed[:8]))
	rng := rand.New(rand.NewSource(seedInt))
	rng.Shuffle(len(top), func(i, j int) { top[i], top[j] = top[j], top[i] })

	storeActiveDelegates(store, top)
}
