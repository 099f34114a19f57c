// Package mempool holds pending, not-yet-included transactions against
// a running copy of chain state layered on the current head (spec.md
// §4.H). Grounded structurally on the teacher's core.Mempool
// (pkg/app/core/mempool/mempool.go): a mutex-guarded struct holding
// plain transaction slices with no external queue library, generalized
// here from the teacher's three-bucket FIFO to a fee-priority ordered
// index since transactions here compete by fee rather than by a fixed
// type-ordering rule.
package mempool

import (
	"bytes"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"

	"github.com/bts-go/chaincore/pkg/chain/evaluator"
	"github.com/bts-go/chaincore/pkg/chain/pending"
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

var (
	// ErrAlreadyPending fires when a transaction id is already queued
	// (spec §4.H "Reject duplicate ids").
	ErrAlreadyPending = errors.New("mempool: transaction already pending")
	// ErrInsufficientRelayFee fires when a transaction's net fee falls
	// below the current quadratically-scaled relay fee (spec §4.H).
	ErrInsufficientRelayFee = errors.New("mempool: fee below relay_fee")
)

// Config bundles the relay-fee scaling parameters (spec §4.H "fees <
// relay_fee, scaled quadratically by queue overage").
type Config struct {
	BaseRelayFee     types.Share
	TargetQueueDepth int
}

type entry struct {
	txID types.Hash
	tx   *evaluator.SignedTransaction
	fee  types.Share
}

// feeIndexLess orders the fee index: fees desc, tx id asc (spec §4.H
// "a fee-sorted index (fees desc, tx_id asc)").
func feeIndexLess(a, b *entry) bool {
	if a.fee != b.fee {
		return a.fee > b.fee
	}
	return bytes.Compare(a.txID[:], b.txID[:]) < 0
}

// Mempool holds pending transactions against a running evaluator pass
// over a copy-on-write overlay of head (spec §4.H).
type Mempool struct {
	mu sync.Mutex

	head state.Store
	ctx  evaluator.Context
	cfg  Config

	running *pending.State
	byID    map[types.Hash]*entry
	ordered []*entry
}

// New builds an empty mempool layered on head.
func New(head state.Store, ctx evaluator.Context, cfg Config) *Mempool {
	m := &Mempool{
		head: head,
		ctx:  ctx,
		cfg:  cfg,
		byID: make(map[types.Hash]*entry),
	}
	m.resetRunningLocked()
	return m
}

func (m *Mempool) resetRunningLocked() {
	m.running = pending.New(m.head)
}

// relayFee returns the minimum fee a transaction must pay right now:
// base_relay_fee below the configured queue depth, or base_relay_fee
// times the overage squared once depth strictly exceeds it (spec
// §4.H "scaled quadratically by queue overage"). Grounded literally on
// chain_database_impl::store_pending_transaction
// (chain_database.cpp:1616-1624): the scaled fee replaces the base fee
// outright rather than adding to it, and the trigger is strict `>` of
// the target depth, not `<=`.
func (m *Mempool) relayFee() types.Share {
	target := m.cfg.TargetQueueDepth
	n := len(m.ordered)
	if target <= 0 || n <= target {
		return m.cfg.BaseRelayFee
	}
	overage := types.Share(n - target)
	return m.cfg.BaseRelayFee * overage * overage
}

// Accept evaluates stx against the running pending state and, if it
// pays at least the current relay fee, applies its effects, queues it,
// and returns its evaluation record (spec §4.H "On accept"; the record
// is also what the wallet boundary's store_pending_transaction hands
// back to the caller, spec §6 "Wallet boundary"). overrideLimits skips
// the relay-fee gate for a trusted local caller (spec §6
// "store_pending_transaction(tx, override_limits)"), but never the
// duplicate-id check or the transaction's own evaluation.
func (m *Mempool) Accept(stx *evaluator.SignedTransaction, overrideLimits bool) (*evaluator.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	txID := stx.ID()
	if _, ok := m.byID[txID]; ok {
		return nil, ErrAlreadyPending
	}

	ctx := m.ctx
	ctx.Now = m.head.Now()
	ctx.IsDuplicate = func(id types.Hash) bool {
		_, dup := m.byID[id]
		return dup
	}

	trial := pending.New(m.running)
	rec, err := evaluator.Evaluate(trial, ctx, stx)
	if err != nil {
		return nil, err
	}

	fee := rec.FeesPaid[types.BaseAssetID]
	if !overrideLimits {
		if required := m.relayFee(); fee < required {
			return nil, errors.Wrapf(ErrInsufficientRelayFee, "paid %d, required %d", fee, required)
		}
	}
	if err := trial.ApplyChanges(); err != nil {
		return nil, err
	}

	e := &entry{txID: txID, tx: stx, fee: fee}
	m.byID[txID] = e
	m.insertSortedLocked(e)
	return rec, nil
}

func (m *Mempool) insertSortedLocked(e *entry) {
	idx := sort.Search(len(m.ordered), func(i int) bool {
		return !feeIndexLess(m.ordered[i], e)
	})
	m.ordered = append(m.ordered, nil)
	copy(m.ordered[idx+1:], m.ordered[idx:])
	m.ordered[idx] = e
}

// OnNewHead rebuilds the running pending state against the new head
// and re-evaluates every queued transaction in fee order, discarding
// any that now fail (spec §4.H "On new head"). Safe to call from a
// background task; an in-flight call against a now-stale head should
// be abandoned by the caller rather than racing this one.
func (m *Mempool) OnNewHead(head state.Store) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.head = head
	old := m.ordered
	m.ordered = nil
	m.byID = make(map[types.Hash]*entry)
	m.resetRunningLocked()

	now := m.head.Now()
	for _, e := range old {
		ctx := m.ctx
		ctx.Now = now
		ctx.IsDuplicate = func(id types.Hash) bool {
			_, dup := m.byID[id]
			return dup
		}
		trial := pending.New(m.running)
		rec, err := evaluator.Evaluate(trial, ctx, e.tx)
		if err != nil {
			continue
		}
		fee := rec.FeesPaid[types.BaseAssetID]
		if fee < m.relayFee() {
			continue
		}
		if err := trial.ApplyChanges(); err != nil {
			continue
		}
		ne := &entry{txID: e.txID, tx: e.tx, fee: fee}
		m.byID[ne.txID] = ne
		m.insertSortedLocked(ne)
	}
}

// GetPendingTransactions returns the fee-ordered list block production
// walks when filling a new block (spec §4.H "get_pending_transactions").
func (m *Mempool) GetPendingTransactions() []*evaluator.SignedTransaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*evaluator.SignedTransaction, len(m.ordered))
	for i, e := range m.ordered {
		out[i] = e.tx
	}
	return out
}

// Len returns the number of currently pending transactions.
func (m *Mempool) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.ordered)
}
