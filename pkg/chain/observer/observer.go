// Package observer fans out block-commit/pop notifications to
// non-owning subscribers (spec.md §4.I). Grounded structurally on the
// teacher's api.Hub register/unregister/broadcast channel shape
// (pkg/api/websocket.go), repurposed from broadcasting trade fills to
// broadcasting block_applied/state_changed, and on spec §9's
// "Observer reentrancy" requirement that dispatch never happens inline
// with the non-suspendable section that produced it.
package observer

import (
	"sync"

	"github.com/bts-go/chaincore/pkg/chain/block"
	"github.com/bts-go/chaincore/pkg/chain/state"
)

// Bus implements block.Observer itself, fanning every notification out
// to its own registered subscribers from a single background goroutine
// so delivery is always queued past the call that produced it (spec
// §4.I "Dispatch is scheduled for after the current non-suspendable
// section completes") and always arrives in commit order (spec §5
// ordering guarantee (i)).
type Bus struct {
	mu          sync.RWMutex
	subscribers []block.Observer

	queue chan func()
	done  chan struct{}
}

// NewBus starts a bus with its dispatch loop running.
func NewBus() *Bus {
	b := &Bus{
		queue: make(chan func(), 256),
		done:  make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Bus) run() {
	for {
		select {
		case fn := <-b.queue:
			fn()
		case <-b.done:
			return
		}
	}
}

// Subscribe registers a non-owning observer reference (spec §4.I
// "Observers register a non-owning reference").
func (b *Bus) Subscribe(o block.Observer) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers = append(b.subscribers, o)
}

func (b *Bus) snapshot() []block.Observer {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]block.Observer(nil), b.subscribers...)
}

// BlockApplied queues block_applied dispatch to every subscriber.
func (b *Bus) BlockApplied(summary block.BlockSummary) {
	subs := b.snapshot()
	b.queue <- func() {
		for _, s := range subs {
			s.BlockApplied(summary)
		}
	}
}

// StateChanged queues state_changed dispatch to every subscriber.
func (b *Bus) StateChanged(undo *state.UndoState) {
	subs := b.snapshot()
	b.queue <- func() {
		for _, s := range subs {
			s.StateChanged(undo)
		}
	}
}

// Close stops the dispatch loop. Queued events already sent are not
// flushed.
func (b *Bus) Close() { close(b.done) }

var _ block.Observer = (*Bus)(nil)
