package observer

import (
	"sync"
	"testing"
	"time"

	"github.com/bts-go/chaincore/pkg/chain/block"
	"github.com/bts-go/chaincore/pkg/chain/state"
	"github.com/bts-go/chaincore/pkg/types"
)

type recordingObserver struct {
	mu      sync.Mutex
	applied []block.BlockSummary
	changed []*state.UndoState
}

func (r *recordingObserver) BlockApplied(s block.BlockSummary) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applied = append(r.applied, s)
}

func (r *recordingObserver) StateChanged(u *state.UndoState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changed = append(r.changed, u)
}

func (r *recordingObserver) snapshot() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.applied), len(r.changed)
}

func TestBusDispatchesToAllSubscribersInOrder(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := &recordingObserver{}
	b := &recordingObserver{}
	bus.Subscribe(a)
	bus.Subscribe(b)

	for i := uint32(1); i <= 3; i++ {
		bus.BlockApplied(block.BlockSummary{BlockNum: i})
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		na, _ := a.snapshot()
		nb, _ := b.snapshot()
		if na == 3 && nb == 3 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.applied) != 3 {
		t.Fatalf("subscriber a got %d notifications, want 3", len(a.applied))
	}
	for i, s := range a.applied {
		if s.BlockNum != uint32(i+1) {
			t.Fatalf("dispatch out of order: %v", a.applied)
		}
	}
}

func TestBusDispatchesStateChanged(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	a := &recordingObserver{}
	bus.Subscribe(a)

	bus.StateChanged(&state.UndoState{BlockID: types.BlockID{1}})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		_, nc := a.snapshot()
		if nc == 1 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.changed) != 1 {
		t.Fatal("expected one state_changed dispatch")
	}
}
