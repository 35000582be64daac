package runtime

import (
	"github.com/google/uuid"

	"github.com/NightTerror1721/kpl/internal/heap"
	"github.com/NightTerror1721/kpl/internal/value"
)

// State bundles one interpreter instance's heap, globals, call stack and
// register stack. Each State is independent: spec.md's single-threaded,
// cooperative execution model means nothing here needs to be safe for
// concurrent use by more than one goroutine at a time.
type State struct {
	ID uuid.UUID

	Heap    *heap.Heap
	Ctx     *value.Context
	Globals *Globals
	Calls   *CallStack
	Regs    *RegisterStack
}

// NewState builds a State with the given heap bounds and stack capacities.
// A zero/negative argument falls back to the package default for that
// dimension.
func NewState(minHeap, maxHeap heap.Size, callDepth, registerCapacity int) *State {
	h := heap.New(minHeap, maxHeap)
	return &State{
		ID:      uuid.New(),
		Heap:    h,
		Ctx:     &value.Context{Heap: h},
		Globals: NewGlobals(h),
		Calls:   NewCallStack(h, callDepth),
		Regs:    NewRegisterStack(h, registerCapacity),
	}
}
