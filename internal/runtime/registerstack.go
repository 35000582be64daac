package runtime

import (
	"github.com/NightTerror1721/kpl/internal/heap"
	"github.com/NightTerror1721/kpl/internal/value"
	"github.com/NightTerror1721/kpl/internal/vmerr"
)

// DefaultRegisterCapacity bounds the total number of register slots live
// across every nested activation at once, mirroring RegisterStack's fixed
// backing array in the source runtime.
const DefaultRegisterCapacity = 1 << 16

type window struct {
	bottom int // absolute index of this activation's slot 0 (self)
	count  int // number of file registers, i.e. slots bottom+1..bottom+count
}

// RegisterStack is a flat Value array sliced into one window per active
// activation: slot 0 of a window is the callee's self, slots 1..count are
// its numbered registers (R(0) addresses self, R(1) the first file
// register, and so on). Opening a window pushes it at the current top of
// the array rather than reusing the caller's registers in place, trading
// the source's register-aliasing optimization for a simpler, non-aliasing
// stack discipline (see DESIGN.md).
type RegisterStack struct {
	heap     *heap.Heap
	slots    []value.Value
	windows  []window
	capacity int
}

func NewRegisterStack(h *heap.Heap, capacity int) *RegisterStack {
	if capacity <= 0 {
		capacity = DefaultRegisterCapacity
	}
	return &RegisterStack{heap: h, slots: make([]value.Value, capacity), capacity: capacity}
}

// Open pushes a new window sized count+1 (self plus count file registers),
// writes self into slot 0 and args into slots 1..len(args), and fills the
// remainder with Null. All written values are retained.
func (r *RegisterStack) Open(count int, self value.Value, args []value.Value) error {
	bottom := 0
	if len(r.windows) > 0 {
		top := r.windows[len(r.windows)-1]
		bottom = top.bottom + top.count + 1
	}
	if bottom+count+1 > r.capacity {
		return vmerr.New(vmerr.StackOverflow, "register stack exhausted (capacity %d)", r.capacity)
	}
	value.Retain(r.heap, self)
	r.slots[bottom] = self
	for i := 0; i < count; i++ {
		idx := bottom + 1 + i
		if i < len(args) {
			value.Retain(r.heap, args[i])
			r.slots[idx] = args[i]
		} else {
			r.slots[idx] = value.Null
		}
	}
	r.windows = append(r.windows, window{bottom: bottom, count: count})
	return nil
}

// Close releases every value held in the topmost window and pops it.
func (r *RegisterStack) Close() {
	if len(r.windows) == 0 {
		return
	}
	w := r.windows[len(r.windows)-1]
	for i := w.bottom; i <= w.bottom+w.count; i++ {
		value.Release(r.heap, r.slots[i])
		r.slots[i] = value.Null
	}
	r.windows = r.windows[:len(r.windows)-1]
}

func (r *RegisterStack) current() window { return r.windows[len(r.windows)-1] }

// Get reads register i of the current window (0 is self).
func (r *RegisterStack) Get(i uint8) value.Value {
	return r.slots[r.current().bottom+int(i)]
}

// Set writes register i of the current window, releasing the previous
// occupant and retaining the new one.
func (r *RegisterStack) Set(i uint8, v value.Value) {
	idx := r.current().bottom + int(i)
	value.Retain(r.heap, v)
	value.Release(r.heap, r.slots[idx])
	r.slots[idx] = v
}

// Self returns register 0 of the current window.
func (r *RegisterStack) Self() value.Value { return r.Get(0) }

// WalkRoots visits every live register across every open window, including
// ancestor activations paused on a nested call.
func (r *RegisterStack) WalkRoots(visit func(heap.Handle)) {
	for _, w := range r.windows {
		for i := w.bottom; i <= w.bottom+w.count; i++ {
			value.WalkRefs(r.slots[i], visit)
		}
	}
}
