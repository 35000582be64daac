// Package heap implements the managed, reference-counted, compacting heap
// that backs every non-scalar KPL value (string, array, list, object,
// function, userdata). It mirrors the original memory heap's contract
// (header-per-object, bump allocation, deferred free, capacity doubling)
// while replacing raw pointer arithmetic with a stable handle table so that
// the compacting sweep can relocate survivors without corrupting references
// held outside the heap (registers, globals, or other heap objects).
package heap

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// Size is a byte count (an alias of int64), named to match the header shape
// documented by the bookkeeping below (size/prev/next/refs).
type Size = int64

// Handle is an opaque, compaction-stable reference to a heap object. The
// zero Handle never denotes a live object.
type Handle uint32

// NoHandle is the invalid/absent handle.
const NoHandle Handle = 0

// Object is anything the heap can own. Destroy releases any resources the
// object holds outside the heap (e.g. the underlying slice of a string or
// array) and WalkRefs enumerates the handles the object itself references,
// so the garbage collector can trace the live object graph without knowing
// the concrete object kinds.
type Object interface {
	Size() Size
	Destroy()
	WalkRefs(visit func(Handle))
}

const (
	// DefaultMinCapacity is the heap's starting and floor capacity, 32 KiB.
	DefaultMinCapacity Size = 1024 * 32
	// DefaultMaxCapacity is the heap's default ceiling, 8 MiB.
	DefaultMaxCapacity Size = 1024 * 1024 * 8
	// maxDoublingStep bounds how much a single capacity doubling may add.
	maxDoublingStep Size = 1024 * 1024 * 512
	// headerSize is the logical size in bytes every allocation's bookkeeping
	// header contributes, matching MemoryHeapHeader{size,next,prev,refs}.
	headerSize Size = 24
)

// entry is one live (or freed-but-not-yet-swept) slot in the heap's
// allocation-ordered storage array. The array's own order is the linked
// list the original heap threaded through prev/next offsets; no prev/next
// links are stored, since neighbours are always derivable from slot position.
type entry struct {
	handle Handle
	size   Size
	refs   uint32
	freed  bool
	marked bool
	obj    Object
}

// Heap is the compacting, reference-counted arena. It is not safe for
// concurrent use; callers (the interpreter loop) serialize access.
type Heap struct {
	storage []entry
	// location maps a Handle to its current index in storage. A handle
	// whose entry has been swept by GC maps to -1; a freed entry keeps its
	// index (with freed set) until the next GC.
	location []int

	offset      Size // bump offset: bytes consumed by live + not-yet-swept entries
	capacity    Size
	minCapacity Size
	maxCapacity Size
}

// New creates a Heap with the given capacity bounds. A zero maxCapacity or
// minCapacity selects the defaults.
func New(minCapacity, maxCapacity Size) *Heap {
	if minCapacity <= 0 {
		minCapacity = DefaultMinCapacity
	}
	if maxCapacity <= 0 {
		maxCapacity = DefaultMaxCapacity
	}
	if maxCapacity < minCapacity {
		maxCapacity = minCapacity
	}
	return &Heap{
		capacity:    minCapacity,
		minCapacity: minCapacity,
		maxCapacity: maxCapacity,
	}
}

// Capacity reports the heap's current byte capacity.
func (h *Heap) Capacity() Size { return h.capacity }

// BumpOffset reports the current bump-allocation offset in bytes: the
// number of bytes consumed by all entries the heap has not yet swept away.
func (h *Heap) BumpOffset() Size { return h.offset }

// Len reports the number of live handles (allocated, not yet freed).
func (h *Heap) Len() int {
	n := 0
	for i := range h.storage {
		if !h.storage[i].freed {
			n++
		}
	}
	return n
}

// Stats reports a heap's bump offset against its current capacity for
// diagnostic logging.
type Stats struct {
	Used     Size
	Capacity Size
}

// String renders used/capacity as human-readable byte counts, e.g.
// "24 KiB/8.0 MiB".
func (s Stats) String() string {
	return fmt.Sprintf("%s/%s", humanize.IBytes(uint64(s.Used)), humanize.IBytes(uint64(s.Capacity)))
}

// Stats reports the heap's current bump-allocation usage against its
// capacity, for host-side diagnostic logging.
func (h *Heap) Stats() Stats {
	return Stats{Used: h.offset, Capacity: h.capacity}
}

func (h *Heap) slot(handle Handle) (int, bool) {
	if handle == NoHandle || int(handle) > len(h.location) {
		return 0, false
	}
	idx := h.location[handle-1]
	if idx < 0 {
		return 0, false
	}
	return idx, true
}

// Get dereferences a handle to its object. The second result is false for
// NoHandle or a handle that no longer denotes a live object.
func (h *Heap) Get(handle Handle) (Object, bool) {
	idx, ok := h.slot(handle)
	if !ok || h.storage[idx].freed {
		return nil, false
	}
	return h.storage[idx].obj, true
}

// Refs reports an object's current reference count, or 0 if the handle is
// not live.
func (h *Heap) Refs(handle Handle) uint32 {
	idx, ok := h.slot(handle)
	if !ok || h.storage[idx].freed {
		return 0
	}
	return h.storage[idx].refs
}

// OutOfMemoryError is returned by Alloc when growth and collection both
// fail to make room for a new object.
type OutOfMemoryError struct {
	Requested Size
	Capacity  Size
}

func (e *OutOfMemoryError) Error() string {
	return fmt.Sprintf("heap: cannot allocate %d bytes (capacity %d exhausted after growth)", e.Requested, e.Capacity)
}

// Alloc reserves space for and registers obj, returning the handle future
// Values must use to reach it. Allocation bumps the offset and links the new
// entry at the tail of the live list. When the entry does not fit, it first
// runs one compacting collection (only if roots is non-nil), then grows the
// heap by up to two doublings, before failing with OutOfMemoryError.
func (h *Heap) Alloc(obj Object, roots func(visit func(Handle))) (Handle, error) {
	size := obj.Size() + headerSize
	if !h.reserve(size, roots) {
		return NoHandle, &OutOfMemoryError{Requested: size, Capacity: h.capacity}
	}

	handle := h.allocateHandle()
	h.storage = append(h.storage, entry{handle: handle, size: size, refs: 0, obj: obj})
	h.location[handle-1] = len(h.storage) - 1
	h.offset += size
	return handle, nil
}

// allocateHandle returns a free handle id, reusing a slot freed by an
// earlier GC compaction when one is available instead of growing the
// location table unboundedly.
func (h *Heap) allocateHandle() Handle {
	for i, idx := range h.location {
		if idx == -1 {
			return Handle(i + 1)
		}
	}
	h.location = append(h.location, -1)
	return Handle(len(h.location))
}

func (h *Heap) reserve(size Size, roots func(visit func(Handle))) bool {
	if h.offset+size <= h.capacity {
		return true
	}
	if roots != nil {
		h.GC(roots)
		if h.offset+size <= h.capacity {
			return true
		}
	}
	for attempt := 0; attempt < 2; attempt++ {
		grown := h.capacity * 2
		if grown-h.capacity > maxDoublingStep {
			grown = h.capacity + maxDoublingStep
		}
		if grown > h.maxCapacity {
			grown = h.maxCapacity
		}
		if grown <= h.capacity {
			break
		}
		h.capacity = grown
		if h.offset+size <= h.capacity {
			return true
		}
	}
	return false
}

// IncRef increments an object's refcount. It is a no-op for NoHandle, since
// Null and the Boolean singletons carry no heap header.
func (h *Heap) IncRef(handle Handle) {
	idx, ok := h.slot(handle)
	if !ok || h.storage[idx].freed {
		return
	}
	if h.storage[idx].refs < ^uint32(0) {
		h.storage[idx].refs++
	}
}

// DecRef decrements an object's refcount and, if it reaches zero,
// eagerly unlinks the entry and destroys its payload. The storage slot
// itself is only reclaimed by the next GC compaction. Returns the
// post-decrement refcount (0 if the handle was already gone).
func (h *Heap) DecRef(handle Handle) uint32 {
	idx, ok := h.slot(handle)
	if !ok || h.storage[idx].freed {
		return 0
	}
	if h.storage[idx].refs > 0 {
		h.storage[idx].refs--
	}
	if h.storage[idx].refs == 0 {
		h.free(idx)
		return 0
	}
	return h.storage[idx].refs
}

// Free explicitly drops a handle regardless of refcount, as the original
// heap's free(ptr) does for owner-directed destruction (e.g. an interpreter
// unwinding a register window). It is idempotent.
func (h *Heap) Free(handle Handle) {
	idx, ok := h.slot(handle)
	if !ok || h.storage[idx].freed {
		return
	}
	h.free(idx)
}

func (h *Heap) free(idx int) {
	e := &h.storage[idx]
	if e.freed {
		return
	}
	e.freed = true
	e.obj.Destroy()
	e.obj = nil
}
