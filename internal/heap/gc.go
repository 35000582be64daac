package heap

// GC runs a mark-from-roots, compacting collection. roots enumerates every
// handle reachable from outside the heap (the register stack, the globals
// table, materialized chunk constants, and call-stack bindings); the
// collector then traces each live object's own WalkRefs to mark the
// transitive closure. Anything left unmarked is discarded regardless of
// its refcount, which is what makes reference cycles collectible: a cycle
// of objects that only reference each other can carry refs >= 1 forever
// but is unreachable from any root.
//
// Survivors are compacted leftward in storage order and the bump offset is
// recomputed to sit just past the last surviving entry. Handles are never
// renumbered: the location table is rewritten to point at each survivor's
// new slot, so Values holding a Handle anywhere outside the heap need no
// rewriting.
func (h *Heap) GC(roots func(visit func(Handle))) {
	h.mark(roots)
	h.sweepCompact()
}

func (h *Heap) mark(roots func(visit func(Handle))) {
	for i := range h.storage {
		h.storage[i].marked = false
	}
	if roots == nil {
		return
	}

	var worklist []Handle
	visit := func(handle Handle) {
		idx, ok := h.slot(handle)
		if !ok {
			return
		}
		e := &h.storage[idx]
		if e.freed || e.marked {
			return
		}
		e.marked = true
		worklist = append(worklist, handle)
	}

	roots(visit)
	for len(worklist) > 0 {
		handle := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		idx, ok := h.slot(handle)
		if !ok {
			continue
		}
		obj := h.storage[idx].obj
		if obj != nil {
			obj.WalkRefs(visit)
		}
	}
}

func (h *Heap) sweepCompact() {
	write := 0
	var offset Size

	for read := range h.storage {
		e := &h.storage[read]
		if e.freed {
			h.location[e.handle-1] = -1
			continue
		}
		if !e.marked {
			e.obj.Destroy()
			h.location[e.handle-1] = -1
			continue
		}
		if write != read {
			h.storage[write] = *e
		}
		h.location[e.handle-1] = write
		offset += h.storage[write].size
		write++
	}

	h.storage = h.storage[:write]
	h.offset = offset
}
