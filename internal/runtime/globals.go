package runtime

import (
	"github.com/NightTerror1721/kpl/internal/heap"
	"github.com/NightTerror1721/kpl/internal/value"
)

// Globals is the interpreter-wide name-to-Value table GET_GLOBAL/SET_GLOBAL
// address. A lookup miss reads as Null rather than erroring, matching the
// source's GlobalsManager default.
type Globals struct {
	heap  *heap.Heap
	table map[string]value.Value
}

func NewGlobals(h *heap.Heap) *Globals {
	return &Globals{heap: h, table: make(map[string]value.Value)}
}

func (g *Globals) Get(name string) value.Value {
	if v, ok := g.table[name]; ok {
		return v
	}
	return value.Null
}

func (g *Globals) Set(name string, v value.Value) {
	value.Retain(g.heap, v)
	if old, ok := g.table[name]; ok {
		value.Release(g.heap, old)
	}
	g.table[name] = v
}

func (g *Globals) Delete(name string) {
	if old, ok := g.table[name]; ok {
		value.Release(g.heap, old)
		delete(g.table, name)
	}
}

// WalkRoots visits every handle a global variable currently references, for
// the garbage collector's mark phase.
func (g *Globals) WalkRoots(visit func(heap.Handle)) {
	for _, v := range g.table {
		value.WalkRefs(v, visit)
	}
}
